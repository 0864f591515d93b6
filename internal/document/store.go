// Package document holds the in-memory authoritative annotation list for
// one screenshot-viewing session. The store is the sole mutator of that
// list: every user-originated mutation pushes the pre-mutation state onto
// a bounded undo history and clears the redo stack.
//
// A store is constructed per session and disposed with it; there is no
// process-wide instance, which keeps the history stacks independently
// testable.
package document

import (
	"shotmark/internal/models"
)

// DefaultHistoryCapacity bounds the undo stack. Once exceeded, the
// oldest entry is truncated: undo reaches at most capacity steps back.
const DefaultHistoryCapacity = 50

// SyncStatus tracks an annotation's persistence state locally.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

// Snapshot is the immutable view emitted to UI consumers on every
// change.
type Snapshot struct {
	Annotations []models.Annotation
	SelectedID  string
	CanUndo     bool
	CanRedo     bool
}

// historyEntry captures {annotations, selection} immediately before a
// mutating operation.
type historyEntry struct {
	annotations []models.Annotation
	selectedID  string
}

// Store owns the annotation list for one screenshot. All methods are
// synchronous and atomic from the caller's perspective; the owning
// session drives it from a single goroutine.
type Store struct {
	annotations []models.Annotation
	selectedID  string

	undo     []historyEntry
	redo     []historyEntry
	capacity int

	status map[string]SyncStatus

	// gestureDepth suppresses history pushes inside a drag/resize
	// gesture so undo granularity stays at one user action.
	gestureDepth int

	onChange func(Snapshot)
}

// Option configures a Store at construction.
type Option func(*Store)

// WithHistoryCapacity overrides the undo stack bound.
func WithHistoryCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithOnChange registers the subscriber notified after every change.
func WithOnChange(fn func(Snapshot)) Option {
	return func(s *Store) { s.onChange = fn }
}

// NewStore creates an empty per-session store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		capacity: DefaultHistoryCapacity,
		status:   make(map[string]SyncStatus),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetAll replaces the whole document, e.g. when loading the
// authoritative set from the server. History is local-session-scoped,
// so both stacks are cleared.
func (s *Store) SetAll(annotations []models.Annotation) {
	s.annotations = cloneAll(annotations)
	s.undo = nil
	s.redo = nil
	s.status = make(map[string]SyncStatus, len(annotations))
	for _, a := range annotations {
		if models.IsDurableID(a.ID) {
			s.status[a.ID] = SyncSynced
		} else {
			s.status[a.ID] = SyncPending
		}
	}
	if _, ok := s.byID(s.selectedID); !ok {
		s.selectedID = ""
	}
	s.emit()
}

// Add appends a new annotation and selects it.
func (s *Store) Add(a models.Annotation) {
	s.pushHistory()
	s.annotations = append(s.annotations, a.Clone())
	s.selectedID = a.ID
	s.status[a.ID] = SyncPending
	s.emit()
}

// Patch is a partial field update. Nil fields are left untouched.
type Patch struct {
	X      *float64
	Y      *float64
	Width  *float64
	Height *float64
	Points models.PointList
	Stroke *models.StrokeColor
	Links  []models.AnnotationLink
}

// Update applies a partial update to one annotation. Unknown ids are
// ignored. Inside a gesture (BeginGesture/EndGesture) only the first
// push counts, so a whole drag coalesces into one history entry.
func (s *Store) Update(id string, p Patch) {
	idx, ok := s.byID(id)
	if !ok {
		return
	}
	s.pushHistory()
	s.applyPatch(idx, p)
	s.emit()
}

// MergeRemote applies a collaborator's update without touching local
// history: remote mutations are not undoable locally. An unknown id is
// inserted (the peer created it before we saw the event).
func (s *Store) MergeRemote(a models.Annotation) {
	if idx, ok := s.byID(a.ID); ok {
		s.annotations[idx] = a.Clone()
	} else {
		s.annotations = append(s.annotations, a.Clone())
	}
	if _, ok := s.status[a.ID]; !ok {
		s.status[a.ID] = SyncSynced
	}
	s.emit()
}

// Delete removes an annotation. Linked bug/test-case records are never
// touched; link cleanup is the reconciler's concern.
func (s *Store) Delete(id string) {
	idx, ok := s.byID(id)
	if !ok {
		return
	}
	s.pushHistory()
	s.annotations = append(s.annotations[:idx], s.annotations[idx+1:]...)
	delete(s.status, id)
	if s.selectedID == id {
		s.selectedID = ""
	}
	s.emit()
}

// MergeLinks replaces one annotation's record associations in place.
// Only the links change: geometry and style stay whatever they are at
// merge time, so a fetch that raced a local edit cannot revert it.
// Links are metadata, not user edits, so no history entry is pushed.
func (s *Store) MergeLinks(id string, links []models.AnnotationLink) {
	idx, ok := s.byID(id)
	if !ok {
		return
	}
	s.annotations[idx].Links = append([]models.AnnotationLink(nil), links...)
	s.emit()
}

// RemoveRemote drops a collaborator-deleted annotation without a
// history push.
func (s *Store) RemoveRemote(id string) {
	idx, ok := s.byID(id)
	if !ok {
		return
	}
	s.annotations = append(s.annotations[:idx], s.annotations[idx+1:]...)
	delete(s.status, id)
	if s.selectedID == id {
		s.selectedID = ""
	}
	s.emit()
}

// ReplaceID promotes an ephemeral id to its durable successor after a
// save round trip. This is bookkeeping, not a user action: no history
// entry is pushed, and selection continuity is preserved. Calling it
// with an absent oldID, or twice with the same arguments, is a no-op.
func (s *Store) ReplaceID(oldID, newID string) {
	idx, ok := s.byID(oldID)
	if !ok {
		return
	}
	s.annotations[idx].ID = newID
	if st, ok := s.status[oldID]; ok {
		delete(s.status, oldID)
		s.status[newID] = st
	}
	if s.selectedID == oldID {
		s.selectedID = newID
	}
	// History snapshots keep the old id; undo past the promotion is
	// re-reconciled on the next save, which resubmits by current shape.
	s.emit()
}

// Select marks an annotation as selected; empty id clears selection.
func (s *Store) Select(id string) {
	if id != "" {
		if _, ok := s.byID(id); !ok {
			return
		}
	}
	s.selectedID = id
	s.emit()
}

// SetStatus records the persistence state for one annotation.
func (s *Store) SetStatus(id string, st SyncStatus) {
	if _, ok := s.byID(id); !ok {
		return
	}
	s.status[id] = st
}

// Status returns the persistence state for one annotation.
func (s *Store) Status(id string) SyncStatus {
	return s.status[id]
}

// BeginGesture opens a coalesced mutation scope: the pre-gesture state
// is pushed once, and Update calls until EndGesture reuse that entry.
func (s *Store) BeginGesture() {
	s.pushHistory()
	s.gestureDepth++
}

// EndGesture closes the scope opened by BeginGesture.
func (s *Store) EndGesture() {
	if s.gestureDepth > 0 {
		s.gestureDepth--
	}
}

// Undo restores the most recent history entry. No-op when the stack is
// empty.
func (s *Store) Undo() {
	if len(s.undo) == 0 {
		return
	}
	entry := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.redo = append(s.redo, s.snapshotEntry())
	s.restore(entry)
	s.emit()
}

// Redo re-applies the most recently undone entry. No-op when the stack
// is empty.
func (s *Store) Redo() {
	if len(s.redo) == 0 {
		return
	}
	entry := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	s.undo = append(s.undo, s.snapshotEntry())
	s.restore(entry)
	s.emit()
}

// CanUndo reports whether Undo would mutate.
func (s *Store) CanUndo() bool { return len(s.undo) > 0 }

// CanRedo reports whether Redo would mutate.
func (s *Store) CanRedo() bool { return len(s.redo) > 0 }

// Annotations returns a copy of the current list.
func (s *Store) Annotations() []models.Annotation {
	return cloneAll(s.annotations)
}

// Get returns a copy of one annotation by id.
func (s *Store) Get(id string) (models.Annotation, bool) {
	idx, ok := s.byID(id)
	if !ok {
		return models.Annotation{}, false
	}
	return s.annotations[idx].Clone(), true
}

// SelectedID returns the currently selected annotation id, if any.
func (s *Store) SelectedID() string { return s.selectedID }

// Snapshot returns the current consumer view.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		Annotations: cloneAll(s.annotations),
		SelectedID:  s.selectedID,
		CanUndo:     s.CanUndo(),
		CanRedo:     s.CanRedo(),
	}
}

func (s *Store) applyPatch(idx int, p Patch) {
	a := &s.annotations[idx]
	if p.X != nil {
		a.X = *p.X
	}
	if p.Y != nil {
		a.Y = *p.Y
	}
	if p.Width != nil {
		a.Width = models.Float64Ptr(*p.Width)
	}
	if p.Height != nil {
		a.Height = models.Float64Ptr(*p.Height)
	}
	if p.Points != nil {
		a.Points = append(models.PointList(nil), p.Points...)
	}
	if p.Stroke != nil {
		a.Stroke = *p.Stroke
	}
	if p.Links != nil {
		a.Links = append([]models.AnnotationLink(nil), p.Links...)
	}
	a.Clamp()
}

func (s *Store) pushHistory() {
	if s.gestureDepth > 0 {
		return
	}
	s.undo = append(s.undo, s.snapshotEntry())
	if len(s.undo) > s.capacity {
		// Bounded loss: the oldest state becomes unreachable.
		s.undo = s.undo[len(s.undo)-s.capacity:]
	}
	s.redo = nil
}

func (s *Store) snapshotEntry() historyEntry {
	return historyEntry{
		annotations: cloneAll(s.annotations),
		selectedID:  s.selectedID,
	}
}

func (s *Store) restore(e historyEntry) {
	s.annotations = cloneAll(e.annotations)
	s.selectedID = e.selectedID
}

func (s *Store) byID(id string) (int, bool) {
	if id == "" {
		return 0, false
	}
	for i := range s.annotations {
		if s.annotations[i].ID == id {
			return i, true
		}
	}
	return 0, false
}

func (s *Store) emit() {
	if s.onChange != nil {
		s.onChange(s.Snapshot())
	}
}

func cloneAll(in []models.Annotation) []models.Annotation {
	out := make([]models.Annotation, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}
