package reconcile

import (
	"context"
	"fmt"
	"testing"

	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shotmark/internal/document"
	"shotmark/internal/models"
)

// fakeDurableStore is an in-memory stand-in for the GORM repository.
type fakeDurableStore struct {
	annotations map[string]models.Annotation
	links       map[string][]models.AnnotationLink
	bugs        map[string]models.Bug

	failBatch  bool
	failDelete bool
}

func newFakeDurableStore() *fakeDurableStore {
	return &fakeDurableStore{
		annotations: make(map[string]models.Annotation),
		links:       make(map[string][]models.AnnotationLink),
		bugs:        make(map[string]models.Bug),
	}
}

func (f *fakeDurableStore) GetByScreenshot(_ context.Context, screenshotID string) ([]models.Annotation, error) {
	var out []models.Annotation
	for _, a := range f.annotations {
		if a.ScreenshotID == screenshotID {
			a.Links = f.links[a.ID]
			out = append(out, a.Clone())
		}
	}
	return out, nil
}

func (f *fakeDurableStore) BatchReplace(_ context.Context, screenshotID string, incoming []models.Annotation) ([]models.Annotation, map[string]string, error) {
	if f.failBatch {
		return nil, nil, fmt.Errorf("connection refused")
	}

	keep := make(map[string]bool, len(incoming))
	promoted := make(map[string]string)
	for i := range incoming {
		a := incoming[i].Clone()
		a.ScreenshotID = screenshotID
		if !models.IsDurableID(a.ID) {
			clientID := a.ID
			a.ID = ksuid.New().String()
			promoted[clientID] = a.ID
		}
		f.annotations[a.ID] = a
		keep[a.ID] = true
	}
	for id, a := range f.annotations {
		if a.ScreenshotID == screenshotID && !keep[id] {
			delete(f.annotations, id)
			delete(f.links, id)
		}
	}

	fresh, _ := f.GetByScreenshot(context.Background(), screenshotID)
	return fresh, promoted, nil
}

func (f *fakeDurableStore) Delete(_ context.Context, id string) error {
	if f.failDelete {
		return fmt.Errorf("connection refused")
	}
	if _, ok := f.annotations[id]; !ok {
		return fmt.Errorf("annotation %s not found", id)
	}
	delete(f.annotations, id)
	delete(f.links, id)
	return nil
}

func (f *fakeDurableStore) LinksFor(_ context.Context, annotationID string) ([]models.AnnotationLink, error) {
	return f.links[annotationID], nil
}

type recordingNotifier struct {
	created []string
	deleted []string
}

func (n *recordingNotifier) AnnotationCreated(id string) { n.created = append(n.created, id) }
func (n *recordingNotifier) AnnotationDeleted(id string) { n.deleted = append(n.deleted, id) }

func pendingRect(x float64) models.Annotation {
	return models.Annotation{
		ID:          models.NewEphemeralID(),
		Type:        models.TypeRectangle,
		X:           x,
		Y:           0.1,
		Width:       models.Float64Ptr(0.2),
		Height:      models.Float64Ptr(0.2),
		Stroke:      models.StrokeRed,
		StrokeWidth: 2,
	}
}

func TestSaveAllPromotesEphemeralIDs(t *testing.T) {
	fake := newFakeDurableStore()
	store := document.NewStore()
	notifier := &recordingNotifier{}
	rec := New("shot-1", store, fake, fake, notifier)

	a := pendingRect(0.1)
	store.Add(a)
	require.Equal(t, document.SyncPending, store.Status(a.ID))

	require.NoError(t, rec.SaveAll(context.Background()))

	annotations := store.Annotations()
	require.Len(t, annotations, 1)
	assert.True(t, models.IsDurableID(annotations[0].ID), "save swaps in the server id")
	assert.Equal(t, document.SyncSynced, store.Status(annotations[0].ID))

	// Promotion is bookkeeping: no history entry beyond the Add itself.
	assert.True(t, store.CanUndo())
	store.Undo()
	assert.Empty(t, store.Annotations())

	require.Len(t, notifier.created, 1)
	assert.Equal(t, annotations[0].ID, notifier.created[0])
}

func TestSaveAllFailureMarksPendingAsFailed(t *testing.T) {
	fake := newFakeDurableStore()
	fake.failBatch = true
	store := document.NewStore()
	rec := New("shot-1", store, fake, fake, nil)

	a := pendingRect(0.1)
	store.Add(a)

	err := rec.SaveAll(context.Background())
	require.Error(t, err)
	assert.Equal(t, document.SyncFailed, store.Status(a.ID))

	// Recovery: next save retries the whole set.
	fake.failBatch = false
	require.NoError(t, rec.SaveAll(context.Background()))
	annotations := store.Annotations()
	require.Len(t, annotations, 1)
	assert.Equal(t, document.SyncSynced, store.Status(annotations[0].ID))
}

func TestDeleteIsOptimistic(t *testing.T) {
	fake := newFakeDurableStore()
	store := document.NewStore()
	notifier := &recordingNotifier{}
	rec := New("shot-1", store, fake, fake, notifier)

	store.Add(pendingRect(0.1))
	require.NoError(t, rec.SaveAll(context.Background()))
	id := store.Annotations()[0].ID

	fake.failDelete = true
	err := rec.Delete(context.Background(), id)
	require.Error(t, err)

	// Local removal sticks even though the remote call failed.
	assert.Empty(t, store.Annotations())
	assert.Empty(t, notifier.deleted)

	// The next load re-converges with whatever the server still holds.
	require.NoError(t, rec.LoadInitial(context.Background()))
	assert.Len(t, store.Annotations(), 1)
}

func TestDeleteEphemeralSkipsRemote(t *testing.T) {
	fake := newFakeDurableStore()
	fake.failDelete = true // would error if the remote call happened
	store := document.NewStore()
	rec := New("shot-1", store, fake, fake, nil)

	a := pendingRect(0.1)
	store.Add(a)

	require.NoError(t, rec.Delete(context.Background(), a.ID))
	assert.Empty(t, store.Annotations())
}

func TestDeleteDoesNotCascadeToRecords(t *testing.T) {
	fake := newFakeDurableStore()
	bug := models.Bug{ID: ksuid.New().String(), Title: "Broken layout"}
	fake.bugs[bug.ID] = bug

	store := document.NewStore()
	rec := New("shot-1", store, fake, fake, nil)

	store.Add(pendingRect(0.1))
	require.NoError(t, rec.SaveAll(context.Background()))
	id := store.Annotations()[0].ID
	fake.links[id] = []models.AnnotationLink{{
		AnnotationID: id,
		RecordType:   models.RecordBug,
		RecordID:     bug.ID,
	}}

	require.NoError(t, rec.Delete(context.Background(), id))

	// Link rows go with the annotation, the bug record stays.
	assert.Empty(t, fake.links[id])
	assert.Contains(t, fake.bugs, bug.ID)
}

func TestRefreshLinksBypassesHistory(t *testing.T) {
	fake := newFakeDurableStore()
	store := document.NewStore()
	rec := New("shot-1", store, fake, fake, nil)

	store.Add(pendingRect(0.1))
	require.NoError(t, rec.SaveAll(context.Background()))
	id := store.Annotations()[0].ID

	fake.links[id] = []models.AnnotationLink{{
		AnnotationID: id,
		RecordType:   models.RecordTestCase,
		RecordID:     ksuid.New().String(),
	}}

	undoDepthBefore := store.CanUndo()
	require.NoError(t, rec.RefreshLinks(context.Background(), id))

	a, _ := store.Get(id)
	require.Len(t, a.Links, 1)
	assert.Equal(t, models.RecordTestCase, a.Links[0].RecordType)
	assert.Equal(t, undoDepthBefore, store.CanUndo(), "metadata merge is not a user edit")
}

// racingLinkReader edits the document mid-fetch, the way a user drag
// lands while the link request is still in flight.
type racingLinkReader struct {
	inner  LinkReader
	during func()
}

func (r *racingLinkReader) LinksFor(ctx context.Context, annotationID string) ([]models.AnnotationLink, error) {
	r.during()
	return r.inner.LinksFor(ctx, annotationID)
}

func TestRefreshLinksPreservesConcurrentEdits(t *testing.T) {
	fake := newFakeDurableStore()
	store := document.NewStore()

	store.Add(pendingRect(0.1))
	rec := New("shot-1", store, fake, fake, nil)
	require.NoError(t, rec.SaveAll(context.Background()))
	id := store.Annotations()[0].ID

	fake.links[id] = []models.AnnotationLink{{
		AnnotationID: id,
		RecordType:   models.RecordBug,
		RecordID:     ksuid.New().String(),
	}}

	racing := New("shot-1", store, fake, &racingLinkReader{
		inner: fake,
		during: func() {
			store.Update(id, document.Patch{X: models.Float64Ptr(0.9)})
		},
	}, nil)
	require.NoError(t, racing.RefreshLinks(context.Background(), id))

	a, _ := store.Get(id)
	assert.InDelta(t, 0.9, a.X, 1e-9, "edit made during the fetch survives the merge")
	require.Len(t, a.Links, 1)
	assert.Equal(t, models.RecordBug, a.Links[0].RecordType)
}

func TestLoadInitialReplacesDocument(t *testing.T) {
	fake := newFakeDurableStore()
	durableID := ksuid.New().String()
	fake.annotations[durableID] = models.Annotation{
		ID:           durableID,
		ScreenshotID: "shot-1",
		Type:         models.TypeRectangle,
		X:            0.3,
		Y:            0.3,
		Width:        models.Float64Ptr(0.1),
		Height:       models.Float64Ptr(0.1),
		Stroke:       models.StrokeBlue,
		StrokeWidth:  2,
	}

	store := document.NewStore()
	store.Add(pendingRect(0.9)) // local junk, replaced by the load

	rec := New("shot-1", store, fake, fake, nil)
	require.NoError(t, rec.LoadInitial(context.Background()))

	annotations := store.Annotations()
	require.Len(t, annotations, 1)
	assert.Equal(t, durableID, annotations[0].ID)
	assert.Equal(t, document.SyncSynced, store.Status(durableID))
	assert.False(t, store.CanUndo(), "load clears session history")
}
