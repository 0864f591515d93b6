// Package reconcile bridges the in-memory annotation document and the
// durable store. Saves ship the whole set in one batch, promote
// client-generated ids to server ids, and track per-annotation sync
// state; deletes are optimistic.
package reconcile

import (
	"context"
	"fmt"
	"log"

	"shotmark/internal/document"
	"shotmark/internal/models"
)

// DurableStore is the persistence surface the reconciler consumes.
// Satisfied by the GORM annotation repository on the server, and by an
// HTTP client against the REST surface on a remote client.
type DurableStore interface {
	GetByScreenshot(ctx context.Context, screenshotID string) ([]models.Annotation, error)
	// BatchReplace writes the whole set and returns the fresh rows plus
	// the client-id to durable-id pairs it promoted.
	BatchReplace(ctx context.Context, screenshotID string, annotations []models.Annotation) ([]models.Annotation, map[string]string, error)
	Delete(ctx context.Context, id string) error
}

// LinkReader resolves record associations for one annotation.
type LinkReader interface {
	LinksFor(ctx context.Context, annotationID string) ([]models.AnnotationLink, error)
}

// Notifier receives the room-facing side effects of reconciliation.
// Both calls are fire-and-forget.
type Notifier interface {
	AnnotationCreated(annotationID string)
	AnnotationDeleted(annotationID string)
}

// NopNotifier discards notifications, for sessions outside a room.
type NopNotifier struct{}

func (NopNotifier) AnnotationCreated(string) {}
func (NopNotifier) AnnotationDeleted(string) {}

// Reconciler keeps one session's document and the durable store
// converged.
type Reconciler struct {
	screenshotID string
	store        *document.Store
	durable      DurableStore
	links        LinkReader
	notifier     Notifier
}

// New creates a reconciler for one screenshot session. links and
// notifier may be nil.
func New(screenshotID string, store *document.Store, durable DurableStore, links LinkReader, notifier Notifier) *Reconciler {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Reconciler{
		screenshotID: screenshotID,
		store:        store,
		durable:      durable,
		links:        links,
		notifier:     notifier,
	}
}

// LoadInitial replaces the document with the authoritative persisted
// set. Called on session start and after a connection is restored,
// since events missed while offline are never replayed.
func (r *Reconciler) LoadInitial(ctx context.Context) error {
	annotations, err := r.durable.GetByScreenshot(ctx, r.screenshotID)
	if err != nil {
		return fmt.Errorf("load annotations: %w", err)
	}
	r.store.SetAll(annotations)
	return nil
}

// SaveAll persists the current document as one batch write. Annotations
// that went in under a client-generated id come back with a durable id;
// each promotion is applied to the document without touching undo
// history, and announced to the room. On failure every annotation that
// was pending stays dirty and is retried wholesale on the next save.
func (r *Reconciler) SaveAll(ctx context.Context) error {
	local := r.store.Annotations()

	persisted, promoted, err := r.durable.BatchReplace(ctx, r.screenshotID, local)
	if err != nil {
		for _, a := range local {
			if r.store.Status(a.ID) == document.SyncPending {
				r.store.SetStatus(a.ID, document.SyncFailed)
			}
		}
		return fmt.Errorf("save annotations: %w", err)
	}

	for clientID, durableID := range promoted {
		r.store.ReplaceID(clientID, durableID)
		r.notifier.AnnotationCreated(durableID)
	}
	for _, a := range persisted {
		r.store.SetStatus(a.ID, document.SyncSynced)
	}
	return nil
}

// Delete removes an annotation optimistically: the document drops it
// immediately, then the durable row goes. A remote failure is logged
// and announced as a sync failure rather than rolled back; the next
// LoadInitial re-converges.
func (r *Reconciler) Delete(ctx context.Context, id string) error {
	r.store.Delete(id)

	if !models.IsDurableID(id) {
		// Never persisted, nothing to delete remotely.
		return nil
	}

	if err := r.durable.Delete(ctx, id); err != nil {
		log.Printf("Failed to delete annotation %s remotely: %v", id, err)
		return fmt.Errorf("delete annotation %s: %w", id, err)
	}
	r.notifier.AnnotationDeleted(id)
	return nil
}

// RefreshLinks re-reads the record associations for one annotation and
// merges them into the document. Only the link set is written back:
// geometry edited locally while the fetch was in flight is untouched.
// Link changes are metadata, not user edits, so the merge bypasses undo
// history.
func (r *Reconciler) RefreshLinks(ctx context.Context, annotationID string) error {
	if r.links == nil {
		return nil
	}
	if _, ok := r.store.Get(annotationID); !ok {
		return nil
	}
	links, err := r.links.LinksFor(ctx, annotationID)
	if err != nil {
		return fmt.Errorf("refresh links for %s: %w", annotationID, err)
	}
	r.store.MergeLinks(annotationID, links)
	return nil
}
