package api

import (
	"context"

	"shotmark/internal/models"
)

// The handler package is the consumer of the repositories and the room
// hub, so the interfaces it needs live here. Only the methods handlers
// actually call are declared, which keeps the mocks in the tests small.

// AnnotationStore is the persistence surface for annotation sets.
type AnnotationStore interface {
	GetByScreenshot(ctx context.Context, screenshotID string) ([]models.Annotation, error)
	BatchReplace(ctx context.Context, screenshotID string, annotations []models.Annotation) ([]models.Annotation, map[string]string, error)
	Delete(ctx context.Context, id string) error
}

// LinkStore manages annotation-record associations.
type LinkStore interface {
	LinkToRecord(ctx context.Context, annotationID string, recordType models.RecordType, recordID string) (*models.AnnotationLink, error)
	UnlinkFromRecord(ctx context.Context, annotationID string, recordType models.RecordType, recordID string) error
	LinksFor(ctx context.Context, annotationID string) ([]models.AnnotationLink, error)
	AnnotationsForRecord(ctx context.Context, recordType models.RecordType, recordID string) ([]models.Annotation, error)
}

// ScreenshotStore manages screenshot metadata.
type ScreenshotStore interface {
	Create(ctx context.Context, screenshot *models.Screenshot) error
	GetByID(ctx context.Context, id string) (*models.Screenshot, error)
	List(ctx context.Context, limit int) ([]models.Screenshot, error)
}

// RoomPublisher pushes one-shot events into a screenshot's room.
type RoomPublisher interface {
	PublishEvent(roomID string, event models.RoomEvent)
}
