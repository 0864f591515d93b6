package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"shotmark/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// AnnotationRepositoryImpl persists annotation sets per screenshot.
type AnnotationRepositoryImpl struct {
	db *gorm.DB
}

// NewAnnotationRepository creates a new annotation repository.
func NewAnnotationRepository(db *gorm.DB) *AnnotationRepositoryImpl {
	return &AnnotationRepositoryImpl{db: db}
}

// GetByScreenshot returns the full annotation set for one screenshot,
// links included, ordered by id. KSUIDs are time-ordered, so this is
// creation order.
func (r *AnnotationRepositoryImpl) GetByScreenshot(ctx context.Context, screenshotID string) ([]models.Annotation, error) {
	var annotations []models.Annotation

	err := r.db.WithContext(ctx).
		Where("screenshot_id = ?", screenshotID).
		Preload("Links").
		Order("id").
		Find(&annotations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get annotations for screenshot %s: %w", screenshotID, err)
	}

	return annotations, nil
}

// BatchReplace writes the whole annotation set for a screenshot in one
// transaction: rows absent from the incoming set are removed together
// with their links, durable-id rows are updated in place, and rows
// arriving under a client-generated id are inserted with a fresh
// server id. The returned map carries each client id to the durable id
// that replaced it.
func (r *AnnotationRepositoryImpl) BatchReplace(ctx context.Context, screenshotID string, annotations []models.Annotation) ([]models.Annotation, map[string]string, error) {
	promoted := make(map[string]string)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		incoming := make(map[string]bool, len(annotations))
		for i := range annotations {
			incoming[annotations[i].ID] = true
		}

		var existing []models.Annotation
		if err := tx.Select("id").Where("screenshot_id = ?", screenshotID).Find(&existing).Error; err != nil {
			return fmt.Errorf("failed to load existing set: %w", err)
		}
		for _, a := range existing {
			if incoming[a.ID] {
				continue
			}
			if err := deleteAnnotationTx(tx, a.ID); err != nil {
				return err
			}
		}

		for i := range annotations {
			a := &annotations[i]
			a.ScreenshotID = screenshotID
			if err := a.Validate(); err != nil {
				return err
			}

			if models.IsDurableID(a.ID) {
				if err := tx.Omit("Links").Save(a).Error; err != nil {
					return fmt.Errorf("failed to update annotation %s: %w", a.ID, err)
				}
				continue
			}

			// Insert path. BeforeCreate swaps the client id for a KSUID;
			// remember the pair so callers can rewrite references.
			clientID := a.ID
			if err := tx.Omit("Links").Create(a).Error; err != nil {
				return fmt.Errorf("failed to create annotation: %w", err)
			}
			promoted[clientID] = a.ID
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	fresh, err := r.GetByScreenshot(ctx, screenshotID)
	if err != nil {
		return nil, nil, err
	}
	return fresh, promoted, nil
}

// Delete removes one annotation and its link rows. Links are ownership
// metadata only: the bug and test-case records they point at survive.
func (r *AnnotationRepositoryImpl) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteAnnotationTx(tx, id)
	})
}

func deleteAnnotationTx(tx *gorm.DB, id string) error {
	if err := tx.Where("annotation_id = ?", id).Delete(&models.AnnotationLink{}).Error; err != nil {
		return fmt.Errorf("failed to delete links for annotation %s: %w", id, err)
	}

	result := tx.Where("id = ?", id).Delete(&models.Annotation{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete annotation %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("annotation %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetByID returns one annotation with its links.
func (r *AnnotationRepositoryImpl) GetByID(ctx context.Context, id string) (*models.Annotation, error) {
	var annotation models.Annotation

	err := r.db.WithContext(ctx).
		Preload("Links").
		First(&annotation, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("annotation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get annotation %s: %w", id, err)
	}

	return &annotation, nil
}
