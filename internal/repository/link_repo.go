package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"shotmark/internal/models"
)

// LinkRepositoryImpl manages the association rows between annotations
// and tracked records.
type LinkRepositoryImpl struct {
	db *gorm.DB
}

// NewLinkRepository creates a new link repository.
func NewLinkRepository(db *gorm.DB) *LinkRepositoryImpl {
	return &LinkRepositoryImpl{db: db}
}

// LinkToRecord connects an annotation to a bug or test case. The target
// record must exist; linking the same pair twice returns the existing
// row instead of a duplicate.
func (r *LinkRepositoryImpl) LinkToRecord(ctx context.Context, annotationID string, recordType models.RecordType, recordID string) (*models.AnnotationLink, error) {
	if err := r.recordExists(ctx, recordType, recordID); err != nil {
		return nil, err
	}

	var existing models.AnnotationLink
	err := r.db.WithContext(ctx).
		Where("annotation_id = ? AND record_type = ? AND record_id = ?", annotationID, recordType, recordID).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check existing link: %w", err)
	}

	link := &models.AnnotationLink{
		AnnotationID: annotationID,
		RecordType:   recordType,
		RecordID:     recordID,
	}
	if err := r.db.WithContext(ctx).Create(link).Error; err != nil {
		return nil, fmt.Errorf("failed to create link: %w", err)
	}

	return link, nil
}

// UnlinkFromRecord removes one annotation-record association. Only the
// link row goes away; the record itself is untouched.
func (r *LinkRepositoryImpl) UnlinkFromRecord(ctx context.Context, annotationID string, recordType models.RecordType, recordID string) error {
	result := r.db.WithContext(ctx).
		Where("annotation_id = ? AND record_type = ? AND record_id = ?", annotationID, recordType, recordID).
		Delete(&models.AnnotationLink{})

	if result.Error != nil {
		return fmt.Errorf("failed to delete link: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("link for annotation %s: %w", annotationID, ErrNotFound)
	}

	return nil
}

// LinksFor returns every record association for one annotation.
func (r *LinkRepositoryImpl) LinksFor(ctx context.Context, annotationID string) ([]models.AnnotationLink, error) {
	var links []models.AnnotationLink

	err := r.db.WithContext(ctx).
		Where("annotation_id = ?", annotationID).
		Order("created_at").
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get links for annotation %s: %w", annotationID, err)
	}

	return links, nil
}

// AnnotationsForRecord returns the annotations linked to one record,
// the reverse lookup used by the bug and test-case detail views.
func (r *LinkRepositoryImpl) AnnotationsForRecord(ctx context.Context, recordType models.RecordType, recordID string) ([]models.Annotation, error) {
	var links []models.AnnotationLink
	err := r.db.WithContext(ctx).
		Where("record_type = ? AND record_id = ?", recordType, recordID).
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get links for record %s: %w", recordID, err)
	}

	ids := make([]string, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.AnnotationID)
	}
	if len(ids) == 0 {
		return []models.Annotation{}, nil
	}

	var annotations []models.Annotation
	err = r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id").
		Find(&annotations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get annotations for record %s: %w", recordID, err)
	}

	return annotations, nil
}

func (r *LinkRepositoryImpl) recordExists(ctx context.Context, recordType models.RecordType, recordID string) error {
	var count int64
	var err error

	switch recordType {
	case models.RecordBug:
		err = r.db.WithContext(ctx).Model(&models.Bug{}).Where("id = ?", recordID).Count(&count).Error
	case models.RecordTestCase:
		err = r.db.WithContext(ctx).Model(&models.TestCase{}).Where("id = ?", recordID).Count(&count).Error
	default:
		return fmt.Errorf("unknown record type %q", recordType)
	}
	if err != nil {
		return fmt.Errorf("failed to check record %s: %w", recordID, err)
	}
	if count == 0 {
		return fmt.Errorf("%s %s: %w", recordType, recordID, ErrNotFound)
	}
	return nil
}
