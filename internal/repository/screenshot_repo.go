package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"shotmark/internal/models"
)

// ScreenshotRepositoryImpl persists screenshot metadata.
type ScreenshotRepositoryImpl struct {
	db *gorm.DB
}

// NewScreenshotRepository creates a new screenshot repository.
func NewScreenshotRepository(db *gorm.DB) *ScreenshotRepositoryImpl {
	return &ScreenshotRepositoryImpl{db: db}
}

// Create registers a screenshot. URL and pixel dimensions are required;
// dimensions drive the client's coordinate normalization.
func (r *ScreenshotRepositoryImpl) Create(ctx context.Context, screenshot *models.Screenshot) error {
	if screenshot.URL == "" {
		return fmt.Errorf("screenshot URL is required")
	}
	if screenshot.Width <= 0 || screenshot.Height <= 0 {
		return fmt.Errorf("screenshot dimensions must be positive, got %dx%d", screenshot.Width, screenshot.Height)
	}

	if err := r.db.WithContext(ctx).Create(screenshot).Error; err != nil {
		return fmt.Errorf("failed to create screenshot: %w", err)
	}
	return nil
}

// GetByID returns one screenshot.
func (r *ScreenshotRepositoryImpl) GetByID(ctx context.Context, id string) (*models.Screenshot, error) {
	var screenshot models.Screenshot

	err := r.db.WithContext(ctx).First(&screenshot, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("screenshot %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get screenshot %s: %w", id, err)
	}

	return &screenshot, nil
}

// List returns screenshots newest first.
func (r *ScreenshotRepositoryImpl) List(ctx context.Context, limit int) ([]models.Screenshot, error) {
	if limit <= 0 {
		limit = 50
	}

	var screenshots []models.Screenshot
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&screenshots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list screenshots: %w", err)
	}

	return screenshots, nil
}
