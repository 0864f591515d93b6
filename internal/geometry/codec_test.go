package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shotmark/internal/models"
)

const tolerance = 1e-6

func rectAnnotation(x, y, w, h float64) models.Annotation {
	return models.Annotation{
		ID:          models.NewEphemeralID(),
		Type:        models.TypeRectangle,
		X:           x,
		Y:           y,
		Width:       models.Float64Ptr(w),
		Height:      models.Float64Ptr(h),
		Stroke:      models.StrokeRed,
		StrokeWidth: 2,
	}
}

func freehandAnnotation(points ...float64) models.Annotation {
	return models.Annotation{
		ID:          models.NewEphemeralID(),
		Type:        models.TypeFreehand,
		X:           points[0],
		Y:           points[1],
		Points:      points,
		Stroke:      models.StrokeBlue,
		StrokeWidth: 3,
	}
}

func TestRoundTrip(t *testing.T) {
	img := Size{Width: 1920, Height: 1080}

	viewports := []Viewport{
		{Container: Size{Width: 1920, Height: 1080}, Zoom: 1},
		{Container: Size{Width: 800, Height: 600}, Zoom: 1},
		{Container: Size{Width: 800, Height: 600}, Zoom: 2.5},
		{Container: Size{Width: 1280, Height: 720}, Zoom: 0.75, PanX: 120, PanY: -40},
		{Container: Size{Width: 3840, Height: 2160}, Zoom: 1.25, PanX: -300, PanY: 95},
	}

	annotations := []models.Annotation{
		rectAnnotation(0.1, 0.2, 0.3, 0.4),
		rectAnnotation(0, 0, 1, 1),
		freehandAnnotation(0.25, 0.25, 0.5, 0.5, 0.75, 0.3),
	}

	for _, vp := range viewports {
		for _, a := range annotations {
			screen, err := Denormalize(a, img, vp)
			require.NoError(t, err)

			back, err := Normalize(screen, img, vp)
			require.NoError(t, err)

			assert.InDelta(t, a.X, back.X, tolerance)
			assert.InDelta(t, a.Y, back.Y, tolerance)
			if a.Width != nil {
				assert.InDelta(t, *a.Width, *back.Width, tolerance)
				assert.InDelta(t, *a.Height, *back.Height, tolerance)
			}
			for i := range a.Points {
				assert.InDelta(t, a.Points[i], back.Points[i], tolerance)
			}
		}
	}
}

func TestScaleNeverUpscalesPastFit(t *testing.T) {
	img := Size{Width: 1000, Height: 500}

	// Container larger than the image: scale caps at 1 when zoom is 1.
	vp := Viewport{Container: Size{Width: 4000, Height: 4000}, Zoom: 1}
	assert.Equal(t, 1.0, vp.Scale(img))

	// Container smaller than the image: limited by the tighter axis.
	vp = Viewport{Container: Size{Width: 500, Height: 500}, Zoom: 1}
	assert.InDelta(t, 0.5, vp.Scale(img), tolerance)

	// Zoom multiplies the fitted scale.
	vp.Zoom = 2
	assert.InDelta(t, 1.0, vp.Scale(img), tolerance)
}

func TestNormalizeClampsOutOfBounds(t *testing.T) {
	img := Size{Width: 100, Height: 100}
	vp := Viewport{Container: Size{Width: 100, Height: 100}, Zoom: 1}

	// Screen point outside the image lands clamped on the border.
	a := rectAnnotation(-50, 160, 30, 30)
	norm, err := Normalize(a, img, vp)
	require.NoError(t, err)
	assert.Equal(t, 0.0, norm.X)
	assert.Equal(t, 1.0, norm.Y)
}

func TestImageNotReady(t *testing.T) {
	vp := Viewport{Container: Size{Width: 800, Height: 600}, Zoom: 1}
	a := rectAnnotation(10, 10, 20, 20)

	_, err := Normalize(a, Size{}, vp)
	assert.ErrorIs(t, err, ErrImageNotReady)

	_, err = Denormalize(a, Size{Width: 100}, vp)
	assert.ErrorIs(t, err, ErrImageNotReady)

	_, err = NormalizePoint(5, 5, Size{}, vp)
	assert.ErrorIs(t, err, ErrImageNotReady)
}

func TestNormalizePoint(t *testing.T) {
	img := Size{Width: 200, Height: 100}
	vp := Viewport{Container: Size{Width: 200, Height: 100}, Zoom: 1, PanX: 10}

	p, err := NormalizePoint(110, 50, img, vp)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p.X, tolerance)
	assert.InDelta(t, 0.5, p.Y, tolerance)
}
