package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shotmark/internal/geometry"
	"shotmark/internal/models"
)

var (
	img = geometry.Size{Width: 1000, Height: 500}
	vp  = geometry.Viewport{Container: geometry.Size{Width: 500, Height: 500}, Zoom: 1}
	// fit = min(500/1000, 500/500, 1) = 0.5
)

func TestProjectRectangle(t *testing.T) {
	a := models.Annotation{
		ID:          "a1",
		Type:        models.TypeRectangle,
		X:           0.1,
		Y:           0.2,
		Width:       models.Float64Ptr(0.4),
		Height:      models.Float64Ptr(0.2),
		Stroke:      models.StrokeBlue,
		StrokeWidth: 2,
	}

	s, err := Project(a, img, vp, true)
	require.NoError(t, err)

	assert.Equal(t, KindRect, s.Kind)
	assert.InDelta(t, 50.0, s.X, 1e-9)  // 0.1 * 1000 * 0.5
	assert.InDelta(t, 50.0, s.Y, 1e-9)  // 0.2 * 500 * 0.5
	assert.InDelta(t, 200.0, s.Width, 1e-9)
	assert.InDelta(t, 50.0, s.Height, 1e-9)
	assert.Equal(t, "#0091ff", s.StrokeHex)
	assert.True(t, s.Selected)
}

func TestProjectTracksViewport(t *testing.T) {
	a := models.Annotation{
		ID:          "a1",
		Type:        models.TypeCircle,
		X:           0.5,
		Y:           0.5,
		Width:       models.Float64Ptr(0.2),
		Height:      models.Float64Ptr(0.2),
		Stroke:      models.StrokeRed,
		StrokeWidth: 2,
	}

	zoomed := vp
	zoomed.Zoom = 2
	zoomed.PanX = 30
	zoomed.PanY = -10

	s, err := Project(a, img, zoomed, false)
	require.NoError(t, err)

	// Same normalized shape, different screen box: scale doubles and
	// pan shifts, nothing persisted changed.
	assert.Equal(t, KindEllipse, s.Kind)
	assert.InDelta(t, 0.5*1000*1+30, s.X, 1e-9)
	assert.InDelta(t, 0.5*500*1-10, s.Y, 1e-9)
	assert.InDelta(t, 200.0, s.Width, 1e-9)
}

func TestProjectArrowHead(t *testing.T) {
	a := models.Annotation{
		ID:          "a1",
		Type:        models.TypeArrow,
		X:           0.1,
		Y:           0.5,
		Points:      models.PointList{0.1, 0.5, 0.9, 0.5},
		Stroke:      models.StrokeBlack,
		StrokeWidth: 3,
	}

	s, err := Project(a, img, vp, false)
	require.NoError(t, err)

	assert.Equal(t, KindPolyline, s.Kind)
	require.Len(t, s.ArrowHead, 6)
	// Head tip sits on the line's endpoint.
	assert.InDelta(t, s.Points[2], s.ArrowHead[2], 1e-9)
	assert.InDelta(t, s.Points[3], s.ArrowHead[3], 1e-9)
	// Barbs trail behind the tip for a rightward arrow.
	assert.Less(t, s.ArrowHead[0], s.ArrowHead[2])
	assert.Less(t, s.ArrowHead[4], s.ArrowHead[2])
}

func TestProjectFreehandHasNoHead(t *testing.T) {
	a := models.Annotation{
		ID:          "a1",
		Type:        models.TypeFreehand,
		X:           0.1,
		Y:           0.1,
		Points:      models.PointList{0.1, 0.1, 0.2, 0.15, 0.3, 0.3},
		Stroke:      models.StrokeGreen,
		StrokeWidth: 2,
	}

	s, err := Project(a, img, vp, false)
	require.NoError(t, err)
	assert.Equal(t, KindPolyline, s.Kind)
	assert.Nil(t, s.ArrowHead)
	assert.Len(t, s.Points, 6)
}

func TestProjectAllPreservesOrderAndSelection(t *testing.T) {
	annotations := []models.Annotation{
		{ID: "a1", Type: models.TypeRectangle, X: 0.1, Y: 0.1, Width: models.Float64Ptr(0.1), Height: models.Float64Ptr(0.1), Stroke: models.StrokeRed, StrokeWidth: 2},
		{ID: "a2", Type: models.TypeRectangle, X: 0.3, Y: 0.3, Width: models.Float64Ptr(0.1), Height: models.Float64Ptr(0.1), Stroke: models.StrokeRed, StrokeWidth: 2},
	}

	shapes, err := ProjectAll(annotations, "a2", img, vp)
	require.NoError(t, err)
	require.Len(t, shapes, 2)
	assert.Equal(t, "a1", shapes[0].ID)
	assert.False(t, shapes[0].Selected)
	assert.True(t, shapes[1].Selected)
}

func TestProjectBeforeImageLoads(t *testing.T) {
	a := models.Annotation{ID: "a1", Type: models.TypeRectangle, X: 0.1, Y: 0.1,
		Width: models.Float64Ptr(0.1), Height: models.Float64Ptr(0.1),
		Stroke: models.StrokeRed, StrokeWidth: 2}

	_, err := Project(a, geometry.Size{}, vp, false)
	assert.ErrorIs(t, err, geometry.ErrImageNotReady)
}

func TestUnknownStrokeFallsBack(t *testing.T) {
	assert.Equal(t, StrokeHex(models.StrokeRed), StrokeHex(models.StrokeColor("magenta")))
}
