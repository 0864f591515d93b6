// Package render projects normalized annotations into drawable screen
// primitives. The projection is stateless: every frame recomputes from
// the document snapshot and the current viewport, so there is no
// per-shape screen state to invalidate on zoom or pan.
package render

import (
	"math"

	"shotmark/internal/geometry"
	"shotmark/internal/models"
)

// Kind is the primitive a shape renders as.
type Kind string

const (
	KindRect     Kind = "rect"
	KindEllipse  Kind = "ellipse"
	KindPolyline Kind = "polyline"
)

// arrowHeadLength is the arrowhead side length in screen pixels. Fixed
// in screen space so heads stay legible at any zoom.
const arrowHeadLength = 12.0

// Shape is one drawable primitive in container pixel space.
type Shape struct {
	ID   string
	Kind Kind

	// Rect/ellipse box. For ellipse, X/Y is the center.
	X      float64
	Y      float64
	Width  float64
	Height float64

	// Polyline vertices as [x0,y0,x1,y1,...].
	Points []float64
	// Two extra segments forming the arrowhead at the final vertex,
	// present only for arrows.
	ArrowHead []float64

	StrokeHex   string
	StrokeWidth float64
	Selected    bool
}

// strokeHex maps the fixed palette to render colors.
var strokeHex = map[models.StrokeColor]string{
	models.StrokeRed:    "#e5484d",
	models.StrokeGreen:  "#46a758",
	models.StrokeBlue:   "#0091ff",
	models.StrokeYellow: "#f5d90a",
	models.StrokeBlack:  "#1c2024",
	models.StrokeWhite:  "#ffffff",
}

// StrokeHex returns the render color for a palette identifier.
func StrokeHex(c models.StrokeColor) string {
	if hex, ok := strokeHex[c]; ok {
		return hex
	}
	return strokeHex[models.StrokeRed]
}

// Project converts one annotation to its screen primitive under the
// given image size and viewport. Returns ErrImageNotReady until the
// image dimensions are known.
func Project(a models.Annotation, img geometry.Size, vp geometry.Viewport, selected bool) (Shape, error) {
	screen, err := geometry.Denormalize(a, img, vp)
	if err != nil {
		return Shape{}, err
	}

	s := Shape{
		ID:          a.ID,
		X:           screen.X,
		Y:           screen.Y,
		StrokeHex:   StrokeHex(a.Stroke),
		StrokeWidth: a.StrokeWidth,
		Selected:    selected,
	}

	switch a.Type {
	case models.TypeRectangle:
		s.Kind = KindRect
		s.Width = deref(screen.Width)
		s.Height = deref(screen.Height)
	case models.TypeCircle:
		s.Kind = KindEllipse
		s.Width = deref(screen.Width)
		s.Height = deref(screen.Height)
	case models.TypeArrow:
		s.Kind = KindPolyline
		s.Points = screen.Points
		s.ArrowHead = arrowHead(screen.Points)
	case models.TypeFreehand:
		s.Kind = KindPolyline
		s.Points = screen.Points
	}
	return s, nil
}

// ProjectAll converts a whole snapshot, skipping nothing: the caller
// gets exactly one shape per annotation, in document order.
func ProjectAll(annotations []models.Annotation, selectedID string, img geometry.Size, vp geometry.Viewport) ([]Shape, error) {
	shapes := make([]Shape, 0, len(annotations))
	for _, a := range annotations {
		s, err := Project(a, img, vp, a.ID == selectedID)
		if err != nil {
			return nil, err
		}
		shapes = append(shapes, s)
	}
	return shapes, nil
}

// arrowHead builds the two head segments for the line ending at the
// last point pair: [hx1,hy1,tipX,tipY,hx2,hy2].
func arrowHead(points []float64) []float64 {
	if len(points) < 4 {
		return nil
	}
	x1, y1 := points[len(points)-4], points[len(points)-3]
	x2, y2 := points[len(points)-2], points[len(points)-1]

	angle := math.Atan2(y2-y1, x2-x1)
	spread := math.Pi / 7

	return []float64{
		x2 - arrowHeadLength*math.Cos(angle-spread),
		y2 - arrowHeadLength*math.Sin(angle-spread),
		x2, y2,
		x2 - arrowHeadLength*math.Cos(angle+spread),
		y2 - arrowHeadLength*math.Sin(angle+spread),
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
