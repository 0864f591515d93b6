// Package geometry converts annotation coordinates between screen pixels
// (dependent on zoom, pan and container size) and the normalized unit
// square of the source image used for persistence. All geometry mutation
// in the engine funnels through this codec and the document store, so
// normalization invariants cannot be bypassed by ad-hoc field writes.
package geometry

import (
	"errors"

	"shotmark/internal/models"
)

// ErrImageNotReady is returned while the source image dimensions are
// still unknown (image loading). Normalization must be deferred rather
// than producing nonsensical values.
var ErrImageNotReady = errors.New("geometry: image size not ready")

// Size is a width/height pair in pixels.
type Size struct {
	Width  float64
	Height float64
}

// Ready reports whether the size carries usable dimensions.
func (s Size) Ready() bool { return s.Width > 0 && s.Height > 0 }

// Viewport is the current view transform over the screenshot.
type Viewport struct {
	Container Size
	Zoom      float64
	PanX      float64
	PanY      float64
}

// Scale is the screen pixels per image pixel for the given image size:
// min(containerW/imageW, containerH/imageH, 1) x zoom. The image is
// never upscaled past 100% at zoom = 1.
func (v Viewport) Scale(img Size) float64 {
	zoom := v.Zoom
	if zoom <= 0 {
		zoom = 1
	}
	fit := 1.0
	if img.Ready() && v.Container.Ready() {
		if s := v.Container.Width / img.Width; s < fit {
			fit = s
		}
		if s := v.Container.Height / img.Height; s < fit {
			fit = s
		}
	}
	return fit * zoom
}

// Normalize converts a screen-space annotation into the unit square of
// the source image. Pan offsets apply additively before scale inversion.
// Results are clamped to [0,1].
func Normalize(a models.Annotation, img Size, vp Viewport) (models.Annotation, error) {
	if !img.Ready() {
		return models.Annotation{}, ErrImageNotReady
	}
	scale := vp.Scale(img)
	out := a.Clone()
	out.X = (a.X - vp.PanX) / scale / img.Width
	out.Y = (a.Y - vp.PanY) / scale / img.Height
	if a.Width != nil {
		out.Width = models.Float64Ptr(*a.Width / scale / img.Width)
	}
	if a.Height != nil {
		out.Height = models.Float64Ptr(*a.Height / scale / img.Height)
	}
	for i := 0; i+1 < len(a.Points); i += 2 {
		out.Points[i] = (a.Points[i] - vp.PanX) / scale / img.Width
		out.Points[i+1] = (a.Points[i+1] - vp.PanY) / scale / img.Height
	}
	out.Clamp()
	return out, nil
}

// Denormalize is the inverse of Normalize: unit-square coordinates back
// to screen pixels under the given viewport. The pair is a bijection up
// to floating-point rounding for coordinates in [0,1].
func Denormalize(a models.Annotation, img Size, vp Viewport) (models.Annotation, error) {
	if !img.Ready() {
		return models.Annotation{}, ErrImageNotReady
	}
	scale := vp.Scale(img)
	out := a.Clone()
	out.X = a.X*img.Width*scale + vp.PanX
	out.Y = a.Y*img.Height*scale + vp.PanY
	if a.Width != nil {
		out.Width = models.Float64Ptr(*a.Width * img.Width * scale)
	}
	if a.Height != nil {
		out.Height = models.Float64Ptr(*a.Height * img.Height * scale)
	}
	for i := 0; i+1 < len(a.Points); i += 2 {
		out.Points[i] = a.Points[i]*img.Width*scale + vp.PanX
		out.Points[i+1] = a.Points[i+1]*img.Height*scale + vp.PanY
	}
	return out, nil
}

// NormalizePoint converts one screen position to unit-square
// coordinates, clamped. Used for live cursor presence.
func NormalizePoint(x, y float64, img Size, vp Viewport) (models.CursorPosition, error) {
	if !img.Ready() {
		return models.CursorPosition{}, ErrImageNotReady
	}
	scale := vp.Scale(img)
	p := models.CursorPosition{
		X: (x - vp.PanX) / scale / img.Width,
		Y: (y - vp.PanY) / scale / img.Height,
	}
	p.X = clamp01(p.X)
	p.Y = clamp01(p.Y)
	return p, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
