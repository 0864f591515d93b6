package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

// AnnotationType identifies the geometric shape of a markup item.
// Fixed at creation, immutable thereafter.
type AnnotationType string

const (
	TypeRectangle AnnotationType = "rectangle"
	TypeCircle    AnnotationType = "circle"
	TypeArrow     AnnotationType = "arrow"
	TypeFreehand  AnnotationType = "freehand"
)

// StrokeColor is one of the fixed drawing palette identifiers.
type StrokeColor string

const (
	StrokeRed    StrokeColor = "red"
	StrokeGreen  StrokeColor = "green"
	StrokeBlue   StrokeColor = "blue"
	StrokeYellow StrokeColor = "yellow"
	StrokeBlack  StrokeColor = "black"
	StrokeWhite  StrokeColor = "white"
)

// Palette returns the fixed set of stroke colors offered by the drawing tools.
func Palette() []StrokeColor {
	return []StrokeColor{StrokeRed, StrokeGreen, StrokeBlue, StrokeYellow, StrokeBlack, StrokeWhite}
}

// PointList is a flat array of normalized [x0,y0,x1,y1,...] coordinates,
// stored as jsonb so arrows and freehand strokes keep arbitrary length.
type PointList []float64

// Value implements driver.Valuer for GORM.
func (p PointList) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner for GORM.
func (p *PointList) Scan(src any) error {
	if src == nil {
		*p = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("cannot scan %T into PointList", src)
	}
}

// Annotation is one markup item on one screenshot. All geometry is
// normalized to the unit square of the source image, so it stays valid
// across zoom, pan and container resize.
//
// The id lives in one of two spaces: ephemeral (client-generated UUID,
// assigned the instant a draw gesture commits) or durable (server-issued
// KSUID). An id transitions ephemeral -> durable exactly once.
type Annotation struct {
	ID           string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	ScreenshotID string         `json:"screenshot_id" gorm:"type:char(27);not null;index"`
	Type         AnnotationType `json:"type" gorm:"type:varchar(20);not null"`

	// Anchor point: top-left for rectangle, center for circle; for
	// arrow/freehand it is derived from the first point pair.
	X float64 `json:"x" gorm:"not null"`
	Y float64 `json:"y" gorm:"not null"`

	// Present for rectangle/circle, nil for arrow/freehand.
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`

	// Required for arrow (exactly 2 points) and freehand (>= 2 points),
	// nil for rectangle/circle.
	Points PointList `json:"points,omitempty" gorm:"type:jsonb"`

	Stroke      StrokeColor `json:"stroke" gorm:"type:varchar(20);not null"`
	StrokeWidth float64     `json:"stroke_width" gorm:"not null"`

	Links []AnnotationLink `json:"links,omitempty" gorm:"foreignKey:AnnotationID;references:ID"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// BeforeCreate promotes an ephemeral or empty id to a durable KSUID.
// KSUIDs are time-ordered, so sorting by id sorts by creation time.
func (a *Annotation) BeforeCreate(tx *gorm.DB) error {
	if !IsDurableID(a.ID) {
		a.ID = ksuid.New().String()
	}
	return nil
}

// TableName override
func (Annotation) TableName() string {
	return "annotations"
}

// NewEphemeralID returns a client-side temporary id. UUIDs are 36 chars
// with dashes and never parse as KSUIDs, so the two id spaces cannot
// collide during the promotion window.
func NewEphemeralID() string {
	return uuid.New().String()
}

// IsDurableID reports whether id has the server-issued KSUID shape.
func IsDurableID(id string) bool {
	if len(id) != 27 {
		return false
	}
	_, err := ksuid.Parse(id)
	return err == nil
}

// Clone returns a deep copy, detached from the receiver's slices.
func (a Annotation) Clone() Annotation {
	c := a
	if a.Width != nil {
		w := *a.Width
		c.Width = &w
	}
	if a.Height != nil {
		h := *a.Height
		c.Height = &h
	}
	if a.Points != nil {
		c.Points = append(PointList(nil), a.Points...)
	}
	if a.Links != nil {
		c.Links = append([]AnnotationLink(nil), a.Links...)
	}
	return c
}

// Clamp forces every normalized coordinate and size into [0,1].
// Widths, heights and point coordinates are clamped, never negative.
func (a *Annotation) Clamp() {
	a.X = clamp01(a.X)
	a.Y = clamp01(a.Y)
	if a.Width != nil {
		*a.Width = clamp01(*a.Width)
	}
	if a.Height != nil {
		*a.Height = clamp01(*a.Height)
	}
	for i := range a.Points {
		a.Points[i] = clamp01(a.Points[i])
	}
}

// Validate checks the per-type shape invariants.
func (a *Annotation) Validate() error {
	switch a.Type {
	case TypeRectangle, TypeCircle:
		if a.Width == nil || a.Height == nil {
			return fmt.Errorf("%s annotation %s: width and height are required", a.Type, a.ID)
		}
		if a.Points != nil {
			return fmt.Errorf("%s annotation %s: points must be absent", a.Type, a.ID)
		}
	case TypeArrow:
		if len(a.Points) != 4 {
			return fmt.Errorf("arrow annotation %s: expected exactly 2 points, got %d values", a.ID, len(a.Points))
		}
	case TypeFreehand:
		if len(a.Points) < 4 || len(a.Points)%2 != 0 {
			return fmt.Errorf("freehand annotation %s: point array must be even and >= 4, got %d values", a.ID, len(a.Points))
		}
	default:
		return fmt.Errorf("annotation %s: unknown type %q", a.ID, a.Type)
	}
	if a.StrokeWidth <= 0 {
		return fmt.Errorf("annotation %s: stroke width must be positive", a.ID)
	}
	for _, v := range append([]float64{a.X, a.Y}, a.Points...) {
		if v < 0 || v > 1 {
			return fmt.Errorf("annotation %s: coordinate %v outside [0,1]", a.ID, v)
		}
	}
	return nil
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

// Float64Ptr is a small helper for building width/height fields.
func Float64Ptr(v float64) *float64 { return &v }
