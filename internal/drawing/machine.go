// Package drawing implements the per-tool interaction flow that turns
// pointer input into annotation geometry. The machine operates entirely
// in normalized coordinates; callers run screen input through the
// geometry codec first.
package drawing

import (
	"math"

	"shotmark/internal/document"
	"shotmark/internal/models"
)

// Tool is the active drawing tool.
type Tool string

const (
	ToolSelect    Tool = "select"
	ToolRectangle Tool = "rectangle"
	ToolCircle    Tool = "circle"
	ToolArrow     Tool = "arrow"
	ToolFreehand  Tool = "freehand"
)

// State of the draw interaction.
type State int

const (
	StateIdle State = iota
	StateDrawing
)

// MinShapeSize is the commit threshold in normalized units: box shapes
// below it, and arrows/freehand strokes whose endpoints coincide, are
// discarded silently with no history entry and no network call.
const MinShapeSize = 0.01

// Point is a normalized position.
type Point struct {
	X float64
	Y float64
}

// Machine drives one session's draw and transform gestures against its
// document store. Single-goroutine by contract, like the store.
type Machine struct {
	store *document.Store

	tool        Tool
	stroke      models.StrokeColor
	strokeWidth float64

	state       State
	provisional *models.Annotation
	origin      Point

	// transform gesture (tool == select). The history gesture opens
	// lazily on the first actual move so a plain click-to-select never
	// leaves a no-op undo entry.
	transformID     string
	transformActive bool
	transformMoved  bool

	// onCommit receives each committed annotation; the session wires
	// this to the reconciler and runs the save off this goroutine.
	onCommit func(models.Annotation)
}

// NewMachine creates an idle machine with the select tool active.
func NewMachine(store *document.Store, onCommit func(models.Annotation)) *Machine {
	return &Machine{
		store:       store,
		tool:        ToolSelect,
		stroke:      models.StrokeRed,
		strokeWidth: 2,
		onCommit:    onCommit,
	}
}

// SetTool switches tools. Switching mid-draw cancels the draw.
func (m *Machine) SetTool(t Tool) {
	if m.state == StateDrawing {
		m.Cancel()
	}
	m.tool = t
}

// Tool returns the active tool.
func (m *Machine) Tool() Tool { return m.tool }

// SetStroke sets the color and width applied to new shapes.
func (m *Machine) SetStroke(color models.StrokeColor, width float64) {
	m.stroke = color
	if width > 0 {
		m.strokeWidth = width
	}
}

// State returns the current interaction state.
func (m *Machine) State() State { return m.state }

// Provisional exposes the shape being drawn for live preview rendering.
// Nil outside a draw.
func (m *Machine) Provisional() *models.Annotation {
	if m.provisional == nil {
		return nil
	}
	c := m.provisional.Clone()
	return &c
}

// PointerDown starts a draw with the active shape tool, or a transform
// gesture on an existing annotation with the select tool.
func (m *Machine) PointerDown(p Point, hitID string) {
	if m.tool == ToolSelect {
		m.beginTransform(p, hitID)
		return
	}
	if m.state != StateIdle {
		return
	}
	a := models.Annotation{
		ID:          models.NewEphemeralID(),
		Type:        toolType(m.tool),
		X:           p.X,
		Y:           p.Y,
		Stroke:      m.stroke,
		StrokeWidth: m.strokeWidth,
	}
	switch m.tool {
	case ToolRectangle, ToolCircle:
		a.Width = models.Float64Ptr(0)
		a.Height = models.Float64Ptr(0)
	case ToolArrow, ToolFreehand:
		// Seed with a duplicated point pair so the length invariants
		// (arrow == 4, freehand even and >= 4) hold from the start.
		a.Points = models.PointList{p.X, p.Y, p.X, p.Y}
	}
	m.provisional = &a
	m.origin = p
	m.state = StateDrawing
}

// PointerMove updates the provisional geometry per the tool's rule.
func (m *Machine) PointerMove(p Point) {
	if m.state == StateDrawing {
		m.updateProvisional(p)
		return
	}
	if m.transformActive {
		m.transformMove(p)
	}
}

// PointerUp ends the gesture. A draw commits iff the shape clears the
// minimum-size gate; below threshold it cancels with no trace.
func (m *Machine) PointerUp() (committed bool) {
	if m.transformActive {
		m.endTransform()
		return false
	}
	if m.state != StateDrawing {
		return false
	}
	a := *m.provisional
	m.provisional = nil
	m.state = StateIdle

	if !m.meetsThreshold(a) {
		return false
	}
	a.Clamp()
	m.store.Add(a)
	m.tool = ToolSelect
	if m.onCommit != nil {
		m.onCommit(a.Clone())
	}
	return true
}

// Cancel aborts a drawing-in-progress unconditionally (Escape). A
// cancelled draw never reaches the store or the network layer.
func (m *Machine) Cancel() {
	m.provisional = nil
	m.state = StateIdle
	if m.transformActive {
		m.endTransform()
	}
}

func (m *Machine) updateProvisional(p Point) {
	a := m.provisional
	switch a.Type {
	case models.TypeRectangle:
		// Sign of the drag delta flips the anchor so width/height stay
		// non-negative.
		a.X = math.Min(m.origin.X, p.X)
		a.Y = math.Min(m.origin.Y, p.Y)
		a.Width = models.Float64Ptr(math.Abs(p.X - m.origin.X))
		a.Height = models.Float64Ptr(math.Abs(p.Y - m.origin.Y))
	case models.TypeCircle:
		// Anchor is the center of the dragged box.
		a.X = (m.origin.X + p.X) / 2
		a.Y = (m.origin.Y + p.Y) / 2
		a.Width = models.Float64Ptr(math.Abs(p.X - m.origin.X))
		a.Height = models.Float64Ptr(math.Abs(p.Y - m.origin.Y))
	case models.TypeArrow:
		a.Points[2] = p.X
		a.Points[3] = p.Y
	case models.TypeFreehand:
		a.Points = append(a.Points, p.X, p.Y)
	}
}

func (m *Machine) meetsThreshold(a models.Annotation) bool {
	switch a.Type {
	case models.TypeRectangle, models.TypeCircle:
		return *a.Width > MinShapeSize || *a.Height > MinShapeSize
	case models.TypeArrow:
		return a.Points[0] != a.Points[2] || a.Points[1] != a.Points[3]
	case models.TypeFreehand:
		first := [2]float64{a.Points[0], a.Points[1]}
		for i := 2; i+1 < len(a.Points); i += 2 {
			if a.Points[i] != first[0] || a.Points[i+1] != first[1] {
				return true
			}
		}
		return false
	}
	return false
}

// --- selection / transform gesture -----------------------------------

func (m *Machine) beginTransform(p Point, hitID string) {
	if hitID == "" {
		m.store.Select("")
		return
	}
	if _, ok := m.store.Get(hitID); !ok {
		return
	}
	m.store.Select(hitID)
	m.transformID = hitID
	m.transformActive = true
	m.transformMoved = false
	m.origin = p
}

// startGestureOnce opens the coalesced history scope the first time the
// pointer actually moves the shape.
func (m *Machine) startGestureOnce() {
	if !m.transformMoved {
		m.store.BeginGesture()
		m.transformMoved = true
	}
}

// transformMove drags the selected annotation live. The whole gesture
// commits one history entry, not one per pointer-move frame.
func (m *Machine) transformMove(p Point) {
	a, ok := m.store.Get(m.transformID)
	if !ok {
		return
	}
	dx := p.X - m.origin.X
	dy := p.Y - m.origin.Y
	m.origin = p
	m.startGestureOnce()

	patch := document.Patch{}
	x := a.X + dx
	y := a.Y + dy
	patch.X = &x
	patch.Y = &y
	if len(a.Points) > 0 {
		pts := append(models.PointList(nil), a.Points...)
		for i := 0; i+1 < len(pts); i += 2 {
			pts[i] += dx
			pts[i+1] += dy
		}
		patch.Points = pts
	}
	m.store.Update(m.transformID, patch)
}

// Resize adjusts the selected box shape during a transform gesture.
func (m *Machine) Resize(width, height float64) {
	if !m.transformActive {
		return
	}
	a, ok := m.store.Get(m.transformID)
	if !ok || (a.Type != models.TypeRectangle && a.Type != models.TypeCircle) {
		return
	}
	w := math.Max(width, 0)
	h := math.Max(height, 0)
	m.startGestureOnce()
	m.store.Update(m.transformID, document.Patch{Width: &w, Height: &h})
}

func (m *Machine) endTransform() {
	if m.transformActive && m.transformMoved {
		m.store.EndGesture()
	}
	m.transformActive = false
	m.transformMoved = false
	m.transformID = ""
}

func toolType(t Tool) models.AnnotationType {
	switch t {
	case ToolRectangle:
		return models.TypeRectangle
	case ToolCircle:
		return models.TypeCircle
	case ToolArrow:
		return models.TypeArrow
	case ToolFreehand:
		return models.TypeFreehand
	}
	return models.TypeRectangle
}
