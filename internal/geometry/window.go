package geometry

import (
	"fmt"

	"github.com/scanlink-data/scanlink/internal/wire"
)

// Constraint is one half-plane bound of a scan window. A point satisfies
// the constraint when it lies on or left of the directed segment P0 to P1.
type Constraint struct {
	P0 Point2D
	P1 Point2D
}

// Satisfies reports whether the point is on the allowed side of the
// constraint, boundary included. The operand order matches the evaluation
// the scan head runs on received constraints, so windings accepted here are
// accepted on the device.
func (c Constraint) Satisfies(p Point2D) bool {
	cross := (p.X-c.P0.X)*(c.P1.Y-c.P0.Y) - (p.Y-c.P0.Y)*(c.P1.X-c.P0.X)
	return cross >= 0
}

// ScanWindow is a rectangular region of mill space, in 1/1000 inch, outside
// which a camera discards points. Narrower windows raise the attainable
// scan rate.
type ScanWindow struct {
	top    float64
	bottom float64
	left   float64
	right  float64
}

// NewScanWindow builds a window from mill-space bounds in inches. Top must
// exceed bottom and right must exceed left.
func NewScanWindow(topInches, bottomInches, leftInches, rightInches float64) (*ScanWindow, error) {
	if topInches <= bottomInches {
		return nil, fmt.Errorf("geometry: window top %f must exceed bottom %f", topInches, bottomInches)
	}
	if rightInches <= leftInches {
		return nil, fmt.Errorf("geometry: window right %f must exceed left %f", rightInches, leftInches)
	}
	return &ScanWindow{
		top:    topInches * 1000.0,
		bottom: bottomInches * 1000.0,
		left:   leftInches * 1000.0,
		right:  rightInches * 1000.0,
	}, nil
}

// Top returns the top bound in 1/1000 inch.
func (w *ScanWindow) Top() float64 { return w.top }

// Bottom returns the bottom bound in 1/1000 inch.
func (w *ScanWindow) Bottom() float64 { return w.bottom }

// Left returns the left bound in 1/1000 inch.
func (w *ScanWindow) Left() float64 { return w.left }

// Right returns the right bound in 1/1000 inch.
func (w *ScanWindow) Right() float64 { return w.right }

// Constraints returns the four half-plane bounds of the rectangle, wound so
// interior points satisfy every constraint.
func (w *ScanWindow) Constraints() []Constraint {
	lt := Point2D{X: w.left, Y: w.top}
	rt := Point2D{X: w.right, Y: w.top}
	lb := Point2D{X: w.left, Y: w.bottom}
	rb := Point2D{X: w.right, Y: w.bottom}
	return []Constraint{
		{P0: lt, P1: rt},
		{P0: rb, P1: lb},
		{P0: rt, P1: rb},
		{P0: lb, P1: lt},
	}
}

// Contains reports whether a mill-space point, in 1/1000 inch, lies inside
// the window, boundary included.
func (w *ScanWindow) Contains(p Point2D) bool {
	for _, c := range w.Constraints() {
		if !c.Satisfies(p) {
			return false
		}
	}
	return true
}

// CameraConstraints maps the window bounds into one camera's coordinate
// system for transmission. A mirroring alignment reverses each segment's
// orientation, so its endpoints are swapped to keep the allowed side facing
// the window interior.
func (w *ScanWindow) CameraConstraints(a *Alignment) []wire.WindowConstraintPoints {
	cs := w.Constraints()
	out := make([]wire.WindowConstraintPoints, 0, len(cs))
	for _, c := range cs {
		p0 := a.MillToCamera(c.P0.X, c.P0.Y)
		p1 := a.MillToCamera(c.P1.X, c.P1.Y)
		if a.Mirrored() {
			p0, p1 = p1, p0
		}
		out = append(out, wire.WindowConstraintPoints{
			X0: int32(p0.X), Y0: int32(p0.Y),
			X1: int32(p1.X), Y1: int32(p1.Y),
		})
	}
	return out
}
