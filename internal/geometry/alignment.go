package geometry

import (
	"fmt"
	"math"
)

// CableOrientation records which way a scan head is mounted relative to the
// direction of travel. It decides whether camera X is mirrored when mapping
// into mill space.
type CableOrientation int

const (
	// CableUpstream is the default mounting. Camera X is mirrored.
	CableUpstream CableOrientation = iota
	// CableDownstream mounts the head the other way; camera X maps
	// straight through.
	CableDownstream
)

func (o CableOrientation) String() string {
	if o == CableDownstream {
		return "downstream"
	}
	return "upstream"
}

// Alignment is the affine transform between one camera's coordinate system
// and mill space. Shift values are stored in 1/1000 inch so transformed
// points stay in wire units.
type Alignment struct {
	rollDeg     float64
	shiftX      float64
	shiftY      float64
	orientation CableOrientation

	sinRoll    float64
	cosRoll    float64
	cosYaw     float64
	shiftX1000 float64
	shiftY1000 float64
}

// NewAlignment builds the transform for one camera. Roll is in degrees,
// shifts in inches.
func NewAlignment(rollDegrees, shiftXInches, shiftYInches float64, orientation CableOrientation) *Alignment {
	a := &Alignment{
		rollDeg:     rollDegrees,
		shiftX:      shiftXInches,
		shiftY:      shiftYInches,
		orientation: orientation,
	}
	// Upstream mounting mirrors camera X, expressed as a 180 degree yaw
	// so the math stays a plain rotation.
	yawDeg := 180.0
	if orientation == CableDownstream {
		yawDeg = 0.0
	}
	rollRad := rollDegrees * math.Pi / 180.0
	a.sinRoll = math.Sin(rollRad)
	a.cosRoll = math.Cos(rollRad)
	a.cosYaw = math.Cos(yawDeg * math.Pi / 180.0)
	a.shiftX1000 = shiftXInches * 1000.0
	a.shiftY1000 = shiftYInches * 1000.0
	return a
}

// DefaultAlignment is the identity mounting: no roll, no shift, upstream
// cable.
func DefaultAlignment() *Alignment {
	return NewAlignment(0, 0, 0, CableUpstream)
}

// Roll returns the configured roll in degrees.
func (a *Alignment) Roll() float64 { return a.rollDeg }

// ShiftX returns the configured X shift in inches.
func (a *Alignment) ShiftX() float64 { return a.shiftX }

// ShiftY returns the configured Y shift in inches.
func (a *Alignment) ShiftY() float64 { return a.shiftY }

// Orientation returns the configured cable orientation.
func (a *Alignment) Orientation() CableOrientation { return a.orientation }

// Mirrored reports whether the transform mirrors camera X. Window
// constraints must reverse their winding when it does.
func (a *Alignment) Mirrored() bool { return a.cosYaw < 0 }

// CameraToMill maps a camera-space point, in 1/1000 inch, into mill space.
func (a *Alignment) CameraToMill(x, y float64) Point2D {
	return Point2D{
		X: x*a.cosYaw*a.cosRoll - y*a.sinRoll + a.shiftX1000,
		Y: x*a.cosYaw*a.sinRoll + y*a.cosRoll + a.shiftY1000,
	}
}

// MillToCamera maps a mill-space point, in 1/1000 inch, back into camera
// space. It is the exact inverse of CameraToMill.
func (a *Alignment) MillToCamera(x, y float64) Point2D {
	u := x - a.shiftX1000
	v := y - a.shiftY1000
	return Point2D{
		X: a.cosYaw * (u*a.cosRoll + v*a.sinRoll),
		Y: -u*a.sinRoll + v*a.cosRoll,
	}
}

func (a *Alignment) String() string {
	return fmt.Sprintf("roll=%.3fdeg shift=(%.3f, %.3f)in cable=%s",
		a.rollDeg, a.shiftX, a.shiftY, a.orientation)
}
