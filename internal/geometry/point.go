// Package geometry holds the spatial types for scan data: points in camera
// and mill coordinate systems, the affine transform between them, and the
// scan window that bounds which points a camera reports.
//
// Two coordinate systems are in play. Camera space is what the head's
// triangulation produces, in 1/1000 inch units. Mill space is the
// user-facing frame after applying a head's roll, shift, and cable
// orientation. Windows are specified in mill space and translated to camera
// space before being sent to the head.
package geometry

// Point2D is a position in 1/1000 inch units. Which coordinate system it is
// in depends on context.
type Point2D struct {
	X float64
	Y float64
}
