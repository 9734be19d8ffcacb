package core

import "math"

// Position is a point in the emulated coordinate plane. X and Y may be absent
// for an endpoint that has not been placed yet; an absent Z is treated as
// zero in distance computation.
type Position struct {
	X, Y, Z float64

	// Placed reports whether X and Y carry real coordinates. An unplaced
	// endpoint is excluded from link computation.
	Placed bool

	// HasZ reports whether Z carries a real altitude.
	HasZ bool
}

// PlanarPosition returns a placed position with no altitude.
func PlanarPosition(x, y float64) Position {
	return Position{X: x, Y: y, Placed: true}
}

// SpatialPosition returns a placed position including altitude.
func SpatialPosition(x, y, z float64) Position {
	return Position{X: x, Y: y, Z: z, Placed: true, HasZ: true}
}

// Distance returns the straight-line distance between two positions. The
// vertical term contributes only when both sides carry an altitude.
func Distance(a, b Position) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	var dz float64
	if a.HasZ && b.HasZ {
		dz = a.Z - b.Z
	}
	return math.Hypot(math.Hypot(dx, dy), dz)
}
