package wire

import (
	"fmt"
	"math"
)

// Vector3 is a position in meters. On the wire it is three little-endian
// float32 values.
type Vector3 struct {
	X float32
	Y float32
	Z float32
}

// Distance returns the Euclidean distance to other, in meters.
func (v Vector3) Distance(other Vector3) float64 {
	dx := float64(v.X - other.X)
	dy := float64(v.Y - other.Y)
	dz := float64(v.Z - other.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func (v Vector3) String() string {
	return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
}
