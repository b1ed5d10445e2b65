// Package geom defines the value types shared by the bounding-volume and
// voxel-grid code: points and axis-aligned boxes. Both are immutable values.
package geom

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Error kinds shared by the grid construction packages. Callers match them
// with errors.Is; packages wrap them with operation context.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrDegenerateGeometry = errors.New("degenerate geometry")
)

// Point3 is an (x, y, z) coordinate triple.
type Point3 = mgl64.Vec3

// P returns the point (x, y, z).
func P(x, y, z float64) Point3 {
	return Point3{x, y, z}
}

// FromArray converts the [3]float64 corner form used by the kernel.
func FromArray(a [3]float64) Point3 {
	return Point3(a)
}

// Box is an axis-aligned cuboid. Min is component-wise <= Max.
type Box struct {
	Min Point3 `json:"min"`
	Max Point3 `json:"max"`
}

// NewBox returns the box spanned by two opposite corners given in any order.
func NewBox(a, b Point3) Box {
	return Box{
		Min: P(math.Min(a[0], b[0]), math.Min(a[1], b[1]), math.Min(a[2], b[2])),
		Max: P(math.Max(a[0], b[0]), math.Max(a[1], b[1]), math.Max(a[2], b[2])),
	}
}

// BoxFromArrays builds a box from kernel-style corner arrays.
func BoxFromArrays(min, max [3]float64) Box {
	return NewBox(FromArray(min), FromArray(max))
}

// Arrays returns the corners in kernel form.
func (b Box) Arrays() (min, max [3]float64) {
	return [3]float64(b.Min), [3]float64(b.Max)
}

// Center returns the midpoint of the box.
func (b Box) Center() Point3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Size returns the extent along each axis.
func (b Box) Size() Point3 {
	return b.Max.Sub(b.Min)
}

// Diagonal returns the corner-to-corner distance.
func (b Box) Diagonal() float64 {
	return b.Size().Len()
}

// Volume returns the product of the three extents.
func (b Box) Volume() float64 {
	s := b.Size()
	return s[0] * s[1] * s[2]
}

// Edge returns the largest of the three extents.
func (b Box) Edge() float64 {
	s := b.Size()
	return math.Max(s[0], math.Max(s[1], s[2]))
}

// Grow returns the box expanded by margin on all six faces.
func (b Box) Grow(margin float64) Box {
	m := P(margin, margin, margin)
	return Box{Min: b.Min.Sub(m), Max: b.Max.Add(m)}
}

// Contains reports whether p lies inside or on the box.
func (b Box) Contains(p Point3) bool {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] || p[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// ContainsBox reports whether o lies entirely inside b, allowing tol of slack.
func (b Box) ContainsBox(o Box, tol float64) bool {
	for i := 0; i < 3; i++ {
		if o.Min[i] < b.Min[i]-tol || o.Max[i] > b.Max[i]+tol {
			return false
		}
	}
	return true
}

// InteriorOverlaps reports whether the open interiors of b and o intersect.
// Boxes that only share a face, edge or corner do not overlap.
func (b Box) InteriorOverlaps(o Box) bool {
	for i := 0; i < 3; i++ {
		if b.Max[i] <= o.Min[i] || o.Max[i] <= b.Min[i] {
			return false
		}
	}
	return true
}

// IsCube reports whether all three extents agree within tol.
func (b Box) IsCube(tol float64) bool {
	s := b.Size()
	return math.Abs(s[0]-s[1]) <= tol && math.Abs(s[1]-s[2]) <= tol && math.Abs(s[0]-s[2]) <= tol
}

// ApproxEqual compares both corners component-wise within tol.
func (b Box) ApproxEqual(o Box, tol float64) bool {
	return b.Min.ApproxEqualThreshold(o.Min, tol) && b.Max.ApproxEqualThreshold(o.Max, tol)
}

// Corners returns the eight vertices, min corner first, ordered by
// (x, y, z) bit pattern.
func (b Box) Corners() [8]Point3 {
	var out [8]Point3
	for n := 0; n < 8; n++ {
		c := b.Min
		if n&1 != 0 {
			c[0] = b.Max[0]
		}
		if n&2 != 0 {
			c[1] = b.Max[1]
		}
		if n&4 != 0 {
			c[2] = b.Max[2]
		}
		out[n] = c
	}
	return out
}

func (b Box) String() string {
	return fmt.Sprintf("[(%g, %g, %g) - (%g, %g, %g)]",
		b.Min[0], b.Min[1], b.Min[2], b.Max[0], b.Max[1], b.Max[2])
}
