// Package bounds computes the cubic enclosure a voxel grid is built over.
// The raw bounding box of a solid is grown by a margin proportional to its
// diagonal, then squared off so that all three axes share one edge length.
package bounds

import (
	"fmt"
	"math"

	"github.com/chazu/routegrid/pkg/geom"
	"github.com/chazu/routegrid/pkg/kernel"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

// DefaultExtensionRatio is the margin used by the CLI when none is given.
const DefaultExtensionRatio = 0.3

// Extents at or below these tolerances count as zero.
const (
	degenerateRelTol = 1e-9
	degenerateAbsTol = 1e-12
)

// CubeTolerance is the relative slack allowed when checking that a
// Volume is a cube.
const CubeTolerance = 1e-9

// Volume is an extended, cubified enclosure of a solid.
type Volume struct {
	// Raw is the solid's own bounding box.
	Raw geom.Box `json:"raw"`
	// Extended is Raw grown by Margin on every face.
	Extended geom.Box `json:"extended"`
	// Cube is Extended squared off with its maximum corner held fixed.
	Cube geom.Box `json:"cube"`

	Margin         float64 `json:"margin"`
	ExtensionRatio float64 `json:"extension_ratio"`
}

// Compute returns the bounding volume of s with the given extension ratio.
func Compute(s kernel.Solid, ratio float64) (*Volume, error) {
	if s == nil {
		return nil, fmt.Errorf("bounds: nil solid: %w", geom.ErrInvalidArgument)
	}
	return FromBox(geom.BoxFromArrays(s.BoundingBox()), ratio)
}

// FromBox builds a bounding volume from an already known raw box.
func FromBox(raw geom.Box, ratio float64) (*Volume, error) {
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) || ratio < 0 {
		return nil, fmt.Errorf("bounds: extension ratio %g: %w", ratio, geom.ErrInvalidArgument)
	}
	if err := checkExtents(raw); err != nil {
		return nil, err
	}

	margin := raw.Max.Sub(raw.Min).Len() * ratio
	ext := raw.Grow(margin)

	size := ext.Size()
	edge := floats.Max(size[:])
	cube := geom.Box{Max: ext.Max}
	for axis := 0; axis < 3; axis++ {
		cube.Min[axis] = ext.Max[axis] - edge
	}

	return &Volume{
		Raw:            raw,
		Extended:       ext,
		Cube:           cube,
		Margin:         margin,
		ExtensionRatio: ratio,
	}, nil
}

// checkExtents rejects boxes with fewer than two non-zero extents: a point
// or a line segment has no solid content to route around.
func checkExtents(raw geom.Box) error {
	for axis := 0; axis < 3; axis++ {
		if math.IsNaN(raw.Min[axis]) || math.IsNaN(raw.Max[axis]) ||
			math.IsInf(raw.Min[axis], 0) || math.IsInf(raw.Max[axis], 0) {
			return fmt.Errorf("bounds: raw box %v is not finite: %w", raw, geom.ErrDegenerateGeometry)
		}
	}
	size := raw.Size()
	tol := math.Max(degenerateAbsTol, degenerateRelTol*math.Max(raw.Min.Len(), raw.Max.Len()))
	positive := 0
	for _, e := range size {
		if !scalar.EqualWithinAbs(e, 0, tol) {
			positive++
		}
	}
	if positive < 2 {
		return fmt.Errorf("bounds: raw box %v has %d non-zero extents: %w", raw, positive, geom.ErrDegenerateGeometry)
	}
	return nil
}

// Box returns the cube.
func (v *Volume) Box() geom.Box { return v.Cube }

// Min returns the cube's minimum corner.
func (v *Volume) Min() geom.Point3 { return v.Cube.Min }

// Max returns the cube's maximum corner.
func (v *Volume) Max() geom.Point3 { return v.Cube.Max }

// Edge returns the cube's edge length.
func (v *Volume) Edge() float64 { return v.Cube.Edge() }

// IsCube reports whether the three extents agree within CubeTolerance
// relative to the edge length.
func (v *Volume) IsCube() bool {
	return v.Cube.IsCube(CubeTolerance * math.Max(1, v.Edge()))
}

func (v *Volume) String() string {
	return fmt.Sprintf("cube %v edge %g (raw %v, margin %g)", v.Cube, v.Edge(), v.Raw, v.Margin)
}
