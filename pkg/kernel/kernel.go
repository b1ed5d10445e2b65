// Package kernel defines the abstract geometry kernel interface.
// Implementations (sdfx, manifold) provide solid modeling, boolean
// operations and point classification behind this interface. The grid
// code only ever sees Solid and Classifier, so backends can be swapped
// without touching it.
package kernel

import (
	"errors"
	"fmt"
)

// ErrGeometryOperationFailed reports a failure inside the geometry kernel:
// an impossible fuse, a rejected primitive, or a classification query that
// could not be answered.
var ErrGeometryOperationFailed = errors.New("geometry operation failed")

// Solid is an opaque handle to a geometry kernel solid.
// Implementations wrap their internal representation.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
}

// Classification is the result of a point-in-solid query.
type Classification int

const (
	Outside Classification = iota
	Inside
	OnBoundary
)

func (c Classification) String() string {
	switch c {
	case Outside:
		return "outside"
	case Inside:
		return "inside"
	case OnBoundary:
		return "on-boundary"
	default:
		return "unknown"
	}
}

// Occupied reports whether the point touches material.
func (c Classification) Occupied() bool {
	return c == Inside || c == OnBoundary
}

// Classifier answers point-in-solid queries.
type Classifier interface {
	Classify(s Solid, p [3]float64) (Classification, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(s Solid, p [3]float64) (Classification, error)

// Classify calls f(s, p).
func (f ClassifierFunc) Classify(s Solid, p [3]float64) (Classification, error) {
	return f(s, p)
}

// Kernel is the abstract geometry kernel interface.
// Implementations (sdfx, manifold) provide solid modeling behind this interface.
type Kernel interface {
	Classifier

	// Primitives
	Box(x, y, z float64) Solid
	Cylinder(height, radius float64, segments int) Solid
	Sphere(radius float64) Solid

	// Boolean operations
	Union(a, b Solid) Solid
	Difference(a, b Solid) Solid
	Intersection(a, b Solid) Solid

	// Transforms
	Translate(s Solid, x, y, z float64) Solid
	Rotate(s Solid, x, y, z float64) Solid // Euler angles in degrees

	// Mesh input and output
	FromMesh(m *Mesh) (Solid, error)
	ToMesh(s Solid) (*Mesh, error)
}

// Fuse unions solids in order into a single solid. A single solid is
// returned unchanged. Panics raised by the backend are reported as
// ErrGeometryOperationFailed.
func Fuse(k Kernel, solids ...Solid) (fused Solid, err error) {
	if len(solids) == 0 {
		return nil, fmt.Errorf("kernel: fuse: no solids: %w", ErrGeometryOperationFailed)
	}
	for i, s := range solids {
		if s == nil {
			return nil, fmt.Errorf("kernel: fuse: solid %d is nil: %w", i, ErrGeometryOperationFailed)
		}
	}
	defer func() {
		if r := recover(); r != nil {
			fused = nil
			err = fmt.Errorf("kernel: fuse: %v: %w", r, ErrGeometryOperationFailed)
		}
	}()

	fused = solids[0]
	for _, s := range solids[1:] {
		fused = k.Union(fused, s)
	}
	return fused, nil
}

// BoxSolid builds a solid occupying exactly the box [min, max].
// Kernel.Box places its minimum corner at the origin.
func BoxSolid(k Kernel, min, max [3]float64) Solid {
	s := k.Box(max[0]-min[0], max[1]-min[1], max[2]-min[2])
	if min == [3]float64{} {
		return s
	}
	return k.Translate(s, min[0], min[1], min[2])
}
