//go:build !manifold

// Package manifold provides a CGo-based geometry kernel binding to the
// Manifold library. When the "manifold" build tag is not set, this stub
// package is compiled instead, returning an error from New().
//
// Build with: go build -tags=manifold
package manifold

import (
	"errors"

	"github.com/chazu/routegrid/pkg/kernel"
)

// ErrUnavailable is returned by New when the binary was built without
// the manifold tag.
var ErrUnavailable = errors.New("manifold kernel not available: build with -tags=manifold")

// New returns ErrUnavailable.
func New(boundaryTol float64) (kernel.Kernel, error) {
	return nil, ErrUnavailable
}
