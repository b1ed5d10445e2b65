// Package models loads model files from disk into kernel meshes. STL, OBJ
// and glTF/GLB are read natively; STEP files are recognised so callers can
// report them clearly, but they cannot be tessellated here.
package models

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/chazu/routegrid/pkg/kernel"
)

// ErrUnsupportedFormat is returned for files whose extension has no loader.
var ErrUnsupportedFormat = errors.New("unsupported model format")

// ErrNoGeometry is returned when a file parses but holds no triangles.
var ErrNoGeometry = errors.New("model has no triangles")

// Format identifies a model file type.
type Format string

const (
	FormatSTL  Format = "stl"
	FormatOBJ  Format = "obj"
	FormatGLTF Format = "gltf"
	FormatSTEP Format = "step"
)

var extensions = map[string]Format{
	".stl":  FormatSTL,
	".obj":  FormatOBJ,
	".gltf": FormatGLTF,
	".glb":  FormatGLTF,
	".stp":  FormatSTEP,
	".step": FormatSTEP,
}

// DetectFormat maps a path to its Format by extension, case-insensitively.
func DetectFormat(path string) (Format, bool) {
	f, ok := extensions[strings.ToLower(filepath.Ext(path))]
	return f, ok
}

// Loadable reports whether path has a format Load can read.
func Loadable(path string) bool {
	f, ok := DetectFormat(path)
	return ok && f != FormatSTEP
}

// Load reads a model file into a mesh named after the file.
func Load(path string) (*kernel.Mesh, error) {
	f, ok := DetectFormat(path)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}

	var (
		m   *kernel.Mesh
		err error
	)
	switch f {
	case FormatSTL:
		m, err = NewSTLLoader().LoadFile(path)
	case FormatOBJ:
		m, err = NewOBJLoader().LoadFile(path)
	case FormatGLTF:
		m, err = NewGLTFLoader().LoadFile(path)
	case FormatSTEP:
		return nil, fmt.Errorf("%s: STEP needs a B-rep kernel; export the part as STL, OBJ or glTF: %w", path, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if m.TriangleCount() == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoGeometry)
	}
	m.PartName = PartName(path)
	return m, nil
}

// PartName is the file name of path without its extension.
func PartName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// meshBuilder accumulates triangles into a kernel.Mesh, merging vertices
// with identical float32 coordinates.
type meshBuilder struct {
	mesh  *kernel.Mesh
	index map[[3]float32]uint32
}

func newMeshBuilder(name string) *meshBuilder {
	return &meshBuilder{
		mesh:  &kernel.Mesh{PartName: name},
		index: make(map[[3]float32]uint32),
	}
}

func (b *meshBuilder) vertex(x, y, z float64) uint32 {
	key := [3]float32{float32(x), float32(y), float32(z)}
	if idx, ok := b.index[key]; ok {
		return idx
	}
	idx := b.mesh.AddVertex(x, y, z)
	b.index[key] = idx
	return idx
}

// triangle adds a face, dropping it if two corners merged.
func (b *meshBuilder) triangle(a, c, d uint32) {
	if a == c || c == d || a == d {
		return
	}
	b.mesh.AddTriangle(a, c, d)
}
