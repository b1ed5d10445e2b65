package display

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/chazu/routegrid/pkg/geom"
	"github.com/chazu/routegrid/pkg/kernel"
)

// MeshData is the JSON mesh format handed to external viewers.
type MeshData struct {
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	Indices  []uint32  `json:"indices"`
	PartName string    `json:"partName"`
	Color    string    `json:"color"`
	Opacity  float64   `json:"opacity"`
}

// boxFaces lists each face of a box as four corner indices (Corners order)
// wound counter-clockwise seen from outside, with its outward normal.
var boxFaces = [6]struct {
	corners [4]int
	normal  [3]float32
}{
	{[4]int{0, 2, 3, 1}, [3]float32{0, 0, -1}},
	{[4]int{4, 5, 7, 6}, [3]float32{0, 0, 1}},
	{[4]int{0, 1, 5, 4}, [3]float32{0, -1, 0}},
	{[4]int{2, 6, 7, 3}, [3]float32{0, 1, 0}},
	{[4]int{0, 4, 6, 2}, [3]float32{-1, 0, 0}},
	{[4]int{1, 3, 7, 5}, [3]float32{1, 0, 0}},
}

// boxMesh builds the 12-triangle mesh of b with flat face normals.
func boxMesh(b geom.Box) *kernel.Mesh {
	corners := b.Corners()
	m := &kernel.Mesh{
		Vertices: make([]float32, 0, 24*3),
		Normals:  make([]float32, 0, 24*3),
		Indices:  make([]uint32, 0, 36),
	}
	for _, f := range boxFaces {
		base := uint32(len(m.Vertices) / 3)
		for _, ci := range f.corners {
			c := corners[ci]
			m.Vertices = append(m.Vertices, float32(c[0]), float32(c[1]), float32(c[2]))
			m.Normals = append(m.Normals, f.normal[:]...)
		}
		m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return m
}

// Meshes tessellates every object in the scene. Boxes are meshed directly;
// solids go through k.ToMesh.
func Meshes(s *Scene, k kernel.Kernel) ([]MeshData, error) {
	out := make([]MeshData, 0, len(s.Objects))
	for i, o := range s.Objects {
		var (
			m   *kernel.Mesh
			err error
		)
		switch {
		case o.Box != nil:
			m = boxMesh(*o.Box)
		case o.Solid != nil:
			if k == nil {
				return nil, fmt.Errorf("display: object %q: solid needs a kernel: %w", o.Name, geom.ErrInvalidArgument)
			}
			m, err = k.ToMesh(o.Solid)
			if err != nil {
				return nil, fmt.Errorf("display: ToMesh failed for %q: %w", o.Name, err)
			}
		default:
			continue
		}

		// Prefer the object's name, fall back to its position.
		name := o.Name
		if name == "" {
			name = fmt.Sprintf("object %d", i)
		}
		out = append(out, MeshData{
			Vertices: m.Vertices,
			Normals:  m.Normals,
			Indices:  m.Indices,
			PartName: name,
			Color:    o.Color,
			Opacity:  o.Opacity(),
		})
	}
	return out, nil
}

// WriteMeshes encodes meshes as a JSON array.
func WriteMeshes(w io.Writer, meshes []MeshData) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(meshes); err != nil {
		return fmt.Errorf("display: encode meshes: %w", err)
	}
	return nil
}
