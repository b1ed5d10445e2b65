package kernel

import "math"

// Mesh is a triangle mesh used both as kernel input (imported model files)
// and output (tessellated solids for display).
// All arrays are flat: vertices has 3 floats per vertex (x,y,z),
// normals has 3 floats per vertex, indices has 3 uint32s per triangle.
type Mesh struct {
	Vertices []float32 `json:"vertices"` // [x0,y0,z0, x1,y1,z1, ...]
	Normals  []float32 `json:"normals"`  // [nx0,ny0,nz0, ...]
	Indices  []uint32  `json:"indices"`  // [i0,i1,i2, ...] triangles
	PartName string    `json:"partName"` // which model part this came from
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// AddVertex appends a vertex and returns its index.
func (m *Mesh) AddVertex(x, y, z float64) uint32 {
	idx := uint32(m.VertexCount())
	m.Vertices = append(m.Vertices, float32(x), float32(y), float32(z))
	return idx
}

// AddTriangle appends a triangle by vertex index.
func (m *Mesh) AddTriangle(a, b, c uint32) {
	m.Indices = append(m.Indices, a, b, c)
}

// Vertex returns vertex i as float64 coordinates.
func (m *Mesh) Vertex(i int) [3]float64 {
	return [3]float64{
		float64(m.Vertices[i*3]),
		float64(m.Vertices[i*3+1]),
		float64(m.Vertices[i*3+2]),
	}
}

// Triangle returns the three corners of triangle t.
func (m *Mesh) Triangle(t int) [3][3]float64 {
	return [3][3]float64{
		m.Vertex(int(m.Indices[t*3])),
		m.Vertex(int(m.Indices[t*3+1])),
		m.Vertex(int(m.Indices[t*3+2])),
	}
}

// Bounds returns the axis-aligned bounds of all vertices. An empty mesh
// returns zero corners.
func (m *Mesh) Bounds() (min, max [3]float64) {
	if m.IsEmpty() {
		return min, max
	}
	for a := 0; a < 3; a++ {
		min[a] = math.Inf(1)
		max[a] = math.Inf(-1)
	}
	for i := 0; i < m.VertexCount(); i++ {
		v := m.Vertex(i)
		for a := 0; a < 3; a++ {
			min[a] = math.Min(min[a], v[a])
			max[a] = math.Max(max[a], v[a])
		}
	}
	return min, max
}

// Translate shifts every vertex by (x, y, z) in place.
func (m *Mesh) Translate(x, y, z float64) {
	for i := 0; i < len(m.Vertices); i += 3 {
		m.Vertices[i] += float32(x)
		m.Vertices[i+1] += float32(y)
		m.Vertices[i+2] += float32(z)
	}
}
