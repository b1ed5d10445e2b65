package models

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chazu/routegrid/pkg/kernel"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/qmuntal/gltf"
)

var identityMatrix = [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

// GLTFLoader loads GLTF/GLB files, flattening the default scene's node
// hierarchy into one mesh in world coordinates.
type GLTFLoader struct{}

// NewGLTFLoader creates a new GLTF loader.
func NewGLTFLoader() *GLTFLoader {
	return &GLTFLoader{}
}

// LoadFile opens a .gltf or .glb file. External buffers are resolved
// relative to the file by gltf.Open.
func (l *GLTFLoader) LoadFile(path string) (*kernel.Mesh, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}
	return l.LoadDocument(doc, "")
}

// LoadDocument extracts triangle geometry from a decoded document.
func (l *GLTFLoader) LoadDocument(doc *gltf.Document, name string) (*kernel.Mesh, error) {
	b := newMeshBuilder(name)

	var roots []int
	if len(doc.Scenes) > 0 {
		sceneIdx := 0
		if doc.Scene != nil {
			sceneIdx = int(*doc.Scene)
		}
		if sceneIdx >= len(doc.Scenes) {
			return nil, fmt.Errorf("scene %d out of range", sceneIdx)
		}
		for _, n := range doc.Scenes[sceneIdx].Nodes {
			roots = append(roots, int(n))
		}
	} else {
		roots = rootNodes(doc)
	}

	for _, n := range roots {
		if err := l.processNode(doc, n, mgl64.Ident4(), b, 0); err != nil {
			return nil, err
		}
	}
	return b.mesh, nil
}

// rootNodes returns nodes that are nobody's child.
func rootNodes(doc *gltf.Document) []int {
	child := make(map[int]bool)
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			child[int(c)] = true
		}
	}
	var roots []int
	for i := range doc.Nodes {
		if !child[i] {
			roots = append(roots, i)
		}
	}
	return roots
}

// nodeTransform builds a node's local matrix. An explicit matrix wins over
// TRS, matching the glTF rule that the two are mutually exclusive.
func nodeTransform(node *gltf.Node) mgl64.Mat4 {
	if node.Matrix != identityMatrix && node.Matrix != [16]float64{} {
		return mgl64.Mat4(node.Matrix)
	}
	m := mgl64.Translate3D(node.Translation[0], node.Translation[1], node.Translation[2])
	if r := node.Rotation; r != [4]float64{0, 0, 0, 1} && r != [4]float64{} {
		q := mgl64.Quat{W: r[3], V: mgl64.Vec3{r[0], r[1], r[2]}}
		m = m.Mul4(q.Normalize().Mat4())
	}
	if s := node.Scale; s != [3]float64{1, 1, 1} && s != [3]float64{} {
		m = m.Mul4(mgl64.Scale3D(s[0], s[1], s[2]))
	}
	return m
}

// maxNodeDepth stops cyclic node graphs in malformed files.
const maxNodeDepth = 64

func (l *GLTFLoader) processNode(doc *gltf.Document, nodeIdx int, parent mgl64.Mat4, b *meshBuilder, depth int) error {
	if depth > maxNodeDepth {
		return fmt.Errorf("node hierarchy deeper than %d", maxNodeDepth)
	}
	if nodeIdx < 0 || nodeIdx >= len(doc.Nodes) {
		return fmt.Errorf("node %d out of range", nodeIdx)
	}
	node := doc.Nodes[nodeIdx]
	world := parent.Mul4(nodeTransform(node))

	if node.Mesh != nil {
		meshIdx := int(*node.Mesh)
		if meshIdx >= len(doc.Meshes) {
			return fmt.Errorf("node %d: mesh %d out of range", nodeIdx, meshIdx)
		}
		if err := l.processMesh(doc, doc.Meshes[meshIdx], world, b); err != nil {
			return fmt.Errorf("mesh %d: %w", meshIdx, err)
		}
	}

	for _, c := range node.Children {
		if err := l.processNode(doc, int(c), world, b, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (l *GLTFLoader) processMesh(doc *gltf.Document, m *gltf.Mesh, world mgl64.Mat4, b *meshBuilder) error {
	for _, prim := range m.Primitives {
		if prim.Mode != gltf.PrimitiveTriangles {
			continue
		}
		posIdx, ok := prim.Attributes[gltf.POSITION]
		if !ok {
			continue
		}
		positions, err := readVec3Accessor(doc, int(posIdx))
		if err != nil {
			return fmt.Errorf("read positions: %w", err)
		}

		verts := make([]uint32, len(positions))
		for i, p := range positions {
			w := mgl64.TransformCoordinate(p, world)
			verts[i] = b.vertex(w[0], w[1], w[2])
		}

		var indices []int
		if prim.Indices != nil {
			indices, err = readIndices(doc, int(*prim.Indices))
			if err != nil {
				return fmt.Errorf("read indices: %w", err)
			}
		} else {
			indices = make([]int, len(positions))
			for i := range indices {
				indices[i] = i
			}
		}
		for i := 0; i+2 < len(indices); i += 3 {
			a, c, d := indices[i], indices[i+1], indices[i+2]
			if a >= len(verts) || c >= len(verts) || d >= len(verts) {
				return fmt.Errorf("index out of range in triangle %d", i/3)
			}
			b.triangle(verts[a], verts[c], verts[d])
		}
	}
	return nil
}

// accessorBytes returns the backing bytes for an accessor and its stride.
func accessorBytes(doc *gltf.Document, accessorIdx int, elemSize int) ([]byte, int, int, error) {
	if accessorIdx < 0 || accessorIdx >= len(doc.Accessors) {
		return nil, 0, 0, fmt.Errorf("accessor %d out of range", accessorIdx)
	}
	accessor := doc.Accessors[accessorIdx]
	if accessor.BufferView == nil {
		return nil, 0, 0, fmt.Errorf("accessor has no buffer view")
	}
	bufferView := doc.BufferViews[*accessor.BufferView]
	buffer := doc.Buffers[bufferView.Buffer]
	if buffer.Data == nil {
		return nil, 0, 0, fmt.Errorf("buffer has no data")
	}

	start := bufferView.ByteOffset + accessor.ByteOffset
	stride := bufferView.ByteStride
	if stride == 0 {
		stride = elemSize
	}
	count := accessor.Count
	if count > 0 && start+(count-1)*stride+elemSize > len(buffer.Data) {
		return nil, 0, 0, fmt.Errorf("accessor %d overruns its buffer", accessorIdx)
	}
	return buffer.Data[start:], stride, count, nil
}

// readVec3Accessor reads float VEC3 data from a GLTF accessor.
func readVec3Accessor(doc *gltf.Document, accessorIdx int) ([]mgl64.Vec3, error) {
	if accessorIdx >= 0 && accessorIdx < len(doc.Accessors) {
		a := doc.Accessors[accessorIdx]
		if a.Type != gltf.AccessorVec3 || a.ComponentType != gltf.ComponentFloat {
			return nil, fmt.Errorf("expected float VEC3, got %v %v", a.ComponentType, a.Type)
		}
	}
	data, stride, count, err := accessorBytes(doc, accessorIdx, 12)
	if err != nil {
		return nil, err
	}
	out := make([]mgl64.Vec3, count)
	for i := range count {
		off := i * stride
		for j := range 3 {
			out[i][j] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[off+j*4:])))
		}
	}
	return out, nil
}

// readIndices reads scalar index data from a GLTF accessor.
func readIndices(doc *gltf.Document, accessorIdx int) ([]int, error) {
	if accessorIdx < 0 || accessorIdx >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range", accessorIdx)
	}
	var size int
	switch doc.Accessors[accessorIdx].ComponentType {
	case gltf.ComponentUbyte:
		size = 1
	case gltf.ComponentUshort:
		size = 2
	case gltf.ComponentUint:
		size = 4
	default:
		return nil, fmt.Errorf("unexpected index type: %v", doc.Accessors[accessorIdx].ComponentType)
	}
	data, stride, count, err := accessorBytes(doc, accessorIdx, size)
	if err != nil {
		return nil, err
	}
	out := make([]int, count)
	for i := range count {
		off := i * stride
		switch size {
		case 1:
			out[i] = int(data[off])
		case 2:
			out[i] = int(binary.LittleEndian.Uint16(data[off:]))
		case 4:
			out[i] = int(binary.LittleEndian.Uint32(data[off:]))
		}
	}
	return out, nil
}
