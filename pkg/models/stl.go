package models

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/chazu/routegrid/pkg/kernel"
)

// STLLoader loads STL (stereolithography) files in both ASCII and binary formats.
type STLLoader struct{}

// NewSTLLoader creates a new STL loader.
func NewSTLLoader() *STLLoader {
	return &STLLoader{}
}

// LoadFile loads an STL file from disk.
func (l *STLLoader) LoadFile(path string) (*kernel.Mesh, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read STL file: %w", err)
	}
	return l.LoadBytes(data, "")
}

// LoadBytes parses STL from a byte slice.
func (l *STLLoader) LoadBytes(data []byte, name string) (*kernel.Mesh, error) {
	if isBinarySTL(data) {
		return l.loadBinary(data, name)
	}
	return l.loadASCII(data, name)
}

// Load parses STL from a reader.
// Note: This reads the entire content into memory to detect format.
func (l *STLLoader) Load(r io.Reader, name string) (*kernel.Mesh, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read STL data: %w", err)
	}
	return l.LoadBytes(data, name)
}

// isBinarySTL detects if the data is binary STL format.
// Binary STL starts with 80-byte header, then 4-byte triangle count.
// ASCII STL starts with "solid", though some binary exporters put that
// word in the header too, so the size must agree with the count.
func isBinarySTL(data []byte) bool {
	if len(data) < 84 {
		return false
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if bytes.HasPrefix(trimmed, []byte("solid")) {
		triCount := binary.LittleEndian.Uint32(data[80:84])
		return uint64(len(data)) == 84+uint64(triCount)*50
	}
	return true
}

// loadBinary parses binary STL format. Facet normals are ignored; the
// winding is taken as given.
func (l *STLLoader) loadBinary(data []byte, name string) (*kernel.Mesh, error) {
	if len(data) < 84 {
		return nil, fmt.Errorf("binary STL too short: %d bytes", len(data))
	}

	triCount := binary.LittleEndian.Uint32(data[80:84])
	expectedSize := 84 + uint64(triCount)*50
	if uint64(len(data)) < expectedSize {
		return nil, fmt.Errorf("binary STL truncated: expected %d bytes, got %d", expectedSize, len(data))
	}

	b := newMeshBuilder(name)
	offset := 84
	for i := uint32(0); i < triCount; i++ {
		offset += 12 // normal

		var face [3]uint32
		for v := 0; v < 3; v++ {
			face[v] = b.vertex(
				float64(readFloat32LE(data[offset:])),
				float64(readFloat32LE(data[offset+4:])),
				float64(readFloat32LE(data[offset+8:])),
			)
			offset += 12
		}
		offset += 2 // attribute byte count

		b.triangle(face[0], face[1], face[2])
	}
	return b.mesh, nil
}

// readFloat32LE reads a little-endian float32 from a byte slice.
func readFloat32LE(data []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(data))
}

// loadASCII parses ASCII STL format.
func (l *STLLoader) loadASCII(data []byte, name string) (*kernel.Mesh, error) {
	b := newMeshBuilder(name)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNum := 0

	var faceVerts []uint32
	inFacet := false
	inLoop := false

	for scanner.Scan() {
		lineNum++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch strings.ToLower(fields[0]) {
		case "solid":
			if len(fields) > 1 && b.mesh.PartName == "" {
				b.mesh.PartName = fields[1]
			}

		case "facet":
			inFacet = true
			faceVerts = nil

		case "outer":
			if len(fields) >= 2 && strings.ToLower(fields[1]) == "loop" {
				inLoop = true
			}

		case "vertex":
			if !inFacet || !inLoop {
				return nil, fmt.Errorf("line %d: vertex outside facet/loop", lineNum)
			}
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: vertex needs x y z", lineNum)
			}
			xyz, err := parseFloats(fields[1:4])
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid vertex: %w", lineNum, err)
			}
			faceVerts = append(faceVerts, b.vertex(xyz[0], xyz[1], xyz[2]))

		case "endloop":
			inLoop = false

		case "endfacet":
			if len(faceVerts) < 3 {
				return nil, fmt.Errorf("line %d: facet has %d vertices, need 3", lineNum, len(faceVerts))
			}
			b.triangle(faceVerts[0], faceVerts[1], faceVerts[2])
			inFacet = false
			faceVerts = nil
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading ASCII STL: %w", err)
	}
	return b.mesh, nil
}

// parseFloats parses each field as a float64.
func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
