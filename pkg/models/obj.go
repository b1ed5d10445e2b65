package models

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chazu/routegrid/pkg/kernel"
)

// OBJLoader loads Wavefront OBJ files. Only positions and faces are read;
// texture coordinates, normals and materials do not affect occupancy.
type OBJLoader struct{}

// NewOBJLoader creates a new OBJ loader.
func NewOBJLoader() *OBJLoader {
	return &OBJLoader{}
}

// LoadFile loads an OBJ file from disk.
func (l *OBJLoader) LoadFile(path string) (*kernel.Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open OBJ file: %w", err)
	}
	defer f.Close()

	return l.Load(f, "")
}

// Load parses an OBJ from a reader.
func (l *OBJLoader) Load(r io.Reader, name string) (*kernel.Mesh, error) {
	b := newMeshBuilder(name)

	// OBJ indices are 1-based over every "v" line seen so far.
	var positions []uint32

	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		fields := strings.Fields(line)

		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: invalid vertex (need x y z)", lineNum)
			}
			xyz, err := parseFloats(fields[1:4])
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid vertex: %w", lineNum, err)
			}
			positions = append(positions, b.vertex(xyz[0], xyz[1], xyz[2]))

		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: face needs at least 3 vertices", lineNum)
			}
			face := make([]uint32, 0, len(fields)-1)
			for _, field := range fields[1:] {
				idx, err := parseFaceVertex(field)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNum, err)
				}
				idx = resolveIndex(idx, len(positions))
				if idx < 0 || idx >= len(positions) {
					return nil, fmt.Errorf("line %d: position index %s out of range", lineNum, field)
				}
				face = append(face, positions[idx])
			}
			// Fan triangulation; faces are assumed convex.
			for i := 1; i < len(face)-1; i++ {
				b.triangle(face[0], face[i], face[i+1])
			}

		case "o", "g":
			if len(fields) > 1 && b.mesh.PartName == "" {
				b.mesh.PartName = fields[1]
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading OBJ: %w", err)
	}
	return b.mesh, nil
}

// parseFaceVertex returns the position index of a face vertex written as
// v, v/vt, v/vt/vn or v//vn.
func parseFaceVertex(s string) (int, error) {
	pos, _, _ := strings.Cut(s, "/")
	idx, err := strconv.Atoi(pos)
	if err != nil || idx == 0 {
		return 0, fmt.Errorf("invalid vertex index: %s", pos)
	}
	return idx, nil
}

// resolveIndex converts an OBJ 1-based or negative index to 0-based.
func resolveIndex(idx, count int) int {
	if idx < 0 {
		return count + idx
	}
	return idx - 1
}
