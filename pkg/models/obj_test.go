package models

import (
	"strings"
	"testing"
)

func TestOBJLoaderQuadFan(t *testing.T) {
	src := `# unit square as one quad
o plate
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vn 0 0 1
f 1//1 2//1 3//1 4//1
`
	mesh, err := NewOBJLoader().Load(strings.NewReader(src), "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if mesh.PartName != "plate" {
		t.Errorf("PartName = %q, want plate", mesh.PartName)
	}
	if mesh.TriangleCount() != 2 {
		t.Fatalf("TriangleCount = %d, want 2", mesh.TriangleCount())
	}
	want := []uint32{0, 1, 2, 0, 2, 3}
	for i, idx := range want {
		if mesh.Indices[i] != idx {
			t.Errorf("Indices = %v, want %v", mesh.Indices, want)
			break
		}
	}
}

func TestOBJLoaderNegativeIndices(t *testing.T) {
	src := `v 0 0 0
v 2 0 0
v 0 2 0
f -3/1 -2/2 -1/3
`
	mesh, err := NewOBJLoader().Load(strings.NewReader(src), "neg")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if mesh.TriangleCount() != 1 {
		t.Fatalf("TriangleCount = %d, want 1", mesh.TriangleCount())
	}
	tri := mesh.Triangle(0)
	if tri[1] != [3]float64{2, 0, 0} {
		t.Errorf("second corner = %v, want [2 0 0]", tri[1])
	}
}

func TestOBJLoaderErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"short vertex", "v 1 2\n"},
		{"bad float", "v 1 2 x\n"},
		{"short face", "v 0 0 0\nv 1 0 0\nf 1 2\n"},
		{"index out of range", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 9\n"},
		{"zero index", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 0 1 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewOBJLoader().Load(strings.NewReader(tt.src), ""); err == nil {
				t.Error("Load() error = nil, want error")
			}
		})
	}
}

func TestResolveIndex(t *testing.T) {
	tests := []struct {
		idx, count, want int
	}{
		{1, 3, 0},
		{3, 3, 2},
		{-1, 3, 2},
		{-3, 3, 0},
	}
	for _, tt := range tests {
		if got := resolveIndex(tt.idx, tt.count); got != tt.want {
			t.Errorf("resolveIndex(%d, %d) = %d, want %d", tt.idx, tt.count, got, tt.want)
		}
	}
}
