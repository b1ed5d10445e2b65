package models

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		want Format
		ok   bool
	}{
		{"a.stl", FormatSTL, true},
		{"A.STL", FormatSTL, true},
		{"part.obj", FormatOBJ, true},
		{"scene.glb", FormatGLTF, true},
		{"scene.gltf", FormatGLTF, true},
		{"bracket.STEP", FormatSTEP, true},
		{"bracket.stp", FormatSTEP, true},
		{"notes.txt", "", false},
	}
	for _, tt := range tests {
		got, ok := DetectFormat(tt.path)
		if got != tt.want || ok != tt.ok {
			t.Errorf("DetectFormat(%q) = %q, %v; want %q, %v", tt.path, got, ok, tt.want, tt.ok)
		}
	}
	if Loadable("x.step") {
		t.Error("Loadable(x.step) = true, want false")
	}
	if !Loadable("x.obj") {
		t.Error("Loadable(x.obj) = false, want true")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	stlPath := filepath.Join(dir, "Square.stl")
	if err := os.WriteFile(stlPath, []byte(asciiSquare), 0o644); err != nil {
		t.Fatal(err)
	}

	mesh, err := Load(stlPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if mesh.PartName != "Square" {
		t.Errorf("PartName = %q, want Square", mesh.PartName)
	}
	if mesh.TriangleCount() != 2 {
		t.Errorf("TriangleCount = %d, want 2", mesh.TriangleCount())
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	step := filepath.Join(dir, "part.step")
	empty := filepath.Join(dir, "empty.obj")
	for _, p := range []string{step, empty} {
		if err := os.WriteFile(p, []byte("# nothing\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name string
		path string
		want error
	}{
		{"unknown extension", filepath.Join(dir, "x.dxf"), ErrUnsupportedFormat},
		{"step", step, ErrUnsupportedFormat},
		{"no triangles", empty, ErrNoGeometry},
		{"missing file", filepath.Join(dir, "missing.stl"), os.ErrNotExist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			if !errors.Is(err, tt.want) {
				t.Errorf("Load() error = %v, want %v", err, tt.want)
			}
		})
	}
}
