package assembly

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/routegrid/pkg/kernel"
	"github.com/chazu/routegrid/pkg/kernel/sdfx"
	"github.com/chazu/routegrid/pkg/models"
)

// cubeSTL returns an ASCII STL of the cube [0, s]³.
func cubeSTL(name string, s float64) string {
	v := func(n int) [3]float64 {
		var p [3]float64
		for axis := 0; axis < 3; axis++ {
			if n&(1<<axis) != 0 {
				p[axis] = s
			}
		}
		return p
	}
	faces := [][4]int{
		{0, 2, 3, 1}, {4, 5, 7, 6},
		{0, 1, 5, 4}, {2, 6, 7, 3},
		{0, 4, 6, 2}, {1, 3, 7, 5},
	}
	var b strings.Builder
	fmt.Fprintf(&b, "solid %s\n", name)
	for _, f := range faces {
		for _, tri := range [][3]int{{f[0], f[1], f[2]}, {f[0], f[2], f[3]}} {
			b.WriteString("  facet normal 0 0 0\n    outer loop\n")
			for _, n := range tri {
				p := v(n)
				fmt.Fprintf(&b, "      vertex %g %g %g\n", p[0], p[1], p[2])
			}
			b.WriteString("    endloop\n  endfacet\n")
		}
	}
	fmt.Fprintf(&b, "endsolid %s\n", name)
	return b.String()
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s): %v", name, err)
	}
	return path
}

func assertBounds(t *testing.T, s kernel.Solid, wantMin, wantMax [3]float64) {
	t.Helper()
	min, max := s.BoundingBox()
	for i := 0; i < 3; i++ {
		if math.Abs(min[i]-wantMin[i]) > 1e-6 || math.Abs(max[i]-wantMax[i]) > 1e-6 {
			t.Errorf("bounds = %v..%v, want %v..%v", min, max, wantMin, wantMax)
			return
		}
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.stl", "a.OBJ", "c.step", "d.STP", "layout.lisp", "notes.txt", "e.glb"} {
		writeFile(t, dir, name, "")
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.stl"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	want := []string{"a.OBJ", "b.stl", "c.step", "d.STP", "e.glb", "layout.lisp"}
	if len(got) != len(want) {
		t.Fatalf("Discover() = %v, want %v", got, want)
	}
	for i := range want {
		if filepath.Base(got[i]) != want[i] {
			t.Errorf("Discover()[%d] = %s, want %s", i, filepath.Base(got[i]), want[i])
		}
	}
}

func TestDiscoverMissingDir(t *testing.T) {
	if _, err := Discover(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("Discover() on a missing directory succeeded")
	}
}

func TestLoadModelsWithPlacements(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "first.stl", cubeSTL("first", 10))
	second := writeFile(t, dir, "second.stl", cubeSTL("second", 10))

	// The two-part layout: the second part sits at (0, 100, 100).
	a := New(sdfx.New(), WithPlacements(map[string]Placement{
		"second": {Y: 100, Z: 100},
	}))
	if err := a.LoadAll([]string{first, second}); err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}

	parts := a.Parts()
	if len(parts) != 2 || parts[0].Name != "first" || parts[1].Name != "second" {
		t.Fatalf("Parts() = %+v", parts)
	}
	if parts[0].Triangles != 12 {
		t.Errorf("Triangles = %d, want 12", parts[0].Triangles)
	}
	assertBounds(t, parts[0].Solid, [3]float64{0, 0, 0}, [3]float64{10, 10, 10})
	assertBounds(t, parts[1].Solid, [3]float64{0, 100, 100}, [3]float64{10, 110, 110})

	fused, err := a.Fused()
	if err != nil {
		t.Fatalf("Fused() error = %v", err)
	}
	assertBounds(t, fused, [3]float64{0, 0, 0}, [3]float64{10, 110, 110})
}

func TestLoadScene(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "block.stl", cubeSTL("block", 4))
	scene := writeFile(t, dir, "layout.lisp", `
(part "frame" (box :size (vec3 20 20 2)))
(part "block" (translate (mesh "block.stl") (vec3 8 8 2)))
`)

	a := New(sdfx.New(), WithPlacements(map[string]Placement{"frame": {X: -10}}))
	parts, err := a.Load(scene)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("Load() = %d parts, want 2", len(parts))
	}
	if parts[0].Triangles != 0 {
		t.Errorf("scene part Triangles = %d, want 0", parts[0].Triangles)
	}
	frame, ok := a.Lookup("frame")
	if !ok {
		t.Fatal("Lookup(frame) failed")
	}
	assertBounds(t, frame.Solid, [3]float64{-10, 0, 0}, [3]float64{10, 20, 2})
	block, _ := a.Lookup("block")
	assertBounds(t, block.Solid, [3]float64{8, 8, 2}, [3]float64{12, 12, 6})
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	step := writeFile(t, dir, "housing.step", "ISO-10303-21;")
	bad := writeFile(t, dir, "broken.lisp", `(part "x" (box :size`)
	empty := writeFile(t, dir, "empty.lisp", `(def x 1)`)
	cube := writeFile(t, dir, "cube.stl", cubeSTL("cube", 1))

	a := New(sdfx.New())
	if _, err := a.Load(step); !errors.Is(err, models.ErrUnsupportedFormat) {
		t.Errorf("Load(step) error = %v, want ErrUnsupportedFormat", err)
	}
	if _, err := a.Load(bad); err == nil || !strings.Contains(err.Error(), "scene errors") {
		t.Errorf("Load(broken scene) error = %v", err)
	}
	if _, err := a.Load(empty); !errors.Is(err, models.ErrNoGeometry) {
		t.Errorf("Load(empty scene) error = %v, want ErrNoGeometry", err)
	}

	if _, err := a.Load(cube); err != nil {
		t.Fatalf("Load(cube) error = %v", err)
	}
	if _, err := a.Load(cube); !errors.Is(err, ErrDuplicatePart) {
		t.Errorf("second Load(cube) error = %v, want ErrDuplicatePart", err)
	}
	if n := len(a.Parts()); n != 1 {
		t.Errorf("Parts() after failures = %d, want 1", n)
	}
}

func TestFusedEmpty(t *testing.T) {
	_, err := New(sdfx.New()).Fused()
	if !errors.Is(err, kernel.ErrGeometryOperationFailed) {
		t.Fatalf("Fused() error = %v, want ErrGeometryOperationFailed", err)
	}
}

func TestMeshLoaderOption(t *testing.T) {
	calls := 0
	loader := func(path string) (*kernel.Mesh, error) {
		calls++
		m := &kernel.Mesh{}
		for _, p := range [][3]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}} {
			m.AddVertex(p[0], p[1], p[2])
		}
		m.AddTriangle(0, 2, 1)
		m.AddTriangle(0, 1, 3)
		m.AddTriangle(0, 3, 2)
		m.AddTriangle(1, 2, 3)
		return m, nil
	}
	a := New(sdfx.New(), WithMeshLoader(loader))
	parts, err := a.Load("virtual/tetra.stl")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if calls != 1 || parts[0].Name != "tetra" || parts[0].Triangles != 4 {
		t.Errorf("calls = %d, parts = %+v", calls, parts)
	}
}

func TestCandidate(t *testing.T) {
	for path, want := range map[string]bool{
		"a.stl": true, "b.STEP": true, "c.lisp": true, "d.gltf": true,
		"e.txt": false, "f": false,
	} {
		if got := Candidate(path); got != want {
			t.Errorf("Candidate(%q) = %v, want %v", path, got, want)
		}
	}
}
