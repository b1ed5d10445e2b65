package voxel

import (
	"errors"
	"math"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/routegrid/pkg/bounds"
	"github.com/chazu/routegrid/pkg/geom"
)

// cubeVolume returns a zero-margin volume over the cube [lo, lo+edge]³.
func cubeVolume(t *testing.T, lo, edge float64) *bounds.Volume {
	t.Helper()
	v, err := bounds.FromBox(geom.NewBox(geom.P(lo, lo, lo), geom.P(lo+edge, lo+edge, lo+edge)), 0)
	if err != nil {
		t.Fatalf("FromBox() error = %v", err)
	}
	return v
}

func mustBuild(t *testing.T, v *bounds.Volume, dim int, opts ...Option) *Grid {
	t.Helper()
	g, err := Build(v, dim, opts...)
	if err != nil {
		t.Fatalf("Build(dim=%d) error = %v", dim, err)
	}
	return g
}

func TestBuildExample(t *testing.T) {
	g := mustBuild(t, cubeVolume(t, 0, 12), 3)
	if g.Pitch() != 4 {
		t.Errorf("Pitch() = %f, want 4", g.Pitch())
	}
	c, err := g.At(1, 1, 1)
	if err != nil {
		t.Fatalf("At(1,1,1) error = %v", err)
	}
	want := geom.NewBox(geom.P(4, 4, 4), geom.P(8, 8, 8))
	if c.Box != want {
		t.Errorf("At(1,1,1).Box = %v, want %v", c.Box, want)
	}
	if c.Center() != geom.P(6, 6, 6) {
		t.Errorf("Center() = %v, want (6, 6, 6)", c.Center())
	}
}

func TestBuildTiling(t *testing.T) {
	tests := []struct {
		name string
		lo   float64
		edge float64
		dim  int
	}{
		{"single cell", 0, 1, 1},
		{"small", 0, 12, 3},
		{"odd pitch", -5.196, 20.392, 7},
		{"offset", 1000, 3, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := cubeVolume(t, tt.lo, tt.edge)
			g := mustBuild(t, v, tt.dim, WithWorkers(3))

			if g.Len() != tt.dim*tt.dim*tt.dim {
				t.Fatalf("Len() = %d, want %d", g.Len(), tt.dim*tt.dim*tt.dim)
			}

			cells := slices.Collect(g.All())
			if len(cells) != tt.dim*tt.dim*tt.dim {
				t.Fatalf("All() yielded %d cells, want %d", len(cells), tt.dim*tt.dim*tt.dim)
			}

			sum := 0.0
			for _, c := range cells {
				sum += c.Box.Volume()
				if !v.Cube.ContainsBox(c.Box, 0) {
					t.Errorf("cell %v outside cube %v", c, v.Cube)
				}
			}
			if math.Abs(sum-v.Cube.Volume()) > 1e-9*v.Cube.Volume() {
				t.Errorf("sum of cell volumes = %g, want %g", sum, v.Cube.Volume())
			}

			for a := range cells {
				for b := a + 1; b < len(cells); b++ {
					if cells[a].Box.InteriorOverlaps(cells[b].Box) {
						t.Fatalf("cells %v and %v overlap", cells[a], cells[b])
					}
				}
			}

			last := cells[len(cells)-1]
			if last.Box.Max != v.Cube.Max {
				t.Errorf("last cell max = %v, want cube max %v", last.Box.Max, v.Cube.Max)
			}
		})
	}
}

func TestSharedFaces(t *testing.T) {
	g := mustBuild(t, cubeVolume(t, -5.196, 20.392), 7)
	for i := 0; i+1 < g.Dim(); i++ {
		a, _ := g.At(i, 2, 3)
		b, _ := g.At(i+1, 2, 3)
		if a.Box.Max[0] != b.Box.Min[0] {
			t.Errorf("x face between %d and %d: %v != %v", i, i+1, a.Box.Max[0], b.Box.Min[0])
		}
	}
}

func TestAtCoordinates(t *testing.T) {
	g := mustBuild(t, cubeVolume(t, 0, 8), 4)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			for k := 0; k < 4; k++ {
				c, err := g.At(i, j, k)
				if err != nil {
					t.Fatalf("At(%d,%d,%d) error = %v", i, j, k, err)
				}
				if c.I != i || c.J != j || c.K != k {
					t.Errorf("At(%d,%d,%d) returned cell (%d,%d,%d)", i, j, k, c.I, c.J, c.K)
				}
			}
		}
	}
}

func TestAtOutOfRange(t *testing.T) {
	g := mustBuild(t, cubeVolume(t, 0, 8), 4)
	for _, idx := range [][3]int{
		{-1, 0, 0}, {0, -1, 0}, {0, 0, -1},
		{4, 0, 0}, {0, 4, 0}, {0, 0, 4},
		{100, 100, 100},
	} {
		_, err := g.At(idx[0], idx[1], idx[2])
		if !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("At(%v) error = %v, want ErrIndexOutOfRange", idx, err)
		}
		if err := g.SetObstacle(idx[0], idx[1], idx[2], true); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("SetObstacle(%v) error = %v, want ErrIndexOutOfRange", idx, err)
		}
	}
}

type lattice struct{ I, J, K int }

func latticeOrder(g *Grid) []lattice {
	var out []lattice
	for c := range g.All() {
		out = append(out, lattice{c.I, c.J, c.K})
	}
	return out
}

func TestAllDeterministic(t *testing.T) {
	g := mustBuild(t, cubeVolume(t, 0, 6), 3, WithWorkers(4))

	first := latticeOrder(g)
	second := latticeOrder(g)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second traversal differs (-first +second):\n%s", diff)
	}

	var want []lattice
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				want = append(want, lattice{i, j, k})
			}
		}
	}
	if diff := cmp.Diff(want, first); diff != "" {
		t.Errorf("traversal order mismatch (-want +got):\n%s", diff)
	}

	// Early exit from a range loop must not break later traversals.
	for range g.All() {
		break
	}
	if diff := cmp.Diff(first, latticeOrder(g)); diff != "" {
		t.Errorf("traversal after early exit differs:\n%s", diff)
	}
}

func TestBuildWorkersAgree(t *testing.T) {
	v := cubeVolume(t, -1, 5)
	serial := slices.Collect(mustBuild(t, v, 6, WithWorkers(1)).All())
	parallel := slices.Collect(mustBuild(t, v, 6, WithWorkers(8)).All())
	if diff := cmp.Diff(serial, parallel); diff != "" {
		t.Errorf("parallel build differs (-serial +parallel):\n%s", diff)
	}
}

func TestBuildErrors(t *testing.T) {
	v := cubeVolume(t, 0, 1)
	flat := &bounds.Volume{Cube: geom.NewBox(geom.P(0, 0, 0), geom.P(12, 6, 12))}
	tests := []struct {
		name    string
		v       *bounds.Volume
		dim     int
		want    error
		wantMsg string
	}{
		{"zero dim", v, 0, geom.ErrInvalidArgument, "positive"},
		{"negative dim", v, -3, geom.ErrInvalidArgument, "positive"},
		{"too large", v, MaxDim + 1, geom.ErrInvalidArgument, "sparse layout"},
		{"nil volume", nil, 4, geom.ErrInvalidArgument, "nil volume"},
		{"empty cube", &bounds.Volume{}, 4, geom.ErrDegenerateGeometry, "cube edge"},
		{"not a cube", flat, 3, geom.ErrInvalidArgument, "not a cube"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Build(tt.v, tt.dim)
			if !errors.Is(err, tt.want) {
				t.Errorf("Build() error = %v, want %v", err, tt.want)
			}
			if err != nil && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Build() error = %q, want mention of %q", err, tt.wantMsg)
			}
			if g != nil {
				t.Errorf("Build() returned a grid on error")
			}
		})
	}
}

func TestInitialObstacle(t *testing.T) {
	v := cubeVolume(t, 0, 4)

	free := mustBuild(t, v, 2)
	if free.SuspiciousAllObstructed() {
		t.Error("default grid reports all obstructed")
	}
	if s := free.Stats(); s.Obstacles != 0 || s.Free != 8 || s.Classified != 0 {
		t.Errorf("default Stats() = %+v", s)
	}

	blocked := mustBuild(t, v, 2, WithInitialObstacle(true))
	if !blocked.SuspiciousAllObstructed() {
		t.Error("all-obstacle grid not reported as suspicious")
	}
	if n := len(slices.Collect(blocked.Obstacles())); n != 8 {
		t.Errorf("Obstacles() yielded %d cells, want 8", n)
	}
}

func TestSetObstacleAndStats(t *testing.T) {
	g := mustBuild(t, cubeVolume(t, 0, 4), 2)
	if err := g.SetObstacle(1, 0, 1, true); err != nil {
		t.Fatalf("SetObstacle() error = %v", err)
	}
	if err := g.SetObstacle(0, 0, 0, false); err != nil {
		t.Fatalf("SetObstacle() error = %v", err)
	}

	got := g.Stats()
	want := Stats{Total: 8, Obstacles: 1, Free: 7, Classified: 2, Fill: 0.125}
	if got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}

	var obstacles []lattice
	for c := range g.Obstacles() {
		obstacles = append(obstacles, lattice{c.I, c.J, c.K})
	}
	if diff := cmp.Diff([]lattice{{1, 0, 1}}, obstacles); diff != "" {
		t.Errorf("Obstacles() mismatch (-want +got):\n%s", diff)
	}
}

func TestLocate(t *testing.T) {
	g := mustBuild(t, cubeVolume(t, 0, 12), 3)
	tests := []struct {
		name   string
		p      geom.Point3
		want   [3]int
		wantOK bool
	}{
		{"min corner", geom.P(0, 0, 0), [3]int{0, 0, 0}, true},
		{"interior", geom.P(5, 9, 1), [3]int{1, 2, 0}, true},
		{"interior face", geom.P(4, 4, 4), [3]int{1, 1, 1}, true},
		{"max corner", geom.P(12, 12, 12), [3]int{2, 2, 2}, true},
		{"outside", geom.P(-0.1, 5, 5), [3]int{}, false},
		{"beyond max", geom.P(5, 12.5, 5), [3]int{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i, j, k, ok := g.Locate(tt.p)
			if ok != tt.wantOK {
				t.Fatalf("Locate(%v) ok = %v, want %v", tt.p, ok, tt.wantOK)
			}
			if ok && [3]int{i, j, k} != tt.want {
				t.Errorf("Locate(%v) = (%d,%d,%d), want %v", tt.p, i, j, k, tt.want)
			}
		})
	}
}

func TestNeighbors(t *testing.T) {
	g := mustBuild(t, cubeVolume(t, 0, 3), 3)
	tests := []struct {
		name string
		at   [3]int
		want []lattice
	}{
		{"center", [3]int{1, 1, 1}, []lattice{{0, 1, 1}, {2, 1, 1}, {1, 0, 1}, {1, 2, 1}, {1, 1, 0}, {1, 1, 2}}},
		{"corner", [3]int{0, 0, 0}, []lattice{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}},
		{"edge", [3]int{2, 2, 1}, []lattice{{1, 2, 1}, {2, 1, 1}, {2, 2, 0}, {2, 2, 2}}},
		{"out of range", [3]int{3, 0, 0}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []lattice
			for _, c := range g.Neighbors(tt.at[0], tt.at[1], tt.at[2]) {
				got = append(got, lattice{c.I, c.J, c.K})
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Neighbors(%v) mismatch (-want +got):\n%s", tt.at, diff)
			}
		})
	}
}

func TestLayer(t *testing.T) {
	g := mustBuild(t, cubeVolume(t, 0, 3), 3)
	if err := g.SetObstacle(1, 2, 0, true); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		axis  Axis
		index int
		u, v  int
	}{
		{AxisX, 1, 2, 0},
		{AxisY, 2, 1, 0},
		{AxisZ, 0, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.axis.String(), func(t *testing.T) {
			mask, err := g.Layer(tt.axis, tt.index)
			if err != nil {
				t.Fatalf("Layer() error = %v", err)
			}
			count := 0
			for u := range mask {
				for v := range mask[u] {
					if mask[u][v] {
						count++
					}
				}
			}
			if count != 1 || !mask[tt.u][tt.v] {
				t.Errorf("Layer(%v, %d) = %v, want only [%d][%d] set", tt.axis, tt.index, mask, tt.u, tt.v)
			}
		})
	}

	if _, err := g.Layer(AxisZ, 3); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Layer(z, 3) error = %v, want ErrIndexOutOfRange", err)
	}
	if _, err := g.Layer(Axis(7), 0); !errors.Is(err, geom.ErrInvalidArgument) {
		t.Errorf("Layer(7, 0) error = %v, want ErrInvalidArgument", err)
	}
}

func TestParseAxis(t *testing.T) {
	for in, want := range map[string]Axis{"x": AxisX, "Y": AxisY, "z": AxisZ} {
		got, err := ParseAxis(in)
		if err != nil || got != want {
			t.Errorf("ParseAxis(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseAxis("w"); !errors.Is(err, geom.ErrInvalidArgument) {
		t.Errorf("ParseAxis(w) error = %v, want ErrInvalidArgument", err)
	}
}
