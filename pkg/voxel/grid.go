// Package voxel partitions a cubic bounding volume into a dense
// dim × dim × dim lattice of cells and tracks which cells are obstructed
// by a solid.
//
// Cells are stored in a flat slice indexed (i*dim+j)*dim+k, so traversal
// order is i outermost, then j, then k. A built grid is safe for concurrent
// readers; mutation (ClassifyObstacles, SetObstacle) must not overlap with
// other use of the same grid.
package voxel

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/chazu/routegrid/pkg/bounds"
	"github.com/chazu/routegrid/pkg/geom"
)

// MaxDim bounds the per-axis resolution of the dense cell layout. 256³
// cells is already ~1.3 GB; finer grids need a sparse layout.
const MaxDim = 256

// ErrIndexOutOfRange reports lattice access outside [0, dim) on some axis.
var ErrIndexOutOfRange = errors.New("index out of range")

// Cell is one voxel: its box, lattice coordinates and obstacle flag.
type Cell struct {
	Box      geom.Box `json:"box"`
	I        int      `json:"i"`
	J        int      `json:"j"`
	K        int      `json:"k"`
	Obstacle bool     `json:"obstacle"`
	// Classified is set once a classification pass has decided the flag.
	Classified bool `json:"classified"`
}

// Center returns the midpoint of the cell's box.
func (c Cell) Center() geom.Point3 {
	return c.Box.Center()
}

func (c Cell) String() string {
	state := "free"
	if c.Obstacle {
		state = "obstacle"
	}
	return fmt.Sprintf("cell (%d,%d,%d) %v %s", c.I, c.J, c.K, c.Box, state)
}

// Grid is a dense cubic lattice of cells over a bounding volume.
type Grid struct {
	volume          *bounds.Volume
	dim             int
	pitch           float64
	initialObstacle bool
	cells           []Cell
}

// Option configures Build.
type Option func(*buildConfig)

type buildConfig struct {
	workers         int
	initialObstacle bool
}

// WithWorkers sets how many goroutines fill the lattice. Values below one
// select runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return func(c *buildConfig) {
		c.workers = n
	}
}

// WithInitialObstacle sets the obstacle flag every cell starts with.
// Cells start free by default.
func WithInitialObstacle(obstacle bool) Option {
	return func(c *buildConfig) {
		c.initialObstacle = obstacle
	}
}

func workerCount(n, slabs int) int {
	if n < 1 {
		n = runtime.GOMAXPROCS(0)
	}
	return max(1, min(n, slabs))
}

// Build partitions the cube of v into dim³ cells of equal pitch.
func Build(v *bounds.Volume, dim int, opts ...Option) (*Grid, error) {
	if v == nil {
		return nil, fmt.Errorf("voxel: build: nil volume: %w", geom.ErrInvalidArgument)
	}
	if dim <= 0 {
		return nil, fmt.Errorf("voxel: build: dim %d must be positive: %w", dim, geom.ErrInvalidArgument)
	}
	if dim > MaxDim {
		return nil, fmt.Errorf("voxel: build: dim %d exceeds %d, the limit of the dense cell layout (a sparse layout is not implemented): %w",
			dim, MaxDim, geom.ErrInvalidArgument)
	}
	edge := v.Edge()
	if !(edge > 0) || math.IsInf(edge, 0) {
		return nil, fmt.Errorf("voxel: build: cube edge %g: %w", edge, geom.ErrDegenerateGeometry)
	}
	if !v.IsCube() {
		return nil, fmt.Errorf("voxel: build: volume %v is not a cube: %w", v.Cube, geom.ErrInvalidArgument)
	}

	cfg := buildConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	g := &Grid{
		volume:          v,
		dim:             dim,
		pitch:           edge / float64(dim),
		initialObstacle: cfg.initialObstacle,
		cells:           make([]Cell, dim*dim*dim),
	}

	// Slabs of constant i are independent; each worker owns whole slabs.
	slabs := make(chan int, dim)
	for i := 0; i < dim; i++ {
		slabs <- i
	}
	close(slabs)

	var eg errgroup.Group
	for w := workerCount(cfg.workers, dim); w > 0; w-- {
		eg.Go(func() error {
			for i := range slabs {
				g.fillSlab(i, cfg.initialObstacle)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("voxel: build: %w", err)
	}
	return g, nil
}

func (g *Grid) fillSlab(i int, obstacle bool) {
	for j := 0; j < g.dim; j++ {
		for k := 0; k < g.dim; k++ {
			g.cells[g.index(i, j, k)] = Cell{
				Box: geom.Box{
					Min: geom.P(g.coord(0, i), g.coord(1, j), g.coord(2, k)),
					Max: geom.P(g.coord(0, i+1), g.coord(1, j+1), g.coord(2, k+1)),
				},
				I:        i,
				J:        j,
				K:        k,
				Obstacle: obstacle,
			}
		}
	}
}

// coord returns the lattice plane n along axis. The last plane is the cube
// maximum itself so the cells end exactly on the cube faces.
func (g *Grid) coord(axis, n int) float64 {
	cube := g.volume.Cube
	if n >= g.dim {
		return cube.Max[axis]
	}
	return cube.Min[axis] + float64(n)*g.pitch
}

func (g *Grid) index(i, j, k int) int {
	return (i*g.dim+j)*g.dim + k
}

func (g *Grid) inRange(i, j, k int) bool {
	return i >= 0 && i < g.dim && j >= 0 && j < g.dim && k >= 0 && k < g.dim
}

// Dim returns the number of cells per axis.
func (g *Grid) Dim() int { return g.dim }

// Pitch returns the edge length of one cell.
func (g *Grid) Pitch() float64 { return g.pitch }

// Volume returns the bounding volume the grid was built from.
func (g *Grid) Volume() *bounds.Volume { return g.volume }

// Box returns the cube the grid tiles.
func (g *Grid) Box() geom.Box { return g.volume.Cube }

// InitialObstacle returns the flag cells started with.
func (g *Grid) InitialObstacle() bool { return g.initialObstacle }

// Len returns dim³.
func (g *Grid) Len() int { return len(g.cells) }

// At returns the cell at lattice position (i, j, k).
func (g *Grid) At(i, j, k int) (Cell, error) {
	if !g.inRange(i, j, k) {
		return Cell{}, fmt.Errorf("voxel: at (%d,%d,%d) with dim %d: %w", i, j, k, g.dim, ErrIndexOutOfRange)
	}
	return g.cells[g.index(i, j, k)], nil
}

// SetObstacle records a decided obstacle flag for one cell.
func (g *Grid) SetObstacle(i, j, k int, obstacle bool) error {
	if !g.inRange(i, j, k) {
		return fmt.Errorf("voxel: set obstacle (%d,%d,%d) with dim %d: %w", i, j, k, g.dim, ErrIndexOutOfRange)
	}
	c := &g.cells[g.index(i, j, k)]
	c.Obstacle = obstacle
	c.Classified = true
	return nil
}

// All yields every cell in lattice order: i outermost, k innermost. The
// sequence can be ranged over any number of times.
func (g *Grid) All() iter.Seq[Cell] {
	return func(yield func(Cell) bool) {
		for _, c := range g.cells {
			if !yield(c) {
				return
			}
		}
	}
}

// Obstacles yields the obstacle cells in lattice order.
func (g *Grid) Obstacles() iter.Seq[Cell] {
	return func(yield func(Cell) bool) {
		for _, c := range g.cells {
			if c.Obstacle && !yield(c) {
				return
			}
		}
	}
}

// Locate returns the lattice position of the cell containing p. Points on
// an interior face belong to the cell above it; points on the cube's
// maximum faces belong to the last cell.
func (g *Grid) Locate(p geom.Point3) (i, j, k int, ok bool) {
	cube := g.volume.Cube
	if !cube.Contains(p) {
		return 0, 0, 0, false
	}
	var idx [3]int
	for axis := 0; axis < 3; axis++ {
		n := int(math.Floor((p[axis] - cube.Min[axis]) / g.pitch))
		idx[axis] = max(0, min(n, g.dim-1))
	}
	return idx[0], idx[1], idx[2], true
}

var faceOffsets = [6][3]int{
	{-1, 0, 0}, {1, 0, 0},
	{0, -1, 0}, {0, 1, 0},
	{0, 0, -1}, {0, 0, 1},
}

// Neighbors returns the in-bounds face neighbours of (i, j, k) in the order
// -i, +i, -j, +j, -k, +k. It returns nil for an out-of-range position.
func (g *Grid) Neighbors(i, j, k int) []Cell {
	if !g.inRange(i, j, k) {
		return nil
	}
	out := make([]Cell, 0, len(faceOffsets))
	for _, d := range faceOffsets {
		ni, nj, nk := i+d[0], j+d[1], k+d[2]
		if g.inRange(ni, nj, nk) {
			out = append(out, g.cells[g.index(ni, nj, nk)])
		}
	}
	return out
}

// Stats summarises the obstacle flags of a grid.
type Stats struct {
	Total      int     `json:"total"`
	Obstacles  int     `json:"obstacles"`
	Free       int     `json:"free"`
	Classified int     `json:"classified"`
	Fill       float64 `json:"fill"`
}

func (s Stats) String() string {
	return fmt.Sprintf("%d cells, %d obstacle, %d free, %d classified (%.1f%% filled)",
		s.Total, s.Obstacles, s.Free, s.Classified, s.Fill*100)
}

// Stats counts obstacle, free and classified cells.
func (g *Grid) Stats() Stats {
	s := Stats{Total: len(g.cells)}
	for _, c := range g.cells {
		if c.Obstacle {
			s.Obstacles++
		}
		if c.Classified {
			s.Classified++
		}
	}
	s.Free = s.Total - s.Obstacles
	if s.Total > 0 {
		s.Fill = float64(s.Obstacles) / float64(s.Total)
	}
	return s
}

// SuspiciousAllObstructed reports whether every cell is an obstacle. A
// routing grid with no free space usually means classification never ran
// or the cube does not enclose any free space.
func (g *Grid) SuspiciousAllObstructed() bool {
	for _, c := range g.cells {
		if !c.Obstacle {
			return false
		}
	}
	return true
}

// Axis names a lattice axis.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// ParseAxis accepts "x", "y" or "z".
func ParseAxis(s string) (Axis, error) {
	switch s {
	case "x", "X":
		return AxisX, nil
	case "y", "Y":
		return AxisY, nil
	case "z", "Z":
		return AxisZ, nil
	}
	return 0, fmt.Errorf("voxel: unknown axis %q: %w", s, geom.ErrInvalidArgument)
}

// Layer returns the obstacle mask of the slice where axis equals index.
// The mask is indexed [u][v] over the two remaining axes in x, y, z order:
// (j, k) for AxisX, (i, k) for AxisY and (i, j) for AxisZ.
func (g *Grid) Layer(axis Axis, index int) ([][]bool, error) {
	if axis < AxisX || axis > AxisZ {
		return nil, fmt.Errorf("voxel: layer: axis %d: %w", int(axis), geom.ErrInvalidArgument)
	}
	if index < 0 || index >= g.dim {
		return nil, fmt.Errorf("voxel: layer %v=%d with dim %d: %w", axis, index, g.dim, ErrIndexOutOfRange)
	}
	mask := make([][]bool, g.dim)
	for u := range mask {
		mask[u] = make([]bool, g.dim)
		for v := range mask[u] {
			var i, j, k int
			switch axis {
			case AxisX:
				i, j, k = index, u, v
			case AxisY:
				i, j, k = u, index, v
			case AxisZ:
				i, j, k = u, v, index
			}
			mask[u][v] = g.cells[g.index(i, j, k)].Obstacle
		}
	}
	return mask, nil
}
