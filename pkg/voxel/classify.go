package voxel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/chazu/routegrid/pkg/geom"
	"github.com/chazu/routegrid/pkg/kernel"
)

// Probe selects which sample points of a cell are sent to the classifier.
type Probe int

const (
	// ProbeCenter classifies a cell by its centre point.
	ProbeCenter Probe = iota
	// ProbeCorners also probes the eight corners; any occupied probe makes
	// the cell an obstacle.
	ProbeCorners
)

func (p Probe) String() string {
	switch p {
	case ProbeCenter:
		return "center"
	case ProbeCorners:
		return "corners"
	default:
		return fmt.Sprintf("probe(%d)", int(p))
	}
}

// ParseProbe accepts "center" or "corners".
func ParseProbe(s string) (Probe, error) {
	switch strings.ToLower(s) {
	case "", "center", "centre":
		return ProbeCenter, nil
	case "corners":
		return ProbeCorners, nil
	}
	return 0, fmt.Errorf("voxel: unknown probe %q: %w", s, geom.ErrInvalidArgument)
}

// ClassifyOption configures ClassifyObstacles.
type ClassifyOption func(*classifyConfig)

type classifyConfig struct {
	probe   Probe
	workers int
}

// WithProbe sets the probe mode.
func WithProbe(p Probe) ClassifyOption {
	return func(c *classifyConfig) {
		c.probe = p
	}
}

// WithClassifyWorkers sets how many goroutines query the classifier.
// Values below one select runtime.GOMAXPROCS(0).
func WithClassifyWorkers(n int) ClassifyOption {
	return func(c *classifyConfig) {
		c.workers = n
	}
}

// CellError is a classification failure for one cell.
type CellError struct {
	I, J, K int
	Err     error
}

func (e *CellError) Error() string {
	return fmt.Sprintf("cell (%d,%d,%d): %v", e.I, e.J, e.K, e.Err)
}

func (e *CellError) Unwrap() error { return e.Err }

// ClassifyReport describes one classification pass.
type ClassifyReport struct {
	Probe     Probe
	Cells     int
	Obstacles int
	// Retried counts probe queries that failed once and were asked again.
	Retried int
	// Failed lists cells whose flag was left unchanged, in lattice order.
	Failed []CellError
}

type verdict struct {
	obstacle bool
	failed   bool
}

// ClassifyObstacles sets every cell's obstacle flag from c's answer for
// solid s. Inside and OnBoundary probes mark an obstacle.
//
// A failing query is retried once. Cells that still fail keep their
// previous flag and are listed in the report; the returned error then
// wraps kernel.ErrGeometryOperationFailed but the rest of the grid is
// updated. If ctx is cancelled no cell is changed.
func (g *Grid) ClassifyObstacles(ctx context.Context, s kernel.Solid, c kernel.Classifier, opts ...ClassifyOption) (*ClassifyReport, error) {
	if s == nil || c == nil {
		return nil, fmt.Errorf("voxel: classify: nil solid or classifier: %w", geom.ErrInvalidArgument)
	}
	cfg := classifyConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.probe != ProbeCenter && cfg.probe != ProbeCorners {
		return nil, fmt.Errorf("voxel: classify: %v: %w", cfg.probe, geom.ErrInvalidArgument)
	}

	scratch := make([]verdict, len(g.cells))
	failures := make([][]CellError, g.dim)
	retries := make([]int, g.dim)

	slabs := make(chan int, g.dim)
	for i := 0; i < g.dim; i++ {
		slabs <- i
	}
	close(slabs)

	eg, egCtx := errgroup.WithContext(ctx)
	for w := workerCount(cfg.workers, g.dim); w > 0; w-- {
		eg.Go(func() error {
			for i := range slabs {
				if err := egCtx.Err(); err != nil {
					return err
				}
				retries[i], failures[i] = g.classifySlab(i, s, c, cfg.probe, scratch)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("voxel: classify: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("voxel: classify: %w", err)
	}

	report := &ClassifyReport{Probe: cfg.probe, Cells: len(g.cells)}
	for i := range failures {
		report.Retried += retries[i]
		report.Failed = append(report.Failed, failures[i]...)
	}
	for n, v := range scratch {
		if v.failed {
			continue
		}
		g.cells[n].Obstacle = v.obstacle
		g.cells[n].Classified = true
	}
	for _, cell := range g.cells {
		if cell.Obstacle {
			report.Obstacles++
		}
	}

	if len(report.Failed) == 0 {
		return report, nil
	}
	errs := make([]error, 0, len(report.Failed)+1)
	errs = append(errs, fmt.Errorf("voxel: classify: %d of %d cells failed: %w",
		len(report.Failed), report.Cells, kernel.ErrGeometryOperationFailed))
	for n := range report.Failed {
		errs = append(errs, &report.Failed[n])
	}
	return report, errors.Join(errs...)
}

// classifySlab fills scratch for every cell with lattice coordinate i.
func (g *Grid) classifySlab(i int, s kernel.Solid, c kernel.Classifier, probe Probe, scratch []verdict) (retried int, failed []CellError) {
	for j := 0; j < g.dim; j++ {
		for k := 0; k < g.dim; k++ {
			n := g.index(i, j, k)
			obstacle, r, err := classifyCell(g.cells[n], s, c, probe)
			retried += r
			if err != nil {
				scratch[n] = verdict{failed: true}
				failed = append(failed, CellError{I: i, J: j, K: k, Err: err})
				continue
			}
			scratch[n] = verdict{obstacle: obstacle}
		}
	}
	return retried, failed
}

func classifyCell(cell Cell, s kernel.Solid, c kernel.Classifier, probe Probe) (obstacle bool, retried int, err error) {
	points := []geom.Point3{cell.Center()}
	if probe == ProbeCorners {
		corners := cell.Box.Corners()
		points = append(points, corners[:]...)
	}
	for _, p := range points {
		cls, r, err := classifyPoint(s, c, p)
		retried += r
		if err != nil {
			return false, retried, err
		}
		if cls.Occupied() {
			return true, retried, nil
		}
	}
	return false, retried, nil
}

// classifyPoint asks c once and, on failure, once more.
func classifyPoint(s kernel.Solid, c kernel.Classifier, p geom.Point3) (kernel.Classification, int, error) {
	cls, err := safeClassify(s, c, p)
	if err == nil {
		return cls, 0, nil
	}
	cls, err = safeClassify(s, c, p)
	if err != nil {
		return kernel.Outside, 1, fmt.Errorf("classify %v: %w", p, err)
	}
	return cls, 1, nil
}

func safeClassify(s kernel.Solid, c kernel.Classifier, p geom.Point3) (cls kernel.Classification, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v: %w", r, kernel.ErrGeometryOperationFailed)
		}
	}()
	return c.Classify(s, [3]float64(p))
}
