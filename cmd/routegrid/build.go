package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chazu/routegrid/internal/config"
	"github.com/chazu/routegrid/pkg/assembly"
	"github.com/chazu/routegrid/pkg/bounds"
	"github.com/chazu/routegrid/pkg/display"
	"github.com/chazu/routegrid/pkg/kernel"
	"github.com/chazu/routegrid/pkg/kernel/manifold"
	"github.com/chazu/routegrid/pkg/kernel/sdfx"
	"github.com/chazu/routegrid/pkg/store"
	"github.com/chazu/routegrid/pkg/voxel"
)

type buildOptions struct {
	configPath      string
	dir             string
	kernel          string
	dim             int
	ratio           float64
	noClassify      bool
	probe           string
	workers         int
	initialObstacle bool
	html            string
	meshes          string
	pngLayers       []string
	pngDir          string
	save            bool
	db              string
	name            string
}

func newBuildCmd() *cobra.Command {
	var o buildOptions
	cmd := &cobra.Command{
		Use:   "build [paths...]",
		Short: "Build a routing grid",
		Long: `Build a routing grid around the given model files and scene scripts.
With no paths, every model and scene in --dir is loaded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, o, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", "", "JSON config file")
	f.StringVar(&o.dir, "dir", ".", "Directory to discover models in when no paths are given")
	f.StringVar(&o.kernel, "kernel", "sdfx", "Geometry kernel: sdfx or manifold")
	f.IntVar(&o.dim, "dim", config.DefaultDim, "Cells per axis")
	f.Float64Var(&o.ratio, "ratio", bounds.DefaultExtensionRatio, "Bounding box extension ratio")
	f.BoolVar(&o.noClassify, "no-classify", false, "Skip obstacle classification")
	f.StringVar(&o.probe, "probe", "center", "Classification probe: center or corners")
	f.IntVar(&o.workers, "workers", 0, "Worker goroutines (0 = GOMAXPROCS)")
	f.BoolVar(&o.initialObstacle, "initial-obstacle", false, "Start every cell as an obstacle")
	f.StringVar(&o.html, "html", "", "Write an interactive 3D view to this HTML file")
	f.StringVar(&o.meshes, "meshes", "", "Write the cube and obstacle cells as JSON meshes to this file")
	f.StringArrayVar(&o.pngLayers, "png-layer", nil, "Write a PNG of one layer, as axis=index (repeatable)")
	f.StringVar(&o.pngDir, "png-dir", "layers", "Directory for --png-layer images")
	f.BoolVar(&o.save, "save", false, "Save the grid to the database")
	f.StringVar(&o.db, "db", "routegrid.db", "Grid database path")
	f.StringVar(&o.name, "name", "", "Name for the saved grid (default: first input)")
	return cmd
}

// settings merges the config file with any flags set on the command line.
func (o buildOptions) settings(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Empty()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return nil, err
		}
	}

	f := cmd.Flags()
	if f.Changed("dim") {
		cfg.Dim = &o.dim
	}
	if f.Changed("ratio") {
		cfg.ExtensionRatio = &o.ratio
	}
	if f.Changed("no-classify") {
		classify := !o.noClassify
		cfg.Classify = &classify
	}
	if f.Changed("probe") {
		cfg.Probe = &o.probe
	}
	if f.Changed("workers") {
		cfg.Workers = &o.workers
	}
	if f.Changed("initial-obstacle") {
		cfg.InitialObstacle = &o.initialObstacle
	}
	if f.Changed("db") || cfg.Database == nil {
		cfg.Database = &o.db
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return cfg, nil
}

func newKernel(name string, tol float64) (kernel.Kernel, error) {
	switch strings.ToLower(name) {
	case "", "sdfx":
		return sdfx.New(sdfx.WithBoundaryTolerance(tol)), nil
	case "manifold":
		return manifold.New(tol)
	}
	return nil, fmt.Errorf("unknown kernel %q (use sdfx or manifold)", name)
}

// parseLayer reads "axis=index", e.g. "z=3".
func parseLayer(s string) (voxel.Axis, int, error) {
	axisStr, idxStr, ok := strings.Cut(s, "=")
	if !ok {
		return 0, 0, fmt.Errorf("layer %q: want axis=index", s)
	}
	axis, err := voxel.ParseAxis(strings.TrimSpace(axisStr))
	if err != nil {
		return 0, 0, err
	}
	idx, err := strconv.Atoi(strings.TrimSpace(idxStr))
	if err != nil {
		return 0, 0, fmt.Errorf("layer %q: %w", s, err)
	}
	return axis, idx, nil
}

func runBuild(cmd *cobra.Command, o buildOptions, args []string) error {
	cfg, err := o.settings(cmd)
	if err != nil {
		return err
	}
	// Check layer specs before doing any geometry work.
	type layer struct {
		axis  voxel.Axis
		index int
	}
	var layers []layer
	for _, s := range o.pngLayers {
		axis, idx, err := parseLayer(s)
		if err != nil {
			return err
		}
		layers = append(layers, layer{axis, idx})
	}

	k, err := newKernel(o.kernel, cfg.GetBoundaryTolerance())
	if err != nil {
		return err
	}

	paths := args
	if len(paths) == 0 {
		if paths, err = assembly.Discover(o.dir); err != nil {
			return err
		}
		if len(paths) == 0 {
			return fmt.Errorf("no model files or scenes found in %s", o.dir)
		}
	}

	asm := assembly.New(k, assembly.WithPlacements(cfg.GetPlacements()))
	if err := asm.LoadAll(paths); err != nil {
		return err
	}
	solid, err := asm.Fused()
	if err != nil {
		return err
	}

	v, err := bounds.Compute(solid, cfg.GetExtensionRatio())
	if err != nil {
		return err
	}
	g, err := voxel.Build(v, cfg.GetDim(),
		voxel.WithWorkers(cfg.GetWorkers()),
		voxel.WithInitialObstacle(cfg.GetInitialObstacle()),
	)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Parts:      %d\n", len(asm.Parts()))
	fmt.Fprintf(out, "Bounds:     %v\n", v.Raw)
	fmt.Fprintf(out, "Cube:       %v (edge %.4g)\n", v.Cube, v.Edge())
	fmt.Fprintf(out, "Grid:       %d^3, pitch %.4g\n", g.Dim(), g.Pitch())

	if cfg.GetClassify() {
		report, err := g.ClassifyObstacles(cmd.Context(), solid, k,
			voxel.WithProbe(cfg.GetProbe()),
			voxel.WithClassifyWorkers(cfg.GetWorkers()),
		)
		if err != nil {
			if report == nil || len(report.Failed) == 0 {
				return err
			}
			// Failed cells keep their previous flag; the grid is still usable.
			log.Printf("classification: %v", err)
			fmt.Fprintf(out, "Warning:    %d cells could not be classified\n", len(report.Failed))
		}
		if report != nil {
			fmt.Fprintf(out, "Classified: %d cells with %s probe, %d retried\n", report.Cells, report.Probe, report.Retried)
		}
	}

	fmt.Fprintf(out, "Stats:      %v\n", g.Stats())
	if g.SuspiciousAllObstructed() {
		fmt.Fprintln(out, "Warning:    every cell is an obstacle; the grid has no free space")
	}

	if err := writeOutputs(out, g, cfg.GetStyle(), o, k); err != nil {
		return err
	}
	for _, l := range layers {
		path := filepath.Join(o.pngDir, fmt.Sprintf("%s%d.png", l.axis, l.index))
		if err := display.LayerPNG(g, l.axis, l.index, cfg.GetStyle(), path); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote:      %s\n", path)
	}

	if o.save {
		name := o.name
		if name == "" {
			name = filepath.Base(paths[0])
		}
		s, err := store.Open(cfg.GetDatabase())
		if err != nil {
			return err
		}
		defer s.Close()
		id, err := s.Save(cmd.Context(), name, g)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved:      %s\n", id)
	}
	return nil
}

func writeOutputs(out io.Writer, g *voxel.Grid, st display.Style, o buildOptions, k kernel.Kernel) error {
	scene := display.FromGrid(g, st)
	if o.html != "" {
		if err := writeFile(o.html, scene.HTML); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote:      %s\n", o.html)
	}
	if o.meshes != "" {
		meshes, err := display.Meshes(scene, k)
		if err != nil {
			return err
		}
		if err := writeFile(o.meshes, func(w io.Writer) error { return display.WriteMeshes(w, meshes) }); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote:      %s\n", o.meshes)
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return write(f)
}
