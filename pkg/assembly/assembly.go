// Package assembly gathers the solids a routing grid is built around. Parts
// come from model files read by package models or from scene scripts
// evaluated by package engine; each may be offset by a placement, and the
// whole set is fused into one solid in load order.
package assembly

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chazu/routegrid/pkg/engine"
	"github.com/chazu/routegrid/pkg/kernel"
	"github.com/chazu/routegrid/pkg/models"
)

// ErrDuplicatePart is returned when two loaded parts share a name.
var ErrDuplicatePart = errors.New("duplicate part name")

// Placement is a translation applied to a part after loading.
type Placement struct {
	X, Y, Z float64
}

// IsZero reports whether p moves nothing.
func (p Placement) IsZero() bool {
	return p == Placement{}
}

// Part is one loaded solid.
type Part struct {
	Name string
	// Path is the file the part came from.
	Path  string
	Solid kernel.Solid
	// Triangles is the source mesh size; zero for scene parts.
	Triangles int
}

// Assembly holds the parts loaded so far.
type Assembly struct {
	kernel     kernel.Kernel
	placements map[string]Placement
	load       engine.MeshLoader
	parts      []Part
}

// Option configures an Assembly.
type Option func(*Assembly)

// WithPlacements offsets parts by name.
func WithPlacements(p map[string]Placement) Option {
	return func(a *Assembly) {
		for name, pl := range p {
			a.placements[name] = pl
		}
	}
}

// WithMeshLoader replaces models.Load for model files and scene meshes.
func WithMeshLoader(fn engine.MeshLoader) Option {
	return func(a *Assembly) {
		if fn != nil {
			a.load = fn
		}
	}
}

// New returns an empty assembly whose solids are built by k.
func New(k kernel.Kernel, opts ...Option) *Assembly {
	a := &Assembly{
		kernel:     k,
		placements: map[string]Placement{},
		load:       models.Load,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Candidate reports whether Discover would pick up path.
func Candidate(path string) bool {
	_, ok := models.DetectFormat(path)
	return ok || engine.IsScene(path)
}

// Discover lists the model and scene files directly inside dir, sorted by
// name. STEP files are included so that loading reports them.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("assembly: discover: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !Candidate(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	log.Printf("assembly: discovered %d file(s) in %s", len(paths), dir)
	return paths, nil
}

// Load reads one file and adds its parts. A model file gives one part named
// after the file; a scene gives one part per (part ...) call.
func (a *Assembly) Load(path string) ([]Part, error) {
	var (
		parts []Part
		err   error
	)
	if engine.IsScene(path) {
		parts, err = a.loadScene(path)
	} else {
		parts, err = a.loadModel(path)
	}
	if err != nil {
		return nil, fmt.Errorf("assembly: load %s: %w", path, err)
	}

	for i := range parts {
		if _, dup := a.Lookup(parts[i].Name); dup {
			return nil, fmt.Errorf("assembly: load %s: %q: %w", path, parts[i].Name, ErrDuplicatePart)
		}
		parts[i].Solid = a.place(parts[i].Name, parts[i].Solid, parts[i].Triangles > 0)
	}
	a.parts = append(a.parts, parts...)
	for _, p := range parts {
		lo, hi := p.Solid.BoundingBox()
		log.Printf("assembly: part %q from %s: bbox %v..%v", p.Name, filepath.Base(path), lo, hi)
	}
	return parts, nil
}

// LoadAll loads paths in order and stops at the first failure.
func (a *Assembly) LoadAll(paths []string) error {
	for _, p := range paths {
		if _, err := a.Load(p); err != nil {
			return err
		}
	}
	return nil
}

func (a *Assembly) loadModel(path string) ([]Part, error) {
	m, err := a.load(path)
	if err != nil {
		return nil, err
	}
	name := m.PartName
	if name == "" {
		name = models.PartName(path)
	}
	if pl, ok := a.placements[name]; ok && !pl.IsZero() {
		m.Translate(pl.X, pl.Y, pl.Z)
	}
	s, err := a.kernel.FromMesh(m)
	if err != nil {
		return nil, err
	}
	return []Part{{Name: name, Path: path, Solid: s, Triangles: m.TriangleCount()}}, nil
}

func (a *Assembly) loadScene(path string) ([]Part, error) {
	eng := engine.NewEngine(a.kernel, engine.WithMeshLoader(a.load))
	sc, evalErrs, err := eng.EvaluateFile(path)
	if err != nil {
		return nil, err
	}
	if len(evalErrs) > 0 {
		msgs := make([]string, len(evalErrs))
		for i, e := range evalErrs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("scene errors: %s", strings.Join(msgs, "; "))
	}
	if len(sc.Parts) == 0 {
		return nil, fmt.Errorf("scene defines no parts: %w", models.ErrNoGeometry)
	}
	parts := make([]Part, len(sc.Parts))
	for i, p := range sc.Parts {
		parts[i] = Part{Name: p.Name, Path: path, Solid: p.Solid}
	}
	return parts, nil
}

// place applies the named placement. Mesh parts were already moved before
// import.
func (a *Assembly) place(name string, s kernel.Solid, meshMoved bool) kernel.Solid {
	pl, ok := a.placements[name]
	if !ok || pl.IsZero() || meshMoved {
		return s
	}
	return a.kernel.Translate(s, pl.X, pl.Y, pl.Z)
}

// Parts returns the loaded parts in load order.
func (a *Assembly) Parts() []Part {
	return append([]Part(nil), a.parts...)
}

// Lookup finds a loaded part by name.
func (a *Assembly) Lookup(name string) (Part, bool) {
	for _, p := range a.parts {
		if p.Name == name {
			return p, true
		}
	}
	return Part{}, false
}

// Fused unions every loaded part into one solid.
func (a *Assembly) Fused() (kernel.Solid, error) {
	solids := make([]kernel.Solid, len(a.parts))
	for i, p := range a.parts {
		solids[i] = p.Solid
	}
	s, err := kernel.Fuse(a.kernel, solids...)
	if err != nil {
		return nil, fmt.Errorf("assembly: %w", err)
	}
	return s, nil
}
