// Package config loads routegrid build settings from a JSON file. Every
// field is optional; the Get* methods supply defaults for anything the file
// leaves out, and command-line flags override both.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/chazu/routegrid/pkg/assembly"
	"github.com/chazu/routegrid/pkg/bounds"
	"github.com/chazu/routegrid/pkg/display"
	"github.com/chazu/routegrid/pkg/voxel"
)

// Defaults for fields the file omits.
const (
	DefaultDim               = 10
	DefaultBoundaryTolerance = 1e-6
)

// Config is the on-disk build configuration.
type Config struct {
	ExtensionRatio    *float64 `json:"extension_ratio,omitempty"`
	Dim               *int     `json:"dim,omitempty"`
	Classify          *bool    `json:"classify,omitempty"`
	Probe             *string  `json:"probe,omitempty"` // "center" or "corners"
	Workers           *int     `json:"workers,omitempty"`
	InitialObstacle   *bool    `json:"initial_obstacle,omitempty"`
	BoundaryTolerance *float64 `json:"boundary_tolerance,omitempty"`

	CubeColor        *string  `json:"cube_color,omitempty"`
	CubeTransparency *float64 `json:"cube_transparency,omitempty"`
	ObstacleColor    *string  `json:"obstacle_color,omitempty"`

	// Placements offsets named parts, keyed by part name.
	Placements map[string][3]float64 `json:"placements,omitempty"`

	Database *string `json:"database,omitempty"`
}

// Empty returns a Config with every field unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file. The file must have a .json
// extension and be at most 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate checks the fields that are set.
func (c *Config) Validate() error {
	if c.ExtensionRatio != nil {
		if r := *c.ExtensionRatio; r < 0 || !finite(r) {
			return fmt.Errorf("extension_ratio must be a non-negative number, got %v", r)
		}
	}
	if c.Dim != nil {
		if *c.Dim < 1 || *c.Dim > voxel.MaxDim {
			return fmt.Errorf("dim must be between 1 and %d, got %d", voxel.MaxDim, *c.Dim)
		}
	}
	if c.Probe != nil {
		if _, err := voxel.ParseProbe(*c.Probe); err != nil {
			return fmt.Errorf("invalid probe: %w", err)
		}
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.BoundaryTolerance != nil {
		if tol := *c.BoundaryTolerance; tol < 0 || !finite(tol) {
			return fmt.Errorf("boundary_tolerance must be a non-negative number, got %v", tol)
		}
	}
	if c.CubeTransparency != nil {
		if tr := *c.CubeTransparency; tr < 0 || tr > 1 {
			return fmt.Errorf("cube_transparency must be between 0 and 1, got %v", tr)
		}
	}
	for name, p := range c.Placements {
		if !finite(p[0]) || !finite(p[1]) || !finite(p[2]) {
			return fmt.Errorf("placement %q is not finite: %v", name, p)
		}
	}
	return nil
}

// GetExtensionRatio returns extension_ratio or the default.
func (c *Config) GetExtensionRatio() float64 {
	if c.ExtensionRatio == nil {
		return bounds.DefaultExtensionRatio
	}
	return *c.ExtensionRatio
}

// GetDim returns dim or the default.
func (c *Config) GetDim() int {
	if c.Dim == nil {
		return DefaultDim
	}
	return *c.Dim
}

// GetClassify returns classify or the default.
func (c *Config) GetClassify() bool {
	if c.Classify == nil {
		return true
	}
	return *c.Classify
}

// GetProbe returns the parsed probe, falling back to the centre probe.
func (c *Config) GetProbe() voxel.Probe {
	if c.Probe == nil {
		return voxel.ProbeCenter
	}
	p, err := voxel.ParseProbe(*c.Probe)
	if err != nil {
		return voxel.ProbeCenter
	}
	return p
}

// GetWorkers returns workers; zero means GOMAXPROCS.
func (c *Config) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetInitialObstacle returns initial_obstacle or the default.
func (c *Config) GetInitialObstacle() bool {
	if c.InitialObstacle == nil {
		return false
	}
	return *c.InitialObstacle
}

// GetBoundaryTolerance returns boundary_tolerance or the default.
func (c *Config) GetBoundaryTolerance() float64 {
	if c.BoundaryTolerance == nil {
		return DefaultBoundaryTolerance
	}
	return *c.BoundaryTolerance
}

// GetStyle returns the display style with any configured overrides.
func (c *Config) GetStyle() display.Style {
	st := display.DefaultStyle()
	if c.CubeColor != nil {
		st.CubeColor = *c.CubeColor
	}
	if c.CubeTransparency != nil {
		st.CubeTransparency = *c.CubeTransparency
	}
	if c.ObstacleColor != nil {
		st.ObstacleColor = *c.ObstacleColor
	}
	return st
}

// GetPlacements converts placements into assembly offsets.
func (c *Config) GetPlacements() map[string]assembly.Placement {
	if len(c.Placements) == 0 {
		return nil
	}
	out := make(map[string]assembly.Placement, len(c.Placements))
	for name, p := range c.Placements {
		out[name] = assembly.Placement{X: p[0], Y: p[1], Z: p[2]}
	}
	return out
}

// GetDatabase returns the grid database path, empty when unset.
func (c *Config) GetDatabase() string {
	if c.Database == nil {
		return ""
	}
	return *c.Database
}
