// Package display turns a routing grid into things a person can look at: an
// interactive HTML scatter of the obstacle cells, PNG slices through the
// lattice, and coloured triangle meshes for an external viewer.
package display

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/chazu/routegrid/pkg/geom"
	"github.com/chazu/routegrid/pkg/kernel"
	"github.com/chazu/routegrid/pkg/voxel"
)

// colorPalette assigns distinct colours to objects that have none.
var colorPalette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// Object is one thing to draw: either a box or a kernel solid.
type Object struct {
	Name string
	// Group collects objects into one legend entry. Empty uses Name.
	Group string
	Box   *geom.Box
	Solid kernel.Solid
	// Color is a "#RRGGBB" string. Empty picks from the palette.
	Color string
	// Transparency runs from 0 (opaque) to 1 (invisible).
	Transparency float64
}

// Bounds returns the object's axis-aligned extent.
func (o Object) Bounds() (geom.Box, bool) {
	switch {
	case o.Box != nil:
		return *o.Box, true
	case o.Solid != nil:
		return geom.BoxFromArrays(o.Solid.BoundingBox()), true
	}
	return geom.Box{}, false
}

func (o Object) group() string {
	if o.Group != "" {
		return o.Group
	}
	return o.Name
}

// Opacity is 1 - Transparency clamped to [0, 1].
func (o Object) Opacity() float64 {
	return max(0, min(1, 1-o.Transparency))
}

// Scene is an ordered list of objects.
type Scene struct {
	Title   string
	Objects []Object
}

// Add appends o, filling in a palette colour when it has none.
func (s *Scene) Add(o Object) {
	if o.Color == "" {
		o.Color = colorPalette[len(s.Objects)%len(colorPalette)]
	}
	s.Objects = append(s.Objects, o)
}

// AddSolid appends a named solid.
func (s *Scene) AddSolid(name string, solid kernel.Solid, color string, transparency float64) {
	s.Add(Object{Name: name, Solid: solid, Color: color, Transparency: transparency})
}

// Style sets colours and transparency for FromGrid.
type Style struct {
	CubeColor        string
	CubeTransparency float64
	ObstacleColor    string
}

// DefaultStyle draws a half-transparent blue cube around red obstacles.
func DefaultStyle() Style {
	return Style{
		CubeColor:        "#4A90D9",
		CubeTransparency: 0.5,
		ObstacleColor:    "#E74C3C",
	}
}

// FromGrid builds a scene with the grid's bounding cube followed by every
// obstacle cell in lattice order.
func FromGrid(g *voxel.Grid, st Style) *Scene {
	cube := g.Box()
	s := &Scene{Title: fmt.Sprintf("routing grid %d³, pitch %g", g.Dim(), g.Pitch())}
	s.Add(Object{
		Name:         "bounding cube",
		Group:        "cube",
		Box:          &cube,
		Color:        st.CubeColor,
		Transparency: st.CubeTransparency,
	})
	for c := range g.Obstacles() {
		b := c.Box
		s.Add(Object{
			Name:  fmt.Sprintf("cell %d,%d,%d", c.I, c.J, c.K),
			Group: "obstacles",
			Box:   &b,
			Color: st.ObstacleColor,
		})
	}
	return s
}

// parseHexColor reads "#RRGGBB" or "#RGB".
func parseHexColor(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(s, "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("display: bad colour %q: %w", s, geom.ErrInvalidArgument)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("display: bad colour %q: %w", s, geom.ErrInvalidArgument)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// rgba renders a colour with the object's opacity as a CSS rgba() string.
func rgba(hex string, opacity float64) (string, error) {
	c, err := parseHexColor(hex)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("rgba(%d,%d,%d,%.3g)", c.R, c.G, c.B, opacity), nil
}
