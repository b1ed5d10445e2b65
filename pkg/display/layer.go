package display

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/chazu/routegrid/pkg/voxel"
)

// LayerSize is the edge length of layer images.
const LayerSize = 6 * vg.Inch

// layerAxes names the two in-plane axes of a layer, in Layer mask order.
func layerAxes(axis voxel.Axis) (u, v voxel.Axis) {
	switch axis {
	case voxel.AxisX:
		return voxel.AxisY, voxel.AxisZ
	case voxel.AxisY:
		return voxel.AxisX, voxel.AxisZ
	default:
		return voxel.AxisX, voxel.AxisY
	}
}

// LayerPlot draws the obstacle cells of one lattice slice as filled squares
// at their centres, in world coordinates.
func LayerPlot(g *voxel.Grid, axis voxel.Axis, index int, st Style) (*plot.Plot, error) {
	mask, err := g.Layer(axis, index)
	if err != nil {
		return nil, fmt.Errorf("display: %w", err)
	}
	col, err := parseHexColor(st.ObstacleColor)
	if err != nil {
		return nil, err
	}

	ua, va := layerAxes(axis)
	cube := g.Box()
	pitch := g.Pitch()

	pts := make(plotter.XYs, 0)
	for u := range mask {
		for v := range mask[u] {
			if !mask[u][v] {
				continue
			}
			pts = append(pts, plotter.XY{
				X: cube.Min[ua] + (float64(u)+0.5)*pitch,
				Y: cube.Min[va] + (float64(v)+0.5)*pitch,
			})
		}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Layer %v=%d (%d obstacle cells)", axis, index, len(pts))
	p.X.Label.Text = ua.String()
	p.Y.Label.Text = va.String()
	p.X.Min, p.X.Max = cube.Min[ua], cube.Max[ua]
	p.Y.Min, p.Y.Max = cube.Min[va], cube.Max[va]
	p.Add(plotter.NewGrid())

	if len(pts) > 0 {
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("display: layer scatter: %w", err)
		}
		sc.GlyphStyle.Shape = draw.BoxGlyph{}
		sc.GlyphStyle.Color = col
		// Half the on-screen cell size, so neighbouring squares touch.
		sc.GlyphStyle.Radius = LayerSize / vg.Length(2*g.Dim()+2)
		p.Add(sc)
	}
	return p, nil
}

// LayerPNG writes LayerPlot to path, creating its directory.
func LayerPNG(g *voxel.Grid, axis voxel.Axis, index int, st Style, path string) error {
	p, err := LayerPlot(g, axis, index, st)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("display: %w", err)
	}
	if err := p.Save(LayerSize, LayerSize, path); err != nil {
		return fmt.Errorf("display: save %s: %w", path, err)
	}
	return nil
}
