package display

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/chazu/routegrid/pkg/geom"
)

// series is one legend entry of the 3D scatter.
type series struct {
	name  string
	color string
	data  []opts.Chart3DData
}

// points returns the scatter points standing for o: its eight corners when
// it is translucent (an envelope such as the bounding cube), otherwise its
// centre.
func points(o Object) []geom.Point3 {
	b, ok := o.Bounds()
	if !ok {
		return nil
	}
	if o.Transparency > 0 {
		c := b.Corners()
		return c[:]
	}
	return []geom.Point3{b.Center()}
}

// HTML writes an interactive 3D scatter of the scene.
func (s *Scene) HTML(w io.Writer) error {
	var (
		order  []string
		groups = map[string]*series{}
		bounds geom.Box
		first  = true
	)
	for _, o := range s.Objects {
		b, ok := o.Bounds()
		if !ok {
			continue
		}
		if first {
			bounds, first = b, false
		} else {
			bounds = geom.NewBox(
				geom.P(min(bounds.Min[0], b.Min[0]), min(bounds.Min[1], b.Min[1]), min(bounds.Min[2], b.Min[2])),
				geom.P(max(bounds.Max[0], b.Max[0]), max(bounds.Max[1], b.Max[1]), max(bounds.Max[2], b.Max[2])),
			)
		}

		col, err := rgba(o.Color, o.Opacity())
		if err != nil {
			return err
		}
		key := o.group() + "\x00" + col
		g, ok := groups[key]
		if !ok {
			g = &series{name: o.group(), color: col}
			groups[key] = g
			order = append(order, key)
		}
		for _, p := range points(o) {
			g.data = append(g.data, opts.Chart3DData{
				Name:  o.Name,
				Value: []interface{}{p[0], p[1], p[2]},
			})
		}
	}

	title := s.Title
	if title == "" {
		title = "routegrid"
	}
	scatter := charts.NewScatter3D()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("objects=%d", len(s.Objects))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxis3DOpts(opts.XAxis3D{Name: "X", Min: bounds.Min[0], Max: bounds.Max[0]}),
		charts.WithYAxis3DOpts(opts.YAxis3D{Name: "Y", Min: bounds.Min[1], Max: bounds.Max[1]}),
		charts.WithZAxis3DOpts(opts.ZAxis3D{Name: "Z", Min: bounds.Min[2], Max: bounds.Max[2]}),
	)
	for _, key := range order {
		g := groups[key]
		scatter.AddSeries(g.name, g.data,
			charts.WithItemStyleOpts(opts.ItemStyle{Color: g.color}),
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}),
		)
	}

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("display: render html: %w", err)
	}
	return nil
}
