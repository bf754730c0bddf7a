// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package shows

import (
	"bytes"
	"image/color"
	"strconv"
	"strings"

	rdiplot "github.com/rditech/rdi-bench/plot"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgsvg"
)

type exportLine struct {
	Label    string
	Color    string
	Segments []plotter.XYs
}

type exportAxes struct {
	Title, XLabel, YLabel string
	X, Y                  rdiplot.Domain
	XTicks, YTicks        int
}

func exportSVG(axes exportAxes, lines []exportLine) ([]byte, error) {
	p, err := plot.New()
	if err != nil {
		return nil, err
	}
	p.BackgroundColor = color.Transparent
	p.Title.Text = axes.Title
	p.X.Label.Text = axes.XLabel
	p.Y.Label.Text = axes.YLabel

	for i, line := range lines {
		c := parseColor(line.Color, i)
		var first *plotter.Line
		for _, seg := range line.Segments {
			l, err := plotter.NewLine(seg)
			if err != nil {
				return nil, err
			}
			l.LineStyle = plotter.DefaultLineStyle
			l.Color = c
			l.Width = vg.Points(2)
			p.Add(l)
			if first == nil {
				first = l
			}
		}
		if first != nil {
			p.Legend.Add(line.Label, first)
		}
	}

	// fixed after Add, which widens the axes to the data
	p.X.Min, p.X.Max = axes.X.Min, axes.X.Max
	p.Y.Min, p.Y.Max = axes.Y.Min, axes.Y.Max
	p.X.Tick.Marker = rdiplot.EvenTicks{N: axes.XTicks}
	p.Y.Tick.Marker = rdiplot.EvenTicks{N: axes.YTicks}

	svg := vgsvg.New(6*vg.Inch, 2.5*vg.Inch)
	c := draw.New(svg)
	p.Draw(c)
	buf := &bytes.Buffer{}
	if _, err := svg.WriteTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// parseColor reads "#rgb" or "#rrggbb", falling back to the i-th plotutil
// color.
func parseColor(hex string, i int) color.Color {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		if v, err := strconv.ParseUint(hex, 16, 32); err == nil {
			return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
		}
	}
	return plotutil.Color(i)
}
