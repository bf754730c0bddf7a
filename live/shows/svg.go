// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package shows

import (
	"fmt"
	"html"
	"math"
	"strings"

	rdiplot "github.com/rditech/rdi-bench/plot"

	svg "github.com/ajstarks/svgo"
)

var seriesOpacity = []string{"0.95", "0.70", "0.50", "0.35", "0.25", "0.18"}

func px(v float64) int {
	return int(math.Round(v))
}

func startChart(canvas *svg.SVG, vp rdiplot.Viewport, title string) {
	w, h := px(vp.Width), px(vp.Height)
	canvas.Startview(w, h, 0, 0, w, h)
	if title != "" {
		canvas.Title(title)
	}
	canvas.Rect(px(vp.PadLeft), px(vp.PadTop), px(vp.InnerWidth()), px(vp.InnerHeight()),
		"fill:none;stroke:currentColor;stroke-opacity:0.25")
}

// drawValueAxis draws one gridline per tick across the inner area and
// labels it left of the frame.
func drawValueAxis(canvas *svg.SVG, m rdiplot.Mapper, count int) {
	left, right := px(m.PadLeft), px(m.Width-m.PadRight)
	for _, tick := range rdiplot.Ticks(m.Min, m.Max, count, m.Y) {
		y := px(tick.Pos)
		canvas.Line(left, y, right, y, "stroke:currentColor;stroke-opacity:0.10")
		canvas.Text(left-6, y+4, tick.Label(), "text-anchor:end;font-size:10px;fill:currentColor")
	}
}

// drawInputAxis labels the x axis below the frame.
func drawInputAxis(canvas *svg.SVG, m rdiplot.Mapper, min, max float64, count int) {
	y := px(m.Height - m.PadBottom + 14)
	pos := func(x float64) float64 { return m.XValue(x, min, max) }
	for _, tick := range rdiplot.Ticks(min, max, count, pos) {
		canvas.Text(px(tick.Pos), y, tick.Label(), "text-anchor:middle;font-size:10px;fill:currentColor")
	}
}

func drawPlaceholder(canvas *svg.SVG, vp rdiplot.Viewport, text string) {
	canvas.Text(px(vp.Width/2), px(vp.Height/2), text,
		"text-anchor:middle;font-size:12px;fill:currentColor;fill-opacity:0.6")
}

// drawPolyline writes the points directly since svgo only takes integer
// coordinates. A lone point draws nothing.
func drawPolyline(canvas *svg.SVG, points, color, opacity string) {
	if !strings.Contains(points, " ") {
		return
	}
	fmt.Fprintf(canvas.Writer,
		`<polyline points="%s" fill="none" stroke="%s" stroke-width="2" stroke-opacity="%s" stroke-linejoin="round" />`+"\n",
		points, html.EscapeString(color), opacity)
}
