// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package plot

import (
	"math"
	"strings"
)

// Domain is the closed value interval mapped onto a pixel axis.
type Domain struct {
	Min, Max float64
}

var UnitDomain = Domain{Min: 0, Max: 1}

// NewDomain returns [min, max], or the unit domain when the interval is
// degenerate or either bound is not finite.
func NewDomain(min, max float64) Domain {
	if !isFinite(min) || !isFinite(max) || min == max {
		return UnitDomain
	}
	return Domain{Min: min, Max: max}
}

// FitDomain spans the finite values of ys with a pad fraction of the range
// added on each side.
func FitDomain(ys []float64, pad float64) Domain {
	min := math.Inf(+1)
	max := math.Inf(-1)
	for _, y := range ys {
		if !isFinite(y) {
			continue
		}
		min = math.Min(min, y)
		max = math.Max(max, y)
	}
	if !isFinite(min) || !isFinite(max) || min == max {
		return UnitDomain
	}
	margin := (max - min) * pad
	return Domain{Min: min - margin, Max: max + margin}
}

func (d Domain) Span() float64 {
	return d.Max - d.Min
}

// Viewport is the pixel geometry of a chart.
type Viewport struct {
	Width, Height                        float64
	PadLeft, PadRight, PadTop, PadBottom float64
}

func DefaultViewport(height float64) Viewport {
	if height <= 0 {
		height = 160
	}
	return Viewport{
		Width:     600,
		Height:    height,
		PadLeft:   54,
		PadRight:  12,
		PadTop:    18,
		PadBottom: 22,
	}
}

func (v Viewport) InnerWidth() float64 {
	return v.Width - v.PadLeft - v.PadRight
}

func (v Viewport) InnerHeight() float64 {
	return v.Height - v.PadTop - v.PadBottom
}

// Mapper converts sample indices and values into pixel coordinates.
type Mapper struct {
	Viewport
	Domain
}

// X places index i of n evenly across the inner width. With fewer than two
// samples everything sits on the left boundary.
func (m Mapper) X(i, n int) float64 {
	if n < 2 {
		return m.PadLeft
	}
	xn := float64(i) / float64(n-1)
	return m.PadLeft + xn*m.InnerWidth()
}

// XValue maps x from [xMin, xMax] across the inner width.
func (m Mapper) XValue(x, xMin, xMax float64) float64 {
	if !isFinite(xMin) || !isFinite(xMax) || xMin == xMax {
		return m.PadLeft
	}
	xn := (x - xMin) / (xMax - xMin)
	return m.PadLeft + xn*m.InnerWidth()
}

// Y maps a value onto the inner height. Pixel y grows downwards.
func (m Mapper) Y(y float64) float64 {
	d := m.Domain
	if !isFinite(d.Min) || !isFinite(d.Max) || d.Min == d.Max {
		d = UnitDomain
	}
	yn := (y - d.Min) / d.Span()
	return m.PadTop + (1-yn)*m.InnerHeight()
}

// Polyline joins the points of series id in index order as "x,y" pairs.
// Missing samples are skipped; the remaining points keep the x position of
// their own index. Fewer than two rows give "".
func Polyline(rows []Row, id string, m Mapper) string {
	n := len(rows)
	if n < 2 {
		return ""
	}

	pts := make([]string, 0, n)
	for i, row := range rows {
		y, ok := row.Value(id)
		if !ok {
			continue
		}
		pts = append(pts, FormatCoord(m.X(i, n))+","+FormatCoord(m.Y(y)))
	}
	return strings.Join(pts, " ")
}

// LinePoints is Polyline for a plain slice of values.
func LinePoints(ys []float64, m Mapper) string {
	n := len(ys)
	if n < 2 {
		return ""
	}

	pts := make([]string, 0, n)
	for i, y := range ys {
		if !isFinite(y) {
			continue
		}
		pts = append(pts, FormatCoord(m.X(i, n))+","+FormatCoord(m.Y(y)))
	}
	return strings.Join(pts, " ")
}
