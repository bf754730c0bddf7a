// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package plot

import (
	"strconv"

	"gonum.org/v1/plot"
)

const (
	ValueTicks = 5
	InputTicks = 6
)

// Tick is an axis reference value paired with its pixel position.
type Tick struct {
	Value float64
	Pos   float64
}

func (t Tick) Label() string {
	return formatFloatTick(t.Value)
}

// Ticks returns count evenly spaced values from min to max inclusive, each
// placed with pos.
func Ticks(min, max float64, count int, pos func(float64) float64) []Tick {
	if count < 2 {
		return []Tick{{Value: min, Pos: pos(min)}}
	}

	ticks := make([]Tick, 0, count)
	for i := 0; i < count; i++ {
		a := float64(i) / float64(count-1)
		v := min + a*(max-min)
		ticks = append(ticks, Tick{Value: v, Pos: pos(v)})
	}
	return ticks
}

// EvenTicks is a gonum plot.Ticker placing N labelled ticks evenly across
// the axis range, matching the live charts.
type EvenTicks struct {
	N int
}

func (t EvenTicks) Ticks(min, max float64) []plot.Tick {
	if t.N == 0 {
		t.N = ValueTicks
	}

	var ticks []plot.Tick
	for _, tick := range Ticks(min, max, t.N, func(float64) float64 { return 0 }) {
		ticks = append(ticks, plot.Tick{Value: tick.Value, Label: tick.Label()})
	}
	return ticks
}

func formatFloatTick(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
