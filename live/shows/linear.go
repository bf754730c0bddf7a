// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package shows

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/rditech/rdi-bench/live/message"
	rdiplot "github.com/rditech/rdi-bench/plot"

	svg "github.com/ajstarks/svgo"
	"gonum.org/v1/plot/plotter"
)

const (
	DefaultLinearPoints = 200

	waitingForData = "Waiting for data..."
	invalidCoeffs  = "k/m not valid"
)

// LinearSample carries the raw calibration coefficients of y = k*x + m.
type LinearSample struct {
	K, M interface{}
}

// Linear plots y = k*x + m over [XMin, XMax]. The value axis is [YMin,
// YMax] when that range is finite and non-degenerate, otherwise it is
// fitted to the line with 5% padding.
type Linear struct {
	Title       string
	Unit        string
	Color       string
	XMin, XMax  float64
	YMin, YMax  float64
	Points      int
	Height      float64
	FramePeriod time.Duration

	k, m    float64
	valid   bool
	sampled bool
	dirty   bool
	ys      []float64

	frame        *message.Msg
	frameCount   uint64
	frameExpired bool

	sync.RWMutex
}

func (s *Linear) Frame() (*message.Msg, uint64) {
	s.RLock()
	defer s.RUnlock()

	return s.frame, s.frameCount
}

func (s *Linear) Execute(cmd *message.Cmd) error {
	s.Lock()
	defer s.Unlock()

	switch cmd.Command {
	case "set params":
		for param, value := range cmd.Metadata {
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				continue
			}
			switch param {
			case "xmin":
				s.XMin = f
			case "xmax":
				s.XMax = f
			case "ymin":
				s.YMin = f
			case "ymax":
				s.YMax = f
			case "points":
				if math.IsNaN(f) || math.IsInf(f, 0) {
					continue
				}
				s.Points = int(math.Max(2, math.Floor(f)))
			case "height":
				if f > 0 {
					s.Height = f
				}
			default:
				continue
			}
			s.dirty = true
		}
		if s.dirty && s.sampled {
			s.compute()
		}
	}

	return nil
}

func (s *Linear) AddSample(vi interface{}) {
	v, ok := vi.(*LinearSample)
	if !ok {
		return
	}

	s.Lock()
	defer s.Unlock()

	k, kOk := rdiplot.ToFinite(v.K)
	m, mOk := rdiplot.ToFinite(v.M)
	valid := kOk && mOk
	if !valid {
		k, m = 0, 0
	}
	if s.sampled && !s.dirty && valid == s.valid && k == s.k && m == s.m {
		return
	}

	s.k, s.m, s.valid = k, m, valid
	s.sampled = true
	s.compute()

	if s.frameExpired {
		s.frameExpired = false
		go s.updateFrame(true)
	}
}

// points is the sample count: the default when unset, never fewer than two.
func (s *Linear) points() int {
	switch {
	case s.Points == 0:
		return DefaultLinearPoints
	case s.Points < 2:
		return 2
	}
	return s.Points
}

func (s *Linear) compute() {
	s.dirty = false
	if !s.valid {
		s.ys = nil
		return
	}

	n := s.points()
	s.ys = make([]float64, n)
	for i := range s.ys {
		s.ys[i] = s.k*s.x(i, n) + s.m
	}
}

func (s *Linear) x(i, n int) float64 {
	return s.XMin + float64(i)*(s.XMax-s.XMin)/float64(n-1)
}

// Samples returns the computed points of the line. Both are empty when the
// coefficients are not valid.
func (s *Linear) Samples() (xs, ys []float64) {
	s.RLock()
	defer s.RUnlock()

	n := len(s.ys)
	xs = make([]float64, n)
	for i := range xs {
		xs[i] = s.x(i, n)
	}
	return xs, append([]float64(nil), s.ys...)
}

// Coefficients is the annotation shown with the line.
func (s *Linear) Coefficients() string {
	s.RLock()
	defer s.RUnlock()

	return s.coefficients()
}

func (s *Linear) coefficients() string {
	if !s.valid {
		return invalidCoeffs
	}
	return fmt.Sprintf("k=%.4f m=%.4f", s.k, s.m)
}

func (s *Linear) domain() rdiplot.Domain {
	if !math.IsNaN(s.YMin) && !math.IsInf(s.YMin, 0) &&
		!math.IsNaN(s.YMax) && !math.IsInf(s.YMax, 0) && s.YMin != s.YMax {
		return rdiplot.Domain{Min: s.YMin, Max: s.YMax}
	}
	return rdiplot.FitDomain(s.ys, 0.05)
}

func (s *Linear) mapper() rdiplot.Mapper {
	return rdiplot.Mapper{
		Viewport: rdiplot.DefaultViewport(s.Height),
		Domain:   s.domain(),
	}
}

// SVG renders the chart as it stands.
func (s *Linear) SVG() []byte {
	s.RLock()
	defer s.RUnlock()

	return s.render()
}

func (s *Linear) render() []byte {
	m := s.mapper()

	buf := &bytes.Buffer{}
	canvas := svg.New(buf)
	startChart(canvas, m.Viewport, s.Title)
	drawValueAxis(canvas, m, rdiplot.ValueTicks)
	drawInputAxis(canvas, m, s.XMin, s.XMax, rdiplot.InputTicks)

	if len(s.ys) < 2 {
		drawPlaceholder(canvas, m.Viewport, waitingForData)
	} else {
		drawPolyline(canvas, rdiplot.LinePoints(s.ys, m), s.Color, seriesOpacity[0])
	}
	if s.sampled {
		canvas.Text(px(m.PadLeft), 12, s.coefficients(), "font-size:10px;fill:currentColor")
	}

	canvas.End()
	return buf.Bytes()
}

func (s *Linear) updateFrame(doLock bool) {
	if doLock {
		s.Lock()
		defer s.Unlock()
	}

	d := s.domain()
	s.frame = message.NewMsg(message.ShowFrame)
	s.frame.Payload = s.render()
	s.frame.Metadata["show type"] = "Linear"
	s.frame.Metadata["title"] = s.Title
	s.frame.Metadata["unit"] = s.Unit
	s.frame.Metadata["coefficients"] = s.coefficients()
	s.frame.Metadata["xmin"] = strconv.FormatFloat(s.XMin, 'g', 4, 64)
	s.frame.Metadata["xmax"] = strconv.FormatFloat(s.XMax, 'g', 4, 64)
	s.frame.Metadata["ymin"] = strconv.FormatFloat(d.Min, 'g', 4, 64)
	s.frame.Metadata["ymax"] = strconv.FormatFloat(d.Max, 'g', 4, 64)
	s.frame.Metadata["points"] = strconv.Itoa(s.points())

	s.frameCount++

	go func() {
		time.Sleep(s.FramePeriod)
		s.Lock()
		defer s.Unlock()
		s.frameExpired = true
	}()
}

func (s *Linear) UpdateFrame() {
	s.updateFrame(true)
}

func (s *Linear) UpdateFrameCount() {
	s.Lock()
	defer s.Unlock()
	s.frameCount++
}

func (s *Linear) Export() ([]byte, error) {
	s.RLock()
	defer s.RUnlock()

	line := exportLine{Label: s.coefficients(), Color: s.Color}
	if len(s.ys) > 0 {
		xys := make(plotter.XYs, len(s.ys))
		for i, y := range s.ys {
			xys[i] = plotter.XY{X: s.x(i, len(s.ys)), Y: y}
		}
		line.Segments = []plotter.XYs{xys}
	}

	x := rdiplot.Domain{Min: s.XMin, Max: s.XMax}
	if s.XMin == s.XMax {
		x = rdiplot.UnitDomain
	}
	return exportSVG(exportAxes{
		Title:  s.Title,
		XLabel: "x",
		YLabel: s.Unit,
		X:      x,
		Y:      s.domain(),
		XTicks: rdiplot.InputTicks,
		YTicks: rdiplot.ValueTicks,
	}, []exportLine{line})
}
