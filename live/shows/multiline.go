// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package shows

import (
	"bytes"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rditech/rdi-bench/live/message"
	rdiplot "github.com/rditech/rdi-bench/plot"

	svg "github.com/ajstarks/svgo"
	"gonum.org/v1/plot/plotter"
)

const waitingForSamples = "Waiting for samples…"

type Series struct {
	ID    string
	Label string
	Color string
}

// MultiLineSample holds the raw value of every series at one tick. Values
// are converted with rdiplot.ToFinite.
type MultiLineSample struct {
	Values map[string]interface{}
}

// MultiLine is a rolling chart of several series sharing one value axis.
type MultiLine struct {
	Title       string
	Unit        string
	Series      []Series
	Domain      rdiplot.Domain
	MaxPoints   int
	Height      float64
	FramePeriod time.Duration

	buffer  *rdiplot.Buffer
	lastKey string
	keyed   bool

	frame        *message.Msg
	frameCount   uint64
	frameExpired bool

	sync.RWMutex
}

func (s *MultiLine) Frame() (*message.Msg, uint64) {
	s.RLock()
	defer s.RUnlock()

	return s.frame, s.frameCount
}

func (s *MultiLine) Execute(cmd *message.Cmd) error {
	s.Lock()
	defer s.Unlock()

	switch cmd.Command {
	case "set params":
		for param, value := range cmd.Metadata {
			switch param {
			case "min":
				min, err := strconv.ParseFloat(value, 64)
				if err == nil {
					s.Domain.Min = min
				}
			case "max":
				max, err := strconv.ParseFloat(value, 64)
				if err == nil {
					s.Domain.Max = max
				}
			case "maxpoints":
				maxPoints, err := strconv.ParseInt(value, 10, 64)
				if err == nil && maxPoints > 0 {
					s.MaxPoints = int(maxPoints)
					s.rows().SetMaxPoints(s.MaxPoints)
				}
			case "height":
				height, err := strconv.ParseFloat(value, 64)
				if err == nil && height > 0 {
					s.Height = height
				}
			}
		}
	}

	return nil
}

func (s *MultiLine) rows() *rdiplot.Buffer {
	if s.buffer == nil {
		s.buffer = rdiplot.NewBuffer(s.MaxPoints)
	}
	return s.buffer
}

// bufferedRows is safe under the read lock.
func (s *MultiLine) bufferedRows() []rdiplot.Row {
	if s.buffer == nil {
		return nil
	}
	return s.buffer.Rows()
}

// sampleKey identifies the values of a tick so repeated polls of an
// unchanged snapshot are not plotted twice.
func (s *MultiLine) sampleKey(row rdiplot.Row) string {
	parts := make([]string, len(s.Series))
	for i, series := range s.Series {
		if v, ok := row.Value(series.ID); ok {
			parts[i] = strconv.FormatFloat(v, 'f', 6, 64)
		} else {
			parts[i] = "null"
		}
	}
	return strings.Join(parts, "|")
}

func (s *MultiLine) AddSample(vi interface{}) {
	v, ok := vi.(*MultiLineSample)
	if !ok {
		return
	}

	s.Lock()
	defer s.Unlock()

	row := make(rdiplot.Row)
	for _, series := range s.Series {
		if f, ok := rdiplot.ToFinite(v.Values[series.ID]); ok {
			row[series.ID] = f
		}
	}

	key := s.sampleKey(row)
	if s.keyed && key == s.lastKey {
		return
	}
	s.lastKey = key
	s.keyed = true

	if !s.rows().Append(row) {
		return
	}

	if s.frameExpired {
		s.frameExpired = false
		go s.updateFrame(true)
	}
}

// Rows returns a copy of the buffered rows, oldest first.
func (s *MultiLine) Rows() []rdiplot.Row {
	s.RLock()
	defer s.RUnlock()

	return s.bufferedRows()
}

func (s *MultiLine) mapper() rdiplot.Mapper {
	return rdiplot.Mapper{
		Viewport: rdiplot.DefaultViewport(s.Height),
		Domain:   rdiplot.NewDomain(s.Domain.Min, s.Domain.Max),
	}
}

// SVG renders the chart as it stands.
func (s *MultiLine) SVG() []byte {
	s.RLock()
	defer s.RUnlock()

	return s.render()
}

func (s *MultiLine) render() []byte {
	m := s.mapper()
	rows := s.bufferedRows()

	buf := &bytes.Buffer{}
	canvas := svg.New(buf)
	startChart(canvas, m.Viewport, s.Title)
	drawValueAxis(canvas, m, rdiplot.ValueTicks)

	if len(rows) < 2 {
		drawPlaceholder(canvas, m.Viewport, waitingForSamples)
	} else {
		for i, series := range s.Series {
			points := rdiplot.Polyline(rows, series.ID, m)
			drawPolyline(canvas, points, series.Color, seriesOpacity[i%len(seriesOpacity)])
		}
	}

	legendX := px(m.Width - m.PadRight)
	for i := len(s.Series) - 1; i >= 0; i-- {
		series := s.Series[i]
		label := series.Label
		if label == "" {
			label = series.ID
		}
		canvas.Text(legendX, 12, label, "text-anchor:end;font-size:10px;fill:"+series.Color)
		legendX -= 80
	}

	canvas.End()
	return buf.Bytes()
}

func (s *MultiLine) updateFrame(doLock bool) {
	if doLock {
		s.Lock()
		defer s.Unlock()
	}

	d := s.mapper().Domain
	s.frame = message.NewMsg(message.ShowFrame)
	s.frame.Payload = s.render()
	s.frame.Metadata["show type"] = "Multi Line"
	s.frame.Metadata["title"] = s.Title
	s.frame.Metadata["unit"] = s.Unit
	s.frame.Metadata["min"] = strconv.FormatFloat(d.Min, 'g', 4, 64)
	s.frame.Metadata["max"] = strconv.FormatFloat(d.Max, 'g', 4, 64)
	maxPoints := s.rows().MaxPoints
	if maxPoints <= 0 {
		maxPoints = rdiplot.DefaultMaxPoints
	}
	s.frame.Metadata["maxpoints"] = strconv.Itoa(maxPoints)
	s.frame.Metadata["nsample"] = strconv.Itoa(s.rows().Len())

	s.frameCount++

	go func() {
		time.Sleep(s.FramePeriod)
		s.Lock()
		defer s.Unlock()
		s.frameExpired = true
	}()
}

func (s *MultiLine) UpdateFrame() {
	s.updateFrame(true)
}

func (s *MultiLine) UpdateFrameCount() {
	s.Lock()
	defer s.Unlock()
	s.frameCount++
}

// Export renders the buffered rows with gonum/plot. Missing samples break
// a series into separate segments.
func (s *MultiLine) Export() ([]byte, error) {
	s.RLock()
	defer s.RUnlock()

	rows := s.bufferedRows()
	var lines []exportLine
	for _, series := range s.Series {
		line := exportLine{Label: series.Label, Color: series.Color}
		if line.Label == "" {
			line.Label = series.ID
		}
		var seg plotter.XYs
		for i, row := range rows {
			y, ok := row.Value(series.ID)
			if !ok {
				if len(seg) > 0 {
					line.Segments = append(line.Segments, seg)
					seg = nil
				}
				continue
			}
			seg = append(seg, plotter.XY{X: float64(i), Y: y})
		}
		if len(seg) > 0 {
			line.Segments = append(line.Segments, seg)
		}
		lines = append(lines, line)
	}

	xMax := float64(len(rows) - 1)
	if xMax < 1 {
		xMax = 1
	}
	return exportSVG(exportAxes{
		Title:  s.Title,
		XLabel: "sample",
		YLabel: s.Unit,
		X:      rdiplot.Domain{Min: 0, Max: xMax},
		Y:      s.mapper().Domain,
		XTicks: rdiplot.InputTicks,
		YTicks: rdiplot.ValueTicks,
	}, lines)
}
