// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package live

import (
	"fmt"
	"io/ioutil"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	MultiLineChart = "multiline"
	LinearChart    = "linear"
)

type SeriesConfig struct {
	ID     string `yaml:"id"`
	Label  string `yaml:"label"`
	Source string `yaml:"source"`
	Color  string `yaml:"color"`
}

type ChartConfig struct {
	ID     string  `yaml:"id"`
	Kind   string  `yaml:"kind"`
	Title  string  `yaml:"title"`
	Unit   string  `yaml:"unit"`
	Height float64 `yaml:"height"`

	// value axis; a missing or degenerate range falls back to [0, 1] for
	// multiline charts and to auto-fit for linear ones
	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`

	// multiline
	MaxPoints int            `yaml:"max_points"`
	Series    []SeriesConfig `yaml:"series"`

	// linear
	K      string  `yaml:"k"`
	M      string  `yaml:"m"`
	XMin   float64 `yaml:"x_min"`
	XMax   float64 `yaml:"x_max"`
	Points int     `yaml:"points"`
	Color  string  `yaml:"color"`
}

type Config struct {
	Backend      string        `yaml:"backend"`
	PollInterval string        `yaml:"poll_interval"`
	Overlap      string        `yaml:"overlap"`
	FramePeriod  string        `yaml:"frame_period"`
	Namespace    string        `yaml:"namespace"`
	RedisAddr    string        `yaml:"redis_addr"`
	Port         string        `yaml:"port"`
	Charts       []ChartConfig `yaml:"charts"`
}

func float(v float64) *float64 {
	return &v
}

// DefaultConfig is the stock bench dashboard.
func DefaultConfig() *Config {
	return &Config{
		Backend:      "http://localhost:8000",
		PollInterval: "50ms",
		Overlap:      string(OverlapSkip),
		FramePeriod:  "50ms",
		Namespace:    "bench",
		Port:         "8080",
		Charts: []ChartConfig{
			{
				ID:        "pwa-currents",
				Kind:      MultiLineChart,
				Title:     "PWA Currents",
				Unit:      "A",
				Min:       float(0),
				Max:       float(100),
				MaxPoints: 400,
				Series: []SeriesConfig{
					{ID: "c1", Label: "Channel 1", Source: "pwa.channel1.current", Color: "#3b82f6"},
					{ID: "c2", Label: "Channel 2", Source: "pwa.channel2.current", Color: "#ef4444"},
					{ID: "c3", Label: "Channel 3", Source: "pwa.channel3.current", Color: "#22c55e"},
					{ID: "c4", Label: "Channel 4", Source: "pwa.channel4.current", Color: "#a855f7"},
				},
			},
			{
				ID:        "arduino-voltages",
				Kind:      MultiLineChart,
				Title:     "Arduino Voltages",
				Unit:      "V",
				Min:       float(2),
				Max:       float(3),
				MaxPoints: 400,
				Series: []SeriesConfig{
					{ID: "v1", Label: "Channel 1", Source: "arduino.channel1.voltage", Color: "#3b82f6"},
					{ID: "v2", Label: "Channel 2", Source: "arduino.channel2.voltage", Color: "#ef4444"},
				},
			},
			{
				ID:     "calibration",
				Kind:   LinearChart,
				Title:  "Linear regression",
				Unit:   "V",
				K:      "arduino.calibration.k",
				M:      "arduino.calibration.m",
				XMin:   0,
				XMax:   100,
				Min:    float(2.25),
				Max:    float(2.55),
				Points: 200,
				Color:  "#22c55e",
			},
		},
	}
}

// LoadConfig reads a YAML file over the defaults. Charts listed in the
// file replace the default charts.
func LoadConfig(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c := DefaultConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Interval() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil || d <= 0 {
		return DefaultPollInterval
	}
	return d
}

func (c *Config) Frame() time.Duration {
	d, err := time.ParseDuration(c.FramePeriod)
	if err != nil || d <= 0 {
		return 50 * time.Millisecond
	} else if d < 10*time.Millisecond {
		return 10 * time.Millisecond
	}
	return d
}

// Validate checks that every chart is of a known kind and that all of its
// sources resolve.
func (c *Config) Validate() error {
	if _, err := ParseOverlap(c.Overlap); err != nil {
		return err
	}
	if c.PollInterval != "" {
		if _, err := time.ParseDuration(c.PollInterval); err != nil {
			return fmt.Errorf("poll_interval: %w", err)
		}
	}

	ids := make(map[string]bool)
	for i, chart := range c.Charts {
		if chart.ID == "" {
			return fmt.Errorf("chart %d: missing id", i)
		}
		if ids[chart.ID] {
			return fmt.Errorf("chart %q: duplicate id", chart.ID)
		}
		ids[chart.ID] = true

		switch chart.Kind {
		case MultiLineChart:
			if len(chart.Series) == 0 {
				return fmt.Errorf("chart %q: no series", chart.ID)
			}
			for _, s := range chart.Series {
				if _, err := Source(s.Source); err != nil {
					return fmt.Errorf("chart %q: %w", chart.ID, err)
				}
			}
		case LinearChart:
			for _, path := range []string{chart.K, chart.M} {
				if _, err := Source(path); err != nil {
					return fmt.Errorf("chart %q: %w", chart.ID, err)
				}
			}
		default:
			return fmt.Errorf("chart %q: unknown kind %q", chart.ID, chart.Kind)
		}
	}
	return nil
}
