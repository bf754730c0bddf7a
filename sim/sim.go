// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

// Package sim is a software stand-in for the instrument server: two power
// supplies, a four channel power analyzer and the Arduino current sensor
// bridge, served over the same REST surface as the real bench.
package sim

import (
	"encoding/json"
	"log"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/rditech/rdi-bench/backend"

	"github.com/gorilla/mux"
	"golang.org/x/net/websocket"
	"gonum.org/v1/gonum/stat"
)

const (
	adcMax  = 1023
	adcVref = 3.3

	// sensor transfer function of the simulated hall probe
	sensorOffset = 2.25
	sensorGain   = 0.003

	GlitchCurrent = 1500
)

type Limits struct {
	MaxVoltage float64
	MaxCurrent float64
}

type Psu struct {
	IsOn    bool
	Voltage float64
	Current float64
}

type Calibration struct {
	K, M  float64
	Valid bool
}

type Sweep struct {
	Start, Step, Max int
	Samples          int
}

type Server struct {
	Limits Limits
	Sweep  Sweep
	// GlitchEvery makes every Nth snapshot report an implausible analyzer
	// current. Zero disables glitches.
	GlitchEvery int
	// PushPeriod is the websocket snapshot period.
	PushPeriod time.Duration

	mu          sync.Mutex
	psu         map[backend.Side]*Psu
	calibration Calibration
	nSnapshot   int
	nCalibrate  int

	router *mux.Router
}

func New() *Server {
	s := &Server{
		Limits:     Limits{MaxVoltage: 70, MaxCurrent: 450},
		Sweep:      Sweep{Start: 0, Step: 10, Max: 100, Samples: 20},
		PushPeriod: 50 * time.Millisecond,
		psu: map[backend.Side]*Psu{
			backend.Upper: {},
			backend.Lower: {},
		},
	}

	r := mux.NewRouter()
	psu := r.PathPrefix("/api/psu/{which:upper|lower}").Subrouter()
	psu.HandleFunc("/state", s.handleState).Methods(http.MethodPost)
	psu.HandleFunc("/toggle", s.handleToggle).Methods(http.MethodPost)
	psu.HandleFunc("/set/{quantity:voltage|current}", s.handleSet).Methods(http.MethodPost)
	psu.HandleFunc("/get/{quantity:voltage|current}", s.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/api/data", s.handleData).Methods(http.MethodGet)
	r.HandleFunc("/api/calibrate", s.handleCalibrate).Methods(http.MethodPost)
	r.Handle("/websocket/snapshot", websocket.Handler(s.pushSnapshots))
	s.router = r

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Psu returns a copy of the given supply's state.
func (s *Server) Psu(side backend.Side) Psu {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.psu[side]
}

func (s *Server) Calibration() Calibration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calibration
}

func (s *Server) SetCalibration(k, m float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calibration = Calibration{K: k, M: m, Valid: true}
}

func (s *Server) CalibrationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nCalibrate
}

// Snapshot builds the next instrument snapshot in wire form.
func (s *Server) Snapshot() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nSnapshot++
	glitch := s.GlitchEvery > 0 && s.nSnapshot%s.GlitchEvery == 0
	return s.snapshot(glitch)
}

func (s *Server) snapshot(glitch bool) map[string]interface{} {
	pwa := make(map[string]interface{})
	for i := 1; i <= 4; i++ {
		pwa[channelName(i)] = map[string]interface{}{"voltage": 0.0, "current": 0.0}
	}
	for i, side := range backend.Sides {
		v, c := s.output(side)
		pwa[channelName(i+1)] = map[string]interface{}{"voltage": v, "current": c}
	}
	if glitch {
		pwa[channelName(1)].(map[string]interface{})["current"] = float64(GlitchCurrent)
	}

	channels := make(map[string]interface{})
	for i, side := range backend.Sides {
		_, c := s.output(side)
		volts := adcVolts(sensorCounts(c))
		var current interface{} = ""
		if s.calibration.Valid && s.calibration.K != 0 {
			current = (volts - s.calibration.M) / s.calibration.K
		}
		channels[channelName(i+1)] = map[string]interface{}{"voltage": volts, "current": current}
	}

	var k, m interface{} = "", ""
	if s.calibration.Valid {
		k, m = s.calibration.K, s.calibration.M
	}

	return map[string]interface{}{
		"time": float64(time.Now().UnixNano()) / 1e9,
		"pwa":  pwa,
		"arduino": map[string]interface{}{
			"channels":    channels,
			"calibration": map[string]interface{}{"k": k, "m": m},
		},
	}
}

// output is the voltage and current the analyzer sees on a supply.
func (s *Server) output(side backend.Side) (float64, float64) {
	p := s.psu[side]
	if !p.IsOn {
		return 0, 0
	}
	return p.Voltage, p.Current
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	side := backend.Side(mux.Vars(r)["which"])
	s.mu.Lock()
	state := backend.PsuState{IsOn: s.psu[side].IsOn}
	s.mu.Unlock()
	writeJSON(w, state)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	side := backend.Side(mux.Vars(r)["which"])
	s.mu.Lock()
	p := s.psu[side]
	p.IsOn = !p.IsOn
	state := backend.PsuState{IsOn: p.IsOn}
	s.mu.Unlock()
	log.Printf("sim: psu %v output on=%v", side, state.IsOn)
	writeJSON(w, state)
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	side := backend.Side(vars["which"])

	var req backend.Setpoint
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	s.mu.Lock()
	p := s.psu[side]
	var applied float64
	switch vars["quantity"] {
	case "voltage":
		p.Voltage = clamp(req.Setpoint, 0, s.Limits.MaxVoltage)
		applied = p.Voltage
	case "current":
		p.Current = clamp(req.Setpoint, 0, s.Limits.MaxCurrent)
		applied = p.Current
	}
	s.mu.Unlock()

	writeJSON(w, backend.Setpoint{Setpoint: applied})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	side := backend.Side(vars["which"])

	s.mu.Lock()
	p := *s.psu[side]
	s.mu.Unlock()

	switch vars["quantity"] {
	case "voltage":
		writeJSON(w, map[string]float64{"voltage": p.Voltage})
	case "current":
		writeJSON(w, map[string]float64{"current": p.Current})
	}
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Snapshot())
}

func (s *Server) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	var req backend.CalibrationRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
	}

	cal := s.calibrate()
	log.Printf("sim: calibrated k=%.6f m=%.6f (save=%v)", cal.K, cal.M, req.SaveToFile)
	writeJSON(w, map[string]interface{}{"done": true, "k": cal.K, "m": cal.M})
}

// calibrate sweeps the upper supply current and fits the Arduino voltage
// against the analyzer current.
func (s *Server) calibrate() Calibration {
	s.mu.Lock()
	defer s.mu.Unlock()

	upper := s.psu[backend.Upper]
	saved := *upper
	upper.Voltage = 1
	upper.Current = 0
	upper.IsOn = true

	var xs, ys []float64
	step := s.Sweep.Step
	if step <= 0 {
		step = 10
	}
	for current := s.Sweep.Start; current <= s.Sweep.Max; current += step {
		upper.Current = clamp(float64(current), 0, s.Limits.MaxCurrent)
		for i := 0; i < s.Sweep.Samples; i++ {
			_, c := s.output(backend.Upper)
			xs = append(xs, c)
			ys = append(ys, adcVolts(sensorCounts(c)))
		}
	}

	*upper = saved
	s.nCalibrate++
	if len(xs) < 2 {
		return s.calibration
	}

	m, k := stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(k) || math.IsNaN(m) {
		return s.calibration
	}
	s.calibration = Calibration{K: k, M: m, Valid: true}
	return s.calibration
}

func (s *Server) pushSnapshots(c *websocket.Conn) {
	log.Println("sim: serving snapshot stream to", c.Request().RemoteAddr)
	defer log.Println("sim: stopped snapshot stream to", c.Request().RemoteAddr)

	period := s.PushPeriod
	if period <= 0 {
		period = 50 * time.Millisecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for range ticker.C {
		c.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := websocket.JSON.Send(c, s.Snapshot()); err != nil {
			return
		}
	}
}

func sensorCounts(current float64) int {
	volts := sensorOffset + sensorGain*current
	counts := int(math.Round(volts / adcVref * adcMax))
	if counts < 0 {
		return 0
	}
	if counts > adcMax {
		return adcMax
	}
	return counts
}

func adcVolts(counts int) float64 {
	return float64(counts) / adcMax * adcVref
}

func channelName(i int) string {
	return "channel" + string(rune('0'+i))
}

func clamp(v, min, max float64) float64 {
	return math.Max(min, math.Min(max, v))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("sim: encode response:", err)
	}
}
