// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package sim

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rditech/rdi-bench/backend"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestToggleIsPerSide(t *testing.T) {
	s := New()

	rec := post(t, s, "/api/psu/upper/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var state backend.PsuState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.True(t, state.IsOn)

	assert.True(t, s.Psu(backend.Upper).IsOn)
	assert.False(t, s.Psu(backend.Lower).IsOn)

	rec = post(t, s, "/api/psu/middle/toggle", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetpointsAreClamped(t *testing.T) {
	s := New()

	rec := post(t, s, "/api/psu/lower/set/voltage", `{"setpoint": 120}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var sp backend.Setpoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sp))
	assert.Equal(t, 70.0, sp.Setpoint)

	rec = post(t, s, "/api/psu/lower/set/current", `{"setpoint": 12.5}`)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sp))
	assert.Equal(t, 12.5, sp.Setpoint)
	assert.Equal(t, Psu{Voltage: 70, Current: 12.5}, s.Psu(backend.Lower))

	rec = post(t, s, "/api/psu/lower/set/current", `nope`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSnapshotFollowsSupplies(t *testing.T) {
	s := New()
	post(t, s, "/api/psu/upper/set/voltage", `{"setpoint": 12}`)
	post(t, s, "/api/psu/upper/set/current", `{"setpoint": 50}`)
	post(t, s, "/api/psu/upper/toggle", "")

	snap := s.Snapshot()
	ch1 := snap["pwa"].(map[string]interface{})["channel1"].(map[string]interface{})
	assert.Equal(t, 12.0, ch1["voltage"])
	assert.Equal(t, 50.0, ch1["current"])

	arduino := snap["arduino"].(map[string]interface{})
	volts := arduino["channels"].(map[string]interface{})["channel1"].(map[string]interface{})["voltage"].(float64)
	assert.InDelta(t, 2.4, volts, 0.005)
	assert.Equal(t, "", arduino["calibration"].(map[string]interface{})["k"])
}

func TestGlitchInjection(t *testing.T) {
	s := New()
	s.GlitchEvery = 2

	current := func() float64 {
		snap := s.Snapshot()
		return snap["pwa"].(map[string]interface{})["channel1"].(map[string]interface{})["current"].(float64)
	}
	assert.Equal(t, 0.0, current())
	assert.Equal(t, float64(GlitchCurrent), current())
	assert.Equal(t, 0.0, current())
}

func TestCalibrationFitsSensor(t *testing.T) {
	s := New()
	post(t, s, "/api/psu/upper/set/voltage", `{"setpoint": 5}`)

	rec := post(t, s, "/api/calibrate", `{"saveToFile": false}`)
	require.Equal(t, http.StatusOK, rec.Code)

	cal := s.Calibration()
	require.True(t, cal.Valid)
	assert.InDelta(t, sensorGain, cal.K, 2e-4)
	assert.InDelta(t, sensorOffset, cal.M, 5e-3)
	assert.Equal(t, 1, s.CalibrationCount())

	// the sweep leaves the supply as it found it
	assert.Equal(t, Psu{Voltage: 5}, s.Psu(backend.Upper))

	post(t, s, "/api/psu/upper/set/current", `{"setpoint": 40}`)
	post(t, s, "/api/psu/upper/toggle", "")
	snap := s.Snapshot()
	ch := snap["arduino"].(map[string]interface{})["channels"].(map[string]interface{})["channel1"].(map[string]interface{})
	assert.InDelta(t, 40, ch["current"].(float64), 2)
}

func TestSnapshotStream(t *testing.T) {
	s := New()
	s.PushPeriod = 5 * time.Millisecond
	srv := httptest.NewServer(s)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/websocket/snapshot"
	c, err := websocket.Dial(url, "", srv.URL)
	require.NoError(t, err)
	defer c.Close()

	var snap map[string]interface{}
	require.NoError(t, websocket.JSON.Receive(c, &snap))
	assert.Contains(t, snap, "pwa")
	assert.Contains(t, snap, "arduino")
}
