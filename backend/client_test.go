// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rditech/rdi-bench/backend"
	"github.com/rditech/rdi-bench/sim"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientAgainstSim(t *testing.T) {
	s := sim.New()
	srv := httptest.NewServer(s)
	defer srv.Close()

	ctx := context.Background()
	c := backend.NewClient(srv.URL + "/")

	state, err := c.PsuState(ctx, backend.Upper)
	require.NoError(t, err)
	assert.False(t, state.IsOn)

	state, err = c.Toggle(ctx, backend.Lower)
	require.NoError(t, err)
	assert.True(t, state.IsOn)
	assert.True(t, s.Psu(backend.Lower).IsOn)
	assert.False(t, s.Psu(backend.Upper).IsOn)

	v, err := c.SetVoltage(ctx, backend.Upper, 24)
	require.NoError(t, err)
	assert.Equal(t, 24.0, v)

	a, err := c.SetCurrent(ctx, backend.Upper, 1000)
	require.NoError(t, err)
	assert.Equal(t, 450.0, a)

	var snap map[string]interface{}
	require.NoError(t, c.Snapshot(ctx, &snap))
	assert.Contains(t, snap, "time")

	ack, err := c.Calibrate(ctx, true)
	require.NoError(t, err)
	assert.Contains(t, string(ack), `"done":true`)
}

func TestClientRequests(t *testing.T) {
	type request struct {
		method, path, contentType, body string
	}
	var got []request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := ioutil.ReadAll(r.Body)
		got = append(got, request{r.Method, r.URL.Path, r.Header.Get("Content-Type"), string(body)})
		switch r.URL.Path {
		case "/api/psu/lower/set/current":
			json.NewEncoder(w).Encode(backend.Setpoint{Setpoint: 3})
		default:
			w.Write([]byte(`{"is_on": true}`))
		}
	}))
	defer srv.Close()

	c := backend.NewClient(srv.URL)
	ctx := context.Background()

	_, err := c.SetCurrent(ctx, backend.Lower, 3)
	require.NoError(t, err)
	_, err = c.Toggle(ctx, backend.Upper)
	require.NoError(t, err)
	_, err = c.Calibrate(ctx, false)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, request{"POST", "/api/psu/lower/set/current", "application/json", `{"setpoint":3}`}, got[0])
	assert.Equal(t, request{"POST", "/api/psu/upper/toggle", "", ""}, got[1])
	assert.Equal(t, request{"POST", "/api/calibrate", "application/json", `{"saveToFile":false}`}, got[2])
}

func TestClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := backend.NewClient(srv.URL)
	_, err := c.Toggle(context.Background(), backend.Upper)
	require.Error(t, err)
	assert.Equal(t, "503 Service Unavailable", err.Error())

	var statusErr *backend.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
}

func TestClientTransportAndDecodeErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	c := backend.NewClient(srv.URL)

	var snap map[string]interface{}
	err := c.Snapshot(context.Background(), &snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot:")

	srv.Close()
	_, err = c.PsuState(context.Background(), backend.Lower)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state lower:")
}

func TestClientRejectsUnknownSide(t *testing.T) {
	c := backend.NewClient("http://127.0.0.1:1")
	_, err := c.Toggle(context.Background(), backend.Side("middle"))
	assert.True(t, errors.Is(err, backend.ErrUnknownSide))

	side, err := backend.ParseSide("LOWER")
	require.NoError(t, err)
	assert.Equal(t, backend.Lower, side)
}
