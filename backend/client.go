// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

// Package backend talks to the instrument server that fronts the power
// supplies, the power analyzer and the Arduino sensor bridge.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"time"
)

// Side selects one of the two power supplies.
type Side string

const (
	Upper Side = "upper"
	Lower Side = "lower"
)

var Sides = []Side{Upper, Lower}

var ErrUnknownSide = errors.New("unknown power supply")

func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(s)) {
	case Upper:
		return Upper, nil
	case Lower:
		return Lower, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownSide, s)
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return e.Status
}

type PsuState struct {
	IsOn bool `json:"is_on"`
}

type Setpoint struct {
	Setpoint float64 `json:"setpoint"`
}

type CalibrationRequest struct {
	SaveToFile bool `json:"saveToFile"`
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Snapshot fetches the latest instrument snapshot and decodes it into v.
func (c *Client) Snapshot(ctx context.Context, v interface{}) error {
	if err := c.do(ctx, http.MethodGet, "api/data", nil, v); err != nil {
		return wrap("snapshot", err)
	}
	return nil
}

func (c *Client) PsuState(ctx context.Context, side Side) (PsuState, error) {
	return c.psuState(ctx, side, "state")
}

func (c *Client) Toggle(ctx context.Context, side Side) (PsuState, error) {
	return c.psuState(ctx, side, "toggle")
}

func (c *Client) SetVoltage(ctx context.Context, side Side, volts float64) (float64, error) {
	return c.setpoint(ctx, side, "voltage", volts)
}

func (c *Client) SetCurrent(ctx context.Context, side Side, amps float64) (float64, error) {
	return c.setpoint(ctx, side, "current", amps)
}

// Calibrate triggers a calibration sweep on the backend. The response body
// is returned undecoded.
func (c *Client) Calibrate(ctx context.Context, saveToFile bool) (json.RawMessage, error) {
	var ack json.RawMessage
	err := c.do(ctx, http.MethodPost, "api/calibrate", &CalibrationRequest{SaveToFile: saveToFile}, &ack)
	if err != nil {
		return nil, wrap("calibrate", err)
	}
	return ack, nil
}

func (c *Client) psuState(ctx context.Context, side Side, op string) (PsuState, error) {
	var state PsuState
	if _, err := ParseSide(string(side)); err != nil {
		return state, err
	}
	err := c.do(ctx, http.MethodPost, "api/psu/"+string(side)+"/"+op, nil, &state)
	if err != nil {
		return state, wrap(op+" "+string(side), err)
	}
	return state, nil
}

func (c *Client) setpoint(ctx context.Context, side Side, quantity string, value float64) (float64, error) {
	if _, err := ParseSide(string(side)); err != nil {
		return 0, err
	}
	var resp Setpoint
	err := c.do(ctx, http.MethodPost, "api/psu/"+string(side)+"/set/"+quantity, &Setpoint{Setpoint: value}, &resp)
	if err != nil {
		return 0, wrap("set "+quantity+" "+string(side), err)
	}
	return resp.Setpoint, nil
}

// wrap names the failed operation on transport and decode errors. Status
// errors are returned as is so they read "<status> <statusText>".
func wrap(op string, err error) error {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + path
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.url(path), reader)
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(ioutil.Discard, resp.Body)
		return &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
