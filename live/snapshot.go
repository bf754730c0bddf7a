// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package live

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	rdiplot "github.com/rditech/rdi-bench/plot"
)

// GlitchCurrent is the analyzer current above which a snapshot is taken to
// be a transient sensor fault.
const GlitchCurrent = 1000

// Reading is an optional instrument value. The backend sends numbers,
// numeric strings, "" or null; anything that is not a finite number
// decodes as missing.
type Reading struct {
	Value float64
	Valid bool
}

func Valid(v float64) Reading {
	return Reading{Value: v, Valid: true}
}

func (r *Reading) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*r = Reading{}
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	f, ok := rdiplot.ToFinite(v)
	*r = Reading{Value: f, Valid: ok}
	return nil
}

func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

func (r Reading) Float() (float64, bool) {
	return r.Value, r.Valid
}

// Format renders the reading with three decimals, or a dash when missing.
func (r Reading) Format() string {
	if !r.Valid {
		return "-"
	}
	return strconv.FormatFloat(r.Value, 'f', 3, 64)
}

type Channel struct {
	Voltage Reading `json:"voltage"`
	Current Reading `json:"current"`
}

type Analyzer struct {
	Channel1 *Channel `json:"channel1,omitempty"`
	Channel2 *Channel `json:"channel2,omitempty"`
	Channel3 *Channel `json:"channel3,omitempty"`
	Channel4 *Channel `json:"channel4,omitempty"`
}

func (a *Analyzer) Channels() []*Channel {
	if a == nil {
		return make([]*Channel, 4)
	}
	return []*Channel{a.Channel1, a.Channel2, a.Channel3, a.Channel4}
}

type ArduinoChannels struct {
	Channel1 *Channel `json:"channel1,omitempty"`
	Channel2 *Channel `json:"channel2,omitempty"`
}

func (a *ArduinoChannels) Channels() []*Channel {
	if a == nil {
		return make([]*Channel, 2)
	}
	return []*Channel{a.Channel1, a.Channel2}
}

type Calibration struct {
	K Reading `json:"k"`
	M Reading `json:"m"`
}

type Arduino struct {
	Channels    *ArduinoChannels `json:"channels,omitempty"`
	Calibration *Calibration     `json:"calibration,omitempty"`
}

// Snapshot is one poll worth of instrument state. Groups the backend did
// not send are nil.
type Snapshot struct {
	Time    Reading   `json:"time"`
	PWA     *Analyzer `json:"pwa,omitempty"`
	Arduino *Arduino  `json:"arduino,omitempty"`
}

// InitialSnapshot is what the dashboard shows before the first poll lands.
func InitialSnapshot() Snapshot {
	zero := func() *Channel { return &Channel{Voltage: Valid(0), Current: Valid(0)} }
	sensor := func() *Channel { return &Channel{Voltage: Valid(0)} }
	return Snapshot{
		PWA: &Analyzer{zero(), zero(), zero(), zero()},
		Arduino: &Arduino{
			Channels:    &ArduinoChannels{sensor(), sensor()},
			Calibration: &Calibration{},
		},
	}
}

// Implausible reports an analyzer channel current above GlitchCurrent.
func (s *Snapshot) Implausible() bool {
	if s == nil {
		return false
	}
	for _, ch := range s.PWA.Channels() {
		if ch != nil && ch.Current.Valid && ch.Current.Value > GlitchCurrent {
			return true
		}
	}
	return false
}

// Merge returns s updated with everything next carries. Analyzer channels
// are merged one by one, Arduino channels and calibration as groups.
func (s Snapshot) Merge(next *Snapshot) Snapshot {
	if next == nil {
		return s
	}
	out := s
	out.Time = next.Time

	if next.PWA != nil {
		pwa := Analyzer{}
		if s.PWA != nil {
			pwa = *s.PWA
		}
		if next.PWA.Channel1 != nil {
			pwa.Channel1 = next.PWA.Channel1
		}
		if next.PWA.Channel2 != nil {
			pwa.Channel2 = next.PWA.Channel2
		}
		if next.PWA.Channel3 != nil {
			pwa.Channel3 = next.PWA.Channel3
		}
		if next.PWA.Channel4 != nil {
			pwa.Channel4 = next.PWA.Channel4
		}
		out.PWA = &pwa
	}

	if next.Arduino != nil {
		arduino := Arduino{}
		if s.Arduino != nil {
			arduino = *s.Arduino
		}
		if next.Arduino.Channels != nil {
			arduino.Channels = next.Arduino.Channels
		}
		if next.Arduino.Calibration != nil {
			arduino.Calibration = next.Arduino.Calibration
		}
		out.Arduino = &arduino
	}

	return out
}

// Producer extracts one reading from a snapshot.
type Producer func(*Snapshot) Reading

// Source resolves a dotted path such as "pwa.channel1.current",
// "arduino.channel2.voltage" or "arduino.calibration.k".
func Source(path string) (Producer, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(path)), ".")
	if len(parts) == 4 && parts[0] == "arduino" && parts[1] == "channels" {
		parts = append(parts[:1], parts[2:]...)
	}

	bad := fmt.Errorf("unknown source %q", path)
	switch {
	case len(parts) == 1 && parts[0] == "time":
		return func(s *Snapshot) Reading { return s.Time }, nil

	case len(parts) == 3 && parts[0] == "arduino" && parts[1] == "calibration":
		var pick func(*Calibration) Reading
		switch parts[2] {
		case "k":
			pick = func(c *Calibration) Reading { return c.K }
		case "m":
			pick = func(c *Calibration) Reading { return c.M }
		default:
			return nil, bad
		}
		return func(s *Snapshot) Reading {
			if s.Arduino == nil || s.Arduino.Calibration == nil {
				return Reading{}
			}
			return pick(s.Arduino.Calibration)
		}, nil

	case len(parts) == 3:
		quantity, err := channelQuantity(parts[2])
		if err != nil {
			return nil, bad
		}
		var channels func(*Snapshot) []*Channel
		switch parts[0] {
		case "pwa":
			channels = func(s *Snapshot) []*Channel { return s.PWA.Channels() }
		case "arduino":
			channels = func(s *Snapshot) []*Channel {
				if s.Arduino == nil {
					return make([]*Channel, 2)
				}
				return s.Arduino.Channels.Channels()
			}
		default:
			return nil, bad
		}
		n, err := strconv.Atoi(strings.TrimPrefix(parts[1], "channel"))
		if err != nil || !strings.HasPrefix(parts[1], "channel") || n < 1 || n > len(channels(&Snapshot{})) {
			return nil, bad
		}
		return func(s *Snapshot) Reading {
			ch := channels(s)[n-1]
			if ch == nil {
				return Reading{}
			}
			return quantity(ch)
		}, nil
	}

	return nil, bad
}

func channelQuantity(name string) (func(*Channel) Reading, error) {
	switch name {
	case "voltage":
		return func(c *Channel) Reading { return c.Voltage }, nil
	case "current":
		return func(c *Channel) Reading { return c.Current }, nil
	}
	return nil, fmt.Errorf("unknown quantity %q", name)
}
