// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package live

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const snapshotJSON = `{
	"time": 1712345678.5,
	"pwa": {
		"channel1": {"voltage": 12.5, "current": "3.25"},
		"channel2": {"voltage": "", "current": null},
		"channel3": {"voltage": "abc", "current": true}
	},
	"arduino": {
		"channels": {
			"channel1": {"voltage": 2.41, "current": ""}
		},
		"calibration": {"k": "", "m": ""}
	}
}`

func TestSnapshotDecode(t *testing.T) {
	var snap Snapshot
	require.NoError(t, json.Unmarshal([]byte(snapshotJSON), &snap))

	assert.Equal(t, Valid(1712345678.5), snap.Time)
	assert.Equal(t, Channel{Voltage: Valid(12.5), Current: Valid(3.25)}, *snap.PWA.Channel1)
	assert.Equal(t, Channel{}, *snap.PWA.Channel2)
	assert.Equal(t, Channel{}, *snap.PWA.Channel3)
	assert.Nil(t, snap.PWA.Channel4)
	assert.Equal(t, Valid(2.41), snap.Arduino.Channels.Channel1.Voltage)
	assert.False(t, snap.Arduino.Calibration.K.Valid)
}

func TestReadingFormat(t *testing.T) {
	assert.Equal(t, "1.235", Valid(1.23456).Format())
	assert.Equal(t, "-", Reading{}.Format())

	buf, err := json.Marshal(struct{ A, B Reading }{Valid(2), Reading{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"A": 2, "B": null}`, string(buf))
}

func TestImplausible(t *testing.T) {
	snap := InitialSnapshot()
	assert.False(t, snap.Implausible())

	snap.PWA.Channel3 = &Channel{Current: Valid(1000)}
	assert.False(t, snap.Implausible())

	snap.PWA.Channel3 = &Channel{Current: Valid(1000.5)}
	assert.True(t, snap.Implausible())

	assert.False(t, (&Snapshot{}).Implausible())
}

func TestMerge(t *testing.T) {
	prev := InitialSnapshot()
	prev.Arduino.Calibration = &Calibration{K: Valid(0.003), M: Valid(2.25)}

	next := &Snapshot{
		Time: Valid(5),
		PWA:  &Analyzer{Channel2: &Channel{Voltage: Valid(24), Current: Valid(1)}},
	}
	merged := prev.Merge(next)

	assert.Equal(t, Valid(5), merged.Time)
	assert.Equal(t, Valid(24), merged.PWA.Channel2.Voltage)
	assert.Equal(t, Valid(0), merged.PWA.Channel1.Voltage)
	assert.Equal(t, Valid(0.003), merged.Arduino.Calibration.K)

	// the previous snapshot is left alone
	assert.Equal(t, Valid(0), prev.PWA.Channel2.Voltage)

	merged = merged.Merge(&Snapshot{Arduino: &Arduino{Calibration: &Calibration{}}})
	assert.False(t, merged.Arduino.Calibration.K.Valid)
	assert.NotNil(t, merged.Arduino.Channels)
}

func TestSource(t *testing.T) {
	var snap Snapshot
	require.NoError(t, json.Unmarshal([]byte(snapshotJSON), &snap))

	for path, want := range map[string]Reading{
		"pwa.channel1.current":              Valid(3.25),
		"PWA.Channel1.Voltage":              Valid(12.5),
		"pwa.channel4.current":              {},
		"arduino.channel1.voltage":          Valid(2.41),
		"arduino.channels.channel1.voltage": Valid(2.41),
		"arduino.channel2.voltage":          {},
		"arduino.calibration.k":             {},
		"time":                              Valid(1712345678.5),
	} {
		producer, err := Source(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, producer(&snap), path)
		assert.Equal(t, Reading{}, producer(&Snapshot{}), path)
	}

	for _, path := range []string{"", "pwa", "pwa.channel5.current", "pwa.channel1.power", "arduino.channel3.voltage", "arduino.calibration.q", "psu.channel1.current"} {
		_, err := Source(path)
		assert.Error(t, err, path)
	}
}
