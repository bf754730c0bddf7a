// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package live

import (
	"strconv"

	"github.com/rditech/rdi-bench/backend"
)

type SetStringer interface {
	SetString(key, value string)
}

// Status is an ordered set of display strings.
type Status struct {
	Keys       []string
	StringData map[string]string
}

func (s *Status) SetString(key, value string) {
	if s.StringData == nil {
		s.StringData = make(map[string]string)
	}
	if _, ok := s.StringData[key]; !ok {
		s.Keys = append(s.Keys, key)
	}
	s.StringData[key] = value
}

// Readouts fills out with the numeric readouts of a snapshot.
func Readouts(out SetStringer, snap *Snapshot) {
	for i, ch := range snap.PWA.Channels() {
		name := "PWA Channel " + strconv.Itoa(i+1)
		var c Channel
		if ch != nil {
			c = *ch
		}
		out.SetString(name+" Voltage", c.Voltage.Format()+" V")
		out.SetString(name+" Current", c.Current.Format()+" A")
	}

	var arduino Arduino
	if snap.Arduino != nil {
		arduino = *snap.Arduino
	}
	for i, ch := range arduino.Channels.Channels() {
		name := "Arduino Channel " + strconv.Itoa(i+1)
		var c Channel
		if ch != nil {
			c = *ch
		}
		out.SetString(name+" Voltage", c.Voltage.Format()+" V")
		out.SetString(name+" Current", c.Current.Format()+" A")
	}

	var cal Calibration
	if arduino.Calibration != nil {
		cal = *arduino.Calibration
	}
	out.SetString("Calibration k", cal.K.Format())
	out.SetString("Calibration m", cal.M.Format())
}

// PsuReadouts fills out with the saved setpoints and output state of each
// supply.
func PsuReadouts(out SetStringer, st *State) {
	for _, side := range backend.Sides {
		view := st.Psu[side]
		name := "PSU " + string(side)
		out.SetString(name+" Output", onOff(view.IsOn))
		out.SetString(name+" Voltage Setpoint", view.Voltage.Format()+" V")
		out.SetString(name+" Current Setpoint", view.Current.Format()+" A")
		out.SetString(name+" Busy", strconv.FormatBool(view.Busy))
	}
	out.SetString("PSU Error", ErrString(st.PsuErr))
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
