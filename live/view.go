// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package live

type PsuJSON struct {
	IsOn    bool    `json:"is_on"`
	Voltage Reading `json:"voltage"`
	Current Reading `json:"current"`
	Busy    bool    `json:"busy"`
}

// StateJSON is the wire form of State.
type StateJSON struct {
	Seq                uint64             `json:"seq"`
	Snapshot           Snapshot           `json:"snapshot"`
	Error              string             `json:"error,omitempty"`
	Psu                map[string]PsuJSON `json:"psu"`
	PsuError           string             `json:"psuError,omitempty"`
	Calibrating        bool               `json:"calibrating"`
	CalibrationMessage string             `json:"calibrationMessage,omitempty"`
	CalibrationError   string             `json:"calibrationError,omitempty"`
}

func (v PsuView) JSON() PsuJSON {
	return PsuJSON{IsOn: v.IsOn, Voltage: v.Voltage, Current: v.Current, Busy: v.Busy}
}

func (st State) JSON() StateJSON {
	out := StateJSON{
		Seq:                st.Seq,
		Snapshot:           st.Snapshot,
		Error:              ErrString(st.PollErr),
		Psu:                make(map[string]PsuJSON, len(st.Psu)),
		PsuError:           ErrString(st.PsuErr),
		Calibrating:        st.Calibrating,
		CalibrationMessage: st.CalibrationMsg,
		CalibrationError:   ErrString(st.CalibrationErr),
	}
	for side, view := range st.Psu {
		out.Psu[string(side)] = view.JSON()
	}
	return out
}
