// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package live

import (
	"errors"
	"sync"

	"github.com/rditech/rdi-bench/backend"
)

var ErrBusy = errors.New("a command is already in flight")

type PsuView struct {
	IsOn    bool
	Voltage Reading
	Current Reading
	Busy    bool
}

// PsuPatch carries the fields a PSU response changed.
type PsuPatch struct {
	IsOn    *bool
	Voltage *float64
	Current *float64
}

type State struct {
	// Seq is the sequence number of the last applied snapshot.
	Seq      uint64
	Snapshot Snapshot
	PollErr  error

	Psu    map[backend.Side]PsuView
	PsuErr error

	Calibrating    bool
	CalibrationMsg string
	CalibrationErr error

	// Version increases with every change.
	Version uint64
}

// Store holds the dashboard state. All mutation goes through its methods
// and every change is signalled on Changes.
type Store struct {
	mu      sync.Mutex
	state   State
	lastSeq uint64
	closed  bool
	changes chan struct{}
}

func NewStore() *Store {
	s := &Store{changes: make(chan struct{}, 1)}
	s.state.Snapshot = InitialSnapshot()
	s.state.Psu = make(map[backend.Side]PsuView)
	for _, side := range backend.Sides {
		s.state.Psu[side] = PsuView{}
	}
	return s
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state
	st.Psu = make(map[backend.Side]PsuView, len(s.state.Psu))
	for side, view := range s.state.Psu {
		st.Psu[side] = view
	}
	return st
}

// Changes receives a value after one or more state changes.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

// Close stops the store from accepting further updates.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// ApplyPoll records the outcome of poll number seq. Results older than one
// already applied are discarded, as are implausible snapshots. A failed
// poll keeps the previous values and records the error; a good one clears
// it. It reports whether the state changed.
func (s *Store) ApplyPoll(seq uint64, snap *Snapshot, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || seq <= s.lastSeq {
		return false
	}
	s.lastSeq = seq

	if err != nil {
		s.state.PollErr = err
		s.changed()
		return true
	}
	if snap == nil || snap.Implausible() {
		return false
	}

	s.state.Snapshot = s.state.Snapshot.Merge(snap)
	s.state.Seq = seq
	s.state.PollErr = nil
	s.changed()
	return true
}

// BeginPsu marks a side busy. It returns false if the side already has a
// command in flight.
func (s *Store) BeginPsu(side backend.Side) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	view, ok := s.state.Psu[side]
	if s.closed || !ok || view.Busy {
		return false
	}
	view.Busy = true
	s.state.Psu[side] = view
	s.state.PsuErr = nil
	s.changed()
	return true
}

// ApplyPsu records a PSU response for one side and clears its busy flag.
// The other side is never touched.
func (s *Store) ApplyPsu(side backend.Side, patch PsuPatch, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	view, ok := s.state.Psu[side]
	if s.closed || !ok {
		return
	}
	view.Busy = false
	if err != nil {
		s.state.PsuErr = err
	} else {
		if patch.IsOn != nil {
			view.IsOn = *patch.IsOn
		}
		if patch.Voltage != nil {
			view.Voltage = Valid(*patch.Voltage)
		}
		if patch.Current != nil {
			view.Current = Valid(*patch.Current)
		}
	}
	s.state.Psu[side] = view
	s.changed()
}

func (s *Store) BeginCalibration() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.state.Calibrating {
		return false
	}
	s.state.Calibrating = true
	s.state.CalibrationMsg = ""
	s.state.CalibrationErr = nil
	s.changed()
	return true
}

func (s *Store) ApplyCalibration(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.state.Calibrating = false
	if err != nil {
		s.state.CalibrationErr = err
	} else {
		s.state.CalibrationMsg = "Triggered!"
	}
	s.changed()
}

// changed must be called with mu held.
func (s *Store) changed() {
	s.state.Version++
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// ErrString is the display form of an optional error.
func ErrString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
