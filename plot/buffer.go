// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package plot

const DefaultMaxPoints = 400

// Row is one tick worth of readings keyed by series id. A series that is
// absent from the map is missing for that tick.
type Row map[string]float64

func (r Row) Value(id string) (float64, bool) {
	v, ok := r[id]
	return v, ok
}

// Empty reports whether every series is missing.
func (r Row) Empty() bool {
	return len(r) == 0
}

// Buffer is a bounded, chronological window of rows. The oldest rows are
// evicted first once MaxPoints is reached.
type Buffer struct {
	MaxPoints int

	rows []Row
}

func NewBuffer(maxPoints int) *Buffer {
	return &Buffer{MaxPoints: maxPoints}
}

// Append adds a copy of row to the tail. Rows without a single finite
// reading are rejected and leave the buffer unchanged.
func (b *Buffer) Append(row Row) bool {
	frozen := make(Row, len(row))
	for id, v := range row {
		if isFinite(v) {
			frozen[id] = v
		}
	}
	if frozen.Empty() {
		return false
	}

	max := b.maxPoints()
	if len(b.rows) >= max {
		b.rows = append(b.rows[:0:0], b.rows[len(b.rows)-max+1:]...)
	}
	b.rows = append(b.rows, frozen)
	return true
}

// SetMaxPoints changes the capacity, dropping the oldest rows if needed.
func (b *Buffer) SetMaxPoints(n int) {
	b.MaxPoints = n
	max := b.maxPoints()
	if len(b.rows) > max {
		b.rows = append(b.rows[:0:0], b.rows[len(b.rows)-max:]...)
	}
}

func (b *Buffer) Len() int {
	return len(b.rows)
}

// Rows returns the retained rows oldest first. The rows must not be modified.
func (b *Buffer) Rows() []Row {
	out := make([]Row, len(b.rows))
	copy(out, b.rows)
	return out
}

// Last returns the newest row, or nil when the buffer is empty.
func (b *Buffer) Last() Row {
	if len(b.rows) == 0 {
		return nil
	}
	return b.rows[len(b.rows)-1]
}

func (b *Buffer) maxPoints() int {
	if b.MaxPoints <= 0 {
		return DefaultMaxPoints
	}
	return b.MaxPoints
}
