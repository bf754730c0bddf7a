// Copyright 2026 Radiation Detection and Imaging (RDI), LLC
// Use of this source code is governed by the BSD 3-clause
// license that can be found in the LICENSE file.

package plot

import (
	"math"
	"strconv"
	"strings"
)

// ToFinite converts a loosely typed reading into a finite float64. Empty
// strings, non-numeric strings, nil, NaN and infinities report false.
func ToFinite(v interface{}) (float64, bool) {
	var f float64
	switch v := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case int32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		var err error
		f, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
	case interface{ Float() (float64, bool) }:
		var ok bool
		f, ok = v.Float()
		if !ok {
			return 0, false
		}
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// FormatCoord renders a pixel coordinate with one decimal.
func FormatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
