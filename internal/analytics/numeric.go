package analytics

import (
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// ParseAmount parses a monetary field from ingested data. Upstream CSV rows
// carry currency symbols, thousands separators and plain garbage; anything
// that does not parse to a non-negative finite number degrades to zero.
// This is the single place where the forgiving numeric contract lives -
// NaN and Inf never reach an aggregate.
func ParseAmount(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// mean returns the arithmetic mean, or 0 for an empty slice.
func mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}
