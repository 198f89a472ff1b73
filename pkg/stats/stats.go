// Package stats provides the small set of descriptive-statistics helpers
// the accuracy calculator and the ratings HTTP surface need, adapted from the teacher's formulas
// package down to the two functions that still have a caller.
package stats

import "gonum.org/v1/gonum/stat"

// Mean calculates the arithmetic mean of a slice of float64 values.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the standard deviation of a slice of float64 values,
// used to report change_pct volatility alongside accuracy figures.
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}
