// Package classifier maps a numeric recommendation score (approximately
// -1..+1) to a categorical Label under the two threshold schemes the
// pipeline uses: Live (for LiveUpdater) and Snapshot (for HistorySnapshotter
// and AccuracyCalculator).
package classifier

import (
	"math"

	"github.com/aristath/dr-ratings/internal/domain"
)

// Live classifies a recommendation value the way LiveUpdater does: it keeps
// a Neutral band around zero.
func Live(v float64) domain.Label {
	if !finite(v) {
		return domain.LabelUnknown
	}
	switch {
	case v >= 0.5:
		return domain.LabelStrongBuy
	case v >= 0.1:
		return domain.LabelBuy
	case v >= -0.1:
		return domain.LabelNeutral
	case v > -0.5:
		return domain.LabelSell
	default:
		return domain.LabelStrongSell
	}
}

// Snapshot classifies a recommendation value the way HistorySnapshotter and
// AccuracyCalculator do: there is no Neutral band, every value lands in one
// of the four directional labels.
func Snapshot(v float64) domain.Label {
	if !finite(v) {
		return domain.LabelUnknown
	}
	switch {
	case v >= 0.5:
		return domain.LabelStrongBuy
	case v >= 0:
		return domain.LabelBuy
	case v > -0.5:
		return domain.LabelSell
	default:
		return domain.LabelStrongSell
	}
}

// LivePtr applies Live to a possibly-absent value, returning Unknown when
// ptr is nil.
func LivePtr(ptr *float64) domain.Label {
	if ptr == nil {
		return domain.LabelUnknown
	}
	return Live(*ptr)
}

// SnapshotPtr applies Snapshot to a possibly-absent value, returning Unknown
// when ptr is nil.
func SnapshotPtr(ptr *float64) domain.Label {
	if ptr == nil {
		return domain.LabelUnknown
	}
	return Snapshot(*ptr)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
