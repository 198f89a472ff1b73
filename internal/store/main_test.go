package store

import (
	"testing"

	"github.com/aristath/dr-ratings/internal/domain"
	"github.com/stretchr/testify/assert"
)

func f(v float64) *float64 { return &v }

func TestNextTimeframeStateFirstRecord(t *testing.T) {
	state, changed := nextTimeframeState(domain.TimeframeState{}, domain.TimeframeSnapshot{Val: f(0.6), Rating: domain.LabelStrongBuy}, "2026-01-01 00:00:00", true)
	assert.True(t, changed)
	assert.Equal(t, domain.LabelStrongBuy, state.Rating)
	assert.Equal(t, domain.Label(""), state.Prev)
	assert.Equal(t, "2026-01-01 00:00:00", state.ChangedAt)
}

func TestNextTimeframeStateFirstRecordNeutralBlanksImmediately(t *testing.T) {
	state, changed := nextTimeframeState(domain.TimeframeState{}, domain.TimeframeSnapshot{Val: f(0), Rating: domain.LabelNeutral}, "2026-01-01 00:00:00", true)
	assert.True(t, changed)
	assert.Equal(t, domain.TimeframeState{}, state)
}

func TestNextTimeframeStateUnknownNeverConsidered(t *testing.T) {
	current := domain.TimeframeState{Val: f(0.6), Rating: domain.LabelStrongBuy, ChangedAt: "2026-01-01 00:00:00"}
	state, changed := nextTimeframeState(current, domain.TimeframeSnapshot{Val: f(0), Rating: domain.LabelUnknown}, "2026-01-02 00:00:00", false)
	assert.False(t, changed)
	assert.Equal(t, current, state)
}

func TestNextTimeframeStateSameRatingCarriesOverUnchanged(t *testing.T) {
	current := domain.TimeframeState{Val: f(0.6), Rating: domain.LabelStrongBuy, Prev: domain.LabelBuy, ChangedAt: "2026-01-01 00:00:00"}
	state, changed := nextTimeframeState(current, domain.TimeframeSnapshot{Val: f(0.55), Rating: domain.LabelStrongBuy}, "2026-01-02 00:00:00", false)
	assert.False(t, changed)
	assert.Equal(t, current, state)
}

func TestNextTimeframeStateTransitionSetsPrevAndChangedAt(t *testing.T) {
	current := domain.TimeframeState{Val: f(0.6), Rating: domain.LabelStrongBuy, ChangedAt: "2026-01-01 00:00:00"}
	state, changed := nextTimeframeState(current, domain.TimeframeSnapshot{Val: f(0.2), Rating: domain.LabelBuy}, "2026-01-02 00:00:00", false)
	assert.True(t, changed)
	assert.Equal(t, domain.LabelBuy, state.Rating)
	assert.Equal(t, domain.LabelStrongBuy, state.Prev)
	assert.Equal(t, "2026-01-02 00:00:00", state.ChangedAt)
}

func TestNextTimeframeStateTransitionToNeutralBlanksAllFour(t *testing.T) {
	current := domain.TimeframeState{Val: f(0.6), Rating: domain.LabelStrongBuy, Prev: domain.LabelBuy, ChangedAt: "2026-01-01 00:00:00"}
	state, changed := nextTimeframeState(current, domain.TimeframeSnapshot{Val: f(0), Rating: domain.LabelNeutral}, "2026-01-02 00:00:00", false)
	assert.True(t, changed)
	assert.Equal(t, domain.TimeframeState{}, state)
}

func TestNextTimeframeStateAlreadyBlankNeutralStaysNoop(t *testing.T) {
	state, changed := nextTimeframeState(domain.TimeframeState{}, domain.TimeframeSnapshot{Val: f(0), Rating: domain.LabelNeutral}, "2026-01-02 00:00:00", false)
	assert.False(t, changed)
	assert.Equal(t, domain.TimeframeState{}, state)
}
