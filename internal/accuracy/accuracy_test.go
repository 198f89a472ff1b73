package accuracy

import (
	"testing"

	"github.com/aristath/dr-ratings/internal/domain"
	"github.com/stretchr/testify/assert"
)

func f(v float64) *float64 { return &v }

func TestTallyAccuracyScoring(t *testing.T) {
	// spec.md §8 scenario 6: four transitions, expect correct=2, incorrect=1,
	// samplesize=3 (the third, prev==rating, doesn't count at all).
	rows := []domain.RatingHistory{
		{DailyRating: domain.LabelBuy, DailyPrev: domain.LabelSell, ChangePct: f(1.2)},
		{DailyRating: domain.LabelSell, DailyPrev: domain.LabelBuy, ChangePct: f(-0.3)},
		{DailyRating: domain.LabelBuy, DailyPrev: domain.LabelBuy, ChangePct: f(0.5)},
		{DailyRating: domain.LabelSell, DailyPrev: domain.LabelStrongBuy, ChangePct: f(0.4)},
	}

	rating, prev, tallyResult := tally(rows, func(h domain.RatingHistory) (domain.Label, domain.Label, *float64) {
		return h.DailyRating, h.DailyPrev, h.ChangePct
	})

	assert.Equal(t, 2, tallyResult.Correct)
	assert.Equal(t, 1, tallyResult.Incorrect)
	assert.Equal(t, 3, tallyResult.SampleSize)
	assert.InDelta(t, 66.67, tallyResult.Accuracy, 0.01)
	assert.Equal(t, domain.LabelBuy, rating)
	assert.Equal(t, domain.LabelSell, prev)
}

func TestTallySkipsNeutralAndUnknown(t *testing.T) {
	rows := []domain.RatingHistory{
		{DailyRating: domain.LabelNeutral, DailyPrev: domain.LabelSell, ChangePct: f(1.0)},
		{DailyRating: domain.LabelBuy, DailyPrev: domain.LabelUnknown, ChangePct: f(1.0)},
	}
	_, _, tallyResult := tally(rows, func(h domain.RatingHistory) (domain.Label, domain.Label, *float64) {
		return h.DailyRating, h.DailyPrev, h.ChangePct
	})
	assert.Equal(t, 0, tallyResult.SampleSize)
}

func TestFrontendAccuracyUnchangedRatingFollowsSentiment(t *testing.T) {
	points := []HistoryPoint{
		{Rating: domain.LabelBuy, Prev: domain.LabelBuy, ChangePct: f(1.0)},  // newest
		{Rating: domain.LabelBuy, Prev: domain.LabelBuy, ChangePct: f(-1.0)}, // oldest
	}
	res := FrontendAccuracy(points, "")
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Correct)
	assert.Equal(t, 1, res.Incorrect)
}

func TestRatingScoreOrdinals(t *testing.T) {
	assert.Equal(t, 5, RatingScore(domain.LabelStrongBuy))
	assert.Equal(t, 1, RatingScore(domain.LabelStrongSell))
	assert.Equal(t, 0, RatingScore(domain.Label("garbage")))
}
