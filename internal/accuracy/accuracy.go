// Package accuracy implements AccuracyCalculator: the persisted
// rating-change-vs-price-move scoring scheme (spec.md §4.8), plus (in
// frontend.go) the separate HTTP-only scheme HTTPFacade exposes but never
// persists.
package accuracy

import (
	"context"
	"fmt"
	"strings"

	"github.com/aristath/dr-ratings/internal/domain"
	"github.com/aristath/dr-ratings/internal/store"
	"github.com/aristath/dr-ratings/pkg/stats"
	"github.com/rs/zerolog"
)

// DefaultWindowDays is the sliding window spec.md §4.8 specifies.
const DefaultWindowDays = 90

// Calculator implements the persisted accuracy scheme and satisfies
// snapshotter.AccuracyRecorder.
type Calculator struct {
	historyRepo  *store.HistoryRepository
	accuracyRepo *store.AccuracyRepository
	windowDays   int
	log          zerolog.Logger
}

// New builds a Calculator.
func New(historyRepo *store.HistoryRepository, accuracyRepo *store.AccuracyRepository, windowDays int, log zerolog.Logger) *Calculator {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	return &Calculator{
		historyRepo:  historyRepo,
		accuracyRepo: accuracyRepo,
		windowDays:   windowDays,
		log:          log.With().Str("component", "accuracy_calculator").Logger(),
	}
}

// Recalculate implements spec.md §4.8: read the window, tally correctness
// per timeframe, look up the previous price, and upsert one rating_accuracy
// row keyed by (ticker, triggeringTimestamp).
func (c *Calculator) Recalculate(ctx context.Context, ticker, triggeringTimestamp string, snapshot domain.RatingHistory) error {
	since, err := windowStart(triggeringTimestamp, c.windowDays)
	if err != nil {
		return fmt.Errorf("compute window start: %w", err)
	}

	rows, err := c.historyRepo.WindowRows(ctx, ticker, since)
	if err != nil {
		return fmt.Errorf("read history window: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	dailyRating, dailyPrev, dailyTally := tally(rows, func(h domain.RatingHistory) (domain.Label, domain.Label, *float64) {
		return h.DailyRating, h.DailyPrev, h.ChangePct
	})
	weeklyRating, weeklyPrev, weeklyTally := tally(rows, func(h domain.RatingHistory) (domain.Label, domain.Label, *float64) {
		return h.WeeklyRating, h.WeeklyPrev, h.ChangePct
	})

	pricePrev, err := c.historyRepo.PriceBefore(ctx, ticker, triggeringTimestamp)
	if err != nil {
		return fmt.Errorf("look up previous price: %w", err)
	}

	row := domain.RatingAccuracy{
		Ticker:       ticker,
		Timestamp:    triggeringTimestamp,
		Price:        snapshot.Price,
		PricePrev:    pricePrev,
		ChangePct:    snapshot.ChangePct,
		Currency:     snapshot.Currency,
		High:         snapshot.High,
		Low:          snapshot.Low,
		WindowDays:   c.windowDays,
		DailyRating:  dailyRating,
		DailyPrev:    dailyPrev,
		Daily:        dailyTally,
		WeeklyRating: weeklyRating,
		WeeklyPrev:   weeklyPrev,
		Weekly:       weeklyTally,
	}
	return c.accuracyRepo.Upsert(ctx, row)
}

func windowStart(triggeringTimestamp string, windowDays int) (string, error) {
	t, err := domain.ParseBangkokNaive(triggeringTimestamp)
	if err != nil {
		return "", err
	}
	return domain.FormatBangkokNaive(t.AddDate(0, 0, -windowDays)), nil
}

var buyFamily = map[domain.Label]bool{domain.LabelBuy: true, domain.LabelStrongBuy: true}
var sellFamily = map[domain.Label]bool{domain.LabelSell: true, domain.LabelStrongSell: true}

func isScoreable(l domain.Label) bool {
	if l == "" {
		return false
	}
	switch strings.ToLower(string(l)) {
	case "neutral", "unknown", "":
		return false
	}
	return true
}

// tally implements spec.md §4.8 step 2-3: for each history row with both a
// rating and a prior rating, score a sell-family→buy-family move correct
// iff change_pct rose, a buy-family→sell-family move correct iff change_pct
// fell, skip unchanged ratings entirely, and otherwise (any other
// transition actually observed, e.g. Buy→Strong Buy) count it incorrect —
// this last case is a real branch in the system this is grounded on, not
// an oversight: only a clean sell→buy or buy→sell reversal can ever score
// correct.
func tally(rows []domain.RatingHistory, field func(domain.RatingHistory) (rating, prev domain.Label, changePct *float64)) (domain.Label, domain.Label, domain.AccuracyTally) {
	var latestRating, latestPrev domain.Label
	var correct, incorrect int
	var scores []float64

	for _, row := range rows {
		rating, prev, changePct := field(row)
		if !isScoreable(rating) || !isScoreable(prev) || changePct == nil {
			continue
		}
		if rating == prev {
			continue
		}
		if latestRating == "" {
			latestRating, latestPrev = rating, prev
		}

		isCorrect := false
		switch {
		case sellFamily[prev] && buyFamily[rating]:
			isCorrect = *changePct > 0
		case buyFamily[prev] && sellFamily[rating]:
			isCorrect = *changePct < 0
		}

		if isCorrect {
			correct++
			scores = append(scores, 1)
		} else {
			incorrect++
			scores = append(scores, 0)
		}
	}

	// The percentage of correct calls is the mean of the per-call 0/1
	// correctness series, scaled to a percentage.
	accuracy := stats.Mean(scores) * 100
	return latestRating, latestPrev, domain.AccuracyTally{
		SampleSize: correct + incorrect,
		Correct:    correct,
		Incorrect:  incorrect,
		Accuracy:   roundTo2(accuracy),
	}
}

func roundTo2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
