package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/dr-ratings/internal/domain"
	"github.com/rs/zerolog"
)

// accuracyBusyTimeoutMS is the shorter busy timeout spec.md §4.4 calls for
// on the per-ticker accuracy write path, to limit how long a single write
// can hold the database lock.
const accuracyBusyTimeoutMS = 2000

// AccuracyRepository implements the rating_accuracy derived-metric table.
type AccuracyRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewAccuracyRepository builds an AccuracyRepository.
func NewAccuracyRepository(db *sql.DB, log zerolog.Logger) *AccuracyRepository {
	return &AccuracyRepository{db: db, log: log.With().Str("repo", "rating_accuracy").Logger()}
}

// Upsert writes one rating_accuracy row keyed by (ticker, timestamp),
// borrowing a short busy timeout for the duration of the write.
func (r *AccuracyRepository) Upsert(ctx context.Context, a domain.RatingAccuracy) error {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", accuracyBusyTimeoutMS)); err != nil {
		r.log.Warn().Err(err).Msg("failed to set short busy_timeout for accuracy write")
	}
	defer func() {
		// Best-effort restore; a failure here just means the next write on
		// this pooled connection inherits the shorter timeout too.
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		conn.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", defaultBusyTimeoutMS))
	}()

	_, err = conn.ExecContext(ctx, `
		INSERT INTO rating_accuracy (
			ticker, timestamp, price, price_prev, change_pct, currency, high, low, window_day,
			daily_rating, daily_prev, samplesize_daily, correct_daily, incorrect_daily, accuracy_daily,
			weekly_rating, weekly_prev, samplesize_weekly, correct_weekly, incorrect_weekly, accuracy_weekly
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, timestamp) DO UPDATE SET
			price=excluded.price, price_prev=excluded.price_prev, change_pct=excluded.change_pct,
			currency=excluded.currency, high=excluded.high, low=excluded.low, window_day=excluded.window_day,
			daily_rating=excluded.daily_rating, daily_prev=excluded.daily_prev,
			samplesize_daily=excluded.samplesize_daily, correct_daily=excluded.correct_daily,
			incorrect_daily=excluded.incorrect_daily, accuracy_daily=excluded.accuracy_daily,
			weekly_rating=excluded.weekly_rating, weekly_prev=excluded.weekly_prev,
			samplesize_weekly=excluded.samplesize_weekly, correct_weekly=excluded.correct_weekly,
			incorrect_weekly=excluded.incorrect_weekly, accuracy_weekly=excluded.accuracy_weekly
	`,
		a.Ticker, a.Timestamp, a.Price, a.PricePrev, a.ChangePct, a.Currency, a.High, a.Low, a.WindowDays,
		labelToSQL(a.DailyRating), labelToSQL(a.DailyPrev), a.Daily.SampleSize, a.Daily.Correct, a.Daily.Incorrect, a.Daily.Accuracy,
		labelToSQL(a.WeeklyRating), labelToSQL(a.WeeklyPrev), a.Weekly.SampleSize, a.Weekly.Correct, a.Weekly.Incorrect, a.Weekly.Accuracy,
	)
	if err != nil {
		return fmt.Errorf("upsert rating_accuracy: %w", err)
	}
	return nil
}

// Latest returns the most recent rating_accuracy row for ticker, or
// (domain.RatingAccuracy{}, false, nil) if there is none.
func (r *AccuracyRepository) Latest(ctx context.Context, ticker string) (domain.RatingAccuracy, bool, error) {
	var (
		a                               domain.RatingAccuracy
		dRating, dPrev, wRating, wPrev  sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT ticker, timestamp, price, price_prev, change_pct, currency, high, low, window_day,
		       daily_rating, daily_prev, samplesize_daily, correct_daily, incorrect_daily, accuracy_daily,
		       weekly_rating, weekly_prev, samplesize_weekly, correct_weekly, incorrect_weekly, accuracy_weekly
		FROM rating_accuracy WHERE ticker = ? ORDER BY timestamp DESC LIMIT 1
	`, ticker).Scan(
		&a.Ticker, &a.Timestamp, &a.Price, &a.PricePrev, &a.ChangePct, &a.Currency, &a.High, &a.Low, &a.WindowDays,
		&dRating, &dPrev, &a.Daily.SampleSize, &a.Daily.Correct, &a.Daily.Incorrect, &a.Daily.Accuracy,
		&wRating, &wPrev, &a.Weekly.SampleSize, &a.Weekly.Correct, &a.Weekly.Incorrect, &a.Weekly.Accuracy,
	)
	if err == sql.ErrNoRows {
		return domain.RatingAccuracy{}, false, nil
	}
	if err != nil {
		return domain.RatingAccuracy{}, false, err
	}
	a.DailyRating, a.DailyPrev = sqlToLabel(dRating), sqlToLabel(dPrev)
	a.WeeklyRating, a.WeeklyPrev = sqlToLabel(wRating), sqlToLabel(wPrev)
	return a, true, nil
}
