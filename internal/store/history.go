package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/dr-ratings/internal/domain"
	"github.com/rs/zerolog"
)

// HistoryRepository implements the rating_history end-of-day snapshot table:
// exactly one row per (ticker, local calendar date), spec.md §4.7.
type HistoryRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryRepository builds a HistoryRepository.
func NewHistoryRepository(db *sql.DB, log zerolog.Logger) *HistoryRepository {
	return &HistoryRepository{db: db, log: log.With().Str("repo", "rating_history").Logger()}
}

// HasSnapshotForDate reports whether ticker already has a rating_history row
// for localDate ("YYYY-MM-DD" naive Bangkok-local date).
func (r *HistoryRepository) HasSnapshotForDate(ctx context.Context, ticker, localDate string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM rating_history
		WHERE ticker = ? AND strftime('%Y-%m-%d', timestamp) = ?
		LIMIT 1
	`, ticker, localDate).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InsertSnapshot writes one rating_history row, skipping if one already
// exists for (ticker, local date of timestamp). daily_prev/weekly_prev are
// looked up from the most recent strictly-earlier row for the ticker.
// Reports whether a row was inserted.
func (r *HistoryRepository) InsertSnapshot(ctx context.Context, h domain.RatingHistory) (bool, error) {
	localDate := h.Timestamp[:10]

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, `
		SELECT 1 FROM rating_history
		WHERE ticker = ? AND strftime('%Y-%m-%d', timestamp) = ?
		LIMIT 1
	`, h.Ticker, localDate).Scan(&one)
	if err == nil {
		return false, tx.Commit() // already have a snapshot for this day
	}
	if err != sql.ErrNoRows {
		return false, fmt.Errorf("check existing rating_history row: %w", err)
	}

	var prevDaily, prevWeekly sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT daily_rating, weekly_rating FROM rating_history
		WHERE ticker = ? AND timestamp < ?
		ORDER BY timestamp DESC LIMIT 1
	`, h.Ticker, h.Timestamp).Scan(&prevDaily, &prevWeekly)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("query previous rating_history row: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rating_history (
			ticker, timestamp,
			daily_val, daily_rating, daily_prev, daily_changed_at,
			weekly_val, weekly_rating, weekly_prev, weekly_changed_at,
			exchange, market,
			currency, price, change_pct, change_abs, high, low
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		h.Ticker, h.Timestamp,
		h.DailyVal, labelToSQL(h.DailyRating), nullStringOrNil(prevDaily), h.Timestamp,
		h.WeeklyVal, labelToSQL(h.WeeklyRating), nullStringOrNil(prevWeekly), h.Timestamp,
		h.Exchange, string(h.Market),
		h.Currency, h.Price, h.ChangePct, h.ChangeAbs, h.High, h.Low,
	)
	if err != nil {
		return false, fmt.Errorf("insert rating_history: %w", err)
	}
	return true, tx.Commit()
}

// WindowRows returns the rating_history rows for ticker whose timestamp is
// at or after sinceTimestamp, newest first — the input to AccuracyCalculator
// (spec.md §4.8 step 1).
func (r *HistoryRepository) WindowRows(ctx context.Context, ticker, sinceTimestamp string) ([]domain.RatingHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ticker, timestamp, daily_val, daily_rating, daily_prev, daily_changed_at,
		       weekly_val, weekly_rating, weekly_prev, weekly_changed_at,
		       exchange, market, currency, price, change_pct, change_abs, high, low
		FROM rating_history
		WHERE ticker = ? AND timestamp >= ?
		ORDER BY timestamp DESC
	`, ticker, sinceTimestamp)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RatingHistory
	for rows.Next() {
		var (
			h                           domain.RatingHistory
			dRating, dPrev, wRating, wPrev sql.NullString
			market                      sql.NullString
		)
		if err := rows.Scan(
			&h.Ticker, &h.Timestamp, &h.DailyVal, &dRating, &dPrev, &h.DailyChangedAt,
			&h.WeeklyVal, &wRating, &wPrev, &h.WeeklyChangedAt,
			&h.Exchange, &market, &h.Currency, &h.Price, &h.ChangePct, &h.ChangeAbs, &h.High, &h.Low,
		); err != nil {
			return nil, err
		}
		h.DailyRating = sqlToLabel(dRating)
		h.DailyPrev = sqlToLabel(dPrev)
		h.WeeklyRating = sqlToLabel(wRating)
		h.WeeklyPrev = sqlToLabel(wPrev)
		h.Market = domain.MarketCode(market.String)
		out = append(out, h)
	}
	return out, rows.Err()
}

// PriceBefore returns the most recent price strictly before timestamp for
// ticker (spec.md §4.8 step 4), or nil if there is none.
func (r *HistoryRepository) PriceBefore(ctx context.Context, ticker, timestamp string) (*float64, error) {
	var price sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `
		SELECT price FROM rating_history
		WHERE ticker = ? AND timestamp < ?
		ORDER BY timestamp DESC LIMIT 1
	`, ticker, timestamp).Scan(&price)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return nullFloatPtr(price), nil
}

// DistinctTickerTimestamps lists every (ticker, timestamp) pair present in
// rating_history, for the accuracy startup back-fill pass.
func (r *HistoryRepository) DistinctTickerTimestamps(ctx context.Context) ([][2]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT ticker, timestamp FROM rating_history ORDER BY ticker, timestamp DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][2]string
	for rows.Next() {
		var ticker, ts string
		if err := rows.Scan(&ticker, &ts); err != nil {
			return nil, err
		}
		out = append(out, [2]string{ticker, ts})
	}
	return out, rows.Err()
}

func nullStringOrNil(s sql.NullString) interface{} {
	if !s.Valid || s.String == "" {
		return nil
	}
	return s.String
}
