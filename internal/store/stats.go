package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/dr-ratings/internal/domain"
	"github.com/rs/zerolog"
)

// StatsRepository implements the rating_stats append-only raw log.
type StatsRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStatsRepository builds a StatsRepository.
func NewStatsRepository(db *sql.DB, log zerolog.Logger) *StatsRepository {
	return &StatsRepository{db: db, log: log.With().Str("repo", "rating_stats").Logger()}
}

// RecordIfChanged inserts one rating_stats row only when the daily or weekly
// label differs from that ticker's most recent row, or no prior row exists
// (spec.md §3, the stats-dedup invariant). It reports whether a row was
// written.
func (r *StatsRepository) RecordIfChanged(ctx context.Context, ticker, timestamp string, daily, weekly domain.TimeframeSnapshot) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var lastDaily, lastWeekly sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT daily_rating, weekly_rating FROM rating_stats
		WHERE ticker = ? ORDER BY timestamp DESC LIMIT 1
	`, ticker).Scan(&lastDaily, &lastWeekly)

	changed := false
	switch {
	case err == sql.ErrNoRows:
		changed = true
	case err != nil:
		return false, fmt.Errorf("query last rating_stats row: %w", err)
	default:
		if daily.Rating != "" && string(daily.Rating) != lastDaily.String {
			changed = true
		}
		if weekly.Rating != "" && string(weekly.Rating) != lastWeekly.String {
			changed = true
		}
	}

	if !changed {
		return false, tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rating_stats
			(ticker, timestamp, daily_val, daily_rating, daily_changed_at, weekly_val, weekly_rating, weekly_changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ticker, timestamp,
		daily.Val, labelToSQL(daily.Rating), timestamp,
		weekly.Val, labelToSQL(weekly.Rating), timestamp,
	)
	if err != nil {
		return false, fmt.Errorf("insert rating_stats: %w", err)
	}
	return true, tx.Commit()
}

// labelToSQL maps a Label to its SQL representation: LabelUnknown and the
// empty label are stored as NULL, matching the upstream's None.
func labelToSQL(l domain.Label) interface{} {
	if l == "" || l == domain.LabelUnknown {
		return nil
	}
	return string(l)
}

func sqlToLabel(s sql.NullString) domain.Label {
	if !s.Valid || s.String == "" {
		return ""
	}
	return domain.Label(s.String)
}
