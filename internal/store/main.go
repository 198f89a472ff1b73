package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/aristath/dr-ratings/internal/domain"
	"github.com/rs/zerolog"
)

// MainRepository implements the rating_main current-state table: per-side
// carry-over, Neutral blanking, and prev-label memory (spec.md §3).
type MainRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewMainRepository builds a MainRepository.
func NewMainRepository(db *sql.DB, log zerolog.Logger) *MainRepository {
	return &MainRepository{db: db, log: log.With().Str("repo", "rating_main").Logger()}
}

type mainRow struct {
	daily, weekly domain.TimeframeState
}

// Upsert applies the LiveUpdater's rating_main write rule and reports
// whether a row was inserted.
func (r *MainRepository) Upsert(ctx context.Context, ticker, timestamp string, daily, weekly domain.TimeframeSnapshot, md domain.MarketData) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	current, isFirst, err := latestMainRow(ctx, tx, ticker)
	if err != nil {
		return false, err
	}

	finalDaily, dailyChanged := nextTimeframeState(current.daily, daily, timestamp, isFirst)
	finalWeekly, weeklyChanged := nextTimeframeState(current.weekly, weekly, timestamp, isFirst)
	if !dailyChanged && !weeklyChanged {
		return false, tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rating_main
			(ticker, timestamp,
			 daily_val, daily_rating, daily_prev, daily_changed_at,
			 weekly_val, weekly_rating, weekly_prev, weekly_changed_at,
			 currency, price, change_pct, change_abs, high, low)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ticker, timestamp,
		finalDaily.Val, labelToSQL(finalDaily.Rating), labelToSQL(finalDaily.Prev), nullIfEmpty(finalDaily.ChangedAt),
		finalWeekly.Val, labelToSQL(finalWeekly.Rating), labelToSQL(finalWeekly.Prev), nullIfEmpty(finalWeekly.ChangedAt),
		md.Currency, md.Price, md.ChangePct, md.ChangeAbs, md.High, md.Low,
	)
	if err != nil {
		return false, fmt.Errorf("insert rating_main: %w", err)
	}
	return true, tx.Commit()
}

// nextTimeframeState implements the per-side rule: first record always
// stores; a subsequent non-Neutral rating different from the current one
// stores with prev set to the current rating; a transition into Neutral
// blanks all four fields; anything else carries the current state forward
// unchanged.
func nextTimeframeState(current domain.TimeframeState, fetched domain.TimeframeSnapshot, timestamp string, isFirst bool) (domain.TimeframeState, bool) {
	considered := fetched.Rating != "" && fetched.Rating != domain.LabelUnknown
	if !considered {
		return current, false
	}

	isNeutral := strings.EqualFold(string(fetched.Rating), string(domain.LabelNeutral))

	if isFirst {
		if isNeutral {
			return domain.TimeframeState{}, true
		}
		return domain.TimeframeState{Val: fetched.Val, Rating: fetched.Rating, Prev: "", ChangedAt: timestamp}, true
	}

	if isNeutral {
		if current.Rating == "" {
			// Already blank; nothing changes.
			return current, false
		}
		return domain.TimeframeState{}, true
	}

	if fetched.Rating != current.Rating {
		return domain.TimeframeState{Val: fetched.Val, Rating: fetched.Rating, Prev: current.Rating, ChangedAt: timestamp}, true
	}
	return current, false
}

func latestMainRow(ctx context.Context, tx *sql.Tx, ticker string) (mainRow, bool, error) {
	var (
		dVal, wVal                             sql.NullFloat64
		dRating, dPrev, dChangedAt             sql.NullString
		wRating, wPrev, wChangedAt             sql.NullString
	)
	err := tx.QueryRowContext(ctx, `
		SELECT daily_val, daily_rating, daily_prev, daily_changed_at,
		       weekly_val, weekly_rating, weekly_prev, weekly_changed_at
		FROM rating_main WHERE ticker = ? ORDER BY timestamp DESC LIMIT 1
	`, ticker).Scan(&dVal, &dRating, &dPrev, &dChangedAt, &wVal, &wRating, &wPrev, &wChangedAt)

	if err == sql.ErrNoRows {
		return mainRow{}, true, nil
	}
	if err != nil {
		return mainRow{}, false, fmt.Errorf("query last rating_main row: %w", err)
	}

	row := mainRow{
		daily: domain.TimeframeState{
			Val: nullFloatPtr(dVal), Rating: sqlToLabel(dRating), Prev: sqlToLabel(dPrev), ChangedAt: dChangedAt.String,
		},
		weekly: domain.TimeframeState{
			Val: nullFloatPtr(wVal), Rating: sqlToLabel(wRating), Prev: sqlToLabel(wPrev), ChangedAt: wChangedAt.String,
		},
	}
	return row, false, nil
}

func nullFloatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
