package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// CleanupRepository implements the single daily retention task: deleting,
// from each of the four tables, every row whose local date equals
// today − retention window (spec.md §3, §4.4 lifecycle note).
type CleanupRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCleanupRepository builds a CleanupRepository.
func NewCleanupRepository(db *sql.DB, log zerolog.Logger) *CleanupRepository {
	return &CleanupRepository{db: db, log: log.With().Str("repo", "cleanup").Logger()}
}

// CleanupCounts reports how many rows were deleted per table.
type CleanupCounts struct {
	Stats, Main, History, Accuracy int64
}

// DeleteForDate deletes every row dated targetDate ("YYYY-MM-DD", Bangkok
// local) from all four rating tables.
func (r *CleanupRepository) DeleteForDate(ctx context.Context, targetDate string) (CleanupCounts, error) {
	var counts CleanupCounts

	for _, t := range []struct {
		table string
		dest  *int64
	}{
		{"rating_stats", &counts.Stats},
		{"rating_main", &counts.Main},
		{"rating_history", &counts.History},
		{"rating_accuracy", &counts.Accuracy},
	} {
		res, err := r.db.ExecContext(ctx, fmt.Sprintf(
			`DELETE FROM %s WHERE strftime('%%Y-%%m-%%d', timestamp) = ?`, t.table,
		), targetDate)
		if err != nil {
			return counts, fmt.Errorf("cleanup %s: %w", t.table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return counts, fmt.Errorf("cleanup %s rows affected: %w", t.table, err)
		}
		*t.dest = n
	}

	if counts.Stats+counts.Main+counts.History+counts.Accuracy > 0 {
		r.log.Info().
			Str("date", targetDate).
			Int64("stats", counts.Stats).Int64("main", counts.Main).
			Int64("history", counts.History).Int64("accuracy", counts.Accuracy).
			Msg("retention cleanup removed rows")
	}
	return counts, nil
}
