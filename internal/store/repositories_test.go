package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aristath/dr-ratings/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ratings_test.sqlite")
	st, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestStatsRepositoryRecordIfChangedDedup(t *testing.T) {
	st := openTestStore(t)
	repo := NewStatsRepository(st.Conn(), zerolog.Nop())
	ctx := context.Background()

	daily := domain.TimeframeSnapshot{Val: f(0.6), Rating: domain.LabelStrongBuy}
	weekly := domain.TimeframeSnapshot{Val: f(0.4), Rating: domain.LabelBuy}

	changed, err := repo.RecordIfChanged(ctx, "TEST", "2026-01-01 00:00:00", daily, weekly)
	require.NoError(t, err)
	assert.True(t, changed, "first row for a ticker always writes")

	changed, err = repo.RecordIfChanged(ctx, "TEST", "2026-01-01 00:03:00", daily, weekly)
	require.NoError(t, err)
	assert.False(t, changed, "identical daily/weekly labels must not write a duplicate row")

	weekly2 := domain.TimeframeSnapshot{Val: f(-0.2), Rating: domain.LabelSell}
	changed, err = repo.RecordIfChanged(ctx, "TEST", "2026-01-01 00:06:00", daily, weekly2)
	require.NoError(t, err)
	assert.True(t, changed, "a weekly label change alone must write a new row")

	var count int
	require.NoError(t, st.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM rating_stats WHERE ticker = 'TEST'`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestMainRepositoryUpsertCarriesOverAndBlanksNeutral(t *testing.T) {
	st := openTestStore(t)
	repo := NewMainRepository(st.Conn(), zerolog.Nop())
	ctx := context.Background()

	md := domain.MarketData{Currency: "USD", Price: f(10), ChangePct: f(1), ChangeAbs: f(0.1), High: f(11), Low: f(9)}

	changed, err := repo.Upsert(ctx, "TEST", "2026-01-01 00:00:00",
		domain.TimeframeSnapshot{Val: f(0.6), Rating: domain.LabelStrongBuy},
		domain.TimeframeSnapshot{Val: f(0.4), Rating: domain.LabelBuy},
		md)
	require.NoError(t, err)
	assert.True(t, changed)

	// Same ratings again: must carry over without writing a new row.
	changed, err = repo.Upsert(ctx, "TEST", "2026-01-01 00:03:00",
		domain.TimeframeSnapshot{Val: f(0.55), Rating: domain.LabelStrongBuy},
		domain.TimeframeSnapshot{Val: f(0.35), Rating: domain.LabelBuy},
		md)
	require.NoError(t, err)
	assert.False(t, changed)

	// Daily transitions to Neutral: blanks all four daily fields, weekly untouched.
	changed, err = repo.Upsert(ctx, "TEST", "2026-01-01 00:06:00",
		domain.TimeframeSnapshot{Val: f(0), Rating: domain.LabelNeutral},
		domain.TimeframeSnapshot{Val: f(0.35), Rating: domain.LabelBuy},
		md)
	require.NoError(t, err)
	assert.True(t, changed)

	tx, err := st.Conn().BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	row, isFirst, err := latestMainRow(ctx, tx, "TEST")
	require.NoError(t, err)
	assert.False(t, isFirst)
	assert.Equal(t, domain.TimeframeState{}, row.daily)
	assert.Equal(t, domain.LabelBuy, row.weekly.Rating)

	var count int
	require.NoError(t, st.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM rating_main WHERE ticker = 'TEST'`).Scan(&count))
	assert.Equal(t, 2, count, "the no-op carry-over upsert must not have inserted a row")
}

func TestHistoryRepositoryInsertSnapshotUniquenessAndPrevLinkage(t *testing.T) {
	st := openTestStore(t)
	repo := NewHistoryRepository(st.Conn(), zerolog.Nop())
	ctx := context.Background()

	day1 := domain.RatingHistory{
		Ticker: "TEST", Timestamp: "2026-01-01 23:59:00",
		DailyRating: domain.LabelBuy, WeeklyRating: domain.LabelNeutral,
		MarketData: domain.MarketData{Currency: "USD", Price: f(10)},
	}
	inserted, err := repo.InsertSnapshot(ctx, day1)
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same calendar date again: must be skipped, not duplicated.
	day1dup := day1
	day1dup.Timestamp = "2026-01-01 23:59:30"
	inserted, err = repo.InsertSnapshot(ctx, day1dup)
	require.NoError(t, err)
	assert.False(t, inserted, "a second snapshot for the same local date must be skipped")

	day2 := domain.RatingHistory{
		Ticker: "TEST", Timestamp: "2026-01-02 23:59:00",
		DailyRating: domain.LabelStrongBuy, WeeklyRating: domain.LabelBuy,
		MarketData: domain.MarketData{Currency: "USD", Price: f(11)},
	}
	inserted, err = repo.InsertSnapshot(ctx, day2)
	require.NoError(t, err)
	assert.True(t, inserted)

	rows, err := repo.WindowRows(ctx, "TEST", "2026-01-01")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// WindowRows orders newest first.
	assert.Equal(t, domain.LabelStrongBuy, rows[0].DailyRating)
	assert.Equal(t, domain.LabelBuy, rows[0].DailyPrev, "day2's daily_prev must carry day1's daily rating")
	assert.Equal(t, domain.LabelBuy, rows[1].DailyRating)
	assert.Equal(t, domain.Label(""), rows[1].DailyPrev, "the first-ever snapshot has no prior row to link")
}
