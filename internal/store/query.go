package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/aristath/dr-ratings/internal/domain"
	"github.com/aristath/dr-ratings/internal/ratingerr"
	"github.com/rs/zerolog"
)

// QueryRepository implements the read-only joins HTTPFacade needs, each
// opening a fresh connection with a short busy-timeout (spec.md §4.9).
type QueryRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewQueryRepository builds a QueryRepository.
func NewQueryRepository(db *sql.DB, log zerolog.Logger) *QueryRepository {
	return &QueryRepository{db: db, log: log.With().Str("repo", "query").Logger()}
}

const facadeBusyTimeoutMS = 3000

// wrapBusy maps a SQLITE_BUSY/"database is locked" driver error to
// ratingerr.ErrStoreBusy so read handlers can tell a transient lock (spec.md
// §7: respond with zeros/empty arrays, not a 5xx) apart from a real failure.
// modernc.org/sqlite and mattn/go-sqlite3 both surface this as plain error
// text rather than a typed value, so this matches on that text.
func wrapBusy(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "locked") || strings.Contains(msg, "busy") {
		return fmt.Errorf("%w: %w", ratingerr.ErrStoreBusy, err)
	}
	return err
}

func (r *QueryRepository) conn(ctx context.Context) (*sql.Conn, func(), error) {
	c, err := r.db.Conn(ctx)
	if err != nil {
		return nil, nil, err
	}
	if _, err := c.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", facadeBusyTimeoutMS)); err != nil {
		r.log.Warn().Err(err).Msg("failed to set facade busy_timeout")
	}
	return c, func() { c.Close() }, nil
}

// HistoryPoint is one rating_history entry for GET /ratings/from-dr-api's
// daily/weekly history arrays.
type HistoryPoint struct {
	Rating    domain.Label
	Timestamp string
}

// TickerCurrent is one row of GET /ratings/from-dr-api's response.
type TickerCurrent struct {
	Ticker    string
	Currency  string
	Price     *float64
	ChangePct *float64
	ChangeAbs *float64
	High      *float64
	Low       *float64

	DailyVal       *float64
	DailyRating    domain.Label
	DailyPrev      domain.Label
	DailyChangedAt string
	DailyHistory   []HistoryPoint

	WeeklyVal       *float64
	WeeklyRating    domain.Label
	WeeklyPrev      domain.Label
	WeeklyChangedAt string
	WeeklyHistory   []HistoryPoint
}

// FromDRAPI returns the latest rating_main row for every tracked ticker,
// each enriched with its daily/weekly rating_history points, grounded on
// ratings_from_dr_api in the system this is derived from.
func (r *QueryRepository) FromDRAPI(ctx context.Context) ([]TickerCurrent, error) {
	c, done, err := r.conn(ctx)
	if err != nil {
		return nil, wrapBusy(err)
	}
	defer done()

	tickers, err := distinctTickers(ctx, c, "rating_main")
	if err != nil {
		return nil, wrapBusy(fmt.Errorf("list tickers: %w", err))
	}

	out := make([]TickerCurrent, 0, len(tickers))
	for _, ticker := range tickers {
		cur, ok, err := latestTickerCurrent(ctx, c, ticker)
		if err != nil {
			return nil, wrapBusy(fmt.Errorf("load %s: %w", ticker, err))
		}
		if !ok {
			continue
		}
		cur.DailyHistory, cur.WeeklyHistory, err = historySnapshotHistory(ctx, c, ticker)
		if err != nil {
			return nil, wrapBusy(fmt.Errorf("history for %s: %w", ticker, err))
		}
		out = append(out, cur)
	}
	return out, nil
}

func distinctTickers(ctx context.Context, c *sql.Conn, table string) ([]string, error) {
	rows, err := c.QueryContext(ctx, fmt.Sprintf(`SELECT DISTINCT ticker FROM %s ORDER BY ticker`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func latestTickerCurrent(ctx context.Context, c *sql.Conn, ticker string) (TickerCurrent, bool, error) {
	var (
		cur                             TickerCurrent
		dRating, dPrev, dChangedAt      sql.NullString
		wRating, wPrev, wChangedAt      sql.NullString
		currency                        sql.NullString
	)
	cur.Ticker = ticker
	err := c.QueryRowContext(ctx, `
		SELECT daily_val, daily_rating, daily_prev, daily_changed_at,
		       weekly_val, weekly_rating, weekly_prev, weekly_changed_at,
		       currency, price, change_pct, change_abs, high, low
		FROM rating_main WHERE ticker = ? ORDER BY timestamp DESC LIMIT 1
	`, ticker).Scan(
		&cur.DailyVal, &dRating, &dPrev, &dChangedAt,
		&cur.WeeklyVal, &wRating, &wPrev, &wChangedAt,
		&currency, &cur.Price, &cur.ChangePct, &cur.ChangeAbs, &cur.High, &cur.Low,
	)
	if err == sql.ErrNoRows {
		return TickerCurrent{}, false, nil
	}
	if err != nil {
		return TickerCurrent{}, false, err
	}
	cur.DailyRating, cur.DailyPrev, cur.DailyChangedAt = sqlToLabel(dRating), sqlToLabel(dPrev), dChangedAt.String
	cur.WeeklyRating, cur.WeeklyPrev, cur.WeeklyChangedAt = sqlToLabel(wRating), sqlToLabel(wPrev), wChangedAt.String
	cur.Currency = currency.String
	return cur, true, nil
}

// historySnapshotHistory builds the daily/weekly history arrays from
// rating_history, grounded literally on ratings_from_dr_api: a point is
// included only when its side's rating AND changed_at are both non-null,
// and the reported timestamp is that side's own changed_at (not the
// snapshot row's timestamp).
func historySnapshotHistory(ctx context.Context, c *sql.Conn, ticker string) ([]HistoryPoint, []HistoryPoint, error) {
	rows, err := c.QueryContext(ctx, `
		SELECT daily_rating, daily_changed_at, weekly_rating, weekly_changed_at
		FROM rating_history WHERE ticker = ? ORDER BY timestamp ASC
	`, ticker)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var daily, weekly []HistoryPoint
	for rows.Next() {
		var dRating, dChangedAt, wRating, wChangedAt sql.NullString
		if err := rows.Scan(&dRating, &dChangedAt, &wRating, &wChangedAt); err != nil {
			return nil, nil, err
		}
		if dRating.Valid && dRating.String != "" && dChangedAt.Valid && dChangedAt.String != "" {
			daily = append(daily, HistoryPoint{Rating: sqlToLabel(dRating), Timestamp: dChangedAt.String})
		}
		if wRating.Valid && wRating.String != "" && wChangedAt.Valid && wChangedAt.String != "" {
			weekly = append(weekly, HistoryPoint{Rating: sqlToLabel(wRating), Timestamp: wChangedAt.String})
		}
	}
	return daily, weekly, rows.Err()
}

// HistoryAccuracyRow is one entry of GET /ratings/history-with-accuracy's
// history array, grounded on get_history_with_accuracy.
type HistoryAccuracyRow struct {
	Rating    domain.Label
	Prev      domain.Label
	Timestamp string
	Date      string
	PrevClose *float64
	Price     *float64
	ChangePct *float64
	ChangeAbs *float64
}

// HistoryWithAccuracy returns ticker's rating_history rows for the requested
// timeframe (joined with the previous row's price as prev_close), its latest
// current/prev rating, and its most recent persisted rating_accuracy row.
func (r *QueryRepository) HistoryWithAccuracy(ctx context.Context, ticker, timeframe string) ([]HistoryAccuracyRow, domain.Label, domain.Label, *domain.RatingAccuracy, error) {
	c, done, err := r.conn(ctx)
	if err != nil {
		return nil, "", "", nil, wrapBusy(err)
	}
	defer done()

	ratingCol, prevCol := "daily_rating", "daily_prev"
	if timeframe == "1W" {
		ratingCol, prevCol = "weekly_rating", "weekly_prev"
	}

	rows, err := c.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s, %s, timestamp, price, change_pct, change_abs
		FROM rating_history WHERE ticker = ? ORDER BY timestamp ASC
	`, ratingCol, prevCol), ticker)
	if err != nil {
		return nil, "", "", nil, wrapBusy(err)
	}

	var out []HistoryAccuracyRow
	var prevPrice *float64
	for rows.Next() {
		var rating, prev sql.NullString
		var ts string
		var price, changePct, changeAbs sql.NullFloat64
		if err := rows.Scan(&rating, &prev, &ts, &price, &changePct, &changeAbs); err != nil {
			rows.Close()
			return nil, "", "", nil, wrapBusy(err)
		}
		row := HistoryAccuracyRow{
			Rating:    sqlToLabel(rating),
			Prev:      sqlToLabel(prev),
			Timestamp: ts,
			Date:      ts[:10],
			PrevClose: prevPrice,
			Price:     nullFloatPtr(price),
			ChangePct: nullFloatPtr(changePct),
			ChangeAbs: nullFloatPtr(changeAbs),
		}
		out = append(out, row)
		prevPrice = nullFloatPtr(price)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, "", "", nil, wrapBusy(err)
	}

	var currentRating, prevRating domain.Label
	if n := len(out); n > 0 {
		currentRating, prevRating = out[n-1].Rating, out[n-1].Prev
	}

	var acc domain.RatingAccuracy
	var dRating, dPrev, wRating, wPrev sql.NullString
	err = c.QueryRowContext(ctx, `
		SELECT ticker, timestamp, price, price_prev, change_pct, currency, high, low, window_day,
		       daily_rating, daily_prev, samplesize_daily, correct_daily, incorrect_daily, accuracy_daily,
		       weekly_rating, weekly_prev, samplesize_weekly, correct_weekly, incorrect_weekly, accuracy_weekly
		FROM rating_accuracy WHERE ticker = ? ORDER BY timestamp DESC LIMIT 1
	`, ticker).Scan(
		&acc.Ticker, &acc.Timestamp, &acc.Price, &acc.PricePrev, &acc.ChangePct, &acc.Currency, &acc.High, &acc.Low, &acc.WindowDays,
		&dRating, &dPrev, &acc.Daily.SampleSize, &acc.Daily.Correct, &acc.Daily.Incorrect, &acc.Daily.Accuracy,
		&wRating, &wPrev, &acc.Weekly.SampleSize, &acc.Weekly.Correct, &acc.Weekly.Incorrect, &acc.Weekly.Accuracy,
	)
	if err == sql.ErrNoRows {
		return out, currentRating, prevRating, nil, nil
	}
	if err != nil {
		return out, currentRating, prevRating, nil, wrapBusy(err)
	}
	acc.DailyRating, acc.DailyPrev = sqlToLabel(dRating), sqlToLabel(dPrev)
	acc.WeeklyRating, acc.WeeklyPrev = sqlToLabel(wRating), sqlToLabel(wPrev)
	return out, currentRating, prevRating, &acc, nil
}
