// Package snapshotter implements HistorySnapshotter: one end-of-day
// rating_history row per ticker per market, triggered by MarketClockScheduler
// at that market's computed close instant.
package snapshotter

import (
	"context"
	"time"

	"github.com/aristath/dr-ratings/internal/domain"
	"github.com/aristath/dr-ratings/internal/ratings/classifier"
	"github.com/aristath/dr-ratings/internal/ratings/drlist"
	"github.com/aristath/dr-ratings/internal/ratings/resolver"
	"github.com/aristath/dr-ratings/internal/ratings/scanner"
	"github.com/aristath/dr-ratings/internal/store"
	"github.com/rs/zerolog"
)

// interFetchDelay is the pause between per-ticker fetches within one
// market's snapshot pass (spec.md §4.7).
const interFetchDelay = 100 * time.Millisecond

// AccuracyRecorder recomputes rating_accuracy for one ticker after a
// successful history insert (spec.md §4.7 step 5 / §4.8).
type AccuracyRecorder interface {
	Recalculate(ctx context.Context, ticker, triggeringTimestamp string, snapshot domain.RatingHistory) error
}

// Snapshotter implements HistorySnapshotter.
type Snapshotter struct {
	drList      *drlist.Client
	resolver    *resolver.Resolver
	fetcher     *scanner.Client
	historyRepo *store.HistoryRepository
	accuracy    AccuracyRecorder
	loc         *time.Location
	log         zerolog.Logger

	now func() time.Time // overridable for tests
}

// New builds a Snapshotter.
func New(
	drList *drlist.Client,
	res *resolver.Resolver,
	fetcher *scanner.Client,
	historyRepo *store.HistoryRepository,
	accuracy AccuracyRecorder,
	loc *time.Location,
	log zerolog.Logger,
) *Snapshotter {
	return &Snapshotter{
		drList:      drList,
		resolver:    res,
		fetcher:     fetcher,
		historyRepo: historyRepo,
		accuracy:    accuracy,
		loc:         loc,
		log:         log.With().Str("component", "history_snapshotter").Logger(),
		now:         time.Now,
	}
}

// SnapshotMarket implements marketclock.Snapshotter: it re-fetches the DR
// list, filters to tickers resolving to market, and snapshots each one not
// already captured today.
func (s *Snapshotter) SnapshotMarket(ctx context.Context, market domain.MarketCode) error {
	records, err := s.drList.Fetch(ctx)
	if err != nil {
		return err
	}
	records = drlist.DedupeByCode(records)

	todayLocal := s.now().In(s.loc).Format("2006-01-02")

	var retry []drlist.Record
	for _, rec := range records {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		res, err := s.resolver.Resolve(resolver.Record{
			Symbol:             rec.Symbol,
			Underlying:         rec.Underlying,
			UnderlyingName:     rec.UnderlyingName,
			UnderlyingExchange: rec.UnderlyingExchange,
		})
		if err != nil || res.MarketCode != market {
			continue
		}

		if err := s.snapshotOne(ctx, res, rec, todayLocal); err != nil {
			s.log.Warn().Str("ticker", res.ScannerSymbol).Err(err).Msg("snapshot fetch failed, queued for retry")
			retry = append(retry, rec)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interFetchDelay):
		}
	}

	for _, rec := range retry {
		res, err := s.resolver.Resolve(resolver.Record{
			Symbol:             rec.Symbol,
			Underlying:         rec.Underlying,
			UnderlyingName:     rec.UnderlyingName,
			UnderlyingExchange: rec.UnderlyingExchange,
		})
		if err != nil {
			continue
		}
		if err := s.snapshotOne(ctx, res, rec, todayLocal); err != nil {
			s.log.Error().Str("ticker", res.ScannerSymbol).Err(err).Msg("snapshot retry failed, giving up for today")
		}
	}
	return nil
}

func (s *Snapshotter) snapshotOne(ctx context.Context, res resolver.Result, rec drlist.Record, todayLocal string) error {
	ticker := res.ScannerSymbol

	exists, err := s.historyRepo.HasSnapshotForDate(ctx, ticker, todayLocal)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	fetch, err := s.fetcher.Fetch(ctx, ticker)
	if err != nil {
		// Total fetch failure: skip. Missing/Unknown ratings from a
		// partial payload are still inserted below.
		return err
	}

	timestamp := domain.FormatBangkokNaive(s.now().In(s.loc))
	snapshot := domain.RatingHistory{
		Ticker:       ticker,
		Timestamp:    timestamp,
		Exchange:     rec.UnderlyingExchange,
		Market:       res.MarketCode,
		DailyVal:     fetch.Daily.Val,
		DailyRating:  classifier.SnapshotPtr(fetch.Daily.Val),
		WeeklyVal:    fetch.Weekly.Val,
		WeeklyRating: classifier.SnapshotPtr(fetch.Weekly.Val),
		MarketData:   fetch.MarketData,
	}

	inserted, err := s.historyRepo.InsertSnapshot(ctx, snapshot)
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}

	if s.accuracy != nil {
		if err := s.accuracy.Recalculate(ctx, ticker, timestamp, snapshot); err != nil {
			s.log.Warn().Str("ticker", ticker).Err(err).Msg("accuracy recalculation failed after snapshot insert")
		}
	}
	return nil
}
