// Package liveupdater implements LiveUpdater: the endless fetch-dedupe-
// fan-out-write loop that keeps rating_stats and rating_main current
// (spec.md §4.5).
package liveupdater

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aristath/dr-ratings/internal/domain"
	"github.com/aristath/dr-ratings/internal/ratings/classifier"
	"github.com/aristath/dr-ratings/internal/ratings/drlist"
	"github.com/aristath/dr-ratings/internal/ratings/resolver"
	"github.com/aristath/dr-ratings/internal/ratings/scanner"
	"github.com/aristath/dr-ratings/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CleanupFunc runs the daily date-window retention pass (spec.md §4.5 step 7).
type CleanupFunc func(ctx context.Context) error

// SnapshotCache is the last-fetched-DR-list debug cache (internal/snapshot),
// kept as a narrow interface here to avoid a hard dependency.
type SnapshotCache interface {
	Set(records []drlist.Record)
}

// Broadcaster pushes a live-update event to connected HTTPFacade subscribers
// whenever a sweep commits at least one rating_main change.
type Broadcaster interface {
	Broadcast(batchID string, changed int)
}

// Config configures an Updater.
type Config struct {
	MaxConcurrency int
	BatchSleep     time.Duration
	UpdateInterval time.Duration
}

// Updater implements LiveUpdater.
type Updater struct {
	drList   *drlist.Client
	resolver *resolver.Resolver
	fetcher  *scanner.Client
	stats    *store.StatsRepository
	main     *store.MainRepository
	cleanup  CleanupFunc
	snapshot SnapshotCache
	bcast    Broadcaster
	cfg      Config
	loc      *time.Location
	log      zerolog.Logger

	now func() time.Time
}

// New builds an Updater. snapshotCache and bcast are both optional (nil is
// fine) diagnostic/UX hooks that never affect write correctness.
func New(
	drList *drlist.Client,
	res *resolver.Resolver,
	fetcher *scanner.Client,
	stats *store.StatsRepository,
	main *store.MainRepository,
	cleanup CleanupFunc,
	snapshotCache SnapshotCache,
	bcast Broadcaster,
	cfg Config,
	loc *time.Location,
	log zerolog.Logger,
) *Updater {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	if cfg.BatchSleep <= 0 {
		cfg.BatchSleep = time.Second
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = 180 * time.Second
	}
	return &Updater{
		drList:   drList,
		resolver: res,
		fetcher:  fetcher,
		stats:    stats,
		main:     main,
		cleanup:  cleanup,
		snapshot: snapshotCache,
		bcast:    bcast,
		cfg:      cfg,
		loc:      loc,
		log:      log.With().Str("component", "live_updater").Logger(),
		now:      time.Now,
	}
}

// Run blocks, repeating the fetch/write sweep until ctx is cancelled.
func (u *Updater) Run(ctx context.Context) {
	for {
		batchID := uuid.NewString()
		log := u.log.With().Str("batch_id", batchID).Logger()

		if err := u.sweep(ctx, batchID, log); err != nil {
			log.Warn().Err(err).Msg("DR list fetch failed, restarting after update interval")
			if !sleepCtx(ctx, u.cfg.UpdateInterval) {
				return
			}
			continue
		}

		if u.cleanup != nil {
			if err := u.cleanup(ctx); err != nil {
				log.Error().Err(err).Msg("daily retention cleanup failed")
			}
		}

		if !sleepCtx(ctx, u.cfg.UpdateInterval) {
			return
		}
	}
}

func (u *Updater) sweep(ctx context.Context, batchID string, log zerolog.Logger) error {
	records, err := u.drList.Fetch(ctx)
	if err != nil {
		return err
	}
	records = drlist.DedupeByCode(records)
	if u.snapshot != nil {
		u.snapshot.Set(records)
	}

	type job struct {
		ticker string
		rec    drlist.Record
		res    resolver.Result
	}
	var jobs []job
	for _, rec := range records {
		res, err := u.resolver.Resolve(resolver.Record{
			Symbol:             rec.Symbol,
			Underlying:         rec.Underlying,
			UnderlyingName:     rec.UnderlyingName,
			UnderlyingExchange: rec.UnderlyingExchange,
		})
		if err != nil {
			continue
		}
		jobs = append(jobs, job{ticker: res.ScannerSymbol, rec: rec, res: res})
	}

	sem := make(chan struct{}, u.cfg.MaxConcurrency)
	var wg sync.WaitGroup
	var changed int64

dispatch:
	for _, j := range jobs {
		if ctx.Err() != nil {
			break dispatch
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}

		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			defer func() { <-sem }()
			if u.fetchAndWrite(ctx, j.ticker, log) {
				atomic.AddInt64(&changed, 1)
			}
		}(j)

		if !sleepCtx(ctx, u.cfg.BatchSleep) {
			break dispatch
		}
	}
	wg.Wait()

	if u.bcast != nil {
		u.bcast.Broadcast(batchID, int(atomic.LoadInt64(&changed)))
	}
	return nil
}

// fetchAndWrite fetches and writes one ticker, reporting whether the
// rating_main write actually inserted a row.
func (u *Updater) fetchAndWrite(ctx context.Context, ticker string, log zerolog.Logger) bool {
	fetch, err := u.fetcher.Fetch(ctx, ticker)
	if err != nil {
		log.Warn().Str("ticker", ticker).Err(err).Msg("live fetch failed, skipping")
		return false
	}

	daily := domain.TimeframeSnapshot{Val: fetch.Daily.Val, Rating: classifier.LivePtr(fetch.Daily.Val)}
	weekly := domain.TimeframeSnapshot{Val: fetch.Weekly.Val, Rating: classifier.LivePtr(fetch.Weekly.Val)}
	if daily.Rating == domain.LabelUnknown || weekly.Rating == domain.LabelUnknown {
		return false
	}

	timestamp := domain.FormatBangkokNaive(u.now().In(u.loc))

	if _, err := u.stats.RecordIfChanged(ctx, ticker, timestamp, daily, weekly); err != nil {
		log.Error().Str("ticker", ticker).Err(err).Msg("rating_stats write failed")
	}
	mainChanged, err := u.main.Upsert(ctx, ticker, timestamp, daily, weekly, fetch.MarketData)
	if err != nil {
		log.Error().Str("ticker", ticker).Err(err).Msg("rating_main write failed")
	}
	return mainChanged
}

// sleepCtx sleeps for d or returns false early if ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
