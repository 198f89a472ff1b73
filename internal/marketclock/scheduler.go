package marketclock

import (
	"context"
	"time"

	"github.com/aristath/dr-ratings/internal/domain"
	"github.com/rs/zerolog"
)

// Snapshotter is invoked once per market at its computed close instant.
// Implemented by internal/snapshotter.HistorySnapshotter.
type Snapshotter interface {
	SnapshotMarket(ctx context.Context, market domain.MarketCode) error
}

// Scheduler runs one independent sleep-to-instant task per market
// (spec.md §4.6). Unlike the teacher's cron-expression scheduler, this is
// not shaped around a fixed calendar expression: each market's wake-up time
// is a computed instant that itself depends on the current DST state.
type Scheduler struct {
	market      domain.MarketCode
	loc         *time.Location
	snapshotter Snapshotter
	log         zerolog.Logger

	now func() time.Time // overridable for tests
}

// New builds a Scheduler for one market.
func New(market domain.MarketCode, loc *time.Location, snapshotter Snapshotter, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		market:      market,
		loc:         loc,
		snapshotter: snapshotter,
		log:         log.With().Str("component", "market_clock_scheduler").Str("market", string(market)).Logger(),
		now:         time.Now,
	}
}

// Run blocks, sleeping to each successive close instant and invoking the
// snapshotter, until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		next, ok := NextClose(s.market, s.now().In(s.loc))
		if !ok {
			s.log.Error().Msg("no close time configured for market; scheduler exiting")
			return
		}

		wait := time.Until(next)
		s.log.Info().Time("next_close", next).Dur("wait", wait).Msg("sleeping until next close instant")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := s.snapshotter.SnapshotMarket(ctx, s.market); err != nil {
			s.log.Error().Err(err).Msg("history snapshot failed")
		}
	}
}

// RunAll starts one Scheduler goroutine per market in domain.AllMarkets and
// blocks until ctx is cancelled.
func RunAll(ctx context.Context, loc *time.Location, snapshotter Snapshotter, log zerolog.Logger) {
	done := make(chan struct{}, len(domain.AllMarkets))
	for _, m := range domain.AllMarkets {
		sched := New(m, loc, snapshotter, log)
		go func() {
			sched.Run(ctx)
			done <- struct{}{}
		}()
	}
	for range domain.AllMarkets {
		<-done
	}
}
