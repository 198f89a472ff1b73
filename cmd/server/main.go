package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/dr-ratings/internal/accuracy"
	"github.com/aristath/dr-ratings/internal/backup"
	"github.com/aristath/dr-ratings/internal/config"
	"github.com/aristath/dr-ratings/internal/marketclock"
	"github.com/aristath/dr-ratings/internal/domain"
	"github.com/aristath/dr-ratings/internal/liveupdater"
	"github.com/aristath/dr-ratings/internal/ratings/drlist"
	"github.com/aristath/dr-ratings/internal/ratings/resolver"
	"github.com/aristath/dr-ratings/internal/ratings/scanner"
	"github.com/aristath/dr-ratings/internal/scheduler"
	"github.com/aristath/dr-ratings/internal/server"
	"github.com/aristath/dr-ratings/internal/snapshot"
	"github.com/aristath/dr-ratings/internal/snapshotter"
	"github.com/aristath/dr-ratings/internal/store"
	"github.com/aristath/dr-ratings/pkg/logger"
)

func main() {
	log := logger.New(logger.Config{
		Level:  "info",
		Pretty: true,
	})

	log.Info().Msg("starting dr-ratings")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	st, err := store.Open(cfg.DBFile, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	loc, err := time.LoadLocation("Asia/Bangkok")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load Asia/Bangkok location")
	}

	drListClient := drlist.New(cfg.DRListURL, 20*time.Second, log)
	res := resolver.New(log)
	fetcher := scanner.New(scanner.Config{BaseURL: cfg.TVBase, RequestTimeout: cfg.RequestTimeout}, log)

	statsRepo := store.NewStatsRepository(st.Conn(), log)
	mainRepo := store.NewMainRepository(st.Conn(), log)
	historyRepo := store.NewHistoryRepository(st.Conn(), log)
	accuracyRepo := store.NewAccuracyRepository(st.Conn(), log)
	cleanupRepo := store.NewCleanupRepository(st.Conn(), log)
	queryRepo := store.NewQueryRepository(st.Conn(), log)

	accCalc := accuracy.New(historyRepo, accuracyRepo, cfg.AccuracyWindowDays, log)
	backfillAccuracy(context.Background(), historyRepo, accCalc, log)

	snapCache := snapshot.New(filepath.Join(os.TempDir(), "dr-ratings-snapshot.msgpack"), log)

	srv := server.New(server.Config{
		Addr:       cfg.HTTPAddr,
		Log:        log,
		Query:      queryRepo,
		Accuracy:   accCalc,
		Snapshot:   snapCache,
		Cfg:        cfg,
		StartedAt:  time.Now(),
		AppVersion: "1.0.0",
		DevMode:    cfg.DevMode,
	})

	cleanupFn := func(ctx context.Context) error {
		targetDate := time.Now().In(loc).AddDate(0, 0, -cfg.RetentionDays).Format("2006-01-02")
		counts, err := cleanupRepo.DeleteForDate(ctx, targetDate)
		if err != nil {
			return err
		}
		log.Info().
			Int64("rating_stats", counts.Stats).
			Int64("rating_main", counts.Main).
			Int64("rating_history", counts.History).
			Int64("rating_accuracy", counts.Accuracy).
			Str("target_date", targetDate).
			Msg("daily retention cleanup complete")
		return nil
	}

	updater := liveupdater.New(
		drListClient, res, fetcher,
		statsRepo, mainRepo,
		cleanupFn,
		snapCache, srv,
		liveupdater.Config{
			MaxConcurrency: cfg.MaxConcurrency,
			BatchSleep:     cfg.BatchSleep,
			UpdateInterval: cfg.UpdateInterval,
		},
		loc, log,
	)

	snap := snapshotter.New(drListClient, res, fetcher, historyRepo, accCalc, loc, log)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go updater.Run(rootCtx)
	go marketclock.RunAll(rootCtx, loc, snap, log)

	sched := scheduler.New(log)
	sched.Start()
	defer sched.Stop()

	if err := sched.AddJob("CRON_TZ=Asia/Bangkok 0 0 0 * * *", cleanupJob{fn: cleanupFn, log: log}); err != nil {
		log.Error().Err(err).Msg("failed to register daily retention cleanup job")
	}

	if backupJob, err := backup.New(rootCtx, st.Conn(), cfg.BackupS3Bucket, cfg.BackupS3Region, log); err != nil {
		log.Error().Err(err).Msg("failed to initialize s3 backup job")
	} else if backupJob != nil {
		if err := sched.AddJob("0 30 0 * * *", backupJob); err != nil {
			log.Error().Err(err).Msg("failed to register s3 backup job")
		}
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start HTTP server")
		}
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Msg("dr-ratings started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced to shutdown")
	}

	log.Info().Msg("stopped")
}

// backfillAccuracy implements the startup back-fill pass (spec.md §3
// "Lifecycle"): recompute rating_accuracy for every ticker's most recent
// rating_history row, so a fresh deployment is never missing its latest
// accuracy row.
func backfillAccuracy(ctx context.Context, historyRepo *store.HistoryRepository, calc *accuracy.Calculator, log zerolog.Logger) {
	pairs, err := historyRepo.DistinctTickerTimestamps(ctx)
	if err != nil {
		log.Error().Err(err).Msg("accuracy back-fill: failed to list ticker/timestamp pairs")
		return
	}
	seen := make(map[string]bool, len(pairs))
	for _, pair := range pairs {
		ticker, ts := pair[0], pair[1]
		if seen[ticker] {
			continue
		}
		seen[ticker] = true

		rows, err := historyRepo.WindowRows(ctx, ticker, "")
		if err != nil || len(rows) == 0 {
			continue
		}
		latest := rows[0]
		snapshot := domain.RatingHistory{Ticker: ticker, Timestamp: ts, Price: latest.Price, ChangePct: latest.ChangePct}
		if err := calc.Recalculate(ctx, ticker, ts, snapshot); err != nil {
			log.Warn().Err(err).Str("ticker", ticker).Msg("accuracy back-fill failed for ticker")
		}
	}
	log.Info().Int("tickers", len(seen)).Msg("accuracy back-fill complete")
}

// cleanupJob adapts cleanupFn to scheduler.RatingsJob for the cron-scheduled daily
// retention pass.
type cleanupJob struct {
	fn  func(ctx context.Context) error
	log zerolog.Logger
}

func (j cleanupJob) Name() string { return "daily_retention_cleanup" }

func (j cleanupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return j.fn(ctx)
}
