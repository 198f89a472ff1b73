// Package scheduler runs the two nightly housekeeping passes that sit
// outside the per-sweep liveupdater loop: retention cleanup of expired
// rows in all four rating tables and the S3 VACUUM INTO backup
// (spec.md §4.11, SPEC_FULL §4.11).
package scheduler

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// RatingsJob is a nightly ratings-maintenance task (retention cleanup,
// snapshot backup) runnable on a cron schedule.
type RatingsJob interface {
	Run() error
	Name() string
}

// RatingsCron drives the daily retention-cleanup and backup jobs.
type RatingsCron struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates a RatingsCron.
func New(log zerolog.Logger) *RatingsCron {
	return &RatingsCron{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "ratings_cron").Logger(),
	}
}

// Start starts the cron runner.
func (s *RatingsCron) Start() {
	s.cron.Start()
	s.log.Info().Msg("ratings cron started")
}

// Stop drains in-flight jobs and stops the cron runner.
func (s *RatingsCron) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("ratings cron stopped")
}

// AddJob registers job on schedule (standard 6-field cron, seconds first —
// e.g. "0 0 0 * * *" for daily at midnight).
func (s *RatingsCron) AddJob(schedule string, job RatingsJob) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.log.Debug().Str("job", job.Name()).Msg("running job")

		if err := job.Run(); err != nil {
			s.log.Error().
				Err(err).
				Str("job", job.Name()).
				Msg("job failed")
		} else {
			s.log.Debug().Str("job", job.Name()).Msg("job completed")
		}
	})

	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("job registered")

	return nil
}

// RunNow executes job immediately, outside its cron schedule.
func (s *RatingsCron) RunNow(job RatingsJob) error {
	s.log.Info().Str("job", job.Name()).Msg("running job immediately")
	return job.Run()
}
