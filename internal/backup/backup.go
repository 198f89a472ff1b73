// Package backup implements the optional nightly S3 upload of a VACUUM INTO
// copy of the SQLite file, wired as a scheduler.RatingsJob (internal/scheduler)
// alongside the daily retention cleanup. Absent BACKUP_S3_BUCKET, the
// component is simply never registered; it plays no part in rating
// correctness.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/mattn/go-sqlite3" // cgo driver, used only for the pre-upload integrity check
	"github.com/rs/zerolog"
)

// Job uploads a VACUUM INTO snapshot of the SQLite database to S3.
type Job struct {
	db     *sql.DB
	bucket string
	region string
	prefix string
	log    zerolog.Logger
}

// New builds a backup Job. Returns nil if bucket is empty, since the caller
// should simply not register an absent job.
func New(ctx context.Context, db *sql.DB, bucket, region string, log zerolog.Logger) (*Job, error) {
	if bucket == "" {
		return nil, nil
	}
	return &Job{
		db:     db,
		bucket: bucket,
		region: region,
		prefix: "ratings-backups",
		log:    log.With().Str("component", "backup").Logger(),
	}, nil
}

// Name satisfies scheduler.RatingsJob.
func (j *Job) Name() string { return "s3_backup" }

// Run satisfies scheduler.RatingsJob: VACUUM INTO a temp file, upload it, and
// remove the temp file regardless of upload outcome.
func (j *Job) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	tmpPath := filepath.Join(os.TempDir(), fmt.Sprintf("ratings-backup-%d.sqlite", time.Now().UnixNano()))
	defer os.Remove(tmpPath)

	if _, err := j.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", tmpPath)); err != nil {
		return fmt.Errorf("vacuum into %s: %w", tmpPath, err)
	}

	if err := verifySnapshot(ctx, tmpPath); err != nil {
		return fmt.Errorf("verify vacuum snapshot: %w", err)
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("open vacuum snapshot: %w", err)
	}
	defer f.Close()

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(j.region))
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	uploader := manager.NewUploader(client)

	key := fmt.Sprintf("%s/%s.sqlite", j.prefix, time.Now().UTC().Format("2006-01-02T15-04-05Z"))
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(j.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("upload backup to s3: %w", err)
	}

	j.log.Info().Str("bucket", j.bucket).Str("key", key).Msg("uploaded database backup")
	return nil
}

// verifySnapshot opens the VACUUM INTO copy with the cgo sqlite3 driver
// (deliberately the other driver from the primary modernc.org/sqlite
// connection, so a corruption affecting one driver's read path doesn't
// also blind the check) and runs a quick integrity check before upload.
func verifySnapshot(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return err
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("integrity check reported: %s", result)
	}
	return nil
}
