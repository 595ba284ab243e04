package backup

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/nexabase-io/nexabase/internal/config"
	"github.com/nexabase-io/nexabase/internal/database"
	"github.com/nexabase-io/nexabase/internal/observability"
)

const keyPrefix = "backups/"

// RunStatus is the health view of the scheduler
type RunStatus struct {
	Enabled    bool       `json:"enabled"`
	Schedule   string     `json:"schedule,omitempty"`
	Running    bool       `json:"running"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	LastObject string     `json:"last_object,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	NextRunAt  *time.Time `json:"next_run_at,omitempty"`
}

// Scheduler runs snapshot-compress-upload-prune on a cron schedule. A failed
// run is logged and surfaced on the health endpoint, never fatal.
type Scheduler struct {
	cfg   config.BackupConfig
	db    *database.Connection
	store ObjectStore
	cron  *cron.Cron
	entry cron.EntryID

	mu         sync.Mutex
	running    bool
	lastRunAt  *time.Time
	lastObject string
	lastErr    error

	metrics *observability.Metrics
}

// NewScheduler creates the backup scheduler
func NewScheduler(cfg config.BackupConfig, db *database.Connection, store ObjectStore) *Scheduler {
	return &Scheduler{
		cfg:   cfg,
		db:    db,
		store: store,
		cron:  cron.New(),
	}
}

// SetMetrics attaches the metrics registry
func (s *Scheduler) SetMetrics(m *observability.Metrics) {
	s.metrics = m
}

// Start registers the cron entry and starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		log.Info().Msg("Backup scheduler disabled")
		return nil
	}

	entry, err := s.cron.AddFunc(s.cfg.CronSchedule, func() {
		if err := s.RunOnce(ctx); err != nil {
			log.Error().Err(err).Msg("Scheduled backup failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid backup schedule %q: %w", s.cfg.CronSchedule, err)
	}
	s.entry = entry
	s.cron.Start()

	log.Info().Str("schedule", s.cfg.CronSchedule).Msg("Backup scheduler started")
	return nil
}

// Stop halts the scheduler and waits for a running job to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce performs one backup cycle: snapshot, optional gzip, upload, prune.
// It is also the manual-trigger entry point.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("backup already running")
	}
	s.running = true
	s.mu.Unlock()

	start := time.Now()
	object, err := s.run(ctx)

	now := time.Now()
	s.mu.Lock()
	s.running = false
	s.lastRunAt = &now
	s.lastErr = err
	if err == nil {
		s.lastObject = object
	}
	s.mu.Unlock()

	if s.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		s.metrics.BackupRun(outcome)
	}

	if err != nil {
		return err
	}
	log.Info().
		Str("object", object).
		Dur("duration", time.Since(start)).
		Msg("Backup completed")
	return nil
}

func (s *Scheduler) run(ctx context.Context) (string, error) {
	if s.cfg.UploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.UploadTimeout)
		defer cancel()
	}

	snapshot, err := s.snapshot(ctx)
	if err != nil {
		return "", err
	}
	defer os.Remove(snapshot)

	upload := snapshot
	key := fmt.Sprintf("%s%s-%s.db", keyPrefix, s.cfg.Prefix, time.Now().UTC().Format("20060102_150405"))
	contentType := "application/octet-stream"

	if s.cfg.Compress {
		compressed, err := gzipFile(snapshot)
		if err != nil {
			return "", err
		}
		defer os.Remove(compressed)
		upload = compressed
		key += ".gz"
		contentType = "application/gzip"
	}

	f, err := os.Open(upload)
	if err != nil {
		return "", fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	if err := s.store.Upload(ctx, key, f, info.Size(), contentType); err != nil {
		return "", err
	}

	if err := s.prune(ctx); err != nil {
		// The snapshot is safe; a failed sweep only delays cleanup.
		log.Warn().Err(err).Msg("Backup retention sweep failed")
	}
	return key, nil
}

// snapshot writes an atomic copy of the database into the temp dir
func (s *Scheduler) snapshot(ctx context.Context) (string, error) {
	path := filepath.Join(s.cfg.TempDir, fmt.Sprintf("%s-snapshot-%d.db", s.cfg.Prefix, time.Now().UnixNano()))

	// VACUUM INTO produces a consistent single-file snapshot without
	// blocking writers.
	stmt := fmt.Sprintf("VACUUM INTO '%s'", strings.ReplaceAll(path, "'", "''"))
	if _, err := s.db.DB().ExecContext(ctx, stmt); err != nil {
		return "", fmt.Errorf("snapshotting database: %w", err)
	}
	return path, nil
}

func gzipFile(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	out := path + ".gz"
	dst, err := os.Create(out)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	zw := gzip.NewWriter(dst)
	if _, err := io.Copy(zw, src); err != nil {
		os.Remove(out)
		return "", fmt.Errorf("compressing snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		os.Remove(out)
		return "", err
	}
	return out, nil
}

// prune deletes snapshots older than the retention window
func (s *Scheduler) prune(ctx context.Context) error {
	if s.cfg.Retention <= 0 {
		return nil
	}
	objects, err := s.store.List(ctx, keyPrefix+s.cfg.Prefix+"-")
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-s.cfg.Retention)
	for _, obj := range objects {
		if obj.LastModified.After(cutoff) {
			continue
		}
		if err := s.store.Remove(ctx, obj.Key); err != nil {
			return err
		}
		log.Debug().Str("key", obj.Key).Msg("Expired backup removed")
	}
	return nil
}

// Status reports scheduler health for the health endpoint
func (s *Scheduler) Status() RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := RunStatus{
		Enabled:    s.cfg.Enabled,
		Schedule:   s.cfg.CronSchedule,
		Running:    s.running,
		LastRunAt:  s.lastRunAt,
		LastObject: s.lastObject,
	}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	if s.cfg.Enabled && s.entry != 0 {
		next := s.cron.Entry(s.entry).Next
		if !next.IsZero() {
			status.NextRunAt = &next
		}
	}
	return status
}
