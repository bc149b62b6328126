package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// BackupOptions configures BackupService.
type BackupOptions struct {
	Enabled   bool
	Dir       string
	Interval  time.Duration
	Retention time.Duration
}

// BackupService snapshots the sqlite database on a fixed interval and
// prunes old snapshots. Postgres deployments rely on server-side backups.
type BackupService struct {
	db     *DB
	opts   BackupOptions
	logger *zerolog.Logger
	now    func() time.Time
}

func NewBackupService(db *DB, opts BackupOptions, logger *zerolog.Logger) *BackupService {
	if opts.Interval <= 0 {
		opts.Interval = 24 * time.Hour
	}
	return &BackupService{db: db, opts: opts, logger: logger, now: time.Now}
}

// Start blocks until ctx is done, taking one snapshot immediately.
func (s *BackupService) Start(ctx context.Context) {
	if !s.opts.Enabled {
		s.logger.Info().Msg("sqlite snapshots disabled")
		return
	}
	if s.db.Driver() != DriverSQLite {
		s.logger.Info().Str("driver", s.db.Driver()).Msg("sqlite snapshots skipped: driver has its own backups")
		return
	}

	s.logger.Info().Dur("interval", s.opts.Interval).Msg("sqlite snapshot loop started")

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	if _, err := s.PerformBackup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("first snapshot failed")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.PerformBackup(ctx); err != nil {
				s.logger.Error().Err(err).Msg("periodic snapshot failed")
			}
			s.CleanupOldBackups()
		}
	}
}

// PerformBackup writes a consistent copy with VACUUM INTO and returns its
// path.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if s.db.Driver() != DriverSQLite {
		return "", fmt.Errorf("backup: unsupported driver %q", s.db.Driver())
	}
	if err := os.MkdirAll(s.opts.Dir, 0o755); err != nil {
		return "", fmt.Errorf("snapshot dir: %w", err)
	}

	name := fmt.Sprintf("backup_%s.db", s.now().UTC().Format("20060102_150405"))
	path := filepath.Join(s.opts.Dir, name)

	s.logger.Info().Str("path", path).Msg("writing snapshot")

	if err := s.db.WithContext(ctx).Exec("VACUUM INTO ?", path).Error; err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", path, err)
	}

	s.logger.Info().Msg("snapshot written")
	return path, nil
}

// CleanupOldBackups removes snapshots older than the retention period.
func (s *BackupService) CleanupOldBackups() int {
	if s.opts.Retention <= 0 {
		return 0
	}

	files, err := os.ReadDir(s.opts.Dir)
	if err != nil {
		s.logger.Error().Err(err).Msg("snapshot dir unreadable, nothing pruned")
		return 0
	}

	cutoff := s.now().Add(-s.opts.Retention)
	removed := 0

	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), "backup_") {
			continue
		}

		info, err := file.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			s.logger.Info().Str("file", file.Name()).Msg("pruning snapshot")
			if err := os.Remove(filepath.Join(s.opts.Dir, file.Name())); err != nil {
				s.logger.Warn().Err(err).Str("file", file.Name()).Msg("snapshot not pruned")
				continue
			}
			removed++
		}
	}
	return removed
}
