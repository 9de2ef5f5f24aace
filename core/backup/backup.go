// Package backup snapshots the transfer journal to timestamped files.
package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/AvaProtocol/aa-bridge/pkg/logger"
	"github.com/AvaProtocol/aa-bridge/storage"
)

const backupFileName = "journal.backup"

type Service struct {
	logger    logger.Logger
	db        storage.Storage
	backupDir string
	now       func() time.Time
}

func NewService(lgr logger.Logger, db storage.Storage, backupDir string) *Service {
	return &Service{
		logger:    logger.EnsureLogger(lgr),
		db:        db,
		backupDir: backupDir,
		now:       time.Now,
	}
}

// Run takes a backup right away, then every interval until ctx is done.
// Only the first backup failing is returned, later ones are logged.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	if _, err := s.PerformBackup(ctx); err != nil {
		return err
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create backup scheduler: %w", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := s.PerformBackup(ctx); err != nil {
				s.logger.Errorf("Periodic backup failed: %v", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule backup: %w", err)
	}

	scheduler.Start()
	s.logger.Infof("Started periodic backup every %v to %s", interval, s.backupDir)

	<-ctx.Done()
	if err := scheduler.Shutdown(); err != nil {
		s.logger.Warn("backup scheduler did not shut down cleanly", "error", err)
	}
	s.logger.Infof("Stopped periodic backup")
	return nil
}

// PerformBackup writes a full backup to <backupDir>/yy-mm-dd-hh-mm/journal.backup.
func (s *Service) PerformBackup(ctx context.Context) (string, error) {
	backupPath := filepath.Join(s.backupDir, s.now().Format("06-01-02-15-04"))
	if err := os.MkdirAll(backupPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup timestamp directory: %w", err)
	}

	backupFile := filepath.Join(backupPath, backupFileName)
	f, err := os.Create(backupFile)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}

	if _, err := s.db.Backup(ctx, f, 0); err != nil {
		f.Close()
		os.Remove(backupFile)
		return "", fmt.Errorf("backup operation failed: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(backupFile)
		return "", fmt.Errorf("failed to close backup file: %w", err)
	}

	s.logger.Info("backup completed", "journal", s.db.DbPath(), "file", backupFile)
	return backupFile, nil
}

// Restore loads a file written by PerformBackup into db.
func Restore(ctx context.Context, db storage.Storage, r io.Reader) error {
	if err := db.Load(ctx, r); err != nil {
		return fmt.Errorf("restore operation failed: %w", err)
	}
	return nil
}
