package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AvaProtocol/aa-bridge/core/backup"
	"github.com/AvaProtocol/aa-bridge/pkg/logger"
	"github.com/AvaProtocol/aa-bridge/storage"
)

var (
	backupDir        string
	periodicInterval int
	restoreFile      string

	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Backup the transfer journal",
		Long: `Backup the transfer journal to a directory.

The backup command can run either as a one-time backup or as a periodic backup process.
Backups are stored in the format: /backup_dir/yy-mm-dd-hh-mm/journal.backup
Use --db-path to pick the journal directory, journal_path from the config file by default.
Use --interval to enable periodic backups (value in minutes, 0 means one-time backup).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path, err := journalPath()
			if err != nil {
				return err
			}
			db, err := storage.NewWithPath(path)
			if err != nil {
				return fmt.Errorf("failed to open journal: %w", err)
			}
			defer db.Close()

			lgr, err := logger.New("", verbose)
			if err != nil {
				return err
			}
			service := backup.NewService(lgr, db, backupDir)

			if periodicInterval > 0 {
				return service.Run(ctx, time.Duration(periodicInterval)*time.Minute)
			}
			backupFile, err := service.PerformBackup(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup completed successfully to %s\n", backupFile)
			return nil
		},
	}

	restoreCmd = &cobra.Command{
		Use:   "restore",
		Short: "Restore the transfer journal from backup",
		Long: `Restore the transfer journal from a backup file written by the backup command.

Use --file to specify the backup file to restore from.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := journalPath()
			if err != nil {
				return err
			}
			if err := performRestore(cmd.Context(), path, restoreFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restore completed successfully\n")
			return nil
		},
	}
)

func performRestore(ctx context.Context, dbPath, restoreFile string) error {
	f, err := os.Open(restoreFile)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer f.Close()

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := storage.NewWithPath(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer db.Close()

	return backup.Restore(ctx, db, f)
}

func init() {
	backupCmd.Flags().StringVar(&dbPath, "db-path", "", "Path to the journal directory")
	backupCmd.Flags().StringVar(&backupDir, "dir", "./backup", "Directory to store backups")
	backupCmd.Flags().IntVar(&periodicInterval, "interval", 0, "Run backups periodically (minutes, 0 for one-time)")
	rootCmd.AddCommand(backupCmd)

	restoreCmd.Flags().StringVar(&dbPath, "db-path", "", "Path to the journal directory")
	restoreCmd.Flags().StringVar(&restoreFile, "file", "", "Backup file to restore from (required)")
	restoreCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(restoreCmd)
}
