package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/aa-bridge/core/config"
	"github.com/AvaProtocol/aa-bridge/core/crosschain"
	"github.com/AvaProtocol/aa-bridge/model"
	"github.com/AvaProtocol/aa-bridge/storage"
)

var (
	dbPath       string
	historyLimit int

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List recorded transfers, newest first",
		Long: `List the transfers recorded in the local journal, newest first.

The journal directory is --db-path, or journal_path from the config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := journalPath()
			if err != nil {
				return err
			}
			db, err := storage.NewWithPath(path)
			if err != nil {
				return fmt.Errorf("failed to open journal: %w", err)
			}
			defer db.Close()

			return printHistory(cmd.OutOrStdout(), crosschain.NewJournal(db), historyLimit)
		},
	}
)

// journalPath resolves the journal directory without requiring chain endpoints.
func journalPath() (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}
	raw, err := config.ReadConfigRaw(configPath)
	if err != nil {
		return "", err
	}
	if raw.JournalPath != "" {
		return raw.JournalPath, nil
	}
	return config.DefaultJournalPath, nil
}

func printHistory(out io.Writer, journal *crosschain.Journal, limit int) error {
	records, err := journal.List(limit)
	if err != nil {
		return fmt.Errorf("failed to list transfers: %w", err)
	}
	if len(records) == 0 {
		fmt.Fprintf(out, "No transfers recorded\n")
		return nil
	}

	for _, r := range records {
		fmt.Fprintf(out, "%s %-9s %s amount=%s domain=%d", time.UnixMilli(r.CreatedAt).UTC().Format("2006-01-02 15:04:05"), r.Status, r.ID, r.Amount, r.DomainID)
		if r.TxHash != "" {
			fmt.Fprintf(out, " tx=%s", r.TxHash)
		}
		if r.Status == model.TransferConfirmed && r.DepositNonce > 0 {
			fmt.Fprintf(out, " nonce=%d", r.DepositNonce)
		}
		if r.Error != "" {
			fmt.Fprintf(out, " step=%s error=%q", r.Step, r.Error)
		}
		fmt.Fprintln(out)
	}

	if verbose {
		printer := pp.New()
		printer.SetOutput(out)
		printer.SetColoringEnabled(false)
		printer.Println(records)
	}

	total, err := journal.Total()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d transfers recorded\n", total)
	for _, status := range []model.TransferStatus{model.TransferConfirmed, model.TransferReverted, model.TransferFailed} {
		total, err := journal.Count(status)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %d\n", status, total)
	}
	return nil
}

func init() {
	historyCmd.Flags().StringVar(&dbPath, "db-path", "", "Path to the journal directory")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Show at most this many transfers, 0 for all")
	rootCmd.AddCommand(historyCmd)
}
