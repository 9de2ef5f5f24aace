package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/aa-bridge/core/crosschain"
	"github.com/AvaProtocol/aa-bridge/pkg/erc20"
)

var (
	skipFunding bool

	transferCmd = &cobra.Command{
		Use:   "transfer",
		Short: "Fund the smart account and bridge tokens in one batched user operation",
		Long: `Resolve the smart account of PRIVATE_KEY, give it tokens from PRIVATE_KEY_TOKEN_OWNER,
then approve the fee handler, approve the ERC20 handler and deposit into the bridge
from the smart account in a single executeBatch user operation.

The command waits for the UserOperationEvent, up to confirmation_timeout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransfer(cmd.Context(), cmd.OutOrStdout())
		},
	}
)

func runTransfer(ctx context.Context, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if skipFunding {
		a.cfg.SkipFunding = true
	}
	a.startMetrics(ctx)

	state, err := a.newRunner(out).Run(ctx)
	if verbose && state != nil {
		printer := pp.New()
		printer.SetOutput(out)
		printer.SetColoringEnabled(false)
		printer.Println(state.Record)
	}
	if err != nil {
		a.logger.Error("transfer failed", "code", crosschain.GetErrorCode(err), "error", err)
		var structured *crosschain.StructuredError
		if errors.As(err, &structured) && len(structured.Details) > 0 {
			a.logger.Debug("transfer failure details", "details", structured.Details)
		}
		return err
	}

	a.logger.Info("transfer confirmed",
		"id", state.Record.ID,
		"amount", erc20.FormatUnits(state.TransferAmount, state.Decimals),
		"symbol", state.Symbol,
		"txHash", state.Record.TxHash)
	fmt.Fprintf(out, "Transfer recorded as %s\n", state.Record.ID)
	return nil
}

func init() {
	transferCmd.Flags().BoolVar(&skipFunding, "skip-funding", false, "Do not send tokens to the smart account before bridging")
	rootCmd.AddCommand(transferCmd)
}
