package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/AvaProtocol/aa-bridge/core/crosschain"
	"github.com/AvaProtocol/aa-bridge/model"
	"github.com/AvaProtocol/aa-bridge/pkg/erc4337/bundler"
)

// ReceiptFetcher is the part of the bundler client the status command needs.
type ReceiptFetcher interface {
	GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*bundler.UserOperationReceipt, error)
}

var (
	statusCmd = &cobra.Command{
		Use:   "status <userOpHash>",
		Short: "Display the status of a user operation",
		Long: `Display status information about a submitted user operation: what the bundler
reports through eth_getUserOperationReceipt and the matching journal record.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			return printStatus(ctx, cmd.OutOrStdout(), a.bundlerClient, a.journal, args[0])
		},
	}
)

func printStatus(ctx context.Context, out io.Writer, receipts ReceiptFetcher, journal *crosschain.Journal, hashArg string) error {
	if !isHash(hashArg) {
		return crosschain.NewConfigError("not a user operation hash", nil, map[string]interface{}{"value": hashArg})
	}
	hash := common.HexToHash(hashArg)

	fmt.Fprintf(out, "📊 User Operation %s\n", hash.Hex())
	fmt.Fprintf(out, "======================\n\n")

	record, err := journal.FindByUserOp(hash.Hex())
	switch {
	case errors.Is(err, crosschain.ErrTransferNotFound):
		fmt.Fprintf(out, "💾 Journal: no record\n")
	case err != nil:
		return err
	default:
		printRecord(out, record)
	}

	receipt, err := receipts.GetUserOperationReceipt(ctx, hash)
	if err != nil {
		return crosschain.NewNetworkError("cannot fetch user operation receipt", err)
	}
	fmt.Fprintf(out, "\n🔗 Bundler:\n")
	if receipt == nil {
		fmt.Fprintf(out, "   Not included yet\n")
		return nil
	}
	fmt.Fprintf(out, "   Sender: %s\n", receipt.Sender.Hex())
	fmt.Fprintf(out, "   Success: %t\n", receipt.Success)
	if receipt.Reason != "" {
		fmt.Fprintf(out, "   Reason: %s\n", receipt.Reason)
	}
	fmt.Fprintf(out, "   Transaction: %s\n", receipt.Receipt.TransactionHash.Hex())
	if receipt.Receipt.BlockNumber != nil {
		fmt.Fprintf(out, "   Block: %s\n", receipt.Receipt.BlockNumber.BigInt().String())
	}
	if receipt.ActualGasCost != nil {
		fmt.Fprintf(out, "   Actual gas cost: %s wei\n", receipt.ActualGasCost.BigInt().String())
	}
	return nil
}

func printRecord(out io.Writer, r *model.TransferRecord) {
	fmt.Fprintf(out, "💾 Journal:\n")
	fmt.Fprintf(out, "   Transfer: %s\n", r.ID)
	fmt.Fprintf(out, "   Status: %s\n", r.Status)
	fmt.Fprintf(out, "   Smart account: %s\n", r.SmartAccount)
	fmt.Fprintf(out, "   Amount: %s\n", r.Amount)
	fmt.Fprintf(out, "   Recipient: %s (domain %d)\n", r.Recipient, r.DomainID)
	if r.DepositNonce > 0 {
		fmt.Fprintf(out, "   Deposit nonce: %d\n", r.DepositNonce)
	}
	if r.Error != "" {
		fmt.Fprintf(out, "   Failed at %s: %s\n", r.Step, r.Error)
	}
}

func isHash(s string) bool {
	b := common.FromHex(s)
	return len(b) == common.HashLength && len(s) >= 2*common.HashLength
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
