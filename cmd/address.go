package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AvaProtocol/aa-bridge/core/chainio/aa"
	"github.com/AvaProtocol/aa-bridge/pkg/erc20"
)

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Print the smart account address of PRIVATE_KEY",
	Long: `Print the owner and the counterfactual smart account address, whether the account
is deployed, and its token balance. A key is generated when PRIVATE_KEY is not set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		owner, err := a.loadOwner(ctx)
		if err != nil {
			return err
		}
		account, err := a.newAccount(ctx, owner)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "owner %s\n", account.Owner().Hex())
		fmt.Fprintf(out, "smart wallet address %s\n", account.Sender().Hex())

		deployed, err := aa.IsDeployed(ctx, a.ethClient, account.Sender())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "deployed %t\n", deployed)

		token := a.token()
		meta, err := token.Metadata(ctx)
		if err != nil {
			a.logger.Warn("cannot read token metadata", "token", a.cfg.Token.Hex(), "error", err)
			return nil
		}
		balance, err := token.BalanceOf(ctx, account.Sender())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "balance %s %s\n", erc20.FormatUnits(balance, meta.Decimals), meta.Symbol)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addressCmd)
}
