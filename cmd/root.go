package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

const appName = "aa-bridge"

var (
	configPath  string
	envFile     string
	verbose     bool
	metricsAddr string

	rootCmd = &cobra.Command{
		Use:   appName,
		Short: "Cross-chain ERC20 transfers from an ERC-4337 smart account",
		Long: `Send ERC20 tokens across chains through a Sygma bridge from an ERC-4337 SimpleAccount.

The owner key is read from PRIVATE_KEY in the env file and generated on first use.
The token approvals and the bridge deposit run as one batched user operation,
sponsored by a paymaster. Every run is recorded in a local journal.`,
		SilenceUsage: true,
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file. Network presets are used for everything it leaves out")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file holding keys and endpoint urls")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging and a dump of the final state")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address, e.g. localhost:9090")
}
