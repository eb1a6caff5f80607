// Package cli implements the trail command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tutu-network/trail/internal/daemon"
)

// cfgFile is the --config flag; empty means $TRAIL_HOME/config.toml.
var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "trail",
	Short: "Token-weighted voting ledger",
	Long: `Trail runs a voting ledger where token balances weight ballots.
Registries issue tokens, publishers run ballots through setup, voting and
close, voters cast weighted votes, and workers keep stale receipts in sync
in exchange for payment from each registry's fee reserve.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $TRAIL_HOME/config.toml)")
}

// Execute runs the root command. It is called once by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// configPath resolves the --config flag.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return daemon.ConfigPath()
}

// loadConfig reads the resolved config file.
func loadConfig() (daemon.Config, error) {
	return daemon.LoadConfig(configPath())
}
