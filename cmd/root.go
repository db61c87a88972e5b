package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "vtyscan",
	Short: "Terminal-line security auditor for network devices",
	Long: `vtyscan audits the terminal-line configuration of network devices
(vty, console, aux, and async lines) over a shared SSH jump host. It
collects the running line configuration, classifies each line's exposure,
and reports telnet access, missing login, and unfiltered management paths.

Get started:
  vtyscan onboard    Interactive setup wizard
  vtyscan doctor     Verify config, database, and tunnel reachability
  vtyscan audit      Run a one-shot audit over the inventory
  vtyscan gateway    Start the persistent gateway daemon with REST API
  vtyscan ui         Launch the terminal UI
  vtyscan runs       Inspect recorded audit runs`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ~/.vtyscan/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable verbose/debug output")

	rootCmd.Version = Version
	rootCmd.AddCommand(
		onboardCmd,
		auditCmd,
		gatewayCmd,
		uiCmd,
		runsCmd,
		inventoryCmd,
		configCmd,
		doctorCmd,
	)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		slog.Debug("Verbose logging enabled")
	}
}
