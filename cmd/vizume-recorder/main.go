package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Kaplaugher/vizume/internal/config"
	"github.com/Kaplaugher/vizume/internal/logging"
)

var (
	version = "0.1.0"
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:           "vizume-recorder",
	Short:         "Vizume screen and camera recorder",
	Long:          `vizume-recorder captures the screen or a camera, optionally mixing in a microphone, and hands the finished WebM recording to the upload pipeline.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "vizume-recorder v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/vizume/recorder.yaml)")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(handoffCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads and validates the configuration and sets up logging.
// A missing or unreadable file falls back to defaults.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config, using defaults: %v\n", err)
		cfg = config.Default()
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, os.Stderr)
	for _, err := range cfg.Validate() {
		logging.L("config").Warn("config value adjusted", logging.KeyError, err.Error())
	}
	return cfg
}
