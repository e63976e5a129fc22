// posture watches a webcam, asks an inference service whether the person
// in front of it is slouching, and locks the screen with an alarm after
// ten seconds of bad posture.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/teslashibe/go-posture/internal/config"
	"github.com/teslashibe/go-posture/internal/log"
)

var (
	configPath string
	envFile    string
	apiBase    string
	debug      bool
	jsonOutput bool

	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "posture",
	Short:         "Webcam posture watch with a lockout alarm",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath, envFile)
		if err != nil {
			return err
		}
		if apiBase != "" {
			cfg.APIBase = apiBase
		}
		if debug {
			cfg.LogLevel = "debug"
		}
		if jsonOutput {
			cfg.LogFormat = "json"
		}
		logger = log.Init(log.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
		return nil
	},
	RunE: runWatch,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "environment file, loaded if present")
	rootCmd.PersistentFlags().StringVar(&apiBase, "api", "", "inference service base URL (overrides POSTURE_API_BASE)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "log and print as JSON")

	addRunFlags(rootCmd)
	addRunFlags(runCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(camerasCmd)
	rootCmd.AddCommand(pingCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error("posture failed", "error", err)
		os.Exit(1)
	}
}
