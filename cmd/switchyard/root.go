package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/switchyard/internal/config"
	"github.com/aretw0/switchyard/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "switchyard",
	Short: "Switchyard is a guarded workflow state machine",
	Long: `Switchyard runs one workflow instance: a registered graph of states,
a current pointer and an append-only history, with role, rule and hook
guards on every transition.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the configuration file (YAML)")
	rootCmd.PersistentFlags().String("log-level", "", "Override logger.level (debug, info, warn, error)")
}

// loadConfig reads the configuration and builds the logger it describes.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Logger.Level = lvl
	}
	level, err := logging.ParseLevel(cfg.Logger.Level)
	if err != nil {
		return nil, nil, err
	}
	// Stdout may carry protocol traffic (MCP stdio), so logs always go to stderr.
	logger := logging.NewWithFormat(os.Stderr, level, cfg.Logger.Format)
	return cfg, logger, nil
}
