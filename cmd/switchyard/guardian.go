package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aretw0/switchyard/internal/cli"
	"github.com/spf13/cobra"
)

var errRedisOnly = errors.New("requires storage.driver=redis with the matching key configured")

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Refuse transitions on every engine sharing the pause flag",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPaused(cmd, true)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Accept transitions again",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPaused(cmd, false)
	},
}

func setPaused(cmd *cobra.Command, paused bool) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := context.Background()
	app, err := cli.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if app.Pause == nil {
		return fmt.Errorf("pause: %w (storage.redis.pause_key)", errRedisOnly)
	}
	if err := app.Pause.Set(ctx, paused); err != nil {
		return err
	}
	logger.Info("Pause flag updated", "paused", paused)
	fmt.Printf("workflow %s paused=%t\n", cfg.Workflow.Name, paused)
	return nil
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Print transition events from the audit stream, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		count, _ := cmd.Flags().GetInt64("count")

		ctx := context.Background()
		app, err := cli.Build(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		if app.Audit == nil {
			return fmt.Errorf("audit: %w (storage.redis.audit_stream)", errRedisOnly)
		}
		events, err := app.Audit.Read(ctx, count)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return json.NewEncoder(os.Stdout).Encode(events)
		}
		for _, ev := range events {
			fmt.Printf("%s  %s -> %s  id=%d  actor=%s\n",
				ev.Timestamp.Format(time.RFC3339), ev.PreviousState, ev.NewState, ev.TransitionID, ev.Actor)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pauseCmd, resumeCmd, auditCmd)
	auditCmd.Flags().Int64("count", 50, "Maximum number of events")
	auditCmd.Flags().Bool("json", false, "Print events as JSON")
}
