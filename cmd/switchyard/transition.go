package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/aretw0/switchyard/internal/cli"
	"github.com/aretw0/switchyard/internal/presentation/tui"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/spf13/cobra"
)

var transitionCmd = &cobra.Command{
	Use:   "transition <target> <transition-id>",
	Short: "Move the workflow to a target state",
	Long: `Requests one transition against the configured storage. Only useful with
a persistent driver (redis or sqlite); the memory driver forgets the result.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		target, err := domain.ParseStateID(args[0])
		if err != nil {
			return err
		}
		rawID, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid transition id %q: %w", args[1], err)
		}
		id := domain.TransitionID(rawID)

		rawCaller, _ := cmd.Flags().GetString("caller")
		caller := cfg.Workflow.Admin
		if rawCaller != "" {
			if caller, err = domain.ParseAddress(rawCaller); err != nil {
				return err
			}
		}

		var data []byte
		if raw, _ := cmd.Flags().GetString("data"); raw != "" {
			if data, err = hex.DecodeString(strings.TrimPrefix(raw, "0x")); err != nil {
				return fmt.Errorf("data: %w", err)
			}
		}

		ctx := cli.WatchSignals(context.Background())
		defer ctx.Stop()

		app, err := cli.Build(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		event, err := app.Engine.TransitionTo(ctx, caller, target, id, data)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return json.NewEncoder(os.Stdout).Encode(event)
		}
		fmt.Printf("%s -> %s (transition %d)\n", event.PreviousState, tui.Highlight(event.NewState.String()), event.TransitionID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(transitionCmd)
	transitionCmd.Flags().String("caller", "", "Actor address (defaults to workflow.admin)")
	transitionCmd.Flags().String("data", "", "Hex-encoded proof or hook data")
	transitionCmd.Flags().Bool("json", false, "Print the transition event as JSON")
}
