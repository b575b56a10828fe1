package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aretw0/switchyard/internal/cli"
	"github.com/aretw0/switchyard/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the current state, next states and history",
	Long: `Prints a report of the workflow instance.

Formats:
- text (default): rendered markdown for the terminal
- markdown: raw markdown
- json: machine-readable report
- mermaid: the registered graph with the visited path highlighted`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		limit, _ := cmd.Flags().GetUint64("history")

		ctx := context.Background()
		app, err := cli.Build(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		report, err := app.Inspect(ctx, limit)
		if err != nil {
			return err
		}

		switch format {
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		case "mermaid":
			chart, err := app.Mermaid(ctx, report)
			if err != nil {
				return err
			}
			fmt.Print(chart)
			return nil
		case "markdown":
			fmt.Print(report.Markdown())
			return nil
		case "text":
			out, err := tui.NewRenderer()(report.Markdown())
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		default:
			return fmt.Errorf("unknown format %q: want text, markdown, json or mermaid", format)
		}
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringP("format", "f", "text", "Output format (text, markdown, json, mermaid)")
	inspectCmd.Flags().Uint64("history", 20, "Maximum number of history records")
}
