package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/warp/performance-engine/sales"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Run one leaderboard aggregation cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		run, err := a.handler.Aggregator.RunCycle(ctx)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(run); encErr != nil {
			return encErr
		}
		return err
	},
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the scoring rule table",
	RunE: func(cmd *cobra.Command, args []string) error {
		table := sales.Rules()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Rule table version %s\n\n", table.Version())

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TYPE\tCATEGORY\tPOINTS\tSUMMARY KEY\tMEASURE\tAPI VALUE")
		for _, r := range table.Rules() {
			api := ""
			if r.RequiresAPIValue {
				api = "required"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n", r.Type, r.Category, r.Points, r.SummaryKey, r.Measure, api)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		fmt.Fprintln(out, "\nBonuses:")
		for _, b := range sales.BonusRules() {
			fmt.Fprintf(out, "  %-16s +%d\n", b.Name, b.Points)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(rulesCmd)
}
