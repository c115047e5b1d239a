package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/acquisition-cli/internal/monitoring"
)

var monitorJSON bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Collect pipeline health once and evaluate alert thresholds",
	Long:  "Collects run, attempt, endpoint and candidate metrics over the lookback window, prints them and sends any triggered alerts to the configured webhook.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		checker := monitoring.NewChecker(
			monitoring.NewCollector(env.Runs, env.Pool, env.Accounts),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)
		snap, alerts, err := checker.Check(ctx)
		if err != nil {
			return eris.Wrap(err, "monitor")
		}

		if monitorJSON {
			return printJSON(os.Stdout, map[string]any{"snapshot": snap, "alerts": alerts})
		}
		formatSnapshot(os.Stdout, snap, alerts)
		return nil
	},
}

func init() {
	monitorCmd.Flags().BoolVar(&monitorJSON, "json", false, "print the snapshot as JSON")
	rootCmd.AddCommand(monitorCmd)
}
