package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/acquisition-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "acquisition-cli",
	Short: "Creator acquisition pipeline",
	Long:  "Discovers creator accounts on social platforms, reconciles them against known identities, enriches their profiles and tracks every run and fetch attempt.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
