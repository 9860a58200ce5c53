package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/claimtrace/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "claimtrace",
	Short: "Source verification and lineage tracking for extracted claims",
	Long:  "Verifies LLM-extracted quantitative claims against their source documents, retries rejected extractions with targeted feedback, and records the provenance of every accepted claim through models and dashboards.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
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
