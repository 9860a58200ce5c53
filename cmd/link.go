package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/claimtrace/internal/lineage"
	"github.com/sells-group/claimtrace/internal/store"
)

// initLineage sets up the store and lineage service for the link/impact/get/
// review commands. None of them touch the Anthropic API.
func initLineage(ctx context.Context) (store.Store, *lineage.Service, error) {
	if err := cfg.Validate("link"); err != nil {
		return nil, nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, nil, eris.Wrap(err, "migrate store")
	}
	return st, lineage.NewService(st), nil
}

var linkModelID string

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Record downstream usage of verified extractions",
}

var linkModelCmd = &cobra.Command{
	Use:   "model <extraction-id>...",
	Short: "Link extractions into a financial model",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, svc, err := initLineage(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := svc.LinkToModel(ctx, args, linkModelID)
		if err != nil {
			return err
		}
		zap.L().Info("model link complete",
			zap.String("model_id", linkModelID),
			zap.Int("requested", len(args)),
			zap.Int64("newly_linked", n),
		)
		return nil
	},
}

var linkDashboardModelID string

var linkDashboardCmd = &cobra.Command{
	Use:   "dashboard <dashboard-id>",
	Short: "Link a dashboard to a model, propagating to feeding extractions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, svc, err := initLineage(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := svc.LinkToDashboard(ctx, linkDashboardModelID, args[0])
		if err != nil {
			return err
		}
		if n == 0 {
			zap.L().Warn("no rows linked: model unknown or dashboard already recorded",
				zap.String("model_id", linkDashboardModelID),
				zap.String("dashboard_id", args[0]),
			)
			return nil
		}
		zap.L().Info("dashboard link complete",
			zap.String("model_id", linkDashboardModelID),
			zap.String("dashboard_id", args[0]),
			zap.Int64("newly_linked", n),
		)
		return nil
	},
}

func init() {
	linkModelCmd.Flags().StringVar(&linkModelID, "model", "", "model identifier (required)")
	_ = linkModelCmd.MarkFlagRequired("model")

	linkDashboardCmd.Flags().StringVar(&linkDashboardModelID, "model", "", "model the dashboard consumes (required)")
	_ = linkDashboardCmd.MarkFlagRequired("model")

	linkCmd.AddCommand(linkModelCmd)
	linkCmd.AddCommand(linkDashboardCmd)
	rootCmd.AddCommand(linkCmd)
}
