package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/claimtrace/internal/store"
)

var (
	reviewAll   bool
	reviewLimit int
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Manage the manual review queue",
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List extractions awaiting manual review",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, _, err := initLineage(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entries, err := st.ListReviews(ctx, store.ReviewFilter{
			IncludeResolved: reviewAll,
			Limit:           reviewLimit,
		})
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			zap.L().Info("review queue is empty")
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	},
}

var reviewResolveCmd = &cobra.Command{
	Use:   "resolve <review-id>",
	Short: "Mark a review entry as handled",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, _, err := initLineage(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.ResolveReview(ctx, args[0]); err != nil {
			return err
		}
		zap.L().Info("review entry resolved", zap.String("id", args[0]))
		return nil
	},
}

func init() {
	reviewListCmd.Flags().BoolVar(&reviewAll, "all", false, "include resolved entries")
	reviewListCmd.Flags().IntVar(&reviewLimit, "limit", 50, "max entries to list")

	reviewCmd.AddCommand(reviewListCmd)
	reviewCmd.AddCommand(reviewResolveCmd)
	rootCmd.AddCommand(reviewCmd)
}
