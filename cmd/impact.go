package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var impactCmd = &cobra.Command{
	Use:   "impact <document-hash>",
	Short: "Report everything downstream of a source document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, svc, err := initLineage(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		report, err := svc.ImpactAnalysis(ctx, args[0])
		if err != nil {
			return err
		}

		if report.Empty() {
			zap.L().Info("no lineage recorded for document", zap.String("hash", args[0]))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	rootCmd.AddCommand(impactCmd)
}
