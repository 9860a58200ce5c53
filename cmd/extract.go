package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/claimtrace/internal/pipeline"
)

var (
	extractDoc     string
	extractContext string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract and verify one claim from a source document",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		doc, err := loadDocument(extractDoc)
		if err != nil {
			return err
		}

		row, err := env.Orchestrator.Run(ctx, doc, extractContext)
		if err != nil {
			var exhausted *pipeline.ExhaustedError
			if errors.As(err, &exhausted) {
				zap.L().Error("extraction rejected, queued for manual review",
					zap.String("document", doc.URL),
					zap.Int("attempts", exhausted.Attempts),
				)
				for _, issue := range exhausted.IssueHistory {
					zap.L().Warn("verification issue", zap.String("issue", issue))
				}
				return err
			}
			return eris.Wrap(err, "extraction run")
		}

		zap.L().Info("extraction complete",
			zap.String("extraction_id", row.ExtractionID),
			zap.String("status", string(row.Status)),
			zap.Int("attempts", row.RetryAttempts),
			zap.Float64("final_confidence", row.FinalConfidence),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(row)
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractDoc, "doc", "", "path to source document JSON (required)")
	extractCmd.Flags().StringVar(&extractContext, "context", "", "what to extract, e.g. \"Q2 revenue growth\" (required)")
	_ = extractCmd.MarkFlagRequired("doc")
	_ = extractCmd.MarkFlagRequired("context")
	rootCmd.AddCommand(extractCmd)
}
