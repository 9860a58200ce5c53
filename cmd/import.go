package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/claimtrace/internal/model"
	"github.com/sells-group/claimtrace/internal/store"
)

var importFile string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk import lineage rows exported from a prior system",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("link"); err != nil {
			return err
		}
		if cfg.Store.Driver != "postgres" {
			return eris.New("import requires the postgres driver (COPY-based backfill)")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		data, err := os.ReadFile(importFile)
		if err != nil {
			return eris.Wrapf(err, "read import file %s", importFile)
		}
		var rows []model.ExtractionLineage
		if err := json.Unmarshal(data, &rows); err != nil {
			return eris.Wrapf(err, "parse import file %s", importFile)
		}
		if len(rows) == 0 {
			zap.L().Info("import file has no rows")
			return nil
		}

		ps := st.(*store.PostgresStore)
		imported, err := ps.BulkImport(ctx, rows)
		if err != nil {
			return eris.Wrap(err, "bulk import")
		}

		zap.L().Info("import complete",
			zap.Int64("imported", imported),
			zap.String("file", importFile),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to JSON array of lineage rows (required)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
