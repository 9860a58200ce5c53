package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <extraction-id>",
	Short: "Show the full lineage record for an extraction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, svc, err := initLineage(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		row, err := svc.Get(ctx, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(row)
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
