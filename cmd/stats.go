package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/openbuildings-cli/internal/dataset"
)

var (
	statsHead int
	statsJSON bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print dataset size, column types, length and descriptive statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("dataset"); err != nil {
			return err
		}
		ds, err := loadDataset(cmd.Context())
		if err != nil {
			return err
		}

		summary := dataset.Summarize(ds, statsHead)
		if statsJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return eris.Wrap(enc.Encode(summary), "encode summary")
		}
		return summary.Render(cmd.OutOrStdout())
	},
}

func init() {
	statsCmd.Flags().IntVar(&statsHead, "head", 5, "number of leading rows to show")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print the summary as JSON")
	rootCmd.AddCommand(statsCmd)
}
