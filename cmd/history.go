package main

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/openbuildings-cli/internal/report"
	"github.com/sells-group/openbuildings-cli/internal/store"
)

var (
	historyLandmark string
	historyLimit    int
	historyFormat   string
	historyXLSX     string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List saved nearest-building results",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("history"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		results, err := st.ListResults(ctx, store.ResultFilter{Landmark: historyLandmark, Limit: historyLimit})
		if err != nil {
			return err
		}

		if historyXLSX != "" {
			if err := report.WriteXLSX(historyXLSX, results); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		switch strings.ToLower(historyFormat) {
		case "", "text":
			return report.WriteHistory(out, results)
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return eris.Wrap(enc.Encode(results), "encode history")
		case "yaml", "yml":
			enc := yaml.NewEncoder(out)
			defer enc.Close() //nolint:errcheck
			return eris.Wrap(enc.Encode(results), "encode history")
		default:
			return eris.Errorf("unknown format %q (want text, json or yaml)", historyFormat)
		}
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyLandmark, "landmark", "", "only show results for this landmark")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum results to list")
	historyCmd.Flags().StringVar(&historyFormat, "format", "text", "output format: text, json or yaml")
	historyCmd.Flags().StringVar(&historyXLSX, "xlsx", "", "also export the listed results to this XLSX file")
	rootCmd.AddCommand(historyCmd)
}
