package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/openbuildings-cli/internal/config"
)

var cfg *config.Config

var (
	dataPath      string
	skipInvalid   bool
	parseGeometry bool
	rowLimit      int
)

var rootCmd = &cobra.Command{
	Use:   "openbuildings",
	Short: "Find the building closest to a landmark in Open Buildings data",
	Long: "Downloads an Open Buildings polygon CSV, summarizes and plots it, and reports the " +
		"building whose centroid is closest to a landmark (Cristo Redentor by default).",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		applyDatasetFlags(cmd)

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// applyDatasetFlags overrides dataset config with explicitly set flags.
func applyDatasetFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("data") {
		cfg.Dataset.Path = dataPath
	}
	if flags.Changed("skip-invalid") {
		cfg.Dataset.SkipInvalid = skipInvalid
	}
	if flags.Changed("geometry") {
		cfg.Dataset.ParseGeometry = parseGeometry
	}
	if flags.Changed("max-rows") {
		cfg.Dataset.Limit = rowLimit
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&dataPath, "data", "", "local buildings CSV (plain or gzip); overrides dataset.url")
	pf.BoolVar(&skipInvalid, "skip-invalid", false, "drop rows with invalid coordinates instead of failing")
	pf.BoolVar(&parseGeometry, "geometry", false, "parse WKT footprints")
	pf.IntVar(&rowLimit, "max-rows", 0, "load at most this many rows (0 = all)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
