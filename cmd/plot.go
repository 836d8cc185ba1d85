package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/openbuildings-cli/internal/dataset"
	"github.com/sells-group/openbuildings-cli/internal/plot"
)

var (
	plotOut    string
	plotSample int
	plotSeed   uint64
	plotSize   int
)

var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Render a scatter plot of building centroids to PNG",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("out") {
			cfg.Plot.Output = plotOut
		}
		if flags.Changed("sample") {
			cfg.Plot.SampleSize = plotSample
		}
		if flags.Changed("size") {
			cfg.Plot.Size = plotSize
		}
		if err := cfg.Validate("plot"); err != nil {
			return err
		}

		ds, err := loadDataset(cmd.Context())
		if err != nil {
			return err
		}

		points := dataset.Sample(ds.Records, cfg.Plot.SampleSize, plotSeed)
		opts := plot.DefaultOptions()
		opts.Size = cfg.Plot.Size
		if err := plot.WritePNG(cfg.Plot.Output, points, opts); err != nil {
			return err
		}

		zap.L().Info("plot written",
			zap.String("path", cfg.Plot.Output),
			zap.Int("points", len(points)),
			zap.Int("records", ds.Len()),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d of %d points to %s\n", len(points), ds.Len(), cfg.Plot.Output)
		return nil
	},
}

func init() {
	plotCmd.Flags().StringVar(&plotOut, "out", "", "output PNG path (default from config)")
	plotCmd.Flags().IntVar(&plotSample, "sample", 0, "number of points to sample (default from config)")
	plotCmd.Flags().Uint64Var(&plotSeed, "seed", 42, "sampling seed")
	plotCmd.Flags().IntVar(&plotSize, "size", 0, "image width and height in pixels (default from config)")
	rootCmd.AddCommand(plotCmd)
}
