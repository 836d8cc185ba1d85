package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/openbuildings-cli/internal/model"
	"github.com/sells-group/openbuildings-cli/internal/nearest"
	"github.com/sells-group/openbuildings-cli/internal/report"
	"github.com/sells-group/openbuildings-cli/internal/store"
)

var (
	nearestLat     float64
	nearestLon     float64
	nearestName    string
	nearestTop     int
	nearestWorkers int
	nearestFormat  string
	nearestSave    bool
	nearestXLSX    string
)

var nearestCmd = &cobra.Command{
	Use:   "nearest",
	Short: "Report the building closest to the landmark",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("lat") != flags.Changed("lon") {
			return eris.New("--lat and --lon must be given together")
		}
		if flags.Changed("lat") {
			cfg.Landmark.Latitude = nearestLat
			cfg.Landmark.Longitude = nearestLon
			if !flags.Changed("name") {
				cfg.Landmark.Name = "custom point"
			}
		}
		if flags.Changed("name") {
			cfg.Landmark.Name = nearestName
		}
		if flags.Changed("workers") {
			cfg.Nearest.Workers = nearestWorkers
		}
		if nearestTop < 1 {
			return eris.Errorf("--top must be >= 1, got %d", nearestTop)
		}
		if err := cfg.Validate("nearest"); err != nil {
			return err
		}

		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		sink, err := report.NewSink(nearestFormat, out)
		if err != nil {
			return err
		}

		ds, err := loadDataset(ctx)
		if err != nil {
			return err
		}

		matches, err := findMatches(cmd, ds.Records, cfg.Landmark.ReferencePoint, nearestTop)
		if err != nil {
			return err
		}

		results := make([]report.Result, len(matches))
		for i, m := range matches {
			results[i] = report.NewResult(cfg.Landmark, m, cfg.Nearest.S2Level)
			results[i].Dataset = ds.Source
		}

		closest := results[0]
		zap.L().Info("closest building found",
			zap.String("landmark", cfg.Landmark.Name),
			zap.String("plus_code", closest.Building.PlusCode),
			zap.Int("index", closest.Index),
			zap.Float64("distance_degrees", closest.Distance),
			zap.Int("records", ds.Len()),
		)

		if nearestXLSX != "" {
			if err := report.WriteXLSX(nearestXLSX, results); err != nil {
				return err
			}
			zap.L().Info("xlsx written", zap.String("path", nearestXLSX), zap.Int("results", len(results)))
		}

		if err := writeResults(ctx, out, sink, results); err != nil {
			return err
		}

		if nearestSave {
			st, err := store.Open(ctx, cfg.Store)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			return report.StoreSink{Saver: st}.Write(ctx, closest)
		}
		return nil
	},
}

// writeResults prints results in rank order. Text output shows a ranking
// table for k > 1 and ends with the closest result.
func writeResults(ctx context.Context, out io.Writer, sink report.Sink, results []report.Result) error {
	if !isText(nearestFormat) {
		for _, r := range results {
			if err := sink.Write(ctx, r); err != nil {
				return err
			}
		}
		return nil
	}

	if len(results) > 1 {
		if err := report.WriteRanking(out, results); err != nil {
			return err
		}
		fmt.Fprintln(out)
	}
	return sink.Write(ctx, results[0])
}

// findMatches returns the closest record, or the top k ranked by the index.
func findMatches(cmd *cobra.Command, records []model.Building, ref model.ReferencePoint, k int) ([]nearest.Match, error) {
	if k > 1 {
		ix, err := nearest.NewIndex(records)
		if err != nil {
			return nil, err
		}
		return ix.Nearest(ref, k)
	}

	var (
		m   nearest.Match
		err error
	)
	if cfg.Nearest.Workers > 1 {
		m, err = nearest.FindNearestParallel(cmd.Context(), records, ref, cfg.Nearest.Workers)
	} else {
		m, err = nearest.FindNearest(records, ref)
	}
	if err != nil {
		return nil, err
	}
	return []nearest.Match{m}, nil
}

func isText(format string) bool {
	f := strings.ToLower(format)
	return f == "" || f == "text"
}

func init() {
	f := nearestCmd.Flags()
	f.Float64Var(&nearestLat, "lat", 0, "reference latitude (default: configured landmark)")
	f.Float64Var(&nearestLon, "lon", 0, "reference longitude (default: configured landmark)")
	f.StringVar(&nearestName, "name", "", "reference point name")
	f.IntVar(&nearestTop, "top", 1, "number of closest buildings to report")
	f.IntVar(&nearestWorkers, "workers", 0, "parallel scan workers (default from config)")
	f.StringVar(&nearestFormat, "format", "text", "output format: text, json or yaml")
	f.BoolVar(&nearestSave, "save", false, "save the closest result to the store")
	f.StringVar(&nearestXLSX, "xlsx", "", "also write the ranked results to this XLSX file")
	rootCmd.AddCommand(nearestCmd)
}
