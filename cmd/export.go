package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/openbuildings-cli/internal/dataset"
	"github.com/sells-group/openbuildings-cli/internal/export"
)

var (
	exportOut        string
	exportFootprints bool
	exportSample     int
	exportSeed       uint64
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write buildings to an ESRI shapefile (centroids or footprints)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportOut == "" {
			return eris.New("--out is required")
		}
		if exportFootprints {
			cfg.Dataset.ParseGeometry = true
		}
		if err := cfg.Validate("dataset"); err != nil {
			return err
		}

		ds, err := loadDataset(cmd.Context())
		if err != nil {
			return err
		}

		records := ds.Records
		if exportSample > 0 {
			records = dataset.Sample(records, exportSample, exportSeed)
		}

		n, err := export.WriteShapefile(exportOut, records, export.ShapefileOptions{Footprints: exportFootprints})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d of %d buildings to %s\n", n, ds.Len(), exportOut)
		return nil
	},
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportOut, "out", "", "output .shp path (.shx and .dbf are written alongside)")
	f.BoolVar(&exportFootprints, "footprints", false, "write polygon footprints instead of centroid points")
	f.IntVar(&exportSample, "sample", 0, "export a random sample of this many buildings (0 = all)")
	f.Uint64Var(&exportSeed, "seed", 42, "sampling seed")
	rootCmd.AddCommand(exportCmd)
}
