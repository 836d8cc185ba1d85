package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
)

// WriteRanking prints results as a ranked table, closest first.
func WriteRanking(w io.Writer, results []Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tFULL PLUS CODE\tLATITUDE\tLONGITUDE\tDISTANCE (DEG)\tDISTANCE (M)\tS2 CELL")
	for i, r := range results {
		b := r.Building
		fmt.Fprintf(tw, "%d\t%s\t%.6f\t%.6f\t%.6f\t%.0f\t%s\n",
			i+1, b.PlusCode, b.Latitude, b.Longitude, r.Distance, r.DistanceMeters, r.S2Token)
	}
	return eris.Wrap(tw.Flush(), "report: write ranking")
}

// WriteHistory prints saved results, one per line.
func WriteHistory(w io.Writer, results []Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tLANDMARK\tFULL PLUS CODE\tDISTANCE (M)\tDATASET\tID")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f\t%s\t%s\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"), r.Landmark.Name, r.Building.PlusCode,
			r.DistanceMeters, r.Dataset, r.ID)
	}
	return eris.Wrap(tw.Flush(), "report: write history")
}
