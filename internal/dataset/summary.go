package dataset

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"text/tabwriter"
	"unsafe"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/openbuildings-cli/internal/model"
	"github.com/sells-group/openbuildings-cli/internal/nearest"
)

// ColumnInfo describes how a CSV column is held in memory.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// NumericStats are descriptive statistics of one numeric column, NaN excluded.
type NumericStats struct {
	Column string  `json:"column"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// MarshalJSON encodes the NaN statistics of an empty column as null.
func (st NumericStats) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Column string   `json:"column"`
		Count  int      `json:"count"`
		Mean   *float64 `json:"mean"`
		Min    *float64 `json:"min"`
		Max    *float64 `json:"max"`
	}{st.Column, st.Count, model.FiniteOrNil(st.Mean), model.FiniteOrNil(st.Min), model.FiniteOrNil(st.Max)})
}

// Summary is a printable overview of a loaded dataset.
type Summary struct {
	Source               string           `json:"source"`
	Rows                 int              `json:"rows"`
	Skipped              int              `json:"skipped"`
	ConfidenceOutOfRange int              `json:"confidence_out_of_range"`
	SizeBytes            int64            `json:"size_bytes"`
	Columns              []ColumnInfo     `json:"columns"`
	Stats                []NumericStats   `json:"stats"`
	BBox                 *nearest.BBox    `json:"bbox,omitempty"`
	GeometryKinds        map[string]int   `json:"geometry_kinds,omitempty"`
	Head                 []model.Building `json:"head"`
}

var buildingSize = int64(unsafe.Sizeof(model.Building{}))

// Summarize computes the summary of ds, keeping the first headN records.
func Summarize(ds *Dataset, headN int) Summary {
	s := Summary{
		Source:               ds.Source,
		Rows:                 len(ds.Records),
		Skipped:              ds.Skipped,
		ConfidenceOutOfRange: ds.ConfidenceOutOfRange,
		GeometryKinds:        ds.GeometryKinds,
		Columns:              columnTypes(ds),
	}

	headN = max(0, min(headN, len(ds.Records)))
	s.Head = ds.Records[:headN]

	acc := map[string]*NumericStats{}
	order := []string{model.ColLatitude, model.ColLongitude, model.ColAreaInMeters, model.ColConfidence}
	for _, col := range order {
		acc[col] = &NumericStats{Column: col, Min: math.Inf(1), Max: math.Inf(-1)}
	}

	for _, b := range ds.Records {
		s.SizeBytes += buildingSize + int64(len(b.PlusCode))
		if b.Footprint != nil {
			s.SizeBytes += int64(len(b.Footprint.FlatCoords())) * 8
		}
		observe(acc[model.ColLatitude], b.Latitude)
		observe(acc[model.ColLongitude], b.Longitude)
		observe(acc[model.ColAreaInMeters], b.AreaInMeters)
		observe(acc[model.ColConfidence], b.Confidence)
	}

	for _, col := range order {
		st := acc[col]
		if st.Count > 0 {
			st.Mean /= float64(st.Count)
		} else {
			st.Mean, st.Min, st.Max = math.NaN(), math.NaN(), math.NaN()
		}
		s.Stats = append(s.Stats, *st)
	}

	lat, lon := acc[model.ColLatitude], acc[model.ColLongitude]
	if lat.Count > 0 && lon.Count > 0 {
		s.BBox = &nearest.BBox{MinLng: lon.Min, MinLat: lat.Min, MaxLng: lon.Max, MaxLat: lat.Max}
	}
	return s
}

// observe accumulates v; Mean holds the running sum until finalized.
func observe(st *NumericStats, v float64) {
	if math.IsNaN(v) {
		return
	}
	st.Count++
	st.Mean += v
	st.Min = math.Min(st.Min, v)
	st.Max = math.Max(st.Max, v)
}

func columnTypes(ds *Dataset) []ColumnInfo {
	types := map[string]string{
		model.ColLatitude:     "float64",
		model.ColLongitude:    "float64",
		model.ColAreaInMeters: "float64",
		model.ColConfidence:   "float64",
		model.ColPlusCode:     "string",
		model.ColGeometry:     "skipped",
	}
	if ds.GeometryKinds != nil {
		types[model.ColGeometry] = "geom.T"
	}

	out := make([]ColumnInfo, 0, len(ds.Columns))
	for _, c := range ds.Columns {
		t, ok := types[c]
		if !ok {
			t = "skipped"
		}
		out = append(out, ColumnInfo{Name: c, Type: t})
	}
	return out
}

// Render prints the summary as size, dtypes, length, head and describe blocks.
func (s Summary) Render(w io.Writer) error {
	p := message.NewPrinter(language.English)

	p.Fprintf(w, "Dataset size: %.2f MB\n\n", float64(s.SizeBytes)/1e6)

	fmt.Fprintln(w, "Data types:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range s.Columns {
		fmt.Fprintf(tw, "%s\t%s\n", c.Name, c.Type)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)

	p.Fprintf(w, "Dataset length: %d rows\n", s.Rows)
	if s.Skipped > 0 {
		p.Fprintf(w, "Skipped rows: %d\n", s.Skipped)
	}
	if s.ConfidenceOutOfRange > 0 {
		p.Fprintf(w, "Confidence outside [%.2f, %.2f]: %d rows\n", model.MinConfidence, model.MaxConfidence, s.ConfidenceOutOfRange)
	}
	fmt.Fprintln(w)

	if len(s.Head) > 0 {
		tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "\tlatitude\tlongitude\tarea_in_meters\tconfidence\tfull_plus_code\t")
		for i, b := range s.Head {
			fmt.Fprintf(tw, "%d\t%.6f\t%.6f\t%.4f\t%.4f\t%s\t\n",
				i, b.Latitude, b.Longitude, b.AreaInMeters, b.Confidence, b.PlusCode)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tcount\tmean\tmin\tmax\t")
	for _, st := range s.Stats {
		p.Fprintf(tw, "%s\t%d\t%.6f\t%.6f\t%.6f\t\n", st.Column, st.Count, st.Mean, st.Min, st.Max)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(s.GeometryKinds) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Geometry:")
		kinds := make([]string, 0, len(s.GeometryKinds))
		for k := range s.GeometryKinds {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			p.Fprintf(w, "  %s: %d\n", k, s.GeometryKinds[k])
		}
	}
	return nil
}
