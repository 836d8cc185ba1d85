package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
	"go.uber.org/zap"

	"github.com/sells-group/openbuildings-cli/internal/fetcher"
	"github.com/sells-group/openbuildings-cli/internal/model"
	"github.com/sells-group/openbuildings-cli/internal/nearest"
)

// ErrMissingColumn is returned when a required CSV column is absent.
var ErrMissingColumn = eris.New("dataset: missing required column")

// RequiredColumns are the columns the loader needs. geometry is optional.
var RequiredColumns = []string{
	model.ColLatitude,
	model.ColLongitude,
	model.ColAreaInMeters,
	model.ColConfidence,
	model.ColPlusCode,
}

const logEvery = 1_000_000

// LoadOptions controls parsing.
type LoadOptions struct {
	// ParseGeometry parses the WKT footprint of every row.
	ParseGeometry bool
	// SkipInvalid drops rows with bad coordinates or geometry instead of
	// failing the load.
	SkipInvalid bool
	// Limit stops after this many records; 0 loads everything.
	Limit int
}

// Dataset is a fully loaded, read-only collection of buildings.
type Dataset struct {
	Source  string           `json:"source"`
	Columns []string         `json:"columns"`
	Records []model.Building `json:"-"`
	// Skipped counts rows dropped under SkipInvalid.
	Skipped int `json:"skipped"`
	// ConfidenceOutOfRange counts rows whose confidence lies outside [0.65, 1].
	ConfidenceOutOfRange int `json:"confidence_out_of_range"`
	// GeometryKinds counts parsed footprints by WKT type.
	GeometryKinds map[string]int `json:"geometry_kinds,omitempty"`
}

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.Records) }

// Load opens src and parses it.
func Load(ctx context.Context, src Source, opts LoadOptions) (*Dataset, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	return Parse(ctx, rc, src.Name(), opts)
}

type columnIndex map[string]int

// columnName strips the UTF-8 BOM and surrounding space from a header cell.
func columnName(h string) string {
	return strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
}

// columnNames returns the cleaned header.
func columnNames(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = columnName(h)
	}
	return out
}

func newColumnIndex(header []string, parseGeometry bool) (columnIndex, error) {
	idx := make(columnIndex, len(header))
	for i, h := range header {
		name := columnName(h)
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}
	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if parseGeometry {
		if _, ok := idx[model.ColGeometry]; !ok {
			missing = append(missing, model.ColGeometry)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Wrapf(ErrMissingColumn, "%s", strings.Join(missing, ", "))
	}
	return idx, nil
}

func (c columnIndex) field(row []string, col string) string {
	i, ok := c[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Parse reads a decompressed buildings CSV. Rows with missing or non-finite
// coordinates fail the parse with *nearest.InvalidCoordinateError unless
// opts.SkipInvalid is set.
func Parse(ctx context.Context, r io.Reader, name string, opts LoadOptions) (*Dataset, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := zap.L().With(zap.String("component", "dataset.loader"), zap.String("source", name))

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
	})

	ds := &Dataset{Source: name}
	if opts.ParseGeometry {
		ds.GeometryKinds = make(map[string]int)
	}

	var cols columnIndex
	rowNum := 0
	for row := range rowCh {
		if cols == nil {
			// The header is sent before the first row.
			header := <-headerCh
			var err error
			if cols, err = newColumnIndex(header, opts.ParseGeometry); err != nil {
				return nil, err
			}
			ds.Columns = columnNames(header)
		}
		rowNum++

		b, err := parseRow(cols, row, rowNum, len(ds.Records), opts.ParseGeometry)
		if err != nil {
			if opts.SkipInvalid && isSkippable(err) {
				ds.Skipped++
				log.Warn("skipping invalid row", zap.Int("row", rowNum), zap.Error(err))
				continue
			}
			return nil, err
		}

		if !b.ConfidenceInRange() && !math.IsNaN(b.Confidence) {
			ds.ConfidenceOutOfRange++
		}
		if b.Footprint != nil {
			ds.GeometryKinds[geometryKind(b.Footprint)]++
		}
		ds.Records = append(ds.Records, b)

		if rowNum%logEvery == 0 {
			log.Debug("loading rows", zap.Int("rows", rowNum))
		}
		if opts.Limit > 0 && len(ds.Records) >= opts.Limit {
			log.Info("row limit reached", zap.Int("limit", opts.Limit))
			return ds, nil
		}
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "dataset: read csv")
	}

	if cols == nil {
		// Header-only input produces no rows; validate it anyway.
		select {
		case header, ok := <-headerCh:
			if !ok || header == nil {
				return nil, eris.New("dataset: empty input, no header row")
			}
			if _, err := newColumnIndex(header, opts.ParseGeometry); err != nil {
				return nil, err
			}
			ds.Columns = columnNames(header)
		default:
			return nil, eris.New("dataset: empty input, no header row")
		}
	}

	log.Info("dataset loaded",
		zap.Int("records", len(ds.Records)),
		zap.Int("skipped", ds.Skipped),
	)
	return ds, nil
}

// rowError marks per-row problems that SkipInvalid may drop.
type rowError struct {
	err error
}

func (e *rowError) Error() string { return e.err.Error() }
func (e *rowError) Unwrap() error { return e.err }

func isSkippable(err error) bool {
	var re *rowError
	var ice *nearest.InvalidCoordinateError
	return errors.As(err, &re) || errors.As(err, &ice)
}

func parseRow(cols columnIndex, row []string, rowNum, index int, parseGeometry bool) (model.Building, error) {
	lat, latErr := parseCoordinate(cols.field(row, model.ColLatitude))
	lon, lonErr := parseCoordinate(cols.field(row, model.ColLongitude))
	if latErr != nil || lonErr != nil {
		reason := latErr
		if reason == nil {
			reason = lonErr
		}
		return model.Building{}, &nearest.InvalidCoordinateError{
			Index:     index,
			Row:       rowNum,
			Latitude:  lat,
			Longitude: lon,
			Reason:    reason.Error(),
		}
	}

	area, err := parseOptionalFloat(cols.field(row, model.ColAreaInMeters))
	if err != nil {
		return model.Building{}, &rowError{eris.Wrapf(err, "dataset: row %d: %s", rowNum, model.ColAreaInMeters)}
	}
	conf, err := parseOptionalFloat(cols.field(row, model.ColConfidence))
	if err != nil {
		return model.Building{}, &rowError{eris.Wrapf(err, "dataset: row %d: %s", rowNum, model.ColConfidence)}
	}

	b := model.Building{
		Latitude:     lat,
		Longitude:    lon,
		AreaInMeters: area,
		Confidence:   conf,
		PlusCode:     cols.field(row, model.ColPlusCode),
		Row:          rowNum,
	}

	if parseGeometry {
		if raw := cols.field(row, model.ColGeometry); raw != "" {
			g, err := wkt.Unmarshal(raw)
			if err != nil {
				return model.Building{}, &rowError{eris.Wrapf(err, "dataset: row %d: parse geometry", rowNum)}
			}
			b.Footprint = g
		}
	}
	return b, nil
}

func parseCoordinate(s string) (float64, error) {
	if s == "" {
		return math.NaN(), eris.New("missing value")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN(), eris.Errorf("not a number: %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v, eris.Errorf("not finite: %q", s)
	}
	return v, nil
}

// parseOptionalFloat treats an empty cell as NaN.
func parseOptionalFloat(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Errorf("not a number: %q", s)
	}
	return v, nil
}

func geometryKind(g geom.T) string {
	switch g.(type) {
	case *geom.Polygon:
		return "POLYGON"
	case *geom.MultiPolygon:
		return "MULTIPOLYGON"
	case *geom.Point:
		return "POINT"
	default:
		return fmt.Sprintf("%T", g)
	}
}
