// Package export writes building records to GIS interchange formats.
package export

import (
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/openbuildings-cli/internal/model"
)

// Attribute columns written to the .dbf, in order. DBF names are capped at
// ten characters.
var shapeFields = []shp.Field{
	shp.StringField("PLUS_CODE", 16),
	shp.FloatField("AREA_M2", 14, 2),
	shp.FloatField("CONFIDENCE", 6, 4),
	shp.NumberField("ROW", 10),
}

// ShapefileOptions selects the shape type.
type ShapefileOptions struct {
	// Footprints writes POLYGON shapes from parsed WKT footprints instead of
	// POINT centroids. Records without a polygon footprint are skipped.
	Footprints bool
}

// WriteShapefile writes records to path (which must end in .shp) plus its
// .shx and .dbf siblings. Returns the number of shapes written.
func WriteShapefile(path string, records []model.Building, opts ShapefileOptions) (int, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".shp") {
		return 0, eris.Errorf("export: shapefile path %q must end in .shp", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, eris.Wrap(err, "export: create output dir")
	}

	shapeType := shp.ShapeType(shp.POINT)
	if opts.Footprints {
		shapeType = shp.POLYGON
	}

	w, err := shp.Create(path, shapeType)
	if err != nil {
		return 0, eris.Wrapf(err, "export: create shapefile %s", path)
	}

	written, skipped, err := writeShapes(w, records, opts)
	// Close writes the headers; go-shp names the table "<base>dbf".
	w.Close()
	if err != nil {
		return written, err
	}

	base := path[:len(path)-len(".shp")]
	if err := os.Rename(base+"dbf", base+".dbf"); err != nil {
		return written, eris.Wrap(err, "export: rename dbf")
	}

	if skipped > 0 {
		zap.L().Debug("export: skipped records without a usable shape",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return written, nil
}

func writeShapes(w *shp.Writer, records []model.Building, opts ShapefileOptions) (written, skipped int, err error) {
	if err := w.SetFields(shapeFields); err != nil {
		return 0, 0, eris.Wrap(err, "export: set dbf fields")
	}

	for _, b := range records {
		var shape shp.Shape
		if opts.Footprints {
			if poly := footprintPolygon(b.Footprint); poly != nil {
				shape = poly
			}
		} else if b.HasFiniteCoords() {
			shape = &shp.Point{X: b.Longitude, Y: b.Latitude}
		}
		if shape == nil {
			skipped++
			continue
		}

		row := int(w.Write(shape))
		if err := writeAttributes(w, row, b); err != nil {
			return written, skipped, err
		}
		written++
	}
	return written, skipped, nil
}

func writeAttributes(w *shp.Writer, row int, b model.Building) error {
	values := []any{
		b.PlusCode,
		optionalFloat(b.AreaInMeters, shapeFields[1]),
		optionalFloat(b.Confidence, shapeFields[2]),
		b.Row,
	}
	for i, v := range values {
		if err := w.WriteAttribute(row, i, v); err != nil {
			return eris.Wrapf(err, "export: write attribute %d of row %d", i, row)
		}
	}
	return nil
}

// optionalFloat blanks NaN and infinite values.
func optionalFloat(v float64, f shp.Field) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strings.Repeat(" ", int(f.Size))
	}
	return v
}

// footprintPolygon converts a Polygon or MultiPolygon footprint into a
// shapefile polygon with clockwise outer rings and counter-clockwise holes.
func footprintPolygon(g geom.T) *shp.Polygon {
	var polys []*geom.Polygon
	switch t := g.(type) {
	case *geom.Polygon:
		polys = append(polys, t)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			polys = append(polys, t.Polygon(i))
		}
	default:
		return nil
	}

	var parts [][]shp.Point
	for _, p := range polys {
		for i := 0; i < p.NumLinearRings(); i++ {
			ring := ringPoints(p.LinearRing(i))
			if len(ring) < 4 {
				continue
			}
			parts = append(parts, orient(ring, i == 0))
		}
	}
	if len(parts) == 0 {
		return nil
	}

	poly := shp.Polygon(*shp.NewPolyLine(parts))
	return &poly
}

func ringPoints(r *geom.LinearRing) []shp.Point {
	flat := r.FlatCoords()
	stride := r.Stride()
	pts := make([]shp.Point, 0, len(flat)/stride)
	for i := 0; i+1 < len(flat); i += stride {
		pts = append(pts, shp.Point{X: flat[i], Y: flat[i+1]})
	}
	return pts
}

// orient returns ring wound clockwise when clockwise is set, otherwise
// counter-clockwise.
func orient(ring []shp.Point, clockwise bool) []shp.Point {
	if (signedArea(ring) < 0) == clockwise {
		return ring
	}
	out := make([]shp.Point, len(ring))
	for i, p := range ring {
		out[len(ring)-1-i] = p
	}
	return out
}

// signedArea is positive for counter-clockwise rings.
func signedArea(ring []shp.Point) float64 {
	var sum float64
	for i := 0; i+1 < len(ring); i++ {
		sum += ring[i].X*ring[i+1].Y - ring[i+1].X*ring[i].Y
	}
	return sum / 2
}
