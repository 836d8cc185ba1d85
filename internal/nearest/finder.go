// Package nearest finds the building closest to a reference point.
//
// Distances are Euclidean over (longitude, latitude) in degree units. This is
// a planar approximation, not a geodesic distance, and it is what selection
// uses everywhere in this package.
package nearest

import (
	"math"

	"github.com/sells-group/openbuildings-cli/internal/model"
)

// Match is the result of a nearest query.
type Match struct {
	Building model.Building `json:"building"`
	// Index is the position of Building in the input slice.
	Index int `json:"index"`
	// Distance is the planar distance in degrees.
	Distance float64 `json:"distance"`
}

// PlanarDistance returns the Euclidean distance between the building centroid
// and ref in degree space.
func PlanarDistance(b model.Building, ref model.ReferencePoint) float64 {
	dx := b.Longitude - ref.Longitude
	dy := b.Latitude - ref.Latitude
	return math.Sqrt(dx*dx + dy*dy)
}

// FindNearest scans every record and returns the one with the smallest planar
// distance to ref. Ties keep the earliest record.
func FindNearest(records []model.Building, ref model.ReferencePoint) (Match, error) {
	if len(records) == 0 {
		return Match{}, ErrEmptyDataset
	}
	if !ref.IsFinite() {
		return Match{}, &InvalidCoordinateError{
			Index:     -1,
			Latitude:  ref.Latitude,
			Longitude: ref.Longitude,
		}
	}
	return scan(records, 0, ref)
}

// scan is the arg-min over records; offset is added to reported indexes.
func scan(records []model.Building, offset int, ref model.ReferencePoint) (Match, error) {
	best := -1
	bestDist := math.Inf(1)
	for i := range records {
		b := &records[i]
		if !b.HasFiniteCoords() {
			return Match{}, &InvalidCoordinateError{
				Index:     offset + i,
				Row:       b.Row,
				Latitude:  b.Latitude,
				Longitude: b.Longitude,
			}
		}
		d := PlanarDistance(*b, ref)
		if best < 0 || d < bestDist {
			best = i
			bestDist = d
		}
	}
	return Match{Building: records[best], Index: offset + best, Distance: bestDist}, nil
}
