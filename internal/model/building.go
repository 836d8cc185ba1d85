package model

import (
	"encoding/json"
	"math"

	"github.com/twpayne/go-geom"
)

// Column names of the Open Buildings polygon CSV.
const (
	ColLatitude     = "latitude"
	ColLongitude    = "longitude"
	ColAreaInMeters = "area_in_meters"
	ColConfidence   = "confidence"
	ColGeometry     = "geometry"
	ColPlusCode     = "full_plus_code"
)

// Confidence bounds assigned by the footprint detection model.
const (
	MinConfidence = 0.65
	MaxConfidence = 1.0
)

// Building is a single footprint record. Values are created by the dataset
// loader and never mutated afterwards.
type Building struct {
	Latitude     float64 `json:"latitude" yaml:"latitude"`
	Longitude    float64 `json:"longitude" yaml:"longitude"`
	AreaInMeters float64 `json:"area_in_meters" yaml:"area_in_meters"`
	Confidence   float64 `json:"confidence" yaml:"confidence"`
	PlusCode     string  `json:"full_plus_code" yaml:"full_plus_code"`

	// Row is the 1-based data row in the source CSV (header excluded).
	Row int `json:"row,omitempty" yaml:"row,omitempty"`

	// Footprint is the parsed polygon, nil unless geometry parsing was requested.
	Footprint geom.T `json:"-" yaml:"-"`
}

// Point returns the building centroid as a reference point.
func (b Building) Point() ReferencePoint {
	return ReferencePoint{Latitude: b.Latitude, Longitude: b.Longitude}
}

// HasFiniteCoords reports whether both coordinates are usable numbers.
func (b Building) HasFiniteCoords() bool {
	return isFinite(b.Latitude) && isFinite(b.Longitude)
}

// ConfidenceInRange reports whether the confidence lies in [0.65, 1.0].
func (b Building) ConfidenceInRange() bool {
	return b.Confidence >= MinConfidence && b.Confidence <= MaxConfidence
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// MarshalJSON encodes NaN area or confidence (empty CSV cells) as null.
func (b Building) MarshalJSON() ([]byte, error) {
	type plain Building
	return json.Marshal(struct {
		plain
		AreaInMeters *float64 `json:"area_in_meters"`
		Confidence   *float64 `json:"confidence"`
	}{
		plain:        plain(b),
		AreaInMeters: FiniteOrNil(b.AreaInMeters),
		Confidence:   FiniteOrNil(b.Confidence),
	})
}

// FiniteOrNil returns nil for NaN or infinite values.
func FiniteOrNil(f float64) *float64 {
	if !isFinite(f) {
		return nil
	}
	return &f
}
