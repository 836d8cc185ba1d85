// Package report renders and records the outcome of a nearest-building query.
package report

import (
	"fmt"
	"time"

	"github.com/golang/geo/s2"
	"github.com/google/uuid"

	"github.com/sells-group/openbuildings-cli/internal/model"
	"github.com/sells-group/openbuildings-cli/internal/nearest"
)

// DefaultS2Level is roughly a 150 m cell, about one city block.
const DefaultS2Level = 16

// Result is a nearest-building answer for one landmark.
type Result struct {
	ID       uuid.UUID      `json:"id" yaml:"id"`
	Landmark model.Landmark `json:"landmark" yaml:"landmark"`
	Building model.Building `json:"building" yaml:"building"`
	// Index is the position of Building in the loaded dataset.
	Index int `json:"index" yaml:"index"`
	// Distance is the planar distance in degrees used for selection.
	Distance float64 `json:"distance_degrees" yaml:"distance_degrees"`
	// DistanceMeters is the great-circle distance, for display only.
	DistanceMeters float64   `json:"distance_meters" yaml:"distance_meters"`
	S2Token        string    `json:"s2_token" yaml:"s2_token"`
	Dataset        string    `json:"dataset,omitempty" yaml:"dataset,omitempty"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
}

// NewResult builds a Result from a match. s2Level is clamped to [0, 30].
func NewResult(landmark model.Landmark, m nearest.Match, s2Level int) Result {
	b := m.Building
	return Result{
		ID:             uuid.New(),
		Landmark:       landmark,
		Building:       b,
		Index:          m.Index,
		Distance:       m.Distance,
		DistanceMeters: nearest.HaversineMeters(landmark.Latitude, landmark.Longitude, b.Latitude, b.Longitude),
		S2Token:        CellToken(b.Latitude, b.Longitude, s2Level),
		CreatedAt:      time.Now().UTC(),
	}
}

// CellToken returns the S2 cell token containing the point at level.
func CellToken(lat, lng float64, level int) string {
	level = max(0, min(level, s2.MaxLevel))
	return s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lng)).Parent(level).ToToken()
}

// Field is one labelled value of the display block.
type Field struct {
	Label string
	Value string
}

// Display returns the labelled values shown for a result, in print order.
func (r Result) Display() []Field {
	b := r.Building
	return []Field{
		{"Latitude", fmt.Sprintf("%v", b.Latitude)},
		{"Longitude", fmt.Sprintf("%v", b.Longitude)},
		{"Area (m²)", fmt.Sprintf("%v", b.AreaInMeters)},
		{"Confidence", fmt.Sprintf("%v", b.Confidence)},
		{"Full Plus Code", b.PlusCode},
		{"Distance to " + r.Landmark.Name, fmt.Sprintf("%v (≈ %.0f m)", r.Distance, r.DistanceMeters)},
	}
}
