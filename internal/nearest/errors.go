package nearest

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrEmptyDataset is returned when a query is run over zero records.
var ErrEmptyDataset = eris.New("nearest: empty dataset")

// InvalidCoordinateError reports a record (or reference point) whose latitude
// or longitude is missing or not finite.
type InvalidCoordinateError struct {
	// Index is the position in the input slice, -1 for the reference point.
	Index int
	// Row is the source CSV row when known, 0 otherwise.
	Row       int
	Latitude  float64
	Longitude float64
	Reason    string
}

func (e *InvalidCoordinateError) Error() string {
	where := fmt.Sprintf("record %d", e.Index)
	switch {
	case e.Index < 0:
		where = "reference point"
	case e.Row > 0:
		where = fmt.Sprintf("record %d (row %d)", e.Index, e.Row)
	}
	if e.Reason != "" {
		return fmt.Sprintf("nearest: invalid coordinate at %s: %s", where, e.Reason)
	}
	return fmt.Sprintf("nearest: invalid coordinate at %s: lat=%v lon=%v", where, e.Latitude, e.Longitude)
}
