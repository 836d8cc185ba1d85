package nearest

import (
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/rotisserie/eris"

	"github.com/sells-group/openbuildings-cli/internal/model"
)

// pointTolerance is the half-width of the box stored for each centroid.
const pointTolerance = 1e-9

// BBox is a longitude/latitude bounding box in degrees.
type BBox struct {
	MinLng float64 `json:"min_lng"`
	MinLat float64 `json:"min_lat"`
	MaxLng float64 `json:"max_lng"`
	MaxLat float64 `json:"max_lat"`
}

// Contains reports whether the building centroid lies inside the box,
// boundaries included.
func (b BBox) Contains(bld model.Building) bool {
	return bld.Longitude >= b.MinLng && bld.Longitude <= b.MaxLng &&
		bld.Latitude >= b.MinLat && bld.Latitude <= b.MaxLat
}

type indexEntry struct {
	idx  int
	rect rtreego.Rect
}

func (e *indexEntry) Bounds() rtreego.Rect { return e.rect }

// Index is an R-tree over building centroids in (longitude, latitude) space.
// It is read-only after construction and safe for concurrent queries.
type Index struct {
	records []model.Building
	tree    *rtreego.Rtree
}

// NewIndex bulk-loads records into an R-tree. Records with non-finite
// coordinates are rejected.
func NewIndex(records []model.Building) (*Index, error) {
	objs := make([]rtreego.Spatial, 0, len(records))
	for i, b := range records {
		if !b.HasFiniteCoords() {
			return nil, &InvalidCoordinateError{Index: i, Row: b.Row, Latitude: b.Latitude, Longitude: b.Longitude}
		}
		p := rtreego.Point{b.Longitude, b.Latitude}
		objs = append(objs, &indexEntry{idx: i, rect: p.ToRect(pointTolerance)})
	}
	return &Index{
		records: records,
		tree:    rtreego.NewTree(2, 25, 50, objs...),
	}, nil
}

// Len returns the number of indexed records.
func (ix *Index) Len() int { return len(ix.records) }

// Records returns the indexed records. Callers must not modify the slice.
func (ix *Index) Records() []model.Building { return ix.records }

// Nearest returns up to k records ordered by planar distance to ref, ties
// ordered by input position. Nearest(ref, 1) agrees with FindNearest.
func (ix *Index) Nearest(ref model.ReferencePoint, k int) ([]Match, error) {
	if len(ix.records) == 0 {
		return nil, ErrEmptyDataset
	}
	if !ref.IsFinite() {
		return nil, &InvalidCoordinateError{Index: -1, Latitude: ref.Latitude, Longitude: ref.Longitude}
	}
	if k <= 0 {
		return nil, eris.Errorf("nearest: k must be positive, got %d", k)
	}
	k = min(k, len(ix.records))

	// The tree picks k candidates but breaks ties arbitrarily, so widen to
	// every record within the k-th candidate distance and re-rank exactly.
	p := rtreego.Point{ref.Longitude, ref.Latitude}
	radius := 0.0
	for _, s := range ix.tree.NearestNeighbors(k, p) {
		if s == nil {
			continue
		}
		e := s.(*indexEntry)
		radius = math.Max(radius, PlanarDistance(ix.records[e.idx], ref))
	}

	box, err := rtreego.NewRectFromPoints(
		rtreego.Point{ref.Longitude - radius - pointTolerance, ref.Latitude - radius - pointTolerance},
		rtreego.Point{ref.Longitude + radius + pointTolerance, ref.Latitude + radius + pointTolerance},
	)
	if err != nil {
		return nil, eris.Wrap(err, "nearest: build search box")
	}

	hits := ix.tree.SearchIntersect(box)
	matches := make([]Match, 0, len(hits))
	for _, s := range hits {
		e := s.(*indexEntry)
		b := ix.records[e.idx]
		matches = append(matches, Match{Building: b, Index: e.idx, Distance: PlanarDistance(b, ref)})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Index < matches[j].Index
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Within returns the records whose centroid lies in bbox, in input order.
func (ix *Index) Within(bbox BBox) ([]model.Building, error) {
	if bbox.MinLng > bbox.MaxLng || bbox.MinLat > bbox.MaxLat {
		return nil, eris.Errorf("nearest: invalid bbox %+v", bbox)
	}
	box, err := rtreego.NewRectFromPoints(
		rtreego.Point{bbox.MinLng - pointTolerance, bbox.MinLat - pointTolerance},
		rtreego.Point{bbox.MaxLng + pointTolerance, bbox.MaxLat + pointTolerance},
	)
	if err != nil {
		return nil, eris.Wrap(err, "nearest: build bbox")
	}

	var idxs []int
	for _, s := range ix.tree.SearchIntersect(box) {
		e := s.(*indexEntry)
		if bbox.Contains(ix.records[e.idx]) {
			idxs = append(idxs, e.idx)
		}
	}
	sort.Ints(idxs)

	out := make([]model.Building, len(idxs))
	for i, idx := range idxs {
		out[i] = ix.records[idx]
	}
	return out, nil
}
