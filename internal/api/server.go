// Package api serves nearest-building queries over HTTP.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/openbuildings-cli/internal/dataset"
	"github.com/sells-group/openbuildings-cli/internal/model"
	"github.com/sells-group/openbuildings-cli/internal/nearest"
	"github.com/sells-group/openbuildings-cli/internal/report"
)

// Options configures the router.
type Options struct {
	// Landmark is used when a request omits lat and lon.
	Landmark       model.Landmark
	AllowedOrigins []string
	MaxK           int
	S2Level        int
}

// Server answers queries against an immutable, indexed dataset. It is safe
// for concurrent use.
type Server struct {
	index   *nearest.Index
	summary dataset.Summary
	opts    Options
	metrics *Metrics
}

// NewServer creates a Server. The index and summary are read-only after this.
func NewServer(index *nearest.Index, summary dataset.Summary, opts Options, metrics *Metrics) *Server {
	if opts.MaxK <= 0 {
		opts.MaxK = 100
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	metrics.datasetRecords.Set(float64(index.Len()))
	return &Server{index: index, summary: summary, opts: opts, metrics: metrics}
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(s.metrics.Middleware)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.metrics.Handler().ServeHTTP)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/nearest", s.handleNearest)
		r.Get("/within", s.handleWithin)
		r.Get("/stats", s.handleStats)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "records": s.index.Len()})
}

// NearestResponse is the body of /v1/nearest.
type NearestResponse struct {
	Reference model.Landmark  `json:"reference"`
	K         int             `json:"k"`
	Results   []report.Result `json:"results"`
}

func (s *Server) handleNearest(w http.ResponseWriter, r *http.Request) {
	ref, k, err := s.parseNearest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	matches, err := s.index.Nearest(ref.ReferencePoint, k)
	s.metrics.nearestLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		var ice *nearest.InvalidCoordinateError
		switch {
		case errors.Is(err, nearest.ErrEmptyDataset):
			writeError(w, http.StatusNotFound, "dataset is empty")
		case errors.As(err, &ice):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			zap.L().Error("nearest query failed", zap.String("component", "api"), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	resp := NearestResponse{Reference: ref, K: k, Results: make([]report.Result, 0, len(matches))}
	for _, m := range matches {
		res := report.NewResult(ref, m, s.opts.S2Level)
		res.Dataset = s.summary.Source
		resp.Results = append(resp.Results, res)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) parseNearest(r *http.Request) (model.Landmark, int, error) {
	q := r.URL.Query()
	ref := s.opts.Landmark

	latStr, lonStr := q.Get("lat"), q.Get("lon")
	if (latStr == "") != (lonStr == "") {
		return ref, 0, eris.New("lat and lon must be given together")
	}
	if latStr != "" {
		lat, err := parseFinite(latStr, "lat", 90)
		if err != nil {
			return ref, 0, err
		}
		lon, err := parseFinite(lonStr, "lon", 180)
		if err != nil {
			return ref, 0, err
		}
		ref = model.Landmark{
			Name:           q.Get("name"),
			ReferencePoint: model.ReferencePoint{Latitude: lat, Longitude: lon},
		}
		if ref.Name == "" {
			ref.Name = strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)
		}
	}

	k := 1
	if kStr := q.Get("k"); kStr != "" {
		v, err := strconv.Atoi(kStr)
		if err != nil || v < 1 || v > s.opts.MaxK {
			return ref, 0, eris.New("k must be an integer between 1 and " + strconv.Itoa(s.opts.MaxK))
		}
		k = v
	}
	return ref, k, nil
}

func parseFinite(s, name string, limit float64) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, eris.New(name + " must be a finite number")
	}
	if math.Abs(v) > limit {
		return 0, eris.New(name + " out of range")
	}
	return v, nil
}

// WithinResponse is the body of /v1/within.
type WithinResponse struct {
	BBox      nearest.BBox     `json:"bbox"`
	Total     int              `json:"total"`
	Buildings []model.Building `json:"buildings"`
}

func (s *Server) handleWithin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var bbox nearest.BBox
	for _, f := range []struct {
		name  string
		limit float64
		dst   *float64
	}{
		{"min_lng", 180, &bbox.MinLng},
		{"min_lat", 90, &bbox.MinLat},
		{"max_lng", 180, &bbox.MaxLng},
		{"max_lat", 90, &bbox.MaxLat},
	} {
		v, err := parseFinite(q.Get(f.name), f.name, f.limit)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		*f.dst = v
	}

	limit := s.opts.MaxK
	if lStr := q.Get("limit"); lStr != "" {
		v, err := strconv.Atoi(lStr)
		if err != nil || v < 1 || v > s.opts.MaxK {
			writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and "+strconv.Itoa(s.opts.MaxK))
			return
		}
		limit = v
	}

	found, err := s.index.Within(bbox)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := WithinResponse{BBox: bbox, Total: len(found), Buildings: found[:min(limit, len(found))]}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.summary)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		zap.L().Error("encode response", zap.String("component", "api"), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
