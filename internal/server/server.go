// Package server exposes datasets, imports, point lookup and GeoJSON export
// over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/shapeset/internal/dataset"
	"github.com/sells-group/shapeset/internal/export"
	"github.com/sells-group/shapeset/internal/geoerr"
	"github.com/sells-group/shapeset/internal/importer"
	"github.com/sells-group/shapeset/internal/registry"
	"github.com/sells-group/shapeset/internal/spatial"
)

// Importer runs one dataset import. *importer.Importer implements it.
type Importer interface {
	Import(ctx context.Context, id string, opts importer.Options) (*importer.Result, error)
}

// entry is the latest assembly of one dataset.
type entry struct {
	shapes    []dataset.Shape
	index     *spatial.Index
	summary   dataset.Summary
	assembled time.Time
	persisted bool
}

// Server holds the router and the in-memory dataset cache.
type Server struct {
	registry *registry.Registry
	importer Importer
	log      *zap.Logger

	mu      sync.RWMutex
	cache   map[string]*entry
	loading singleflight.Group
}

// New creates a Server.
func New(reg *registry.Registry, im Importer) *Server {
	return &Server{
		registry: reg,
		importer: im,
		log:      zap.L().With(zap.String("component", "server")),
		cache:    make(map[string]*entry),
	}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/datasets", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Route("/{id}", func(r chi.Router) {
			r.Put("/import", s.handleImport)
			r.Get("/lookup", s.handleLookup)
			r.Get("/shapes", s.handleShapes)
		})
	})
	return r
}

type datasetView struct {
	ID        string     `json:"id"`
	URL       string     `json:"url"`
	NameField string     `json:"name_field"`
	Loaded    bool       `json:"loaded"`
	Persisted bool       `json:"persisted"`
	Shapes    int        `json:"shapes,omitempty"`
	LoadedAt  *time.Time `json:"loaded_at,omitempty"`
}

type importView struct {
	Dataset      string `json:"dataset"`
	Shapes       int    `json:"shapes"`
	Placeholders int    `json:"placeholders"`
	DryRun       bool   `json:"dry_run"`
	RunID        string `json:"run_id,omitempty"`
	Rows         int64  `json:"rows,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
}

type matchView struct {
	Position int            `json:"position"`
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	datasets := s.registry.List()
	out := make([]datasetView, 0, len(datasets))

	s.mu.RLock()
	for _, d := range datasets {
		v := datasetView{ID: d.ID, URL: d.URL, NameField: d.NameField}
		if e, ok := s.cache[d.ID]; ok {
			v.Loaded = true
			v.Persisted = e.persisted
			v.Shapes = e.summary.Shapes
			at := e.assembled
			v.LoadedAt = &at
		}
		out = append(out, v)
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.registry.Get(id); !ok {
		writeError(w, http.StatusNotFound, "unknown dataset "+strconv.Quote(id))
		return
	}

	dryRun := false
	if raw := r.URL.Query().Get("dry_run"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "dry_run must be a boolean")
			return
		}
		dryRun = v
	}

	res, err := s.importer.Import(r.Context(), id, importer.Options{DryRun: dryRun})
	if err != nil {
		s.log.Error("server: import failed", zap.String("dataset", id), zap.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.store(id, res)

	view := importView{
		Dataset:      id,
		Shapes:       res.Summary.Shapes,
		Placeholders: res.Summary.Placeholders,
		DryRun:       res.DryRun,
		DurationMs:   res.Duration.Milliseconds(),
	}
	if res.Load != nil {
		view.RunID = res.Load.RunID
		view.Rows = res.Load.Total
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	lon, err := parseCoord(r, "lon", 180)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lat, err := parseCoord(r, "lat", 90)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	e, status, err := s.ensure(r.Context(), id)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	matches := e.index.Lookup(lon, lat)
	out := make([]matchView, 0, len(matches))
	for _, m := range matches {
		out = append(out, matchView{
			Position: m.Position,
			Name:     m.Shape.Name,
			Metadata: export.Properties(m.Shape),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleShapes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, status, err := s.ensure(r.Context(), id)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, e.shapes); err != nil {
		s.log.Error("server: write shapes", zap.String("dataset", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "encode shapes failed")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// ensure returns the cached assembly of id, assembling it without loading
// when the dataset was never imported.
func (s *Server) ensure(ctx context.Context, id string) (*entry, int, error) {
	if _, ok := s.registry.Get(id); !ok {
		return nil, http.StatusNotFound, eris.Errorf("unknown dataset %q", id)
	}

	if e, ok := s.cached(id); ok {
		return e, http.StatusOK, nil
	}

	// Concurrent misses for the same dataset share one assembly. It is
	// detached from the first caller's cancellation since others wait on it.
	v, err, _ := s.loading.Do(id, func() (any, error) {
		if e, ok := s.cached(id); ok {
			return e, nil
		}
		res, err := s.importer.Import(context.WithoutCancel(ctx), id, importer.Options{DryRun: true})
		if err != nil {
			return nil, err
		}
		return s.store(id, res), nil
	})
	if err != nil {
		s.log.Error("server: assemble on demand failed", zap.String("dataset", id), zap.Error(err))
		return nil, statusFor(err), err
	}
	return v.(*entry), http.StatusOK, nil
}

func (s *Server) cached(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.cache[id]
	return e, ok
}

func (s *Server) store(id string, res *importer.Result) *entry {
	e := &entry{
		shapes:    res.Shapes,
		index:     spatial.NewIndex(res.Shapes),
		summary:   res.Summary,
		assembled: time.Now(),
		persisted: res.Load != nil,
	}
	s.mu.Lock()
	s.cache[id] = e
	s.mu.Unlock()

	s.log.Debug("server: dataset cached",
		zap.String("dataset", id),
		zap.Int("indexed", e.index.Size()),
		zap.Bool("persisted", e.persisted),
	)
	return e
}

// statusFor maps data errors to 422 and everything else, such as download
// or database failures, to 502.
func statusFor(err error) int {
	for _, kind := range []error{
		geoerr.ErrFormat,
		geoerr.ErrUnsupportedShapeType,
		geoerr.ErrUnsupportedOperation,
		geoerr.ErrUnsupportedFieldType,
		geoerr.ErrFieldParse,
		geoerr.ErrMissingEntry,
		geoerr.ErrMissingNameField,
		geoerr.ErrDatasetInconsistency,
	} {
		if errors.Is(err, kind) {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusBadGateway
}

func parseCoord(r *http.Request, key string, limit float64) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, eris.Errorf("%s is required", key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || v < -limit || v > limit {
		return 0, eris.Errorf("%s must be a number between -%g and %g", key, limit, limit)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
