package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	pathpkg "path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"ekg-insight/internal/analysis"
	"ekg-insight/internal/ekg"
	"ekg-insight/internal/metrics"
	"ekg-insight/internal/models"
	"ekg-insight/internal/persons"
)

// PersonCatalog lists the persons known to the server.
type PersonCatalog interface {
	ListPersons() []models.Person
	Person(id models.ID) (models.Person, error)
	FindByName(name string) (models.Person, error)
}

// FileIndex lists the recording files found in the data directory.
type FileIndex interface {
	ListRecordingFiles() []models.RecordingFile
	Lookup(relativePath string) (models.RecordingFile, bool)
}

// Analyzer runs the analysis operations for one recording or person.
type Analyzer interface {
	DefaultTuning() analysis.Tuning
	Age(p models.Person) int
	Signal(personID, recordingID models.ID, tuning analysis.Tuning, window analysis.Window) (analysis.SignalResult, error)
	Peaks(personID, recordingID models.ID, tuning analysis.Tuning) (analysis.PeaksResult, error)
	HeartRate(personID, recordingID models.ID, tuning analysis.Tuning) (analysis.HeartRateResult, error)
	Variability(personID, recordingID models.ID, tuning analysis.Tuning) (analysis.VariabilityResult, error)
	Anomalies(personID, recordingID models.ID, tuning analysis.Tuning) (analysis.AnomalyResult, error)
	Summary(personID, recordingID models.ID, tuning analysis.Tuning) (ekg.Summary, error)
	Compare(ctx context.Context, personID models.ID, recordingIDs []models.ID, tuning analysis.Tuning) (analysis.ComparisonResult, error)
}

type serverHandler struct {
	persons  PersonCatalog
	files    FileIndex
	analyzer Analyzer
	logger   zerolog.Logger
}

// New creates the HTTP handler that exposes the person catalogue and the
// recording analyses.
func New(catalog PersonCatalog, files FileIndex, analyzer Analyzer, logger zerolog.Logger) http.Handler {
	h := &serverHandler{
		persons:  catalog,
		files:    files,
		analyzer: analyzer,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(recordMetrics)

	r.Get("/health", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/files", h.handleFiles)
	r.Get("/files/*", h.handleFile)

	r.Route("/persons", func(r chi.Router) {
		r.Get("/", h.handlePersons)
		r.Route("/{personID}", func(r chi.Router) {
			r.Get("/", h.handlePerson)
			r.Get("/comparison", h.handleComparison)
			r.Route("/recordings/{recordingID}", func(r chi.Router) {
				r.Get("/signal", h.handleSignal)
				r.Get("/peaks", h.recordingHandler(h.peaks))
				r.Get("/heart-rate", h.recordingHandler(h.heartRate))
				r.Get("/variability", h.recordingHandler(h.variability))
				r.Get("/anomalies", h.recordingHandler(h.anomalies))
				r.Get("/summary", h.recordingHandler(h.summary))
			})
		})
	})

	return logRequests(r, logger)
}

type personView struct {
	ID          models.ID                    `json:"id"`
	Name        string                       `json:"name"`
	Firstname   string                       `json:"firstname"`
	Lastname    string                       `json:"lastname"`
	DateOfBirth int                          `json:"date_of_birth"`
	Age         int                          `json:"age"`
	PicturePath string                       `json:"picture_path,omitempty"`
	Recordings  []models.RecordingDescriptor `json:"recordings"`
}

func (h *serverHandler) view(p models.Person) personView {
	recordings := p.Recordings
	if recordings == nil {
		recordings = []models.RecordingDescriptor{}
	}
	return personView{
		ID:          p.ID,
		Name:        p.FullName(),
		Firstname:   p.Firstname,
		Lastname:    p.Lastname,
		DateOfBirth: p.DateOfBirth,
		Age:         h.analyzer.Age(p),
		PicturePath: p.PicturePath,
		Recordings:  recordings,
	}
}

func (h *serverHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *serverHandler) handleFiles(w http.ResponseWriter, r *http.Request) {
	files := h.files.ListRecordingFiles()
	if files == nil {
		files = []models.RecordingFile{}
	}
	h.writeJSON(w, http.StatusOK, files)
}

func (h *serverHandler) handleFile(w http.ResponseWriter, r *http.Request) {
	rel := pathpkg.Clean("/" + chi.URLParam(r, "*"))
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		h.writeError(w, r, fmt.Errorf("file: %w", persons.ErrNotFound))
		return
	}

	file, ok := h.files.Lookup(rel)
	if !ok {
		h.writeError(w, r, fmt.Errorf("file %s: %w", rel, persons.ErrNotFound))
		return
	}
	h.writeJSON(w, http.StatusOK, file)
}

// handlePersons lists all persons, or the one matching ?name=Lastname, Firstname.
func (h *serverHandler) handlePersons(w http.ResponseWriter, r *http.Request) {
	if name := strings.TrimSpace(r.URL.Query().Get("name")); name != "" {
		p, err := h.persons.FindByName(name)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, []personView{h.view(p)})
		return
	}

	list := h.persons.ListPersons()
	views := make([]personView, len(list))
	for i, p := range list {
		views[i] = h.view(p)
	}
	h.writeJSON(w, http.StatusOK, views)
}

func (h *serverHandler) handlePerson(w http.ResponseWriter, r *http.Request) {
	p, err := h.persons.Person(models.ID(chi.URLParam(r, "personID")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.view(p))
}

func (h *serverHandler) handleSignal(w http.ResponseWriter, r *http.Request) {
	tuning, err := h.tuning(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	window, err := parseWindow(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	personID, recordingID := recordingParams(r)
	result, err := h.analyzer.Signal(personID, recordingID, tuning, window)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type recordingOp func(personID, recordingID models.ID, tuning analysis.Tuning) (any, error)

func (h *serverHandler) peaks(p, rec models.ID, t analysis.Tuning) (any, error) {
	return h.analyzer.Peaks(p, rec, t)
}

func (h *serverHandler) heartRate(p, rec models.ID, t analysis.Tuning) (any, error) {
	return h.analyzer.HeartRate(p, rec, t)
}

func (h *serverHandler) variability(p, rec models.ID, t analysis.Tuning) (any, error) {
	return h.analyzer.Variability(p, rec, t)
}

func (h *serverHandler) anomalies(p, rec models.ID, t analysis.Tuning) (any, error) {
	return h.analyzer.Anomalies(p, rec, t)
}

func (h *serverHandler) summary(p, rec models.ID, t analysis.Tuning) (any, error) {
	return h.analyzer.Summary(p, rec, t)
}

func (h *serverHandler) recordingHandler(op recordingOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tuning, err := h.tuning(r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		personID, recordingID := recordingParams(r)
		result, err := op(personID, recordingID, tuning)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, result)
	}
}

func (h *serverHandler) handleComparison(w http.ResponseWriter, r *http.Request) {
	tuning, err := h.tuning(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var ids []models.ID
	for _, raw := range strings.Split(r.URL.Query().Get("recordings"), ",") {
		if id := strings.TrimSpace(raw); id != "" {
			ids = append(ids, models.ID(id))
		}
	}

	result, err := h.analyzer.Compare(r.Context(), models.ID(chi.URLParam(r, "personID")), ids, tuning)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// tuning starts from the configured detection parameters and applies any
// per-request overrides.
func (h *serverHandler) tuning(r *http.Request) (analysis.Tuning, error) {
	tuning := h.analyzer.DefaultTuning()
	q := r.URL.Query()

	if raw := strings.TrimSpace(q.Get("min_distance")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return tuning, fmt.Errorf("%w: min_distance %q is not an integer", ekg.ErrInvalidParameter, raw)
		}
		tuning.Peaks.MinDistance = v
	}

	floats := []struct {
		name   string
		target *float64
	}{
		{"min_height", &tuning.Peaks.MinHeight},
		{"min_prominence", &tuning.Peaks.MinProminence},
		{"min_hr", &tuning.MinHeartRate},
	}
	for _, f := range floats {
		raw := strings.TrimSpace(q.Get(f.name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return tuning, fmt.Errorf("%w: %s %q is not a number", ekg.ErrInvalidParameter, f.name, raw)
		}
		*f.target = v
	}

	return tuning, nil
}

func parseWindow(r *http.Request) (analysis.Window, error) {
	var window analysis.Window
	q := r.URL.Query()
	for _, f := range []struct {
		name   string
		target *int64
	}{
		{"from", &window.FromMS},
		{"to", &window.ToMS},
	} {
		raw := strings.TrimSpace(q.Get(f.name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			return window, fmt.Errorf("%w: %s must be a non-negative integer, got %q", ekg.ErrInvalidParameter, f.name, raw)
		}
		*f.target = v
	}
	if window.ToMS != 0 && window.ToMS < window.FromMS {
		return window, fmt.Errorf("%w: to %d is before from %d", ekg.ErrInvalidParameter, window.ToMS, window.FromMS)
	}
	return window, nil
}

func recordingParams(r *http.Request) (models.ID, models.ID) {
	return models.ID(chi.URLParam(r, "personID")), models.ID(chi.URLParam(r, "recordingID"))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, persons.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, ekg.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, ekg.ErrRecordingTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ekg.ErrMalformedRecording):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *serverHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = http.StatusText(status)
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *serverHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn().Err(err).Msg("failed to encode response")
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func logRequests(next http.Handler, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Int("bytes", sw.size).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func recordMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).
			Observe(time.Since(start).Seconds())
	})
}
