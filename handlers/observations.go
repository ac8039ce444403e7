package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"p9e.in/lakewatch/middleware"
	"p9e.in/lakewatch/pkg/metrics"
	"p9e.in/lakewatch/pkg/observations"
)

const maxBodyBytes = 1 << 20

// LocaleMatcher picks the response locale from the client's preferences.
type LocaleMatcher interface {
	Match(preferences ...string) string
}

// ObservationHandler serves /observations.
type ObservationHandler struct {
	pipeline *observations.Pipeline
	locales  LocaleMatcher
	log      *slog.Logger
	metrics  *metrics.Metrics
}

func NewObservationHandler(p *observations.Pipeline, locales LocaleMatcher, log *slog.Logger, m *metrics.Metrics) *ObservationHandler {
	return &ObservationHandler{pipeline: p, locales: locales, log: log, metrics: m}
}

func caller(r *http.Request) observations.Caller {
	return observations.Caller{
		ID:         middleware.GetUserID(r),
		Privileged: middleware.IsPrivileged(r),
	}
}

// List handles GET /observations.
func (h *ObservationHandler) List(w http.ResponseWriter, r *http.Request) {
	opts, err := h.readOptions(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.pipeline.List(r.Context(), caller(r), opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if opts.GeoJSON {
		w.Header().Set("Content-Type", "application/geo+json")
	}
	writeJSON(w, http.StatusOK, out)
}

// Get handles GET /observations/{id}.
func (h *ObservationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		// ids are uuids, anything else is unknown
		h.fail(w, r, observations.ErrNotFound)
		return
	}
	opts, err := h.readOptions(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.pipeline.Get(r.Context(), caller(r), id, opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if opts.GeoJSON {
		w.Header().Set("Content-Type", "application/geo+json")
	}
	writeJSON(w, http.StatusOK, out)
}

// Create handles POST /observations.
func (h *ObservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil || body == nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	q := r.URL.Query()
	minimal, err := flag(q, "minimalRes")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	callID, err := flag(q, "generateCallId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out, err := h.pipeline.Create(r.Context(), caller(r), body, observations.CreateOptions{
		Minimal:        minimal,
		GenerateCallID: callID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// Delete handles DELETE /observations/{id}: a soft delete.
func (h *ObservationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, observations.ErrNotFound)
		return
	}
	if err := h.pipeline.MarkForDeletion(r.Context(), caller(r), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readOptions parses crs, mode, minimalRes, excludeOutOfRois, limit, offset
// and the locale (lng, then Accept-Language).
func (h *ObservationHandler) readOptions(r *http.Request) (observations.ReadOptions, error) {
	q := r.URL.Query()
	opts := observations.ReadOptions{
		GeoJSON: q.Get("mode") == "geojson",
		Locale:  h.locales.Match(q.Get("lng"), r.Header.Get("Accept-Language")),
	}
	var err error
	if opts.Minimal, err = flag(q, "minimalRes"); err != nil {
		return opts, err
	}
	if opts.ExcludeOutOfRois, err = flag(q, "excludeOutOfRois"); err != nil {
		return opts, err
	}
	if opts.CRS, err = integer(q, "crs"); err != nil {
		return opts, err
	}
	if opts.Limit, err = integer(q, "limit"); err != nil {
		return opts, err
	}
	if opts.Offset, err = integer(q, "offset"); err != nil {
		return opts, err
	}
	if opts.Limit < 0 || opts.Offset < 0 {
		return opts, observations.ValidationErrors{{Field: "limit", Message: "must be a non-negative number"}}
	}
	return opts, nil
}

// flag treats a bare "?name" as true.
func flag(q map[string][]string, name string) (bool, error) {
	vals, ok := q[name]
	if !ok {
		return false, nil
	}
	if len(vals) == 0 || vals[0] == "" {
		return true, nil
	}
	b, err := strconv.ParseBool(vals[0])
	if err != nil {
		return false, observations.ValidationErrors{{Field: name, Message: "must be a boolean", RejectedValue: vals[0]}}
	}
	return b, nil
}

func integer(q map[string][]string, name string) (int, error) {
	vals := q[name]
	if len(vals) == 0 || vals[0] == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(vals[0])
	if err != nil {
		return 0, observations.ValidationErrors{{Field: name, Message: "must be an integer", RejectedValue: vals[0]}}
	}
	return n, nil
}

// fail maps pipeline errors onto HTTP responses.
func (h *ObservationHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verrs observations.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": verrs})
	case errors.Is(err, observations.ErrNotFound):
		writeError(w, http.StatusNotFound, observations.ErrNotFound.Error())
	case errors.Is(err, observations.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	default:
		h.log.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
