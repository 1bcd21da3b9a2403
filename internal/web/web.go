// Package web serves the single page and the JSON API behind it.
package web

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dtorres47/practice-tracker/internal/chart"
	"github.com/dtorres47/practice-tracker/internal/practice"
	"github.com/dtorres47/practice-tracker/internal/tracker"
	"github.com/dtorres47/practice-tracker/internal/ws"
)

//go:embed index.html
var indexHTML []byte

const maxJSONBody = 64 << 10

// Deps is what the router needs. Relay and Gatherer may be nil, in which
// case /api/proxy and /metrics are not mounted.
type Deps struct {
	Service  *tracker.Service
	Hub      *ws.Hub
	Relay    http.Handler
	Gatherer prometheus.Gatherer
	Backend  string
	MaxDays  int
}

type handlers struct {
	Deps
}

// NewRouter builds the chi router for every page and API route.
func NewRouter(d Deps) http.Handler {
	if d.MaxDays <= 0 {
		d.MaxDays = 366
	}
	h := &handlers{Deps: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RedirectSlashes)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(indexHTML)
	})
	if d.Hub != nil {
		r.Get("/ws", d.Hub.ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/practices", h.listPractices)
		r.Get("/profile", h.getProfile)
		r.Post("/profile", h.saveProfile)
		r.Get("/summary", h.summary)
		r.Get("/summary/day", h.dayDetail)
		r.Post("/entries", h.submit)
		r.Get("/chart.png", h.chartPNG)
		r.Get("/health", h.health)
		if d.Relay != nil {
			r.Handle("/proxy", d.Relay)
		}
	})

	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// accessLog logs one line per request once it completes.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encode response")
	}
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, practice.ErrInvalid):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, practice.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, practice.ErrUpstream):
		status, msg = http.StatusBadGateway, "script endpoint unavailable"
	}
	if status >= 500 {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return &practice.ValidationError{Field: "body", Reason: fmt.Sprintf("invalid json: %v", err)}
	}
	return nil
}

func (h *handlers) days(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > h.MaxDays {
		return 0, &practice.ValidationError{Field: "days", Reason: fmt.Sprintf("must be between 1 and %d", h.MaxDays)}
	}
	return n, nil
}

func (h *handlers) listPractices(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Service.Practices(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *handlers) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.Profile(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) saveProfile(w http.ResponseWriter, r *http.Request) {
	var p practice.Profile
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, err)
		return
	}
	saved, err := h.Service.SaveProfile(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *handlers) summary(w http.ResponseWriter, r *http.Request) {
	days, err := h.days(r)
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := h.Service.Summary(r.Context(), r.URL.Query().Get("userId"), days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handlers) dayDetail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records, err := h.Service.DayDetail(r.Context(), q.Get("userId"), q.Get("date"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *handlers) submit(w http.ResponseWriter, r *http.Request) {
	var sub practice.Submission
	if err := decodeJSON(w, r, &sub); err != nil {
		writeError(w, err)
		return
	}
	view, err := h.Service.Submit(r.Context(), sub)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handlers) chartPNG(w http.ResponseWriter, r *http.Request) {
	days, err := h.days(r)
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := h.Service.Summary(r.Context(), r.URL.Query().Get("userId"), days)
	if err != nil {
		writeError(w, err)
		return
	}
	title := fmt.Sprintf("%d ngày gần nhất", len(view.Window))
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := chart.WritePNG(w, title, view.Window); err != nil {
		log.Error().Err(err).Msg("chart render")
		http.Error(w, "chart render failed", http.StatusInternalServerError)
	}
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if h.Hub != nil {
		clients = h.Hub.ClientsCount()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "practice-tracker",
		"backend": h.Backend,
		"clients": clients,
	})
}
