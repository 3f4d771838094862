package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/deusflow/newspaper/internal/logger"
	"github.com/deusflow/newspaper/internal/metrics"
	"github.com/deusflow/newspaper/internal/model"
	"github.com/deusflow/newspaper/internal/newspaper"
	"github.com/deusflow/newspaper/internal/storage"
	"github.com/deusflow/newspaper/internal/suggest"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodyBytes     = 1 << 20
)

func (a *App) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)

	r.Get("/health", a.handleHealth)
	r.Get("/metrics", a.handleMetrics)

	r.Route("/api", func(r chi.Router) {
		r.Post("/feeds/suggest", a.handleSuggest)
		r.Route("/newspapers", func(r chi.Router) {
			r.Post("/", a.handleGenerate)
			r.Get("/", a.handleList)
			r.Get("/{id}", a.handleGet)
		})
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Info("HTTP request",
			"method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"duration", time.Since(start), "request_id", middleware.GetReqID(r.Context()))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := metrics.Global.GetStats()

	status, code := "ok", http.StatusOK
	if !stats["is_healthy"].(bool) {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	dbStatus := "ok"
	if err := a.store.Ping(r.Context()); err != nil {
		logger.Error("Database ping failed", "err", err)
		status, code, dbStatus = "error", http.StatusServiceUnavailable, err.Error()
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"database":   dbStatus,
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
	})
}

func (a *App) handleMetrics(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"pipeline": metrics.Global.GetStats(),
		"ai_usage": a.limiter.GetStats(),
	}
	if tables, err := a.store.GetStats(r.Context()); err != nil {
		logger.Warn("Failed to read storage stats", "err", err)
	} else {
		resp["storage"] = tables
	}
	writeJSON(w, http.StatusOK, resp)
}

type suggestRequest struct {
	Theme  string `json:"theme"`
	Locale string `json:"locale"`
}

type generateRequest struct {
	Theme    string   `json:"theme"`
	Locale   string   `json:"locale"`
	FeedURLs []string `json:"feedUrls"`
}

// decodeThemed decodes body into v and validates its theme and locale.
func decodeThemed(w http.ResponseWriter, r *http.Request, v any, theme, locale *string) (model.Locale, bool) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return "", false
	}
	*theme = strings.TrimSpace(*theme)
	if *theme == "" {
		writeError(w, http.StatusBadRequest, "theme is required")
		return "", false
	}
	loc, err := model.ParseLocale(*locale)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return loc, true
}

func (a *App) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	locale, ok := decodeThemed(w, r, &req, &req.Theme, &req.Locale)
	if !ok {
		return
	}

	s, err := a.engine.SuggestFeeds(r.Context(), req.Theme, locale)
	if err != nil {
		if errors.Is(err, suggest.ErrNoFeeds) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		logger.Error("Feed suggestion failed", "theme", req.Theme, "err", err)
		writeError(w, http.StatusInternalServerError, "feed suggestion failed")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

type newspaperResponse struct {
	*newspaper.Newspaper
	Layout newspaper.Layout `json:"layout"`
}

func (a *App) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	locale, ok := decodeThemed(w, r, &req, &req.Theme, &req.Locale)
	if !ok {
		return
	}

	paper, err := a.generator.Generate(r.Context(), newspaper.Request{Theme: req.Theme, Locale: locale, FeedURLs: req.FeedURLs})
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, newspaperResponse{Newspaper: paper, Layout: paper.Layout()})
	case errors.Is(err, newspaper.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, suggest.ErrNoFeeds):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		logger.Error("Newspaper generation failed", "theme", req.Theme, "err", err)
		writeError(w, http.StatusInternalServerError, "newspaper generation failed")
	}
}

func (a *App) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	paper, err := a.generator.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "newspaper not found")
			return
		}
		logger.Error("Failed to load newspaper", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load newspaper")
		return
	}
	writeJSON(w, http.StatusOK, newspaperResponse{Newspaper: paper, Layout: paper.Layout()})
}

func (a *App) handleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	list, err := a.generator.Recent(r.Context(), limit)
	if err != nil {
		logger.Error("Failed to list newspapers", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list newspapers")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"newspapers": list})
}
