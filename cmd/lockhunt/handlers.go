package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/lockhunt/hunt"
	"github.com/hazyhaar/lockhunt/internal/store"
)

type handlers struct {
	coord        *hunt.Coordinator
	store        *store.Store
	cfg          *hunt.Config
	logger       *slog.Logger
	baseCtx      context.Context
	passwordHash []byte
}

func (h *handlers) router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		if h.passwordHash != nil {
			r.Use(h.basicAuth)
		}
		r.Post("/search/start", h.startSearch)
		r.Post("/search/stop", h.stopSearch)
		r.Post("/search/pause", h.pauseSearch)
		r.Post("/search/resume", h.resumeSearch)
		r.Get("/search/status", h.searchStatus)
		r.Get("/config/default", h.defaultConfig)
		r.Get("/results/list", h.listResults)
		r.Get("/results/count", h.countResults)
		r.Get("/results/download", h.downloadResults)
	})

	return r
}

// startRequest mirrors the dashboard's search form. Every field is
// optional; missing values fall back to the configured defaults.
type startRequest struct {
	ModelNumbers []string `json:"model_numbers"`
	Exclusions   []string `json:"exclusions"`
	NumAgents    int      `json:"num_agents"`
}

func (h *handlers) startSearch(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if len(req.ModelNumbers) == 0 {
		req.ModelNumbers = h.cfg.DefaultTargets
	}
	if len(req.Exclusions) == 0 {
		req.Exclusions = h.cfg.DefaultExclusions
	}

	if h.coord.Running() {
		writeError(w, http.StatusConflict, hunt.ErrAlreadyRunning)
		return
	}

	// StartSearch blocks until the pool drains, so it runs detached from
	// the request. The server's base context keeps the search alive past
	// this request and cancels it on shutdown.
	go func() {
		if err := h.coord.StartSearch(h.baseCtx, req.ModelNumbers, req.Exclusions, req.NumAgents); err != nil {
			if errors.Is(err, hunt.ErrAlreadyRunning) {
				h.logger.Warn("search start lost race, already running")
				return
			}
			h.logger.Error("search failed", "error", err)
		}
	}()

	agents := req.NumAgents
	if agents <= 0 {
		agents = h.cfg.AgentCount
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "started",
		"model_numbers": req.ModelNumbers,
		"num_agents":    agents,
	})
}

func (h *handlers) stopSearch(w http.ResponseWriter, _ *http.Request) {
	h.coord.StopSearch()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (h *handlers) pauseSearch(w http.ResponseWriter, _ *http.Request) {
	if err := h.coord.PauseSearch(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (h *handlers) resumeSearch(w http.ResponseWriter, _ *http.Request) {
	if err := h.coord.ResumeSearch(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (h *handlers) searchStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.coord.GetStatus())
}

func (h *handlers) defaultConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"model_numbers": h.cfg.DefaultTargets,
		"exclusions":    h.cfg.DefaultExclusions,
		"num_agents":    h.cfg.AgentCount,
	})
}

func (h *handlers) listResults(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.GetAll()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	// Newest results matter most on the dashboard, so the limit keeps the
	// tail of the file.
	limit := queryInt(r, "limit", 100)
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	if entries == nil {
		entries = []hunt.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": entries,
		"count":   len(entries),
	})
}

func (h *handlers) countResults(w http.ResponseWriter, _ *http.Request) {
	st := h.store.Stats()
	writeJSON(w, http.StatusOK, map[string]any{"count": st.Total})
}

func (h *handlers) downloadResults(w http.ResponseWriter, r *http.Request) {
	st := h.store.Stats()
	if !st.Exists {
		writeError(w, http.StatusNotFound, errors.New("no results file yet"))
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="macbook_results.csv"`)
	http.ServeFile(w, r, st.Path)
}

// basicAuth guards the API with HTTP basic auth when AUTH_PASSWORD is
// configured. The username is ignored; only the password is checked.
func (h *handlers) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, password, ok := r.BasicAuth()
		if !ok || bcrypt.CompareHashAndPassword(h.passwordHash, []byte(password)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="lockhunt"`)
			writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
