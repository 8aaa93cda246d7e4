package tracker

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter serves the read side of the pipeline plus the feedback write
// path. This is the data surface a dashboard reads; rendering itself lives
// elsewhere.
//
//	GET  /healthz
//	GET  /logs?limit=&offset=&provider=&model=
//	GET  /logs/{id}
//	GET  /logs/{id}/checks
//	GET  /logs/{id}/feedback
//	POST /logs/{id}/feedback
func NewRouter(s *Store, runner *Runner) http.Handler {
	api := &apiServer{store: s, runner: runner}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", api.handleHealth)
	r.Route("/logs", func(r chi.Router) {
		r.Get("/", api.handleListLogs)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", api.handleGetLog)
			r.Get("/checks", api.handleGetChecks)
			r.Get("/feedback", api.handleGetFeedback)
			r.Post("/feedback", api.handlePostFeedback)
		})
	})
	return r
}

type apiServer struct {
	store  *Store
	runner *Runner
}

func (a *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Ping(r.Context()); err != nil {
		jsonError(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	resp := map[string]any{"status": "ok"}
	if a.runner != nil {
		resp["stats"] = a.runner.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *apiServer) handleListLogs(w http.ResponseWriter, r *http.Request) {
	f := ListFilter{
		Provider: r.URL.Query().Get("provider"),
		Model:    r.URL.Query().Get("model"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			f.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			f.Offset = n
		}
	}

	logs, err := a.store.ListLogs(r.Context(), f)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if logs == nil {
		logs = []LogRecord{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (a *apiServer) handleGetLog(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := a.store.GetLog(r.Context(), id)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		jsonError(w, "log not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *apiServer) handleGetChecks(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	checks, err := a.store.GetChecks(r.Context(), id)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if checks == nil {
		checks = []CheckResult{}
	}
	writeJSON(w, http.StatusOK, checks)
}

func (a *apiServer) handleGetFeedback(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	fbs, err := a.store.GetFeedback(r.Context(), id)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if fbs == nil {
		fbs = []Feedback{}
	}
	writeJSON(w, http.StatusOK, fbs)
}

func (a *apiServer) handlePostFeedback(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)

	var req struct {
		IsGood          *bool  `json:"is_good"`
		Comments        string `json:"comments"`
		ReferenceAnswer string `json:"reference_answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.IsGood == nil {
		jsonError(w, "is_good is required", http.StatusBadRequest)
		return
	}

	fbID, err := SaveFeedback(r.Context(), a.store, id, *req.IsGood, req.Comments, req.ReferenceAnswer)
	if errors.Is(err, ErrUnknownLog) {
		jsonError(w, "log not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": fbID, "status": "ok"})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		jsonError(w, "invalid log id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
