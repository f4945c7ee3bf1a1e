package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/MrWong99/voxhire/internal/observe"
	"github.com/MrWong99/voxhire/pkg/memory"
	"github.com/MrWong99/voxhire/pkg/types"
)

// maxSeedBody bounds the PUT /interviews/{id} request body.
const maxSeedBody = 1 << 20

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)

	mux.Handle("GET /ws/interviews/{id}", a.hub)

	mux.HandleFunc("GET /interviews", a.handleList)
	mux.HandleFunc("GET /interviews/{id}/state", a.handleState)
	mux.HandleFunc("PUT /interviews/{id}", a.handleSeed)
	mux.HandleFunc("DELETE /interviews/{id}", a.handleRelease)

	if a.metricsHandler != nil {
		path := a.Config().Server.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, a.metricsHandler)
	}
	return observe.Middleware(a.metrics)(mux)
}

// handleList returns a snapshot of every live session.
func (a *App) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"interviews": a.sessions.Snapshots()})
}

// handleState returns one live session's snapshot. Interviews without a live
// session are 404; looking one up never starts it.
func (a *App) handleState(w http.ResponseWriter, r *http.Request) {
	s, ok := a.sessions.Lookup(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "interview is not active")
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (a *App) handleRelease(w http.ResponseWriter, r *http.Request) {
	if !a.sessions.release(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "interview is not active")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// seedRequest is the body of PUT /interviews/{id}.
type seedRequest struct {
	Job struct {
		ID          string   `json:"id"`
		Title       string   `json:"title"`
		Company     string   `json:"company"`
		Description string   `json:"description"`
		Skills      []string `json:"skills"`
		Language    string   `json:"language"`
	} `json:"job"`
	Candidate struct {
		ID      string   `json:"id"`
		Name    string   `json:"name"`
		Summary string   `json:"summary"`
		Skills  []string `json:"skills"`
	} `json:"candidate"`
	Voice struct {
		ID       string `json:"id"`
		Provider string `json:"provider"`
	} `json:"voice"`
}

func (req *seedRequest) context(id string) types.InterviewContext {
	return types.InterviewContext{
		InterviewID: id,
		Job: types.Job{
			ID:          req.Job.ID,
			Title:       strings.TrimSpace(req.Job.Title),
			Company:     req.Job.Company,
			Description: req.Job.Description,
			Skills:      req.Job.Skills,
			Language:    req.Job.Language,
		},
		Candidate: types.Candidate{
			ID:      req.Candidate.ID,
			Name:    strings.TrimSpace(req.Candidate.Name),
			Summary: req.Candidate.Summary,
			Skills:  req.Candidate.Skills,
		},
		Voice: types.VoiceProfile{ID: req.Voice.ID, Provider: req.Voice.Provider},
	}
}

// handleSeed creates or replaces an interview's context. A live session has
// already loaded its context, so seeding it is a conflict.
func (a *App) handleSeed(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	writer, ok := a.store.(memory.ContextWriter)
	if !ok {
		writeError(w, http.StatusNotImplemented, "store does not accept interview contexts")
		return
	}
	if _, live := a.sessions.Lookup(id); live {
		writeError(w, http.StatusConflict, "interview is active")
		return
	}

	var req seedRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSeedBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Job.Title) == "" {
		writeError(w, http.StatusBadRequest, "job.title is required")
		return
	}

	if err := writer.SaveContext(r.Context(), req.context(id)); err != nil {
		observe.Logger(observe.WithInterviewID(r.Context(), id)).Error("save interview context", "err", err)
		status := http.StatusInternalServerError
		if errors.Is(err, memory.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, "could not save interview")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
