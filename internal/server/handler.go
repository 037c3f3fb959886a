package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/KaramelBytes/insighto/internal/apperrors"
	"github.com/KaramelBytes/insighto/internal/charts"
	"github.com/KaramelBytes/insighto/internal/dataset"
	"github.com/KaramelBytes/insighto/internal/pipeline"
	"github.com/KaramelBytes/insighto/internal/store"
)

type Handler struct {
	orch *pipeline.Orchestrator
}

func NewHandler(orch *pipeline.Orchestrator) *Handler {
	return &Handler{orch: orch}
}

// CreateSessionRequest registers a file already present on the server host.
type CreateSessionRequest struct {
	Path     string `json:"path"`
	Filename string `json:"filename,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps domain errors onto status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrSessionNotFound), errors.Is(err, store.ErrArtifactNotFound):
		status = http.StatusNotFound
	case errors.Is(err, pipeline.ErrRunInProgress), errors.Is(err, pipeline.ErrSessionTerminal):
		status = http.StatusConflict
	case errors.Is(err, dataset.ErrUnsupportedFormat), errors.Is(err, charts.ErrUnknownColumn):
		status = http.StatusBadRequest
	case apperrors.Is(err, apperrors.LoadFailure):
		status = http.StatusUnprocessableEntity
	}
	ev := zerolog.Ctx(r.Context()).Warn()
	if status == http.StatusInternalServerError {
		ev = zerolog.Ctx(r.Context()).Error()
	}
	ev.Err(err).Int("status", status).Msg("request failed")
	writeJSON(w, r, status, errorResponse{Error: err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.orch.Store().ListSessions(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []store.Session{}
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decode(w, r, &req); err != nil || req.Path == "" {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "body must be {\"path\": \"...\"}"})
		return
	}
	sess, err := h.orch.Upload(r.Context(), req.Filename, req.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, sess)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.orch.Store().GetSession(r.Context(), chi.URLParam(r, "session"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sess)
}

func (h *Handler) ClearSession(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.Clear(r.Context(), chi.URLParam(r, "session")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	p, err := h.orch.Preview(r.Context(), chi.URLParam(r, "session"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// Run analyses the session synchronously and returns the report. The run is
// detached from the request so a client disconnect does not leave the
// session in error.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	rep, err := h.orch.Run(context.WithoutCancel(r.Context()), chi.URLParam(r, "session"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rep)
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	p, err := h.orch.Profile(r.Context(), chi.URLParam(r, "session"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// Report returns the report as JSON, or as Markdown with ?format=markdown.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	rep, err := h.orch.Report(r.Context(), chi.URLParam(r, "session"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if strings.EqualFold(r.URL.Query().Get("format"), "markdown") {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(rep.Markdown()))
		return
	}
	writeJSON(w, r, http.StatusOK, rep)
}

func (h *Handler) Charts(w http.ResponseWriter, r *http.Request) {
	list, err := h.orch.Charts(r.Context(), chi.URLParam(r, "session"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (h *Handler) CustomChart(w http.ResponseWriter, r *http.Request) {
	var req charts.CustomRequest
	if err := decode(w, r, &req); err != nil || req.Column == "" {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "body must be {\"column\": \"...\"}"})
		return
	}
	spec, err := h.orch.CustomChart(r.Context(), chi.URLParam(r, "session"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, spec)
}

// ChartImage serves one rendered PNG from the session directory.
func (h *Handler) ChartImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session")
	file := chi.URLParam(r, "file")
	if _, err := h.orch.Store().GetSession(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	if file != filepath.Base(file) || !strings.EqualFold(filepath.Ext(file), ".png") {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "invalid chart file name"})
		return
	}
	path := filepath.Join(h.orch.Store().SessionDir(id), file)
	if _, err := os.Stat(path); err != nil {
		writeError(w, r, store.ErrArtifactNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, path)
}
