package orchestrator

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"hls-assembler/internal/hls"

	"github.com/go-chi/chi/v5"
)

const maxRequestBody = 1 << 20

// Handler exposes the job API using go-chi.
type Handler struct {
	svc *Service
	log *slog.Logger
}

// NewHandler returns a Handler that uses the given Service and Logger.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// submitRequest is either a single unit or a batch under "units".
type submitRequest struct {
	LogicalName     string     `json:"logical_name"`
	PlaylistAddress string     `json:"playlist_address"`
	Units           []hls.Unit `json:"units"`
}

type jobsResponse struct {
	Jobs []Job `json:"jobs"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Routes mounts the job endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", h.SubmitJobs)
		r.Get("/", h.ListJobs)
		r.Get("/{job_id}", h.GetJob)
	})
}

// SubmitJobs handles POST /jobs.
// Body: { "logical_name": "Episode 1", "playlist_address": "https://.../index.m3u8" }
// or { "units": [ {...}, {...} ] }. Responds 202 with the created job(s), 409
// when a logical name is already being processed.
func (h *Handler) SubmitJobs(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.log.Debug("invalid submit body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	if len(req.Units) > 0 {
		if req.LogicalName != "" || req.PlaylistAddress != "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "use either a single unit or units, not both"})
			return
		}
		jobs, err := h.svc.SubmitBatch(req.Units)
		if err != nil {
			h.writeSubmitError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, jobsResponse{Jobs: jobs})
		return
	}

	job, err := h.svc.Submit(hls.Unit{LogicalName: req.LogicalName, PlaylistAddress: req.PlaylistAddress})
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (h *Handler) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, hls.ErrInvalidUnit):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, ErrDuplicateJob):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, ErrShuttingDown):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		h.log.Error("submit failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// ListJobs handles GET /jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, jobsResponse{Jobs: h.svc.List()})
}

// GetJob handles GET /jobs/{job_id}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := JobID(chi.URLParam(r, "job_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	job, ok := h.svc.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: ErrJobNotFound.Error()})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
