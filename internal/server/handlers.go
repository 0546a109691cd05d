package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/BadgerOps/pimsync/internal/config"
	"github.com/BadgerOps/pimsync/internal/importer"
	"github.com/BadgerOps/pimsync/internal/manifest"
	"github.com/BadgerOps/pimsync/internal/remote"
	"github.com/BadgerOps/pimsync/internal/store"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
)

// RunDetail is the response of GET /api/runs/{id}.
type RunDetail struct {
	store.ImportRun
	BatchResults []store.ImportBatch `json:"batch_results"`
}

// ImportRequestBody is the expected request body for POST /api/imports.
type ImportRequestBody struct {
	FileName string `json:"file_name"`
}

// ImportResponseBody is the response from POST /api/imports.
type ImportResponseBody struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Report  *importer.Report `json:"report,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListRuns returns recorded import runs, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is not configured")
		return
	}

	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs, err := s.store.ListImportRuns(limit)
	if err != nil {
		s.logger.Error("failed to list import runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list import runs")
		return
	}
	if runs == nil {
		runs = []store.ImportRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleGetRun returns one run with its batch outcomes.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is not configured")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "run id required")
		return
	}

	run, err := s.store.GetImportRun(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "import run not found")
			return
		}
		s.logger.Error("failed to load import run", "run_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load import run")
		return
	}

	batches, err := s.store.ListImportBatches(id)
	if err != nil {
		s.logger.Error("failed to load import batches", "run_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load import batches")
		return
	}
	if batches == nil {
		batches = []store.ImportBatch{}
	}

	writeJSON(w, http.StatusOK, RunDetail{ImportRun: *run, BatchResults: batches})
}

// handleCreateImport runs a resource import and answers when it is done.
// Concurrent requests queue on the gateway lock.
func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.FileName = strings.TrimSpace(req.FileName)
	if req.FileName == "" {
		writeError(w, http.StatusBadRequest, "file_name required")
		return
	}

	report, err := s.runner.ImportResources(r.Context(), req.FileName)
	if err != nil {
		writeJSON(w, statusForImportError(err), ImportResponseBody{
			Success: false,
			Message: err.Error(),
			Report:  report,
		})
		return
	}

	message := "import completed"
	switch {
	case report.Disabled:
		message = "endpoint disabled, import skipped"
	case report.Skipped:
		message = "manifest contains no resources"
	case !report.Succeeded():
		message = "import finished with rejected or failed batches"
	}
	writeJSON(w, http.StatusOK, ImportResponseBody{
		Success: report.Succeeded(),
		Message: message,
		Report:  report,
	})
}

func statusForImportError(err error) int {
	var (
		cfgErr       *config.ConfigurationError
		manifestErr  *manifest.MalformedManifestError
		transportErr *remote.TransportError
	)
	switch {
	case errors.As(err, &cfgErr):
		return http.StatusInternalServerError
	case errors.As(err, &manifestErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &transportErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
