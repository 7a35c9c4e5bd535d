package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/NeverShitty/rental-manager-sub001/internal/ledger"
	"github.com/NeverShitty/rental-manager-sub001/internal/platform/sync"
)

// RunTrigger defines the sync operations needed by RunHandler
type RunTrigger interface {
	TriggerRun(ctx context.Context) (*ledger.Run, error)
}

// RunStore defines the run-history reads needed by RunHandler
type RunStore interface {
	GetRun(ctx context.Context, id uuid.UUID) (*ledger.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*ledger.Run, error)
}

// RunHandler handles reconciliation-run HTTP requests
type RunHandler struct {
	trigger RunTrigger
	store   RunStore
}

// NewRunHandler creates a new run handler
func NewRunHandler(trigger RunTrigger, store RunStore) *RunHandler {
	return &RunHandler{
		trigger: trigger,
		store:   store,
	}
}

// TriggerRun handles POST /runs. The run executes in the background; the
// caller polls GET /runs/{id} for the outcome.
func (h *RunHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.trigger.TriggerRun(r.Context())
	if err != nil {
		if errors.Is(err, sync.ErrRunInProgress) {
			respondWithError(w, http.StatusConflict, "a reconciliation run is already in progress")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to start run")
		return
	}

	respondWithJSON(w, http.StatusAccepted, run)
}

// RunListResponse represents a list of reconciliation runs
type RunListResponse struct {
	Runs  []*ledger.Run `json:"runs"`
	Total int           `json:"total"`
}

// ListRuns handles GET /runs
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 100 {
		limit = v
	}

	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	respondWithJSON(w, http.StatusOK, RunListResponse{Runs: runs, Total: len(runs)})
}

// GetRun handles GET /runs/{id}
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid run ID")
		return
	}

	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "run not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to fetch run")
		return
	}

	respondWithJSON(w, http.StatusOK, run)
}
