package handler

import (
	"context"
	"net/http"

	"github.com/NeverShitty/rental-manager-sub001/internal/ledger"
	"github.com/NeverShitty/rental-manager-sub001/internal/platform/push"
)

// PushRunner defines the export operations needed by PushHandler
type PushRunner interface {
	RunOnce(ctx context.Context) (push.Result, error)
}

// PushStore defines the ledger reads needed by PushHandler
type PushStore interface {
	ListStuckPushes(ctx context.Context, limit int) ([]*ledger.Transaction, error)
}

// PushHandler handles export-to-system-of-record HTTP requests
type PushHandler struct {
	runner PushRunner
	store  PushStore
}

// NewPushHandler creates a new push handler
func NewPushHandler(runner PushRunner, store PushStore) *PushHandler {
	return &PushHandler{
		runner: runner,
		store:  store,
	}
}

// RunPush handles POST /push/run: one synchronous export pass
func (h *PushHandler) RunPush(w http.ResponseWriter, r *http.Request) {
	result, err := h.runner.RunOnce(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "push pass failed")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]int{
		"pushed":  result.Pushed,
		"retried": result.Retried,
		"stuck":   result.Stuck,
		"skipped": result.Skipped,
	})
}

// StuckListResponse represents transactions whose export retries are exhausted
type StuckListResponse struct {
	Transactions []*ledger.Transaction `json:"transactions"`
	Total        int                   `json:"total"`
}

// ListStuck handles GET /push/stuck
func (h *PushHandler) ListStuck(w http.ResponseWriter, r *http.Request) {
	txs, err := h.store.ListStuckPushes(r.Context(), 100)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list stuck transactions")
		return
	}

	respondWithJSON(w, http.StatusOK, StuckListResponse{Transactions: txs, Total: len(txs)})
}
