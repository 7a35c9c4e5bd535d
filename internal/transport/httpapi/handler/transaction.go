package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/NeverShitty/rental-manager-sub001/internal/ledger"
	"github.com/NeverShitty/rental-manager-sub001/pkg/logger"
)

// TransactionStore defines the ledger operations needed by TransactionHandler
type TransactionStore interface {
	GetTransaction(ctx context.Context, id string) (*ledger.Transaction, error)
	ListTransactions(ctx context.Context, f ledger.TxFilter) ([]*ledger.Transaction, error)
	SetCategory(ctx context.Context, id string, categoryID *string) error
	TransitionMatch(ctx context.Context, id string, from, to ledger.MatchStatus, matchedTxID *string) (bool, error)
	ListCategories(ctx context.Context) ([]*ledger.Category, error)
}

// TransactionHandler handles canonical-ledger HTTP requests
type TransactionHandler struct {
	store  TransactionStore
	logger *logger.Logger
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(store TransactionStore, log *logger.Logger) *TransactionHandler {
	return &TransactionHandler{
		store:  store,
		logger: log.WithField("component", "transaction_handler"),
	}
}

// TransactionListResponse represents a list of canonical transactions
type TransactionListResponse struct {
	Transactions []*ledger.Transaction `json:"transactions"`
	Total        int                   `json:"total"`
}

// ListTransactions handles GET /transactions
func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := ledger.TxFilter{Limit: 100}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil && limit > 0 && limit <= 500 {
		filter.Limit = limit
	}

	if v := query.Get("match_status"); v != "" {
		status := ledger.MatchStatus(v)
		if !status.IsValid() {
			respondWithError(w, http.StatusBadRequest, "invalid match_status")
			return
		}
		filter.MatchStatus = &status
	}

	if v := query.Get("source"); v != "" {
		source := ledger.Source(v)
		if !source.IsValid() {
			respondWithError(w, http.StatusBadRequest, "invalid source")
			return
		}
		filter.Source = &source
	}

	filter.Uncategorized = query.Get("uncategorized") == "true"

	txs, err := h.store.ListTransactions(r.Context(), filter)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	respondWithJSON(w, http.StatusOK, TransactionListResponse{
		Transactions: txs,
		Total:        len(txs),
	})
}

// ListUncategorized handles GET /transactions/uncategorized
func (h *TransactionHandler) ListUncategorized(w http.ResponseWriter, r *http.Request) {
	txs, err := h.store.ListTransactions(r.Context(), ledger.TxFilter{
		Uncategorized: true,
		Limit:         500,
	})
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	respondWithJSON(w, http.StatusOK, TransactionListResponse{
		Transactions: txs,
		Total:        len(txs),
	})
}

// GetTransaction handles GET /transactions/{id}
func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "transaction ID is required")
		return
	}

	tx, err := h.store.GetTransaction(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "transaction not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to fetch transaction")
		return
	}

	respondWithJSON(w, http.StatusOK, tx)
}

// SetCategoryRequest represents a manual category override
type SetCategoryRequest struct {
	CategoryID *string `json:"category_id"` // null clears the category
}

// SetCategory handles PUT /transactions/{id}/category
func (h *TransactionHandler) SetCategory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req SetCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.CategoryID != nil {
		leaf, err := h.isLeafCategory(r.Context(), *req.CategoryID)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "failed to load categories")
			return
		}
		if !leaf {
			respondWithError(w, http.StatusBadRequest, "category_id must name a leaf category")
			return
		}
	}

	if err := h.store.SetCategory(r.Context(), id, req.CategoryID); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "transaction not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to set category")
		return
	}

	tx, err := h.store.GetTransaction(r.Context(), id)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to fetch transaction")
		return
	}
	respondWithJSON(w, http.StatusOK, tx)
}

func (h *TransactionHandler) isLeafCategory(ctx context.Context, id string) (bool, error) {
	categories, err := h.store.ListCategories(ctx)
	if err != nil {
		return false, err
	}
	for _, c := range categories {
		if c.ID == id {
			return c.IsLeaf(), nil
		}
	}
	return false, nil
}

// MatchRequest represents a manual match confirmation
type MatchRequest struct {
	CounterpartID string `json:"counterpart_id"`
}

// Match handles POST /transactions/{id}/match. It links two transactions
// through the same compare-and-set transition the automatic matcher uses,
// so an overlapping reconciliation run can never half-apply the pair.
func (h *TransactionHandler) Match(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CounterpartID == "" {
		respondWithError(w, http.StatusBadRequest, "counterpart_id is required")
		return
	}
	if req.CounterpartID == id {
		respondWithError(w, http.StatusBadRequest, "a transaction cannot match itself")
		return
	}

	left, err := h.loadForMatch(w, r, id)
	if left == nil || err != nil {
		return
	}
	right, err := h.loadForMatch(w, r, req.CounterpartID)
	if right == nil || err != nil {
		return
	}

	if left.PrimarySource() == right.PrimarySource() {
		respondWithError(w, http.StatusBadRequest, "matched transactions must come from different sources")
		return
	}
	if left.Currency != right.Currency || left.AmountMinor != right.AmountMinor {
		respondWithError(w, http.StatusBadRequest, "amount and currency must agree")
		return
	}

	ok, err := h.store.TransitionMatch(r.Context(), left.ID, left.MatchStatus, ledger.MatchMatched, &right.ID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to match transaction")
		return
	}
	if !ok {
		respondWithError(w, http.StatusConflict, "transaction was claimed by a concurrent run")
		return
	}

	ok, err = h.store.TransitionMatch(r.Context(), right.ID, right.MatchStatus, ledger.MatchMatched, &left.ID)
	if err != nil || !ok {
		// Roll the first side back so the pair never half-applies
		if _, rbErr := h.store.TransitionMatch(r.Context(), left.ID, ledger.MatchMatched, left.MatchStatus, nil); rbErr != nil {
			h.logger.Error("failed to roll back match claim, pair left half-applied",
				"transaction_id", left.ID, "counterpart_id", right.ID, "error", rbErr)
		}
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "failed to match counterpart")
			return
		}
		respondWithError(w, http.StatusConflict, "counterpart was claimed by a concurrent run")
		return
	}

	tx, err := h.store.GetTransaction(r.Context(), id)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to fetch transaction")
		return
	}
	respondWithJSON(w, http.StatusOK, tx)
}

// loadForMatch fetches a transaction and rejects those not eligible for a
// manual match. Writes the error response itself; returns nil on rejection.
func (h *TransactionHandler) loadForMatch(w http.ResponseWriter, r *http.Request, id string) (*ledger.Transaction, error) {
	tx, err := h.store.GetTransaction(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "transaction not found: "+id)
			return nil, nil
		}
		respondWithError(w, http.StatusInternalServerError, "failed to fetch transaction")
		return nil, err
	}
	if tx.MatchStatus == ledger.MatchMatched {
		respondWithError(w, http.StatusConflict, "transaction is already matched: "+id)
		return nil, nil
	}
	return tx, nil
}

// Unmatch handles DELETE /transactions/{id}/match. A matched pair is unlinked
// on both sides; a pending_review transaction is simply released back to
// unmatched.
func (h *TransactionHandler) Unmatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tx, err := h.store.GetTransaction(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "transaction not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to fetch transaction")
		return
	}

	switch tx.MatchStatus {
	case ledger.MatchMatched:
		ok, err := h.store.TransitionMatch(r.Context(), tx.ID, ledger.MatchMatched, ledger.MatchUnmatched, nil)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "failed to unmatch transaction")
			return
		}
		if !ok {
			respondWithError(w, http.StatusConflict, "transaction changed under a concurrent run")
			return
		}
		if tx.MatchedTxID != nil {
			if _, err := h.store.TransitionMatch(r.Context(), *tx.MatchedTxID, ledger.MatchMatched, ledger.MatchUnmatched, nil); err != nil {
				respondWithError(w, http.StatusInternalServerError, "failed to unmatch counterpart")
				return
			}
		}
	case ledger.MatchPendingReview:
		ok, err := h.store.TransitionMatch(r.Context(), tx.ID, ledger.MatchPendingReview, ledger.MatchUnmatched, nil)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "failed to release transaction")
			return
		}
		if !ok {
			respondWithError(w, http.StatusConflict, "transaction changed under a concurrent run")
			return
		}
	default:
		respondWithError(w, http.StatusBadRequest, "transaction is not matched")
		return
	}

	updated, err := h.store.GetTransaction(r.Context(), id)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to fetch transaction")
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}
