package handler

import (
	"context"
	"net/http"

	"github.com/NeverShitty/rental-manager-sub001/internal/ledger"
)

// AccountStore defines the ledger reads needed by AccountHandler
type AccountStore interface {
	ListAccounts(ctx context.Context) ([]*ledger.ExternalAccount, error)
}

// AccountHandler serves external-account balance snapshots
type AccountHandler struct {
	store AccountStore
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(store AccountStore) *AccountHandler {
	return &AccountHandler{store: store}
}

// AccountListResponse represents a list of external account snapshots
type AccountListResponse struct {
	Accounts []*ledger.ExternalAccount `json:"accounts"`
	Total    int                       `json:"total"`
}

// ListAccounts handles GET /accounts
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.store.ListAccounts(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}

	respondWithJSON(w, http.StatusOK, AccountListResponse{Accounts: accounts, Total: len(accounts)})
}
