package wave

// Transaction direction values used by the Wave API
const (
	DirectionDeposit    = "DEPOSIT"
	DirectionWithdrawal = "WITHDRAWAL"
)

// TransactionsResponse is the Wave transactions page payload
type TransactionsResponse struct {
	Transactions  []Transaction `json:"transactions"`
	NextPageToken string        `json:"next_page_token"` // empty on the last page
}

// Transaction is one ledger entry as Wave reports it. Amount is always a
// positive decimal string; Direction carries the sign.
type Transaction struct {
	ID          string    `json:"id"`
	Date        string    `json:"date"` // YYYY-MM-DD
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	Direction   string    `json:"direction"` // DEPOSIT or WITHDRAWAL
	Description string    `json:"description"`
	Category    *Category `json:"category"`
}

// Category is Wave's own bookkeeping category for an entry
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AccountsResponse is the Wave accounts payload
type AccountsResponse struct {
	Accounts []Account `json:"accounts"`
}

// Account is one Wave bookkeeping account
type Account struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
	Type     string `json:"type"`
}

// CreateTransactionsRequest is the push payload. ExternalReference is the
// caller-supplied idempotency key (the canonical ID).
type CreateTransactionsRequest struct {
	Transactions []CreateTransaction `json:"transactions"`
}

// CreateTransaction is one transaction to create in Wave
type CreateTransaction struct {
	ExternalReference string `json:"external_reference"`
	Date              string `json:"date"` // YYYY-MM-DD
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	Direction         string `json:"direction"`
	Description       string `json:"description"`
	CategoryID        string `json:"category_id,omitempty"`
}

// CreateTransactionsResponse is the per-item push outcome
type CreateTransactionsResponse struct {
	Results []CreateResult `json:"results"`
}

// CreateResult is one item's outcome; Status is "created", "duplicate" or
// "error"
type CreateResult struct {
	ExternalReference string `json:"external_reference"`
	Status            string `json:"status"`
	Error             string `json:"error,omitempty"`
}
