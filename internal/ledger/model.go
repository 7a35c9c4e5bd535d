package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Source identifies the external platform a record was ingested from
type Source string

const (
	SourceMercury  Source = "mercury"  // banking provider
	SourceWave     Source = "wave"     // accounting ledger (system of record)
	SourceDoorLoop Source = "doorloop" // property management system
)

// IsValid checks if the source is a known connector source
func (s Source) IsValid() bool {
	switch s {
	case SourceMercury, SourceWave, SourceDoorLoop:
		return true
	}
	return false
}

// MatchStatus represents the reconciliation state of a canonical transaction
type MatchStatus string

const (
	MatchUnmatched     MatchStatus = "unmatched"
	MatchMatched       MatchStatus = "matched"
	MatchPendingReview MatchStatus = "pending_review" // ambiguous candidates, needs an operator
)

// IsValid checks if the match status is valid
func (s MatchStatus) IsValid() bool {
	switch s {
	case MatchUnmatched, MatchMatched, MatchPendingReview:
		return true
	}
	return false
}

// PushStatus represents the export state of a canonical transaction
type PushStatus string

const (
	PushPending PushStatus = "pending"
	PushPushed  PushStatus = "pushed"
	PushFailed  PushStatus = "failed" // retries exhausted, stuck until operator intervenes
)

// SourceRef is one external sighting of a canonical transaction
type SourceRef struct {
	Source     Source `json:"source"`
	ExternalID string `json:"external_id"`
}

// CanonicalID derives the stable identity of a transaction from its first
// sighting. The same (source, externalId) pair always hashes to the same ID,
// which is what makes re-ingestion a no-op.
func CanonicalID(source Source, externalID string) string {
	h := sha256.Sum256([]byte(string(source) + "|" + externalID))
	return hex.EncodeToString(h[:16])
}

// Transaction is the deduplicated canonical representation of one financial
// event. Created once on first sighting; afterwards only CategoryID,
// MatchStatus/MatchedTxID and the push fields are mutated. Amounts are signed
// integers in minor currency units, outflow negative and inflow positive.
type Transaction struct {
	ID           string      `json:"id" db:"id"`
	SourceRefs   []SourceRef `json:"source_refs" db:"source_refs"`
	AmountMinor  int64       `json:"amount_minor" db:"amount_minor"`
	Currency     string      `json:"currency" db:"currency"`
	PostedDate   time.Time   `json:"posted_date" db:"posted_date"` // date precision, UTC midnight
	Description  string      `json:"description" db:"description"`
	RawCategory  string      `json:"raw_category,omitempty" db:"raw_category"` // vendor's native label, mapper fallback input
	CategoryID   *string     `json:"category_id,omitempty" db:"category_id"`
	MatchStatus  MatchStatus `json:"match_status" db:"match_status"`
	MatchedTxID  *string     `json:"matched_tx_id,omitempty" db:"matched_tx_id"`
	PushStatus   PushStatus  `json:"push_status" db:"push_status"`
	PushAttempts int         `json:"push_attempts" db:"push_attempts"`
	NextPushAt   *time.Time  `json:"next_push_at,omitempty" db:"next_push_at"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
}

// PrimarySource returns the source of the first sighting
func (t *Transaction) PrimarySource() Source {
	if len(t.SourceRefs) == 0 {
		return ""
	}
	return t.SourceRefs[0].Source
}

// HasRef reports whether the transaction carries the given sighting
func (t *Transaction) HasRef(source Source, externalID string) bool {
	for _, r := range t.SourceRefs {
		if r.Source == source && r.ExternalID == externalID {
			return true
		}
	}
	return false
}

// Validate validates a transaction before persistence
func (t *Transaction) Validate() error {
	if t.ID == "" {
		return ErrMissingID
	}
	if len(t.SourceRefs) == 0 {
		return ErrMissingSourceRef
	}
	for _, r := range t.SourceRefs {
		if !r.Source.IsValid() {
			return ErrInvalidSource
		}
		if r.ExternalID == "" {
			return ErrMissingExternalID
		}
	}
	if t.Currency == "" {
		return ErrMissingCurrency
	}
	if !t.MatchStatus.IsValid() {
		return ErrInvalidMatchStatus
	}
	return nil
}

// ExternalAccount is a balance snapshot of an account on an external platform
type ExternalAccount struct {
	Source       Source    `json:"source" db:"source"`
	ExternalID   string    `json:"external_id" db:"external_id"`
	DisplayName  string    `json:"display_name" db:"display_name"`
	Currency     string    `json:"currency" db:"currency"`
	BalanceMinor int64     `json:"balance_minor" db:"balance_minor"`
	FetchedAt    time.Time `json:"fetched_at" db:"fetched_at"`
}

// Category is one node of the chart-of-accounts taxonomy
type Category struct {
	ID       string  `json:"id" db:"id"`
	Name     string  `json:"name" db:"name"`
	ParentID *string `json:"parent_id,omitempty" db:"parent_id"`
}

// IsLeaf reports whether the category has a parent (COA leaves have parents;
// top-level groups do not receive transactions directly)
func (c *Category) IsLeaf() bool {
	return c.ParentID != nil
}

// CategoryRule maps a description pattern to a category. Rules are ordered:
// the first matching pattern wins.
type CategoryRule struct {
	Pattern    string `json:"pattern" db:"pattern"` // case-insensitive substring
	CategoryID string `json:"category_id" db:"category_id"`
}
