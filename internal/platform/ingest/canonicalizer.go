// Package ingest turns raw connector transactions into canonical ledger
// records. Identity is a stable hash of (source, externalId), so re-ingesting
// a previously seen transaction is a no-op rather than a duplicate.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NeverShitty/rental-manager-sub001/internal/connector"
	"github.com/NeverShitty/rental-manager-sub001/internal/ledger"
	"github.com/NeverShitty/rental-manager-sub001/pkg/logger"
)

// PageResult counts what one page's upserts did
type PageResult struct {
	Created   int
	Updated   int
	Unchanged int
	Skipped   int
}

// Canonicalizer performs idempotent upserts of raw transactions
type Canonicalizer struct {
	store  ledger.Store
	logger *logger.Logger
}

// NewCanonicalizer creates a new canonicalizer
func NewCanonicalizer(store ledger.Store, log *logger.Logger) *Canonicalizer {
	return &Canonicalizer{
		store:  store,
		logger: log.WithField("component", "ingest"),
	}
}

// IngestPage canonicalizes and persists one connector page. An identity
// conflict (same hash, different identity) is skipped and logged, never fatal
// to the page. A store failure aborts the page: the caller must not advance
// its cursor, because the page is only partially applied.
func (c *Canonicalizer) IngestPage(ctx context.Context, raws []connector.RawTransaction) (PageResult, error) {
	var res PageResult
	for _, raw := range raws {
		tx, err := Canonicalize(raw)
		if err != nil {
			c.logger.Warn("skipping malformed raw transaction",
				"source", raw.Source,
				"external_id", raw.ExternalID,
				"error", err)
			res.Skipped++
			continue
		}

		outcome, err := c.store.UpsertTransaction(ctx, tx)
		if err != nil {
			if errors.Is(err, ledger.ErrIdentityConflict) {
				c.logger.Error("canonical id collision, skipping item",
					"source", raw.Source,
					"external_id", raw.ExternalID,
					"canonical_id", tx.ID)
				res.Skipped++
				continue
			}
			return res, fmt.Errorf("failed to upsert transaction %s: %w", tx.ID, err)
		}

		switch outcome {
		case ledger.OutcomeCreated:
			res.Created++
		case ledger.OutcomeUpdated:
			res.Updated++
		case ledger.OutcomeUnchanged:
			res.Unchanged++
		}
	}
	return res, nil
}

// Canonicalize builds the canonical record for one raw transaction. Amounts
// arrive already sign-normalized from the adapter; this layer assigns
// identity, truncates the timestamp to posted-date precision and cleans up
// the description.
func Canonicalize(raw connector.RawTransaction) (*ledger.Transaction, error) {
	if !raw.Source.IsValid() {
		return nil, ledger.ErrInvalidSource
	}
	if raw.ExternalID == "" {
		return nil, ledger.ErrMissingExternalID
	}
	if raw.Currency == "" {
		return nil, ledger.ErrMissingCurrency
	}

	return &ledger.Transaction{
		ID: ledger.CanonicalID(raw.Source, raw.ExternalID),
		SourceRefs: []ledger.SourceRef{
			{Source: raw.Source, ExternalID: raw.ExternalID},
		},
		AmountMinor: raw.AmountMinor,
		Currency:    strings.ToUpper(raw.Currency),
		PostedDate:  raw.Timestamp.UTC().Truncate(24 * time.Hour),
		Description: NormalizeDescription(raw.RawDescription),
		RawCategory: raw.RawCategory,
		MatchStatus: ledger.MatchUnmatched,
		PushStatus:  ledger.PushPending,
	}, nil
}

// NormalizeDescription collapses whitespace so descriptions compare cleanly
// across sources
func NormalizeDescription(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
