package sync

import (
	"context"

	"github.com/NeverShitty/rental-manager-sub001/internal/connector"
	"github.com/NeverShitty/rental-manager-sub001/internal/ledger"
	"github.com/NeverShitty/rental-manager-sub001/internal/platform/category"
	"github.com/NeverShitty/rental-manager-sub001/internal/platform/ingest"
	"github.com/NeverShitty/rental-manager-sub001/internal/platform/match"
)

// Ingester canonicalizes and persists one fetched page
type Ingester interface {
	IngestPage(ctx context.Context, raws []connector.RawTransaction) (ingest.PageResult, error)
}

// CategoryPass runs one category mapper pass after the fetch barrier
type CategoryPass interface {
	Run(ctx context.Context) (category.Result, error)
}

// MatchPass runs one reconciliation matcher pass after the category pass
type MatchPass interface {
	Run(ctx context.Context) (match.Result, error)
}

// AlertSink tracks per-connector consecutive failures so operators hear about
// a connector exactly once per failure streak. Implementations must be safe
// for concurrent use; the no-op sink is used when alerting is unconfigured.
type AlertSink interface {
	// RecordFailure bumps the connector's streak and reports whether the
	// configured threshold was just crossed (alert exactly once per streak)
	RecordFailure(ctx context.Context, source ledger.Source, threshold int) (streak int, alert bool, err error)
	// RecordSuccess resets the connector's streak
	RecordSuccess(ctx context.Context, source ledger.Source) error
}

// NopAlertSink discards failure streaks
type NopAlertSink struct{}

var _ AlertSink = NopAlertSink{}

// RecordFailure implements AlertSink
func (NopAlertSink) RecordFailure(ctx context.Context, source ledger.Source, threshold int) (int, bool, error) {
	return 0, false, nil
}

// RecordSuccess implements AlertSink
func (NopAlertSink) RecordSuccess(ctx context.Context, source ledger.Source) error {
	return nil
}
