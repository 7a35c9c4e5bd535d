// Package push exports reconciled, categorized transactions to the system of
// record. Push state is tracked independently of match state; failed items
// retry with exponential backoff until the attempt budget is spent, after
// which they surface as stuck and need an operator.
package push

import (
	"context"
	"fmt"
	"time"

	"github.com/NeverShitty/rental-manager-sub001/internal/connector"
	"github.com/NeverShitty/rental-manager-sub001/internal/ledger"
	"github.com/NeverShitty/rental-manager-sub001/pkg/logger"
)

// Config holds tuning for the push gateway
type Config struct {
	// MaxAttempts is the per-item attempt budget before the item is stuck
	MaxAttempts int

	// BaseBackoff is the first retry delay; each attempt doubles it
	BaseBackoff time.Duration

	// MaxBackoff caps the delay between attempts
	MaxBackoff time.Duration

	// BatchSize bounds one pass's batch
	BatchSize int
}

// DefaultConfig returns the default push gateway configuration
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 5,
		BaseBackoff: time.Minute,
		MaxBackoff:  time.Hour,
		BatchSize:   50,
	}
}

// Validate fills in unusable values with defaults
func (c *Config) Validate() error {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Minute
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Hour
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	return nil
}

// Result counts one gateway pass
type Result struct {
	Pushed  int
	Retried int // failed but within the attempt budget
	Stuck   int // attempt budget exhausted this pass
	Skipped int // already present in the system of record
}

// Gateway pushes pending transactions into the system of record
type Gateway struct {
	config *Config
	store  ledger.Store
	target connector.Connector // the system-of-record connector
	logger *logger.Logger
}

// NewGateway creates a push gateway exporting into target
func NewGateway(config *Config, store ledger.Store, target connector.Connector, log *logger.Logger) *Gateway {
	if config == nil {
		config = DefaultConfig()
	}
	_ = config.Validate()

	return &Gateway{
		config: config,
		store:  store,
		target: target,
		logger: log.WithField("component", "push"),
	}
}

// RunOnce performs one export pass over pushable transactions. The export is
// idempotent end to end: the reference sent with each item is the canonical
// ID, which the receiver treats as a dedup key.
func (g *Gateway) RunOnce(ctx context.Context) (Result, error) {
	var res Result

	now := time.Now().UTC()
	txs, err := g.store.ListPushable(ctx, now, g.config.BatchSize)
	if err != nil {
		return res, fmt.Errorf("failed to list pushable transactions: %w", err)
	}
	if len(txs) == 0 {
		return res, nil
	}

	// Records that originated in the system of record are already there
	batch := make([]connector.PushItem, 0, len(txs))
	byRef := make(map[string]*ledger.Transaction, len(txs))
	for _, tx := range txs {
		if tx.PrimarySource() == g.target.Source() {
			if err := g.store.MarkPushed(ctx, tx.ID); err != nil {
				return res, fmt.Errorf("failed to mark native record %s: %w", tx.ID, err)
			}
			res.Skipped++
			continue
		}
		var categoryID string
		if tx.CategoryID != nil {
			categoryID = *tx.CategoryID
		}
		batch = append(batch, connector.PushItem{
			Reference:   tx.ID,
			AmountMinor: tx.AmountMinor,
			Currency:    tx.Currency,
			PostedDate:  tx.PostedDate,
			Description: tx.Description,
			CategoryID:  categoryID,
		})
		byRef[tx.ID] = tx
	}
	if len(batch) == 0 {
		return res, nil
	}

	results, err := g.target.PushTransactions(ctx, batch)
	if err != nil {
		// Batch-level failure: every item gets a retry schedule
		g.logger.Error("push batch failed", "items", len(batch), "error", err)
		for _, tx := range byRef {
			g.recordFailure(ctx, tx, &res)
		}
		return res, nil
	}

	for _, r := range results {
		tx, ok := byRef[r.Reference]
		if !ok {
			g.logger.Warn("push result for unknown reference", "reference", r.Reference)
			continue
		}
		if r.Err != nil {
			g.logger.Warn("push item failed",
				"transaction", tx.ID,
				"attempts", tx.PushAttempts+1,
				"error", r.Err)
			g.recordFailure(ctx, tx, &res)
			continue
		}
		if err := g.store.MarkPushed(ctx, tx.ID); err != nil {
			return res, fmt.Errorf("failed to mark %s pushed: %w", tx.ID, err)
		}
		res.Pushed++
	}

	g.logger.Info("push pass complete",
		"pushed", res.Pushed,
		"retried", res.Retried,
		"stuck", res.Stuck,
		"skipped", res.Skipped)
	return res, nil
}

// recordFailure bumps the attempt counter and either schedules a retry or
// parks the item as stuck
func (g *Gateway) recordFailure(ctx context.Context, tx *ledger.Transaction, res *Result) {
	attempts := tx.PushAttempts + 1
	terminal := attempts >= g.config.MaxAttempts
	next := time.Now().UTC().Add(g.backoff(attempts))

	if err := g.store.MarkPushFailed(ctx, tx.ID, attempts, next, terminal); err != nil {
		g.logger.Error("failed to record push failure", "transaction", tx.ID, "error", err)
		return
	}
	if terminal {
		g.logger.Error("push attempts exhausted, item is stuck",
			"transaction", tx.ID, "attempts", attempts)
		res.Stuck++
	} else {
		res.Retried++
	}
}

// backoff doubles the base delay per attempt, capped at MaxBackoff
func (g *Gateway) backoff(attempts int) time.Duration {
	d := g.config.BaseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= g.config.MaxBackoff {
			return g.config.MaxBackoff
		}
	}
	if d > g.config.MaxBackoff {
		return g.config.MaxBackoff
	}
	return d
}
