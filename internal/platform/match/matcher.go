// Package match pairs canonical transactions that two sources recorded
// independently for the same real-world event. Candidates are bucketed by
// signed amount and claimed greedily, nearest posted date first; ambiguous
// ties go to pending review instead of being guessed. All claims run through
// the store's compare-and-set, so overlapping passes never double-match.
package match

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/NeverShitty/rental-manager-sub001/internal/ledger"
	"github.com/NeverShitty/rental-manager-sub001/pkg/logger"
)

// DefaultToleranceDays is the posted-date window within which two
// transactions can represent the same event
const DefaultToleranceDays = 3

// PairConfig is one connector pair to reconcile. Both sides are compared on
// their normalized signed amounts: adapters already map every vendor into the
// shared sign convention, so equal events carry equal signed amounts.
type PairConfig struct {
	Left          ledger.Source
	Right         ledger.Source
	ToleranceDays int
}

func (p PairConfig) tolerance() int {
	if p.ToleranceDays > 0 {
		return p.ToleranceDays
	}
	return DefaultToleranceDays
}

// DefaultPairs reconciles the bank side against the book side
func DefaultPairs() []PairConfig {
	return []PairConfig{
		{Left: ledger.SourceMercury, Right: ledger.SourceWave, ToleranceDays: DefaultToleranceDays},
	}
}

// Result counts one matcher pass
type Result struct {
	Matched       int // pairs formed (each pair counts once)
	PendingReview int // transactions parked for an operator
	Unmatched     int // left over on either side
}

// Matcher runs reconciliation passes over configured pairs
type Matcher struct {
	store  ledger.Store
	pairs  []PairConfig
	logger *logger.Logger
}

// NewMatcher creates a matcher for the given pairs (DefaultPairs when empty)
func NewMatcher(store ledger.Store, pairs []PairConfig, log *logger.Logger) *Matcher {
	if len(pairs) == 0 {
		pairs = DefaultPairs()
	}
	return &Matcher{
		store:  store,
		pairs:  pairs,
		logger: log.WithField("component", "match"),
	}
}

// Run performs one pass over every configured pair. The pass is idempotent:
// with no new data it reproduces identical pairings, because candidate order
// is fully determined by (posted date, canonical id).
func (m *Matcher) Run(ctx context.Context) (Result, error) {
	var total Result
	for _, pair := range m.pairs {
		res, err := m.runPair(ctx, pair)
		if err != nil {
			return total, fmt.Errorf("failed to match %s/%s: %w", pair.Left, pair.Right, err)
		}
		total.Matched += res.Matched
		total.PendingReview += res.PendingReview
		total.Unmatched += res.Unmatched
	}
	m.logger.Info("match pass complete",
		"matched_pairs", total.Matched,
		"pending_review", total.PendingReview,
		"unmatched", total.Unmatched)
	return total, nil
}

func (m *Matcher) runPair(ctx context.Context, pair PairConfig) (Result, error) {
	var res Result

	left, err := m.listUnmatched(ctx, pair.Left)
	if err != nil {
		return res, err
	}
	right, err := m.listUnmatched(ctx, pair.Right)
	if err != nil {
		return res, err
	}

	// Bucket the right side by (signed amount, currency) to avoid comparing
	// every pair of transactions
	buckets := make(map[bucketKey][]*ledger.Transaction)
	for _, tx := range right {
		k := bucketKey{amount: tx.AmountMinor, currency: tx.Currency}
		buckets[k] = append(buckets[k], tx)
	}

	claimed := make(map[string]bool) // right-side IDs already used this pass

	for _, lt := range left {
		candidates := buckets[bucketKey{amount: lt.AmountMinor, currency: lt.Currency}]
		best, tied := selectCandidates(lt, candidates, claimed, pair.tolerance())
		if best == nil {
			res.Unmatched++
			continue
		}

		if len(tied) > 0 {
			// Ambiguous: park everything involved for an operator instead of
			// guessing
			parked, err := m.parkAmbiguous(ctx, lt, append([]*ledger.Transaction{best}, tied...))
			if err != nil {
				return res, err
			}
			res.PendingReview += parked
			for _, t := range append(tied, best) {
				claimed[t.ID] = true
			}
			continue
		}

		matched, err := m.claimPair(ctx, lt, best)
		if err != nil {
			return res, err
		}
		if matched {
			claimed[best.ID] = true
			res.Matched++
		} else {
			// Lost the CAS race to a concurrent pass; the other pass owns it
			res.Unmatched++
		}
	}

	// Right-side leftovers
	for _, rt := range right {
		if !claimed[rt.ID] {
			res.Unmatched++
		}
	}
	return res, nil
}

type bucketKey struct {
	amount   int64
	currency string
}

func (m *Matcher) listUnmatched(ctx context.Context, source ledger.Source) ([]*ledger.Transaction, error) {
	status := ledger.MatchUnmatched
	txs, err := m.store.ListTransactions(ctx, ledger.TxFilter{
		MatchStatus: &status,
		Source:      &source,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list unmatched %s transactions: %w", source, err)
	}
	// Stable processing order regardless of store iteration order
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].PostedDate.Equal(txs[j].PostedDate) {
			return txs[i].PostedDate.Before(txs[j].PostedDate)
		}
		return txs[i].ID < txs[j].ID
	})
	return txs, nil
}

// selectCandidates picks the nearest-date unclaimed candidate within the
// tolerance window. When more than one candidate sits at the same minimal
// distance the tie is returned alongside the best, and the caller parks them.
func selectCandidates(lt *ledger.Transaction, candidates []*ledger.Transaction, claimed map[string]bool, toleranceDays int) (best *ledger.Transaction, tied []*ledger.Transaction) {
	bestDist := toleranceDays + 1
	for _, c := range candidates {
		if claimed[c.ID] {
			continue
		}
		d := dateDistanceDays(lt.PostedDate, c.PostedDate)
		if d > toleranceDays {
			continue
		}
		switch {
		case d < bestDist:
			best = c
			bestDist = d
			tied = nil
		case d == bestDist && best != nil:
			tied = append(tied, c)
		}
	}
	return best, tied
}

func dateDistanceDays(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d / (24 * time.Hour))
}

// claimPair links both sides through the CAS path. The left side is claimed
// first; if the right side was taken concurrently the left claim is rolled
// back and the transaction stays unmatched for the next pass.
func (m *Matcher) claimPair(ctx context.Context, lt, rt *ledger.Transaction) (bool, error) {
	ok, err := m.store.TransitionMatch(ctx, lt.ID, ledger.MatchUnmatched, ledger.MatchMatched, &rt.ID)
	if err != nil {
		return false, fmt.Errorf("failed to claim %s: %w", lt.ID, err)
	}
	if !ok {
		return false, nil
	}

	ok, err = m.store.TransitionMatch(ctx, rt.ID, ledger.MatchUnmatched, ledger.MatchMatched, &lt.ID)
	if err != nil {
		return false, fmt.Errorf("failed to claim %s: %w", rt.ID, err)
	}
	if !ok {
		if _, rbErr := m.store.TransitionMatch(ctx, lt.ID, ledger.MatchMatched, ledger.MatchUnmatched, nil); rbErr != nil {
			return false, fmt.Errorf("failed to roll back claim on %s: %w", lt.ID, rbErr)
		}
		return false, nil
	}

	m.logger.Debug("matched pair",
		"left", lt.ID, "right", rt.ID,
		"amount", lt.AmountMinor, "currency", lt.Currency)
	return true, nil
}

// parkAmbiguous moves the left transaction and every tied candidate to
// pending review. Returns how many transitions actually happened.
func (m *Matcher) parkAmbiguous(ctx context.Context, lt *ledger.Transaction, candidates []*ledger.Transaction) (int, error) {
	parked := 0
	ok, err := m.store.TransitionMatch(ctx, lt.ID, ledger.MatchUnmatched, ledger.MatchPendingReview, nil)
	if err != nil {
		return parked, fmt.Errorf("failed to park %s: %w", lt.ID, err)
	}
	if ok {
		parked++
	}
	for _, c := range candidates {
		ok, err := m.store.TransitionMatch(ctx, c.ID, ledger.MatchUnmatched, ledger.MatchPendingReview, nil)
		if err != nil {
			return parked, fmt.Errorf("failed to park %s: %w", c.ID, err)
		}
		if ok {
			parked++
		}
	}
	m.logger.Info("ambiguous match parked for review",
		"transaction", lt.ID,
		"candidates", len(candidates))
	return parked, nil
}
