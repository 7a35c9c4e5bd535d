// Package sync orchestrates reconciliation runs: concurrent per-connector
// fetch loops feeding the canonicalizer, a barrier, then one category pass
// and one matcher pass, with the run summary persisted at the end.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/NeverShitty/rental-manager-sub001/internal/connector"
	"github.com/NeverShitty/rental-manager-sub001/internal/ledger"
	"github.com/NeverShitty/rental-manager-sub001/pkg/logger"
)

// ErrRunInProgress is returned when a manual trigger overlaps a running sync
var ErrRunInProgress = errors.New("sync: a reconciliation run is already in progress")

// Service drives reconciliation runs across all registered connectors
type Service struct {
	config     *Config
	connectors []connector.Connector
	store      ledger.Store
	ingester   Ingester
	categories CategoryPass
	matcher    MatchPass
	alerts     AlertSink
	logger     *logger.Logger

	runMu   sync.Mutex // serializes whole runs
	stateMu sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewService creates a new sync orchestrator
func NewService(
	config *Config,
	connectors []connector.Connector,
	store ledger.Store,
	ingester Ingester,
	categories CategoryPass,
	matcher MatchPass,
	alerts AlertSink,
	log *logger.Logger,
) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	_ = config.Validate()
	if alerts == nil {
		alerts = NopAlertSink{}
	}

	return &Service{
		config:     config,
		connectors: connectors,
		store:      store,
		ingester:   ingester,
		categories: categories,
		matcher:    matcher,
		alerts:     alerts,
		logger:     log.WithField("service", "sync"),
		stopCh:     make(chan struct{}),
	}
}

// Run starts the background loop: one reconciliation run per poll interval.
// Cancellation is cooperative; an in-flight run finishes its current pages
// before the loop exits.
func (s *Service) Run(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info("background sync is disabled")
		return
	}

	s.stateMu.Lock()
	if s.running {
		s.stateMu.Unlock()
		return
	}
	s.running = true
	s.stateMu.Unlock()

	s.logger.Info("starting sync service",
		"poll_interval", s.config.PollInterval,
		"connectors", len(s.connectors))

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	// Initial run immediately
	if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
		s.logger.Error("reconciliation run failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync service stopping (context done)")
			return
		case <-s.stopCh:
			s.logger.Info("sync service stopping (stop signal)")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
				s.logger.Error("reconciliation run failed", "error", err)
			}
		}
	}
}

// Stop signals the background loop to exit
func (s *Service) Stop() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if !s.running {
		return
	}
	close(s.stopCh)
	s.running = false
}

// RunOnce drives exactly one reconciliation run and returns its persisted
// summary. Only one run executes at a time.
func (s *Service) RunOnce(ctx context.Context) (*ledger.Run, error) {
	if !s.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.runMu.Unlock()

	run := ledger.NewRun()
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run record: %w", err)
	}
	return s.execute(ctx, run)
}

// TriggerRun starts a reconciliation run in the background and returns its
// record immediately, so a caller can poll the run by ID for the outcome.
// The run is detached from the caller's context.
func (s *Service) TriggerRun(ctx context.Context) (*ledger.Run, error) {
	if !s.runMu.TryLock() {
		return nil, ErrRunInProgress
	}

	run := ledger.NewRun()
	if err := s.store.CreateRun(ctx, run); err != nil {
		s.runMu.Unlock()
		return nil, fmt.Errorf("failed to create run record: %w", err)
	}

	go func() {
		defer s.runMu.Unlock()
		if _, err := s.execute(context.Background(), run); err != nil {
			s.logger.Error("triggered run failed", "run_id", run.ID, "error", err)
		}
	}()
	return run, nil
}

func (s *Service) execute(ctx context.Context, run *ledger.Run) (*ledger.Run, error) {
	s.logger.Info("reconciliation run started", "run_id", run.ID)

	// Phase 1: concurrent, isolated per-connector fetch loops. Each failure
	// is recorded in the run and never blocks the other connectors.
	results := make([]ledger.ConnectorResult, len(s.connectors))
	sem := make(chan struct{}, s.config.ConcurrentConnectors)
	var wg sync.WaitGroup

	for i, conn := range s.connectors {
		select {
		case <-ctx.Done():
			// Stop scheduling new fetch loops; already-started ones finish
			results[i] = ledger.ConnectorResult{Error: ctx.Err().Error()}
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, conn connector.Connector) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = s.syncConnector(ctx, conn)
		}(i, conn)
	}
	wg.Wait() // barrier: mapper and matcher see a settled snapshot

	for i, conn := range s.connectors {
		run.PerConnector[conn.Source()] = results[i]
	}

	// Phase 2: one category pass over uncategorized transactions
	if catRes, err := s.categories.Run(ctx); err != nil {
		s.logger.Error("category pass failed", "run_id", run.ID, "error", err)
	} else {
		s.logger.Debug("category pass done",
			"categorized", catRes.Categorized,
			"needs_manual", catRes.NeedsManual)
	}

	// Phase 3: one matcher pass
	if matchRes, err := s.matcher.Run(ctx); err != nil {
		s.logger.Error("match pass failed", "run_id", run.ID, "error", err)
	} else {
		run.Matched = matchRes.Matched
		run.PendingReview = matchRes.PendingReview
		run.UnmatchedCount = matchRes.Unmatched
	}

	run.Finalize()
	if err := s.store.CompleteRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to persist run summary: %w", err)
	}

	s.logger.Info("reconciliation run finished",
		"run_id", run.ID,
		"status", run.Status,
		"matched", run.Matched,
		"pending_review", run.PendingReview,
		"unmatched", run.UnmatchedCount)
	return run, nil
}

// syncConnector runs one connector's fetch loop: pages are processed strictly
// sequentially, and the cursor advances only after a page has been fully
// canonicalized and persisted.
func (s *Service) syncConnector(ctx context.Context, conn connector.Connector) ledger.ConnectorResult {
	var res ledger.ConnectorResult
	source := conn.Source()
	log := s.logger.WithField("connector", string(source))

	cursor, err := s.store.GetCursor(ctx, source)
	if err != nil {
		res.Error = fmt.Sprintf("failed to load cursor: %v", err)
		s.recordFailure(ctx, source, log)
		return res
	}
	token := cursor.Token

	// Account snapshots are best-effort; a failure here does not fail the
	// connector's ingest
	s.refreshAccounts(ctx, conn, log)

	for page := 0; page < s.config.MaxPagesPerRun; page++ {
		select {
		case <-ctx.Done():
			// Cooperative cancellation: no new fetches, cursor stays at the
			// last fully persisted page
			log.Info("fetch loop cancelled", "pages_done", page)
			s.saveCursor(ctx, source, token, ledger.RunPartial, "cancelled", log)
			return res
		default:
		}

		cctx, cancel := context.WithTimeout(ctx, s.config.ConnectorTimeout)
		fetched, err := conn.FetchTransactions(cctx, token)
		cancel()

		if fetched != nil {
			res.Fetched += len(fetched.Transactions)
		}
		if err != nil {
			res.Failed++
			res.Error = err.Error()
			s.classifyAndLog(err, source, log)
			s.saveCursor(ctx, source, token, ledger.RunPartial, err.Error(), log)
			s.recordFailure(ctx, source, log)
			return res
		}

		ingestRes, err := s.ingester.IngestPage(ctx, fetched.Transactions)
		res.Imported += ingestRes.Created
		res.SkippedDuplicate += ingestRes.Unchanged + ingestRes.Updated
		res.Failed += ingestRes.Skipped
		if err != nil {
			// Page only partially applied: the cursor must not move
			res.Error = fmt.Sprintf("page persist failed: %v", err)
			log.Error("failed to persist page", "error", err)
			s.saveCursor(ctx, source, token, ledger.RunPartial, err.Error(), log)
			s.recordFailure(ctx, source, log)
			return res
		}

		// Page fully persisted: the cursor may advance
		token = fetched.NextCursor
		s.saveCursor(ctx, source, token, ledger.RunRunning, "", log)

		if fetched.NextCursor == "" {
			break // history exhausted
		}
	}

	s.saveCursor(ctx, source, token, ledger.RunSuccess, "", log)
	if err := s.alerts.RecordSuccess(ctx, source); err != nil {
		log.Warn("failed to reset failure streak", "error", err)
	}
	log.Info("connector sync complete",
		"fetched", res.Fetched,
		"imported", res.Imported,
		"skipped_duplicate", res.SkippedDuplicate)
	return res
}

func (s *Service) refreshAccounts(ctx context.Context, conn connector.Connector, log *logger.Logger) {
	cctx, cancel := context.WithTimeout(ctx, s.config.ConnectorTimeout)
	defer cancel()

	accounts, err := conn.FetchAccounts(cctx)
	if err != nil {
		log.Warn("failed to refresh account snapshots", "error", err)
		return
	}
	for i := range accounts {
		if err := s.store.UpsertAccount(ctx, &accounts[i]); err != nil {
			log.Warn("failed to store account snapshot",
				"external_id", accounts[i].ExternalID, "error", err)
		}
	}
}

func (s *Service) classifyAndLog(err error, source ledger.Source, log *logger.Logger) {
	switch connector.Classify(err) {
	case connector.KindAuth:
		log.Error("connector auth failure, check credentials", "error", err)
	case connector.KindRateLimited:
		log.Warn("connector rate limited, remaining pages deferred to next run", "error", err)
	case connector.KindPermanent:
		log.Error("connector permanent failure", "error", err)
	default:
		log.Warn("connector transient failure, will retry next run", "error", err)
	}
}

func (s *Service) saveCursor(ctx context.Context, source ledger.Source, token string, status ledger.RunStatus, lastErr string, log *logger.Logger) {
	cur := &ledger.SyncCursor{
		Connector:     source,
		Token:         token,
		LastRunStatus: status,
		LastError:     lastErr,
	}
	if err := s.store.SaveCursor(ctx, cur); err != nil {
		log.Error("failed to save cursor", "error", err)
	}
}

func (s *Service) recordFailure(ctx context.Context, source ledger.Source, log *logger.Logger) {
	streak, alert, err := s.alerts.RecordFailure(ctx, source, s.config.FailureAlertThreshold)
	if err != nil {
		log.Warn("failed to record failure streak", "error", err)
		return
	}
	if alert {
		log.Error("connector exceeded consecutive-failure threshold",
			"streak", streak,
			"threshold", s.config.FailureAlertThreshold)
	}
}
