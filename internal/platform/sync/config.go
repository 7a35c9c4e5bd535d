package sync

import "time"

// Config holds tuning for the sync orchestrator
type Config struct {
	// PollInterval is how often the background loop starts a run
	PollInterval time.Duration

	// ConcurrentConnectors bounds how many connector fetch loops run at once
	ConcurrentConnectors int

	// MaxPagesPerRun bounds one connector's fetch loop within a single run;
	// remaining history is picked up by the next run's cursor
	MaxPagesPerRun int

	// ConnectorTimeout is the per-call deadline for any connector request.
	// A timeout counts as a transient failure and never advances the cursor.
	ConnectorTimeout time.Duration

	// FailureAlertThreshold is the consecutive-failure streak after which a
	// connector is alerted on (once per streak)
	FailureAlertThreshold int

	// Enabled determines if the background loop runs
	Enabled bool
}

// DefaultConfig returns the default orchestrator configuration
func DefaultConfig() *Config {
	return &Config{
		PollInterval:          15 * time.Minute,
		ConcurrentConnectors:  3,
		MaxPagesPerRun:        20,
		ConnectorTimeout:      45 * time.Second,
		FailureAlertThreshold: 3,
		Enabled:               true,
	}
}

// Validate fills in unusable values with defaults
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		c.PollInterval = 15 * time.Minute
	}
	if c.ConcurrentConnectors <= 0 {
		c.ConcurrentConnectors = 3
	}
	if c.MaxPagesPerRun <= 0 {
		c.MaxPagesPerRun = 20
	}
	if c.ConnectorTimeout <= 0 {
		c.ConnectorTimeout = 45 * time.Second
	}
	if c.FailureAlertThreshold <= 0 {
		c.FailureAlertThreshold = 3
	}
	return nil
}
