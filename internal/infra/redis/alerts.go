// Package redis implements the sync.AlertSink on Redis: per-connector
// consecutive-failure counters with a dedup flag so operators are alerted
// once per streak, not once per failed run.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/NeverShitty/rental-manager-sub001/internal/ledger"
	"github.com/NeverShitty/rental-manager-sub001/internal/platform/sync"
	"github.com/NeverShitty/rental-manager-sub001/pkg/logger"
)

const (
	// KeyPrefix is the prefix for failure-streak keys
	KeyPrefix = "connfail:"

	// StreakTTL expires a streak that has seen no runs at all for a while,
	// so a long-disabled connector does not alert immediately on re-enable
	StreakTTL = 7 * 24 * time.Hour

	// AlertedTTL bounds the alert dedup flag
	AlertedTTL = 24 * time.Hour
)

// AlertSink is a Redis-backed consecutive-failure tracker
type AlertSink struct {
	client *redis.Client
	logger *logger.Logger
}

var _ sync.AlertSink = (*AlertSink)(nil)

// NewAlertSink creates a new Redis-backed alert sink
func NewAlertSink(client *redis.Client, log *logger.Logger) *AlertSink {
	return &AlertSink{
		client: client,
		logger: log.WithField("component", "alerts"),
	}
}

func streakKey(source ledger.Source) string {
	return KeyPrefix + string(source)
}

func alertedKey(source ledger.Source) string {
	return KeyPrefix + string(source) + ":alerted"
}

// RecordFailure implements sync.AlertSink. The alert flag is SETNX-guarded:
// only the call that first crosses the threshold reports alert=true.
func (a *AlertSink) RecordFailure(ctx context.Context, source ledger.Source, threshold int) (int, bool, error) {
	key := streakKey(source)
	streak, err := a.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, false, fmt.Errorf("failed to bump failure streak: %w", err)
	}
	if err := a.client.Expire(ctx, key, StreakTTL).Err(); err != nil {
		a.logger.Warn("failed to set streak TTL", "connector", source, "error", err)
	}

	if int(streak) < threshold {
		return int(streak), false, nil
	}

	set, err := a.client.SetNX(ctx, alertedKey(source), time.Now().UTC().Format(time.RFC3339), AlertedTTL).Result()
	if err != nil {
		return int(streak), false, fmt.Errorf("failed to set alert flag: %w", err)
	}
	return int(streak), set, nil
}

// RecordSuccess implements sync.AlertSink
func (a *AlertSink) RecordSuccess(ctx context.Context, source ledger.Source) error {
	if err := a.client.Del(ctx, streakKey(source), alertedKey(source)).Err(); err != nil {
		return fmt.Errorf("failed to reset failure streak: %w", err)
	}
	return nil
}
