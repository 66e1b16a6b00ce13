package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"gate-learner/internal/domain"
)

// ComputeTradeID computes a deterministic trade_id for closed positions that carry no id.
// Formula: SHA256(symbol|direction|opened_at_ms|closed_at_ms)
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(symbol string, direction domain.Direction, openedAt, closedAt time.Time) string {
	data := fmt.Sprintf("%s|%s|%d|%d",
		symbol,
		string(direction),
		unixMilli(openedAt),
		unixMilli(closedAt),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeRunID computes a deterministic run_id for one learner run.
// Formula: SHA256(learner|window_start_ms|window_end_ms|trades)
func ComputeRunID(learner string, windowStart, windowEnd time.Time, trades int) string {
	data := fmt.Sprintf("%s|%d|%d|%d",
		learner,
		unixMilli(windowStart),
		unixMilli(windowEnd),
		trades,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
