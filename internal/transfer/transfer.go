// Package transfer implements the Transfer Engine (spec.md §4.4): a
// bounded worker pool that drains a chunk queue against a pair of
// RangeReadWriters, verifying and persisting progress as it goes.
package transfer

import (
	"time"

	"github.com/acolita/fastcp/internal/chunkplan"
)

// Config is the subset of CLI/config-file options that drive the engine,
// named TransferConfig in spec.md §3.
type Config struct {
	Resume              bool
	Force               bool
	Parallel            int
	Aria2               bool
	ChunkSize           int64
	LimitRate           int64 // bytes/sec, 0 = unlimited
	PreservePermissions bool
	Compress            bool // accepted, no-op per spec.md §9
	Timeout             time.Duration
	MaxRetries          int
	RetryDelay          time.Duration
}

// PlanParams projects Config onto the narrow shape chunkplan.Plan needs.
func (c Config) PlanParams() chunkplan.PlanParams {
	return chunkplan.PlanParams{Aria2: c.Aria2, ChunkSize: c.ChunkSize}
}

// parallelism returns the effective worker count for this config and
// aggressive-mode cap (aria2 mode caps at 16 per spec.md §3).
func (c Config) parallelism(remainingChunks int) int {
	max := c.Parallel
	if max <= 0 {
		max = 4
	}
	if c.Aria2 && max > 16 {
		max = 16
	}
	if remainingChunks > 0 && max > remainingChunks {
		max = remainingChunks
	}
	if max < 1 {
		max = 1
	}
	return max
}

// Result is returned by Engine.Run on success (spec.md §4.7 step 6).
type Result struct {
	BytesTransferred int64
	Chunks           int
	Elapsed          time.Duration
	FileHash         string
}
