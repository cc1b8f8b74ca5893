// Package progress implements the Progress Tracker (spec.md §4.6): a
// thread-safe aggregator of transfer counters that periodically pushes
// snapshots to a pluggable Sink (terminal bar, log line, Prometheus, or
// nothing at all).
package progress

import (
	"sync"
	"time"

	"github.com/acolita/fastcp/internal/ports"
)

// minHz and maxHz bound how often the Tracker pushes to its Sink, per
// spec.md §4.6.
const (
	minPushInterval = time.Second / 30 // 30 Hz upper bound
	maxPushInterval = time.Second / 10 // 10 Hz lower bound
	speedWindow     = time.Second
)

// Snapshot is one point-in-time view of a transfer's progress.
type Snapshot struct {
	TaskID       string
	TotalSize    int64
	Transferred  int64
	ActiveChunks int
	SpeedBps     float64       // exponentially-weighted average, bytes/sec
	ETA          time.Duration // clamped to [0, 24h]
	Percent      float64
}

// Sink receives periodic Snapshots and a final call when the transfer ends.
type Sink interface {
	Update(Snapshot)
	Finish(Snapshot)
}

// Tracker accumulates transfer progress for a single task and pushes
// Snapshots to a Sink at a bounded rate. All exported methods are safe for
// concurrent use by multiple chunk workers.
type Tracker struct {
	taskID    string
	totalSize int64
	sink      Sink
	clock     ports.Clock

	mu           sync.Mutex
	transferred  int64
	activeChunks int

	lastSampleAt   time.Time
	lastSampleSize int64
	speedBps       float64

	stop chan struct{}
	done chan struct{}
}

// New returns a Tracker for a transfer of totalSize bytes identified by
// taskID, pushing updates to sink. The caller must call Stop when the
// transfer ends so the push goroutine exits and a final snapshot is
// flushed to the sink.
func New(taskID string, totalSize int64, sink Sink, clock ports.Clock) *Tracker {
	if sink == nil {
		sink = NopSink{}
	}
	now := clock.Now()
	t := &Tracker{
		taskID:       taskID,
		totalSize:    totalSize,
		sink:         sink,
		clock:        clock,
		lastSampleAt: now,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	go t.run()
	return t
}

// Add records n additional bytes transferred. n may be negative-free only;
// transferred is monotonic per spec.md §4.6.
func (t *Tracker) Add(n int64) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	t.transferred += n
	t.mu.Unlock()
}

// SetActiveChunks updates the count of chunks currently in flight.
func (t *Tracker) SetActiveChunks(n int) {
	t.mu.Lock()
	t.activeChunks = n
	t.mu.Unlock()
}

// Snapshot returns the current state without waiting for the next push.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	var percent float64
	if t.totalSize > 0 {
		percent = float64(t.transferred) / float64(t.totalSize) * 100
	}

	eta := time.Duration(0)
	if t.speedBps > 0 {
		remaining := float64(t.totalSize - t.transferred)
		if remaining > 0 {
			eta = time.Duration(remaining / t.speedBps * float64(time.Second))
		}
	}
	const dayCap = 24 * time.Hour
	if eta > dayCap {
		eta = dayCap
	}
	if eta < 0 {
		eta = 0
	}

	return Snapshot{
		TaskID:       t.taskID,
		TotalSize:    t.totalSize,
		Transferred:  t.transferred,
		ActiveChunks: t.activeChunks,
		SpeedBps:     t.speedBps,
		ETA:          eta,
		Percent:      percent,
	}
}

// updateSpeed recomputes the EMA speed sample if at least speedWindow has
// elapsed since the last sample, per spec.md §4.6's "EMA over 1s window".
func (t *Tracker) updateSpeed(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := now.Sub(t.lastSampleAt)
	if elapsed < speedWindow {
		return
	}

	instBps := float64(t.transferred-t.lastSampleSize) / elapsed.Seconds()
	const alpha = 0.3
	if t.speedBps == 0 {
		t.speedBps = instBps
	} else {
		t.speedBps = alpha*instBps + (1-alpha)*t.speedBps
	}
	t.lastSampleAt = now
	t.lastSampleSize = t.transferred
}

// run pushes snapshots to the sink at roughly 20 Hz until Stop is called.
func (t *Tracker) run() {
	defer close(t.done)
	interval := (minPushInterval + maxPushInterval) / 2
	ticker := t.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C():
			t.updateSpeed(now)
			t.sink.Update(t.Snapshot())
		case <-t.stop:
			t.updateSpeed(t.clock.Now())
			t.sink.Finish(t.Snapshot())
			return
		}
	}
}

// Stop halts the push loop and blocks until the final snapshot has been
// delivered to the sink.
func (t *Tracker) Stop() {
	close(t.stop)
	<-t.done
}

// NopSink discards every update. It's the default when no progress output
// was requested (e.g. non-interactive invocations with -q).
type NopSink struct{}

func (NopSink) Update(Snapshot) {}
func (NopSink) Finish(Snapshot) {}
