package transfer

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/acolita/fastcp/internal/adapters/realrand"
	"github.com/acolita/fastcp/internal/chunkplan"
	"github.com/acolita/fastcp/internal/manifest"
	"github.com/acolita/fastcp/internal/ports"
	"github.com/acolita/fastcp/internal/progress"
	"github.com/acolita/fastcp/internal/ratelimit"
	"github.com/acolita/fastcp/internal/verify"
	"github.com/acolita/fastcp/internal/xerrors"
)

// Engine drives a bounded worker pool over a shared chunk queue, per
// spec.md §4.4. One Engine instance handles exactly one task_id.
type Engine struct {
	taskID  string
	src     RangeReadWriter // reader side: local for upload, remote for download
	dst     RangeReadWriter // writer side: remote for upload, local for download
	cfg     Config
	logger  *slog.Logger
	clock   ports.Clock
	rng     ports.Random
	tracker *progress.Tracker
	limiter *ratelimit.Limiter

	store    *manifest.Store
	manifest *manifest.Manifest

	mu     sync.Mutex
	chunks []chunkplan.Chunk

	dirty  chan struct{}
	saveWG sync.WaitGroup
}

// New builds an Engine for one task. chunks is the plan to run — either
// freshly computed or adopted from a resumed manifest. m is the live
// manifest this engine will mutate and persist; store may be nil only in
// tests that don't exercise persistence.
func New(taskID string, src, dst RangeReadWriter, chunks []chunkplan.Chunk, cfg Config, m *manifest.Manifest, store *manifest.Store, tracker *progress.Tracker, clock ports.Clock) *Engine {
	var limiter *ratelimit.Limiter
	if cfg.LimitRate > 0 {
		burst := cfg.ChunkSize
		if burst <= 0 {
			burst = 4 << 20
		}
		limiter = ratelimit.New(cfg.LimitRate, burst, ratelimit.WithClock(clock))
	}
	return &Engine{
		taskID:   taskID,
		src:      src,
		dst:      dst,
		cfg:      cfg,
		logger:   slog.Default(),
		clock:    clock,
		rng:      realrand.New(),
		tracker:  tracker,
		limiter:  limiter,
		store:    store,
		manifest: m,
		chunks:   chunks,
		dirty:    make(chan struct{}, 1),
	}
}

// SetRandom overrides the source of jitter used for retry backoff. Tests
// inject a deterministic fake here instead of stubbing math/rand globally.
func (e *Engine) SetRandom(r ports.Random) {
	e.rng = r
}

// Run executes the worker pool until every chunk completes, a fatal error
// occurs, or ctx is cancelled. It returns (Result{}, *xerrors.TransferError)
// on any non-success path.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	start := e.clock.Now()

	remaining := e.remainingCount()
	if remaining == 0 {
		return e.finish(ctx, start)
	}

	pending := e.pendingIndices()
	workerCount := e.cfg.parallelism(remaining)
	queue := make(chan int, len(e.chunks)*2)
	for _, idx := range pending {
		queue <- idx
	}

	var remainingCount int64 = int64(len(pending))
	var closeOnce sync.Once
	closeQueue := func() {
		if atomic.AddInt64(&remainingCount, -1) == 0 {
			closeOnce.Do(func() { close(queue) })
		}
	}

	e.saveWG.Add(1)
	go e.saveLoop(ctx)

	var wg sync.WaitGroup
	fatalErr := make(chan error, workerCount)
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(workerCtx, queue, fatalErr, closeQueue)
		}()
	}

	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	var runErr error
	select {
	case runErr = <-fatalErr:
		cancelWorkers()
		<-allDone
	case <-ctx.Done():
		runErr = ctx.Err()
		cancelWorkers()
		<-allDone
	case <-allDone:
	}

	e.flushManifest()
	close(e.dirty)
	e.saveWG.Wait()

	if runErr != nil {
		if ctx.Err() != nil {
			e.setStatus(manifest.StatusPaused)
			e.flushManifest()
			return Result{}, xerrors.New(xerrors.Cancelled, e.taskID, runErr)
		}
		e.setStatus(manifest.StatusFailed)
		e.flushManifest()
		return Result{}, runErr
	}

	return e.finish(ctx, start)
}

func (e *Engine) pendingIndices() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	var idx []int
	for i, c := range e.chunks {
		if c.Status != chunkplan.Completed {
			idx = append(idx, i)
		}
	}
	return idx
}

func (e *Engine) remainingCount() int {
	return len(e.pendingIndices())
}

// worker is one SFTP-channel-bound goroutine draining the shared queue.
func (e *Engine) worker(ctx context.Context, queue chan int, fatalErr chan<- error, closeQueue func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case idx, ok := <-queue:
			if !ok {
				return
			}
			if err := e.processChunk(ctx, idx, queue, closeQueue); err != nil {
				select {
				case fatalErr <- err:
				default:
				}
				return
			}
		}
	}
}

func (e *Engine) processChunk(ctx context.Context, idx int, queue chan int, closeQueue func()) error {
	if ctx.Err() != nil {
		return nil
	}

	e.mu.Lock()
	chunk := e.chunks[idx]
	chunk.Status = chunkplan.InProgress
	chunk.Attempts++
	e.chunks[idx] = chunk
	e.mu.Unlock()
	e.signalActiveChunks()

	if e.limiter != nil {
		if err := e.limiter.WaitN(ctx, chunk.Size); err != nil {
			return nil // cancellation, not a chunk failure
		}
	}

	buf := make([]byte, chunk.Size)
	var ioErr error
	if chunk.Size > 0 {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := e.src.ReadAt(buf, chunk.Offset); err != nil {
			ioErr = fmt.Errorf("read chunk %d: %w", idx, err)
		} else if ctx.Err() != nil {
			return nil
		} else if _, err := e.dst.WriteAt(buf, chunk.Offset); err != nil {
			ioErr = fmt.Errorf("write chunk %d: %w", idx, err)
		}
	}

	if ioErr != nil {
		return e.handleChunkError(ctx, idx, ioErr, queue)
	}

	sum := verify.HashBytes(buf)

	e.mu.Lock()
	chunk = e.chunks[idx]
	chunk.Status = chunkplan.Completed
	chunk.SHA256 = sum
	chunk.Error = ""
	e.chunks[idx] = chunk
	e.mu.Unlock()

	e.signalActiveChunks()
	e.markDirty()
	if e.tracker != nil {
		e.tracker.Add(chunk.Size)
	}
	closeQueue()
	return nil
}

// handleChunkError applies spec.md §4.4 step 7's retry policy: re-enqueue
// with jittered exponential backoff up to max_retries, else escalate to a
// fatal ChunkFailed.
func (e *Engine) handleChunkError(ctx context.Context, idx int, cause error, queue chan int) error {
	e.mu.Lock()
	chunk := e.chunks[idx]
	chunk.Status = chunkplan.Failed
	chunk.Error = cause.Error()
	attempts := chunk.Attempts
	e.chunks[idx] = chunk
	e.mu.Unlock()
	e.markDirty()

	if attempts <= e.cfg.MaxRetries {
		delay := e.backoffDelay(e.cfg.RetryDelay, attempts)
		e.logger.Warn("chunk failed, retrying",
			slog.Int("chunk", idx), slog.Int("attempt", attempts), slog.Duration("delay", delay), slog.String("error", cause.Error()))

		select {
		case <-ctx.Done():
			return nil
		case <-e.clock.After(delay):
		}

		e.mu.Lock()
		chunk = e.chunks[idx]
		chunk.Status = chunkplan.Pending
		e.chunks[idx] = chunk
		e.mu.Unlock()

		select {
		case queue <- idx:
		case <-ctx.Done():
		}
		return nil
	}

	return xerrors.NewChunk(xerrors.ChunkFailed, e.taskID, idx, 0, attempts, cause)
}

// backoffDelay computes retry_delay * 2^(attempts-1) jittered by ±20%.
func (e *Engine) backoffDelay(base time.Duration, attempts int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	mult := 1 << uint(attempts-1)
	d := base * time.Duration(mult)
	jitter := 0.8 + e.randFloat64()*0.4 // [0.8, 1.2)
	return time.Duration(float64(d) * jitter)
}

// randFloat64 draws a uniform float in [0, 1) from e.rng, falling back to
// the midpoint of the jitter range if the source is ever exhausted.
func (e *Engine) randFloat64() float64 {
	var buf [8]byte
	if _, err := e.rng.Read(buf[:]); err != nil {
		return 0.5
	}
	return float64(binary.BigEndian.Uint64(buf[:])>>11) / (1 << 53)
}

func (e *Engine) signalActiveChunks() {
	if e.tracker == nil {
		return
	}
	e.mu.Lock()
	n := 0
	for _, c := range e.chunks {
		if c.Status == chunkplan.InProgress {
			n++
		}
	}
	e.mu.Unlock()
	e.tracker.SetActiveChunks(n)
}

func (e *Engine) markDirty() {
	select {
	case e.dirty <- struct{}{}:
	default:
	}
}

// saveLoop is the single manifest writer: it coalesces dirty signals into
// at most one Save in flight at a time (spec.md §4.4's write coalescing).
func (e *Engine) saveLoop(ctx context.Context) {
	defer e.saveWG.Done()
	for range e.dirty {
		e.flushManifest()
	}
}

func (e *Engine) flushManifest() {
	if e.store == nil || e.manifest == nil {
		return
	}
	e.mu.Lock()
	records := make([]manifest.ChunkRecord, len(e.chunks))
	for i, c := range e.chunks {
		records[i] = manifest.ChunkRecord{
			Index: c.Index, Offset: c.Offset, Size: c.Size,
			Status: chunkStatusRecord(c.Status), SHA256: c.SHA256,
			Attempts: c.Attempts, Error: c.Error,
		}
	}
	e.mu.Unlock()

	e.manifest.Chunks = records
	e.manifest.UpdatedAt = float64(e.clock.Now().UnixNano()) / 1e9
	if err := e.store.Save(e.manifest); err != nil {
		e.logger.Error("manifest save failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) setStatus(s manifest.TaskStatus) {
	if e.manifest == nil {
		return
	}
	e.manifest.Status = s
}

func chunkStatusRecord(s chunkplan.Status) manifest.ChunkStatus {
	switch s {
	case chunkplan.Completed:
		return manifest.ChunkCompleted
	case chunkplan.InProgress:
		return manifest.ChunkInProgress
	case chunkplan.Failed:
		return manifest.ChunkFailed
	default:
		return manifest.ChunkPending
	}
}

// finish runs the whole-file verification pass (spec.md §4.5) and
// publishes the staging file, or fails with IntegrityError on mismatch.
func (e *Engine) finish(ctx context.Context, start time.Time) (Result, error) {
	e.setStatus(manifest.StatusRunning)

	r, err := e.dst.OpenStagedForRead()
	if err != nil {
		return Result{}, xerrors.New(xerrors.Unknown, e.taskID, fmt.Errorf("open staged file for hashing: %w", err))
	}
	sum, err := streamingHash(r)
	closeErr := r.Close()
	if err != nil {
		return Result{}, xerrors.New(xerrors.Unknown, e.taskID, err)
	}
	if closeErr != nil {
		e.logger.Warn("close staged file after hashing", slog.String("error", closeErr.Error()))
	}

	if e.manifest != nil && e.manifest.FileHash != nil && *e.manifest.FileHash != "" {
		if !verify.ConstantTimeEqual(sum, *e.manifest.FileHash) {
			e.setStatus(manifest.StatusFailed)
			e.flushManifest()
			return Result{}, xerrors.New(xerrors.IntegrityError, e.taskID,
				fmt.Errorf("whole-file hash mismatch: got %s want %s", sum, *e.manifest.FileHash))
		}
	} else if e.manifest != nil {
		e.manifest.FileHash = &sum
	}

	mode, applyMode := srcMode(e.src, e.cfg.PreservePermissions)
	if err := e.dst.Finalize(mode, applyMode); err != nil {
		return Result{}, xerrors.New(xerrors.Unknown, e.taskID, fmt.Errorf("finalize: %w", err))
	}

	e.setStatus(manifest.StatusCompleted)
	e.flushManifest()

	var total int64
	e.mu.Lock()
	for _, c := range e.chunks {
		total += c.Size
	}
	n := len(e.chunks)
	e.mu.Unlock()

	return Result{
		BytesTransferred: total,
		Chunks:           n,
		Elapsed:          e.clock.Now().Sub(start),
		FileHash:         sum,
	}, nil
}

func srcMode(src RangeReadWriter, preserve bool) (fs.FileMode, bool) {
	if !preserve {
		return 0, false
	}
	_, _, mode, err := src.Stat()
	if err != nil {
		return 0, false
	}
	return mode, true
}

func streamingHash(r io.Reader) (string, error) {
	return verify.HashReader(r)
}
