package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/emirpasic/gods/v2/lists/arraylist"
	"golang.org/x/sync/semaphore"
)

// Config carries construction-time settings for an Executor.
type Config struct {
	// BatchSize is the fixed entry capacity of each batch.
	BatchSize int

	// LogitsF16 stores cached logit vectors half-precision.
	LogitsF16 bool
}

// Executor packs tokens from many conversations into batches, drains the
// batch queue through the engine one pass at a time, and versions the
// results with a monotonic epoch counter.
//
// Two independent locks with non-overlapping hold times keep producers and
// the consumer out of each other's way: queueMu covers only queue and tail
// batch state (bounded hold, independent of engine latency), while the
// inference gate serializes Decode for however long a pass takes. Add
// never waits on the gate, so conversations keep appending while a pass
// runs.
type Executor struct {
	engine Engine

	// queueMu guards queue, free and the tail batch's entries.
	queueMu sync.Mutex
	queue   *arraylist.List[*Batch]

	// free holds cleared batches for reuse.
	free []*Batch

	// gate is the inference mutual exclusion. Weighted semaphore rather
	// than a mutex so waiters can suspend on their context.
	gate *semaphore.Weighted

	// epoch is the logical clock, starting at 1. Logits produced while
	// draining a batch are tagged with the epoch value at drain time;
	// the counter moves only inside the inference critical section, and
	// only after the cache has been populated.
	epoch atomic.Uint64

	cache    logitCache
	registry sequenceRegistry

	batchSize int
	disposed  atomic.Bool
}

// New creates an executor over the given engine. The engine is owned by
// the executor from this point on and is released by Close.
func New(engine Engine, cfg Config) (*Executor, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("invalid batch size %d", cfg.BatchSize)
	}

	e := &Executor{
		engine:    engine,
		queue:     arraylist.New[*Batch](),
		gate:      semaphore.NewWeighted(1),
		cache:     logitCache{f16: cfg.LogitsF16},
		batchSize: cfg.BatchSize,
	}
	e.epoch.Store(1)

	return e, nil
}

// NewSequence allocates a fresh sequence id for a new conversation.
func (e *Executor) NewSequence() (SeqID, error) {
	if e.disposed.Load() {
		return 0, ErrDisposed
	}
	return e.registry.allocate(), nil
}

// Add appends one token for the given sequence ids, creating a new tail
// batch when the current one is full or absent. It returns the slot the
// token landed in and the epoch the caller must wait for before fetching
// logits: the value the clock will have once this token's batch has been
// drained.
func (e *Executor) Add(token, pos int, wantsLogits bool, seqIDs ...SeqID) (slot int, required uint64, err error) {
	if e.disposed.Load() {
		return 0, 0, ErrDisposed
	}
	if len(seqIDs) == 0 {
		return 0, 0, fmt.Errorf("add: no sequence ids")
	}

	e.queueMu.Lock()
	defer e.queueMu.Unlock()

	// Re-check under the lock so a concurrent Close cannot lose tokens
	// into a discarded queue.
	if e.disposed.Load() {
		return 0, 0, ErrDisposed
	}

	tail, ok := e.queue.Get(e.queue.Size() - 1)
	if !ok || tail.sealed || tail.NumTokens() >= tail.Capacity() {
		tail = e.nextBatch()
		e.queue.Add(tail)
	}

	slot = tail.Add(token, pos, wantsLogits, seqIDs...)
	required = e.epoch.Load() + uint64(e.queue.Size())
	return slot, required, nil
}

// nextBatch reuses a cleared batch if one is available. Caller holds
// queueMu.
func (e *Executor) nextBatch() *Batch {
	if n := len(e.free); n > 0 {
		b := e.free[n-1]
		e.free = e.free[:n-1]
		return b
	}
	return NewBatch(e.batchSize)
}

// Infer acquires the inference gate and drains the queue head through the
// engine. With drainAll it keeps going until the queue is empty or a step
// fails; a failed batch stays at the head for retry and nothing from it
// reaches the logit cache. Earlier successful steps in the same call keep
// their epoch advances.
//
// The engine decode is the only blocking point; ctx cancels both the wait
// for the gate and an in-flight decode.
func (e *Executor) Infer(ctx context.Context, drainAll bool) error {
	if e.disposed.Load() {
		return ErrDisposed
	}

	if err := e.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.gate.Release(1)

	if e.disposed.Load() {
		return ErrDisposed
	}

	for {
		// Sealing the head routes concurrent Adds to a fresh tail, so
		// the engine can read its entries without the queue lock.
		e.queueMu.Lock()
		head, ok := e.queue.Get(0)
		if ok {
			head.sealed = true
		}
		e.queueMu.Unlock()
		if !ok {
			return nil
		}

		if err := e.step(ctx, head); err != nil {
			return err
		}

		if !drainAll {
			return nil
		}
	}
}

// step submits one batch and, on success, publishes its logits and
// advances the clock. Caller holds the inference gate.
func (e *Executor) step(ctx context.Context, head *Batch) error {
	if err := e.engine.Decode(ctx, head); err != nil {
		return err
	}

	// Populate the cache before the epoch moves so a conversation that
	// observes the new epoch always finds its entry.
	epoch := e.epoch.Load()
	for i := 0; i < head.NumTokens(); i++ {
		entry := head.Entry(i)
		if !entry.Logits {
			continue
		}

		logits := e.engine.Logits(i)
		for _, seq := range entry.SeqIDs {
			e.cache.insert(LogitKey{Epoch: epoch, Slot: i, Seq: seq}, logits)
		}
	}

	tokens := head.NumTokens()

	// Epoch increment and head removal must be atomic with respect to
	// Add, which derives required epochs from both.
	e.queueMu.Lock()
	e.epoch.Add(1)
	e.queue.Remove(0)
	head.Clear()
	e.free = append(e.free, head)
	e.queueMu.Unlock()

	slog.Debug("batch drained", "epoch", epoch, "tokens", tokens)
	return nil
}

// Logits removes and returns the cached logits for one slot of a drained
// batch. Callers must have confirmed Epoch() has passed the required value
// returned by Add; a miss after that is *LogitsNotFoundError, which for a
// correct caller means the slot never requested logits.
func (e *Executor) Logits(epoch uint64, slot int, seq SeqID) ([]float32, error) {
	if e.disposed.Load() {
		return nil, ErrDisposed
	}

	key := LogitKey{Epoch: epoch, Slot: slot, Seq: seq}
	logits, ok := e.cache.take(key)
	if !ok {
		return nil, &LogitsNotFoundError{Key: key}
	}
	return logits, nil
}

// CopySequence duplicates from's engine cache state into to for positions
// up to endPos, then mirrors every still-unconsumed logit cache entry of
// from under to. Supports forking a conversation.
func (e *Executor) CopySequence(ctx context.Context, from, to SeqID, endPos int) error {
	if e.disposed.Load() {
		return ErrDisposed
	}

	if err := e.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	e.engine.CopySequenceRange(from, to, 0, endPos)
	e.gate.Release(1)

	e.cache.copySeq(from, to)
	return nil
}

// RemoveSequence drops every logit cache entry for seq and releases its
// engine cache range. Used when a conversation is discarded.
func (e *Executor) RemoveSequence(ctx context.Context, seq SeqID, endPos int) error {
	if e.disposed.Load() {
		return ErrDisposed
	}

	e.cache.evict(seq)

	if err := e.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	e.engine.RemoveSequenceRange(seq, 0, endPos)
	e.gate.Release(1)

	return nil
}

// Epoch returns the current value of the logical clock.
func (e *Executor) Epoch() uint64 {
	return e.epoch.Load()
}

// PendingTokens returns the number of appended tokens not yet drained,
// summed across all queued batches.
func (e *Executor) PendingTokens() int {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()

	var n int
	for i := 0; i < e.queue.Size(); i++ {
		if b, ok := e.queue.Get(i); ok {
			n += b.NumTokens()
		}
	}
	return n
}

// Disposed reports whether Close has been called.
func (e *Executor) Disposed() bool {
	return e.disposed.Load()
}

// Close discards all queued batches and releases the engine. Idempotent;
// every other operation fails with ErrDisposed afterwards. Close waits for
// an in-flight inference pass to finish before touching the engine.
func (e *Executor) Close() error {
	if !e.disposed.CompareAndSwap(false, true) {
		return nil
	}

	// An in-flight Infer holds the gate; once acquired, no new pass can
	// start because the disposed flag is already set.
	if err := e.gate.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer e.gate.Release(1)

	e.queueMu.Lock()
	e.queue.Clear()
	e.free = nil
	e.queueMu.Unlock()

	return e.engine.Close()
}
