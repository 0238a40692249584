// Package simengine is a deterministic in-memory inference engine. It
// models the cache behavior of a real backend — per-sequence cell
// occupancy against a fixed context size, slot exhaustion, copy-on-fork
// and range removal — while producing pseudo-logits instead of running a
// model. It backs the HTTP server, the bench command and the executor's
// integration tests.
package simengine

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/parley-ml/parley/executor"
)

// Config sizes the simulated engine.
type Config struct {
	// ContextLength is the total number of cache cells. A cell holds one
	// token position and may be shared by several sequences.
	ContextLength int

	// VocabSize is the length of produced logit vectors.
	VocabSize int

	// StepDelay simulates per-pass compute latency. Zero means decode
	// returns immediately.
	StepDelay time.Duration
}

// cell is one occupied cache position, possibly shared across sequences
// after a copy.
type cell struct {
	pos  int
	seqs []executor.SeqID
}

// Engine implements executor.Engine. The executor serializes all mutating
// calls behind its inference gate; the internal mutex only makes the
// diagnostic readers safe to call concurrently.
type Engine struct {
	mu sync.Mutex

	cells  []cell
	logits [][]float32

	contextLength int
	vocab         int
	delay         time.Duration

	decodes uint64
	closed  bool
}

func New(cfg Config) (*Engine, error) {
	if cfg.ContextLength <= 0 || cfg.VocabSize <= 0 {
		return nil, fmt.Errorf("invalid engine config (context=%d vocab=%d)", cfg.ContextLength, cfg.VocabSize)
	}

	return &Engine{
		contextLength: cfg.ContextLength,
		vocab:         cfg.VocabSize,
		delay:         cfg.StepDelay,
	}, nil
}

// Decode consumes one cache cell per batch entry and produces logits for
// the slots that requested them. On any failure the cell table is left
// untouched so the batch can be resubmitted.
func (e *Engine) Decode(ctx context.Context, batch *executor.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if e.delay > 0 {
		t := time.NewTimer(e.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("decode on closed engine")
	}

	if len(e.cells)+batch.NumTokens() > e.contextLength {
		return fmt.Errorf("%w: %d cells in use, batch needs %d, context is %d",
			executor.ErrNoSlot, len(e.cells), batch.NumTokens(), e.contextLength)
	}

	logits := make([][]float32, batch.NumTokens())
	for i := 0; i < batch.NumTokens(); i++ {
		entry := batch.Entry(i)
		e.cells = append(e.cells, cell{pos: entry.Pos, seqs: slices.Clone(entry.SeqIDs)})
		if entry.Logits {
			logits[i] = pseudoLogits(entry.Token, entry.Pos, e.vocab)
		}
	}

	e.logits = logits
	e.decodes++
	return nil
}

// Logits returns the vector for slot i of the last successful decode, or
// nil if the slot did not request logits.
func (e *Engine) Logits(slot int) []float32 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if slot < 0 || slot >= len(e.logits) {
		return nil
	}
	return e.logits[slot]
}

// CopySequenceRange adds to's membership to every cell from occupies in
// [startPos, endPos). Any prior membership of to is dropped first so the
// result is exactly the copied range. Shared cells consume no extra
// capacity.
func (e *Engine) CopySequenceRange(from, to executor.SeqID, startPos, endPos int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.cells {
		c := &e.cells[i]
		c.seqs = slices.DeleteFunc(c.seqs, func(s executor.SeqID) bool { return s == to })

		if slices.Contains(c.seqs, from) && c.pos >= startPos && c.pos < endPos {
			c.seqs = append(c.seqs, to)
		}
	}

	e.compact()
}

// RemoveSequenceRange drops seq's membership from every cell in
// [startPos, endPos). Cells left without members are released.
func (e *Engine) RemoveSequenceRange(seq executor.SeqID, startPos, endPos int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.cells {
		c := &e.cells[i]
		if c.pos >= startPos && c.pos < endPos {
			c.seqs = slices.DeleteFunc(c.seqs, func(s executor.SeqID) bool { return s == seq })
		}
	}

	e.compact()
}

// compact releases cells with no remaining sequence members. Caller holds
// mu.
func (e *Engine) compact() {
	e.cells = slices.DeleteFunc(e.cells, func(c cell) bool { return len(c.seqs) == 0 })
}

// CellsUsed returns the number of occupied cache cells.
func (e *Engine) CellsUsed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cells)
}

// ContextLength returns the total cell capacity.
func (e *Engine) ContextLength() int {
	return e.contextLength
}

// Decodes returns the number of successful forward passes.
func (e *Engine) Decodes() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.decodes
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cells = nil
	e.logits = nil
	e.closed = true
	return nil
}

// pseudoLogits derives a deterministic vector from (token, position) with
// an xorshift generator, so tests can compare fetched logits against a
// recomputation.
func pseudoLogits(token, pos, vocab int) []float32 {
	logits := make([]float32, vocab)

	h := uint32(token)*2654435761 + uint32(pos)*40503 + 1
	for v := range logits {
		h ^= h << 13
		h ^= h >> 17
		h ^= h << 5
		logits[v] = float32(h%65536)/32768 - 1
	}

	return logits
}
