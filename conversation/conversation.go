// Package conversation provides the client-facing handle over one
// executor sequence: appending tokens, collecting logits once the
// required epoch has been reached, forking, and teardown.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/parley-ml/parley/executor"
)

// ErrClosed is returned by every operation on a closed conversation.
var ErrClosed = errors.New("conversation is closed")

// ErrNotReady is returned by Logits while the batch holding the last
// appended token has not been drained yet. Run inference and retry.
var ErrNotReady = errors.New("logits not ready, inference required")

// ErrNothingPending is returned by Logits when no appended token has
// requested logits, or the pending logits were already consumed.
var ErrNothingPending = errors.New("no pending logits for this conversation")

// Conversation is an append-only token sequence with its own engine-side
// cache slot. Safe for concurrent use, though a conversation is normally
// driven by a single client.
type Conversation struct {
	exec *executor.Executor
	seq  executor.SeqID

	mu sync.Mutex

	// pos is the absolute position the next appended token gets.
	pos int

	// pendingSlot and pendingEpoch locate the logits of the most recent
	// append. pendingEpoch is the executor epoch to wait for; zero means
	// nothing pending.
	pendingSlot  int
	pendingEpoch uint64

	closed bool
}

// New allocates a fresh sequence on the executor and returns its handle.
func New(exec *executor.Executor) (*Conversation, error) {
	seq, err := exec.NewSequence()
	if err != nil {
		return nil, err
	}

	return &Conversation{exec: exec, seq: seq}, nil
}

// SeqID returns the underlying sequence id.
func (c *Conversation) SeqID() executor.SeqID {
	return c.seq
}

// TokenCount returns the number of tokens appended so far.
func (c *Conversation) TokenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos
}

// Append queues tokens at consecutive positions. Only the final token
// requests logits: intermediate prompt tokens need no output, the same
// way a runner only samples from the last input of a sequence. Appending
// again before consuming the previous logits abandons them.
func (c *Conversation) Append(tokens ...int) error {
	if len(tokens) == 0 {
		return errors.New("no tokens to append")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	for i, token := range tokens {
		wantsLogits := i == len(tokens)-1

		slot, required, err := c.exec.Add(token, c.pos, wantsLogits, c.seq)
		if err != nil {
			return fmt.Errorf("append token at position %d: %w", c.pos, err)
		}
		c.pos++

		if wantsLogits {
			c.pendingSlot = slot
			c.pendingEpoch = required
		}
	}

	return nil
}

// Logits consumes and returns the logits for the last appended token.
// Returns ErrNotReady until the executor's epoch has reached the value
// recorded at append time; the required-epoch check is what keeps a
// correct caller from ever seeing a cache miss.
func (c *Conversation) Logits() ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.pendingEpoch == 0 {
		return nil, ErrNothingPending
	}
	if c.exec.Epoch() < c.pendingEpoch {
		return nil, ErrNotReady
	}

	// Logits are tagged with the epoch at drain time, one below the
	// post-drain value recorded by Append.
	logits, err := c.exec.Logits(c.pendingEpoch-1, c.pendingSlot, c.seq)
	if err != nil {
		return nil, err
	}

	c.pendingEpoch = 0
	return logits, nil
}

// Fork creates a new conversation sharing this one's history. The child
// gets its own sequence, a copy of the parent's engine cache up to the
// current position, and any logits the parent has not consumed yet. The
// fork point excludes tokens still waiting in the batch queue, so fork
// after inference has caught up.
func (c *Conversation) Fork(ctx context.Context) (*Conversation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	child, err := New(c.exec)
	if err != nil {
		return nil, err
	}

	if err := c.exec.CopySequence(ctx, c.seq, child.seq, c.pos); err != nil {
		return nil, fmt.Errorf("fork seq %d: %w", c.seq, err)
	}

	child.pos = c.pos
	child.pendingSlot = c.pendingSlot
	child.pendingEpoch = c.pendingEpoch

	return child, nil
}

// Close releases the conversation's engine cache range and drops any
// unconsumed logits. Idempotent.
func (c *Conversation) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	return c.exec.RemoveSequence(ctx, c.seq, c.pos)
}
