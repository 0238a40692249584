package executor

import (
	"errors"
	"fmt"
)

// ErrDisposed is returned by every operation invoked after Close.
var ErrDisposed = errors.New("executor has been disposed")

// ErrNoSlot is returned by Infer when the engine cannot find cache space
// for the head batch. The batch is left at the head of the queue; the
// caller is expected to free capacity (for example by removing a
// conversation) and retry.
var ErrNoSlot = errors.New("could not find an engine cache slot for the batch")

// LogitsNotFoundError reports a logit cache miss. It carries the requested
// key so callers can tell a premature fetch (epoch not yet reached) from a
// fetch for a slot that never requested logits.
type LogitsNotFoundError struct {
	Key LogitKey
}

func (e *LogitsNotFoundError) Error() string {
	return fmt.Sprintf("no logits cached for epoch %d slot %d seq %d", e.Key.Epoch, e.Key.Slot, e.Key.Seq)
}
