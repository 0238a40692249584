package executor

import "context"

// Engine is the opaque inference backend. The executor owns the engine
// exclusively and only ever touches it while holding the inference gate.
type Engine interface {
	// Decode runs one forward pass over the batch. On failure the engine
	// must leave its cache untouched so the batch can be resubmitted.
	// A full cache is reported as ErrNoSlot (directly or wrapped); any
	// other error is opaque to the executor. Cancellation of ctx surfaces
	// as an error, never as a partial result.
	Decode(ctx context.Context, batch *Batch) error

	// Logits returns the logit vector for a batch slot. Valid only
	// immediately after a successful Decode, for slots that requested
	// logits.
	Logits(slot int) []float32

	// CopySequenceRange duplicates from's cache state into to for
	// positions in [startPos, endPos).
	CopySequenceRange(from, to SeqID, startPos, endPos int)

	// RemoveSequenceRange releases seq's cache state for positions in
	// [startPos, endPos).
	RemoveSequenceRange(seq SeqID, startPos, endPos int)

	Close() error
}
