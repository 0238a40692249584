// Package executor implements the multi-conversation batching scheduler.
//
// Many independent conversations append tokens concurrently; the executor
// packs them into fixed-capacity batches, drains the batch queue through an
// Engine one forward pass at a time, and hands per-slot logits back to the
// owning conversations through an epoch-versioned cache.
package executor

// SeqID identifies one conversation's engine-side cache slot. IDs are
// allocated by the executor and are never recycled.
type SeqID int32

// Entry is one slot of a Batch: a token at an absolute position within its
// owning sequence(s), plus whether the engine should produce logits for it.
// A slot can be shared by several sequences after a fork.
type Entry struct {
	Token  int
	Pos    int
	SeqIDs []SeqID
	Logits bool
}

// Batch is a fixed-capacity ordered buffer of pending entries. It has no
// knowledge of the engine, the queue, or the logit cache; the executor is
// responsible for routing tokens to a fresh batch once this one is full.
type Batch struct {
	entries []Entry
	n       int

	// sealed is set by the executor when the batch is first submitted to
	// the engine. No entry may be added afterwards, so a decode can read
	// the entries without holding the queue lock.
	sealed bool
}

// NewBatch allocates a batch with room for capacity entries. Entry storage
// is allocated once and reused across Clear cycles.
func NewBatch(capacity int) *Batch {
	return &Batch{entries: make([]Entry, capacity)}
}

// Add appends a token at the given position for the given sequence ids,
// optionally requesting logits, and returns the slot index it landed in.
// The caller must guarantee the batch is not full; a slot index is stable
// until the batch is cleared.
func (b *Batch) Add(token, pos int, logits bool, seqIDs ...SeqID) int {
	if b.n >= len(b.entries) {
		panic("executor: add to full batch")
	}
	if b.sealed {
		panic("executor: add to sealed batch")
	}

	e := &b.entries[b.n]
	e.Token = token
	e.Pos = pos
	e.SeqIDs = append(e.SeqIDs[:0], seqIDs...)
	e.Logits = logits

	b.n++
	return b.n - 1
}

// Entry returns the slot at index i. Valid for 0 <= i < NumTokens().
func (b *Batch) Entry(i int) Entry {
	if i < 0 || i >= b.n {
		panic("executor: batch entry index out of range")
	}
	return b.entries[i]
}

// NumTokens returns the current entry count.
func (b *Batch) NumTokens() int {
	return b.n
}

// Capacity returns the fixed entry limit.
func (b *Batch) Capacity() int {
	return len(b.entries)
}

// Clear resets the entry count to zero. Capacity is unchanged and slot
// storage is retained for reuse.
func (b *Batch) Clear() {
	b.n = 0
	b.sealed = false
}
