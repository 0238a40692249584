package executor

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBatchAdd(t *testing.T) {
	b := NewBatch(4)

	if got := b.Add(100, 0, true, 1); got != 0 {
		t.Errorf("first slot = %d, want 0", got)
	}
	if got := b.Add(101, 1, false, 1, 2); got != 1 {
		t.Errorf("second slot = %d, want 1", got)
	}

	if b.NumTokens() != 2 {
		t.Errorf("NumTokens() = %d, want 2", b.NumTokens())
	}
	if b.Capacity() != 4 {
		t.Errorf("Capacity() = %d, want 4", b.Capacity())
	}

	want := Entry{Token: 101, Pos: 1, SeqIDs: []SeqID{1, 2}, Logits: false}
	if diff := cmp.Diff(want, b.Entry(1)); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}
}

func TestBatchClear(t *testing.T) {
	b := NewBatch(2)
	b.Add(1, 0, false, 1)
	b.Add(2, 1, false, 1)

	b.Clear()

	if b.NumTokens() != 0 {
		t.Errorf("NumTokens() after clear = %d, want 0", b.NumTokens())
	}
	if b.Capacity() != 2 {
		t.Errorf("Capacity() after clear = %d, want 2", b.Capacity())
	}

	// Slots are overwritable after a clear.
	if got := b.Add(3, 2, true, 2); got != 0 {
		t.Errorf("slot after clear = %d, want 0", got)
	}

	want := Entry{Token: 3, Pos: 2, SeqIDs: []SeqID{2}, Logits: true}
	if diff := cmp.Diff(want, b.Entry(0)); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}
}

func TestBatchAddFullPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic adding to a full batch")
		}
	}()

	b := NewBatch(1)
	b.Add(1, 0, false, 1)
	b.Add(2, 1, false, 1)
}
