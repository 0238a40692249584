package executor

import (
	"math"
	"testing"
)

func TestLogitCacheReadOnce(t *testing.T) {
	var c logitCache

	key := LogitKey{Epoch: 1, Slot: 0, Seq: 3}
	c.insert(key, []float32{1, 2, 3})

	logits, ok := c.take(key)
	if !ok {
		t.Fatal("expected entry present")
	}
	if len(logits) != 3 || logits[0] != 1 {
		t.Errorf("take() = %v", logits)
	}

	if _, ok := c.take(key); ok {
		t.Error("second take must miss")
	}
}

func TestLogitCacheDuplicateInsertKeepsFirst(t *testing.T) {
	var c logitCache

	key := LogitKey{Epoch: 2, Slot: 1, Seq: 0}
	c.insert(key, []float32{1})
	c.insert(key, []float32{9})

	logits, ok := c.take(key)
	if !ok {
		t.Fatal("expected entry present")
	}
	if logits[0] != 1 {
		t.Errorf("duplicate insert overwrote entry: got %v", logits)
	}
}

func TestLogitCacheCopyAndEvict(t *testing.T) {
	var c logitCache

	c.insert(LogitKey{Epoch: 1, Slot: 0, Seq: 7}, []float32{1})
	c.insert(LogitKey{Epoch: 3, Slot: 2, Seq: 7}, []float32{2})
	c.insert(LogitKey{Epoch: 1, Slot: 1, Seq: 8}, []float32{3})

	c.copySeq(7, 9)

	// The copy spans every epoch and slot of the source.
	if _, ok := c.take(LogitKey{Epoch: 1, Slot: 0, Seq: 9}); !ok {
		t.Error("copy missed epoch 1")
	}
	if _, ok := c.take(LogitKey{Epoch: 3, Slot: 2, Seq: 9}); !ok {
		t.Error("copy missed epoch 3")
	}

	c.evict(7)

	if _, ok := c.take(LogitKey{Epoch: 1, Slot: 0, Seq: 7}); ok {
		t.Error("evict left an entry behind")
	}
	if _, ok := c.take(LogitKey{Epoch: 3, Slot: 2, Seq: 7}); ok {
		t.Error("evict left an entry behind")
	}

	// Other sequences are untouched.
	if _, ok := c.take(LogitKey{Epoch: 1, Slot: 1, Seq: 8}); !ok {
		t.Error("evict removed another sequence's entry")
	}
}

func TestLogitCacheHalfPrecision(t *testing.T) {
	c := logitCache{f16: true}

	in := []float32{0, 1, -1, 0.5, 1024}
	key := LogitKey{Epoch: 1, Slot: 0, Seq: 0}
	c.insert(key, in)

	out, ok := c.take(key)
	if !ok {
		t.Fatal("expected entry present")
	}

	for i := range in {
		if diff := math.Abs(float64(in[i] - out[i])); diff > 1e-2 {
			t.Errorf("logit %d: got %v, want %v within half precision", i, out[i], in[i])
		}
	}
}
