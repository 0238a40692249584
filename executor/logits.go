package executor

import (
	"log/slog"
	"sync"

	"github.com/x448/float16"
)

// LogitKey addresses one cached logit vector: the epoch the producing
// batch was drained under, the slot index within that batch, and the
// sequence the entry belongs to. Plain value type; structural equality.
type LogitKey struct {
	Epoch uint64
	Slot  int
	Seq   SeqID
}

// logitCache holds logit vectors between a successful decode and the
// consuming fetch. Entries are write-once, read-once. Reads and writes are
// concurrent-safe independent of the inference gate so a conversation can
// drain results from a past epoch while the next pass runs.
//
// With f16 set, vectors are stored half-precision; vocab-sized float32
// slices are the dominant resident allocation in a busy executor.
type logitCache struct {
	m   sync.Map // LogitKey -> []float32 or []float16.Float16
	f16 bool
}

// insert stores logits under key if absent. A duplicate key means a drain
// was retried after a partial failure; the first value wins and the
// duplicate is dropped with a diagnostic rather than treated as fatal.
func (c *logitCache) insert(key LogitKey, logits []float32) {
	var v any = logits
	if c.f16 {
		h := make([]float16.Float16, len(logits))
		for i, f := range logits {
			h[i] = float16.Fromfloat32(f)
		}
		v = h
	}

	if _, loaded := c.m.LoadOrStore(key, v); loaded {
		slog.Debug("duplicate logit cache insert", "epoch", key.Epoch, "slot", key.Slot, "seq", key.Seq)
	}
}

// take atomically removes and returns the entry for key.
func (c *logitCache) take(key LogitKey) ([]float32, bool) {
	v, ok := c.m.LoadAndDelete(key)
	if !ok {
		return nil, false
	}
	return c.decode(v), true
}

// copySeq duplicates every live entry keyed by from under an equivalent
// key for to. A fork inherits any logits its parent has not yet consumed.
func (c *logitCache) copySeq(from, to SeqID) {
	c.m.Range(func(k, v any) bool {
		key := k.(LogitKey)
		if key.Seq == from {
			key.Seq = to
			c.m.LoadOrStore(key, v)
		}
		return true
	})
}

// evict drops every entry keyed by seq across all epochs and slots.
func (c *logitCache) evict(seq SeqID) {
	c.m.Range(func(k, v any) bool {
		if k.(LogitKey).Seq == seq {
			c.m.Delete(k)
		}
		return true
	})
}

func (c *logitCache) decode(v any) []float32 {
	switch logits := v.(type) {
	case []float32:
		return logits
	case []float16.Float16:
		out := make([]float32, len(logits))
		for i, h := range logits {
			out[i] = h.Float32()
		}
		return out
	}
	return nil
}
