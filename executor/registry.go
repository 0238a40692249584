package executor

import "sync/atomic"

// sequenceRegistry hands out unique, monotonically increasing sequence ids.
// Pure atomic increment; safe to call without any coordination with the
// inference gate or the queue lock. Ids are never recycled.
type sequenceRegistry struct {
	next atomic.Int32
}

func (r *sequenceRegistry) allocate() SeqID {
	id := r.next.Add(1) - 1
	if id < 0 {
		panic("executor: sequence id space exhausted")
	}
	return SeqID(id)
}
