package repository

// DeleteDecision is the outcome of a delete request against the lookup
// counter.
type DeleteDecision int

const (
	DeleteNow DeleteDecision = iota
	DeleteDeferred
)

// LookupCounter tracks how many references the kernel holds for each inode
// and whether a deletion is waiting for those references to drain.
type LookupCounter interface {
	Touch(ino uint64)
	Count(ino uint64) uint64
	PendingDelete(ino uint64) bool
	RequestDelete(ino uint64) DeleteDecision
	// Forget subtracts n from the lookup count of ino, clamping at zero. The
	// second result is false when ino has never been looked up.
	Forget(ino uint64, n uint64) (uint64, bool)
	Prune(ino uint64)
}

type lookupState struct {
	count         uint64
	pendingDelete bool
}

type lookupCounter struct {
	counts map[uint64]*lookupState
}

func NewLookupCounter() LookupCounter {
	return &lookupCounter{counts: make(map[uint64]*lookupState)}
}

func (c *lookupCounter) Touch(ino uint64) {
	st, ok := c.counts[ino]
	if !ok {
		st = &lookupState{}
		c.counts[ino] = st
	}
	st.count++
}

func (c *lookupCounter) Count(ino uint64) uint64 {
	if st, ok := c.counts[ino]; ok {
		return st.count
	}
	return 0
}

func (c *lookupCounter) PendingDelete(ino uint64) bool {
	if st, ok := c.counts[ino]; ok {
		return st.pendingDelete
	}
	return false
}

func (c *lookupCounter) RequestDelete(ino uint64) DeleteDecision {
	st, ok := c.counts[ino]
	if !ok || st.count == 0 {
		return DeleteNow
	}
	st.pendingDelete = true
	return DeleteDeferred
}

func (c *lookupCounter) Forget(ino uint64, n uint64) (uint64, bool) {
	st, ok := c.counts[ino]
	if !ok {
		return 0, false
	}

	if n > st.count {
		st.count = 0
	} else {
		st.count -= n
	}

	return st.count, true
}

func (c *lookupCounter) Prune(ino uint64) {
	delete(c.counts, ino)
}
