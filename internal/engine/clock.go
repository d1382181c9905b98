package engine

import "sync/atomic"

// Clock numbers commits. Seqs strictly increase within a checkpoint and
// continue across restarts: Resume advances the clock to the last
// committed seq. Wall time never orders anything.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first seq is 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next reserves the next seq. A seq reserved by a commit that is then
// rejected leaves a gap; it is never handed out again.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last reserved seq.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// Advance moves the clock forward to at least seq. It never moves back.
func (c *Clock) Advance(seq int64) {
	for {
		cur := c.seq.Load()
		if seq <= cur || c.seq.CompareAndSwap(cur, seq) {
			return
		}
	}
}
