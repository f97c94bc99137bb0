package engine

// rolling keeps the most recent n float observations in a fixed ring.
// Callers serialize access through the owning registry entry.
type rolling struct {
	buf  []float64
	next int
	full bool
}

func newRolling(n int) *rolling {
	if n < 1 {
		n = 1
	}
	return &rolling{buf: make([]float64, n)}
}

func (r *rolling) push(v float64) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *rolling) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// values returns the retained observations; order is irrelevant to the
// consumers (mean and deviation are order-insensitive).
func (r *rolling) values() []float64 {
	if r.full {
		return r.buf
	}
	return r.buf[:r.next]
}
