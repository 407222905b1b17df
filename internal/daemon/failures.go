package daemon

import "sync"

// failureCounter counts consecutive failures per request id. It trips once
// any id has failed more than max times.
type failureCounter struct {
	max int

	mu     sync.Mutex
	counts map[string]int
}

func newFailureCounter(max int) *failureCounter {
	if max < 1 {
		max = 1
	}
	return &failureCounter{max: max, counts: make(map[string]int)}
}

// Fail records a failure for id and reports the new count and whether the
// bound is exceeded.
func (f *failureCounter) Fail(id string) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[id]++
	n := f.counts[id]
	return n, n > f.max
}

// Reset forgets id after a success.
func (f *failureCounter) Reset(id string) {
	f.mu.Lock()
	delete(f.counts, id)
	f.mu.Unlock()
}

// Count returns the current count for id.
func (f *failureCounter) Count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[id]
}
