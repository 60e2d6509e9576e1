package feed

import "sync"

// LiveFeed is a bounded ring of the most recent events, kept purely for
// the status endpoint. It is not authoritative state; the cache is.
type LiveFeed struct {
	mu   sync.Mutex
	buf  []Event
	next int
	full bool
}

func NewLiveFeed(capacity int) *LiveFeed {
	if capacity < 1 {
		capacity = 1
	}
	return &LiveFeed{buf: make([]Event, capacity)}
}

// Add records an event, evicting the oldest once full.
func (f *LiveFeed) Add(e Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf[f.next] = e
	f.next++
	if f.next == len(f.buf) {
		f.next = 0
		f.full = true
	}
}

// Recent returns the retained events, newest first.
func (f *LiveFeed) Recent() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.next
	if f.full {
		n = len(f.buf)
	}
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		idx := f.next - 1 - i
		if idx < 0 {
			idx += len(f.buf)
		}
		out = append(out, f.buf[idx])
	}
	return out
}

// Len returns how many events are currently retained.
func (f *LiveFeed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return len(f.buf)
	}
	return f.next
}
