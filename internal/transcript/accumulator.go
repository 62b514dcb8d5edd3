package transcript

import (
	"strings"
	"sync"
)

// Accumulator collects finalized speech segments into a running buffer for
// one recording session. The transcription transport occasionally delivers
// the same finalized segment twice; exact repeats of the previous segment
// are skipped.
type Accumulator struct {
	mu          sync.Mutex
	buffer      strings.Builder
	lastSegment string
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Append concatenates a finalized segment with a single space separator.
// Returns false when the segment was skipped as a duplicate or empty.
func (a *Accumulator) Append(segment string) bool {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if segment == a.lastSegment {
		return false
	}
	if a.buffer.Len() > 0 {
		a.buffer.WriteByte(' ')
	}
	a.buffer.WriteString(segment)
	a.lastSegment = segment
	return true
}

// Snapshot returns the current buffer.
func (a *Accumulator) Snapshot() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buffer.String()
}

// Len reports the buffer length in bytes.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buffer.Len()
}

// Drain returns the current buffer and empties it in one step, so a
// segment appended concurrently lands in the fresh buffer instead of being
// lost between a snapshot and a clear.
func (a *Accumulator) Drain() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.buffer.String()
	a.buffer.Reset()
	a.lastSegment = ""
	return out
}

// Clear empties the buffer and forgets the duplicate guard.
func (a *Accumulator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buffer.Reset()
	a.lastSegment = ""
}
