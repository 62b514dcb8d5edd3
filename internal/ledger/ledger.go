package ledger

import (
	"sync"

	"github.com/podiumlabs/podium-core/internal/slide"
)

// styleRefCap fixes how many early accepted slides seed the visual style
// of everything generated afterwards.
const styleRefCap = 2

// Ledger is the append-only history of slides the presenter has committed
// to show. The first two entries double as style references.
type Ledger struct {
	mu       sync.Mutex
	accepted []slide.AcceptedEntry
}

func New() *Ledger {
	return &Ledger{}
}

// Append records a presenter-accepted slide exactly once.
func (l *Ledger) Append(s slide.Slide) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.accepted {
		if e.ID == s.ID {
			return
		}
	}
	l.accepted = append(l.accepted, slide.Project(s))
}

// Accepted returns the full accepted history in order.
func (l *Ledger) Accepted() []slide.AcceptedEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]slide.AcceptedEntry(nil), l.accepted...)
}

// Recent returns up to n of the most recently accepted entries.
func (l *Ledger) Recent(n int) []slide.AcceptedEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || len(l.accepted) == 0 {
		return nil
	}
	if n > len(l.accepted) {
		n = len(l.accepted)
	}
	return append([]slide.AcceptedEntry(nil), l.accepted[len(l.accepted)-n:]...)
}

// StyleReferences returns the first entries of the session, capped at two.
// Immutable once the cap is reached.
func (l *Ledger) StyleReferences() []slide.AcceptedEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.accepted)
	if n > styleRefCap {
		n = styleRefCap
	}
	return append([]slide.AcceptedEntry(nil), l.accepted[:n]...)
}

// Len reports how many slides have been accepted this session.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.accepted)
}

// Reset clears the ledger and style references for a new session.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accepted = nil
}
