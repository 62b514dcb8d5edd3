package channel

import (
	"sync"

	"github.com/podiumlabs/podium-core/internal/slide"
)

// Kind selects one of the three independently-cursored slide queues.
type Kind string

const (
	Exploratory Kind = "exploratory"
	Audience    Kind = "audience"
	Deck        Kind = "deck"
)

// Kinds lists every channel in a stable order.
var Kinds = []Kind{Exploratory, Audience, Deck}

// ParseKind validates a channel name from the wire.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case Exploratory, Audience, Deck:
		return Kind(s), true
	}
	return "", false
}

// Info describes one channel for the presentation surface.
type Info struct {
	Total     int  `json:"total"`
	Cursor    int  `json:"cursor"`
	CanGoPrev bool `json:"can_go_prev"`
	CanGoNext bool `json:"can_go_next"`
}

// Direction of a cursor move.
type Direction int

const (
	Prev Direction = iota
	Next
)

type channelState struct {
	queue  []slide.Slide
	cursor int
}

// Store holds the three slide queues. All channel logic is written once and
// dispatched by kind; the exploratory queue is capacity-bounded, oldest
// entries evicted first.
type Store struct {
	mu                  sync.Mutex
	channels            map[Kind]*channelState
	exploratoryCapacity int
}

// NewStore creates empty channels. capacity bounds the exploratory queue;
// zero or negative means unbounded.
func NewStore(exploratoryCapacity int) *Store {
	s := &Store{
		channels:            make(map[Kind]*channelState, len(Kinds)),
		exploratoryCapacity: exploratoryCapacity,
	}
	for _, k := range Kinds {
		s.channels[k] = &channelState{}
	}
	return s
}

// Append adds a slide to the tail of a channel, evicting from the front of
// the exploratory channel beyond its capacity.
func (s *Store) Append(kind Kind, sl slide.Slide) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.channels[kind]
	ch.queue = append(ch.queue, sl)
	if kind == Exploratory && s.exploratoryCapacity > 0 && len(ch.queue) > s.exploratoryCapacity {
		dropped := len(ch.queue) - s.exploratoryCapacity
		ch.queue = append([]slide.Slide(nil), ch.queue[dropped:]...)
		ch.cursor -= dropped
	}
	clamp(ch)
}

// Navigate moves the cursor one step, clamped to [0, len-1].
func (s *Store) Navigate(kind Kind, dir Direction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.channels[kind]
	switch dir {
	case Prev:
		ch.cursor--
	case Next:
		ch.cursor++
	}
	clamp(ch)
}

// Current returns the slide at the cursor, or false on an empty channel.
func (s *Store) Current(kind Kind) (slide.Slide, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.channels[kind]
	if len(ch.queue) == 0 {
		return slide.Slide{}, false
	}
	return ch.queue[ch.cursor], true
}

// Info reports the channel view exposed to the presentation surface.
func (s *Store) Info(kind Kind) Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.channels[kind]
	return Info{
		Total:     len(ch.queue),
		Cursor:    ch.cursor,
		CanGoPrev: ch.cursor > 0,
		CanGoNext: ch.cursor < len(ch.queue)-1,
	}
}

// Take removes and returns the slide at the cursor. On an empty channel it
// returns false and leaves the cursor at zero.
func (s *Store) Take(kind Kind) (slide.Slide, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.channels[kind]
	if len(ch.queue) == 0 {
		return slide.Slide{}, false
	}
	taken := ch.queue[ch.cursor]
	ch.queue = append(ch.queue[:ch.cursor], ch.queue[ch.cursor+1:]...)
	clamp(ch)
	return taken, true
}

// Remove deletes a slide by ID regardless of cursor position. Unknown IDs
// are a no-op.
func (s *Store) Remove(kind Kind, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.channels[kind]
	for i, sl := range ch.queue {
		if sl.ID == id {
			ch.queue = append(ch.queue[:i], ch.queue[i+1:]...)
			if i < ch.cursor {
				ch.cursor--
			}
			break
		}
	}
	clamp(ch)
}

// Reset empties one channel.
func (s *Store) Reset(kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[kind] = &channelState{}
}

// ResetAll empties every channel.
func (s *Store) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range Kinds {
		s.channels[k] = &channelState{}
	}
}

// Snapshot returns a copy of a channel's queue, most recent last.
func (s *Store) Snapshot(kind Kind) []slide.Slide {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]slide.Slide(nil), s.channels[kind].queue...)
}

func clamp(ch *channelState) {
	if ch.cursor > len(ch.queue)-1 {
		ch.cursor = len(ch.queue) - 1
	}
	if ch.cursor < 0 {
		ch.cursor = 0
	}
}
