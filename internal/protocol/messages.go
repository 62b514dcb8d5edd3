package protocol

import (
	"time"

	"github.com/podiumlabs/podium-core/internal/slide"
)

// Segment is one transcription result broadcast on the bus by the speech
// boundary. Partial segments are display-only; final ones feed the gate.
type Segment struct {
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text"`
	Partial    bool      `json:"partial"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence,omitempty"`
}

// SlideEvent carries a slide across the bus: accepted by the presenter,
// answered from the audience, extracted from an uploaded deck, or freshly
// appended to a channel.
type SlideEvent struct {
	SessionID string      `json:"session_id"`
	Channel   string      `json:"channel,omitempty"`
	Slide     slide.Slide `json:"slide"`
}

// PromptEvent is a presenter-typed generation request.
type PromptEvent struct {
	SessionID    string       `json:"session_id"`
	Prompt       string       `json:"prompt"`
	CurrentSlide *slide.Slide `json:"current_slide,omitempty"`
}

// ChannelUpdate notifies surfaces that a channel changed and what its
// cursor looks like now.
type ChannelUpdate struct {
	SessionID string `json:"session_id"`
	Channel   string `json:"channel"`
	Total     int    `json:"total"`
	Cursor    int    `json:"cursor"`
}

const (
	SubjectSegmentPartial  = "transcript.segment.partial"
	SubjectSegmentFinal    = "transcript.segment.final"
	SubjectSlideAccepted   = "slide.accepted"
	SubjectAudienceSlide   = "audience.slide"
	SubjectAudienceAnswer  = "audience.answered"
	SubjectDeckSlide       = "deck.slide"
	SubjectPromptSubmitted = "prompt.submitted"
	SubjectSessionStart    = "session.start"
	SubjectSessionStop     = "session.stop"
	SubjectSessionPause    = "session.pause"
	SubjectSessionResume   = "session.resume"
	SubjectChannelUpdated  = "channel.updated"
)
