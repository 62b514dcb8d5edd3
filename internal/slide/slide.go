package slide

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Source tags where a slide entered the session from.
type Source string

const (
	SourceExploratory Source = "exploratory"
	SourceAudience    Source = "audience"
	SourceDeck        Source = "deck"
)

// IdeaSeed captures the provenance of a slide: the idea it was built from.
type IdeaSeed struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

// Content is the structured text of a slide before or after rendering.
type Content struct {
	Headline          string   `json:"headline"`
	Subheadline       string   `json:"subheadline,omitempty"`
	Bullets           []string `json:"bullets,omitempty"`
	VisualDescription string   `json:"visual_description,omitempty"`
	Category          string   `json:"category,omitempty"`
	SourceTranscript  string   `json:"source_transcript,omitempty"`
}

// Slide is immutable once created. ID is the only key used for removal
// and de-duplication within a session.
type Slide struct {
	ID           string    `json:"id"`
	ImageURL     string    `json:"image_url,omitempty"`
	Headline     string    `json:"headline,omitempty"`
	Subheadline  string    `json:"subheadline,omitempty"`
	Bullets      []string  `json:"bullets,omitempty"`
	Background   string    `json:"background,omitempty"`
	OriginalIdea IdeaSeed  `json:"original_idea"`
	Source       Source    `json:"source"`
	CreatedAt    time.Time `json:"created_at"`
}

// New mints a slide from structured content.
func New(content Content, source Source) Slide {
	return Slide{
		ID:          uuid.NewString(),
		Headline:    content.Headline,
		Subheadline: content.Subheadline,
		Bullets:     content.Bullets,
		OriginalIdea: IdeaSeed{
			Title:    content.Headline,
			Content:  content.VisualDescription,
			Category: content.Category,
		},
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
}

// AcceptedEntry is the compact projection of a presenter-accepted slide
// kept as context for future generation calls.
type AcceptedEntry struct {
	ID                string `json:"id"`
	Headline          string `json:"headline"`
	VisualDescription string `json:"visual_description"`
	Category          string `json:"category"`
}

// Project reduces a slide to its accepted-ledger form.
func Project(s Slide) AcceptedEntry {
	return AcceptedEntry{
		ID:                s.ID,
		Headline:          s.Headline,
		VisualDescription: s.OriginalIdea.Content,
		Category:          s.OriginalIdea.Category,
	}
}

// Counter stamps outbound generation requests with a monotonically
// increasing slide number for the duration of one session.
type Counter struct {
	n atomic.Int64
}

func (c *Counter) Next() int64  { return c.n.Add(1) }
func (c *Counter) Value() int64 { return c.n.Load() }
func (c *Counter) Reset()       { c.n.Store(0) }
