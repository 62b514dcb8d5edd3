package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/podiumlabs/podium-core/internal/slide"
)

// Request carries the accumulated narration and its context to the gate
// decision service.
type Request struct {
	Transcript     string                `json:"transcript"`
	PriorIdeas     []slide.IdeaSeed      `json:"prior_ideas,omitempty"`
	AcceptedSlides []slide.AcceptedEntry `json:"accepted_slides,omitempty"`
	IsFirstSlide   bool                  `json:"is_first_slide"`
}

// Decision is the gate service's go/no-go answer.
type Decision struct {
	ShouldCreateSlide bool           `json:"should_create_slide"`
	Content           *slide.Content `json:"slide_content,omitempty"`
	Reason            string         `json:"reason,omitempty"`
}

// Decider defines a pluggable gate backend.
type Decider interface {
	Evaluate(ctx context.Context, req Request) (Decision, error)
}

type httpDecider struct {
	endpoint string
	client   *http.Client
}

// NewHTTPDecider talks to an external gate decision service.
func NewHTTPDecider(endpoint string) Decider {
	return &httpDecider{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (d *httpDecider) Evaluate(ctx context.Context, req Request) (Decision, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Decision{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return Decision{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return Decision{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return Decision{}, fmt.Errorf("gate service returned status %s", resp.Status)
	}
	var decision Decision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return Decision{}, err
	}
	return decision, nil
}

type mockDecider struct{}

// NewMockDecider approves any transcript long enough to carry an idea.
// Useful for development without the external service.
func NewMockDecider() Decider { return &mockDecider{} }

func (m *mockDecider) Evaluate(ctx context.Context, req Request) (Decision, error) {
	select {
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	case <-time.After(10 * time.Millisecond):
	}
	words := strings.Fields(req.Transcript)
	if len(words) < 4 {
		return Decision{ShouldCreateSlide: false, Reason: "not enough content yet"}, nil
	}
	headline := strings.Join(words[:min(len(words), 8)], " ")
	return Decision{
		ShouldCreateSlide: true,
		Content: &slide.Content{
			Headline:          headline,
			VisualDescription: req.Transcript,
			Category:          "narration",
			SourceTranscript:  req.Transcript,
		},
	}, nil
}
