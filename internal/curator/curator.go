package curator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/podiumlabs/podium-core/internal/slide"
)

// Action is the placement verdict for a newly generated slide against the
// two current suggestion slots.
type Action string

const (
	ReplaceSlot1 Action = "replace_slot_1"
	ReplaceSlot2 Action = "replace_slot_2"
	Discard      Action = "discard"
)

// Request is the legacy two-slot placement contract.
type Request struct {
	NewSlide       slide.Slide    `json:"new_slide"`
	CurrentOptions [2]slide.Slide `json:"current_options"`
}

// Verdict carries the placement decision and its rationale.
type Verdict struct {
	Action    Action `json:"action"`
	Reasoning string `json:"reasoning,omitempty"`
}

// Placer decides where a new suggestion lands among the current options.
type Placer interface {
	Decide(ctx context.Context, req Request) (Verdict, error)
}

type httpPlacer struct {
	endpoint string
	client   *http.Client
}

func NewHTTPPlacer(endpoint string) Placer {
	return &httpPlacer{endpoint: endpoint, client: &http.Client{Timeout: 30 * time.Second}}
}

func (p *httpPlacer) Decide(ctx context.Context, req Request) (Verdict, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Verdict{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Verdict{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return Verdict{}, fmt.Errorf("curator returned status %s", resp.Status)
	}
	var verdict Verdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return Verdict{}, err
	}
	return verdict, nil
}

type mockPlacer struct{}

// NewMockPlacer always replaces the older option.
func NewMockPlacer() Placer { return &mockPlacer{} }

func (m *mockPlacer) Decide(ctx context.Context, req Request) (Verdict, error) {
	older := ReplaceSlot1
	if req.CurrentOptions[1].CreatedAt.Before(req.CurrentOptions[0].CreatedAt) {
		older = ReplaceSlot2
	}
	return Verdict{Action: older, Reasoning: "replacing the older suggestion"}, nil
}
