package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/podiumlabs/podium-core/internal/slide"
)

// FollowupRequest asks the exploratory service for "what could come next"
// given the union of recent signals.
type FollowupRequest struct {
	Prompt            string                `json:"prompt,omitempty"`
	CurrentSlide      *slide.Slide          `json:"current_slide,omitempty"`
	TranscriptContext string                `json:"transcript_context,omitempty"`
	SlideHistory      []slide.AcceptedEntry `json:"slide_history_context,omitempty"`
	UploadedSlides    []slide.Slide         `json:"uploaded_slides_context,omitempty"`
	AudienceContext   []slide.Slide         `json:"audience_context,omitempty"`
}

type followupResponse struct {
	Followups []slide.Content `json:"followups"`
}

// FollowupClient defines a pluggable exploratory/follow-up backend.
type FollowupClient interface {
	Followups(ctx context.Context, req FollowupRequest) ([]slide.Content, error)
}

// GenerateRequest renders one slide with the session's visual style.
type GenerateRequest struct {
	Content         slide.Content         `json:"slide_content"`
	StyleReferences []slide.AcceptedEntry `json:"style_references,omitempty"`
	SlideNumber     int64                 `json:"slide_number"`
}

// Generator defines a pluggable slide rendering backend.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (slide.Slide, error)
}

type httpFollowup struct {
	endpoint string
	client   *http.Client
}

func NewHTTPFollowup(endpoint string) FollowupClient {
	return &httpFollowup{endpoint: endpoint, client: &http.Client{Timeout: 45 * time.Second}}
}

func (f *httpFollowup) Followups(ctx context.Context, req FollowupRequest) ([]slide.Content, error) {
	var resp followupResponse
	if err := postJSON(ctx, f.client, f.endpoint, req, &resp); err != nil {
		return nil, err
	}
	return resp.Followups, nil
}

type httpGenerator struct {
	endpoint string
	client   *http.Client
}

func NewHTTPGenerator(endpoint string) Generator {
	return &httpGenerator{endpoint: endpoint, client: &http.Client{Timeout: 60 * time.Second}}
}

type generateResponse struct {
	Slide slide.Slide `json:"slide"`
}

func (g *httpGenerator) Generate(ctx context.Context, req GenerateRequest) (slide.Slide, error) {
	var resp generateResponse
	if err := postJSON(ctx, g.client, g.endpoint, req, &resp); err != nil {
		return slide.Slide{}, err
	}
	rendered := resp.Slide
	if rendered.ID == "" {
		rendered = slide.New(req.Content, slide.SourceExploratory)
		rendered.ImageURL = resp.Slide.ImageURL
		rendered.Background = resp.Slide.Background
	}
	return rendered, nil
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("service returned status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type mockFollowup struct{}

// NewMockFollowup suggests a single follow-up derived from the request
// context. Useful for development without the external service.
func NewMockFollowup() FollowupClient { return &mockFollowup{} }

func (m *mockFollowup) Followups(ctx context.Context, req FollowupRequest) ([]slide.Content, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(15 * time.Millisecond):
	}
	headline := "Where this could go next"
	if req.Prompt != "" {
		headline = req.Prompt
	} else if len(req.SlideHistory) > 0 {
		headline = "Building on: " + req.SlideHistory[len(req.SlideHistory)-1].Headline
	}
	return []slide.Content{{
		Headline:          headline,
		VisualDescription: "a concept sketch of " + headline,
		Category:          "exploratory",
	}}, nil
}

type mockGenerator struct{}

// NewMockGenerator renders slides without calling out.
func NewMockGenerator() Generator { return &mockGenerator{} }

func (m *mockGenerator) Generate(ctx context.Context, req GenerateRequest) (slide.Slide, error) {
	select {
	case <-ctx.Done():
		return slide.Slide{}, ctx.Err()
	case <-time.After(15 * time.Millisecond):
	}
	s := slide.New(req.Content, slide.SourceExploratory)
	s.ImageURL = fmt.Sprintf("mock://slide/%d", req.SlideNumber)
	return s, nil
}
