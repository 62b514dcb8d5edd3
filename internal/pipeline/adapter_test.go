package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/podiumlabs/podium-core/internal/channel"
	"github.com/podiumlabs/podium-core/internal/curator"
	"github.com/podiumlabs/podium-core/internal/ledger"
	"github.com/podiumlabs/podium-core/internal/scheduler"
	"github.com/podiumlabs/podium-core/internal/slide"
	"github.com/podiumlabs/podium-core/internal/transcript"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeFollowup struct {
	contents []slide.Content
	err      error
	lastReq  FollowupRequest
}

func (f *fakeFollowup) Followups(_ context.Context, req FollowupRequest) ([]slide.Content, error) {
	f.lastReq = req
	return f.contents, f.err
}

type fakeGenerator struct {
	err     error
	lastReq GenerateRequest
	calls   int
}

func (g *fakeGenerator) Generate(_ context.Context, req GenerateRequest) (slide.Slide, error) {
	g.calls++
	g.lastReq = req
	if g.err != nil {
		return slide.Slide{}, g.err
	}
	return slide.New(req.Content, slide.SourceExploratory), nil
}

type testRig struct {
	adapter   *Adapter
	store     *channel.Store
	ledger    *ledger.Ledger
	followup  *fakeFollowup
	generator *fakeGenerator
	counter   *slide.Counter
	acc       *transcript.Accumulator
}

func newRig(fallback bool, placer curator.Placer) *testRig {
	r := &testRig{
		store:     channel.NewStore(10),
		ledger:    ledger.New(),
		followup:  &fakeFollowup{},
		generator: &fakeGenerator{},
		counter:   &slide.Counter{},
		acc:       transcript.NewAccumulator(),
	}
	r.adapter = New(Options{
		Followup:        r.followup,
		Generator:       r.generator,
		Placer:          placer,
		Store:           r.store,
		Ledger:          r.ledger,
		Counter:         r.counter,
		Accumulator:     r.acc,
		FallbackOnEmpty: fallback,
		Logger:          testLogger(),
	})
	return r
}

func TestDispatchRendersOneSlidePerCall(t *testing.T) {
	r := newRig(true, nil)
	r.followup.contents = []slide.Content{
		{Headline: "first suggestion"},
		{Headline: "second suggestion"},
	}

	err := r.adapter.DispatchExploratory(context.Background(), scheduler.Batch{
		Prompts: []scheduler.PromptEntry{{Prompt: "explain the risks"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	info := r.store.Info(channel.Exploratory)
	if info.Total != 1 {
		t.Fatalf("expected exactly one slide per dispatch, got %d", info.Total)
	}
	cur, _ := r.store.Current(channel.Exploratory)
	if cur.Headline != "first suggestion" {
		t.Fatalf("expected the first follow-up rendered, got %q", cur.Headline)
	}
	if r.generator.lastReq.SlideNumber != 1 {
		t.Fatalf("expected slide number stamped, got %d", r.generator.lastReq.SlideNumber)
	}
}

func TestDispatchMergesContext(t *testing.T) {
	r := newRig(true, nil)
	r.followup.contents = []slide.Content{{Headline: "s"}}
	r.acc.Append("still talking about the roadmap")
	for _, h := range []string{"a", "b", "c", "d"} {
		r.ledger.Append(slide.New(slide.Content{Headline: h}, slide.SourceExploratory))
	}
	current := slide.New(slide.Content{Headline: "showing"}, slide.SourceExploratory)

	batch := scheduler.Batch{
		Questions: []slide.Slide{
			slide.New(slide.Content{Headline: "q1"}, slide.SourceAudience),
			slide.New(slide.Content{Headline: "q2"}, slide.SourceAudience),
			slide.New(slide.Content{Headline: "q3"}, slide.SourceAudience),
			slide.New(slide.Content{Headline: "q4"}, slide.SourceAudience),
		},
		Prompts: []scheduler.PromptEntry{
			{Prompt: "older prompt"},
			{Prompt: "newest prompt", CurrentSlide: &current},
		},
	}
	if err := r.adapter.DispatchExploratory(context.Background(), batch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := r.followup.lastReq
	if req.Prompt != "newest prompt" || req.CurrentSlide == nil || req.CurrentSlide.ID != current.ID {
		t.Fatalf("expected the most recent explicit prompt to win, got %+v", req)
	}
	if len(req.SlideHistory) != 3 || req.SlideHistory[2].Headline != "d" {
		t.Fatalf("expected last 3 accepted slides, got %+v", req.SlideHistory)
	}
	if len(req.AudienceContext) != 3 || req.AudienceContext[2].Headline != "q4" {
		t.Fatalf("expected last 3 questions, got %d", len(req.AudienceContext))
	}
	if req.TranscriptContext != "still talking about the roadmap" {
		t.Fatalf("expected accumulated transcript attached, got %q", req.TranscriptContext)
	}
}

func TestDispatchFallbackOnEmptyResult(t *testing.T) {
	r := newRig(true, nil)
	r.followup.contents = nil

	err := r.adapter.DispatchExploratory(context.Background(), scheduler.Batch{
		Prompts: []scheduler.PromptEntry{{Prompt: "explain the risks"}},
	})
	if err != nil {
		t.Fatalf("fallback path should not error: %v", err)
	}
	cur, ok := r.store.Current(channel.Exploratory)
	if !ok || cur.Headline != "explain the risks" {
		t.Fatalf("expected synthesized fallback slide, got %+v ok=%v", cur, ok)
	}
}

func TestDispatchEmptyResultSurfacesWhenFallbackDisabled(t *testing.T) {
	r := newRig(false, nil)
	r.followup.contents = nil

	err := r.adapter.DispatchExploratory(context.Background(), scheduler.Batch{})
	if !errors.Is(err, ErrNoFollowups) {
		t.Fatalf("expected ErrNoFollowups, got %v", err)
	}
	if info := r.store.Info(channel.Exploratory); info.Total != 0 {
		t.Fatalf("nothing may be written on failure, got %d slides", info.Total)
	}
}

func TestDispatchGeneratorFailureWritesNothing(t *testing.T) {
	r := newRig(true, nil)
	r.followup.contents = []slide.Content{{Headline: "s"}}
	r.generator.err = errors.New("render failed")

	if err := r.adapter.DispatchExploratory(context.Background(), scheduler.Batch{}); err == nil {
		t.Fatal("expected error from generator failure")
	}
	if info := r.store.Info(channel.Exploratory); info.Total != 0 {
		t.Fatalf("partial write after generator failure: %d slides", info.Total)
	}
}

func TestGenerateFromIdeaAttachesStyleReferences(t *testing.T) {
	r := newRig(true, nil)
	for _, h := range []string{"first", "second", "third"} {
		r.ledger.Append(slide.New(slide.Content{Headline: h}, slide.SourceExploratory))
	}

	err := r.adapter.GenerateFromIdea(context.Background(), slide.Content{Headline: "from narration"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	refs := r.generator.lastReq.StyleReferences
	if len(refs) != 2 || refs[0].Headline != "first" || refs[1].Headline != "second" {
		t.Fatalf("expected the first two accepted slides as style references, got %+v", refs)
	}
	if info := r.store.Info(channel.Exploratory); info.Total != 1 {
		t.Fatalf("expected slide appended, got %d", info.Total)
	}
}

type scriptedPlacer struct {
	verdict curator.Verdict
	lastReq curator.Request
}

func (p *scriptedPlacer) Decide(_ context.Context, req curator.Request) (curator.Verdict, error) {
	p.lastReq = req
	return p.verdict, nil
}

func TestCuratorReplacesSlot(t *testing.T) {
	placer := &scriptedPlacer{verdict: curator.Verdict{Action: curator.ReplaceSlot1}}
	r := newRig(true, placer)
	r.followup.contents = []slide.Content{{Headline: "newcomer"}}

	old1 := slide.New(slide.Content{Headline: "old1"}, slide.SourceExploratory)
	old2 := slide.New(slide.Content{Headline: "old2"}, slide.SourceExploratory)
	r.store.Append(channel.Exploratory, old1)
	r.store.Append(channel.Exploratory, old2)

	if err := r.adapter.DispatchExploratory(context.Background(), scheduler.Batch{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snapshot := r.store.Snapshot(channel.Exploratory)
	if len(snapshot) != 2 {
		t.Fatalf("expected replacement not growth, got %d slides", len(snapshot))
	}
	if snapshot[0].ID != old2.ID || snapshot[1].Headline != "newcomer" {
		t.Fatalf("expected slot 1 replaced, got %v", []string{snapshot[0].Headline, snapshot[1].Headline})
	}
}

func TestCuratorDiscard(t *testing.T) {
	placer := &scriptedPlacer{verdict: curator.Verdict{Action: curator.Discard, Reasoning: "redundant"}}
	r := newRig(true, placer)
	r.followup.contents = []slide.Content{{Headline: "redundant idea"}}

	r.store.Append(channel.Exploratory, slide.New(slide.Content{Headline: "a"}, slide.SourceExploratory))
	r.store.Append(channel.Exploratory, slide.New(slide.Content{Headline: "b"}, slide.SourceExploratory))

	if err := r.adapter.DispatchExploratory(context.Background(), scheduler.Batch{}); err != nil {
		t.Fatalf("discard is not an error: %v", err)
	}
	if info := r.store.Info(channel.Exploratory); info.Total != 2 {
		t.Fatalf("expected discarded slide not appended, got %d", info.Total)
	}
}
