package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/podiumlabs/podium-core/internal/slide"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recordingDispatcher struct {
	mu      sync.Mutex
	batches []Batch
	err     error
	fired   chan struct{}
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{fired: make(chan struct{}, 16)}
}

func (d *recordingDispatcher) DispatchExploratory(_ context.Context, batch Batch) error {
	d.mu.Lock()
	err := d.err
	if err == nil {
		d.batches = append(d.batches, batch)
	}
	d.mu.Unlock()
	d.fired <- struct{}{}
	return err
}

func (d *recordingDispatcher) setErr(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func (d *recordingDispatcher) dispatches() []Batch {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Batch(nil), d.batches...)
}

func waitFired(t *testing.T, d *recordingDispatcher) {
	t.Helper()
	select {
	case <-d.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
	}
}

func makeSlide(headline string) slide.Slide {
	return slide.New(slide.Content{Headline: headline}, slide.SourceExploratory)
}

func TestBurstCoalescesIntoSingleDispatch(t *testing.T) {
	d := newRecordingDispatcher()
	s := New(context.Background(), d, 80*time.Millisecond, testLogger())

	s.EnqueueAccepted(makeSlide("one"))
	s.EnqueueAccepted(makeSlide("two"))
	s.EnqueueAccepted(makeSlide("three"))

	waitFired(t, d)
	s.Wait()

	got := d.dispatches()
	if len(got) != 1 {
		t.Fatalf("expected exactly one dispatch for a burst, got %d", len(got))
	}
	if len(got[0].Accepted) != 3 {
		t.Fatalf("expected union of all three slides, got %d", len(got[0].Accepted))
	}
	if !s.Pending().Empty() {
		t.Fatalf("pending batch should be empty after dispatch: %+v", s.Pending())
	}
}

func TestPromptForcesImmediateDispatch(t *testing.T) {
	d := newRecordingDispatcher()
	s := New(context.Background(), d, time.Hour, testLogger())

	s.EnqueuePrompt(PromptEntry{Prompt: "explain the risks"})
	waitFired(t, d)
	s.Wait()

	got := d.dispatches()
	if len(got) != 1 || len(got[0].Prompts) != 1 || got[0].Prompts[0].Prompt != "explain the risks" {
		t.Fatalf("expected one forced dispatch carrying the prompt, got %+v", got)
	}
}

func TestPromptSweepsUpPassiveTriggers(t *testing.T) {
	d := newRecordingDispatcher()
	s := New(context.Background(), d, time.Hour, testLogger())

	s.EnqueueAccepted(makeSlide("background"))
	s.EnqueueQuestion(makeSlide("what about pricing"))
	s.EnqueuePrompt(PromptEntry{Prompt: "go deeper"})
	waitFired(t, d)
	s.Wait()

	got := d.dispatches()
	if len(got) != 1 {
		t.Fatalf("expected a single merged dispatch, got %d", len(got))
	}
	b := got[0]
	if len(b.Accepted) != 1 || len(b.Questions) != 1 || len(b.Prompts) != 1 {
		t.Fatalf("expected merged context, got %+v", b)
	}
}

func TestFailedDispatchIsRetriedWithSupersetContext(t *testing.T) {
	d := newRecordingDispatcher()
	s := New(context.Background(), d, time.Hour, testLogger())

	d.setErr(errors.New("service down"))
	first := makeSlide("lost?")
	s.mu.Lock()
	s.pending.Accepted = append(s.pending.Accepted, first)
	s.mu.Unlock()
	s.RequestDispatch(true)
	waitFired(t, d)
	s.Wait()

	if p := s.Pending(); len(p.Accepted) != 1 || p.Accepted[0].ID != first.ID {
		t.Fatalf("failed batch should be restored to pending, got %+v", p)
	}

	d.setErr(nil)
	second := makeSlide("new trigger")
	s.mu.Lock()
	s.pending.Accepted = append(s.pending.Accepted, second)
	s.mu.Unlock()
	s.RequestDispatch(true)
	waitFired(t, d)
	s.Wait()

	got := d.dispatches()
	if len(got) != 1 {
		t.Fatalf("expected one successful dispatch, got %d", len(got))
	}
	b := got[0]
	if len(b.Accepted) != 2 || b.Accepted[0].ID != first.ID || b.Accepted[1].ID != second.ID {
		t.Fatalf("retry context must be a superset of the failed batch, in order: %+v", b.Accepted)
	}
}

func TestFailedDispatchWaitsForNextTrigger(t *testing.T) {
	d := newRecordingDispatcher()
	d.setErr(errors.New("service down"))
	s := New(context.Background(), d, 30*time.Millisecond, testLogger())

	time.Sleep(40 * time.Millisecond)
	s.EnqueueAccepted(makeSlide("first"))
	waitFired(t, d)

	// The restored batch must sit until a new trigger arrives, not spin
	// against the failing service.
	select {
	case <-d.fired:
		t.Fatal("failed batch must not be retried without a new trigger")
	case <-time.After(150 * time.Millisecond):
	}

	d.setErr(nil)
	s.EnqueueAccepted(makeSlide("second"))
	waitFired(t, d)
	s.Wait()

	got := d.dispatches()
	if len(got) != 1 {
		t.Fatalf("expected one successful dispatch, got %d", len(got))
	}
	if len(got[0].Accepted) != 2 {
		t.Fatalf("retry must carry the restored batch plus the new trigger, got %+v", got[0].Accepted)
	}
}

func TestPromptDuringFailedDispatchRetriesOnce(t *testing.T) {
	d := newRecordingDispatcher()
	d.setErr(errors.New("service down"))
	s := New(context.Background(), d, time.Hour, testLogger())

	s.EnqueuePrompt(PromptEntry{Prompt: "first"})
	waitFired(t, d)

	// A second prompt is a new trigger and earns exactly one retry
	// carrying both prompts.
	s.Wait()
	s.EnqueuePrompt(PromptEntry{Prompt: "second"})
	waitFired(t, d)
	s.Wait()

	select {
	case <-d.fired:
		t.Fatal("no further retry without another trigger")
	case <-time.After(100 * time.Millisecond):
	}
	if p := s.Pending(); len(p.Prompts) != 2 {
		t.Fatalf("both prompts must be restored to pending, got %+v", p)
	}
}

func TestEventsDuringDispatchAreDeferredNotLost(t *testing.T) {
	block := make(chan struct{})
	d := newRecordingDispatcher()
	blocking := &blockingDispatcher{inner: d, release: block, entered: make(chan struct{})}
	s := New(context.Background(), blocking, time.Hour, testLogger())

	s.EnqueuePrompt(PromptEntry{Prompt: "first"})
	<-blocking.entered

	// Arrives while the network call is out; must land in a fresh batch.
	s.EnqueuePrompt(PromptEntry{Prompt: "second"})
	close(block)

	waitFired(t, d)
	waitFired(t, d)
	s.Wait()

	got := d.dispatches()
	if len(got) != 2 {
		t.Fatalf("expected two dispatches, got %d", len(got))
	}
	if got[0].Prompts[0].Prompt != "first" || got[1].Prompts[0].Prompt != "second" {
		t.Fatalf("expected prompts split across dispatches, got %+v", got)
	}
}

type blockingDispatcher struct {
	inner   *recordingDispatcher
	release chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (b *blockingDispatcher) DispatchExploratory(ctx context.Context, batch Batch) error {
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return b.inner.DispatchExploratory(ctx, batch)
}

func TestPauseAccumulatesSilentlyAndResumeForcesDispatch(t *testing.T) {
	d := newRecordingDispatcher()
	s := New(context.Background(), d, time.Hour, testLogger())

	s.Pause()
	s.EnqueuePrompt(PromptEntry{Prompt: "explain the risks"})

	select {
	case <-d.fired:
		t.Fatal("no dispatch may occur while paused")
	case <-time.After(50 * time.Millisecond):
	}
	if p := s.Pending(); len(p.Prompts) != 1 {
		t.Fatalf("context must keep accumulating while paused, got %+v", p)
	}

	s.Resume("")
	waitFired(t, d)
	s.Wait()

	got := d.dispatches()
	if len(got) != 1 || got[0].Prompts[0].Prompt != "explain the risks" {
		t.Fatalf("resume should force exactly one dispatch with the recorded prompt, got %+v", got)
	}
}

func TestResumeFoldsLeftoverTranscript(t *testing.T) {
	d := newRecordingDispatcher()
	s := New(context.Background(), d, time.Hour, testLogger())

	s.Pause()
	s.Resume("we were in the middle of discussing margins")
	waitFired(t, d)
	s.Wait()

	got := d.dispatches()
	if len(got) != 1 || len(got[0].Prompts) != 1 {
		t.Fatalf("expected leftover transcript dispatched as a prompt, got %+v", got)
	}
	if got[0].Prompts[0].Prompt != "we were in the middle of discussing margins" {
		t.Fatalf("unexpected prompt: %q", got[0].Prompts[0].Prompt)
	}
}

func TestResumeWithNothingPendingIsQuiet(t *testing.T) {
	d := newRecordingDispatcher()
	s := New(context.Background(), d, time.Hour, testLogger())

	s.Pause()
	s.Resume("")
	select {
	case <-d.fired:
		t.Fatal("resume with no pending context must not dispatch")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestResetDiscardsPendingContext(t *testing.T) {
	d := newRecordingDispatcher()
	s := New(context.Background(), d, time.Hour, testLogger())

	s.Pause()
	s.EnqueueAccepted(makeSlide("stale"))
	s.Reset()

	if !s.Pending().Empty() {
		t.Fatal("reset must discard pending context")
	}
	if s.Paused() {
		t.Fatal("reset must clear the paused flag")
	}

	// Nothing left to flush.
	s.RequestDispatch(true)
	select {
	case <-d.fired:
		t.Fatal("no dispatch expected after reset")
	case <-time.After(50 * time.Millisecond):
	}
}
