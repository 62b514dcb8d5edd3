package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/podiumlabs/podium-core/internal/slide"
)

// PromptEntry is a presenter-typed prompt together with the slide that was
// showing when it was typed.
type PromptEntry struct {
	Prompt       string       `json:"prompt"`
	CurrentSlide *slide.Slide `json:"current_slide,omitempty"`
}

// Batch is the not-yet-dispatched accumulation of trigger inputs. It is
// only ever replaced whole, never mutated in place while visible to a
// dispatch, which is what makes capture and rollback safe.
type Batch struct {
	Accepted  []slide.Slide
	Questions []slide.Slide
	Prompts   []PromptEntry
}

// Empty reports whether the batch carries no trigger at all.
func (b Batch) Empty() bool {
	return len(b.Accepted) == 0 && len(b.Questions) == 0 && len(b.Prompts) == 0
}

// mergeFront restores a failed batch ahead of whatever accumulated while
// the call was out, preserving original order.
func mergeFront(failed, current Batch) Batch {
	return Batch{
		Accepted:  append(append([]slide.Slide(nil), failed.Accepted...), current.Accepted...),
		Questions: append(append([]slide.Slide(nil), failed.Questions...), current.Questions...),
		Prompts:   append(append([]PromptEntry(nil), failed.Prompts...), current.Prompts...),
	}
}

// Dispatcher receives a coalesced batch. Implemented by the generation
// pipeline adapter.
type Dispatcher interface {
	DispatchExploratory(ctx context.Context, batch Batch) error
}

// Scheduler coalesces bursts of follow-up triggers into a single
// time-debounced dispatch. Passive triggers (accepted slides, answered
// audience questions) ride the debounce; presenter prompts force an
// immediate dispatch because the presenter is actively waiting.
//
// On failure the captured batch is merged back in front of anything that
// arrived during the call and the dispatch timestamp does not advance, so
// a failed batch is retried on the next trigger instead of silently
// dropped.
type Scheduler struct {
	dispatcher Dispatcher
	logger     *slog.Logger
	interval   time.Duration
	ctx        context.Context

	mu           sync.Mutex
	pending      Batch
	lastDispatch time.Time
	timer        *time.Timer
	paused       bool
	dispatching  bool
	forceQueued  bool
	now          func() time.Time

	wg sync.WaitGroup
}

func New(parent context.Context, dispatcher Dispatcher, interval time.Duration, logger *slog.Logger) *Scheduler {
	s := &Scheduler{
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("component", "scheduler")),
		interval:   interval,
		ctx:        parent,
		now:        time.Now,
	}
	s.lastDispatch = s.now()
	return s
}

// EnqueueAccepted records a presenter-accepted slide as a follow-up trigger.
func (s *Scheduler) EnqueueAccepted(sl slide.Slide) {
	s.mu.Lock()
	s.pending.Accepted = append(s.pending.Accepted, sl)
	s.mu.Unlock()
	s.RequestDispatch(false)
}

// EnqueueQuestion records an answered audience question as a trigger.
func (s *Scheduler) EnqueueQuestion(sl slide.Slide) {
	s.mu.Lock()
	s.pending.Questions = append(s.pending.Questions, sl)
	s.mu.Unlock()
	s.RequestDispatch(false)
}

// EnqueuePrompt records a presenter-typed prompt and dispatches now.
func (s *Scheduler) EnqueuePrompt(entry PromptEntry) {
	s.mu.Lock()
	s.pending.Prompts = append(s.pending.Prompts, entry)
	s.mu.Unlock()
	s.RequestDispatch(true)
}

// RequestDispatch either fires immediately, defers to a single coalescing
// timer, or no-ops when there is nothing pending or generation is paused.
func (s *Scheduler) RequestDispatch(force bool) {
	s.mu.Lock()
	if s.paused || s.pending.Empty() {
		s.mu.Unlock()
		return
	}
	if s.dispatching {
		// A call is already out; its completion re-runs the decision with
		// whatever accumulated meanwhile.
		if force {
			s.forceQueued = true
		}
		s.mu.Unlock()
		return
	}
	elapsed := s.now().Sub(s.lastDispatch)
	if !force && elapsed < s.interval {
		remaining := s.interval - elapsed
		if s.timer != nil {
			s.timer.Stop()
		}
		s.timer = time.AfterFunc(remaining, func() { s.RequestDispatch(false) })
		s.mu.Unlock()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	captured := s.pending
	s.pending = Batch{}
	s.dispatching = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.dispatch(captured)
}

func (s *Scheduler) dispatch(captured Batch) {
	defer s.wg.Done()
	ctx, cancel := context.WithTimeout(s.ctx, 60*time.Second)
	defer cancel()

	err := s.dispatcher.DispatchExploratory(ctx, captured)

	s.mu.Lock()
	s.dispatching = false
	force := s.forceQueued
	s.forceQueued = false
	if err != nil {
		s.pending = mergeFront(captured, s.pending)
		s.logger.Warn("exploratory dispatch failed, batch restored",
			slog.String("error", err.Error()),
			slog.Int("accepted", len(captured.Accepted)),
			slog.Int("questions", len(captured.Questions)),
			slog.Int("prompts", len(captured.Prompts)))
		s.mu.Unlock()
		// The restored batch rides along on the next trigger. Only a prompt
		// that arrived during the failed call warrants one immediate retry;
		// anything else waiting here would hot-loop against a down service.
		if force {
			s.RequestDispatch(true)
		}
		return
	}
	s.lastDispatch = s.now()
	s.mu.Unlock()

	// Re-run the decision for anything that arrived during the call.
	s.RequestDispatch(force)
}

// Pause cancels any pending timer. Triggers keep accumulating silently
// until Resume.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Resume lifts the pause. A transcript left accumulated from before the
// pause is folded in as one more prompt-shaped entry, then anything
// pending is dispatched immediately.
func (s *Scheduler) Resume(leftoverTranscript string) {
	s.mu.Lock()
	s.paused = false
	if leftoverTranscript != "" {
		s.pending.Prompts = append(s.pending.Prompts, PromptEntry{Prompt: leftoverTranscript})
	}
	hasPending := !s.pending.Empty()
	s.mu.Unlock()
	if hasPending {
		s.RequestDispatch(true)
	}
}

// Paused reports whether dispatching is suspended.
func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Pending returns a copy of the not-yet-dispatched batch.
func (s *Scheduler) Pending() Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Batch{
		Accepted:  append([]slide.Slide(nil), s.pending.Accepted...),
		Questions: append([]slide.Slide(nil), s.pending.Questions...),
		Prompts:   append([]PromptEntry(nil), s.pending.Prompts...),
	}
}

// Reset discards pending context, cancels the timer, rewinds the dispatch
// timestamp and clears the paused flag. Part of the session stop unit.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = Batch{}
	s.lastDispatch = s.now()
	s.paused = false
	s.forceQueued = false
}

// Wait blocks until in-flight dispatches have completed.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
