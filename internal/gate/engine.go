package gate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/podiumlabs/podium-core/internal/slide"
)

// Status of the last or current gate evaluation.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusEvaluating Status = "evaluating"
	StatusAccepted   Status = "accepted"
	StatusRejected   Status = "rejected"
	StatusError      Status = "error"
)

// Outcome reports a finished evaluation to the caller.
type Outcome struct {
	Status  Status
	Content *slide.Content
	Reason  string
}

// Engine decides whether accumulated narration is slide-worthy by
// delegating to a Decider. At most one evaluation is in flight; a
// concurrent request is dropped, not queued, so the freshest transcript
// always wins over ordering fidelity. A transcript identical to the last
// one evaluated is also dropped to avoid redundant round-trips while the
// buffer has not grown.
type Engine struct {
	decider Decider
	logger  *slog.Logger

	mu             sync.Mutex
	inFlight       bool
	lastTranscript string
	priorIdeas     []slide.IdeaSeed
	status         Status
	reason         string

	wg sync.WaitGroup
}

func NewEngine(decider Decider, logger *slog.Logger) *Engine {
	return &Engine{
		decider: decider,
		logger:  logger.With(slog.String("component", "gate")),
		status:  StatusIdle,
	}
}

// Evaluate starts an asynchronous gate decision and reports the outcome
// through done. It returns false when the request was dropped by the
// in-flight or duplicate-transcript guard.
func (e *Engine) Evaluate(ctx context.Context, transcript string, accepted []slide.AcceptedEntry, isFirst bool, done func(Outcome)) bool {
	e.mu.Lock()
	if e.inFlight || transcript == "" || transcript == e.lastTranscript {
		e.mu.Unlock()
		return false
	}
	e.inFlight = true
	e.lastTranscript = transcript
	e.status = StatusEvaluating
	e.reason = ""
	req := Request{
		Transcript:     transcript,
		PriorIdeas:     append([]slide.IdeaSeed(nil), e.priorIdeas...),
		AcceptedSlides: accepted,
		IsFirstSlide:   isFirst,
	}
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		callCtx, cancel := context.WithTimeout(ctx, 45*time.Second)
		defer cancel()

		decision, err := e.decider.Evaluate(callCtx, req)

		e.mu.Lock()
		e.inFlight = false
		var outcome Outcome
		switch {
		case err != nil:
			// Leave the transcript untouched upstream so the content is
			// retried on the next segment.
			e.status = StatusError
			e.reason = ""
			outcome = Outcome{Status: StatusError}
			e.logger.Warn("gate evaluation failed", slog.String("error", err.Error()))
		case decision.ShouldCreateSlide && decision.Content != nil:
			e.status = StatusAccepted
			e.priorIdeas = append(e.priorIdeas, slide.IdeaSeed{
				Title:    decision.Content.Headline,
				Content:  decision.Content.VisualDescription,
				Category: decision.Content.Category,
			})
			outcome = Outcome{Status: StatusAccepted, Content: decision.Content}
			e.logger.Info("gate accepted idea", slog.String("headline", decision.Content.Headline))
		default:
			e.status = StatusRejected
			e.reason = decision.Reason
			outcome = Outcome{Status: StatusRejected, Reason: decision.Reason}
		}
		e.mu.Unlock()

		done(outcome)
	}()
	return true
}

// Status returns the current evaluation state and the most recent
// rejection reason for UI display.
func (e *Engine) Status() (Status, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status, e.reason
}

// Evaluating reports whether a decision call is in flight.
func (e *Engine) Evaluating() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight
}

// PriorIdeas returns the ideas accepted so far this session.
func (e *Engine) PriorIdeas() []slide.IdeaSeed {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]slide.IdeaSeed(nil), e.priorIdeas...)
}

// Reset clears decision history for a new session. In-flight calls are
// allowed to finish; their results land on a cleared engine as a fresh
// first decision would.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastTranscript = ""
	e.priorIdeas = nil
	e.status = StatusIdle
	e.reason = ""
}

// Wait blocks until any in-flight evaluation has completed.
func (e *Engine) Wait() {
	e.wg.Wait()
}
