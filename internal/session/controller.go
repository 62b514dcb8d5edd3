package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/podiumlabs/podium-core/internal/channel"
	"github.com/podiumlabs/podium-core/internal/config"
	"github.com/podiumlabs/podium-core/internal/eventstore"
	"github.com/podiumlabs/podium-core/internal/gate"
	"github.com/podiumlabs/podium-core/internal/ledger"
	"github.com/podiumlabs/podium-core/internal/pipeline"
	"github.com/podiumlabs/podium-core/internal/scheduler"
	"github.com/podiumlabs/podium-core/internal/slide"
	"github.com/podiumlabs/podium-core/internal/transcript"
)

// ErrNoActiveSession is returned for presenter actions outside a recording
// session.
var ErrNoActiveSession = errors.New("no active session")

// Status is the surface-facing snapshot of the session.
type Status struct {
	SessionID        string `json:"session_id,omitempty"`
	Recording        bool   `json:"recording"`
	Processing       bool   `json:"processing"`
	GateStatus       string `json:"gate_status"`
	GateReason       string `json:"gate_reason,omitempty"`
	GenerationPaused bool   `json:"generation_paused"`
	SlideCounter     int64  `json:"slide_counter"`
	LiveTranscript   string `json:"live_transcript,omitempty"`
	PendingAccepted  int    `json:"pending_accepted"`
	PendingQuestions int    `json:"pending_questions"`
	PendingPrompts   int    `json:"pending_prompts"`
}

// Components are the subsystems the controller owns the lifecycle of.
type Components struct {
	Store       *channel.Store
	Ledger      *ledger.Ledger
	Accumulator *transcript.Accumulator
	Engine      *gate.Engine
	Scheduler   *scheduler.Scheduler
	Adapter     *pipeline.Adapter
	Timeline    *eventstore.Store
	Counter     *slide.Counter
}

// Controller runs the start/stop/pause/resume lifecycle of one recording
// session and routes speech segments and presenter actions into the
// orchestration subsystems. Stop resets every subsystem as one unit; a
// partial reset is a bug.
type Controller struct {
	cfg    config.Config
	logger *slog.Logger
	ctx    context.Context

	store    *channel.Store
	ledger   *ledger.Ledger
	acc      *transcript.Accumulator
	engine   *gate.Engine
	sched    *scheduler.Scheduler
	adapter  *pipeline.Adapter
	timeline *eventstore.Store
	counter  *slide.Counter

	mu          sync.Mutex
	recording   bool
	paused      bool
	sessionID   string
	lastInterim string

	// onGate is invoked after every finished gate evaluation, for metrics.
	// Optional.
	onGate func(gate.Outcome)
}

// OnGateOutcome registers a hook fired after every gate decision.
func (c *Controller) OnGateOutcome(fn func(gate.Outcome)) {
	c.onGate = fn
}

func NewController(parent context.Context, cfg config.Config, c Components, logger *slog.Logger) *Controller {
	return &Controller{
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "session")),
		ctx:      parent,
		store:    c.Store,
		ledger:   c.Ledger,
		acc:      c.Accumulator,
		engine:   c.Engine,
		sched:    c.Scheduler,
		adapter:  c.Adapter,
		timeline: c.Timeline,
		counter:  c.Counter,
	}
}

// Start opens a new recording session.
func (c *Controller) Start(token string) (string, error) {
	c.mu.Lock()
	if c.recording {
		id := c.sessionID
		c.mu.Unlock()
		return id, errors.New("session already active")
	}
	c.recording = true
	c.sessionID = uuid.NewString()
	id := c.sessionID
	c.mu.Unlock()

	if err := c.timeline.BeginSession(c.ctx, id, token); err != nil {
		c.logger.Warn("failed to persist session row", slogError(err))
	}
	c.record(id, eventstore.TypeSessionStarted, nil)
	c.logger.Info("session started", slog.String("session_id", id))
	return id, nil
}

// Stop tears the session down and returns every subsystem to its initial
// state: channels, ledger, style references, pending triggers, debounce
// timer, transcript buffer, slide counter and the paused flag.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return
	}
	id := c.sessionID
	c.recording = false
	c.paused = false
	c.sessionID = ""
	c.lastInterim = ""
	c.mu.Unlock()

	c.sched.Reset()
	c.acc.Clear()
	c.store.ResetAll()
	c.ledger.Reset()
	c.counter.Reset()
	c.engine.Reset()

	c.record(id, eventstore.TypeSessionStopped, nil)
	c.logger.Info("session stopped", slog.String("session_id", id))
}

// Pause suspends generation. Speech keeps accumulating and triggers keep
// being recorded; nothing is dispatched until Resume.
func (c *Controller) Pause() {
	c.mu.Lock()
	if !c.recording || c.paused {
		c.mu.Unlock()
		return
	}
	c.paused = true
	id := c.sessionID
	c.mu.Unlock()

	c.sched.Pause()
	c.record(id, eventstore.TypeSessionPaused, nil)
}

// Resume lifts the pause. Transcript accumulated during the pause is
// handed to the scheduler as one prompt-shaped entry and anything pending
// dispatches immediately.
func (c *Controller) Resume() {
	c.mu.Lock()
	if !c.recording || !c.paused {
		c.mu.Unlock()
		return
	}
	c.paused = false
	id := c.sessionID
	c.mu.Unlock()

	c.sched.Resume(c.acc.Drain())
	c.record(id, eventstore.TypeSessionResumed, nil)
}

// HandleSegment consumes one transcription event. Interim segments are
// kept only for live display; finalized ones feed the gate.
func (c *Controller) HandleSegment(text string, final bool) {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return
	}
	if !final {
		c.lastInterim = text
		c.mu.Unlock()
		return
	}
	c.lastInterim = ""
	paused := c.paused
	c.mu.Unlock()

	switch c.cfg.Transcript.Mode {
	case "streaming":
		// Each sufficiently long finalized segment is a complete idea on
		// its own; no accumulation.
		segment := strings.TrimSpace(text)
		if len(segment) < c.cfg.Transcript.StreamingMinChars || paused {
			return
		}
		c.evaluate(segment)
	default:
		if !c.acc.Append(text) || paused {
			return
		}
		threshold := c.cfg.Transcript.NextSlideMinChars
		if len(c.engine.PriorIdeas()) == 0 {
			threshold = c.cfg.Transcript.FirstSlideMinChars
		}
		if c.acc.Len() <= threshold {
			return
		}
		c.evaluate(c.acc.Snapshot())
	}
}

func (c *Controller) evaluate(text string) {
	isFirst := len(c.engine.PriorIdeas()) == 0
	c.engine.Evaluate(c.ctx, text, c.ledger.Accepted(), isFirst, c.onGateOutcome)
}

func (c *Controller) onGateOutcome(o gate.Outcome) {
	if c.onGate != nil {
		c.onGate(o)
	}
	c.mu.Lock()
	id := c.sessionID
	c.mu.Unlock()
	c.record(id, eventstore.TypeGateDecision, map[string]string{
		"status": string(o.Status),
		"reason": o.Reason,
	})

	if o.Status != gate.StatusAccepted || o.Content == nil {
		return
	}
	// Accepted narration is consumed; failed or rejected calls leave the
	// buffer so the next segment retries with more content.
	c.acc.Clear()
	if err := c.adapter.GenerateFromIdea(c.ctx, *o.Content); err != nil {
		c.logger.Warn("generation from narration failed", slogError(err))
		return
	}
	c.record(id, eventstore.TypeSlideGenerated, map[string]string{"headline": o.Content.Headline})
}

// AcceptSlide commits a slide to the presentation: it enters the ledger
// (and, early in the session, the style references) and becomes a
// follow-up trigger.
func (c *Controller) AcceptSlide(s slide.Slide) error {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	id := c.sessionID
	c.mu.Unlock()

	c.ledger.Append(s)
	c.sched.EnqueueAccepted(s)
	c.record(id, eventstore.TypeSlideAccepted, slide.Project(s))
	return nil
}

// AnswerQuestion marks an audience question as answered, turning it into
// a passive follow-up trigger.
func (c *Controller) AnswerQuestion(s slide.Slide) error {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	c.mu.Unlock()

	c.sched.EnqueueQuestion(s)
	return nil
}

// SubmitPrompt records a presenter-typed prompt. Prompts force an
// immediate dispatch unless generation is paused.
func (c *Controller) SubmitPrompt(prompt string, current *slide.Slide) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return errors.New("empty prompt")
	}
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	c.mu.Unlock()

	c.sched.EnqueuePrompt(scheduler.PromptEntry{Prompt: prompt, CurrentSlide: current})
	return nil
}

// IngestExternal routes boundary-produced slides (triaged audience
// questions, extracted deck pages) into their channel.
func (c *Controller) IngestExternal(kind channel.Kind, s slide.Slide) {
	c.mu.Lock()
	recording := c.recording
	c.mu.Unlock()
	if !recording {
		return
	}
	c.adapter.AppendExternal(kind, s)
}

// Status snapshots the session for the presentation surface.
func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{
		SessionID:        c.sessionID,
		Recording:        c.recording,
		GenerationPaused: c.paused,
		LiveTranscript:   c.lastInterim,
	}
	c.mu.Unlock()

	st.Processing = c.engine.Evaluating()
	gateStatus, reason := c.engine.Status()
	st.GateStatus = string(gateStatus)
	st.GateReason = reason
	st.SlideCounter = c.counter.Value()
	pending := c.sched.Pending()
	st.PendingAccepted = len(pending.Accepted)
	st.PendingQuestions = len(pending.Questions)
	st.PendingPrompts = len(pending.Prompts)
	return st
}

// Wait blocks until in-flight gate and dispatch work has drained.
func (c *Controller) Wait() {
	c.engine.Wait()
	c.sched.Wait()
}

func (c *Controller) record(sessionID, eventType string, payload any) {
	if sessionID == "" {
		return
	}
	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			c.logger.Warn("failed to marshal timeline payload", slogError(err))
		}
	}
	if err := c.timeline.Append(c.ctx, eventstore.Event{SessionID: sessionID, Type: eventType, Payload: data}); err != nil {
		c.logger.Warn("failed to append timeline event", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
