package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/podiumlabs/podium-core/internal/channel"
	"github.com/podiumlabs/podium-core/internal/curator"
	"github.com/podiumlabs/podium-core/internal/ledger"
	"github.com/podiumlabs/podium-core/internal/scheduler"
	"github.com/podiumlabs/podium-core/internal/slide"
	"github.com/podiumlabs/podium-core/internal/transcript"
)

// contextWindow caps how much recent history rides along on a follow-up
// request.
const contextWindow = 3

// ErrNoFollowups is returned when the follow-up service produces nothing
// usable and local fallback synthesis is disabled.
var ErrNoFollowups = errors.New("follow-up service returned no usable slides")

// Adapter builds outbound generation requests and routes results into the
// channel store. Every other component writes through this seam. A dispatch
// either lands exactly one slide or nothing; there are no partial writes.
type Adapter struct {
	followup        FollowupClient
	generator       Generator
	placer          curator.Placer
	store           *channel.Store
	ledger          *ledger.Ledger
	counter         *slide.Counter
	accumulator     *transcript.Accumulator
	fallbackOnEmpty bool
	logger          *slog.Logger

	// onAppend is invoked after a slide lands in a channel, for broadcast
	// and metrics. Optional.
	onAppend func(kind channel.Kind, s slide.Slide)
}

type Options struct {
	Followup        FollowupClient
	Generator       Generator
	Placer          curator.Placer
	Store           *channel.Store
	Ledger          *ledger.Ledger
	Counter         *slide.Counter
	Accumulator     *transcript.Accumulator
	FallbackOnEmpty bool
	Logger          *slog.Logger
}

func New(opts Options) *Adapter {
	return &Adapter{
		followup:        opts.Followup,
		generator:       opts.Generator,
		placer:          opts.Placer,
		store:           opts.Store,
		ledger:          opts.Ledger,
		counter:         opts.Counter,
		accumulator:     opts.Accumulator,
		fallbackOnEmpty: opts.FallbackOnEmpty,
		logger:          opts.Logger.With(slog.String("component", "pipeline")),
	}
}

// OnAppend registers a hook fired after every channel append.
func (a *Adapter) OnAppend(fn func(kind channel.Kind, s slide.Slide)) {
	a.onAppend = fn
}

// GenerateFromIdea renders gate-accepted narration content into the
// exploratory channel.
func (a *Adapter) GenerateFromIdea(ctx context.Context, content slide.Content) error {
	req := GenerateRequest{
		Content:         content,
		StyleReferences: a.ledger.StyleReferences(),
		SlideNumber:     a.counter.Next(),
	}
	rendered, err := a.generator.Generate(ctx, req)
	if err != nil {
		return err
	}
	rendered.Source = slide.SourceExploratory
	a.append(channel.Exploratory, rendered)
	return nil
}

// DispatchExploratory implements scheduler.Dispatcher. It merges the batch
// into one follow-up request, renders at most one resulting slide and
// places it in the exploratory channel.
func (a *Adapter) DispatchExploratory(ctx context.Context, batch scheduler.Batch) error {
	req := a.buildFollowupRequest(batch)

	followups, err := a.followup.Followups(ctx, req)
	if err != nil {
		return err
	}

	var content slide.Content
	switch {
	case len(followups) > 0:
		// Cap follow-ups to one per dispatch to keep the channel from
		// flooding.
		content = followups[0]
	case a.fallbackOnEmpty:
		content = a.fallbackContent(req)
		a.logger.Warn("follow-up service returned nothing, synthesizing fallback",
			slog.String("headline", content.Headline))
	default:
		return ErrNoFollowups
	}

	rendered, err := a.generator.Generate(ctx, GenerateRequest{
		Content:         content,
		StyleReferences: a.ledger.StyleReferences(),
		SlideNumber:     a.counter.Next(),
	})
	if err != nil {
		return err
	}
	rendered.Source = slide.SourceExploratory

	a.place(ctx, rendered)
	return nil
}

func (a *Adapter) buildFollowupRequest(batch scheduler.Batch) FollowupRequest {
	req := FollowupRequest{
		TranscriptContext: a.accumulator.Snapshot(),
		SlideHistory:      a.ledger.Recent(contextWindow),
		UploadedSlides:    lastN(a.store.Snapshot(channel.Deck), contextWindow),
		AudienceContext:   lastN(batch.Questions, contextWindow),
	}
	if len(batch.Prompts) > 0 {
		// The presenter's most recent explicit intent wins.
		latest := batch.Prompts[len(batch.Prompts)-1]
		req.Prompt = latest.Prompt
		req.CurrentSlide = latest.CurrentSlide
	}
	return req
}

func (a *Adapter) fallbackContent(req FollowupRequest) slide.Content {
	headline := "Open questions worth exploring"
	if req.Prompt != "" {
		headline = req.Prompt
	} else if len(req.SlideHistory) > 0 {
		headline = "More on " + req.SlideHistory[len(req.SlideHistory)-1].Headline
	}
	var transcriptHint string
	if words := strings.Fields(req.TranscriptContext); len(words) > 0 {
		if len(words) > 20 {
			words = words[len(words)-20:]
		}
		transcriptHint = strings.Join(words, " ")
	}
	return slide.Content{
		Headline:          headline,
		VisualDescription: transcriptHint,
		Category:          "exploratory",
	}
}

// place routes a rendered suggestion into the exploratory channel, asking
// the legacy two-slot curator where it belongs when one is configured.
func (a *Adapter) place(ctx context.Context, rendered slide.Slide) {
	if a.placer != nil {
		existing := a.store.Snapshot(channel.Exploratory)
		if len(existing) >= 2 {
			options := [2]slide.Slide{existing[len(existing)-2], existing[len(existing)-1]}
			verdict, err := a.placer.Decide(ctx, curator.Request{NewSlide: rendered, CurrentOptions: options})
			if err != nil {
				a.logger.Warn("curator unavailable, appending without placement",
					slog.String("error", err.Error()))
			} else {
				switch verdict.Action {
				case curator.ReplaceSlot1:
					a.store.Remove(channel.Exploratory, options[0].ID)
				case curator.ReplaceSlot2:
					a.store.Remove(channel.Exploratory, options[1].ID)
				case curator.Discard:
					a.logger.Info("curator discarded suggestion",
						slog.String("headline", rendered.Headline),
						slog.String("reasoning", verdict.Reasoning))
					return
				}
			}
		}
	}
	a.append(channel.Exploratory, rendered)
}

// AppendExternal routes boundary-ingested slides (triaged audience
// questions, extracted deck pages) into their channel.
func (a *Adapter) AppendExternal(kind channel.Kind, s slide.Slide) {
	a.append(kind, s)
}

func (a *Adapter) append(kind channel.Kind, s slide.Slide) {
	a.store.Append(kind, s)
	if a.onAppend != nil {
		a.onAppend(kind, s)
	}
}

func lastN[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}
