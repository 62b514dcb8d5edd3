package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/podiumlabs/podium-core/internal/bus"
	"github.com/podiumlabs/podium-core/internal/channel"
	"github.com/podiumlabs/podium-core/internal/config"
	"github.com/podiumlabs/podium-core/internal/curator"
	"github.com/podiumlabs/podium-core/internal/eventstore"
	"github.com/podiumlabs/podium-core/internal/gate"
	"github.com/podiumlabs/podium-core/internal/ledger"
	"github.com/podiumlabs/podium-core/internal/natsserver"
	"github.com/podiumlabs/podium-core/internal/pipeline"
	"github.com/podiumlabs/podium-core/internal/protocol"
	"github.com/podiumlabs/podium-core/internal/scheduler"
	"github.com/podiumlabs/podium-core/internal/session"
	"github.com/podiumlabs/podium-core/internal/slide"
	"github.com/podiumlabs/podium-core/internal/transcript"
)

// Runtime wires the orchestration core together: bus subscriptions in,
// channel state and generation dispatches out, HTTP for the presentation
// surface.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup

	busClient  *bus.Client
	embedded   *natsserver.EmbeddedServer
	timeline   *eventstore.Store
	store      *channel.Store
	controller *session.Controller
	metrics    coreMetrics
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	r.embedded = embedded

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		r.embedded.Shutdown()
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.busClient = busClient

	timeline, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		busClient.Close()
		r.embedded.Shutdown()
		return fmt.Errorf("failed to open timeline store: %w", err)
	}
	r.timeline = timeline

	if err := r.buildCore(ctx); err != nil {
		return err
	}
	if err := r.wireBus(); err != nil {
		return fmt.Errorf("failed to subscribe on bus: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	r.registerAPI(mux)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	r.controller.Wait()
	r.busClient.Close()
	r.embedded.Shutdown()
	if err := r.timeline.Close(); err != nil {
		r.logger.Error("timeline close error", slog.String("error", err.Error()))
	}

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// buildCore assembles the orchestration components around one channel
// store and hands ownership of their lifecycle to the session controller.
func (r *Runtime) buildCore(ctx context.Context) error {
	var err error
	r.metrics, err = newCoreMetrics()
	if err != nil {
		return err
	}

	r.store = channel.NewStore(r.cfg.Channels.ExploratoryCapacity)
	led := ledger.New()
	acc := transcript.NewAccumulator()
	counter := &slide.Counter{}

	var decider gate.Decider
	if r.cfg.Gate.Mode == "http" {
		decider = gate.NewHTTPDecider(r.cfg.Gate.Endpoint)
	} else {
		decider = gate.NewMockDecider()
	}
	engine := gate.NewEngine(decider, r.logger)

	var followup pipeline.FollowupClient
	if r.cfg.Followup.Mode == "http" {
		followup = pipeline.NewHTTPFollowup(r.cfg.Followup.Endpoint)
	} else {
		followup = pipeline.NewMockFollowup()
	}
	var generator pipeline.Generator
	if r.cfg.Generation.Mode == "http" {
		generator = pipeline.NewHTTPGenerator(r.cfg.Generation.Endpoint)
	} else {
		generator = pipeline.NewMockGenerator()
	}
	var placer curator.Placer
	if r.cfg.Curator.Enabled {
		if r.cfg.Curator.Mode == "http" {
			placer = curator.NewHTTPPlacer(r.cfg.Curator.Endpoint)
		} else {
			placer = curator.NewMockPlacer()
		}
	}

	adapter := pipeline.New(pipeline.Options{
		Followup:        followup,
		Generator:       generator,
		Placer:          placer,
		Store:           r.store,
		Ledger:          led,
		Counter:         counter,
		Accumulator:     acc,
		FallbackOnEmpty: r.cfg.Generation.FallbackOnEmpty,
		Logger:          r.logger,
	})
	adapter.OnAppend(r.onChannelAppend)

	dispatcher := &meteredDispatcher{
		inner:      adapter,
		timeline:   r.timeline,
		dispatches: r.metrics.dispatches,
		sessionID:  func() string { return r.controller.Status().SessionID },
	}
	sched := scheduler.New(ctx, dispatcher,
		time.Duration(r.cfg.Scheduler.DispatchIntervalMS)*time.Millisecond, r.logger)

	r.controller = session.NewController(ctx, r.cfg, session.Components{
		Store:       r.store,
		Ledger:      led,
		Accumulator: acc,
		Engine:      engine,
		Scheduler:   sched,
		Adapter:     adapter,
		Timeline:    r.timeline,
		Counter:     counter,
	}, r.logger)
	r.controller.OnGateOutcome(func(o gate.Outcome) {
		r.metrics.gateDecisions.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("status", string(o.Status))))
	})
	return nil
}

// onChannelAppend fans channel changes out to surfaces and metrics.
func (r *Runtime) onChannelAppend(kind channel.Kind, _ slide.Slide) {
	r.metrics.slidesAppended.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("channel", string(kind))))

	st := r.controller.Status()
	info := r.store.Info(kind)
	update := protocol.ChannelUpdate{
		SessionID: st.SessionID,
		Channel:   string(kind),
		Total:     info.Total,
		Cursor:    info.Cursor,
	}
	if err := r.publish(protocol.SubjectChannelUpdated, update); err != nil {
		r.logger.Warn("failed to broadcast channel update", slog.String("error", err.Error()))
	}
}

func (r *Runtime) publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.busClient.Conn().Publish(subject, data)
}

// meteredDispatcher wraps the generation adapter so every dispatch is
// counted and failures land on the session timeline.
type meteredDispatcher struct {
	inner      scheduler.Dispatcher
	timeline   *eventstore.Store
	dispatches metric.Int64Counter
	sessionID  func() string
}

func (m *meteredDispatcher) DispatchExploratory(ctx context.Context, b scheduler.Batch) error {
	err := m.inner.DispatchExploratory(ctx, b)
	result := "ok"
	if err != nil {
		result = "error"
		if id := m.sessionID(); id != "" {
			_ = m.timeline.Append(ctx, eventstore.Event{
				SessionID: id,
				Type:      eventstore.TypeDispatchFailure,
				Payload:   []byte(fmt.Sprintf("%q", err.Error())),
			})
		}
	}
	m.dispatches.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	return err
}

// wireBus subscribes the controller to the runtime's inbound subjects.
func (r *Runtime) wireBus() error {
	conn := r.busClient.Conn()

	subs := []struct {
		subject string
		handler nats.MsgHandler
	}{
		{protocol.SubjectSegmentFinal, r.segmentHandler(true)},
		{protocol.SubjectSegmentPartial, r.segmentHandler(false)},
		{protocol.SubjectSlideAccepted, r.slideHandler(func(s slide.Slide) {
			if err := r.controller.AcceptSlide(s); err != nil {
				r.logger.Warn("accept dropped", slog.String("error", err.Error()))
			}
		})},
		{protocol.SubjectAudienceAnswer, r.slideHandler(func(s slide.Slide) {
			if err := r.controller.AnswerQuestion(s); err != nil {
				r.logger.Warn("answer dropped", slog.String("error", err.Error()))
			}
		})},
		{protocol.SubjectAudienceSlide, r.slideHandler(func(s slide.Slide) {
			r.controller.IngestExternal(channel.Audience, s)
		})},
		{protocol.SubjectDeckSlide, r.slideHandler(func(s slide.Slide) {
			r.controller.IngestExternal(channel.Deck, s)
		})},
		{protocol.SubjectPromptSubmitted, r.promptHandler},
		{protocol.SubjectSessionStart, func(*nats.Msg) {
			if _, err := r.controller.Start(""); err != nil {
				r.logger.Warn("start dropped", slog.String("error", err.Error()))
			}
		}},
		{protocol.SubjectSessionStop, func(*nats.Msg) { r.controller.Stop() }},
		{protocol.SubjectSessionPause, func(*nats.Msg) { r.controller.Pause() }},
		{protocol.SubjectSessionResume, func(*nats.Msg) { r.controller.Resume() }},
	}

	for _, s := range subs {
		if _, err := conn.Subscribe(s.subject, s.handler); err != nil {
			return fmt.Errorf("subscribe %s: %w", s.subject, err)
		}
	}
	return nil
}

func (r *Runtime) segmentHandler(final bool) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var seg protocol.Segment
		if err := json.Unmarshal(msg.Data, &seg); err != nil {
			r.logger.Warn("malformed segment", slog.String("error", err.Error()))
			return
		}
		r.controller.HandleSegment(seg.Text, final)
	}
}

func (r *Runtime) slideHandler(fn func(slide.Slide)) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var evt protocol.SlideEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			r.logger.Warn("malformed slide event", slog.String("error", err.Error()))
			return
		}
		fn(evt.Slide)
	}
}

func (r *Runtime) promptHandler(msg *nats.Msg) {
	var evt protocol.PromptEvent
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		r.logger.Warn("malformed prompt event", slog.String("error", err.Error()))
		return
	}
	if err := r.controller.SubmitPrompt(evt.Prompt, evt.CurrentSlide); err != nil {
		r.logger.Warn("prompt dropped", slog.String("error", err.Error()))
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.busClient.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
