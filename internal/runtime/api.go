package runtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/podiumlabs/podium-core/internal/channel"
	"github.com/podiumlabs/podium-core/internal/session"
	"github.com/podiumlabs/podium-core/internal/slide"
)

// registerAPI mounts the presentation-surface endpoints. The surface is a
// thin client: every mutation goes through here or the bus.
func (r *Runtime) registerAPI(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/status", r.handleStatus)
	mux.HandleFunc("POST /v1/session/start", r.handleSessionStart)
	mux.HandleFunc("POST /v1/session/stop", r.handleSessionStop)
	mux.HandleFunc("POST /v1/session/pause", r.handleSessionPause)
	mux.HandleFunc("POST /v1/session/resume", r.handleSessionResume)
	mux.HandleFunc("GET /v1/channels/{kind}", r.handleChannelInfo)
	mux.HandleFunc("POST /v1/channels/{kind}/navigate", r.handleChannelNavigate)
	mux.HandleFunc("POST /v1/channels/{kind}/take", r.handleChannelTake)
	mux.HandleFunc("POST /v1/prompt", r.handlePrompt)
	mux.HandleFunc("POST /v1/slides/accept", r.handleAcceptSlide)
	mux.HandleFunc("POST /v1/questions/answer", r.handleAnswerQuestion)
}

type statusResponse struct {
	session.Status
	Channels map[string]channel.Info `json:"channels"`
}

func (r *Runtime) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Status:   r.controller.Status(),
		Channels: make(map[string]channel.Info, len(channel.Kinds)),
	}
	for _, kind := range channel.Kinds {
		resp.Channels[string(kind)] = r.store.Info(kind)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (r *Runtime) handleSessionStart(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	_ = json.NewDecoder(req.Body).Decode(&body)

	id, err := r.controller.Start(body.Token)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id})
}

func (r *Runtime) handleSessionStop(w http.ResponseWriter, _ *http.Request) {
	r.controller.Stop()
	writeJSON(w, http.StatusOK, r.controller.Status())
}

func (r *Runtime) handleSessionPause(w http.ResponseWriter, _ *http.Request) {
	r.controller.Pause()
	writeJSON(w, http.StatusOK, r.controller.Status())
}

func (r *Runtime) handleSessionResume(w http.ResponseWriter, _ *http.Request) {
	r.controller.Resume()
	writeJSON(w, http.StatusOK, r.controller.Status())
}

type channelResponse struct {
	Info    channel.Info `json:"info"`
	Current *slide.Slide `json:"current"`
}

func (r *Runtime) channelResponse(kind channel.Kind) channelResponse {
	resp := channelResponse{Info: r.store.Info(kind)}
	if current, ok := r.store.Current(kind); ok {
		resp.Current = &current
	}
	return resp
}

func (r *Runtime) handleChannelInfo(w http.ResponseWriter, req *http.Request) {
	kind, ok := channel.ParseKind(req.PathValue("kind"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown channel"))
		return
	}
	writeJSON(w, http.StatusOK, r.channelResponse(kind))
}

func (r *Runtime) handleChannelNavigate(w http.ResponseWriter, req *http.Request) {
	kind, ok := channel.ParseKind(req.PathValue("kind"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown channel"))
		return
	}
	var body struct {
		Direction string `json:"direction"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	switch body.Direction {
	case "prev":
		r.store.Navigate(kind, channel.Prev)
	case "next":
		r.store.Navigate(kind, channel.Next)
	default:
		writeError(w, http.StatusBadRequest, errors.New("direction must be prev or next"))
		return
	}
	writeJSON(w, http.StatusOK, r.channelResponse(kind))
}

func (r *Runtime) handleChannelTake(w http.ResponseWriter, req *http.Request) {
	kind, ok := channel.ParseKind(req.PathValue("kind"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown channel"))
		return
	}
	var taken *slide.Slide
	if s, ok := r.store.Take(kind); ok {
		taken = &s
	}
	writeJSON(w, http.StatusOK, struct {
		Slide *slide.Slide `json:"slide"`
		Info  channel.Info `json:"info"`
	}{Slide: taken, Info: r.store.Info(kind)})
}

func (r *Runtime) handlePrompt(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Prompt       string       `json:"prompt"`
		CurrentSlide *slide.Slide `json:"current_slide"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := r.controller.SubmitPrompt(body.Prompt, body.CurrentSlide); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (r *Runtime) handleAcceptSlide(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Slide slide.Slide `json:"slide"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := r.controller.AcceptSlide(body.Slide); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (r *Runtime) handleAnswerQuestion(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Slide slide.Slide `json:"slide"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := r.controller.AnswerQuestion(body.Slide); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func statusFor(err error) int {
	if errors.Is(err, session.ErrNoActiveSession) {
		return http.StatusConflict
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
