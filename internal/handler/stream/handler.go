package stream

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/deepseek-chatbot/internal/config"
	"github.com/zhouzirui/deepseek-chatbot/internal/handler/apierr"
	"github.com/zhouzirui/deepseek-chatbot/internal/model/chat"
	chatService "github.com/zhouzirui/deepseek-chatbot/internal/service/chat"
	"github.com/zhouzirui/deepseek-chatbot/internal/service/conversation"
	"github.com/zhouzirui/deepseek-chatbot/pkg/utils"
)

// Handler manages streaming AI responses via Server-Sent Events
type Handler struct {
	chatSvc *chatService.Service
}

// New creates a new stream handler
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes mounts the SSE endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	Delta     string `json:"delta,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	State     string `json:"state,omitempty"`
	Closed    bool   `json:"closed,omitempty"`
}

// eventStream defers the SSE headers until the first event so that errors
// raised before any output can still be reported with a status code.
type eventStream struct {
	w         http.ResponseWriter
	flusher   http.Flusher
	sessionID string
	state     func() conversation.State
	started   bool
	broken    bool
}

func (s *eventStream) send(resp StreamResponse) {
	if s.broken {
		return
	}
	if !s.started {
		s.started = true
		utils.SetupSSEHeaders(s.w)
		s.w.WriteHeader(http.StatusOK)
		_ = utils.SendSSEComment(s.w, s.flusher, "stream established")
		s.emit(StreamResponse{Event: "start", State: s.state().String()})
	}
	s.emit(resp)
}

func (s *eventStream) emit(resp StreamResponse) {
	resp.SessionID = s.sessionID
	if err := utils.SendSSEEvent(s.w, s.flusher, resp.Event, resp); err != nil {
		log.Printf("[stream] client gone session=%s: %v", s.sessionID, err)
		s.broken = true
	}
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	userMessage := r.URL.Query().Get("message")
	if strings.TrimSpace(userMessage) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	opts := []conversation.SubmitOption{conversation.WithStream(true)}
	if raw := r.URL.Query().Get("maxTokens"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || !config.ValidMaxTokens(n) {
			utils.RespondError(w, http.StatusBadRequest, "maxTokens must be between 100 and 4000")
			return
		}
		opts = append(opts, conversation.WithMaxTokens(n))
	}

	conv, err := h.chatSvc.Conversation(sessionID)
	if err != nil {
		apierr.Respond(w, err)
		return
	}

	events := &eventStream{w: w, flusher: flusher, sessionID: sessionID, state: conv.State}
	opts = append(opts,
		conversation.WithProgress(func(delta, accumulated string) {
			events.send(StreamResponse{Event: "delta", Content: accumulated, Delta: delta})
		}),
		conversation.WithFailure(func(err error) {
			events.send(StreamResponse{Event: "error", Error: chat.Kind(err), Message: err.Error()})
		}),
	)

	reply, err := h.chatSvc.Submit(r.Context(), sessionID, userMessage, opts...)
	if err != nil {
		if !events.started {
			apierr.Respond(w, err)
			return
		}
		log.Printf("[stream] submit failed after stream start session=%s: %v", sessionID, err)
		return
	}

	closed := errors.Is(reply.Err, chat.ErrAuth)
	events.send(StreamResponse{Event: "message", Content: reply.Turn.Content, Error: chat.Kind(reply.Err), Closed: closed})
	events.send(StreamResponse{Event: "end", Finished: true})

	if closed {
		log.Printf("[stream] credential rejected, session closed session=%s", sessionID)
	}
	log.Printf("[stream] completed response for session=%s failed=%t", sessionID, reply.Failed())
}
