package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/deepseek-chatbot/internal/config"
	"github.com/zhouzirui/deepseek-chatbot/internal/handler/apierr"
	"github.com/zhouzirui/deepseek-chatbot/internal/model/chat"
	chatservice "github.com/zhouzirui/deepseek-chatbot/internal/service/chat"
	"github.com/zhouzirui/deepseek-chatbot/internal/service/conversation"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
)

// Handler WebSocket 聊天处理器
type Handler struct {
	chatSvc  *chatservice.Service
	upgrader websocket.Upgrader
}

// New 创建WebSocket处理器
func New(chatSvc *chatservice.Service) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

// ConfigMessage 配置消息
type ConfigMessage struct {
	StreamMode *bool `json:"streamMode,omitempty"`
	MaxTokens  *int  `json:"maxTokens,omitempty"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type connectionState struct {
	sessionID  string
	streamMode bool
	maxTokens  int
}

func newConnectionState(sessionID string, defaults conversation.Options) *connectionState {
	return &connectionState{
		sessionID:  sessionID,
		streamMode: defaults.Stream,
		maxTokens:  defaults.MaxTokens,
	}
}

// socket serialises writes; gorilla allows one concurrent writer.
type socket struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *socket) writeJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	conv, err := h.chatSvc.Conversation(sessionID)
	if err != nil {
		apierr.Respond(w, err)
		return
	}

	state := newConnectionState(sessionID, conv.Defaults())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	sock := &socket{conn: conn}

	log.Printf("[websocket] new connection for session: %s", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go pingLoop(ctx, conn)

	h.sendInfo(sock, sessionID, map[string]any{
		"type":       "connected",
		"streamMode": state.streamMode,
		"maxTokens":  state.maxTokens,
	})

	for {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}

		if msg.SessionID != "" && msg.SessionID != sessionID {
			h.sendError(sock, "session mismatch", "")
			continue
		}

		if closed := h.handleMessage(ctx, sock, state, &msg); closed {
			closeWithReason(sock, "credential rejected, create a new session")
			return
		}
	}
}

// handleMessage dispatches one inbound frame. It reports whether the
// session was closed and the connection should end.
func (h *Handler) handleMessage(ctx context.Context, sock *socket, state *connectionState, msg *inboundMessage) bool {
	switch msg.Type {
	case "text":
		return h.handleTextMessage(ctx, sock, state, msg.Data)
	case "reset":
		if err := h.chatSvc.ResetSession(ctx, state.sessionID); err != nil {
			h.sendError(sock, err.Error(), chat.Kind(err))
			return errors.Is(err, chat.ErrAuth)
		}
		h.sendInfo(sock, state.sessionID, map[string]any{"type": "reset"})
	case "config":
		h.handleConfigMessage(sock, state, msg.Data)
	default:
		h.sendError(sock, "unsupported message type: "+msg.Type, "")
	}
	return false
}

func (h *Handler) handleTextMessage(ctx context.Context, sock *socket, state *connectionState, raw json.RawMessage) bool {
	var text TextMessage
	if err := json.Unmarshal(raw, &text); err != nil {
		h.sendError(sock, "invalid text payload", "")
		return false
	}
	if strings.TrimSpace(text.Text) == "" {
		return false
	}

	h.sendInfo(sock, state.sessionID, map[string]any{
		"type": "user",
		"text": text.Text,
	})

	reply, err := h.chatSvc.Submit(ctx, state.sessionID, text.Text,
		conversation.WithStream(state.streamMode),
		conversation.WithMaxTokens(state.maxTokens),
		conversation.WithProgress(func(delta, _ string) {
			if delta == "" {
				return
			}
			h.sendInfo(sock, state.sessionID, map[string]any{
				"type": "ai_delta",
				"text": delta,
			})
		}),
		conversation.WithFailure(func(err error) {
			h.sendError(sock, err.Error(), chat.Kind(err))
		}),
	)
	if err != nil {
		h.sendError(sock, err.Error(), chat.Kind(err))
		return errors.Is(err, chat.ErrAuth)
	}

	closed := errors.Is(reply.Err, chat.ErrAuth)
	h.sendInfo(sock, state.sessionID, map[string]any{
		"type":    "ai",
		"text":    reply.Turn.Content,
		"isFinal": true,
		"error":   chat.Kind(reply.Err),
		"closed":  closed,
	})
	return closed
}

func (h *Handler) handleConfigMessage(sock *socket, state *connectionState, raw json.RawMessage) {
	var cfg ConfigMessage
	if err := json.Unmarshal(raw, &cfg); err != nil {
		h.sendError(sock, "invalid config payload", "")
		return
	}
	if cfg.MaxTokens != nil && !config.ValidMaxTokens(*cfg.MaxTokens) {
		h.sendError(sock, "maxTokens must be between 100 and 4000", "")
		return
	}

	applyConfig(state, cfg)

	h.sendInfo(sock, state.sessionID, map[string]any{
		"type":       "config",
		"streamMode": state.streamMode,
		"maxTokens":  state.maxTokens,
	})
}

func applyConfig(state *connectionState, cfg ConfigMessage) {
	if cfg.StreamMode != nil {
		state.streamMode = *cfg.StreamMode
	}
	if cfg.MaxTokens != nil {
		state.maxTokens = *cfg.MaxTokens
	}
}

func (h *Handler) sendInfo(sock *socket, sessionID string, data map[string]any) {
	msg := outgoingMessage{
		Type:      "result",
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := sock.writeJSON(msg); err != nil {
		log.Printf("[websocket] write info failed: %v", err)
	}
}

func (h *Handler) sendError(sock *socket, message, kind string) {
	data := map[string]string{"message": message}
	if kind != "" {
		data["kind"] = kind
	}
	msg := outgoingMessage{
		Type:      "error",
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := sock.writeJSON(msg); err != nil {
		log.Printf("[websocket] write error failed: %v", err)
	}
}

// closeWithReason 发送关闭帧，告知客户端会话已失效
func closeWithReason(sock *socket, reason string) {
	sock.mu.Lock()
	defer sock.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = sock.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// pingLoop 定期发送ping消息
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
