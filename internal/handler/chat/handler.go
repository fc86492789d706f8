package chat

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/deepseek-chatbot/internal/config"
	"github.com/zhouzirui/deepseek-chatbot/internal/handler/apierr"
	"github.com/zhouzirui/deepseek-chatbot/internal/model/chat"
	chatService "github.com/zhouzirui/deepseek-chatbot/internal/service/chat"
	"github.com/zhouzirui/deepseek-chatbot/internal/service/conversation"
	"github.com/zhouzirui/deepseek-chatbot/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc  *chatService.Service
	fallback config.Credential
}

// New 创建聊天处理器。fallback 为服务端环境变量中的凭证，请求未携带 token 时使用。
func New(chatSvc *chatService.Service, fallback config.Credential) *Handler {
	return &Handler{
		chatSvc:  chatSvc,
		fallback: fallback,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Route("/session/{sessionID}", func(s chi.Router) {
		s.Get("/", h.handleGetSession)
		s.Delete("/", h.handleDeleteSession)
		s.Post("/reset", h.handleResetSession)
		s.Get("/messages", h.handleListMessages)
		s.Post("/messages", h.handleSubmitMessage)
	})
	r.Get("/settings", h.handleSettings)
}

// handleCreateSession 认证并创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Token    string `json:"token"`
		PresetID string `json:"presetId"`
	}

	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	credential := config.Credential(strings.TrimSpace(payload.Token))
	if credential.Empty() {
		credential = h.fallback
	}
	if credential.Empty() {
		utils.RespondError(w, http.StatusUnauthorized, "No authentication token found. Set GITHUB_TOKEN or AZURE_KEY environment variable.")
		return
	}

	session, err := h.chatSvc.CreateSession(r.Context(), credential, strings.TrimSpace(payload.PresetID))
	if err != nil {
		apierr.Respond(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, session)
}

// handleGetSession 返回会话信息
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		apierr.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// handleDeleteSession 断开会话
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		apierr.Respond(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleResetSession 清空会话历史
func (h *Handler) handleResetSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.ResetSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		apierr.Respond(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListMessages 返回会话记录
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	turns, err := h.chatSvc.LoadTranscript(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		apierr.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"messages": turns})
}

// SubmitResponse 为一次非流式提交的结果。Error 为失败类别，仅在回退文本被提交时出现；
// Closed 表示凭证被拒绝、会话已关闭，需要重新创建会话。
type SubmitResponse struct {
	Message chat.Turn `json:"message"`
	Error   string    `json:"error,omitempty"`
	Closed  bool      `json:"closed,omitempty"`
}

// handleSubmitMessage 阻塞式提交一条用户消息
func (h *Handler) handleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content   string `json:"content"`
		MaxTokens *int   `json:"maxTokens"`
	}

	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Content) == "" {
		utils.RespondError(w, http.StatusBadRequest, "content is required")
		return
	}

	opts := []conversation.SubmitOption{conversation.WithStream(false)}
	if payload.MaxTokens != nil {
		if !config.ValidMaxTokens(*payload.MaxTokens) {
			utils.RespondError(w, http.StatusBadRequest, "maxTokens must be between 100 and 4000")
			return
		}
		opts = append(opts, conversation.WithMaxTokens(*payload.MaxTokens))
	}

	reply, err := h.chatSvc.Submit(r.Context(), chi.URLParam(r, "sessionID"), payload.Content, opts...)
	if err != nil {
		apierr.Respond(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, SubmitResponse{
		Message: reply.Turn,
		Error:   chat.Kind(reply.Err),
		Closed:  errors.Is(reply.Err, chat.ErrAuth),
	})
}

// handleSettings 返回前端可调整的默认设置
func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	defaults := h.chatSvc.Defaults()
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"maxTokens": defaults.MaxTokens,
		"minTokens": config.MinMaxTokens,
		"maxLimit":  config.MaxMaxTokens,
		"stream":    defaults.Stream,
	})
}
