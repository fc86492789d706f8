package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/deepseek-chatbot/internal/config"
	"github.com/zhouzirui/deepseek-chatbot/internal/handler/chat"
	"github.com/zhouzirui/deepseek-chatbot/internal/handler/preset"
	"github.com/zhouzirui/deepseek-chatbot/internal/handler/stream"
	"github.com/zhouzirui/deepseek-chatbot/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/deepseek-chatbot/internal/middleware"
	presetModel "github.com/zhouzirui/deepseek-chatbot/internal/model/preset"
	chatService "github.com/zhouzirui/deepseek-chatbot/internal/service/chat"
	"github.com/zhouzirui/deepseek-chatbot/pkg/utils"
)

// NewRouter wires HTTP routes to core services. fallback is the credential
// found in the server environment, used when a client does not send one.
func NewRouter(presets presetModel.Store, chatSvc *chatService.Service, fallback config.Credential) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": chatSvc.Count()})
	})

	r.Route("/api", func(api chi.Router) {
		preset.New(presets).RegisterRoutes(api)
		chat.New(chatSvc, fallback).RegisterRoutes(api)
		stream.New(chatSvc).RegisterRoutes(api)
		ws.New(chatSvc).RegisterRoutes(api)
	})

	return r
}
