package preset

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/deepseek-chatbot/internal/model/preset"
	"github.com/zhouzirui/deepseek-chatbot/pkg/utils"
)

// Handler 系统提示词预设的HTTP处理器
type Handler struct {
	presets preset.Store
}

// New 创建预设处理器
func New(presets preset.Store) *Handler {
	return &Handler{
		presets: presets,
	}
}

// RegisterRoutes 注册预设相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/presets", h.handleListPresets)
}

// handleListPresets 列出所有预设
func (h *Handler) handleListPresets(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.presets.List())
}
