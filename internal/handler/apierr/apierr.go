// Package apierr maps domain errors to HTTP responses.
package apierr

import (
	"errors"
	"net/http"

	"github.com/zhouzirui/deepseek-chatbot/internal/model/chat"
	chatService "github.com/zhouzirui/deepseek-chatbot/internal/service/chat"
	"github.com/zhouzirui/deepseek-chatbot/pkg/utils"
)

// Status returns the HTTP status for err.
func Status(err error) int {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatService.ErrPresetNotFound),
		errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrSessionBusy):
		return http.StatusConflict
	case errors.Is(err, chat.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, chat.ErrTransport), errors.Is(err, chat.ErrShape):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes err as a JSON error body.
func Respond(w http.ResponseWriter, err error) {
	utils.RespondError(w, Status(err), err.Error())
}
