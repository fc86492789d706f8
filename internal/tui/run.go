package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zhouzirui/deepseek-chatbot/internal/service/conversation"
)

// Run shows the chat screen until the user quits.
func Run(ctx context.Context, conv *conversation.Orchestrator) error {
	p := tea.NewProgram(NewModel(ctx, conv), tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run chat screen: %w", err)
	}
	return nil
}
