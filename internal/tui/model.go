package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/deepseek-chatbot/internal/model/chat"
	"github.com/zhouzirui/deepseek-chatbot/internal/service/conversation"
)

const welcome = "DeepSeek-V3 chat. Enter sends, /reset clears the conversation, Esc quits."

// Conversation is the part of the orchestrator the chat screen drives.
type Conversation interface {
	Submit(ctx context.Context, userText string, opts ...conversation.SubmitOption) (conversation.Reply, error)
	Reset() error
	History() []chat.Turn
	State() conversation.State
}

type deltaMsg string

type replyMsg struct {
	reply conversation.Reply
	err   error
}

type resetMsg struct{ err error }

// Model is the bubbletea model of the chat screen.
type Model struct {
	ctx  context.Context
	conv Conversation

	viewport  viewport.Model
	textInput textinput.Model
	ready     bool

	// pending holds the assistant text streamed so far for the submit in flight.
	pending string
	busy    bool
	events  <-chan tea.Msg
	notice  string

	senderStyle lipgloss.Style
	botStyle    lipgloss.Style
	systemStyle lipgloss.Style
	errStyle    lipgloss.Style
}

// NewModel builds the chat screen for conv.
func NewModel(ctx context.Context, conv Conversation) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask something..."
	ti.Focus()
	ti.CharLimit = 4000
	ti.Width = 50

	return Model{
		ctx:         ctx,
		conv:        conv,
		textInput:   ti,
		senderStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
		botStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		systemStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true),
		errStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	m.textInput, tiCmd = m.textInput.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			input := strings.TrimSpace(m.textInput.Value())
			if input == "" {
				return m, tea.Batch(tiCmd, vpCmd)
			}
			if m.busy {
				m.notice = "still waiting for the previous answer"
				m.refresh()
				return m, tea.Batch(tiCmd, vpCmd)
			}

			m.textInput.SetValue("")
			m.notice = ""
			if input == "/reset" {
				return m, tea.Batch(tiCmd, vpCmd, m.reset())
			}

			m.busy = true
			m.pending = ""
			m.events = m.submit(input)
			m.refreshWith(input)
			return m, tea.Batch(tiCmd, vpCmd, waitForEvent(m.events))
		}

	case deltaMsg:
		m.pending = string(msg)
		m.refresh()
		return m, tea.Batch(tiCmd, vpCmd, waitForEvent(m.events))

	case replyMsg:
		m.busy = false
		m.pending = ""
		m.events = nil
		if msg.err != nil {
			m.notice = msg.err.Error()
		} else if msg.reply.Failed() {
			m.notice = fmt.Sprintf("%s error: %v", chat.Kind(msg.reply.Err), msg.reply.Err)
		}
		m.refresh()
		return m, tea.Batch(tiCmd, vpCmd)

	case resetMsg:
		if msg.err != nil {
			m.notice = msg.err.Error()
		}
		m.refresh()
		return m, tea.Batch(tiCmd, vpCmd)

	case tea.WindowSizeMsg:
		footerHeight := lipgloss.Height(m.footerView())

		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - footerHeight
		}
		m.textInput.Width = msg.Width - 2
		m.refresh()
	}

	return m, tea.Batch(tiCmd, vpCmd)
}

// submit runs one exchange in the background. Fragments arrive as
// deltaMsg values and the channel ends with a single replyMsg.
func (m Model) submit(input string) <-chan tea.Msg {
	events := make(chan tea.Msg, 64)
	conv, ctx := m.conv, m.ctx
	go func() {
		defer close(events)
		reply, err := conv.Submit(ctx, input,
			conversation.WithProgress(func(_, accumulated string) {
				events <- deltaMsg(accumulated)
			}),
		)
		events <- replyMsg{reply: reply, err: err}
	}()
	return events
}

func (m Model) reset() tea.Cmd {
	conv := m.conv
	return func() tea.Msg {
		return resetMsg{err: conv.Reset()}
	}
}

func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return nil
		}
		return msg
	}
}

func (m *Model) refresh() {
	m.refreshWith("")
}

// refreshWith re-renders the transcript. unsent is a user line that the
// background submit may not have committed yet.
func (m *Model) refreshWith(unsent string) {
	if !m.ready {
		return
	}

	lines := []string{m.systemStyle.Render(welcome)}
	history := m.conv.History()
	for _, turn := range history {
		lines = append(lines, m.renderTurn(turn))
	}
	if unsent != "" && (len(history) == 0 || history[len(history)-1].Content != unsent) {
		lines = append(lines, m.senderStyle.Render("You: ")+unsent)
	}
	if m.busy {
		line := m.botStyle.Render("DeepSeek: ") + m.pending
		if m.pending == "" {
			line += m.systemStyle.Render("(" + m.conv.State().String() + "...)")
		}
		lines = append(lines, line)
	}
	if m.notice != "" {
		lines = append(lines, m.errStyle.Render(m.notice))
	}

	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}

func (m Model) renderTurn(turn chat.Turn) string {
	switch turn.Role {
	case chat.RoleUser:
		return m.senderStyle.Render("You: ") + turn.Content
	case chat.RoleAssistant:
		return m.botStyle.Render("DeepSeek: ") + turn.Content
	default:
		return m.systemStyle.Render("System: " + turn.Content)
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	return fmt.Sprintf(
		"%s\n%s",
		m.viewport.View(),
		m.footerView(),
	)
}

func (m Model) footerView() string {
	return m.textInput.View()
}
