// Package cli is the terminal front end: one-shot prompts and an
// interactive loop, both driving a single conversation.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/zhouzirui/deepseek-chatbot/internal/config"
	"github.com/zhouzirui/deepseek-chatbot/internal/model/chat"
	"github.com/zhouzirui/deepseek-chatbot/internal/model/preset"
	"github.com/zhouzirui/deepseek-chatbot/internal/service/conversation"
)

const (
	bannerTitle = "DeepSeek-V3 Interactive Mode (Type 'exit' to quit)"
	noTokenHint = "You can also create a .env file based on env_example"
)

var noTokenMessage = fmt.Sprintf("Error: No authentication token found. Set %s or %s environment variable.",
	config.CredentialEnvVars[0], config.CredentialEnvVars[1])

// ErrExit signals a failure that has already been reported to the user.
var ErrExit = errors.New("exit status 1")

var (
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("6")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))
)

// Factory builds the completion client for a credential.
type Factory func(ctx context.Context, credential config.Credential) (conversation.Completer, error)

// LineReader reads edited input lines. It is satisfied by *liner.State.
type LineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// App holds the terminal and service dependencies of the commands.
type App struct {
	Out io.Writer
	Err io.Writer

	// Lookup resolves environment variables; os.LookupEnv by default.
	Lookup func(string) (string, bool)
	// NewClient builds the completion client once a credential is known.
	NewClient Factory
	// Defaults hold the configured stream mode and token budget.
	Defaults conversation.Options
	Presets  preset.Store
	// Provider selects which environment variables hold the credential.
	Provider string

	// NewLineReader opens the interactive line editor.
	NewLineReader func() LineReader
	// ReadSecret reads a hidden line, or is nil when stdin is not a terminal.
	ReadSecret func(prompt string) (string, error)

	// Notices are startup warnings, logged once the verbosity is known.
	Notices []string
}

// NewApp wires an App to the process terminal.
func NewApp(factory Factory, defaults conversation.Options) *App {
	app := &App{
		Out:       os.Stdout,
		Err:       os.Stderr,
		Lookup:    os.LookupEnv,
		NewClient: factory,
		Defaults:  defaults,
		Presets:   preset.NewMemoryStore(preset.Seed()),
		NewLineReader: func() LineReader {
			line := liner.NewLiner()
			line.SetCtrlCAborts(true)
			return line
		},
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		app.ReadSecret = readSecret
	}
	return app
}

func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// credential resolves the token from the environment, optionally asking
// for it on the terminal.
func (a *App) credential(allowPrompt bool) (config.Credential, error) {
	lookup := a.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	credential := config.ResolveCredentialFor(a.Provider, lookup)
	if credential.Empty() && allowPrompt && a.ReadSecret != nil {
		raw, err := a.ReadSecret("GitHub token (input hidden): ")
		if err == nil {
			credential = config.Credential(raw)
		}
	}
	if credential.Empty() {
		fmt.Fprintln(a.Out, noTokenMessage)
		fmt.Fprintln(a.Out, noTokenHint)
		return "", ErrExit
	}
	return credential, nil
}

// open authenticates and returns a fresh conversation seeded with system.
func (a *App) open(ctx context.Context, system string, allowPrompt bool, defaults conversation.Options) (*conversation.Orchestrator, error) {
	credential, err := a.credential(allowPrompt)
	if err != nil {
		return nil, err
	}

	client, err := a.NewClient(ctx, credential)
	if err != nil {
		fmt.Fprintf(a.Out, "Error communicating with DeepSeek model: %v\n", err)
		return nil, ErrExit
	}

	var seed []chat.Turn
	if system != "" {
		seed = append(seed, chat.SystemTurn(system))
	}
	return conversation.New(chat.NewSession(seed...), client, defaults), nil
}

// systemPrompt picks the explicit system text, falling back to the preset.
func (a *App) systemPrompt(system, presetID string) (string, error) {
	if system != "" || presetID == "" {
		return system, nil
	}
	if a.Presets == nil {
		return "", fmt.Errorf("unknown preset %q", presetID)
	}
	p, ok := a.Presets.FindByID(presetID)
	if !ok {
		return "", fmt.Errorf("unknown preset %q", presetID)
	}
	return p.System, nil
}

// reportFailure prints the failure and reports whether it is fatal.
func (a *App) reportFailure(err error) bool {
	fmt.Fprintln(a.Err, errorStyle.Render(fmt.Sprintf("Error getting response (%s): %v", chat.Kind(err), err)))
	return errors.Is(err, chat.ErrAuth)
}
