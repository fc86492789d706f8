// Package conversation turns raw user text into committed session turns.
//
// An Orchestrator owns one chat.Session and one completion client. Each
// Submit appends the user turn, sends the whole history to the model,
// assembles the answer (blocking or from streamed fragments) and appends
// exactly one assistant turn, substituting chat.FallbackContent when the
// answer could not be obtained.
package conversation

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/zhouzirui/deepseek-chatbot/internal/model/chat"
	"github.com/zhouzirui/deepseek-chatbot/internal/service/ai"
)

// Completer is the completion client the orchestrator drives.
type Completer interface {
	Complete(ctx context.Context, turns []chat.Turn, maxTokens int) (string, error)
	Stream(ctx context.Context, turns []chat.Turn, maxTokens int) (*ai.Fragments, error)
}

// State is the phase of the submit currently in flight.
type State int32

const (
	StateIdle State = iota
	StateAwaiting
	StateAssembling
)

func (s State) String() string {
	switch s {
	case StateAwaiting:
		return "awaiting"
	case StateAssembling:
		return "assembling"
	default:
		return "idle"
	}
}

// Options are the per-conversation defaults.
type Options struct {
	Stream    bool
	MaxTokens int
}

// Reply is the committed assistant turn. Err carries the failure kind when
// Turn holds the fallback text.
type Reply struct {
	Turn chat.Turn
	Err  error
}

// Failed reports whether the fallback text was committed.
func (r Reply) Failed() bool {
	return r.Err != nil
}

type submitConfig struct {
	stream    bool
	maxTokens int
	progress  func(delta, accumulated string)
	failure   func(err error)
}

// SubmitOption overrides a default for a single Submit.
type SubmitOption func(*submitConfig)

// WithStream selects incremental or blocking assembly.
func WithStream(stream bool) SubmitOption {
	return func(c *submitConfig) { c.stream = stream }
}

// WithMaxTokens bounds the generated length.
func WithMaxTokens(n int) SubmitOption {
	return func(c *submitConfig) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithProgress observes every fragment together with the text accumulated
// so far. Only the final accumulation is committed.
func WithProgress(fn func(delta, accumulated string)) SubmitOption {
	return func(c *submitConfig) { c.progress = fn }
}

// WithFailure observes a streaming failure before the fallback is committed.
func WithFailure(fn func(err error)) SubmitOption {
	return func(c *submitConfig) { c.failure = fn }
}

// Orchestrator serialises submits against one session.
type Orchestrator struct {
	session  *chat.Session
	client   Completer
	defaults Options

	busy  sync.Mutex
	state atomic.Int32
}

// New binds a session to a completion client.
func New(session *chat.Session, client Completer, defaults Options) *Orchestrator {
	if session == nil {
		session = chat.NewSession()
	}
	return &Orchestrator{session: session, client: client, defaults: defaults}
}

// History returns a snapshot of the committed turns.
func (o *Orchestrator) History() []chat.Turn {
	return o.session.Turns()
}

// Len returns the number of committed turns.
func (o *Orchestrator) Len() int {
	return o.session.Len()
}

// Defaults returns the conversation defaults.
func (o *Orchestrator) Defaults() Options {
	return o.defaults
}

// State reports the phase of the submit in flight, if any.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Submit runs one user turn through the model. Blank text is rejected with
// chat.ErrEmptyMessage and leaves the session untouched; a submit already in
// flight yields chat.ErrSessionBusy. Every other call appends exactly two
// turns and returns a nil error, with model failures reported in Reply.Err.
func (o *Orchestrator) Submit(ctx context.Context, userText string, opts ...SubmitOption) (Reply, error) {
	if strings.TrimSpace(userText) == "" {
		return Reply{}, chat.ErrEmptyMessage
	}
	if !o.busy.TryLock() {
		return Reply{}, chat.ErrSessionBusy
	}
	defer o.busy.Unlock()
	defer o.state.Store(int32(StateIdle))

	cfg := submitConfig{stream: o.defaults.Stream, maxTokens: o.defaults.MaxTokens}
	for _, opt := range opts {
		opt(&cfg)
	}

	o.session.Append(chat.UserTurn(userText))
	turns := o.session.Turns()

	o.state.Store(int32(StateAwaiting))
	var (
		content string
		err     error
	)
	if cfg.stream {
		content, err = o.assemble(ctx, turns, cfg)
	} else {
		content, err = o.client.Complete(ctx, turns, cfg.maxTokens)
	}

	if err != nil {
		log.Printf("[conversation] response failed kind=%s turns=%d: %v", chat.Kind(err), len(turns), err)
		content = chat.FallbackContent
	}

	turn := chat.AssistantTurn(content)
	o.session.Append(turn)
	return Reply{Turn: turn, Err: err}, nil
}

func (o *Orchestrator) assemble(ctx context.Context, turns []chat.Turn, cfg submitConfig) (string, error) {
	fragments, err := o.client.Stream(ctx, turns, cfg.maxTokens)
	if err != nil {
		notify(cfg.failure, err)
		return "", err
	}
	defer fragments.Close()

	o.state.Store(int32(StateAssembling))
	var accumulated strings.Builder
	for {
		part, err := fragments.Next()
		if errors.Is(err, io.EOF) {
			return accumulated.String(), nil
		}
		if err != nil {
			notify(cfg.failure, err)
			return "", err
		}

		accumulated.WriteString(part)
		if cfg.progress != nil {
			cfg.progress(part, accumulated.String())
		}
	}
}

func notify(fn func(error), err error) {
	if fn != nil {
		fn(err)
	}
}

// Reset clears the session. It fails with chat.ErrSessionBusy while a
// submit is in flight.
func (o *Orchestrator) Reset() error {
	if !o.busy.TryLock() {
		return chat.ErrSessionBusy
	}
	defer o.busy.Unlock()

	o.session.Clear()
	return nil
}
