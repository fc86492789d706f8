// Package aitest provides scripted eino chat models for tests.
package aitest

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Call records one invocation of the model.
type Call struct {
	Messages  []*schema.Message
	MaxTokens int
	Stream    bool
}

// Model is a model.BaseChatModel whose answers are scripted.
type Model struct {
	// Response is returned by Generate; nil with a nil GenerateErr means
	// the model produced no message at all.
	Response    *schema.Message
	GenerateErr error

	// Parts are delivered by Stream in order. StreamErr fails the Stream
	// call itself; RecvErr is delivered after the parts.
	Parts     []*schema.Message
	StreamErr error
	RecvErr   error

	// Block, when set, is waited on before answering.
	Block <-chan struct{}

	mu    sync.Mutex
	calls []Call
}

var _ model.BaseChatModel = (*Model)(nil)

// Reply scripts a blocking answer.
func Reply(content string) *Model {
	return &Model{Response: schema.AssistantMessage(content, nil)}
}

// Fragments scripts a streamed answer.
func Fragments(parts ...string) *Model {
	m := &Model{}
	for _, p := range parts {
		m.Parts = append(m.Parts, schema.AssistantMessage(p, nil))
	}
	return m
}

// Failing scripts a model whose calls fail with err.
func Failing(err error) *Model {
	return &Model{GenerateErr: err, StreamErr: err}
}

func (m *Model) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.record(input, false, opts)
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if m.GenerateErr != nil {
		return nil, m.GenerateErr
	}
	return m.Response, nil
}

func (m *Model) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.record(input, true, opts)
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if m.StreamErr != nil {
		return nil, m.StreamErr
	}

	sr, sw := schema.Pipe[*schema.Message](len(m.Parts) + 1)
	for _, part := range m.Parts {
		sw.Send(part, nil)
	}
	if m.RecvErr != nil {
		sw.Send(nil, m.RecvErr)
	}
	sw.Close()
	return sr, nil
}

// Calls returns the recorded invocations.
func (m *Model) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

func (m *Model) record(input []*schema.Message, stream bool, opts []model.Option) {
	options := model.GetCommonOptions(&model.Options{}, opts...)
	call := Call{Messages: append([]*schema.Message(nil), input...), Stream: stream}
	if options.MaxTokens != nil {
		call.MaxTokens = *options.MaxTokens
	}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

func (m *Model) wait(ctx context.Context) error {
	if m.Block == nil {
		return nil
	}
	select {
	case <-m.Block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
