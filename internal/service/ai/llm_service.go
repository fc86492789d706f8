package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/deepseek-chatbot/internal/config"
	"github.com/zhouzirui/deepseek-chatbot/internal/model/chat"
)

// Service is the completion client for one conversation. It holds the chat
// model built from a single credential and no other state between calls.
type Service struct {
	chatModel model.BaseChatModel
	maxTokens int
}

// NewService creates the chat model for credential and wraps it.
func NewService(ctx context.Context, cfg config.AIConfig, credential config.Credential) (*Service, error) {
	if credential.Empty() {
		return nil, fmt.Errorf("%w: no credential supplied", chat.ErrAuth)
	}

	chatModel, err := cfg.NewChatModel(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	return New(chatModel, cfg), nil
}

// New wraps an existing chat model.
func New(chatModel model.BaseChatModel, cfg config.AIConfig) *Service {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = config.DefaultMaxTokens
	}
	return &Service{
		chatModel: chatModel,
		maxTokens: maxTokens,
	}
}

// Complete blocks until the model returns and yields the assistant text.
func (s *Service) Complete(ctx context.Context, turns []chat.Turn, maxTokens int) (string, error) {
	if len(turns) == 0 {
		return "", chat.ErrNoTurns
	}

	response, err := s.chatModel.Generate(ctx, buildMessages(turns), s.options(maxTokens)...)
	if err != nil {
		return "", classify(err)
	}
	if response == nil {
		return "", fmt.Errorf("%w: model returned no message", chat.ErrShape)
	}

	log.Printf("[ai] completed response turns=%d length=%d", len(turns), len(response.Content))
	return response.Content, nil
}

// Stream starts an incremental response. The caller must Close the result.
func (s *Service) Stream(ctx context.Context, turns []chat.Turn, maxTokens int) (*Fragments, error) {
	if len(turns) == 0 {
		return nil, chat.ErrNoTurns
	}

	reader, err := s.chatModel.Stream(ctx, buildMessages(turns), s.options(maxTokens)...)
	if err != nil {
		return nil, classify(err)
	}
	return &Fragments{reader: reader}, nil
}

func (s *Service) options(maxTokens int) []model.Option {
	if maxTokens <= 0 {
		maxTokens = s.maxTokens
	}
	return []model.Option{model.WithMaxTokens(maxTokens)}
}

// Fragments is an ordered, finite, non-restartable sequence of text deltas.
type Fragments struct {
	reader *schema.StreamReader[*schema.Message]
}

// Next returns the next delta, which may be empty. It returns io.EOF once
// the response is complete; any other error ends the sequence.
func (f *Fragments) Next() (string, error) {
	chunk, err := f.reader.Recv()
	if errors.Is(err, io.EOF) {
		return "", io.EOF
	}
	if err != nil {
		return "", classify(err)
	}
	if chunk == nil {
		return "", nil
	}
	return chunk.Content, nil
}

// Close releases the underlying stream.
func (f *Fragments) Close() {
	f.reader.Close()
}

func buildMessages(turns []chat.Turn) []*schema.Message {
	messages := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		if !turn.Role.Valid() {
			log.Printf("[ai] dropping turn with unknown role %q", turn.Role)
			continue
		}
		switch turn.Role {
		case chat.RoleSystem:
			messages = append(messages, schema.SystemMessage(turn.Content))
		case chat.RoleUser:
			messages = append(messages, schema.UserMessage(turn.Content))
		case chat.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return messages
}

// classify keeps known failure kinds and files everything else under
// chat.ErrTransport, since providers other than ours report raw errors.
func classify(err error) error {
	switch {
	case errors.Is(err, chat.ErrAuth),
		errors.Is(err, chat.ErrTransport),
		errors.Is(err, chat.ErrShape),
		errors.Is(err, chat.ErrNoTurns):
		return err
	default:
		return fmt.Errorf("%w: %w", chat.ErrTransport, err)
	}
}
