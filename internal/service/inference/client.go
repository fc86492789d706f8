package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/zhouzirui/deepseek-chatbot/internal/model/chat"
)

const (
	// DefaultEndpoint is the Azure AI inference endpoint that serves GitHub Models.
	DefaultEndpoint = "https://models.inference.ai.azure.com"
	// DefaultModel is the hosted model identifier.
	DefaultModel = "DeepSeek-V3"

	defaultTimeout = 120 * time.Second
)

// Config describes one chat model instance. Token is the bearer credential.
type Config struct {
	Endpoint    string
	Model       string
	Token       string
	MaxTokens   int
	Temperature *float32
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// ChatModel is an eino chat model backed by the OpenAI-compatible chat
// completions API of the inference endpoint.
type ChatModel struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature *float32
}

var _ model.BaseChatModel = (*ChatModel)(nil)

// NewChatModel validates cfg and returns a ready model. An empty token is
// an authentication error.
func NewChatModel(cfg Config) (*ChatModel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("%w: token is required", chat.ErrAuth)
	}

	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" {
		modelName = DefaultModel
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	// Auth failures must never be retried, and transport failures end the
	// exchange, so the SDK's own retry loop stays off.
	client := openai.NewClient(
		option.WithBaseURL(endpoint+"/"),
		option.WithAPIKey(cfg.Token),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)

	return &ChatModel{
		client:      client,
		model:       modelName,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Generate performs a blocking completion and returns the assistant message.
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	params, err := m.buildParams(input, opts...)
	if err != nil {
		return nil, err
	}

	completion, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}

	content, err := messageContent(completion)
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(content, nil), nil
}

// Stream performs a streaming completion. Each received chunk becomes one
// assistant message whose Content is the delta text, possibly empty.
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	params, err := m.buildParams(input, opts...)
	if err != nil {
		return nil, err
	}

	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	// The request itself has completed here; a rejected status surfaces
	// before any chunk is read.
	if err := stream.Err(); err != nil {
		return nil, classify(err)
	}

	sr, sw := schema.Pipe[*schema.Message](16)
	go func() {
		defer sw.Close()
		defer stream.Close()

		if err := relayChunks(stream, sw); err != nil {
			sw.Send(nil, err)
		}
	}()

	return sr, nil
}

// chunkStream is the part of the SDK stream relayChunks consumes.
type chunkStream interface {
	Next() bool
	Current() openai.ChatCompletionChunk
	Err() error
}

func relayChunks(stream chunkStream, sw *schema.StreamWriter[*schema.Message]) error {
	finished := false
	for stream.Next() {
		chunk := stream.Current()
		if chunkFinished(chunk) {
			finished = true
		}
		if closed := sw.Send(schema.AssistantMessage(deltaContent(chunk), nil), nil); closed {
			return nil
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("%w: read stream: %w", chat.ErrTransport, err)
	}
	if !finished {
		return fmt.Errorf("%w: stream ended before completion", chat.ErrTransport)
	}
	return nil
}

func (m *ChatModel) buildParams(input []*schema.Message, opts ...model.Option) (openai.ChatCompletionNewParams, error) {
	if len(input) == 0 {
		return openai.ChatCompletionNewParams{}, chat.ErrNoTurns
	}

	maxTokens := m.maxTokens
	modelName := m.model
	options := model.GetCommonOptions(&model.Options{
		MaxTokens:   &maxTokens,
		Model:       &modelName,
		Temperature: m.temperature,
	}, opts...)

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case schema.User:
			messages = append(messages, openai.UserMessage(msg.Content))
		case schema.Assistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			log.Printf("[inference] dropping message with role %q", msg.Role)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelName),
		Messages: messages,
	}
	if options.Model != nil && *options.Model != "" {
		params.Model = openai.ChatModel(*options.Model)
	}
	if options.MaxTokens != nil && *options.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(*options.MaxTokens))
	}
	if options.Temperature != nil {
		params.Temperature = openai.Float(float64(*options.Temperature))
	}
	return params, nil
}

// classify maps SDK errors onto the chat failure kinds. A status error is
// auth (401/403) or transport; a body that is not valid JSON is a shape
// error; everything else failed before a response arrived.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		kind := chat.ErrTransport
		if apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden {
			kind = chat.ErrAuth
		}
		detail := strings.TrimSpace(apiErr.Message)
		if detail == "" {
			detail = http.StatusText(apiErr.StatusCode)
		}
		return fmt.Errorf("%w: status %d: %s", kind, apiErr.StatusCode, detail)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("%w: decode response: %v", chat.ErrShape, err)
	}

	return fmt.Errorf("%w: %w", chat.ErrTransport, err)
}
