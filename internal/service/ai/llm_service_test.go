package ai_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/deepseek-chatbot/internal/config"
	"github.com/zhouzirui/deepseek-chatbot/internal/model/chat"
	"github.com/zhouzirui/deepseek-chatbot/internal/service/ai"
	"github.com/zhouzirui/deepseek-chatbot/internal/service/ai/aitest"
)

var testConfig = config.AIConfig{MaxTokens: 1000}

func drain(t *testing.T, f *ai.Fragments) ([]string, error) {
	t.Helper()
	defer f.Close()

	var parts []string
	for {
		part, err := f.Next()
		if errors.Is(err, io.EOF) {
			return parts, nil
		}
		if err != nil {
			return parts, err
		}
		parts = append(parts, part)
	}
}

func TestCompleteConvertsTurns(t *testing.T) {
	fake := aitest.Reply("Paris.")
	svc := ai.New(fake, testConfig)

	got, err := svc.Complete(context.Background(), []chat.Turn{
		chat.SystemTurn("be brief"),
		chat.UserTurn("What is the capital of France?"),
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, "Paris.", got)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 1000, calls[0].MaxTokens)
	require.Len(t, calls[0].Messages, 2)
	assert.Equal(t, schema.System, calls[0].Messages[0].Role)
	assert.Equal(t, schema.User, calls[0].Messages[1].Role)
	assert.Equal(t, "What is the capital of France?", calls[0].Messages[1].Content)
}

func TestCompleteHonoursMaxTokens(t *testing.T) {
	fake := aitest.Reply("ok")
	svc := ai.New(fake, testConfig)

	_, err := svc.Complete(context.Background(), []chat.Turn{chat.UserTurn("hi")}, 300)
	require.NoError(t, err)
	assert.Equal(t, 300, fake.Calls()[0].MaxTokens)
}

func TestCompleteRejectsEmptyTurns(t *testing.T) {
	fake := aitest.Reply("unused")
	svc := ai.New(fake, testConfig)

	_, err := svc.Complete(context.Background(), nil, 0)
	assert.ErrorIs(t, err, chat.ErrNoTurns)
	assert.Empty(t, fake.Calls())

	_, err = svc.Stream(context.Background(), nil, 0)
	assert.ErrorIs(t, err, chat.ErrNoTurns)
}

func TestCompleteNilMessageIsShapeError(t *testing.T) {
	svc := ai.New(&aitest.Model{}, testConfig)

	_, err := svc.Complete(context.Background(), []chat.Turn{chat.UserTurn("hi")}, 0)
	assert.ErrorIs(t, err, chat.ErrShape)
}

func TestCompleteClassifiesErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"auth kept", chat.ErrAuth, chat.ErrAuth},
		{"shape kept", chat.ErrShape, chat.ErrShape},
		{"raw becomes transport", errors.New("connection reset"), chat.ErrTransport},
		{"cancellation becomes transport", context.Canceled, chat.ErrTransport},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := ai.New(aitest.Failing(tc.err), testConfig)
			_, err := svc.Complete(context.Background(), []chat.Turn{chat.UserTurn("hi")}, 0)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestStreamDeliversFragmentsInOrder(t *testing.T) {
	svc := ai.New(aitest.Fragments("Par", "", "is"), testConfig)

	f, err := svc.Stream(context.Background(), []chat.Turn{chat.UserTurn("capital?")}, 0)
	require.NoError(t, err)

	parts, err := drain(t, f)
	require.NoError(t, err)
	assert.Equal(t, []string{"Par", "", "is"}, parts)
}

func TestStreamNilChunkIsEmptyFragment(t *testing.T) {
	fake := &aitest.Model{Parts: []*schema.Message{nil, schema.AssistantMessage("x", nil)}}
	svc := ai.New(fake, testConfig)

	f, err := svc.Stream(context.Background(), []chat.Turn{chat.UserTurn("hi")}, 0)
	require.NoError(t, err)

	parts, err := drain(t, f)
	require.NoError(t, err)
	assert.Equal(t, []string{"", "x"}, parts)
}

func TestStreamRecvFailureIsTransportError(t *testing.T) {
	fake := aitest.Fragments("Par")
	fake.RecvErr = errors.New("connection reset by peer")
	svc := ai.New(fake, testConfig)

	f, err := svc.Stream(context.Background(), []chat.Turn{chat.UserTurn("hi")}, 0)
	require.NoError(t, err)

	parts, err := drain(t, f)
	assert.Equal(t, []string{"Par"}, parts)
	assert.ErrorIs(t, err, chat.ErrTransport)
}

func TestNewServiceRequiresCredential(t *testing.T) {
	_, err := ai.NewService(context.Background(), testConfig, "")
	assert.ErrorIs(t, err, chat.ErrAuth)
}

func TestNewDefaultsMaxTokens(t *testing.T) {
	fake := aitest.Reply("x")
	svc := ai.New(fake, config.AIConfig{})

	_, err := svc.Complete(context.Background(), []chat.Turn{chat.UserTurn("hi")}, 0)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultMaxTokens, fake.Calls()[0].MaxTokens)
}

func TestUnknownRolesAreDropped(t *testing.T) {
	fake := aitest.Reply("ok")
	svc := ai.New(fake, testConfig)

	_, err := svc.Complete(context.Background(), []chat.Turn{
		{Role: chat.Role("tool"), Content: "ignored"},
		chat.UserTurn("hi"),
	}, 0)
	require.NoError(t, err)

	messages := fake.Calls()[0].Messages
	require.Len(t, messages, 1)
	assert.Equal(t, schema.User, messages[0].Role)
}
