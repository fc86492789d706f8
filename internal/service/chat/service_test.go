package chat_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/zhouzirui/deepseek-chatbot/internal/config"
	modelchat "github.com/zhouzirui/deepseek-chatbot/internal/model/chat"
	"github.com/zhouzirui/deepseek-chatbot/internal/model/preset"
	"github.com/zhouzirui/deepseek-chatbot/internal/service/ai"
	"github.com/zhouzirui/deepseek-chatbot/internal/service/ai/aitest"
	chat "github.com/zhouzirui/deepseek-chatbot/internal/service/chat"
	"github.com/zhouzirui/deepseek-chatbot/internal/service/conversation"
)

func newService(t *testing.T, answer string) (*chat.Service, *[]config.Credential) {
	t.Helper()
	var seen []config.Credential
	factory := func(_ context.Context, credential config.Credential) (conversation.Completer, error) {
		seen = append(seen, credential)
		return ai.New(aitest.Reply(answer), config.AIConfig{}), nil
	}
	store := preset.NewMemoryStore(preset.Seed())
	return chat.NewService(factory, store, conversation.Options{MaxTokens: 1000}), &seen
}

func TestServiceGetSession(t *testing.T) {
	svc, _ := newService(t, "ok")
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, config.Credential("token"), "geography")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	got, err := svc.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession err: %v", err)
	}

	if got.ID != session.ID {
		t.Fatalf("unexpected session ID: got %s want %s", got.ID, session.ID)
	}
	if got.PresetID != "geography" {
		t.Fatalf("unexpected preset ID: got %s", got.PresetID)
	}
}

func TestServiceGetSessionNotFound(t *testing.T) {
	svc, _ := newService(t, "ok")
	ctx := context.Background()

	if _, err := svc.GetSession(ctx, "missing"); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := svc.Conversation("missing"); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestServiceCreateSessionRequiresCredential(t *testing.T) {
	svc, seen := newService(t, "ok")

	_, err := svc.CreateSession(context.Background(), config.Credential(""), "")
	if !errors.Is(err, modelchat.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if len(*seen) != 0 {
		t.Fatalf("factory should not run without a credential")
	}
	if svc.Count() != 0 {
		t.Fatalf("no session expected, got %d", svc.Count())
	}
}

func TestServiceCreateSessionUnknownPreset(t *testing.T) {
	svc, _ := newService(t, "ok")

	if _, err := svc.CreateSession(context.Background(), config.Credential("token"), "pirate"); !errors.Is(err, chat.ErrPresetNotFound) {
		t.Fatalf("expected ErrPresetNotFound, got %v", err)
	}
}

func TestServiceFactoryError(t *testing.T) {
	boom := errors.New("boom")
	factory := func(context.Context, config.Credential) (conversation.Completer, error) { return nil, boom }
	svc := chat.NewService(factory, nil, conversation.Options{})

	if _, err := svc.CreateSession(context.Background(), config.Credential("token"), ""); !errors.Is(err, boom) {
		t.Fatalf("expected factory error, got %v", err)
	}
}

func TestServiceSeedsPresetSystemTurn(t *testing.T) {
	svc, _ := newService(t, "ok")
	ctx := context.Background()

	plain, err := svc.CreateSession(ctx, config.Credential("token"), "")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	if plain.PresetID != preset.DefaultID {
		t.Fatalf("expected default preset, got %s", plain.PresetID)
	}
	transcript, _ := svc.LoadTranscript(ctx, plain.ID)
	if len(transcript) != 0 {
		t.Fatalf("default preset must start empty, got %d turns", len(transcript))
	}

	geo, err := svc.CreateSession(ctx, config.Credential("token"), "geography")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	transcript, _ = svc.LoadTranscript(ctx, geo.ID)
	if len(transcript) != 1 || transcript[0].Role != modelchat.RoleSystem {
		t.Fatalf("expected one system turn, got %+v", transcript)
	}
}

func TestServiceSessionsAreIsolated(t *testing.T) {
	svc, seen := newService(t, "Paris.")
	ctx := context.Background()

	a, _ := svc.CreateSession(ctx, config.Credential("token-a"), "")
	b, _ := svc.CreateSession(ctx, config.Credential("token-b"), "")
	if len(*seen) != 2 || (*seen)[0] == (*seen)[1] {
		t.Fatalf("each session must get its own client, saw %v", *seen)
	}

	conv, err := svc.Conversation(a.ID)
	if err != nil {
		t.Fatalf("Conversation err: %v", err)
	}
	if _, err := conv.Submit(ctx, "What is the capital of France?"); err != nil {
		t.Fatalf("Submit err: %v", err)
	}

	ta, _ := svc.LoadTranscript(ctx, a.ID)
	tb, _ := svc.LoadTranscript(ctx, b.ID)
	if len(ta) != 2 || len(tb) != 0 {
		t.Fatalf("unexpected transcript sizes a=%d b=%d", len(ta), len(tb))
	}
	if ta[1].Content != "Paris." {
		t.Fatalf("unexpected reply %q", ta[1].Content)
	}
}

func TestServiceResetAndDelete(t *testing.T) {
	svc, _ := newService(t, "ok")
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, config.Credential("token"), "")
	conv, _ := svc.Conversation(session.ID)
	if _, err := conv.Submit(ctx, "hello"); err != nil {
		t.Fatalf("Submit err: %v", err)
	}

	if err := svc.ResetSession(ctx, session.ID); err != nil {
		t.Fatalf("ResetSession err: %v", err)
	}
	transcript, _ := svc.LoadTranscript(ctx, session.ID)
	if len(transcript) != 0 {
		t.Fatalf("expected empty transcript after reset, got %d", len(transcript))
	}

	if err := svc.DeleteSession(ctx, session.ID); err != nil {
		t.Fatalf("DeleteSession err: %v", err)
	}
	if err := svc.DeleteSession(ctx, session.ID); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound on second delete, got %v", err)
	}
	if err := svc.ResetSession(ctx, session.ID); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
}

func TestServiceRejectedCredentialClosesSession(t *testing.T) {
	fake := aitest.Failing(fmt.Errorf("%w: status 401", modelchat.ErrAuth))
	factory := func(_ context.Context, _ config.Credential) (conversation.Completer, error) {
		return ai.New(fake, config.AIConfig{}), nil
	}
	svc := chat.NewService(factory, nil, conversation.Options{MaxTokens: 1000})
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, config.Credential("stale"), "")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	reply, err := svc.Submit(ctx, session.ID, "hi")
	if err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	if !errors.Is(reply.Err, modelchat.ErrAuth) || reply.Turn.Content != modelchat.FallbackContent {
		t.Fatalf("expected auth fallback reply, got %+v", reply)
	}

	if _, err := svc.Submit(ctx, session.ID, "again"); !errors.Is(err, modelchat.ErrAuth) {
		t.Fatalf("expected ErrAuth after rejection, got %v", err)
	}
	if _, err := svc.Conversation(session.ID); !errors.Is(err, modelchat.ErrAuth) {
		t.Fatalf("expected ErrAuth from Conversation, got %v", err)
	}
	if got := len(fake.Calls()); got != 1 {
		t.Fatalf("rejected credential was reused: %d upstream calls", got)
	}
	if svc.Count() != 0 {
		t.Fatalf("expected closed session to be dropped, got %d", svc.Count())
	}

	if err := svc.DeleteSession(ctx, session.ID); err != nil {
		t.Fatalf("DeleteSession of closed session err: %v", err)
	}
	if _, err := svc.Conversation(session.ID); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
}

func TestServiceSubmitSuccessKeepsSession(t *testing.T) {
	svc, _ := newService(t, "Paris.")
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, config.Credential("token"), "")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	reply, err := svc.Submit(ctx, session.ID, "What is the capital of France?")
	if err != nil || reply.Failed() {
		t.Fatalf("unexpected submit result: %+v, %v", reply, err)
	}
	if reply.Turn.Content != "Paris." {
		t.Fatalf("unexpected answer %q", reply.Turn.Content)
	}
	if svc.Count() != 1 {
		t.Fatalf("expected session to stay, got %d", svc.Count())
	}
}
