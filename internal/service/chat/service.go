package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/deepseek-chatbot/internal/config"
	"github.com/zhouzirui/deepseek-chatbot/internal/model/chat"
	"github.com/zhouzirui/deepseek-chatbot/internal/model/preset"
	"github.com/zhouzirui/deepseek-chatbot/internal/service/ai"
	"github.com/zhouzirui/deepseek-chatbot/internal/service/conversation"
)

var (
	ErrPresetNotFound  = errors.New("preset not found")
	ErrSessionNotFound = errors.New("session not found")
)

// Session describes one connected conversation.
type Session struct {
	ID        string    `json:"id"`
	PresetID  string    `json:"presetId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Factory builds a dedicated completion client for one credential.
type Factory func(ctx context.Context, credential config.Credential) (conversation.Completer, error)

// AIFactory returns a Factory backed by ai.NewService.
func AIFactory(cfg config.AIConfig) Factory {
	return func(ctx context.Context, credential config.Credential) (conversation.Completer, error) {
		svc, err := ai.NewService(ctx, cfg, credential)
		if err != nil {
			return nil, err
		}
		return svc, nil
	}
}

type entry struct {
	session      Session
	orchestrator *conversation.Orchestrator
}

// Service keeps the connected sessions in memory. The lock guards only the
// map; each orchestrator serialises its own submits.
type Service struct {
	factory  Factory
	presets  preset.Store
	defaults conversation.Options

	mu       sync.RWMutex
	sessions map[string]*entry
	// revoked remembers sessions closed because their credential was
	// rejected, so later calls ask for a new token instead of a 404.
	revoked map[string]struct{}
}

// NewService bootstraps the in-memory registry.
func NewService(factory Factory, presets preset.Store, defaults conversation.Options) *Service {
	return &Service{
		factory:  factory,
		presets:  presets,
		defaults: defaults,
		sessions: make(map[string]*entry),
		revoked:  make(map[string]struct{}),
	}
}

// Defaults returns the conversation defaults applied to new sessions.
func (s *Service) Defaults() conversation.Options {
	return s.defaults
}

// CreateSession authenticates with credential and provisions an empty
// conversation, seeded with the preset's system turn when it has one.
func (s *Service) CreateSession(ctx context.Context, credential config.Credential, presetID string) (Session, error) {
	if credential.Empty() {
		return Session{}, fmt.Errorf("%w: no authentication token supplied", chat.ErrAuth)
	}
	if presetID == "" {
		presetID = preset.DefaultID
	}

	var seed []chat.Turn
	if s.presets != nil {
		p, ok := s.presets.FindByID(presetID)
		if !ok {
			return Session{}, ErrPresetNotFound
		}
		if p.System != "" {
			seed = append(seed, chat.SystemTurn(p.System))
		}
	} else if presetID != preset.DefaultID {
		return Session{}, ErrPresetNotFound
	}

	client, err := s.factory(ctx, credential)
	if err != nil {
		return Session{}, err
	}

	session := Session{
		ID:        uuid.NewString(),
		PresetID:  presetID,
		CreatedAt: time.Now().UTC(),
	}
	orchestrator := conversation.New(chat.NewSession(seed...), client, s.defaults)

	s.mu.Lock()
	s.sessions[session.ID] = &entry{session: session, orchestrator: orchestrator}
	s.mu.Unlock()

	log.Printf("[chat] session created id=%s preset=%s", session.ID, presetID)
	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (Session, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return Session{}, err
	}
	return e.session, nil
}

// Conversation returns the orchestrator driving the session.
func (s *Service) Conversation(sessionID string) (*conversation.Orchestrator, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return e.orchestrator, nil
}

// Submit runs one user message through the session's conversation. When the
// upstream service rejects the credential the reply is still returned, but
// the session is closed: the client and credential are dropped and later
// calls fail with chat.ErrAuth until the user creates a new session.
func (s *Service) Submit(ctx context.Context, sessionID, text string, opts ...conversation.SubmitOption) (conversation.Reply, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return conversation.Reply{}, err
	}

	reply, err := e.orchestrator.Submit(ctx, text, opts...)
	if err != nil {
		return reply, err
	}
	if errors.Is(reply.Err, chat.ErrAuth) {
		s.revoke(sessionID)
	}
	return reply, nil
}

func (s *Service) revoke(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return
	}
	delete(s.sessions, sessionID)
	s.revoked[sessionID] = struct{}{}
	log.Printf("[chat] session closed after credential was rejected id=%s", sessionID)
}

// LoadTranscript returns the committed turns of the session.
func (s *Service) LoadTranscript(_ context.Context, sessionID string) ([]chat.Turn, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return e.orchestrator.History(), nil
}

// ResetSession clears the conversation, keeping the session and its client.
func (s *Service) ResetSession(_ context.Context, sessionID string) error {
	e, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	return e.orchestrator.Reset()
}

// DeleteSession disconnects the session, dropping its client and credential.
func (s *Service) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.revoked[sessionID]; ok {
		delete(s.revoked, sessionID)
		return nil
	}
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	log.Printf("[chat] session deleted id=%s", sessionID)
	return nil
}

// Count returns the number of connected sessions.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Service) lookup(sessionID string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		if _, closed := s.revoked[sessionID]; closed {
			return nil, fmt.Errorf("%w: session %s was closed, create a new session", chat.ErrAuth, sessionID)
		}
		return nil, ErrSessionNotFound
	}
	return e, nil
}
