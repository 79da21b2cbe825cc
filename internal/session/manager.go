package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/relay/internal/engine"
	"github.com/gosuda/relay/internal/protocol"
)

// PubSubPublisher abstracts the Redis pub/sub publish operation. A nil
// publisher disables event mirroring.
type PubSubPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// ChannelFunc names the pub/sub channel for a session.
type ChannelFunc func(uuid.UUID) string

// Manager owns the id → Session map. The HTTP layer creates and deletes
// sessions through it; every handler reads it.
type Manager struct {
	query       engine.QueryFunc
	pubsub      PubSubPublisher
	channelName ChannelFunc

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewManager creates a Manager. pubsub may be nil; when set, every event of
// every session is also published to channelName(sessionID).
func NewManager(query engine.QueryFunc, pubsub PubSubPublisher, channelName ChannelFunc) *Manager {
	return &Manager{
		query:       query,
		pubsub:      pubsub,
		channelName: channelName,
		sessions:    make(map[uuid.UUID]*Session),
	}
}

// Create starts a new session seeded with initialPrompt and begins draining
// the engine in a background goroutine.
func (m *Manager) Create(ctx context.Context, initialPrompt string) (*Session, error) {
	id := uuid.New()

	var sink func(protocol.Event)
	if m.pubsub != nil {
		sink = m.mirrorFunc(id)
	}

	s, err := newSession(ctx, id, m.query, initialPrompt, sink)
	if err != nil {
		return nil, fmt.Errorf("session.Manager.Create: %w", err)
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	go s.drive()

	return s, nil
}

// Get returns the session for id.
func (m *Manager) Get(id uuid.UUID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete aborts the session and removes it from the map.
func (m *Manager) Delete(id uuid.UUID) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if ok {
		s.Abort()
	}
	return ok
}

// Shutdown aborts every live session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[uuid.UUID]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Abort()
	}
}

// mirrorFunc publishes encoded events to the session's pub/sub channel so
// websocket observers can follow along.
func (m *Manager) mirrorFunc(id uuid.UUID) func(protocol.Event) {
	channel := m.channelName(id)
	return func(ev protocol.Event) {
		payload, err := json.Marshal(ev)
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if pubErr := m.pubsub.Publish(ctx, channel, payload); pubErr != nil {
			log.Error().Err(pubErr).Str("channel", channel).Msg("session.Manager: failed to publish event")
		}
	}
}
