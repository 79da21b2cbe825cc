// Package session owns per-conversation state: one engine invocation, its
// input and output queues, the stream translator, and the permission gate.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/relay/internal/channel"
	"github.com/gosuda/relay/internal/engine"
	"github.com/gosuda/relay/internal/gate"
	"github.com/gosuda/relay/internal/protocol"
	"github.com/gosuda/relay/internal/translate"
)

// Session multiplexes user turns into a single long-running engine invocation
// and drains its messages into a normalized event stream. The driver
// goroutine writes translated events to the output queue and the permission
// gate writes its events there too (from the engine's tool-gate callback and
// the respond handler); the SSE responder is its only reader.
type Session struct {
	ID uuid.UUID

	input      *channel.Queue[engine.Message]
	output     *channel.Queue[protocol.Event]
	translator *translate.Translator
	gate       *gate.Gate
	invocation *engine.Invocation
	sink       func(protocol.Event)

	aborted   atomic.Bool
	abortOnce sync.Once
}

// newSession wires the queues, translator, and gate, starts the engine, and
// pushes the initial prompt. The driver goroutine is started by the caller.
func newSession(ctx context.Context, id uuid.UUID, query engine.QueryFunc, initialPrompt string, sink func(protocol.Event)) (*Session, error) {
	s := &Session{
		ID:         id,
		input:      channel.NewQueue[engine.Message](),
		output:     channel.NewQueue[protocol.Event](),
		translator: translate.New(),
		sink:       sink,
	}
	s.gate = gate.New(s.emit)

	invocation, err := query(ctx, engine.QueryRequest{
		Prompt:     s.input,
		Permission: s.gate.Request,
	})
	if err != nil {
		return nil, fmt.Errorf("session.newSession: %w", err)
	}
	s.invocation = invocation

	s.input.Push(engine.UserMessage(initialPrompt))
	return s, nil
}

// Events returns the session's output queue. There must be at most one
// concurrent reader.
func (s *Session) Events() *channel.Queue[protocol.Event] {
	return s.output
}

// Gate returns the session's permission gate for out-of-band resolution.
func (s *Session) Gate() *gate.Gate {
	return s.gate
}

// Running reports whether the session still produces events.
func (s *Session) Running() bool {
	return !s.output.Closed()
}

// PushMessage queues another user turn for the engine.
func (s *Session) PushMessage(text string) {
	s.input.Push(engine.UserMessage(text))
}

// Interrupt asks the engine to stop the current turn without tearing the
// session down.
func (s *Session) Interrupt() {
	if s.invocation.Interrupt != nil {
		s.invocation.Interrupt()
	}
}

// Abort tears the session down: the driver stops between messages, both
// queues close (the SSE responder observes end-of-stream), and the engine's
// abort handle is signalled. Pending permissions and questions never resolve.
func (s *Session) Abort() {
	s.abortOnce.Do(func() {
		s.aborted.Store(true)
		if s.invocation.Abort != nil {
			s.invocation.Abort()
		}
		s.input.Close()
		s.output.Close()
	})
}

// drive drains the engine invocation into the output queue until completion
// or abort. Translator output for one engine message is pushed contiguously.
func (s *Session) drive() {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("session_id", s.ID.String()).Any("panic", r).Msg("session.drive: driver panicked")
			s.emit(protocol.ErrorEvent(fmt.Sprintf("driver failure: %v", r)))
		}
		s.output.Close()
	}()

	ctx := context.Background()
	for {
		if s.aborted.Load() {
			return
		}
		msg, ok := s.invocation.Messages.Recv(ctx)
		if !ok {
			return
		}
		for _, ev := range s.translator.Translate(msg) {
			s.emit(ev)
		}
	}
}

func (s *Session) emit(ev protocol.Event) {
	s.output.Push(ev)
	if s.sink != nil {
		s.sink(ev)
	}
}
