package session_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/relay/internal/channel"
	"github.com/gosuda/relay/internal/engine"
	"github.com/gosuda/relay/internal/engine/enginetest"
	"github.com/gosuda/relay/internal/protocol"
	"github.com/gosuda/relay/internal/session"
)

func textTurn(sessionID string, parts ...string) enginetest.Turn {
	return func(_ engine.QueryRequest, out *channel.Queue[engine.Message]) {
		if sessionID != "" {
			out.Push(enginetest.Init(sessionID))
		}
		out.Push(enginetest.MessageStart())
		for _, part := range parts {
			out.Push(enginetest.TextDelta(part))
		}
	}
}

func drain(t *testing.T, s *session.Session) []protocol.Event {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var events []protocol.Event
	for {
		ev, ok := s.Events().Recv(ctx)
		if !ok {
			require.NoError(t, ctx.Err(), "timed out draining session events")
			return events
		}
		events = append(events, ev)
	}
}

func eventTypes(events []protocol.Event) []protocol.EventType {
	types := make([]protocol.EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func TestSessionStreamsTranslatedEvents(t *testing.T) {
	t.Parallel()

	eng := &enginetest.Scripted{Turns: []enginetest.Turn{
		func(req engine.QueryRequest, out *channel.Queue[engine.Message]) {
			textTurn("sess-1", "Hello ", "world!")(req, out)
			out.Push(enginetest.Success())
		},
	}}

	mgr := session.NewManager(eng.Query, nil, nil)
	s, err := mgr.Create(context.Background(), "Hi")
	require.NoError(t, err)

	events := drain(t, s)
	assert.Equal(t, []protocol.EventType{
		protocol.EventSessionInit,
		protocol.EventMessageStart,
		protocol.EventTextDelta,
		protocol.EventTextDelta,
		protocol.EventResult,
	}, eventTypes(events))
	assert.Equal(t, "sess-1", events[0].SessionID)
	assert.False(t, s.Running())
}

func TestSessionMultiTurn(t *testing.T) {
	t.Parallel()

	eng := &enginetest.Scripted{Turns: []enginetest.Turn{
		textTurn("sess-1", "first"),
		textTurn("", "second"),
	}}

	mgr := session.NewManager(eng.Query, nil, nil)
	s, err := mgr.Create(context.Background(), "Hello")
	require.NoError(t, err)

	s.PushMessage("Follow up")

	events := drain(t, s)
	starts := 0
	for _, ev := range events {
		if ev.Type == protocol.EventMessageStart {
			starts++
		}
	}
	assert.Equal(t, 2, starts)
}

func TestSessionPermissionRoundTrip(t *testing.T) {
	t.Parallel()

	// The engine waits until the text deltas were observed before requesting
	// permission, so the event order below is deterministic.
	proceed := make(chan struct{})
	eng := &enginetest.Scripted{Turns: []enginetest.Turn{
		func(req engine.QueryRequest, out *channel.Queue[engine.Message]) {
			textTurn("sess-1", "Checking...")(req, out)
			<-proceed

			result := <-req.Permission("Bash", map[string]any{"command": "rm -rf /"}, &engine.PermissionContext{
				ToolUseID: "tc-perm",
				Reason:    "dangerous",
			})
			if result.Behavior == engine.BehaviorAllow {
				out.Push(enginetest.TextDelta(" Allowed."))
			}
			out.Push(enginetest.Success())
		},
	}}

	mgr := session.NewManager(eng.Query, nil, nil)
	s, err := mgr.Create(context.Background(), "run it")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var events []protocol.Event
	for {
		ev, ok := s.Events().Recv(ctx)
		require.True(t, ok, "stream ended before permission_request")
		events = append(events, ev)
		if ev.Type == protocol.EventTextDelta && ev.Text == "Checking..." {
			close(proceed)
		}
		if ev.Type == protocol.EventPermissionRequest {
			require.Equal(t, "Bash", ev.ToolName)
			require.Equal(t, "tc-perm", ev.ToolUseID)
			require.Equal(t, "dangerous", ev.Reason)
			require.NoError(t, s.Gate().Resolve(ev.ID, protocol.BehaviorAllow, nil))
			break
		}
	}

	for {
		ev, ok := s.Events().Recv(ctx)
		if !ok {
			break
		}
		events = append(events, ev)
	}

	assert.Equal(t, []protocol.EventType{
		protocol.EventSessionInit,
		protocol.EventMessageStart,
		protocol.EventTextDelta,
		protocol.EventPermissionRequest,
		protocol.EventPermissionResolved,
		protocol.EventTextDelta,
		protocol.EventResult,
	}, eventTypes(events))
	assert.Equal(t, " Allowed.", events[5].Text)
}

func TestSessionAbort(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	eng := &enginetest.Scripted{Turns: []enginetest.Turn{
		func(req engine.QueryRequest, out *channel.Queue[engine.Message]) {
			textTurn("sess-1", "partial")(req, out)
			<-block
		},
	}}

	mgr := session.NewManager(eng.Query, nil, nil)
	s, err := mgr.Create(context.Background(), "Hi")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Wait until the first events flow, then abort mid-stream.
	_, ok := s.Events().Recv(ctx)
	require.True(t, ok)

	s.Abort()
	close(block)

	for {
		_, ok := s.Events().Recv(ctx)
		if !ok {
			break
		}
	}

	assert.True(t, eng.Aborted())
	assert.False(t, s.Running())

	// Abort is idempotent.
	s.Abort()
}

func TestSessionInterrupt(t *testing.T) {
	t.Parallel()

	eng := &enginetest.Scripted{Turns: []enginetest.Turn{
		func(_ engine.QueryRequest, out *channel.Queue[engine.Message]) {
			out.Push(enginetest.Success())
		},
	}}

	mgr := session.NewManager(eng.Query, nil, nil)
	s, err := mgr.Create(context.Background(), "Hi")
	require.NoError(t, err)

	s.Interrupt()
	assert.True(t, eng.Interrupted())

	drain(t, s)
}

func TestManagerGetDelete(t *testing.T) {
	t.Parallel()

	eng := &enginetest.Scripted{Turns: []enginetest.Turn{
		textTurn("sess-1", "hi"),
	}}

	mgr := session.NewManager(eng.Query, nil, nil)
	s, err := mgr.Create(context.Background(), "Hi")
	require.NoError(t, err)

	got, ok := mgr.Get(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)

	assert.True(t, mgr.Delete(s.ID))
	assert.False(t, mgr.Delete(s.ID))

	_, ok = mgr.Get(s.ID)
	assert.False(t, ok)
	assert.True(t, eng.Aborted())
}

type fakePublisher struct {
	mu       sync.Mutex
	payloads map[string][][]byte
}

func (p *fakePublisher) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.payloads == nil {
		p.payloads = make(map[string][][]byte)
	}
	p.payloads[channel] = append(p.payloads[channel], payload)
	return nil
}

func TestManagerMirrorsEvents(t *testing.T) {
	t.Parallel()

	eng := &enginetest.Scripted{Turns: []enginetest.Turn{
		func(req engine.QueryRequest, out *channel.Queue[engine.Message]) {
			textTurn("sess-1", "hello")(req, out)
			out.Push(enginetest.Success())
		},
	}}

	pub := &fakePublisher{}
	mgr := session.NewManager(eng.Query, pub, func(id uuid.UUID) string {
		return "session:" + id.String()
	})

	s, err := mgr.Create(context.Background(), "Hi")
	require.NoError(t, err)

	events := drain(t, s)

	pub.mu.Lock()
	mirrored := pub.payloads["session:"+s.ID.String()]
	pub.mu.Unlock()

	require.Len(t, mirrored, len(events))
	var first protocol.Event
	require.NoError(t, json.Unmarshal(mirrored[0], &first))
	assert.Equal(t, protocol.EventSessionInit, first.Type)
}
