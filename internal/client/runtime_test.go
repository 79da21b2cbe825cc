package client_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/relay/internal/channel"
	"github.com/gosuda/relay/internal/client"
	"github.com/gosuda/relay/internal/config"
	"github.com/gosuda/relay/internal/engine"
	"github.com/gosuda/relay/internal/engine/enginetest"
	"github.com/gosuda/relay/internal/server"
	"github.com/gosuda/relay/internal/session"
)

func newBackend(t *testing.T, eng *enginetest.Scripted) *httptest.Server {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{
			Addr:        ":0",
			ReadTimeout: 10 * time.Second,
			CORSOrigins: []string{"*"},
		},
	}
	mgr := session.NewManager(eng.Query, nil, nil)
	srv := server.New(context.Background(), cfg, mgr, nil)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func waitDone(t *testing.T, rt *client.Runtime) *client.Snapshot {
	t.Helper()

	require.Eventually(t, func() bool {
		snap := rt.Snapshot()
		return snap.SessionID != "" && !snap.IsRunning && !snap.Connected
	}, 5*time.Second, 5*time.Millisecond, "runtime never reached terminal state")
	return rt.Snapshot()
}

func TestRuntimeFullConversation(t *testing.T) {
	t.Parallel()

	eng := &enginetest.Scripted{Turns: []enginetest.Turn{
		func(_ engine.QueryRequest, out *channel.Queue[engine.Message]) {
			out.Push(enginetest.Init("int-1"))
			out.Push(enginetest.MessageStart())
			out.Push(enginetest.TextDelta("Hello "))
			out.Push(enginetest.TextDelta("world!"))
			out.Push(enginetest.Assistant())
			out.Push(enginetest.Success())
		},
	}}

	ts := newBackend(t, eng)
	rt := client.NewRuntime(ts.URL)
	defer rt.Destroy()

	require.NoError(t, rt.SendMessage(context.Background(), "Hi"))

	snap := waitDone(t, rt)
	assert.Equal(t, "int-1", snap.SessionID)
	assert.Equal(t, []client.UIMessage{
		{
			Role:    "assistant",
			Content: []client.Part{{Type: client.PartText, Text: "Hello world!"}},
			Status:  client.Status{Type: client.StatusComplete},
		},
	}, snap.Messages)
}

func TestRuntimePermissionFlow(t *testing.T) {
	t.Parallel()

	// The engine waits until the text delta was reduced before requesting
	// permission; otherwise the permission_request can overtake session_init,
	// which resets the client state.
	proceed := make(chan struct{})
	eng := &enginetest.Scripted{Turns: []enginetest.Turn{
		func(req engine.QueryRequest, out *channel.Queue[engine.Message]) {
			out.Push(enginetest.Init("int-1"))
			out.Push(enginetest.MessageStart())
			out.Push(enginetest.TextDelta("Checking..."))
			<-proceed

			result := <-req.Permission("Bash", map[string]any{"command": "rm -rf /"}, nil)
			if result.Behavior == engine.BehaviorAllow {
				out.Push(enginetest.TextDelta(" Allowed."))
			}
			out.Push(enginetest.Success())
		},
	}}

	ts := newBackend(t, eng)
	rt := client.NewRuntime(ts.URL)
	defer rt.Destroy()

	require.NoError(t, rt.SendMessage(context.Background(), "run it"))

	require.Eventually(t, func() bool {
		snap := rt.Snapshot()
		return len(snap.Messages) == 1 && snap.Messages[0].Content[0].Text == "Checking..."
	}, 5*time.Second, 5*time.Millisecond, "text delta never surfaced")
	close(proceed)

	var permID string
	require.Eventually(t, func() bool {
		snap := rt.Snapshot()
		if len(snap.PendingPermissions) == 0 {
			return false
		}
		permID = snap.PendingPermissions[0].ID
		return true
	}, 5*time.Second, 5*time.Millisecond, "permission request never surfaced")

	require.NoError(t, rt.RespondToPermission(context.Background(), permID, "allow", nil))

	snap := waitDone(t, rt)
	assert.Empty(t, snap.PendingPermissions)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "Checking... Allowed.", snap.Messages[0].Content[0].Text)
}

func TestRuntimeMultiTurn(t *testing.T) {
	t.Parallel()

	turn := func(text string) enginetest.Turn {
		return func(_ engine.QueryRequest, out *channel.Queue[engine.Message]) {
			out.Push(enginetest.MessageStart())
			out.Push(enginetest.TextDelta(text))
		}
	}
	eng := &enginetest.Scripted{Turns: []enginetest.Turn{
		func(req engine.QueryRequest, out *channel.Queue[engine.Message]) {
			out.Push(enginetest.Init("int-1"))
			turn("first")(req, out)
		},
		turn("second"),
	}}

	ts := newBackend(t, eng)
	rt := client.NewRuntime(ts.URL)
	defer rt.Destroy()

	require.NoError(t, rt.SendMessage(context.Background(), "Hello"))

	require.Eventually(t, func() bool {
		return len(rt.Snapshot().Messages) == 1
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, rt.SendMessage(context.Background(), "Follow up"))

	require.Eventually(t, func() bool {
		snap := rt.Snapshot()
		return !snap.Connected && len(snap.Messages) == 2
	}, 5*time.Second, 5*time.Millisecond)

	snap := rt.Snapshot()
	assert.Equal(t, "first", snap.Messages[0].Content[0].Text)
	assert.Equal(t, "second", snap.Messages[1].Content[0].Text)
}

func TestRuntimeSnapshotStability(t *testing.T) {
	t.Parallel()

	eng := &enginetest.Scripted{Turns: []enginetest.Turn{
		func(_ engine.QueryRequest, out *channel.Queue[engine.Message]) {
			out.Push(enginetest.Init("int-1"))
			out.Push(enginetest.MessageStart())
			out.Push(enginetest.TextDelta("hi"))
			out.Push(enginetest.Success())
		},
	}}

	ts := newBackend(t, eng)
	rt := client.NewRuntime(ts.URL)
	defer rt.Destroy()

	require.NoError(t, rt.SendMessage(context.Background(), "Hi"))
	waitDone(t, rt)

	first := rt.Snapshot()
	second := rt.Snapshot()
	assert.Same(t, first, second)
}

func TestRuntimeSubscribe(t *testing.T) {
	t.Parallel()

	eng := &enginetest.Scripted{Turns: []enginetest.Turn{
		func(_ engine.QueryRequest, out *channel.Queue[engine.Message]) {
			out.Push(enginetest.Init("int-1"))
			out.Push(enginetest.Success())
		},
	}}

	ts := newBackend(t, eng)
	rt := client.NewRuntime(ts.URL)
	defer rt.Destroy()

	notified := make(chan struct{}, 64)
	unsubscribe := rt.Subscribe(func() {
		select {
		case notified <- struct{}{}:
		default:
		}
	})

	require.NoError(t, rt.SendMessage(context.Background(), "Hi"))

	select {
	case <-notified:
	case <-time.After(5 * time.Second):
		t.Fatal("listener was never notified")
	}

	unsubscribe()
	waitDone(t, rt)
}

func TestRuntimeDestroyDisconnects(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	eng := &enginetest.Scripted{Turns: []enginetest.Turn{
		func(_ engine.QueryRequest, out *channel.Queue[engine.Message]) {
			out.Push(enginetest.Init("int-1"))
			out.Push(enginetest.MessageStart())
			out.Push(enginetest.TextDelta("partial"))
			<-block
		},
	}}
	t.Cleanup(func() { close(block) })

	ts := newBackend(t, eng)
	rt := client.NewRuntime(ts.URL)

	require.NoError(t, rt.SendMessage(context.Background(), "Hi"))

	require.Eventually(t, func() bool {
		return len(rt.Snapshot().Messages) == 1
	}, 5*time.Second, 5*time.Millisecond)

	rt.Destroy()

	require.Eventually(t, func() bool {
		return !rt.Snapshot().Connected
	}, 5*time.Second, 5*time.Millisecond)
}
