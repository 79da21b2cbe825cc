// Package enginetest provides a scriptable in-process engine for tests.
package enginetest

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/gosuda/relay/internal/channel"
	"github.com/gosuda/relay/internal/engine"
)

// Turn emits the engine messages for one user turn. It may block on the
// permission handler to exercise the tool gate.
type Turn func(req engine.QueryRequest, out *channel.Queue[engine.Message])

// Scripted runs one Turn per received user message and closes its message
// queue when the script is exhausted or the prompt queue closes.
type Scripted struct {
	Turns []Turn

	aborted     atomic.Bool
	interrupted atomic.Bool
}

// Query implements engine.QueryFunc.
func (f *Scripted) Query(_ context.Context, req engine.QueryRequest) (*engine.Invocation, error) {
	out := channel.NewQueue[engine.Message]()

	go func() {
		defer out.Close()
		for turn := 0; ; turn++ {
			_, ok := req.Prompt.Recv(context.Background())
			if !ok || turn >= len(f.Turns) {
				return
			}
			f.Turns[turn](req, out)
			if turn == len(f.Turns)-1 {
				return
			}
		}
	}()

	return &engine.Invocation{
		Messages: out,
		Interrupt: func() {
			f.interrupted.Store(true)
		},
		Abort: func() {
			f.aborted.Store(true)
			out.Close()
		},
	}, nil
}

// Aborted reports whether the invocation's abort handle was signalled.
func (f *Scripted) Aborted() bool { return f.aborted.Load() }

// Interrupted reports whether the invocation was interrupted.
func (f *Scripted) Interrupted() bool { return f.interrupted.Load() }

func mustRaw(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}

// Init builds a system init message carrying the engine session id.
func Init(sessionID string) engine.Message {
	return engine.Message{Type: engine.MessageTypeSystem, Subtype: "init", SessionID: sessionID}
}

// StreamEvent wraps an inner event payload in a stream_event envelope.
func StreamEvent(event map[string]any) engine.Message {
	return engine.Message{Type: engine.MessageTypeStreamEvent, Event: mustRaw(event)}
}

// MessageStart builds a stream_event message_start.
func MessageStart() engine.Message {
	return StreamEvent(map[string]any{"type": "message_start"})
}

// TextDelta builds a stream_event text delta.
func TextDelta(text string) engine.Message {
	return StreamEvent(map[string]any{
		"type":  "content_block_delta",
		"delta": map[string]any{"type": "text_delta", "text": text},
	})
}

// ToolUseStart builds a stream_event content_block_start for a tool.
func ToolUseStart(id, name string) engine.Message {
	return StreamEvent(map[string]any{
		"type":          "content_block_start",
		"content_block": map[string]any{"type": "tool_use", "id": id, "name": name},
	})
}

// Assistant builds an assistant message with the given content blocks.
func Assistant(blocks ...map[string]any) engine.Message {
	if blocks == nil {
		blocks = []map[string]any{}
	}
	return engine.Message{
		Type:    engine.MessageTypeAssistant,
		Message: mustRaw(map[string]any{"role": "assistant", "content": blocks}),
	}
}

// User builds a user message with the given content blocks (tool results).
func User(blocks ...map[string]any) engine.Message {
	return engine.Message{
		Type:    engine.MessageTypeUser,
		Message: mustRaw(map[string]any{"role": "user", "content": blocks}),
	}
}

// Success builds a terminal success result.
func Success() engine.Message {
	return engine.Message{Type: engine.MessageTypeResult, Subtype: "success"}
}
