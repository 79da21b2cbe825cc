// Package engine defines the contract between the adapter and an upstream
// agent engine. The engine is opaque to the rest of the system: it consumes
// user messages from a prompt queue, emits heterogeneous stream messages, and
// calls back into the adapter's permission handler before using a tool.
package engine

import (
	"context"

	"github.com/gosuda/relay/internal/channel"
)

// Behavior values for permission results.
const (
	BehaviorAllow = "allow"
	BehaviorDeny  = "deny"
)

// PermissionResult is the exact shape the engine's tool-gate callback must
// receive back: allow with a (possibly updated) input, or deny with a message.
type PermissionResult struct {
	Behavior     string         `json:"behavior"`
	UpdatedInput map[string]any `json:"updatedInput,omitempty"`
	Message      string         `json:"message,omitempty"`
}

// PermissionContext carries optional metadata the engine attaches to a
// tool-gate callback.
type PermissionContext struct {
	ToolUseID string
	Reason    string
}

// PermissionFunc is the tool-gate hook handed to the engine. The returned
// channel yields exactly one result once the request is resolved out-of-band;
// the engine's tool-gate goroutine blocks on it.
type PermissionFunc func(toolName string, input map[string]any, meta *PermissionContext) <-chan PermissionResult

// QueryRequest configures a single long-running engine invocation.
type QueryRequest struct {
	// Prompt carries user turns into the engine. The engine blocks on it
	// between turns and stops when it is closed.
	Prompt *channel.Queue[Message]

	// Permission is invoked before every gated tool use.
	Permission PermissionFunc
}

// Invocation is a handle on a running engine.
type Invocation struct {
	// Messages yields the engine's output until completion or abort.
	Messages *channel.Queue[Message]

	// Interrupt asks the engine to stop the current turn without tearing
	// down the invocation.
	Interrupt func()

	// Abort tears down the invocation. Messages is closed afterwards.
	Abort func()
}

// QueryFunc starts an engine invocation. Implementations own the lifetime of
// the returned message queue and must close it on completion, error, or abort.
type QueryFunc func(ctx context.Context, req QueryRequest) (*Invocation, error)
