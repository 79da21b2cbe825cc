// Package gate bridges the engine's synchronous tool-gate callbacks to
// out-of-band HTTP responses. A request parks the engine on a one-shot
// channel; the matching resolve arrives later from the respond endpoint.
package gate

import (
	"fmt"
	"sync"

	"github.com/gosuda/relay/internal/engine"
	"github.com/gosuda/relay/internal/protocol"
)

// EmitFunc receives every event the gate produces, in call order. The session
// wires it to the output queue.
type EmitFunc func(protocol.Event)

type pendingPermission struct {
	result chan engine.PermissionResult
	input  map[string]any
}

type pendingQuestion struct {
	answer chan string
}

// Gate holds the registries of unresolved permission requests and questions
// for one session. All methods are safe for concurrent use: requests arrive
// from the engine's goroutine, resolutions from HTTP handler goroutines.
type Gate struct {
	emit EmitFunc

	mu          sync.Mutex
	nextID      int
	permissions map[string]*pendingPermission
	questions   map[string]*pendingQuestion
}

func New(emit EmitFunc) *Gate {
	return &Gate{
		emit:        emit,
		permissions: make(map[string]*pendingPermission),
		questions:   make(map[string]*pendingQuestion),
	}
}

// Request registers a pending tool approval and emits a permission_request
// event. The returned channel yields exactly one result once Resolve is
// called; the engine's tool-gate callback blocks on it.
func (g *Gate) Request(toolName string, input map[string]any, meta *engine.PermissionContext) <-chan engine.PermissionResult {
	pending := &pendingPermission{
		result: make(chan engine.PermissionResult, 1),
		input:  input,
	}

	g.mu.Lock()
	g.nextID++
	id := fmt.Sprintf("perm_%d", g.nextID)
	g.permissions[id] = pending
	g.mu.Unlock()

	ev := protocol.Event{
		Type:     protocol.EventPermissionRequest,
		ID:       id,
		ToolName: toolName,
		Input:    input,
	}
	if meta != nil {
		ev.ToolUseID = meta.ToolUseID
		ev.Reason = meta.Reason
	}
	g.emit(ev)

	return pending.result
}

// Resolve completes a pending permission. An allow without updatedInput
// passes the original input back to the engine.
func (g *Gate) Resolve(id, behavior string, updatedInput map[string]any) error {
	g.mu.Lock()
	pending, ok := g.permissions[id]
	if ok {
		delete(g.permissions, id)
	}
	g.mu.Unlock()

	if !ok {
		return fmt.Errorf("gate.Resolve: no pending permission %q", id)
	}

	g.emit(protocol.Event{
		Type:     protocol.EventPermissionResolved,
		ID:       id,
		Behavior: behavior,
	})

	if behavior == engine.BehaviorAllow {
		input := updatedInput
		if input == nil {
			input = pending.input
		}
		pending.result <- engine.PermissionResult{
			Behavior:     engine.BehaviorAllow,
			UpdatedInput: input,
		}
	} else {
		pending.result <- engine.PermissionResult{
			Behavior: engine.BehaviorDeny,
			Message:  "User denied",
		}
	}

	return nil
}

// AskQuestion registers a pending question and emits a user_question event.
// The returned channel yields the answer once AnswerQuestion is called.
func (g *Gate) AskQuestion(question string, options []protocol.QuestionOption) <-chan string {
	pending := &pendingQuestion{
		answer: make(chan string, 1),
	}

	g.mu.Lock()
	g.nextID++
	id := fmt.Sprintf("question_%d", g.nextID)
	g.questions[id] = pending
	g.mu.Unlock()

	g.emit(protocol.Event{
		Type:     protocol.EventUserQuestion,
		ID:       id,
		Question: question,
		Options:  options,
	})

	return pending.answer
}

// AnswerQuestion completes a pending question.
func (g *Gate) AnswerQuestion(id, answer string) error {
	g.mu.Lock()
	pending, ok := g.questions[id]
	if ok {
		delete(g.questions, id)
	}
	g.mu.Unlock()

	if !ok {
		return fmt.Errorf("gate.AnswerQuestion: no pending question %q", id)
	}

	g.emit(protocol.Event{
		Type:   protocol.EventUserQuestionAnswered,
		ID:     id,
		Answer: answer,
	})

	pending.answer <- answer
	return nil
}
