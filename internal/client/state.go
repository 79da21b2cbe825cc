// Package client consumes the adapter's SSE stream and folds it into the
// message list a chat UI renders. The reducer is a pure fold over events; the
// runtime owns the EventSource-style connection and snapshot subscription.
package client

import "github.com/gosuda/relay/internal/protocol"

// ToolCallInfo tracks one tool invocation through its streaming lifecycle.
// InputText accumulates partial JSON from deltas; Input is the finalized
// decoded map and may arrive independently.
type ToolCallInfo struct {
	ToolCallID string
	ToolName   string
	InputText  string
	Input      map[string]any
	Result     any
	HasResult  bool
	IsError    bool
}

// Message is one assistant message under construction.
type Message struct {
	Role            string
	ParentToolUseID string
	Text            string
	Thinking        string
	ToolCalls       []*ToolCallInfo
}

func (m *Message) toolCall(id string) *ToolCallInfo {
	for _, tc := range m.ToolCalls {
		if tc.ToolCallID == id {
			return tc
		}
	}
	return nil
}

// PendingPermission is an unresolved tool approval awaiting user input.
type PendingPermission struct {
	ID        string
	ToolName  string
	Input     map[string]any
	ToolUseID string
	Reason    string
}

// PendingQuestion is an unanswered question awaiting user input.
type PendingQuestion struct {
	ID       string
	Question string
	Options  []protocol.QuestionOption
}

// State is the reduced view of a session's event stream.
type State struct {
	SessionID          string
	IsRunning          bool
	Messages           []*Message
	PendingPermissions map[string]PendingPermission
	PendingQuestions   map[string]PendingQuestion
	Result             any
	Err                string
}

// NewState returns an empty, not-running state.
func NewState() *State {
	return &State{
		PendingPermissions: make(map[string]PendingPermission),
		PendingQuestions:   make(map[string]PendingQuestion),
	}
}

func (s *State) lastMessage() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// findToolCall searches messages newest-first. A tool result may arrive on a
// later assistant turn than the one that declared the call.
func (s *State) findToolCall(id string) *ToolCallInfo {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if tc := s.Messages[i].toolCall(id); tc != nil {
			return tc
		}
	}
	return nil
}
