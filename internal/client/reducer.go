package client

import "github.com/gosuda/relay/internal/protocol"

// Reduce folds one event into the state and returns the state to use from
// now on. session_init replaces the state wholesale; every other event
// mutates in place. Events referencing unknown tool calls are dropped,
// guarding against out-of-order engine output.
func Reduce(s *State, ev protocol.Event) *State {
	switch ev.Type {
	case protocol.EventSessionInit:
		fresh := NewState()
		fresh.SessionID = ev.SessionID
		fresh.IsRunning = true
		return fresh

	case protocol.EventMessageStart:
		s.Messages = append(s.Messages, &Message{
			Role:            "assistant",
			ParentToolUseID: ev.ParentToolUseID,
		})

	case protocol.EventTextDelta:
		if cur := s.lastMessage(); cur != nil {
			cur.Text += ev.Text
		}

	case protocol.EventThinkingDelta:
		if cur := s.lastMessage(); cur != nil {
			cur.Thinking += ev.Text
		}

	case protocol.EventToolStart:
		if cur := s.lastMessage(); cur != nil {
			cur.ToolCalls = append(cur.ToolCalls, &ToolCallInfo{
				ToolCallID: ev.ToolCallID,
				ToolName:   ev.ToolName,
			})
		}

	case protocol.EventToolInputDelta:
		if cur := s.lastMessage(); cur != nil {
			if tc := cur.toolCall(ev.ToolCallID); tc != nil {
				tc.InputText += ev.Text
			}
		}

	case protocol.EventToolCall:
		if cur := s.lastMessage(); cur != nil {
			if tc := cur.toolCall(ev.ToolCallID); tc != nil {
				tc.ToolName = ev.ToolName
				tc.Input = ev.Input
			}
		}

	case protocol.EventToolResult:
		if tc := s.findToolCall(ev.ToolCallID); tc != nil {
			tc.Result = ev.Result
			tc.HasResult = true
			tc.IsError = ev.IsError
		}

	case protocol.EventPermissionRequest:
		s.PendingPermissions[ev.ID] = PendingPermission{
			ID:        ev.ID,
			ToolName:  ev.ToolName,
			Input:     ev.Input,
			ToolUseID: ev.ToolUseID,
			Reason:    ev.Reason,
		}

	case protocol.EventPermissionResolved:
		delete(s.PendingPermissions, ev.ID)

	case protocol.EventUserQuestion:
		s.PendingQuestions[ev.ID] = PendingQuestion{
			ID:       ev.ID,
			Question: ev.Question,
			Options:  ev.Options,
		}

	case protocol.EventUserQuestionAnswered:
		delete(s.PendingQuestions, ev.ID)

	case protocol.EventResult:
		s.IsRunning = false
		s.Result = ev.Result

	case protocol.EventError:
		s.IsRunning = false
		s.Err = ev.Message
	}

	return s
}
