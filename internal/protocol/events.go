// Package protocol defines the normalized event stream the adapter delivers
// to chat UI consumers, together with its SSE wire codec.
package protocol

// EventType discriminates Event variants.
type EventType string

const (
	EventSessionInit          EventType = "session_init"
	EventMessageStart         EventType = "message_start"
	EventTextDelta            EventType = "text_delta"
	EventThinkingDelta        EventType = "thinking_delta"
	EventToolStart            EventType = "tool_start"
	EventToolInputDelta       EventType = "tool_input_delta"
	EventToolCall             EventType = "tool_call"
	EventToolResult           EventType = "tool_result"
	EventPermissionRequest    EventType = "permission_request"
	EventPermissionResolved   EventType = "permission_resolved"
	EventUserQuestion         EventType = "user_question"
	EventUserQuestionAnswered EventType = "user_question_answered"
	EventResult               EventType = "result"
	EventError                EventType = "error"
)

// Behavior values for permission resolution.
const (
	BehaviorAllow = "allow"
	BehaviorDeny  = "deny"
)

// QuestionOption is one selectable answer offered with a user_question event.
type QuestionOption struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// Event is the single wire shape for all stream events. Which fields are
// populated depends on Type; unused fields are omitted from the encoding.
type Event struct {
	Type EventType `json:"type"`

	// session_init
	SessionID string `json:"sessionId,omitempty"`

	// message_start
	Role            string `json:"role,omitempty"`
	ParentToolUseID string `json:"parentToolUseId,omitempty"`

	// text_delta, thinking_delta, tool_input_delta
	Text string `json:"text,omitempty"`

	// tool_start, tool_call, tool_result, permission_request
	ToolCallID string         `json:"toolCallId,omitempty"`
	ToolName   string         `json:"toolName,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
	Result     any            `json:"result,omitempty"`
	IsError    bool           `json:"isError,omitempty"`

	// permission_request, permission_resolved, user_question,
	// user_question_answered
	ID        string           `json:"id,omitempty"`
	ToolUseID string           `json:"toolUseId,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	Behavior  string           `json:"behavior,omitempty"`
	Question  string           `json:"question,omitempty"`
	Options   []QuestionOption `json:"options,omitempty"`
	Answer    string           `json:"answer,omitempty"`

	// error
	Message string `json:"message,omitempty"`
}

// SessionInit builds a session_init event.
func SessionInit(sessionID string) Event {
	return Event{Type: EventSessionInit, SessionID: sessionID}
}

// MessageStart builds a message_start event for a new assistant message.
func MessageStart(parentToolUseID string) Event {
	return Event{Type: EventMessageStart, Role: "assistant", ParentToolUseID: parentToolUseID}
}

// TextDelta builds a text_delta event.
func TextDelta(text string) Event {
	return Event{Type: EventTextDelta, Text: text}
}

// ThinkingDelta builds a thinking_delta event.
func ThinkingDelta(text string) Event {
	return Event{Type: EventThinkingDelta, Text: text}
}

// ToolStart builds a tool_start event.
func ToolStart(toolCallID, toolName string) Event {
	return Event{Type: EventToolStart, ToolCallID: toolCallID, ToolName: toolName}
}

// ToolInputDelta builds a tool_input_delta event carrying partial input JSON.
func ToolInputDelta(toolCallID, text string) Event {
	return Event{Type: EventToolInputDelta, ToolCallID: toolCallID, Text: text}
}

// ToolCall builds a tool_call event with the finalized decoded input.
func ToolCall(toolCallID, toolName string, input map[string]any) Event {
	return Event{Type: EventToolCall, ToolCallID: toolCallID, ToolName: toolName, Input: input}
}

// ToolResult builds a tool_result event.
func ToolResult(toolCallID string, result any, isError bool) Event {
	return Event{Type: EventToolResult, ToolCallID: toolCallID, Result: result, IsError: isError}
}

// ResultEvent builds a terminal result event.
func ResultEvent(result any) Event {
	return Event{Type: EventResult, Result: result}
}

// ErrorEvent builds a terminal error event.
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}
