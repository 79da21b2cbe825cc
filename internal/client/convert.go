package client

import "encoding/json"

// UI part kinds.
const (
	PartText      = "text"
	PartReasoning = "reasoning"
	PartToolCall  = "tool-call"
)

// UI message status kinds.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
)

// Part is one segment of a UI message.
type Part struct {
	Type       string         `json:"type"`
	Text       string         `json:"text,omitempty"`
	ToolCallID string         `json:"toolCallId,omitempty"`
	ToolName   string         `json:"toolName,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	ArgsText   string         `json:"argsText,omitempty"`
	Result     any            `json:"result,omitempty"`
	IsError    bool           `json:"isError,omitempty"`
}

// Status marks a UI message as still streaming or done.
type Status struct {
	Type string `json:"type"`
}

// Metadata carries the subagent envelope for messages emitted from within a
// parent tool call.
type Metadata struct {
	Custom map[string]any `json:"custom"`
}

// UIMessage is the shape the chat component renders.
type UIMessage struct {
	Role     string    `json:"role"`
	Content  []Part    `json:"content"`
	Status   Status    `json:"status"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// ToUIMessages projects the reduced state into the ordered message list.
// Messages that produced no visible parts are dropped; the last surviving
// message is "running" while the session is.
func ToUIMessages(s *State) []UIMessage {
	var out []UIMessage

	for _, msg := range s.Messages {
		var parts []Part

		if msg.Thinking != "" {
			parts = append(parts, Part{Type: PartReasoning, Text: msg.Thinking})
		}
		if msg.Text != "" {
			parts = append(parts, Part{Type: PartText, Text: msg.Text})
		}
		for _, tc := range msg.ToolCalls {
			parts = append(parts, toolCallPart(tc))
		}

		if len(parts) == 0 {
			continue
		}

		ui := UIMessage{
			Role:    "assistant",
			Content: parts,
			Status:  Status{Type: StatusComplete},
		}
		if msg.ParentToolUseID != "" {
			ui.Metadata = &Metadata{Custom: map[string]any{"parentToolUseId": msg.ParentToolUseID}}
		}
		out = append(out, ui)
	}

	if s.IsRunning && len(out) > 0 {
		out[len(out)-1].Status = Status{Type: StatusRunning}
	}

	return out
}

func toolCallPart(tc *ToolCallInfo) Part {
	part := Part{
		Type:       PartToolCall,
		ToolCallID: tc.ToolCallID,
		ToolName:   tc.ToolName,
		IsError:    tc.IsError,
	}

	if tc.Input != nil {
		part.Args = tc.Input
		if argsText, err := json.Marshal(tc.Input); err == nil {
			part.ArgsText = string(argsText)
		}
	} else {
		part.ArgsText = tc.InputText
	}

	if tc.HasResult {
		part.Result = tc.Result
	}

	return part
}
