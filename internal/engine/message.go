package engine

import "encoding/json"

// Message type discriminators emitted by the engine.
const (
	MessageTypeStreamEvent = "stream_event"
	MessageTypeAssistant   = "assistant"
	MessageTypeUser        = "user"
	MessageTypeSystem      = "system"
	MessageTypeResult      = "result"
)

// Stream event kinds nested inside a stream_event message.
const (
	StreamMessageStart      = "message_start"
	StreamContentBlockStart = "content_block_start"
	StreamContentBlockDelta = "content_block_delta"
)

// Delta kinds nested inside a content_block_delta stream event.
const (
	DeltaText      = "text_delta"
	DeltaThinking  = "thinking_delta"
	DeltaInputJSON = "input_json_delta"
)

// Content block kinds.
const (
	BlockText          = "text"
	BlockThinking      = "thinking"
	BlockToolUse       = "tool_use"
	BlockServerToolUse = "server_tool_use"
	BlockToolResult    = "tool_result"
)

// Message is the engine's heterogeneous output envelope. Only Type is always
// present; the nested payloads are decoded lazily and defensively so unknown
// shapes simply yield nothing.
type Message struct {
	Type            string          `json:"type"`
	Subtype         string          `json:"subtype,omitempty"`
	SessionID       string          `json:"session_id"`
	ParentToolUseID *string         `json:"parent_tool_use_id"`
	Event           json.RawMessage `json:"event,omitempty"`
	Message         json.RawMessage `json:"message,omitempty"`
	Result          string          `json:"result,omitempty"`
}

// StreamEvent is the inner payload of a stream_event message.
type StreamEvent struct {
	Type         string        `json:"type"`
	Index        int           `json:"index,omitempty"`
	ContentBlock *ContentBlock `json:"content_block,omitempty"`
	Delta        *Delta        `json:"delta,omitempty"`
}

// Delta is an incremental content update inside a content_block_delta event.
type Delta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

// ContentBlock is one block of an assistant or user message's content array,
// or the content_block of a content_block_start stream event.
type ContentBlock struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     map[string]any  `json:"input,omitempty"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// InnerMessage is the message payload of assistant and user envelopes.
type InnerMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// StreamEvent decodes the nested stream event, if any.
func (m Message) StreamEvent() (*StreamEvent, bool) {
	if len(m.Event) == 0 {
		return nil, false
	}
	var se StreamEvent
	if err := json.Unmarshal(m.Event, &se); err != nil {
		return nil, false
	}
	return &se, true
}

// Inner decodes the nested message payload, if any.
func (m Message) Inner() (*InnerMessage, bool) {
	if len(m.Message) == 0 {
		return nil, false
	}
	var im InnerMessage
	if err := json.Unmarshal(m.Message, &im); err != nil {
		return nil, false
	}
	return &im, true
}

// Blocks decodes the content array of an inner message. It returns nil when
// content is absent, a plain string, or otherwise not an array of blocks.
func (im *InnerMessage) Blocks() []ContentBlock {
	if im == nil || len(im.Content) == 0 {
		return nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(im.Content, &blocks); err != nil {
		return nil
	}
	return blocks
}

// UserMessage builds the engine-shaped user turn for a raw prompt string:
// type "user", message {role, content}, null parent_tool_use_id, empty
// session_id. The session_id is assigned by the engine; the adapter leaves
// it empty.
func UserMessage(text string) Message {
	inner, _ := json.Marshal(InnerMessage{
		Role:    "user",
		Content: mustMarshal(text),
	})
	return Message{
		Type:    MessageTypeUser,
		Message: inner,
	}
}

func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
