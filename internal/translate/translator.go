// Package translate folds the engine's irregular, partially-buffered message
// stream into the linear event protocol. The engine interleaves two
// overlapping encodings of the same content: incremental stream deltas and
// final aggregated blocks. The translator keeps the useful union of both.
package translate

import (
	"encoding/json"
	"strings"

	"github.com/gosuda/relay/internal/engine"
	"github.com/gosuda/relay/internal/protocol"
)

// Translator is a single-session, single-goroutine reducer. It remembers
// every tool introduced in the session (insertion-ordered, so input deltas can
// be attributed to the most recent one) and whether thinking content already
// arrived as stream deltas since the last message start.
type Translator struct {
	toolOrder         []string
	toolNames         map[string]string
	hadStreamThinking bool
}

func New() *Translator {
	return &Translator{
		toolNames: make(map[string]string),
	}
}

// Translate maps one engine message to zero or more events.
func (t *Translator) Translate(msg engine.Message) []protocol.Event {
	switch msg.Type {
	case engine.MessageTypeStreamEvent:
		return t.translateStream(msg)
	case engine.MessageTypeAssistant:
		return t.translateAssistant(msg)
	case engine.MessageTypeUser:
		return t.translateUser(msg)
	case engine.MessageTypeSystem:
		if msg.Subtype == "init" && msg.SessionID != "" {
			return []protocol.Event{protocol.SessionInit(msg.SessionID)}
		}
		return nil
	case engine.MessageTypeResult:
		return t.translateResult(msg)
	default:
		return nil
	}
}

func (t *Translator) translateStream(msg engine.Message) []protocol.Event {
	se, ok := msg.StreamEvent()
	if !ok {
		return nil
	}

	switch se.Type {
	case engine.StreamMessageStart:
		t.hadStreamThinking = false
		parent := ""
		if msg.ParentToolUseID != nil {
			parent = *msg.ParentToolUseID
		}
		return []protocol.Event{protocol.MessageStart(parent)}

	case engine.StreamContentBlockStart:
		cb := se.ContentBlock
		if cb == nil {
			return nil
		}
		if cb.Type != engine.BlockToolUse && cb.Type != engine.BlockServerToolUse {
			return nil
		}
		t.recordTool(cb.ID, cb.Name)
		return []protocol.Event{protocol.ToolStart(cb.ID, cb.Name)}

	case engine.StreamContentBlockDelta:
		return t.translateDelta(se.Delta)

	default:
		return nil
	}
}

func (t *Translator) translateDelta(d *engine.Delta) []protocol.Event {
	if d == nil {
		return nil
	}

	switch d.Type {
	case engine.DeltaText:
		return []protocol.Event{protocol.TextDelta(d.Text)}

	case engine.DeltaThinking:
		t.hadStreamThinking = true
		text := d.Thinking
		if text == "" {
			text = d.Text
		}
		return []protocol.Event{protocol.ThinkingDelta(text)}

	case engine.DeltaInputJSON:
		// Attribute the partial JSON to the most recently introduced tool.
		if len(t.toolOrder) == 0 {
			return nil
		}
		last := t.toolOrder[len(t.toolOrder)-1]
		return []protocol.Event{protocol.ToolInputDelta(last, d.PartialJSON)}

	default:
		return nil
	}
}

func (t *Translator) translateAssistant(msg engine.Message) []protocol.Event {
	inner, ok := msg.Inner()
	if !ok {
		return nil
	}

	var events []protocol.Event
	for _, block := range inner.Blocks() {
		switch block.Type {
		case engine.BlockThinking:
			// The aggregated thinking block is redundant when thinking
			// already streamed as deltas this turn.
			if t.hadStreamThinking {
				continue
			}
			events = append(events, protocol.ThinkingDelta(block.Thinking))

		case engine.BlockToolUse, engine.BlockServerToolUse:
			t.recordTool(block.ID, block.Name)
			input := block.Input
			if input == nil {
				input = map[string]any{}
			}
			events = append(events, protocol.ToolCall(block.ID, block.Name, input))
		}
		// Text blocks are covered by streaming deltas.
	}
	return events
}

func (t *Translator) translateUser(msg engine.Message) []protocol.Event {
	inner, ok := msg.Inner()
	if !ok {
		return nil
	}

	var events []protocol.Event
	for _, block := range inner.Blocks() {
		if block.Type != engine.BlockToolResult {
			continue
		}
		events = append(events, protocol.ToolResult(
			block.ToolUseID,
			extractToolResultText(block.Content),
			block.IsError,
		))
	}
	return events
}

func (t *Translator) translateResult(msg engine.Message) []protocol.Event {
	if msg.Subtype == "success" {
		ev := protocol.Event{Type: protocol.EventResult}
		if msg.Result != "" {
			ev.Result = msg.Result
		}
		return []protocol.Event{ev}
	}

	subtype := msg.Subtype
	if subtype == "" {
		subtype = "unknown_error"
	}
	return []protocol.Event{protocol.ErrorEvent(subtype)}
}

func (t *Translator) recordTool(id, name string) {
	if _, seen := t.toolNames[id]; !seen {
		t.toolOrder = append(t.toolOrder, id)
	}
	t.toolNames[id] = name
}

// extractToolResultText normalizes tool result content. A plain string passes
// through; an array concatenates the text of its text-typed sub-blocks, or is
// JSON-serialized whole when it has none; anything else yields "".
func extractToolResultText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}

	var items []any
	if err := json.Unmarshal(content, &items); err != nil {
		return ""
	}

	var sb strings.Builder
	found := false
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if obj["type"] != "text" {
			continue
		}
		if text, ok := obj["text"].(string); ok {
			sb.WriteString(text)
			found = true
		}
	}
	if found {
		return sb.String()
	}

	serialized, err := json.Marshal(items)
	if err != nil {
		return ""
	}
	return string(serialized)
}
