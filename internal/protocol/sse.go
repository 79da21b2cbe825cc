package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	ssePrefix   = "data: "
	sseDone     = "[DONE]"
	sseNewlines = "\n\n"
)

// Encode serializes an event as a single SSE frame: "data: <json>\n\n".
func Encode(e Event) (string, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("protocol.Encode: %w", err)
	}
	return ssePrefix + string(payload) + sseNewlines, nil
}

// EncodeDone returns the stream terminator frame.
func EncodeDone() string {
	return ssePrefix + sseDone + sseNewlines
}

// Decode parses a single SSE data line (without trailing newlines).
// It returns (nil, nil) when the payload is the [DONE] terminator.
func Decode(line string) (*Event, error) {
	if !strings.HasPrefix(line, ssePrefix) {
		return nil, fmt.Errorf("protocol.Decode: missing %q prefix in %q", ssePrefix, line)
	}

	payload := strings.TrimSuffix(line[len(ssePrefix):], sseNewlines)
	if payload == sseDone {
		return nil, nil
	}

	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return nil, fmt.Errorf("protocol.Decode: %w", err)
	}
	return &e, nil
}
