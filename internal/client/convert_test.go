package client_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/relay/internal/client"
	"github.com/gosuda/relay/internal/protocol"
)

func TestConvertTextStreaming(t *testing.T) {
	t.Parallel()

	s := reduceAll(client.NewState(),
		protocol.SessionInit("int-1"),
		protocol.MessageStart(""),
		protocol.TextDelta("Hello "),
		protocol.TextDelta("world!"),
		protocol.ResultEvent(nil),
	)

	got := client.ToUIMessages(s)
	assert.Equal(t, []client.UIMessage{
		{
			Role:    "assistant",
			Content: []client.Part{{Type: client.PartText, Text: "Hello world!"}},
			Status:  client.Status{Type: client.StatusComplete},
		},
	}, got)
	assert.Equal(t, "int-1", s.SessionID)
	assert.False(t, s.IsRunning)
}

func TestConvertToolCallLifecycle(t *testing.T) {
	t.Parallel()

	s := reduceAll(client.NewState(),
		protocol.SessionInit("int-1"),
		protocol.MessageStart(""),
		protocol.ToolStart("tc-1", "Read"),
		protocol.ToolInputDelta("tc-1", `{"file_path":"/tmp/test.ts"}`),
		protocol.ToolCall("tc-1", "Read", map[string]any{"file_path": "/tmp/test.ts"}),
		protocol.ToolResult("tc-1", "const x = 42;", false),
		protocol.MessageStart(""),
		protocol.TextDelta("The file contains x = 42"),
		protocol.ResultEvent(nil),
	)

	got := client.ToUIMessages(s)
	require.Len(t, got, 2)
	assert.Equal(t, []client.Part{{
		Type:       client.PartToolCall,
		ToolCallID: "tc-1",
		ToolName:   "Read",
		Args:       map[string]any{"file_path": "/tmp/test.ts"},
		ArgsText:   `{"file_path":"/tmp/test.ts"}`,
		Result:     "const x = 42;",
	}}, got[0].Content)
	assert.Equal(t, []client.Part{{Type: client.PartText, Text: "The file contains x = 42"}}, got[1].Content)
}

func TestConvertArgsTextFallsBackToPartialInput(t *testing.T) {
	t.Parallel()

	s := reduceAll(client.NewState(),
		protocol.SessionInit("s"),
		protocol.MessageStart(""),
		protocol.ToolStart("tc-1", "Read"),
		protocol.ToolInputDelta("tc-1", `{"file_path":"/tm`),
	)

	got := client.ToUIMessages(s)
	require.Len(t, got, 1)
	part := got[0].Content[0]
	assert.Nil(t, part.Args)
	assert.Equal(t, `{"file_path":"/tm`, part.ArgsText)
}

func TestConvertDropsEmptyMessages(t *testing.T) {
	t.Parallel()

	s := reduceAll(client.NewState(),
		protocol.SessionInit("s"),
		protocol.MessageStart(""),
		protocol.MessageStart(""),
		protocol.TextDelta("visible"),
	)

	got := client.ToUIMessages(s)
	require.Len(t, got, 1)
	assert.Equal(t, "visible", got[0].Content[0].Text)
}

func TestConvertRunningStatusOnLastMessage(t *testing.T) {
	t.Parallel()

	s := reduceAll(client.NewState(),
		protocol.SessionInit("s"),
		protocol.MessageStart(""),
		protocol.TextDelta("one"),
		protocol.MessageStart(""),
		protocol.TextDelta("two"),
	)

	got := client.ToUIMessages(s)
	require.Len(t, got, 2)
	assert.Equal(t, client.StatusComplete, got[0].Status.Type)
	assert.Equal(t, client.StatusRunning, got[1].Status.Type)
}

func TestConvertReasoningPrecedesText(t *testing.T) {
	t.Parallel()

	s := reduceAll(client.NewState(),
		protocol.SessionInit("s"),
		protocol.MessageStart(""),
		protocol.TextDelta("answer"),
		protocol.ThinkingDelta("pondering"),
	)

	got := client.ToUIMessages(s)
	require.Len(t, got, 1)
	require.Len(t, got[0].Content, 2)
	assert.Equal(t, client.PartReasoning, got[0].Content[0].Type)
	assert.Equal(t, client.PartText, got[0].Content[1].Type)
}

func TestConvertSubagentMetadata(t *testing.T) {
	t.Parallel()

	s := reduceAll(client.NewState(),
		protocol.SessionInit("s"),
		protocol.MessageStart("tc-parent"),
		protocol.TextDelta("from subagent"),
	)

	got := client.ToUIMessages(s)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Metadata)
	assert.Equal(t, "tc-parent", got[0].Metadata.Custom["parentToolUseId"])
}
