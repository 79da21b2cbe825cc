// Package claudecli runs the Claude Code CLI as a local subprocess engine.
// The CLI speaks newline-delimited JSON on stdin/stdout: user turns and
// control responses go in, stream messages and control requests come out.
// Tool approvals are routed through the control protocol (can_use_tool) into
// the adapter's permission handler.
package claudecli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/relay/internal/channel"
	"github.com/gosuda/relay/internal/engine"
)

// Options configures the CLI subprocess.
type Options struct {
	Bin     string // claude binary, defaults to "claude"
	WorkDir string
	Model   string
}

// Engine spawns one CLI process per invocation.
type Engine struct {
	opts Options
}

func New(opts Options) *Engine {
	if opts.Bin == "" {
		opts.Bin = "claude"
	}
	return &Engine{opts: opts}
}

// Query implements engine.QueryFunc: it starts the CLI, pumps queued user
// turns to its stdin, and decodes its stdout into engine messages. The
// invocation outlives the caller's context; only Abort tears it down.
func (e *Engine) Query(_ context.Context, req engine.QueryRequest) (*engine.Invocation, error) {
	args := []string{
		"--input-format", "stream-json",
		"--output-format", "stream-json",
		"--verbose",
		"--permission-prompt-tool", "stdio",
	}
	if e.opts.Model != "" {
		args = append(args, "--model", e.opts.Model)
	}

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, e.opts.Bin, args...)
	cmd.Dir = e.opts.WorkDir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("claudecli.Query: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("claudecli.Query: stdout pipe: %w", err)
	}

	if startErr := cmd.Start(); startErr != nil {
		cancel()
		return nil, fmt.Errorf("claudecli.Query: start %s: %w", e.opts.Bin, startErr)
	}

	inv := &invocation{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		out:    channel.NewQueue[engine.Message](),
		perm:   req.Permission,
		cancel: cancel,
	}

	go inv.pumpPrompt(procCtx, req.Prompt)
	go inv.readLoop()

	return &engine.Invocation{
		Messages:  inv.out,
		Interrupt: inv.interrupt,
		Abort:     inv.abort,
	}, nil
}

type controlRequest struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Request   struct {
		Subtype  string         `json:"subtype"`
		ToolName string         `json:"tool_name"`
		Input    map[string]any `json:"input"`
	} `json:"request"`
}

type invocation struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	out    *channel.Queue[engine.Message]
	perm   engine.PermissionFunc
	cancel context.CancelFunc

	writeMu   sync.Mutex
	requestID atomic.Int64
	aborted   atomic.Bool
}

// pumpPrompt writes each queued user turn to the CLI's stdin as one JSON
// line and closes stdin when the prompt queue closes, ending the session.
func (inv *invocation) pumpPrompt(ctx context.Context, prompt *channel.Queue[engine.Message]) {
	defer func() {
		inv.writeMu.Lock()
		_ = inv.stdin.Close()
		inv.writeMu.Unlock()
	}()

	for {
		msg, ok := prompt.Recv(ctx)
		if !ok {
			return
		}
		if err := inv.writeLine(msg); err != nil {
			log.Debug().Err(err).Msg("claudecli: stdin write failed")
			return
		}
	}
}

// readLoop decodes stdout lines. Control requests are answered in their own
// goroutine (a can_use_tool request blocks on the permission handler);
// everything else is forwarded as an engine message.
func (inv *invocation) readLoop() {
	defer func() {
		_ = inv.cmd.Wait()
		inv.out.Close()
	}()

	scanner := bufio.NewScanner(inv.stdout)
	scanner.Buffer(make([]byte, 0, 256*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var probe struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			log.Debug().Str("line", string(line)).Msg("claudecli: skipping non-JSON output line")
			continue
		}

		if probe.Type == "control_request" {
			var ctrl controlRequest
			if err := json.Unmarshal(line, &ctrl); err != nil {
				log.Debug().Err(err).Msg("claudecli: malformed control request")
				continue
			}
			go inv.handleControlRequest(ctrl)
			continue
		}
		if probe.Type == "control_response" {
			continue
		}

		var msg engine.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			log.Debug().Err(err).Msg("claudecli: malformed stream message")
			continue
		}
		inv.out.Push(msg)
	}

	if scanErr := scanner.Err(); scanErr != nil && !inv.aborted.Load() {
		log.Error().Err(scanErr).Msg("claudecli: stdout stream error")
	}
}

// handleControlRequest answers a single control request from the CLI. Tool
// approvals suspend here until the gate resolves them.
func (inv *invocation) handleControlRequest(ctrl controlRequest) {
	switch ctrl.Request.Subtype {
	case "can_use_tool":
		result := <-inv.perm(ctrl.Request.ToolName, ctrl.Request.Input, nil)

		var payload any
		if result.Behavior == engine.BehaviorAllow {
			input := result.UpdatedInput
			if input == nil {
				// The CLI requires updatedInput to be an object, never null.
				input = map[string]any{}
			}
			payload = map[string]any{
				"behavior":     engine.BehaviorAllow,
				"updatedInput": input,
			}
		} else {
			payload = map[string]any{
				"behavior": engine.BehaviorDeny,
				"message":  result.Message,
			}
		}
		inv.sendControlResponse(ctrl.RequestID, payload)

	default:
		// Acknowledge unsupported subtypes so the CLI does not stall.
		inv.sendControlResponse(ctrl.RequestID, map[string]any{})
	}
}

func (inv *invocation) sendControlResponse(requestID string, response any) {
	msg := map[string]any{
		"type": "control_response",
		"response": map[string]any{
			"subtype":    "success",
			"request_id": requestID,
			"response":   response,
		},
	}
	if err := inv.writeLine(msg); err != nil {
		log.Debug().Err(err).Str("request_id", requestID).Msg("claudecli: control response write failed")
	}
}

func (inv *invocation) writeLine(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("claudecli.writeLine: %w", err)
	}
	payload = append(payload, '\n')

	inv.writeMu.Lock()
	defer inv.writeMu.Unlock()
	if _, err := inv.stdin.Write(payload); err != nil {
		return fmt.Errorf("claudecli.writeLine: %w", err)
	}
	return nil
}

func (inv *invocation) interrupt() {
	id := inv.requestID.Add(1)
	req := map[string]any{
		"type":       "control_request",
		"request_id": "req_" + strconv.FormatInt(id, 10),
		"request":    map[string]any{"subtype": "interrupt"},
	}
	if err := inv.writeLine(req); err != nil {
		log.Debug().Err(err).Msg("claudecli: interrupt write failed")
	}
}

func (inv *invocation) abort() {
	if inv.aborted.Swap(true) {
		return
	}
	inv.cancel()
	inv.out.Close()
}
