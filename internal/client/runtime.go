package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/relay/internal/protocol"
)

// Snapshot is a referentially-stable view of the runtime state, rebuilt
// lazily after each change.
type Snapshot struct {
	SessionID          string
	IsRunning          bool
	Connected          bool
	Messages           []UIMessage
	PendingPermissions []PendingPermission
	PendingQuestions   []PendingQuestion
	Result             any
	Err                string
}

// Runtime drives one conversation against the adapter: it creates the
// session on the first send, consumes the SSE stream into the reducer, and
// posts out-of-band responses. Listeners subscribe for change notifications
// and read via Snapshot.
type Runtime struct {
	baseURL    string
	httpClient *http.Client

	mu        sync.Mutex
	state     *State
	snapshot  *Snapshot
	sessionID string
	connected bool
	cancel    context.CancelFunc
	subs      map[int]func()
	nextSub   int
}

func NewRuntime(baseURL string) *Runtime {
	return &Runtime{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
		state:      NewState(),
		subs:       make(map[int]func()),
	}
}

// SendMessage starts the session on first use and opens the event stream;
// afterwards it queues follow-up turns.
func (r *Runtime) SendMessage(ctx context.Context, text string) error {
	r.mu.Lock()
	sessionID := r.sessionID
	r.mu.Unlock()

	if sessionID != "" {
		var ack struct {
			OK bool `json:"ok"`
		}
		return r.postJSON(ctx, "/sessions/"+sessionID+"/messages", map[string]string{"message": text}, &ack)
	}

	var created struct {
		SessionID string `json:"sessionId"`
	}
	if err := r.postJSON(ctx, "/sessions", map[string]string{"message": text}, &created); err != nil {
		return err
	}

	streamCtx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.sessionID = created.SessionID
	r.cancel = cancel
	r.connected = true
	r.snapshot = nil
	r.mu.Unlock()

	go r.consume(streamCtx, created.SessionID)
	r.notify()
	return nil
}

// RespondToPermission resolves a pending permission request.
func (r *Runtime) RespondToPermission(ctx context.Context, id, behavior string, updatedInput map[string]any) error {
	r.mu.Lock()
	sessionID := r.sessionID
	r.mu.Unlock()

	if sessionID == "" {
		return fmt.Errorf("client.RespondToPermission: no active session")
	}

	body := map[string]any{"kind": "permission", "id": id, "behavior": behavior}
	if updatedInput != nil {
		body["updatedInput"] = updatedInput
	}
	var ack struct {
		OK bool `json:"ok"`
	}
	return r.postJSON(ctx, "/sessions/"+sessionID+"/respond", body, &ack)
}

// RespondToQuestion answers a pending question.
func (r *Runtime) RespondToQuestion(ctx context.Context, id, answer string) error {
	r.mu.Lock()
	sessionID := r.sessionID
	r.mu.Unlock()

	if sessionID == "" {
		return fmt.Errorf("client.RespondToQuestion: no active session")
	}

	var ack struct {
		OK bool `json:"ok"`
	}
	return r.postJSON(ctx, "/sessions/"+sessionID+"/respond", map[string]any{
		"kind": "question", "id": id, "answer": answer,
	}, &ack)
}

// Snapshot returns the cached view, rebuilding it only after a state change.
func (r *Runtime) Snapshot() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.snapshot == nil {
		r.snapshot = r.buildSnapshotLocked()
	}
	return r.snapshot
}

// Subscribe registers a change listener and returns its unsubscribe func.
func (r *Runtime) Subscribe(listener func()) func() {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = listener
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// Destroy closes the event stream and drops all subscribers.
func (r *Runtime) Destroy() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.connected = false
	r.subs = make(map[int]func())
	r.snapshot = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// consume reads the SSE stream until [DONE], a transport error, or cancel.
// Transport errors are treated as stream end.
func (r *Runtime) consume(ctx context.Context, sessionID string) {
	defer r.disconnect()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/sessions/"+sessionID+"/events", nil)
	if err != nil {
		return
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		ev, decErr := protocol.Decode(line)
		if decErr != nil {
			log.Debug().Err(decErr).Msg("client.Runtime: dropping undecodable payload")
			continue
		}
		if ev == nil {
			return
		}

		r.mu.Lock()
		r.state = Reduce(r.state, *ev)
		r.snapshot = nil
		r.mu.Unlock()
		r.notify()
	}
}

func (r *Runtime) disconnect() {
	r.mu.Lock()
	r.connected = false
	r.snapshot = nil
	r.mu.Unlock()
	r.notify()
}

func (r *Runtime) notify() {
	r.mu.Lock()
	listeners := make([]func(), 0, len(r.subs))
	for _, fn := range r.subs {
		listeners = append(listeners, fn)
	}
	r.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

func (r *Runtime) buildSnapshotLocked() *Snapshot {
	snap := &Snapshot{
		SessionID: r.state.SessionID,
		IsRunning: r.state.IsRunning,
		Connected: r.connected,
		Messages:  ToUIMessages(r.state),
		Result:    r.state.Result,
		Err:       r.state.Err,
	}

	for _, p := range r.state.PendingPermissions {
		snap.PendingPermissions = append(snap.PendingPermissions, p)
	}
	sort.Slice(snap.PendingPermissions, func(i, j int) bool {
		return snap.PendingPermissions[i].ID < snap.PendingPermissions[j].ID
	})

	for _, q := range r.state.PendingQuestions {
		snap.PendingQuestions = append(snap.PendingQuestions, q)
	}
	sort.Slice(snap.PendingQuestions, func(i, j int) bool {
		return snap.PendingQuestions[i].ID < snap.PendingQuestions[j].ID
	})

	return snap
}

func (r *Runtime) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("client.postJSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("client.postJSON: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client.postJSON: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("client.postJSON: %s returned %d", path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("client.postJSON: decode response: %w", err)
		}
	}
	return nil
}
