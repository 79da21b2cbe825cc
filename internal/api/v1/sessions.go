// Package v1 implements the JSON HTTP surface for session management.
// The SSE and WebSocket streaming endpoints live outside huma, on raw chi
// routes, because they hold the connection open.
package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/relay/internal/protocol"
	"github.com/gosuda/relay/internal/session"
)

// Manager is the slice of session.Manager the handlers need.
type Manager interface {
	Create(ctx context.Context, initialPrompt string) (*session.Session, error)
	Get(id uuid.UUID) (*session.Session, bool)
	Delete(id uuid.UUID) bool
}

// Respond kinds.
const (
	KindPermission = "permission"
	KindQuestion   = "question"
)

type CreateSessionInput struct {
	Body struct {
		Message string `json:"message" minLength:"1" doc:"Initial user prompt"`
	}
}

type CreateSessionOutput struct {
	Body struct {
		SessionID string `json:"sessionId" doc:"New session ID"`
	}
}

type GetSessionInput struct {
	ID uuid.UUID `path:"id" doc:"Session ID"`
}

type GetSessionOutput struct {
	Body struct {
		SessionID string `json:"sessionId"`
		Running   bool   `json:"running"`
	}
}

type DeleteSessionInput struct {
	ID uuid.UUID `path:"id" doc:"Session ID"`
}

type DeleteSessionOutput struct {
	Body OKBody
}

type PushMessageInput struct {
	ID   uuid.UUID `path:"id" doc:"Session ID"`
	Body struct {
		Message string `json:"message" minLength:"1" doc:"Next user turn"`
	}
}

type PushMessageOutput struct {
	Body OKBody
}

type RespondInput struct {
	ID   uuid.UUID `path:"id" doc:"Session ID"`
	Body struct {
		Kind         string         `json:"kind" doc:"Pending entry kind: permission or question"`
		RespondID    string         `json:"id" minLength:"1" doc:"Pending permission or question ID"`
		Behavior     string         `json:"behavior,omitempty" doc:"Permission behavior: allow or deny"`
		UpdatedInput map[string]any `json:"updatedInput,omitempty" doc:"Replacement tool input on allow"`
		Answer       string         `json:"answer,omitempty" doc:"Answer for a question"`
	}
}

type RespondOutput struct {
	Body OKBody
}

type InterruptInput struct {
	ID uuid.UUID `path:"id" doc:"Session ID"`
}

type InterruptOutput struct {
	Body OKBody
}

// OKBody is the generic acknowledgment body.
type OKBody struct {
	OK bool `json:"ok"`
}

// RegisterSessionRoutes wires the session JSON endpoints.
func RegisterSessionRoutes(api huma.API, manager Manager) {
	huma.Register(api, huma.Operation{
		OperationID: "create-session",
		Method:      http.MethodPost,
		Path:        "/sessions",
		Summary:     "Create a session and start its engine invocation",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *CreateSessionInput) (*CreateSessionOutput, error) {
		s, err := manager.Create(ctx, input.Body.Message)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to create session", err)
		}

		out := &CreateSessionOutput{}
		out.Body.SessionID = s.ID.String()
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}",
		Summary:     "Get session status",
		Tags:        []string{"Sessions"},
	}, func(_ context.Context, input *GetSessionInput) (*GetSessionOutput, error) {
		s, ok := manager.Get(input.ID)
		if !ok {
			return nil, huma.Error404NotFound("unknown session")
		}

		out := &GetSessionOutput{}
		out.Body.SessionID = s.ID.String()
		out.Body.Running = s.Running()
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-session",
		Method:      http.MethodDelete,
		Path:        "/sessions/{id}",
		Summary:     "Abort and remove a session",
		Tags:        []string{"Sessions"},
	}, func(_ context.Context, input *DeleteSessionInput) (*DeleteSessionOutput, error) {
		if !manager.Delete(input.ID) {
			return nil, huma.Error404NotFound("unknown session")
		}
		return &DeleteSessionOutput{Body: OKBody{OK: true}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "push-message",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/messages",
		Summary:     "Queue another user turn for the engine",
		Tags:        []string{"Sessions"},
	}, func(_ context.Context, input *PushMessageInput) (*PushMessageOutput, error) {
		s, ok := manager.Get(input.ID)
		if !ok {
			return nil, huma.Error404NotFound("unknown session")
		}

		s.PushMessage(input.Body.Message)
		return &PushMessageOutput{Body: OKBody{OK: true}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "respond",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/respond",
		Summary:     "Resolve a pending permission request or question",
		Tags:        []string{"Sessions"},
	}, func(_ context.Context, input *RespondInput) (*RespondOutput, error) {
		s, ok := manager.Get(input.ID)
		if !ok {
			return nil, huma.Error404NotFound("unknown session")
		}

		switch input.Body.Kind {
		case KindPermission:
			if input.Body.Behavior != protocol.BehaviorAllow && input.Body.Behavior != protocol.BehaviorDeny {
				return nil, huma.Error400BadRequest("behavior must be allow or deny")
			}
			if err := s.Gate().Resolve(input.Body.RespondID, input.Body.Behavior, input.Body.UpdatedInput); err != nil {
				return nil, huma.Error400BadRequest(err.Error())
			}
		case KindQuestion:
			if err := s.Gate().AnswerQuestion(input.Body.RespondID, input.Body.Answer); err != nil {
				return nil, huma.Error400BadRequest(err.Error())
			}
		default:
			return nil, huma.Error400BadRequest("unknown kind: " + input.Body.Kind)
		}

		return &RespondOutput{Body: OKBody{OK: true}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "interrupt-session",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/interrupt",
		Summary:     "Interrupt the current engine turn",
		Tags:        []string{"Sessions"},
	}, func(_ context.Context, input *InterruptInput) (*InterruptOutput, error) {
		s, ok := manager.Get(input.ID)
		if !ok {
			return nil, huma.Error404NotFound("unknown session")
		}

		s.Interrupt()
		return &InterruptOutput{Body: OKBody{OK: true}}, nil
	})
}
