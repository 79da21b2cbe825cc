package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/relay/internal/protocol"
)

// handleEvents streams a session's normalized events as SSE. The stream ends
// with a [DONE] frame when the output queue closes (engine completion, error
// event already emitted, or abort). A client disconnect does not tear the
// session down; the driver runs to engine completion.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	sess, ok := s.manager.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		ev, recvOK := sess.Events().Recv(ctx)
		if !recvOK {
			break
		}

		frame, encErr := protocol.Encode(ev)
		if encErr != nil {
			log.Error().Err(encErr).Str("session_id", id.String()).Msg("server.handleEvents: encode failed")
			frame, _ = protocol.Encode(protocol.ErrorEvent(encErr.Error()))
		}

		if _, writeErr := io.WriteString(w, frame); writeErr != nil {
			// Client went away; the session keeps running.
			return
		}
		flusher.Flush()
	}

	_, _ = io.WriteString(w, protocol.EncodeDone())
	flusher.Flush()
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
