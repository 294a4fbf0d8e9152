package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/paire/chat-billing/internal/domain/event"
)

// sseEndpoint streams engine events. A user_id query parameter scopes the
// stream to events naming that user; without it the client sees everything.
func (s *Server) sseEndpoint(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "client_id required")
		return
	}
	var userPtr *string
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		userPtr = &userID
	}

	client := event.NewClient(clientID, userPtr, 64)
	s.hub.Register(client)
	defer s.hub.Unregister(clientID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}
	// Send an initial comment to flush headers and keep the connection alive.
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case msg := <-client.MessageChan:
			if msg == nil {
				return
			}
			payload, _ := json.Marshal(msg)
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-client.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}
