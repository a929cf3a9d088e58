package attendify_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"attendify/internal/apperr"
	"attendify/internal/models"
)

// StreamClaims handles GET /api/claims/stream?id= (one event) or ?owner=
// (every event of an organizer) as Server-Sent Events.
func (h *Handler) StreamClaims(w http.ResponseWriter, r *http.Request) {
	account, owner := r.URL.Query().Get("id"), r.URL.Query().Get("owner")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.fail(w, "StreamClaims", apperr.Application("claims stream", fmt.Errorf("response writer cannot flush")))
		return
	}

	ctx := r.Context()
	var claims <-chan models.ClaimTransferredMessage
	var scope string
	switch {
	case account != "":
		if _, err := h.Events.FindEventByCustodialAccount(account); err != nil {
			h.fail(w, "StreamClaims", err)
			return
		}
		claims = h.Stream.SubscribeToEvent(ctx, account)
		scope = fmt.Sprintf(`"account":%q`, account)
	case owner != "":
		claims = h.Stream.SubscribeToOwner(ctx, owner)
		scope = fmt.Sprintf(`"owner":%q`, owner)
	default:
		h.fail(w, "StreamClaims", apperr.Parameter("claims stream", "id", nil))
		return
	}

	// The stream outlives the server write timeout.
	h.setWriteDeadline(w, time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",%s}\n\n", scope)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Client connected to claim stream {%s}", scope))

	for {
		select {
		case msg, ok := <-claims:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize claim event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: claim\ndata: %s\n\n", data)
			flusher.Flush()
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from claim stream {%s}", scope))
			return
		}
	}
}
