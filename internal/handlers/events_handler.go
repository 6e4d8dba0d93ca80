package handlers

import (
	"fmt"
	"log"
	"net/http"

	"github.com/go-redis/redis/v8"

	"github.com/aurumif/sales-ledger/internal/events"
	"github.com/aurumif/sales-ledger/internal/middleware"
	"github.com/aurumif/sales-ledger/internal/services"
)

// EventsHandler streams ledger change events to clients over SSE.
type EventsHandler struct {
	redis *redis.Client
}

func NewEventsHandler(redisClient *redis.Client) *EventsHandler {
	return &EventsHandler{redis: redisClient}
}

// Stream subscribes the caller to their change feed
// @Summary Subscribe to change events
// @Description Stream ledger and account change events for the authenticated owner as Server-Sent Events. Admins may pass ownerId to observe another owner's feed.
// @Tags events
// @Produce text/event-stream
// @Param ownerId query string false "Owner to observe (admin only)"
// @Success 200 {string} string "event stream"
// @Failure 403 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Security BearerAuth
// @Router /events [get]
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		services.SendErrorResponse(w, services.ErrKindAuthorization, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	owner := identity.Subject
	if requested := r.URL.Query().Get("ownerId"); requested != "" && requested != owner {
		if !identity.IsAdmin() {
			services.SendErrorResponse(w, services.ErrKindAuthorization, "Forbidden", http.StatusForbidden, nil)
			return
		}
		owner = requested
	}

	if h.redis == nil {
		services.SendErrorResponse(w, services.ErrKindConfiguration, "Event feed is not available", http.StatusServiceUnavailable, nil)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		services.SendErrorResponse(w, services.ErrKindUpstream, "Streaming unsupported", http.StatusInternalServerError, nil)
		return
	}

	sub := h.redis.Subscribe(r.Context(), events.Channel(owner))
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	log.Printf("[EVENTS] Stream opened for owner %s", owner)
	ch := sub.Channel()
	for {
		select {
		case <-r.Context().Done():
			log.Printf("[EVENTS] Stream closed for owner %s", owner)
			return
		case msg, open := <-ch:
			if !open {
				log.Printf("[EVENTS] Subscription ended for owner %s", owner)
				return
			}
			fmt.Fprintf(w, "event: change\ndata: %s\n\n", msg.Payload)
			flusher.Flush()
		}
	}
}
