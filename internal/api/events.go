package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/markethub/markethub/internal/webhook"
)

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	f := webhook.EventFilter{
		EventType: r.URL.Query().Get("event_type"),
		Status:    r.URL.Query().Get("status"),
	}
	var err error
	if f.Limit, err = queryInt(r, "limit", 50); err != nil {
		respondError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	if f.Offset, err = queryInt(r, "offset", 0); err != nil {
		respondError(w, http.StatusBadRequest, "offset must be an integer")
		return
	}
	events, err := s.events.ListEvents(r.Context(), f)
	if err != nil {
		s.logger.WithContext(r.Context()).WithError(err).Error("list webhook events failed")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if events == nil {
		events = []*webhook.Event{}
	}
	respond(w, http.StatusOK, events)
}

type dispatchEventRequest struct {
	EventType  string         `json:"event_type"`
	Payload    map[string]any `json:"payload"`
	WebhookURL string         `json:"webhook_url"`
}

// dispatchEvent records an ad-hoc notification and queues its delivery.
func (s *Server) dispatchEvent(w http.ResponseWriter, r *http.Request) {
	var req dispatchEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.EventType == "" || req.Payload == nil {
		respondError(w, http.StatusBadRequest, "event_type and payload are required")
		return
	}
	ev, err := s.dispatcher.Dispatch(r.Context(), req.EventType, req.Payload, req.WebhookURL)
	if err != nil {
		s.logger.WithContext(r.Context()).WithField("event_type", req.EventType).WithError(err).Error("dispatch webhook event failed")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if ev == nil {
		respond(w, http.StatusOK, map[string]any{"message": "no webhook url configured, dispatch skipped"})
		return
	}
	respond(w, http.StatusAccepted, ev)
}

func (s *Server) retryEvent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Webhook event not found")
		return
	}
	ev, err := s.dispatcher.Retry(r.Context(), id)
	switch {
	case errors.Is(err, webhook.ErrEventNotFound):
		respondError(w, http.StatusNotFound, "Webhook event not found")
	case errors.Is(err, webhook.ErrNotRetryable):
		respondError(w, http.StatusBadRequest, "Only failed webhooks can be retried")
	case errors.Is(err, webhook.ErrRetriesExhausted):
		respondError(w, http.StatusBadRequest, "Maximum retry attempts exceeded")
	case err != nil:
		s.logger.WithContext(r.Context()).WithEvent(id.String()).WithError(err).Error("retry webhook event failed")
		respondError(w, http.StatusInternalServerError, "internal error")
	default:
		respond(w, http.StatusOK, map[string]any{
			"message":    "Webhook queued for retry",
			"webhook_id": ev.ID,
		})
	}
}
