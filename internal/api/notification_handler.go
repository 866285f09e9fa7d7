package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shaiso/notifier/internal/domain"
	"github.com/shaiso/notifier/internal/mq"
	"github.com/shaiso/notifier/internal/notification"
)

// SendNotification ставит письмо в очередь.
// Отвечает 202 после подтверждения брокера.
// POST /api/v1/notifications
func (h *Handler) SendNotification(w http.ResponseWriter, r *http.Request) {
	if h.notifications == nil {
		Unavailable(w, "broker is not connected")
		return
	}

	var req SendNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	err := h.notifications.SendEmailRequest(r.Context(), req.ToDomain())
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidEmailRequest):
		BadRequest(w, err.Error())
		return
	case errors.Is(err, notification.ErrNoPublisher),
		errors.Is(err, mq.ErrNotConnected),
		errors.Is(err, mq.ErrPublish):
		h.logger.Error("failed to enqueue notification", "type", req.Type, "error", err)
		Unavailable(w, "failed to publish message")
		return
	default:
		InternalError(w, h.logger, err)
		return
	}

	Accepted(w, SendNotificationResponse{
		Type:   req.Type,
		To:     req.To,
		Status: "queued",
	})
}

// GetTopology возвращает exchanges и очереди всех топиков.
// GET /api/v1/topology
func (h *Handler) GetTopology(w http.ResponseWriter, r *http.Request) {
	Success(w, TopologyFromRegistry(h.broker, h.registry))
}

// ListQueues возвращает глубину и число consumer'ов для каждой очереди.
// Ошибка одной очереди не прерывает ответ.
// GET /api/v1/queues
func (h *Handler) ListQueues(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		Unavailable(w, "broker is not connected")
		return
	}

	result := make([]QueueStatsResponse, 0, 3*h.registry.Len())
	for _, reg := range h.registry.Registrations() {
		for _, queue := range reg.Queues().All() {
			item := QueueStatsResponse{Topic: reg.Topic, Queue: queue}

			stats, err := h.inspector.InspectQueue(r.Context(), queue)
			if err != nil {
				h.logger.Warn("failed to inspect queue", "queue", queue, "error", err)
				item.Error = err.Error()
			} else {
				item.Messages = stats.Messages
				item.Consumers = stats.Consumers
			}

			result = append(result, item)
		}
	}

	List(w, result)
}
