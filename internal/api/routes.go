package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Dead letters
	mux.Handle("GET /api/v1/dead-letters", chain(http.HandlerFunc(h.ListDeadLetters)))
	mux.Handle("GET /api/v1/dead-letters/{id}", chain(http.HandlerFunc(h.GetDeadLetter)))
	mux.Handle("POST /api/v1/dead-letters/{id}/replay", chain(http.HandlerFunc(h.ReplayDeadLetter)))

	// Notifications
	mux.Handle("POST /api/v1/notifications", chain(http.HandlerFunc(h.SendNotification)))

	// Broker
	mux.Handle("GET /api/v1/topology", chain(http.HandlerFunc(h.GetTopology)))
	mux.Handle("GET /api/v1/queues", chain(http.HandlerFunc(h.ListQueues)))
}
