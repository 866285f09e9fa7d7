package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/notifier/internal/domain"
	"github.com/shaiso/notifier/internal/mq"
	"github.com/shaiso/notifier/internal/repo"
)

const journalDisabled = "dead letter journal is disabled"

// ListDeadLetters возвращает записи журнала с фильтрацией.
// GET /api/v1/dead-letters?topic=...&status=...&limit=...&offset=...
func (h *Handler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	if h.deadLetters == nil {
		Unavailable(w, journalDisabled)
		return
	}

	q := r.URL.Query()
	filter := repo.DeadLetterFilter{Topic: q.Get("topic")}

	if status := q.Get("status"); status != "" {
		filter.Status = domain.DeadLetterStatus(status)
		if !filter.Status.IsValid() {
			BadRequest(w, "invalid status")
			return
		}
	}

	var err error
	if filter.Limit, err = queryInt(q.Get("limit"), repo.DefaultListLimit); err != nil {
		BadRequest(w, "invalid limit")
		return
	}
	if filter.Offset, err = queryInt(q.Get("offset"), 0); err != nil {
		BadRequest(w, "invalid offset")
		return
	}

	filter = filter.Normalize()

	letters, err := h.deadLetters.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	total, err := h.deadLetters.Count(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]DeadLetterResponse, len(letters))
	for i, dl := range letters {
		result[i] = DeadLetterFromDomain(dl)
	}

	Page(w, result, total, filter.Limit, filter.Offset)
}

// GetDeadLetter возвращает запись журнала по ID.
// GET /api/v1/dead-letters/{id}
func (h *Handler) GetDeadLetter(w http.ResponseWriter, r *http.Request) {
	if h.deadLetters == nil {
		Unavailable(w, journalDisabled)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid dead letter id")
		return
	}

	dl, err := h.deadLetters.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "dead letter not found") {
		return
	}

	Success(w, DeadLetterFromDomain(*dl))
}

// ReplayDeadLetter повторно публикует сообщение в queue exchange.
// Заголовки не переносятся, поэтому сообщение снова получает полный набор попыток.
// POST /api/v1/dead-letters/{id}/replay
func (h *Handler) ReplayDeadLetter(w http.ResponseWriter, r *http.Request) {
	if h.deadLetters == nil {
		Unavailable(w, journalDisabled)
		return
	}
	if h.replayer == nil {
		Unavailable(w, "broker is not connected")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid dead letter id")
		return
	}

	dl, err := h.deadLetters.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "dead letter not found") {
		return
	}

	if !dl.CanReplay() {
		InvalidState(w, "dead letter already replayed")
		return
	}

	// Сначала захватываем запись условным UPDATE: конкурентный replay получит 409
	dl.MarkReplayed()
	if err := h.deadLetters.MarkReplayed(r.Context(), dl.ID, *dl.ReplayedAt); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			Conflict(w, "dead letter is already being replayed")
			return
		}
		HandleRepoError(w, h.logger, err, "dead letter not found")
		return
	}

	err = h.replayer.PublishRaw(r.Context(), mq.RoutingKey(dl.RoutingKey), dl.MessageID, dl.MessageType, dl.Payload)
	if err != nil {
		h.logger.Error("replay publish failed", "id", dl.ID, "routing_key", dl.RoutingKey, "error", err)

		// Сообщение не опубликовано: запись снова доступна для replay
		if revertErr := h.deadLetters.RevertReplay(context.WithoutCancel(r.Context()), dl.ID); revertErr != nil {
			h.logger.Error("failed to revert replay claim", "id", dl.ID, "error", revertErr)
		}

		Unavailable(w, "failed to publish message")
		return
	}

	h.logger.Info("dead letter replayed",
		"id", dl.ID,
		"topic", dl.Topic,
		"routing_key", dl.RoutingKey,
		"message_id", dl.MessageID,
	)

	Success(w, DeadLetterFromDomain(*dl))
}

// queryInt разбирает неотрицательное число из query; пустая строка — def.
func queryInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("must be a non-negative integer")
	}
	return n, nil
}
