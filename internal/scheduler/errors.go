package scheduler

import "errors"

var (
	// ErrInvalidSchedule — некорректное cron-выражение.
	ErrInvalidSchedule = errors.New("invalid cron expression")

	// ErrNoInspector — Inspector создан без источника статистики очередей.
	ErrNoInspector = errors.New("queue inspector is not configured")
)
