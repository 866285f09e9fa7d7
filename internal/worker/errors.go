package worker

import "errors"

// Ошибки воркера.
var (
	// ErrWorkerStopped — воркер остановлен.
	ErrWorkerStopped = errors.New("worker stopped")

	// ErrAlreadyStarted — Start вызван повторно.
	ErrAlreadyStarted = errors.New("worker already started")

	// ErrNoSource — не задан источник доставок.
	ErrNoSource = errors.New("delivery source is not configured")

	// ErrNoRouter — не задан router для упавших сообщений.
	ErrNoRouter = errors.New("router is not configured")

	// ErrNoRegistrations — в реестре нет ни одного топика.
	ErrNoRegistrations = errors.New("no topics registered")
)
