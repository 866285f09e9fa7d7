package config

import "errors"

var (
	// ErrMissing — не задана обязательная переменная окружения.
	ErrMissing = errors.New("missing required variable")

	// ErrInvalid — значение переменной не удалось разобрать или оно вне допустимого диапазона.
	ErrInvalid = errors.New("invalid variable")
)
