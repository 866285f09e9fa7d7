// Package api содержит admin HTTP API процесса notifier-worker.
//
// Структура:
//   - handler.go              — Handler с DI (журнал, publisher, inspector, logger)
//   - routes.go               — регистрация маршрутов
//   - middleware.go           — middleware (logging, recovery)
//   - response.go             — унифицированные JSON-ответы и обработка ошибок
//   - dto.go                  — Data Transfer Objects (request/response)
//   - dead_letter_handler.go  — просмотр и replay журнала dead-letter
//   - notification_handler.go — постановка писем в очередь, топология, очереди
//
// Зависимости передаются интерфейсами. Если зависимость не настроена
// (нет БД или брокера), endpoint отвечает 503.
package api
