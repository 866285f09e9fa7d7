// Package cli реализует инструмент командной строки notifier.
//
// # Обзор
//
// CLI — клиент admin API процесса notifier-worker.
// Работает через HTTP, не импортирует внутренние пакеты системы.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для admin API. Инкапсулирует HTTP-запросы, парсинг
// ответов (DataResponse, ListResponse, ErrorResponse) и ошибки (APIError).
//
//	client := cli.NewClient("http://localhost:8082")
//	letters, err := client.ListDeadLetters(cli.ListDeadLettersOpts{Topic: "email"})
//
// ## Output
//
// Таблицы (text/tabwriter) по умолчанию, JSON с флагом --json.
// Данные выводятся в stdout, сообщения (Success/Error) в stderr:
//
//	notifier dlq list --json | jq .
//
// ## Commands
//
//   - dlq: list, show, replay
//   - notify: send
//   - topology
//   - queues
//
// Каждая команда создаётся фабричной функцией (NewDLQCmd и т.д.),
// принимающей clientFn и outputFn для ленивого создания Client и Output
// после парсинга PersistentFlags.
package cli
