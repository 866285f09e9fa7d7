// Package mq — клиент RabbitMQ для асинхронной доставки уведомлений.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, confirm-канал, каналы consumer'ов)
//   - config.go     — BrokerConfig и значения по умолчанию
//   - registry.go   — неизменяемый реестр обработчиков (RegistryBuilder)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация конвертов в queue exchange
//   - consumer.go   — delivery loop с ручным ack и ограниченным параллелизмом
//   - router.go     — retry/dead-letter по заголовку x-death
//
// Exchanges (topic, durable):
//   - queueExchange      — основной поток сообщений
//   - retryExchange      — отложенный retry через TTL
//   - deadLetterExchange — терминальные ошибки
//
// Очереди на каждый topic:
//
//	<topic>_queue             ← queueExchange       (dlx → retryExchange)
//	<topic>_retry_queue       ← retryExchange       (ttl = retryDelay, dlx → queueExchange)
//	<topic>_dead_letter_queue ← deadLetterExchange
//
// Жизненный цикл сообщения:
//
//	Delivered → Acked
//	          → AwaitingRetry → Delivered (после TTL)
//	          → DeadLettered
//
// Порядок сообщений между retry не гарантируется: сообщение из retry очереди
// может прийти после более поздних публикаций.
package mq
