// Package config загружает конфигурацию notifier из переменных окружения.
//
// Обязательные переменные:
//   - RABBITMQ_URL — адрес брокера
//   - MAX_RETRY_ATTEMPTS — число повторов до dead-letter
//   - RETRY_DELAY_MS — задержка перед повтором (TTL retry-очереди)
//
// Остальные переменные необязательны и имеют значения по умолчанию.
// Ошибка загрузки оборачивает ErrMissing или ErrInvalid.
package config
