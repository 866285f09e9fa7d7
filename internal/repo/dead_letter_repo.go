package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/notifier/internal/domain"
)

// Лимиты выборки журнала.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

const deadLetterSchema = `
	CREATE TABLE IF NOT EXISTS notification_dead_letters (
		id           uuid PRIMARY KEY,
		topic        text NOT NULL,
		routing_key  text NOT NULL,
		message_id   text NOT NULL DEFAULT '',
		message_type text NOT NULL DEFAULT '',
		payload      bytea NOT NULL,
		headers      jsonb,
		attempts     integer NOT NULL,
		last_error   text,
		status       text NOT NULL DEFAULT 'DEAD',
		created_at   timestamptz NOT NULL,
		replayed_at  timestamptz
	);
	CREATE INDEX IF NOT EXISTS notification_dead_letters_topic_created_idx
		ON notification_dead_letters (topic, created_at DESC);
`

// DeadLetterFilter — параметры выборки журнала.
type DeadLetterFilter struct {
	Topic  string
	Status domain.DeadLetterStatus
	Limit  int
	Offset int
}

// Normalize приводит limit/offset к допустимым значениям.
func (f DeadLetterFilter) Normalize() DeadLetterFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// DeadLetterRepo — журнал сообщений, ушедших в dead-letter.
type DeadLetterRepo struct {
	pool *pgxpool.Pool
}

// NewDeadLetterRepo создаёт новый DeadLetterRepo.
func NewDeadLetterRepo(pool *pgxpool.Pool) *DeadLetterRepo {
	return &DeadLetterRepo{pool: pool}
}

// EnsureSchema создаёт таблицу журнала, если её нет.
func (r *DeadLetterRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, deadLetterSchema); err != nil {
		return fmt.Errorf("ensure dead letter schema: %w", err)
	}
	return nil
}

// Create сохраняет запись.
func (r *DeadLetterRepo) Create(ctx context.Context, dl *domain.DeadLetter) error {
	if dl.ID == uuid.Nil {
		dl.ID = uuid.New()
	}
	if dl.Status == "" {
		dl.Status = domain.DeadLetterStatusDead
	}
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = time.Now().UTC()
	}
	if dl.Payload == nil {
		dl.Payload = []byte{}
	}

	headersJSON, err := marshalHeaders(dl.Headers)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO notification_dead_letters
			(id, topic, routing_key, message_id, message_type, payload, headers,
			 attempts, last_error, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.pool.Exec(ctx, query,
		dl.ID,
		dl.Topic,
		dl.RoutingKey,
		dl.MessageID,
		dl.MessageType,
		dl.Payload,
		headersJSON,
		dl.Attempts,
		nullString(dl.LastError),
		dl.Status,
		dl.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("dead letter %s: %w", dl.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

// GetByID возвращает запись по ID.
func (r *DeadLetterRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.DeadLetter, error) {
	query := `
		SELECT id, topic, routing_key, message_id, message_type, payload, headers,
		       attempts, last_error, status, created_at, replayed_at
		FROM notification_dead_letters
		WHERE id = $1
	`
	dl, err := scanDeadLetter(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return dl, err
}

// deadLetterFilterClause — условие фильтра: $1 topic, $2 status (NULL — любой).
const deadLetterFilterClause = `($1::text IS NULL OR topic = $1)
		  AND ($2::text IS NULL OR status = $2)`

// List возвращает записи с фильтрацией, новые первыми.
func (r *DeadLetterRepo) List(ctx context.Context, filter DeadLetterFilter) ([]domain.DeadLetter, error) {
	filter = filter.Normalize()

	query := `
		SELECT id, topic, routing_key, message_id, message_type, payload, headers,
		       attempts, last_error, status, created_at, replayed_at
		FROM notification_dead_letters
		WHERE ` + deadLetterFilterClause + `
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(filter.Topic),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var letters []domain.DeadLetter
	for rows.Next() {
		dl, err := scanDeadLetter(rows)
		if err != nil {
			return nil, err
		}
		letters = append(letters, *dl)
	}
	return letters, rows.Err()
}

// Count возвращает количество записей под фильтром без учёта limit/offset.
func (r *DeadLetterRepo) Count(ctx context.Context, filter DeadLetterFilter) (int, error) {
	query := `SELECT count(*) FROM notification_dead_letters WHERE ` + deadLetterFilterClause

	var total int
	err := r.pool.QueryRow(ctx, query,
		nullString(filter.Topic),
		nullString(string(filter.Status)),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count dead letters: %w", err)
	}
	return total, nil
}

// MarkReplayed переводит запись DEAD → REPLAYED условным UPDATE.
// Из двух конкурентных вызовов успешен ровно один, второй получает ErrInvalidState.
func (r *DeadLetterRepo) MarkReplayed(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE notification_dead_letters
		SET status = $2, replayed_at = $3
		WHERE id = $1 AND status = $4
	`
	result, err := r.pool.Exec(ctx, query,
		id,
		domain.DeadLetterStatusReplayed,
		at,
		domain.DeadLetterStatusDead,
	)
	if err != nil {
		return fmt.Errorf("mark dead letter replayed: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	// Строка не обновилась: записи нет или она уже REPLAYED
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrInvalidState
}

// RevertReplay возвращает запись REPLAYED → DEAD, если публикация не удалась.
func (r *DeadLetterRepo) RevertReplay(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE notification_dead_letters
		SET status = $2, replayed_at = NULL
		WHERE id = $1 AND status = $3
	`
	result, err := r.pool.Exec(ctx, query,
		id,
		domain.DeadLetterStatusDead,
		domain.DeadLetterStatusReplayed,
	)
	if err != nil {
		return fmt.Errorf("revert dead letter replay: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// scanDeadLetter сканирует одну строку (pgx.Row или pgx.Rows).
func scanDeadLetter(row pgx.Row) (*domain.DeadLetter, error) {
	var dl domain.DeadLetter
	var headersJSON []byte
	var lastError *string

	err := row.Scan(
		&dl.ID,
		&dl.Topic,
		&dl.RoutingKey,
		&dl.MessageID,
		&dl.MessageType,
		&dl.Payload,
		&headersJSON,
		&dl.Attempts,
		&lastError,
		&dl.Status,
		&dl.CreatedAt,
		&dl.ReplayedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan dead letter: %w", err)
	}

	if headersJSON != nil {
		if err := json.Unmarshal(headersJSON, &dl.Headers); err != nil {
			return nil, fmt.Errorf("unmarshal headers: %w", err)
		}
	}
	if lastError != nil {
		dl.LastError = *lastError
	}

	return &dl, nil
}

// marshalHeaders сериализует AMQP заголовки для jsonb. Пустые заголовки — NULL.
func marshalHeaders(headers map[string]any) ([]byte, error) {
	if len(headers) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(headers)
	if err != nil {
		return nil, fmt.Errorf("marshal headers: %w", err)
	}
	return b, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isUniqueViolation проверяет, что ошибка — нарушение уникальности (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
