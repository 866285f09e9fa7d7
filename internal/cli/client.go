package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// DeadLetterResponse — запись журнала dead-letter из API.
type DeadLetterResponse struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	RoutingKey  string          `json:"routing_key"`
	MessageID   string          `json:"message_id,omitempty"`
	MessageType string          `json:"message_type,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	Headers     map[string]any  `json:"headers,omitempty"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"last_error,omitempty"`
	Status      string          `json:"status"`
	CreatedAt   string          `json:"created_at"`
	ReplayedAt  string          `json:"replayed_at,omitempty"`
}

// NotificationResponse — ответ о постановке письма в очередь.
type NotificationResponse struct {
	Type   string   `json:"type"`
	To     []string `json:"to"`
	Status string   `json:"status"`
}

// TopologyResponse — топология брокера из API.
type TopologyResponse struct {
	Exchanges struct {
		Queue      string `json:"queue"`
		Retry      string `json:"retry"`
		DeadLetter string `json:"dead_letter"`
	} `json:"exchanges"`
	MaxRetryAttempts int                    `json:"max_retry_attempts"`
	RetryDelayMs     int64                  `json:"retry_delay_ms"`
	Registrations    []RegistrationResponse `json:"registrations"`
}

// RegistrationResponse — зарегистрированный топик.
type RegistrationResponse struct {
	Topic      string `json:"topic"`
	RoutingKey string `json:"routing_key"`
	Queues     struct {
		Primary    string `json:"primary"`
		Retry      string `json:"retry"`
		DeadLetter string `json:"dead_letter"`
	} `json:"queues"`
}

// QueueStatsResponse — состояние очереди из API.
type QueueStatsResponse struct {
	Topic     string `json:"topic"`
	Queue     string `json:"queue"`
	Messages  int    `json:"messages"`
	Consumers int    `json:"consumers"`
	Error     string `json:"error,omitempty"`
}

// --- Request types ---

// SendNotificationRequest — запрос на отправку письма.
type SendNotificationRequest struct {
	Type    string            `json:"type"`
	To      []string          `json:"to"`
	Context map[string]string `json:"context,omitempty"`
}

// ListDeadLettersOpts — параметры фильтрации журнала.
type ListDeadLettersOpts struct {
	Topic  string
	Status string
	Limit  int
	Offset int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для admin API notifier.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Dead letters ---

// ListDeadLetters возвращает страницу журнала и общее число записей под фильтром.
func (c *Client) ListDeadLetters(opts ListDeadLettersOpts) ([]DeadLetterResponse, int, error) {
	params := url.Values{}
	if opts.Topic != "" {
		params.Set("topic", opts.Topic)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	var letters []DeadLetterResponse
	total, err := c.list("/api/v1/dead-letters", params, &letters)
	return letters, total, err
}

// GetDeadLetter возвращает запись журнала по ID.
func (c *Client) GetDeadLetter(id string) (*DeadLetterResponse, error) {
	var dl DeadLetterResponse
	err := c.get("/api/v1/dead-letters/"+url.PathEscape(id), &dl)
	return &dl, err
}

// ReplayDeadLetter повторно публикует сообщение из журнала.
func (c *Client) ReplayDeadLetter(id string) (*DeadLetterResponse, error) {
	var dl DeadLetterResponse
	err := c.post("/api/v1/dead-letters/"+url.PathEscape(id)+"/replay", nil, &dl)
	return &dl, err
}

// --- Notifications ---

// SendNotification ставит письмо в очередь.
func (c *Client) SendNotification(req SendNotificationRequest) (*NotificationResponse, error) {
	var resp NotificationResponse
	err := c.post("/api/v1/notifications", req, &resp)
	return &resp, err
}

// --- Broker ---

// GetTopology возвращает топологию брокера.
func (c *Client) GetTopology() (*TopologyResponse, error) {
	var topo TopologyResponse
	err := c.get("/api/v1/topology", &topo)
	return &topo, err
}

// ListQueues возвращает состояние очередей.
func (c *Client) ListQueues() ([]QueueStatsResponse, error) {
	var stats []QueueStatsResponse
	_, err := c.list("/api/v1/queues", nil, &stats)
	return stats, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

// list декодирует список и возвращает total (0, если API его не отдаёт).
func (c *Client) list(path string, params url.Values, result any) (int, error) {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return 0, err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	return lr.Total, json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// APIError — ошибка, возвращённая API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return &APIError{Status: resp.StatusCode}
	}

	return &APIError{Status: resp.StatusCode, Code: er.Error.Code, Message: er.Error.Message}
}
