// Пакет client — HTTP-клиент API реестра команд для CLI.
// Повторяет идемпотентные GET-запросы с экспоненциальной задержкой
// и прекращает обращения к реестру, пока он недоступен.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"

	apierrors "github.com/drdator/ccm/internal/api/errors"
)

// maxResponseBytes — предел тела ответа (файлы пакета приходят целиком).
const maxResponseBytes = 16 << 20

// ErrRegistryDown — реестр недоступен: сетевая ошибка, 5xx или открытый breaker.
var ErrRegistryDown = errors.New("registry unavailable")

// APIError — ошибка, возвращённая API в формате {"error":{"code","message"}}.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

// Temporary — ошибку имеет смысл повторить (429, 5xx).
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// StatusOf возвращает HTTP-статус APIError или 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Client — клиент реестра.
type Client struct {
	baseURL    string
	http       *http.Client
	userAgent  string
	maxRetries int
	baseDelay  time.Duration
	token      string
	apiKey     string
	breaker    *circuit.Breaker
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient задаёт HTTP-клиент.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithUserAgent задаёт заголовок User-Agent.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithMaxRetries задаёт число повторов GET-запросов.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithBaseDelay задаёт начальную задержку между повторами.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = d
	}
}

// WithToken задаёт JWT (Authorization: Bearer). Имеет приоритет над API-ключом.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithAPIKey задаёт API-ключ (X-API-Key).
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithBreakerThreshold — после скольких подряд неудачных запросов
// реестр считается недоступным.
func WithBreakerThreshold(n int64) Option {
	return func(c *Client) {
		c.breaker = newBreaker(n)
	}
}

// New создаёт клиент. baseURL — адрес API, например https://claudecommands.dev/api.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: 30 * time.Second},
		userAgent:  "ccm",
		maxRetries: 3,
		baseDelay:  500 * time.Millisecond,
		breaker:    newBreaker(5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newBreaker(threshold int64) *circuit.Breaker {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	return circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ConsecutiveTripFunc(threshold),
	})
}

// BaseURL — адрес API.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Authenticated — заданы ли учётные данные.
func (c *Client) Authenticated() bool {
	return c.token != "" || c.apiKey != ""
}

// do выполняет запрос и декодирует JSON-ответ в out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if !c.breaker.Ready() {
		return fmt.Errorf("%w: too many failed requests to %s", ErrRegistryDown, c.baseURL)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("кодирование запроса: %w", err)
		}
	}

	operation := func() error {
		err := c.once(ctx, method, target, payload, out)
		if err == nil {
			return nil
		}
		if method != http.MethodGet || !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.baseDelay
	expBackoff.MaxInterval = 10 * time.Second
	expBackoff.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(c.maxRetries)), ctx)

	var opErr error
	_ = c.breaker.Call(func() error {
		opErr = backoff.Retry(operation, policy)
		if registryDown(opErr) {
			return opErr
		}
		return nil
	}, 0)
	return opErr
}

func (c *Client) once(ctx context.Context, method, target string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	case c.apiKey != "":
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrRegistryDown, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: чтение ответа: %v", ErrRegistryDown, err)
	}

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("некорректный ответ реестра: %w", err)
	}
	return nil
}

func decodeAPIError(status int, data []byte) *APIError {
	apiErr := &APIError{Status: status}
	var body apierrors.Body
	if err := json.Unmarshal(data, &body); err == nil && body.Error.Message != "" {
		apiErr.Code = body.Error.Code
		apiErr.Message = body.Error.Message
		return apiErr
	}
	apiErr.Message = http.StatusText(status)
	if apiErr.Message == "" {
		apiErr.Message = "HTTP " + strconv.Itoa(status)
	}
	return apiErr
}

func retryable(err error) bool {
	if errors.Is(err, ErrRegistryDown) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Temporary()
}

// registryDown — ошибка засчитывается breaker'у как отказ реестра.
// 429 не считается: реестр работает, но ограничивает клиента.
func registryDown(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRegistryDown) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status >= 500
}
