// Package transport talks to the configuration service over HTTP.
package transport

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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/domain"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/metrics"
)

// API is the configuration service as used by the console.
type API interface {
	ListClients(ctx context.Context, forceRefresh bool) ([]domain.Client, error)
	GetConfig(ctx context.Context, t domain.ConfigType, clientID int64, forceRefresh bool) (domain.Config, error)
	CreateConfig(ctx context.Context, t domain.ConfigType, clientID int64, params domain.Params) (domain.Config, error)
	UpdateConfig(ctx context.Context, t domain.ConfigType, clientID int64, params domain.Params) (domain.Config, error)
	DeleteConfig(ctx context.Context, t domain.ConfigType, clientID int64) error
	SetClientStatus(ctx context.Context, clientID int64, status domain.ClientStatus) (domain.Client, error)
}

// Config holds the configuration for the configuration service client
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	RetryCount   int
	RetryBackoff time.Duration
	// Token is sent when the context carries no operator token.
	Token string
}

func DefaultConfig() Config {
	return Config{
		BaseURL:      "http://localhost:3000",
		Timeout:      10 * time.Second,
		RetryCount:   2,
		RetryBackoff: 200 * time.Millisecond,
	}
}

const maxBackoff = 5 * time.Second

type Client struct {
	httpClient *http.Client
	config     Config
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

func WithClientMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

func NewClient(config Config, opts ...ClientOption) *Client {
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	c := &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config: config,
		tracer: otel.Tracer("rekko-console/transport"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tokenKey struct{}

// WithBearerToken makes requests issued with ctx act on behalf of the
// operator holding token.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func bearerToken(ctx context.Context, fallback string) string {
	if token, ok := ctx.Value(tokenKey{}).(string); ok && token != "" {
		return token
	}
	return fallback
}

type clientsResponse struct {
	Clients []domain.Client `json:"clients"`
}

type statusRequest struct {
	Status domain.ClientStatus `json:"status"`
}

func (c *Client) ListClients(ctx context.Context, _ bool) ([]domain.Client, error) {
	var resp clientsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/clients", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Clients, nil
}

// GetConfig returns domain.ErrConfigNotFound when the service answers 404.
func (c *Client) GetConfig(ctx context.Context, t domain.ConfigType, clientID int64, _ bool) (domain.Config, error) {
	var raw json.RawMessage
	err := c.do(ctx, http.MethodGet, configPath(t, clientID), nil, &raw)
	if err != nil {
		var remote *domain.RemoteError
		if errors.As(err, &remote) && remote.StatusCode == http.StatusNotFound {
			return nil, domain.ErrConfigNotFound
		}
		return nil, err
	}
	return decodeConfig(t, raw)
}

func (c *Client) CreateConfig(ctx context.Context, t domain.ConfigType, clientID int64, params domain.Params) (domain.Config, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, configPath(t, clientID), params, &raw); err != nil {
		return nil, err
	}
	return decodeConfig(t, raw)
}

func (c *Client) UpdateConfig(ctx context.Context, t domain.ConfigType, clientID int64, params domain.Params) (domain.Config, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPut, configPath(t, clientID), params, &raw); err != nil {
		return nil, err
	}
	return decodeConfig(t, raw)
}

func (c *Client) DeleteConfig(ctx context.Context, t domain.ConfigType, clientID int64) error {
	return c.do(ctx, http.MethodDelete, configPath(t, clientID), nil, nil)
}

func (c *Client) SetClientStatus(ctx context.Context, clientID int64, status domain.ClientStatus) (domain.Client, error) {
	var client domain.Client
	path := "/v1/clients/" + strconv.FormatInt(clientID, 10) + "/status"
	if err := c.do(ctx, http.MethodPut, path, statusRequest{Status: status}, &client); err != nil {
		return domain.Client{}, err
	}
	return client, nil
}

func configPath(t domain.ConfigType, clientID int64) string {
	return "/v1/configs/" + url.PathEscape(string(t)) + "/" + strconv.FormatInt(clientID, 10)
}

func decodeConfig(t domain.ConfigType, raw []byte) (domain.Config, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty %s configuration", errInvalidResponse, t)
	}
	return domain.DecodeConfig(t, raw)
}

func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = DefaultConfig().RetryBackoff
	}
	d := base
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// do executes the request. Only GETs are retried, and only on transport
// failures and 5xx answers.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = b
	}

	retries := 0
	if method == http.MethodGet {
		retries = c.config.RetryCount
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(c.config.RetryBackoff, attempt)):
			}
		}

		lastErr = c.doOnce(ctx, method, path, payload, result)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var remote *domain.RemoteError
		if errors.As(lastErr, &remote) {
			if remote.StatusCode < 500 {
				return lastErr
			}
			continue
		}
		if errors.Is(lastErr, errInvalidResponse) {
			return lastErr
		}
	}

	var remote *domain.RemoteError
	if errors.As(lastErr, &remote) {
		return lastErr
	}
	return domain.ErrBackendUnavailable.WithError(lastErr)
}

var errInvalidResponse = errors.New("invalid response from configuration service")

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, result any) (err error) {
	start := time.Now()
	status := "error"

	ctx, span := c.tracer.Start(ctx, "configapi "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("url.path", path),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		c.metrics.ObserveBackend(method, status, start)
	}()

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := bearerToken(ctx, c.config.Token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	status = strconv.Itoa(resp.StatusCode)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: %v", errInvalidResponse, err)
		}
	}
	return nil
}

type errorEnvelope struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func decodeError(status int, body []byte) error {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error.Message == "" {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &domain.RemoteError{StatusCode: status, Message: msg}
	}
	return &domain.RemoteError{
		StatusCode: status,
		Code:       env.Error.Code,
		Message:    env.Error.Message,
		Fields:     env.Error.Fields,
	}
}
