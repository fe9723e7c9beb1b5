// Package backend is the REST client for the trading backend: events,
// markets, orders and the USDC proxy endpoints.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/polydesk/internal/domain"
)

// IdempotencyHeader carries the client-generated idempotency key on order
// creation.
const IdempotencyHeader = "x-idempotency-key"

const (
	defaultTimeout   = 30 * time.Second
	defaultRetryWait = 500 * time.Millisecond
)

// errTransport marks failures where no HTTP response was received.
var errTransport = errors.New("http request")

// Client is the REST client for the backend API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	readRetries int
	retryWait   time.Duration
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRateLimit bounds outgoing requests to perSec with the given burst.
func WithRateLimit(perSec float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSec), burst) }
}

// WithReadRetries sets how many times balance and allowance reads are
// retried after a transient failure.
func WithReadRetries(n int) Option {
	return func(c *Client) { c.readRetries = n }
}

// WithRetryWait sets the base backoff between read retries.
func WithRetryWait(d time.Duration) Option {
	return func(c *Client) { c.retryWait = d }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a backend client.
//
// baseURL is the API root, e.g. "http://localhost:3000".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		limiter:     rate.NewLimiter(rate.Inf, 1),
		readRetries: 2,
		retryWait:   defaultRetryWait,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) doGet(ctx context.Context, path string, params url.Values, out any) error {
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil, nil, out)
}

// doGetWithRetry retries transport failures, 429 and 5xx responses with
// exponential backoff.
func (c *Client) doGetWithRetry(ctx context.Context, path string, out any) error {
	var err error
	for attempt := 0; attempt <= c.readRetries; attempt++ {
		err = c.doGet(ctx, path, nil, out)
		if err == nil || !IsRetryable(err) || attempt == c.readRetries {
			break
		}
		c.logger.WarnContext(ctx, "backend: retrying read",
			slog.String("path", path),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
		if werr := c.sleep(ctx, attempt); werr != nil {
			return werr
		}
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", errTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return err
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRetryable reports whether err is transient: a transport failure, a rate
// limit or a 5xx response. Context cancellation is never retried.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return errors.Is(err, errTransport)
}

// errorBody is the backend's error envelope. message may be a string or a
// list of validation messages.
type errorBody struct {
	Message json.RawMessage `json:"message"`
	Code    string          `json:"code"`
	Error   string          `json:"error"`
	Details any             `json:"details"`
}

// checkHTTPStatus maps a non-2xx response to a *domain.APIError wrapping the
// matching domain sentinel.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	apiErr := &domain.APIError{StatusCode: statusCode, Body: body}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		apiErr.Code = eb.Code
		apiErr.Details = eb.Details
		apiErr.Message = decodeMessage(eb.Message)
		if apiErr.Message == "" {
			apiErr.Message = eb.Error
		}
	} else if text := strings.TrimSpace(string(body)); text != "" && len(text) < 512 {
		apiErr.Message = text
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(statusCode)
	}

	switch {
	case statusCode == http.StatusNotFound:
		apiErr.Kind = domain.ErrNotFound
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		apiErr.Kind = domain.ErrUnauthorized
	case statusCode == http.StatusTooManyRequests:
		apiErr.Kind = domain.ErrRateLimited
	case statusCode == http.StatusBadRequest, statusCode == http.StatusUnprocessableEntity, statusCode == http.StatusConflict:
		apiErr.Kind = domain.ErrInvalidOrder
	default:
		apiErr.Kind = domain.ErrUpstream
	}
	return apiErr
}

func decodeMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return ""
}
