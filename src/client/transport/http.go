package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/txn-review/approvals/src/data"
)

const maxBodyBytes = 8 << 20

// HTTPTransport maps resource calls onto the dev API's REST routes.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Option mutates HTTP transport configuration.
type Option func(*HTTPTransport)

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) Option {
	return func(t *HTTPTransport) {
		if client != nil {
			t.client = client
		}
	}
}

// WithTimeout sets the request timeout of the default client.
func WithTimeout(timeout time.Duration) Option {
	return func(t *HTTPTransport) {
		if timeout > 0 {
			t.client = &http.Client{Timeout: timeout}
		}
	}
}

// WithLogger injects a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *HTTPTransport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewHTTP creates a transport rooted at baseURL, e.g. "http://localhost:8080".
func NewHTTP(baseURL string, options ...Option) *HTTPTransport {
	t := &HTTPTransport{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  slog.Default(),
	}
	for _, option := range options {
		option(t)
	}
	return t
}

// Call issues a GET for the resource and returns the raw JSON body.
func (t *HTTPTransport) Call(ctx context.Context, resource string, params Params) (json.RawMessage, error) {
	path, err := route(resource, params)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", resource, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", resource, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", resource, err)
	}

	t.logger.DebugContext(ctx, "transport call",
		"resource", resource,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned %d: %s", ErrStatus, resource, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBody, resource)
	}
	return json.RawMessage(body), nil
}

func route(resource string, params Params) (string, error) {
	switch resource {
	case data.ResourceEmployees:
		return "/employees", nil
	case data.ResourcePaginatedTransactions:
		page, err := intParam(params, data.ParamPage)
		if err != nil {
			return "", err
		}
		return "/transactions?page=" + strconv.Itoa(page), nil
	case data.ResourceTransactionsByEmployee:
		id, ok := params[data.ParamEmployeeID].(string)
		if !ok || id == "" {
			return "", fmt.Errorf("%w: %s is required", ErrInvalidParams, data.ParamEmployeeID)
		}
		return "/employees/" + url.PathEscape(id) + "/transactions", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownResource, resource)
	}
}

func intParam(params Params, key string) (int, error) {
	switch v := params[key].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v == math.Trunc(v) {
			return int(v), nil
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), nil
		}
	}
	return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidParams, key)
}
