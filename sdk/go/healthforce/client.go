package healthforce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	xerrors "HealthForce-Goa/internal/errors"
	"HealthForce-Goa/pkg/logger"
)

// DefaultBasePath is the path prefix every backend endpoint lives under.
const DefaultBasePath = "/api"

// Client turns HealthForce domain operations into HTTP round trips against the
// backend. It keeps no per-call state, so one Client may be shared by any
// number of goroutines.
type Client struct {
	prefix     string
	httpClient *http.Client
	log        *slog.Logger
}

// Option customises a Client.
type Option func(*clientOptions)

type clientOptions struct {
	basePath   string
	httpClient *http.Client
	log        *slog.Logger
}

// WithBasePath replaces DefaultBasePath, e.g. when the backend sits behind a
// proxy that rewrites paths. An empty path sends requests to the origin root.
func WithBasePath(p string) Option {
	return func(o *clientOptions) {
		o.basePath = p
	}
}

// WithHTTPClient sets the transport. The default client has no timeout;
// callers bound a call through its context instead.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithLogger sets the logger that records failed calls.
func WithLogger(l *slog.Logger) Option {
	return func(o *clientOptions) {
		o.log = l
	}
}

// NewClient builds a client for the backend reachable at rawURL
// (scheme and host, optionally a path prefix).
func NewClient(rawURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", rawURL)
	}

	options := clientOptions{basePath: DefaultBasePath, httpClient: &http.Client{}}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	prefix := strings.TrimRight(parsed.String(), "/")
	if trimmed := strings.Trim(options.basePath, "/"); trimmed != "" {
		prefix += "/" + trimmed
	}
	return &Client{prefix: prefix, httpClient: options.httpClient, log: options.log}, nil
}

// Request describes one call: where it goes, how, and with what. It is
// built per call and never retained.
type Request struct {
	Method   string
	Endpoint string
	// Body is encoded as JSON when non-nil.
	Body   any
	Header http.Header
}

// Do performs req and returns the decoded JSON body unchanged. Any failure is
// logged under operation and returned as *Error.
func (c *Client) Do(ctx context.Context, operation string, req Request) (any, error) {
	result, err := c.roundTrip(ctx, operation, req)
	if err != nil {
		c.logger().Error("API Error",
			slog.String("operation", operation),
			slog.String("endpoint", req.Endpoint),
			slog.Any("error", err),
		)
		return nil, err
	}
	return result, nil
}

// URL returns the absolute address an endpoint resolves to.
func (c *Client) URL(endpoint string) string {
	if endpoint != "" && !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return c.prefix + endpoint
}

func (c *Client) roundTrip(ctx context.Context, operation string, req Request) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	fail := func(code xerrors.Code, status int, message string, cause error) *Error {
		return &Error{
			Message:    message,
			Operation:  operation,
			Endpoint:   req.Endpoint,
			StatusCode: status,
			Code:       code,
			cause:      cause,
		}
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fail(CodeEncode, 0, err.Error(), err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.URL(req.Endpoint), body)
	if err != nil {
		return nil, fail(CodeTransport, 0, err.Error(), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for key, values := range req.Header {
		httpReq.Header.Del(key)
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fail(CodeTransport, 0, err.Error(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fail(CodeTransport, resp.StatusCode, err.Error(), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := detailMessage(data)
		if message == "" {
			message = statusMessage(resp.StatusCode)
		}
		return nil, fail(CodeHTTPStatus, resp.StatusCode, message, nil)
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fail(CodeDecode, resp.StatusCode, err.Error(), err)
	}
	return out, nil
}

func (c *Client) logger() *slog.Logger {
	if c.log != nil {
		return c.log
	}
	return logger.Named("gateway")
}

// detailMessage extracts the backend's "detail" field from an error body.
// It returns "" when the body is absent, not a JSON object, or carries no
// usable detail.
func detailMessage(data []byte) string {
	if len(bytes.TrimSpace(data)) == 0 {
		return ""
	}
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	raw := bytes.TrimSpace(payload.Detail)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return string(raw)
	}
	return compact.String()
}

// AsError reports whether err carries a client *Error.
func AsError(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
