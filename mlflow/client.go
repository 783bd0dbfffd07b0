package mlflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/skosovsky/promptreg"
	"github.com/skosovsky/promptreg/internal/mlflowapi"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// maxBodySize limits response body size (1 MB); registry responses are small.
const maxBodySize = 1 << 20

// defaultUserAgent is the User-Agent header value for requests.
const defaultUserAgent = "promptreg-mlflow/1.0"

// defaultPageSize is max_results for model-versions/search.
const defaultPageSize = 200

// RequestIDHeader carries a per-request id for correlating client and server logs.
const RequestIDHeader = "X-Request-Id"

// Signer signs an outgoing request. body is the exact payload (nil for GET/DELETE).
type Signer interface {
	Sign(ctx context.Context, req *http.Request, body []byte) error
}

// Client talks to an MLflow tracking server. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	authToken  string
	username   string
	password   string
	userAgent  string
	headers    http.Header
	signer     Signer
	logger     *zap.Logger
	pageSize   int
	sf         singleflight.Group
}

// New creates a Client for trackingURI (e.g. http://localhost:5000).
// trackingURI must be an absolute http or https URL.
func New(trackingURI string, opts ...Option) (*Client, error) {
	trackingURI = strings.TrimSuffix(strings.TrimSpace(trackingURI), "/")
	if trackingURI == "" {
		return nil, fmt.Errorf("%w: mlflow: tracking URI must not be empty", promptreg.ErrConfiguration)
	}
	parsed, err := url.Parse(trackingURI)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("%w: mlflow: invalid tracking URI %q", promptreg.ErrConfiguration, trackingURI)
	}
	c := &Client{
		baseURL:    trackingURI,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  defaultUserAgent,
		headers:    make(http.Header),
		logger:     zap.NewNop(),
		pageSize:   defaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the tracking server URL requests are sent to.
func (c *Client) BaseURL() string { return c.baseURL }

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// do sends one API call. in is JSON-encoded as the body when non-nil; out receives the
// decoded response when non-nil. Non-2xx responses are returned as *APIError.
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, in, out any) error {
	u := c.baseURL + mlflowapi.BasePath + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var (
		payload []byte
		body    io.Reader
	)
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("mlflow: encode %s: %w", endpoint, err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("%w: %w", promptreg.ErrRegistryUnavailable, err)
	}
	requestID := uuid.NewString()
	for k, vs := range c.headers {
		req.Header[k] = append([]string(nil), vs...)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.authToken != "":
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	case c.username != "" || c.password != "":
		req.SetBasicAuth(c.username, c.password)
	}
	if c.signer != nil {
		if err := c.signer.Sign(ctx, req, payload); err != nil {
			return fmt.Errorf("%w: sign request: %w", promptreg.ErrRegistryUnavailable, err)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req) // #nosec G704 -- URL is from config and query-escaped
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %w", promptreg.ErrRegistryUnavailable, method, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%w: read body: %w", promptreg.ErrRegistryUnavailable, err)
	}
	// Detect truncation: if more data is available, body exceeded maxBodySize.
	probe := make([]byte, 1)
	if n, _ := resp.Body.Read(probe); n > 0 {
		return fmt.Errorf("%w: response body exceeds %d bytes", promptreg.ErrRegistryUnavailable, maxBodySize)
	}
	c.logger.Debug("mlflow request",
		zap.String("method", method),
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", requestID),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, endpoint, requestID, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode %s: %w", promptreg.ErrRegistryUnavailable, endpoint, err)
	}
	return nil
}

func newAPIError(status int, endpoint, requestID string, data []byte) *APIError {
	e := &APIError{StatusCode: status, Endpoint: endpoint, RequestID: requestID}
	var body mlflowapi.ErrorResponse
	if err := json.Unmarshal(data, &body); err == nil && body.ErrorCode != "" {
		e.Code = body.ErrorCode
		e.Message = body.Message
	} else {
		e.Message = strings.TrimSpace(string(data))
	}
	e.kind = classify(status, e.Code)
	return e
}
