package mlflow

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Option configures a Client (functional options pattern).
type Option func(*Client)

// WithHTTPClient sets the HTTP client. Default has a 30s timeout. If c is nil, the default client is left unchanged.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithTimeout sets the per-request timeout on a copy of the HTTP client. Values <= 0 are ignored.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			hc := *cl.httpClient
			hc.Timeout = d
			cl.httpClient = &hc
		}
	}
}

// WithAuthToken sets the Bearer token for the Authorization header (MLFLOW_TRACKING_TOKEN).
func WithAuthToken(token string) Option {
	return func(cl *Client) {
		cl.authToken = token
	}
}

// WithBasicAuth sets HTTP basic credentials (MLFLOW_TRACKING_USERNAME / MLFLOW_TRACKING_PASSWORD).
// Ignored when a Bearer token is also set.
func WithBasicAuth(username, password string) Option {
	return func(cl *Client) {
		cl.username = username
		cl.password = password
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(cl *Client) {
		cl.headers.Set(key, value)
	}
}

// WithSigner signs every request after headers are set. NewSageMaker installs a SigV4 signer.
func WithSigner(s Signer) Option {
	return func(cl *Client) {
		cl.signer = s
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) {
		if ua != "" {
			cl.userAgent = ua
		}
	}
}

// WithLogger sets the logger. Default is zap.NewNop(). A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// WithPageSize sets max_results for model-versions/search. Values < 1 are ignored.
func WithPageSize(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.pageSize = n
		}
	}
}
