package cnwdevice

import (
	"log/slog"
	"net/http"
	"time"
)

// ClientOption configures a RegistryClient.
type ClientOption func(*RegistryClient)

// WithHTTPClient sets a custom HTTP client for the RegistryClient.
// The client's Timeout will be overridden by WithTimeout (or the default 10s).
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *RegistryClient) {
		o.httpClient = c
	}
}

// WithTimeout sets the HTTP client timeout. Default is 10 seconds.
// Option ordering does not matter: timeout is always applied after all options.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *RegistryClient) {
		o.timeout = d
	}
}

// WithUserAgent sets the User-Agent header sent with requests.
func WithUserAgent(ua string) ClientOption {
	return func(o *RegistryClient) {
		o.userAgent = ua
	}
}

// WithAPIKey sends key as the X-API-Key header on every request.
func WithAPIKey(key string) ClientOption {
	return func(o *RegistryClient) {
		o.apiKey = key
	}
}

// WithClientLogger sets the logger. Default is slog.Default().
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(o *RegistryClient) {
		o.logger = l
	}
}
