package transport

import (
	"net/http"
	"time"
)

// Options configures the HTTP implementation of Doer.
type Options struct {
	// APIKey authenticates queue requests. Empty sends no Authorization
	// header.
	APIKey string

	// AuthScheme prefixes the credential; the queue API expects "Key".
	AuthScheme string

	// HTTPClient allows callers to inject custom HTTP behaviour (proxies,
	// transports). The implementation clones it.
	HTTPClient *http.Client

	// RequestTimeout caps each request. Zero leaves the client's own
	// timeout in force.
	RequestTimeout time.Duration

	// Header entries are sent on every request; per-request headers with
	// the same name win.
	Header http.Header
}

// ClientOption mutates Options prior to construction.
type ClientOption func(*Options)

// WithAPIKey sets the queue API credential.
func WithAPIKey(key string) ClientOption {
	return func(opts *Options) {
		opts.APIKey = key
	}
}

// WithAuthScheme overrides the Authorization scheme.
func WithAuthScheme(scheme string) ClientOption {
	return func(opts *Options) {
		opts.AuthScheme = scheme
	}
}

// WithHTTPClient injects a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(opts *Options) {
		opts.HTTPClient = client
	}
}

// WithRequestTimeout caps remote request durations.
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(opts *Options) {
		opts.RequestTimeout = timeout
	}
}

// WithHeader adds a default header to every request.
func WithHeader(name, value string) ClientOption {
	return func(opts *Options) {
		if opts.Header == nil {
			opts.Header = http.Header{}
		}
		opts.Header.Add(name, value)
	}
}

// NewOptions applies a set of ClientOption values and returns the resulting
// configuration.
func NewOptions(options ...ClientOption) Options {
	cfg := Options{}
	for _, opt := range options {
		opt(&cfg)
	}
	return cfg
}
