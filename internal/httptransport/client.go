// Package httptransport implements transport.Doer over net/http for the
// fal queue API: JSON request bodies, a Key-scheme Authorization header,
// and non-2xx responses reported as data rather than errors.
package httptransport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"github.com/crim50n/falai-paw/pkg/transport"
)

const defaultAuthScheme = "Key"

// Client issues queue API requests.
type Client struct {
	client   *http.Client
	scheme   string
	secret   string
	timeout  time.Duration
	defaults http.Header
}

var _ transport.Doer = (*Client)(nil)

// New constructs a Client from pre-resolved options.
func New(options transport.Options) *Client {
	httpClient := &http.Client{}
	if options.HTTPClient != nil {
		clone := *options.HTTPClient
		httpClient = &clone
	}
	if options.RequestTimeout > 0 && httpClient.Timeout == 0 {
		httpClient.Timeout = options.RequestTimeout
	}

	scheme := options.AuthScheme
	if scheme == "" {
		scheme = defaultAuthScheme
	}

	return &Client{
		client:   httpClient,
		scheme:   scheme,
		secret:   options.APIKey,
		timeout:  options.RequestTimeout,
		defaults: options.Header,
	}
}

// Do executes one request. The error return covers transport failures only;
// HTTP error statuses come back inside the Response.
func (c *Client) Do(ctx context.Context, req transport.Request) (transport.Response, error) {
	if req.URL == "" {
		return transport.Response{}, errors.New("httptransport: url is required")
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		encoded, err := sonic.Marshal(req.Body)
		if err != nil {
			return transport.Response{}, fmt.Errorf("httptransport: encode body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	reqCtx := ctx
	var cancel context.CancelFunc
	if c.timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, method, req.URL, body)
	if err != nil {
		return transport.Response{}, fmt.Errorf("httptransport: build request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.secret != "" {
		httpReq.Header.Set("Authorization", c.scheme+" "+c.secret)
	}
	for name, values := range c.defaults {
		for _, value := range values {
			httpReq.Header.Add(name, value)
		}
	}
	for name, values := range req.Header {
		httpReq.Header.Del(name)
		for _, value := range values {
			httpReq.Header.Add(name, value)
		}
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return transport.Response{}, fmt.Errorf("httptransport: %s %s: %w", method, req.URL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transport.Response{}, fmt.Errorf("httptransport: read response: %w", err)
	}
	return transport.Response{Status: resp.StatusCode, Body: data}, nil
}
