// Package transport defines the HTTP contract the job lifecycle runs over.
// The engine never touches net/http directly; it issues Requests through a
// Doer and inspects Responses, which keeps the queue protocol testable with
// fakes.
package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"
)

// Request describes one call to the remote queue API. Body, when non-nil, is
// JSON-encoded by the Doer. Header entries are added to whatever defaults
// the Doer carries.
type Request struct {
	Method string
	URL    string
	Body   any
	Header http.Header
}

// Response is the raw outcome of a request. Non-2xx statuses are data, not
// errors: the queue protocol assigns meaning to 404 and 405 on status URLs,
// so the Doer reports them here and reserves its error return for transport
// failures.
type Response struct {
	Status int
	Body   []byte
}

// OK reports whether the status is in the 2xx range.
func (r Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// DecodeJSON unmarshals the response body into out.
func (r Response) DecodeJSON(out any) error {
	if err := sonic.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("transport: decode response: %w", err)
	}
	return nil
}

// Doer executes requests. Implementations must honor ctx cancellation.
type Doer interface {
	Do(ctx context.Context, req Request) (Response, error)
}
