// Package endpoint maintains the catalog of generative endpoints: loading
// schema documents from files, fs.FS trees, or URLs, validating them,
// deriving stable ids, and keeping user-registered custom documents across
// sessions.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/crim50n/falai-paw/pkg/schema"
)

// Endpoint is one registered generative endpoint. Document holds the full
// schema the form pipeline reads; SubmitPath is the documented write path
// including its leading slash, empty when the document carries none.
type Endpoint struct {
	ID          string
	Title       string
	Description string
	Version     string
	Deletable   bool
	SubmitPath  string
	Document    schema.Document
}

// DisplayName returns the human-facing name: the document title, falling
// back to the id.
func (e *Endpoint) DisplayName() string {
	if e.Title != "" {
		return e.Title
	}
	return e.ID
}

// ValidationError rejects a document that parsed but is not a usable
// endpoint schema, naming each missing section.
type ValidationError struct {
	Location string
	Missing  []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("endpoint: document %s is not a usable schema: missing %s",
		e.Location, strings.Join(e.Missing, ", "))
}

var (
	// ErrNotRegistered reports an id with no endpoint behind it.
	ErrNotRegistered = errors.New("endpoint: not registered")

	// ErrNotDeletable rejects deregistration of a built-in endpoint.
	ErrNotDeletable = errors.New("endpoint: built-in endpoints cannot be deregistered")
)

// Loader fetches schema documents from different sources (filesystem, fs.FS,
// HTTP). Implementations live under internal/docloader but satisfy this
// contract.
type Loader interface {
	Load(ctx context.Context, src schema.Source) (schema.Document, error)
}

// LoaderOptions configures how a Loader resolves sources.
type LoaderOptions struct {
	// FileSystem enables loading from an abstract filesystem; defaults to
	// the operating system if nil.
	FileSystem fs.FS

	// HTTPClient allows callers to inject custom HTTP behaviour (timeouts,
	// proxies). Nil means URL sources are disabled unless AllowHTTPFallback
	// is true.
	HTTPClient *http.Client

	// AllowHTTPFallback toggles the default HTTP loader using
	// http.DefaultClient when no client is supplied. Keeping this explicit
	// preserves offline-first behaviour.
	AllowHTTPFallback bool

	// RequestTimeout caps remote fetch durations.
	RequestTimeout time.Duration
}

// LoaderOption mutates LoaderOptions prior to construction.
type LoaderOption func(*LoaderOptions)

// WithFileSystem injects an fs.FS implementation for relative paths.
func WithFileSystem(files fs.FS) LoaderOption {
	return func(opts *LoaderOptions) {
		opts.FileSystem = files
	}
}

// WithHTTPClient injects a custom HTTP client for remote schema documents.
func WithHTTPClient(client *http.Client) LoaderOption {
	return func(opts *LoaderOptions) {
		opts.HTTPClient = client
	}
}

// WithHTTPFallback enables HTTP loading using http.DefaultClient and assigns
// an optional timeout.
func WithHTTPFallback(timeout time.Duration) LoaderOption {
	return func(opts *LoaderOptions) {
		opts.AllowHTTPFallback = true
		opts.RequestTimeout = timeout
	}
}

// NewLoaderOptions applies a set of LoaderOption values and returns the
// resulting configuration.
func NewLoaderOptions(options ...LoaderOption) LoaderOptions {
	cfg := LoaderOptions{}
	for _, opt := range options {
		opt(&cfg)
	}
	return cfg
}
