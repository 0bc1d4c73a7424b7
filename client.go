// Package falaipaw is the client engine behind a generative-media
// playground. Given job-based endpoints described by OpenAPI-style schema
// documents, it synthesizes field descriptors for form rendering, collects
// edited values back into schema-conformant payloads, persists per-endpoint
// state across sessions, and drives the submit→poll→fetch job lifecycle.
//
// Client is the one owned context object: it composes the endpoint
// registry, settings store, transport, and job controller, with no ambient
// singletons. Consumers that need finer control can assemble the pkg/...
// packages directly.
package falaipaw

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/crim50n/falai-paw/internal/docloader"
	"github.com/crim50n/falai-paw/internal/httptransport"
	"github.com/crim50n/falai-paw/internal/kvstore/sqlitekv"
	"github.com/crim50n/falai-paw/pkg/endpoint"
	"github.com/crim50n/falai-paw/pkg/fields"
	"github.com/crim50n/falai-paw/pkg/formstate"
	"github.com/crim50n/falai-paw/pkg/job"
	"github.com/crim50n/falai-paw/pkg/kv"
	"github.com/crim50n/falai-paw/pkg/schema"
	"github.com/crim50n/falai-paw/pkg/settings"
	"github.com/crim50n/falai-paw/pkg/transport"
)

// DefaultBaseURL is the queue API root used when no override is configured.
const DefaultBaseURL = "https://queue.fal.run"

const activeJobKey = "paw:active-job"

// Option customises a Client.
type Option func(*config)

type config struct {
	apiKey       string
	baseURL      string
	storePath    string
	store        kv.Store
	doer         transport.Doer
	logger       *slog.Logger
	pollInterval time.Duration
	onUpdate     func(job.Update)
	loaderOpts   []endpoint.LoaderOption
}

// WithAPIKey sets the queue API credential.
func WithAPIKey(key string) Option {
	return func(c *config) {
		c.apiKey = key
	}
}

// WithBaseURL overrides the queue API root.
func WithBaseURL(url string) Option {
	return func(c *config) {
		if url != "" {
			c.baseURL = strings.TrimSuffix(url, "/")
		}
	}
}

// WithStorePath puts the persistent settings database at the given path.
// Without it the Client keeps state in memory for the process lifetime.
func WithStorePath(path string) Option {
	return func(c *config) {
		c.storePath = path
	}
}

// WithStore injects a pre-built primary store (for example rediskv),
// overriding the SQLite default. The caller keeps ownership; Close will not
// touch it.
func WithStore(store kv.Store) Option {
	return func(c *config) {
		c.store = store
	}
}

// WithTransport injects a custom transport, replacing the HTTP default.
func WithTransport(doer transport.Doer) Option {
	return func(c *config) {
		c.doer = doer
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPollInterval overrides the job status poll pause.
func WithPollInterval(interval time.Duration) Option {
	return func(c *config) {
		c.pollInterval = interval
	}
}

// WithUpdates registers the job lifecycle callback.
func WithUpdates(fn func(job.Update)) Option {
	return func(c *config) {
		c.onUpdate = fn
	}
}

// WithLoaderOptions configures the schema document loader (filesystem,
// HTTP fallback, timeouts).
func WithLoaderOptions(options ...endpoint.LoaderOption) Option {
	return func(c *config) {
		c.loaderOpts = append(c.loaderOpts, options...)
	}
}

// Client owns the full engine: registry, settings, transport, job control.
type Client struct {
	logger   *slog.Logger
	baseURL  string
	settings *settings.Store
	registry *endpoint.Registry
	jobs     *job.Controller

	ownedStore io.Closer
}

// New builds a Client. Components are wired in dependency order: stores,
// settings, registry (whose registered ids feed the settings cleanup),
// transport, job controller.
func New(options ...Option) (*Client, error) {
	cfg := config{
		baseURL: DefaultBaseURL,
		logger:  slog.Default(),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	client := &Client{logger: cfg.logger, baseURL: cfg.baseURL}

	primary := cfg.store
	if primary == nil {
		sqlite, err := sqlitekv.Open(cfg.storePath)
		if err != nil {
			return nil, fmt.Errorf("falaipaw: open settings store: %w", err)
		}
		primary = sqlite
		client.ownedStore = sqlite
	}

	ctx := context.Background()
	registry := endpoint.NewRegistry(
		endpoint.WithLoader(docloader.New(endpoint.NewLoaderOptions(cfg.loaderOpts...))),
		endpoint.WithLogger(cfg.logger),
	)

	store, err := settings.Open(ctx, primary, kv.NewMemory(),
		settings.WithLogger(cfg.logger),
		settings.WithRegisteredIDs(registry.IDs),
	)
	if err != nil {
		client.closeOwnedStore()
		return nil, fmt.Errorf("falaipaw: open settings: %w", err)
	}
	registry.SetPersistence(store)

	doer := cfg.doer
	if doer == nil {
		doer = httptransport.New(transport.NewOptions(
			transport.WithAPIKey(cfg.apiKey),
			transport.WithRequestTimeout(2*time.Minute),
		))
	}

	jobOpts := []job.Option{
		job.WithLogger(cfg.logger),
		job.WithCheckpoints(checkpointStore{store: store}),
	}
	if cfg.pollInterval > 0 {
		jobOpts = append(jobOpts, job.WithPollInterval(cfg.pollInterval))
	}
	if cfg.onUpdate != nil {
		jobOpts = append(jobOpts, job.WithOnUpdate(cfg.onUpdate))
	}
	jobs, err := job.New(doer, jobOpts...)
	if err != nil {
		client.closeOwnedStore()
		return nil, fmt.Errorf("falaipaw: build job controller: %w", err)
	}

	client.settings = store
	client.registry = registry
	client.jobs = jobs

	if err := registry.RestoreCustom(ctx); err != nil {
		cfg.logger.Warn("falaipaw: restore custom endpoints", "error", err)
	}
	return client, nil
}

// Close stops polling and releases owned stores. Injected stores are left
// open for their owners.
func (c *Client) Close() error {
	if c.jobs != nil {
		c.jobs.Close()
	}
	return c.closeOwnedStore()
}

func (c *Client) closeOwnedStore() error {
	if c.ownedStore == nil {
		return nil
	}
	err := c.ownedStore.Close()
	c.ownedStore = nil
	return err
}

// Registry exposes the endpoint catalog.
func (c *Client) Registry() *endpoint.Registry {
	return c.registry
}

// Settings exposes the persistence layer.
func (c *Client) Settings() *settings.Store {
	return c.settings
}

// Jobs exposes the job controller.
func (c *Client) Jobs() *job.Controller {
	return c.jobs
}

// Form synthesizes the field descriptors for one registered endpoint.
func (c *Client) Form(ctx context.Context, endpointID string) ([]fields.Descriptor, *fields.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	ep, ok := c.registry.Get(endpointID)
	if !ok {
		return nil, nil, fmt.Errorf("falaipaw: endpoint %s: %w", endpointID, endpoint.ErrNotRegistered)
	}
	return fields.New(schemaResolver(ep)).Synthesize()
}

// Submit validates the collected values against the endpoint's required
// fields, persists the snapshot, and hands the payload to the job
// controller. A validation failure surfaces as *formstate.MissingFieldsError
// and nothing is submitted.
func (c *Client) Submit(ctx context.Context, endpointID string, values formstate.Tree) error {
	ep, ok := c.registry.Get(endpointID)
	if !ok {
		return fmt.Errorf("falaipaw: endpoint %s: %w", endpointID, endpoint.ErrNotRegistered)
	}

	descriptors, _, err := fields.New(schemaResolver(ep)).Synthesize()
	if err != nil {
		return fmt.Errorf("falaipaw: synthesize %s: %w", endpointID, err)
	}
	if err := formstate.ValidateRequired(descriptors, values); err != nil {
		return err
	}

	if err := c.settings.SaveEndpoint(ctx, endpointID, values); err != nil {
		c.logger.Warn("falaipaw: persist snapshot before submit", "endpoint", endpointID, "error", err)
	}

	return c.jobs.Submit(ctx, endpointID, c.submitURL(ep), map[string]any(values))
}

// Resume re-enters polling for a checkpointed job, if one survives from a
// previous run. Call once at startup.
func (c *Client) Resume(ctx context.Context) error {
	return c.jobs.Resume(ctx)
}

// Cancel stops the active job, if any.
func (c *Client) Cancel(ctx context.Context) error {
	return c.jobs.Cancel(ctx)
}

func (c *Client) submitURL(ep *endpoint.Endpoint) string {
	path := ep.SubmitPath
	if path == "" {
		path = "/" + ep.ID
	}
	return c.baseURL + path
}

// checkpointStore adapts the settings layer to job.CheckpointStore, keeping
// the record under its own storage key.
type checkpointStore struct {
	store *settings.Store
}

var _ job.CheckpointStore = checkpointStore{}

func (s checkpointStore) Save(ctx context.Context, rec job.Record) error {
	return s.store.Put(ctx, activeJobKey, rec)
}

func (s checkpointStore) Load(ctx context.Context) (job.Record, bool, error) {
	var rec job.Record
	ok, err := s.store.Get(ctx, activeJobKey, &rec)
	if err != nil {
		return job.Record{}, false, err
	}
	return rec, ok, nil
}

func (s checkpointStore) Clear(ctx context.Context) error {
	return s.store.Delete(ctx, activeJobKey)
}

func schemaResolver(ep *endpoint.Endpoint) *schema.Resolver {
	return schema.NewResolver(ep.Document)
}
