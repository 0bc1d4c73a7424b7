package endpoint

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/google/uuid"

	"github.com/crim50n/falai-paw/pkg/schema"
)

// customEndpointsKey holds the raw documents of user-registered endpoints,
// persisted wholesale.
const customEndpointsKey = "paw:custom-endpoints"

// Persistence is the slice of the settings store the registry needs: the
// wholesale custom-document record plus snapshot removal on deregister.
type Persistence interface {
	Put(ctx context.Context, key string, value any) error
	Get(ctx context.Context, key string, out any) (bool, error)
	ResetEndpoint(ctx context.Context, endpointID string) error
}

// Option customises a Registry.
type Option func(*Registry)

// WithLoader sets the document loader used by Load.
func WithLoader(loader Loader) Option {
	return func(r *Registry) {
		r.loader = loader
	}
}

// WithPersistence enables custom-endpoint persistence and settings cleanup
// on deregister.
func WithPersistence(store Persistence) Option {
	return func(r *Registry) {
		r.store = store
	}
}

// WithLogger sets the logger for discovery and watch diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Registry holds endpoints by id. All methods are safe for concurrent use;
// the watch goroutine and callers may interleave.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint

	loader Loader
	store  Persistence
	logger *slog.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(options ...Option) *Registry {
	r := &Registry{
		endpoints: map[string]*Endpoint{},
		logger:    slog.Default(),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(r)
	}
	return r
}

// SetPersistence installs the persistence layer after construction. The
// settings store consumes the registry's id list for its cleanup pass, so
// the two are built in sequence and wired here. Call before concurrent use.
func (r *Registry) SetPersistence(store Persistence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store = store
}

// Load fetches, validates, and registers the document at src. Reloading a
// source that maps to an existing id replaces the entry.
func (r *Registry) Load(ctx context.Context, src schema.Source) (*Endpoint, error) {
	if r.loader == nil {
		return nil, fmt.Errorf("endpoint: registry has no loader configured")
	}
	doc, err := r.loader.Load(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("endpoint: load %s: %w", src.Location(), err)
	}
	return r.register(ctx, doc, "", false)
}

// RegisterCustom validates a raw document supplied by the user and registers
// it under a fresh custom id. The document is persisted so it survives a
// restart; the returned endpoint is flagged Deletable.
func (r *Registry) RegisterCustom(ctx context.Context, raw []byte) (*Endpoint, error) {
	id := "custom-" + uuid.NewString()
	doc, err := schema.NewDocument(schema.SourceFromInline(id), raw)
	if err != nil {
		return nil, fmt.Errorf("endpoint: register custom document: %w", err)
	}

	ep, err := r.register(ctx, doc, id, true)
	if err != nil {
		return nil, err
	}

	if r.store != nil {
		stored, err := r.loadStoredCustom(ctx)
		if err != nil {
			return nil, err
		}
		stored[id] = raw
		if err := r.store.Put(ctx, customEndpointsKey, stored); err != nil {
			return nil, err
		}
	}
	return ep, nil
}

// RestoreCustom re-registers every persisted custom document. Documents that
// no longer validate are dropped with a warning instead of failing startup.
func (r *Registry) RestoreCustom(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	stored, err := r.loadStoredCustom(ctx)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(stored))
	for id := range stored {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		doc, err := schema.NewDocument(schema.SourceFromInline(id), stored[id])
		if err == nil {
			_, err = r.register(ctx, doc, id, true)
		}
		if err != nil {
			r.logger.Warn("endpoint: dropping stored custom document", "id", id, "error", err)
			delete(stored, id)
		}
	}

	return r.store.Put(ctx, customEndpointsKey, stored)
}

// Deregister removes a deletable endpoint, its persisted document, and its
// saved settings. Built-in endpoints are rejected with ErrNotDeletable.
func (r *Registry) Deregister(ctx context.Context, id string) error {
	r.mu.Lock()
	ep, ok := r.endpoints[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("endpoint: deregister %s: %w", id, ErrNotRegistered)
	}
	if !ep.Deletable {
		r.mu.Unlock()
		return fmt.Errorf("endpoint: deregister %s: %w", id, ErrNotDeletable)
	}
	delete(r.endpoints, id)
	r.mu.Unlock()

	if r.store == nil {
		return nil
	}
	stored, err := r.loadStoredCustom(ctx)
	if err != nil {
		return err
	}
	if _, ok := stored[id]; ok {
		delete(stored, id)
		if err := r.store.Put(ctx, customEndpointsKey, stored); err != nil {
			return err
		}
	}
	return r.store.ResetEndpoint(ctx, id)
}

// Get returns the endpoint registered under id.
func (r *Registry) Get(id string) (*Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.endpoints[id]
	return ep, ok
}

// List returns all endpoints sorted by display name, id as tiebreak.
func (r *Registry) List() []*Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName() != out[j].DisplayName() {
			return out[i].DisplayName() < out[j].DisplayName()
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// IDs returns the registered ids, sorted. The settings store uses it to
// recognise stale snapshots.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.endpoints))
	for id := range r.endpoints {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// register validates the document and inserts the endpoint. A non-empty
// forcedID bypasses path-based id derivation (custom documents).
func (r *Registry) register(ctx context.Context, doc schema.Document, forcedID string, deletable bool) (*Endpoint, error) {
	ep, err := endpointFromDocument(ctx, doc)
	if err != nil {
		return nil, err
	}
	if forcedID != "" {
		ep.ID = forcedID
	}
	ep.Deletable = deletable

	r.mu.Lock()
	r.endpoints[ep.ID] = ep
	r.mu.Unlock()
	return ep, nil
}

// endpointFromDocument runs structural validation and metadata extraction.
func endpointFromDocument(ctx context.Context, doc schema.Document) (*Endpoint, error) {
	kinLoader := &openapi3.Loader{Context: ctx}
	spec, err := kinLoader.LoadFromData(doc.Raw())
	if err != nil {
		return nil, fmt.Errorf("endpoint: parse %s: %w", doc.Location(), err)
	}

	var missing []string
	if spec.Info == nil || spec.Info.Title == "" {
		missing = append(missing, "info.title")
	}
	if spec.Paths == nil || spec.Paths.Len() == 0 {
		missing = append(missing, "paths")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Location: doc.Location(), Missing: missing}
	}

	ep := &Endpoint{
		Title:    spec.Info.Title,
		Version:  spec.Info.Version,
		Document: doc,
	}
	if spec.Info.Description != "" {
		ep.Description = spec.Info.Description
	}

	resolver := schema.NewResolver(doc)
	if path, ok := resolver.InputPath(); ok {
		ep.SubmitPath = path
		ep.ID = strings.TrimPrefix(path, "/")
	} else {
		ep.ID = slugify(ep.Title)
	}
	return ep, nil
}

// slugify lowercases the title and squeezes every non-alphanumeric run into
// a single dash.
func slugify(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func (r *Registry) loadStoredCustom(ctx context.Context) (map[string][]byte, error) {
	stored := map[string][]byte{}
	if _, err := r.store.Get(ctx, customEndpointsKey, &stored); err != nil {
		return nil, err
	}
	return stored, nil
}
