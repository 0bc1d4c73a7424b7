// Package settings persists form snapshots and other engine state through
// the kv contract. Writes prefer a persistent primary store and degrade to
// an ephemeral session store when the primary is blocked or over quota;
// quota pressure triggers cleanup passes before the store gives up on the
// primary.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/crim50n/falai-paw/pkg/formstate"
	"github.com/crim50n/falai-paw/pkg/kv"
)

// settingsKey holds the endpoint-id → snapshot map, read and written
// wholesale.
const settingsKey = "paw:settings"

// probeKey is written and removed during Open to prove the primary store
// accepts writes.
const probeKey = "paw:probe"

// Option customises a Store.
type Option func(*Store)

// WithLogger sets the logger for recoverable storage warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRegisteredIDs injects the registered-endpoint lookup used by the
// stale-snapshot cleanup pass. Without it the pass is skipped.
func WithRegisteredIDs(fn func() []string) Option {
	return func(s *Store) {
		s.registered = fn
	}
}

// Store layers snapshot persistence over two kv stores. All methods are safe
// for concurrent use.
type Store struct {
	mu         sync.RWMutex
	primary    kv.Store
	session    kv.Store
	active     kv.Store
	logger     *slog.Logger
	registered func() []string
}

// Open wires the store and picks the startup source: the session copy wins
// only when the primary is empty or a write probe proves it blocked,
// otherwise the primary is authoritative.
func Open(ctx context.Context, primary, session kv.Store, options ...Option) (*Store, error) {
	if primary == nil || session == nil {
		return nil, errors.New("settings: primary and session stores are required")
	}

	s := &Store{
		primary: primary,
		session: session,
		active:  primary,
		logger:  slog.Default(),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(s)
	}

	sessionKeys, err := session.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("settings: inspect session store: %w", err)
	}
	if len(sessionKeys) == 0 {
		return s, nil
	}

	primaryKeys, err := primary.Keys(ctx)
	primaryEmpty := err == nil && len(primaryKeys) == 0
	blocked := err != nil || !s.probe(ctx)
	if primaryEmpty || blocked {
		s.active = session
		s.logger.Warn("settings: primary store unavailable at startup, using session copy",
			"empty", primaryEmpty, "blocked", blocked)
	}
	return s, nil
}

// probe writes and removes a marker to prove the primary accepts writes.
func (s *Store) probe(ctx context.Context) bool {
	if err := s.primary.Set(ctx, probeKey, []byte("1")); err != nil {
		return false
	}
	_ = s.primary.Delete(ctx, probeKey)
	return true
}

func (s *Store) store() kv.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *Store) fallbackToSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = s.session
}

// Put encodes value and writes it under key. Quota pressure on the primary
// triggers the cleanup passes and one retry; a still-failing primary flips
// the store to the ephemeral session copy with a logged warning. Only a
// failure of both stores reaches the caller.
func (s *Store) Put(ctx context.Context, key string, value any) error {
	data, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("settings: encode %s: %w", key, err)
	}

	target := s.store()
	err = target.Set(ctx, key, data)
	if err == nil {
		return nil
	}
	if target != s.primary {
		return fmt.Errorf("settings: write %s: %w", key, err)
	}

	if errors.Is(err, kv.ErrQuotaExceeded) {
		if !s.cleanupInlinePayloads(ctx) {
			s.cleanupStaleSnapshots(ctx)
		}
		if retryErr := s.primary.Set(ctx, key, data); retryErr == nil {
			return nil
		}
	}

	s.fallbackToSession()
	s.logger.Warn("settings: primary store rejected write, falling back to session store",
		"key", key, "error", err)

	if err := s.session.Set(ctx, key, data); err != nil {
		return fmt.Errorf("settings: write %s to session store: %w", key, err)
	}
	return nil
}

// Get decodes the value under key into out. The boolean is false when the
// key is absent.
func (s *Store) Get(ctx context.Context, key string, out any) (bool, error) {
	data, ok, err := s.store().Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("settings: read %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("settings: decode %s: %w", key, err)
	}
	return true, nil
}

// Delete removes the value under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.store().Delete(ctx, key); err != nil {
		return fmt.Errorf("settings: delete %s: %w", key, err)
	}
	return nil
}

// cleanupInlinePayloads strips oversized inline binaries from every endpoint
// snapshot and reports whether the rewrite freed any bytes.
func (s *Store) cleanupInlinePayloads(ctx context.Context) bool {
	raw, ok, err := s.primary.Get(ctx, settingsKey)
	if err != nil || !ok {
		return false
	}

	var all map[string]formstate.Tree
	if err := sonic.Unmarshal(raw, &all); err != nil {
		return false
	}
	for id, snapshot := range all {
		all[id] = formstate.FilterSnapshot(snapshot)
	}

	slim, err := sonic.Marshal(all)
	if err != nil || len(slim) >= len(raw) {
		return false
	}
	if err := s.primary.Set(ctx, settingsKey, slim); err != nil {
		return false
	}
	s.logger.Warn("settings: stripped inline payloads from stored snapshots",
		"before_bytes", len(raw), "after_bytes", len(slim))
	return true
}

// cleanupStaleSnapshots drops snapshots for endpoints that are no longer
// registered. Skipped when no registered-id lookup was injected.
func (s *Store) cleanupStaleSnapshots(ctx context.Context) {
	if s.registered == nil {
		return
	}
	raw, ok, err := s.primary.Get(ctx, settingsKey)
	if err != nil || !ok {
		return
	}

	var all map[string]formstate.Tree
	if err := sonic.Unmarshal(raw, &all); err != nil {
		return
	}

	live := map[string]struct{}{}
	for _, id := range s.registered() {
		live[id] = struct{}{}
	}

	dropped := 0
	for id := range all {
		if _, ok := live[id]; !ok {
			delete(all, id)
			dropped++
		}
	}
	if dropped == 0 {
		return
	}

	slim, err := sonic.Marshal(all)
	if err != nil {
		return
	}
	if err := s.primary.Set(ctx, settingsKey, slim); err != nil {
		return
	}
	s.logger.Warn("settings: dropped snapshots of unregistered endpoints", "count", dropped)
}

// loadAll reads the whole endpoint-settings map.
func (s *Store) loadAll(ctx context.Context) (map[string]formstate.Tree, error) {
	all := map[string]formstate.Tree{}
	if _, err := s.Get(ctx, settingsKey, &all); err != nil {
		return nil, err
	}
	return all, nil
}

// SaveEndpoint filters and stores one endpoint's snapshot, rewriting the
// whole settings map.
func (s *Store) SaveEndpoint(ctx context.Context, endpointID string, snapshot formstate.Tree) error {
	filtered := formstate.FilterZeroWeightModules(formstate.FilterSnapshot(snapshot))

	all, err := s.loadAll(ctx)
	if err != nil {
		return err
	}
	all[endpointID] = filtered
	return s.Put(ctx, settingsKey, all)
}

// LoadEndpoint returns the stored snapshot for one endpoint.
func (s *Store) LoadEndpoint(ctx context.Context, endpointID string) (formstate.Tree, bool, error) {
	all, err := s.loadAll(ctx)
	if err != nil {
		return nil, false, err
	}
	snapshot, ok := all[endpointID]
	if !ok {
		return nil, false, nil
	}
	return snapshot, true, nil
}

// ResetEndpoint drops the stored snapshot for one endpoint.
func (s *Store) ResetEndpoint(ctx context.Context, endpointID string) error {
	all, err := s.loadAll(ctx)
	if err != nil {
		return err
	}
	if _, ok := all[endpointID]; !ok {
		return nil
	}
	delete(all, endpointID)
	return s.Put(ctx, settingsKey, all)
}
