package endpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/go-cmp/cmp"

	"github.com/crim50n/falai-paw/pkg/schema"
)

const fluxEndpointDoc = `{
  "openapi": "3.0.4",
  "info": {"title": "Flux Dev", "version": "1.0.0", "description": "Fast image generation."},
  "paths": {
    "/fal-ai/flux/dev": {
      "post": {
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "required": ["prompt"],
                "properties": {"prompt": {"type": "string"}}
              }
            }
          }
        },
        "responses": {"200": {"description": "ok"}}
      }
    }
  }
}`

const sdxlEndpointDoc = `{
  "openapi": "3.0.4",
  "info": {"title": "A Stable Diffusion XL", "version": "1.0.0"},
  "paths": {
    "/fal-ai/sdxl": {
      "post": {
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {"type": "object", "properties": {"prompt": {"type": "string"}}}
            }
          }
        },
        "responses": {"200": {"description": "ok"}}
      }
    }
  }
}`

type fakeLoader struct {
	docs map[string][]byte
}

func (l *fakeLoader) Load(_ context.Context, src schema.Source) (schema.Document, error) {
	raw, ok := l.docs[src.Location()]
	if !ok {
		return schema.Document{}, fmt.Errorf("no document at %s", src.Location())
	}
	return schema.NewDocument(src, raw)
}

// fakePersistence round-trips values through sonic the way the real settings
// store does and records ResetEndpoint calls.
type fakePersistence struct {
	mu     sync.Mutex
	values map[string][]byte
	resets []string
}

func newFakePersistence() *fakePersistence {
	return &fakePersistence{values: map[string][]byte{}}
}

func (p *fakePersistence) Put(_ context.Context, key string, value any) error {
	data, err := sonic.Marshal(value)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = data
	return nil
}

func (p *fakePersistence) Get(_ context.Context, key string, out any) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.values[key]
	if !ok {
		return false, nil
	}
	return true, sonic.Unmarshal(data, out)
}

func (p *fakePersistence) ResetEndpoint(_ context.Context, endpointID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets = append(p.resets, endpointID)
	return nil
}

func (p *fakePersistence) storedCustom(t *testing.T) map[string][]byte {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	stored := map[string][]byte{}
	if data, ok := p.values[customEndpointsKey]; ok {
		if err := sonic.Unmarshal(data, &stored); err != nil {
			t.Fatalf("decode stored custom documents: %v", err)
		}
	}
	return stored
}

func TestLoadDerivesFalStyleID(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{docs: map[string][]byte{"flux.json": []byte(fluxEndpointDoc)}}
	registry := NewRegistry(WithLoader(loader))

	ep, err := registry.Load(context.Background(), schema.SourceFromFile("flux.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got, want := ep.ID, "fal-ai/flux/dev"; got != want {
		t.Errorf("ID = %q, want %q", got, want)
	}
	if got, want := ep.SubmitPath, "/fal-ai/flux/dev"; got != want {
		t.Errorf("SubmitPath = %q, want %q", got, want)
	}
	if got, want := ep.Title, "Flux Dev"; got != want {
		t.Errorf("Title = %q, want %q", got, want)
	}
	if got, want := ep.Description, "Fast image generation."; got != want {
		t.Errorf("Description = %q, want %q", got, want)
	}
	if ep.Deletable {
		t.Error("loaded endpoint flagged Deletable")
	}

	if _, ok := registry.Get("fal-ai/flux/dev"); !ok {
		t.Error("endpoint not registered under its id")
	}
}

func TestLoadRejectsMissingSections(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{docs: map[string][]byte{"bare.json": []byte(`{"openapi": "3.0.4"}`)}}
	registry := NewRegistry(WithLoader(loader))

	_, err := registry.Load(context.Background(), schema.SourceFromFile("bare.json"))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Load() error = %v, want *ValidationError", err)
	}
	if diff := cmp.Diff([]string{"info.title", "paths"}, verr.Missing); diff != "" {
		t.Errorf("missing sections mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadSlugFallbackID(t *testing.T) {
	t.Parallel()

	const readOnlyDoc = `{
  "openapi": "3.0.4",
  "info": {"title": "My Cool Endpoint!", "version": "1.0.0"},
  "paths": {"/status": {"get": {"responses": {"200": {"description": "ok"}}}}}
}`
	loader := &fakeLoader{docs: map[string][]byte{"ro.json": []byte(readOnlyDoc)}}
	registry := NewRegistry(WithLoader(loader))

	ep, err := registry.Load(context.Background(), schema.SourceFromFile("ro.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got, want := ep.ID, "my-cool-endpoint"; got != want {
		t.Errorf("ID = %q, want %q", got, want)
	}
	if ep.SubmitPath != "" {
		t.Errorf("SubmitPath = %q, want empty", ep.SubmitPath)
	}
}

func TestRegisterCustom(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newFakePersistence()
	registry := NewRegistry(WithPersistence(store))

	ep, err := registry.RegisterCustom(ctx, []byte(fluxEndpointDoc))
	if err != nil {
		t.Fatalf("RegisterCustom() error = %v", err)
	}

	if !strings.HasPrefix(ep.ID, "custom-") {
		t.Errorf("ID = %q, want custom- prefix", ep.ID)
	}
	if !ep.Deletable {
		t.Error("custom endpoint not flagged Deletable")
	}
	if got, want := ep.SubmitPath, "/fal-ai/flux/dev"; got != want {
		t.Errorf("SubmitPath = %q, want %q", got, want)
	}

	stored := store.storedCustom(t)
	if _, ok := stored[ep.ID]; !ok {
		t.Errorf("custom document not persisted: stored keys %v", stored)
	}
}

func TestRegisterCustomRejectsGarbage(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(WithPersistence(newFakePersistence()))
	if _, err := registry.RegisterCustom(context.Background(), []byte("not a document")); err == nil {
		t.Fatal("RegisterCustom() error = nil, want decode error")
	}
}

func TestDeregister(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newFakePersistence()
	loader := &fakeLoader{docs: map[string][]byte{"flux.json": []byte(fluxEndpointDoc)}}
	registry := NewRegistry(WithLoader(loader), WithPersistence(store))

	if _, err := registry.Load(ctx, schema.SourceFromFile("flux.json")); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	custom, err := registry.RegisterCustom(ctx, []byte(sdxlEndpointDoc))
	if err != nil {
		t.Fatalf("RegisterCustom() error = %v", err)
	}

	if err := registry.Deregister(ctx, "fal-ai/flux/dev"); !errors.Is(err, ErrNotDeletable) {
		t.Errorf("Deregister(built-in) error = %v, want ErrNotDeletable", err)
	}
	if err := registry.Deregister(ctx, "ghost"); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("Deregister(unknown) error = %v, want ErrNotRegistered", err)
	}

	if err := registry.Deregister(ctx, custom.ID); err != nil {
		t.Fatalf("Deregister(custom) error = %v", err)
	}
	if _, ok := registry.Get(custom.ID); ok {
		t.Error("custom endpoint still registered after Deregister")
	}
	if stored := store.storedCustom(t); len(stored) != 0 {
		t.Errorf("persisted custom documents not cleaned: %v", stored)
	}
	if diff := cmp.Diff([]string{custom.ID}, store.resets); diff != "" {
		t.Errorf("settings reset calls mismatch (-want +got):\n%s", diff)
	}
}

func TestListSortedByDisplayName(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	loader := &fakeLoader{docs: map[string][]byte{
		"flux.json": []byte(fluxEndpointDoc),
		"sdxl.json": []byte(sdxlEndpointDoc),
	}}
	registry := NewRegistry(WithLoader(loader))
	for _, name := range []string{"flux.json", "sdxl.json"} {
		if _, err := registry.Load(ctx, schema.SourceFromFile(name)); err != nil {
			t.Fatalf("Load(%s) error = %v", name, err)
		}
	}

	var titles []string
	for _, ep := range registry.List() {
		titles = append(titles, ep.Title)
	}
	want := []string{"A Stable Diffusion XL", "Flux Dev"}
	if diff := cmp.Diff(want, titles); diff != "" {
		t.Errorf("List() order mismatch (-want +got):\n%s", diff)
	}
}

func TestRestoreCustom(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newFakePersistence()
	if err := store.Put(ctx, customEndpointsKey, map[string][]byte{
		"custom-keep":   []byte(fluxEndpointDoc),
		"custom-broken": []byte("garbage"),
	}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	registry := NewRegistry(WithPersistence(store))
	if err := registry.RestoreCustom(ctx); err != nil {
		t.Fatalf("RestoreCustom() error = %v", err)
	}

	ep, ok := registry.Get("custom-keep")
	if !ok {
		t.Fatal("persisted custom endpoint not restored")
	}
	if !ep.Deletable {
		t.Error("restored custom endpoint not flagged Deletable")
	}
	if _, ok := registry.Get("custom-broken"); ok {
		t.Error("broken document registered")
	}

	stored := store.storedCustom(t)
	if _, ok := stored["custom-broken"]; ok {
		t.Error("broken document kept in the store")
	}
	if _, ok := stored["custom-keep"]; !ok {
		t.Error("valid document dropped from the store")
	}
}

func TestDiscoverCollectsErrorsWithoutAborting(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"endpoints/fal-ai/flux/dev/openapi.json": {Data: []byte(fluxEndpointDoc)},
		"endpoints/broken/openapi.json":          {Data: []byte("{not json")},
		"endpoints/fal-ai/sdxl/openapi.yaml":     {Data: []byte(sdxlEndpointDoc)},
		"endpoints/notes.txt":                    {Data: []byte("ignored")},
	}

	registry := NewRegistry()
	found, err := registry.Discover(context.Background(), fsys, "endpoints")
	if err == nil {
		t.Error("Discover() error = nil, want joined per-file error")
	}
	if len(found) != 2 {
		t.Fatalf("Discover() found %d endpoints, want 2", len(found))
	}
	if _, ok := registry.Get("fal-ai/flux/dev"); !ok {
		t.Error("flux endpoint not registered")
	}
	if _, ok := registry.Get("fal-ai/sdxl"); !ok {
		t.Error("sdxl endpoint not registered")
	}
}

func TestWatchReloadsCreatedDocument(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := t.TempDir()
	dir := filepath.Join(root, "fal-ai", "flux", "dev")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	registry := NewRegistry()
	if err := registry.Watch(ctx, root); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "openapi.json"), []byte(fluxEndpointDoc), 0o644); err != nil {
		t.Fatalf("write document: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, ok := registry.Get("fal-ai/flux/dev"); ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("watched document was not registered")
		}
		time.Sleep(25 * time.Millisecond)
	}
}
