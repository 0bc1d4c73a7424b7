package falaipaw

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/crim50n/falai-paw/pkg/endpoint"
	"github.com/crim50n/falai-paw/pkg/fields"
	"github.com/crim50n/falai-paw/pkg/formstate"
	"github.com/crim50n/falai-paw/pkg/job"
	"github.com/crim50n/falai-paw/pkg/schema"
	"github.com/crim50n/falai-paw/pkg/transport"
)

const fluxDocument = `{
  "openapi": "3.0.4",
  "info": {"title": "Flux Dev", "version": "1.0.0"},
  "paths": {
    "/fal-ai/flux/dev": {
      "post": {
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "required": ["prompt"],
                "properties": {
                  "prompt": {"type": "string", "title": "Prompt"},
                  "seed": {"type": "integer", "title": "Seed"}
                }
              }
            }
          }
        }
      }
    }
  }
}`

// scriptedDoer answers each URL with one canned response and records calls.
type scriptedDoer struct {
	mu        sync.Mutex
	responses map[string]transport.Response
	calls     []string
}

func (d *scriptedDoer) Do(_ context.Context, req transport.Request) (transport.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, req.Method+" "+req.URL)
	resp, ok := d.responses[req.URL]
	if !ok {
		return transport.Response{Status: 500}, nil
	}
	return resp, nil
}

func (d *scriptedDoer) recorded() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

type updateLog struct {
	mu      sync.Mutex
	updates []job.Update
}

func (l *updateLog) record(u job.Update) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates = append(l.updates, u)
}

func (l *updateLog) waitFor(t *testing.T, want job.State) job.Update {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		l.mu.Lock()
		for _, u := range l.updates {
			if u.State == want {
				l.mu.Unlock()
				return u
			}
		}
		l.mu.Unlock()
		if time.Now().After(deadline) {
			t.Fatalf("no %s update arrived", want)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func newTestClient(t *testing.T, doer transport.Doer, updates *updateLog) *Client {
	t.Helper()

	fsys := fstest.MapFS{
		"flux/openapi.json": &fstest.MapFile{Data: []byte(fluxDocument)},
	}
	client, err := New(
		WithTransport(doer),
		WithUpdates(updates.record),
		WithPollInterval(5*time.Millisecond),
		WithLoaderOptions(endpoint.WithFileSystem(fsys)),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})

	if _, err := client.Registry().Load(context.Background(), schema.SourceFromFS("flux/openapi.json")); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return client
}

func TestClientFormSynthesizesDescriptors(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, &scriptedDoer{}, &updateLog{})

	descriptors, _, err := client.Form(context.Background(), "fal-ai/flux/dev")
	if err != nil {
		t.Fatalf("Form() error = %v", err)
	}

	byName := map[string]fields.Descriptor{}
	for _, d := range descriptors {
		byName[d.Name] = d
	}
	prompt, ok := byName["prompt"]
	if !ok {
		t.Fatal("prompt descriptor missing")
	}
	if prompt.Kind != fields.KindText || !prompt.Required {
		t.Errorf("prompt = %+v, want required text", prompt)
	}
	if seed := byName["seed"]; seed.Kind != fields.KindNumber {
		t.Errorf("seed kind = %s, want number", seed.Kind)
	}
}

func TestClientFormUnknownEndpoint(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, &scriptedDoer{}, &updateLog{})

	_, _, err := client.Form(context.Background(), "no-such-endpoint")
	if !errors.Is(err, endpoint.ErrNotRegistered) {
		t.Fatalf("Form() error = %v, want ErrNotRegistered", err)
	}
}

func TestClientSubmitBlocksOnMissingRequired(t *testing.T) {
	t.Parallel()

	doer := &scriptedDoer{}
	client := newTestClient(t, doer, &updateLog{})

	err := client.Submit(context.Background(), "fal-ai/flux/dev", formstate.Tree{"seed": float64(7)})
	var missing *formstate.MissingFieldsError
	if !errors.As(err, &missing) {
		t.Fatalf("Submit() error = %v, want MissingFieldsError", err)
	}
	if len(missing.Fields) != 1 || missing.Fields[0] != "prompt" {
		t.Errorf("missing fields = %v", missing.Fields)
	}
	if calls := doer.recorded(); len(calls) != 0 {
		t.Errorf("blocked submit reached the transport: %v", calls)
	}
}

func TestClientSubmitPersistsSnapshotAndRunsJob(t *testing.T) {
	t.Parallel()

	submitURL := DefaultBaseURL + "/fal-ai/flux/dev"
	doer := &scriptedDoer{responses: map[string]transport.Response{
		submitURL: {Status: 200, Body: []byte(`{"images": [{"url": "https://fal.media/out.png"}]}`)},
	}}
	updates := &updateLog{}
	client := newTestClient(t, doer, updates)
	ctx := context.Background()

	values := formstate.Tree{"prompt": "a cat", "seed": float64(7)}
	if err := client.Submit(ctx, "fal-ai/flux/dev", values); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	done := updates.waitFor(t, job.StateCompleted)
	if done.Result == nil || len(done.Result.Media) != 1 {
		t.Fatalf("completed result = %+v", done.Result)
	}

	calls := doer.recorded()
	if len(calls) != 1 || calls[0] != "POST "+submitURL {
		t.Errorf("transport calls = %v, want one POST to the submit path", calls)
	}

	snapshot, ok, err := client.Settings().LoadEndpoint(ctx, "fal-ai/flux/dev")
	if err != nil {
		t.Fatalf("LoadEndpoint() error = %v", err)
	}
	if !ok {
		t.Fatal("snapshot not persisted on submit")
	}
	if snapshot["prompt"] != "a cat" {
		t.Errorf("snapshot = %v", snapshot)
	}
}

func TestClientResumeReentersPolling(t *testing.T) {
	t.Parallel()

	statusURL := DefaultBaseURL + "/fal-ai/flux/dev/requests/req-9/status"
	responseURL := DefaultBaseURL + "/fal-ai/flux/dev/requests/req-9"
	doer := &scriptedDoer{responses: map[string]transport.Response{
		statusURL:   {Status: 200, Body: []byte(`{"status": "COMPLETED"}`)},
		responseURL: {Status: 200, Body: []byte(`{"images": [{"url": "https://fal.media/out.png"}]}`)},
	}}
	updates := &updateLog{}
	client := newTestClient(t, doer, updates)
	ctx := context.Background()

	checkpoint := job.Record{
		RequestID:   "req-9",
		StatusURL:   statusURL,
		ResponseURL: responseURL,
		EndpointID:  "fal-ai/flux/dev",
		SubmittedAt: time.Now().UTC(),
	}
	if err := client.Settings().Put(ctx, "paw:active-job", checkpoint); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	if err := client.Resume(ctx); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}

	done := updates.waitFor(t, job.StateCompleted)
	if done.Result == nil {
		t.Fatal("resumed job delivered no result")
	}
	for _, call := range doer.recorded() {
		if call[:4] == "POST" {
			t.Errorf("resume re-submitted: %v", call)
		}
	}

	var leftover job.Record
	ok, err := client.Settings().Get(ctx, "paw:active-job", &leftover)
	if err != nil {
		t.Fatalf("Get(checkpoint) error = %v", err)
	}
	if ok {
		t.Error("checkpoint not cleared after resumed completion")
	}
}
