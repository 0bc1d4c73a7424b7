package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/crim50n/falai-paw/pkg/transport"
)

const defaultPollInterval = 2 * time.Second

// Option customises a Controller.
type Option func(*Controller)

// WithPollInterval overrides the pause between status polls.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Controller) {
		if interval > 0 {
			c.interval = interval
		}
	}
}

// WithCheckpoints enables durable job records for resume-after-restart.
func WithCheckpoints(store CheckpointStore) Option {
	return func(c *Controller) {
		c.checkpoints = store
	}
}

// WithLogger sets the logger for checkpoint and cancellation diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithOnUpdate registers the lifecycle callback. Updates are delivered one
// at a time; the callback may call back into the controller.
func WithOnUpdate(fn func(Update)) Option {
	return func(c *Controller) {
		c.onUpdate = fn
	}
}

// Controller runs the job lifecycle: Idle → Submitting → Queued/Running →
// terminal update → Idle. At most one poll goroutine exists; every poll
// apply is generation-checked so a result arriving after cancellation is
// discarded, never applied.
type Controller struct {
	doer        transport.Doer
	checkpoints CheckpointStore
	logger      *slog.Logger
	interval    time.Duration
	onUpdate    func(Update)

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu         sync.Mutex
	state      State
	record     Record
	generation int
	stopPoll   chan struct{}
}

// New constructs an idle Controller over the supplied transport.
func New(doer transport.Doer, options ...Option) (*Controller, error) {
	if doer == nil {
		return nil, errors.New("job: transport doer is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		doer:       doer,
		logger:     slog.Default(),
		interval:   defaultPollInterval,
		state:      StateIdle,
		baseCtx:    ctx,
		baseCancel: cancel,
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c, nil
}

// State returns the current lifecycle position.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ActiveRecord returns the in-flight job record, if any.
func (c *Controller) ActiveRecord() (Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.record.RequestID == "" {
		return Record{}, false
	}
	return c.record, true
}

// Close stops any polling for good. The controller cannot be reused.
func (c *Controller) Close() {
	c.baseCancel()
	c.mu.Lock()
	stop := c.stopPoll
	c.stopPoll = nil
	c.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

// Submit issues the write request for one job. It is rejected with
// ErrJobActive unless the controller is Idle. A response that already
// carries final output completes the job synchronously and the poll loop
// never starts; otherwise the returned queue handle is checkpointed and
// polling begins.
func (c *Controller) Submit(ctx context.Context, endpointID, submitURL string, payload any) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrJobActive
	}
	c.state = StateSubmitting
	c.mu.Unlock()
	c.emit(Update{State: StateSubmitting})

	resp, err := c.doer.Do(ctx, transport.Request{Method: http.MethodPost, URL: submitURL, Body: payload})
	if err != nil {
		c.toIdle()
		return fmt.Errorf("job: submit %s: %w", endpointID, err)
	}
	if !resp.OK() {
		c.toIdle()
		return fmt.Errorf("job: submit %s: unexpected status %d", endpointID, resp.Status)
	}

	var body map[string]any
	if err := resp.DecodeJSON(&body); err != nil {
		c.toIdle()
		return fmt.Errorf("job: submit %s: %w", endpointID, err)
	}

	requestID, _ := body["request_id"].(string)
	statusURL, _ := body["status_url"].(string)
	if requestID == "" || statusURL == "" {
		// Synchronous endpoint: the response is already the final output.
		result := decodeResult(body)
		c.toIdle()
		c.emit(Update{State: StateCompleted, Result: result})
		return nil
	}

	responseURL, _ := body["response_url"].(string)
	if responseURL == "" {
		responseURL = strings.TrimSuffix(statusURL, "/status")
	}

	rec := Record{
		RequestID:   requestID,
		StatusURL:   statusURL,
		ResponseURL: responseURL,
		EndpointID:  endpointID,
		SubmittedAt: time.Now().UTC(),
	}
	c.saveCheckpoint(ctx, rec)
	if !c.startPolling(rec) {
		return ErrJobActive
	}
	return nil
}

// Resume reads the checkpoint and, when one exists, re-enters polling
// directly without re-submitting. Meant to run once at startup.
func (c *Controller) Resume(ctx context.Context) error {
	if c.checkpoints == nil {
		return nil
	}

	rec, ok, err := c.checkpoints.Load(ctx)
	if err != nil {
		return fmt.Errorf("job: resume: %w", err)
	}
	if !ok || rec.StatusURL == "" {
		return nil
	}

	if !c.startPolling(rec) {
		return ErrJobActive
	}
	c.logger.Info("job: resumed in-flight job",
		"request_id", rec.RequestID, "endpoint", rec.EndpointID)
	return nil
}

// Cancel issues a best-effort cancellation, stops polling, clears the
// checkpoint, and returns the controller to Idle. Request failures are
// logged and swallowed; a poll result that was already in flight is
// discarded by the generation check.
func (c *Controller) Cancel(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateQueued && c.state != StateRunning {
		c.mu.Unlock()
		return nil
	}
	rec := c.record
	stop := c.stopPoll
	c.generation++
	c.stopPoll = nil
	c.record = Record{}
	c.state = StateIdle
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	c.clearCheckpoint()
	c.emit(Update{State: StateCancelled})

	cancelURL := strings.TrimSuffix(rec.StatusURL, "/status") + "/cancel"
	resp, err := c.doer.Do(ctx, transport.Request{Method: http.MethodPut, URL: cancelURL})
	if err != nil {
		c.logger.Warn("job: cancel request failed", "request_id", rec.RequestID, "error", err)
	} else if !resp.OK() {
		c.logger.Warn("job: cancel request rejected", "request_id", rec.RequestID, "status", resp.Status)
	}
	return nil
}

// startPolling installs the record, transitions to Queued, and spawns the
// single poll goroutine. It refuses when another job raced in.
func (c *Controller) startPolling(rec Record) bool {
	c.mu.Lock()
	if c.state != StateIdle && c.state != StateSubmitting {
		c.mu.Unlock()
		return false
	}
	c.record = rec
	c.state = StateQueued
	c.generation++
	generation := c.generation
	stop := make(chan struct{})
	c.stopPoll = stop
	c.mu.Unlock()

	c.emit(Update{State: StateQueued})
	go c.pollLoop(generation, rec, stop)
	return true
}

// pollLoop strictly serializes polls: one request, then a pause, never an
// overlapping poll.
func (c *Controller) pollLoop(generation int, rec Record, stop <-chan struct{}) {
	for {
		if done := c.pollOnce(generation, rec); done {
			return
		}
		select {
		case <-c.baseCtx.Done():
			return
		case <-stop:
			return
		case <-time.After(c.interval):
		}
	}
}

// pollOnce performs one status request and applies the outcome. It reports
// true when polling must stop.
func (c *Controller) pollOnce(generation int, rec Record) bool {
	resp, err := c.doer.Do(c.baseCtx, transport.Request{Method: http.MethodGet, URL: rec.StatusURL})
	if err != nil {
		return c.finish(generation, Update{State: StateFailed, Err: fmt.Errorf("job: poll status: %w", err)})
	}

	// A retired status endpoint means the job finished while we were away.
	if resp.Status == http.StatusNotFound || resp.Status == http.StatusMethodNotAllowed {
		return c.fetchResult(generation, rec)
	}
	if !resp.OK() {
		return c.finish(generation, Update{State: StateFailed, Err: fmt.Errorf("job: poll status: unexpected status %d", resp.Status)})
	}

	var status struct {
		Status        string   `json:"status"`
		QueuePosition *int     `json:"queue_position"`
		Percentage    *float64 `json:"percentage"`
	}
	if err := resp.DecodeJSON(&status); err != nil {
		return c.finish(generation, Update{State: StateFailed, Err: fmt.Errorf("job: poll status: %w", err)})
	}

	switch status.Status {
	case statusInQueue:
		return !c.applyProgress(generation, StateQueued, Update{State: StateQueued, QueuePosition: status.QueuePosition})
	case statusInProgress:
		return !c.applyProgress(generation, StateRunning, Update{State: StateRunning, Percentage: status.Percentage})
	case statusCompleted:
		return c.fetchResult(generation, rec)
	case statusFailed:
		return c.finish(generation, Update{State: StateFailed, Err: fmt.Errorf("job: request %s failed remotely", rec.RequestID)})
	default:
		// Outside the known vocabulary: forward verbatim, keep polling.
		c.mu.Lock()
		current, stale := c.state, generation != c.generation
		c.mu.Unlock()
		if stale {
			return true
		}
		c.emit(Update{State: current, Status: status.Status})
		return false
	}
}

// fetchResult performs the single result fetch of a completed job. A stale
// generation (cancelled while the status poll was in flight) skips the fetch
// entirely.
func (c *Controller) fetchResult(generation int, rec Record) bool {
	c.mu.Lock()
	stale := generation != c.generation
	c.mu.Unlock()
	if stale {
		return true
	}

	resp, err := c.doer.Do(c.baseCtx, transport.Request{Method: http.MethodGet, URL: rec.ResponseURL})
	if err != nil {
		return c.finish(generation, Update{State: StateFailed, Err: fmt.Errorf("job: fetch result: %w", err)})
	}
	if !resp.OK() {
		return c.finish(generation, Update{State: StateFailed, Err: fmt.Errorf("job: fetch result: unexpected status %d", resp.Status)})
	}
	var body map[string]any
	if err := resp.DecodeJSON(&body); err != nil {
		return c.finish(generation, Update{State: StateFailed, Err: fmt.Errorf("job: fetch result: %w", err)})
	}
	return c.finish(generation, Update{State: StateCompleted, Result: decodeResult(body)})
}

// applyProgress applies a non-terminal transition unless the generation is
// stale. It reports whether the update was applied.
func (c *Controller) applyProgress(generation int, next State, update Update) bool {
	c.mu.Lock()
	if generation != c.generation {
		c.mu.Unlock()
		return false
	}
	c.state = next
	c.mu.Unlock()
	c.emit(update)
	return true
}

// finish applies a terminal update, clears the checkpoint, and returns the
// controller to Idle. A stale generation stops the loop without applying
// anything. Always reports true: polling is over either way.
func (c *Controller) finish(generation int, update Update) bool {
	c.mu.Lock()
	if generation != c.generation {
		c.mu.Unlock()
		return true
	}
	c.generation++
	c.stopPoll = nil
	c.record = Record{}
	c.state = StateIdle
	c.mu.Unlock()

	c.clearCheckpoint()
	c.emit(update)
	return true
}

func (c *Controller) toIdle() {
	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
}

func (c *Controller) saveCheckpoint(ctx context.Context, rec Record) {
	if c.checkpoints == nil {
		return
	}
	if err := c.checkpoints.Save(ctx, rec); err != nil {
		c.logger.Warn("job: persist checkpoint", "request_id", rec.RequestID, "error", err)
	}
}

func (c *Controller) clearCheckpoint() {
	if c.checkpoints == nil {
		return
	}
	if err := c.checkpoints.Clear(c.baseCtx); err != nil {
		c.logger.Warn("job: clear checkpoint", "error", err)
	}
}

func (c *Controller) emit(update Update) {
	if c.onUpdate == nil {
		return
	}
	c.onUpdate(update)
}
