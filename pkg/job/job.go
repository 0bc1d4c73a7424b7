// Package job drives the asynchronous submit, poll, fetch lifecycle of one
// generation request against a queue-based API. A Controller owns at most
// one active job; its durable Record checkpoint lets a restarted process
// re-enter polling without re-submitting.
package job

import (
	"context"
	"errors"
	"time"
)

// ErrJobActive rejects a Submit while a job is already in flight.
var ErrJobActive = errors.New("job: a job is already active")

// State is the controller's lifecycle position. Queued and Running flip
// between each other on polled status; the terminal states are reported
// through updates, after which the controller is Idle again.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateQueued     State = "queued"
	StateRunning    State = "running"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Remote status vocabulary of the queue API.
const (
	statusInQueue    = "IN_QUEUE"
	statusInProgress = "IN_PROGRESS"
	statusCompleted  = "COMPLETED"
	statusFailed     = "FAILED"
)

// Record is the durable checkpoint of an in-flight job.
type Record struct {
	RequestID   string    `json:"request_id"`
	StatusURL   string    `json:"status_url"`
	ResponseURL string    `json:"response_url"`
	EndpointID  string    `json:"endpoint_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Update is one lifecycle notification. QueuePosition and Percentage are set
// when the remote status carried them; Status holds the verbatim remote
// status string for values outside the known vocabulary; Result and Err are
// set on terminal updates.
type Update struct {
	State         State
	QueuePosition *int
	Percentage    *float64
	Status        string
	Result        *Result
	Err           error
}

// Media is one generated artifact.
type Media struct {
	URL         string
	ContentType string
	Width       int
	Height      int
}

// Result is a decoded terminal payload. Raw always holds the full response
// map; Media and Text are the recognised shapes lifted out of it.
type Result struct {
	Raw   map[string]any
	Media []Media
	Text  string
}

// CheckpointStore persists the single active-job record.
type CheckpointStore interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context) (Record, bool, error)
	Clear(ctx context.Context) error
}
