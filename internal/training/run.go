package training

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the state of a training run.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusTraining  RunStatus = "training"
	StatusCompleted RunStatus = "completed"
	StatusPartial   RunStatus = "partial"
	StatusCancelled RunStatus = "cancelled"
)

// maxRecordedErrors bounds the error log kept on a run.
const maxRecordedErrors = 20

// Run tracks one pass over the training examples.
type Run struct {
	mu sync.Mutex

	ID       string
	Model    string
	Status   RunStatus
	Epoch    int
	Epochs   int
	Progress Progress

	StartedAt time.Time
	UpdatedAt time.Time

	errors []string
}

// Progress counts example attempts across all epochs.
type Progress struct {
	Attempted int      `json:"attempted"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
}

func newRun(model string, epochs int) *Run {
	now := time.Now()
	return &Run{
		ID:        uuid.NewString(),
		Model:     model,
		Status:    StatusPending,
		Epochs:    epochs,
		StartedAt: now,
		UpdatedAt: now,
	}
}

func (r *Run) setStatus(status RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = status
	r.UpdatedAt = time.Now()
}

func (r *Run) startEpoch(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Epoch = n
	r.UpdatedAt = time.Now()
}

func (r *Run) recordSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Progress.Attempted++
	r.Progress.Succeeded++
	r.UpdatedAt = time.Now()
}

func (r *Run) recordFailure(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Progress.Attempted++
	r.Progress.Failed++
	if len(r.errors) < maxRecordedErrors {
		r.errors = append(r.errors, msg)
	}
	r.UpdatedAt = time.Now()
}

// finish settles the final status from the failure count.
func (r *Run) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = StatusCompleted
	if r.Progress.Failed > 0 {
		r.Status = StatusPartial
	}
	r.UpdatedAt = time.Now()
}

// RunSnapshot is a read-only, JSON-safe copy of run state.
type RunSnapshot struct {
	ID        string        `json:"run_id"`
	Model     string        `json:"model"`
	Status    RunStatus     `json:"status"`
	Epoch     int           `json:"epoch"`
	Epochs    int           `json:"epochs"`
	Progress  Progress      `json:"progress"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	StartedAt time.Time     `json:"started_at"`
}

// Snapshot returns a JSON-safe copy of the run state.
func (r *Run) Snapshot() RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	errs := append([]string{}, r.errors...)
	p := r.Progress
	p.Errors = errs
	return RunSnapshot{
		ID:        r.ID,
		Model:     r.Model,
		Status:    r.Status,
		Epoch:     r.Epoch,
		Epochs:    r.Epochs,
		Progress:  p,
		Elapsed:   r.UpdatedAt.Sub(r.StartedAt),
		StartedAt: r.StartedAt,
	}
}
