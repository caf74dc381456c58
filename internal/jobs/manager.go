// Package jobs tracks concurrent upload jobs. Each job owns its batch
// and outputs; there is no shared mutable state between jobs.
// Cancellation is advisory: it halts local tracking and submission of
// remaining events, it never retracts events already submitted.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hmtran/floodgate/internal/observability"
	"github.com/hmtran/floodgate/internal/pipeline"
	"github.com/hmtran/floodgate/internal/playbook"
)

// Common errors.
var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobFinished = errors.New("job already finished")
)

// Status is the lifecycle state of an upload job.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Submitter delivers compiled events to the sharing platform.
type Submitter interface {
	SubmitEvent(ctx context.Context, ev playbook.Event) (string, error)
}

// Notifier receives compiled-event notifications for downstream
// consumers. Implementations must tolerate being nil-configured out.
type Notifier interface {
	EventCompiled(ev playbook.Event)
}

// Job is one upload run.
type Job struct {
	ID         string           `json:"id"`
	Format     pipeline.Format  `json:"format"`
	DryRun     bool             `json:"dry_run"`
	Status     Status           `json:"status"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at,omitempty"`
	Result     *pipeline.Result `json:"result,omitempty"`
	Submitted  int              `json:"submitted"`
	Failed     int              `json:"failed"`
	Error      string           `json:"error,omitempty"`

	cancel context.CancelFunc
}

// Manager runs and tracks jobs.
type Manager struct {
	mu        sync.RWMutex
	jobs      map[string]*Job
	pipeline  *pipeline.Pipeline
	submitter Submitter
	notifier  Notifier
	logger    *zap.Logger
	metrics   *observability.Metrics
	wg        sync.WaitGroup
}

// NewManager creates a job manager. submitter and notifier may be nil:
// without a submitter every job is effectively a dry run.
func NewManager(pl *pipeline.Pipeline, submitter Submitter, notifier Notifier, logger *zap.Logger) *Manager {
	return &Manager{
		jobs:      make(map[string]*Job),
		pipeline:  pl,
		submitter: submitter,
		notifier:  notifier,
		logger:    logger,
	}
}

// WithMetrics attaches the submission instruments. metrics may be nil.
func (m *Manager) WithMetrics(metrics *observability.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// Submit starts a job for one batch and returns immediately with its
// ID. The job runs on its own context, detached from the caller's
// request lifetime.
func (m *Manager) Submit(data []byte, format pipeline.Format, dryRun bool) *Job {
	ctx, cancel := context.WithCancel(context.Background())

	job := &Job{
		ID:        uuid.NewString(),
		Format:    format,
		DryRun:    dryRun,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
		cancel:    cancel,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.run(ctx, job, data)
	}()

	return m.snapshot(job.ID)
}

func (m *Manager) run(ctx context.Context, job *Job, data []byte) {
	if m.metrics != nil {
		m.metrics.JobsActive.Inc()
		defer m.metrics.JobsActive.Dec()
	}

	result, err := m.pipeline.Run(data, job.Format)
	if err != nil {
		m.finish(job.ID, func(j *Job) {
			j.Status = StatusFailed
			j.Error = err.Error()
		})
		m.logger.Error("upload job failed",
			zap.String("job_id", job.ID),
			zap.Error(err))
		return
	}

	m.update(job.ID, func(j *Job) { j.Result = result })

	var submitted, failed int
	if !job.DryRun && m.submitter != nil {
		for _, ev := range result.Compiled {
			if ctx.Err() != nil {
				break
			}
			if _, err := m.submitter.SubmitEvent(ctx, ev); err != nil {
				failed++
				if m.metrics != nil {
					m.metrics.SubmissionFailures.Inc()
				}
				m.logger.Error("event submission failed",
					zap.String("job_id", job.ID),
					zap.String("info", ev.Info),
					zap.Error(err))
				continue
			}
			submitted++
			if m.metrics != nil {
				m.metrics.EventsSubmitted.Inc()
			}
			if m.notifier != nil {
				m.notifier.EventCompiled(ev)
			}
		}
	}

	m.finish(job.ID, func(j *Job) {
		j.Submitted = submitted
		j.Failed = failed
		if ctx.Err() != nil {
			j.Status = StatusCancelled
		} else {
			j.Status = StatusCompleted
		}
	})

	m.logger.Info("upload job finished",
		zap.String("job_id", job.ID),
		zap.Int("compiled", len(result.Compiled)),
		zap.Int("submitted", submitted),
		zap.Int("failed", failed))
}

// Get returns a copy of the job.
func (m *Manager) Get(id string) (*Job, error) {
	job := m.snapshot(id)
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// List returns copies of all tracked jobs.
func (m *Manager) List() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Job, 0, len(m.jobs))
	for id := range m.jobs {
		out = append(out, m.copyLocked(id))
	}
	return out
}

// Cancel requests advisory cancellation of a running job.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != StatusRunning {
		return ErrJobFinished
	}

	job.cancel()
	return nil
}

// Wait blocks until all running jobs have finished, for shutdown.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) update(id string, fn func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		fn(job)
	}
}

func (m *Manager) finish(id string, fn func(*Job)) {
	m.update(id, func(j *Job) {
		fn(j)
		j.FinishedAt = time.Now().UTC()
	})
}

func (m *Manager) snapshot(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copyLocked(id)
}

func (m *Manager) copyLocked(id string) *Job {
	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	out := *job
	out.cancel = nil
	return &out
}
