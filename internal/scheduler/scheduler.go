// Package scheduler maintains the durable queue of generation jobs. It keeps
// exactly one armed timer for the earliest pending job; when it fires, every
// job whose runAt has passed executes sequentially, then the timer is
// re-planned. Failed jobs retry on a fixed backoff until the attempt limit,
// after which they stay in the queue as failed for operator inspection.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ostanin/reelpost/internal/background"
	"github.com/ostanin/reelpost/internal/docstore"
	"github.com/ostanin/reelpost/internal/eventlog"
	"github.com/ostanin/reelpost/internal/hub"
	"github.com/ostanin/reelpost/internal/pipeline"
	"github.com/ostanin/reelpost/internal/providers"
	"github.com/ostanin/reelpost/internal/settings"
)

const (
	// maxRetries is the number of failed attempts after which a job is
	// terminally failed.
	maxRetries = 3
	// retryBackoff is the fixed delay before a failed job runs again.
	retryBackoff = 10 * time.Minute
	// reaperBudget bounds the asset reaper's background booking.
	reaperBudget = 2 * time.Minute
)

// Job kinds.
const (
	KindOnce  = "once"
	KindDaily = "daily"
)

// Job statuses.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// ErrInvalidJob is returned by Enqueue for a malformed job request.
var ErrInvalidJob = errors.New("invalid job")

// Payload is the work a job carries.
type Payload struct {
	Topic  string `json:"topic"`
	Manual bool   `json:"manual"`
}

// Job is one scheduled unit of pipeline work.
type Job struct {
	ID        string    `json:"id"`
	RunAt     time.Time `json:"runAt"`
	Kind      string    `json:"kind"`
	Payload   Payload   `json:"payload"`
	Status    string    `json:"status"`
	Retries   int       `json:"retries"`
	LastError string    `json:"lastError,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Pipeline is the generation surface the scheduler drives.
type Pipeline interface {
	Run(ctx context.Context, topic string, channel settings.Channel) (pipeline.PostRecord, error)
	ReapStaleAssets(maxAgeHours int) error
}

// Deps wires a Scheduler to its collaborators.
type Deps struct {
	Store    *docstore.Store
	Pipeline Pipeline
	Settings *settings.Manager
	Events   *eventlog.Logger
	Hub      *hub.Hub
	Tasks    *background.Manager
	Clock    Clock
}

// Scheduler plans and executes queued jobs.
type Scheduler struct {
	store    *docstore.Store
	pipe     Pipeline
	settings *settings.Manager
	events   *eventlog.Logger
	hub      *hub.Hub
	tasks    *background.Manager
	clock    Clock
	logger   *slog.Logger

	mu    sync.Mutex // guards timer
	timer Timer

	runMu sync.Mutex // serializes executeDue passes

	ctx context.Context
}

// New creates a Scheduler. A nil Clock means wall time.
func New(deps Deps) *Scheduler {
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock()
	}
	return &Scheduler{
		store:    deps.Store,
		pipe:     deps.Pipeline,
		settings: deps.Settings,
		events:   deps.Events,
		hub:      deps.Hub,
		tasks:    deps.Tasks,
		clock:    clock,
		logger:   slog.Default(),
		ctx:      context.Background(),
	}
}

// Start performs the initial planning pass. Jobs that came due while the
// process was down fire immediately. ctx bounds all pipeline runs the
// scheduler initiates.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.PlanNext()
}

// Jobs returns the current queue document.
func (s *Scheduler) Jobs() []Job {
	return docstore.Read(s.store, s.store.Paths().Queue, []Job{})
}

// Enqueue appends a pending job and re-plans the wakeup timer.
func (s *Scheduler) Enqueue(topic string, runAt time.Time, kind string) (Job, error) {
	if topic == "" {
		return Job{}, fmt.Errorf("%w: topic is required", ErrInvalidJob)
	}
	if kind != KindOnce && kind != KindDaily {
		return Job{}, fmt.Errorf("%w: kind must be %q or %q", ErrInvalidJob, KindOnce, KindDaily)
	}

	now := s.clock.Now().UTC()
	job := Job{
		ID:        uuid.New().String(),
		RunAt:     runAt.UTC(),
		Kind:      kind,
		Payload:   Payload{Topic: topic, Manual: true},
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	jobs := append(s.Jobs(), job)
	if err := docstore.Write(s.store, s.store.Paths().Queue, jobs); err != nil {
		return Job{}, err
	}

	s.hub.Emit(hub.JobEnqueued, job)
	s.PlanNext()
	return job, nil
}

// PlanNext cancels any armed timer and arms a new one for the earliest
// pending job. With nothing pending the scheduler stays idle.
func (s *Scheduler) PlanNext() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	var next *Job
	for _, j := range s.Jobs() {
		if j.Status != StatusPending {
			continue
		}
		if next == nil || j.RunAt.Before(next.RunAt) {
			j := j
			next = &j
		}
	}
	if next == nil {
		return
	}

	delay := next.RunAt.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	s.timer = s.clock.AfterFunc(delay, s.ExecuteDue)
	s.logger.Debug("planned next wakeup", "job_id", next.ID, "delay", delay)
}

// ExecuteDue runs every pending job whose runAt has passed, one at a time,
// then re-plans. One job's failure never blocks its siblings.
func (s *Scheduler) ExecuteDue() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	now := s.clock.Now()
	for _, j := range s.Jobs() {
		if j.Status == StatusPending && !j.RunAt.After(now) {
			s.executeJob(j.ID)
		}
	}
	s.PlanNext()
}

// executeJob runs one job through the pipeline and applies the resulting
// state transition. Panics from the run are contained so sibling due jobs
// still execute.
func (s *Scheduler) executeJob(id string) {
	job, ok := s.updateJob(id, func(j *Job) bool {
		if j.Status != StatusPending {
			return false
		}
		j.Status = StatusRunning
		return true
	})
	if !ok {
		return
	}

	cfg := s.settings.Load()

	err := s.runContained(job.Payload.Topic, cfg.Channel)
	if err == nil {
		s.updateJob(id, func(j *Job) bool {
			if j.Kind == KindDaily {
				j.Status = StatusPending
				j.RunAt = j.RunAt.AddDate(0, 0, 1)
			} else {
				j.Status = StatusSuccess
			}
			return true
		})
		s.tasks.Start("asset-reaper", reaperBudget, func() {
			if err := s.pipe.ReapStaleAssets(cfg.System.AutoCleanupHours); err != nil {
				s.logger.Warn("reaping stale assets", "error", err)
			}
		})
		return
	}

	failed, _ := s.updateJob(id, func(j *Job) bool {
		j.Retries++
		j.LastError = err.Error()
		if j.Retries >= maxRetries {
			j.Status = StatusFailed
		} else {
			j.Status = StatusPending
			j.RunAt = s.clock.Now().UTC().Add(retryBackoff)
		}
		return true
	})

	if lErr := s.events.Append("error", "scheduler", "job failed", map[string]any{
		"jobId": id, "error": err.Error(), "retries": failed.Retries,
	}); lErr != nil {
		s.logger.Error("appending event log", "error", lErr)
	}
	if failed.Status == StatusFailed {
		s.hub.Emit(hub.JobFailed, failed)
	}

	var provErr *providers.ProviderError
	if errors.As(err, &provErr) {
		s.logger.Warn("job failed at provider", "job_id", id, "provider", provErr.Provider, "error", err)
	} else {
		s.logger.Warn("job failed", "job_id", id, "error", err)
	}
}

// runContained invokes the pipeline, converting a panic into an error so one
// job's fault cannot take down the scheduling pass.
func (s *Scheduler) runContained(topic string, channel settings.Channel) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()
	_, err = s.pipe.Run(s.ctx, topic, channel)
	return err
}

// updateJob re-reads the queue, applies mutate to the job with the given id,
// stamps updatedAt, and persists the whole queue. Returns the mutated job and
// whether a mutation happened. Re-reading keeps concurrent admin edits to
// other jobs from being overwritten.
func (s *Scheduler) updateJob(id string, mutate func(*Job) bool) (Job, bool) {
	jobs := s.Jobs()
	for i := range jobs {
		if jobs[i].ID != id {
			continue
		}
		if !mutate(&jobs[i]) {
			return jobs[i], false
		}
		jobs[i].UpdatedAt = s.clock.Now().UTC()
		if err := docstore.Write(s.store, s.store.Paths().Queue, jobs); err != nil {
			s.logger.Error("persisting queue", "job_id", id, "error", err)
		}
		return jobs[i], true
	}
	return Job{}, false
}

// TriggerNow bypasses the queue and runs the pipeline synchronously, then
// emits a completion event distinct from the pipeline's own lifecycle events.
func (s *Scheduler) TriggerNow(ctx context.Context, topic string, channel settings.Channel) (pipeline.PostRecord, error) {
	record, err := s.pipe.Run(ctx, topic, channel)
	if err != nil {
		return pipeline.PostRecord{}, err
	}
	s.hub.Emit(hub.GenerationCompleted, map[string]any{"topic": topic})
	return record, nil
}

// Stop disarms the timer. In-flight job execution, if any, runs to
// completion.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
