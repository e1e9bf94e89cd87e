package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ostanin/reelpost/internal/background"
	"github.com/ostanin/reelpost/internal/docstore"
	"github.com/ostanin/reelpost/internal/eventlog"
	"github.com/ostanin/reelpost/internal/hub"
	"github.com/ostanin/reelpost/internal/pipeline"
	"github.com/ostanin/reelpost/internal/settings"
)

type fakeTimer struct {
	clock   *fakeClock
	when    time.Time
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// fakeClock drives timers synchronously from advance.
type fakeClock struct {
	mu        sync.Mutex
	now       time.Time
	timers    []*fakeTimer
	lastDelay time.Duration
	armed     int
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastDelay = d
	c.armed++
	t := &fakeTimer{clock: c, when: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// advance moves the clock and fires every due, unstopped timer in arming
// order. Timers armed during a fired callback are picked up too.
func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due *fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.when.After(c.now) {
				t.stopped = true
				due = t
				break
			}
		}
		c.mu.Unlock()
		if due == nil {
			return
		}
		due.fn()
	}
}

type fakePipe struct {
	mu     sync.Mutex
	runs   []string
	errFor map[string]error
	panics map[string]bool
	reaps  []int
}

func (p *fakePipe) Run(ctx context.Context, topic string, channel settings.Channel) (pipeline.PostRecord, error) {
	p.mu.Lock()
	p.runs = append(p.runs, topic)
	p.mu.Unlock()
	if p.panics[topic] {
		panic("integration blew up")
	}
	if err := p.errFor[topic]; err != nil {
		return pipeline.PostRecord{}, err
	}
	return pipeline.PostRecord{ID: "post-1", Topic: topic, Status: "published"}, nil
}

func (p *fakePipe) ReapStaleAssets(maxAgeHours int) error {
	p.mu.Lock()
	p.reaps = append(p.reaps, maxAgeHours)
	p.mu.Unlock()
	return nil
}

func (p *fakePipe) runCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.runs)
}

type fixture struct {
	sched *Scheduler
	clock *fakeClock
	pipe  *fakePipe
	hub   *hub.Hub
	store *docstore.Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store, err := docstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	clock := newFakeClock()
	pipe := &fakePipe{errFor: map[string]error{}, panics: map[string]bool{}}
	h := hub.New()
	sched := New(Deps{
		Store:    store,
		Pipeline: pipe,
		Settings: settings.NewManager(store),
		Events:   eventlog.New(store),
		Hub:      h,
		Tasks:    background.NewManager(),
		Clock:    clock,
	})
	sched.Start(context.Background())
	return fixture{sched: sched, clock: clock, pipe: pipe, hub: h, store: store}
}

func (fx fixture) job(t *testing.T, id string) Job {
	t.Helper()
	for _, j := range fx.sched.Jobs() {
		if j.ID == id {
			return j
		}
	}
	t.Fatalf("job %s not found", id)
	return Job{}
}

func TestEnqueueValidation(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.sched.Enqueue("", fx.clock.Now(), KindOnce); !errors.Is(err, ErrInvalidJob) {
		t.Errorf("empty topic error = %v, want ErrInvalidJob", err)
	}
	if _, err := fx.sched.Enqueue("topic", fx.clock.Now(), "hourly"); !errors.Is(err, ErrInvalidJob) {
		t.Errorf("bad kind error = %v, want ErrInvalidJob", err)
	}
}

func TestEnqueueArmsTimerForDelay(t *testing.T) {
	fx := newFixture(t)

	runAt := fx.clock.Now().Add(30 * time.Minute)
	if _, err := fx.sched.Enqueue("topic", runAt, KindOnce); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if fx.clock.lastDelay != 30*time.Minute {
		t.Errorf("armed delay = %v, want 30m", fx.clock.lastDelay)
	}
}

func TestEnqueuePastRunAtArmsZeroDelay(t *testing.T) {
	fx := newFixture(t)

	runAt := fx.clock.Now().Add(-time.Hour)
	if _, err := fx.sched.Enqueue("topic", runAt, KindOnce); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if fx.clock.lastDelay != 0 {
		t.Errorf("armed delay = %v, want 0", fx.clock.lastDelay)
	}
}

func TestPlanNextIdleWithNothingPending(t *testing.T) {
	fx := newFixture(t)

	armed := fx.clock.armed
	fx.sched.PlanNext()
	if fx.clock.armed != armed {
		t.Error("timer armed with an empty queue")
	}
}

func TestOnceJobRunsToSuccess(t *testing.T) {
	fx := newFixture(t)

	job, err := fx.sched.Enqueue("once topic", fx.clock.Now(), KindOnce)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	fx.clock.advance(0)

	got := fx.job(t, job.ID)
	if got.Status != StatusSuccess {
		t.Errorf("status = %s, want success", got.Status)
	}
	if fx.pipe.runCount() != 1 {
		t.Errorf("pipeline ran %d times", fx.pipe.runCount())
	}

	// A terminal once job never runs again.
	fx.clock.advance(48 * time.Hour)
	if fx.pipe.runCount() != 1 {
		t.Errorf("terminal job re-ran")
	}
}

func TestDailyJobReschedules(t *testing.T) {
	fx := newFixture(t)

	runAt := fx.clock.Now()
	job, err := fx.sched.Enqueue("daily topic", runAt, KindDaily)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	fx.clock.advance(0)

	got := fx.job(t, job.ID)
	if got.Status != StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	if want := runAt.UTC().AddDate(0, 0, 1); !got.RunAt.Equal(want) {
		t.Errorf("runAt = %v, want %v", got.RunAt, want)
	}

	// It fires again the next day.
	fx.clock.advance(24 * time.Hour)
	if fx.pipe.runCount() != 2 {
		t.Errorf("pipeline ran %d times, want 2", fx.pipe.runCount())
	}
}

func TestFailedJobRetriesWithFixedBackoff(t *testing.T) {
	fx := newFixture(t)
	fx.pipe.errFor["flaky"] = errors.New("provider down")

	job, err := fx.sched.Enqueue("flaky", fx.clock.Now(), KindOnce)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	fx.clock.advance(0)

	got := fx.job(t, job.ID)
	if got.Status != StatusPending {
		t.Errorf("status = %s, want pending for retry", got.Status)
	}
	if got.Retries != 1 {
		t.Errorf("retries = %d, want 1", got.Retries)
	}
	if got.LastError != "provider down" {
		t.Errorf("lastError = %q", got.LastError)
	}
	if want := fx.clock.Now().Add(retryBackoff); !got.RunAt.Equal(want) {
		t.Errorf("runAt = %v, want %v", got.RunAt, want)
	}
}

func TestJobFailsTerminallyAfterThreeAttempts(t *testing.T) {
	fx := newFixture(t)
	fx.pipe.errFor["doomed"] = errors.New("always fails")

	events := fx.hub.Subscribe()
	defer fx.hub.Unsubscribe(events)

	job, err := fx.sched.Enqueue("doomed", fx.clock.Now(), KindOnce)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	fx.clock.advance(0)
	fx.clock.advance(retryBackoff)
	fx.clock.advance(retryBackoff)

	got := fx.job(t, job.ID)
	if got.Status != StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.Retries != 3 {
		t.Errorf("retries = %d, want 3", got.Retries)
	}
	if got.LastError == "" {
		t.Error("lastError not retained")
	}

	// Excluded from all future planning.
	fx.clock.advance(24 * time.Hour)
	if fx.pipe.runCount() != 3 {
		t.Errorf("pipeline ran %d times, want 3", fx.pipe.runCount())
	}

	var sawFailed bool
	for {
		select {
		case ev := <-events:
			if ev.Type == hub.JobFailed {
				sawFailed = true
			}
			continue
		default:
		}
		break
	}
	if !sawFailed {
		t.Error("no JobFailed event emitted")
	}
}

func TestCoDueJobsAllExecute(t *testing.T) {
	fx := newFixture(t)

	past := fx.clock.Now().Add(-time.Minute)
	if _, err := fx.sched.Enqueue("first", past, KindOnce); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := fx.sched.Enqueue("second", past, KindOnce); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	fx.clock.advance(0)

	if fx.pipe.runCount() != 2 {
		t.Errorf("pipeline ran %d times, want 2", fx.pipe.runCount())
	}
}

func TestPanickingJobDoesNotBlockSiblings(t *testing.T) {
	fx := newFixture(t)
	fx.pipe.panics["cursed"] = true

	past := fx.clock.Now().Add(-time.Minute)
	cursed, err := fx.sched.Enqueue("cursed", past, KindOnce)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	healthy, err := fx.sched.Enqueue("healthy", past, KindOnce)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	fx.clock.advance(0)

	if got := fx.job(t, healthy.ID); got.Status != StatusSuccess {
		t.Errorf("sibling job status = %s, want success", got.Status)
	}
	got := fx.job(t, cursed.ID)
	if got.Status != StatusPending || got.Retries != 1 {
		t.Errorf("panicking job = %s/%d, want pending retry", got.Status, got.Retries)
	}
	if !strings.Contains(got.LastError, "panic") {
		t.Errorf("lastError = %q", got.LastError)
	}
}

func TestSuccessTriggersAssetReaper(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.sched.Enqueue("topic", fx.clock.Now(), KindOnce); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	fx.clock.advance(0)

	deadline := time.After(time.Second)
	for {
		fx.pipe.mu.Lock()
		n := len(fx.pipe.reaps)
		fx.pipe.mu.Unlock()
		if n > 0 {
			fx.pipe.mu.Lock()
			hours := fx.pipe.reaps[0]
			fx.pipe.mu.Unlock()
			if hours != 6 {
				t.Errorf("reaper window = %d, want default 6", hours)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("reaper never triggered")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestTriggerNowBypassesQueue(t *testing.T) {
	fx := newFixture(t)

	events := fx.hub.Subscribe()
	defer fx.hub.Unsubscribe(events)

	record, err := fx.sched.TriggerNow(context.Background(), "urgent", settings.Channel{})
	if err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}
	if record.Topic != "urgent" {
		t.Errorf("record topic = %s", record.Topic)
	}
	if len(fx.sched.Jobs()) != 0 {
		t.Error("TriggerNow created a queue entry")
	}

	select {
	case ev := <-events:
		if ev.Type != hub.GenerationCompleted {
			t.Errorf("event = %s, want GenerationCompleted", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no completion event")
	}
}

func TestUpdatedAtAdvancesOnTransition(t *testing.T) {
	fx := newFixture(t)

	job, err := fx.sched.Enqueue("topic", fx.clock.Now().Add(time.Minute), KindOnce)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	fx.clock.advance(time.Minute)

	got := fx.job(t, job.ID)
	if !got.UpdatedAt.After(job.UpdatedAt) {
		t.Errorf("updatedAt %v did not advance past %v", got.UpdatedAt, job.UpdatedAt)
	}
}
