package tui

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/csheth/citejump/internal/logger"
)

type jobKind string

type jobStatus string

const (
	jobKindOpen   jobKind = "open"
	jobKindBundle jobKind = "bundle"
	jobKindPage   jobKind = "page"
	jobKindReload jobKind = "reload"
)

const (
	jobStatusRunning    jobStatus = "running"
	jobStatusSucceeded  jobStatus = "succeeded"
	jobStatusFailed     jobStatus = "failed"
	jobStatusSuperseded jobStatus = "superseded"
)

// supersedable kinds cancel their previous run when a new one starts.
var supersedable = map[jobKind]bool{jobKindPage: true}

type jobSnapshot struct {
	ID          string
	Kind        jobKind
	Status      jobStatus
	StartedAt   time.Time
	CompletedAt time.Time
	Err         string
}

func (s jobSnapshot) Duration() time.Duration {
	if s.CompletedAt.IsZero() {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

type jobSignalMsg struct {
	Snapshot jobSnapshot
}

// jobResultEnvelope carries a finished job's own message. Payload is routed
// back through Update whatever the status, so stale results reach the
// controller and are dropped there by sequence.
type jobResultEnvelope struct {
	Snapshot jobSnapshot
	Payload  tea.Msg
}

type jobRunner func(context.Context) (tea.Msg, error)

type liveJob struct {
	id     string
	cancel context.CancelFunc
}

type jobBus struct {
	ctx     context.Context
	log     logger.Logger
	counter atomic.Int64

	mu   sync.Mutex
	live map[jobKind]liveJob
}

func newJobBus(ctx context.Context, log logger.Logger) *jobBus {
	if ctx == nil {
		ctx = context.Background()
	}
	return &jobBus{
		ctx:  ctx,
		log:  logger.Component(log, "jobs"),
		live: map[jobKind]liveJob{},
	}
}

// Start announces the job, then runs it off the update loop.
func (b *jobBus) Start(kind jobKind, runner jobRunner) tea.Cmd {
	id := fmt.Sprintf("%s-%d", kind, b.counter.Add(1))
	ctx, cancel := context.WithCancel(b.ctx)
	if supersedable[kind] {
		b.replace(kind, liveJob{id: id, cancel: cancel})
	}
	started := time.Now()

	announce := func() tea.Msg {
		return jobSignalMsg{Snapshot: jobSnapshot{ID: id, Kind: kind, Status: jobStatusRunning, StartedAt: started}}
	}
	run := func() tea.Msg {
		defer b.finish(kind, id, cancel)
		payload, err := runner(ctx)
		snapshot := jobSnapshot{ID: id, Kind: kind, StartedAt: started, CompletedAt: time.Now()}
		switch {
		case err == nil:
			snapshot.Status = jobStatusSucceeded
		case errors.Is(err, context.Canceled) && b.ctx.Err() == nil:
			snapshot.Status = jobStatusSuperseded
		default:
			snapshot.Status = jobStatusFailed
			snapshot.Err = err.Error()
		}
		b.log.Debug("job finished", "id", id, "status", snapshot.Status, "duration", snapshot.Duration(), "error", err)
		return jobResultEnvelope{Snapshot: snapshot, Payload: payload}
	}
	return tea.Sequence(announce, run)
}

func (b *jobBus) replace(kind jobKind, job liveJob) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if prev, ok := b.live[kind]; ok {
		b.log.Debug("job superseded", "id", prev.id, "by", job.id)
		prev.cancel()
	}
	b.live[kind] = job
}

func (b *jobBus) finish(kind jobKind, id string, cancel context.CancelFunc) {
	cancel()
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.live[kind]; ok && cur.id == id {
		delete(b.live, kind)
	}
}

// Running reports how many supersedable jobs are still in flight.
func (b *jobBus) Running() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}
