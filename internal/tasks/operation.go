package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/local/convertdesk/internal/config"
	"github.com/local/convertdesk/internal/metrics"
)

// State is the lifecycle position of an Operation.
type State int

const (
	StateSubmitting State = iota
	StatePolling
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateSubmitting:
		return "submitting"
	case StatePolling:
		return "polling"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool { return s >= StateSucceeded }

// Reporter observes an operation. Error is never called for a cancellation.
type Reporter interface {
	Progress(percent int, step string)
	Done(a *Artifact)
	Error(err error)
}

type nopReporter struct{}

func (nopReporter) Progress(int, string) {}
func (nopReporter) Done(*Artifact)       {}
func (nopReporter) Error(error)          {}

// API is the part of Client an Operation drives.
type API interface {
	StatusSource
	Submit(ctx context.Context, req Request) (*Submission, error)
	Result(ctx context.Context, h Handle) (*Artifact, error)
	Release(ctx context.Context, h Handle) error
	Cancel(ctx context.Context, h Handle) error
}

// Options carries everything an Operation needs besides the request.
type Options struct {
	Poll     config.PollConfig
	Tracker  Tracker
	Reporter Reporter
	// OnCancel runs exactly once if the operation ends cancelled.
	OnCancel func()
	// CleanupTimeout bounds the best-effort cancel and release calls.
	CleanupTimeout time.Duration
}

// Snapshot is a point-in-time view of an Operation.
type Snapshot struct {
	ID       string `json:"id"`
	Tool     string `json:"tool"`
	State    string `json:"state"`
	Progress int    `json:"progress"`
	Step     string `json:"step,omitempty"`
	TaskID   string `json:"task_id,omitempty"`
	Error    error  `json:"-"`
}

// Operation is the session context of one submission. It is created by
// Start, runs on its own goroutine and is the only owner of its task handle,
// abort function and cancel callback.
type Operation struct {
	ID   string
	Tool string

	api    API
	req    Request
	opts   Options
	ctx    context.Context
	abort  context.CancelFunc
	logger zerolog.Logger
	done   chan struct{}

	mu       sync.Mutex
	state    State
	handle   *Handle
	progress int
	step     string
	err      error
	artifact *Artifact

	untrackOnce sync.Once
}

// Start submits req and drives the task to a terminal state in the background.
func Start(ctx context.Context, api API, req Request, opts Options) *Operation {
	if opts.Reporter == nil {
		opts.Reporter = nopReporter{}
	}
	if opts.CleanupTimeout <= 0 {
		opts.CleanupTimeout = 10 * time.Second
	}
	opCtx, abort := context.WithCancel(ctx)
	id := uuid.NewString()
	op := &Operation{
		ID:     id,
		Tool:   req.Tool,
		api:    api,
		req:    req,
		opts:   opts,
		ctx:    opCtx,
		abort:  abort,
		logger: log.With().Str("op_id", id).Str("tool", req.Tool).Logger(),
		done:   make(chan struct{}),
	}
	go op.run()
	return op
}

func (o *Operation) run() {
	defer o.abort()

	start := time.Now()
	o.report(0, "uploading")
	sub, err := o.api.Submit(o.ctx, o.req)
	if err != nil {
		metrics.ObserveSubmit(o.Tool, "error", time.Since(start))
		o.fail(err)
		return
	}
	if sub.Artifact != nil {
		metrics.ObserveSubmit(o.Tool, "sync", time.Since(start))
		if o.ctx.Err() != nil {
			o.finishCancelled()
			return
		}
		o.succeed(sub.Artifact)
		return
	}
	metrics.ObserveSubmit(o.Tool, "async", time.Since(start))

	h := *sub.Handle
	o.mu.Lock()
	o.handle = &h
	o.state = StatePolling
	o.mu.Unlock()
	o.logger = o.logger.With().Str("task_id", h.TaskID).Logger()
	if o.opts.Tracker != nil {
		if err := o.opts.Tracker.Track(o.ctx, o.ID, h); err != nil {
			o.logger.Warn().Err(err).Msg("task not registered for abandon sweep")
		}
	}
	if o.ctx.Err() != nil {
		o.finishCancelled()
		return
	}

	poller := NewPoller(o.api, o.opts.Poll)
	if _, err := poller.Poll(o.ctx, h, o.report); err != nil {
		o.fail(err)
		return
	}
	a, err := o.api.Result(o.ctx, h)
	if err != nil {
		o.fail(err)
		return
	}
	o.succeed(a)

	ctx, cancel := context.WithTimeout(context.Background(), o.opts.CleanupTimeout)
	defer cancel()
	if err := o.api.Release(ctx, h); err != nil {
		o.logger.Debug().Err(err).Msg("result release failed")
	}
}

func (o *Operation) report(percent int, step string) {
	o.mu.Lock()
	if percent > o.progress {
		o.progress = percent
	}
	o.step = step
	p := o.progress
	o.mu.Unlock()
	o.opts.Reporter.Progress(p, step)
}

func (o *Operation) succeed(a *Artifact) {
	o.mu.Lock()
	o.state = StateSucceeded
	o.artifact = a
	o.progress = 100
	o.mu.Unlock()
	o.untrack()
	o.logger.Info().Str("name", a.Name).Int("bytes", len(a.Data)).Msg("operation succeeded")
	metrics.IncOperation(StateSucceeded.String())
	o.opts.Reporter.Done(a)
	close(o.done)
}

func (o *Operation) fail(err error) {
	if o.ctx.Err() != nil || IsCancelled(err) {
		o.finishCancelled()
		return
	}
	o.mu.Lock()
	o.state = StateFailed
	o.err = err
	o.mu.Unlock()
	o.untrack()
	o.logger.Error().Err(err).Msg("operation failed")
	metrics.IncOperation(StateFailed.String())
	o.opts.Reporter.Error(err)
	close(o.done)
}

// finishCancelled notifies the server (best effort) with a fresh context,
// since the operation's own context is already aborted.
func (o *Operation) finishCancelled() {
	o.mu.Lock()
	o.state = StateCancelled
	o.err = ErrCancelled
	h := o.handle
	o.mu.Unlock()

	if h != nil {
		ctx, cancel := context.WithTimeout(context.Background(), o.opts.CleanupTimeout)
		if err := o.api.Cancel(ctx, *h); err != nil {
			o.logger.Debug().Err(err).Msg("server cancel failed")
		}
		cancel()
	}
	o.untrack()
	o.logger.Info().Msg("operation cancelled")
	metrics.IncOperation(StateCancelled.String())
	if o.opts.OnCancel != nil {
		o.opts.OnCancel()
	}
	close(o.done)
}

func (o *Operation) untrack() {
	o.untrackOnce.Do(func() {
		o.mu.Lock()
		tracked := o.handle != nil
		o.mu.Unlock()
		if !tracked || o.opts.Tracker == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), o.opts.CleanupTimeout)
		defer cancel()
		if err := o.opts.Tracker.Untrack(ctx, o.ID); err != nil {
			o.logger.Debug().Err(err).Msg("untrack failed")
		}
	})
}

// Cancel aborts the in-flight request or poll. It is a no-op once the
// operation has finished and safe to call more than once.
func (o *Operation) Cancel() {
	o.mu.Lock()
	terminal := o.state.Terminal()
	o.mu.Unlock()
	if !terminal {
		o.abort()
	}
}

// Wait blocks until the operation is terminal or ctx is done.
func (o *Operation) Wait(ctx context.Context) (*Artifact, error) {
	select {
	case <-o.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.artifact, o.err
}

// Done is closed when the operation is terminal.
func (o *Operation) Done() <-chan struct{} { return o.done }

func (o *Operation) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Operation) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := Snapshot{ID: o.ID, Tool: o.Tool, State: o.state.String(), Progress: o.progress, Step: o.step}
	if o.handle != nil {
		s.TaskID = o.handle.TaskID
	}
	if o.state == StateFailed {
		s.Error = o.err
	}
	return s
}

// Artifact returns the result once the operation succeeded.
func (o *Operation) Artifact() *Artifact {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.artifact
}
