// Package scheduler runs pipelines one at a time on a single worker
// goroutine, in submission order, and records each outcome.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/alexjbarnes/adb-sync/internal/engine"
	apperrors "github.com/alexjbarnes/adb-sync/internal/errors"
	"github.com/alexjbarnes/adb-sync/internal/state"
	"github.com/gofrs/flock"
)

// LockFileName is the cross-process run lock inside the state directory.
const LockFileName = "run.lock"

// Trigger names why a run was submitted. It is stored with the run.
const (
	TriggerManual  = "manual"
	TriggerDevice  = "device"
	TriggerWatcher = "watcher"
	TriggerMCP     = "mcp"
)

// Request identifies one run to perform.
type Request struct {
	Pipeline string
	Trigger  string
}

// Result is what a Runner reports about a finished run.
type Result struct {
	Stats     engine.Stats
	Serial    string
	Direction string
}

// Runner performs one pipeline run. The scheduler supplies the progress
// callback and stop flag in opts; the runner supplies everything else.
type Runner interface {
	Run(ctx context.Context, req Request, opts engine.RunOptions) (Result, error)
}

// Recorder persists finished runs.
type Recorder interface {
	RecordRun(r state.Run) (state.Run, error)
}

var _ Recorder = (*state.State)(nil)

// EventKind distinguishes progress from the terminal events.
type EventKind int

const (
	// EventProgress reports one executed operation.
	EventProgress EventKind = iota
	// EventDone is the terminal event of a run that reached the executor.
	EventDone
	// EventFailed is the terminal event of a run that aborted.
	EventFailed
)

// Event is delivered to a submission's listener. A listener receives
// zero or more EventProgress events in index order followed by exactly
// one EventDone or EventFailed.
type Event struct {
	Kind     EventKind
	Pipeline string

	// Progress fields.
	Description string
	Index       int
	Total       int

	// Terminal fields.
	Stats engine.Stats
	Err   error
}

// Listener receives events on the worker goroutine. It must not block.
type Listener func(Event)

// Ticket tracks one accepted submission.
type Ticket struct {
	Request Request

	listener Listener
	done     chan struct{}
	stats    engine.Stats
	err      error
}

// Done is closed after the terminal event has been delivered.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the run finishes or ctx ends.
func (t *Ticket) Wait(ctx context.Context) (engine.Stats, error) {
	select {
	case <-t.done:
		return t.stats, t.err
	case <-ctx.Done():
		return engine.Stats{}, ctx.Err()
	}
}

func (t *Ticket) emit(ev Event) {
	if t.listener != nil {
		t.listener(ev)
	}
}

func (t *Ticket) finish(stats engine.Stats, err error) {
	t.stats, t.err = stats, err

	ev := Event{Kind: EventDone, Pipeline: t.Request.Pipeline, Stats: stats}
	if err != nil {
		ev = Event{Kind: EventFailed, Pipeline: t.Request.Pipeline, Err: err}
	}

	t.emit(ev)
	close(t.done)
}

// Scheduler is a FIFO run queue served by one worker.
type Scheduler struct {
	runner   Runner
	recorder Recorder
	lock     *flock.Flock
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	queue   []*Ticket
	running *Ticket
	stop    *engine.StopFlag
	closed  bool
	started bool

	wake     chan struct{}
	quit     chan struct{}
	finished chan struct{}
}

// New creates a scheduler. recorder may be nil. The run lock lives in
// stateDir.
func New(runner Runner, recorder Recorder, stateDir string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		recorder: recorder,
		lock:     flock.New(filepath.Join(stateDir, LockFileName)),
		logger:   logger,
		now:      time.Now,
		stop:     &engine.StopFlag{},
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Start launches the worker. Runs inherit ctx; cancelling it stops the
// current run between operations and ends the worker.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.closed {
		return
	}

	s.started = true

	go s.loop(ctx)
}

// Submit queues a run. A pipeline already waiting in the queue is not
// queued twice (ErrAlreadyQueued); a pipeline that is currently running
// may be queued once more.
func (s *Scheduler) Submit(req Request, listener Listener) (*Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, apperrors.ErrQueueClosed
	}

	if slices.ContainsFunc(s.queue, func(t *Ticket) bool { return t.Request.Pipeline == req.Pipeline }) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrAlreadyQueued, req.Pipeline)
	}

	if req.Trigger == "" {
		req.Trigger = TriggerManual
	}

	t := &Ticket{Request: req, listener: listener, done: make(chan struct{})}
	s.queue = append(s.queue, t)

	s.logger.Info("run queued",
		slog.String("pipeline", req.Pipeline),
		slog.String("trigger", req.Trigger),
		slog.Int("queued", len(s.queue)),
	)

	select {
	case s.wake <- struct{}{}:
	default:
	}

	return t, nil
}

// Stop asks the current run, if any, to stop before its next operation.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running != nil {
		s.logger.Info("stop requested", slog.String("pipeline", s.running.Request.Pipeline))
		s.stop.Stop()
	}
}

// Running returns the pipeline currently running, or "".
func (s *Scheduler) Running() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running == nil {
		return ""
	}

	return s.running.Request.Pipeline
}

// Queued returns the waiting pipelines in order.
func (s *Scheduler) Queued() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.queue))
	for _, t := range s.queue {
		names = append(names, t.Request.Pipeline)
	}

	return names
}

// Close rejects further submissions, fails every queued ticket with
// ErrQueueClosed, stops the current run and waits for the worker to
// exit. Safe to call more than once.
func (s *Scheduler) Close() {
	s.shutdown()

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if started {
		<-s.finished
	}
}

func (s *Scheduler) shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	s.closed = true
	pending := s.queue
	s.queue = nil

	if s.running != nil {
		s.stop.Stop()
	}
	s.mu.Unlock()

	for _, t := range pending {
		t.finish(engine.Stats{}, apperrors.ErrQueueClosed)
	}

	close(s.quit)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.finished)

	for {
		t := s.next()
		if t != nil {
			s.execute(ctx, t)
			continue
		}

		select {
		case <-s.wake:
		case <-s.quit:
			return
		case <-ctx.Done():
			s.shutdown()
			return
		}
	}
}

func (s *Scheduler) next() *Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || len(s.queue) == 0 {
		return nil
	}

	t := s.queue[0]
	s.queue = s.queue[1:]
	s.running = t
	s.stop.Reset()

	return t
}

func (s *Scheduler) execute(ctx context.Context, t *Ticket) {
	started := s.now()
	logger := s.logger.With(slog.String("pipeline", t.Request.Pipeline))

	res, err := s.runLocked(ctx, t)

	s.mu.Lock()
	s.running = nil
	s.mu.Unlock()

	s.record(logger, t.Request, started, res, err)

	if err != nil {
		logger.Error("run failed", slog.String("error", err.Error()))
	} else {
		logger.Info("run finished",
			slog.Int("uploaded", res.Stats.Uploaded),
			slog.Int("downloaded", res.Stats.Downloaded),
			slog.Int("skipped", res.Stats.Skipped),
			slog.Int("errored", res.Stats.Errored),
			slog.Bool("cancelled", res.Stats.Cancelled),
			slog.Duration("took", s.now().Sub(started)),
		)
	}

	t.finish(res.Stats, err)
}

// runLocked holds the cross-process lock for the duration of one run.
func (s *Scheduler) runLocked(ctx context.Context, t *Ticket) (Result, error) {
	if err := os.MkdirAll(filepath.Dir(s.lock.Path()), 0o700); err != nil {
		return Result{}, fmt.Errorf("creating lock directory: %w", err)
	}

	locked, err := s.lock.TryLock()
	if err != nil {
		return Result{}, fmt.Errorf("acquiring run lock: %w", err)
	}

	if !locked {
		return Result{}, apperrors.ErrRunInProgress
	}

	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("releasing run lock", slog.String("error", err.Error()))
		}
	}()

	opts := engine.RunOptions{
		Stop: s.stop,
		Progress: func(desc string, index, total int) {
			t.emit(Event{
				Kind:        EventProgress,
				Pipeline:    t.Request.Pipeline,
				Description: desc,
				Index:       index,
				Total:       total,
			})
		},
	}

	return s.runner.Run(ctx, t.Request, opts)
}

func (s *Scheduler) record(logger *slog.Logger, req Request, started time.Time, res Result, runErr error) {
	if s.recorder == nil {
		return
	}

	r := state.Run{
		Pipeline:   req.Pipeline,
		Trigger:    req.Trigger,
		Serial:     res.Serial,
		Direction:  res.Direction,
		StartedAt:  started,
		FinishedAt: s.now(),
		Uploaded:   res.Stats.Uploaded,
		Downloaded: res.Stats.Downloaded,
		Skipped:    res.Stats.Skipped,
		Errored:    res.Stats.Errored,
		Operations: res.Stats.Operations,
		Degraded:   res.Stats.Degraded,
		Cancelled:  res.Stats.Cancelled,
	}

	if runErr != nil {
		r.Error = runErr.Error()
	}

	if _, err := s.recorder.RecordRun(r); err != nil {
		logger.Warn("recording run history", slog.String("error", err.Error()))
	}
}
