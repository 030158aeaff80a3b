// Package tasks runs code snippets and Go functions off the caller's path.
//
// One worker goroutine accepts submissions in order and starts each job in
// its own goroutine, bounded by a concurrency limit, so jobs may complete
// out of order. Callers key on task ID. Failures are classified the same way
// as on the synchronous path.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rhuss/runbox/pkg/api"
	"github.com/rhuss/runbox/pkg/observability"
)

// ErrShutdown is reported for submissions made after Shutdown.
var ErrShutdown = errors.New("task executor is shut down")

// DefaultMaxConcurrent bounds how many jobs run at once.
const DefaultMaxConcurrent = 4

// CodeRunner executes one snippet. *sandbox.Sandbox implements it.
type CodeRunner interface {
	Execute(ctx context.Context, code, lang string) api.ExecutionResult
}

// Diagnoser classifies failed code runs and function errors.
// *classifier.Classifier implements it.
type Diagnoser interface {
	ClassifyResult(res api.ExecutionResult, ctx map[string]any) api.Diagnosis
	ClassifyError(err error, ctx map[string]any) api.Diagnosis
}

// Func is a unit of in-process work. It should return promptly once ctx is
// cancelled; cancellation is cooperative.
type Func func(ctx context.Context, args []any) (any, error)

// PanicError wraps a value recovered from a panicking Func.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string     { return fmt.Sprintf("panic: %v", e.Value) }
func (e *PanicError) ErrorKind() string { return "PanicError" }

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithMaxConcurrent bounds concurrently running jobs. Values below 1 are
// ignored.
func WithMaxConcurrent(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxConcurrent = n
		}
	}
}

// WithCleanup starts a janitor that evicts finished tasks older than maxAge
// every interval. A zero interval disables it.
func WithCleanup(interval, maxAge time.Duration) Option {
	return func(e *Executor) {
		e.cleanupInterval = interval
		e.cleanupMaxAge = maxAge
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

type entry struct {
	task   api.Task
	fn     Func
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	result *api.TaskResult
}

// Executor is the asynchronous task registry and its worker.
type Executor struct {
	runner          CodeRunner
	diag            Diagnoser
	logger          *slog.Logger
	now             func() time.Time
	maxConcurrent   int
	cleanupInterval time.Duration
	cleanupMaxAge   time.Duration

	root     context.Context
	stop     context.CancelFunc
	sem      *semaphore.Weighted
	bg       errgroup.Group
	jobs     sync.WaitGroup
	signal   chan struct{}
	shutdown sync.Once

	mu      sync.Mutex
	entries map[string]*entry
	pending []*entry
	closed  bool
}

// New starts an Executor. diag may be nil, in which case failures are
// stored without a diagnosis.
func New(runner CodeRunner, diag Diagnoser, opts ...Option) *Executor {
	e := &Executor{
		runner:        runner,
		diag:          diag,
		logger:        slog.Default(),
		now:           time.Now,
		maxConcurrent: DefaultMaxConcurrent,
		entries:       make(map[string]*entry),
		signal:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.root, e.stop = context.WithCancel(context.Background())
	e.sem = semaphore.NewWeighted(int64(e.maxConcurrent))

	e.bg.Go(func() error {
		e.work()
		return nil
	})
	if e.cleanupInterval > 0 {
		e.bg.Go(func() error {
			e.janitor()
			return nil
		})
	}
	return e
}

// SubmitCode queues a snippet and returns immediately.
func (e *Executor) SubmitCode(code, lang string) api.Submission {
	return e.SubmitCodeWithID("", code, lang)
}

// SubmitCodeWithID is SubmitCode with a caller-chosen ID. An empty id gets a
// fresh one.
func (e *Executor) SubmitCodeWithID(id, code, lang string) api.Submission {
	return e.submit(id, api.Task{Kind: api.TaskKindCode, Code: code, Language: lang}, nil)
}

// SubmitFunction queues fn(args) and returns immediately. name is only used
// for listings and logs.
func (e *Executor) SubmitFunction(name string, fn Func, args ...any) api.Submission {
	return e.SubmitFunctionWithID("", name, fn, args...)
}

// SubmitFunctionWithID is SubmitFunction with a caller-chosen ID.
func (e *Executor) SubmitFunctionWithID(id, name string, fn Func, args ...any) api.Submission {
	return e.submit(id, api.Task{Kind: api.TaskKindFunction, Function: name, Args: args}, fn)
}

func (e *Executor) submit(id string, task api.Task, fn Func) api.Submission {
	if id == "" {
		id = api.NewTaskID()
	}
	task.ID = id
	task.Status = api.TaskRunning
	task.CreatedAt = e.now()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return api.Submission{TaskID: id, Status: api.TaskError, Error: ErrShutdown.Error()}
	}
	if _, exists := e.entries[id]; exists {
		e.mu.Unlock()
		return api.Submission{TaskID: id, Status: api.TaskError, Error: fmt.Sprintf("task %s already exists", id)}
	}
	ctx, cancel := context.WithCancel(e.root)
	ent := &entry{task: task, fn: fn, ctx: ctx, cancel: cancel, done: make(chan struct{})}
	e.entries[id] = ent
	e.pending = append(e.pending, ent)
	e.mu.Unlock()

	select {
	case e.signal <- struct{}{}:
	default:
	}

	observability.TasksSubmittedTotal.WithLabelValues(string(task.Kind)).Inc()
	observability.Tasks.WithLabelValues(string(api.TaskRunning)).Inc()
	e.logger.Debug("task submitted", "task_id", id, "kind", task.Kind)
	return api.Submission{TaskID: id, Status: api.TaskRunning}
}

// next pops the oldest pending entry together with a snapshot of its task.
// Cancel rewrites ent.task under e.mu, so workers only read the snapshot.
func (e *Executor) next() (*entry, api.Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pending) == 0 {
		return nil, api.Task{}, false
	}
	ent := e.pending[0]
	e.pending[0] = nil
	e.pending = e.pending[1:]
	return ent, ent.task, true
}

// work accepts pending jobs in submission order.
func (e *Executor) work() {
	for {
		ent, task, ok := e.next()
		if !ok {
			select {
			case <-e.signal:
				continue
			case <-e.root.Done():
				return
			}
		}
		if ent.ctx.Err() != nil {
			continue
		}
		if err := e.sem.Acquire(e.root, 1); err != nil {
			return
		}
		if ent.ctx.Err() != nil {
			e.sem.Release(1)
			continue
		}
		e.jobs.Add(1)
		go func() {
			defer e.jobs.Done()
			defer e.sem.Release(1)
			e.complete(ent, e.execute(ent, task))
		}()
	}
}

func (e *Executor) execute(ent *entry, t api.Task) api.TaskResult {
	res := api.TaskResult{TaskID: t.ID, Status: api.TaskCompleted}

	switch t.Kind {
	case api.TaskKindCode:
		run := e.runner.Execute(ent.ctx, t.Code, t.Language)
		res.Success = run.Success()
		res.Stdout = run.Stdout
		res.Stderr = run.Stderr
		res.ExitCode = run.ExitCode
		if !res.Success && e.diag != nil {
			d := e.diag.ClassifyResult(run, map[string]any{
				"code":        t.Code,
				"language":    t.Language,
				"stdout":      run.Stdout,
				"stderr":      run.Stderr,
				"return_code": run.ExitCode,
				"task_id":     t.ID,
			})
			res.ErrorHandled = true
			res.ErrorInfo = &d
		}
	case api.TaskKindFunction:
		val, err := call(ent.ctx, ent.fn, t.Args)
		if err != nil {
			res.Error = err.Error()
			if e.diag != nil {
				d := e.diag.ClassifyError(err, map[string]any{"function": t.Function, "task_id": t.ID})
				res.ErrorHandled = true
				res.ErrorInfo = &d
			}
			break
		}
		res.Success = true
		res.Result = val
	}

	now := e.now()
	res.CompletedAt = &now
	return res
}

func call(ctx context.Context, fn Func, args []any) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn(ctx, args)
}

// complete stores res unless the task was cancelled in the meantime.
func (e *Executor) complete(ent *entry, res api.TaskResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := api.ValidateTaskTransition(ent.task.Status, api.TaskCompleted); err != nil {
		e.logger.Debug("dropping late result", "task_id", ent.task.ID, "error", err.Message)
		return
	}
	ent.result = &res
	ent.task.Status = api.TaskCompleted
	close(ent.done)
	ent.cancel()
	observability.Tasks.WithLabelValues(string(api.TaskRunning)).Dec()
	observability.Tasks.WithLabelValues(string(api.TaskCompleted)).Inc()
	e.logger.Debug("task completed", "task_id", ent.task.ID, "success", res.Success)
}

// Result returns the stored result, or a not_found or running status.
func (e *Executor) Result(id string) api.TaskResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resultLocked(id)
}

func (e *Executor) resultLocked(id string) api.TaskResult {
	ent, ok := e.entries[id]
	if !ok {
		return api.TaskResult{TaskID: id, Status: api.TaskNotFound}
	}
	if ent.result == nil {
		return api.TaskResult{TaskID: id, Status: api.TaskRunning}
	}
	return *ent.result
}

// Wait blocks until the task finishes, timeout elapses or ctx is done. A
// zero timeout waits indefinitely.
func (e *Executor) Wait(ctx context.Context, id string, timeout time.Duration) api.TaskResult {
	e.mu.Lock()
	ent, ok := e.entries[id]
	e.mu.Unlock()
	if !ok {
		return api.TaskResult{TaskID: id, Status: api.TaskNotFound}
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-ent.done:
		e.mu.Lock()
		defer e.mu.Unlock()
		return *ent.result
	case <-expired:
		return api.TaskResult{TaskID: id, Status: api.TaskTimeout}
	case <-ctx.Done():
		return api.TaskResult{TaskID: id, Status: api.TaskError, Error: ctx.Err().Error()}
	}
}

// Cancel stops a task that has not completed. Work already handed to the
// sandbox is interrupted through its context; an in-process Func has to
// observe ctx itself.
func (e *Executor) Cancel(id string) api.TaskResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.entries[id]
	if !ok {
		return api.TaskResult{TaskID: id, Status: api.TaskNotFound}
	}
	if api.ValidateTaskTransition(ent.task.Status, api.TaskCancelled) != nil {
		return api.TaskResult{TaskID: id, Status: api.TaskAlreadyCompleted}
	}
	e.cancelLocked(ent)
	return *ent.result
}

func (e *Executor) cancelLocked(ent *entry) {
	now := e.now()
	ent.result = &api.TaskResult{TaskID: ent.task.ID, Status: api.TaskCancelled, CancelledAt: &now}
	ent.task.Status = api.TaskCancelled
	ent.cancel()
	close(ent.done)
	observability.Tasks.WithLabelValues(string(api.TaskRunning)).Dec()
	observability.Tasks.WithLabelValues(string(api.TaskCancelled)).Inc()
	e.logger.Debug("task cancelled", "task_id", ent.task.ID)
}

// List groups task snapshots by status. A non-empty status keeps only that
// group populated. The failed group is always present and always empty.
func (e *Executor) List(status api.TaskStatus) map[api.TaskStatus][]api.TaskView {
	groups := map[api.TaskStatus][]api.TaskView{
		api.TaskRunning:   {},
		api.TaskCompleted: {},
		api.TaskCancelled: {},
		api.TaskFailed:    {},
	}

	e.mu.Lock()
	for _, ent := range e.entries {
		if status != "" && ent.task.Status != status {
			continue
		}
		view := api.TaskView{Task: ent.task}
		view.Args = append([]any(nil), ent.task.Args...)
		if ent.result != nil {
			r := *ent.result
			view.Result = &r
		}
		groups[ent.task.Status] = append(groups[ent.task.Status], view)
	}
	e.mu.Unlock()

	for _, views := range groups {
		sort.Slice(views, func(i, j int) bool {
			if !views[i].CreatedAt.Equal(views[j].CreatedAt) {
				return views[i].CreatedAt.Before(views[j].CreatedAt)
			}
			return views[i].ID < views[j].ID
		})
	}
	return groups
}

// Cleanup evicts finished tasks created more than maxAge ago and reports how
// many were removed. Running tasks are never evicted.
func (e *Executor) Cleanup(maxAge time.Duration) int {
	cutoff := e.now().Add(-maxAge)

	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for id, ent := range e.entries {
		if ent.task.Status == api.TaskRunning || !ent.task.CreatedAt.Before(cutoff) {
			continue
		}
		delete(e.entries, id)
		observability.Tasks.WithLabelValues(string(ent.task.Status)).Dec()
		n++
	}
	if n > 0 {
		e.logger.Debug("evicted finished tasks", "count", n)
	}
	return n
}

func (e *Executor) janitor() {
	ticker := time.NewTicker(e.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.Cleanup(e.cleanupMaxAge)
		case <-e.root.Done():
			return
		}
	}
}

// Shutdown cancels every unfinished task, stops the worker and waits for
// running jobs, bounded by ctx. It is safe to call more than once.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.shutdown.Do(func() {
		e.mu.Lock()
		e.closed = true
		cancelled := 0
		for _, ent := range e.entries {
			if ent.result == nil {
				e.cancelLocked(ent)
				cancelled++
			}
		}
		e.pending = nil
		e.mu.Unlock()
		e.stop()
		e.logger.Info("task executor shutting down", "cancelled", cancelled)
	})

	done := make(chan struct{})
	go func() {
		_ = e.bg.Wait()
		e.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for task worker: %w", ctx.Err())
	}
}
