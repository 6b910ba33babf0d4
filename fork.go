package playerx

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a fork
type TaskStatus int

const (
	TaskPending TaskStatus = iota
	TaskRunning
	TaskCompleted
	TaskAborted
	TaskFailed
)

func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "completed"
	case TaskAborted:
		return "aborted"
	case TaskFailed:
		return "failed"
	}
	return "unknown"
}

// Finished reports whether the status is terminal.
func (s TaskStatus) Finished() bool {
	return s >= TaskCompleted
}

// ForkOption is a modifier for forks and subscriptions
type ForkOption func(*forkConfig)

type forkConfig struct {
	predicate func() bool
}

// WithPredicate gates a fork: when pred returns false the task is not run.
// On subscriptions the predicate is evaluated at every dispatch.
func WithPredicate(pred func() bool) ForkOption {
	return func(cfg *forkConfig) {
		cfg.predicate = pred
	}
}

func newForkConfig(opts []ForkOption) forkConfig {
	var cfg forkConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (cfg forkConfig) allows() bool {
	return cfg.predicate == nil || cfg.predicate()
}

// Abortable is the handle of a fork. It resolves with the task's output, or
// rejects when the task is aborted or fails.
type Abortable[O any] struct {
	ctx  *ExecutionCtx
	done chan struct{}

	mu     sync.Mutex
	status TaskStatus
	value  O
	err    error
}

// Abort aborts the fork's signal. Aborting a finished fork is a no-op.
func (h *Abortable[O]) Abort(reason error) {
	if h.ctx == nil {
		return
	}
	h.ctx.rt.sched.exclusive(func() {
		h.ctx.signal.Abort(reason)
	})
}

// Wait blocks until the fork settles. Called from inside a task, Wait
// suspends the caller so other tasks keep running.
func (h *Abortable[O]) Wait() (O, error) {
	if h.ctx != nil {
		h.ctx.rt.sched.suspend(func() {
			<-h.done
		})
	} else {
		<-h.done
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value, h.err
}

// Done is closed once the fork settles.
func (h *Abortable[O]) Done() <-chan struct{} {
	return h.done
}

// Status returns the fork's lifecycle state.
func (h *Abortable[O]) Status() TaskStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Err returns the settled error, nil while the fork is in flight.
func (h *Abortable[O]) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// ID returns the execution id of the fork, empty for skipped forks.
func (h *Abortable[O]) ID() string {
	if h.ctx == nil {
		return ""
	}
	return h.ctx.id
}

// Signal returns the fork's abort signal, nil for skipped forks.
func (h *Abortable[O]) Signal() *Signal {
	if h.ctx == nil {
		return nil
	}
	return h.ctx.signal
}

func (h *Abortable[O]) setStatus(status TaskStatus) {
	h.mu.Lock()
	h.status = status
	h.mu.Unlock()
}

func (h *Abortable[O]) resolve(value O, err error, status TaskStatus) {
	h.mu.Lock()
	h.value = value
	h.err = err
	h.status = status
	h.mu.Unlock()
	close(h.done)
}

// Fork starts task with input in a child of ctx. The fork is queued behind
// every fork started before it and runs once the scheduler reaches it.
func Fork[I, O any](ctx *ExecutionCtx, task *Task[I, O], input I, opts ...ForkOption) *Abortable[O] {
	h := &Abortable[O]{done: make(chan struct{})}

	cfg := newForkConfig(opts)
	if !cfg.allows() {
		var zero O
		h.resolve(zero, nil, TaskCompleted)
		return h
	}

	rt := ctx.rt
	child := ctx.child(uuid.NewString(), task.name, true)
	h.ctx = child

	taskNameTag.Set(child, task.name)
	inputTag.Set(child, input)

	if child.signal.Aborted() {
		var zero O
		err := newAbortedError(child.signal.Reason())
		child.finish(TaskAborted, nil, err)
		h.resolve(zero, err, TaskAborted)
		return h
	}

	rt.tasks.Add(1)
	ticket := rt.sched.ticket()
	go func() {
		defer rt.tasks.Done()
		rt.sched.claim(ticket)
		defer rt.sched.release()
		runTask(child, task, input, h)
	}()

	return h
}

func runTask[I, O any](child *ExecutionCtx, task *Task[I, O], input I, h *Abortable[O]) {
	rt := child.rt
	var zero O

	if child.signal.Aborted() {
		err := newAbortedError(child.signal.Reason())
		child.finish(TaskAborted, nil, err)
		h.resolve(zero, err, TaskAborted)
		return
	}

	h.setStatus(TaskRunning)
	startTimeTag.Set(child, time.Now())
	statusTag.Set(child, TaskRunning)

	exts := rt.snapshotExtensions()
	for i, ext := range exts {
		if err := ext.OnForkStart(child, task); err != nil {
			child.signal.Abort(ErrTaskFinished)
			for j := i - 1; j >= 0; j-- {
				_ = exts[j].OnForkEnd(child, nil, err)
			}
			child.finish(TaskFailed, nil, err)
			h.resolve(zero, err, TaskFailed)
			return
		}
	}

	op := &Operation{
		Kind:    OpFork,
		Name:    task.name,
		Context: child,
		Runtime: rt,
	}
	result, err := rt.wrap(child.Std(), op, func() (any, error) {
		return executeTask(child, task, input)
	})

	var status TaskStatus
	var loop *LoopDirective
	switch {
	case errors.As(err, &loop):
		until := loop.Signal
		if until == nil {
			until = child.signal
		}
		rt.sched.suspend(func() {
			select {
			case <-until.Done():
			case <-child.signal.Done():
			}
		})
		child.signal.Abort(until.Reason())
		err = newAbortedError(child.signal.Reason())
		status = TaskAborted
	case err != nil:
		if child.signal.Aborted() || errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled) {
			if !errors.Is(err, ErrAborted) {
				err = newAbortedError(err)
			}
			status = TaskAborted
		} else {
			status = TaskFailed
		}
	case child.signal.Aborted():
		err = newAbortedError(child.signal.Reason())
		status = TaskAborted
	default:
		status = TaskCompleted
	}

	// Tear down the task's effects and abort forks still running below it.
	child.signal.Abort(ErrTaskFinished)

	for i := len(exts) - 1; i >= 0; i-- {
		if extErr := exts[i].OnForkEnd(child, result, err); extErr != nil && err == nil {
			err = extErr
			status = TaskFailed
		}
	}

	var out O
	if status == TaskCompleted {
		if typed, ok := result.(O); ok {
			out = typed
		}
	}

	child.finish(status, result, err)
	h.resolve(out, err, status)
}

func executeTask[I, O any](e *ExecutionCtx, task *Task[I, O], input I) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			err = &TaskPanicError{Task: task.name, Recovered: r, Stack: stack}
			panicStackTag.Set(e, stack)

			for _, ext := range e.rt.snapshotExtensions() {
				if extErr := ext.OnTaskPanic(e, r, stack); extErr != nil {
					err = errors.Join(err, extErr)
				}
			}
		}
	}()

	out, err := task.run(e, input)
	return out, err
}

// finish records the terminal state of a fork in the execution tree.
func (e *ExecutionCtx) finish(status TaskStatus, output any, err error) {
	endTimeTag.Set(e, time.Now())
	statusTag.Set(e, status)
	if err != nil {
		errorTag.Set(e, err)
	} else if output != nil {
		outputTag.Set(e, output)
	}

	e.rt.execTree.addNode(e.finalize())
}
