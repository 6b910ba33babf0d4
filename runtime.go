package playerx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// Runtime owns the scheduler, the root execution context and everything
// forked from it. There are no process-wide singletons: every piece of
// runtime state hangs off a Runtime value.
type Runtime struct {
	mu         sync.RWMutex
	sched      *scheduler
	root       *ExecutionCtx
	extensions []Extension
	logger     *slog.Logger
	execTree   *ExecutionTree
	packages   *packageManager
	tasks      sync.WaitGroup
	disposed   atomic.Bool
	atomSeq    atomic.Int64
	treeLimit  int

	// disposeErrs collects teardown failures while Dispose runs.
	disposeMu   sync.Mutex
	disposing   bool
	disposeErrs []error
}

// RuntimeOption is a modifier for runtimes
type RuntimeOption func(*Runtime)

// WithExtension returns an option that registers an extension to a runtime
func WithExtension(ext Extension) RuntimeOption {
	return func(rt *Runtime) {
		if err := rt.UseExtension(ext); err != nil {
			panic(err)
		}
	}
}

// WithLogger sets the logger used for unhandled runtime failures
func WithLogger(logger *slog.Logger) RuntimeOption {
	return func(rt *Runtime) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

// WithExecutionTreeLimit bounds the number of finished forks kept in the
// execution tree
func WithExecutionTreeLimit(limit int) RuntimeOption {
	return func(rt *Runtime) {
		if limit > 0 {
			rt.treeLimit = limit
		}
	}
}

// NewRuntime creates a new runtime with optional configuration
func NewRuntime(opts ...RuntimeOption) *Runtime {
	rt := &Runtime{
		sched:      newScheduler(),
		extensions: []Extension{},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		treeLimit:  1000,
	}

	rt.packages = newPackageManager(rt)
	rt.root = &ExecutionCtx{
		id:       "root",
		rt:       rt,
		signal:   NewSignal(),
		registry: newRegistry(rt.packages.registered),
		meta:     newMetadata(),
	}

	for _, opt := range opts {
		opt(rt)
	}

	rt.execTree = newExecutionTree(rt.treeLimit)

	return rt
}

// Context returns the root execution context
func (rt *Runtime) Context() *ExecutionCtx {
	return rt.root
}

// Registry returns the root registry
func (rt *Runtime) Registry() *Registry {
	return rt.root.registry
}

// Logger returns the runtime logger
func (rt *Runtime) Logger() *slog.Logger {
	return rt.logger
}

// ExecutionTree returns the tree of finished forks
func (rt *Runtime) ExecutionTree() *ExecutionTree {
	return rt.execTree
}

// UseExtension registers an extension to the runtime
func (rt *Runtime) UseExtension(ext Extension) error {
	rt.mu.Lock()
	rt.extensions = append(rt.extensions, ext)
	sort.SliceStable(rt.extensions, func(i, j int) bool {
		return rt.extensions[i].Order() < rt.extensions[j].Order()
	})
	rt.mu.Unlock()

	return ext.Init(rt)
}

func (rt *Runtime) snapshotExtensions() []Extension {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	exts := make([]Extension, len(rt.extensions))
	copy(exts, rt.extensions)
	return exts
}

// wrap runs next through the extension middleware chain.
func (rt *Runtime) wrap(ctx context.Context, op *Operation, next func() (any, error)) (any, error) {
	exts := rt.snapshotExtensions()

	// Apply extensions in reverse order (last registered wraps first)
	for i := len(exts) - 1; i >= 0; i-- {
		ext := exts[i]
		currentNext := next
		next = func() (any, error) {
			return ext.Wrap(ctx, currentNext, op)
		}
	}

	result, err := next()
	var loop *LoopDirective
	if err != nil && !errors.As(err, &loop) {
		for _, ext := range exts {
			ext.OnError(err, op, rt)
		}
	}
	return result, err
}

// runTeardown invokes one effect teardown, isolating errors and panics.
func (rt *Runtime) runTeardown(effect string, ctx *ExecutionCtx, fn func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %w", recoveredError(r))
			}
		}()
		return fn()
	}()
	if err == nil {
		return
	}

	teardownErr := &TeardownError{
		Effect:  effect,
		Context: ctx.Name(),
		Err:     err,
	}

	rt.disposeMu.Lock()
	if rt.disposing {
		rt.disposeErrs = append(rt.disposeErrs, teardownErr)
	}
	rt.disposeMu.Unlock()

	for _, ext := range rt.snapshotExtensions() {
		if ext.OnTeardownError(teardownErr) {
			return
		}
	}

	rt.logger.Error("effect teardown failed",
		"effect", effect,
		"context", ctx.Name(),
		"error", err.Error(),
	)
}

// Dispose aborts the root context, waits for every fork to settle and
// disposes the extensions. The returned error joins the teardown failures
// of the abort with the extensions' Dispose errors; teardown failures are
// reported to extensions and the logger as usual too.
func (rt *Runtime) Dispose() error {
	if !rt.disposed.CompareAndSwap(false, true) {
		return nil
	}

	rt.disposeMu.Lock()
	rt.disposing = true
	rt.disposeMu.Unlock()

	rt.sched.exclusive(func() {
		rt.root.signal.Abort(ErrRuntimeDisposed)
	})

	if !rt.sched.holding() {
		rt.tasks.Wait()
	}

	rt.disposeMu.Lock()
	rt.disposing = false
	errs := rt.disposeErrs
	rt.disposeErrs = nil
	rt.disposeMu.Unlock()

	for _, ext := range rt.snapshotExtensions() {
		if err := ext.Dispose(rt); err != nil {
			errs = append(errs, fmt.Errorf("disposing extension %s: %w", ext.Name(), err))
		}
	}

	return errors.Join(errs...)
}

// Disposed reports whether Dispose has been called
func (rt *Runtime) Disposed() bool {
	return rt.disposed.Load()
}
