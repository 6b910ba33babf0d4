package playerx

import "context"

// Extension provides hooks into the runtime lifecycle
type Extension interface {
	// Name returns the extension's name
	Name() string

	// Order determines extension execution order (lower = earlier)
	Order() int

	// Init is called when the extension is registered to a runtime
	Init(rt *Runtime) error

	// Wrap intercepts operations (fork, dispatch)
	Wrap(ctx context.Context, next func() (any, error), op *Operation) (any, error)

	// OnError handles errors returned by wrapped operations
	OnError(err error, op *Operation, rt *Runtime)

	// OnTeardownError handles effect teardown failures
	// Returns true if the error was handled, false to use default behavior
	OnTeardownError(err *TeardownError) bool

	// Task execution hooks
	OnForkStart(execCtx *ExecutionCtx, task AnyTask) error
	OnForkEnd(execCtx *ExecutionCtx, result any, err error) error
	OnTaskPanic(execCtx *ExecutionCtx, recovered any, stack []byte) error

	// Dispose is called when the runtime is disposed
	Dispose(rt *Runtime) error
}

// BaseExtension provides default implementations for Extension methods
type BaseExtension struct {
	name string
}

// NewBaseExtension creates a new base extension with the given name
func NewBaseExtension(name string) BaseExtension {
	return BaseExtension{name: name}
}

func (e *BaseExtension) Name() string {
	return e.name
}

func (e *BaseExtension) Order() int {
	return 100
}

func (e *BaseExtension) Init(rt *Runtime) error {
	return nil
}

func (e *BaseExtension) Wrap(ctx context.Context, next func() (any, error), op *Operation) (any, error) {
	return next()
}

func (e *BaseExtension) OnError(err error, op *Operation, rt *Runtime) {
}

func (e *BaseExtension) OnTeardownError(err *TeardownError) bool {
	return false
}

func (e *BaseExtension) OnForkStart(execCtx *ExecutionCtx, task AnyTask) error {
	return nil
}

func (e *BaseExtension) OnForkEnd(execCtx *ExecutionCtx, result any, err error) error {
	return nil
}

func (e *BaseExtension) OnTaskPanic(execCtx *ExecutionCtx, recovered any, stack []byte) error {
	return nil
}

func (e *BaseExtension) Dispose(rt *Runtime) error {
	return nil
}

// Operation describes what operation is happening
type Operation struct {
	Kind OperationKind
	// Name is the task name for forks and "atom.reducer" for dispatches
	Name    string
	Context *ExecutionCtx
	Runtime *Runtime
}

// OperationKind represents the type of operation
type OperationKind string

const (
	// OpFork indicates a task body being run by a fork
	OpFork OperationKind = "fork"
	// OpDispatch indicates a reducer dispatch on an atom
	OpDispatch OperationKind = "dispatch"
)
