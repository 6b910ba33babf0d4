package playerx

// AnyTask is the type-erased view of a Task used by extensions
type AnyTask interface {
	Name() string
	IsWrapped() bool
}

// Task is a named unit of work. Every fork of a task runs the body in a
// fresh child context governed by its own signal.
type Task[I, O any] struct {
	name     string
	run      func(ctx *ExecutionCtx, in I) (O, error)
	original *Task[I, O]
}

// NewTask creates a task
func NewTask[I, O any](name string, run func(ctx *ExecutionCtx, in I) (O, error)) *Task[I, O] {
	return &Task[I, O]{name: name, run: run}
}

// NewStep creates a task without a meaningful output, for subscribers and
// event handlers.
func NewStep[I any](name string, run func(ctx *ExecutionCtx, in I) error) *Task[I, struct{}] {
	return NewTask(name, func(ctx *ExecutionCtx, in I) (struct{}, error) {
		return struct{}{}, run(ctx, in)
	})
}

func (t *Task[I, O]) Name() string {
	return t.name
}

// IsWrapped reports whether the task was produced by Wrap.
func (t *Task[I, O]) IsWrapped() bool {
	return t.original != nil
}

// Unwrap returns the task Wrap was applied to, or nil.
func (t *Task[I, O]) Unwrap() *Task[I, O] {
	return t.original
}

// Wrap returns a task running around inner. The result is explicitly marked
// as wrapped, so callers can check IsWrapped instead of tagging the task.
func Wrap[I, O any](
	name string,
	inner *Task[I, O],
	around func(ctx *ExecutionCtx, in I, next func(ctx *ExecutionCtx, in I) (O, error)) (O, error),
) *Task[I, O] {
	next := func(ctx *ExecutionCtx, in I) (O, error) {
		return Fork(ctx, inner, in).Wait()
	}
	return &Task[I, O]{
		name: name,
		run: func(ctx *ExecutionCtx, in I) (O, error) {
			return around(ctx, in, next)
		},
		original: inner,
	}
}

// LoopDirective is returned as the error of a task body to keep the task
// alive until Signal fires. Effects owned by the task stay registered while
// it loops.
type LoopDirective struct {
	Signal *Signal
}

func (l *LoopDirective) Error() string {
	return "loop until aborted"
}

// Loop returns the loop directive for signal. Task bodies return it as
// their error:
//
//	return struct{}{}, playerx.Loop(ctx.Signal())
//
// A nil signal loops until the task itself is aborted.
func Loop(signal *Signal) error {
	return &LoopDirective{Signal: signal}
}
