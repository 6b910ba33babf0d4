package extensions

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pumped-fn/playerx"
)

const (
	taskFailureMessage = "Task Failure"
	taskPanicMessage   = "Task Panic"
)

// TreeDebugExtension logs the execution tree around a task when it fails.
//
// Usage:
//
//	// Human-readable formatted output (with line breaks)
//	handler := extensions.NewHumanHandler(os.Stdout, slog.LevelError)
//	ext := extensions.NewTreeDebugExtension(handler)
//
//	// Structured JSON logging (compact, machine-readable)
//	handler := slog.NewJSONHandler(os.Stdout, nil)
//	ext := extensions.NewTreeDebugExtension(handler)
//
//	// Silent (for testing)
//	ext := extensions.NewTreeDebugExtension(extensions.NewSilentHandler())
//
// Aborted tasks are not failures and are not logged.
type TreeDebugExtension struct {
	playerx.BaseExtension
	logger *slog.Logger
}

// NewTreeDebugExtension creates a new tree debug extension.
func NewTreeDebugExtension(logHandler slog.Handler) *TreeDebugExtension {
	return &TreeDebugExtension{
		BaseExtension: playerx.NewBaseExtension("tree-debug"),
		logger:        slog.New(logHandler),
	}
}

// OnError logs the lineage of a failed fork together with its finished
// children
func (e *TreeDebugExtension) OnError(err error, op *playerx.Operation, rt *playerx.Runtime) {
	if op.Kind != playerx.OpFork || op.Context == nil || errors.Is(err, playerx.ErrAborted) {
		return
	}

	var panicErr *playerx.TaskPanicError
	if errors.As(err, &panicErr) {
		return
	}

	e.logger.Error(taskFailureMessage,
		"task", op.Context.Name(),
		"error", err.Error(),
		"execution_tree", formatExecutionTree(rt, op.Context),
	)
}

// OnTaskPanic logs context when a task panics
func (e *TreeDebugExtension) OnTaskPanic(execCtx *playerx.ExecutionCtx, recovered any, stack []byte) error {
	e.logger.Error(taskPanicMessage,
		"panic", fmt.Sprintf("%v", recovered),
		"stack_trace", string(stack),
		"task", execCtx.Name(),
	)
	return nil
}

func formatExecutionTree(rt *playerx.Runtime, failed *playerx.ExecutionCtx) string {
	var lineage []*playerx.ExecutionCtx
	for c := failed; c != nil; c = c.Parent() {
		lineage = append(lineage, c)
	}

	var sb strings.Builder
	sb.WriteString("\n")

	depth := 0
	for i := len(lineage) - 1; i >= 0; i-- {
		c := lineage[i]
		name := c.Name()
		if c == failed {
			name += " ❌ FAILED"
		}
		if depth == 0 {
			fmt.Fprintf(&sb, "  %s\n", name)
		} else {
			fmt.Fprintf(&sb, "  %s└─> %s\n", strings.Repeat("    ", depth-1), name)
		}
		depth++
	}

	children := rt.ExecutionTree().GetChildren(failed.ID())
	indent := strings.Repeat("    ", depth-1)
	for i, child := range children {
		name, _ := playerx.TaskName().FromNode(child)
		status, _ := playerx.Status().FromNode(child)

		mark := " (" + status.String() + ")"
		if status == playerx.TaskCompleted {
			mark = " ✓"
		} else if childErr, ok := playerx.ErrorTag().FromNode(child); ok && status == playerx.TaskFailed {
			mark = fmt.Sprintf(" ❌ (error: %v)", childErr)
		}

		branch := "├─>"
		if i == len(children)-1 {
			branch = "└─>"
		}
		fmt.Fprintf(&sb, "  %s%s %s%s\n", indent, branch, name, mark)
	}

	return sb.String()
}
