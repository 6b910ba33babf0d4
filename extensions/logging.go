package extensions

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pumped-fn/playerx"
)

const (
	operationStartingMessage  = "operation starting"
	operationCompletedMessage = "operation completed"
	operationAbortedMessage   = "operation aborted"
	operationFailedMessage    = "operation failed"
	dispatchCompletedMessage  = "dispatch completed"
	taskLoopingMessage        = "task looping"
)

// LoggingExtension logs forks, dispatches and teardown failures
type LoggingExtension struct {
	playerx.BaseExtension
	logger *slog.Logger
}

// NewLoggingExtension creates a new logging extension
func NewLoggingExtension(logger *slog.Logger) *LoggingExtension {
	if logger == nil {
		logger = slog.New(NewSilentHandler())
	}
	return &LoggingExtension{
		BaseExtension: playerx.NewBaseExtension("logging"),
		logger:        logger,
	}
}

func (e *LoggingExtension) Wrap(ctx context.Context, next func() (any, error), op *playerx.Operation) (any, error) {
	start := time.Now()
	e.logger.Debug(operationStartingMessage, "kind", string(op.Kind), "name", op.Name)

	result, err := next()

	duration := time.Since(start)
	switch {
	case err == nil && op.Kind == playerx.OpDispatch:
		changed, _ := result.(bool)
		e.logger.Debug(dispatchCompletedMessage, "name", op.Name, "changed", changed, "duration", duration)
	case err == nil:
		e.logger.Info(operationCompletedMessage, "kind", string(op.Kind), "name", op.Name, "duration", duration)
	case errors.Is(err, playerx.ErrAborted):
		e.logger.Info(operationAbortedMessage, "kind", string(op.Kind), "name", op.Name, "duration", duration)
	default:
		var loop *playerx.LoopDirective
		if errors.As(err, &loop) {
			e.logger.Debug(taskLoopingMessage, "name", op.Name)
			break
		}
		e.logger.Error(operationFailedMessage, "kind", string(op.Kind), "name", op.Name, "duration", duration, "error", err.Error())
	}

	return result, err
}

// OnTeardownError logs the failure and marks it handled
func (e *LoggingExtension) OnTeardownError(err *playerx.TeardownError) bool {
	e.logger.Warn("effect teardown failed",
		"effect", err.Effect,
		"context", err.Context,
		"error", err.Err.Error(),
	)
	return true
}
