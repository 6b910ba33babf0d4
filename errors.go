package playerx

import (
	"errors"
	"fmt"
	"runtime/debug"
)

var (
	// ErrLookup is returned when a registry key was never set in the lineage.
	ErrLookup = errors.New("registry lookup failed")
	// ErrAlreadyRegistered is returned when a registry key is set twice.
	ErrAlreadyRegistered = errors.New("registry key already set")
	// ErrAborted marks a task that ended because its signal fired.
	ErrAborted = errors.New("task aborted")
	// ErrTaskFinished is the abort reason of a task's signal once it returns.
	ErrTaskFinished = errors.New("task finished")
	// ErrUnknownReducer is returned by Dispatch for an unregistered reducer name.
	ErrUnknownReducer = errors.New("unknown reducer")
	// ErrEffectNotComposed is returned when a capability is requested from a
	// context that never composed its effect factory.
	ErrEffectNotComposed = errors.New("effect not composed on context")
	// ErrRuntimeDisposed is the abort reason used by Runtime.Dispose.
	ErrRuntimeDisposed = errors.New("runtime disposed")
	// ErrPackageRemoved is the abort reason used by Runtime.Uninstall.
	ErrPackageRemoved = errors.New("package removed")
	// ErrMissingDependency is returned for packages that can never be installed.
	ErrMissingDependency = errors.New("missing package dependency")
)

// LookupError reports a registry miss.
type LookupError struct {
	Key string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("registry lookup failed: %q was never set", e.Key)
}

func (e *LookupError) Unwrap() error {
	return ErrLookup
}

// RegistryWriteError reports an attempt to set a key that already has a value
// somewhere in the visible lineage.
type RegistryWriteError struct {
	Key string
}

func (e *RegistryWriteError) Error() string {
	return fmt.Sprintf("registry key %q already set", e.Key)
}

func (e *RegistryWriteError) Unwrap() error {
	return ErrAlreadyRegistered
}

// ReducerError reports a reducer that panicked instead of returning.
type ReducerError struct {
	Atom       string
	Reducer    string
	Cause      error
	StackTrace []byte
}

func (e *ReducerError) Error() string {
	return fmt.Sprintf("reducer %s.%s failed: %v", e.Atom, e.Reducer, e.Cause)
}

func (e *ReducerError) Unwrap() error {
	return e.Cause
}

// TaskPanicError reports a task body that panicked.
type TaskPanicError struct {
	Task      string
	Recovered any
	Stack     []byte
}

func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("panic in task %s: %v", e.Task, e.Recovered)
}

// TeardownError contains information about an effect teardown failure
type TeardownError struct {
	Effect  string
	Context string
	Err     error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("teardown of effect %s in %s: %v", e.Effect, e.Context, e.Err)
}

func (e *TeardownError) Unwrap() error {
	return e.Err
}

// abortedError wraps ErrAborted together with the signal's reason so that
// errors.Is matches both.
type abortedError struct {
	reason error
}

func (e *abortedError) Error() string {
	if e.reason == nil {
		return ErrAborted.Error()
	}
	return fmt.Sprintf("%s: %v", ErrAborted, e.reason)
}

func (e *abortedError) Unwrap() []error {
	if e.reason == nil {
		return []error{ErrAborted}
	}
	return []error{ErrAborted, e.reason}
}

func newAbortedError(reason error) error {
	return &abortedError{reason: reason}
}

func recoveredError(recovered any) error {
	if err, ok := recovered.(error); ok {
		return err
	}
	return fmt.Errorf("%v", recovered)
}

func newReducerError(atom, reducer string, recovered any) *ReducerError {
	return &ReducerError{
		Atom:       atom,
		Reducer:    reducer,
		Cause:      recoveredError(recovered),
		StackTrace: debug.Stack(),
	}
}
