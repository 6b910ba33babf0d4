package extensions

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SilentHandler drops every record
type SilentHandler struct{}

func NewSilentHandler() *SilentHandler { return &SilentHandler{} }

func (*SilentHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (*SilentHandler) Handle(context.Context, slog.Record) error { return nil }
func (h *SilentHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h *SilentHandler) WithGroup(string) slog.Handler           { return h }

// HumanHandler writes records for a terminal. Fork and dispatch records of
// the logging extension become one line each, tree debug records become a
// banner, and anything else is printed as the message followed by one
// indented line per attribute.
type HumanHandler struct {
	mu     *sync.Mutex
	writer io.Writer
	level  slog.Level
	attrs  []slog.Attr
}

func NewHumanHandler(writer io.Writer, level slog.Level) *HumanHandler {
	return &HumanHandler{
		mu:     &sync.Mutex{},
		writer: writer,
		level:  level,
	}
}

func (h *HumanHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *HumanHandler) Handle(_ context.Context, record slog.Record) error {
	f := h.fields(record)

	var lines []string
	switch record.Message {
	case taskFailureMessage:
		lines = banner("Task Failure",
			"\nFailed Task: "+f.take("task"),
			"Error: "+f.take("error"),
			"\nExecution Tree:"+f.take("execution_tree"),
		)
	case taskPanicMessage:
		body := []string{"\nPanic: " + f.take("panic")}
		if task := f.take("task"); task != "" {
			body = append(body, "Task: "+task)
		}
		body = append(body, "\nStack Trace:\n"+f.take("stack_trace"))
		lines = banner("Task Panic", body...)
	case operationStartingMessage:
		lines = f.operation(record.Level, "starting")
	case operationCompletedMessage:
		lines = f.operation(record.Level, "completed in "+f.duration())
	case operationAbortedMessage:
		lines = f.operation(record.Level, "aborted after "+f.duration())
	case operationFailedMessage:
		lines = f.operation(record.Level, "failed after "+f.duration())
	case dispatchCompletedMessage:
		outcome := "unchanged"
		if f.take("changed") == "true" {
			outcome = "changed"
		}
		f.values["kind"] = "dispatch"
		lines = f.operation(record.Level, outcome+" in "+f.duration())
	case taskLoopingMessage:
		f.values["kind"] = "task"
		lines = f.operation(record.Level, "looping")
	default:
		lines = append([]string{fmt.Sprintf("[%s] %s", record.Level, record.Message)}, f.rest()...)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, line := range lines {
		if _, err := fmt.Fprintln(h.writer, line); err != nil {
			return err
		}
	}
	return nil
}

func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *HumanHandler) WithGroup(string) slog.Handler {
	return h
}

// recordFields holds a record's attributes in order. take consumes one so
// that rest prints only what a layout did not use.
type recordFields struct {
	keys   []string
	values map[string]string
	raw    map[string]slog.Value
}

func (h *HumanHandler) fields(record slog.Record) *recordFields {
	f := &recordFields{values: make(map[string]string), raw: make(map[string]slog.Value)}
	add := func(a slog.Attr) bool {
		if _, seen := f.values[a.Key]; !seen {
			f.keys = append(f.keys, a.Key)
		}
		f.values[a.Key] = a.Value.String()
		f.raw[a.Key] = a.Value
		return true
	}
	for _, a := range h.attrs {
		add(a)
	}
	record.Attrs(add)
	return f
}

func (f *recordFields) take(key string) string {
	v := f.values[key]
	delete(f.values, key)
	return v
}

func (f *recordFields) duration() string {
	v, ok := f.raw["duration"]
	f.take("duration")
	if !ok || v.Kind() != slog.KindDuration {
		return "?"
	}
	return v.Duration().Round(time.Microsecond).String()
}

// operation renders "[LEVEL] kind name outcome" plus the remaining fields.
func (f *recordFields) operation(level slog.Level, outcome string) []string {
	head := strings.TrimSpace(fmt.Sprintf("[%s] %s %s %s", level, f.take("kind"), f.take("name"), outcome))
	return append([]string{head}, f.rest()...)
}

func (f *recordFields) rest() []string {
	var lines []string
	for _, key := range f.keys {
		if v, ok := f.values[key]; ok {
			lines = append(lines, fmt.Sprintf("  %s: %s", key, v))
		}
	}
	return lines
}

func banner(title string, body ...string) []string {
	rule := strings.Repeat("=", 70)
	lines := []string{"", rule, "[TreeDebug] " + title, rule}
	lines = append(lines, body...)
	return append(lines, rule, "")
}
