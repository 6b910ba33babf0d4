// Package playerx provides a structured-concurrency runtime of effects and state for Go.
//
// # Overview
//
// Playerx organizes code around four core concepts:
//
//  1. Atoms: State containers changed only through named reducers
//  2. Tasks: Units of work forked into child execution contexts
//  3. Signals: A cancellation tree, one node per fork
//  4. Effects: Capabilities attached to a context and released with it
//
// # Basic Usage
//
// Create a runtime and compose the capabilities a task needs:
//
//	rt := playerx.NewRuntime()
//	defer rt.Dispose()
//
//	ctx := rt.Context().Using(playerx.StateEffect)
//
//	counter, _ := playerx.NewAtom(ctx, 0, playerx.Reducers[int]{
//	    "inc": func(v *int, _ ...any) bool {
//	        *v++
//	        return true
//	    },
//	})
//
// Subscribe a task to an atom. It is forked with a snapshot of the new value
// every time a reducer reports a change:
//
//	logValue := playerx.NewStep("log-value", func(ctx *playerx.ExecutionCtx, v int) error {
//	    ctx.Logger().Info("counter changed", "value", v)
//	    return nil
//	})
//
//	unsubscribe, _ := playerx.Subscribe(ctx, counter, logValue)
//	defer unsubscribe()
//
//	counter.Dispatch("inc")
//
// # Forks and Loops
//
// Fork runs a task in a child context governed by a child signal:
//
//	h := playerx.Fork(ctx, task, input)
//	out, err := h.Wait()
//
//	// Abort the fork and everything it forked
//	h.Abort(errors.New("superseded"))
//
// A task that returns the loop directive stays alive, with its effects and
// subscriptions, until its signal fires:
//
//	watch := playerx.NewStep("watch", func(ctx *playerx.ExecutionCtx, el *playerx.Emitter) error {
//	    events := playerx.EventsEffect.MustFrom(ctx)
//	    events.Subscribe(el, "timeupdate", onTimeUpdate)
//	    return ctx.Loop()
//	})
//
// # Effects
//
// An effect factory builds a capability for a context together with its
// teardown. The teardown runs exactly once, when the owning context's signal
// fires:
//
//	var Clock = playerx.NewEffectFactory("clock", func(ctx *playerx.ExecutionCtx) (*time.Ticker, func() error) {
//	    t := time.NewTicker(time.Second)
//	    return t, func() error {
//	        t.Stop()
//	        return nil
//	    }
//	})
//
// Built-in factories are StateEffect, EventsEffect, ResizeEffect and
// StoreEffect.
//
// # Registry
//
// The registry is write-once and read through typed keys:
//
//	var LoggerKey = playerx.NewKey[*slog.Logger]("logger")
//
//	playerx.Set(rt.Registry(), LoggerKey, logger)
//	logger, err := playerx.Get(ctx.Registry(), LoggerKey)
//
// WithRegistryLayer gives a context a fresh layer on top of the visible ones.
//
// # Packages
//
// Packages install once every registry name they depend on is set:
//
//	rt.Install(&playerx.Package{
//	    Name:         "hello-world",
//	    Dependencies: []string{"logger"},
//	    Install: func(ctx *playerx.ExecutionCtx) error {
//	        return nil
//	    },
//	})
//
// # Scheduling
//
// Task bodies run one at a time. Blocking runtime calls such as Wait,
// Timeout, WaitFor and Await let other tasks run while they wait. Forks
// start in the order they were made.
//
// # Extensions
//
// Extensions wrap forks and dispatches and observe task lifecycles:
//
//	rt := playerx.NewRuntime(
//	    playerx.WithExtension(extensions.NewLoggingExtension(logger)),
//	)
package playerx
