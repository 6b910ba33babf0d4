package playerx

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/petermattis/goid"
)

// Package is a unit of functionality installed into a runtime. A package
// runs once every registry name in Dependencies is set in the root
// registry. Install runs on the package's own context, a child of the root,
// so the effects it composes live until the package is uninstalled or the
// runtime is disposed.
type Package struct {
	Name         string
	Dependencies []string
	Install      func(ctx *ExecutionCtx) error
}

type installedPackage struct {
	pkg *Package
	ctx *ExecutionCtx
}

// installBatch collects the failures of the packages queued by one Install
// call. Once the call returns the batch is closed; packages of a closed
// batch that are still pending may be installed by anyone, and their
// failures are logged.
type installBatch struct {
	closed   bool
	failures []error
}

type pendingPackage struct {
	pkg   *Package
	batch *installBatch
}

type packageManager struct {
	rt *Runtime

	mu        sync.Mutex
	pending   []*pendingPackage
	installed map[string]*installedPackage
	graph     *dependencyGraph

	// installing maps a goroutine to the package whose install body it is
	// running; draining counts the install loops on a goroutine's stack.
	installing map[int64]string
	draining   map[int64]int
}

func newPackageManager(rt *Runtime) *packageManager {
	return &packageManager{
		rt:         rt,
		installed:  make(map[string]*installedPackage),
		graph:      newDependencyGraph(),
		installing: make(map[int64]string),
		draining:   make(map[int64]int),
	}
}

// Install queues packages and runs every one whose dependencies are met.
// Installing a package may satisfy the dependencies of packages still
// pending, which then run too. The returned error joins the install errors
// of the packages passed to this call; packages that stay pending report
// later failures to the runtime logger.
func (rt *Runtime) Install(pkgs ...*Package) error {
	if rt.disposed.Load() {
		return ErrRuntimeDisposed
	}

	pm := rt.packages
	batch := &installBatch{}

	var err error
	rt.sched.exclusive(func() {
		pm.mu.Lock()
		for _, pkg := range pkgs {
			pm.pending = append(pm.pending, &pendingPackage{pkg: pkg, batch: batch})
		}
		pm.mu.Unlock()

		pm.drain(batch)

		pm.mu.Lock()
		err = errors.Join(batch.failures...)
		pm.mu.Unlock()
	})
	return err
}

// Uninstall aborts the context of an installed package, tearing down its
// effects and everything it forked. Packages that depend on a component the
// package registered are uninstalled first, furthest dependent first.
func (rt *Runtime) Uninstall(name string) bool {
	pm := rt.packages

	pm.mu.Lock()
	if _, ok := pm.installed[name]; !ok {
		pm.mu.Unlock()
		return false
	}
	names := pm.graph.dependents(name)
	slices.Reverse(names)
	names = append(names, name)

	removed := make([]*installedPackage, 0, len(names))
	for _, n := range names {
		if inst, ok := pm.installed[n]; ok {
			delete(pm.installed, n)
			pm.graph.remove(n)
			removed = append(removed, inst)
		}
	}
	pm.mu.Unlock()

	rt.sched.exclusive(func() {
		for _, inst := range removed {
			inst.ctx.signal.Abort(ErrPackageRemoved)
		}
	})
	return true
}

// Dependents returns the installed packages that depend, directly or
// transitively, on components registered by the named package.
func (rt *Runtime) Dependents(name string) []string {
	pm := rt.packages
	pm.mu.Lock()
	defer pm.mu.Unlock()

	return pm.graph.dependents(name)
}

// Pending returns the names of packages waiting for dependencies, sorted.
func (rt *Runtime) Pending() []string {
	pm := rt.packages
	pm.mu.Lock()
	defer pm.mu.Unlock()

	names := make([]string, 0, len(pm.pending))
	for _, p := range pm.pending {
		names = append(names, p.pkg.Name)
	}
	sort.Strings(names)
	return names
}

// Installed returns the names of installed packages, sorted.
func (rt *Runtime) Installed() []string {
	pm := rt.packages
	pm.mu.Lock()
	defer pm.mu.Unlock()

	names := make([]string, 0, len(pm.installed))
	for name := range pm.installed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MissingDependencies reports, for each pending package, the dependencies
// that are still unset.
func (rt *Runtime) MissingDependencies() error {
	pm := rt.packages
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var errs []error
	for _, p := range pm.pending {
		for _, dep := range p.pkg.Dependencies {
			if !rt.root.registry.Has(dep) {
				errs = append(errs, fmt.Errorf("%w: %s needs %s", ErrMissingDependency, p.pkg.Name, dep))
			}
		}
	}
	return errors.Join(errs...)
}

// registered is the root registry's write hook. A write made by an install
// body is attributed to its package and picked up by the install loop on
// the same goroutine once the body returns. Any other write installs the
// pending packages it unblocks.
func (pm *packageManager) registered(name string) {
	id := goid.Get()

	pm.mu.Lock()
	if pkg, ok := pm.installing[id]; ok && pm.rt.sched.holding() {
		pm.graph.provide(pkg, name)
	}
	if pm.draining[id] > 0 {
		pm.mu.Unlock()
		return
	}
	pm.mu.Unlock()

	pm.rt.sched.exclusive(func() {
		pm.drain(nil)
	})
}

// drain installs ready packages of batch, and ready packages of closed
// batches, until none is left. The final check and closing batch happen
// under one lock so that a concurrent registration either sees the batch
// closed or is seen by the check.
func (pm *packageManager) drain(batch *installBatch) {
	id := goid.Get()

	pm.mu.Lock()
	pm.draining[id]++
	pm.mu.Unlock()

	for {
		pm.mu.Lock()
		p := pm.nextReady(batch)
		if p == nil {
			if batch != nil {
				batch.closed = true
			}
			if pm.draining[id]--; pm.draining[id] == 0 {
				delete(pm.draining, id)
			}
			pm.mu.Unlock()
			return
		}
		pm.mu.Unlock()

		pm.install(p)
	}
}

// nextReady removes and returns the first pending package drain may install
// whose dependencies are all set. Callers hold pm.mu.
func (pm *packageManager) nextReady(batch *installBatch) *pendingPackage {
	for i, p := range pm.pending {
		if p.batch != batch && !p.batch.closed {
			continue
		}
		if pm.ready(p.pkg) {
			pm.pending = append(pm.pending[:i:i], pm.pending[i+1:]...)
			return p
		}
	}
	return nil
}

func (pm *packageManager) ready(pkg *Package) bool {
	for _, dep := range pkg.Dependencies {
		if !pm.rt.root.registry.Has(dep) {
			return false
		}
	}
	return true
}

func (pm *packageManager) install(p *pendingPackage) {
	pkg := p.pkg
	ctx := pm.rt.root.child("package:"+pkg.Name, pkg.Name, false)
	id := goid.Get()

	pm.mu.Lock()
	pm.installed[pkg.Name] = &installedPackage{pkg: pkg, ctx: ctx}
	pm.graph.link(pkg)
	outer, nested := pm.installing[id]
	pm.installing[id] = pkg.Name
	pm.mu.Unlock()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %w", recoveredError(r))
			}
		}()
		if pkg.Install == nil {
			return nil
		}
		return pkg.Install(ctx)
	}()

	pm.mu.Lock()
	if nested {
		pm.installing[id] = outer
	} else {
		delete(pm.installing, id)
	}
	pm.mu.Unlock()

	if err == nil {
		return
	}

	err = fmt.Errorf("installing package %s: %w", pkg.Name, err)
	ctx.signal.Abort(err)

	pm.mu.Lock()
	delete(pm.installed, pkg.Name)
	pm.graph.remove(pkg.Name)
	closed := p.batch.closed
	if !closed {
		p.batch.failures = append(p.batch.failures, err)
	}
	pm.mu.Unlock()

	if closed {
		pm.rt.logger.Error("package install failed", "package", pkg.Name, "error", err.Error())
	}
}
