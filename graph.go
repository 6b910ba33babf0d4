package playerx

// dependencyGraph tracks which installed package registered which component
// and which packages depend on it. It is guarded by the package manager's
// mutex.
type dependencyGraph struct {
	providers  map[string]string
	downstream map[string][]string
}

func newDependencyGraph() *dependencyGraph {
	return &dependencyGraph{
		providers:  make(map[string]string),
		downstream: make(map[string][]string),
	}
}

// provide records that pkg registered component while installing.
func (g *dependencyGraph) provide(pkg, component string) {
	g.providers[component] = pkg
}

// link adds an edge from every provider of pkg's dependencies to pkg.
// Dependencies set outside any package install have no provider.
func (g *dependencyGraph) link(pkg *Package) {
	for _, dep := range pkg.Dependencies {
		provider, ok := g.providers[dep]
		if !ok || provider == pkg.Name {
			continue
		}
		g.downstream[provider] = appendUnique(g.downstream[provider], pkg.Name)
	}
}

// dependents returns every package that transitively depends on start,
// nearest first.
func (g *dependencyGraph) dependents(start string) []string {
	queue := []string{start}
	visited := map[string]bool{start: true}

	var found []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, dep := range g.downstream[current] {
			if visited[dep] {
				continue
			}
			visited[dep] = true
			found = append(found, dep)
			queue = append(queue, dep)
		}
	}
	return found
}

// remove drops pkg and its edges. The components it registered stay
// attributed to it; the registry never forgets a name.
func (g *dependencyGraph) remove(pkg string) {
	delete(g.downstream, pkg)
	for provider, deps := range g.downstream {
		deps = removeElement(deps, pkg)
		if len(deps) == 0 {
			delete(g.downstream, provider)
			continue
		}
		g.downstream[provider] = deps
	}
}

func appendUnique[T comparable](slice []T, item T) []T {
	for _, existing := range slice {
		if existing == item {
			return slice
		}
	}
	return append(slice, item)
}

func removeElement[T comparable](slice []T, item T) []T {
	for i, existing := range slice {
		if existing == item {
			return append(slice[:i:i], slice[i+1:]...)
		}
	}
	return slice
}
