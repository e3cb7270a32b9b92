package taskgraph

type visitState int

const (
	unvisited visitState = iota
	visiting
	visited
)

// node is a task in a resolved plan
type node struct {
	task       *Task
	pending    int
	dependents []*node
}

// planner resolves a task and its prerequisites with a depth-first traversal
type planner struct {
	registry *Registry
	state    map[string]visitState
	stack    []string
	order    []*Task
}

func newPlanner(r *Registry) *planner {
	return &planner{
		registry: r,
		state:    make(map[string]visitState),
	}
}

func (p *planner) visit(name, requiredBy string) error {
	switch p.state[name] {
	case visited:
		return nil
	case visiting:
		return &CyclicDependencyError{Path: p.cyclePath(name)}
	}

	task, ok := p.registry.Lookup(name)
	if !ok {
		return &UnknownTaskError{Name: name, RequiredBy: requiredBy}
	}

	p.state[name] = visiting
	p.stack = append(p.stack, name)

	for _, dep := range task.Deps {
		if err := p.visit(dep, name); err != nil {
			return err
		}
	}

	p.stack = p.stack[:len(p.stack)-1]
	p.state[name] = visited
	p.order = append(p.order, task)
	return nil
}

func (p *planner) cyclePath(name string) []string {
	start := 0
	for idx, item := range p.stack {
		if item == name {
			start = idx
			break
		}
	}

	path := make([]string, 0, len(p.stack)-start+1)
	path = append(path, p.stack[start:]...)
	return append(path, name)
}

// plan returns the nodes needed to run name in a topological order. Prerequisites are listed before
// their dependents and every task appears once.
func plan(r *Registry, name string) ([]*node, error) {
	p := newPlanner(r)
	if err := p.visit(name, ""); err != nil {
		return nil, err
	}

	nodes := make([]*node, len(p.order))
	byName := make(map[string]*node, len(p.order))
	for idx, task := range p.order {
		n := &node{task: task}
		nodes[idx] = n
		byName[task.Name] = n
	}

	for _, n := range nodes {
		seen := make(map[string]bool, len(n.task.Deps))
		for _, dep := range n.task.Deps {
			// listing a prerequisite twice must not count it twice
			if seen[dep] {
				continue
			}
			seen[dep] = true

			depNode := byName[dep]
			depNode.dependents = append(depNode.dependents, n)
			n.pending++
		}
	}

	return nodes, nil
}
