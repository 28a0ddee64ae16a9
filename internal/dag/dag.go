package dag

import (
	"fmt"

	"github.com/gammazero/toposort"
)

// dependencyIndex maps a tracked-object key to the task number that
// produces it. A nil producer pointer with ok=true records a pre-existing
// object (spec.md §3, "DependencyIndex").
type dependencyIndex struct {
	producer map[string]*int
}

func newDependencyIndex() *dependencyIndex {
	return &dependencyIndex{producer: make(map[string]*int)}
}

func (d *dependencyIndex) has(key string) bool {
	_, ok := d.producer[key]
	return ok
}

func (d *dependencyIndex) lookup(key string) (taskNo int, preexisting bool, ok bool) {
	p, found := d.producer[key]
	if !found {
		return 0, false, false
	}
	if p == nil {
		return 0, true, true
	}
	return *p, false, true
}

func (d *dependencyIndex) link(key string, taskNo int) {
	v := taskNo
	d.producer[key] = &v
}

func (d *dependencyIndex) linkPreexisting(key string) {
	d.producer[key] = nil
}

func (d *dependencyIndex) keys() []string {
	keys := make([]string, 0, len(d.producer))
	for k := range d.producer {
		keys = append(keys, k)
	}
	return keys
}

// DAG is the directed acyclic graph of registered tasks. Nodes are task
// numbers; edge a->b exists iff some dependency of b is a target of a, or
// b explicitly names a as an upstream task (task-alias). The DAG is frozen
// once the workflow starts running -- per spec.md §5, readers then need no
// lock.
type DAG struct {
	edges    map[int][]int // producer -> consumers
	parents  map[int][]int // consumer -> producers
	nodes    map[int]bool
}

func newDAG() *DAG {
	return &DAG{
		edges:   make(map[int][]int),
		parents: make(map[int][]int),
		nodes:   make(map[int]bool),
	}
}

func (g *DAG) addNode(taskNo int) {
	g.nodes[taskNo] = true
	if _, ok := g.parents[taskNo]; !ok {
		g.parents[taskNo] = nil
	}
}

func (g *DAG) addEdge(producer, consumer int) {
	g.edges[producer] = append(g.edges[producer], consumer)
	g.parents[consumer] = append(g.parents[consumer], producer)
}

// removeNode undoes a partially-registered task -- used when AddTask must
// roll back after discovering an unknown dependency (spec.md §7).
func (g *DAG) removeNode(taskNo int) {
	delete(g.nodes, taskNo)
	delete(g.parents, taskNo)
	for producer, consumers := range g.edges {
		filtered := consumers[:0]
		for _, c := range consumers {
			if c != taskNo {
				filtered = append(filtered, c)
			}
		}
		g.edges[producer] = filtered
	}
}

// Parents returns the task numbers whose targets this task depends on,
// plus any explicit upstream-task aliases.
func (g *DAG) Parents(taskNo int) []int {
	return append([]int(nil), g.parents[taskNo]...)
}

// TopologicalOrder returns task numbers sorted leaves-first (producers
// before consumers), using gammazero/toposort.
func (g *DAG) TopologicalOrder() ([]int, error) {
	var edges []toposort.Edge
	for node := range g.nodes {
		edges = append(edges, toposort.Edge{nil, node})
	}
	for producer, consumers := range g.edges {
		for _, consumer := range consumers {
			edges = append(edges, toposort.Edge{producer, consumer})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("dependency graph contains a cycle: %w", err)
	}

	order := make([]int, 0, len(g.nodes))
	seen := make(map[int]bool)
	for _, v := range sorted {
		if v == nil {
			continue
		}
		n := v.(int)
		if !seen[n] {
			seen[n] = true
			order = append(order, n)
		}
	}
	return order, nil
}

// AllParents returns the transitive closure of ancestors of taskNo,
// including taskNo itself. Nothing in this module calls it: the UntilTask
// option is loaded into config.Vars, but no run is restricted by it.
func (g *DAG) AllParents(taskNo int) map[int]bool {
	seen := make(map[int]bool)
	queue := []int{taskNo}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if seen[n] {
			continue
		}
		seen[n] = true
		queue = append(queue, g.parents[n]...)
	}
	return seen
}
