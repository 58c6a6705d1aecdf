package dag

import (
	"fmt"
	"sort"
)

// TopologicalOrder returns every node so that each comes after all of its
// dependencies. Among ready nodes the lowest ID goes first.
func (g *Graph) TopologicalOrder() ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.topoLocked()
}

func (g *Graph) topoLocked() ([]string, error) {
	indegree := make(map[string]int, len(g.nodes))
	var ready []string
	for id, n := range g.nodes {
		indegree[id] = len(n.deps)
		if len(n.deps) == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		var unlocked []string
		for depID := range g.nodes[id].dependents {
			indegree[depID]--
			if indegree[depID] == 0 {
				unlocked = append(unlocked, depID)
			}
		}
		if len(unlocked) > 0 {
			ready = append(ready, unlocked...)
			sort.Strings(ready)
		}
	}

	if len(order) != len(g.nodes) {
		return nil, fmt.Errorf("%w: %d of %d nodes are unreachable in topological order", ErrCycle, len(g.nodes)-len(order), len(g.nodes))
	}
	return order, nil
}

// Depths returns, per node, the length of the longest dependency chain
// leading to it. Entry points have depth 0.
func (g *Graph) Depths() (map[string]int, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	order, err := g.topoLocked()
	if err != nil {
		return nil, err
	}
	depth := make(map[string]int, len(order))
	for _, id := range order {
		d := 0
		for depID := range g.nodes[id].deps {
			d = max(d, depth[depID]+1)
		}
		depth[id] = d
	}
	return depth, nil
}

// Layers groups the nodes by depth. Nodes within one layer never depend on
// each other. Each layer is sorted.
func (g *Graph) Layers() ([][]string, error) {
	depth, err := g.Depths()
	if err != nil {
		return nil, err
	}
	var layers [][]string
	for id, d := range depth {
		for len(layers) <= d {
			layers = append(layers, nil)
		}
		layers[d] = append(layers[d], id)
	}
	for _, layer := range layers {
		sort.Strings(layer)
	}
	return layers, nil
}

// LatestDepths returns, per node, the deepest layer it can move to without
// delaying any dependent, given a plan of `layers` layers. A node whose
// latest depth equals its depth has no slack.
func (g *Graph) LatestDepths(layers int) (map[string]int, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	order, err := g.topoLocked()
	if err != nil {
		return nil, err
	}
	latest := make(map[string]int, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		n := g.nodes[order[i]]
		l := layers - 1
		for depID := range n.dependents {
			l = min(l, latest[depID]-1)
		}
		latest[n.id] = l
	}
	return latest, nil
}

// Descendants returns the number of nodes that transitively depend on id.
func (g *Graph) Descendants(id string) (int, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return 0, fmt.Errorf("node not found: %s", id)
	}
	return len(g.reachLocked(n)), nil
}

// DescendantCounts is Descendants for every node.
func (g *Graph) DescendantCounts() map[string]int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	counts := make(map[string]int, len(g.nodes))
	for id, n := range g.nodes {
		counts[id] = len(g.reachLocked(n))
	}
	return counts
}

func (g *Graph) reachLocked(n *node) map[string]struct{} {
	seen := make(map[string]struct{})
	stack := []*node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for id, d := range cur.dependents {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			stack = append(stack, d)
		}
	}
	return seen
}

// CriticalPath returns the heaviest dependency chain under weight, from an
// entry point to an exit point, and its total weight. Ties go to the chain
// through lower IDs.
func (g *Graph) CriticalPath(weight func(id string) float64) ([]string, float64, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	order, err := g.topoLocked()
	if err != nil {
		return nil, 0, err
	}
	if len(order) == 0 {
		return nil, 0, nil
	}

	dist := make(map[string]float64, len(order))
	prev := make(map[string]string, len(order))
	for _, id := range order {
		best, from := 0.0, ""
		for _, depID := range keys(g.nodes[id].deps) {
			if d := dist[depID]; from == "" || d > best {
				best, from = d, depID
			}
		}
		dist[id] = best + weight(id)
		if from != "" {
			prev[id] = from
		}
	}

	end := ""
	for _, id := range keys(g.nodes) {
		if end == "" || dist[id] > dist[end] {
			end = id
		}
	}

	var path []string
	for id := end; ; {
		path = append(path, id)
		p, ok := prev[id]
		if !ok {
			break
		}
		id = p
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, dist[end], nil
}
