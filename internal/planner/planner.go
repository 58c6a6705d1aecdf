package planner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/vk/blockgrid/internal/ctxlog"
	"github.com/vk/blockgrid/internal/dag"
	"github.com/vk/blockgrid/internal/graph"
	"github.com/vk/blockgrid/internal/nodeid"
	"github.com/vk/blockgrid/internal/unit"
)

const epsilon = 1e-9

// Planner builds execution plans. It is stateless and safe for concurrent use.
type Planner struct {
	cfg Config
}

// New returns a Planner for cfg.
func New(cfg Config) *Planner {
	if cfg.MaxSplitParts <= 0 {
		cfg.MaxSplitParts = DefaultConfig().MaxSplitParts
	}
	return &Planner{cfg: cfg}
}

// Config returns the planner's configuration.
func (p *Planner) Config() Config { return p.cfg }

// Plan expands g and builds its execution plan. g is expected to be valid;
// Plan only re-checks what it depends on: acyclicity and the budget.
func (p *Planner) Plan(ctx context.Context, g *graph.Graph) (*Plan, error) {
	logger := ctxlog.FromContext(ctx)

	expanded, err := g.Expand()
	if err != nil {
		return nil, err
	}
	nodeDeps := expanded.DependencyGraph()
	if err := nodeDeps.DetectCycles(); err != nil {
		pErr := &PlanningError{Reason: ErrCyclicDependency, Detail: err.Error()}
		var cycleErr *dag.CycleError
		if errors.As(err, &cycleErr) {
			pErr.Unit = cycleErr.Path[0]
		}
		return nil, pErr
	}
	layers, err := nodeDeps.Layers()
	if err != nil {
		return nil, err
	}

	b := &builder{
		cfg:       p.cfg,
		budget:    p.cfg.Limits.Requirements(),
		graph:     expanded,
		nodeDeps:  nodeDeps,
		layers:    len(layers),
		tasks:     make(map[string]*Task),
		nodeTasks: make(map[string][]string),
	}
	if err := b.buildTasks(); err != nil {
		return nil, err
	}
	if p.cfg.Level == Aggressive {
		if err := b.splitAboveTarget(); err != nil {
			return nil, err
		}
	}
	if err := b.link(); err != nil {
		return nil, err
	}

	var stages []stage
	switch p.cfg.Level {
	case None:
		stages, err = b.layered()
	case Basic:
		stages, err = b.layered()
		stages = b.merge(stages)
	default:
		stages = b.merge(b.balance())
	}
	if err != nil {
		return nil, err
	}

	plan := b.finish(stages)
	logger.Debug("Execution plan built.",
		"level", p.cfg.Level.String(),
		"stages", len(plan.Stages),
		"tasks", len(plan.Tasks),
		"estimate", plan.Estimate.String(),
	)
	return plan, nil
}

type stage struct {
	tasks []string
	cost  unit.ResourceRequirements
}

type builder struct {
	cfg      Config
	budget   unit.ResourceRequirements
	graph    *graph.Graph
	nodeDeps *dag.Graph
	layers   int

	tasks     map[string]*Task
	nodeTasks map[string][]string
	deps      *dag.Graph
	rank      map[string]int
}

func (b *builder) buildTasks() error {
	for _, n := range b.graph.Nodes() {
		cost := n.Estimate()
		if b.cfg.Limits.Fits(cost, 1) {
			b.addWhole(n, cost)
			continue
		}
		if !n.Splittable() {
			return &PlanningError{
				Reason: ErrUnsatisfiableResourceBudget,
				Unit:   n.ID,
				Detail: fmt.Sprintf("estimate %s exceeds stage budget %s", cost, b.budget),
			}
		}
		ok, err := b.split(n, int(math.Ceil(cost.Weight(b.budget)-epsilon)), b.budget)
		if err != nil {
			return err
		}
		if !ok {
			return &PlanningError{
				Reason: ErrUnsatisfiableResourceBudget,
				Unit:   n.ID,
				Detail: fmt.Sprintf("no split into at most %d parts fits stage budget %s", b.cfg.MaxSplitParts, b.budget),
			}
		}
	}
	return nil
}

func (b *builder) addWhole(n *graph.Node, cost unit.ResourceRequirements) {
	b.tasks[n.ID] = &Task{ID: n.ID, Node: n, Unit: n.Unit, Cost: cost}
	b.nodeTasks[n.ID] = []string{n.ID}
}

// split replaces n's tasks with the smallest number of parts, starting from
// parts, whose every part fits within limit. It reports false when no
// split up to MaxSplitParts does.
func (b *builder) split(n *graph.Node, parts int, limit unit.ResourceRequirements) (bool, error) {
	s := n.Unit.(unit.Splitter)
	for parts = max(parts, 2); parts <= b.cfg.MaxSplitParts; parts++ {
		units, err := s.Split(parts)
		if err != nil {
			return false, fmt.Errorf("splitting unit '%s' into %d parts: %w", n.ID, parts, err)
		}
		if len(units) != parts {
			return false, fmt.Errorf("splitting unit '%s': asked for %d parts, got %d", n.ID, parts, len(units))
		}
		if !allFit(units, limit) {
			continue
		}

		for _, id := range b.nodeTasks[n.ID] {
			delete(b.tasks, id)
		}
		ids := make([]string, parts)
		for i, u := range units {
			ids[i] = nodeid.Part(n.ID, i)
			b.tasks[ids[i]] = &Task{
				ID:    ids[i],
				Node:  n,
				Unit:  u,
				Part:  i,
				Parts: parts,
				Cost:  u.EstimateResources(),
			}
		}
		b.nodeTasks[n.ID] = ids
		return true, nil
	}
	return false, nil
}

func allFit(units []unit.Unit, limit unit.ResourceRequirements) bool {
	for _, u := range units {
		if u.EstimateResources().Weight(limit) > 1+epsilon {
			return false
		}
	}
	return true
}

// splitAboveTarget speculatively splits whole splittable tasks that are
// heavier than the per-stage target. A node that cannot be split to fit
// the target stays whole.
func (b *builder) splitAboveTarget() error {
	target := b.target()
	if target <= 0 {
		return nil
	}
	targetBudget := b.scaledBudget(target)
	for _, n := range b.graph.Nodes() {
		if !n.Splittable() || len(b.nodeTasks[n.ID]) != 1 {
			continue
		}
		w := b.tasks[n.ID].Cost.Weight(b.budget)
		if w <= target+epsilon {
			continue
		}
		if _, err := b.split(n, int(math.Ceil(w/target-epsilon)), targetBudget); err != nil {
			return err
		}
	}
	return nil
}

// target is the even share of the total weight per layer.
func (b *builder) target() float64 {
	if b.layers == 0 {
		return 0
	}
	total := 0.0
	for _, t := range b.tasks {
		total += t.Cost.Weight(b.budget)
	}
	return total / float64(b.layers)
}

func (b *builder) scaledBudget(f float64) unit.ResourceRequirements {
	return unit.ResourceRequirements{
		CPU:         b.budget.CPU * f,
		MemoryBytes: int64(float64(b.budget.MemoryBytes) * f),
		IOOps:       int64(float64(b.budget.IOOps) * f),
	}
}

// link derives the task-level dependency graph: every task of a node
// depends on every task of each of the node's dependencies.
func (b *builder) link() error {
	b.deps = dag.New()
	for _, ids := range b.nodeTasks {
		for _, id := range ids {
			b.deps.AddNode(id)
		}
	}
	for _, nodeID := range b.nodeDeps.Nodes() {
		deps, err := b.nodeDeps.Dependencies(nodeID)
		if err != nil {
			return err
		}
		for _, dep := range deps {
			for _, from := range b.nodeTasks[dep] {
				for _, to := range b.nodeTasks[nodeID] {
					if err := b.deps.AddEdge(from, to); err != nil {
						return err
					}
				}
			}
		}
	}
	b.rank = b.deps.DescendantCounts()
	return nil
}

// before is the tie-break order: more transitive dependents first, then
// the lower id.
func (b *builder) before(x, y string) int {
	if b.rank[x] != b.rank[y] {
		return b.rank[y] - b.rank[x]
	}
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func (b *builder) fits(s stage, id string) bool {
	return b.cfg.Limits.Fits(s.cost.Add(b.tasks[id].Cost), len(s.tasks)+1)
}

func (b *builder) push(s *stage, id string) {
	s.tasks = append(s.tasks, id)
	s.cost = s.cost.Add(b.tasks[id].Cost)
}

// layered returns one stage per dependency layer, subdividing layers that
// exceed the budget first-fit in tie-break order.
func (b *builder) layered() ([]stage, error) {
	layers, err := b.deps.Layers()
	if err != nil {
		return nil, err
	}
	var stages []stage
	for _, layer := range layers {
		slices.SortFunc(layer, b.before)
		var bins []stage
	next:
		for _, id := range layer {
			for i := range bins {
				if b.fits(bins[i], id) {
					b.push(&bins[i], id)
					continue next
				}
			}
			var s stage
			b.push(&s, id)
			bins = append(bins, s)
		}
		stages = append(stages, bins...)
	}
	return stages, nil
}

// merge folds each stage into its predecessor when the two fit the budget
// together and nothing in it depends on the predecessor.
func (b *builder) merge(stages []stage) []stage {
	var out []stage
	for _, s := range stages {
		if len(out) > 0 && b.mergeable(out[len(out)-1], s) {
			last := &out[len(out)-1]
			for _, id := range s.tasks {
				b.push(last, id)
			}
			slices.SortFunc(last.tasks, b.before)
			continue
		}
		out = append(out, s)
	}
	return out
}

func (b *builder) mergeable(prev, next stage) bool {
	if !b.cfg.Limits.Fits(prev.cost.Add(next.cost), len(prev.tasks)+len(next.tasks)) {
		return false
	}
	for _, id := range next.tasks {
		for _, dep := range prev.tasks {
			if b.deps.DependsOn(id, dep) {
				return false
			}
		}
	}
	return true
}

// balance builds stages by list scheduling. At each stage the ready tasks
// without slack are placed first, then the others by decreasing weight
// while the stage stays under the per-stage target.
func (b *builder) balance() []stage {
	latest, _ := b.deps.LatestDepths(b.layers)
	target := b.target()

	placed := make(map[string]bool, len(b.tasks))
	ids := b.deps.Nodes()
	var stages []stage
	for k := 0; len(placed) < len(ids); k++ {
		var urgent, rest []string
		for _, id := range ids {
			if placed[id] || !b.ready(id, placed) {
				continue
			}
			if latest[id] <= k {
				urgent = append(urgent, id)
			} else {
				rest = append(rest, id)
			}
		}
		slices.SortFunc(urgent, b.before)
		slices.SortFunc(rest, func(x, y string) int {
			wx, wy := b.weight(x), b.weight(y)
			switch {
			case wx > wy+epsilon:
				return -1
			case wy > wx+epsilon:
				return 1
			}
			return b.before(x, y)
		})

		var s stage
		weight := 0.0
		for _, id := range urgent {
			if b.fits(s, id) {
				b.push(&s, id)
				weight += b.weight(id)
			}
		}
		for _, id := range rest {
			w := b.weight(id)
			if len(s.tasks) > 0 && weight+w > target+epsilon {
				continue
			}
			if b.fits(s, id) {
				b.push(&s, id)
				weight += w
			}
		}

		for _, id := range s.tasks {
			placed[id] = true
		}
		slices.SortFunc(s.tasks, b.before)
		stages = append(stages, s)
	}
	return stages
}

func (b *builder) ready(id string, placed map[string]bool) bool {
	deps, _ := b.deps.Dependencies(id)
	for _, dep := range deps {
		if !placed[dep] {
			return false
		}
	}
	return true
}

func (b *builder) weight(id string) float64 {
	return b.tasks[id].Cost.Weight(b.budget)
}

func (b *builder) finish(stages []stage) *Plan {
	plan := &Plan{
		Level:       b.cfg.Level,
		Stages:      make([]Stage, len(stages)),
		Tasks:       b.tasks,
		Graph:       b.graph,
		Deps:        b.deps,
		NodeTasks:   b.nodeTasks,
		EntryPoints: b.deps.EntryPoints(),
		ExitPoints:  b.deps.ExitPoints(),
	}
	for i, s := range stages {
		plan.Stages[i] = Stage{Index: i, Tasks: s.tasks, Cost: s.cost}
		plan.Estimate += s.cost.Duration
	}
	plan.CriticalPath, _, _ = b.deps.CriticalPath(func(id string) float64 {
		return float64(b.tasks[id].Cost.Duration) / float64(time.Millisecond)
	})
	return plan
}
