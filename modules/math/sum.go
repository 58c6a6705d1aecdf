package math

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/blockgrid/internal/execctx"
	"github.com/vk/blockgrid/internal/nodeid"
	"github.com/vk/blockgrid/internal/port"
	"github.com/vk/blockgrid/internal/registry"
	"github.com/vk/blockgrid/internal/unit"
	"github.com/zclconf/go-cty/cty"
)

// Sum adds the numbers of the list delivered to "in". Part i of n sums the
// elements whose index is congruent to i modulo n.
type Sum struct {
	id       string
	estimate unit.ResourceRequirements
	part     int
	parts    int
}

var (
	_ unit.Unit     = (*Sum)(nil)
	_ unit.Splitter = (*Sum)(nil)
)

// newSum reads the optional "cpu" and "memory_bytes" estimate arguments so
// programs can make a sum large enough for the planner to split.
func newSum(id string, args registry.Args) (unit.Unit, error) {
	est := unit.DefaultRequirements()
	cpu, err := args.Float("cpu", est.CPU)
	if err != nil {
		return nil, err
	}
	mem, err := args.Int("memory_bytes", int(est.MemoryBytes))
	if err != nil {
		return nil, err
	}
	est.CPU = cpu
	est.MemoryBytes = int64(mem)
	return &Sum{id: id, estimate: est, parts: 1}, nil
}

func (s *Sum) ID() string { return s.id }

func (s *Sum) Ports() ([]port.Port, []port.Port) {
	return []port.Port{port.Scalar("in", cty.List(cty.Number))},
		[]port.Port{port.Scalar("out", cty.Number)}
}

func (s *Sum) EstimateResources() unit.ResourceRequirements { return s.estimate }

func (s *Sum) CacheIdentity() string {
	return fmt.Sprintf("sum:%s:%d/%d", s.id, s.part, s.parts)
}

func (s *Sum) Execute(ctx context.Context, _ *execctx.Context, in unit.Inputs) (unit.Outputs, error) {
	list, err := in.Require("in")
	if err != nil {
		return nil, err
	}
	total := cty.Zero
	for i, el := range list.AsValueSlice() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if el.IsNull() {
			return nil, fmt.Errorf("element %d is null", i)
		}
		if i%s.parts == s.part {
			total = total.Add(el)
		}
	}
	return unit.Single("out", total), nil
}

// SupportsSplit is false for parts so a split sum is never split again.
func (s *Sum) SupportsSplit() bool { return s.parts == 1 }

func (s *Sum) Split(parts int) ([]unit.Unit, error) {
	if parts < 1 {
		return nil, fmt.Errorf("cannot split into %d parts", parts)
	}
	share := unit.ResourceRequirements{
		CPU:         s.estimate.CPU / float64(parts),
		MemoryBytes: s.estimate.MemoryBytes / int64(parts),
		IOOps:       s.estimate.IOOps / int64(parts),
		Duration:    s.estimate.Duration / time.Duration(parts),
	}
	out := make([]unit.Unit, parts)
	for i := range out {
		out[i] = &Sum{id: nodeid.Part(s.id, i), estimate: share, part: i, parts: parts}
	}
	return out, nil
}

func (s *Sum) Join(parts []unit.Outputs) (unit.Outputs, error) {
	total := cty.Zero
	for i, p := range parts {
		vals := p["out"]
		if len(vals) != 1 {
			return nil, fmt.Errorf("part %d emitted %d values on 'out'", i, len(vals))
		}
		total = total.Add(vals[0].Data)
	}
	return unit.Single("out", total), nil
}
