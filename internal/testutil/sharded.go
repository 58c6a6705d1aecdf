package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/blockgrid/internal/execctx"
	"github.com/vk/blockgrid/internal/nodeid"
	"github.com/vk/blockgrid/internal/port"
	"github.com/vk/blockgrid/internal/unit"
	"github.com/zclconf/go-cty/cty"
)

// ShardedSum sums the numbers of the list delivered to "in" and emits the
// total on "out". It supports splitting: part i of n sums the elements at
// indexes congruent to i modulo n, and Join adds the partial sums.
type ShardedSum struct {
	id       string
	rec      *Recorder
	estimate unit.ResourceRequirements
	part     int
	parts    int
}

var (
	_ unit.Unit     = (*ShardedSum)(nil)
	_ unit.Splitter = (*ShardedSum)(nil)
)

// Sharded returns a splittable ShardedSum with the given estimate.
func Sharded(id string, rec *Recorder, estimate unit.ResourceRequirements) *ShardedSum {
	return &ShardedSum{id: id, rec: rec, estimate: estimate, parts: 1}
}

func (s *ShardedSum) ID() string { return s.id }

func (s *ShardedSum) Ports() ([]port.Port, []port.Port) {
	return []port.Port{port.Scalar("in", cty.List(cty.Number))},
		[]port.Port{port.Scalar("out", cty.Number)}
}

func (s *ShardedSum) EstimateResources() unit.ResourceRequirements { return s.estimate }

func (s *ShardedSum) Execute(_ context.Context, _ *execctx.Context, in unit.Inputs) (unit.Outputs, error) {
	s.rec.start(s.id)
	defer s.rec.end(s.id)
	list, err := in.Require("in")
	if err != nil {
		return nil, err
	}
	total := cty.Zero
	for i, el := range list.AsValueSlice() {
		if i%s.parts == s.part {
			total = total.Add(el)
		}
	}
	return unit.Single("out", total), nil
}

func (s *ShardedSum) SupportsSplit() bool { return s.parts == 1 }

func (s *ShardedSum) Split(parts int) ([]unit.Unit, error) {
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
		out[i] = &ShardedSum{
			id:       nodeid.Part(s.id, i),
			rec:      s.rec,
			estimate: share,
			part:     i,
			parts:    parts,
		}
	}
	return out, nil
}

func (s *ShardedSum) Join(parts []unit.Outputs) (unit.Outputs, error) {
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
