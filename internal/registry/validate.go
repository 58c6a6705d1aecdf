package registry

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/vk/blockgrid/internal/ctxlog"
	"github.com/vk/blockgrid/internal/execctx"
	"github.com/vk/blockgrid/internal/graph"
	"github.com/vk/blockgrid/internal/nodeid"
	"github.com/vk/blockgrid/internal/unit"
)

// Validate performs a strict parity check between the programs and the
// block library: every program must build from registered kinds, its
// graph must validate, and its declared capabilities must cover the
// effects of its units.
func (r *Registry) Validate(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, p := range r.Programs() {
		g, err := p.Graph(r)
		if err != nil {
			errs = append(errs, fmt.Sprintf("program '%s': %v", p.Name, err))
			continue
		}
		if err := g.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("program '%s': %v", p.Name, err))
			continue
		}

		needs := effects(g, "")
		for _, id := range slices.Sorted(maps.Keys(needs)) {
			for _, cp := range needs[id] {
				if !slices.Contains(p.Capabilities, cp) {
					errs = append(errs, fmt.Sprintf("program '%s': unit '%s' needs capability '%s' the program does not declare", p.Name, id, cp))
				}
			}
		}
		logger.Debug("Program validated.", "program", p.Name, "units", g.Len())
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// effects maps every effectful atomic unit of g, nested bodies included, to
// the capabilities it needs.
func effects(g *graph.Graph, prefix string) map[string][]execctx.Capability {
	out := make(map[string][]execctx.Capability)
	for _, n := range g.Nodes() {
		id := nodeid.Join(prefix, n.ID)
		if body := n.Body(); body != nil {
			maps.Copy(out, effects(body, id))
			continue
		}
		if caps := unit.Effects(n.Unit); len(caps) > 0 {
			out[id] = caps
		}
	}
	return out
}

// ErrUnknownProgram is returned for a program name nobody registered.
var ErrUnknownProgram = errors.New("unknown program")

// Lookup returns a program or ErrUnknownProgram listing the known names.
func (r *Registry) Lookup(name string) (*Program, error) {
	p, ok := r.Program(name)
	if ok {
		return p, nil
	}
	names := make([]string, 0, len(r.programs))
	for _, p := range r.Programs() {
		names = append(names, p.Name)
	}
	return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownProgram, name, strings.Join(names, ", "))
}
