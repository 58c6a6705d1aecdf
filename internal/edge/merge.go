package edge

import (
	"slices"
	"sort"

	"github.com/vk/blockgrid/internal/port"
)

// Inbound is what one upstream edge delivered to a fan-in port.
type Inbound struct {
	Source string
	Values []port.Value
}

// Merge combines the values of several inbound edges feeding one port
// according to the port's merge policy. The result is deterministic for a
// given input.
func Merge(policy port.MergePolicy, priority []string, inbound []Inbound) []port.Value {
	if len(inbound) == 1 {
		return inbound[0].Values
	}

	sources := slices.Clone(inbound)
	sort.SliceStable(sources, func(i, j int) bool { return sources[i].Source < sources[j].Source })

	switch policy {
	case port.MergePriority:
		rank := func(src string) int {
			if i := slices.Index(priority, src); i >= 0 {
				return i
			}
			return len(priority)
		}
		sort.SliceStable(sources, func(i, j int) bool { return rank(sources[i].Source) < rank(sources[j].Source) })
		var out []port.Value
		for _, s := range sources {
			out = append(out, s.Values...)
		}
		return out

	case port.MergeRoundRobin:
		var out []port.Value
		for i := 0; ; i++ {
			progressed := false
			for _, s := range sources {
				if i < len(s.Values) {
					out = append(out, s.Values[i])
					progressed = true
				}
			}
			if !progressed {
				return out
			}
		}

	default:
		var out []port.Value
		for _, s := range sources {
			out = append(out, s.Values...)
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].Arrival < out[j].Arrival })
		return out
	}
}
