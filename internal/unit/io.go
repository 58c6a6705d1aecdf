package unit

import (
	"fmt"
	"sort"

	"github.com/vk/blockgrid/internal/port"
	"github.com/zclconf/go-cty/cty"
)

// Inputs are the values gathered for a unit's input ports.
type Inputs struct {
	Values map[string][]port.Value
	// SkippedSources lists, per fan-in port, the upstream units whose slot
	// was skipped because they failed or were skipped themselves.
	SkippedSources map[string][]string
}

// NewInputs returns empty Inputs ready to be filled.
func NewInputs() Inputs {
	return Inputs{
		Values:         make(map[string][]port.Value),
		SkippedSources: make(map[string][]string),
	}
}

// All returns every value delivered to the port, in delivery order.
func (in Inputs) All(name string) []port.Value {
	return in.Values[name]
}

// Get returns the data of the first value delivered to the port.
func (in Inputs) Get(name string) (cty.Value, bool) {
	vals := in.Values[name]
	if len(vals) == 0 {
		return cty.NilVal, false
	}
	return vals[0].Data, true
}

// Require is Get that fails when the port received nothing.
func (in Inputs) Require(name string) (cty.Value, error) {
	v, ok := in.Get(name)
	if !ok {
		return cty.NilVal, fmt.Errorf("input '%s' received no value", name)
	}
	return v, nil
}

// Skipped returns the sources skipped on the port.
func (in Inputs) Skipped(name string) []string {
	return in.SkippedSources[name]
}

// Ports returns the names of ports that received values, sorted.
func (in Inputs) Ports() []string {
	names := make([]string, 0, len(in.Values))
	for name := range in.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Outputs maps output port names to the values a unit emitted on them.
type Outputs map[string][]port.Value

// Set replaces the values of an output port.
func (o Outputs) Set(name string, values ...port.Value) Outputs {
	o[name] = values
	return o
}

// Ports returns the output port names, sorted.
func (o Outputs) Ports() []string {
	names := make([]string, 0, len(o))
	for name := range o {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Emit wraps each datum into a value of the given kind.
func Emit(kind port.Kind, data ...cty.Value) []port.Value {
	out := make([]port.Value, len(data))
	for i, d := range data {
		out[i] = port.New(kind, d)
	}
	return out
}

// Single builds Outputs holding one scalar value on one port.
func Single(name string, data cty.Value) Outputs {
	return Outputs{name: {port.ScalarValue(data)}}
}
