// Package programs registers the demo graphs shipped with the CLI.
package programs

import (
	"github.com/vk/blockgrid/internal/edge"
	"github.com/vk/blockgrid/internal/execctx"
	"github.com/vk/blockgrid/internal/graph"
	"github.com/vk/blockgrid/internal/port"
	"github.com/vk/blockgrid/internal/registry"
	"github.com/vk/blockgrid/internal/unit"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the registry.Module interface for this package. It
// depends on the unit kinds of the math, text, print and env_vars modules.
type Module struct{}

// Register registers every demo program.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterProgram(Diamond)
	r.RegisterProgram(StreamWindow)
	r.RegisterProgram(Sqrt)
	r.RegisterProgram(EnvReport)
	r.RegisterProgram(FanIn)
	r.RegisterProgram(SplitSum)
}

// Diamond computes x*2 and x+x side by side and adds the two branches.
var Diamond = &registry.Program{
	Name:         "diamond",
	Description:  "Two parallel branches over one source joined by an add.",
	Variables:    map[string]cty.Value{"x": cty.NumberIntVal(3)},
	Capabilities: []execctx.Capability{execctx.StdoutWrite},
	Build: func(b *registry.Builder) {
		b.Add("variable", "x", registry.Args{"name": cty.StringVal("x"), "type": cty.StringVal("number")}).
			Add("const", "two", registry.Args{"value": cty.NumberIntVal(2)}).
			Add("multiply", "left", nil).
			Add("add", "right", nil).
			Add("add", "join", nil).
			Add("print", "result", registry.Args{"label": cty.StringVal("diamond")}).
			Connect("x", "out", "left", "a").
			Connect("two", "out", "left", "b").
			Connect("x", "out", "right", "a").
			Connect("x", "out", "right", "b").
			Connect("left", "out", "join", "a").
			Connect("right", "out", "join", "b").
			Connect("join", "out", "result", "value")
	},
}

// StreamWindow streams a range through a sliding window and an even
// filter.
var StreamWindow = &registry.Program{
	Name:         "stream_window",
	Description:  "A range streamed through a sliding window and a filter.",
	Capabilities: []execctx.Capability{execctx.StdoutWrite},
	Build: func(b *registry.Builder) {
		window := edge.DefaultPolicy().WithAdapter(edge.Window(3, 1))
		evens := edge.DefaultPolicy().WithAdapter(edge.Filter("even"))
		evens.Backpressure = edge.DropOldest
		doubled := edge.DefaultPolicy().WithAdapter(edge.Map("double"))

		stream := registry.Args{"stream": cty.True}
		b.Add("range", "numbers", registry.Args{"from": cty.NumberIntVal(1), "to": cty.NumberIntVal(8)}).
			Add("print", "windows", with(stream, "label", cty.StringVal("window"))).
			Add("print", "evens", with(stream, "label", cty.StringVal("even"))).
			Add("print", "doubled", with(stream, "label", cty.StringVal("double"))).
			ConnectWith("numbers", "out", "windows", "value", window).
			ConnectWith("numbers", "out", "evens", "value", evens).
			ConnectWith("numbers", "out", "doubled", "value", doubled)
	},
}

// Sqrt approximates sqrt(target) with Newton iterations until two
// successive guesses agree to within 1e-9.
var Sqrt = &registry.Program{
	Name:         "sqrt",
	Description:  "Newton's method as an iterative block.",
	Variables:    map[string]cty.Value{"target": cty.NumberIntVal(2)},
	Capabilities: []execctx.Capability{execctx.StdoutWrite},
	Build: func(b *registry.Builder) {
		body := b.Body().Add("newton_step", "step", nil)
		b.Add("variable", "target", registry.Args{"name": cty.StringVal("target"), "type": cty.StringVal("number")}).
			Add("const", "guess", registry.Args{"value": cty.NumberIntVal(1)}).
			Iterative("newton", body, graph.IterativeBlock{
				Inputs: []graph.Exposure{
					graph.Expose(port.Scalar("x", cty.Number), "step", "x"),
					graph.Expose(port.Scalar("target", cty.Number), "step", "target"),
				},
				Outputs: []graph.Exposure{
					graph.Expose(port.Scalar("x", cty.Number), "step", "x"),
				},
				Feedback:      map[string]string{"x": "x"},
				Termination:   Converged("x", 1e-9),
				MaxIterations: 50,
			}).
			Add("print", "result", registry.Args{"label": cty.StringVal("sqrt")}).
			Connect("guess", "out", "newton", "x").
			Connect("target", "out", "newton", "target").
			Connect("newton", "x", "result", "value")
	},
}

// EnvReport prints the environment variables starting with BLOCKGRID_.
var EnvReport = &registry.Program{
	Name:         "env_report",
	Description:  "Prints environment variables matching a prefix.",
	Capabilities: []execctx.Capability{execctx.EnvRead, execctx.StdoutWrite},
	Build: func(b *registry.Builder) {
		b.Add("env_vars", "env", registry.Args{"prefix": cty.StringVal("BLOCKGRID_"), "strip_prefix": cty.True}).
			Add("print", "report", registry.Args{"label": cty.StringVal("env")}).
			Connect("env", "all", "report", "value")
	},
}

// FanIn joins several string sources in priority order. The "ratio"
// branch divides by zero under a best-effort policy, so concat sees it as
// a skipped source and the run ends partially failed.
var FanIn = &registry.Program{
	Name:         "fan_in",
	Description:  "Several sources merged into one input, one of them failing.",
	Variables:    map[string]cty.Value{"greeting": cty.StringVal("hello")},
	Capabilities: []execctx.Capability{execctx.StdoutWrite},
	Build: func(b *registry.Builder) {
		order := cty.ListVal([]cty.Value{
			cty.StringVal("greeting"),
			cty.StringVal("alpha"),
			cty.StringVal("beta"),
			cty.StringVal("ratio"),
		})
		b.Add("variable", "greeting", registry.Args{"name": cty.StringVal("greeting")}).
			Add("const", "alpha", registry.Args{"value": cty.StringVal("alpha")}).
			Add("const", "beta", registry.Args{"value": cty.StringVal("beta")}).
			Add("const", "one", registry.Args{"value": cty.NumberIntVal(1)}).
			Add("const", "zero", registry.Args{"value": cty.Zero}).
			Add("divide", "ratio", nil, graph.WithFailurePolicy(unit.BestEffort)).
			Add("concat", "joined", registry.Args{"separator": cty.StringVal(", "), "order": order}).
			Add("print", "result", registry.Args{"label": cty.StringVal("fan_in")}).
			Connect("one", "out", "ratio", "a").
			Connect("zero", "out", "ratio", "b").
			Connect("greeting", "out", "joined", "in").
			Connect("alpha", "out", "joined", "in").
			Connect("beta", "out", "joined", "in").
			Connect("ratio", "out", "joined", "in").
			Connect("joined", "out", "result", "value")
	},
}

// SplitSum sums a list whose cpu estimate exceeds the default stage budget,
// so the planner shards it into parts joined after the stage.
var SplitSum = &registry.Program{
	Name:         "split_sum",
	Description:  "A splittable sum whose estimate exceeds one worker's budget.",
	Capabilities: []execctx.Capability{execctx.StdoutWrite},
	Build: func(b *registry.Builder) {
		list := make([]cty.Value, 100)
		for i := range list {
			list[i] = cty.NumberIntVal(int64(i + 1))
		}
		b.Add("const", "numbers", registry.Args{"value": cty.ListVal(list)}).
			Add("sum", "total", registry.Args{"cpu": cty.NumberIntVal(12)}).
			Add("print", "result", registry.Args{"label": cty.StringVal("sum")}).
			Connect("numbers", "out", "total", "in").
			Connect("total", "out", "result", "value")
	},
}

// Converged returns a termination condition that is done once the value
// on output name moves by less than epsilon between iterations.
func Converged(name string, epsilon float64) graph.TerminationFunc {
	var prev cty.Value
	seen := false
	eps := cty.NumberFloatVal(epsilon)
	return func(iteration int, out unit.Outputs) (bool, error) {
		vals := out[name]
		if len(vals) == 0 {
			return false, nil
		}
		cur := vals[0].Data
		if iteration == 1 || !seen {
			prev, seen = cur, true
			return false, nil
		}
		delta := cur.Subtract(prev).Absolute()
		prev = cur
		return delta.LessThan(eps).True(), nil
	}
}

func with(args registry.Args, name string, v cty.Value) registry.Args {
	out := make(registry.Args, len(args)+1)
	for k, val := range args {
		out[k] = val
	}
	out[name] = v
	return out
}
