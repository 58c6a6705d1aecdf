package print

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/vk/blockgrid/internal/ctxlog"
	"github.com/vk/blockgrid/internal/execctx"
	"github.com/vk/blockgrid/internal/port"
	"github.com/vk/blockgrid/internal/registry"
	"github.com/vk/blockgrid/internal/unit"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Module implements the registry.Module interface for this package. Out
// defaults to os.Stdout.
type Module struct {
	Out io.Writer
}

// writer serializes lines from units running in parallel.
type writer struct {
	mu  sync.Mutex
	out io.Writer
}

func (w *writer) line(label, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if label == "" {
		_, err := fmt.Fprintln(w.out, text)
		return err
	}
	_, err := fmt.Fprintf(w.out, "%s: %s\n", label, text)
	return err
}

// Format renders a value the way the print block writes it: strings as
// they are, everything else as JSON.
func Format(v cty.Value) (string, error) {
	switch {
	case v.IsNull():
		return "(null)", nil
	case !v.IsKnown():
		return "(unknown)", nil
	case v.Type() == cty.String:
		return v.AsString(), nil
	}
	b, err := ctyjson.SimpleJSONValue{Value: v}.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// newPrint builds a sink writing every value delivered to "value" on its
// own line, prefixed with the "label" argument when set. The input is a
// scalar fan-in port unless "stream" is true.
func newPrint(w *writer) registry.Factory {
	return func(id string, args registry.Args) (unit.Unit, error) {
		label, err := args.String("label", "")
		if err != nil {
			return nil, err
		}
		stream := false
		if err := args.Decode("stream", &stream); err != nil {
			return nil, err
		}
		input := port.Scalar("value", cty.DynamicPseudoType)
		if stream {
			input = port.Stream("value", cty.DynamicPseudoType)
		}
		return unit.NewFunc(id, func(ctx context.Context, _ *execctx.Context, in unit.Inputs) (unit.Outputs, error) {
			logger := ctxlog.FromContext(ctx).With("unitID", id)
			logger.Info("Printing input")
			for _, v := range in.All("value") {
				text, err := Format(v.Data)
				if err != nil {
					return nil, fmt.Errorf("formatting value: %w", err)
				}
				if err := w.line(label, text); err != nil {
					return nil, err
				}
			}
			return unit.Outputs{}, nil
		},
			unit.WithInputs(input.WithFanIn(port.Unbounded, port.MergeFirstArrival)),
			unit.WithEffects(execctx.StdoutWrite),
		), nil
	}
}

// Register registers the block with the engine.
func (m *Module) Register(r *registry.Registry) {
	out := m.Out
	if out == nil {
		out = os.Stdout
	}
	r.RegisterUnit(&registry.UnitDefinition{
		Kind:        "print",
		Description: "Writes every value it receives to standard output.",
		New:         newPrint(&writer{out: out}),
	})
}
