package edge

import (
	"fmt"

	"github.com/vk/blockgrid/internal/port"
	"github.com/zclconf/go-cty/cty"
)

// Adapter transforms values between Send and buffering. Apply may return
// zero, one or several values for each input; Flush returns whatever a
// stateful adapter still holds when the producer closes the edge.
type Adapter interface {
	Apply(v port.Value) ([]port.Value, error)
	Flush() []port.Value
}

type identityAdapter struct{}

func (identityAdapter) Apply(v port.Value) ([]port.Value, error) { return []port.Value{v}, nil }
func (identityAdapter) Flush() []port.Value                      { return nil }

type mapAdapter struct{ fn MapFunc }

func (a mapAdapter) Apply(v port.Value) ([]port.Value, error) {
	out, err := a.fn(v.Data)
	if err != nil {
		return nil, err
	}
	return []port.Value{v.WithData(out)}, nil
}

func (mapAdapter) Flush() []port.Value { return nil }

type filterAdapter struct{ fn FilterFunc }

func (a filterAdapter) Apply(v port.Value) ([]port.Value, error) {
	keep, err := a.fn(v.Data)
	if err != nil {
		return nil, err
	}
	if !keep {
		return nil, nil
	}
	return []port.Value{v}, nil
}

func (filterAdapter) Flush() []port.Value { return nil }

// bufferAdapter groups values into tumbling batches of size values.
type bufferAdapter struct {
	size    int
	pending []port.Value
}

func (a *bufferAdapter) Apply(v port.Value) ([]port.Value, error) {
	a.pending = append(a.pending, v)
	if len(a.pending) < a.size {
		return nil, nil
	}
	batch := collect(a.pending)
	a.pending = nil
	return []port.Value{batch}, nil
}

func (a *bufferAdapter) Flush() []port.Value {
	if len(a.pending) == 0 {
		return nil
	}
	batch := collect(a.pending)
	a.pending = nil
	return []port.Value{batch}
}

// windowAdapter emits sliding windows of size values, advancing by step.
type windowAdapter struct {
	size, step int
	window     []port.Value
}

func (a *windowAdapter) Apply(v port.Value) ([]port.Value, error) {
	if !v.Kind.Sequential() {
		return nil, fmt.Errorf("%w: window over %s", ErrUnsupportedAdapterForKind, v.Kind)
	}
	a.window = append(a.window, v)
	if len(a.window) < a.size {
		return nil, nil
	}
	out := collect(a.window)
	a.window = append([]port.Value(nil), a.window[min(a.step, len(a.window)):]...)
	return []port.Value{out}, nil
}

// Flush discards an incomplete window.
func (a *windowAdapter) Flush() []port.Value {
	a.window = nil
	return nil
}

// collect folds a run of values into one value holding the list of their
// data. The result keeps the kind and ordering metadata of the last value.
func collect(vals []port.Value) port.Value {
	data := make([]cty.Value, len(vals))
	uniform := true
	for i, v := range vals {
		data[i] = v.Data
		if i > 0 && !v.Data.Type().Equals(data[0].Type()) {
			uniform = false
		}
	}
	var folded cty.Value
	if uniform {
		folded = cty.ListVal(data)
	} else {
		folded = cty.TupleVal(data)
	}
	return vals[len(vals)-1].WithData(folded)
}
