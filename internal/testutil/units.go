// Package testutil provides units and helpers shared by the engine's tests.
package testutil

import (
	"context"
	"time"

	"github.com/vk/blockgrid/internal/execctx"
	"github.com/vk/blockgrid/internal/port"
	"github.com/vk/blockgrid/internal/unit"
	"github.com/zclconf/go-cty/cty"
)

// Num is shorthand for a cty number.
func Num(n int64) cty.Value { return cty.NumberIntVal(n) }

// AsInt extracts an integer from a cty number, panicking on anything else.
func AsInt(v cty.Value) int64 {
	n, _ := v.AsBigFloat().Int64()
	return n
}

// Const returns a unit without inputs emitting value as a scalar on "out".
func Const(id string, value cty.Value, opts ...unit.FuncOption) *unit.Func {
	opts = append([]unit.FuncOption{unit.WithOutputs(port.Scalar("out", value.Type()))}, opts...)
	return unit.NewFunc(id, func(context.Context, *execctx.Context, unit.Inputs) (unit.Outputs, error) {
		return unit.Single("out", value), nil
	}, opts...)
}

// Sum returns a unit adding every number delivered to the fan-in input "in"
// and emitting the total on "out".
func Sum(id string, rec *Recorder, opts ...unit.FuncOption) *unit.Func {
	opts = append([]unit.FuncOption{
		unit.WithInputs(port.Scalar("in", cty.Number).WithFanIn(port.Unbounded, port.MergeFirstArrival)),
		unit.WithOutputs(port.Scalar("out", cty.Number)),
	}, opts...)
	return unit.NewFunc(id, func(_ context.Context, _ *execctx.Context, in unit.Inputs) (unit.Outputs, error) {
		rec.start(id)
		defer rec.end(id)
		total := cty.Zero
		for _, v := range in.All("in") {
			total = total.Add(v.Data)
		}
		return unit.Single("out", total), nil
	}, opts...)
}

// Pass returns a unit copying its scalar number input "in" to "out" and
// recording the execution.
func Pass(id string, rec *Recorder, opts ...unit.FuncOption) *unit.Func {
	opts = append([]unit.FuncOption{
		unit.WithInputs(port.Scalar("in", cty.Number)),
		unit.WithOutputs(port.Scalar("out", cty.Number)),
	}, opts...)
	return unit.NewFunc(id, func(_ context.Context, _ *execctx.Context, in unit.Inputs) (unit.Outputs, error) {
		rec.start(id)
		defer rec.end(id)
		v, err := in.Require("in")
		if err != nil {
			return nil, err
		}
		return unit.Single("out", v), nil
	}, opts...)
}

// Source returns a unit without inputs that records its execution and
// emits value on "out".
func Source(id string, rec *Recorder, value cty.Value, opts ...unit.FuncOption) *unit.Func {
	opts = append([]unit.FuncOption{unit.WithOutputs(port.Scalar("out", value.Type()))}, opts...)
	return unit.NewFunc(id, func(context.Context, *execctx.Context, unit.Inputs) (unit.Outputs, error) {
		rec.start(id)
		defer rec.end(id)
		return unit.Single("out", value), nil
	}, opts...)
}

// Failing returns a unit with a number input "in" and output "out" that
// always fails with err.
func Failing(id string, rec *Recorder, err error, opts ...unit.FuncOption) *unit.Func {
	opts = append([]unit.FuncOption{
		unit.WithInputs(port.Scalar("in", cty.Number)),
		unit.WithOutputs(port.Scalar("out", cty.Number)),
	}, opts...)
	return unit.NewFunc(id, func(context.Context, *execctx.Context, unit.Inputs) (unit.Outputs, error) {
		rec.start(id)
		defer rec.end(id)
		return nil, err
	}, opts...)
}

// Sleeper returns a pass-through unit that sleeps for d first. When
// cooperative is set it returns as soon as ctx is done; otherwise it
// ignores cancellation.
func Sleeper(id string, rec *Recorder, d time.Duration, cooperative bool, opts ...unit.FuncOption) *unit.Func {
	opts = append([]unit.FuncOption{
		unit.WithInputs(port.Scalar("in", cty.Number)),
		unit.WithOutputs(port.Scalar("out", cty.Number)),
	}, opts...)
	return unit.NewFunc(id, func(ctx context.Context, _ *execctx.Context, in unit.Inputs) (unit.Outputs, error) {
		rec.start(id)
		defer rec.end(id)
		if cooperative {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d):
			}
		} else {
			time.Sleep(d)
		}
		v, err := in.Require("in")
		if err != nil {
			return nil, err
		}
		return unit.Single("out", v), nil
	}, opts...)
}

// Emitter returns a unit without inputs emitting each number as a separate
// stream value on "out".
func Emitter(id string, values ...int64) *unit.Func {
	data := make([]cty.Value, len(values))
	for i, v := range values {
		data[i] = cty.NumberIntVal(v)
	}
	return unit.NewFunc(id, func(context.Context, *execctx.Context, unit.Inputs) (unit.Outputs, error) {
		return unit.Outputs{"out": unit.Emit(port.KindStream, data...)}, nil
	}, unit.WithOutputs(port.Stream("out", cty.Number)))
}

// Collector returns a unit gathering every stream value delivered to "in"
// into got, in delivery order, and emitting their count on "count".
func Collector(id string, got *[]int64, inType cty.Type) *unit.Func {
	return unit.NewFunc(id, func(_ context.Context, _ *execctx.Context, in unit.Inputs) (unit.Outputs, error) {
		for _, v := range in.All("in") {
			if v.Data.Type().Equals(cty.Number) {
				*got = append(*got, AsInt(v.Data))
				continue
			}
			for _, el := range v.Data.AsValueSlice() {
				*got = append(*got, AsInt(el))
			}
		}
		return unit.Single("count", cty.NumberIntVal(int64(len(in.All("in"))))), nil
	},
		unit.WithInputs(port.Stream("in", inType)),
		unit.WithOutputs(port.Scalar("count", cty.Number)),
	)
}
