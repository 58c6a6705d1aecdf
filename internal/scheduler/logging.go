package scheduler

import (
	"fmt"

	"github.com/vk/blockgrid/internal/port"
	"github.com/zclconf/go-cty/cty"
)

// ctyValueToInterface converts a cty.Value to a Go value for logging.
func ctyValueToInterface(val cty.Value) (any, error) {
	if !val.IsKnown() || val.IsNull() {
		return nil, nil
	}
	if val.Type().IsPrimitiveType() {
		switch val.Type() {
		case cty.String:
			return val.AsString(), nil
		case cty.Number:
			f, _ := val.AsBigFloat().Float64()
			return f, nil
		case cty.Bool:
			return val.True(), nil
		default:
			return nil, fmt.Errorf("unsupported primitive type: %s", val.Type().FriendlyName())
		}
	}
	if val.Type().IsObjectType() || val.Type().IsMapType() {
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			conv, err := ctyValueToInterface(v)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = conv
		}
		return out, nil
	}
	if val.Type().IsTupleType() || val.Type().IsListType() || val.Type().IsSetType() {
		var out []any
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			conv, err := ctyValueToInterface(v)
			if err != nil {
				return nil, err
			}
			out = append(out, conv)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported cty.Type for conversion: %s", val.Type().FriendlyName())
}

// formatValueForLogs converts a value to its loggable representation.
func formatValueForLogs(v cty.Value) any {
	converted, err := ctyValueToInterface(v)
	if err != nil {
		return fmt.Sprintf("[unloggable cty.Value: %v]", err)
	}
	return converted
}

// formatPortsForLogs renders per-port values, unwrapping single values.
func formatPortsForLogs(ports map[string][]port.Value) map[string]any {
	out := make(map[string]any, len(ports))
	for name, vals := range ports {
		if len(vals) == 1 {
			out[name] = formatValueForLogs(vals[0].Data)
			continue
		}
		list := make([]any, len(vals))
		for i, v := range vals {
			list[i] = formatValueForLogs(v.Data)
		}
		out[name] = list
	}
	return out
}
