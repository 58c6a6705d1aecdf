package unit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vk/blockgrid/internal/port"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

type wireValue struct {
	Kind      port.Kind               `json:"kind"`
	Data      ctyjson.SimpleJSONValue `json:"data"`
	Seq       uint64                  `json:"seq,omitempty"`
	Timestamp *time.Time              `json:"ts,omitempty"`
	Key       string                  `json:"key,omitempty"`
	Source    string                  `json:"src,omitempty"`
}

// EncodeOutputs serializes outputs, types included, into a stable byte
// form. Arrival stamps are run-local and are not kept.
func EncodeOutputs(o Outputs) ([]byte, error) {
	wire := make(map[string][]wireValue, len(o))
	for name, vals := range o {
		wv := make([]wireValue, len(vals))
		for i, v := range vals {
			if !v.Data.IsWhollyKnown() {
				return nil, fmt.Errorf("output '%s' holds an unknown value", name)
			}
			wv[i] = wireValue{
				Kind:   v.Kind,
				Data:   ctyjson.SimpleJSONValue{Value: v.Data},
				Seq:    v.Seq,
				Key:    v.Key,
				Source: v.Source,
			}
			if !v.Timestamp.IsZero() {
				ts := v.Timestamp
				wv[i].Timestamp = &ts
			}
		}
		wire[name] = wv
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encoding outputs: %w", err)
	}
	return data, nil
}

// DecodeOutputs is the inverse of EncodeOutputs.
func DecodeOutputs(data []byte) (Outputs, error) {
	var wire map[string][]wireValue
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decoding outputs: %w", err)
	}
	out := make(Outputs, len(wire))
	for name, wv := range wire {
		vals := make([]port.Value, len(wv))
		for i, w := range wv {
			vals[i] = port.Value{
				Kind:   w.Kind,
				Data:   w.Data.Value,
				Seq:    w.Seq,
				Key:    w.Key,
				Source: w.Source,
			}
			if w.Timestamp != nil {
				vals[i].Timestamp = *w.Timestamp
			}
		}
		out[name] = vals
	}
	return out, nil
}
