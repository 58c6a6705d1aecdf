package edge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vk/blockgrid/internal/port"
	"github.com/zclconf/go-cty/cty"
)

func arrived(arrival uint64, n int64) port.Value {
	v := port.ScalarValue(cty.NumberIntVal(n))
	v.Arrival = arrival
	return v
}

func TestMerge(t *testing.T) {
	inbound := []Inbound{
		{Source: "c", Values: []port.Value{arrived(1, 30), arrived(4, 31)}},
		{Source: "a", Values: []port.Value{arrived(3, 10)}},
		{Source: "b", Values: []port.Value{arrived(2, 20), arrived(5, 21)}},
	}

	testCases := []struct {
		name     string
		policy   port.MergePolicy
		priority []string
		want     []int64
	}{
		{name: "first arrival", policy: port.MergeFirstArrival, want: []int64{30, 20, 10, 31, 21}},
		{name: "priority", policy: port.MergePriority, priority: []string{"b", "c"}, want: []int64{20, 21, 30, 31, 10}},
		{name: "round robin by source id", policy: port.MergeRoundRobin, want: []int64{10, 20, 30, 21, 31}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Merge(tc.policy, tc.priority, inbound)
			assert.Equal(t, tc.want, ints(t, got))
		})
	}

	t.Run("single source passes through", func(t *testing.T) {
		got := Merge(port.MergeRoundRobin, nil, inbound[:1])
		assert.Equal(t, []int64{30, 31}, ints(t, got))
	})

	t.Run("input order does not matter", func(t *testing.T) {
		reversed := []Inbound{inbound[2], inbound[1], inbound[0]}
		assert.Equal(t,
			ints(t, Merge(port.MergeRoundRobin, nil, inbound)),
			ints(t, Merge(port.MergeRoundRobin, nil, reversed)))
	})
}
