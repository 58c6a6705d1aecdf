package nodeid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name         string
		rawID        string
		expectErr    bool
		expectedAddr *Address
	}{
		{
			name:  "simple id",
			rawID: "add",
			expectedAddr: &Address{
				Path: []PathSegment{NewPathSegment("add")},
			},
		},
		{
			name:  "inlined composite child",
			rawID: "pipeline.normalize",
			expectedAddr: &Address{
				Path: []PathSegment{NewPathSegment("pipeline"), NewPathSegment("normalize")},
			},
		},
		{
			name:  "split part",
			rawID: "pipeline.sum[2]",
			expectedAddr: &Address{
				Path: []PathSegment{NewPathSegment("pipeline"), NewPathSegmentWithIndex("sum", 2)},
			},
		},
		{name: "error - empty string", rawID: "", expectErr: true},
		{name: "error - empty segment", rawID: "a..b", expectErr: true},
		{name: "error - bad index", rawID: "a[x]", expectErr: true},
		{name: "error - whitespace", rawID: "a b", expectErr: true},
		{name: "error - lone hyphen", rawID: "a.-", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			addr, err := Parse(tc.rawID)
			if tc.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tc.expectedAddr.Equal(addr), "parsed address does not match expected address")
		})
	}
}

func TestAddress_RoundTrip(t *testing.T) {
	for _, id := range []string{"a", "a.b.c", "outer.inner.sum[0]", "http-client.get[15]"} {
		t.Run(id, func(t *testing.T) {
			addr, err := Parse(id)
			require.NoError(t, err)
			assert.Equal(t, id, addr.String())
		})
	}
}

func TestAddress_Parent(t *testing.T) {
	addr, err := Parse("outer.inner.leaf")
	require.NoError(t, err)

	assert.Equal(t, "outer.inner", addr.Parent().String())
	assert.Nil(t, addr.Parent().Parent().Parent())
	assert.Equal(t, "", (*Address)(nil).String())
}

func TestJoinPartBase(t *testing.T) {
	assert.Equal(t, "leaf", Join("", "leaf"))
	assert.Equal(t, "outer.leaf", Join("outer", "leaf"))
	assert.Equal(t, "sum[3]", Part("sum", 3))
	assert.Equal(t, "outer.sum", Base("outer.sum[3]"))
	assert.Equal(t, "outer.sum", Base("outer.sum"))
	assert.Equal(t, "not valid", Base("not valid"))
	assert.NoError(t, Validate(Part(Join("a", "b"), 0)))
}
