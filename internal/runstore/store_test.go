package runstore

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/blockgrid/internal/memory"
	"github.com/vk/blockgrid/internal/unit"
	"github.com/zclconf/go-cty/cty"
)

func TestSetAndGetStatus(t *testing.T) {
	s := New()

	assert.Equal(t, StatusPending, s.Status("a"), "unknown units are pending")

	prev := s.SetStatus("a", StatusRunning)
	assert.Equal(t, StatusPending, prev)
	prev = s.SetStatus("a", StatusCompleted)
	assert.Equal(t, StatusRunning, prev)
	assert.Equal(t, StatusCompleted, s.Status("a"))
}

func TestSetAndGetOutput(t *testing.T) {
	s := New()
	assert.Nil(t, s.Output("a"))

	out := unit.Single("out", cty.NumberIntVal(7))
	s.SetOutput("a", out)
	assert.Equal(t, out, s.Output("a"))

	s.DeleteOutput("a")
	assert.Nil(t, s.Output("a"))
}

func TestSetAndGetError(t *testing.T) {
	s := New()
	assert.NoError(t, s.Error("a"))

	want := errors.New("a test error occurred")
	s.SetError("a", want)
	assert.Equal(t, want, s.Error("a"))
}

func TestHandles(t *testing.T) {
	s := New()
	h := memory.Handle{Class: 1, Index: 3, Gen: 2}
	s.SetHandle("b", h)
	s.SetHandle("a", memory.Handle{Class: 1})

	got, ok := s.Handle("b")
	require.True(t, ok)
	assert.Equal(t, h, got)
	assert.Equal(t, []string{"a", "b"}, s.Handles())

	got, ok = s.TakeHandle("b")
	require.True(t, ok)
	assert.Equal(t, h, got)
	_, ok = s.TakeHandle("b")
	assert.False(t, ok, "a handle is taken once")
	assert.Equal(t, []string{"a"}, s.Handles())
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "Skipped", StatusSkipped.String())
	assert.Equal(t, "Status(42)", Status(42).String())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusCompleted.Live())
	assert.False(t, StatusSkipped.Live())
}

// TestStore_ConcurrentAccess verifies that the store can be safely accessed by
// multiple goroutines simultaneously without data races or lost writes.
func TestStore_ConcurrentAccess(t *testing.T) {
	s := New()
	numGoroutines := 100
	var wg sync.WaitGroup

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("unit_%d", i)
			s.SetStatus(id, StatusCompleted)
			s.SetOutput(id, unit.Single("out", cty.NumberIntVal(int64(i))))
			s.SetError(id, fmt.Errorf("error for unit %d", i))
		}(i)
	}
	wg.Wait()

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("unit_%d", i)

			assert.Equal(t, StatusCompleted, s.Status(id), "mismatched status for unit %d", i)
			vals := s.Output(id)["out"]
			if assert.Len(t, vals, 1) {
				assert.True(t, vals[0].Data.Equals(cty.NumberIntVal(int64(i))).True(), "mismatched output for unit %d", i)
			}
			assert.EqualError(t, s.Error(id), fmt.Sprintf("error for unit %d", i))
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.Statuses(), numGoroutines)
}
