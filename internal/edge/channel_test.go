package edge

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/blockgrid/internal/port"
	"github.com/zclconf/go-cty/cty"
)

func num(seq uint64, n int64) port.Value {
	v := port.StreamValue(cty.NumberIntVal(n))
	v.Seq = seq
	return v
}

func ints(t *testing.T, vals []port.Value) []int64 {
	t.Helper()
	out := make([]int64, len(vals))
	for i, v := range vals {
		n, _ := v.Data.AsBigFloat().Int64()
		out[i] = n
	}
	return out
}

func sendAll(t *testing.T, ch *Channel, values ...int64) {
	t.Helper()
	ctx := context.Background()
	for i, n := range values {
		require.NoError(t, ch.Send(ctx, num(uint64(i), n)))
	}
	require.NoError(t, ch.Close(ctx))
}

func policy(bp Backpressure, capacity int) Policy {
	p := DefaultPolicy()
	p.Backpressure = bp
	p.Capacity = capacity
	return p
}

func TestChannel_DropOldest(t *testing.T) {
	// --- Arrange ---
	ch := NewChannel("A.out->B.in", policy(DropOldest, 2), nil)

	// --- Act ---
	// The producer sends four values before the consumer reads anything.
	sendAll(t, ch, 1, 2, 3, 4)
	got, err := ch.Drain(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, ints(t, got), "the two oldest values must be dropped")
	assert.Equal(t, uint64(2), ch.Stats().Dropped)
}

func TestChannel_DropNewest(t *testing.T) {
	ch := NewChannel("e", policy(DropNewest, 2), nil)
	sendAll(t, ch, 1, 2, 3, 4)

	got, err := ch.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ints(t, got))
}

func TestChannel_Expand(t *testing.T) {
	t.Run("grows up to the bound", func(t *testing.T) {
		p := policy(Expand, 1)
		p.MaxCapacity = 4
		ch := NewChannel("e", p, nil)
		sendAll(t, ch, 1, 2, 3, 4)

		got, err := ch.Drain(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 3, 4}, ints(t, got))
		assert.Equal(t, 4, ch.Stats().Capacity)
		assert.Equal(t, uint64(2), ch.Stats().Expansions)
	})

	t.Run("strict overflow aborts the edge", func(t *testing.T) {
		p := policy(Expand, 1)
		p.MaxCapacity = 2
		ch := NewChannel("e", p, nil)
		ctx := context.Background()

		require.NoError(t, ch.Send(ctx, num(0, 1)))
		require.NoError(t, ch.Send(ctx, num(1, 2)))
		err := ch.Send(ctx, num(2, 3))
		require.ErrorIs(t, err, ErrBufferOverflow)

		_, _, err = ch.Recv(ctx)
		assert.ErrorIs(t, err, ErrBufferOverflow)
	})

	t.Run("lenient overflow drops", func(t *testing.T) {
		p := policy(Expand, 1)
		p.MaxCapacity = 2
		p.Mode = Lenient
		ch := NewChannel("e", p, nil)
		sendAll(t, ch, 1, 2, 3)

		got, err := ch.Drain(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2}, ints(t, got))
	})
}

func TestChannel_BlockIsDeterministic(t *testing.T) {
	// Whatever the relative speed of producer and consumer, a blocking
	// source-ordered edge yields exactly the sent sequence.
	want := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	for _, tc := range []struct {
		name          string
		producerDelay time.Duration
		consumerDelay time.Duration
	}{
		{name: "fast producer", consumerDelay: time.Millisecond},
		{name: "fast consumer", producerDelay: time.Millisecond},
		{name: "jittered"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ch := NewChannel("e", policy(Block, 2), nil)
			ctx := context.Background()
			rng := rand.New(rand.NewSource(1))

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i, n := range want {
					time.Sleep(tc.producerDelay + time.Duration(rng.Intn(2))*time.Microsecond)
					assert.NoError(t, ch.Send(ctx, num(uint64(i), n)))
				}
				assert.NoError(t, ch.Close(ctx))
			}()

			var got []port.Value
			for {
				time.Sleep(tc.consumerDelay)
				v, ok, err := ch.Recv(ctx)
				require.NoError(t, err)
				if !ok {
					break
				}
				got = append(got, v)
			}
			wg.Wait()

			assert.Equal(t, want, ints(t, got))
			assert.LessOrEqual(t, ch.Stats().HighWater, 2)
		})
	}
}

func TestChannel_BlockRespectsCancellation(t *testing.T) {
	ch := NewChannel("e", policy(Block, 1), nil)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, ch.Send(ctx, num(0, 1)))

	errCh := make(chan error, 1)
	go func() { errCh <- ch.Send(ctx, num(1, 2)) }()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked send did not observe cancellation")
	}

	// The buffered value is still deliverable; the next receive would block.
	_, ok, err := ch.Recv(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	_, _, err = ch.Recv(ctx)
	assert.ErrorIs(t, err, context.Canceled, "recv checks cancellation before blocking")
}

func TestChannel_SourceOrderReorders(t *testing.T) {
	ch := NewChannel("e", policy(Block, 4), nil)
	ctx := context.Background()

	require.NoError(t, ch.Send(ctx, num(2, 30)))
	require.NoError(t, ch.Send(ctx, num(0, 10)))
	require.NoError(t, ch.Send(ctx, num(1, 20)))
	require.NoError(t, ch.Close(ctx))

	got, err := ch.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20, 30}, ints(t, got))
}

func TestChannel_ReorderBufferExhausted(t *testing.T) {
	ch := NewChannel("e", policy(Block, 2), nil)
	ctx := context.Background()

	// Sequence 0 never arrives and the buffer fills with later values.
	require.NoError(t, ch.Send(ctx, num(1, 20)))
	require.NoError(t, ch.Send(ctx, num(2, 30)))

	_, _, err := ch.Recv(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReorderBufferExhausted)

	var edgeErr *EdgeError
	require.True(t, errors.As(err, &edgeErr))
	assert.Equal(t, "e", edgeErr.Edge)
}

func TestChannel_TimestampOrder(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	at := func(seq uint64, offset int) port.Value {
		v := port.EventValue(cty.NumberIntVal(int64(offset)), base.Add(time.Duration(offset)*time.Second))
		v.Seq = seq
		return v
	}

	t.Run("reorders within capacity", func(t *testing.T) {
		p := policy(Block, 3)
		p.Ordering = TimestampOrder
		ch := NewChannel("e", p, nil)
		ctx := context.Background()

		require.NoError(t, ch.Send(ctx, at(0, 3)))
		require.NoError(t, ch.Send(ctx, at(1, 1)))
		require.NoError(t, ch.Send(ctx, at(2, 2)))
		require.NoError(t, ch.Close(ctx))

		got, err := ch.Drain(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 3}, ints(t, got))
	})

	t.Run("late arrival beyond capacity", func(t *testing.T) {
		p := policy(Block, 1)
		p.Ordering = TimestampOrder
		ch := NewChannel("e", p, nil)
		ctx := context.Background()

		require.NoError(t, ch.Send(ctx, at(0, 5)))
		v, ok, err := ch.Recv(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []int64{5}, ints(t, []port.Value{v}))

		require.NoError(t, ch.Send(ctx, at(1, 1)))
		_, _, err = ch.Recv(ctx)
		assert.ErrorIs(t, err, ErrReorderBufferExhausted)
	})
}

func TestChannel_KeyOrder(t *testing.T) {
	p := policy(DropNewest, 8)
	p.Ordering = KeyOrder
	ch := NewChannel("e", p, nil)
	ctx := context.Background()

	for i, key := range []string{"c", "a", "b"} {
		v := port.StreamValue(cty.StringVal(key))
		v.Seq = uint64(i)
		v.Key = key
		require.NoError(t, ch.Send(ctx, v))
	}
	require.NoError(t, ch.Close(ctx))

	got, err := ch.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Data.AsString())
	assert.Equal(t, "c", got[2].Data.AsString())
}

func TestChannel_SkipAndClosed(t *testing.T) {
	ch := NewChannel("e", DefaultPolicy(), nil)
	ch.Skip()

	_, ok, err := ch.Recv(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, ch.Skipped())

	err = ch.Send(context.Background(), num(0, 1))
	assert.ErrorIs(t, err, ErrChannelClosed)
}
