package prefetch

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sliceSource(items []int) func() (int, bool) {
	i := 0
	return func() (int, bool) {
		if i >= len(items) {
			return 0, false
		}
		v := items[i]
		i++
		return v, true
	}
}

func TestSingleWorkerPreservesOrder(t *testing.T) {
	p := New(sliceSource([]int{1, 2, 3, 4, 5}), nil, Options{})
	got := []int{}
	for {
		v, err := p.Next()
		if err == Done {
			break
		}
		require.NoError(t, err)
		got = append(got, v)
	}
	require.Equal(t, []int{1, 2, 3, 4, 5}, got)

	// Terminal state is sticky
	_, err := p.Next()
	require.ErrorIs(t, err, Done)
}

func TestTransformApplied(t *testing.T) {
	p := New(sliceSource([]int{1, 2, 3}), func(v int) (int, error) { return v * 10, nil }, Options{})
	sum := 0
	for {
		v, err := p.Next()
		if err == Done {
			break
		}
		require.NoError(t, err)
		sum += v
	}
	require.Equal(t, 60, sum)
}

func TestMultipleWorkersDrainEverything(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}
	p := New(sliceSource(items), nil, Options{Workers: DefaultWorkersNumThreads, QueueLimit: 5})
	got := []int{}
	for {
		v, err := p.Next()
		if err == Done {
			break
		}
		require.NoError(t, err)
		got = append(got, v)
	}
	sort.Ints(got)
	require.Equal(t, items, got)
}

func TestWorkerErrorPropagates(t *testing.T) {
	boom := errors.New("fetch failed")
	p := New(sliceSource([]int{1, 2, 3}), func(v int) (int, error) {
		if v == 2 {
			return 0, boom
		}
		return v, nil
	}, Options{})

	sawErr := false
	for i := 0; i < 5; i++ {
		_, err := p.Next()
		if err != nil {
			require.ErrorIs(t, err, boom)
			sawErr = true
			break
		}
	}
	require.True(t, sawErr)

	// The error is re-raised on every subsequent call
	_, err := p.Next()
	require.ErrorIs(t, err, boom)
}

func TestStopUnblocksWorkers(t *testing.T) {
	blocked := make(chan struct{})
	p := New(func() (int, bool) { return 7, true }, nil, Options{QueueLimit: 1})
	go func() {
		// Give the worker time to fill the queue, then stop.
		time.Sleep(10 * time.Millisecond)
		p.Stop()
		close(blocked)
	}()
	<-blocked
	for {
		_, err := p.Next()
		if err != nil {
			require.ErrorIs(t, err, ErrStopped)
			return
		}
	}
}

func TestThreadSafeIteratorExhaustion(t *testing.T) {
	it := NewThreadSafeIterator(sliceSource([]int{42}))
	v, ok := it.Next()
	require.True(t, ok)
	require.Equal(t, 42, v)
	_, ok = it.Next()
	require.False(t, ok)
	_, ok = it.Next()
	require.False(t, ok)
}
