package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSystemUniformBounds(t *testing.T) {
	s := NewSystem()
	for i := 0; i < 50; i++ {
		d := s.Uniform(10*time.Millisecond, 20*time.Millisecond)
		require.GreaterOrEqual(t, d, 10*time.Millisecond)
		require.Less(t, d, 20*time.Millisecond)
	}
}

func TestSystemUniformDegenerateRange(t *testing.T) {
	s := NewSystem()
	require.Equal(t, 5*time.Second, s.Uniform(5*time.Second, 5*time.Second))
	require.Equal(t, 5*time.Second, s.Uniform(5*time.Second, 1*time.Second))
}

func TestFakeAdvanceAndSet(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)
	require.Equal(t, start, f.Now())

	f.Advance(time.Hour)
	require.Equal(t, start.Add(time.Hour), f.Now())

	later := start.Add(48 * time.Hour)
	f.Set(later)
	require.Equal(t, later, f.Now())
}

func TestFakeSleepAdvancesTime(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)
	f.Sleep(10 * time.Minute)
	require.Equal(t, start.Add(10*time.Minute), f.Now())
}

func TestFakeAfterFiresImmediatelyAndAdvances(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)
	ch := f.After(5 * time.Second)
	select {
	case fired := <-ch:
		require.Equal(t, start.Add(5*time.Second), fired)
	default:
		t.Fatal("expected After to have a value ready without blocking")
	}
	require.Equal(t, start.Add(5*time.Second), f.Now())
}

func TestFakeQueuedUniform(t *testing.T) {
	f := NewFake(time.Now())
	f.QueueUniform(3*time.Second, 7*time.Second)
	require.Equal(t, 3*time.Second, f.Uniform(0, 100*time.Second))
	require.Equal(t, 7*time.Second, f.Uniform(0, 100*time.Second))
	// once the queue is drained, Uniform falls back to the midpoint.
	require.Equal(t, 50*time.Second, f.Uniform(0, 100*time.Second))
}
