package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSnapshot struct {
	status string
	fields map[string]interface{}
}

func (s fakeSnapshot) Status() string { return s.status }

func (s fakeSnapshot) Has(property string) bool {
	_, ok := s.fields[property]
	return ok
}

// fakeClock advances virtual time on Sleep and records every duration
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

// sequence returns a fetch func yielding the given snapshots, repeating the last one
func sequence(snaps ...fakeSnapshot) (func(context.Context) (fakeSnapshot, error), *int) {
	calls := 0
	return func(context.Context) (fakeSnapshot, error) {
		i := calls
		if i >= len(snaps) {
			i = len(snaps) - 1
		}
		calls++
		return snaps[i], nil
	}, &calls
}

func TestWait_SucceededImmediately(t *testing.T) {
	clock := newFakeClock()
	fetch, calls := sequence(fakeSnapshot{status: StatusSucceeded})

	snap, err := Wait(context.Background(), fetch, Options{Clock: clock, Timeout: time.Minute})
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, snap.Status())
	assert.Equal(t, 1, *calls)
	assert.Empty(t, clock.sleeps, "no sleep after success")
}

func TestWait_FailureShortCircuit(t *testing.T) {
	clock := newFakeClock()
	fetch, calls := sequence(fakeSnapshot{
		status: StatusFailed,
		fields: map[string]interface{}{"error": "Unknown future code XY"},
	})

	snap, err := Wait(context.Background(), fetch, Options{Clock: clock, Timeout: time.Minute})
	require.ErrorIs(t, err, ErrFailed)

	assert.Equal(t, 1, *calls)
	assert.Empty(t, clock.sleeps, "FAILED must exit without sleeping")
	assert.Equal(t, "Unknown future code XY", snap.fields["error"])
}

func TestWait_PendingThenSucceeded(t *testing.T) {
	clock := newFakeClock()
	fetch, calls := sequence(
		fakeSnapshot{status: "QUEUED"},
		fakeSnapshot{status: "RUNNING"},
		fakeSnapshot{status: "RUNNING"},
		fakeSnapshot{status: StatusSucceeded},
	)

	_, err := Wait(context.Background(), fetch, Options{Clock: clock, Timeout: time.Minute})
	require.NoError(t, err)

	assert.Equal(t, 4, *calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, clock.sleeps)
}

func TestWait_PropertyPresenceWinsOverStatus(t *testing.T) {
	clock := newFakeClock()
	fetch, calls := sequence(
		fakeSnapshot{status: "RUNNING"},
		fakeSnapshot{status: "RUNNING", fields: map[string]interface{}{"name": "ES INDEX LONG"}},
	)

	snap, err := Wait(context.Background(), fetch, Options{Clock: clock, Timeout: time.Minute, Property: "name"})
	require.NoError(t, err)

	assert.Equal(t, 2, *calls)
	assert.Equal(t, "RUNNING", snap.Status())
	assert.Len(t, clock.sleeps, 1)
}

func TestWait_Timeout(t *testing.T) {
	clock := newFakeClock()
	fetch, _ := sequence(fakeSnapshot{status: "RUNNING"})

	_, err := Wait(context.Background(), fetch, Options{Clock: clock, Timeout: 10 * time.Second, ObjectID: "obj-9"})
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrTimeout))
	assert.False(t, errors.Is(err, ErrFailed))

	var te *TimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "obj-9", te.ObjectID)
	assert.Contains(t, err.Error(), "obj-9")
	assert.Greater(t, te.Elapsed, 10*time.Second)
}

func TestWait_BackoffMonotonicity(t *testing.T) {
	for _, timeout := range []time.Duration{1, 2, 5, 10, 37, 60, 63, 300} {
		timeout := timeout * time.Second
		t.Run(timeout.String(), func(t *testing.T) {
			clock := newFakeClock()
			fetch, _ := sequence(fakeSnapshot{status: "RUNNING"})

			_, err := Wait(context.Background(), fetch, Options{Clock: clock, Timeout: timeout})
			require.ErrorIs(t, err, ErrTimeout)
			require.NotEmpty(t, clock.sleeps)

			assert.Equal(t, time.Second, clock.sleeps[0])

			var elapsed time.Duration
			for i, d := range clock.sleeps {
				assert.GreaterOrEqual(t, d, time.Second, "never below one unit")
				if i > 0 {
					prev := clock.sleeps[i-1]
					assert.LessOrEqual(t, d, 2*prev, "at most double the previous sleep")

					// A decrease is only allowed when clamped to the remaining budget
					if d < prev {
						remaining := timeout - elapsed
						if remaining < time.Second {
							remaining = time.Second
						}
						assert.Equal(t, remaining, d, "decrease must equal the clamped remaining budget")
					}
				}
				elapsed += d
			}

			last := clock.sleeps[len(clock.sleeps)-1]
			assert.Greater(t, elapsed, timeout)
			assert.LessOrEqual(t, elapsed, timeout+last, "overshoot bounded by one sleep interval")
		})
	}
}

func TestWait_ClampBoundary(t *testing.T) {
	clock := newFakeClock()
	fetch, _ := sequence(fakeSnapshot{status: "RUNNING"})

	_, err := Wait(context.Background(), fetch, Options{Clock: clock, Timeout: 60 * time.Second})
	require.ErrorIs(t, err, ErrTimeout)

	// 1+2+4+8+16 = 31s elapsed, 29s remain, so the sixth sleep is clamped to 29s,
	// and once the budget is spent the floor of one unit applies.
	want := []time.Duration{1, 2, 4, 8, 16, 29, 1}
	for i := range want {
		want[i] *= time.Second
	}
	assert.Equal(t, want, clock.sleeps)
}

func TestNextBackoff(t *testing.T) {
	tests := []struct {
		name    string
		prev    time.Duration
		elapsed time.Duration
		timeout time.Duration
		want    time.Duration
	}{
		{"doubles", time.Second, time.Second, time.Minute, 2 * time.Second},
		{"clamped to remaining", 16 * time.Second, 31 * time.Second, time.Minute, 29 * time.Second},
		{"floor at one unit", 29 * time.Second, 60 * time.Second, time.Minute, time.Second},
		{"floor when overdue", 8 * time.Second, 90 * time.Second, time.Minute, time.Second},
		{"short budget", 4 * time.Second, 0, 2 * time.Second, 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextBackoff(tt.prev, tt.elapsed, tt.timeout, time.Second))
		})
	}
}

func TestWait_CustomUnit(t *testing.T) {
	clock := newFakeClock()
	fetch, _ := sequence(fakeSnapshot{status: "RUNNING"}, fakeSnapshot{status: "RUNNING"}, fakeSnapshot{status: StatusSucceeded})

	_, err := Wait(context.Background(), fetch, Options{Clock: clock, Timeout: time.Second, Unit: 10 * time.Millisecond})
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, clock.sleeps)
}

func TestWait_FetchErrorPropagates(t *testing.T) {
	clock := newFakeClock()
	boom := errors.New("502 Bad Gateway")
	calls := 0
	fetch := func(context.Context) (fakeSnapshot, error) {
		calls++
		return fakeSnapshot{}, boom
	}

	_, err := Wait(context.Background(), fetch, Options{Clock: clock})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 1, calls, "transport errors are not retried")
	assert.Empty(t, clock.sleeps)
}

func TestWait_ContextCancelsSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetch := func(context.Context) (fakeSnapshot, error) {
		cancel()
		return fakeSnapshot{status: "RUNNING"}, nil
	}

	start := time.Now()
	_, err := Wait(ctx, fetch, Options{Timeout: time.Hour, Unit: time.Hour})
	require.ErrorIs(t, err, context.Canceled)

	assert.Less(t, time.Since(start), time.Second)
}

func TestWait_Defaults(t *testing.T) {
	opts := Options{}.withDefaults()

	assert.Equal(t, DefaultTimeout, opts.Timeout)
	assert.Equal(t, time.Second, opts.Unit)
	assert.Equal(t, RealClock, opts.Clock)
	assert.NotNil(t, opts.Logger)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(StatusSucceeded))
	assert.True(t, IsTerminal(StatusFailed))
	assert.False(t, IsTerminal("RUNNING"))
	assert.False(t, IsTerminal(""))
}
