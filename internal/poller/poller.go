// Package poller drives a remote object from PENDING to a terminal state.
//
// The loop re-fetches the object, exits on SUCCEEDED (or when the requested
// property appears), exits without sleeping on FAILED, and otherwise sleeps
// with exponential backoff clamped to the remaining budget.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/sigapi/pkg/logger"
)

// Server status sentinels
const (
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
)

// IsTerminal reports whether status is SUCCEEDED or FAILED
func IsTerminal(status string) bool {
	return status == StatusSucceeded || status == StatusFailed
}

// DefaultTimeout applies when Options.Timeout is zero
const DefaultTimeout = 300 * time.Second

var (
	// ErrTimeout matches every *TimeoutError
	ErrTimeout = errors.New("timed out waiting for object")

	// ErrFailed is returned together with the last snapshot when the server reports FAILED
	ErrFailed = errors.New("object reached FAILED status")
)

// Snapshot is one fetched representation of a remote object
type Snapshot interface {
	Status() string
	Has(property string) bool
}

// TimeoutError reports that the budget ran out before a terminal state
type TimeoutError struct {
	ObjectID string
	Property string
	Timeout  time.Duration
	Elapsed  time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Property != "" {
		return fmt.Sprintf("timeout waiting for object_id=%s property=%s after %v (budget %v)", e.ObjectID, e.Property, e.Elapsed.Round(time.Millisecond), e.Timeout)
	}
	return fmt.Sprintf("timeout waiting for object_id=%s after %v (budget %v)", e.ObjectID, e.Elapsed.Round(time.Millisecond), e.Timeout)
}

// Is makes errors.Is(err, ErrTimeout) true
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Clock abstracts time for tests
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RealClock is the wall clock
var RealClock Clock = realClock{}

// Options configures one Wait call
type Options struct {
	Property string        // 지정 시 해당 속성이 나타나면 성공으로 간주
	Timeout  time.Duration // 0 ⇒ DefaultTimeout
	Unit     time.Duration // backoff base, 0 ⇒ 1s
	Clock    Clock         // nil ⇒ RealClock
	ObjectID string        // error text only
	Logger   *logger.Logger
	Progress bool // log every poll at info level
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Unit <= 0 {
		o.Unit = time.Second
	}
	if o.Clock == nil {
		o.Clock = RealClock
	}
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	return o
}

// NextBackoff doubles prev, clamped to the remaining budget and floored at one unit.
// Near the end of the budget the result may be smaller than prev.
func NextBackoff(prev, elapsed, timeout, unit time.Duration) time.Duration {
	remaining := timeout - elapsed
	if remaining < unit {
		remaining = unit
	}
	next := prev * 2
	if remaining < next {
		return remaining
	}
	return next
}

// Wait polls fetch until the object is terminal or the property is present.
//
// Returns (snapshot, nil) on success, (snapshot, ErrFailed) on FAILED and
// (last snapshot, *TimeoutError) when the budget is exhausted. Fetch errors
// and context cancellation propagate immediately.
func Wait[T Snapshot](ctx context.Context, fetch func(context.Context) (T, error), opts Options) (T, error) {
	opts = opts.withDefaults()
	log := opts.Logger.WithFields(map[string]interface{}{
		"object_id": opts.ObjectID,
		"property":  opts.Property,
	})

	start := opts.Clock.Now()
	backoff := opts.Unit

	for attempt := 1; ; attempt++ {
		snap, err := fetch(ctx)
		if err != nil {
			return snap, err
		}

		status := snap.Status()
		if opts.Property != "" && snap.Has(opts.Property) {
			return snap, nil
		}
		if status == StatusSucceeded {
			return snap, nil
		}
		if status == StatusFailed {
			log.Debug("Object reached FAILED status")
			return snap, ErrFailed
		}

		if opts.Progress {
			log.Infof("Waiting for object (status=%s, attempt=%d, elapsed=%v)", status, attempt, opts.Clock.Now().Sub(start).Round(time.Second))
		} else {
			log.Debugf("Object pending (status=%s, attempt=%d, sleep=%v)", status, attempt, backoff)
		}

		if err := opts.Clock.Sleep(ctx, backoff); err != nil {
			return snap, err
		}

		elapsed := opts.Clock.Now().Sub(start)
		backoff = NextBackoff(backoff, elapsed, opts.Timeout, opts.Unit)

		if elapsed > opts.Timeout {
			return snap, &TimeoutError{
				ObjectID: opts.ObjectID,
				Property: opts.Property,
				Timeout:  opts.Timeout,
				Elapsed:  elapsed,
			}
		}
	}
}
