package scheduling

import (
	"errors"
	"fmt"
	"time"
)

var ErrTimeout = errors.New("timed out waiting for readiness")

// PollUntil invokes probe right away and then every interval, until it reports a
// ready value, fails, or timeout has elapsed since the call started. The probe
// returns ready=true together with the value once the awaited condition holds; a
// non-nil error aborts the poll immediately. The wait is blocking: the caller is
// suspended only while sleeping between attempts.
func PollUntil[T any](probe func() (T, bool, error), interval, timeout time.Duration) (T, error) {
	var zero T
	start := time.Now()
	deadline := start.Add(timeout)
	for {
		value, ready, err := probe()
		if err != nil {
			return zero, err
		}
		if ready {
			return value, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return zero, fmt.Errorf("%w after %v", ErrTimeout, time.Since(start).Round(time.Millisecond))
		}
		if interval < remaining {
			remaining = interval
		}
		time.Sleep(remaining)
	}
}
