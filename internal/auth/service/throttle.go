package service

import (
	"context"
	"time"
)

// DefaultThrottleSchedule is the delay in seconds after 0, 1, 2, 3 and more
// failed attempts.
var DefaultThrottleSchedule = []int{0, 1, 5, 10, 25}

// AuthThrottle computes login backoff from the failure counter and the time
// of the last attempt, both of which live in the store. It keeps no state of
// its own.
type AuthThrottle struct {
	// Schedule overrides DefaultThrottleSchedule. The last entry applies to
	// every count beyond it.
	Schedule []int

	now func() time.Time
}

func (t *AuthThrottle) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

// AuthenticationThrottle returns the delay in seconds imposed after
// failedAttempts consecutive failures.
func (t *AuthThrottle) AuthenticationThrottle(failedAttempts int) int {
	schedule := t.Schedule
	if len(schedule) == 0 {
		schedule = DefaultThrottleSchedule
	}
	switch {
	case failedAttempts <= 0:
		return schedule[0]
	case failedAttempts >= len(schedule):
		return schedule[len(schedule)-1]
	}
	return schedule[failedAttempts]
}

// DelayForNextAttempt returns how many seconds the user must still wait
// before a password attempt is considered.
func (t *AuthThrottle) DelayForNextAttempt(ctx context.Context, u User) (int, error) {
	failed, err := u.FailedLoginAttempts(ctx)
	if err != nil {
		return 0, err
	}
	throttle := t.AuthenticationThrottle(failed)
	if throttle == 0 {
		return 0, nil
	}

	last, err := u.LastLoginAttempt(ctx)
	if err != nil {
		return 0, err
	}
	elapsed := int(t.clock().Sub(last) / time.Second)
	return max(throttle-elapsed, 0), nil
}
