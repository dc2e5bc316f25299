package testutil

import (
	"context"
	"testing"
	"time"
)

// GetTestContext returns a context bounded by the shorter of testTimeout and
// the test binary's own -timeout deadline, so a hung operation fails the test
// that started it rather than the whole run. A zero testTimeout defers to the
// binary deadline alone.
func GetTestContext(t *testing.T, testTimeout time.Duration) (context.Context, context.CancelFunc) {
	var deadline time.Time
	if d, haveDeadline := t.Deadline(); haveDeadline {
		deadline = d
	}

	if testTimeout > 0 {
		if testDeadline := time.Now().Add(testTimeout); deadline.IsZero() || testDeadline.Before(deadline) {
			deadline = testDeadline
		}
	}

	if deadline.IsZero() {
		return context.WithCancel(context.Background())
	}
	return context.WithDeadline(context.Background(), deadline)
}
