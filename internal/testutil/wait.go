package testutil

import (
	"testing"
	"time"
)

// WaitFor polls check until it returns true and fails the test after
// timeout. Used instead of time.Sleep when a goroutine must catch up.
func WaitFor(t testing.TB, check func() bool, timeout time.Duration) {
	t.Helper()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		if check() {
			return
		}
		select {
		case <-deadline.C:
			t.Fatalf("condition not met within %v", timeout)
		case <-ticker.C:
		}
	}
}
