package testutil

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWSURL(t *testing.T) {
	tests := []struct {
		in, path, want string
	}{
		{"http://127.0.0.1:1234", "/sync", "ws://127.0.0.1:1234/sync"},
		{"https://example.org", "", "wss://example.org"},
		{"ws://host", "/x", "ws://host/x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WSURL(tt.in, tt.path))
	}
}

func TestWaitFor(t *testing.T) {
	var n atomic.Int32
	go func() {
		for range 3 {
			time.Sleep(time.Millisecond)
			n.Add(1)
		}
	}()
	WaitFor(t, func() bool { return n.Load() == 3 }, time.Second)
}

func TestContextWithTimeout(t *testing.T) {
	ctx := ContextWithTimeout(t, time.Millisecond)
	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}
