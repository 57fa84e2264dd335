package iox

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// countingCloser counts Close calls and always fails.
type countingCloser struct{ n atomic.Int32 }

func (c *countingCloser) Close() error {
	c.n.Add(1)
	return errors.New("close failed")
}

func TestCleanupHelpers(t *testing.T) {
	tests := []struct {
		name string
		run  func(c *countingCloser)
	}{
		{"DiscardClose", func(c *countingCloser) { DiscardClose(c) }},
		{"CloseFunc", func(c *countingCloser) { CloseFunc(c)() }},
		{"DiscardErr", func(c *countingCloser) { DiscardErr(c.Close) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &countingCloser{}
			tt.run(c)
			if got := c.n.Load(); got != 1 {
				t.Errorf("Close called %d times, want 1", got)
			}
		})
	}
}

func TestCloseFunc_Deferred(t *testing.T) {
	c := &countingCloser{}
	fn := CloseFunc(c)
	if c.n.Load() != 0 {
		t.Fatal("CloseFunc closed eagerly")
	}
	fn()
	fn()
	if got := c.n.Load(); got != 2 {
		t.Errorf("Close called %d times, want 2", got)
	}
}

func TestCloseOnDone(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	c := &countingCloser{}
	CloseOnDone(ctx, c)
	cancel()

	deadline := time.Now().Add(time.Second)
	for c.n.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Close not called after cancel")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCloseOnDone_StoppedBeforeCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	c := &countingCloser{}

	if stop := CloseOnDone(ctx, c); !stop() {
		t.Fatal("stop() = false, want true before cancel")
	}
	cancel()
	time.Sleep(10 * time.Millisecond)
	if c.n.Load() != 0 {
		t.Error("Close called after stop")
	}
}
