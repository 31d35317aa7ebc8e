package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/partnerledger/core/internal/scheduler"
	"go.uber.org/zap"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

func TestRunForeverStopsOnContextCancel(t *testing.T) {
	mon := scheduler.New(scheduler.Params{
		Log:   zap.NewNop(),
		Cfg:   scheduler.Config{CheckInterval: 10 * time.Millisecond, MemoryWarningThresholdMB: 1},
		Clock: fakeClock{now: time.Now()},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mon.RunForever(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected RunForever to return after context cancellation")
	}
}
