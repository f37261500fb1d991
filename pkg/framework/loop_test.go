package framework

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	lock  sync.Mutex
	calls []string
	iters []uint64
}

func (r *recorder) controller(name string) Controller {
	return ControlFunc(func(cc ControlContext) error {
		r.lock.Lock()
		defer r.lock.Unlock()
		r.calls = append(r.calls, name)
		r.iters = append(r.iters, cc.Iteration())
		return nil
	})
}

func (r *recorder) snapshot() ([]string, []uint64) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.calls...), append([]uint64(nil), r.iters...)
}

func TestLoopFirstIterationImmediate(t *testing.T) {
	var rec recorder
	loop := NewLoop()
	loop.Interval = time.Hour
	loop.AddController(PrLvControl, rec.controller("ctl"))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()
	require.Eventually(t, func() bool {
		calls, _ := rec.snapshot()
		return len(calls) == 1
	}, time.Second, time.Millisecond)
	cancel()
	require.Equal(t, context.Canceled, <-errCh)
}

func TestLoopPriorityOrder(t *testing.T) {
	var rec recorder
	loop := NewLoop()
	loop.Interval = 10 * time.Millisecond
	loop.AddController(PrLvPostProc, rec.controller("post"))
	loop.AddController(PrLvSense, rec.controller("sense"))
	loop.AddController(PrLvControl, rec.controller("control"))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()
	require.Eventually(t, func() bool {
		calls, _ := rec.snapshot()
		return len(calls) >= 6
	}, time.Second, time.Millisecond)
	cancel()
	<-errCh
	calls, iters := rec.snapshot()
	require.Equal(t, []string{"sense", "control", "post", "sense", "control", "post"}, calls[:6])
	require.Equal(t, []uint64{1, 1, 1, 2, 2, 2}, iters[:6])
}

func TestLoopStopsWhenRunnableExits(t *testing.T) {
	failure := errors.New("stream closed")
	var cancelled bool
	loop := NewLoop()
	loop.Interval = time.Hour
	loop.AddRunnable(
		RunFunc(func(ctx context.Context) error {
			return failure
		}),
		RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			cancelled = true
			return ctx.Err()
		}),
	)
	require.Equal(t, failure, loop.Run(context.Background()))
	require.True(t, cancelled)
}

func TestLoopControllerRunnable(t *testing.T) {
	ctl := &runnableController{started: make(chan struct{})}
	loop := NewLoop()
	loop.AddController(PrLvControl, ctl)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()
	select {
	case <-ctl.started:
	case <-time.After(time.Second):
		t.Fatal("controller not started as Runnable")
	}
	cancel()
	require.Equal(t, context.Canceled, <-errCh)
}

type runnableController struct {
	started chan struct{}
}

func (c *runnableController) Control(ControlContext) error { return nil }

func (c *runnableController) Run(ctx context.Context) error {
	close(c.started)
	<-ctx.Done()
	return ctx.Err()
}
