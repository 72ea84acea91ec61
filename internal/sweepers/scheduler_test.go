package sweepers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func TestSchedulerRunsJobImmediately(t *testing.T) {
	var runs int64
	s := NewScheduler(testLogger(), Job{
		Name:     "test",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&runs, 1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go s.Start(ctx)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&runs) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
}

func TestSchedulerTicksOnInterval(t *testing.T) {
	var runs int64
	s := NewScheduler(testLogger(), Job{
		Name:     "test",
		Interval: 20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&runs, 1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&runs) >= 3
	}, time.Second, 10*time.Millisecond)
}

func TestSchedulerSurvivesFailingJob(t *testing.T) {
	var runs int64
	s := NewScheduler(testLogger(), Job{
		Name:     "flaky",
		Interval: 20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&runs, 1)
			return errors.New("transient failure")
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&runs) >= 2
	}, time.Second, 10*time.Millisecond)
}

func TestSchedulerStops(t *testing.T) {
	done := make(chan struct{})
	s := NewScheduler(testLogger(), Job{
		Name:     "test",
		Interval: time.Hour,
		Run:      func(ctx context.Context) error { return nil },
	})

	go func() {
		s.Start(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
