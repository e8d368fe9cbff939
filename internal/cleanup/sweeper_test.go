package cleanup

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	mu    sync.Mutex
	calls []time.Time
	err   error
	n     int64
}

func (p *fakePurger) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("sweep without deadline")
	}
	p.calls = append(p.calls, now)
	return p.n, p.err
}

func (p *fakePurger) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestRunOnce_UsesInjectedClock(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := &fakePurger{n: 7}
	s := NewSweeper(p, Config{Now: func() time.Time { return at }}, quiet())

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
	require.Len(t, p.calls, 1)
	assert.Equal(t, at, p.calls[0])
}

func TestRunOnce_ReturnsErrors(t *testing.T) {
	p := &fakePurger{err: errors.New("db down")}
	s := NewSweeper(p, Config{}, quiet())

	_, err := s.RunOnce(context.Background())
	assert.EqualError(t, err, "db down")
}

func TestRun_KeepsGoingAfterFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	p := &fakePurger{err: errors.New("db down")}
	s := NewSweeper(p, Config{Interval: 5 * time.Millisecond, RunOnStart: true}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return p.count() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}

	var failures int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			failures++
		}
	}
	assert.GreaterOrEqual(t, failures, 3)
}

func TestRun_RunOnStart(t *testing.T) {
	p := &fakePurger{}
	s := NewSweeper(p, Config{Interval: time.Hour, RunOnStart: true}, quiet())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	assert.Eventually(t, func() bool { return p.count() == 1 }, time.Second, 5*time.Millisecond)
}
