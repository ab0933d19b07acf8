package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/punchcard/pkg/service/worker"
	"github.com/secmon-lab/punchcard/pkg/usecase"
)

type mockSweeper struct {
	mu    sync.Mutex
	calls int
	opts  []usecase.SweepOptions
	err   error
}

func (m *mockSweeper) Run(ctx context.Context, opts usecase.SweepOptions) (*usecase.SweepReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.opts = append(m.opts, opts)
	if m.err != nil {
		return nil, m.err
	}
	return &usecase.SweepReport{}, nil
}

func (m *mockSweeper) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestStaleSessionWorker_ImmediateSweep(t *testing.T) {
	sweeper := &mockSweeper{}
	w := worker.NewStaleSessionWorker(sweeper, time.Hour, usecase.SweepOptions{MarkAbandoned: true})

	gt.NoError(t, w.Start(context.Background())).Required()
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)

	gt.Number(t, sweeper.Calls()).Equal(1)
	sweeper.mu.Lock()
	gt.Bool(t, sweeper.opts[0].MarkAbandoned).True()
	sweeper.mu.Unlock()
}

func TestStaleSessionWorker_PeriodicSweep(t *testing.T) {
	sweeper := &mockSweeper{}
	w := worker.NewStaleSessionWorker(sweeper, 50*time.Millisecond, usecase.SweepOptions{})

	gt.NoError(t, w.Start(context.Background())).Required()
	defer w.Stop()

	time.Sleep(200 * time.Millisecond)

	gt.Bool(t, sweeper.Calls() >= 3).True()
}

func TestStaleSessionWorker_ContinuesAfterError(t *testing.T) {
	sweeper := &mockSweeper{err: errors.New("ledger unavailable")}
	w := worker.NewStaleSessionWorker(sweeper, 50*time.Millisecond, usecase.SweepOptions{})

	gt.NoError(t, w.Start(context.Background())).Required()
	defer w.Stop()

	time.Sleep(200 * time.Millisecond)

	gt.Bool(t, sweeper.Calls() >= 2).True()
}

func TestStaleSessionWorker_StopsCleanly(t *testing.T) {
	sweeper := &mockSweeper{}
	w := worker.NewStaleSessionWorker(sweeper, time.Hour, usecase.SweepOptions{})

	gt.NoError(t, w.Start(context.Background())).Required()
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	w.Stop()
	gt.Bool(t, time.Since(start) < time.Second).True()
}

func TestStaleSessionWorker_StopsOnContextCancel(t *testing.T) {
	sweeper := &mockSweeper{}
	w := worker.NewStaleSessionWorker(sweeper, time.Hour, usecase.SweepOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	gt.NoError(t, w.Start(ctx)).Required()
	time.Sleep(50 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancel")
	}
}
