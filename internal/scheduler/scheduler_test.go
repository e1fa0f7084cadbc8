package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"momentum-scanner/pkg/types"
)

type fakeTarget struct {
	mutex      sync.Mutex
	refreshes  int
	triggers   []string
	refreshErr error
}

func (f *fakeTarget) RefreshReference(ctx context.Context) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.refreshes++
	return f.refreshErr
}

func (f *fakeTarget) EvaluateAll(trigger string) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.triggers = append(f.triggers, trigger)
	return 3
}

func (f *fakeTarget) counts() (int, int) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.refreshes, len(f.triggers)
}

func TestRunOnceWithoutRefresh(t *testing.T) {
	target := &fakeTarget{}
	s := NewScheduler(types.SchedulerConfig{}, target)

	s.RunOnce()

	refreshes, evaluations := target.counts()
	assert.Equal(t, 0, refreshes)
	assert.Equal(t, 1, evaluations)
	assert.Equal(t, []string{"scheduler"}, target.triggers)

	stats := s.GetStats()
	assert.Equal(t, defaultSpec, stats["spec"])
	assert.Equal(t, 1, stats["runs"])
	assert.NotContains(t, stats, "last_error")
}

func TestRunOnceRefreshFailureStillEvaluates(t *testing.T) {
	target := &fakeTarget{refreshErr: errors.New("boom")}
	s := NewScheduler(types.SchedulerConfig{Spec: "@every 1h", RefreshReference: true}, target)

	s.RunOnce()

	refreshes, evaluations := target.counts()
	assert.Equal(t, 1, refreshes)
	assert.Equal(t, 1, evaluations)
	assert.Equal(t, "boom", s.GetStats()["last_error"])
}

func TestStartRunsOnSchedule(t *testing.T) {
	target := &fakeTarget{}
	s := NewScheduler(types.SchedulerConfig{Spec: "@every 1s"}, target)

	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Error(t, s.Start())

	assert.Eventually(t, func() bool {
		_, evaluations := target.counts()
		return evaluations >= 1
	}, 5*time.Second, 50*time.Millisecond)
}

func TestStartRejectsInvalidSpec(t *testing.T) {
	s := NewScheduler(types.SchedulerConfig{Spec: "not a cron spec"}, &fakeTarget{})
	assert.Error(t, s.Start())

	// 未启动时Stop直接返回
	s.Stop()
}

type blockingTarget struct {
	entered   chan struct{}
	refreshed chan error
	evaluated chan struct{}
}

func (b *blockingTarget) RefreshReference(ctx context.Context) error {
	close(b.entered)
	<-ctx.Done()
	b.refreshed <- ctx.Err()
	return ctx.Err()
}

func (b *blockingTarget) EvaluateAll(trigger string) int {
	close(b.evaluated)
	return 0
}

func TestStopCancelsRunningRefresh(t *testing.T) {
	target := &blockingTarget{
		entered:   make(chan struct{}),
		refreshed: make(chan error, 1),
		evaluated: make(chan struct{}),
	}
	s := NewScheduler(types.SchedulerConfig{Spec: "@every 1s", RefreshReference: true}, target)
	require.NoError(t, s.Start())

	select {
	case <-target.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh was not triggered")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return while a refresh was running")
	}

	assert.ErrorIs(t, <-target.refreshed, context.Canceled)
	select {
	case <-target.evaluated:
		t.Fatal("evaluation ran after Stop")
	default:
	}
}

func TestRunOnceLogsBoardSignals(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	s := NewScheduler(types.SchedulerConfig{}, &fakeTarget{})
	s.RunOnce()

	entries := logs.FilterMessage("🔄 定时评估完成").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, 3, fields["board_signals"])
	assert.NotContains(t, fields, "symbols")
}
