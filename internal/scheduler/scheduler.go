package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"momentum-scanner/pkg/types"
)

const defaultSpec = "@every 1h"

// Target 定时评估的对象
type Target interface {
	RefreshReference(ctx context.Context) error
	EvaluateAll(trigger string) int
}

// Scheduler 定时兜底评估，即使WebSocket断线也能按周期刷新面板
type Scheduler struct {
	cron    *cron.Cron
	target  Target
	spec    string
	refresh bool
	timeout time.Duration

	// Stop时取消正在进行的参考周期刷新
	ctx    context.Context
	cancel context.CancelFunc

	mutex   sync.Mutex
	runs    int
	lastRun time.Time
	lastErr error
	started bool
}

func NewScheduler(config types.SchedulerConfig, target Target) *Scheduler {
	spec := config.Spec
	if spec == "" {
		spec = defaultSpec
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		ctx:     ctx,
		cancel:  cancel,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		target:  target,
		spec:    spec,
		refresh: config.RefreshReference,
		timeout: 2 * time.Minute,
	}
}

// Start 注册任务并启动
func (s *Scheduler) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.started {
		return fmt.Errorf("调度器已启动")
	}

	if _, err := s.cron.AddFunc(s.spec, s.RunOnce); err != nil {
		return fmt.Errorf("注册定时评估任务失败 %q: %w", s.spec, err)
	}

	s.cron.Start()
	s.started = true

	zap.L().Info("⏰ 定时评估已启动",
		zap.String("spec", s.spec),
		zap.Bool("refresh_reference", s.refresh))
	return nil
}

// RunOnce 执行一次评估，可在定时任务外手动触发
func (s *Scheduler) RunOnce() {
	if s.ctx.Err() != nil {
		return
	}
	start := time.Now()

	var refreshErr error
	if s.refresh {
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		refreshErr = s.target.RefreshReference(ctx)
		cancel()
		if refreshErr != nil {
			// 参考周期刷新失败不影响主周期评估
			zap.L().Warn("⚠️ 刷新参考周期K线失败", zap.Error(refreshErr))
		}
	}

	// 已停止时不再评估
	if s.ctx.Err() != nil {
		return
	}
	evaluated := s.target.EvaluateAll("scheduler")

	s.mutex.Lock()
	s.runs++
	s.lastRun = start
	s.lastErr = refreshErr
	s.mutex.Unlock()

	zap.L().Info("🔄 定时评估完成",
		zap.Int("board_signals", evaluated),
		zap.Duration("elapsed", time.Since(start)))
}

// Stop 取消正在进行的刷新，停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.cancel()

	s.mutex.Lock()
	started := s.started
	s.started = false
	s.mutex.Unlock()

	if !started {
		return
	}

	select {
	case <-s.cron.Stop().Done():
		zap.L().Info("✅ 定时评估已停止")
	case <-time.After(30 * time.Second):
		zap.L().Warn("⚠️ 等待定时评估任务结束超时")
	}
}

func (s *Scheduler) GetStats() map[string]interface{} {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	stats := map[string]interface{}{
		"spec":     s.spec,
		"runs":     s.runs,
		"last_run": s.lastRun,
	}
	if s.lastErr != nil {
		stats["last_error"] = s.lastErr.Error()
	}
	return stats
}
