package monitor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"momentum-scanner/internal/strategy/engine"
	"momentum-scanner/pkg/types"
)

// Source 被监控的扫描引擎
type Source interface {
	GetStats() map[string]interface{}
	Board() *engine.Board
}

// StatsProvider 提供统计信息的组件，如定时评估
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// HealthChecker 可检查连接状态的组件，如MySQL归档
type HealthChecker interface {
	Health() error
}

// PerformanceMonitor 扫描器运行状态监控，定期输出统计报告
type PerformanceMonitor struct {
	source    Source
	scheduler StatsProvider // 可为空
	archive   HealthChecker // 可为空
	interval  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mutex   sync.Mutex
	metrics *PerformanceMetrics
}

// PerformanceMetrics 性能指标
type PerformanceMetrics struct {
	StartTime       time.Time                 `json:"start_time"`
	ProcessedBars   int64                     `json:"processed_bars"`
	RejectedBars    int64                     `json:"rejected_bars"`
	Evaluations     int64                     `json:"evaluations"`
	SignalsFound    int64                     `json:"signals_found"`
	SignalFrequency float64                   `json:"signal_frequency"` // 信号/小时
	BoardSignals    int                       `json:"board_signals"`
	LongSignals     int                       `json:"long_signals"`
	ShortSignals    int                       `json:"short_signals"`
	ByKind          map[types.Kind]int        `json:"by_kind"`
	SymbolStats     map[string]*SymbolMetrics `json:"symbol_stats"`
	BoardUpdatedAt  time.Time                 `json:"board_updated_at"`
	SchedulerRuns   int                       `json:"scheduler_runs"`
	ArchiveStatus   string                    `json:"archive_status"`
	LastUpdateTime  time.Time                 `json:"last_update_time"`
}

// SymbolMetrics 单个交易对当前面板上的信号
type SymbolMetrics struct {
	Symbol     string      `json:"symbol"`
	Direction  string      `json:"direction"`
	Kind       types.Kind  `json:"kind"`
	Score      int         `json:"score"`
	Grade      types.Grade `json:"grade"`
	StopHunt   int         `json:"stop_hunt"`
	LastSignal time.Time   `json:"last_signal"`
	Entry      float64     `json:"entry,omitempty"`
}

// NewPerformanceMonitor 创建性能监控器
func NewPerformanceMonitor(source Source, scheduler StatsProvider, archive HealthChecker, config types.MonitorConfig) *PerformanceMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	interval := config.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &PerformanceMonitor{
		source:    source,
		scheduler: scheduler,
		archive:   archive,
		interval:  interval,
		ctx:       ctx,
		cancel:    cancel,
		metrics: &PerformanceMetrics{
			StartTime:   time.Now(),
			ByKind:      make(map[types.Kind]int),
			SymbolStats: make(map[string]*SymbolMetrics),
		},
	}
}

// Start 启动性能监控
func (pm *PerformanceMonitor) Start() {
	zap.L().Info("📊 启动扫描器性能监控", zap.Duration("interval", pm.interval))

	pm.wg.Add(1)
	go pm.reportLoop()
}

// reportLoop 报告循环
func (pm *PerformanceMonitor) reportLoop() {
	defer pm.wg.Done()

	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			pm.generateReport()
		}
	}
}

// updateMetrics 从引擎统计和当前面板刷新指标
func (pm *PerformanceMonitor) updateMetrics() *PerformanceMetrics {
	stats := pm.source.GetStats()
	board := pm.source.Board()

	schedulerRuns := 0
	if pm.scheduler != nil {
		if runs, ok := pm.scheduler.GetStats()["runs"].(int); ok {
			schedulerRuns = runs
		}
	}

	archiveStatus := "disabled"
	if pm.archive != nil {
		if err := pm.archive.Health(); err != nil {
			archiveStatus = "error: " + err.Error()
		} else {
			archiveStatus = "ok"
		}
	}

	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	m := pm.metrics
	m.ProcessedBars = int64Stat(stats, "processed_bars")
	m.RejectedBars = int64Stat(stats, "rejected_bars")
	m.Evaluations = int64Stat(stats, "evaluations")
	m.SignalsFound = int64Stat(stats, "signals_found")

	if runTime := time.Since(m.StartTime).Hours(); runTime > 0 {
		m.SignalFrequency = float64(m.SignalsFound) / runTime
	}

	m.BoardSignals = board.Len()
	m.BoardUpdatedAt = board.UpdatedAt
	m.ByKind = board.CountByKind()
	m.LongSignals = len(board.Filter(types.Long))
	m.ShortSignals = len(board.Filter(types.Short))

	// 面板整体替换，交易对统计也整体重建
	symbolStats := make(map[string]*SymbolMetrics, len(board.Signals))
	for _, s := range board.Signals {
		sm := &SymbolMetrics{
			Symbol:     s.Symbol,
			Direction:  string(s.Direction),
			Kind:       s.Kind,
			Score:      s.Score,
			Grade:      s.Grade,
			StopHunt:   s.StopHuntProbability,
			LastSignal: s.UpdatedAt,
		}
		if s.Levels != nil {
			sm.Entry = s.Levels.Entry
		}
		symbolStats[s.Symbol+"/"+sm.Direction] = sm
	}
	m.SymbolStats = symbolStats
	m.SchedulerRuns = schedulerRuns
	m.ArchiveStatus = archiveStatus
	m.LastUpdateTime = time.Now()

	snapshot := *m
	return &snapshot
}

func int64Stat(stats map[string]interface{}, key string) int64 {
	switch v := stats[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

// generateReport 生成性能报告
func (pm *PerformanceMonitor) generateReport() {
	m := pm.updateMetrics()

	zap.L().Info("📈 扫描器运行报告",
		zap.Duration("run_time", time.Since(m.StartTime).Truncate(time.Second)),
		zap.Int64("processed_bars", m.ProcessedBars),
		zap.Int64("rejected_bars", m.RejectedBars),
		zap.Int64("evaluations", m.Evaluations),
		zap.Int64("signals_found", m.SignalsFound),
		zap.Float64("signal_frequency", m.SignalFrequency),
		zap.Int("board_signals", m.BoardSignals),
		zap.Int("long_signals", m.LongSignals),
		zap.Int("short_signals", m.ShortSignals),
		zap.Int("scheduler_runs", m.SchedulerRuns),
		zap.String("archive", m.ArchiveStatus))

	if m.ArchiveStatus != "ok" && m.ArchiveStatus != "disabled" {
		zap.L().Warn("⚠️ MySQL归档连接异常", zap.String("status", m.ArchiveStatus))
	}

	for key, sm := range m.SymbolStats {
		zap.L().Info("📊 面板信号",
			zap.String("key", key),
			zap.String("kind", string(sm.Kind)),
			zap.Int("score", sm.Score),
			zap.String("grade", string(sm.Grade)),
			zap.Int("stop_hunt", sm.StopHunt),
			zap.Float64("entry", sm.Entry),
			zap.Time("last_signal", sm.LastSignal))
	}
}

// GetMetrics 获取当前性能指标快照
func (pm *PerformanceMonitor) GetMetrics() *PerformanceMetrics {
	return pm.updateMetrics()
}

// GetMetricsJSON 获取JSON格式的性能指标
func (pm *PerformanceMonitor) GetMetricsJSON() (string, error) {
	data, err := json.MarshalIndent(pm.GetMetrics(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Stop 停止性能监控，并输出最后一次报告
func (pm *PerformanceMonitor) Stop() {
	zap.L().Info("🛑 停止扫描器性能监控")
	pm.cancel()
	pm.wg.Wait()
	pm.generateReport()
}
