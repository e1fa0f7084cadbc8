package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"momentum-scanner/internal/metrics"
	"momentum-scanner/pkg/types"
)

const backupQueueSize = 1024

// UpsertResult 写入结果
type UpsertResult int

const (
	Rejected UpsertResult = iota // 时间戳倒序或重复，已忽略
	Appended                     // 追加新K线
	Replaced                     // 替换未收盘的最后一根
)

func (r UpsertResult) String() string {
	switch r {
	case Appended:
		return "appended"
	case Replaced:
		return "replaced"
	default:
		return "rejected"
	}
}

// seriesKey 交易对+周期
type seriesKey struct {
	symbol   string
	interval string
}

// BarSeries 单个交易对单个周期的有界K线序列
type BarSeries struct {
	bars      []types.Bar
	tailFinal bool // 最后一根是否已收盘
	mutex     sync.Mutex
}

// backupJob 待备份的已收盘K线
type backupJob struct {
	symbol   string
	interval string
	bar      types.Bar
}

// BarStore K线状态管理器，独占所有序列
type BarStore struct {
	series  map[seriesKey]*BarSeries
	mutex   sync.RWMutex
	maxBars int
	backup  *RedisBackup
	now     func() time.Time

	// 备份队列，单个协程顺序写入Redis，Close时排空
	saveBar      func(ctx context.Context, symbol, interval string, bar types.Bar) error
	backupCh     chan backupJob
	backupMu     sync.RWMutex
	backupClosed bool
	backupWG     sync.WaitGroup
}

// NewBarStore 创建K线存储，backup为nil时纯内存运行
func NewBarStore(maxBars int, backup *RedisBackup) *BarStore {
	bs := &BarStore{
		series:  make(map[seriesKey]*BarSeries),
		maxBars: maxBars,
		backup:  backup,
		now:     time.Now,
	}

	if backup.Enabled() {
		bs.saveBar = func(ctx context.Context, symbol, interval string, bar types.Bar) error {
			return backup.SaveBar(ctx, symbol, interval, bar, maxBars)
		}
		bs.startBackupWorker()
	}
	return bs
}

func (bs *BarStore) startBackupWorker() {
	bs.backupCh = make(chan backupJob, backupQueueSize)
	bs.backupWG.Add(1)
	go bs.backupLoop()
}

// MaxBars 每个序列的保留上限
func (bs *BarStore) MaxBars() int {
	return bs.maxBars
}

func (bs *BarStore) get(symbol, interval string) *BarSeries {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()
	return bs.series[seriesKey{symbol, interval}]
}

func (bs *BarStore) getOrCreate(symbol, interval string) *BarSeries {
	key := seriesKey{symbol, interval}

	bs.mutex.RLock()
	s := bs.series[key]
	bs.mutex.RUnlock()
	if s != nil {
		return s
	}

	bs.mutex.Lock()
	defer bs.mutex.Unlock()
	if s = bs.series[key]; s == nil {
		s = &BarSeries{bars: make([]types.Bar, 0, bs.maxBars)}
		bs.series[key] = s
	}
	return s
}

// Upsert 合并一根K线
//
// 最后一根未收盘且时间不早于它：替换；最后一根已收盘且时间更新：追加并淘汰最旧；
// 空序列直接追加；其他情况（倒序、重复）拒绝并记录告警。
func (bs *BarStore) Upsert(symbol, interval string, bar types.Bar, isFinal bool) UpsertResult {
	s := bs.getOrCreate(symbol, interval)

	s.mutex.Lock()
	result := s.upsert(bar, isFinal, bs.maxBars)
	s.mutex.Unlock()

	if result == Rejected {
		zap.L().Warn("⚠️ K线时间戳倒序或重复，已忽略",
			zap.String("symbol", symbol),
			zap.String("interval", interval),
			zap.Time("open_time", bar.OpenTime),
			zap.Bool("final", isFinal))
		return result
	}

	// 只备份已收盘的K线
	if isFinal {
		bs.enqueueBackup(backupJob{symbol: symbol, interval: interval, bar: bar})
	}
	return result
}

func (s *BarSeries) upsert(bar types.Bar, isFinal bool, maxBars int) UpsertResult {
	n := len(s.bars)
	if n == 0 {
		s.bars = append(s.bars, bar)
		s.tailFinal = isFinal
		return Appended
	}

	tail := s.bars[n-1]
	switch {
	case !s.tailFinal && !bar.OpenTime.Before(tail.OpenTime):
		if bar.OpenTime.Equal(tail.OpenTime) {
			s.bars[n-1] = bar
			s.tailFinal = isFinal
			return Replaced
		}
		// 上一根未收到收盘推送就进入了下一根，按新K线追加
		s.appendBar(bar, maxBars)
		s.tailFinal = isFinal
		return Appended
	case s.tailFinal && bar.OpenTime.After(tail.OpenTime):
		s.appendBar(bar, maxBars)
		s.tailFinal = isFinal
		return Appended
	default:
		return Rejected
	}
}

func (s *BarSeries) appendBar(bar types.Bar, maxBars int) {
	s.bars = append(s.bars, bar)
	if maxBars > 0 && len(s.bars) > maxBars {
		// 复制到新切片，避免底层数组无限增长
		trimmed := make([]types.Bar, maxBars, maxBars+1)
		copy(trimmed, s.bars[len(s.bars)-maxBars:])
		s.bars = trimmed
	}
}

// Series 返回序列快照，未知序列返回空
func (bs *BarStore) Series(symbol, interval string) []types.Bar {
	s := bs.get(symbol, interval)
	if s == nil {
		return []types.Bar{}
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]types.Bar, len(s.bars))
	copy(out, s.bars)
	return out
}

// Closes 返回序列收盘价
func (bs *BarStore) Closes(symbol, interval string) []float64 {
	return types.Closes(bs.Series(symbol, interval))
}

// Len 序列长度
func (bs *BarStore) Len(symbol, interval string) int {
	s := bs.get(symbol, interval)
	if s == nil {
		return 0
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.bars)
}

// Replace 用历史数据整体替换序列
// 输入按开盘时间排序去重后保留最近maxBars根；最后一根的周期尚未结束时视为未收盘
func (bs *BarStore) Replace(symbol, interval string, bars []types.Bar) int {
	sorted := make([]types.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OpenTime.Before(sorted[j].OpenTime)
	})

	deduped := sorted[:0]
	for _, b := range sorted {
		if n := len(deduped); n > 0 && deduped[n-1].OpenTime.Equal(b.OpenTime) {
			deduped[n-1] = b
			continue
		}
		deduped = append(deduped, b)
	}
	if bs.maxBars > 0 && len(deduped) > bs.maxBars {
		deduped = deduped[len(deduped)-bs.maxBars:]
	}

	tailFinal := true
	if n := len(deduped); n > 0 {
		closeAt := deduped[n-1].OpenTime.Add(types.IntervalDuration(interval))
		tailFinal = !closeAt.After(bs.now())
	}

	s := bs.getOrCreate(symbol, interval)
	s.mutex.Lock()
	s.bars = append(make([]types.Bar, 0, bs.maxBars), deduped...)
	s.tailFinal = tailFinal
	s.mutex.Unlock()

	return len(deduped)
}

// Symbols 已有数据的交易对（去重、排序）
func (bs *BarStore) Symbols() []string {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	seen := make(map[string]struct{}, len(bs.series))
	symbols := make([]string, 0, len(bs.series))
	for key := range bs.series {
		if _, ok := seen[key.symbol]; ok {
			continue
		}
		seen[key.symbol] = struct{}{}
		symbols = append(symbols, key.symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Restore 从Redis备份恢复序列，返回恢复的K线数
func (bs *BarStore) Restore(ctx context.Context, symbol, interval string) (int, error) {
	if !bs.backup.Enabled() {
		return 0, nil
	}
	bars, err := bs.backup.LoadSeries(ctx, symbol, interval, bs.maxBars)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, nil
	}
	return bs.Replace(symbol, interval, bars), nil
}

// enqueueBackup 非阻塞投递，队列满时丢弃，不拖慢K线写入
func (bs *BarStore) enqueueBackup(job backupJob) {
	bs.backupMu.RLock()
	defer bs.backupMu.RUnlock()

	if bs.backupCh == nil || bs.backupClosed {
		return
	}

	select {
	case bs.backupCh <- job:
	default:
		metrics.MessagesDropped.WithLabelValues("backup_full").Inc()
		zap.L().Warn("⚠️ 备份队列已满，丢弃K线备份",
			zap.String("symbol", job.symbol),
			zap.String("interval", job.interval))
	}
}

// backupLoop 顺序备份已收盘K线到Redis
func (bs *BarStore) backupLoop() {
	defer bs.backupWG.Done()

	for job := range bs.backupCh {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := bs.saveBar(ctx, job.symbol, job.interval, job.bar); err != nil {
			zap.L().Warn("Redis备份K线失败",
				zap.String("symbol", job.symbol),
				zap.String("interval", job.interval),
				zap.Error(err))
		}
		cancel()
	}
}

// Close 停止接收备份并等待队列中的K线写完，之后才能关闭Redis连接
func (bs *BarStore) Close() {
	bs.backupMu.Lock()
	if bs.backupCh != nil && !bs.backupClosed {
		bs.backupClosed = true
		close(bs.backupCh)
	}
	bs.backupMu.Unlock()

	bs.backupWG.Wait()
}

// GetStats 获取存储统计信息
func (bs *BarStore) GetStats() map[string]interface{} {
	bs.mutex.RLock()
	seriesCount := len(bs.series)
	totalBars := 0
	for _, s := range bs.series {
		s.mutex.Lock()
		totalBars += len(s.bars)
		s.mutex.Unlock()
	}
	bs.mutex.RUnlock()

	stats := map[string]interface{}{
		"series":        seriesCount,
		"total_bars":    totalBars,
		"max_bars":      bs.maxBars,
		"redis_enabled": bs.backup.Enabled(),
	}
	if bs.backup.Enabled() {
		stats["redis"] = bs.backup.GetStats()
		stats["backup_queue"] = len(bs.backupCh)
	}
	return stats
}
