package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"momentum-scanner/internal/metrics"
	"momentum-scanner/internal/storage"
	"momentum-scanner/internal/strategy/signals"
	"momentum-scanner/pkg/types"
)

// BarSource 实时K线来源
type BarSource interface {
	Start()
	Updates() <-chan types.BarUpdate
	IsConnected() bool
	Close() error
}

// HistoryFetcher 历史K线来源，批量获取时自行限速，失败的交易对不在结果中
type HistoryFetcher interface {
	FetchMultipleSymbolsHistory(ctx context.Context, symbols []string, interval string, limit int) map[string][]types.Bar
}

// Archive 已收盘K线归档
type Archive interface {
	SaveBar(ctx context.Context, symbol, interval string, bar types.Bar) error
	BatchSaveBars(ctx context.Context, symbol, interval string, bars []types.Bar) error
	GetBars(ctx context.Context, symbol, interval string, limit int) ([]types.Bar, error)
}

// BoardPublisher 信号面板发布
type BoardPublisher interface {
	PublishBoard(ctx context.Context, payload []byte) error
}

// StatsProvider 附加到引擎统计中的组件
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// evaluation 一次评估的结果，seq越大越新
type evaluation struct {
	seq     uint64
	signals []*types.Signal
}

// Deps 引擎依赖，Archive和Publisher可以为空
type Deps struct {
	Store     *storage.BarStore
	Source    BarSource
	History   HistoryFetcher
	Archive   Archive
	Publisher BoardPublisher
	Evaluator *signals.Evaluator
}

// ScannerEngine 动量扫描引擎
//
// 数据流：Source -> 分发 -> 每个交易对一个有序队列 -> 单一消费者写入BarStore
// -> 收盘时评估 -> 替换信号面板
type ScannerEngine struct {
	config types.ScannerConfig

	store     *storage.BarStore
	source    BarSource
	history   HistoryFetcher
	archive   Archive
	publisher BoardPublisher
	evaluator *signals.Evaluator

	// 每个交易对的事件队列，只有一个消费者
	queues map[string]chan types.BarUpdate
	// 同一交易对的评估串行执行
	evalLocks map[string]*sync.Mutex

	board        atomic.Pointer[Board]
	boardVersion atomic.Int64
	results      map[string]evaluation
	evalSeq      atomic.Uint64
	publishMu    sync.Mutex
	publishCh    chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool

	// 统计
	processedBars atomic.Int64
	rejectedBars  atomic.Int64
	droppedEvents atomic.Int64
	evaluations   atomic.Int64
	signalsFound  atomic.Int64
}

// NewScannerEngine 创建扫描引擎
func NewScannerEngine(config types.ScannerConfig, deps Deps) *ScannerEngine {
	ctx, cancel := context.WithCancel(context.Background())

	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	if deps.Evaluator == nil {
		deps.Evaluator = signals.NewEvaluator()
	}

	e := &ScannerEngine{
		config:    config,
		store:     deps.Store,
		source:    deps.Source,
		history:   deps.History,
		archive:   deps.Archive,
		publisher: deps.Publisher,
		evaluator: deps.Evaluator,
		queues:    make(map[string]chan types.BarUpdate, len(config.Symbols)),
		evalLocks: make(map[string]*sync.Mutex, len(config.Symbols)),
		results:   make(map[string]evaluation),
		publishCh: make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}

	for _, symbol := range config.Symbols {
		e.queues[symbol] = make(chan types.BarUpdate, config.QueueSize)
		e.evalLocks[symbol] = &sync.Mutex{}
	}
	e.board.Store(emptyBoard)

	return e
}

// Start 启动扫描引擎
func (e *ScannerEngine) Start() error {
	if len(e.config.Symbols) == 0 {
		return errors.New("没有需要扫描的交易对")
	}
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("扫描引擎已启动")
	}

	zap.L().Info("🚀 启动动量扫描引擎",
		zap.Strings("symbols", e.config.Symbols),
		zap.String("interval", e.config.Interval),
		zap.String("reference_interval", e.config.ReferenceInterval))

	// 1. 初始化历史K线数据
	e.Bootstrap(e.ctx)

	// 2. 启动各个处理协程
	e.startWorkers()

	// 3. 连接实时K线
	if e.source != nil {
		e.source.Start()
	}

	// 4. 用历史数据先评估一轮
	n := e.EvaluateAll("bootstrap")

	zap.L().Info("✅ 动量扫描引擎启动成功", zap.Int("board_signals", n))
	return nil
}

// startWorkers 启动工作协程
func (e *ScannerEngine) startWorkers() {
	for symbol, queue := range e.queues {
		e.wg.Add(1)
		go e.consume(symbol, queue)
	}

	if e.source != nil {
		e.wg.Add(1)
		go e.dispatch()
	} else {
		e.closeQueues()
	}

	e.wg.Add(1)
	go e.publishLoop()
}

// dispatch 按交易对分发实时K线，源关闭或引擎停止时关闭所有队列
func (e *ScannerEngine) dispatch() {
	defer e.wg.Done()
	defer e.closeQueues()

	updates := e.source.Updates()
	for {
		select {
		case <-e.ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}

			queue, exists := e.queues[u.Symbol]
			if !exists {
				e.droppedEvents.Add(1)
				metrics.MessagesDropped.WithLabelValues("unknown_symbol").Inc()
				zap.L().Debug("丢弃未订阅交易对的数据", zap.String("symbol", u.Symbol))
				continue
			}

			// 阻塞投递，保证收盘K线不丢
			select {
			case queue <- u:
			case <-e.ctx.Done():
				return
			}
		}
	}
}

func (e *ScannerEngine) closeQueues() {
	for _, queue := range e.queues {
		close(queue)
	}
}

// consume 单个交易对的消费者，队列关闭后处理完剩余数据再退出
func (e *ScannerEngine) consume(symbol string, queue <-chan types.BarUpdate) {
	defer e.wg.Done()

	zap.L().Debug("启动K线消费者", zap.String("symbol", symbol))

	for u := range queue {
		e.HandleUpdate(u)
	}
}

// HandleUpdate 合并一条K线更新，主周期收盘时触发该交易对的评估
func (e *ScannerEngine) HandleUpdate(u types.BarUpdate) {
	interval := u.Interval
	if interval == "" {
		interval = e.config.Interval
	}

	result := e.store.Upsert(u.Symbol, interval, u.Bar, u.Final)
	metrics.BarsTotal.WithLabelValues(interval, result.String()).Inc()

	if result == storage.Rejected {
		e.rejectedBars.Add(1)
		return
	}
	e.processedBars.Add(1)

	if !u.Final {
		return
	}

	if e.archive != nil {
		go e.archiveBar(u.Symbol, interval, u.Bar)
	}

	if interval == e.config.Interval {
		if ev, ok := e.evaluateSymbol(u.Symbol, "bar_close"); ok {
			e.publish(map[string]evaluation{u.Symbol: ev})
		}
	}
}

func (e *ScannerEngine) archiveBar(symbol, interval string, bar types.Bar) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.archive.SaveBar(ctx, symbol, interval, bar); err != nil {
		zap.L().Debug("归档K线失败", zap.String("symbol", symbol), zap.Error(err))
	}
}

// EvaluateAll 评估所有交易对，整轮结果一次性替换面板，返回当前面板信号数
func (e *ScannerEngine) EvaluateAll(trigger string) int {
	batch := make(map[string]evaluation, len(e.config.Symbols))
	for _, symbol := range e.config.Symbols {
		if ev, ok := e.evaluateSymbol(symbol, trigger); ok {
			batch[symbol] = ev
		}
	}
	e.publish(batch)

	board := e.Board()
	zap.L().Info("🔄 全量评估完成",
		zap.String("trigger", trigger),
		zap.Int("symbols", len(e.config.Symbols)),
		zap.Int("board_signals", board.Len()))
	return board.Len()
}

// evaluateSymbol 评估单个交易对，返回进入面板的信号
func (e *ScannerEngine) evaluateSymbol(symbol, trigger string) (evaluation, bool) {
	lock := e.evalLocks[symbol]
	if lock == nil {
		return evaluation{}, false
	}
	lock.Lock()
	defer lock.Unlock()

	// 在锁内取序号，同一交易对的序号与评估顺序一致
	seq := e.evalSeq.Add(1)
	start := time.Now()
	bars := e.store.Series(symbol, e.config.Interval)
	referenceCloses := e.store.Closes(symbol, e.config.ReferenceInterval)
	results := e.evaluator.Evaluate(symbol, bars, referenceCloses)
	metrics.EvaluateDuration.Observe(time.Since(start).Seconds())
	metrics.EvaluationsTotal.WithLabelValues(trigger).Inc()
	e.evaluations.Add(1)

	kept := make([]*types.Signal, 0, len(results))
	for _, s := range results {
		metrics.SignalsTotal.WithLabelValues(string(s.Direction), string(s.Kind)).Inc()

		if !onBoard(s) {
			zap.L().Debug("信号条件不足",
				zap.String("symbol", symbol),
				zap.String("direction", string(s.Direction)),
				zap.Int("score", s.Score))
			continue
		}

		kept = append(kept, s)
		e.signalsFound.Add(1)
		logSignal(s, trigger)
	}

	return evaluation{seq: seq, signals: kept}, true
}

func logSignal(s *types.Signal, trigger string) {
	fields := []zap.Field{
		zap.String("symbol", s.Symbol),
		zap.String("direction", string(s.Direction)),
		zap.String("grade", string(s.Grade)),
		zap.Int("score", s.Score),
		zap.Int("stop_hunt", s.StopHuntProbability),
		zap.String("trigger", trigger),
	}
	if s.Levels != nil {
		fields = append(fields,
			zap.Float64("entry", s.Levels.Entry),
			zap.Float64("target", s.Levels.Target),
			zap.Float64("stop", s.Levels.Stop))
	}

	switch s.Kind {
	case types.KindValid:
		zap.L().Info("🎯 发现交易信号", fields...)
	case types.KindAlmost:
		zap.L().Info("👀 信号接近成立", fields...)
	case types.KindRisky:
		zap.L().Warn("⚠️ 扫损风险过高，信号作废", fields...)
	}
}

// publish 写时复制：合并一批评估结果，构建新面板并只替换一次
// 已有更新结果的交易对不会被较旧的评估覆盖
func (e *ScannerEngine) publish(batch map[string]evaluation) {
	if len(batch) == 0 {
		return
	}

	e.publishMu.Lock()
	defer e.publishMu.Unlock()

	next := make(map[string]evaluation, len(e.results)+len(batch))
	for k, v := range e.results {
		next[k] = v
	}
	for symbol, ev := range batch {
		if cur, ok := next[symbol]; ok && cur.seq > ev.seq {
			continue
		}
		next[symbol] = ev
	}
	e.results = next

	bySymbol := make(map[string][]*types.Signal, len(next))
	for symbol, ev := range next {
		if len(ev.signals) > 0 {
			bySymbol[symbol] = ev.signals
		}
	}

	board := newBoard(bySymbol, time.Now())
	e.board.Store(board)
	e.boardVersion.Add(1)
	metrics.BoardSize.Set(float64(board.Len()))

	// 合并发布请求，发布协程总是读取最新面板
	select {
	case e.publishCh <- struct{}{}:
	default:
	}
}

// publishLoop 发布最新面板到Redis
func (e *ScannerEngine) publishLoop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-e.publishCh:
			if e.publisher == nil {
				continue
			}
			payload, err := json.Marshal(e.Board())
			if err != nil {
				zap.L().Error("序列化信号面板失败", zap.Error(err))
				continue
			}

			ctx, cancel := context.WithTimeout(e.ctx, 3*time.Second)
			if err := e.publisher.PublishBoard(ctx, payload); err != nil {
				zap.L().Warn("发布信号面板失败", zap.Error(err))
			}
			cancel()
		}
	}
}

// Board 当前信号面板
func (e *ScannerEngine) Board() *Board {
	return e.board.Load()
}

// Bootstrap 加载两个周期的历史K线
// REST失败时依次尝试Redis备份和MySQL归档，单个交易对失败只记录日志
func (e *ScannerEngine) Bootstrap(ctx context.Context) {
	zap.L().Info("📚 开始初始化历史K线数据",
		zap.Int("history_limit", e.config.HistoryLimit),
		zap.Strings("symbols", e.config.Symbols))

	total := 0
	for _, interval := range []string{e.config.Interval, e.config.ReferenceInterval} {
		if ctx.Err() != nil {
			return
		}

		var fetched map[string][]types.Bar
		if e.history != nil {
			fetched = e.history.FetchMultipleSymbolsHistory(ctx, e.config.Symbols, interval, e.config.HistoryLimit)
		}

		for _, symbol := range e.config.Symbols {
			n, err := e.loadHistory(ctx, symbol, interval, fetched[symbol])
			if err != nil {
				zap.L().Error("❌ 历史数据初始化失败，跳过",
					zap.String("symbol", symbol),
					zap.String("interval", interval),
					zap.Error(err))
				continue
			}
			total += n
		}
	}

	zap.L().Info("🎉 所有历史K线数据初始化完成",
		zap.Int("symbols_count", len(e.config.Symbols)),
		zap.Int("total_klines", total))
}

// RefreshReference 重新拉取参考周期K线
func (e *ScannerEngine) RefreshReference(ctx context.Context) error {
	if e.history == nil {
		return nil
	}

	fetched := e.history.FetchMultipleSymbolsHistory(ctx, e.config.Symbols, e.config.ReferenceInterval, e.config.HistoryLimit)
	if err := ctx.Err(); err != nil {
		return err
	}

	var failed []string
	for _, symbol := range e.config.Symbols {
		bars := fetched[symbol]
		if len(bars) == 0 {
			failed = append(failed, symbol)
			continue
		}
		e.store.Replace(symbol, e.config.ReferenceInterval, bars)
	}

	if len(failed) > 0 {
		return fmt.Errorf("刷新参考周期失败: %v", failed)
	}
	return nil
}

// loadHistory 优先使用REST结果，否则依次从Redis和MySQL恢复
func (e *ScannerEngine) loadHistory(ctx context.Context, symbol, interval string, bars []types.Bar) (int, error) {
	if len(bars) > 0 {
		n := e.store.Replace(symbol, interval, bars)
		if e.archive != nil {
			e.wg.Add(1)
			go e.archiveHistory(symbol, interval, bars)
		}
		zap.L().Info("✅ 历史数据初始化完成",
			zap.String("symbol", symbol),
			zap.String("interval", interval),
			zap.Int("klines_count", n),
			zap.String("source", "rest"))
		return n, nil
	}
	if e.history != nil {
		zap.L().Warn("⚠️ REST获取历史数据失败，尝试备份",
			zap.String("symbol", symbol),
			zap.String("interval", interval))
	}

	n, err := e.store.Restore(ctx, symbol, interval)
	if err != nil {
		zap.L().Warn("Redis恢复失败", zap.String("symbol", symbol), zap.Error(err))
	}
	if n > 0 {
		zap.L().Info("♻️ 从Redis恢复历史数据",
			zap.String("symbol", symbol),
			zap.String("interval", interval),
			zap.Int("klines_count", n))
		return n, nil
	}

	if e.archive != nil {
		bars, err := e.archive.GetBars(ctx, symbol, interval, e.store.MaxBars())
		if err != nil {
			return 0, err
		}
		if len(bars) > 0 {
			n := e.store.Replace(symbol, interval, bars)
			zap.L().Info("♻️ 从MySQL归档恢复历史数据",
				zap.String("symbol", symbol),
				zap.String("interval", interval),
				zap.Int("klines_count", n))
			return n, nil
		}
	}

	return 0, errors.New("没有可用的历史数据")
}

func (e *ScannerEngine) archiveHistory(symbol, interval string, bars []types.Bar) {
	defer e.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.archive.BatchSaveBars(ctx, symbol, interval, bars); err != nil {
		zap.L().Error("批量保存历史K线失败",
			zap.String("symbol", symbol),
			zap.String("interval", interval),
			zap.Error(err))
	}
}

// GetStats 获取统计信息
func (e *ScannerEngine) GetStats() map[string]interface{} {
	board := e.Board()

	queueSizes := make(map[string]int, len(e.queues))
	for symbol, queue := range e.queues {
		queueSizes[symbol] = len(queue)
	}

	connected := false
	if e.source != nil {
		connected = e.source.IsConnected()
	}

	stats := map[string]interface{}{
		"processed_bars": e.processedBars.Load(),
		"rejected_bars":  e.rejectedBars.Load(),
		"dropped_events": e.droppedEvents.Load(),
		"evaluations":    e.evaluations.Load(),
		"signals_found":  e.signalsFound.Load(),
		"board_signals":  board.Len(),
		"board_by_kind":  board.CountByKind(),
		"board_version":  e.boardVersion.Load(),
		"queue_sizes":    queueSizes,
		"ws_connected":   connected,
		"symbols":        e.config.Symbols,
		"interval":       e.config.Interval,
		"store":          e.store.GetStats(),
	}

	// 实时数据源的连接状态、重连次数等
	if provider, ok := e.source.(StatsProvider); ok {
		stats["stream"] = provider.GetStats()
	}
	return stats
}

// Stop 停止扫描引擎
func (e *ScannerEngine) Stop() error {
	zap.L().Info("🛑 停止动量扫描引擎")

	// 取消上下文
	e.cancel()

	// 关闭WebSocket连接
	if e.source != nil {
		if err := e.source.Close(); err != nil {
			zap.L().Error("关闭WebSocket连接失败", zap.Error(err))
		}
	}

	// 等待所有协程结束
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	// 设置超时
	select {
	case <-done:
		zap.L().Info("✅ 所有工作协程已停止")
	case <-time.After(30 * time.Second):
		zap.L().Warn("⚠️ 停止超时，强制退出")
	}

	zap.L().Info("✅ 动量扫描引擎已停止")
	return nil
}
