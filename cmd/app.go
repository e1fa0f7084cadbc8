package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"momentum-scanner/internal/metrics"
	"momentum-scanner/internal/scheduler"
	"momentum-scanner/internal/storage"
	"momentum-scanner/internal/strategy/database"
	"momentum-scanner/internal/strategy/engine"
	"momentum-scanner/internal/strategy/fetcher"
	"momentum-scanner/internal/strategy/monitor"
	"momentum-scanner/internal/strategy/signals"
	"momentum-scanner/internal/strategy/websocket"
	"momentum-scanner/pkg/types"
)

// App 应用程序管理器
type App struct {
	config *types.Config

	backup    *storage.RedisBackup
	store     *storage.BarStore
	dbManager *database.Manager
	engine    *engine.ScannerEngine
	scheduler *scheduler.Scheduler
	monitor   *monitor.PerformanceMonitor
	metrics   *http.Server
}

// NewApp 创建应用程序实例
func NewApp(config *types.Config) *App {
	return &App{config: config}
}

// Start 组装并启动各模块
func (app *App) Start() error {
	zap.L().Info("🚀 Momentum Scanner 启动中...",
		zap.Strings("symbols", app.config.Scanner.Symbols),
		zap.String("interval", app.config.Scanner.Interval),
		zap.String("reference_interval", app.config.Scanner.ReferenceInterval))

	app.metrics = metrics.Serve(app.config.Metrics.Addr)

	// Redis可选，不可用时使用纯内存模式
	app.backup = storage.NewRedisBackup(app.config.Redis)
	app.store = storage.NewBarStore(app.config.Scanner.MaxBars, app.backup)

	deps := engine.Deps{
		Store:     app.store,
		Publisher: app.backup,
		Evaluator: signals.NewEvaluator(),
		History: fetcher.NewHistoryKlineFetcher(
			app.config.Exchange.RestBase,
			app.config.Network.Proxy,
			app.config.Network.Timeout,
			app.config.Exchange.RequestInterval,
		),
	}

	// MySQL归档可选，只有启用时才赋值给接口
	if app.config.Database.MySQL.Enabled {
		dbManager, err := database.NewManager(app.config.Database.MySQL)
		if err != nil {
			zap.L().Warn("⚠️ MySQL不可用，禁用K线归档", zap.Error(err))
		} else {
			app.dbManager = dbManager
			deps.Archive = dbManager
		}
	}

	wsConfig := types.WebSocketConfig{
		Endpoint:         app.config.Exchange.WSBase,
		PingInterval:     app.config.Exchange.PingInterval,
		HandshakeTimeout: app.config.Exchange.HandshakeTimeout,
		ReconnectBase:    app.config.Exchange.ReconnectBase,
		ReconnectMax:     app.config.Exchange.ReconnectMax,
	}
	deps.Source = websocket.NewClient(
		wsConfig,
		app.config.Network.Proxy,
		app.config.Scanner.Symbols,
		app.config.Scanner.Interval,
		app.config.Scanner.QueueSize,
	)

	app.engine = engine.NewScannerEngine(app.config.Scanner, deps)
	if err := app.engine.Start(); err != nil {
		return err
	}

	app.scheduler = scheduler.NewScheduler(app.config.Scheduler, app.engine)
	if err := app.scheduler.Start(); err != nil {
		return err
	}

	// dbManager为空时不能直接赋值给接口
	var archive monitor.HealthChecker
	if app.dbManager != nil {
		archive = app.dbManager
	}
	app.monitor = monitor.NewPerformanceMonitor(app.engine, app.scheduler, archive, app.config.Monitor)
	app.monitor.Start()

	zap.L().Info("✅ Momentum Scanner 已启动")
	return nil
}

// Stop 按启动的相反顺序停止
func (app *App) Stop() {
	zap.L().Info("🛑 收到停止信号，正在优雅关闭...")

	if app.scheduler != nil {
		app.scheduler.Stop()
	}
	if app.monitor != nil {
		app.monitor.Stop()
	}
	if app.engine != nil {
		if err := app.engine.Stop(); err != nil {
			zap.L().Error("❌ 停止扫描引擎失败", zap.Error(err))
		}
	}
	if app.store != nil {
		// 等待Redis备份队列写完
		app.store.Close()
	}
	if app.dbManager != nil {
		if err := app.dbManager.Close(); err != nil {
			zap.L().Error("关闭MySQL连接失败", zap.Error(err))
		}
	}
	if app.backup != nil {
		if err := app.backup.Close(); err != nil {
			zap.L().Error("关闭Redis连接失败", zap.Error(err))
		}
	}
	if app.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.metrics.Shutdown(ctx); err != nil {
			zap.L().Error("关闭metrics服务失败", zap.Error(err))
		}
	}

	zap.L().Info("✅ Momentum Scanner 已安全关闭")
}

// WaitForShutdown 等待关闭信号
func (app *App) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
