package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"momentum-scanner/internal/metrics"
	"momentum-scanner/pkg/types"
)

// Client 组合流K线客户端，一个连接覆盖整个观察列表
type Client struct {
	config      types.WebSocketConfig
	proxy       string
	symbols     []string
	interval    string
	conn        *websocket.Conn
	mu          sync.RWMutex
	reconnector *Reconnector
	updates     chan types.BarUpdate
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	startOnce   sync.Once

	received  atomic.Int64
	ignored   atomic.Int64
	malformed atomic.Int64
}

// NewClient 创建新的WebSocket客户端
func NewClient(config types.WebSocketConfig, proxy string, symbols []string, interval string, bufferSize int) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	if config.PingInterval <= 0 {
		config.PingInterval = 20 * time.Second
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 10 * time.Second
	}
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	return &Client{
		config:      config,
		proxy:       proxy,
		symbols:     symbols,
		interval:    interval,
		reconnector: NewReconnector(config.ReconnectBase, config.ReconnectMax),
		updates:     make(chan types.BarUpdate, bufferSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Updates K线更新通道，客户端关闭后通道关闭
func (c *Client) Updates() <-chan types.BarUpdate {
	return c.updates
}

// Start 启动连接与重连循环
func (c *Client) Start() {
	c.startOnce.Do(func() {
		c.wg.Add(1)
		go c.run()
	})
}

// run 连接 -> 读取 -> 断线后按退避时长重连，直到Close
func (c *Client) run() {
	defer c.wg.Done()
	defer close(c.updates)

	if err := c.reconnector.Transition(Connecting); err != nil {
		return
	}

	for {
		conn, err := c.Connect()
		if err != nil {
			zap.L().Error("WebSocket连接失败", zap.Error(err))
		} else {
			c.readLoop(conn)
		}

		if c.ctx.Err() != nil {
			return
		}

		delay, err := c.reconnector.ScheduleReconnect()
		if err != nil {
			return
		}
		metrics.WSReconnects.Inc()

		zap.L().Info("⏳ 等待重连WebSocket",
			zap.Duration("delay", delay),
			zap.Int("retry", c.reconnector.Retry()))

		timer := time.NewTimer(delay)
		select {
		case <-c.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := c.reconnector.Transition(Connecting); err != nil {
			return
		}
	}
}

// Connect 建立WebSocket连接
func (c *Client) Connect() (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	if c.proxy != "" {
		proxyURL, err := url.Parse(c.proxy)
		if err != nil {
			return nil, fmt.Errorf("解析代理URL失败: %w", err)
		}
		dialer.Proxy = http.ProxyURL(proxyURL)
	}

	endpoint := StreamURL(c.config.Endpoint, c.symbols, c.interval)
	conn, _, err := dialer.DialContext(c.ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("WebSocket连接失败: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if err := c.reconnector.Transition(Connected); err != nil {
		// 连接过程中被关闭
		conn.Close()
		return nil, err
	}
	metrics.WSConnected.Set(1)

	zap.L().Info("✅ WebSocket连接建立成功",
		zap.Int("symbols", len(c.symbols)),
		zap.String("interval", c.interval),
		zap.String("proxy", c.proxy))

	return conn, nil
}

// readLoop 读取数据循环，连接出错时返回
func (c *Client) readLoop(conn *websocket.Conn) {
	pingCtx, pingCancel := context.WithCancel(c.ctx)
	defer pingCancel()

	readTimeout := 3 * c.config.PingInterval
	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go c.pingLoop(pingCtx, conn)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				zap.L().Error("WebSocket读取消息失败", zap.Error(err))
			}
			c.handleDisconnect(conn)
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		c.handleMessage(message)
	}
}

// handleMessage 解析并投递K线更新，无效消息直接丢弃
func (c *Client) handleMessage(message []byte) {
	update, err := ParseKlineEvent(message)
	if err != nil {
		if errors.Is(err, ErrIgnored) {
			c.ignored.Add(1)
			metrics.MessagesDropped.WithLabelValues("ignored").Inc()
			return
		}
		c.malformed.Add(1)
		metrics.MessagesDropped.WithLabelValues("malformed").Inc()
		zap.L().Debug("丢弃无法解析的消息", zap.Error(err))
		return
	}

	c.received.Add(1)

	// 阻塞投递，保证同一交易对的更新顺序和收盘K线不丢失
	select {
	case c.updates <- update:
	case <-c.ctx.Done():
	}
}

// pingLoop 心跳循环
func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				zap.L().Warn("发送心跳失败", zap.Error(err))
				// 关闭连接让readLoop退出并触发重连
				c.handleDisconnect(conn)
				return
			}
		}
	}
}

// handleDisconnect 处理断线
func (c *Client) handleDisconnect(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn.Close()
	if c.conn == conn {
		c.conn = nil
	}
	metrics.WSConnected.Set(0)
}

// Close 关闭连接并取消等待中的重连
func (c *Client) Close() error {
	_ = c.reconnector.Transition(Closed)
	c.cancel()

	c.mu.Lock()
	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
	metrics.WSConnected.Set(0)

	// 未启动过时由这里关闭通道
	c.startOnce.Do(func() { close(c.updates) })

	c.wg.Wait()
	return err
}

// IsConnected 检查连接状态
func (c *Client) IsConnected() bool {
	return c.State() == Connected
}

// State 当前连接状态
func (c *Client) State() State {
	return c.reconnector.State()
}

// GetStats 获取统计信息
func (c *Client) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"state":     c.State().String(),
		"retry":     c.reconnector.Retry(),
		"received":  c.received.Load(),
		"ignored":   c.ignored.Load(),
		"malformed": c.malformed.Load(),
		"queued":    len(c.updates),
	}
}
