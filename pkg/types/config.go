package types

import "time"

// Config 主配置结构
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Network   NetworkConfig   `mapstructure:"network"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Scanner   ScannerConfig   `mapstructure:"scanner"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // 日志级别
	FilePath   string `mapstructure:"file_path"`   // 日志输出路径名，为空则只输出到控制台
	MaxSize    int    `mapstructure:"max_size"`    // 日志文件大小 单位：MB，超限后会自动切割
	MaxAge     int    `mapstructure:"max_age"`     // 日志文件存放时间 单位：天
	MaxBackups int    `mapstructure:"max_backups"` // 日志文件备份数量
	Compress   bool   `mapstructure:"compress"`    // 日志文件压缩
}

// RedisConfig Redis配置，URL为空时使用纯内存模式
type RedisConfig struct {
	URL       string `mapstructure:"url"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// NetworkConfig 网络配置
type NetworkConfig struct {
	Proxy   string        `mapstructure:"proxy"`   // HTTP代理地址，如 http://127.0.0.1:7890
	Timeout time.Duration `mapstructure:"timeout"` // 网络超时时间
}

// ExchangeConfig 交易所接口配置
type ExchangeConfig struct {
	RestBase         string        `mapstructure:"rest_base"`          // 如 https://api.binance.us/api/v3
	WSBase           string        `mapstructure:"ws_base"`            // 如 wss://stream.binance.us:9443
	RequestInterval  time.Duration `mapstructure:"request_interval"`   // 历史数据请求间隔（限速）
	PingInterval     time.Duration `mapstructure:"ping_interval"`      // 心跳间隔
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`  // 握手超时
	ReconnectBase    time.Duration `mapstructure:"reconnect_base"`     // 重连基础延迟
	ReconnectMax     time.Duration `mapstructure:"reconnect_max"`      // 重连最大延迟
}

// ScannerConfig 扫描器配置
type ScannerConfig struct {
	Symbols           []string `mapstructure:"symbols"`
	Interval          string   `mapstructure:"interval"`           // 主评估周期，如 1h
	ReferenceInterval string   `mapstructure:"reference_interval"` // RSI参考周期，如 4h
	MaxBars           int      `mapstructure:"max_bars"`           // 每个序列保留的K线数
	HistoryLimit      int      `mapstructure:"history_limit"`      // 启动时拉取的历史K线数
	QueueSize         int      `mapstructure:"queue_size"`         // 每个交易对的事件队列长度
}

// SchedulerConfig 定时评估配置
type SchedulerConfig struct {
	Spec             string `mapstructure:"spec"`              // cron表达式，如 @every 1h
	RefreshReference bool   `mapstructure:"refresh_reference"` // 每次定时评估前刷新参考周期K线
}

// MetricsConfig Prometheus配置
type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // 为空则不启动 /metrics
}

// MonitorConfig 统计报告配置
type MonitorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
}

// MySQLConfig MySQL配置
type MySQLConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	Endpoint         string
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
	ReconnectBase    time.Duration
	ReconnectMax     time.Duration
}
