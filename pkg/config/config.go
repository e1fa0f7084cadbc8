package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"momentum-scanner/pkg/types"
)

// Load 加载配置
func Load() (*types.Config, error) {
	// .env 可选，存在时先注入环境变量
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// 设置默认值
	setDefaults(v)

	// 读取环境变量，如 SCANNER_INTERVAL 覆盖 scanner.interval
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 优先尝试读取本地配置文件
	v.SetConfigName("config.local")
	if err := v.ReadInConfig(); err != nil {
		// 如果本地配置文件不存在，尝试读取默认配置文件
		v.SetConfigName("config")
		if err := v.ReadInConfig(); err != nil {
			var configFileNotFoundError viper.ConfigFileNotFoundError
			if !errors.As(err, &configFileNotFoundError) {
				return nil, err
			}
		}
	}

	var config types.Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate 检查必要配置
func Validate(c *types.Config) error {
	if len(c.Scanner.Symbols) == 0 {
		return errors.New("scanner.symbols 不能为空")
	}
	if c.Scanner.Interval == "" || c.Scanner.ReferenceInterval == "" {
		return errors.New("scanner.interval 和 scanner.reference_interval 不能为空")
	}
	if c.Scanner.MaxBars < 30 {
		return errors.New("scanner.max_bars 至少为30")
	}
	if c.Exchange.RestBase == "" || c.Exchange.WSBase == "" {
		return errors.New("exchange.rest_base 和 exchange.ws_base 不能为空")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file_path", "logs")
	v.SetDefault("log.max_size", 200)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.compress", false)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "scanner")
	v.SetDefault("network.proxy", "")
	v.SetDefault("network.timeout", 30*time.Second)
	v.SetDefault("exchange.rest_base", "https://api.binance.us/api/v3")
	v.SetDefault("exchange.ws_base", "wss://stream.binance.us:9443")
	v.SetDefault("exchange.request_interval", 200*time.Millisecond)
	v.SetDefault("exchange.ping_interval", 20*time.Second)
	v.SetDefault("exchange.handshake_timeout", 10*time.Second)
	v.SetDefault("exchange.reconnect_base", time.Second)
	v.SetDefault("exchange.reconnect_max", 30*time.Second)
	v.SetDefault("scanner.symbols", []string{"BTCUSD", "ETHUSD", "SOLUSD", "XRPUSD", "DOGEUSD"})
	v.SetDefault("scanner.interval", "1h")
	v.SetDefault("scanner.reference_interval", "4h")
	v.SetDefault("scanner.max_bars", 500)
	v.SetDefault("scanner.history_limit", 500)
	v.SetDefault("scanner.queue_size", 256)
	v.SetDefault("scheduler.spec", "@every 1h")
	v.SetDefault("scheduler.refresh_reference", true)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("monitor.interval", 5*time.Minute)
	v.SetDefault("database.mysql.enabled", false)
	v.SetDefault("database.mysql.host", "127.0.0.1")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.max_idle_conns", 5)
	v.SetDefault("database.mysql.max_open_conns", 10)
}
