package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"momentum-scanner/pkg/types"
)

const (
	barTTL       = 7 * 24 * time.Hour
	boardChannel = "signals:updates"
)

// RedisBackup 已收盘K线备份与信号面板发布
type RedisBackup struct {
	client    *redis.Client
	keyPrefix string
	useRedis  bool
}

// NewRedisBackup 连接Redis，未配置或连接失败时返回不可用的实例（纯内存模式）
func NewRedisBackup(cfg types.RedisConfig) *RedisBackup {
	rb := &RedisBackup{keyPrefix: cfg.KeyPrefix}
	if rb.keyPrefix == "" {
		rb.keyPrefix = "scanner"
	}

	if cfg.URL == "" {
		zap.L().Info("🔧 未配置Redis，使用纯内存模式")
		return rb
	}

	rb.client = redis.NewClient(&redis.Options{
		Addr:     cfg.URL,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rb.client.Ping(ctx).Err(); err != nil {
		zap.L().Warn("⚠️ Redis连接失败，使用纯内存模式", zap.Error(err))
		rb.client.Close()
		rb.client = nil
		return rb
	}

	zap.L().Info("✅ Redis连接成功", zap.String("addr", cfg.URL))
	rb.useRedis = true
	return rb
}

// Enabled Redis是否可用，nil安全
func (rb *RedisBackup) Enabled() bool {
	return rb != nil && rb.useRedis
}

// BarKey K线备份key，如 scanner:bars:BTCUSD:1h
func BarKey(prefix, symbol, interval string) string {
	return fmt.Sprintf("%s:bars:%s:%s", prefix, symbol, interval)
}

// SignalsKey 最新信号面板key
func SignalsKey(prefix string) string {
	return prefix + ":signals"
}

// SaveBar 以开盘时间为分数写入Sorted Set，同一时间只保留一个成员，超出maxBars的旧数据被清理
func (rb *RedisBackup) SaveBar(ctx context.Context, symbol, interval string, bar types.Bar, maxBars int) error {
	if !rb.Enabled() {
		return nil
	}

	value, err := json.Marshal(bar)
	if err != nil {
		return fmt.Errorf("序列化K线失败: %w", err)
	}

	key := BarKey(rb.keyPrefix, symbol, interval)
	score := strconv.FormatInt(bar.OpenTime.UnixMilli(), 10)

	_, err = rb.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, score, score)
		pipe.ZAdd(ctx, key, &redis.Z{
			Score:  float64(bar.OpenTime.UnixMilli()),
			Member: value,
		})
		if maxBars > 0 {
			pipe.ZRemRangeByRank(ctx, key, 0, int64(-maxBars-1))
		}
		pipe.Expire(ctx, key, barTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("Redis存储失败 %s: %w", key, err)
	}
	return nil
}

// LoadSeries 读取最近limit根备份K线，按时间升序
func (rb *RedisBackup) LoadSeries(ctx context.Context, symbol, interval string, limit int) ([]types.Bar, error) {
	if !rb.Enabled() {
		return nil, nil
	}

	key := BarKey(rb.keyPrefix, symbol, interval)
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}

	members, err := rb.client.ZRange(ctx, key, start, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取Redis备份失败 %s: %w", key, err)
	}

	return decodeBars(members), nil
}

func decodeBars(members []string) []types.Bar {
	bars := make([]types.Bar, 0, len(members))
	for _, m := range members {
		var bar types.Bar
		if err := json.Unmarshal([]byte(m), &bar); err != nil {
			zap.L().Debug("跳过无法解析的备份K线", zap.Error(err))
			continue
		}
		bars = append(bars, bar)
	}
	return bars
}

// PublishBoard 覆盖写入最新信号面板并发布通知，只保存当前快照
func (rb *RedisBackup) PublishBoard(ctx context.Context, payload []byte) error {
	if !rb.Enabled() {
		return nil
	}

	key := SignalsKey(rb.keyPrefix)
	_, err := rb.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, payload, 0)
		pipe.Publish(ctx, rb.keyPrefix+":"+boardChannel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("发布信号面板失败: %w", err)
	}
	return nil
}

// GetStats 获取Redis统计信息
func (rb *RedisBackup) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"redis_enabled": rb.Enabled(),
	}
	if !rb.Enabled() {
		return stats
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	keys, err := rb.client.Keys(ctx, rb.keyPrefix+":bars:*").Result()
	if err == nil {
		stats["redis_keys"] = len(keys)
	} else {
		stats["redis_error"] = err.Error()
	}
	return stats
}

// Close 关闭连接
func (rb *RedisBackup) Close() error {
	if !rb.Enabled() {
		return nil
	}
	return rb.client.Close()
}
