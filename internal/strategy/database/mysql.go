package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"momentum-scanner/pkg/types"
)

// Manager 已收盘K线归档，用于重启时的冷启动兜底
type Manager struct {
	db     *gorm.DB
	config types.MySQLConfig
}

// KLine 数据库K线模型
type KLine struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Symbol    string    `gorm:"type:varchar(20);not null;uniqueIndex:uk_symbol_interval_time" json:"symbol"`
	Interval  string    `gorm:"column:interval;type:varchar(10);not null;uniqueIndex:uk_symbol_interval_time" json:"interval"`
	OpenTime  int64     `gorm:"not null;uniqueIndex:uk_symbol_interval_time" json:"open_time"` // 毫秒
	Open      float64   `gorm:"type:decimal(20,8);not null" json:"open"`
	High      float64   `gorm:"type:decimal(20,8);not null" json:"high"`
	Low       float64   `gorm:"type:decimal(20,8);not null" json:"low"`
	Close     float64   `gorm:"type:decimal(20,8);not null" json:"close"`
	Volume    float64   `gorm:"type:decimal(28,8);not null" json:"volume"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 表名
func (KLine) TableName() string {
	return "scanner_klines"
}

// DSN 由配置拼接MySQL连接串
func DSN(config types.MySQLConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		config.Username,
		config.Password,
		config.Host,
		config.Port,
		config.Database,
	)
}

// NewManager 创建数据库管理器
func NewManager(config types.MySQLConfig) (*Manager, error) {
	// 配置GORM日志
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // 生产环境使用Silent
	}

	db, err := gorm.Open(mysql.Open(DSN(config)), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库实例失败: %w", err)
	}

	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	manager := &Manager{
		db:     db,
		config: config,
	}

	// 自动迁移表结构
	if err := manager.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	zap.L().Info("✅ MySQL数据库连接成功",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("database", config.Database))

	return manager, nil
}

// AutoMigrate 自动迁移表结构
func (m *Manager) AutoMigrate() error {
	return m.db.AutoMigrate(&KLine{})
}

func toModel(symbol, interval string, bar types.Bar) KLine {
	return KLine{
		Symbol:   symbol,
		Interval: interval,
		OpenTime: bar.OpenTime.UnixMilli(),
		Open:     bar.Open,
		High:     bar.High,
		Low:      bar.Low,
		Close:    bar.Close,
		Volume:   bar.Volume,
	}
}

func (k KLine) toBar() types.Bar {
	return types.Bar{
		OpenTime: time.UnixMilli(k.OpenTime).UTC(),
		Open:     k.Open,
		High:     k.High,
		Low:      k.Low,
		Close:    k.Close,
		Volume:   k.Volume,
	}
}

// upsertClause 唯一键冲突时覆盖价格字段
var upsertClause = clause.OnConflict{
	Columns:   []clause.Column{{Name: "symbol"}, {Name: "interval"}, {Name: "open_time"}},
	DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume", "updated_at"}),
}

// SaveBar 保存单根已收盘K线
func (m *Manager) SaveBar(ctx context.Context, symbol, interval string, bar types.Bar) error {
	model := toModel(symbol, interval, bar)
	if err := m.db.WithContext(ctx).Clauses(upsertClause).Create(&model).Error; err != nil {
		return fmt.Errorf("保存K线失败 %s %s: %w", symbol, interval, err)
	}
	return nil
}

// BatchSaveBars 批量保存K线数据
func (m *Manager) BatchSaveBars(ctx context.Context, symbol, interval string, bars []types.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	models := make([]KLine, 0, len(bars))
	for _, bar := range bars {
		models = append(models, toModel(symbol, interval, bar))
	}

	// 分批处理避免单条SQL过大
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(upsertClause).CreateInBatches(models, 100).Error
	})
	if err != nil {
		return fmt.Errorf("批量插入K线数据失败: %w", err)
	}

	zap.L().Debug("✅ 批量保存K线数据完成",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("count", len(bars)))

	return nil
}

// GetBars 获取最近limit根K线，按时间升序
func (m *Manager) GetBars(ctx context.Context, symbol, interval string, limit int) ([]types.Bar, error) {
	var rows []KLine
	err := m.db.WithContext(ctx).
		Where("symbol = ? AND `interval` = ?", symbol, interval).
		Order("open_time DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询K线失败 %s %s: %w", symbol, interval, err)
	}

	bars := make([]types.Bar, len(rows))
	for i, row := range rows {
		// 倒序查询，反转为从旧到新
		bars[len(rows)-1-i] = row.toBar()
	}
	return bars, nil
}

// Close 关闭数据库连接
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库连接健康状态
func (m *Manager) Health() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
