package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Bar K线数据（OHLCV）
type Bar struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Body 实体大小
func (b Bar) Body() float64 {
	if b.Close >= b.Open {
		return b.Close - b.Open
	}
	return b.Open - b.Close
}

// Range 最高价与最低价之差
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// LowerWick 下影线长度
func (b Bar) LowerWick() float64 {
	return min(b.Open, b.Close) - b.Low
}

// UpperWick 上影线长度
func (b Bar) UpperWick() float64 {
	return b.High - max(b.Open, b.Close)
}

// IsGreen 阳线
func (b Bar) IsGreen() bool { return b.Close > b.Open }

// IsRed 阴线
func (b Bar) IsRed() bool { return b.Close < b.Open }

// BarUpdate 推送的K线更新事件
type BarUpdate struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Bar      Bar    `json:"bar"`
	Final    bool   `json:"final"` // K线是否已收盘
}

// Number 交易所数值字段，兼容数字和数字字符串两种编码
type Number float64

// UnmarshalJSON 解析 "100.5" 或 100.5
func (n *Number) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return fmt.Errorf("空数值: %s", data)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("解析数值失败 %s: %w", data, err)
	}
	*n = Number(v)
	return nil
}

// Float64 转换为float64
func (n Number) Float64() float64 { return float64(n) }

// Closes 提取收盘价序列
func Closes(bars []Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

// IntervalDuration 获取时间间隔的Duration
func IntervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h", "1H":
		return time.Hour
	case "2h", "2H":
		return 2 * time.Hour
	case "4h", "4H":
		return 4 * time.Hour
	case "6h", "6H":
		return 6 * time.Hour
	case "12h", "12H":
		return 12 * time.Hour
	case "1d", "1D":
		return 24 * time.Hour
	default:
		return time.Hour // 默认1小时
	}
}
