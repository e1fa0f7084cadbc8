// Package patterns 趋势与K线形态判断，均为无状态纯函数
package patterns

import "momentum-scanner/pkg/types"

// Trend 趋势方向
type Trend string

const (
	Up   Trend = "up"
	Down Trend = "down"
)

const (
	// DefaultLookback 趋势判断窗口
	DefaultLookback = 10
	// ZoneLookback 支撑/阻力及扫损参考窗口
	ZoneLookback = 20

	supportTolerance    = 1.005
	resistanceTolerance = 0.995
)

// Side 扫损评分的风险方向
type Side int

const (
	LongSide Side = iota
	ShortSide
)

// tail 返回最近n根K线
func tail(bars []types.Bar, n int) []types.Bar {
	if len(bars) <= n {
		return bars
	}
	return bars[len(bars)-n:]
}

// TrendDirection 多头趋势判断：窗口内高点和低点首尾差都为正时为Up，否则为Down
func TrendDirection(bars []types.Bar, lookback int) Trend {
	seg := tail(bars, lookback)
	if len(seg) == 0 {
		return Down
	}

	first, last := seg[0], seg[len(seg)-1]
	highSlope := last.High - first.High
	lowSlope := last.Low - first.Low
	if highSlope > 0 && lowSlope > 0 {
		return Up
	}
	return Down
}

// IsDowntrend 空头趋势判断（更严格）：窗口内逐根高点不升且低点不升
func IsDowntrend(bars []types.Bar, lookback int) bool {
	seg := tail(bars, lookback)
	for i := 1; i < len(seg); i++ {
		if seg[i].High > seg[i-1].High || seg[i].Low > seg[i-1].Low {
			return false
		}
	}
	return true
}

// IsBullishEngulfing 看涨吞没：前阴后阳且实体完全包住前一根
func IsBullishEngulfing(prev, cur types.Bar) bool {
	return prev.IsRed() &&
		cur.IsGreen() &&
		cur.Open <= prev.Close &&
		cur.Close >= prev.Open
}

// IsHammer 锤子线
func IsHammer(b types.Bar) bool {
	body := b.Body()
	return b.Range() > 3*body && b.LowerWick() > 2*body && b.UpperWick() < 0.3*body
}

// BullishPattern 最后一根阳线、看涨吞没或锤子线任一成立
func BullishPattern(bars []types.Bar) bool {
	if len(bars) < 2 {
		return false
	}
	prev, cur := bars[len(bars)-2], bars[len(bars)-1]
	return cur.IsGreen() || IsBullishEngulfing(prev, cur) || IsHammer(cur)
}

// LiquidityGrabPassed 长下影且收阴（仍在扫损）时不通过，其余情况通过
func LiquidityGrabPassed(b types.Bar) bool {
	return !(b.LowerWick() > 2*b.Body() && b.IsRed())
}

// LowestLow 最近n根K线最低价
func LowestLow(bars []types.Bar, n int) float64 {
	seg := tail(bars, n)
	if len(seg) == 0 {
		return 0
	}
	low := seg[0].Low
	for _, b := range seg[1:] {
		low = min(low, b.Low)
	}
	return low
}

// HighestHigh 最近n根K线最高价
func HighestHigh(bars []types.Bar, n int) float64 {
	seg := tail(bars, n)
	if len(seg) == 0 {
		return 0
	}
	high := seg[0].High
	for _, b := range seg[1:] {
		high = max(high, b.High)
	}
	return high
}

// NearSupport 最后一根最低价不高于近n根最低价的1.005倍
func NearSupport(bars []types.Bar, n int) bool {
	if len(bars) == 0 {
		return false
	}
	return bars[len(bars)-1].Low <= LowestLow(bars, n)*supportTolerance
}

// NearResistance 最后一根最高价不低于近n根最高价的0.995倍
func NearResistance(bars []types.Bar, n int) bool {
	if len(bars) == 0 {
		return false
	}
	return bars[len(bars)-1].High >= HighestHigh(bars, n)*resistanceTolerance
}

// StopHuntScore 扫损概率评分（0-100）
//
//	+40 风险一侧影线超过实体2倍
//	+20 收盘方向确认拒绝（多头收阳，空头收阴）
//	+20 触及近期极值后收回
//	+20 锤子线（仅多头）
func StopHuntScore(b types.Bar, recentExtreme float64, side Side) int {
	body := b.Body()
	score := 0

	switch side {
	case LongSide:
		if b.LowerWick() > 2*body {
			score += 40
		}
		if b.IsGreen() {
			score += 20
		}
		if b.Low <= recentExtreme*supportTolerance && b.Close > recentExtreme {
			score += 20
		}
		if IsHammer(b) {
			score += 20
		}
	case ShortSide:
		if b.UpperWick() > 2*body {
			score += 40
		}
		if b.IsRed() {
			score += 20
		}
		if b.High >= recentExtreme*resistanceTolerance && b.Close < recentExtreme {
			score += 20
		}
	}

	return min(score, 100)
}
