package signals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"momentum-scanner/pkg/types"
)

var base = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func at(i int) time.Time { return base.Add(time.Duration(i) * time.Hour) }

// alternating +2/-1 收盘价，RSI稳定在65-69之间
func alternating(changes int) []float64 {
	closes := []float64{100}
	for i := 1; i <= changes; i++ {
		step := -1.0
		if i%2 == 1 {
			step = 2
		}
		closes = append(closes, closes[len(closes)-1]+step)
	}
	return closes
}

// 以上涨步结束：RSI上穿均线且向上
func risingReference() []float64 {
	return alternating(39)
}

// 连续下跌收尾：RSI低于均线且向下
func fallingReference() []float64 {
	closes := alternating(30)
	for i := 0; i < 4; i++ {
		closes = append(closes, closes[len(closes)-1]-1.5)
	}
	return closes
}

func uptrendBars(n int) []types.Bar {
	bars := make([]types.Bar, n)
	for i := range bars {
		c := 100 + float64(i)
		o := c - 0.5
		bars[i] = types.Bar{OpenTime: at(i), Open: o, High: c + 0.25, Low: o - 0.25, Close: c, Volume: 10}
	}
	return bars
}

func downtrendBars(n int) []types.Bar {
	bars := make([]types.Bar, n)
	for i := range bars {
		c := 200 - float64(i)
		bars[i] = types.Bar{OpenTime: at(i), Open: c + 0.5, High: c + 1, Low: c - 1, Close: c, Volume: 10}
	}
	return bars
}

// 收盘价持续上升（CMO从100回落到92），最近10根高低点走平，满足空头结构
func shortSetupBars() []types.Bar {
	const n = 40
	bars := make([]types.Bar, n)
	for i := 0; i < n-1; i++ {
		c := 60 + float64(i)
		bars[i] = types.Bar{OpenTime: at(i), Open: c - 0.5, High: c + 0.5, Low: c - 1, Close: c}
		if i >= n-10 {
			bars[i].High = 99
			bars[i].Low = 70
		}
	}
	bars[n-1] = types.Bar{OpenTime: at(n - 1), Open: 98, High: 99, Low: 70, Close: 97.5}
	return bars
}

func TestEvaluateLong_InsufficientHistory(t *testing.T) {
	e := NewEvaluator()
	assert.Nil(t, e.EvaluateLong("BTCUSD", uptrendBars(29), risingReference()))
	assert.Nil(t, e.EvaluateLong("BTCUSD", uptrendBars(40), risingReference()[:19]))
	// RSI均线需要28个参考收盘价
	assert.Nil(t, e.EvaluateLong("BTCUSD", uptrendBars(40), risingReference()[:25]))
}

func TestEvaluateLong_TrendIsHardGate(t *testing.T) {
	e := NewEvaluator()
	assert.Nil(t, e.EvaluateLong("BTCUSD", downtrendBars(40), risingReference()))
}

func TestEvaluateLong_FourOfSixIsValid(t *testing.T) {
	e := NewEvaluator()
	bars := uptrendBars(40)
	s := e.EvaluateLong("BTCUSD", bars, risingReference())
	require.NotNil(t, s)

	assert.True(t, s.Flags.Get(types.FlagTrend))
	assert.True(t, s.Flags.Get(types.FlagMomentum))
	assert.False(t, s.Flags.Get(types.FlagOscillator))
	assert.True(t, s.Flags.Get(types.FlagPattern))
	assert.False(t, s.Flags.Get(types.FlagSupport))
	assert.True(t, s.Flags.Get(types.FlagLiquidity))

	assert.Equal(t, 7, s.Score)
	assert.True(t, s.Valid)
	assert.Equal(t, types.GradeGood, s.Grade)
	assert.Equal(t, types.KindValid, s.Kind)
	assert.Equal(t, types.Long, s.Direction)
	assert.Len(t, s.Notes, 6)
	assert.Equal(t, bars[len(bars)-1].OpenTime, s.UpdatedAt)

	require.NotNil(t, s.Levels)
	assert.Equal(t, 139.0, s.Levels.Entry)
	assert.Equal(t, 143.17, s.Levels.Target)
	assert.Equal(t, 137.61, s.Levels.Stop)
	assert.Less(t, s.StopHuntProbability, RiskThreshold)
}

func TestEvaluateLong_RiskOverride(t *testing.T) {
	const n = 40
	bars := make([]types.Bar, n)
	for i := range bars {
		bars[i] = types.Bar{OpenTime: at(i), Open: 101.5, High: 102.5, Low: 101, Close: 102}
	}
	bars[29].Low = 100
	bars[30] = types.Bar{OpenTime: at(30), Open: 101, High: 101.8, Low: 100.1, Close: 101.5}
	// 长下影收阳，刺破20根最低点附近后收回
	bars[n-1] = types.Bar{OpenTime: at(n - 1), Open: 103, High: 103.3, Low: 100.4, Close: 103.2}

	s := NewEvaluator().EvaluateLong("ETHUSD", bars, risingReference())
	require.NotNil(t, s)

	assert.GreaterOrEqual(t, s.StopHuntProbability, 70)
	assert.Equal(t, types.KindRisky, s.Kind)
	assert.False(t, s.Valid)
	assert.Equal(t, types.GradeRisky, s.Grade)
	assert.Nil(t, s.Levels)
	assert.Len(t, s.Notes, 7)
	assert.Contains(t, s.Notes[len(s.Notes)-1], "Stop-hunt")
	// 覆盖前分数本身是有效的
	assert.GreaterOrEqual(t, s.Score, 7)
}

func TestEvaluateShort_StrongSetup(t *testing.T) {
	s := NewEvaluator().EvaluateShort("SOLUSD", shortSetupBars(), fallingReference())
	require.NotNil(t, s)

	assert.True(t, s.Flags.Get(types.FlagTrend))
	assert.True(t, s.Flags.Get(types.FlagMomentum))
	assert.True(t, s.Flags.Get(types.FlagOscillator))
	assert.True(t, s.Flags.Get(types.FlagResistance))
	assert.InDelta(t, 92.0, s.Indicators.CMO, 1e-9)
	assert.InDelta(t, 100.0, s.Indicators.CMOPrev, 1e-9)

	assert.Equal(t, 10, s.Score)
	assert.True(t, s.Valid)
	assert.False(t, s.Almost)
	assert.Equal(t, types.GradeStrong, s.Grade)
	assert.Equal(t, types.KindValid, s.Kind)
	assert.Equal(t, 40, s.StopHuntProbability)
	assert.Equal(t, []string{
		"Downtrend confirmed",
		"RSI below SMA and falling",
		"CMO U-turn from top zone",
		"Near resistance zone",
	}, s.Notes)

	require.NotNil(t, s.Levels)
	assert.Equal(t, 97.5, s.Levels.Entry)
	assert.Equal(t, 94.575, s.Levels.Target)
	assert.Equal(t, 98.475, s.Levels.Stop)
}

func TestEvaluateShort_AlmostWithoutOscillator(t *testing.T) {
	bars := shortSetupBars()
	// 最后一根继续上涨，CMO维持100，没有拐头
	bars[len(bars)-1].Close = 98.9
	bars[len(bars)-1].Open = 98.95

	s := NewEvaluator().EvaluateShort("SOLUSD", bars, fallingReference())
	require.NotNil(t, s)
	assert.False(t, s.Flags.Get(types.FlagOscillator))
	assert.True(t, s.Almost)
	assert.False(t, s.Valid)
	assert.Equal(t, types.GradeAlmost, s.Grade)
	assert.Equal(t, types.KindAlmost, s.Kind)
	assert.Equal(t, 7, s.Score)
}

func TestEvaluateShort_NoTrendGate(t *testing.T) {
	s := NewEvaluator().EvaluateShort("BTCUSD", uptrendBars(40), risingReference())
	require.NotNil(t, s)
	assert.False(t, s.Flags.Get(types.FlagTrend))
	assert.Equal(t, types.KindWeak, s.Kind)
	assert.Equal(t, types.GradeNone, s.Grade)
	assert.Len(t, s.Notes, 4)
}

func TestEvaluateShort_RiskOverrideSkipsWeakResult(t *testing.T) {
	bars := uptrendBars(40)
	// 上影线冲高回落收阴，扫损评分80，但空头条件只满足阻力位
	bars[len(bars)-1] = types.Bar{OpenTime: at(39), Open: 139, High: 141, Low: 138.7, Close: 138.8}

	s := NewEvaluator().EvaluateShort("BTCUSD", bars, risingReference())
	require.NotNil(t, s)

	assert.Equal(t, 80, s.StopHuntProbability)
	assert.False(t, s.Flags.Get(types.FlagTrend))
	assert.False(t, s.Flags.Get(types.FlagMomentum))
	assert.False(t, s.Flags.Get(types.FlagOscillator))
	assert.True(t, s.Flags.Get(types.FlagResistance))
	assert.Equal(t, 1, s.Score)
	assert.Equal(t, types.KindWeak, s.Kind)
	assert.Equal(t, types.GradeNone, s.Grade)
	assert.Len(t, s.Notes, 4)
}

func TestEvaluate_BothDirections(t *testing.T) {
	out := NewEvaluator().Evaluate("BTCUSD", uptrendBars(40), risingReference())
	require.Len(t, out, 2)
	assert.Equal(t, types.Long, out[0].Direction)
	assert.Equal(t, types.Short, out[1].Direction)

	out = NewEvaluator().Evaluate("BTCUSD", downtrendBars(40), risingReference())
	require.Len(t, out, 1)
	assert.Equal(t, types.Short, out[0].Direction)
}

func TestLongScoreBoundaries(t *testing.T) {
	tests := []struct {
		count int
		score int
		valid bool
		grade types.Grade
	}{
		{6, 10, true, types.GradeStrong},
		{5, 8, true, types.GradeGood},
		{4, 7, true, types.GradeGood},
		{3, 5, false, types.GradeNone},
		{1, 2, false, types.GradeNone},
	}
	for _, tt := range tests {
		score := LongScore(tt.count, 6)
		assert.Equal(t, tt.score, score, "count=%d", tt.count)
		valid, grade := LongGrade(score)
		assert.Equal(t, tt.valid, valid, "count=%d", tt.count)
		assert.Equal(t, tt.grade, grade, "count=%d", tt.count)
	}

	valid, _ := LongGrade(6)
	assert.False(t, valid)
	valid, _ = LongGrade(7)
	assert.True(t, valid)
}

func TestShortScoreAndGrade(t *testing.T) {
	assert.Equal(t, 10, ShortScore(true, true, true, true))
	assert.Equal(t, 9, ShortScore(true, true, true, false))
	assert.Equal(t, 7, ShortScore(true, true, false, true))
	assert.Equal(t, 1, ShortScore(false, false, false, true))

	assert.Equal(t, types.GradeStrong, ShortGrade(9, true, false))
	assert.Equal(t, types.GradeAlmost, ShortGrade(7, false, true))
	assert.Equal(t, types.GradeNone, ShortGrade(4, false, false))
}
