package signals

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"momentum-scanner/internal/strategy/indicators"
	"momentum-scanner/internal/strategy/patterns"
	"momentum-scanner/pkg/types"
)

const (
	// MinPrimaryBars 主周期最少K线数
	MinPrimaryBars = 30
	// MinReferenceCloses 参考周期最少收盘价数
	MinReferenceCloses = 20
	// RiskThreshold 扫损评分达到该值时强制无效
	RiskThreshold = 70

	longValidScore = 7
	strongScore    = 9
)

var (
	longTargetRatio  = decimal.NewFromFloat(1.03)
	longStopRatio    = decimal.NewFromFloat(0.99)
	shortTargetRatio = decimal.NewFromFloat(0.97)
	shortStopRatio   = decimal.NewFromFloat(1.01)
)

// Evaluator 多因子信号评估器，无内部状态，可并发使用
type Evaluator struct{}

// NewEvaluator 创建信号评估器
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate 同时评估多空两个方向，返回非空结果
func (e *Evaluator) Evaluate(symbol string, bars []types.Bar, referenceCloses []float64) []*types.Signal {
	var out []*types.Signal
	if s := e.EvaluateLong(symbol, bars, referenceCloses); s != nil {
		out = append(out, s)
	}
	if s := e.EvaluateShort(symbol, bars, referenceCloses); s != nil {
		out = append(out, s)
	}
	return out
}

// snapshot 数据量检查 + 指标计算
func (e *Evaluator) snapshot(symbol string, bars []types.Bar, referenceCloses []float64) (types.IndicatorSnapshot, bool) {
	if len(bars) < MinPrimaryBars || len(referenceCloses) < MinReferenceCloses {
		zap.L().Debug("历史数据不足，跳过评估",
			zap.String("symbol", symbol),
			zap.Int("primary_bars", len(bars)),
			zap.Int("reference_closes", len(referenceCloses)))
		return types.IndicatorSnapshot{}, false
	}

	snap, ok := indicators.Snapshot(types.Closes(bars), referenceCloses)
	if !ok {
		zap.L().Debug("指标不可用，跳过评估", zap.String("symbol", symbol))
	}
	return snap, ok
}

// EvaluateLong 多头评估。趋势条件不成立时直接返回nil
func (e *Evaluator) EvaluateLong(symbol string, bars []types.Bar, referenceCloses []float64) *types.Signal {
	ind, ok := e.snapshot(symbol, bars, referenceCloses)
	if !ok {
		return nil
	}

	last := bars[len(bars)-1]

	rsiRising := ind.RSI > ind.RSIPrev
	rsiAboveSMA := ind.RSI > ind.RSISMA
	aboutToCross := ind.RSIPrev < ind.RSISMA && ind.RSI >= ind.RSISMA*0.98
	notOverbought := ind.RSI < 80

	flags := types.FlagSet{
		{Name: types.FlagTrend, OK: patterns.TrendDirection(bars, patterns.DefaultLookback) == patterns.Up},
		{Name: types.FlagMomentum, OK: (rsiAboveSMA || aboutToCross) && rsiRising && notOverbought},
		{Name: types.FlagOscillator, OK: ind.CMO >= -100 && ind.CMO <= -60 && ind.CMO > ind.CMOPrev},
		{Name: types.FlagPattern, OK: patterns.BullishPattern(bars)},
		{Name: types.FlagSupport, OK: patterns.NearSupport(bars, patterns.ZoneLookback)},
		{Name: types.FlagLiquidity, OK: patterns.LiquidityGrabPassed(last)},
	}

	// 趋势是硬性条件，不只是计分项
	if !flags.Get(types.FlagTrend) {
		return nil
	}

	score := LongScore(flags.Count(), len(flags))
	valid, grade := LongGrade(score)

	signal := &types.Signal{
		Symbol:              symbol,
		Direction:           types.Long,
		Score:               score,
		Grade:               grade,
		Valid:               valid,
		Notes:               longNotes(flags),
		StopHuntProbability: patterns.StopHuntScore(last, patterns.LowestLow(bars, patterns.ZoneLookback), patterns.LongSide),
		Indicators:          ind,
		Flags:               flags,
		UpdatedAt:           last.OpenTime,
	}

	return finalize(signal, levels(last.Close, longTargetRatio, longStopRatio))
}

// EvaluateShort 空头评估，与多头使用不同的趋势判断和计分方式
func (e *Evaluator) EvaluateShort(symbol string, bars []types.Bar, referenceCloses []float64) *types.Signal {
	ind, ok := e.snapshot(symbol, bars, referenceCloses)
	if !ok {
		return nil
	}

	last := bars[len(bars)-1]

	rsiFalling := ind.RSI < ind.RSIPrev
	rsiBelowSMA := ind.RSI < ind.RSISMA
	notOversold := ind.RSI > 20
	cmoUTurn := ind.CMO < ind.CMOPrev && ind.CMOPrev > 90

	flags := types.FlagSet{
		{Name: types.FlagTrend, OK: patterns.IsDowntrend(bars, patterns.DefaultLookback)},
		{Name: types.FlagMomentum, OK: rsiBelowSMA && rsiFalling && notOversold},
		{Name: types.FlagOscillator, OK: ind.CMO >= 50 && ind.CMO <= 100 && cmoUTurn},
		{Name: types.FlagResistance, OK: patterns.NearResistance(bars, patterns.ZoneLookback)},
	}

	trend := flags.Get(types.FlagTrend)
	momentum := flags.Get(types.FlagMomentum)
	oscillator := flags.Get(types.FlagOscillator)

	score := ShortScore(trend, momentum, oscillator, flags.Get(types.FlagResistance))
	valid := trend && momentum && oscillator
	almost := trend && momentum && !oscillator

	signal := &types.Signal{
		Symbol:              symbol,
		Direction:           types.Short,
		Score:               score,
		Grade:               ShortGrade(score, valid, almost),
		Valid:               valid,
		Almost:              almost,
		Notes:               shortNotes(flags, notOversold),
		StopHuntProbability: patterns.StopHuntScore(last, patterns.HighestHigh(bars, patterns.ZoneLookback), patterns.ShortSide),
		Indicators:          ind,
		Flags:               flags,
		UpdatedAt:           last.OpenTime,
	}

	return finalize(signal, levels(last.Close, shortTargetRatio, shortStopRatio))
}

// LongScore 多头计分：满足条件数映射到0-10
func LongScore(count, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(count) / float64(total) * 10))
}

// LongGrade 多头有效性与评级
func LongGrade(score int) (bool, types.Grade) {
	switch {
	case score >= strongScore:
		return true, types.GradeStrong
	case score >= longValidScore:
		return true, types.GradeGood
	default:
		return false, types.GradeNone
	}
}

// ShortScore 空头加权计分：趋势/动量/摆动各3分，阻力1分
func ShortScore(trend, momentum, oscillator, resistance bool) int {
	score := 0
	if trend {
		score += 3
	}
	if momentum {
		score += 3
	}
	if oscillator {
		score += 3
	}
	if resistance {
		score++
	}
	return score
}

// ShortGrade 空头评级
func ShortGrade(score int, valid, almost bool) types.Grade {
	switch {
	case valid && score >= strongScore:
		return types.GradeStrong
	case valid:
		return types.GradeGood
	case almost:
		return types.GradeAlmost
	default:
		return types.GradeNone
	}
}

// finalize 应用扫损风险覆盖并确定信号类别
// 风险覆盖只作用于有效或接近成立的信号，条件不足的结果保持weak
func finalize(s *types.Signal, lv *types.TradeLevels) *types.Signal {
	if (s.Valid || s.Almost) && s.StopHuntProbability >= RiskThreshold {
		s.Kind = types.KindRisky
		s.Valid = false
		s.Grade = types.GradeRisky
		s.Notes = append(s.Notes, fmt.Sprintf("Stop-hunt probability %d%%, stand aside", s.StopHuntProbability))
		return s
	}

	s.Levels = lv
	switch {
	case s.Valid:
		s.Kind = types.KindValid
	case s.Almost:
		s.Kind = types.KindAlmost
	default:
		s.Kind = types.KindWeak
	}
	return s
}

func levels(entry float64, targetRatio, stopRatio decimal.Decimal) *types.TradeLevels {
	e := decimal.NewFromFloat(entry)
	return &types.TradeLevels{
		Entry:  entry,
		Target: e.Mul(targetRatio).Round(4).InexactFloat64(),
		Stop:   e.Mul(stopRatio).Round(4).InexactFloat64(),
	}
}

func longNotes(flags types.FlagSet) []string {
	notes := make([]string, 0, len(flags)+1)
	for _, f := range flags {
		notes = append(notes, longNote(f))
	}
	return notes
}

func longNote(f types.Flag) string {
	switch f.Name {
	case types.FlagTrend:
		return pick(f.OK, "Up-trend confirmed", "Up-trend not confirmed")
	case types.FlagMomentum:
		return pick(f.OK, "RSI above SMA and rising", "RSI momentum not confirmed")
	case types.FlagOscillator:
		return pick(f.OK, "CMO turning up from oversold zone", "CMO not in reversal zone")
	case types.FlagPattern:
		return pick(f.OK, "Bullish price action", "No bullish pattern")
	case types.FlagSupport:
		return pick(f.OK, "Strong support nearby", "Away from support")
	case types.FlagLiquidity:
		return pick(f.OK, "No liquidity grab", "Possible stop-hunt, wait")
	}
	return f.Name
}

func shortNotes(flags types.FlagSet, notOversold bool) []string {
	notes := make([]string, 0, len(flags)+1)
	for _, f := range flags {
		switch f.Name {
		case types.FlagTrend:
			notes = append(notes, pick(f.OK, "Downtrend confirmed", "Downtrend not confirmed"))
		case types.FlagMomentum:
			switch {
			case f.OK:
				notes = append(notes, "RSI below SMA and falling")
			case !notOversold:
				notes = append(notes, "RSI oversold or turning up")
			default:
				notes = append(notes, "RSI momentum not confirmed")
			}
		case types.FlagOscillator:
			notes = append(notes, pick(f.OK, "CMO U-turn from top zone", "No CMO U-turn"))
		case types.FlagResistance:
			notes = append(notes, pick(f.OK, "Near resistance zone", "Away from resistance"))
		}
	}
	return notes
}

func pick(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
