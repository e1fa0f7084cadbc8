package types

// IndicatorSnapshot 单次评估使用的指标快照，每次评估重新计算
type IndicatorSnapshot struct {
	RSI     float64 `json:"rsi"`      // 参考周期RSI
	RSIPrev float64 `json:"rsi_prev"` // 上一根RSI
	RSISMA  float64 `json:"rsi_sma"`  // RSI的14周期均值
	CMO     float64 `json:"cmo"`      // 主周期CMO
	CMOPrev float64 `json:"cmo_prev"` // 上一根CMO
}

// Flag 单个策略条件
type Flag struct {
	Name string `json:"name"`
	OK   bool   `json:"ok"`
}

// FlagSet 一次评估的条件集合，顺序只影响备注输出
type FlagSet []Flag

// Count 满足条件的数量
func (fs FlagSet) Count() int {
	n := 0
	for _, f := range fs {
		if f.OK {
			n++
		}
	}
	return n
}

// Get 按名称查询条件
func (fs FlagSet) Get(name string) bool {
	for _, f := range fs {
		if f.Name == name {
			return f.OK
		}
	}
	return false
}

// 条件名称
const (
	FlagTrend      = "trend"
	FlagMomentum   = "momentum"
	FlagOscillator = "oscillator"
	FlagPattern    = "pattern"
	FlagSupport    = "support"
	FlagResistance = "resistance"
	FlagLiquidity  = "liquidity"
)
