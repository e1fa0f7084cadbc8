package types

import "time"

// Direction 信号方向
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Grade 信号评级
type Grade string

const (
	GradeStrong Grade = "Strong"
	GradeGood   Grade = "Good"
	GradeAlmost Grade = "Almost"
	GradeRisky  Grade = "Risky"
	GradeNone   Grade = "–"
)

// Kind 信号类别。无信号用nil表示
type Kind string

const (
	KindValid  Kind = "valid"  // 有效信号
	KindAlmost Kind = "almost" // 接近成立（仅空头）
	KindRisky  Kind = "risky"  // 扫损风险过高，强制无效
	KindWeak   Kind = "weak"   // 条件不足，仅用于审计
)

// TradeLevels 入场/止盈/止损价位
type TradeLevels struct {
	Entry  float64 `json:"entry"`
	Target float64 `json:"target"`
	Stop   float64 `json:"stop"`
}

// Signal 交易信号。构造后不再修改，下一轮评估生成新的实例替换
type Signal struct {
	Kind                Kind              `json:"kind"`
	Symbol              string            `json:"symbol"`
	Direction           Direction         `json:"direction"`
	Score               int               `json:"score"` // 0-10
	Grade               Grade             `json:"grade"`
	Valid               bool              `json:"valid"`
	Almost              bool              `json:"almost"`
	Levels              *TradeLevels      `json:"levels,omitempty"` // Risky时为空
	Notes               []string          `json:"notes"`
	StopHuntProbability int               `json:"stop_hunt_probability"` // 0-100
	Indicators          IndicatorSnapshot `json:"indicators"`
	Flags               FlagSet           `json:"flags"`
	UpdatedAt           time.Time         `json:"updated_at"`
}
