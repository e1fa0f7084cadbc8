package engine

import (
	"sort"
	"time"

	"momentum-scanner/pkg/types"
)

// Board 信号面板快照，整体替换，发布后不再修改
type Board struct {
	Signals   []*types.Signal `json:"signals"`
	UpdatedAt time.Time       `json:"updated_at"`

	bySymbol map[string][]*types.Signal
}

var emptyBoard = &Board{bySymbol: map[string][]*types.Signal{}}

// newBoard 由各交易对结果构建面板，按交易对排序，同一交易对多头在前
func newBoard(bySymbol map[string][]*types.Signal, now time.Time) *Board {
	symbols := make([]string, 0, len(bySymbol))
	total := 0
	for symbol, sigs := range bySymbol {
		if len(sigs) == 0 {
			continue
		}
		symbols = append(symbols, symbol)
		total += len(sigs)
	}
	sort.Strings(symbols)

	all := make([]*types.Signal, 0, total)
	for _, symbol := range symbols {
		all = append(all, bySymbol[symbol]...)
	}

	return &Board{
		Signals:   all,
		UpdatedAt: now,
		bySymbol:  bySymbol,
	}
}

// Len 面板信号数
func (b *Board) Len() int {
	return len(b.Signals)
}

// Filter 按方向筛选，空方向返回全部
func (b *Board) Filter(direction types.Direction) []*types.Signal {
	if direction == "" {
		out := make([]*types.Signal, len(b.Signals))
		copy(out, b.Signals)
		return out
	}

	var out []*types.Signal
	for _, s := range b.Signals {
		if s.Direction == direction {
			out = append(out, s)
		}
	}
	return out
}

// ForSymbol 某个交易对的信号，返回副本
func (b *Board) ForSymbol(symbol string) []*types.Signal {
	sigs := b.bySymbol[symbol]
	if len(sigs) == 0 {
		return nil
	}
	out := make([]*types.Signal, len(sigs))
	copy(out, sigs)
	return out
}

// CountByKind 按类别统计
func (b *Board) CountByKind() map[types.Kind]int {
	counts := make(map[types.Kind]int)
	for _, s := range b.Signals {
		counts[s.Kind]++
	}
	return counts
}

// onBoard 进入面板的信号：有效、接近成立、扫损风险
func onBoard(s *types.Signal) bool {
	switch s.Kind {
	case types.KindValid, types.KindAlmost, types.KindRisky:
		return true
	default:
		return false
	}
}
