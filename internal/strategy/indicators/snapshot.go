package indicators

import "momentum-scanner/pkg/types"

// Snapshot 由主周期收盘价和参考周期收盘价计算指标快照
// RSI及其均线取自参考周期，CMO取自主周期；任一不可用时返回false
func Snapshot(primaryCloses, referenceCloses []float64) (types.IndicatorSnapshot, bool) {
	rsiSeries := RSI(referenceCloses, DefaultPeriod)
	sma, ok := SMAOfSeries(rsiSeries, DefaultPeriod)
	if !ok {
		return types.IndicatorSnapshot{}, false
	}

	cmoSeries := CMO(primaryCloses, DefaultPeriod)
	if len(cmoSeries) == 0 {
		return types.IndicatorSnapshot{}, false
	}

	return types.IndicatorSnapshot{
		RSI:     last(rsiSeries, 1),
		RSIPrev: last(rsiSeries, 2),
		RSISMA:  sma,
		CMO:     last(cmoSeries, 1),
		CMOPrev: last(cmoSeries, 2),
	}, true
}

// last 返回倒数第n个值，不存在时为0
func last(series []float64, n int) float64 {
	if len(series) < n {
		return 0
	}
	return series[len(series)-n]
}
