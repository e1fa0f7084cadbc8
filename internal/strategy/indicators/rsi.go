package indicators

import "github.com/shopspring/decimal"

// DefaultPeriod RSI/CMO/均线默认周期
const DefaultPeriod = 14

// RSI 计算Wilder平滑的相对强弱指数序列
// 至少需要 period+1 个收盘价，输出长度为 len(closes)-period，与输入尾部对齐
// 每个值保留两位小数，比较大小和均线时按两位小数判断
func RSI(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) < period+1 {
		return nil
	}

	out := make([]float64, 0, len(closes)-period)

	// 前period个变动的简单平均作为初始值
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		gain, loss := split(closes[i] - closes[i-1])
		avgGain += gain
		avgLoss += loss
	}
	p := float64(period)
	avgGain /= p
	avgLoss /= p
	out = append(out, rsiValue(avgGain, avgLoss))

	// Wilder平滑: avg = (prevAvg*(period-1) + x) / period
	for i := period + 1; i < len(closes); i++ {
		gain, loss := split(closes[i] - closes[i-1])
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out = append(out, rsiValue(avgGain, avgLoss))
	}

	return out
}

// SMAOfSeries 序列最后window个值的算术平均，数据不足时返回false
func SMAOfSeries(series []float64, window int) (float64, bool) {
	if window <= 0 || len(series) < window {
		return 0, false
	}

	sum := 0.0
	for _, v := range series[len(series)-window:] {
		sum += v
	}
	return sum / float64(window), true
}

func split(change float64) (gain, loss float64) {
	if change > 0 {
		return change, 0
	}
	return 0, -change
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return decimal.NewFromFloat(100.0 - 100.0/(1.0+rs)).Round(2).InexactFloat64()
}
