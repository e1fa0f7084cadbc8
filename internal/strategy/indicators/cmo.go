package indicators

// CMO 钱德动量摆动指标序列
// 每个窗口包含period个连续收盘价，输出 100*(up-down)/(up+down)，
// up+down为0时除数取1。输出长度为 len(closes)-period+1
func CMO(closes []float64, period int) []float64 {
	if period <= 1 || len(closes) < period {
		return nil
	}

	out := make([]float64, 0, len(closes)-period+1)
	for end := period; end <= len(closes); end++ {
		window := closes[end-period : end]

		var up, down float64
		for j := 1; j < len(window); j++ {
			diff := window[j] - window[j-1]
			if diff > 0 {
				up += diff
			} else {
				down -= diff
			}
		}

		divisor := up + down
		if divisor == 0 {
			divisor = 1
		}
		out = append(out, 100*(up-down)/divisor)
	}

	return out
}
