package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"go.uber.org/zap"
	"momentum-scanner/internal/metrics"
	"momentum-scanner/pkg/types"
)

// HistoryKlineFetcher 历史K线数据获取器
type HistoryKlineFetcher struct {
	baseURL         string
	requestInterval time.Duration
	httpClient      *http.Client
}

// NewHistoryKlineFetcher 创建历史K线获取器
func NewHistoryKlineFetcher(baseURL, proxy string, timeout, requestInterval time.Duration) *HistoryKlineFetcher {
	client := &http.Client{
		Timeout: timeout,
	}

	// 设置代理
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err == nil {
			client.Transport = &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			}
		} else {
			zap.L().Warn("代理地址无效，忽略", zap.String("proxy", proxy), zap.Error(err))
		}
	}

	return &HistoryKlineFetcher{
		baseURL:         baseURL,
		requestInterval: requestInterval,
		httpClient:      client,
	}
}

// FetchHistoryKlines 获取历史K线数据，按时间升序
func (h *HistoryKlineFetcher) FetchHistoryKlines(ctx context.Context, symbol, interval string, limit int) ([]types.Bar, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", fmt.Sprint(limit))
	requestURL := h.baseURL + "/klines?" + params.Encode()

	zap.L().Debug("📊 获取历史K线数据",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("limit", limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		metrics.HistoryFetchErrors.WithLabelValues(interval).Inc()
		return nil, fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.HistoryFetchErrors.WithLabelValues(interval).Inc()
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.HistoryFetchErrors.WithLabelValues(interval).Inc()
		return nil, fmt.Errorf("HTTP响应错误: %d %s", resp.StatusCode, truncate(body, 200))
	}

	bars, err := ParseKlines(body)
	if err != nil {
		metrics.HistoryFetchErrors.WithLabelValues(interval).Inc()
		return nil, err
	}

	zap.L().Debug("✅ 历史K线数据获取完成",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("requested", limit),
		zap.Int("received", len(bars)))

	return bars, nil
}

// ParseKlines 解析 /klines 响应：[[openTime, open, high, low, close, volume, ...], ...]
// 只使用下标0-5，数值可以是数字或数字字符串；无法解析的行被跳过
func ParseKlines(body []byte) ([]types.Bar, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("解析JSON失败: %w", err)
	}

	bars := make([]types.Bar, 0, len(rows))
	for _, row := range rows {
		bar, err := parseRow(row)
		if err != nil {
			zap.L().Warn("解析历史K线数据失败", zap.Error(err))
			continue
		}
		bars = append(bars, bar)
	}

	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].OpenTime.Before(bars[j].OpenTime)
	})
	return bars, nil
}

func parseRow(row []json.RawMessage) (types.Bar, error) {
	if len(row) < 6 {
		return types.Bar{}, fmt.Errorf("K线数据格式不正确: %d 个字段", len(row))
	}

	var fields [6]types.Number
	for i := range fields {
		if err := json.Unmarshal(row[i], &fields[i]); err != nil {
			return types.Bar{}, fmt.Errorf("字段%d: %w", i, err)
		}
	}

	return types.Bar{
		OpenTime: time.UnixMilli(int64(fields[0])).UTC(),
		Open:     fields[1].Float64(),
		High:     fields[2].Float64(),
		Low:      fields[3].Float64(),
		Close:    fields[4].Float64(),
		Volume:   fields[5].Float64(),
	}, nil
}

// FetchMultipleSymbolsHistory 批量获取多个交易对的历史数据
// 单个交易对失败只记录日志，不中断整个过程
func (h *HistoryKlineFetcher) FetchMultipleSymbolsHistory(ctx context.Context, symbols []string, interval string, limit int) map[string][]types.Bar {
	result := make(map[string][]types.Bar, len(symbols))

	for i, symbol := range symbols {
		// 限速
		if i > 0 && h.requestInterval > 0 {
			select {
			case <-ctx.Done():
				return result
			case <-time.After(h.requestInterval):
			}
		}

		bars, err := h.FetchHistoryKlines(ctx, symbol, interval, limit)
		if err != nil {
			zap.L().Error("获取历史K线失败",
				zap.String("symbol", symbol),
				zap.String("interval", interval),
				zap.Error(err))
			continue
		}

		result[symbol] = bars
	}

	return result
}

func truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
