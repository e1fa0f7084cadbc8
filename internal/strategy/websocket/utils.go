package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"momentum-scanner/pkg/types"
)

// ErrIgnored 非K线事件，直接丢弃
var ErrIgnored = errors.New("非K线事件")

// streamEnvelope 组合流外层 {stream, data}
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// klineEvent Binance K线推送
type klineEvent struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Kline  *struct {
		OpenTime int64        `json:"t"`
		Interval string       `json:"i"`
		Open     types.Number `json:"o"`
		High     types.Number `json:"h"`
		Low      types.Number `json:"l"`
		Close    types.Number `json:"c"`
		Volume   types.Number `json:"v"`
		Final    bool         `json:"x"`
	} `json:"k"`
}

// ParseKlineEvent 解析K线推送，兼容单流和组合流两种格式
// 非K线事件返回ErrIgnored，格式错误返回其他错误
func ParseKlineEvent(raw []byte) (types.BarUpdate, error) {
	var env streamEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return types.BarUpdate{}, fmt.Errorf("解析消息失败: %w", err)
	}

	payload := raw
	if len(env.Data) > 0 {
		payload = env.Data
	}

	var ev klineEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return types.BarUpdate{}, fmt.Errorf("解析K线数据失败: %w", err)
	}
	if ev.Event != "kline" {
		return types.BarUpdate{}, ErrIgnored
	}
	if ev.Kline == nil || ev.Symbol == "" {
		return types.BarUpdate{}, errors.New("K线数据格式不正确")
	}

	k := ev.Kline
	return types.BarUpdate{
		Symbol:   strings.ToUpper(ev.Symbol),
		Interval: k.Interval,
		Bar: types.Bar{
			OpenTime: time.UnixMilli(k.OpenTime).UTC(),
			Open:     k.Open.Float64(),
			High:     k.High.Float64(),
			Low:      k.Low.Float64(),
			Close:    k.Close.Float64(),
			Volume:   k.Volume.Float64(),
		},
		Final: k.Final,
	}, nil
}

// StreamURL 组合流地址，如 wss://host/stream?streams=btcusd@kline_1h/ethusd@kline_1h
func StreamURL(wsBase string, symbols []string, interval string) string {
	streams := make([]string, len(symbols))
	for i, sym := range symbols {
		streams[i] = strings.ToLower(sym) + "@kline_" + interval
	}
	return fmt.Sprintf("%s/stream?streams=%s", strings.TrimRight(wsBase, "/"), strings.Join(streams, "/"))
}
