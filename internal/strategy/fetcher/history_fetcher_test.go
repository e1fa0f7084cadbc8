package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"momentum-scanner/pkg/types"
)

func TestParseKlines_LiteralSample(t *testing.T) {
	bars, err := ParseKlines([]byte(`[[0,"100","105","95","102","10"]]`))
	require.NoError(t, err)
	require.Len(t, bars, 1)

	assert.Equal(t, types.Bar{
		OpenTime: time.UnixMilli(0).UTC(),
		Open:     100,
		High:     105,
		Low:      95,
		Close:    102,
		Volume:   10,
	}, bars[0])
}

func TestParseKlines_FullRowsSortedAndBadRowsSkipped(t *testing.T) {
	body := `[
		[1714525200000,"2.0","2.5","1.5","2.2","20",1714528799999,"44.0",12,"10","22","0"],
		[1714521600000,"1.0","1.5","0.5","1.2","10",1714525199999,"12.0",5,"5","6","0"],
		[1714528800000,"x","1","1","1","1"],
		[1714532400000,"1","1"]
	]`
	bars, err := ParseKlines([]byte(body))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 1.2, bars[0].Close)
	assert.Equal(t, 2.2, bars[1].Close)
	assert.True(t, bars[0].OpenTime.Before(bars[1].OpenTime))
}

func TestParseKlines_InvalidJSON(t *testing.T) {
	_, err := ParseKlines([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	assert.Error(t, err)
}

func TestFetchHistoryKlines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSD", r.URL.Query().Get("symbol"))
		assert.Equal(t, "4h", r.URL.Query().Get("interval"))
		assert.Equal(t, "500", r.URL.Query().Get("limit"))
		w.Write([]byte(`[[0,"100","105","95","102","10"],[14400000,"102","103","101","102.5","4"]]`))
	}))
	defer server.Close()

	f := NewHistoryKlineFetcher(server.URL+"/api/v3", "", 5*time.Second, 0)
	bars, err := f.FetchHistoryKlines(context.Background(), "BTCUSD", "4h", 500)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 102.5, bars[1].Close)
}

func TestFetchHistoryKlines_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer server.Close()

	f := NewHistoryKlineFetcher(server.URL, "", 5*time.Second, 0)
	_, err := f.FetchHistoryKlines(context.Background(), "NOPE", "1h", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestFetchMultipleSymbolsHistory_SkipsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "BAD" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[[0,"1","1","1","1","1"]]`))
	}))
	defer server.Close()

	f := NewHistoryKlineFetcher(server.URL, "", 5*time.Second, time.Millisecond)
	result := f.FetchMultipleSymbolsHistory(context.Background(), []string{"BTCUSD", "BAD", "ETHUSD"}, "1h", 10)

	assert.Len(t, result, 2)
	assert.Contains(t, result, "BTCUSD")
	assert.Contains(t, result, "ETHUSD")
	assert.NotContains(t, result, "BAD")
}
