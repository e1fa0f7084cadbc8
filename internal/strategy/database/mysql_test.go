package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"momentum-scanner/pkg/types"
)

func TestDSN(t *testing.T) {
	dsn := DSN(types.MySQLConfig{
		Host:     "db.local",
		Port:     3307,
		Username: "scanner",
		Password: "secret",
		Database: "market",
	})
	assert.Equal(t, "scanner:secret@tcp(db.local:3307)/market?charset=utf8mb4&parseTime=True&loc=Local", dsn)
}

func TestModelKeepsMillisecondOpenTime(t *testing.T) {
	bar := types.Bar{
		OpenTime: time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC),
		Open:     1, High: 2, Low: 0.5, Close: 1.5, Volume: 42,
	}
	model := toModel("BTCUSD", "1h", bar)

	assert.Equal(t, "BTCUSD", model.Symbol)
	assert.Equal(t, "1h", model.Interval)
	assert.Equal(t, int64(1714568400000), model.OpenTime)
	assert.Equal(t, bar, model.toBar())
	assert.Equal(t, "scanner_klines", KLine{}.TableName())
}
