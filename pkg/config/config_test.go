package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"momentum-scanner/pkg/types"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "1h", cfg.Scanner.Interval)
	require.Equal(t, "4h", cfg.Scanner.ReferenceInterval)
	require.Equal(t, 500, cfg.Scanner.MaxBars)
	require.Equal(t, 30*time.Second, cfg.Exchange.ReconnectMax)
	require.Equal(t, "@every 1h", cfg.Scheduler.Spec)
	require.NotEmpty(t, cfg.Scanner.Symbols)
	require.False(t, cfg.Database.MySQL.Enabled)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SCANNER_INTERVAL", "15m")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "15m", cfg.Scanner.Interval)
}

func TestValidate(t *testing.T) {
	valid := types.Config{
		Exchange: types.ExchangeConfig{RestBase: "http://x", WSBase: "ws://x"},
		Scanner: types.ScannerConfig{
			Symbols: []string{"BTCUSD"}, Interval: "1h", ReferenceInterval: "4h", MaxBars: 500,
		},
	}
	require.NoError(t, Validate(&valid))

	noSymbols := valid
	noSymbols.Scanner.Symbols = nil
	require.Error(t, Validate(&noSymbols))

	tooShort := valid
	tooShort.Scanner.MaxBars = 10
	require.Error(t, Validate(&tooShort))
}
