package monitor

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"momentum-scanner/internal/strategy/engine"
	"momentum-scanner/pkg/types"
)

type fakeSource struct {
	stats map[string]interface{}
	board *engine.Board
}

func (f *fakeSource) GetStats() map[string]interface{} { return f.stats }
func (f *fakeSource) Board() *engine.Board             { return f.board }

func testSource() *fakeSource {
	updated := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &fakeSource{
		stats: map[string]interface{}{
			"processed_bars": int64(120),
			"rejected_bars":  int64(2),
			"evaluations":    int64(30),
			"signals_found":  int64(5),
		},
		board: &engine.Board{
			UpdatedAt: updated,
			Signals: []*types.Signal{
				{
					Symbol: "BTCUSD", Direction: types.Long, Kind: types.KindValid,
					Score: 8, Grade: types.GradeStrong, StopHuntProbability: 20,
					Levels:    &types.TradeLevels{Entry: 100, Target: 103, Stop: 99},
					UpdatedAt: updated,
				},
				{
					Symbol: "ETHUSD", Direction: types.Short, Kind: types.KindRisky,
					Score: 6, Grade: types.GradeRisky, StopHuntProbability: 80,
					UpdatedAt: updated,
				},
			},
		},
	}
}

func TestGetMetrics(t *testing.T) {
	pm := NewPerformanceMonitor(testSource(), nil, nil, types.MonitorConfig{})
	assert.Equal(t, 5*time.Minute, pm.interval)

	m := pm.GetMetrics()
	assert.Equal(t, int64(120), m.ProcessedBars)
	assert.Equal(t, int64(2), m.RejectedBars)
	assert.Equal(t, int64(30), m.Evaluations)
	assert.Equal(t, int64(5), m.SignalsFound)
	assert.Equal(t, 2, m.BoardSignals)
	assert.Equal(t, 1, m.LongSignals)
	assert.Equal(t, 1, m.ShortSignals)
	assert.Equal(t, 1, m.ByKind[types.KindValid])
	assert.Equal(t, 1, m.ByKind[types.KindRisky])

	require.Contains(t, m.SymbolStats, "BTCUSD/long")
	assert.Equal(t, 100.0, m.SymbolStats["BTCUSD/long"].Entry)
	require.Contains(t, m.SymbolStats, "ETHUSD/short")
	assert.Equal(t, 0.0, m.SymbolStats["ETHUSD/short"].Entry)
	assert.Equal(t, 80, m.SymbolStats["ETHUSD/short"].StopHunt)
}

func TestGetMetricsJSON(t *testing.T) {
	pm := NewPerformanceMonitor(testSource(), nil, nil, types.MonitorConfig{Interval: time.Minute})

	raw, err := pm.GetMetricsJSON()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	assert.EqualValues(t, 2, decoded["board_signals"])
	assert.EqualValues(t, 120, decoded["processed_bars"])
}

func TestStartStop(t *testing.T) {
	pm := NewPerformanceMonitor(testSource(), nil, nil, types.MonitorConfig{Interval: 10 * time.Millisecond})
	pm.Start()
	time.Sleep(30 * time.Millisecond)
	pm.Stop()

	assert.False(t, pm.GetMetrics().LastUpdateTime.IsZero())
}

func TestMissingStatsDefaultToZero(t *testing.T) {
	source := &fakeSource{stats: map[string]interface{}{"processed_bars": 7}, board: &engine.Board{}}
	m := NewPerformanceMonitor(source, nil, nil, types.MonitorConfig{}).GetMetrics()

	assert.Equal(t, int64(7), m.ProcessedBars)
	assert.Equal(t, int64(0), m.Evaluations)
	assert.Equal(t, 0, m.BoardSignals)
}

type fakeScheduler struct{ runs int }

func (f *fakeScheduler) GetStats() map[string]interface{} {
	return map[string]interface{}{"runs": f.runs}
}

type fakeArchive struct{ err error }

func (f *fakeArchive) Health() error { return f.err }

func TestGetMetricsIncludesSchedulerAndArchive(t *testing.T) {
	m := NewPerformanceMonitor(testSource(), nil, nil, types.MonitorConfig{}).GetMetrics()
	assert.Equal(t, 0, m.SchedulerRuns)
	assert.Equal(t, "disabled", m.ArchiveStatus)

	m = NewPerformanceMonitor(testSource(), &fakeScheduler{runs: 4}, &fakeArchive{}, types.MonitorConfig{}).GetMetrics()
	assert.Equal(t, 4, m.SchedulerRuns)
	assert.Equal(t, "ok", m.ArchiveStatus)

	m = NewPerformanceMonitor(testSource(), nil, &fakeArchive{err: errors.New("connection refused")}, types.MonitorConfig{}).GetMetrics()
	assert.Equal(t, "error: connection refused", m.ArchiveStatus)
}
