package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe_EmptyAddrDisabled(t *testing.T) {
	assert.Nil(t, Serve(""))
}

func TestMetricsRegistered(t *testing.T) {
	srv := Serve("127.0.0.1:0")
	require.NotNil(t, srv)
	defer srv.Close()

	before := testutil.ToFloat64(BarsTotal.WithLabelValues("1h", "appended"))
	BarsTotal.WithLabelValues("1h", "appended").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(BarsTotal.WithLabelValues("1h", "appended")))

	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(mfs))
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["scanner_bars_total"])
}
