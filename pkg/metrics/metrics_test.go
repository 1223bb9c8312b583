package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Iterations.WithLabelValues(ResultOK).Inc()
	m.Iterations.WithLabelValues(ResultOK).Inc()
	m.Iterations.WithLabelValues(ResultNoData).Inc()
	m.Frames.WithLabelValues(ResultSaved).Inc()
	m.Snapshots.WithLabelValues(ResultWritten).Add(3)
	m.DriveErrors.Inc()
	m.Buffered.Set(2)
	m.ExchangeAttempts.Observe(1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Iterations.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Iterations.WithLabelValues(ResultNoData)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Frames.WithLabelValues(ResultSaved)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Snapshots.WithLabelValues(ResultWritten)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DriveErrors))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Buffered))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ExchangeAttempts))
}

func TestMetrics_RegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.DriveErrors.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.DriveErrors))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Iterations.WithLabelValues(ResultOK).Inc()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(body), `armrec_control_iterations_total{result="ok"} 1`))
	assert.Contains(t, string(body), "armrec_buffered_records 0")
}
