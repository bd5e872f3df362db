package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopVolumeMetrics(t *testing.T) {
	t.Parallel()

	m := NewNoopVolumeMetrics()
	require.NotNil(t, m)
	assert.NotPanics(t, func() {
		m.RecordMount("ESP_OK")
		m.RecordOperation("open", time.Second, nil)
		m.RecordBytes("read", 10)
		m.SetOpenHandles(1)
		m.SetSpace(2, 1)
		m.RecordUnmount()
	})
}

// The registry is process global, so the disabled and enabled states are
// checked in order within one test.
func TestRegistry_Lifecycle(t *testing.T) {
	require.False(t, IsEnabled())

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	InitRegistry()
	reg := GetRegistry()
	require.NotNil(t, reg)
	assert.True(t, IsEnabled())

	InitRegistry()
	assert.Same(t, reg, GetRegistry(), "second init must be ignored")

	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "sdfat_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	rec = httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sdfat_test_total 1")
}
