package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soocke/pixelfind/domain/capture"
	"github.com/soocke/pixelfind/domain/observe"
	"github.com/soocke/pixelfind/domain/region"
)

var (
	_ region.Recorder     = (*Metrics)(nil)
	_ observe.Recorder    = (*Metrics)(nil)
	_ capture.CaptureHook = (*Metrics)(nil).ObserveCapture
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestObserveSearch(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveSearch("region.find", "found", 2, 30*time.Millisecond)
	m.ObserveSearch("region.find", "found", 1, 10*time.Millisecond)
	m.ObserveSearch("region.find", "not_found", 9, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.searchesTotal.WithLabelValues("region.find", "found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.searchesTotal.WithLabelValues("region.find", "not_found")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.searchDuration))
}

func TestObserveCapture(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveCapture(time.Millisecond, nil)
	m.ObserveCapture(0, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.capturesTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.capturesTotal.WithLabelValues("error")))
}

func TestObserveEvent(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveEvent("APPEAR")
	m.ObserveEvent("APPEAR")
	m.ObserveEvent("CHANGE")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsTotal.WithLabelValues("APPEAR")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsTotal.WithLabelValues("CHANGE")))
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestHandler(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveEvent("VANISH")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `pixelfind_observer_events_total{type="VANISH"} 1`), body)
}
