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
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveIngest(3, 3)
	m.ObserveFlush("ok", time.Millisecond)
	m.ObserveCompaction("error", time.Millisecond)
	m.ObserveSearch("single", 0, nil, time.Millisecond)
	m.ObserveCache(true)
	m.SetLiveSegments(2)
	m.SegmentDeleted()
	m.SetBreakerState("docstore", 1)
}

func TestObserveSearchClassifiesResult(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveSearch("single", 3, nil, time.Millisecond)
	m.ObserveSearch("single", 0, nil, time.Millisecond)
	m.ObserveSearch("conjunctive", 0, errors.New("boom"), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("single", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("single", "empty")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("conjunctive", "error")))
}

func TestFlushResetsMemtableGauge(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveIngest(4, 4)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.MemtableKeywords))

	m.ObserveFlush("ok", time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.MemtableKeywords))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FlushesTotal.WithLabelValues("ok")))
}

func TestHandlerForServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.SetLiveSegments(5)

	rec := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "index_live_segments 5"))
}
