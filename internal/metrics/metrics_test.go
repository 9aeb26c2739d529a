package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordCycle(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordCycle(time.Second, false)
	c.RecordCycle(2*time.Second, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.cycles))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cyclesFailed))
}

func TestCollector_RecordItems(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordItems(4, 1)
	c.RecordItems(5, 0)

	assert.Equal(t, 9.0, testutil.ToFloat64(c.itemsOK))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.itemsFailed))
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordHTTPRequest("GET", 200, time.Millisecond)
	c.RecordHTTPRequest("GET", 200, time.Millisecond)
	c.RecordHTTPRequest("POST", 401, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("POST", "401")))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordItems(1, 0)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "wbtrack_scheduler_items_succeeded_total 1")
}
