package monitoring

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollectorAggregatesByLabels(t *testing.T) {
	mc := NewMetricsCollector()
	mc.IncrCounter("predictions_total", 1, map[string]string{"classifier": "risk"})
	mc.IncrCounter("predictions_total", 2, map[string]string{"classifier": "risk"})
	mc.IncrCounter("predictions_total", 1, map[string]string{"classifier": "fetal"})
	mc.SetGauge("classifier_ready", 1, map[string]string{"classifier": "risk"})
	mc.SetGauge("classifier_ready", 0, map[string]string{"classifier": "risk"})

	assert.Equal(t, 3.0, mc.Value("predictions_total", map[string]string{"classifier": "risk"}))
	assert.Equal(t, 1.0, mc.Value("predictions_total", map[string]string{"classifier": "fetal"}))
	assert.Equal(t, 0.0, mc.Value("classifier_ready", map[string]string{"classifier": "risk"}))
	assert.Equal(t, 0.0, mc.Value("missing", nil))
	assert.Len(t, mc.Snapshot(), 3)
}

func TestExportPrometheus(t *testing.T) {
	mc := NewMetricsCollector()
	mc.Describe("http_requests_total", "HTTP requests served")
	mc.IncrCounter("http_requests_total", 1, map[string]string{"status": "200", "method": "GET"})
	mc.IncrCounter("http_requests_total", 1, map[string]string{"status": "400", "method": "POST"})

	out := mc.ExportPrometheus()
	require.NotEmpty(t, out)
	assert.Equal(t, 1, strings.Count(out, "# HELP http_requests_total HTTP requests served\n"))
	assert.Contains(t, out, "# TYPE http_requests_total counter\n")
	assert.Contains(t, out, `http_requests_total{method="GET",status="200"} 1`)
	assert.Contains(t, out, `http_requests_total{method="POST",status="400"} 1`)
	assert.Contains(t, out, "# TYPE system_goroutines gauge\n")
	assert.Contains(t, out, "process_uptime_seconds ")
}
