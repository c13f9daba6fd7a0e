package monitoring

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType 指标类型
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
)

// Metric 指标
type Metric struct {
	Name   string            `json:"name"`
	Type   MetricType        `json:"type"`
	Value  float64           `json:"value"`
	Labels map[string]string `json:"labels,omitempty"`
}

// MetricsCollector 指标收集器，按名称和标签聚合
type MetricsCollector struct {
	mu      sync.RWMutex
	metrics map[string]*Metric
	help    map[string]string

	startTime time.Time
}

// NewMetricsCollector 创建指标收集器
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics:   make(map[string]*Metric),
		help:      make(map[string]string),
		startTime: time.Now(),
	}
}

// Describe 设置指标说明
func (mc *MetricsCollector) Describe(name, help string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.help[name] = help
}

// IncrCounter 增加计数器
func (mc *MetricsCollector) IncrCounter(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	m := mc.metricLocked(name, MetricTypeCounter, labels)
	m.Value += value
}

// SetGauge 设置仪表
func (mc *MetricsCollector) SetGauge(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	m := mc.metricLocked(name, MetricTypeGauge, labels)
	m.Value = value
}

func (mc *MetricsCollector) metricLocked(name string, kind MetricType, labels map[string]string) *Metric {
	key := name + labelString(labels)
	m, ok := mc.metrics[key]
	if !ok {
		copied := make(map[string]string, len(labels))
		for k, v := range labels {
			copied[k] = v
		}
		m = &Metric{Name: name, Type: kind, Labels: copied}
		mc.metrics[key] = m
	}
	return m
}

// Value 获取指标当前值
func (mc *MetricsCollector) Value(name string, labels map[string]string) float64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	if m, ok := mc.metrics[name+labelString(labels)]; ok {
		return m.Value
	}
	return 0
}

// Snapshot 返回所有指标的副本，按名称和标签排序
func (mc *MetricsCollector) Snapshot() []Metric {
	mc.mu.RLock()
	keys := make([]string, 0, len(mc.metrics))
	for k := range mc.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Metric, len(keys))
	for i, k := range keys {
		out[i] = *mc.metrics[k]
	}
	mc.mu.RUnlock()
	return out
}

// ExportPrometheus 导出Prometheus文本格式
func (mc *MetricsCollector) ExportPrometheus() string {
	mc.recordSystemMetrics()

	var b strings.Builder
	lastName := ""
	for _, m := range mc.Snapshot() {
		if m.Name != lastName {
			mc.mu.RLock()
			help := mc.help[m.Name]
			mc.mu.RUnlock()
			if help == "" {
				help = fmt.Sprintf("Metric %s", m.Name)
			}
			fmt.Fprintf(&b, "# HELP %s %s\n", m.Name, help)
			fmt.Fprintf(&b, "# TYPE %s %s\n", m.Name, m.Type)
			lastName = m.Name
		}
		fmt.Fprintf(&b, "%s%s %g\n", m.Name, labelString(m.Labels), m.Value)
	}
	return b.String()
}

// GetUptime 获取运行时间
func (mc *MetricsCollector) GetUptime() time.Duration {
	return time.Since(mc.startTime)
}

func (mc *MetricsCollector) recordSystemMetrics() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	mc.SetGauge("system_goroutines", float64(runtime.NumGoroutine()), nil)
	mc.SetGauge("system_heap_alloc_bytes", float64(mem.HeapAlloc), nil)
	mc.SetGauge("process_uptime_seconds", mc.GetUptime().Seconds(), nil)
}

func labelString(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf(`%s=%q`, k, labels[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}
