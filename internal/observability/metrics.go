package observability

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MetricType represents the type of metric
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// Metric represents a single metric
type Metric struct {
	Name      string                 `json:"name"`
	Type      MetricType             `json:"type"`
	Value     float64                `json:"value"`
	Labels    map[string]string      `json:"labels,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

// MetricsCollector collects and stores application metrics
type MetricsCollector struct {
	mu      sync.RWMutex
	metrics map[string]*Metric
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics: make(map[string]*Metric),
	}
}

// metricKey generates a unique key for a metric; labels are sorted so the
// key does not depend on map iteration order.
func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(name)
	for _, k := range keys {
		sb.WriteString("." + k + "=" + labels[k])
	}
	return sb.String()
}

func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

// Inc increments a counter metric
func (mc *MetricsCollector) Inc(name string, labels map[string]string) {
	mc.Add(name, 1, labels)
}

// Add adds a value to a counter metric
func (mc *MetricsCollector) Add(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := metricKey(name, labels)
	if metric, exists := mc.metrics[key]; exists {
		metric.Value += value
		metric.Timestamp = time.Now()
		return
	}
	mc.metrics[key] = &Metric{
		Name:      name,
		Type:      MetricTypeCounter,
		Value:     value,
		Labels:    copyLabels(labels),
		Timestamp: time.Now(),
	}
}

// Set sets a gauge metric value
func (mc *MetricsCollector) Set(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.metrics[metricKey(name, labels)] = &Metric{
		Name:      name,
		Type:      MetricTypeGauge,
		Value:     value,
		Labels:    copyLabels(labels),
		Timestamp: time.Now(),
	}
}

// Observe records a histogram observation. Value holds the running average.
func (mc *MetricsCollector) Observe(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := metricKey(name, labels)
	metric, exists := mc.metrics[key]
	if !exists {
		mc.metrics[key] = &Metric{
			Name:      name,
			Type:      MetricTypeHistogram,
			Value:     value,
			Labels:    copyLabels(labels),
			Timestamp: time.Now(),
			Extra: map[string]interface{}{
				"count": 1.0,
				"sum":   value,
			},
		}
		return
	}

	count, _ := metric.Extra["count"].(float64)
	sum, _ := metric.Extra["sum"].(float64)
	count++
	sum += value
	metric.Extra["count"] = count
	metric.Extra["sum"] = sum
	metric.Value = sum / count
	metric.Timestamp = time.Now()
}

// Get retrieves a metric by name and labels
func (mc *MetricsCollector) Get(name string, labels map[string]string) (*Metric, bool) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	metric, exists := mc.metrics[metricKey(name, labels)]
	if !exists {
		return nil, false
	}
	cp := *metric
	return &cp, true
}

// Value returns the current value of a metric, or zero when it was never recorded
func (mc *MetricsCollector) Value(name string, labels map[string]string) float64 {
	if m, ok := mc.Get(name, labels); ok {
		return m.Value
	}
	return 0
}

// GetAll retrieves all metrics
func (mc *MetricsCollector) GetAll() map[string]*Metric {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	result := make(map[string]*Metric, len(mc.metrics))
	for k, v := range mc.metrics {
		cp := *v
		result[k] = &cp
	}
	return result
}

// Reset clears all metrics
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.metrics = make(map[string]*Metric)
}

// Standard metric names
const (
	// Question pipeline
	MetricQueryTotal           = "lab_query_questions_total"
	MetricQueryDuration        = "lab_query_question_duration_seconds"
	MetricQuerySuccess         = "lab_query_questions_success_total"
	MetricQueryFailure         = "lab_query_questions_failure_total"
	MetricQuerySafetyViolation = "lab_query_safety_rejections_total"

	// Result cache
	MetricCacheHits     = "lab_query_cache_hits_total"
	MetricCacheMisses   = "lab_query_cache_misses_total"
	MetricCacheErrors   = "lab_query_cache_backend_errors_total"
	MetricCacheFallback = "lab_query_cache_fallback_total"

	// LLM metrics
	MetricLLMRequests    = "llm_requests_total"
	MetricLLMDuration    = "llm_request_duration_seconds"
	MetricLLMTokens      = "llm_tokens_total"
	MetricLLMErrors      = "llm_errors_total"
	MetricLLMRateLimited = "llm_rate_limited_total"

	// Database metrics
	MetricDBQueries     = "database_queries_total"
	MetricDBDuration    = "database_query_duration_seconds"
	MetricDBErrors      = "database_errors_total"
	MetricDBConnections = "database_connections_open"
	MetricDBRows        = "database_rows_returned"

	// Auth metrics
	MetricAuthAttempts       = "auth_attempts_total"
	MetricAuthSuccess        = "auth_success_total"
	MetricAuthFailure        = "auth_failure_total"
	MetricAuthTokensCreated  = "auth_tokens_created_total"
	MetricAuthAPIKeyRequests = "auth_apikey_requests_total"
	MetricAuthRateLimited    = "auth_rate_limited_total"

	// HTTP metrics
	MetricHTTPRequests     = "http_requests_total"
	MetricHTTPDuration     = "http_request_duration_seconds"
	MetricHTTPErrors       = "http_errors_total"
	MetricHTTPResponseSize = "http_response_size_bytes"
)

var globalMetrics = NewMetricsCollector()

// GetGlobalMetrics returns the global metrics collector
func GetGlobalMetrics() *MetricsCollector {
	return globalMetrics
}

// RecordQueryMetrics records metrics for one answered or failed question
func RecordQueryMetrics(duration time.Duration, mode string, success bool, cached bool, errorType string) {
	metrics := GetGlobalMetrics()
	modeLabels := map[string]string{"mode": mode}

	metrics.Inc(MetricQueryTotal, modeLabels)

	if success {
		metrics.Inc(MetricQuerySuccess, modeLabels)
	} else {
		metrics.Inc(MetricQueryFailure, map[string]string{"mode": mode, "error_type": errorType})
	}

	if success {
		if cached {
			metrics.Inc(MetricCacheHits, nil)
		} else {
			metrics.Inc(MetricCacheMisses, nil)
		}
	}

	metrics.Observe(MetricQueryDuration, duration.Seconds(), modeLabels)
}

// RecordSafetyRejection counts a statement refused by the safety guard
func RecordSafetyRejection(source, reason string) {
	GetGlobalMetrics().Inc(MetricQuerySafetyViolation, map[string]string{
		"source": source,
		"reason": reason,
	})
}

// RecordCacheBackendError counts a failed primary cache operation that fell back in-process
func RecordCacheBackendError(operation string) {
	metrics := GetGlobalMetrics()
	metrics.Inc(MetricCacheErrors, map[string]string{"operation": operation})
	metrics.Inc(MetricCacheFallback, nil)
}

// RecordLLMMetrics records metrics for LLM operations
func RecordLLMMetrics(provider string, duration time.Duration, tokens int, err error) {
	metrics := GetGlobalMetrics()
	labels := map[string]string{"provider": provider}

	metrics.Inc(MetricLLMRequests, labels)
	metrics.Observe(MetricLLMDuration, duration.Seconds(), labels)

	if tokens > 0 {
		metrics.Add(MetricLLMTokens, float64(tokens), labels)
	}
	if err != nil {
		metrics.Inc(MetricLLMErrors, labels)
	}
}

// RecordDBMetrics records metrics for database operations
func RecordDBMetrics(operation string, duration time.Duration, rows int, err error) {
	metrics := GetGlobalMetrics()
	labels := map[string]string{"operation": operation}

	metrics.Inc(MetricDBQueries, labels)
	metrics.Observe(MetricDBDuration, duration.Seconds(), labels)

	if err != nil {
		metrics.Inc(MetricDBErrors, labels)
		return
	}
	metrics.Observe(MetricDBRows, float64(rows), labels)
}

// RecordHTTPMetrics records metrics for HTTP requests
func RecordHTTPMetrics(method, path string, statusCode int, duration time.Duration, responseSize int) {
	metrics := GetGlobalMetrics()

	labels := map[string]string{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(statusCode),
	}

	metrics.Inc(MetricHTTPRequests, labels)
	metrics.Observe(MetricHTTPDuration, duration.Seconds(), labels)

	if statusCode >= 400 {
		metrics.Inc(MetricHTTPErrors, labels)
	}

	if responseSize > 0 {
		metrics.Observe(MetricHTTPResponseSize, float64(responseSize), labels)
	}
}
