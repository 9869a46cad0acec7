package llm

import (
	"sync"
	"time"
)

const maxLatencySamples = 100

// Recorder receives per-attempt measurements
type Recorder interface {
	RecordRequest(provider, model string, success bool, latency time.Duration)
	RecordTokens(provider string, tokens int)
}

// MetricsCollector collects in-process metrics for provider attempts
type MetricsCollector struct {
	requests  map[string]int64
	errors    map[string]int64
	tokens    map[string]int64
	latencies map[string][]time.Duration
	mu        sync.RWMutex
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		requests:  make(map[string]int64),
		errors:    make(map[string]int64),
		tokens:    make(map[string]int64),
		latencies: make(map[string][]time.Duration),
	}
}

// RecordRequest records one attempt against provider:model
func (mc *MetricsCollector) RecordRequest(provider, model string, success bool, latency time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := provider + ":" + model
	mc.requests[key]++
	if !success {
		mc.errors[key]++
	}

	mc.latencies[key] = append(mc.latencies[key], latency)
	if len(mc.latencies[key]) > maxLatencySamples {
		mc.latencies[key] = mc.latencies[key][1:]
	}
}

// RecordTokens records token usage
func (mc *MetricsCollector) RecordTokens(provider string, tokens int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.tokens[provider] += int64(tokens)
}

// Snapshot is a point-in-time copy of the collected metrics
type Snapshot struct {
	Requests     map[string]int64   `json:"requests"`
	Errors       map[string]int64   `json:"errors"`
	Tokens       map[string]int64   `json:"tokens"`
	AvgLatencyMs map[string]float64 `json:"avg_latency_ms"`
}

// Snapshot returns a copy of current metrics
func (mc *MetricsCollector) Snapshot() Snapshot {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	snap := Snapshot{
		Requests:     make(map[string]int64, len(mc.requests)),
		Errors:       make(map[string]int64, len(mc.errors)),
		Tokens:       make(map[string]int64, len(mc.tokens)),
		AvgLatencyMs: make(map[string]float64, len(mc.latencies)),
	}
	for k, v := range mc.requests {
		snap.Requests[k] = v
	}
	for k, v := range mc.errors {
		snap.Errors[k] = v
	}
	for k, v := range mc.tokens {
		snap.Tokens[k] = v
	}
	for k, latencies := range mc.latencies {
		if len(latencies) == 0 {
			continue
		}
		var total time.Duration
		for _, l := range latencies {
			total += l
		}
		snap.AvgLatencyMs[k] = float64(total.Milliseconds()) / float64(len(latencies))
	}
	return snap
}

// Reset resets all metrics
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.requests = make(map[string]int64)
	mc.errors = make(map[string]int64)
	mc.tokens = make(map[string]int64)
	mc.latencies = make(map[string][]time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) RecordRequest(string, string, bool, time.Duration) {}
func (noopRecorder) RecordTokens(string, int)                          {}
