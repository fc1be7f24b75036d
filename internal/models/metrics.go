package models

import "time"

// SystemMetrics represents system level counters captured from instrumentation.
type SystemMetrics struct {
	GenerationsTotal            uint64    `json:"generations_total"`
	FallbacksTotal              uint64    `json:"fallbacks_total"`
	AverageGenerationDurationMs float64   `json:"average_generation_duration_ms"`
	CriticalConflictsTotal      uint64    `json:"critical_conflicts_total"`
	MajorConflictsTotal         uint64    `json:"major_conflicts_total"`
	MinorConflictsTotal         uint64    `json:"minor_conflicts_total"`
	CacheHitRatio               float64   `json:"cache_hit_ratio"`
	CacheHits                   uint64    `json:"cache_hits"`
	CacheMisses                 uint64    `json:"cache_misses"`
	RequestsTotal               uint64    `json:"requests_total"`
	AverageRequestDurationMs    float64   `json:"average_request_duration_ms"`
	DBQueryCount                uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs    float64   `json:"average_db_query_duration_ms"`
	Goroutines                  int       `json:"goroutines"`
	GeneratedAt                 time.Time `json:"generated_at"`
}
