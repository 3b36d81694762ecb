// internal/analysis/types.go
package analysis

import (
	"errors"
	"time"
)

// ExecutionMetrics is one reported execution outcome for a request type.
// Immutable once recorded.
type ExecutionMetrics struct {
	AverageLatency       time.Duration
	MedianLatency        time.Duration
	P95Latency           time.Duration
	P99Latency           time.Duration
	TotalExecutions      int64
	SuccessfulExecutions int64
	FailedExecutions     int64
	ConcurrentExecutions int
	MemoryAllocated      int64
	CPUFraction          float64
	DatabaseCalls        int
	ExternalAPICalls     int
	SampleWindow         time.Duration
	Timestamp            time.Time
}

// Validate rejects malformed outcomes before they reach the table
func (m *ExecutionMetrics) Validate() error {
	if m == nil {
		return errors.New("analysis: metrics are required")
	}
	if m.TotalExecutions < 0 || m.SuccessfulExecutions < 0 || m.FailedExecutions < 0 {
		return errors.New("analysis: negative execution counts")
	}
	if m.AverageLatency < 0 {
		return errors.New("analysis: negative latency")
	}
	if m.CPUFraction < 0 || m.CPUFraction > 1 {
		return errors.New("analysis: cpu fraction outside [0,1]")
	}
	return nil
}

// ErrorRate returns the failure share of this sample
func (m *ExecutionMetrics) ErrorRate() float64 {
	if m.TotalExecutions <= 0 {
		return 0
	}
	return float64(m.FailedExecutions) / float64(m.TotalExecutions)
}

// Snapshot is a read-only view of one request type's accumulated analysis
type Snapshot struct {
	RequestType    string
	History        []ExecutionMetrics
	RepeatRate     float64
	ErrorRate      float64
	AvgConcurrency float64
	AvgLatency     time.Duration
	TotalReported  int64
	LastUpdated    time.Time
}

// LoadLevel classifies current system load
type LoadLevel int

const (
	LoadIdle LoadLevel = iota
	LoadLow
	LoadMedium
	LoadHigh
	LoadCritical
)

func (l LoadLevel) String() string {
	switch l {
	case LoadIdle:
		return "idle"
	case LoadLow:
		return "low"
	case LoadMedium:
		return "medium"
	case LoadHigh:
		return "high"
	case LoadCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ConnectionKind identifies a protocol family for connection estimates
type ConnectionKind int

const (
	ConnHTTP ConnectionKind = iota
	ConnWebSocket
	ConnDatabase
	ConnQueue
	ConnExternalAPI
)

func (k ConnectionKind) String() string {
	switch k {
	case ConnHTTP:
		return "http"
	case ConnWebSocket:
		return "websocket"
	case ConnDatabase:
		return "database"
	case ConnQueue:
		return "queue"
	case ConnExternalAPI:
		return "external_api"
	default:
		return "unknown"
	}
}

// SystemLoadSnapshot is produced fresh on each analysis call
type SystemLoadSnapshot struct {
	CPUUtilization    float64
	MemoryUtilization float64
	Throughput        float64 // requests/second
	ActiveRequests    int
	AvgResponseTime   time.Duration
	ErrorRate         float64
	PoolUtilization   map[string]float64
	Timestamp         time.Time
}
