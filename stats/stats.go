package stats

import (
	"sync"
	"time"
)

// Stats 接口调用计数 + 延迟分位
type Stats struct {
	mu      sync.RWMutex
	calls   map[string]uint64
	errors  map[string]uint64
	latency *LatencyRecorder
	started time.Time
}

// Snapshot 对外输出的统计快照
type Snapshot struct {
	Uptime  time.Duration             `json:"uptime"`
	Calls   map[string]uint64         `json:"calls"`
	Errors  map[string]uint64         `json:"errors,omitempty"`
	Latency map[string]LatencySummary `json:"latency,omitempty"`
}

func NewStats() *Stats {
	return &Stats{
		calls:   make(map[string]uint64),
		errors:  make(map[string]uint64),
		latency: NewLatencyRecorder(0),
		started: time.Now(),
	}
}

// RecordAPICall 记录一次调用；failed 为 true 时同时计入错误数
func (s *Stats) RecordAPICall(api string, d time.Duration, failed bool) {
	s.mu.Lock()
	s.calls[api]++
	if failed {
		s.errors[api]++
	}
	s.mu.Unlock()
	s.latency.Record(api, d)
}

// GetAPICallStats 调用计数副本
func (s *Stats) GetAPICallStats() map[string]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyCounts(s.calls)
}

// Snapshot 全部统计；延迟样本不清空
func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	calls := copyCounts(s.calls)
	errs := copyCounts(s.errors)
	s.mu.RUnlock()
	return Snapshot{
		Uptime:  time.Since(s.started).Truncate(time.Second),
		Calls:   calls,
		Errors:  errs,
		Latency: s.latency.Summaries(),
	}
}

func copyCounts(m map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
