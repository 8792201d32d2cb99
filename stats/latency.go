package stats

import (
	"sort"
	"sync"
	"time"
)

// LatencySummary 单个接口的延迟分位
type LatencySummary struct {
	Count uint64        `json:"count"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
	Max   time.Duration `json:"max"`
}

// window 最近 N 个样本的环形窗口
type window struct {
	buf   []time.Duration
	pos   int
	full  bool
	count uint64
	max   time.Duration
}

func (w *window) add(d time.Duration) {
	w.buf[w.pos] = d
	w.pos++
	if w.pos == len(w.buf) {
		w.pos = 0
		w.full = true
	}
	w.count++
	if d > w.max {
		w.max = d
	}
}

func (w *window) sorted() []time.Duration {
	n := w.pos
	if w.full {
		n = len(w.buf)
	}
	out := append([]time.Duration(nil), w.buf[:n]...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LatencyRecorder 按名字分组的固定容量延迟窗口
type LatencyRecorder struct {
	mu      sync.Mutex
	size    int
	windows map[string]*window
}

// NewLatencyRecorder size<=0 时每个窗口保留 2048 个样本
func NewLatencyRecorder(size int) *LatencyRecorder {
	if size <= 0 {
		size = 2048
	}
	return &LatencyRecorder{size: size, windows: make(map[string]*window)}
}

func (r *LatencyRecorder) Record(name string, d time.Duration) {
	if r == nil || name == "" {
		return
	}
	if d < 0 {
		d = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[name]
	if !ok {
		w = &window{buf: make([]time.Duration, r.size)}
		r.windows[name] = w
	}
	w.add(d)
}

// Summaries 每个窗口的分位数
func (r *LatencyRecorder) Summaries() map[string]LatencySummary {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]LatencySummary, len(r.windows))
	for name, w := range r.windows {
		s := w.sorted()
		if len(s) == 0 {
			continue
		}
		out[name] = LatencySummary{
			Count: w.count,
			P50:   quantile(s, 0.50),
			P95:   quantile(s, 0.95),
			P99:   quantile(s, 0.99),
			Max:   w.max,
		}
	}
	return out
}

// quantile 最近秩，s 已升序
func quantile(s []time.Duration, q float64) time.Duration {
	idx := int(float64(len(s)-1) * q)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(s) {
		idx = len(s) - 1
	}
	return s[idx]
}
