package middleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"pdavault/logs"
)

// IPLimiter 记录每个 IP 在当前时间窗口内的请求次数以及窗口起点
type IPLimiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	count     map[string]int
	lastReset map[string]time.Time
	now       func() time.Time
}

// NewIPLimiter limit<=0 时不限流
func NewIPLimiter(limit int, window time.Duration) *IPLimiter {
	if window <= 0 {
		window = time.Second
	}
	return &IPLimiter{
		limit:     limit,
		window:    window,
		count:     make(map[string]int),
		lastReset: make(map[string]time.Time),
		now:       time.Now,
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Allow 计数并判断是否超出当前窗口的额度
func (l *IPLimiter) Allow(ip string) bool {
	if l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.lastReset[ip]; !ok || now.Sub(last) > l.window {
		l.count[ip] = 0
		l.lastReset[ip] = now
	}
	l.count[ip]++
	return l.count[ip] <= l.limit
}

// RateLimit 超出额度返回 429
func (l *IPLimiter) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !l.Allow(ip) {
			logs.Debug("[HTTP] rate limited %s %s", ip, r.URL.Path)
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Cleanup 删除超过两个窗口没有活动的 IP 记录，返回删除数量
func (l *IPLimiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for ip, last := range l.lastReset {
		if now.Sub(last) > 2*l.window {
			delete(l.lastReset, ip)
			delete(l.count, ip)
			removed++
		}
	}
	return removed
}

// StartCleanup 后台定时清理，ctx 取消后退出
func (l *IPLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := l.Cleanup(); n > 0 {
					logs.Trace("[HTTP] limiter dropped %d idle ips", n)
				}
			}
		}
	}()
}
