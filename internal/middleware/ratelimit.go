package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/zhouzirui/z-invoice/backend/pkg/utils"
)

// RateLimitConfig 描述按客户端 IP 的令牌桶参数，RPS 为 0 时不限流。
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

const (
	visitorIdle  = 10 * time.Minute
	visitorSweep = 1024
)

type visitor struct {
	limiter *rate.Limiter
	seen    time.Time
}

type ipLimiter struct {
	mu       sync.Mutex
	cfg      RateLimitConfig
	visitors map[string]*visitor
}

func (l *ipLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.visitors) >= visitorSweep {
		for key, v := range l.visitors {
			if now.Sub(v.seen) > visitorIdle {
				delete(l.visitors, key)
			}
		}
	}

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(l.cfg.RPS), l.cfg.Burst)}
		l.visitors[ip] = v
	}
	v.seen = now
	return v.limiter.AllowN(now, 1)
}

// RateLimit 超过速率的请求返回 429
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.RPS <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	l := &ipLimiter{cfg: cfg, visitors: make(map[string]*visitor)}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodOptions && !l.allow(clientIP(r), time.Now()) {
				w.Header().Set("Retry-After", "1")
				utils.RespondError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP 依赖 chi 的 RealIP 已改写 RemoteAddr
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
