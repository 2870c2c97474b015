package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimit はクライアントIPごとにwindowあたりlimit件までリクエストを許可する
// Ginミドルウェアを返す。超過したリクエストには429を返す。
func RateLimit(limit int, window time.Duration) gin.HandlerFunc {
	limiters := newIPLimiters(limit, window, time.Now)

	return func(c *gin.Context) {
		if !limiters.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"status": http.StatusTooManyRequests,
				"error":  "リクエストが多すぎます。しばらくしてから再試行してください",
			})
			return
		}
		c.Next()
	}
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiters はIPごとのトークンバケット。
// window以上アクセスのないIPはバケットが満杯に戻っているため、window毎に捨てる。
type ipLimiters struct {
	mu        sync.Mutex
	limit     int
	every     rate.Limit
	window    time.Duration
	now       func() time.Time
	lastSweep time.Time
	clients   map[string]*ipLimiter
}

func newIPLimiters(limit int, window time.Duration, now func() time.Time) *ipLimiters {
	if limit <= 0 {
		limit = 1
	}
	return &ipLimiters{
		limit:     limit,
		every:     rate.Every(window / time.Duration(limit)),
		window:    window,
		now:       now,
		lastSweep: now(),
		clients:   make(map[string]*ipLimiter),
	}
}

func (l *ipLimiters) allow(ip string) bool {
	now := l.now()

	l.mu.Lock()
	if now.Sub(l.lastSweep) >= l.window {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) >= l.window {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}
	c, ok := l.clients[ip]
	if !ok {
		c = &ipLimiter{limiter: rate.NewLimiter(l.every, l.limit)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

func (l *ipLimiters) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
