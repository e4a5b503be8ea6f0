package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter ограничивает частоту запросов по ключу (обычно IP адрес).
// Каждый ключ получает свой token bucket: rate запросов за window с burst = rate
type RateLimiter struct {
	buckets  map[string]*bucket
	logger   *slog.Logger
	now      func() time.Time
	cleanupC chan struct{}
	stopOnce sync.Once
	limit    rate.Limit
	rate     int
	window   time.Duration
	mu       sync.Mutex
}

// bucket представляет limiter для конкретного IP/ключа
type bucket struct {
	lastSeen time.Time
	limiter  *rate.Limiter
}

// NewRateLimiter создает новый rate limiter
// rate - максимальное количество запросов в единицу времени
// window - временное окно (например, 1 минута)
func NewRateLimiter(requests int, window time.Duration, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		buckets:  make(map[string]*bucket),
		rate:     requests,
		window:   window,
		limit:    rate.Every(window / time.Duration(max(requests, 1))),
		logger:   logger,
		now:      time.Now,
		cleanupC: make(chan struct{}),
	}

	// Запускаем периодическую очистку старых buckets
	go rl.cleanup()

	return rl
}

// cleanup периодически удаляет неактивные buckets для экономии памяти
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window * 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupOldBuckets()
		case <-rl.cleanupC:
			return
		}
	}
}

// cleanupOldBuckets удаляет buckets, которые не использовались дольше 2*window
func (rl *RateLimiter) cleanupOldBuckets() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) > rl.window*2 {
			delete(rl.buckets, key)
		}
	}
}

// Stop останавливает cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.cleanupC)
	})
}

// Allow проверяет, разрешен ли запрос для данного ключа
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.now()

	rl.mu.Lock()
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.rate)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// retryAfter возвращает число секунд до появления следующего токена
func (rl *RateLimiter) retryAfter() int {
	secs := int((rl.window / time.Duration(max(rl.rate, 1))).Seconds())
	return max(secs, 1)
}

// size returns the number of tracked keys
func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// PathRateLimit задает лимит для конкретного пути
type PathRateLimit struct {
	Path   string
	Rate   int
	Window time.Duration
}

// PathRateLimiter применяет разные лимиты к разным путям
type PathRateLimiter struct {
	limiters   map[string]*RateLimiter
	fallback   *RateLimiter
	logger     *slog.Logger
	trustProxy bool
}

// NewPathRateLimiter создает limiters для путей.
// defaultRate <= 0 отключает лимит для остальных путей.
// trustProxy разрешает брать IP клиента из X-Forwarded-For / X-Real-IP
func NewPathRateLimiter(limits []PathRateLimit, defaultRate int, defaultWindow time.Duration, trustProxy bool, logger *slog.Logger) *PathRateLimiter {
	p := &PathRateLimiter{
		limiters:   make(map[string]*RateLimiter, len(limits)),
		logger:     logger,
		trustProxy: trustProxy,
	}
	for _, limit := range limits {
		if limit.Rate > 0 {
			p.limiters[limit.Path] = NewRateLimiter(limit.Rate, limit.Window, logger)
		}
	}
	if defaultRate > 0 {
		p.fallback = NewRateLimiter(defaultRate, defaultWindow, logger)
	}
	return p
}

// Middleware возвращает http middleware
func (p *PathRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Выбираем соответствующий limiter
		limiter, exists := p.limiters[r.URL.Path]
		if !exists {
			limiter = p.fallback
		}
		if limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := getClientIP(r, p.trustProxy)
		if !limiter.Allow(key) {
			p.logger.WarnContext(r.Context(), "rate limit exceeded",
				"ip", key,
				"method", r.Method,
				"path", sanitizePath(r.URL.Path),
			)

			w.Header().Set("Retry-After", strconv.Itoa(limiter.retryAfter()))
			writeError(w, "rate limit exceeded, please try again later", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Stop останавливает все cleanup goroutines
func (p *PathRateLimiter) Stop() {
	for _, l := range p.limiters {
		l.Stop()
	}
	if p.fallback != nil {
		p.fallback.Stop()
	}
}

// getClientIP извлекает IP адрес клиента из запроса.
// Заголовки прокси учитываются только при trustProxy
func getClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		// Берем первый IP из X-Forwarded-For (реальный клиент)
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}

		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	// RemoteAddr содержит порт, который меняется между соединениями
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
