package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterConfig конфигурация rate limiter
type RateLimiterConfig struct {
	RequestsPerSecond float64       // Количество запросов в секунду
	BurstSize         int           // Максимальный размер burst
	CleanupInterval   time.Duration // Интервал очистки неактивных посетителей
}

// DefaultRateLimiterConfig конфигурация по умолчанию
var DefaultRateLimiterConfig = RateLimiterConfig{
	RequestsPerSecond: 10,
	BurstSize:         20,
	CleanupInterval:   time.Minute,
}

// visitor представляет rate limiter для одного клиента
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter middleware для ограничения запросов с использованием алгоритма Token Bucket
type RateLimiter struct {
	config   RateLimiterConfig
	visitors map[string]*visitor // ключ клиента -> visitor
	mu       sync.Mutex
	stop     chan struct{}
	once     sync.Once
}

// NewRateLimiter создаёт новый rate limiter middleware
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = DefaultRateLimiterConfig.RequestsPerSecond
	}
	if config.BurstSize <= 0 {
		config.BurstSize = DefaultRateLimiterConfig.BurstSize
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultRateLimiterConfig.CleanupInterval
	}

	rl := &RateLimiter{
		config:   config,
		visitors: make(map[string]*visitor),
		stop:     make(chan struct{}),
	}

	// Запускаем горутину для периодической очистки
	go rl.cleanupLoop()

	return rl
}

// Stop останавливает фоновую очистку
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

// cleanupLoop периодически удаляет неактивных посетителей
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// cleanup удаляет посетителей, которые не были активны долгое время
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, v := range rl.visitors {
		if time.Since(v.lastSeen) > rl.config.CleanupInterval*3 {
			delete(rl.visitors, key)
		}
	}
}

// getLimiter возвращает или создаёт rate limiter для данного ключа
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if v, exists := rl.visitors[key]; exists {
		v.lastSeen = time.Now()
		return v.limiter
	}

	limiter := rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.BurstSize)
	rl.visitors[key] = &visitor{
		limiter:  limiter,
		lastSeen: time.Now(),
	}

	return limiter
}

// retryAfter секунды до появления следующего токена
func (rl *RateLimiter) retryAfter() int {
	return int(math.Ceil(1 / rl.config.RequestsPerSecond))
}

// Middleware ограничивает по IP клиента
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return rl.MiddlewareWithKey(func(*gin.Context) string { return "" })
}

// MiddlewareWithKey ограничивает по кастомному ключу (например, subject токена); пустой ключ заменяется IP
func (rl *RateLimiter) MiddlewareWithKey(getKey func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := getKey(c)
		if key == "" {
			key = c.ClientIP()
		}

		if !rl.getLimiter(key).Allow() {
			c.Header("Retry-After", strconv.Itoa(rl.retryAfter()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Слишком много запросов, попробуйте позже",
				"retry_after": rl.retryAfter(),
			})
			return
		}

		c.Next()
	}
}
