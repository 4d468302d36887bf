package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Limiter решает, пропускать ли очередной запрос пользователя.
type Limiter interface {
	Allow(ctx context.Context, userID int64) bool
	Close()
}

// RateLimiter ограничивает количество запросов на пользователя в памяти процесса.
// Использует алгоритм скользящего окна.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[int64][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

var _ Limiter = (*RateLimiter)(nil)

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[int64][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go rl.cleanup(5 * time.Minute)
	return rl
}

// Close останавливает фоновую горутину очистки и ждёт её завершения.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
	<-rl.done
}

func (rl *RateLimiter) Allow(_ context.Context, userID int64) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	recent := rl.recent(userID, now.Add(-rl.window))

	if len(recent) >= rl.limit {
		rl.requests[userID] = recent
		return false
	}

	rl.requests[userID] = append(recent, now)
	return true
}

// recent возвращает запросы пользователя после cutoff. Вызывать под mu.
func (rl *RateLimiter) recent(userID int64, cutoff time.Time) []time.Time {
	var recent []time.Time
	for _, t := range rl.requests[userID] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	return recent
}

func (rl *RateLimiter) cleanup(every time.Duration) {
	defer close(rl.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := rl.now().Add(-rl.window)
			for userID := range rl.requests {
				if recent := rl.recent(userID, cutoff); len(recent) == 0 {
					delete(rl.requests, userID)
				} else {
					rl.requests[userID] = recent
				}
			}
			rl.mu.Unlock()
		}
	}
}

// RedisLimiter считает запросы в Redis фиксированными окнами,
// чтобы лимит был общим для нескольких экземпляров бота.
// Без клиента пропускает всё.
type RedisLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter создаёт лимитер поверх клиента Redis.
func NewRedisLimiter(rdb *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, limit: limit, window: window, now: time.Now}
}

func (rl *RedisLimiter) key(userID int64) string {
	slot := rl.now().UnixNano() / int64(rl.window)
	return fmt.Sprintf("rate_limit:tg:%d:%d", userID, slot)
}

// Allow увеличивает счётчик окна. При ошибке Redis запрос пропускается.
func (rl *RedisLimiter) Allow(ctx context.Context, userID int64) bool {
	if rl.rdb == nil {
		return true
	}
	key := rl.key(userID)

	pipe := rl.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Rate limit: Redis недоступен, пропускаем")
		return true
	}
	return incr.Val() <= int64(rl.limit)
}

// Close закрывает клиент Redis.
func (rl *RedisLimiter) Close() {
	if rl.rdb == nil {
		return
	}
	if err := rl.rdb.Close(); err != nil {
		log.WithError(err).Warn("Ошибка закрытия Redis")
	}
}

// NewLimiter выбирает лимитер: Redis при заданном url, иначе в памяти.
func NewLimiter(ctx context.Context, redisURL string, limit int, window time.Duration) (Limiter, error) {
	if redisURL == "" {
		return NewRateLimiter(limit, window), nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis недоступен: %w", err)
	}
	log.WithField("addr", opts.Addr).Info("Rate limit в Redis")
	return NewRedisLimiter(rdb, limit, window), nil
}
