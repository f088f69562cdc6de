package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache хранит сериализованные в JSON ответы чтения с TTL.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	InvalidateByPrefix(ctx context.Context, prefix string) error
	// Incr атомарно увеличивает счётчик и продлевает его жизнь на ttl.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

const (
	// CalendarCacheTTL ограничивает жизнь закешированного календаря.
	CalendarCacheTTL = 5 * time.Minute
	// CalendarGenerationTTL должен быть заметно больше CalendarCacheTTL:
	// после истечения счётчик начинается заново.
	CalendarGenerationTTL = 24 * time.Hour
)

// CalendarCachePrefix возвращает общий префикс ключей календаря исполнителя.
func CalendarCachePrefix(providerID uuid.UUID) string {
	return "availability:" + providerID.String() + ":"
}

// CalendarGenerationKey - счётчик изменений календаря исполнителя. Лежит
// вне CalendarCachePrefix и не удаляется вместе с записями.
func CalendarGenerationKey(providerID uuid.UUID) string {
	return "availability-gen:" + providerID.String()
}

// CalendarCacheKey формирует ключ календаря за диапазон дат в поколении gen.
// Запись, прочитанная из базы до изменения, ложится в старое поколение и
// новым читателям не видна.
func CalendarCacheKey(providerID uuid.UUID, gen int64, from, to string) string {
	return CalendarCachePrefix(providerID) + strconv.FormatInt(gen, 10) + ":" + from + ":" + to
}

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCache держит записи в памяти процесса. Используется, когда Redis
// не настроен.
type MemoryCache struct {
	mu    sync.RWMutex
	cache map[string]*cacheEntry
}

// NewMemoryCache создаёт кеш и запускает очистку просроченных записей до
// отмены контекста.
func NewMemoryCache(ctx context.Context, cleanupInterval time.Duration) *MemoryCache {
	cs := &MemoryCache{cache: make(map[string]*cacheEntry)}
	if cleanupInterval > 0 {
		go cs.cleanup(ctx, cleanupInterval)
	}
	return cs
}

// Get читает значение в dest. Просроченная запись считается отсутствующей.
func (cs *MemoryCache) Get(_ context.Context, key string, dest any) (bool, error) {
	cs.mu.RLock()
	entry, ok := cs.cache[key]
	cs.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return false, nil
	}
	if err := json.Unmarshal(entry.data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (cs *MemoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.cache[key] = &cacheEntry{data: data, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (cs *MemoryCache) InvalidateByPrefix(_ context.Context, prefix string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for key := range cs.cache {
		if strings.HasPrefix(key, prefix) {
			delete(cs.cache, key)
		}
	}
	return nil
}

func (cs *MemoryCache) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	var n int64
	if entry, ok := cs.cache[key]; ok && time.Now().Before(entry.expiresAt) {
		if err := json.Unmarshal(entry.data, &n); err != nil {
			return 0, err
		}
	}
	n++
	cs.cache[key] = &cacheEntry{data: []byte(strconv.FormatInt(n, 10)), expiresAt: time.Now().Add(ttl)}
	return n, nil
}

func (cs *MemoryCache) cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cs.mu.Lock()
			now := time.Now()
			for key, entry := range cs.cache {
				if now.After(entry.expiresAt) {
					delete(cs.cache, key)
				}
			}
			cs.mu.Unlock()
		}
	}
}

// RedisCache хранит записи в Redis, общем для всех реплик API.
type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, data, ttl).Err()
}

func (c *RedisCache) InvalidateByPrefix(ctx context.Context, prefix string) error {
	iter := c.client.Scan(ctx, 0, c.prefix+prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *RedisCache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, c.prefix+key)
		pipe.Expire(ctx, c.prefix+key, ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
