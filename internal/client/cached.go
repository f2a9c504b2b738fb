package client

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/mbonchek/patterning-web-v2/internal/metrics"
	"github.com/mbonchek/patterning-web-v2/internal/models"
)

// ResponseCache - хранилище закешированных ответов (Redis в проде).
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
}

const (
	cachePrefixPatterns = "patterns:"
	cacheKeyList        = cachePrefixPatterns + "list"
	cacheKeyLineage     = cachePrefixPatterns + "lineage"
)

// CachedBackend кеширует тяжелые списки публичной галереи и дерева ветвлений.
// Остальные методы идут напрямую во встроенный Backend.
type CachedBackend struct {
	Backend
	cache  ResponseCache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedBackend(inner Backend, cache ResponseCache, ttl time.Duration, logger *zap.Logger) *CachedBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedBackend{Backend: inner, cache: cache, ttl: ttl, logger: logger.Named("CachedBackend")}
}

func (c *CachedBackend) ListPatterns(ctx context.Context) ([]models.Pattern, error) {
	var out []models.Pattern
	if c.load(ctx, cacheKeyList, &out) {
		return out, nil
	}
	out, err := c.Backend.ListPatterns(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, cacheKeyList, out)
	return out, nil
}

func (c *CachedBackend) LineageTree(ctx context.Context) (models.LineageTree, error) {
	var out models.LineageTree
	if c.load(ctx, cacheKeyLineage, &out) {
		return out, nil
	}
	out, err := c.Backend.LineageTree(ctx)
	if err != nil {
		return models.LineageTree{}, err
	}
	c.store(ctx, cacheKeyLineage, out)
	return out, nil
}

// ManagePattern сбрасывает кеш после изменения паттерна.
func (c *CachedBackend) ManagePattern(ctx context.Context, id string, action models.ManageAction) error {
	if err := c.Backend.ManagePattern(ctx, id, action); err != nil {
		return err
	}
	_ = c.InvalidatePatterns(ctx)
	return nil
}

// InvalidatePatterns удаляет все закешированные списки паттернов.
func (c *CachedBackend) InvalidatePatterns(ctx context.Context) error {
	if err := c.cache.DeletePrefix(ctx, cachePrefixPatterns); err != nil {
		c.logger.Warn("Failed to invalidate pattern cache", zap.Error(err))
		return err
	}
	return nil
}

func (c *CachedBackend) load(ctx context.Context, key string, v any) bool {
	data, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		// кеш недоступен: работаем напрямую с бэкендом
		c.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		metrics.CacheMiss()
		return false
	}
	if !ok {
		metrics.CacheMiss()
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.logger.Warn("Cached value is corrupted", zap.String("key", key), zap.Error(err))
		metrics.CacheMiss()
		return false
	}
	metrics.CacheHit()
	return true
}

func (c *CachedBackend) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}

var _ Backend = (*CachedBackend)(nil)
