package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/domain"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/metrics"
)

const (
	DefaultCacheTTL = 30 * time.Second

	cacheKeyPrefix = "rekko-console:"
	clientsKey     = cacheKeyPrefix + "clients"
)

// Cache lookup results
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// notFoundMarker records that the service answered 404 for a pair.
var notFoundMarker = []byte("!not-found")

// Store is a byte-oriented cache with expiry.
type Store interface {
	// Get returns ok=false on a miss.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CachedAPI serves reads from a Store. forceRefresh bypasses the cached
// value and repopulates it; mutations invalidate the affected keys. A
// failing store never fails a request.
type CachedAPI struct {
	next    API
	store   Store
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type CacheOption func(*CachedAPI)

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *CachedAPI) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithCacheMetrics(m *metrics.Metrics) CacheOption {
	return func(c *CachedAPI) { c.metrics = m }
}

func NewCachedAPI(next API, store Store, logger *slog.Logger, opts ...CacheOption) *CachedAPI {
	c := &CachedAPI{
		next:   next,
		store:  store,
		ttl:    DefaultCacheTTL,
		logger: logger.With("component", "transport_cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func configKey(t domain.ConfigType, clientID int64) string {
	return cacheKeyPrefix + "config:" + string(t) + ":" + strconv.FormatInt(clientID, 10)
}

func (c *CachedAPI) ListClients(ctx context.Context, forceRefresh bool) ([]domain.Client, error) {
	if !forceRefresh {
		if raw, ok := c.lookup(ctx, clientsKey); ok {
			var clients []domain.Client
			if err := json.Unmarshal(raw, &clients); err == nil {
				return clients, nil
			}
		}
	}

	clients, err := c.next.ListClients(ctx, forceRefresh)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(clients); err == nil {
		c.save(ctx, clientsKey, raw)
	}
	return clients, nil
}

func (c *CachedAPI) GetConfig(ctx context.Context, t domain.ConfigType, clientID int64, forceRefresh bool) (domain.Config, error) {
	key := configKey(t, clientID)

	if !forceRefresh {
		if raw, ok := c.lookup(ctx, key); ok {
			if bytes.Equal(raw, notFoundMarker) {
				return nil, domain.ErrConfigNotFound
			}
			if cfg, err := domain.DecodeConfig(t, raw); err == nil {
				return cfg, nil
			}
		}
	}

	cfg, err := c.next.GetConfig(ctx, t, clientID, forceRefresh)
	switch {
	case errors.Is(err, domain.ErrConfigNotFound):
		c.save(ctx, key, notFoundMarker)
		return nil, err
	case err != nil:
		return nil, err
	}

	if raw, err := json.Marshal(cfg); err == nil {
		c.save(ctx, key, raw)
	}
	return cfg, nil
}

func (c *CachedAPI) CreateConfig(ctx context.Context, t domain.ConfigType, clientID int64, params domain.Params) (domain.Config, error) {
	defer c.invalidate(ctx, configKey(t, clientID))
	return c.next.CreateConfig(ctx, t, clientID, params)
}

func (c *CachedAPI) UpdateConfig(ctx context.Context, t domain.ConfigType, clientID int64, params domain.Params) (domain.Config, error) {
	defer c.invalidate(ctx, configKey(t, clientID))
	return c.next.UpdateConfig(ctx, t, clientID, params)
}

func (c *CachedAPI) DeleteConfig(ctx context.Context, t domain.ConfigType, clientID int64) error {
	defer c.invalidate(ctx, configKey(t, clientID))
	return c.next.DeleteConfig(ctx, t, clientID)
}

func (c *CachedAPI) SetClientStatus(ctx context.Context, clientID int64, status domain.ClientStatus) (domain.Client, error) {
	defer c.invalidate(ctx, clientsKey)
	return c.next.SetClientStatus(ctx, clientID, status)
}

func (c *CachedAPI) lookup(ctx context.Context, key string) ([]byte, bool) {
	raw, ok, err := c.store.Get(ctx, key)
	switch {
	case err != nil:
		c.metrics.ObserveCache(CacheError)
		c.logger.WarnContext(ctx, "cache read failed", slog.String("key", key), slog.Any("error", err))
		return nil, false
	case !ok:
		c.metrics.ObserveCache(CacheMiss)
		return nil, false
	}
	c.metrics.ObserveCache(CacheHit)
	return raw, true
}

func (c *CachedAPI) save(ctx context.Context, key string, raw []byte) {
	if err := c.store.Set(ctx, key, raw, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}

func (c *CachedAPI) invalidate(ctx context.Context, keys ...string) {
	if err := c.store.Delete(ctx, keys...); err != nil {
		c.logger.WarnContext(ctx, "cache invalidation failed",
			slog.String("keys", fmt.Sprint(keys)),
			slog.Any("error", err),
		)
	}
}
