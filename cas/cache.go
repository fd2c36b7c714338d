package cas

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rickchristie/flowmap/logging"
	"golang.org/x/sync/singleflight"
)

// Default cache lifetimes.
const (
	DefaultCacheTTL      = 24 * time.Hour
	DefaultEmptyCacheTTL = 10 * time.Minute
)

// CachedRegistry is a read-through Redis cache in front of a Registry. Empty
// results are cached for a shorter TTL. Redis failures fall through to the
// underlying registry, they never fail a lookup.
type CachedRegistry struct {
	next     Registry
	rdb      redis.UniversalClient
	log      logging.Logger
	prefix   string
	ttl      time.Duration
	emptyTTL time.Duration
	group    singleflight.Group
}

// CacheOption configures a CachedRegistry.
type CacheOption func(*CachedRegistry)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) CacheOption {
	return func(c *CachedRegistry) { c.prefix = prefix }
}

// WithTTL sets how long hits are kept.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *CachedRegistry) { c.ttl = ttl }
}

// WithEmptyTTL sets how long "no hits" answers are kept.
func WithEmptyTTL(ttl time.Duration) CacheOption {
	return func(c *CachedRegistry) { c.emptyTTL = ttl }
}

// WithCacheLogger sets the logger used for Redis failures.
func WithCacheLogger(log logging.Logger) CacheOption {
	return func(c *CachedRegistry) { c.log = logging.OrNop(log) }
}

// NewCachedRegistry wraps next with a cache stored in rdb.
func NewCachedRegistry(next Registry, rdb redis.UniversalClient, opts ...CacheOption) *CachedRegistry {
	c := &CachedRegistry{
		next:     next,
		rdb:      rdb,
		log:      logging.NewNop(),
		prefix:   "flowmap:cas:",
		ttl:      DefaultCacheTTL,
		emptyTTL: DefaultEmptyCacheTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search implements Registry.
func (c *CachedRegistry) Search(ctx context.Context, query string) ([]Result, error) {
	results, _, err := c.SearchCached(ctx, query)
	return results, err
}

// SearchCached implements CacheReporter.
func (c *CachedRegistry) SearchCached(ctx context.Context, query string) ([]Result, bool, error) {
	key := c.key(query)

	if results, ok := c.get(ctx, key); ok {
		return results, true, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		results, err := c.next.Search(ctx, query)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, results)
		return results, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]Result), false, nil
}

func (c *CachedRegistry) key(query string) string {
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(query))))
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *CachedRegistry) get(ctx context.Context, key string) ([]Result, bool) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.log.Warn("cas cache read failed", logging.String("key", key), logging.Err(err))
		return nil, false
	}
	var results []Result
	if err := json.Unmarshal(data, &results); err != nil {
		c.log.Warn("cas cache entry corrupt", logging.String("key", key), logging.Err(err))
		return nil, false
	}
	return results, true
}

func (c *CachedRegistry) set(ctx context.Context, key string, results []Result) {
	if results == nil {
		results = []Result{}
	}
	data, err := json.Marshal(results)
	if err != nil {
		return
	}
	ttl := c.ttl
	if len(results) == 0 {
		ttl = c.emptyTTL
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		c.log.Warn("cas cache write failed", logging.String("key", key), logging.Err(err))
	}
}

var _ CacheReporter = (*CachedRegistry)(nil)
