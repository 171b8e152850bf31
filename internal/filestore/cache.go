package filestore

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// CachedDigests wraps a Store and remembers digests per object version, so a
// bundle is hashed once per TTL rather than once per request. The version is
// taken from Stat, so a replaced object is re-hashed.
type CachedDigests struct {
	Store
	cache *ttlcache.Cache[string, string]
}

// NewCachedDigests decorates store with a digest cache of the given TTL.
func NewCachedDigests(store Store, ttl time.Duration) *CachedDigests {
	cache := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](ttl),
		ttlcache.WithDisableTouchOnHit[string, string](),
		ttlcache.WithCapacity[string, string](4096),
	)
	go cache.Start()
	return &CachedDigests{Store: store, cache: cache}
}

// Digest implements Store.
func (c *CachedDigests) Digest(ctx context.Context, p string) (string, error) {
	info, err := c.Store.Stat(ctx, p)
	if err != nil {
		return "", err
	}

	key := versionKey(info)
	if item := c.cache.Get(key); item != nil {
		return item.Value(), nil
	}

	sum, err := c.Store.Digest(ctx, p)
	if err != nil {
		return "", err
	}
	c.cache.Set(key, sum, ttlcache.DefaultTTL)
	return sum, nil
}

// Close stops the cache janitor.
func (c *CachedDigests) Close() {
	c.cache.Stop()
}

func versionKey(info ObjectInfo) string {
	return strings.Join([]string{
		info.Path,
		strconv.FormatInt(info.Size, 10),
		strconv.FormatInt(info.ModTime.UnixNano(), 10),
		info.ETag,
	}, "|")
}
