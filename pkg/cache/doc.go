// Package cache stores Ghost Admin API browse responses in Redis.
//
// Ghost does not send Expires headers for admin endpoints, so entries live
// for a TTL chosen by the caller. An entry that carries an ETag is revalidated
// with If-None-Match before it is used, and a 304 keeps the cached body. An
// entry without an ETag is served as is until it expires. Any write to a
// resource invalidates every cached page of that resource for the site.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient, 5*time.Minute)
//
//	key := cache.Key{
//		Site:     "blog.example.com",
//		Resource: "posts",
//		Query:    url.Values{"page": []string{"1"}, "limit": []string{"15"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from Ghost, then manager.Set(ctx, key, entry)
//	}
//
// # Invalidation
//
//	// After editing or deleting a post
//	n, err := manager.Invalidate(ctx, cache.Prefix("blog.example.com", "posts"))
//
// # Metrics
//
//   - ghost_cache_hits_total - Entries served from redis
//   - ghost_cache_misses_total - Lookups that found nothing usable
//   - ghost_cache_not_modified_total - 304 revalidations
//   - ghost_cache_invalidations_total - Keys dropped after writes
//   - ghost_cache_errors_total{operation} - Redis failures
package cache
