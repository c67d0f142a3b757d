package restclient

import (
	"fmt"
	"time"

	"github.com/always-cache/restclient/cache"
	cachekey "github.com/always-cache/restclient/pkg/cache-key"
	serializer "github.com/always-cache/restclient/pkg/envelope-serializer"

	"github.com/rs/zerolog"
)

// responseCache stores classified GET responses in a cache provider.
// It never fails a call: any problem reading an entry is a miss,
// and write failures are only logged by the caller.
type responseCache struct {
	provider    cache.CacheProvider
	keyer       cachekey.CacheKeyer
	memoryLimit int64
	ttl         time.Duration
	compress    bool
	log         zerolog.Logger
	metrics     *Metrics
}

// lookup returns the envelope stored under key, if it is present and readable.
func (rc *responseCache) lookup(key string) (serializer.Envelope, bool) {
	entry, ok, err := rc.provider.Get(key)
	if err != nil {
		rc.log.Warn().Err(err).Str("key", key).Msg("Could not read from cache")
		ok = false
	}
	if !ok {
		rc.metrics.recordLookup(false)
		rc.log.Trace().Str("key", key).Msg("Cache miss")
		return serializer.Envelope{}, false
	}
	env, err := serializer.BytesToEnvelope(entry.Bytes)
	if err != nil {
		// in case we have a corrupted cache entry, we delete it and fetch again
		rc.log.Error().Err(err).Str("key", key).Msg("Could not read cached response")
		if err := rc.provider.Purge(key); err != nil {
			rc.log.Warn().Err(err).Str("key", key).Msg("Could not purge corrupted entry")
		}
		rc.metrics.recordLookup(false)
		return serializer.Envelope{}, false
	}
	rc.metrics.recordLookup(true)
	rc.log.Trace().Str("key", key).Time("stored", entry.StoredAt).Msg("Cache hit")
	return env, true
}

// store writes the envelope under key.
// It returns ErrCacheWriteRefused if the memory limit has been exceeded.
// Existing entries are never evicted to make room.
func (rc *responseCache) store(key string, env serializer.Envelope) error {
	if rc.memoryLimit > 0 {
		usage, err := rc.usage()
		if err != nil {
			rc.metrics.recordStore("error")
			return fmt.Errorf("could not determine cache usage: %w", err)
		}
		if usage > rc.memoryLimit {
			rc.metrics.recordStore("refused")
			return fmt.Errorf("%w (%d > %d bytes)", ErrCacheWriteRefused, usage, rc.memoryLimit)
		}
	}
	bts, err := serializer.EnvelopeToBytes(env, rc.compress)
	if err != nil {
		rc.metrics.recordStore("error")
		return err
	}
	now := time.Now()
	entry := cache.CacheEntry{
		Key:      key,
		StoredAt: now,
		Bytes:    bts,
	}
	if rc.ttl > 0 {
		entry.Expires = now.Add(rc.ttl)
	}
	if err := rc.provider.Put(entry); err != nil {
		rc.metrics.recordStore("error")
		return err
	}
	rc.metrics.recordStore("stored")
	rc.log.Trace().Str("key", key).Time("expiry", entry.Expires).Int("bytes", len(bts)).Msg("Cache write")
	return nil
}

// usage returns the approximate memory used by all entries sharing the key prefix.
func (rc *responseCache) usage() (int64, error) {
	var total int64
	err := rc.provider.Keys(rc.keyer.Prefix, func(_ string, size int64) {
		total += size
	})
	return total, err
}
