// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package libltp

import (
	"context"
	"encoding/binary"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/HIT-SCIR/libltp/lib/analysis"
	"github.com/HIT-SCIR/libltp/lib/pipelines"
	"github.com/HIT-SCIR/libltp/lib/store"
	"github.com/HIT-SCIR/libltp/lib/vocab"
	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CachedAnalyzer wraps an analyzer with an in-memory TTL cache, an
// optional persistent store behind it, and deduplication of concurrent
// identical requests.
type CachedAnalyzer struct {
	analyzer analysis.Analyzer
	cache    *ttlcache.Cache[string, []pipelines.Result]
	store    *store.Store
	sfGroup  *singleflight.Group
	logger   *zap.Logger

	// Metrics
	hits      atomic.Uint64
	storeHits atomic.Uint64
	misses    atomic.Uint64
	sfHits    atomic.Uint64
}

var _ analysis.Analyzer = (*CachedAnalyzer)(nil)

// Analyze returns cached results when available and analyses otherwise.
func (c *CachedAnalyzer) Analyze(ctx context.Context, sentences []string) ([]pipelines.Result, error) {
	key := CacheKey(c.analyzer.Tasks(), sentences)

	if c.cache != nil {
		if item := c.cache.Get(key); item != nil {
			c.hits.Add(1)
			RecordCacheHit("memory")
			c.logger.Debug("Analysis cache hit", zap.Int("num_sentences", len(sentences)))
			return item.Value(), nil
		}
	}

	result, err, shared := c.sfGroup.Do(key, func() (any, error) {
		if c.store != nil {
			results, ok, err := c.store.Get(key)
			if err != nil {
				c.logger.Warn("Reading result store failed", zap.Error(err))
			} else if ok && len(results) == len(sentences) {
				c.storeHits.Add(1)
				RecordCacheHit("store")
				c.remember(key, results)
				return results, nil
			}
		}

		c.misses.Add(1)
		RecordCacheMiss("memory")

		start := time.Now()
		results, err := c.analyzer.Analyze(ctx, sentences)
		if err != nil {
			return nil, err
		}

		c.remember(key, results)
		if c.store != nil {
			if err := c.store.Put(key, results); err != nil {
				c.logger.Warn("Writing result store failed", zap.Error(err))
			}
		}

		c.logger.Debug("Analysis completed and cached",
			zap.Int("num_sentences", len(sentences)),
			zap.Duration("duration", time.Since(start)))
		return results, nil
	})
	if err != nil {
		return nil, err
	}

	if shared {
		c.sfHits.Add(1)
		c.logger.Debug("Singleflight hit for analysis request")
	}

	return result.([]pipelines.Result), nil
}

func (c *CachedAnalyzer) remember(key string, results []pipelines.Result) {
	if c.cache != nil {
		c.cache.Set(key, results, ttlcache.DefaultTTL)
	}
}

// Tasks returns the tasks of the wrapped analyzer.
func (c *CachedAnalyzer) Tasks() vocab.TaskSet { return c.analyzer.Tasks() }

// Close closes the wrapped analyzer.
func (c *CachedAnalyzer) Close() error { return c.analyzer.Close() }

// Stats returns cache statistics.
func (c *CachedAnalyzer) Stats() AnalysisCacheStats {
	return AnalysisCacheStats{
		Hits:             c.hits.Load(),
		StoreHits:        c.storeHits.Load(),
		Misses:           c.misses.Load(),
		SingleflightHits: c.sfHits.Load(),
	}
}

// AnalysisCacheStats holds cache statistics.
type AnalysisCacheStats struct {
	Hits             uint64 `json:"hits"`
	StoreHits        uint64 `json:"store_hits"`
	Misses           uint64 `json:"misses"`
	SingleflightHits uint64 `json:"singleflight_hits"`
}

// CacheKey hashes the enabled tasks and the ordered sentences of a request.
// Every sentence is length-prefixed so no two requests share a byte stream.
func CacheKey(tasks vocab.TaskSet, sentences []string) string {
	h := xxhash.New()

	buf := make([]byte, 0, 2*binary.MaxVarintLen64)
	buf = binary.AppendUvarint(buf, uint64(tasks))
	buf = binary.AppendUvarint(buf, uint64(len(sentences)))
	_, _ = h.Write(buf)

	for _, s := range sentences {
		buf = binary.AppendUvarint(buf[:0], uint64(len(s)))
		_, _ = h.Write(buf)
		_, _ = h.WriteString(s)
	}

	return strconv.FormatUint(h.Sum64(), 16)
}

// AnalysisCache owns the result cache shared by wrapped analyzers.
type AnalysisCache struct {
	cache  *ttlcache.Cache[string, []pipelines.Result]
	store  *store.Store
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewAnalysisCache creates a cache whose entries live for ttl. A zero ttl
// disables the in-memory level. st may be nil.
func NewAnalysisCache(ttl time.Duration, st *store.Store, logger *zap.Logger) *AnalysisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	ac := &AnalysisCache{store: st, logger: logger, cancel: func() {}}
	if ttl > 0 {
		ac.cache = ttlcache.New(
			ttlcache.WithTTL[string, []pipelines.Result](ttl),
		)
		go ac.cache.Start()

		ctx, cancel := context.WithCancel(context.Background())
		ac.cancel = cancel
		go ac.logStats(ctx)
	}
	return ac
}

// Wrap wraps an analyzer with this cache.
func (ac *AnalysisCache) Wrap(a analysis.Analyzer) *CachedAnalyzer {
	return &CachedAnalyzer{
		analyzer: a,
		cache:    ac.cache,
		store:    ac.store,
		sfGroup:  &singleflight.Group{},
		logger:   ac.logger,
	}
}

// Close stops the cache. The store is owned by the caller.
func (ac *AnalysisCache) Close() {
	ac.cancel()
	if ac.cache != nil {
		ac.cache.Stop()
	}
}

// logStats logs cache statistics periodically
func (ac *AnalysisCache) logStats(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics := ac.cache.Metrics()
			if metrics.Hits > 0 || metrics.Misses > 0 {
				total := metrics.Hits + metrics.Misses
				hitRate := float64(metrics.Hits) / float64(total) * 100
				ac.logger.Info("Analysis cache stats",
					zap.Uint64("hits", metrics.Hits),
					zap.Uint64("misses", metrics.Misses),
					zap.Float64("hit_rate_pct", hitRate),
					zap.Int("items", ac.cache.Len()))
			}
		}
	}
}

// Stats returns global cache statistics.
func (ac *AnalysisCache) Stats() map[string]any {
	stats := map[string]any{"enabled": ac.cache != nil}
	if ac.cache != nil {
		metrics := ac.cache.Metrics()
		stats["hits"] = metrics.Hits
		stats["misses"] = metrics.Misses
		stats["items"] = ac.cache.Len()
	}
	if ac.store != nil {
		stats["store_items"] = ac.store.Len()
	}
	return stats
}
