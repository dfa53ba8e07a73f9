// Copyright 2021 Optakt Labs OÜ
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

// Package cache provides a ristretto-backed cache of decoded frozen
// delta file blocks, so a delta iterator reading the same block
// repeatedly (e.g. across MVCC snapshots) does not pay the CBOR
// decode and zstd decompression cost every time.
package cache

import (
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/optakt/kudu-tablet/pkg/deltaiter"
	"github.com/optakt/kudu-tablet/pkg/deltakey"
)

// DefaultSize is the default cache size in bytes, used when WithSize
// is not given.
const DefaultSize = uint64(100_000_000) // ~100 MB

// Config holds the cache's configuration.
type Config struct {
	Size    uint64
	OnEvict deltaiter.EvictionCallback
}

// Option configures a Config.
type Option func(*Config)

// WithSize overrides the cache's maximum cost, in bytes.
func WithSize(size uint64) Option {
	return func(cfg *Config) {
		cfg.Size = size
	}
}

// WithEvictionCallback registers a callback invoked whenever a block
// is evicted from the cache.
func WithEvictionCallback(cb deltaiter.EvictionCallback) Option {
	return func(cfg *Config) {
		cfg.OnEvict = cb
	}
}

// BlockKey identifies a single block within a frozen delta file.
type BlockKey struct {
	FileID string
	Offset int64
}

// String renders the key the way it is stored in the underlying
// cache, and the way it is reported to an EvictionCallback.
func (k BlockKey) String() string {
	return fmt.Sprintf("%s@%d", k.FileID, k.Offset)
}

// entry is the value ristretto actually stores, so that OnEvict can
// recover the original key and deltas for the eviction callback;
// ristretto's own Item.Key only carries the hashed form.
type entry struct {
	key    string
	deltas []deltakey.Delta
}

// BlockCache caches decoded delta file blocks keyed by BlockKey,
// backed by a ristretto.Cache. It implements the block cache C7
// of the read path refers to without naming a concrete type.
type BlockCache struct {
	cache *ristretto.Cache
}

// New constructs a BlockCache. Ristretto recommends keeping ten times
// as many counters as items in the cache when full; assuming an
// average block size of around 1 kilobyte, the counter count is ten
// times the byte budget divided by 1000.
func New(opts ...Option) (*BlockCache, error) {
	cfg := Config{
		Size: DefaultSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var onEvict func(item *ristretto.Item)
	if cfg.OnEvict != nil {
		onEvict = func(item *ristretto.Item) {
			e, ok := item.Value.(entry)
			if !ok {
				return
			}
			cfg.OnEvict.EvictedFromCache(e.key, e.deltas)
		}
	}

	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(cfg.Size) / 1000 * 10,
		MaxCost:     int64(cfg.Size),
		BufferItems: 64,
		OnEvict:     onEvict,
	})
	if err != nil {
		return nil, fmt.Errorf("could not initialize block cache: %w", err)
	}

	return &BlockCache{cache: rc}, nil
}

// Get returns the cached deltas for key, if present.
func (c *BlockCache) Get(key BlockKey) ([]deltakey.Delta, bool) {
	raw, ok := c.cache.Get(key.String())
	if !ok {
		return nil, false
	}
	e, ok := raw.(entry)
	if !ok {
		return nil, false
	}
	return e.deltas, true
}

// Set stores deltas for key, at the given cost (typically the
// encoded block's byte size). It returns false if the set was
// dropped, e.g. due to contention on ristretto's internal buffers.
func (c *BlockCache) Set(key BlockKey, deltas []deltakey.Delta, cost int64) bool {
	return c.cache.Set(key.String(), entry{key: key.String(), deltas: deltas}, cost)
}

// Wait blocks until all pending Set calls have been applied. Ristretto
// applies sets asynchronously through a buffered channel, so tests
// that assert on a Get immediately after a Set need this.
func (c *BlockCache) Wait() {
	c.cache.Wait()
}

// Close releases the cache's background goroutines.
func (c *BlockCache) Close() {
	c.cache.Close()
}
