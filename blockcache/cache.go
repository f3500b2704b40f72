// Package blockcache provides the LRU block cache the read path
// consumes as an external "get-or-fill" collaborator keyed by
// (sst id, block index), with at-most-one concurrent fill per key.
package blockcache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/sorenvik/lsmkv/block"
	"github.com/sorenvik/lsmkv/sstable"
)

type key struct {
	id  sstable.ID
	idx int
}

// Cache is a bounded LRU of decoded Blocks. Concurrent GetOrFill calls
// for the same key collapse into a single fill invocation via a
// singleflight.Group, the same pairing used for dedup-on-miss caches
// elsewhere in the ecosystem (e.g. perkeep's proxy and thumbnail
// caches).
type Cache struct {
	lru   *lru.Cache[key, *block.Block]
	flight singleflight.Group
}

// New creates a Cache holding at most capacity decoded Blocks.
func New(capacity int) (*Cache, error) {
	l, err := lru.New[key, *block.Block](capacity)
	if err != nil {
		return nil, fmt.Errorf("blockcache: %w", err)
	}
	return &Cache{lru: l}, nil
}

// GetOrFill returns the cached Block for (id, blockIdx), invoking fill
// on a miss. Concurrent callers for the same key share one fill call.
func (c *Cache) GetOrFill(id sstable.ID, blockIdx int, fill func() (*block.Block, error)) (*block.Block, error) {
	k := key{id: id, idx: blockIdx}

	if blk, ok := c.lru.Get(k); ok {
		return blk, nil
	}

	v, err, _ := c.flight.Do(fmt.Sprintf("%d:%d", id, blockIdx), func() (any, error) {
		if blk, ok := c.lru.Get(k); ok {
			return blk, nil
		}
		blk, err := fill()
		if err != nil {
			return nil, err
		}
		c.lru.Add(k, blk)
		return blk, nil
	})
	if err != nil {
		return nil, fmt.Errorf("blockcache: fill (%d,%d): %w", id, blockIdx, err)
	}

	return v.(*block.Block), nil
}

// Len reports the number of cached blocks, for tests/diagnostics.
func (c *Cache) Len() int {
	return c.lru.Len()
}

var _ sstable.BlockCache = (*Cache)(nil)
