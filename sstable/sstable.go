// Package sstable implements the on-disk sorted-table format: a file
// framing a sequence of Blocks, their BlockMeta index, an optional
// Bloom-filter probe, and a trailing footer.
package sstable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/sorenvik/lsmkv/block"
)

// ID identifies an SsTable for cache-key and ordering purposes.
type ID uint64

const (
	sizeofU32    = 4
	sizeofU64    = 8
	footerLength = sizeofU64 + sizeofU64 + sizeofU32 // bloomOffset | bloomLen | blockMetaOffset
)

// BlockCache is the get-or-fill contract an SsTable consumes for
// cached block reads, keyed by (sst id, block index). Implementations
// must guarantee at most one concurrent invocation of fill per key.
type BlockCache interface {
	GetOrFill(id ID, blockIdx int, fill func() (*block.Block, error)) (*block.Block, error)
}

// file is the narrow slice of *os.File this package depends on, so
// tests can substitute an in-memory reader.
type file interface {
	ReadAt(p []byte, off int64) (int, error)
	Close() error
}

// SsTable is a read-only handle over a file consisting of a sequence
// of Blocks followed by an index and a trailing footer. It is
// immutable from creation until explicit Close.
type SsTable struct {
	f          file
	fileSize   int64
	id         ID
	cache      BlockCache
	blockMeta  []BlockMeta
	metaOffset uint32
	firstKey   []byte
	lastKey    []byte
	bloom      *bloom.BloomFilter
}

// OpenFile opens path read-only and builds an SsTable over it.
func OpenFile(id ID, cache BlockCache, path string) (*SsTable, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sstable: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sstable: stat %s: %w", path, err)
	}
	return Open(id, cache, f, info.Size())
}

// Open reads the footer, decodes the BlockMeta section and optional
// Bloom section, and returns a read-only SsTable handle. cache may be
// nil, in which case reads always go to disk.
func Open(id ID, cache BlockCache, f file, fileSize int64) (*SsTable, error) {
	if fileSize < footerLength {
		return nil, ErrCorrupt
	}

	footerBuf := make([]byte, footerLength)
	if _, err := f.ReadAt(footerBuf, fileSize-footerLength); err != nil {
		return nil, fmt.Errorf("sstable: read footer: %w", err)
	}

	bloomOffset := binary.BigEndian.Uint64(footerBuf[0:])
	bloomLen := binary.BigEndian.Uint64(footerBuf[8:])
	metaOffset := binary.BigEndian.Uint32(footerBuf[16:])

	metaEnd := fileSize - footerLength
	if int64(metaOffset) > metaEnd {
		return nil, ErrCorrupt
	}
	metaBuf := make([]byte, metaEnd-int64(metaOffset))
	if _, err := f.ReadAt(metaBuf, int64(metaOffset)); err != nil {
		return nil, fmt.Errorf("sstable: read block-meta section: %w", err)
	}

	metas, err := decodeBlockMeta(metaBuf)
	if err != nil {
		return nil, err
	}

	var firstKey, lastKey []byte
	if len(metas) > 0 {
		firstKey = metas[0].FirstKey
		lastKey = metas[len(metas)-1].LastKey
	}

	sst := &SsTable{
		f:          f,
		fileSize:   fileSize,
		id:         id,
		cache:      cache,
		blockMeta:  metas,
		metaOffset: metaOffset,
		firstKey:   firstKey,
		lastKey:    lastKey,
	}

	if bloomLen > 0 {
		bloomBuf := make([]byte, bloomLen)
		if _, err := f.ReadAt(bloomBuf, int64(bloomOffset)); err != nil {
			return nil, fmt.Errorf("sstable: read bloom section: %w", err)
		}
		filter := &bloom.BloomFilter{}
		if _, err := filter.ReadFrom(bytes.NewReader(bloomBuf)); err != nil {
			return nil, fmt.Errorf("%w: bloom section: %v", ErrCorrupt, err)
		}
		sst.bloom = filter
	}

	return sst, nil
}

// FirstKey returns the first key in the table, or nil if the table is empty.
func (s *SsTable) FirstKey() []byte { return s.firstKey }

// LastKey returns the last key in the table, or nil if the table is empty.
func (s *SsTable) LastKey() []byte { return s.lastKey }

// ID returns the table's stable identifier.
func (s *SsTable) ID() ID { return s.id }

// NumBlocks reports the number of data blocks indexed by this table.
func (s *SsTable) NumBlocks() int { return len(s.blockMeta) }

// TableSize returns the total file size in bytes.
func (s *SsTable) TableSize() int64 { return s.fileSize }

// MayContain is the optional Bloom-filter probe on the SST; when no
// filter was persisted it conservatively returns true.
func (s *SsTable) MayContain(key []byte) bool {
	if s.bloom == nil {
		return true
	}
	return s.bloom.Test(key)
}

// Close releases the underlying file handle.
func (s *SsTable) Close() error {
	return s.f.Close()
}

// ReadBlock reads and decodes block i directly from disk, bypassing
// any cache.
func (s *SsTable) ReadBlock(i int) (*block.Block, error) {
	if i < 0 || i >= len(s.blockMeta) {
		return nil, fmt.Errorf("sstable: block index %d out of range", i)
	}

	start := s.blockMeta[i].Offset
	end := s.metaOffset
	if i+1 < len(s.blockMeta) {
		end = s.blockMeta[i+1].Offset
	}

	buf := make([]byte, end-start)
	if _, err := s.f.ReadAt(buf, int64(start)); err != nil {
		return nil, fmt.Errorf("sstable: read block %d: %w", i, err)
	}

	return block.Decode(buf)
}

// ReadBlockCached delegates to the configured BlockCache's get-or-fill,
// falling back to ReadBlock directly when no cache is configured.
func (s *SsTable) ReadBlockCached(i int) (*block.Block, error) {
	if s.cache == nil {
		return s.ReadBlock(i)
	}
	return s.cache.GetOrFill(s.id, i, func() (*block.Block, error) {
		return s.ReadBlock(i)
	})
}

// FindBlockIdx returns the smallest i such that blockMeta[i].LastKey >= key,
// found via binary search. If key is outside [FirstKey, LastKey] it
// conservatively returns 0; callers rely on the iterator's seek to
// distinguish "before first" from "within block 0".
func (s *SsTable) FindBlockIdx(key []byte) int {
	if len(s.blockMeta) == 0 {
		return 0
	}
	if bytes.Compare(key, s.firstKey) < 0 || bytes.Compare(key, s.lastKey) > 0 {
		return 0
	}

	lo, hi := 0, len(s.blockMeta)-1
	for lo < hi {
		mid := lo + (hi-lo)/2
		if bytes.Compare(s.blockMeta[mid].LastKey, key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// blockMetaAt exposes metadata for testing/introspection.
func (s *SsTable) blockMetaAt(i int) BlockMeta {
	return s.blockMeta[i]
}
