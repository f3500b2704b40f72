package sstable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/sorenvik/lsmkv/block"
)

const defaultBloomFalsePositiveRate = 0.01

// Builder streams key/value pairs into Blocks, emitting a finalized
// SST file on Build. Keys must arrive in ascending order, matching the
// underlying block.Builder's contract.
type Builder struct {
	blockSize int
	cur       *block.Builder
	firstKey  []byte
	lastKey   []byte

	buf   bytes.Buffer
	metas []BlockMeta

	bloom      *bloom.BloomFilter
	numEntries uint
}

// NewBuilder creates a Builder targeting blockSize-byte data blocks and
// estimating a Bloom filter sized for expectedEntries at the default
// false-positive rate.
func NewBuilder(blockSize int, expectedEntries uint) *Builder {
	if expectedEntries == 0 {
		expectedEntries = 1
	}
	return &Builder{
		blockSize: blockSize,
		cur:       block.NewBuilder(blockSize),
		bloom:     bloom.NewWithEstimates(expectedEntries, defaultBloomFalsePositiveRate),
	}
}

// Add appends a record, finalizing and flushing the current Block to
// the internal buffer first if adding it would exceed the target size.
func (b *Builder) Add(key, value []byte) error {
	if !b.cur.Add(key, value) {
		if err := b.finishBlock(); err != nil {
			return err
		}
		b.cur = block.NewBuilder(b.blockSize)
		if !b.cur.Add(key, value) {
			return fmt.Errorf("sstable: entry too large for block size %d", b.blockSize)
		}
	}

	if b.firstKey == nil {
		b.firstKey = append([]byte(nil), key...)
	}
	b.lastKey = append([]byte(nil), key...)

	b.bloom.Add(key)
	b.numEntries++

	return nil
}

// finishBlock encodes the current block (if non-empty), appends it to
// the file buffer, and records a BlockMeta with its offset and key range.
func (b *Builder) finishBlock() error {
	if b.cur.IsEmpty() {
		return nil
	}

	offset := uint32(b.buf.Len())
	blk := b.cur.Build()
	encoded := blk.Encode()
	b.buf.Write(encoded)

	firstKey, lastKey := blockKeyRange(blk)
	b.metas = append(b.metas, BlockMeta{
		Offset:   offset,
		FirstKey: firstKey,
		LastKey:  lastKey,
	})

	return nil
}

// blockKeyRange recovers a block's first and last keys by walking it.
func blockKeyRange(blk *block.Block) (first, last []byte) {
	it := block.SeekToFirstIterator(blk)
	if !it.IsValid() {
		return nil, nil
	}
	first = append([]byte(nil), it.Key()...)
	last = first
	for {
		if err := it.Next(); err != nil {
			break
		}
		if !it.IsValid() {
			break
		}
		last = append([]byte(nil), it.Key()...)
	}
	return first, last
}

// Build finalizes the last block, writes the meta and bloom sections
// and footer, writes the file to path, fsyncs, and reopens it
// read-only as an SsTable.
func (b *Builder) Build(id ID, cache BlockCache, path string) (*SsTable, error) {
	if err := b.finishBlock(); err != nil {
		return nil, err
	}

	metaOffset := uint32(b.buf.Len())
	b.buf.Write(encodeBlockMeta(b.metas))

	bloomOffset := uint64(b.buf.Len())
	var bloomBuf bytes.Buffer
	if _, err := b.bloom.WriteTo(&bloomBuf); err != nil {
		return nil, fmt.Errorf("sstable: encode bloom filter: %w", err)
	}
	b.buf.Write(bloomBuf.Bytes())
	bloomLen := uint64(bloomBuf.Len())

	var footer [footerLength]byte
	binary.BigEndian.PutUint64(footer[0:], bloomOffset)
	binary.BigEndian.PutUint64(footer[8:], bloomLen)
	binary.BigEndian.PutUint32(footer[16:], metaOffset)
	b.buf.Write(footer[:])

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sstable: create %s: %w", path, err)
	}
	if _, err := f.Write(b.buf.Bytes()); err != nil {
		f.Close()
		return nil, fmt.Errorf("sstable: write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("sstable: fsync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("sstable: close %s: %w", path, err)
	}

	return OpenFile(id, cache, path)
}

// EstimatedSize reports the current buffered file size plus the block
// under construction, useful for flush-threshold decisions.
func (b *Builder) EstimatedSize() int {
	return b.buf.Len() + b.cur.EstimatedSize()
}
