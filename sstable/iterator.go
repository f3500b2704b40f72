package sstable

import (
	"bytes"

	"github.com/sorenvik/lsmkv/block"
)

// Iterator is a forward cursor across all blocks of an SsTable, with
// seek-to-first and seek-to-key.
type Iterator struct {
	table  *SsTable
	blkIdx int
	blkIt  *block.Iterator
}

// NewIterator creates an iterator over table, positioned at the first
// key-value pair in the first data block.
func NewIterator(table *SsTable) (*Iterator, error) {
	it := &Iterator{table: table}
	if err := it.SeekToFirst(); err != nil {
		return nil, err
	}
	return it, nil
}

// NewIteratorSeekTo creates an iterator over table, positioned at the
// first key-value pair with key >= key.
func NewIteratorSeekTo(table *SsTable, key []byte) (*Iterator, error) {
	it := &Iterator{table: table}
	if err := it.SeekToKey(key); err != nil {
		return nil, err
	}
	return it, nil
}

// SeekToFirst loads block 0 and positions at its first entry.
func (it *Iterator) SeekToFirst() error {
	it.blkIdx = 0
	if it.table.NumBlocks() == 0 {
		it.blkIt = nil
		return nil
	}
	blk, err := it.table.ReadBlockCached(0)
	if err != nil {
		return err
	}
	it.blkIt = block.SeekToFirstIterator(blk)
	return nil
}

// SeekToKey positions at the first entry with key >= key. If key is
// below the first key, it loads block 0 and seeks within it (landing
// on the first entry). If key is above the last key, the iterator
// becomes invalid. Otherwise it binary-searches the block metas and
// seeks within the located block, falling through to the next block
// when the key falls in a gap between blocks.
func (it *Iterator) SeekToKey(key []byte) error {
	if it.table.NumBlocks() == 0 {
		it.blkIdx = 0
		it.blkIt = nil
		return nil
	}

	below := bytes.Compare(key, it.table.FirstKey()) < 0
	above := bytes.Compare(key, it.table.LastKey()) > 0

	if below || above {
		if below {
			it.blkIdx = 0
		} else {
			it.blkIdx = it.table.NumBlocks()
			it.blkIt = nil
			return nil
		}
		blk, err := it.table.ReadBlockCached(it.blkIdx)
		if err != nil {
			return err
		}
		it.blkIt = block.SeekToKeyIterator(blk, key)
		return nil
	}

	idx := it.table.FindBlockIdx(key)
	blk, err := it.table.ReadBlockCached(idx)
	if err != nil {
		return err
	}
	it.blkIdx = idx
	it.blkIt = block.SeekToKeyIterator(blk, key)

	if !it.blkIt.IsValid() && idx+1 < it.table.NumBlocks() {
		nextBlk, err := it.table.ReadBlockCached(idx + 1)
		if err != nil {
			return err
		}
		it.blkIdx = idx + 1
		it.blkIt = block.SeekToFirstIterator(nextBlk)
	}

	return nil
}

// Key returns the current entry's key, delegated to the inner block iterator.
func (it *Iterator) Key() []byte {
	return it.blkIt.Key()
}

// Value returns the current entry's value, delegated to the inner block iterator.
func (it *Iterator) Value() []byte {
	return it.blkIt.Value()
}

// IsValid reports whether the inner block iterator is valid, or
// whether the block index still references a loadable block.
func (it *Iterator) IsValid() bool {
	if it.blkIt != nil && it.blkIt.IsValid() {
		return true
	}
	return it.blkIt != nil && it.blkIdx < it.table.NumBlocks()
}

// Next advances the inner block iterator; when it becomes invalid,
// advances the block index and loads the next block's first entry.
// Past the last block, the iterator becomes invalid.
func (it *Iterator) Next() error {
	if it.blkIt != nil {
		if err := it.blkIt.Next(); err != nil {
			return err
		}
		if it.blkIt.IsValid() {
			return nil
		}
	}

	it.blkIdx++
	if it.blkIdx < it.table.NumBlocks() {
		blk, err := it.table.ReadBlockCached(it.blkIdx)
		if err != nil {
			return err
		}
		it.blkIt = block.SeekToFirstIterator(blk)
	}
	return nil
}
