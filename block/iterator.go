package block

import (
	"bytes"
	"encoding/binary"
)

// Iterator is a forward cursor over a Block. The zero value is not
// usable; construct with SeekToFirstIterator, SeekToKeyIterator, or
// NewIterator followed by SeekToFirst or SeekToKey. The iterator is
// invalid when its current key is empty.
type Iterator struct {
	block      *Block
	idx        int
	key        []byte
	valueRange [2]int
}

// NewIterator wraps block without positioning it; callers should
// immediately call SeekToFirst or SeekToKey.
func NewIterator(blk *Block) *Iterator {
	return &Iterator{block: blk}
}

// SeekToFirstIterator creates an iterator positioned at the block's
// first entry.
func SeekToFirstIterator(blk *Block) *Iterator {
	it := NewIterator(blk)
	it.SeekToFirst()
	return it
}

// SeekToKeyIterator creates an iterator positioned at the first entry
// with key >= key.
func SeekToKeyIterator(blk *Block, key []byte) *Iterator {
	it := NewIterator(blk)
	it.SeekToKey(key)
	return it
}

// Key returns the current entry's key. Undefined unless IsValid.
func (it *Iterator) Key() []byte {
	return it.key
}

// Value returns a view into the block payload for the current entry's
// value. Undefined unless IsValid. The returned slice is only valid
// until the next call to Next/SeekToKey/SeekToFirst.
func (it *Iterator) Value() []byte {
	return it.block.data[it.valueRange[0]:it.valueRange[1]]
}

// IsValid reports whether the iterator currently references an entry.
func (it *Iterator) IsValid() bool {
	return len(it.key) > 0
}

// SeekToFirst positions the iterator at index 0.
func (it *Iterator) SeekToFirst() {
	it.idx = 0
	it.seekToIdx(0)
}

// Next advances one index, becoming invalid past the last entry.
func (it *Iterator) Next() error {
	it.idx++
	it.seekToIdx(it.idx)
	return nil
}

func (it *Iterator) seekToIdx(idx int) {
	if idx >= len(it.block.offsets) {
		it.key = nil
		it.valueRange = [2]int{0, 0}
		return
	}

	data := it.block.data
	begin := int(it.block.offsets[idx])

	keyLen := int(binary.BigEndian.Uint16(data[begin:]))
	keyStart := begin + sizeofU16
	it.key = data[keyStart : keyStart+keyLen]

	valLenOff := keyStart + keyLen
	valLen := int(binary.BigEndian.Uint16(data[valLenOff:]))
	valStart := valLenOff + sizeofU16
	it.valueRange = [2]int{valStart, valStart + valLen}
}

// SeekToKey advances from index 0 to the first entry with key >= key.
// Blocks are small enough that a linear scan is acceptable; binary
// search is permitted but not required by the spec.
func (it *Iterator) SeekToKey(key []byte) {
	it.idx = 0
	it.seekToIdx(0)
	for it.IsValid() {
		if bytes.Compare(it.key, key) >= 0 {
			return
		}
		it.idx++
		it.seekToIdx(it.idx)
	}
}
