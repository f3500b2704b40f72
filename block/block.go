// Package block implements the smallest unit of read and caching in the
// LSM tree: an immutable, sorted run of key/value entries packed into a
// single byte payload with a trailing offset index.
package block

import (
	"encoding/binary"
	"fmt"
)

const sizeofU16 = 2

// ErrCorrupt is returned when a Block payload fails to decode because its
// offset table or record lengths are inconsistent with the data present.
var ErrCorrupt = fmt.Errorf("block: corrupt encoding")

// Block is a sorted, length-prefixed key/value payload with a trailing
// offset array. It is immutable once built; multiple iterators and a
// block cache may share one underlying Block.
type Block struct {
	data    []byte
	offsets []uint16
}

// Encode serializes the block as payload || offsets (u16 each) || count (u16),
// all integers big-endian.
func (b *Block) Encode() []byte {
	buf := make([]byte, len(b.data)+len(b.offsets)*sizeofU16+sizeofU16)
	n := copy(buf, b.data)
	for _, off := range b.offsets {
		binary.BigEndian.PutUint16(buf[n:], off)
		n += sizeofU16
	}
	binary.BigEndian.PutUint16(buf[n:], uint16(len(b.offsets)))
	return buf
}

// Decode reverses Encode. It reads the trailing count first, slices out
// the offset table, and copies the remaining prefix as the payload.
func Decode(data []byte) (*Block, error) {
	if len(data) < sizeofU16 {
		return nil, ErrCorrupt
	}

	numEntries := int(binary.BigEndian.Uint16(data[len(data)-sizeofU16:]))

	offsetsLen := numEntries * sizeofU16
	dataEnd := len(data) - sizeofU16 - offsetsLen
	if dataEnd < 0 {
		return nil, ErrCorrupt
	}

	offsetsRaw := data[dataEnd : len(data)-sizeofU16]
	offsets := make([]uint16, numEntries)
	for i := range offsets {
		offsets[i] = binary.BigEndian.Uint16(offsetsRaw[i*sizeofU16:])
	}

	payload := make([]byte, dataEnd)
	copy(payload, data[:dataEnd])

	blk := &Block{data: payload, offsets: offsets}
	if err := blk.validate(); err != nil {
		return nil, err
	}
	return blk, nil
}

// validate walks every record once, checking that offsets are strictly
// ascending and every record's lengths fit inside the payload.
func (b *Block) validate() error {
	prev := -1
	for _, off := range b.offsets {
		o := int(off)
		if o <= prev || o >= len(b.data) {
			return ErrCorrupt
		}
		prev = o

		if o+sizeofU16 > len(b.data) {
			return ErrCorrupt
		}
		keyLen := int(binary.BigEndian.Uint16(b.data[o:]))
		valOff := o + sizeofU16 + keyLen
		if valOff+sizeofU16 > len(b.data) {
			return ErrCorrupt
		}
		valLen := int(binary.BigEndian.Uint16(b.data[valOff:]))
		if valOff+sizeofU16+valLen > len(b.data) {
			return ErrCorrupt
		}
	}
	return nil
}

// NumEntries reports how many records the block holds.
func (b *Block) NumEntries() int {
	return len(b.offsets)
}
