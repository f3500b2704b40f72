package sstable

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ErrCorrupt is returned when the block-meta section or footer of an
// SST fails to decode consistently.
var ErrCorrupt = fmt.Errorf("sstable: corrupt encoding")

// BlockMeta is the per-Block index record: the Block's byte offset
// within the file, and its first and last keys.
type BlockMeta struct {
	Offset   uint32
	FirstKey []byte
	LastKey  []byte
}

// encodeBlockMeta writes num_metas(u32) followed by, per meta:
// offset(u32) | first_key_len(u16) | first_key | last_key_len(u16) | last_key.
func encodeBlockMeta(metas []BlockMeta) []byte {
	size := 4
	for _, m := range metas {
		size += 4 + 2 + len(m.FirstKey) + 2 + len(m.LastKey)
	}

	buf := make([]byte, size)
	n := 0
	binary.BigEndian.PutUint32(buf[n:], uint32(len(metas)))
	n += 4

	for _, m := range metas {
		binary.BigEndian.PutUint32(buf[n:], m.Offset)
		n += 4
		binary.BigEndian.PutUint16(buf[n:], uint16(len(m.FirstKey)))
		n += 2
		n += copy(buf[n:], m.FirstKey)
		binary.BigEndian.PutUint16(buf[n:], uint16(len(m.LastKey)))
		n += 2
		n += copy(buf[n:], m.LastKey)
	}

	return buf
}

// decodeBlockMeta reads exactly the declared number of metas from buf,
// ignoring any trailing bytes (the Bloom section lives after the meta
// section in this implementation, see sstable.go).
func decodeBlockMeta(buf []byte) ([]BlockMeta, error) {
	if len(buf) < 4 {
		return nil, ErrCorrupt
	}
	num := int(binary.BigEndian.Uint32(buf))
	pos := 4

	metas := make([]BlockMeta, 0, num)
	for i := 0; i < num; i++ {
		if pos+4+2 > len(buf) {
			return nil, ErrCorrupt
		}
		offset := binary.BigEndian.Uint32(buf[pos:])
		pos += 4
		firstLen := int(binary.BigEndian.Uint16(buf[pos:]))
		pos += 2
		if pos+firstLen+2 > len(buf) {
			return nil, ErrCorrupt
		}
		firstKey := append([]byte(nil), buf[pos:pos+firstLen]...)
		pos += firstLen

		lastLen := int(binary.BigEndian.Uint16(buf[pos:]))
		pos += 2
		if pos+lastLen > len(buf) {
			return nil, ErrCorrupt
		}
		lastKey := append([]byte(nil), buf[pos:pos+lastLen]...)
		pos += lastLen

		metas = append(metas, BlockMeta{Offset: offset, FirstKey: firstKey, LastKey: lastKey})
	}

	if err := validateMetas(metas); err != nil {
		return nil, err
	}

	return metas, nil
}

// validateMetas checks the strict-ascending invariant between
// consecutive block ranges: metas[i].LastKey < metas[i+1].FirstKey.
func validateMetas(metas []BlockMeta) error {
	for i := 1; i < len(metas); i++ {
		if bytes.Compare(metas[i-1].LastKey, metas[i].FirstKey) >= 0 {
			return ErrCorrupt
		}
	}
	return nil
}
