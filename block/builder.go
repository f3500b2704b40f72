package block

import (
	"encoding/binary"
)

// Builder accumulates key/value pairs into a Block up to a configured
// target size. Callers must add keys in strictly ascending order; the
// Builder does not itself check this, matching the spec's "caller
// guarantees it" contract.
type Builder struct {
	targetSize int
	data       []byte
	offsets    []uint16
}

// NewBuilder creates a Builder targeting the given encoded byte size.
func NewBuilder(targetSize int) *Builder {
	return &Builder{targetSize: targetSize}
}

// estimatedEntrySize is the encoded size of one record plus its offset slot.
func estimatedEntrySize(key, value []byte) int {
	return sizeofU16 + len(key) + sizeofU16 + len(value) + sizeofU16
}

// EstimatedSize returns the payload+offsets+footer byte size the Block
// would encode to if built right now.
func (bld *Builder) EstimatedSize() int {
	return len(bld.data) + len(bld.offsets)*sizeofU16 + sizeofU16
}

// Add appends a record and reports whether it was accepted. It always
// accepts the first entry regardless of size; subsequent entries are
// rejected if they would push the block past its target size.
func (bld *Builder) Add(key, value []byte) bool {
	if len(bld.offsets) > 0 && bld.EstimatedSize()+estimatedEntrySize(key, value) > bld.targetSize {
		return false
	}

	offset := uint16(len(bld.data))

	var lenBuf [sizeofU16]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(key)))
	bld.data = append(bld.data, lenBuf[:]...)
	bld.data = append(bld.data, key...)

	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(value)))
	bld.data = append(bld.data, lenBuf[:]...)
	bld.data = append(bld.data, value...)

	bld.offsets = append(bld.offsets, offset)
	return true
}

// IsEmpty reports whether no entry has been added yet.
func (bld *Builder) IsEmpty() bool {
	return len(bld.offsets) == 0
}

// Build finalizes the accumulated entries into an immutable Block.
func (bld *Builder) Build() *Block {
	data := make([]byte, len(bld.data))
	copy(data, bld.data)
	offsets := make([]uint16, len(bld.offsets))
	copy(offsets, bld.offsets)
	return &Block{data: data, offsets: offsets}
}
