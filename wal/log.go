// Package wal implements the write-ahead log the MemTable consumes
// through a narrow "append and sync" contract. Records are framed with
// a CRC32 checksum so a torn trailing write is detected as a clean EOF
// during recovery rather than corrupting the read.
//
// This is adapted from the root-level log framing in the teacher
// repository's wal.go/wal_writer.go: the same CRC-then-length-prefixed
// record shape, generalized from an Operation-tagged entry to the
// spec's "empty value means tombstone" convention (no separate delete
// marker is framed).
package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// invalidCRC marks an in-progress or torn record: when a reader finds
// this sentinel where a checksum is expected, it has reached the live
// edge of the log rather than a corrupt one.
const invalidCRC = uint32(0xFFFFFFFF)

// MaxRecordSize bounds a single record to guard against a corrupt
// length prefix causing an unbounded allocation during recovery.
const MaxRecordSize = 16 << 20 // 16MB

// ErrCorrupt is returned when a record's checksum does not match its
// payload, or its framing is otherwise inconsistent.
var ErrCorrupt = fmt.Errorf("wal: corrupt record")

// record is a single (key, value) append. Binary format:
// | crc(4) | total_len(4) | key_len(4) | key | value_len(4) | value |
// crc = checksum(total_len | payload). All integers little-endian,
// matching the teacher's wal.go framing (an internal, non-interop
// format, unlike the block/sstable big-endian wire format).
type record struct {
	key   []byte
	value []byte
}

func (r *record) encode(w io.Writer) error {
	seeker, ok := w.(io.Seeker)
	if !ok {
		return fmt.Errorf("wal: writer must be seekable")
	}

	crc := crc32.NewIEEE()
	mw := io.MultiWriter(w, crc)

	keyLen := uint32(len(r.key))
	valLen := uint32(len(r.value))
	payloadLen := 4 + keyLen + 4 + valLen
	totalLen := 4 + payloadLen

	if totalLen > MaxRecordSize {
		return fmt.Errorf("wal: record too large (%d bytes)", totalLen)
	}

	if err := binary.Write(w, binary.LittleEndian, invalidCRC); err != nil {
		return err
	}
	if err := binary.Write(mw, binary.LittleEndian, totalLen); err != nil {
		return err
	}
	if err := binary.Write(mw, binary.LittleEndian, keyLen); err != nil {
		return err
	}
	if _, err := mw.Write(r.key); err != nil {
		return err
	}
	if err := binary.Write(mw, binary.LittleEndian, valLen); err != nil {
		return err
	}
	if _, err := mw.Write(r.value); err != nil {
		return err
	}

	pos, err := seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := seeker.Seek(pos-int64(totalLen)-4, io.SeekStart); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, crc.Sum32()); err != nil {
		return err
	}
	if _, err := seeker.Seek(pos, io.SeekStart); err != nil {
		return err
	}

	return nil
}

func cleanEOF(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return io.EOF
	}
	return err
}

func decodeRecord(r io.Reader) (*record, error) {
	var storedCRC uint32
	if err := binary.Read(r, binary.LittleEndian, &storedCRC); err != nil {
		return nil, cleanEOF(err)
	}
	if storedCRC == invalidCRC {
		return nil, io.EOF
	}

	var totalLen uint32
	if err := binary.Read(r, binary.LittleEndian, &totalLen); err != nil {
		return nil, cleanEOF(err)
	}
	if totalLen > MaxRecordSize || totalLen < 8 {
		return nil, ErrCorrupt
	}

	payload := make([]byte, totalLen)
	binary.LittleEndian.PutUint32(payload[0:4], totalLen)
	if _, err := io.ReadFull(r, payload[4:]); err != nil {
		return nil, cleanEOF(err)
	}

	if crc32.ChecksumIEEE(payload) != storedCRC {
		return nil, ErrCorrupt
	}

	pos := 4
	keyLen := binary.LittleEndian.Uint32(payload[pos:])
	pos += 4
	if uint32(len(payload)-pos) < keyLen {
		return nil, ErrCorrupt
	}
	key := append([]byte(nil), payload[pos:pos+int(keyLen)]...)
	pos += int(keyLen)

	if uint32(len(payload)-pos) < 4 {
		return nil, ErrCorrupt
	}
	valLen := binary.LittleEndian.Uint32(payload[pos:])
	pos += 4
	if uint32(len(payload)-pos) < valLen {
		return nil, ErrCorrupt
	}
	value := append([]byte(nil), payload[pos:pos+int(valLen)]...)

	return &record{key: key, value: value}, nil
}
