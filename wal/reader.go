package wal

import (
	"fmt"
	"io"
	"os"
)

// Entry is a single recovered (key, value) pair. An empty Value marks
// a tombstone, matching the convention carried throughout the rest of
// the engine.
type Entry struct {
	Key   []byte
	Value []byte
}

// Replay reads every well-formed record from the WAL file for id and
// returns them in append order. A clean EOF mid-stream (the tail of an
// in-progress write that was never completed, recognizable by the
// invalidCRC sentinel or a short read) ends recovery at the last
// complete record. A checksum mismatch inside the stream is corruption
// and is reported as ErrCorrupt rather than silently truncated,
// distinguishing "never finished writing" from "written and later
// damaged".
func Replay(dir string, id uint64) ([]Entry, error) {
	f, err := os.Open(idToPath(dir, id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	for {
		rec, err := decodeRecord(f)
		if err == io.EOF {
			break
		}
		if err != nil {
			return entries, fmt.Errorf("wal: replay %s: %w", idToPath(dir, id), err)
		}
		entries = append(entries, Entry{Key: rec.key, Value: rec.value})
	}
	return entries, nil
}

// Exists reports whether a WAL file for id is present under dir.
func Exists(dir string, id uint64) bool {
	_, err := os.Stat(idToPath(dir, id))
	return err == nil
}

// Remove deletes the WAL file for id, called once its MemTable has
// been durably flushed to an SsTable.
func Remove(dir string, id uint64) error {
	err := os.Remove(idToPath(dir, id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
