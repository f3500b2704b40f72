// Package memtable provides the in-memory, ordered key/value staging
// table writes land in before they are flushed to an SsTable. It is
// built on a mutex-guarded skip list generalized from the teacher's
// generic SkipList[K, V] to the spec's uninterpreted byte-string keys.
package memtable

import (
	"sync"
	"sync/atomic"

	"github.com/sorenvik/lsmkv/sstable"
	"github.com/sorenvik/lsmkv/wal"
)

// Wal is the narrow "append and sync" contract a MemTable consumes.
// It is satisfied by *wal.Writer; tests may substitute a fake.
type Wal interface {
	Append(key, value []byte) error
	Sync() error
}

// MemTable is a concurrent, ordered key/value map. Readers and writers
// may call it from multiple goroutines; Scan returns an iterator that
// pins this MemTable rather than raw skip-list pointers so the cursor
// cannot outlive the table it scans (spec.md §9, strategy (b): the
// cursor is an internal (key, direction) offset, re-resolved against
// the table under lock on every step, not a borrowed pointer chain).
type MemTable struct {
	id uint64

	mu   sync.RWMutex
	list *skipList

	approxSize atomic.Int64

	wal Wal
}

// New creates an empty MemTable with no attached WAL.
func New(id uint64) *MemTable {
	return &MemTable{id: id, list: newSkipList()}
}

// CreateWithWal creates an empty MemTable and a fresh WAL file for id
// under dir; every Put is appended to the WAL before Put returns.
func CreateWithWal(id uint64, dir string) (*MemTable, error) {
	w, err := wal.Create(dir, id)
	if err != nil {
		return nil, err
	}
	return &MemTable{id: id, list: newSkipList(), wal: w}, nil
}

// RecoverFromWal replays the WAL file for id under dir into a fresh
// MemTable and reopens it for further appends. It is the Go-idiomatic
// fill-in of the original mem_table.rs's recover_from_wal sketch.
func RecoverFromWal(id uint64, dir string) (*MemTable, error) {
	entries, err := wal.Replay(dir, id)
	if err != nil {
		return nil, err
	}

	w, err := wal.OpenForAppend(dir, id)
	if err != nil {
		return nil, err
	}

	mt := &MemTable{id: id, list: newSkipList(), wal: w}
	for _, e := range entries {
		mt.list.put(e.Key, e.Value)
		mt.approxSize.Add(int64(len(e.Key) + len(e.Value)))
	}
	return mt, nil
}

// ID returns the table's stable identifier.
func (m *MemTable) ID() uint64 { return m.id }

// Put inserts or replaces the entry for key. If a WAL is attached, the
// record is appended to it before Put returns; the in-memory insert
// always happens first, so a WAL failure still leaves the table itself
// consistent (durability, not visibility, is what failed).
func (m *MemTable) Put(key, value []byte) error {
	m.mu.Lock()
	m.list.put(key, value)
	m.mu.Unlock()

	m.approxSize.Add(int64(len(key) + len(value)))

	if m.wal != nil {
		return m.wal.Append(key, value)
	}
	return nil
}

// Get returns the value for key and whether it was present. A present
// zero-length value is a tombstone, not "absent": callers that care
// about deletion semantics must check for an empty, present value.
func (m *MemTable) Get(key []byte) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list.get(key)
}

// BoundKind classifies one side of a Scan range.
type BoundKind int

const (
	Unbounded BoundKind = iota
	Included
	Excluded
)

// Bound is one side of a Scan range.
type Bound struct {
	Kind BoundKind
	Key  []byte
}

// IncludedBound constructs an inclusive bound at key.
func IncludedBound(key []byte) Bound { return Bound{Kind: Included, Key: key} }

// ExcludedBound constructs an exclusive bound at key.
func ExcludedBound(key []byte) Bound { return Bound{Kind: Excluded, Key: key} }

// Scan returns an Iterator positioned at the first entry within
// [lower, upper) per each bound's kind, already primed at its first
// in-range entry (or invalid, if none exists).
func (m *MemTable) Scan(lower, upper Bound) *Iterator {
	it := &Iterator{table: m, upper: upper}
	it.seekLower(lower)
	return it
}

// SyncWal flushes and fsyncs the attached WAL. It is a no-op when no
// WAL is attached.
func (m *MemTable) SyncWal() error {
	if m.wal == nil {
		return nil
	}
	return m.wal.Sync()
}

// CloseWal closes the attached WAL's underlying file, if the
// configured Wal implementation supports it (*wal.Writer does). It is
// a no-op when no WAL is attached or the Wal does not implement
// io.Closer; Wal's contract (spec.md §6) only requires Append/Sync.
func (m *MemTable) CloseWal() error {
	if m.wal == nil {
		return nil
	}
	if c, ok := m.wal.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// ApproximateSize is a relaxed, monotone-non-decreasing estimate of
// the key+value bytes written to this table.
func (m *MemTable) ApproximateSize() int64 {
	return m.approxSize.Load()
}

// IsEmpty reports whether the table holds no entries.
func (m *MemTable) IsEmpty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list.size == 0
}

// Flush streams every entry in ascending key order into builder.
func (m *MemTable) Flush(builder *sstable.Builder) error {
	it := m.Scan(Bound{Kind: Unbounded}, Bound{Kind: Unbounded})
	for it.IsValid() {
		if err := builder.Add(it.Key(), it.Value()); err != nil {
			return err
		}
		if err := it.Next(); err != nil {
			return err
		}
	}
	return nil
}
