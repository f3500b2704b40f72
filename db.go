package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/sorenvik/lsmkv/blockcache"
	"github.com/sorenvik/lsmkv/iterator"
	"github.com/sorenvik/lsmkv/memtable"
	"github.com/sorenvik/lsmkv/sstable"
	"github.com/sorenvik/lsmkv/wal"
)

// ErrNotFound is returned by Get when a key has no live value, whether
// because it was never written or because it was deleted (a
// zero-length value tombstone consumed it).
var ErrNotFound = fmt.Errorf("lsmkv: key not found")

const (
	defaultMemTableFlushThreshold = 4 << 20 // 4MB
	defaultSsTableBlockSize       = 4096
	defaultBlockCacheCapacity     = 1024
)

// Engine wires a MemTable plus one SsTable per flushed generation
// through a MergeIterator, demonstrating the read path's iterator
// algebra end to end. It does not schedule compaction, write a
// manifest, or manage crash recovery beyond WAL replay of the active
// table — those are the external collaborators spec.md §1 names.
type Engine struct {
	mu sync.RWMutex

	dir                   string
	memTableFlushThreshold int64

	nextID atomic.Uint64

	active *memtable.MemTable
	frozen []*memtable.MemTable // newest last

	cache  *blockcache.Cache
	tables []*sstable.SsTable // newest last
}

var _ DB = (*Engine)(nil)

// Open creates (or reopens) an engine rooted at dir. The active
// memtable always starts at id 0: if a WAL file for id 0 exists under
// dir it is replayed into that table. WAL files of later memtable ids
// and SsTables flushed by an earlier process are not looked up.
func Open(dir string) (*Engine, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("lsmkv: open %s: %w", dir, err)
	}

	cache, err := blockcache.New(defaultBlockCacheCapacity)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		dir:                    dir,
		memTableFlushThreshold: defaultMemTableFlushThreshold,
		cache:                  cache,
	}

	id := e.nextID.Add(1) - 1
	var active *memtable.MemTable
	if wal.Exists(dir, id) {
		active, err = memtable.RecoverFromWal(id, dir)
	} else {
		active, err = memtable.CreateWithWal(id, dir)
	}
	if err != nil {
		return nil, err
	}
	e.active = active

	return e, nil
}

// Put inserts or replaces key's value, flushing the active MemTable to
// a new SsTable generation once it crosses memTableFlushThreshold.
func (e *Engine) Put(key, value []byte) error {
	e.mu.Lock()
	active := e.active
	e.mu.Unlock()

	if err := active.Put(key, value); err != nil {
		return err
	}

	if active.ApproximateSize() >= e.memTableFlushThreshold {
		return e.rotateAndFlush()
	}
	return nil
}

// Delete writes a tombstone for key, per spec.md's zero-length-value
// convention.
func (e *Engine) Delete(key []byte) error {
	return e.Put(key, nil)
}

// rotateAndFlush freezes the active MemTable, opens a fresh one, and
// streams the frozen one's entries through an SsTableBuilder.
func (e *Engine) rotateAndFlush() error {
	e.mu.Lock()
	frozen := e.active
	id := e.nextID.Add(1) - 1
	active, err := memtable.CreateWithWal(id, e.dir)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.active = active
	e.frozen = append(e.frozen, frozen)
	e.mu.Unlock()

	builder := sstable.NewBuilder(defaultSsTableBlockSize, 1024)
	if err := frozen.Flush(builder); err != nil {
		return fmt.Errorf("lsmkv: flush memtable %d: %w", frozen.ID(), err)
	}

	path := filepath.Join(e.dir, fmt.Sprintf("%06d.sst", frozen.ID()))
	table, err := builder.Build(sstable.ID(frozen.ID()), e.cache, path)
	if err != nil {
		return fmt.Errorf("lsmkv: build sstable for memtable %d: %w", frozen.ID(), err)
	}

	e.mu.Lock()
	e.tables = append(e.tables, table)
	for i, f := range e.frozen {
		if f == frozen {
			e.frozen = append(e.frozen[:i], e.frozen[i+1:]...)
			break
		}
	}
	e.mu.Unlock()

	if err := frozen.CloseWal(); err != nil {
		return fmt.Errorf("lsmkv: close wal for memtable %d: %w", frozen.ID(), err)
	}
	return os.Remove(filepath.Join(e.dir, fmt.Sprintf("wal-%06d.log", frozen.ID())))
}

// sources returns one StorageIterator per table seeked to key, newest
// (highest priority) first: the active memtable, then frozen
// memtables newest-first, then SsTables newest-first. Index 0 is
// MergeIterator's highest-priority source.
func (e *Engine) sources(key []byte) ([]iterator.StorageIterator, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	iters := make([]iterator.StorageIterator, 0, 1+len(e.frozen)+len(e.tables))

	iters = append(iters, e.active.Scan(memtable.IncludedBound(key), memtable.Bound{Kind: memtable.Unbounded}))

	for i := len(e.frozen) - 1; i >= 0; i-- {
		iters = append(iters, e.frozen[i].Scan(memtable.IncludedBound(key), memtable.Bound{Kind: memtable.Unbounded}))
	}

	for i := len(e.tables) - 1; i >= 0; i-- {
		table := e.tables[i]
		if !table.MayContain(key) {
			continue
		}
		it, err := sstable.NewIteratorSeekTo(table, key)
		if err != nil {
			return nil, err
		}
		iters = append(iters, it)
	}

	return iters, nil
}

// Get looks up key across the active memtable, frozen memtables, and
// on-disk SsTables by seeking every source to key and merging them,
// the same MergeIterator algebra a full scan uses, specialized to one
// key. A present but empty value (a tombstone) reports ErrNotFound.
func (e *Engine) Get(key []byte) ([]byte, error) {
	iters, err := e.sources(key)
	if err != nil {
		return nil, err
	}

	m, err := iterator.NewMergeIterator(iters)
	if err != nil {
		return nil, err
	}

	if !m.IsValid() || !bytes.Equal(m.Key(), key) {
		return nil, ErrNotFound
	}
	return append([]byte(nil), m.Value()...), nil
}

// NewIterator returns a MergeIterator over every source (active
// memtable, frozen memtables, and flushed SsTables) positioned at the
// first live entry, demonstrating the full read path described in
// spec.md §2.
func (e *Engine) NewIterator() (*iterator.MergeIterator, error) {
	e.mu.RLock()
	iters := make([]iterator.StorageIterator, 0, 1+len(e.frozen)+len(e.tables))
	iters = append(iters, e.active.Scan(memtable.Bound{Kind: memtable.Unbounded}, memtable.Bound{Kind: memtable.Unbounded}))
	for i := len(e.frozen) - 1; i >= 0; i-- {
		iters = append(iters, e.frozen[i].Scan(memtable.Bound{Kind: memtable.Unbounded}, memtable.Bound{Kind: memtable.Unbounded}))
	}
	tables := append([]*sstable.SsTable(nil), e.tables...)
	e.mu.RUnlock()

	for i := len(tables) - 1; i >= 0; i-- {
		it, err := sstable.NewIterator(tables[i])
		if err != nil {
			return nil, err
		}
		iters = append(iters, it)
	}

	return iterator.NewMergeIterator(iters)
}

// Close syncs the active memtable's WAL and closes every flushed
// SsTable's file handle.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.active.SyncWal(); err != nil {
		return err
	}
	if err := e.active.CloseWal(); err != nil {
		return err
	}
	for _, t := range e.tables {
		if err := t.Close(); err != nil {
			return err
		}
	}
	return nil
}
