package memtable

import "bytes"

// Iterator is a forward cursor over a MemTable's range scan. It holds
// a reference to the owning table rather than a raw skip-list pointer
// chain: every Next re-resolves "the key after currentKey" against the
// table under a brief read lock, so the cursor can never dereference a
// node the table has since unlinked and cannot outlive the table it
// scans (spec.md §9, construction (b)).
type Iterator struct {
	table *MemTable
	upper Bound

	valid bool
	key   []byte
	value []byte
}

// seekLower positions the iterator at the first entry satisfying
// lower, priming the current entry exactly as the spec's "a single
// next advance inside construction primes the current cache"
// describes for the map-backed iterator.
func (it *Iterator) seekLower(lower Bound) {
	it.table.mu.RLock()
	defer it.table.mu.RUnlock()

	var node *skipListNode
	switch lower.Kind {
	case Unbounded:
		node = it.table.list.seekFirstAtLeast(nil)
	case Included:
		node = it.table.list.seekFirstAtLeast(lower.Key)
	case Excluded:
		node = it.table.list.seekFirstGreater(lower.Key)
	}
	it.setFrom(node)
}

// setFrom adopts node as current if it exists and satisfies the upper
// bound; otherwise the iterator becomes invalid.
func (it *Iterator) setFrom(node *skipListNode) {
	if node == nil || !it.withinUpper(node.entry.key) {
		it.valid = false
		it.key = nil
		it.value = nil
		return
	}
	it.valid = true
	it.key = node.entry.key
	it.value = node.entry.value
}

func (it *Iterator) withinUpper(key []byte) bool {
	switch it.upper.Kind {
	case Unbounded:
		return true
	case Included:
		return bytes.Compare(key, it.upper.Key) <= 0
	case Excluded:
		return bytes.Compare(key, it.upper.Key) < 0
	}
	return true
}

// Key returns the current entry's key. Undefined unless IsValid.
func (it *Iterator) Key() []byte { return it.key }

// Value returns the current entry's value. Undefined unless IsValid.
func (it *Iterator) Value() []byte { return it.value }

// IsValid reports whether the cached current key is non-nil,
// equivalently whether a current entry exists.
func (it *Iterator) IsValid() bool { return it.valid }

// Next steps the underlying cursor and refreshes the cached current
// entry. It never fails; the error return satisfies StorageIterator,
// matching the sibling block/sstable iterators.
func (it *Iterator) Next() error {
	if !it.valid {
		return nil
	}

	it.table.mu.RLock()
	node := it.table.list.seekFirstGreater(it.key)
	it.table.mu.RUnlock()

	it.setFrom(node)
	return nil
}
