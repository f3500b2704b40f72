package iterator

import (
	"bytes"
	"container/heap"
)

// heapItem tags a StorageIterator with its source index; a smaller
// index means higher priority when two sources hold the same key.
type heapItem struct {
	index int
	it    StorageIterator
}

// sourceHeap is a container/heap min-heap ordered by (key, index): the
// smallest key wins, ties broken by the smallest source index. This is
// the idiomatic Go fan-in the wider corpus (pebble's merging iterators)
// reaches for instead of a hand-rolled binary heap.
type sourceHeap []*heapItem

func (h sourceHeap) Len() int { return len(h) }
func (h sourceHeap) Less(i, j int) bool {
	c := bytes.Compare(h[i].it.Key(), h[j].it.Key())
	if c != 0 {
		return c < 0
	}
	return h[i].index < h[j].index
}
func (h sourceHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *sourceHeap) Push(x any)   { *h = append(*h, x.(*heapItem)) }
func (h *sourceHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// MergeIterator merges k homogeneous StorageIterators into a single
// ordered cursor with source-priority tie-breaking and tombstone-aware
// advancement: a key whose current winning value is empty is skipped
// as a group rather than emitted.
type MergeIterator struct {
	heap    *sourceHeap
	current *heapItem
}

// NewMergeIterator filters out initially invalid inputs, tags each with
// its source index (iters[0] has the highest priority), and settles on
// the first non-tombstone key.
func NewMergeIterator(iters []StorageIterator) (*MergeIterator, error) {
	h := &sourceHeap{}
	for idx, it := range iters {
		if it.IsValid() {
			*h = append(*h, &heapItem{index: idx, it: it})
		}
	}
	heap.Init(h)

	m := &MergeIterator{heap: h}
	if err := m.settle(); err != nil {
		return nil, err
	}
	return m, nil
}

// settle pops the heap until it lands on an iterator whose key has a
// non-empty value (the winning current), consuming every duplicate and
// every tombstoned key along the way, or exhausts the heap.
func (m *MergeIterator) settle() error {
	for {
		if m.heap.Len() == 0 {
			m.current = nil
			return nil
		}

		top := heap.Pop(m.heap).(*heapItem)
		if !top.it.IsValid() {
			continue
		}
		curKey := append([]byte(nil), top.it.Key()...)

		for m.heap.Len() > 0 {
			peek := (*m.heap)[0]
			if !peek.it.IsValid() {
				heap.Pop(m.heap)
				continue
			}
			if !bytes.Equal(peek.it.Key(), curKey) {
				break
			}

			dup := heap.Pop(m.heap).(*heapItem)
			if err := dup.it.Next(); err != nil {
				return err
			}
			if dup.it.IsValid() {
				heap.Push(m.heap, dup)
			}
		}

		if len(top.it.Value()) == 0 {
			if err := top.it.Next(); err != nil {
				return err
			}
			if top.it.IsValid() {
				heap.Push(m.heap, top)
			}
			continue
		}

		m.current = top
		return nil
	}
}

// Key returns the winning key. Undefined unless IsValid.
func (m *MergeIterator) Key() []byte {
	return m.current.it.Key()
}

// Value returns the winning source's value. Undefined unless IsValid.
func (m *MergeIterator) Value() []byte {
	return m.current.it.Value()
}

// IsValid reports whether the merge has a current entry.
func (m *MergeIterator) IsValid() bool {
	return m.current != nil && m.current.it.IsValid()
}

// Next advances the winning source past the key it was just emitting,
// re-inserts it into the heap if it still has entries, then settles on
// the next distinct, non-tombstoned key. Every other heap entry that
// shared the just-emitted key was already consumed by the prior
// settle, so advancing current alone is sufficient to move past it.
func (m *MergeIterator) Next() error {
	if m.current == nil {
		return nil
	}
	if err := m.current.it.Next(); err != nil {
		return err
	}
	if m.current.it.IsValid() {
		heap.Push(m.heap, m.current)
	}
	m.current = nil
	return m.settle()
}

var _ StorageIterator = (*MergeIterator)(nil)
