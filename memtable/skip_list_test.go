package memtable

import (
	"fmt"
	"math/rand"
	"testing"
)

func init() {
	rand.Seed(1)
}

func TestEmptySkipList(t *testing.T) {
	sl := newSkipList()
	if sl.size != 0 {
		t.Fatalf("expected size 0, got %d", sl.size)
	}
	if _, ok := sl.get([]byte("a")); ok {
		t.Fatal("expected not found in empty skip list")
	}
}

func TestSkipListPutAndGetSingle(t *testing.T) {
	sl := newSkipList()
	sl.put([]byte("k"), []byte("ten"))

	v, ok := sl.get([]byte("k"))
	if !ok || string(v) != "ten" {
		t.Fatalf("get = (%q, %v), want (ten, true)", v, ok)
	}
}

func TestSkipListUpdateExistingKey(t *testing.T) {
	sl := newSkipList()
	sl.put([]byte("k"), []byte("one"))
	sl.put([]byte("k"), []byte("uno"))

	v, ok := sl.get([]byte("k"))
	if !ok || string(v) != "uno" {
		t.Fatalf("update failed, got (%q, %v)", v, ok)
	}
	if sl.size != 1 {
		t.Fatalf("expected size 1, got %d", sl.size)
	}
}

func TestSkipListSequentialInsertAndGet(t *testing.T) {
	sl := newSkipList()
	for i := 0; i < 1000; i++ {
		k := []byte(fmt.Sprintf("k%04d", i))
		sl.put(k, []byte(fmt.Sprintf("v%d", i)))
	}
	for i := 0; i < 1000; i++ {
		k := []byte(fmt.Sprintf("k%04d", i))
		v, ok := sl.get(k)
		if !ok || string(v) != fmt.Sprintf("v%d", i) {
			t.Fatalf("bad value for key %s: (%q, %v)", k, v, ok)
		}
	}
	if sl.size != 1000 {
		t.Fatalf("expected size 1000, got %d", sl.size)
	}
}

func TestSkipListSeekFirstAtLeast(t *testing.T) {
	sl := newSkipList()
	for _, k := range []string{"b", "d", "f"} {
		sl.put([]byte(k), []byte(k))
	}

	if n := sl.seekFirstAtLeast([]byte("a")); n == nil || string(n.entry.key) != "b" {
		t.Fatalf("seekFirstAtLeast(a) landed on %v, want b", n)
	}
	if n := sl.seekFirstAtLeast([]byte("d")); n == nil || string(n.entry.key) != "d" {
		t.Fatalf("seekFirstAtLeast(d) landed on %v, want d (inclusive)", n)
	}
	if n := sl.seekFirstAtLeast([]byte("e")); n == nil || string(n.entry.key) != "f" {
		t.Fatalf("seekFirstAtLeast(e) landed on %v, want f", n)
	}
	if n := sl.seekFirstAtLeast([]byte("g")); n != nil {
		t.Fatalf("seekFirstAtLeast(g) landed on %v, want nil", n)
	}
}

func TestSkipListSeekFirstGreater(t *testing.T) {
	sl := newSkipList()
	for _, k := range []string{"b", "d", "f"} {
		sl.put([]byte(k), []byte(k))
	}

	if n := sl.seekFirstGreater([]byte("d")); n == nil || string(n.entry.key) != "f" {
		t.Fatalf("seekFirstGreater(d) landed on %v, want f (exclusive)", n)
	}
}
