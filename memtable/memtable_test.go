package memtable

import (
	"fmt"
	"sync"
	"testing"

	"github.com/sorenvik/lsmkv/sstable"
)

func TestPutAndGet(t *testing.T) {
	m := New(1)

	if err := m.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	v, ok := m.Get([]byte("a"))
	if !ok || string(v) != "1" {
		t.Fatalf("Get = (%q, %v), want (1, true)", v, ok)
	}

	if _, ok := m.Get([]byte("missing")); ok {
		t.Fatalf("expected missing key to be absent")
	}
}

func TestPutOverwritesExistingKey(t *testing.T) {
	m := New(1)
	m.Put([]byte("a"), []byte("1"))
	m.Put([]byte("a"), []byte("2"))

	v, ok := m.Get([]byte("a"))
	if !ok || string(v) != "2" {
		t.Fatalf("Get = (%q, %v), want (2, true)", v, ok)
	}
}

func TestScanInclusiveRange(t *testing.T) {
	m := New(1)
	m.Put([]byte("a"), []byte("1"))
	m.Put([]byte("c"), []byte("3"))
	m.Put([]byte("b"), []byte("2"))

	it := m.Scan(IncludedBound([]byte("a")), IncludedBound([]byte("c")))

	var got [][2]string
	for it.IsValid() {
		got = append(got, [2]string{string(it.Key()), string(it.Value())})
		if err := it.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}

	want := [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestScanExcludedBounds(t *testing.T) {
	m := New(1)
	for _, k := range []string{"a", "b", "c", "d"} {
		m.Put([]byte(k), []byte(k))
	}

	it := m.Scan(ExcludedBound([]byte("a")), ExcludedBound([]byte("d")))

	var got []string
	for it.IsValid() {
		got = append(got, string(it.Key()))
		it.Next()
	}

	want := []string{"b", "c"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestScanUnboundedCoversAll(t *testing.T) {
	m := New(1)
	for _, k := range []string{"z", "a", "m"} {
		m.Put([]byte(k), []byte(k))
	}

	it := m.Scan(Bound{Kind: Unbounded}, Bound{Kind: Unbounded})
	var got []string
	for it.IsValid() {
		got = append(got, string(it.Key()))
		it.Next()
	}

	want := []string{"a", "m", "z"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestApproximateSizeMonotone(t *testing.T) {
	m := New(1)
	if m.ApproximateSize() != 0 {
		t.Fatalf("expected 0, got %d", m.ApproximateSize())
	}
	m.Put([]byte("ab"), []byte("cde"))
	if got := m.ApproximateSize(); got != 5 {
		t.Fatalf("ApproximateSize = %d, want 5", got)
	}
	m.Put([]byte("f"), []byte("g"))
	if got := m.ApproximateSize(); got != 7 {
		t.Fatalf("ApproximateSize = %d, want 7", got)
	}
}

func TestIsEmpty(t *testing.T) {
	m := New(1)
	if !m.IsEmpty() {
		t.Fatal("expected new table to be empty")
	}
	m.Put([]byte("a"), []byte("1"))
	if m.IsEmpty() {
		t.Fatal("expected non-empty table after Put")
	}
}

func TestFlushStreamsAscending(t *testing.T) {
	m := New(1)
	m.Put([]byte("c"), []byte("3"))
	m.Put([]byte("a"), []byte("1"))
	m.Put([]byte("b"), []byte("2"))

	dir := t.TempDir()
	bld := sstable.NewBuilder(4096, 3)
	if err := m.Flush(bld); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	sst, err := bld.Build(1, nil, dir+"/000001.sst")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer sst.Close()

	if string(sst.FirstKey()) != "a" || string(sst.LastKey()) != "c" {
		t.Fatalf("FirstKey/LastKey = %q/%q, want a/c", sst.FirstKey(), sst.LastKey())
	}
}

func TestConcurrentPutAndGet(t *testing.T) {
	m := New(1)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k := []byte(fmt.Sprintf("k%03d", i))
			m.Put(k, k)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 100; i++ {
		k := []byte(fmt.Sprintf("k%03d", i))
		v, ok := m.Get(k)
		if !ok || string(v) != string(k) {
			t.Fatalf("Get(%q) = (%q, %v)", k, v, ok)
		}
	}
}

func TestCreateAndRecoverFromWal(t *testing.T) {
	dir := t.TempDir()

	m, err := CreateWithWal(7, dir)
	if err != nil {
		t.Fatalf("CreateWithWal: %v", err)
	}
	m.Put([]byte("a"), []byte("1"))
	m.Put([]byte("b"), []byte("2"))
	if err := m.SyncWal(); err != nil {
		t.Fatalf("SyncWal: %v", err)
	}

	recovered, err := RecoverFromWal(7, dir)
	if err != nil {
		t.Fatalf("RecoverFromWal: %v", err)
	}

	for _, k := range []string{"a", "b"} {
		v, ok := recovered.Get([]byte(k))
		if !ok {
			t.Fatalf("recovered table missing key %q", k)
		}
		orig, _ := m.Get([]byte(k))
		if string(v) != string(orig) {
			t.Fatalf("recovered[%q] = %q, want %q", k, v, orig)
		}
	}
}
