package block

import (
	"bytes"
	"testing"
)

func buildBlock(t *testing.T, pairs [][2]string) *Block {
	t.Helper()
	bld := NewBuilder(4096)
	for _, p := range pairs {
		if !bld.Add([]byte(p[0]), []byte(p[1])) {
			t.Fatalf("Add(%q, %q) unexpectedly rejected", p[0], p[1])
		}
	}
	return bld.Build()
}

func TestBlockRoundTrip(t *testing.T) {
	pairs := [][2]string{
		{"apple", "red"},
		{"banana", "yellow"},
		{"cherry", "deep-red"},
	}

	blk := buildBlock(t, pairs)
	encoded := blk.Encode()

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	it := SeekToFirstIterator(decoded)
	for _, p := range pairs {
		if !it.IsValid() {
			t.Fatalf("iterator ended early, expected %q", p[0])
		}
		if string(it.Key()) != p[0] {
			t.Fatalf("key = %q, want %q", it.Key(), p[0])
		}
		if string(it.Value()) != p[1] {
			t.Fatalf("value = %q, want %q", it.Value(), p[1])
		}
		if err := it.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}

	if it.IsValid() {
		t.Fatalf("expected iterator to be exhausted, got key %q", it.Key())
	}
}

func TestBuilderRejectsPastTargetSize(t *testing.T) {
	bld := NewBuilder(32)

	if !bld.Add([]byte("k1"), bytes.Repeat([]byte("v"), 40)) {
		t.Fatal("first entry must always be accepted")
	}

	if bld.Add([]byte("k2"), []byte("v")) {
		t.Fatal("expected second entry to be rejected once target size exceeded")
	}
}

func TestBuilderAcceptsUpToTargetSize(t *testing.T) {
	bld := NewBuilder(256)

	count := 0
	for i := 0; i < 100; i++ {
		if !bld.Add([]byte{byte(i)}, []byte("v")) {
			break
		}
		count++
	}

	if count == 0 {
		t.Fatal("expected at least one entry to be accepted")
	}

	blk := bld.Build()
	if blk.NumEntries() != count {
		t.Fatalf("NumEntries = %d, want %d", blk.NumEntries(), count)
	}
}

func TestDecodeCorruptOffsetRejected(t *testing.T) {
	blk := buildBlock(t, [][2]string{{"a", "1"}})
	encoded := blk.Encode()

	// Corrupt the footer count so the implied offsets table overruns the
	// payload.
	encoded[len(encoded)-1] = 0xFF
	encoded[len(encoded)-2] = 0xFF

	if _, err := Decode(encoded); err == nil {
		t.Fatal("expected corruption error, got nil")
	}
}
