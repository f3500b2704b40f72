package blockcache

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sorenvik/lsmkv/block"
	"github.com/sorenvik/lsmkv/sstable"
)

func buildSingleEntryBlock(t *testing.T) *block.Block {
	t.Helper()
	bld := block.NewBuilder(4096)
	if !bld.Add([]byte("k"), []byte("v")) {
		t.Fatal("Add rejected")
	}
	return bld.Build()
}

func TestCacheHitAvoidsRefill(t *testing.T) {
	c, err := New(8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	blk := buildSingleEntryBlock(t)
	var fills int32

	fill := func() (*block.Block, error) {
		atomic.AddInt32(&fills, 1)
		return blk, nil
	}

	if _, err := c.GetOrFill(sstable.ID(1), 0, fill); err != nil {
		t.Fatalf("GetOrFill: %v", err)
	}
	if _, err := c.GetOrFill(sstable.ID(1), 0, fill); err != nil {
		t.Fatalf("GetOrFill: %v", err)
	}

	if fills != 1 {
		t.Fatalf("fills = %d, want 1", fills)
	}
}

func TestCacheSingleFlightCollapsesConcurrentFills(t *testing.T) {
	c, err := New(8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	blk := buildSingleEntryBlock(t)
	var fills int32
	start := make(chan struct{})

	fill := func() (*block.Block, error) {
		atomic.AddInt32(&fills, 1)
		<-start
		return blk, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetOrFill(sstable.ID(1), 0, fill); err != nil {
				t.Error(err)
			}
		}()
	}

	close(start)
	wg.Wait()

	if fills != 1 {
		t.Fatalf("fills = %d, want at most 1 concurrent fill", fills)
	}
}

func TestCacheDistinctKeysFillIndependently(t *testing.T) {
	c, err := New(8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	blk := buildSingleEntryBlock(t)
	var fills int32
	fill := func() (*block.Block, error) {
		atomic.AddInt32(&fills, 1)
		return blk, nil
	}

	if _, err := c.GetOrFill(sstable.ID(1), 0, fill); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetOrFill(sstable.ID(1), 1, fill); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetOrFill(sstable.ID(2), 0, fill); err != nil {
		t.Fatal(err)
	}

	if fills != 3 {
		t.Fatalf("fills = %d, want 3", fills)
	}
}
