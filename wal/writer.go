package wal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// ErrClosed is returned by Append/Sync after Close has completed.
var ErrClosed = fmt.Errorf("wal: closed")

// idToPath names a memtable's WAL file. One file per memtable id, in
// contrast to the teacher's size-rotated segment chain: a MemTable's
// WAL is bounded by the memtable's own flush threshold, not by a
// segment size, so there is nothing to rotate.
//
// Adapted from the teacher's segmentmanager/disk.go idToPath/segment
// naming scheme.
func idToPath(dir string, id uint64) string {
	return filepath.Join(dir, fmt.Sprintf("wal-%06d.log", id))
}

// appendRequest is a single queued Append, mirroring the teacher's
// wal_writer.go walRequest: the request carries its own result channel
// so Append can block on completion while a single goroutine owns the
// file.
type appendRequest struct {
	rec  record
	done chan error
}

// Writer is the async, channel-backed WAL writer a MemTable appends
// through. One goroutine owns the underlying file; Append and Sync
// hand requests to it and block for the result, giving callers a
// synchronous-looking API over a serialized writer, the same shape as
// the teacher's WALWriter over its segmentmanager.SegmentManager.
type Writer struct {
	mu     sync.Mutex
	ch     chan *appendRequest
	syncCh chan chan error
	done   chan struct{}
	closed bool
	wg     sync.WaitGroup

	f *os.File
}

// Create opens a new WAL file for memtable id under dir, truncating
// any existing file of the same name.
func Create(dir string, id uint64) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(idToPath(dir, id))
	if err != nil {
		return nil, err
	}
	return newWriter(f), nil
}

// OpenForAppend reopens an existing WAL file for id, appending further
// records after whatever recovery already read from it.
func OpenForAppend(dir string, id uint64) (*Writer, error) {
	f, err := os.OpenFile(idToPath(dir, id), os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, err
	}
	return newWriter(f), nil
}

func newWriter(f *os.File) *Writer {
	w := &Writer{
		f:      f,
		ch:     make(chan *appendRequest, 64),
		syncCh: make(chan chan error),
		done:   make(chan struct{}),
	}
	go w.loop()
	return w
}

// Append encodes (key, value) and hands it to the writer goroutine,
// blocking until it has been written to the file (not necessarily
// fsynced; call Sync for that guarantee).
func (w *Writer) Append(key, value []byte) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	req := &appendRequest{
		rec:  record{key: append([]byte(nil), key...), value: append([]byte(nil), value...)},
		done: make(chan error, 1),
	}

	select {
	case w.ch <- req:
		return <-req.done
	case <-w.done:
		return ErrClosed
	}
}

// Sync flushes any queued appends and fsyncs the underlying file.
func (w *Writer) Sync() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	reply := make(chan error, 1)
	select {
	case w.syncCh <- reply:
		return <-reply
	case <-w.done:
		return ErrClosed
	}
}

// Close drains in-flight requests and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.wg.Wait()
	close(w.ch)
	<-w.done
	return w.f.Close()
}

func (w *Writer) loop() {
	defer close(w.done)

	for {
		select {
		case req, ok := <-w.ch:
			if !ok {
				return
			}
			req.done <- req.rec.encode(w.f)
		case reply := <-w.syncCh:
			reply <- w.f.Sync()
		}
	}
}
