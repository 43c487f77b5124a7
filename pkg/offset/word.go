package offset

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"github.com/tysonmote/gommap"
)

// WordSize is the on-disk size of an offset word file.
const WordSize = 8

// Word is a monotonic byte offset persisted through an 8-byte memory-mapped
// file. Peer processes mapping the same file observe updates without file
// I/O; the value is accessed as an atomic 64-bit integer so a reader that
// sees a new offset also sees the data writes that preceded it.
type Word struct {
	path     string
	file     *os.File
	mmap     gommap.MMap
	writable bool
	closed   bool
}

// Open creates the word file if absent (initial value 0), or maps the
// persisted value otherwise.
func Open(path string) (*Word, error) {
	return open(path, true)
}

// OpenReadOnly maps an existing word file for reading only. Used by peers
// that observe an offset they do not own.
func OpenReadOnly(path string) (*Word, error) {
	return open(path, false)
}

func open(path string, writable bool) (*Word, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	flags := os.O_RDONLY
	if writable {
		flags = os.O_CREATE | os.O_RDWR
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	switch {
	case info.Size() == 0 && writable:
		if err := f.Truncate(WordSize); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to size offset word %s: %w", path, err)
		}
	case info.Size() != WordSize:
		f.Close()
		return nil, fmt.Errorf("offset word %s has length %d, want %d", path, info.Size(), WordSize)
	}

	prot := gommap.PROT_READ
	if writable {
		prot |= gommap.PROT_WRITE
	}
	m, err := gommap.Map(f.Fd(), prot, gommap.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap offset word %s: %w", path, err)
	}

	return &Word{path: path, file: f, mmap: m, writable: writable}, nil
}

func (w *Word) ptr() *int64 {
	return (*int64)(unsafe.Pointer(&w.mmap[0]))
}

// Value returns the current offset with acquire ordering.
func (w *Word) Value() int64 {
	return atomic.LoadInt64(w.ptr())
}

// Advance adds delta with release ordering and returns the new value.
func (w *Word) Advance(delta int64) int64 {
	return atomic.AddInt64(w.ptr(), delta)
}

// MoveTo sets an absolute value. Moving backwards is rejected unless
// allowBackwards is set; the producer and consumer AdjustOffset methods
// are the callers that set it.
func (w *Word) MoveTo(value int64, allowBackwards bool) error {
	if value < 0 {
		return fmt.Errorf("offset word %s: negative offset %d", w.path, value)
	}
	if cur := w.Value(); value < cur && !allowBackwards {
		return fmt.Errorf("offset word %s: moving backwards from %d to %d", w.path, cur, value)
	}
	atomic.StoreInt64(w.ptr(), value)
	return nil
}

// Sync asks the kernel to persist the mapped value.
func (w *Word) Sync() error {
	return w.mmap.Sync(gommap.MS_SYNC)
}

// Path returns the backing file path.
func (w *Word) Path() string {
	return w.path
}

// Close unmaps and closes the word. Idempotent.
func (w *Word) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if w.writable {
		if err := w.mmap.Sync(gommap.MS_SYNC); err != nil {
			return err
		}
	}
	if err := w.mmap.UnsafeUnmap(); err != nil {
		return err
	}
	return w.file.Close()
}
