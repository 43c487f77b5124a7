package disk

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"github.com/kamikyo/MappedFileQueues/pkg/metrics"
	"github.com/kamikyo/MappedFileQueues/util"
	"github.com/tysonmote/gommap"
)

// EndMarker is the sentinel written after a payload to publish it. A fresh
// segment is zero-filled, so a zero marker byte means "no record yet".
const EndMarker byte = 1

// Segment is one memory-mapped file backing a contiguous range of the
// logical byte stream. The producer maps it read-write; the consumer maps
// the same file read-only. Record visibility is carried solely by the end
// marker byte, stored with release ordering and loaded with acquire
// ordering through the shared mapping.
type Segment struct {
	path     string
	file     *os.File
	data     gommap.MMap
	layout   Layout
	start    int64
	size     int64 // adjusted size A
	writable bool
	disposed bool
}

// SegmentPath returns the file path for the segment starting at start:
// a 20-digit zero-padded decimal name inside dir.
func SegmentPath(dir string, start int64) string {
	return filepath.Join(dir, fmt.Sprintf("%020d", start))
}

// CreateOrOpen maps the segment whose range contains target, creating the
// zero-filled file first if it does not exist. Only the producer calls this.
func CreateOrOpen(dir string, layout Layout, target int64) (*Segment, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	start := layout.StartFor(target)
	size := layout.AdjustedSize()
	path := SegmentPath(dir, start)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	switch {
	case info.Size() == 0:
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to size segment %s: %w", path, err)
		}
		adviseSequential(f)
		metrics.SegmentsCreated.Inc()
		util.Debug("created segment %s (%d bytes)", path, size)
	case info.Size() != size:
		f.Close()
		return nil, fmt.Errorf("segment %s has length %d, want %d", path, info.Size(), size)
	}

	m, err := gommap.Map(f.Fd(), gommap.PROT_READ|gommap.PROT_WRITE, gommap.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap segment %s: %w", path, err)
	}

	return &Segment{
		path:     path,
		file:     f,
		data:     m,
		layout:   layout,
		start:    start,
		size:     size,
		writable: true,
	}, nil
}

// TryFind maps an existing segment read-only. It fails with os.ErrNotExist
// (wrapped) when the file has not been created yet.
func TryFind(dir string, layout Layout, target int64) (*Segment, error) {
	start := layout.StartFor(target)
	size := layout.AdjustedSize()
	path := SegmentPath(dir, start)

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() != size {
		f.Close()
		return nil, fmt.Errorf("segment %s has length %d, want %d", path, info.Size(), size)
	}

	m, err := gommap.Map(f.Fd(), gommap.PROT_READ, gommap.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap segment %s: %w", path, err)
	}

	return &Segment{
		path:   path,
		file:   f,
		data:   m,
		layout: layout,
		start:  start,
		size:   size,
	}, nil
}

func (s *Segment) Path() string { return s.path }

func (s *Segment) Start() int64 { return s.start }

// LastWritableOffset is the highest logical offset at which a record may
// begin inside this segment.
func (s *Segment) LastWritableOffset() int64 {
	return s.start + s.size - s.layout.Stride()
}

func (s *Segment) checkOffset(off int64) error {
	if off < s.start || off > s.LastWritableOffset() {
		return fmt.Errorf("%w: offset %d, segment [%d, %d]", ErrOutOfRange, off, s.start, s.LastWritableOffset())
	}
	if (off-s.start)%s.layout.Stride() != 0 {
		return fmt.Errorf("%w: offset %d, stride %d", ErrMisaligned, off, s.layout.Stride())
	}
	return nil
}

// Write copies the payload to the record beginning at the logical offset
// off, then publishes it by storing the end marker. The marker store is the
// release point: a reader that observes the marker also observes the
// payload bytes.
func (s *Segment) Write(off int64, payload []byte) error {
	if !s.writable {
		return ErrReadOnly
	}
	if len(payload) != s.layout.PayloadSize {
		return fmt.Errorf("%w: got %d, want %d", ErrPayloadSize, len(payload), s.layout.PayloadSize)
	}
	if err := s.checkOffset(off); err != nil {
		return err
	}

	pos := off - s.start
	copy(s.data[pos:pos+int64(s.layout.PayloadSize)], payload)
	s.setMarker(pos + int64(s.layout.PayloadSize))
	return nil
}

// TryRead reads the record at off into out. It returns false when the end
// marker is not yet visible through the mapping.
func (s *Segment) TryRead(off int64, out []byte) (bool, error) {
	if len(out) != s.layout.PayloadSize {
		return false, fmt.Errorf("%w: got %d, want %d", ErrPayloadSize, len(out), s.layout.PayloadSize)
	}
	if err := s.checkOffset(off); err != nil {
		return false, err
	}

	pos := off - s.start
	if s.markerAt(pos+int64(s.layout.PayloadSize)) != EndMarker {
		return false, nil
	}
	copy(out, s.data[pos:pos+int64(s.layout.PayloadSize)])
	return true, nil
}

// HasRecord reports whether the record at off has been published. Offsets
// outside the segment report false.
func (s *Segment) HasRecord(off int64) bool {
	if s.checkOffset(off) != nil {
		return false
	}
	return s.markerAt(off-s.start+int64(s.layout.PayloadSize)) == EndMarker
}

// Go has no single-byte atomics, so the marker is published through an
// atomic store of the aligned 4-byte word containing it. The producer is
// the sole writer of the mapping, so the plain read-back of the sibling
// bytes is safe, and the word stays inside the mapped page even when it
// straddles the file tail.
func (s *Segment) setMarker(pos int64) {
	word := pos &^ 3
	p := (*uint32)(unsafe.Add(unsafe.Pointer(&s.data[0]), word))
	var b [4]byte
	*(*uint32)(unsafe.Pointer(&b[0])) = *p
	b[pos-word] = EndMarker
	atomic.StoreUint32(p, *(*uint32)(unsafe.Pointer(&b[0])))
}

func (s *Segment) markerAt(pos int64) byte {
	word := pos &^ 3
	w := atomic.LoadUint32((*uint32)(unsafe.Add(unsafe.Pointer(&s.data[0]), word)))
	return (*[4]byte)(unsafe.Pointer(&w))[pos-word]
}

// Flush asks the kernel to persist the mapped pages covering the logical
// range [from, to). Best effort, like the rest of msync.
func (s *Segment) Flush(from, to int64) error {
	if from < s.start {
		from = s.start
	}
	if to > s.start+s.size {
		to = s.start + s.size
	}
	if from >= to {
		return nil
	}

	page := int64(os.Getpagesize())
	lo := (from - s.start) / page * page
	hi := to - s.start
	return s.data[lo:hi].Sync(gommap.MS_SYNC)
}

// FlushAll persists the whole mapping.
func (s *Segment) FlushAll() error {
	return s.data.Sync(gommap.MS_SYNC)
}

// Dispose flushes a writable segment, unmaps and closes. Idempotent.
func (s *Segment) Dispose() error {
	if s.disposed {
		return nil
	}
	s.disposed = true

	if s.writable {
		if err := s.data.Sync(gommap.MS_SYNC); err != nil {
			util.Error("flush on dispose failed for %s: %v", s.path, err)
		}
	}
	if err := s.data.UnsafeUnmap(); err != nil {
		return err
	}
	return s.file.Close()
}
