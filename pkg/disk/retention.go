package disk

import (
	"encoding/binary"
	"os"
	"sync"
	"time"

	"github.com/kamikyo/MappedFileQueues/pkg/metrics"
	"github.com/kamikyo/MappedFileQueues/util"
	"golang.org/x/exp/mmap"
)

// Cleaner periodically deletes segment files whose entire offset range lies
// below the consumer offset, always retaining the newest minRetain files.
// It observes the consumer offset through a read-only mapping of the offset
// word file, never through the consumer itself.
type Cleaner struct {
	dir        string
	layout     Layout
	offsetPath string
	interval   time.Duration
	minRetain  int

	done      chan struct{}
	closeOnce sync.Once
	shutdown  sync.WaitGroup
}

func NewCleaner(dir string, layout Layout, consumerOffsetPath string, interval time.Duration, minRetain int) *Cleaner {
	return &Cleaner{
		dir:        dir,
		layout:     layout,
		offsetPath: consumerOffsetPath,
		interval:   interval,
		minRetain:  minRetain,
		done:       make(chan struct{}),
	}
}

// Start launches the cleanup loop on a dedicated goroutine.
func (c *Cleaner) Start() {
	c.shutdown.Add(1)
	go func() {
		defer c.shutdown.Done()
		c.cleanupLoop()
	}()
}

func (c *Cleaner) cleanupLoop() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.RunOnce(); err != nil {
				util.Error("retention pass failed: %v", err)
			}
		case <-c.done:
			return
		}
	}
}

// RunOnce executes a single retention pass. Exported for tests and for
// callers that want an immediate pass.
func (c *Cleaner) RunOnce() error {
	consumed, ok := c.readConsumerOffset()
	if !ok || consumed == 0 {
		util.Debug("retention: consumer offset unavailable, skipping pass")
		return nil
	}

	starts, err := ListSegments(c.dir)
	if err != nil {
		return err
	}
	if len(starts) <= c.minRetain {
		return nil
	}

	a := c.layout.AdjustedSize()

	// The newest minRetain segments are kept unconditionally; older ones go
	// only once their whole range is below the consumer offset.
	for _, start := range starts[:len(starts)-c.minRetain] {
		end := start + a - 1
		if end >= consumed {
			continue
		}
		path := SegmentPath(c.dir, start)
		if err := os.Remove(path); err != nil {
			util.Error("retention: failed to delete %s: %v", path, err)
			continue
		}
		metrics.SegmentsDeleted.Inc()
		util.Debug("retention: deleted segment %s (end %d < consumed %d)", path, end, consumed)
	}
	return nil
}

// readConsumerOffset maps the consumer offset word read-only and decodes
// it. Byte order matches the host order the atomic store used; supported
// builds are little-endian.
func (c *Cleaner) readConsumerOffset() (int64, bool) {
	r, err := mmap.Open(c.offsetPath)
	if err != nil {
		return 0, false
	}
	defer r.Close()

	var buf [8]byte
	if _, err := r.ReadAt(buf[:], 0); err != nil {
		return 0, false
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), true
}

// Close stops the loop and waits for it with a bounded timeout. Idempotent.
func (c *Cleaner) Close(timeout time.Duration) {
	c.closeOnce.Do(func() {
		close(c.done)

		stopped := make(chan struct{})
		go func() {
			c.shutdown.Wait()
			close(stopped)
		}()

		select {
		case <-stopped:
		case <-time.After(timeout):
			util.Warn("retention worker did not stop within %s", timeout)
		}
	})
}
