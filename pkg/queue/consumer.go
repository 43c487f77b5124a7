package queue

import (
	"os"
	"time"

	"github.com/kamikyo/MappedFileQueues/pkg/config"
	"github.com/kamikyo/MappedFileQueues/pkg/disk"
	"github.com/kamikyo/MappedFileQueues/pkg/metrics"
	"github.com/kamikyo/MappedFileQueues/pkg/offset"
	"github.com/kamikyo/MappedFileQueues/util"
)

// Consumer delivers records in order and persists its progress through the
// consumer offset word. It maps segments read-only and waits for records by
// spinning within a bounded budget, then sleeping.
type Consumer struct {
	cfg     *config.Config
	layout  disk.Layout
	word    *offset.Word
	segment *disk.Segment

	// producerWord is a lazy read-only view of the producer offset,
	// opened only by the stuck-consumer probe.
	producerWord *offset.Word
	stuckSamples int
	lastProducer int64

	closed bool
}

func newConsumer(cfg *config.Config) (*Consumer, error) {
	word, err := offset.Open(cfg.ConsumerOffsetPath())
	if err != nil {
		return nil, err
	}

	return &Consumer{
		cfg:    cfg,
		layout: disk.Layout{PayloadSize: cfg.PayloadSize, SegmentSize: cfg.SegmentSize},
		word:   word,
	}, nil
}

// Consume blocks until the record at the consumer offset is published, then
// copies its payload into out. The offset does not move until Commit,
// except when the stuck-consumer probe repositions it while waiting.
func (c *Consumer) Consume(out []byte) error {
	for {
		off := c.word.Value()

		repositioned, err := c.ensureSegment(off)
		if err != nil {
			return err
		}
		if repositioned {
			continue
		}

		// Spin phase: probe the marker within the configured budget.
		ok, err := spinUntil(c.cfg.ConsumerSpinWaitDuration, func() (bool, error) {
			return c.segment.TryRead(off, out)
		})
		if err != nil {
			return err
		}
		if ok {
			c.resetStuckState()
			return nil
		}

		// Sleep phase: retry at ConsumerRetryInterval until the record
		// shows up or the stuck probe repositions us.
		for {
			time.Sleep(c.cfg.ConsumerRetryInterval)
			ok, err := c.segment.TryRead(off, out)
			if err != nil {
				return err
			}
			if ok {
				c.resetStuckState()
				return nil
			}
			if c.sampleStuck(off) {
				break
			}
		}
	}
}

// ensureSegment opens the read-only segment covering off, sleeping between
// attempts while the producer has not created it yet. Returns true when the
// stuck probe repositioned the consumer instead.
func (c *Consumer) ensureSegment(off int64) (bool, error) {
	for c.segment == nil {
		s, err := disk.TryFind(c.cfg.CommitLogDir(), c.layout, off)
		if err == nil {
			c.segment = s
			return false, nil
		}
		if !os.IsNotExist(err) {
			return false, err
		}
		time.Sleep(c.cfg.ConsumerRetryInterval)
		if c.sampleStuck(off) {
			return true, nil
		}
	}
	return false, nil
}

// Commit publishes the consumer's progress past the record last returned by
// Consume. Committing without an open segment is a misuse error.
func (c *Consumer) Commit() error {
	if c.segment == nil {
		return ErrNoOpenSegment
	}

	newOff := c.word.Advance(c.layout.Stride())
	metrics.RecordsConsumed.Inc()
	metrics.ConsumerOffset.Set(float64(newOff))

	if newOff > c.segment.LastWritableOffset() {
		err := c.segment.Dispose()
		c.segment = nil
		return err
	}
	return nil
}

// Offset returns the current consumer offset.
func (c *Consumer) Offset() int64 {
	return c.word.Value()
}

// AdjustOffset repositions the consumer. Without force it fails while a
// segment is open; with force the segment is disposed first. Backward moves
// are reserved for recovery.
func (c *Consumer) AdjustOffset(newOffset int64, force bool) error {
	if c.segment != nil {
		if !force {
			return ErrSegmentOpen
		}
		if err := c.segment.Dispose(); err != nil {
			util.Error("consumer adjust: segment dispose failed: %v", err)
		}
		c.segment = nil
	}
	if err := c.word.MoveTo(newOffset, true); err != nil {
		return err
	}
	metrics.ConsumerOffset.Set(float64(newOffset))
	return nil
}

// NextMessageAvailable reports whether the record at the current offset is
// already published. Non-blocking; used by recovery as a liveness probe.
func (c *Consumer) NextMessageAvailable() bool {
	off := c.word.Value()
	if c.segment == nil {
		s, err := disk.TryFind(c.cfg.CommitLogDir(), c.layout, off)
		if err != nil {
			return false
		}
		c.segment = s
	}
	return c.segment.HasRecord(off)
}

// sampleStuck implements the unmatched-offset probe. After
// UnmatchedCheckCount sleep intervals at an unchanged offset it starts
// watching the producer offset word; if the producer advances while the
// consumer stays put, the consumer is positioned past a gap and repositions
// itself to the last observed producer offset. Disabled when
// UnmatchedCheckCount is zero.
func (c *Consumer) sampleStuck(off int64) bool {
	if c.cfg.UnmatchedCheckCount <= 0 {
		return false
	}

	c.stuckSamples++
	if c.stuckSamples < c.cfg.UnmatchedCheckCount {
		return false
	}

	p, ok := c.producerOffset()
	if !ok {
		return false
	}
	prev := c.lastProducer
	c.lastProducer = p

	if prev == 0 || p <= prev || p <= off {
		return false
	}

	util.Warn("consumer stuck at offset %d while producer advanced to %d; repositioning", off, p)
	if err := c.AdjustOffset(p, true); err != nil {
		util.Error("consumer reposition failed: %v", err)
		return false
	}
	c.resetStuckState()
	return true
}

// producerOffset reads the producer offset word through a read-only
// mapping. Failures are absorbed; the probe simply stays silent.
func (c *Consumer) producerOffset() (int64, bool) {
	if c.producerWord == nil {
		w, err := offset.OpenReadOnly(c.cfg.ProducerOffsetPath())
		if err != nil {
			return 0, false
		}
		c.producerWord = w
	}
	return c.producerWord.Value(), true
}

func (c *Consumer) resetStuckState() {
	c.stuckSamples = 0
	c.lastProducer = 0
}

// Close disposes the mapped segment and offset words. Idempotent.
func (c *Consumer) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	if c.segment != nil {
		if err := c.segment.Dispose(); err != nil {
			util.Error("consumer close: segment dispose failed: %v", err)
		}
		c.segment = nil
	}
	if c.producerWord != nil {
		if err := c.producerWord.Close(); err != nil {
			util.Error("consumer close: producer word close failed: %v", err)
		}
		c.producerWord = nil
	}
	return c.word.Close()
}
