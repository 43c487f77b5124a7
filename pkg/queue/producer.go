package queue

import (
	"github.com/kamikyo/MappedFileQueues/pkg/config"
	"github.com/kamikyo/MappedFileQueues/pkg/disk"
	"github.com/kamikyo/MappedFileQueues/pkg/metrics"
	"github.com/kamikyo/MappedFileQueues/pkg/offset"
	"github.com/kamikyo/MappedFileQueues/util"
)

// Producer appends fixed-size records in strict offset order. It owns the
// producer offset word, the writable tail segment, and the confirmed
// offset: the highest offset known to be stable on disk, advanced only
// after a successful flush.
type Producer struct {
	cfg       *config.Config
	layout    disk.Layout
	word      *offset.Word
	confirmed *offset.Word
	segment   *disk.Segment
	unflushed int
	closed    bool
}

func newProducer(cfg *config.Config) (*Producer, error) {
	word, err := offset.Open(cfg.ProducerOffsetPath())
	if err != nil {
		return nil, err
	}
	confirmed, err := offset.Open(cfg.ProducerConfirmedPath())
	if err != nil {
		word.Close()
		return nil, err
	}

	return &Producer{
		cfg:       cfg,
		layout:    disk.Layout{PayloadSize: cfg.PayloadSize, SegmentSize: cfg.SegmentSize},
		word:      word,
		confirmed: confirmed,
	}, nil
}

// Produce writes the payload at the current offset, publishes its end
// marker, and advances the offset word. The segment is flushed and the
// confirmed offset updated on rollover and every
// ProducerForceFlushIntervalCount records.
func (p *Producer) Produce(payload []byte) error {
	off := p.word.Value()

	if p.segment == nil {
		s, err := disk.CreateOrOpen(p.cfg.CommitLogDir(), p.layout, off)
		if err != nil {
			return err
		}
		p.segment = s
	}

	// A failed write must not advance the offset word past the record.
	if err := p.segment.Write(off, payload); err != nil {
		return err
	}

	newOff := p.word.Advance(p.layout.Stride())
	p.unflushed++
	metrics.RecordsProduced.Inc()
	metrics.ProducerOffset.Set(float64(newOff))

	if newOff > p.segment.LastWritableOffset() {
		return p.rollSegment(newOff)
	}
	if p.unflushed >= p.cfg.ProducerForceFlushIntervalCount {
		return p.flush(newOff)
	}
	return nil
}

// flush persists the segment mapping, then records the new stable high
// water mark in the confirmed offset word.
func (p *Producer) flush(confirmTo int64) error {
	if err := p.segment.FlushAll(); err != nil {
		return err
	}
	if err := p.confirmed.MoveTo(confirmTo, false); err != nil {
		return err
	}
	if err := p.confirmed.Sync(); err != nil {
		return err
	}
	metrics.ForcedFlushes.Inc()
	p.unflushed = 0
	return nil
}

func (p *Producer) rollSegment(confirmTo int64) error {
	if err := p.flush(confirmTo); err != nil {
		return err
	}
	if err := p.segment.Dispose(); err != nil {
		return err
	}
	p.segment = nil
	util.Debug("producer rolled past segment at offset %d", confirmTo)
	return nil
}

// Offset returns the next byte position to write.
func (p *Producer) Offset() int64 {
	return p.word.Value()
}

// ConfirmedOffset returns the highest offset flushed to stable storage.
func (p *Producer) ConfirmedOffset() int64 {
	return p.confirmed.Value()
}

// AdjustOffset repositions the producer. Only legal while no segment is
// open; recovery is the sole caller and may move backwards.
func (p *Producer) AdjustOffset(newOffset int64) error {
	if p.segment != nil {
		return ErrSegmentOpen
	}
	return p.word.MoveTo(newOffset, true)
}

// Close flushes the open segment, confirms everything written, and
// releases the offset words. Idempotent.
func (p *Producer) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	if p.segment != nil {
		if err := p.flush(p.word.Value()); err != nil {
			util.Error("producer close: flush failed: %v", err)
		}
		if err := p.segment.Dispose(); err != nil {
			util.Error("producer close: segment dispose failed: %v", err)
		}
		p.segment = nil
	}

	err := p.word.Close()
	if cerr := p.confirmed.Close(); err == nil {
		err = cerr
	}
	return err
}
