package queue

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kamikyo/MappedFileQueues/pkg/config"
	"github.com/kamikyo/MappedFileQueues/pkg/disk"
	"github.com/kamikyo/MappedFileQueues/pkg/metrics"
	"github.com/kamikyo/MappedFileQueues/util"
)

// retentionJoinTimeout bounds the wait for the retention worker on Close.
const retentionJoinTimeout = 5 * time.Second

// Queue is the top-level object over one store directory. It validates the
// configuration, runs crash recovery on open, and hands out the singleton
// producer and consumer.
type Queue struct {
	cfg      *config.Config
	observer func(error)

	mu       sync.Mutex
	producer *Producer
	consumer *Consumer
	cleaner  *disk.Cleaner
	closed   bool
}

// Open validates the configuration, prepares the store directory, and runs
// the recovery pass when the store already existed.
func Open(cfg *config.Config) (*Queue, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	util.SetLevel(cfg.LogLevel)

	preexisted := false
	info, err := os.Stat(cfg.StorePath)
	switch {
	case err == nil && !info.IsDir():
		return nil, fmt.Errorf("store path %s names an existing file", cfg.StorePath)
	case err == nil:
		preexisted = true
	case !os.IsNotExist(err):
		return nil, err
	}

	if err := os.MkdirAll(cfg.CommitLogDir(), 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.ProducerOffsetPath()), 0o755); err != nil {
		return nil, err
	}

	q := &Queue{cfg: cfg, observer: cfg.ExceptionObserver}

	if preexisted {
		if err := q.recover(); err != nil {
			return nil, err
		}
	}

	if cfg.EnableAutoCleanup {
		layout := disk.Layout{PayloadSize: cfg.PayloadSize, SegmentSize: cfg.SegmentSize}
		q.cleaner = disk.NewCleaner(cfg.CommitLogDir(), layout, cfg.ConsumerOffsetPath(),
			cfg.CleanupInterval, cfg.MinRetentionSegments)
		q.cleaner.Start()
	}

	if cfg.EnableExporter {
		metrics.StartMetricsServer(cfg.ExporterPort)
	}

	return q, nil
}

// Producer returns the singleton producer, creating it on first access.
func (q *Queue) Producer() (*Producer, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}
	if q.producer == nil {
		p, err := newProducer(q.cfg)
		if err != nil {
			return nil, err
		}
		q.producer = p
	}
	return q.producer, nil
}

// Consumer returns the singleton consumer, creating it on first access.
func (q *Queue) Consumer() (*Consumer, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}
	if q.consumer == nil {
		c, err := newConsumer(q.cfg)
		if err != nil {
			return nil, err
		}
		q.consumer = c
	}
	return q.consumer, nil
}

func (q *Queue) notify(err error) {
	if q.observer != nil {
		q.observer(err)
		return
	}
	util.Warn("%v", err)
}

// Close disposes the producer, the consumer, and the retention worker.
// Idempotent.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true

	var firstErr error
	if q.producer != nil {
		if err := q.producer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		q.producer = nil
	}
	if q.consumer != nil {
		if err := q.consumer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		q.consumer = nil
	}
	if q.cleaner != nil {
		q.cleaner.Close(retentionJoinTimeout)
		q.cleaner = nil
	}
	return firstErr
}
