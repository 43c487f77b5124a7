package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RecordsProduced = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mfq_records_produced_total",
		Help: "Total number of records appended by the producer",
	})

	RecordsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mfq_records_consumed_total",
		Help: "Total number of records committed by the consumer",
	})

	ProducerOffset = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mfq_producer_offset_bytes",
		Help: "Current producer offset in the logical stream",
	})

	ConsumerOffset = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mfq_consumer_offset_bytes",
		Help: "Current consumer offset in the logical stream",
	})

	SegmentsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mfq_segments_created_total",
		Help: "Total number of segment files created",
	})

	SegmentsDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mfq_segments_deleted_total",
		Help: "Total number of segment files deleted by retention",
	})

	ForcedFlushes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mfq_forced_flushes_total",
		Help: "Total number of producer flushes (rollover, interval and close)",
	})

	RecoveryRepairs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mfq_recovery_repairs_total",
		Help: "Total number of destructive repairs applied during crash recovery",
	})
)
