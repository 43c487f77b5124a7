package metrics

import (
	"fmt"
	"net/http"

	"github.com/kamikyo/MappedFileQueues/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func init() {
	prometheus.MustRegister(RecordsProduced, RecordsConsumed, ProducerOffset, ConsumerOffset)
	prometheus.MustRegister(SegmentsCreated, SegmentsDeleted, ForcedFlushes, RecoveryRepairs)
}

// StartMetricsServer exposes the queue metrics on /metrics.
func StartMetricsServer(port int) {
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", port)
		util.Info("prometheus exporter listening on %s", addr)
		if err := http.ListenAndServe(addr, nil); err != nil {
			util.Error("failed to start metrics server: %v", err)
		}
	}()
}
