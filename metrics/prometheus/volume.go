// Package prometheus implements metrics.VolumeMetrics on client_golang.
package prometheus

import (
	"sync"
	"time"

	"github.com/brettbedarf/sdfat/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const mountLabel = "mount_point"

// volumeCollectors are shared by every volume of a registry; each volume
// curries them with its mount point.
type volumeCollectors struct {
	mounts      *prometheus.CounterVec
	unmounts    *prometheus.CounterVec
	operations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	bytes       *prometheus.CounterVec
	openHandles *prometheus.GaugeVec
	totalBytes  *prometheus.GaugeVec
	freeBytes   *prometheus.GaugeVec
}

var (
	globalCollectors     *volumeCollectors
	globalCollectorsOnce sync.Once
)

func newVolumeCollectors(reg prometheus.Registerer) *volumeCollectors {
	f := promauto.With(reg)
	return &volumeCollectors{
		mounts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sdfat_mounts_total",
				Help: "Mount attempts by native status",
			},
			[]string{mountLabel, "status"},
		),
		unmounts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sdfat_unmounts_total",
				Help: "Cards released",
			},
			[]string{mountLabel},
		),
		operations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sdfat_operations_total",
				Help: "Volume, file and directory calls by operation and outcome",
			},
			[]string{mountLabel, "op", "status"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "sdfat_operation_duration_seconds",
				Help: "Duration of native calls in seconds",
				Buckets: []float64{
					0.00001, // 10µs
					0.0001,  // 100µs
					0.001,   // 1ms
					0.01,    // 10ms
					0.1,     // 100ms
					1,       // 1s
				},
			},
			[]string{mountLabel, "op"},
		),
		bytes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sdfat_bytes_total",
				Help: "Bytes moved through file handles",
			},
			[]string{mountLabel, "direction"},
		),
		openHandles: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sdfat_open_handles",
				Help: "Live file and directory handles",
			},
			[]string{mountLabel},
		),
		totalBytes: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sdfat_total_bytes",
				Help: "Usable capacity from the last space query",
			},
			[]string{mountLabel},
		),
		freeBytes: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sdfat_free_bytes",
				Help: "Free space from the last space query",
			},
			[]string{mountLabel},
		),
	}
}

// volumeMetrics is the Prometheus implementation of metrics.VolumeMetrics.
type volumeMetrics struct {
	c          *volumeCollectors
	mountPoint string
}

// NewVolumeMetrics returns metrics for the volume at mountPoint, or a no-op
// implementation when metrics are disabled.
func NewVolumeMetrics(mountPoint string) metrics.VolumeMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopVolumeMetrics()
	}
	globalCollectorsOnce.Do(func() {
		globalCollectors = newVolumeCollectors(metrics.GetRegistry())
	})
	return &volumeMetrics{c: globalCollectors, mountPoint: mountPoint}
}

func (m *volumeMetrics) RecordMount(status string) {
	m.c.mounts.WithLabelValues(m.mountPoint, status).Inc()
}

func (m *volumeMetrics) RecordUnmount() {
	m.c.unmounts.WithLabelValues(m.mountPoint).Inc()
	m.c.openHandles.WithLabelValues(m.mountPoint).Set(0)
}

func (m *volumeMetrics) RecordOperation(op string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.c.operations.WithLabelValues(m.mountPoint, op, status).Inc()
	m.c.duration.WithLabelValues(m.mountPoint, op).Observe(duration.Seconds())
}

func (m *volumeMetrics) RecordBytes(direction string, n int) {
	if n <= 0 {
		return
	}
	m.c.bytes.WithLabelValues(m.mountPoint, direction).Add(float64(n))
}

func (m *volumeMetrics) SetOpenHandles(n int) {
	m.c.openHandles.WithLabelValues(m.mountPoint).Set(float64(n))
}

func (m *volumeMetrics) SetSpace(totalBytes, freeBytes uint64) {
	m.c.totalBytes.WithLabelValues(m.mountPoint).Set(float64(totalBytes))
	m.c.freeBytes.WithLabelValues(m.mountPoint).Set(float64(freeBytes))
}

var _ metrics.VolumeMetrics = (*volumeMetrics)(nil)
