//go:build linux

// Package stats exposes Prometheus metrics for capture sessions.
package stats

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "v4l2",
		Subsystem: "capture",
		Name:      "frames_total",
		Help:      "Frames dequeued from the device",
	}, []string{"device"})

	bytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "v4l2",
		Subsystem: "capture",
		Name:      "bytes_total",
		Help:      "Payload bytes dequeued from the device",
	}, []string{"device"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "v4l2",
		Subsystem: "capture",
		Name:      "errors_total",
		Help:      "Dequeue attempts that returned an error",
	}, []string{"device"})

	sequenceGaps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "v4l2",
		Subsystem: "capture",
		Name:      "sequence_gaps_total",
		Help:      "Frames the driver dropped, detected from sequence numbers",
	}, []string{"device"})

	frameInterval = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "v4l2",
		Subsystem: "capture",
		Name:      "frame_interval_seconds",
		Help:      "Wall-clock time between consecutive frames",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"device"})
)

// Session records per-device capture metrics. One Session per open device.
type Session struct {
	frames   prometheus.Counter
	bytes    prometheus.Counter
	errors   prometheus.Counter
	gaps     prometheus.Counter
	interval prometheus.Observer

	lastSeq   uint32
	haveSeq   bool
	lastFrame time.Time
}

// NewSession creates the metric series for one device path.
func NewSession(device string) *Session {
	return &Session{
		frames:   framesTotal.WithLabelValues(device),
		bytes:    bytesTotal.WithLabelValues(device),
		errors:   errorsTotal.WithLabelValues(device),
		gaps:     sequenceGaps.WithLabelValues(device),
		interval: frameInterval.WithLabelValues(device),
	}
}

// Frame records one dequeued frame.
func (s *Session) Frame(sequence, bytesUsed uint32) {
	s.frames.Inc()
	s.bytes.Add(float64(bytesUsed))

	if s.haveSeq && sequence > s.lastSeq+1 {
		s.gaps.Add(float64(sequence - s.lastSeq - 1))
	}
	s.lastSeq = sequence
	s.haveSeq = true

	now := time.Now()
	if !s.lastFrame.IsZero() {
		s.interval.Observe(now.Sub(s.lastFrame).Seconds())
	}
	s.lastFrame = now
}

// Error records one failed dequeue attempt.
func (s *Session) Error() {
	s.errors.Inc()
}

// Handler returns the HTTP handler serving every registered metric.
func Handler() http.Handler {
	return promhttp.Handler()
}
