// Package metrics exposes Prometheus instrumentation for the image pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for processed requests
const (
	OutcomeSuccess       = "success"
	OutcomeInvalid       = "invalid"
	OutcomeDownloadError = "download_error"
	OutcomeUploadError   = "upload_error"
)

// Collector holds the pipeline metrics on its own registry
type Collector struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	downloadBytes    prometheus.Counter
	downloadDuration prometheus.Histogram
	uploadDuration   *prometheus.HistogramVec
	queueWait        prometheus.Histogram
	uploadsInFlight  prometheus.Gauge
}

// NewCollector registers all metrics under namespace
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "process_image_requests_total",
				Help:      "Image processing requests by outcome",
			},
			[]string{"outcome"},
		),
		downloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Bytes written by the image fetcher",
		}),
		downloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Image download duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		uploadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upload_duration_seconds",
				Help:      "Visual-search upload duration in seconds",
				Buckets:   []float64{1, 2.5, 5, 10, 15, 20, 30, 60, 120},
			},
			[]string{"status"},
		),
		queueWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_queue_wait_seconds",
			Help:      "Time spent waiting for the upload slot",
			Buckets:   prometheus.DefBuckets,
		}),
		uploadsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uploads_in_flight",
			Help:      "Uploads currently driving the browser",
		}),
	}

	reg.MustRegister(
		c.requestsTotal,
		c.downloadBytes,
		c.downloadDuration,
		c.uploadDuration,
		c.queueWait,
		c.uploadsInFlight,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return c
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordRequest counts one processed request
func (c *Collector) RecordRequest(outcome string) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(outcome).Inc()
}

// RecordDownload records a finished download
func (c *Collector) RecordDownload(bytes int64, d time.Duration) {
	if c == nil {
		return
	}
	c.downloadBytes.Add(float64(bytes))
	c.downloadDuration.Observe(d.Seconds())
}

// RecordUpload records a finished upload attempt
func (c *Collector) RecordUpload(d time.Duration, err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.uploadDuration.WithLabelValues(status).Observe(d.Seconds())
}

// RecordQueueWait records how long an upload waited for the browser
func (c *Collector) RecordQueueWait(d time.Duration) {
	if c == nil {
		return
	}
	c.queueWait.Observe(d.Seconds())
}

// UploadStarted and UploadFinished track the in-flight gauge
func (c *Collector) UploadStarted() {
	if c == nil {
		return
	}
	c.uploadsInFlight.Inc()
}

func (c *Collector) UploadFinished() {
	if c == nil {
		return
	}
	c.uploadsInFlight.Dec()
}
