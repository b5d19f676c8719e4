// Package metrics exposes Prometheus collectors for export jobs and
// archive downloads.
package metrics

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/obplatform/obplatform-go/client/download"
	"github.com/obplatform/obplatform-go/client/export"
)

const namespace = "obplatform"

// Download results recorded by [Recorder.DownloadDone].
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Recorder holds the collectors. It satisfies [export.Observer] and hands
// out a [download.Reporter] counting streamed bytes.
type Recorder struct {
	submitted prometheus.Counter
	polls     *prometheus.CounterVec
	wait      prometheus.Histogram
	bytes     prometheus.Counter
	downloads *prometheus.CounterVec
	throttled *prometheus.HistogramVec
}

// New creates a Recorder and registers its collectors with reg.
func New(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		return nil, errors.New("registerer must not be nil")
	}

	r := &Recorder{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "jobs_submitted_total",
			Help:      "Export jobs accepted by the server.",
		}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "polls_total",
			Help:      "Status requests made while waiting for export jobs, by response code.",
		}, []string{"code"}),
		wait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "wait_seconds",
			Help:      "Time between the first status request and the archive being ready.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "bytes_total",
			Help:      "Archive bytes streamed to their destination.",
		}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "total",
			Help:      "Finished export downloads, by result.",
		}, []string{"result"}),
		throttled: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "throttle",
			Name:      "wait_seconds",
			Help:      "Time requests spent waiting for a rate limit token, by operation.",
			Buckets:   []float64{0, .01, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"operation"}),
	}

	for _, c := range []prometheus.Collector{r.submitted, r.polls, r.wait, r.bytes, r.downloads, r.throttled} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering collector: %w", err)
		}
	}

	return r, nil
}

// Submitted implements [export.Observer].
func (r *Recorder) Submitted(*export.Job) {
	r.submitted.Inc()
}

// Polled implements [export.Observer].
func (r *Recorder) Polled(_ *export.Job, statusCode int) {
	r.polls.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Finished implements [export.Observer].
func (r *Recorder) Finished(_ *export.Job, waited time.Duration) {
	r.wait.Observe(waited.Seconds())
}

// ThrottleWaited records a rate limit wait. It satisfies
// [throttle.WaitFunc].
func (r *Recorder) ThrottleWaited(op string, waited time.Duration) {
	r.throttled.WithLabelValues(op).Observe(waited.Seconds())
}

// DownloadDone counts a finished download under result.
func (r *Recorder) DownloadDone(err error) {
	result := ResultOK
	if err != nil {
		result = ResultFailed
	}
	r.downloads.WithLabelValues(result).Inc()
}

// Reporter returns a download reporter adding every chunk to the byte
// counter.
func (r *Recorder) Reporter() download.Reporter {
	return byteCounter{c: r.bytes}
}

type byteCounter struct {
	c prometheus.Counter
}

func (byteCounter) Begin(*download.Progress) {}
func (bc byteCounter) Update(n int)          { bc.c.Add(float64(n)) }
func (byteCounter) Close(error)              {}
