package connector

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"gocloud.dev/blob"

	"github.com/obplatform/obplatform-go/client"
)

// Option is a functional option for [New].
type Option func(*options) error

type options struct {
	endpoint     *url.URL
	clientOpts   []client.Option
	logger       *slog.Logger
	tracer       trace.Tracer
	registerer   prometheus.Registerer
	pollInterval *time.Duration
}

// WithEndpoint points the connector at another deployment of the
// database, e.g. a local test server. [DefaultEndpoint] is used otherwise.
func WithEndpoint(endpoint string) Option {
	return func(opts *options) error {
		u, err := url.Parse(endpoint)
		if err != nil {
			return fmt.Errorf("parsing endpoint: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("endpoint %q must be an absolute URL", endpoint)
		}
		opts.endpoint = u
		return nil
	}
}

// WithClientOptions passes options through to the underlying
// [client.Build], e.g. [client.WithTimeout] or [client.WithUserAgent].
func WithClientOptions(clientOpts ...client.Option) Option {
	return func(opts *options) error {
		opts.clientOpts = append(opts.clientOpts, clientOpts...)
		return nil
	}
}

// WithThrottle limits outbound requests to rps per second with the given
// burst.
func WithThrottle(rps, burst int) Option {
	return func(opts *options) error {
		opts.clientOpts = append(opts.clientOpts, client.WithThrottle(rps, burst))
		return nil
	}
}

// WithLogger sets the logger for the connector and its client.
// slog.Default() is used otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		opts.logger = logger
		return nil
	}
}

// WithTracer records spans for downloads and their export jobs, and
// propagates the trace context to the server.
func WithTracer(tracer trace.Tracer) Option {
	return func(opts *options) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		opts.tracer = tracer
		opts.clientOpts = append(opts.clientOpts, client.WithTracePropagation())
		return nil
	}
}

// WithMetrics registers job and download collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(opts *options) error {
		if reg == nil {
			return errors.New("registerer must not be nil")
		}
		opts.registerer = reg
		return nil
	}
}

// WithPollInterval overrides the one second pause between export status
// requests.
func WithPollInterval(d time.Duration) Option {
	return func(opts *options) error {
		if d < 0 {
			return errors.New("poll interval must not be negative")
		}
		opts.pollInterval = &d
		return nil
	}
}

// DownloadOption is a functional option for [Connector.DownloadExport].
type DownloadOption func(*downloadOpts) error

type downloadOpts struct {
	progress  io.Writer
	chunkSize *int
	bucket    *blob.Bucket
}

// WithProgressBar draws a console progress meter to w, typically
// os.Stderr.
func WithProgressBar(w io.Writer) DownloadOption {
	return func(opts *downloadOpts) error {
		if w == nil {
			return errors.New("progress writer must not be nil")
		}
		opts.progress = w
		return nil
	}
}

// WithChunkSize sets how many bytes are read per chunk. Zero reads the
// whole archive in one go.
func WithChunkSize(n int) DownloadOption {
	return func(opts *downloadOpts) error {
		if n < 0 {
			return errors.New("chunk size must not be negative")
		}
		opts.chunkSize = &n
		return nil
	}
}

// WithBucket writes the archive to bucket, keyed by the filename, instead
// of the local filesystem.
func WithBucket(bucket *blob.Bucket) DownloadOption {
	return func(opts *downloadOpts) error {
		if bucket == nil {
			return errors.New("bucket must not be nil")
		}
		opts.bucket = bucket
		return nil
	}
}
