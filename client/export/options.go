package export

import (
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Observer is told about job lifecycle events. Methods are called
// synchronously from the polling call.
type Observer interface {
	Submitted(job *Job)
	Polled(job *Job, statusCode int)
	Finished(job *Job, waited time.Duration)
}

// Option is a functional option for [New].
type Option func(*options) error

type options struct {
	interval *time.Duration
	logger   *slog.Logger
	tracer   trace.Tracer
	observer Observer
}

// WithInterval overrides the pause between status requests. Zero polls
// back to back, which is only useful in tests.
func WithInterval(d time.Duration) Option {
	return func(opts *options) error {
		if d < 0 {
			return errors.New("interval must not be negative")
		}
		opts.interval = &d
		return nil
	}
}

// WithLogger sets the logger for job events. The client's logger is used
// otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *options) error {
		opts.logger = logger
		return nil
	}
}

// WithTracer records a span per submit and per poll loop.
func WithTracer(tracer trace.Tracer) Option {
	return func(opts *options) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		opts.tracer = tracer
		return nil
	}
}

// WithObserver attaches an Observer, e.g. for metrics.
func WithObserver(o Observer) Option {
	return func(opts *options) error {
		if o == nil {
			return errors.New("observer must not be nil")
		}
		opts.observer = o
		return nil
	}
}

type nopObserver struct{}

func (nopObserver) Submitted(*Job)               {}
func (nopObserver) Polled(*Job, int)             {}
func (nopObserver) Finished(*Job, time.Duration) {}
