package download

import (
	"errors"
)

// Option defines optional settings for streaming a download.
//
// WithChunkSize bounds each read from the body. Zero reads the whole body
// in one go; the default is [DefaultChunkSize].
//
// WithReporter attaches a [Reporter] that observes the transfer.
type Option func(*options) error

type options struct {
	chunkSize int
	reporter  Reporter
}

func defaultOptions() options {
	return options{
		chunkSize: DefaultChunkSize,
		reporter:  Nop{},
	}
}

func WithChunkSize(n int) Option {
	return func(opts *options) error {
		if n < 0 {
			return errors.New("chunk size must not be negative")
		}
		opts.chunkSize = n
		return nil
	}
}

func WithReporter(r Reporter) Option {
	return func(opts *options) error {
		if r == nil {
			return errors.New("reporter must not be nil")
		}
		opts.reporter = r
		return nil
	}
}
