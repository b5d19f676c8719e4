package download

import (
	"errors"
	"fmt"
)

// DefaultChunkSize is the number of bytes read from the body per chunk.
const DefaultChunkSize = 1000 * 1024

var (
	// ErrDownloadFailed marks a local I/O failure while writing the archive.
	ErrDownloadFailed = errors.New("download failed")
	// ErrDownloadCancelled indicates the download was cancelled via context.
	ErrDownloadCancelled = errors.New("download cancelled")
)

// Error wraps a sentinel error with additional detail.
type Error struct {
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// failed builds an Error matching both ErrDownloadFailed and cause.
func failed(detail string, cause error) *Error {
	return &Error{
		Detail: detail,
		Err:    fmt.Errorf("%w: %w", ErrDownloadFailed, cause),
	}
}

// Progress holds the byte counters of one download. Total is 0 when the
// server did not announce a length; that means unknown, not empty.
type Progress struct {
	Total       int64
	Transferred int64
}

// Known reports whether the total size was announced.
func (p Progress) Known() bool {
	return p.Total > 0
}

// Percent returns the completed share in the range [0, 100], or 0 when
// the total is unknown. A body longer than its announced length stays
// at 100.
func (p Progress) Percent() float64 {
	if !p.Known() {
		return 0
	}

	return min(float64(p.Transferred)/float64(p.Total)*100, 100)
}
