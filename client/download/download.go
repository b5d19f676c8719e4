package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gocloud.dev/blob"
)

// Stream copies body into w in bounded chunks. For every chunk the
// progress counters advance and the reporter is told before the chunk is
// written. contentLength is the announced size; negative or zero values
// mean the size is unknown.
//
// Write failures return an [*Error] matching [ErrDownloadFailed]. Read
// failures come from the transport and are returned wrapped as is.
func Stream(ctx context.Context, body io.Reader, contentLength int64, w io.Writer, optFns ...Option) (_ Progress, err error) {
	opts := defaultOptions()
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return Progress{}, fmt.Errorf("applying option: %w", err)
		}
	}

	p := &Progress{Total: max(contentLength, 0)}

	opts.reporter.Begin(p)
	defer func() { opts.reporter.Close(err) }()

	body = &contextReader{ctx: ctx, r: body}

	if opts.chunkSize == 0 {
		data, err := io.ReadAll(body)
		if err != nil {
			return *p, readErr(err)
		}
		if len(data) == 0 {
			return *p, nil
		}
		return *p, p.put(w, data, opts.reporter)
	}

	buf := make([]byte, opts.chunkSize)
	for {
		n, err := fill(body, buf)
		if n > 0 {
			if werr := p.put(w, buf[:n], opts.reporter); werr != nil {
				return *p, werr
			}
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return *p, nil
		default:
			return *p, readErr(err)
		}
	}
}

// ToFile streams body into destPath, creating or truncating it. The file
// is closed on every return path. There is no temp file: a failure
// leaves the partial archive in place.
func ToFile(ctx context.Context, body io.Reader, contentLength int64, destPath string, logger *slog.Logger, optFns ...Option) (Progress, error) {
	if destPath == "" {
		return Progress{}, errors.New("destPath must not be empty")
	}

	file, err := os.Create(destPath)
	if err != nil {
		return Progress{}, failed("creating destination file", err)
	}

	closed := false
	defer func() {
		if closed {
			return
		}
		if err := file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			logger.Error("defer closing destination file", "path", destPath, "error", err)
		}
	}()

	p, err := Stream(ctx, body, contentLength, file, optFns...)
	if err != nil {
		return p, err
	}

	if err := file.Sync(); err != nil {
		return p, failed("syncing destination file", err)
	}

	closed = true
	if err := file.Close(); err != nil {
		return p, failed("closing destination file", err)
	}

	return p, nil
}

// ToBucket streams body into key of bucket. On failure the blob write is
// aborted so no partial object becomes visible.
func ToBucket(ctx context.Context, body io.Reader, contentLength int64, bucket *blob.Bucket, key string, logger *slog.Logger, optFns ...Option) (Progress, error) {
	if bucket == nil {
		return Progress{}, errors.New("bucket must not be nil")
	}
	if key == "" {
		return Progress{}, errors.New("key must not be empty")
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := bucket.NewWriter(wctx, key, nil)
	if err != nil {
		return Progress{}, failed("opening bucket writer", err)
	}

	p, err := Stream(ctx, body, contentLength, w, optFns...)
	if err != nil {
		cancel()
		if cerr := w.Close(); cerr != nil {
			logger.Debug("aborted bucket write", "key", key, "error", cerr)
		}
		return p, err
	}

	if err := w.Close(); err != nil {
		return p, failed("closing bucket writer", err)
	}

	return p, nil
}

// put accounts for chunk and writes it.
func (p *Progress) put(w io.Writer, chunk []byte, r Reporter) error {
	p.Transferred += int64(len(chunk))
	r.Update(len(chunk))

	if _, err := w.Write(chunk); err != nil {
		return failed(fmt.Sprintf("writing %d bytes at offset %d", len(chunk), p.Transferred-int64(len(chunk))), err)
	}

	return nil
}

// fill reads until buf is full or the reader returns an error. Unlike
// io.ReadFull it hands back the reader's own error, so a short final
// chunk ends with io.EOF while a dropped connection keeps its cause.
func fill(r io.Reader, buf []byte) (int, error) {
	var n int
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}

	return n, nil
}

func readErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrDownloadCancelled, err)
	}

	return fmt.Errorf("reading body: %w", err)
}

// contextReader fails reads once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}

	return cr.r.Read(p)
}
