// Package download streams a finished export archive from an HTTP
// response body to its destination in bounded chunks, reporting progress
// as it goes.
//
// # Single Download
//
// [ToFile] creates (or truncates) the destination and copies the body
// into it chunk by chunk:
//
//	p, err := download.ToFile(ctx, resp.Body, resp.ContentLength, "data.zip", logger,
//		download.WithChunkSize(download.DefaultChunkSize),
//		download.WithReporter(download.NewMeter(os.Stderr)),
//	)
//
// The file is written in place. A failed download leaves whatever was
// written so far behind; nothing is renamed or cleaned up.
//
// [ToBucket] does the same for a [gocloud.dev/blob] bucket, and [Stream]
// accepts any [io.Writer].
//
// # Progress
//
// A [Reporter] observes the shared [Progress] counters. [Nop] is used when
// no reporter is given; [NewLogReporter] emits slog records and
// [NewMeter] draws a single-line console meter.
package download
