package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/obplatform/obplatform-go/client/download"
	"github.com/obplatform/obplatform-go/connector"
	"github.com/obplatform/obplatform-go/internal/config"
)

func runDownload(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var cf commonFlags
	cf.register(fs)
	behaviors := fs.String("behaviors", "", "Comma-separated behavior keys (required)")
	studies := fs.String("studies", "", "Comma-separated study ids (required)")
	output := fs.String("output", "", "Archive file path, or object key with -bucket (required)")
	chunkSize := fs.String("chunk-size", "", "Bytes read per chunk, e.g. 1000KB or 4MB")
	progress := fs.Bool("progress", false, "Draw a progress meter on stderr")
	bucket := fs.String("bucket", "", "Write to this bucket URL (file://, mem://, s3://, gs://) instead of the local disk")
	interval := fs.Duration("poll-interval", 0, "Pause between export status requests")

	fs.Usage = func() {
		fmt.Fprintln(stderr, `Usage: obplatform download [options]

Ask the server to export the given behaviors of the given studies, wait
for the archive to be assembled and save it. Without -timeout the command
waits for as long as the server needs.

Options:`)
		fs.PrintDefaults()
	}

	if code, ok := parse(fs, args); !ok {
		return code
	}

	if *behaviors == "" || *studies == "" || *output == "" {
		fmt.Fprintln(stderr, "Error: -behaviors, -studies, and -output are required")
		fs.Usage()
		return ExitInvalidArgs
	}

	var size int64 = -1
	if *chunkSize != "" {
		n, err := download.ParseBytes(*chunkSize)
		if err != nil {
			fmt.Fprintf(stderr, "Error: -chunk-size: %v\n", err)
			return ExitInvalidArgs
		}
		size = n
	}

	cfg, err := cf.load(config.Config{
		Progress:     *progress,
		Bucket:       *bucket,
		PollInterval: *interval,
	})
	if err != nil {
		return exitCode(stderr, err)
	}
	// Applied after Merge, which would drop an explicit zero.
	if size >= 0 {
		cfg.ChunkSize = size
	}

	conn, err := newConnector(cfg, stderr)
	if err != nil {
		return exitCode(stderr, err)
	}

	ctx, cancel := withTimeout(ctx, cfg)
	defer cancel()

	opts := []connector.DownloadOption{connector.WithChunkSize(int(cfg.ChunkSize))}
	if cfg.Progress {
		opts = append(opts, connector.WithProgressBar(stderr))
	}

	if cfg.Bucket != "" {
		bkt, err := blob.OpenBucket(ctx, cfg.Bucket)
		if err != nil {
			fmt.Fprintf(stderr, "Error: opening bucket: %v\n", err)
			return ExitStorageError
		}
		defer bkt.Close()
		opts = append(opts, connector.WithBucket(bkt))
	}

	if err := conn.DownloadExport(ctx, *output, splitList(*behaviors), splitList(*studies), opts...); err != nil {
		if cfg.Bucket == "" {
			if _, statErr := os.Stat(*output); statErr == nil {
				fmt.Fprintf(stderr, "Partial archive left at %s\n", *output)
			}
		}
		return exitCode(stderr, err)
	}

	fmt.Fprintf(stdout, "Saved %s\n", *output)
	return ExitSuccess
}
