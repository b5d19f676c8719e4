package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/obplatform/obplatform-go/client"
	"github.com/obplatform/obplatform-go/client/download"
	"github.com/obplatform/obplatform-go/client/export"
	"github.com/obplatform/obplatform-go/client/query"
	"github.com/obplatform/obplatform-go/client/throttle"
	"github.com/obplatform/obplatform-go/internal/metrics"
	"github.com/obplatform/obplatform-go/internal/validate"
)

// Connector is a client of the occupant behavior database. It is safe for
// concurrent use.
type Connector struct {
	c        *client.Client
	endpoint *url.URL
	exports  *export.Client
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *metrics.Recorder
}

// New creates a Connector from the given options.
func New(optFns ...Option) (*Connector, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying connector option: %w", err)
		}
	}

	conn := &Connector{
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer("no-op tracer"),
	}

	if opts.endpoint != nil {
		conn.endpoint = opts.endpoint
	} else {
		u, err := url.Parse(DefaultEndpoint)
		if err != nil {
			return nil, fmt.Errorf("parsing default endpoint: %w", err)
		}
		conn.endpoint = u
	}
	if opts.logger != nil {
		conn.logger = opts.logger
	}
	if opts.tracer != nil {
		conn.tracer = opts.tracer
	}

	clientOpts := append([]client.Option{client.WithLogger(conn.logger)}, opts.clientOpts...)
	exportOpts := []export.Option{
		export.WithLogger(conn.logger),
		export.WithTracer(conn.tracer),
	}
	if opts.pollInterval != nil {
		exportOpts = append(exportOpts, export.WithInterval(*opts.pollInterval))
	}
	if opts.registerer != nil {
		rec, err := metrics.New(opts.registerer)
		if err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
		conn.metrics = rec
		exportOpts = append(exportOpts, export.WithObserver(rec))
		clientOpts = append(clientOpts, client.WithThrottleObserver(rec.ThrottleWaited))
	}

	c, err := client.Build(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("building client: %w", err)
	}
	conn.c = c

	exports, err := export.New(c, conn.endpoint, exportOpts...)
	if err != nil {
		return nil, fmt.Errorf("building export client: %w", err)
	}
	conn.exports = exports

	return conn, nil
}

// Endpoint returns the base URL the connector talks to.
func (conn *Connector) Endpoint() string {
	return conn.endpoint.String()
}

// ListBehaviors returns every behavior in the database.
func (conn *Connector) ListBehaviors(ctx context.Context) ([]Behavior, error) {
	return conn.behaviors(ctx, nil)
}

// ListBehaviorsInStudies returns the behaviors present in any of the given
// studies. Ids may be strings or numbers.
func (conn *Connector) ListBehaviorsInStudies(ctx context.Context, studyIDs ...any) ([]Behavior, error) {
	ids, err := StringIDs(studyIDs...)
	if err != nil {
		return nil, fmt.Errorf("study ids: %w", err)
	}

	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}

	return conn.behaviors(ctx, query.Flatten(query.New().Add("studies", values...)))
}

func (conn *Connector) behaviors(ctx context.Context, params query.Params) ([]Behavior, error) {
	u := client.Join(conn.endpoint, behaviorsPath, client.WithQuery(params))

	var behaviors []Behavior
	if err := getJSON(throttle.WithOperation(ctx, "behaviors"), conn.c, u, &behaviors); err != nil {
		return nil, fmt.Errorf("listing behaviors: %w", err)
	}

	return behaviors, nil
}

// ListStudies returns the studies matching filter. An empty filter lists
// every study.
//
//	f := query.New().
//		Add("countries", "US", "DK").
//		Add("buildings", query.Fields("building_type", "Educational"))
//	studies, err := conn.ListStudies(ctx, f)
func (conn *Connector) ListStudies(ctx context.Context, filter query.Filter) ([]Study, error) {
	u := client.Join(conn.endpoint, studiesPath, client.WithQuery(query.Flatten(filter)))

	var studies []Study
	if err := getJSON(throttle.WithOperation(ctx, "studies"), conn.c, u, &studies); err != nil {
		return nil, fmt.Errorf("listing studies: %w", err)
	}

	return studies, nil
}

// CheckHealth reports whether the server says it is healthy. A well formed
// answer with any status other than "ok" yields false and no error;
// failed requests and unreadable answers yield false and the error.
func (conn *Connector) CheckHealth(ctx context.Context) (bool, error) {
	u := client.Join(conn.endpoint, healthPath)

	var status healthStatus
	if err := getJSON(throttle.WithOperation(ctx, "health"), conn.c, u, &status); err != nil {
		return false, fmt.Errorf("checking health: %w", err)
	}
	if status.Status == nil {
		return false, fmt.Errorf("checking health: %w: no status field", client.ErrMalformedResponse)
	}

	return *status.Status == "ok", nil
}

// getJSON decodes the 200 response of a GET on u into dest.
func getJSON[T any](ctx context.Context, c *client.Client, u *url.URL, dest *T) error {
	req, err := c.Request(ctx, u, http.MethodGet)
	if err != nil {
		return err
	}

	return c.Do(req, http.StatusOK, client.WithDestination(dest))
}

// DownloadExport fetches the data of the given behaviors and studies as a
// ZIP archive and writes it to filename. Ids may be strings or numbers.
//
// The call blocks while the server assembles the archive, polling once per
// second for as long as it takes unless ctx ends first. The file is
// truncated before writing, and a failed download may leave a partial
// file behind.
func (conn *Connector) DownloadExport(ctx context.Context, filename string, behaviorIDs, studyIDs []any, optFns ...DownloadOption) (err error) {
	var opts downloadOpts
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return fmt.Errorf("applying download option: %w", err)
		}
	}
	if filename == "" {
		return errors.New("filename must not be empty")
	}

	behaviors, err := StringIDs(behaviorIDs...)
	if err != nil {
		return fmt.Errorf("behavior ids: %w", err)
	}
	studies, err := StringIDs(studyIDs...)
	if err != nil {
		return fmt.Errorf("study ids: %w", err)
	}
	if err := validate.Struct(export.Request{Behaviors: behaviors, Studies: studies}); err != nil {
		return fmt.Errorf("export request: %w", err)
	}

	ctx, span := conn.tracer.Start(ctx, "download", trace.WithAttributes(
		attribute.String("download.filename", filename),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if conn.metrics != nil {
			conn.metrics.DownloadDone(err)
		}
		span.End()
	}()

	job, err := conn.exports.Submit(ctx, behaviors, studies)
	if err != nil {
		return err
	}

	resp, err := conn.exports.Poll(ctx, job)
	if err != nil {
		return err
	}
	defer func() {
		if err == nil {
			conn.c.Discard(resp)
			return
		}
		// Close without draining: the rest of the archive is not read.
		if cerr := resp.Body.Close(); cerr != nil {
			conn.logger.Error("closing archive body", "error", cerr)
		}
	}()

	reporters := []download.Reporter{download.NewLogReporter(conn.logger)}
	if opts.progress != nil {
		reporters = append(reporters, download.NewMeter(opts.progress))
	}
	if conn.metrics != nil {
		reporters = append(reporters, conn.metrics.Reporter())
	}

	dlOpts := []download.Option{download.WithReporter(download.Reporters(reporters...))}
	if opts.chunkSize != nil {
		dlOpts = append(dlOpts, download.WithChunkSize(*opts.chunkSize))
	}

	conn.logger.Info("download started", "filename", filename, "content_length", resp.ContentLength)

	var progress download.Progress
	if opts.bucket != nil {
		progress, err = download.ToBucket(ctx, resp.Body, resp.ContentLength, opts.bucket, filename, conn.logger, dlOpts...)
	} else {
		progress, err = download.ToFile(ctx, resp.Body, resp.ContentLength, filename, conn.logger, dlOpts...)
	}
	if err != nil {
		return err
	}

	span.SetAttributes(attribute.Int64("download.bytes", progress.Transferred))
	conn.logger.Info("export saved", "filename", filename, "bytes", progress.Transferred)

	return nil
}
