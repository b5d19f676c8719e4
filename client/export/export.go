package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/obplatform/obplatform-go/client"
	"github.com/obplatform/obplatform-go/client/throttle"
)

// Path is where export jobs are submitted, relative to the endpoint.
const Path = "/api/v1/exports"

// Operation names used for spans and throttle tags.
const (
	OperationSubmit = "export.submit"
	OperationPoll   = "export.poll"
)

// Client submits export jobs and polls them until their archive is ready.
type Client struct {
	c        *client.Client
	endpoint *url.URL
	interval time.Duration
	logger   *slog.Logger
	tracer   trace.Tracer
	observer Observer
}

// New creates an export Client talking to endpoint through c.
func New(c *client.Client, endpoint *url.URL, optFns ...Option) (*Client, error) {
	if c == nil {
		return nil, errors.New("client must not be nil")
	}
	if endpoint == nil || endpoint.Host == "" {
		return nil, errors.New("endpoint must be an absolute URL")
	}

	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying export option: %w", err)
		}
	}

	ec := &Client{
		c:        c,
		endpoint: endpoint,
		interval: DefaultInterval,
		logger:   c.Logger(),
		tracer:   noop.NewTracerProvider().Tracer("no-op tracer"),
		observer: nopObserver{},
	}

	if opts.interval != nil {
		ec.interval = *opts.interval
	}
	if opts.logger != nil {
		ec.logger = opts.logger
	}
	if opts.tracer != nil {
		ec.tracer = opts.tracer
	}
	if opts.observer != nil {
		ec.observer = opts.observer
	}

	return ec, nil
}

// Submit asks the server to start assembling an archive for the given
// behaviors and studies. Any status of 400 or above fails with a
// [client.RequestFailedError]; a success without a Location header fails
// with [client.ErrMalformedResponse].
func (c *Client) Submit(ctx context.Context, behaviorIDs, studyIDs []string) (*Job, error) {
	ctx = throttle.WithOperation(ctx, OperationSubmit)
	ctx, span := c.tracer.Start(ctx, OperationSubmit, trace.WithAttributes(
		attribute.Int("export.behaviors", len(behaviorIDs)),
		attribute.Int("export.studies", len(studyIDs)),
	))
	defer span.End()

	payload := Request{
		Behaviors: nonNil(behaviorIDs),
		Studies:   nonNil(studyIDs),
	}

	req, err := client.Request(ctx, client.Join(c.endpoint, Path), http.MethodPost, client.WithPayload(payload))
	if err != nil {
		return nil, c.fail(span, fmt.Errorf("building submit request: %w", err))
	}

	resp, err := c.c.Stream(req)
	if err != nil {
		return nil, c.fail(span, fmt.Errorf("submitting export job: %w", err))
	}
	defer c.c.Discard(resp)

	location := resp.Header.Get("Location")
	if location == "" {
		return nil, c.fail(span, fmt.Errorf("%w: no Location header in %d response to export submit", client.ErrMalformedResponse, resp.StatusCode))
	}

	job := &Job{Location: location, State: Pending}
	span.SetAttributes(attribute.String("export.location", location))

	c.logger.Info("export job submitted", "location", location, "behaviors", len(behaviorIDs), "studies", len(studyIDs))
	c.observer.Submitted(job)

	return job, nil
}

// Poll requests the job's location until the server reports the archive
// as ready. Each 202 response is drained and followed by a fixed pause;
// a 200 response is returned with its body unread, and the caller must
// close it. Any other status fails with a [client.RequestFailedError].
//
// Poll never gives up on its own. The pause ends early when ctx is done,
// in which case ctx.Err() is returned.
func (c *Client) Poll(ctx context.Context, job *Job) (*http.Response, error) {
	if job == nil || job.Location == "" {
		return nil, errors.New("job must have a location")
	}

	u, err := c.locationURL(job.Location)
	if err != nil {
		return nil, err
	}

	ctx = throttle.WithOperation(ctx, OperationPoll)
	ctx, span := c.tracer.Start(ctx, OperationPoll, trace.WithAttributes(
		attribute.String("export.location", job.Location),
	))
	defer span.End()

	start := time.Now()
	c.logger.Info("waiting for server to finish", "location", job.Location)

	for attempt := 1; ; attempt++ {
		req, err := client.Request(ctx, u, http.MethodGet)
		if err != nil {
			return nil, c.fail(span, fmt.Errorf("building poll request: %w", err))
		}

		resp, err := c.c.Stream(req, http.StatusOK, http.StatusAccepted)
		if err != nil {
			return nil, c.fail(span, fmt.Errorf("polling export job: %w", err))
		}
		c.observer.Polled(job, resp.StatusCode)

		if resp.StatusCode == http.StatusOK {
			job.State = Ready
			waited := time.Since(start)

			span.SetAttributes(attribute.Int("export.polls", attempt))
			c.logger.Info("export job ready", "location", job.Location, "polls", attempt, "waited", waited.Round(time.Millisecond))
			c.observer.Finished(job, waited)

			return resp, nil
		}

		c.c.Discard(resp)
		c.logger.Info("polling status", "location", job.Location, "attempt", attempt)

		if err := pause(ctx, c.interval); err != nil {
			return nil, c.fail(span, fmt.Errorf("polling export job: %w", err))
		}
	}
}

// locationURL resolves the Location header value. Absolute URLs are used
// as is; absolute paths are appended to the endpoint like every other
// API path.
func (c *Client) locationURL(location string) (*url.URL, error) {
	ref, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid job location %q: %w", client.ErrMalformedResponse, location, err)
	}

	if ref.IsAbs() {
		return ref, nil
	}

	if strings.HasPrefix(ref.Path, "/") {
		u := client.Join(c.endpoint, ref.Path)
		u.RawQuery = ref.RawQuery
		return u, nil
	}

	return client.Join(c.endpoint, Path+"/").ResolveReference(ref), nil
}

func (c *Client) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// pause blocks for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
