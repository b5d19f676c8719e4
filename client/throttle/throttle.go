package throttle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrMustNotBeZero = errors.New("must be greater than zero")
	ErrWaitingFailed = errors.New("limiter waiting failed")
	ErrContextEnded  = errors.New("throttle context ended")
)

// DefaultOperation names requests whose context carries no operation.
const DefaultOperation = "request"

// Config defines the throttler's
// Requests Per Second and Burst Rate
type Config struct {
	RPS   int `yaml:"rps"   validate:"gte=0"`
	Burst int `yaml:"burst" validate:"gte=0"`
}

// Enabled reports whether both limits are set.
func (c Config) Enabled() bool {
	return c.RPS > 0 && c.Burst > 0
}

type operationKey struct{}

// WithOperation tags ctx with the database operation its requests belong
// to, such as "export.poll". Throttle log records and wait reports carry
// the tag.
func WithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, operationKey{}, op)
}

// Operation returns the tag set by [WithOperation], or [DefaultOperation].
func Operation(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey{}).(string); ok && op != "" {
		return op
	}
	return DefaultOperation
}

// WaitFunc is told how long each request of op waited for a token.
type WaitFunc func(op string, waited time.Duration)

// throttle is an http.RoundTripper, using the time/rate token
// bucket limiter to restrict outbound calls.
type throttle struct {
	limiter *rate.Limiter
	cfg     Config
	next    http.RoundTripper
	logFn   func() *slog.Logger
	onWait  WaitFunc
}

// NewRoundTripper returns an http.RoundTripper that throttles outbound requests
// using a token bucket rate limiter. Export polling shares the bucket with
// every other call, so a tight limit stretches the effective poll interval.
//
// logFn lazily resolves the logger at request time, making option ordering
// irrelevant. A nil-returning logFn skips the token check. onWait may be
// nil.
func NewRoundTripper(cfg Config, logFn func() *slog.Logger, onWait WaitFunc, next http.RoundTripper) (http.RoundTripper, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("rps[%d] and burst[%d] %w", cfg.RPS, cfg.Burst, ErrMustNotBeZero)
	}

	t := &throttle{
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		cfg:     cfg,
		next:    next,
		logFn:   logFn,
		onWait:  onWait,
	}

	return t, nil
}

func (t *throttle) RoundTrip(r *http.Request) (*http.Response, error) {
	ctx := r.Context()
	op := Operation(ctx)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w early: %w", ErrContextEnded, err)
	}

	var waited time.Duration
	logger := t.logFn()
	if logger != nil && t.limiter.Tokens() < 1 {
		logger.Debug("throttle tokens exhausted", "operation", op, "rate", t.cfg.RPS, "burst", t.cfg.Burst, "method", r.Method, "path", r.URL.Path)

		defer func() {
			logger.Debug("throttle wait complete", "operation", op, "waited", waited.String(), "path", r.URL.Path)
		}()
	}

	start := time.Now()

	err := t.limiter.Wait(ctx)
	waited = time.Since(start)
	if t.onWait != nil {
		t.onWait(op, waited)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %w: %w", op, ErrWaitingFailed, err)
	}

	if err := ctx.Err(); err != nil { // Check context hasn't expired again.
		return nil, fmt.Errorf("%w post-wait: %w", ErrContextEnded, err)
	}

	return t.next.RoundTrip(r)
}
