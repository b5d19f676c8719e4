// Package throttle provides an [http.RoundTripper] that rate-limits
// calls to the research database using a token-bucket algorithm from
// [golang.org/x/time/rate].
//
// # Usage
//
// Wrap an existing transport with [NewRoundTripper]:
//
//	rt, err := throttle.NewRoundTripper(
//		throttle.Config{RPS: 2, Burst: 4},
//		func() *slog.Logger { return slog.Default() },
//		nil,
//		http.DefaultTransport,
//	)
//	httpClient := &http.Client{Transport: rt}
//
// When the rate limit is exceeded, outbound requests block until a
// token becomes available or the request context is cancelled. This
// includes the status requests issued while an export job is polled.
//
// Callers tag contexts with [WithOperation] so that log records and the
// optional [WaitFunc] can tell export polls from listings.
package throttle
