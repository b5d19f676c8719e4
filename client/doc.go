// Package client provides the HTTP plumbing shared by the research
// database client, built on [net/http].
//
// # Building a Client
//
// Use [Build] to create a [Client] with functional options:
//
//	c, err := client.Build(
//		client.WithTimeout(10 * time.Second),
//		client.WithUserAgent("myapp/1.0"),
//		client.WithRequestID(),
//	)
//
// # Making Requests
//
// Construct a [URL] and [Request], then execute with [Client.Do]:
//
//	u := client.URL("https", "api.ashraeobdatabase.com", "/api/v1/behaviors")
//	req, err := client.Request(ctx, u, http.MethodGet)
//	err = c.Do(req, http.StatusOK, client.WithDestination(&behaviors))
//
// Filter parameters built with the
// [github.com/obplatform/obplatform-go/client/query] package are attached
// in order with [WithQuery].
//
// # Streaming Responses
//
// [Client.Stream] returns the response with its body unread so large
// archives can be copied to disk without buffering:
//
//	resp, err := c.Stream(req, http.StatusOK, http.StatusAccepted)
//	defer c.Discard(resp)
//
// # Errors
//
// Statuses outside the accepted set produce a [RequestFailedError]
// matching [ErrRequestFailed]. Network failures are returned as the
// [*url.Error] produced by net/http, wrapped with context only.
package client
