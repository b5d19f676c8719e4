package client_test

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/obplatform/obplatform-go/client"
	"github.com/obplatform/obplatform-go/client/query"
	"github.com/obplatform/obplatform-go/client/throttle"
)

type behavior struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// roundTripFunc adapts a function into an http.RoundTripper.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// serve starts ts for handler and returns its parsed URL.
func serve(t *testing.T, handler http.HandlerFunc) *url.URL {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("failed to parse test server URL: %v", err)
	}

	return u
}

func get(t *testing.T, c *client.Client, u *url.URL, expCode int, opts ...client.DoOption) error {
	t.Helper()

	req, err := c.Request(t.Context(), u, http.MethodGet)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	return c.Do(req, expCode, opts...)
}

func TestClient_WithUserAgent(t *testing.T) {
	const expectedUA = "obplatform-go/test"

	u := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != expectedUA {
			t.Errorf("expected User-Agent %q, got %q", expectedUA, ua)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	var transportCalled bool
	custom := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		transportCalled = true
		return http.DefaultTransport.RoundTrip(r)
	})

	// Decorators layer the same way whatever order the options come in.
	orders := map[string][]client.Option{
		"uaOnly":             {client.WithUserAgent(expectedUA)},
		"throttleFirst":      {client.WithThrottle(100, 10), client.WithUserAgent(expectedUA)},
		"transportFirst":     {client.WithTransport(custom), client.WithUserAgent(expectedUA), client.WithThrottle(100, 10)},
		"transportLast":      {client.WithUserAgent(expectedUA), client.WithThrottle(100, 10), client.WithTransport(custom)},
		"withRequestIDFirst": {client.WithRequestID(), client.WithTransport(custom), client.WithUserAgent(expectedUA)},
	}

	for name, opts := range orders {
		t.Run(name, func(t *testing.T) {
			transportCalled = false

			c, err := client.Build(opts...)
			if err != nil {
				t.Fatalf("failed to create client: %v", err)
			}

			if err := get(t, c, u, http.StatusOK); err != nil {
				t.Errorf("expected no error, got: %v", err)
			}

			usesCustom := strings.HasPrefix(name, "transport") || name == "withRequestIDFirst"
			if usesCustom && !transportCalled {
				t.Error("custom transport was not called")
			}
		})
	}
}

func TestClient_OptionValidation(t *testing.T) {
	testCases := map[string]struct {
		opt    client.Option
		expErr error
	}{
		"nilTransport":    {opt: client.WithTransport(nil)},
		"nilClient":       {opt: client.WithClient(nil)},
		"negativeTimeout": {opt: client.WithTimeout(-1)},
		"zeroRPS":         {opt: client.WithThrottle(0, 10), expErr: throttle.ErrMustNotBeZero},
		"zeroBurst":       {opt: client.WithThrottle(10, 0), expErr: throttle.ErrMustNotBeZero},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := client.Build(tc.opt)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tc.expErr != nil && !errors.Is(err, tc.expErr) {
				t.Errorf("exp err: %v, got: %v", tc.expErr, err)
			}
		})
	}

	if _, err := client.Build(client.WithTimeout(0)); err != nil {
		t.Errorf("zero timeout means no timeout, got: %v", err)
	}
}

func TestClient_WithClientAndWithTimeout(t *testing.T) {
	u := serve(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})

	// WithTimeout wins over the provided client's timeout in either order.
	orders := map[string]func(*http.Client) []client.Option{
		"clientFirst": func(hc *http.Client) []client.Option {
			return []client.Option{client.WithClient(hc), client.WithTimeout(5 * time.Second)}
		},
		"timeoutFirst": func(hc *http.Client) []client.Option {
			return []client.Option{client.WithTimeout(5 * time.Second), client.WithClient(hc)}
		},
	}

	for name, opts := range orders {
		t.Run(name, func(t *testing.T) {
			c, err := client.Build(opts(&http.Client{Timeout: time.Millisecond})...)
			if err != nil {
				t.Fatalf("failed to create client: %v", err)
			}

			if err := get(t, c, u, http.StatusOK); err != nil {
				t.Errorf("expected no error, got: %v", err)
			}
		})
	}
}

func TestClient_WithClientTransport(t *testing.T) {
	var providedCalled, explicitCalled bool
	provided := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		providedCalled = true
		return http.DefaultTransport.RoundTrip(r)
	})
	explicit := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		explicitCalled = true
		return http.DefaultTransport.RoundTrip(r)
	})

	u := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	c, err := client.Build(client.WithClient(&http.Client{Transport: provided}))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if err := get(t, c, u, http.StatusOK); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !providedCalled {
		t.Error("provided client's transport was not called")
	}

	providedCalled = false
	c, err = client.Build(client.WithClient(&http.Client{Transport: provided}), client.WithTransport(explicit))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if err := get(t, c, u, http.StatusOK); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if providedCalled || !explicitCalled {
		t.Errorf("WithTransport should replace the provided transport: provided=%v explicit=%v", providedCalled, explicitCalled)
	}
}

func TestClient_WithNoFollowRedirects(t *testing.T) {
	u := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/redirect" {
			http.Redirect(w, r, "/target", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	u.Path = "/redirect"

	for name, opts := range map[string][]client.Option{
		"alone":       {client.WithNoFollowRedirects()},
		"clientFirst": {client.WithClient(&http.Client{}), client.WithNoFollowRedirects()},
		"clientLast":  {client.WithNoFollowRedirects(), client.WithClient(&http.Client{})},
	} {
		t.Run(name, func(t *testing.T) {
			c, err := client.Build(opts...)
			if err != nil {
				t.Fatalf("failed to create client: %v", err)
			}

			if err := get(t, c, u, http.StatusFound); err != nil {
				t.Errorf("expected 302 response without following, got: %v", err)
			}
		})
	}
}

func TestClient_WithRequestID(t *testing.T) {
	var got []string
	u := serve(t, func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get(client.RequestIDHeader))
		w.WriteHeader(http.StatusOK)
	})

	c, err := client.Build(client.WithRequestID())
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	for range 2 {
		if err := get(t, c, u, http.StatusOK); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
	}

	req, err := client.Request(t.Context(), u, http.MethodGet,
		client.WithHeaders(map[string][]string{client.RequestIDHeader: {"caller-chosen"}}))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Do(req, http.StatusOK); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(got))
	}
	for _, id := range got[:2] {
		if _, err := uuid.Parse(id); err != nil {
			t.Errorf("request id %q is not a UUID: %v", id, err)
		}
	}
	if got[0] == got[1] {
		t.Error("expected a fresh id per request")
	}
	if got[2] != "caller-chosen" {
		t.Errorf("expected caller's id to be kept, got %q", got[2])
	}
	if req.Header.Get(client.RequestIDHeader) != "caller-chosen" {
		t.Error("caller's request was mutated")
	}
}

func TestClient_WithTracePropagation(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	var traceparent string
	u := serve(t, func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("traceparent")
		w.WriteHeader(http.StatusOK)
	})

	c, err := client.Build(client.WithTracePropagation())
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36},
		SpanID:     trace.SpanID{0x00, 0xf0, 0x67, 0xaa, 0x0b, 0xa9, 0x02, 0xb7},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(t.Context(), sc)

	req, err := client.Request(ctx, u, http.MethodGet)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Do(req, http.StatusOK); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	exp := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	if traceparent != exp {
		t.Errorf("traceparent = %q, want %q", traceparent, exp)
	}
}

func TestClient_Do(t *testing.T) {
	u := serve(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/behaviors":
			_ = json.NewEncoder(w).Encode([]behavior{{Key: "Appliance_Usage", Label: "Appliance Usage"}})
		case "/accepted":
			w.WriteHeader(http.StatusAccepted)
		case "/forbidden":
			http.Error(w, "no", http.StatusForbidden)
		case "/broken":
			_, _ = io.WriteString(w, "<html>")
		case "/number":
			_, _ = io.WriteString(w, `{"id":12345678901234567}`)
		default:
			http.NotFound(w, r)
		}
	})

	c, err := client.Build()
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	testCases := map[string]struct {
		path      string
		expStatus int
		dest      any
		jsonNumb  bool
		err       error
		check     func(t *testing.T, dest any)
	}{
		"decode": {
			path:      "/api/v1/behaviors",
			expStatus: http.StatusOK,
			dest:      &[]behavior{},
			check: func(t *testing.T, dest any) {
				exp := &[]behavior{{Key: "Appliance_Usage", Label: "Appliance Usage"}}
				if diff := cmp.Diff(exp, dest); diff != "" {
					t.Errorf("decoded mismatch (-want +got):\n%s", diff)
				}
			},
		},
		"expectedAccepted": {path: "/accepted", expStatus: http.StatusAccepted},
		"unexpectedStatus": {path: "/accepted", expStatus: http.StatusOK, err: client.ErrRequestFailed},
		"notFound":         {path: "/missing", expStatus: http.StatusOK, err: client.ErrRequestFailed},
		"authFailure":      {path: "/forbidden", expStatus: http.StatusOK, err: client.ErrAuthFailure},
		"malformed":        {path: "/broken", expStatus: http.StatusOK, dest: &[]behavior{}, err: client.ErrMalformedResponse},
		"withJSONNumb": {
			path:      "/number",
			expStatus: http.StatusOK,
			dest:      &map[string]any{},
			jsonNumb:  true,
			check: func(t *testing.T, dest any) {
				n, ok := (*dest.(*map[string]any))["id"].(json.Number)
				if !ok || n.String() != "12345678901234567" {
					t.Errorf("expected json.Number 12345678901234567, got %v", (*dest.(*map[string]any))["id"])
				}
			},
		},
		"withoutJSONNumb": {
			path:      "/number",
			expStatus: http.StatusOK,
			dest:      &map[string]any{},
			check: func(t *testing.T, dest any) {
				if _, ok := (*dest.(*map[string]any))["id"].(float64); !ok {
					t.Errorf("expected float64 without UseNumber")
				}
			},
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			var opts []client.DoOption
			if tc.dest != nil {
				opts = append(opts, client.WithDestination(&tc.dest))
			}
			if tc.jsonNumb {
				opts = append(opts, client.WithJSONNumb())
			}

			err := get(t, c, client.Join(u, tc.path), tc.expStatus, opts...)
			if !errors.Is(err, tc.err) {
				t.Fatalf("exp err: %v, got: %v", tc.err, err)
			}

			if tc.check != nil {
				tc.check(t, tc.dest)
			}
		})
	}
}

func TestClient_Do_ErrorBodyCapped(t *testing.T) {
	u := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, strings.Repeat("x", 64<<10))
	})

	c, err := client.Build()
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	err = get(t, c, u, http.StatusOK)

	var reqErr *client.RequestFailedError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected *RequestFailedError, got: %T: %v", err, err)
	}
	if reqErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", reqErr.StatusCode)
	}
	if len(reqErr.Body) != 4<<10 {
		t.Errorf("expected body capped at 4KB, got %d bytes", len(reqErr.Body))
	}
}

func TestClient_Stream(t *testing.T) {
	u := serve(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ready":
			_, _ = io.WriteString(w, "PK archive")
		case "/pending":
			w.WriteHeader(http.StatusAccepted)
		default:
			http.Error(w, "gone", http.StatusGone)
		}
	})

	c, err := client.Build()
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	testCases := map[string]struct {
		path      string
		expCodes  []int
		expStatus int
		expBody   string
		expErr    int
	}{
		"anySuccess":      {path: "/pending", expStatus: http.StatusAccepted},
		"listedCode":      {path: "/ready", expCodes: []int{200, 202}, expStatus: http.StatusOK, expBody: "PK archive"},
		"unlistedCode":    {path: "/pending", expCodes: []int{200}, expErr: http.StatusAccepted},
		"errorByDefault":  {path: "/other", expErr: http.StatusGone},
		"errorWhenListed": {path: "/other", expCodes: []int{200, 202}, expErr: http.StatusGone},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			req, err := c.Request(t.Context(), client.Join(u, tc.path), http.MethodGet)
			if err != nil {
				t.Fatal(err)
			}

			resp, err := c.Stream(req, tc.expCodes...)
			if tc.expErr != 0 {
				var reqErr *client.RequestFailedError
				if !errors.As(err, &reqErr) || reqErr.StatusCode != tc.expErr {
					t.Fatalf("expected RequestFailedError with %d, got: %v", tc.expErr, err)
				}
				if resp != nil {
					t.Error("expected nil response on failure")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			defer c.Discard(resp)

			if resp.StatusCode != tc.expStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.expStatus)
			}
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				t.Fatal(err)
			}
			if string(body) != tc.expBody {
				t.Errorf("body = %q, want %q", body, tc.expBody)
			}
		})
	}
}

func TestClient_Request(t *testing.T) {
	u := client.URL("https", "localhost", "/api/v1/exports", client.WithPort(8888))

	testCases := map[string]struct {
		method      string
		payload     any
		contentType string
		headers     map[string][]string
		expBody     string
	}{
		"basic": {method: http.MethodGet},
		"withPayload": {
			method:  http.MethodPost,
			payload: map[string][]string{"behaviors": {"Appliance_Usage"}, "studies": {"22"}},
			expBody: `{"behaviors":["Appliance_Usage"],"studies":["22"]}` + "\n",
		},
		"withCustomContentType": {method: http.MethodGet, contentType: "text/csv"},
		"withHeaders": {
			method: http.MethodPost,
			headers: map[string][]string{
				"Single-Val": {"value"},
				"Multi-Val":  {"value", "value2"},
			},
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			var opts []client.RequestOption
			if tc.payload != nil {
				opts = append(opts, client.WithPayload(tc.payload))
			}
			if tc.contentType != "" {
				opts = append(opts, client.WithContentType(tc.contentType))
			}
			if tc.headers != nil {
				opts = append(opts, client.WithHeaders(tc.headers))
			}

			req, err := client.Request(t.Context(), u, tc.method, opts...)
			if err != nil {
				t.Fatalf("create request exp nil err; got: %v", err)
			}

			body, err := io.ReadAll(req.Body)
			if err != nil {
				t.Fatal(err)
			}
			if string(body) != tc.expBody {
				t.Errorf("body = %q, want %q", body, tc.expBody)
			}

			expContentType := "application/json"
			if tc.contentType != "" {
				expContentType = tc.contentType
			}
			if got := req.Header.Get("Content-Type"); got != expContentType {
				t.Errorf("content type = %q, want %q", got, expContentType)
			}

			for k, v := range tc.headers {
				if diff := cmp.Diff(v, req.Header[k]); diff != "" {
					t.Errorf("header %s mismatch (-want +got):\n%s", k, diff)
				}
			}
		})
	}
}

func TestClient_URL(t *testing.T) {
	testCases := map[string]struct {
		port   int
		path   string
		params query.Params
		exp    string
	}{
		"basic": {
			port: 8888,
			path: "/",
			exp:  "https://localhost:8888/",
		},
		"withQuery": {
			path:   "/api/v1/behaviors",
			params: query.Flatten(query.New().Add("studies", "1", "2")),
			exp:    "https://localhost/api/v1/behaviors?studies%5B0%5D=1&studies%5B1%5D=2",
		},
		"keepsOrder": {
			path:   "/api/v1/studies",
			params: query.Params{{Key: "z", Value: 1}, {Key: "a", Value: "b c"}},
			exp:    "https://localhost/api/v1/studies?z=1&a=b+c",
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			opts := []client.URLOption{client.WithQuery(tc.params)}
			if tc.port != 0 {
				opts = append(opts, client.WithPort(tc.port))
			}

			if got := client.URL("https", "localhost", tc.path, opts...).String(); got != tc.exp {
				t.Errorf("exp generated url: %q, got: %q", tc.exp, got)
			}
		})
	}
}

func TestJoin(t *testing.T) {
	testCases := map[string]struct {
		base string
		path string
		exp  string
	}{
		"root":           {base: "https://api.ashraeobdatabase.com", path: "/api/v1/health", exp: "https://api.ashraeobdatabase.com/api/v1/health"},
		"trailingSlash":  {base: "https://api.ashraeobdatabase.com/", path: "/api/v1/health", exp: "https://api.ashraeobdatabase.com/api/v1/health"},
		"prefix":         {base: "http://localhost:8080/obdb/", path: "/api/v1/health", exp: "http://localhost:8080/obdb/api/v1/health"},
		"dropsBaseQuery": {base: "http://localhost/?debug=1", path: "/api/v1/health", exp: "http://localhost/api/v1/health"},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			base, err := url.Parse(tc.base)
			if err != nil {
				t.Fatal(err)
			}

			if got := client.Join(base, tc.path).String(); got != tc.exp {
				t.Errorf("Join = %q, want %q", got, tc.exp)
			}
		})
	}
}
