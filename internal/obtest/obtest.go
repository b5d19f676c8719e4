package obtest

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
)

// Behavior is a behavior record as served by the fake. Studies lists the
// study ids it appears in and is not part of the payload.
type Behavior struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Disabled bool     `json:"disabled"`
	Studies  []string `json:"-"`
}

// Request is a request seen by the fake.
type Request struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// Export is a job submission seen by the fake.
type Export struct {
	ID        string
	Behaviors []string
	Studies   []string
}

// Server is the fake database. The embedded httptest.Server is started by
// [New] and closed during test cleanup.
type Server struct {
	*httptest.Server

	behaviors     []Behavior
	studies       []map[string]any
	health        string
	pending       int
	archive       []byte
	hideLength    bool
	locationStyle string
	overrides     map[string]int

	mu       sync.Mutex
	requests []Request
	jobs     map[string]int
	exports  []Export
}

// Option configures a Server.
type Option func(*Server)

// WithBehaviors replaces the served behaviors.
func WithBehaviors(bs ...Behavior) Option {
	return func(s *Server) { s.behaviors = bs }
}

// WithStudies replaces the served study records.
func WithStudies(studies ...map[string]any) Option {
	return func(s *Server) { s.studies = studies }
}

// WithHealth sets the status value of the health probe.
func WithHealth(status string) Option {
	return func(s *Server) { s.health = status }
}

// WithPending makes every job answer n status requests with 202 before
// its archive is ready.
func WithPending(n int) Option {
	return func(s *Server) { s.pending = n }
}

// WithArchive serves b as the archive of every job.
func WithArchive(b []byte) Option {
	return func(s *Server) { s.archive = b }
}

// WithoutContentLength streams archives chunked, without a Content-Length.
func WithoutContentLength() Option {
	return func(s *Server) { s.hideLength = true }
}

// WithAbsoluteLocation hands out job locations as absolute URLs.
func WithAbsoluteLocation() Option {
	return func(s *Server) { s.locationStyle = "absolute" }
}

// WithStatus answers every request matching route, e.g.
// "POST /api/v1/exports", with code and a short error body.
func WithStatus(route string, code int) Option {
	return func(s *Server) { s.overrides[route] = code }
}

// New starts a fake server with a small default data set.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()

	s := &Server{
		behaviors: []Behavior{
			{Key: "Appliance_Usage", Label: "Appliance Usage", Studies: []string{"2", "22"}},
			{Key: "Occupancy_Measurement", Label: "Occupant Presence", Studies: []string{"2", "11", "22"}},
			{Key: "Window_Status", Label: "Window Status", Studies: []string{"11"}},
			{Key: "Lighting_Adjustment", Label: "Lighting Adjustment", Disabled: true},
		},
		studies: []map[string]any{
			{"id": 2, "title": "Office occupancy", "country": "US", "building_type": "Office"},
			{"id": 11, "title": "Residential windows", "country": "DK", "building_type": "Residential"},
			{"id": 22, "title": "Classroom appliances", "country": "US", "building_type": "Educational"},
		},
		health:    "ok",
		overrides: make(map[string]int),
		jobs:      make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.archive == nil {
		s.archive = Archive(t, map[string]string{
			"Appliance_Usage_Study22.csv": "Date_Time,Appliance,Status\n2018-01-01 00:00,Kettle,1\n",
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/behaviors", s.handleBehaviors)
	mux.HandleFunc("GET /api/v1/studies", s.handleStudies)
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.HandleFunc("POST /api/v1/exports", s.handleSubmit)
	mux.HandleFunc("GET /api/v1/exports/{id}", s.handleStatus)
	mux.HandleFunc("GET /jobs/{id}", s.handleStatus)

	s.Server = httptest.NewServer(s.record(mux))
	t.Cleanup(s.Close)

	return s
}

// Requests returns a copy of every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// Count returns how many requests matched method and path.
func (s *Server) Count(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for _, r := range s.requests {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Exports returns the accepted job submissions.
func (s *Server) Exports() []Export {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.exports)
}

// Bytes is the archive served for ready jobs.
func (s *Server) Bytes() []byte {
	return s.archive
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   body,
		})
		s.mu.Unlock()

		route := r.Method + " " + r.URL.Path
		if code, ok := s.overrides[route]; ok {
			http.Error(w, fmt.Sprintf(`{"error":%q}`, http.StatusText(code)), code)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleBehaviors(w http.ResponseWriter, r *http.Request) {
	studies := indexed(r.URL.Query(), "studies")
	if len(studies) == 0 {
		writeJSON(w, s.behaviors)
		return
	}

	out := []Behavior{}
	for _, b := range s.behaviors {
		if slices.ContainsFunc(b.Studies, func(id string) bool { return slices.Contains(studies, id) }) {
			out = append(out, b)
		}
	}
	writeJSON(w, out)
}

// handleStudies keeps studies whose fields match any value of a scalar
// group, e.g. countries[0]=US matches "country": "US". Groups of objects
// and groups naming no study field are accepted but ignored.
func (s *Server) handleStudies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	out := []map[string]any{}
	for _, study := range s.studies {
		if matches(study, q) {
			out = append(out, study)
		}
	}
	writeJSON(w, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": s.health})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Behaviors []string `json:"behaviors"`
		Studies   []string `json:"studies"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}
	for _, key := range req.Behaviors {
		if !slices.ContainsFunc(s.behaviors, func(b Behavior) bool { return b.Key == key }) {
			http.Error(w, fmt.Sprintf(`{"error":"unknown behavior %s"}`, key), http.StatusBadRequest)
			return
		}
	}

	id := uuid.NewString()

	s.mu.Lock()
	s.jobs[id] = s.pending
	s.exports = append(s.exports, Export{ID: id, Behaviors: req.Behaviors, Studies: req.Studies})
	s.mu.Unlock()

	location := "/api/v1/exports/" + id
	if s.locationStyle == "absolute" {
		location = s.URL + "/jobs/" + id
	}

	w.Header().Set("Location", location)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	remaining, ok := s.jobs[id]
	if ok && remaining > 0 {
		s.jobs[id] = remaining - 1
	}
	s.mu.Unlock()

	switch {
	case !ok:
		http.Error(w, `{"error":"job not found"}`, http.StatusNotFound)
		return
	case remaining > 0:
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	if s.hideLength {
		// Flushing before the body forces a chunked response.
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	} else {
		w.Header().Set("Content-Length", strconv.Itoa(len(s.archive)))
	}
	_, _ = w.Write(s.archive)
}

// Archive builds a zip archive holding files, keyed by name.
func Archive(t testing.TB, files map[string]string) []byte {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	slices.Sort(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		f, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create archive entry: %v", err)
		}
		if _, err := io.WriteString(f, files[name]); err != nil {
			t.Fatalf("write archive entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}

	return buf.Bytes()
}

// indexed collects the values of name[0], name[1] ... in index order.
func indexed(q url.Values, name string) []string {
	var out []string
	for i := 0; ; i++ {
		v, ok := q[fmt.Sprintf("%s[%d]", name, i)]
		if !ok || len(v) == 0 {
			return out
		}
		out = append(out, v[0])
	}
}

func matches(study map[string]any, q url.Values) bool {
	groups := make(map[string]bool)
	for key := range q {
		if name, _, ok := strings.Cut(key, "["); ok {
			groups[name] = true
		}
	}

	for name := range groups {
		have, ok := study[singular(name)]
		if !ok {
			continue
		}
		values := indexed(q, name)
		if len(values) > 0 && !slices.Contains(values, fmt.Sprint(have)) {
			return false
		}
	}
	return true
}

func singular(name string) string {
	if base, ok := strings.CutSuffix(name, "ies"); ok {
		return base + "y"
	}
	return strings.TrimSuffix(name, "s")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
