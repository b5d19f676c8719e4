package main

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/obplatform/obplatform-go/client/query"
	"github.com/obplatform/obplatform-go/internal/obtest"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	code := run(t.Context(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Usage(t *testing.T) {
	testCases := map[string]struct {
		args    []string
		expCode int
	}{
		"noArgs":      {args: nil, expCode: ExitInvalidArgs},
		"unknown":     {args: []string{"upload"}, expCode: ExitInvalidArgs},
		"help":        {args: []string{"help"}, expCode: ExitSuccess},
		"commandHelp": {args: []string{"download", "-h"}, expCode: ExitSuccess},
		"badFlag":     {args: []string{"health", "-nope"}, expCode: ExitInvalidArgs},
		"extraArgs":   {args: []string{"health", "stray"}, expCode: ExitInvalidArgs},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tc.args...)
			if code != tc.expCode {
				t.Errorf("exit code = %d, want %d\n%s", code, tc.expCode, stderr)
			}
		})
	}
}

func TestRun_Health(t *testing.T) {
	testCases := map[string]struct {
		opts    []obtest.Option
		expCode int
		expOut  string
	}{
		"healthy":   {expCode: ExitSuccess, expOut: "is healthy"},
		"unhealthy": {opts: []obtest.Option{obtest.WithHealth("maintenance")}, expCode: ExitUnhealthy, expOut: "is unhealthy"},
		"failing": {
			opts:    []obtest.Option{obtest.WithStatus("GET /api/v1/health", http.StatusBadGateway)},
			expCode: ExitRequestFailed,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			srv := obtest.New(t, tc.opts...)

			code, stdout, stderr := runCLI(t, "health", "-endpoint", srv.URL, "-log-level", "error")
			if code != tc.expCode {
				t.Fatalf("exit code = %d, want %d\n%s", code, tc.expCode, stderr)
			}
			if !strings.Contains(stdout, tc.expOut) {
				t.Errorf("stdout = %q, want it to contain %q", stdout, tc.expOut)
			}
		})
	}
}

func TestRun_Behaviors(t *testing.T) {
	srv := obtest.New(t)

	code, stdout, stderr := runCLI(t, "behaviors", "-endpoint", srv.URL, "-studies", "11", "-json")
	if code != ExitSuccess {
		t.Fatalf("exit code = %d\n%s", code, stderr)
	}

	var got []struct{ Key string }
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, stdout)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 behaviors in study 11, got %+v", got)
	}

	code, stdout, _ = runCLI(t, "behaviors", "-endpoint", srv.URL)
	if code != ExitSuccess {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.HasPrefix(stdout, "KEY") || !strings.Contains(stdout, "Lighting_Adjustment") {
		t.Errorf("unexpected table:\n%s", stdout)
	}
}

func TestRun_Studies(t *testing.T) {
	srv := obtest.New(t)

	code, stdout, stderr := runCLI(t, "studies", "-endpoint", srv.URL,
		"-filter", "countries=US",
		"-object", "buildings=building_type:Educational",
		"-filter", "countries=DK",
	)
	if code != ExitSuccess {
		t.Fatalf("exit code = %d\n%s", code, stderr)
	}

	var got []map[string]any
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected all 3 studies for US and DK, got %d", len(got))
	}

	exp := "countries%5B0%5D=US&countries%5B1%5D=DK&buildings%5B0%5D%5Bbuilding_type%5D=Educational"
	if q := srv.Requests()[0].Query; q != exp {
		t.Errorf("query = %q, want %q", q, exp)
	}
}

func TestRun_StudiesBadFilter(t *testing.T) {
	for _, arg := range []string{"-filter=novalue", "-object=buildings=type", "-object=buildings="} {
		code, _, _ := runCLI(t, "studies", arg)
		if code != ExitInvalidArgs {
			t.Errorf("%s: exit code = %d, want %d", arg, code, ExitInvalidArgs)
		}
	}
}

func TestRun_Download(t *testing.T) {
	srv := obtest.New(t, obtest.WithPending(1))
	dest := filepath.Join(t.TempDir(), "data.zip")

	code, stdout, stderr := runCLI(t, "download",
		"-endpoint", srv.URL,
		"-behaviors", "Appliance_Usage,Occupancy_Measurement",
		"-studies", "22, 11, 2",
		"-output", dest,
		"-chunk-size", "1KB",
		"-poll-interval", "1ms",
		"-progress",
	)
	if code != ExitSuccess {
		t.Fatalf("exit code = %d\n%s", code, stderr)
	}
	if !strings.Contains(stdout, "Saved "+dest) {
		t.Errorf("stdout = %q", stdout)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, srv.Bytes()) {
		t.Error("saved archive differs from served archive")
	}
	if diff := cmp.Diff([]string{"22", "11", "2"}, srv.Exports()[0].Studies); diff != "" {
		t.Errorf("studies mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_DownloadBucket(t *testing.T) {
	srv := obtest.New(t)
	dir := t.TempDir()

	code, _, stderr := runCLI(t, "download",
		"-endpoint", srv.URL,
		"-behaviors", "Appliance_Usage",
		"-studies", "22",
		"-output", "data.zip",
		"-bucket", "file://"+dir,
	)
	if code != ExitSuccess {
		t.Fatalf("exit code = %d\n%s", code, stderr)
	}

	got, err := os.ReadFile(filepath.Join(dir, "data.zip"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, srv.Bytes()) {
		t.Error("bucket object differs from served archive")
	}
}

func TestRun_DownloadFailures(t *testing.T) {
	testCases := map[string]struct {
		opts    []obtest.Option
		args    []string
		expCode int
	}{
		"missingFlags": {
			args:    []string{"-behaviors", "Appliance_Usage"},
			expCode: ExitInvalidArgs,
		},
		"badChunkSize": {
			args:    []string{"-behaviors", "Appliance_Usage", "-studies", "1", "-chunk-size", "huge"},
			expCode: ExitInvalidArgs,
		},
		"rejected": {
			args:    []string{"-behaviors", "Nope", "-studies", "1"},
			expCode: ExitRequestFailed,
		},
		"timeout": {
			opts:    []obtest.Option{obtest.WithPending(math.MaxInt)},
			args:    []string{"-behaviors", "Appliance_Usage", "-studies", "1", "-timeout", "50ms", "-poll-interval", "5ms"},
			expCode: ExitCancelled,
		},
		"badBucket": {
			args:    []string{"-behaviors", "Appliance_Usage", "-studies", "1", "-bucket", "nosuchscheme://x"},
			expCode: ExitStorageError,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			srv := obtest.New(t, tc.opts...)
			dest := filepath.Join(t.TempDir(), "data.zip")

			args := append([]string{"download", "-endpoint", srv.URL, "-output", dest, "-log-level", "error"}, tc.args...)
			code, _, stderr := runCLI(t, args...)
			if code != tc.expCode {
				t.Errorf("exit code = %d, want %d\n%s", code, tc.expCode, stderr)
			}
		})
	}
}

func TestRun_ConfigFile(t *testing.T) {
	srv := obtest.New(t)

	configPath := filepath.Join(t.TempDir(), "obplatform.yaml")
	content := "endpoint: " + srv.URL + "\nlog_level: error\nthrottle:\n  rps: 50\n  burst: 5\n"
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	code, _, stderr := runCLI(t, "health", "-config", configPath)
	if code != ExitSuccess {
		t.Fatalf("exit code = %d\n%s", code, stderr)
	}

	t.Setenv("OBPLATFORM_ENDPOINT", "not a url")
	code, _, _ = runCLI(t, "health", "-config", configPath)
	if code != ExitInvalidArgs {
		t.Errorf("expected invalid environment to fail validation, got exit code %d", code)
	}
}

func TestFilterBuilder(t *testing.T) {
	var fb filterBuilder
	for _, err := range []error{
		fb.addScalars("countries=US"),
		fb.addObject("buildings=building_type:Office"),
		fb.addScalars("countries=DK,SE"),
	} {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	exp := query.New().
		Add("countries", "US", "DK", "SE").
		Add("buildings", query.Fields("building_type", "Office"))
	if diff := cmp.Diff(exp, fb.filter); diff != "" {
		t.Errorf("filter mismatch (-want +got):\n%s", diff)
	}
}
