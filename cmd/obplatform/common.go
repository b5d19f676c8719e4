package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/obplatform/obplatform-go/client"
	"github.com/obplatform/obplatform-go/client/download"
	"github.com/obplatform/obplatform-go/connector"
	"github.com/obplatform/obplatform-go/internal/config"
	"github.com/obplatform/obplatform-go/internal/validate"
)

// commonFlags are accepted by every command.
type commonFlags struct {
	configPath string
	endpoint   string
	logLevel   string
	rps        int
	burst      int
	timeout    time.Duration
}

func (cf *commonFlags) register(set *flag.FlagSet) {
	set.StringVar(&cf.configPath, "config", "", "YAML config file")
	set.StringVar(&cf.endpoint, "endpoint", "", "Database API base URL (default "+connector.DefaultEndpoint+")")
	set.StringVar(&cf.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	set.IntVar(&cf.rps, "rps", 0, "Limit requests per second (needs -burst)")
	set.IntVar(&cf.burst, "burst", 0, "Burst size of the request limit")
	set.DurationVar(&cf.timeout, "timeout", 0, "Give up after this long, including time spent waiting for exports (0 waits forever)")
}

// load layers defaults, the config file, the environment and override.
func (cf *commonFlags) load(override config.Config) (config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return config.Config{}, fmt.Errorf("loading .env: %w", err)
	}

	cfg := config.Default()
	if cf.configPath != "" {
		fileCfg, err := config.LoadFromFile(cf.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = fileCfg
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}

	override.Endpoint = cf.endpoint
	override.LogLevel = strings.ToLower(cf.logLevel)
	override.Throttle.RPS = cf.rps
	override.Throttle.Burst = cf.burst
	override.Timeout = cf.timeout
	cfg = cfg.Merge(override)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	return cfg, nil
}

func newConnector(cfg config.Config, stderr io.Writer) (*connector.Connector, error) {
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.Level()}))

	opts := []connector.Option{
		connector.WithEndpoint(cfg.Endpoint),
		connector.WithLogger(logger),
		connector.WithPollInterval(cfg.PollInterval),
		connector.WithClientOptions(client.WithRequestID()),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, connector.WithClientOptions(client.WithUserAgent(cfg.UserAgent)))
	}
	if cfg.Throttle.Enabled() {
		opts = append(opts, connector.WithThrottle(cfg.Throttle.RPS, cfg.Throttle.Burst))
	}

	return connector.New(opts...)
}

// withTimeout bounds ctx by cfg.Timeout when one is set.
func withTimeout(ctx context.Context, cfg config.Config) (context.Context, context.CancelFunc) {
	if cfg.Timeout > 0 {
		return context.WithTimeout(ctx, cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// exitCode reports err on stderr and maps it to an exit code.
func exitCode(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "Error: %v\n", err)

	var reqErr *client.RequestFailedError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ExitCancelled
	case errors.As(err, &reqErr):
		return ExitRequestFailed
	case errors.Is(err, download.ErrDownloadFailed):
		return ExitStorageError
	case errors.Is(err, connector.ErrInvalidID), validate.GetFieldErrors(err) != nil:
		return ExitInvalidArgs
	default:
		return ExitGeneralError
	}
}

// splitList turns "a, b,,c" into [a b c].
func splitList(s string) []any {
	var out []any
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parse parses args into fs. It returns ok=false with the exit code to use
// when the command should stop, including after -h.
func parse(fs *flag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess, false
		}
		return ExitInvalidArgs, false
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(fs.Output(), "Error: unexpected arguments: %v\n", fs.Args())
		return ExitInvalidArgs, false
	}
	return ExitSuccess, true
}
