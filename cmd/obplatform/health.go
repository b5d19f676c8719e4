package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/obplatform/obplatform-go/internal/config"
)

func runHealth(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var cf commonFlags
	cf.register(fs)

	fs.Usage = func() {
		fmt.Fprintln(stderr, `Usage: obplatform health [options]

Check the database API. Exits 0 when healthy and 4 when the server
answers with any other status.

Options:`)
		fs.PrintDefaults()
	}

	if code, ok := parse(fs, args); !ok {
		return code
	}

	cfg, err := cf.load(config.Config{})
	if err != nil {
		return exitCode(stderr, err)
	}

	conn, err := newConnector(cfg, stderr)
	if err != nil {
		return exitCode(stderr, err)
	}

	ctx, cancel := withTimeout(ctx, cfg)
	defer cancel()

	healthy, err := conn.CheckHealth(ctx)
	if err != nil {
		return exitCode(stderr, err)
	}

	if !healthy {
		fmt.Fprintf(stdout, "%s is unhealthy\n", conn.Endpoint())
		return ExitUnhealthy
	}

	fmt.Fprintf(stdout, "%s is healthy\n", conn.Endpoint())
	return ExitSuccess
}
