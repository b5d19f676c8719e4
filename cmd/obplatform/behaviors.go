package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/obplatform/obplatform-go/connector"
	"github.com/obplatform/obplatform-go/internal/config"
)

func runBehaviors(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("behaviors", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var cf commonFlags
	cf.register(fs)
	studies := fs.String("studies", "", "Comma-separated study ids to restrict the list to")
	asJSON := fs.Bool("json", false, "Print JSON instead of a table")

	fs.Usage = func() {
		fmt.Fprintln(stderr, `Usage: obplatform behaviors [options]

List the behaviors available in the database.

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

	var behaviors []connector.Behavior
	if ids := splitList(*studies); len(ids) > 0 {
		behaviors, err = conn.ListBehaviorsInStudies(ctx, ids...)
	} else {
		behaviors, err = conn.ListBehaviors(ctx)
	}
	if err != nil {
		return exitCode(stderr, err)
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(behaviors); err != nil {
			return exitCode(stderr, err)
		}
		return ExitSuccess
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tLABEL\tDISABLED")
	for _, b := range behaviors {
		fmt.Fprintf(tw, "%s\t%s\t%t\n", b.Key, b.Label, b.Disabled)
	}
	if err := tw.Flush(); err != nil {
		return exitCode(stderr, err)
	}

	return ExitSuccess
}
