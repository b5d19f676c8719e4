package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/obplatform/obplatform-go/client/query"
	"github.com/obplatform/obplatform-go/internal/config"
)

func runStudies(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("studies", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var cf commonFlags
	cf.register(fs)

	var fb filterBuilder
	fs.Func("filter", "Scalar filter group as name=v1,v2 (repeatable)", fb.addScalars)
	fs.Func("object", "Object filter value as name=key:value,key:value (repeatable)", fb.addObject)

	fs.Usage = func() {
		fmt.Fprintln(stderr, `Usage: obplatform studies [options]

List the studies matching a filter and print them as JSON. Groups are sent
in the order they first appear on the command line.

Example:
  obplatform studies -filter countries=US,DK \
    -object buildings=building_type:Educational,room_type:Classroom

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

	studies, err := conn.ListStudies(ctx, fb.filter)
	if err != nil {
		return exitCode(stderr, err)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(studies); err != nil {
		return exitCode(stderr, err)
	}

	return ExitSuccess
}

// filterBuilder collects -filter and -object flags into a query.Filter,
// merging repeated group names into the first group of that name.
type filterBuilder struct {
	filter query.Filter
}

func (fb *filterBuilder) addScalars(s string) error {
	name, list, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected name=v1,v2, got %q", s)
	}

	fb.add(name, splitList(list)...)
	return nil
}

func (fb *filterBuilder) addObject(s string) error {
	name, list, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected name=key:value,..., got %q", s)
	}

	var kv []any
	for _, pair := range splitList(list) {
		key, value, ok := strings.Cut(pair.(string), ":")
		if !ok || key == "" {
			return fmt.Errorf("expected key:value, got %q", pair)
		}
		kv = append(kv, key, value)
	}
	if len(kv) == 0 {
		return fmt.Errorf("object %q has no fields", name)
	}

	fb.add(name, query.Fields(kv...))
	return nil
}

func (fb *filterBuilder) add(name string, values ...any) {
	idx := slices.IndexFunc(fb.filter, func(g query.Group) bool { return g.Name == name })
	if idx < 0 {
		fb.filter = fb.filter.Add(name, values...)
		return
	}
	fb.filter[idx].Values = append(fb.filter[idx].Values, values...)
}
