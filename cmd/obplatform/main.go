// Command obplatform lists and downloads data from the ASHRAE occupant
// behavior database.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// Exit codes
const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitInvalidArgs   = 2
	ExitRequestFailed = 3
	ExitUnhealthy     = 4
	ExitStorageError  = 5
	ExitCancelled     = 6
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "behaviors":
		return runBehaviors(ctx, cmdArgs, stdout, stderr)
	case "studies":
		return runStudies(ctx, cmdArgs, stdout, stderr)
	case "health":
		return runHealth(ctx, cmdArgs, stdout, stderr)
	case "download":
		return runDownload(ctx, cmdArgs, stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stderr)
		return ExitSuccess
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage(stderr)
		return ExitInvalidArgs
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: obplatform <command> [options]

Commands:
  behaviors  List behaviors, optionally only those present in given studies
  studies    List studies matching a filter
  health     Check that the database API is up
  download   Export behaviors of given studies into a ZIP archive

Settings are read from -config (YAML), then OBPLATFORM_* environment
variables (a .env file in the working directory is loaded first), then
flags.

Run 'obplatform <command> -h' for command-specific help.`)
}
