// ABOUTME: CLI entry point: global flags, usage text, and command dispatch.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/examload/examload/internal/buildinfo"
)

const usageText = `examload is the CLI for examloadd.

Usage:
  examload --version
  examload [--addr HOST:PORT] [--json] [--timeout DURATION] simulation create --name <name> --server <target> --mode <mode> [flags]
  examload [--addr HOST:PORT] [--json] [--timeout DURATION] simulation list
  examload [--addr HOST:PORT] [--json] [--timeout DURATION] simulation show <simulation_id>
  examload [--addr HOST:PORT] [--json] [--timeout DURATION] simulation delete <simulation_id> [--force]
  examload [--addr HOST:PORT] [--json] [--timeout DURATION] simulation set-instructor <simulation_id> --user <username> --pass <password>
  examload [--addr HOST:PORT] [--json] [--timeout DURATION] run start <simulation_id> [--admin-user <username> --admin-pass <password>]
  examload [--addr HOST:PORT] [--json] [--timeout DURATION] run list <simulation_id>
  examload [--addr HOST:PORT] [--json] [--timeout DURATION] run show <run_id>
  examload [--addr HOST:PORT] [--json] [--timeout DURATION] run cancel <run_id> [--force]
  examload [--addr HOST:PORT] [--json] [--timeout DURATION] run remove <run_id>
  examload [--addr HOST:PORT] [--json] [--timeout DURATION] run logs <run_id>
  examload [--addr HOST:PORT] [--json] [--timeout DURATION] run stats <run_id>
  examload [--addr HOST:PORT] [--json] [--timeout DURATION] run ci <run_id>
  examload [--addr HOST:PORT] [--json] [--timeout DURATION] schedule create <simulation_id> --cycle <DAILY|WEEKLY> --time <HH:MM> --start <RFC3339> [--day <weekday>] [--end <RFC3339>]
  examload [--addr HOST:PORT] [--json] [--timeout DURATION] schedule list <simulation_id>
  examload [--addr HOST:PORT] [--json] [--timeout DURATION] schedule show <schedule_id>
  examload [--addr HOST:PORT] [--json] [--timeout DURATION] schedule update <schedule_id> --cycle <DAILY|WEEKLY> --time <HH:MM> --start <RFC3339> [--day <weekday>] [--end <RFC3339>]
  examload [--addr HOST:PORT] [--json] [--timeout DURATION] schedule delete <schedule_id> [--force]
  examload [--addr HOST:PORT] [--json] [--timeout DURATION] schedule subscribe <schedule_id> --email <email>
  examload [--addr HOST:PORT] [--json] [--timeout DURATION] schedule unsubscribe <key>
  examload [--addr HOST:PORT] [--json] [--timeout DURATION] status

Global Flags:
  --addr HOST:PORT  Address of the examloadd control API (default 127.0.0.1:8080)
  --json            Output json
  --timeout         Request timeout (e.g. 30s, 2m)
`

type globalOptions struct {
	addr        string
	jsonOutput  bool
	showVersion bool
	timeout     time.Duration
}

func main() {
	opts, args, err := parseGlobal(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		printUsage()
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Println(buildinfo.String())
		return
	}
	if len(args) == 0 || isHelpToken(args[0]) {
		printUsage()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	base := commonFlags{addr: opts.addr, jsonOutput: opts.jsonOutput, timeout: opts.timeout}
	if err := dispatch(ctx, args, base); err != nil {
		if errors.Is(err, errHelp) {
			return
		}
		msg, next, hints := describeError(err)
		printError(os.Stderr, msg, next, hints)
		os.Exit(1)
	}
}

func parseGlobal(args []string) (globalOptions, []string, error) {
	opts := globalOptions{addr: defaultAddr}
	fs := flag.NewFlagSet("examload", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.addr, "addr", defaultAddr, "address of the examloadd control API")
	fs.BoolVar(&opts.jsonOutput, "json", false, jsonFlagDescription)
	fs.DurationVar(&opts.timeout, "timeout", defaultRequestTimeout, "request timeout (e.g. 30s, 2m)")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return opts, nil, err
	}
	if opts.addr == "" {
		opts.addr = defaultAddr
	}
	return opts, fs.Args(), nil
}

func dispatch(ctx context.Context, args []string, base commonFlags) error {
	switch args[0] {
	case "simulation":
		return runSimulationCommand(ctx, args[1:], base)
	case "run":
		return runRunCommand(ctx, args[1:], base)
	case "schedule":
		return runScheduleCommand(ctx, args[1:], base)
	case "status":
		return runStatusCommand(ctx, args[1:], base)
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printUsage() {
	_, _ = fmt.Fprint(os.Stdout, usageText)
}

func isHelpToken(value string) bool {
	switch strings.TrimSpace(value) {
	case "help", "-h", "--help":
		return true
	default:
		return false
	}
}
