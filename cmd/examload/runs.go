// ABOUTME: Run commands: start, list, show, cancel, remove, logs, stats, ci.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
)

func runRunCommand(ctx context.Context, args []string, base commonFlags) error {
	if len(args) == 0 {
		printRunUsage()
		return nil
	}
	switch args[0] {
	case "start":
		return runRunStart(ctx, args[1:], base)
	case "list":
		return runRunList(ctx, args[1:], base)
	case "show":
		return runRunShow(ctx, args[1:], base)
	case "cancel":
		return runRunCancel(ctx, args[1:], base)
	case "remove":
		return runRunRemove(ctx, args[1:], base)
	case "logs":
		return runRunLogs(ctx, args[1:], base)
	case "stats":
		return runRunStats(ctx, args[1:], base)
	case "ci":
		return runRunCi(ctx, args[1:], base)
	default:
		printRunUsage()
		return fmt.Errorf("unknown run command %q", args[0])
	}
}

func runRunStart(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("run start")
	opts := base
	opts.bind(fs)
	var req runStartRequest
	var help bool
	fs.StringVar(&req.AdminUsername, "admin-user", "", "admin username override")
	fs.StringVar(&req.AdminPassword, "admin-pass", "", "admin password override")
	fs.BoolVar(&help, "help", false, "show help")
	fs.BoolVar(&help, "h", false, "show help")
	if err := parseFlags(fs, args, printRunStartUsage, &help); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		printRunStartUsage()
		return fmt.Errorf("simulation id is required")
	}

	client := newAPIClient(opts.addr, opts.timeout)
	var payload []byte
	var err error
	if req.AdminUsername != "" || req.AdminPassword != "" {
		payload, err = client.doJSON(ctx, http.MethodPost, "/v1/simulations/"+fs.Arg(0)+"/runs", req)
	} else {
		payload, err = client.doJSON(ctx, http.MethodPost, "/v1/simulations/"+fs.Arg(0)+"/runs", nil)
	}
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		return prettyPrintJSON(os.Stdout, payload)
	}
	var run runResponse
	if err := json.Unmarshal(payload, &run); err != nil {
		return err
	}
	fmt.Printf("queued run %s\n", run.ID)
	return nil
}

func runRunList(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("run list")
	opts := base
	opts.bind(fs)
	var help bool
	fs.BoolVar(&help, "help", false, "show help")
	fs.BoolVar(&help, "h", false, "show help")
	if err := parseFlags(fs, args, printRunListUsage, &help); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		printRunListUsage()
		return fmt.Errorf("simulation id is required")
	}

	client := newAPIClient(opts.addr, opts.timeout)
	payload, err := client.doJSON(ctx, http.MethodGet, "/v1/simulations/"+fs.Arg(0)+"/runs", nil)
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		return prettyPrintJSON(os.Stdout, payload)
	}
	var list runsResponse
	if err := json.Unmarshal(payload, &list); err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSTART\tEND")
	for _, run := range list.Runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", run.ID, run.Status, run.StartTime, run.EndTime)
	}
	return w.Flush()
}

func runRunShow(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("run show")
	opts := base
	opts.bind(fs)
	var help bool
	fs.BoolVar(&help, "help", false, "show help")
	fs.BoolVar(&help, "h", false, "show help")
	if err := parseFlags(fs, args, printRunShowUsage, &help); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		printRunShowUsage()
		return fmt.Errorf("run id is required")
	}

	client := newAPIClient(opts.addr, opts.timeout)
	payload, err := client.doJSON(ctx, http.MethodGet, "/v1/runs/"+fs.Arg(0), nil)
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		return prettyPrintJSON(os.Stdout, payload)
	}
	var run runResponse
	if err := json.Unmarshal(payload, &run); err != nil {
		return err
	}
	printRun(os.Stdout, run)
	return nil
}

func runRunCancel(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("run cancel")
	opts := base
	opts.bind(fs)
	var force, help bool
	fs.BoolVar(&force, "force", false, "skip confirmation")
	fs.BoolVar(&help, "help", false, "show help")
	fs.BoolVar(&help, "h", false, "show help")
	if err := parseFlags(fs, args, printRunCancelUsage, &help); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		printRunCancelUsage()
		return fmt.Errorf("run id is required")
	}
	runID := fs.Arg(0)
	if err := requireConfirmation(confirmOptions{
		action:     "cancel run " + runID,
		force:      force,
		jsonOutput: opts.jsonOutput,
	}); err != nil {
		return err
	}

	client := newAPIClient(opts.addr, opts.timeout)
	if _, err := client.doJSON(ctx, http.MethodPost, "/v1/runs/"+runID+"/cancel", nil); err != nil {
		return err
	}
	if !opts.jsonOutput {
		fmt.Printf("cancelling run %s\n", runID)
	}
	return nil
}

func runRunRemove(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("run remove")
	opts := base
	opts.bind(fs)
	var help bool
	fs.BoolVar(&help, "help", false, "show help")
	fs.BoolVar(&help, "h", false, "show help")
	if err := parseFlags(fs, args, printRunRemoveUsage, &help); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		printRunRemoveUsage()
		return fmt.Errorf("run id is required")
	}
	runID := fs.Arg(0)

	client := newAPIClient(opts.addr, opts.timeout)
	if _, err := client.doJSON(ctx, http.MethodDelete, "/v1/runs/"+runID, nil); err != nil {
		return err
	}
	if !opts.jsonOutput {
		fmt.Printf("removed queued run %s\n", runID)
	}
	return nil
}

func runRunLogs(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("run logs")
	opts := base
	opts.bind(fs)
	var help bool
	fs.BoolVar(&help, "help", false, "show help")
	fs.BoolVar(&help, "h", false, "show help")
	if err := parseFlags(fs, args, printRunLogsUsage, &help); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		printRunLogsUsage()
		return fmt.Errorf("run id is required")
	}

	client := newAPIClient(opts.addr, opts.timeout)
	payload, err := client.doJSON(ctx, http.MethodGet, "/v1/runs/"+fs.Arg(0)+"/logs", nil)
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		return prettyPrintJSON(os.Stdout, payload)
	}
	var logs logMessagesResponse
	if err := json.Unmarshal(payload, &logs); err != nil {
		return err
	}
	for _, msg := range logs.Messages {
		marker := " "
		if msg.Error {
			marker = "!"
		}
		fmt.Printf("%s %s %s\n", msg.Timestamp, marker, msg.Message)
	}
	return nil
}

func runRunStats(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("run stats")
	opts := base
	opts.bind(fs)
	var help bool
	fs.BoolVar(&help, "help", false, "show help")
	fs.BoolVar(&help, "h", false, "show help")
	if err := parseFlags(fs, args, printRunStatsUsage, &help); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		printRunStatsUsage()
		return fmt.Errorf("run id is required")
	}

	client := newAPIClient(opts.addr, opts.timeout)
	payload, err := client.doJSON(ctx, http.MethodGet, "/v1/runs/"+fs.Arg(0)+"/stats", nil)
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		return prettyPrintJSON(os.Stdout, payload)
	}
	var out runStatsResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tCOUNT\tAVG_MS")
	for _, entry := range out.Stats {
		fmt.Fprintf(w, "%s\t%d\t%.1f\n", entry.Category, entry.Count, entry.AvgMS)
	}
	return w.Flush()
}

func runRunCi(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("run ci")
	opts := base
	opts.bind(fs)
	var help bool
	fs.BoolVar(&help, "help", false, "show help")
	fs.BoolVar(&help, "h", false, "show help")
	if err := parseFlags(fs, args, printRunCiUsage, &help); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		printRunCiUsage()
		return fmt.Errorf("run id is required")
	}

	client := newAPIClient(opts.addr, opts.timeout)
	payload, err := client.doJSON(ctx, http.MethodGet, "/v1/runs/"+fs.Arg(0)+"/ci", nil)
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		return prettyPrintJSON(os.Stdout, payload)
	}
	var status ciStatusResponse
	if err := json.Unmarshal(payload, &status); err != nil {
		return err
	}
	state := "draining"
	if status.Finished {
		state = "finished"
	}
	fmt.Printf("build queue %s: %d queued of %d total, %.2f jobs/min over %d min\n",
		state, status.QueuedJobs, status.TotalJobs, status.AvgJobsPerMinute, status.TimeInMinutes)
	return nil
}

func printRun(w io.Writer, run runResponse) {
	fmt.Fprintf(w, "id: %s\n", run.ID)
	fmt.Fprintf(w, "simulation: %s\n", run.SimulationID)
	fmt.Fprintf(w, "status: %s\n", run.Status)
	fmt.Fprintf(w, "started: %s\n", run.StartTime)
	if run.EndTime != "" {
		fmt.Fprintf(w, "ended: %s\n", run.EndTime)
	}
}

func printRunUsage() {
	fmt.Fprintln(os.Stdout, "Usage: examload run <start|list|show|cancel|remove|logs|stats|ci> [flags]")
}

func printRunStartUsage() {
	fmt.Fprintln(os.Stdout, "Usage: examload run start <simulation_id> [--admin-user <username> --admin-pass <password>]")
}

func printRunListUsage() {
	fmt.Fprintln(os.Stdout, "Usage: examload run list <simulation_id>")
}

func printRunShowUsage() {
	fmt.Fprintln(os.Stdout, "Usage: examload run show <run_id>")
}

func printRunCancelUsage() {
	fmt.Fprintln(os.Stdout, "Usage: examload run cancel <run_id> [--force]")
}

func printRunRemoveUsage() {
	fmt.Fprintln(os.Stdout, "Usage: examload run remove <run_id>")
}

func printRunLogsUsage() {
	fmt.Fprintln(os.Stdout, "Usage: examload run logs <run_id>")
}

func printRunStatsUsage() {
	fmt.Fprintln(os.Stdout, "Usage: examload run stats <run_id>")
}

func printRunCiUsage() {
	fmt.Fprintln(os.Stdout, "Usage: examload run ci <run_id>")
	fmt.Fprintln(os.Stdout, "Note: build queue snapshots exist only for runs against local targets.")
}
