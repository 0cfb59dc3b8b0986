// ABOUTME: Schedule commands: create, list, show, update, delete, subscribe, unsubscribe.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
)

func runScheduleCommand(ctx context.Context, args []string, base commonFlags) error {
	if len(args) == 0 {
		printScheduleUsage()
		return nil
	}
	switch args[0] {
	case "create":
		return runScheduleCreate(ctx, args[1:], base)
	case "list":
		return runScheduleList(ctx, args[1:], base)
	case "show":
		return runScheduleShow(ctx, args[1:], base)
	case "update":
		return runScheduleUpdate(ctx, args[1:], base)
	case "delete":
		return runScheduleDelete(ctx, args[1:], base)
	case "subscribe":
		return runScheduleSubscribe(ctx, args[1:], base)
	case "unsubscribe":
		return runScheduleUnsubscribe(ctx, args[1:], base)
	default:
		printScheduleUsage()
		return fmt.Errorf("unknown schedule command %q", args[0])
	}
}

func bindScheduleFlags(fs *flag.FlagSet, req *scheduleRequest) {
	fs.StringVar(&req.Cycle, "cycle", "", "recurrence cycle, DAILY or WEEKLY")
	fs.StringVar(&req.TimeOfDay, "time", "", "time of day, HH:MM")
	fs.StringVar(&req.DayOfWeek, "day", "", "day of week for WEEKLY cycles")
	fs.StringVar(&req.StartDateTime, "start", "", "first eligible date, RFC 3339")
	fs.StringVar(&req.EndDateTime, "end", "", "last eligible date, RFC 3339")
}

func runScheduleCreate(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("schedule create")
	opts := base
	opts.bind(fs)
	var req scheduleRequest
	var help bool
	bindScheduleFlags(fs, &req)
	fs.BoolVar(&help, "help", false, "show help")
	fs.BoolVar(&help, "h", false, "show help")
	if err := parseFlags(fs, args, printScheduleCreateUsage, &help); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		printScheduleCreateUsage()
		return fmt.Errorf("simulation id is required")
	}
	if req.Cycle == "" || req.TimeOfDay == "" || req.StartDateTime == "" {
		printScheduleCreateUsage()
		return fmt.Errorf("cycle, time, and start are required")
	}
	req.Cycle = strings.ToUpper(req.Cycle)

	client := newAPIClient(opts.addr, opts.timeout)
	payload, err := client.doJSON(ctx, http.MethodPost, "/v1/simulations/"+fs.Arg(0)+"/schedules", req)
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		return prettyPrintJSON(os.Stdout, payload)
	}
	var rule scheduleResponse
	if err := json.Unmarshal(payload, &rule); err != nil {
		return err
	}
	fmt.Printf("created schedule %s\n", rule.ID)
	return nil
}

func runScheduleList(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("schedule list")
	opts := base
	opts.bind(fs)
	var help bool
	fs.BoolVar(&help, "help", false, "show help")
	fs.BoolVar(&help, "h", false, "show help")
	if err := parseFlags(fs, args, printScheduleListUsage, &help); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		printScheduleListUsage()
		return fmt.Errorf("simulation id is required")
	}

	client := newAPIClient(opts.addr, opts.timeout)
	payload, err := client.doJSON(ctx, http.MethodGet, "/v1/simulations/"+fs.Arg(0)+"/schedules", nil)
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		return prettyPrintJSON(os.Stdout, payload)
	}
	var list schedulesResponse
	if err := json.Unmarshal(payload, &list); err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCYCLE\tTIME\tDAY\tNEXT")
	for _, rule := range list.Schedules {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", rule.ID, rule.Cycle, rule.TimeOfDay, rule.DayOfWeek, rule.NextRun)
	}
	return w.Flush()
}

func runScheduleShow(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("schedule show")
	opts := base
	opts.bind(fs)
	var help bool
	fs.BoolVar(&help, "help", false, "show help")
	fs.BoolVar(&help, "h", false, "show help")
	if err := parseFlags(fs, args, printScheduleShowUsage, &help); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		printScheduleShowUsage()
		return fmt.Errorf("schedule id is required")
	}

	client := newAPIClient(opts.addr, opts.timeout)
	payload, err := client.doJSON(ctx, http.MethodGet, "/v1/schedules/"+fs.Arg(0), nil)
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		return prettyPrintJSON(os.Stdout, payload)
	}
	var rule scheduleResponse
	if err := json.Unmarshal(payload, &rule); err != nil {
		return err
	}
	printSchedule(os.Stdout, rule)
	return nil
}

func runScheduleUpdate(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("schedule update")
	opts := base
	opts.bind(fs)
	var req scheduleRequest
	var help bool
	bindScheduleFlags(fs, &req)
	fs.BoolVar(&help, "help", false, "show help")
	fs.BoolVar(&help, "h", false, "show help")
	if err := parseFlags(fs, args, printScheduleUpdateUsage, &help); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		printScheduleUpdateUsage()
		return fmt.Errorf("schedule id is required")
	}
	if req.Cycle == "" || req.TimeOfDay == "" || req.StartDateTime == "" {
		printScheduleUpdateUsage()
		return fmt.Errorf("cycle, time, and start are required")
	}
	req.Cycle = strings.ToUpper(req.Cycle)

	client := newAPIClient(opts.addr, opts.timeout)
	payload, err := client.doJSON(ctx, http.MethodPut, "/v1/schedules/"+fs.Arg(0), req)
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		return prettyPrintJSON(os.Stdout, payload)
	}
	var rule scheduleResponse
	if err := json.Unmarshal(payload, &rule); err != nil {
		return err
	}
	fmt.Printf("updated schedule %s, next run %s\n", rule.ID, rule.NextRun)
	return nil
}

func runScheduleDelete(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("schedule delete")
	opts := base
	opts.bind(fs)
	var force, help bool
	fs.BoolVar(&force, "force", false, "skip confirmation")
	fs.BoolVar(&help, "help", false, "show help")
	fs.BoolVar(&help, "h", false, "show help")
	if err := parseFlags(fs, args, printScheduleDeleteUsage, &help); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		printScheduleDeleteUsage()
		return fmt.Errorf("schedule id is required")
	}
	scheduleID := fs.Arg(0)
	if err := requireConfirmation(confirmOptions{
		action:     "delete schedule " + scheduleID,
		force:      force,
		jsonOutput: opts.jsonOutput,
	}); err != nil {
		return err
	}

	client := newAPIClient(opts.addr, opts.timeout)
	if _, err := client.doJSON(ctx, http.MethodDelete, "/v1/schedules/"+scheduleID, nil); err != nil {
		return err
	}
	if !opts.jsonOutput {
		fmt.Printf("deleted schedule %s\n", scheduleID)
	}
	return nil
}

func runScheduleSubscribe(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("schedule subscribe")
	opts := base
	opts.bind(fs)
	var req subscribeRequest
	var help bool
	fs.StringVar(&req.Email, "email", "", "address to notify after scheduled runs")
	fs.BoolVar(&help, "help", false, "show help")
	fs.BoolVar(&help, "h", false, "show help")
	if err := parseFlags(fs, args, printScheduleSubscribeUsage, &help); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		printScheduleSubscribeUsage()
		return fmt.Errorf("schedule id is required")
	}
	if req.Email == "" {
		printScheduleSubscribeUsage()
		return fmt.Errorf("email is required")
	}

	client := newAPIClient(opts.addr, opts.timeout)
	payload, err := client.doJSON(ctx, http.MethodPost, "/v1/schedules/"+fs.Arg(0)+"/subscribers", req)
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		return prettyPrintJSON(os.Stdout, payload)
	}
	var sub subscriberResponse
	if err := json.Unmarshal(payload, &sub); err != nil {
		return err
	}
	fmt.Printf("subscribed %s, unsubscribe key %s\n", sub.Email, sub.Key)
	return nil
}

func runScheduleUnsubscribe(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("schedule unsubscribe")
	opts := base
	opts.bind(fs)
	var help bool
	fs.BoolVar(&help, "help", false, "show help")
	fs.BoolVar(&help, "h", false, "show help")
	if err := parseFlags(fs, args, printScheduleUnsubscribeUsage, &help); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		printScheduleUnsubscribeUsage()
		return fmt.Errorf("subscription key is required")
	}

	client := newAPIClient(opts.addr, opts.timeout)
	if _, err := client.doJSON(ctx, http.MethodDelete, "/v1/subscriptions/"+fs.Arg(0), nil); err != nil {
		return err
	}
	if !opts.jsonOutput {
		fmt.Println("unsubscribed")
	}
	return nil
}

func printSchedule(w io.Writer, rule scheduleResponse) {
	fmt.Fprintf(w, "id: %s\n", rule.ID)
	fmt.Fprintf(w, "simulation: %s\n", rule.SimulationID)
	fmt.Fprintf(w, "cycle: %s\n", rule.Cycle)
	fmt.Fprintf(w, "time: %s\n", rule.TimeOfDay)
	if rule.DayOfWeek != "" {
		fmt.Fprintf(w, "day: %s\n", rule.DayOfWeek)
	}
	fmt.Fprintf(w, "window: %s", rule.StartDateTime)
	if rule.EndDateTime != "" {
		fmt.Fprintf(w, " until %s", rule.EndDateTime)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "next run: %s\n", rule.NextRun)
	for _, sub := range rule.Subscribers {
		fmt.Fprintf(w, "subscriber: %s\n", sub.Email)
	}
}

func printScheduleUsage() {
	fmt.Fprintln(os.Stdout, "Usage: examload schedule <create|list|show|update|delete|subscribe|unsubscribe> [flags]")
}

func printScheduleCreateUsage() {
	fmt.Fprintln(os.Stdout, "Usage: examload schedule create <simulation_id> --cycle <DAILY|WEEKLY> --time <HH:MM> --start <RFC3339> [--day <weekday>] [--end <RFC3339>]")
}

func printScheduleListUsage() {
	fmt.Fprintln(os.Stdout, "Usage: examload schedule list <simulation_id>")
}

func printScheduleShowUsage() {
	fmt.Fprintln(os.Stdout, "Usage: examload schedule show <schedule_id>")
}

func printScheduleUpdateUsage() {
	fmt.Fprintln(os.Stdout, "Usage: examload schedule update <schedule_id> --cycle <DAILY|WEEKLY> --time <HH:MM> --start <RFC3339> [--day <weekday>] [--end <RFC3339>]")
}

func printScheduleDeleteUsage() {
	fmt.Fprintln(os.Stdout, "Usage: examload schedule delete <schedule_id> [--force]")
}

func printScheduleSubscribeUsage() {
	fmt.Fprintln(os.Stdout, "Usage: examload schedule subscribe <schedule_id> --email <address>")
}

func printScheduleUnsubscribeUsage() {
	fmt.Fprintln(os.Stdout, "Usage: examload schedule unsubscribe <subscription_key>")
}
