// ABOUTME: Simulation and status commands plus shared flag-parsing helpers.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

const jsonFlagDescription = "output json"

var errHelp = errors.New("help requested")

type commonFlags struct {
	addr       string
	jsonOutput bool
	timeout    time.Duration
}

func (c *commonFlags) bind(fs *flag.FlagSet) {
	fs.StringVar(&c.addr, "addr", c.addr, "address of the examloadd control API")
	fs.BoolVar(&c.jsonOutput, "json", c.jsonOutput, jsonFlagDescription)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string, usage func(), help *bool) error {
	fs.Usage = usage
	if err := fs.Parse(args); err != nil {
		usage()
		return err
	}
	if help != nil && *help {
		usage()
		return errHelp
	}
	return nil
}

func runSimulationCommand(ctx context.Context, args []string, base commonFlags) error {
	if len(args) == 0 {
		printSimulationUsage()
		return nil
	}
	switch args[0] {
	case "create":
		return runSimulationCreate(ctx, args[1:], base)
	case "list":
		return runSimulationList(ctx, args[1:], base)
	case "show":
		return runSimulationShow(ctx, args[1:], base)
	case "delete":
		return runSimulationDelete(ctx, args[1:], base)
	case "set-instructor":
		return runSimulationSetInstructor(ctx, args[1:], base)
	default:
		printSimulationUsage()
		return fmt.Errorf("unknown simulation command %q", args[0])
	}
}

func runSimulationCreate(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("simulation create")
	opts := base
	opts.bind(fs)
	var req simulationCreateRequest
	var help bool
	fs.StringVar(&req.Name, "name", "", "simulation name")
	fs.IntVar(&req.NumberOfUsers, "users", 0, "number of simulated participants")
	fs.Int64Var(&req.CourseID, "course", 0, "existing course id")
	fs.Int64Var(&req.ExamID, "exam", 0, "existing exam id")
	fs.StringVar(&req.Server, "server", "", "target server name")
	fs.StringVar(&req.Mode, "mode", "", "simulation mode")
	fs.StringVar(&req.UserRange, "user-range", "", "participant index range, e.g. 1-50,60")
	fs.Float64Var(&req.OnlineIDEPercentage, "ide", 0, "percentage of participants using the online IDE")
	fs.Float64Var(&req.PasswordPercentage, "password", 0, "percentage of participants using password auth")
	fs.Float64Var(&req.TokenPercentage, "token", 0, "percentage of participants using token auth")
	fs.Float64Var(&req.SSHPercentage, "ssh", 0, "percentage of participants using ssh auth")
	fs.IntVar(&req.CommitsFrom, "commits-from", 0, "minimum commit rounds per participant")
	fs.IntVar(&req.CommitsTo, "commits-to", 0, "exclusive upper bound of commit rounds")
	fs.StringVar(&req.InstructorUsername, "instructor-user", "", "instructor username")
	fs.StringVar(&req.InstructorPassword, "instructor-pass", "", "instructor password")
	fs.BoolVar(&help, "help", false, "show help")
	fs.BoolVar(&help, "h", false, "show help")
	if err := parseFlags(fs, args, printSimulationCreateUsage, &help); err != nil {
		return err
	}
	if req.Name == "" || req.Server == "" || req.Mode == "" {
		printSimulationCreateUsage()
		return fmt.Errorf("name, server, and mode are required")
	}
	req.Mode = strings.ToUpper(req.Mode)
	req.CustomizeUserRange = req.UserRange != ""

	client := newAPIClient(opts.addr, opts.timeout)
	payload, err := client.doJSON(ctx, http.MethodPost, "/v1/simulations", req)
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		return prettyPrintJSON(os.Stdout, payload)
	}
	var sim simulationResponse
	if err := json.Unmarshal(payload, &sim); err != nil {
		return err
	}
	fmt.Printf("created simulation %s\n", sim.ID)
	return nil
}

func runSimulationList(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("simulation list")
	opts := base
	opts.bind(fs)
	var help bool
	fs.BoolVar(&help, "help", false, "show help")
	fs.BoolVar(&help, "h", false, "show help")
	if err := parseFlags(fs, args, printSimulationListUsage, &help); err != nil {
		return err
	}

	client := newAPIClient(opts.addr, opts.timeout)
	payload, err := client.doJSON(ctx, http.MethodGet, "/v1/simulations", nil)
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		return prettyPrintJSON(os.Stdout, payload)
	}
	var list simulationsResponse
	if err := json.Unmarshal(payload, &list); err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSERVER\tMODE\tUSERS")
	for _, sim := range list.Simulations {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", sim.ID, sim.Name, sim.Server, sim.Mode, sim.NumberOfUsers)
	}
	return w.Flush()
}

func runSimulationShow(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("simulation show")
	opts := base
	opts.bind(fs)
	var help bool
	fs.BoolVar(&help, "help", false, "show help")
	fs.BoolVar(&help, "h", false, "show help")
	if err := parseFlags(fs, args, printSimulationShowUsage, &help); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		printSimulationShowUsage()
		return fmt.Errorf("simulation id is required")
	}

	client := newAPIClient(opts.addr, opts.timeout)
	payload, err := client.doJSON(ctx, http.MethodGet, "/v1/simulations/"+fs.Arg(0), nil)
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		return prettyPrintJSON(os.Stdout, payload)
	}
	var sim simulationResponse
	if err := json.Unmarshal(payload, &sim); err != nil {
		return err
	}
	printSimulation(os.Stdout, sim)
	return nil
}

func runSimulationDelete(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("simulation delete")
	opts := base
	opts.bind(fs)
	var force, help bool
	fs.BoolVar(&force, "force", false, "skip confirmation")
	fs.BoolVar(&help, "help", false, "show help")
	fs.BoolVar(&help, "h", false, "show help")
	if err := parseFlags(fs, args, printSimulationDeleteUsage, &help); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		printSimulationDeleteUsage()
		return fmt.Errorf("simulation id is required")
	}
	simulationID := fs.Arg(0)
	if err := requireConfirmation(confirmOptions{
		action:     "delete simulation " + simulationID,
		force:      force,
		jsonOutput: opts.jsonOutput,
	}); err != nil {
		return err
	}

	client := newAPIClient(opts.addr, opts.timeout)
	if _, err := client.doJSON(ctx, http.MethodDelete, "/v1/simulations/"+simulationID, nil); err != nil {
		return err
	}
	if !opts.jsonOutput {
		fmt.Printf("deleted simulation %s\n", simulationID)
	}
	return nil
}

func runSimulationSetInstructor(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("simulation set-instructor")
	opts := base
	opts.bind(fs)
	var req instructorRequest
	var help bool
	fs.StringVar(&req.Username, "user", "", "instructor username")
	fs.StringVar(&req.Password, "pass", "", "instructor password")
	fs.BoolVar(&help, "help", false, "show help")
	fs.BoolVar(&help, "h", false, "show help")
	if err := parseFlags(fs, args, printSimulationSetInstructorUsage, &help); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		printSimulationSetInstructorUsage()
		return fmt.Errorf("simulation id is required")
	}
	if req.Username == "" || req.Password == "" {
		printSimulationSetInstructorUsage()
		return fmt.Errorf("user and pass are required")
	}

	client := newAPIClient(opts.addr, opts.timeout)
	if _, err := client.doJSON(ctx, http.MethodPut, "/v1/simulations/"+fs.Arg(0)+"/instructor", req); err != nil {
		return err
	}
	if !opts.jsonOutput {
		fmt.Println("instructor credentials updated")
	}
	return nil
}

func runStatusCommand(ctx context.Context, args []string, base commonFlags) error {
	fs := newFlagSet("status")
	opts := base
	opts.bind(fs)
	var help bool
	fs.BoolVar(&help, "help", false, "show help")
	fs.BoolVar(&help, "h", false, "show help")
	if err := parseFlags(fs, args, printStatusUsage, &help); err != nil {
		return err
	}

	client := newAPIClient(opts.addr, opts.timeout)
	payload, err := client.doJSON(ctx, http.MethodGet, "/v1/status", nil)
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		return prettyPrintJSON(os.Stdout, payload)
	}
	var status statusResponse
	if err := json.Unmarshal(payload, &status); err != nil {
		return err
	}
	fmt.Printf("version: %s\n", status.Version)
	if status.TestMode {
		fmt.Println("test mode: on")
	}
	if status.ActiveRunID != "" {
		fmt.Printf("active run: %s\n", status.ActiveRunID)
	}
	if len(status.QueuedRunIDs) > 0 {
		fmt.Printf("queued runs: %s\n", strings.Join(status.QueuedRunIDs, ", "))
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET\tURL\tPRODUCTION\tLOCAL\tCLEANUP")
	for _, target := range status.Targets {
		fmt.Fprintf(w, "%s\t%s\t%t\t%t\t%t\n", target.Name, target.URL, target.Production, target.Local, target.CleanupEnabled)
	}
	return w.Flush()
}

func printSimulation(w io.Writer, sim simulationResponse) {
	fmt.Fprintf(w, "id: %s\n", sim.ID)
	fmt.Fprintf(w, "name: %s\n", sim.Name)
	fmt.Fprintf(w, "server: %s\n", sim.Server)
	fmt.Fprintf(w, "mode: %s\n", sim.Mode)
	fmt.Fprintf(w, "users: %d\n", sim.NumberOfUsers)
	if sim.CustomizeUserRange {
		fmt.Fprintf(w, "user range: %s\n", sim.UserRange)
	}
	if sim.CourseID != 0 {
		fmt.Fprintf(w, "course: %d\n", sim.CourseID)
	}
	if sim.ExamID != 0 {
		fmt.Fprintf(w, "exam: %d\n", sim.ExamID)
	}
	fmt.Fprintf(w, "auth mix: ide=%g%% password=%g%% token=%g%% ssh=%g%%\n",
		sim.OnlineIDEPercentage, sim.PasswordPercentage, sim.TokenPercentage, sim.SSHPercentage)
	fmt.Fprintf(w, "commits: %d-%d\n", sim.CommitsFrom, sim.CommitsTo)
	if sim.InstructorUsername != "" {
		fmt.Fprintf(w, "instructor: %s\n", sim.InstructorUsername)
	}
	fmt.Fprintf(w, "created: %s\n", sim.CreationDate)
}

func printSimulationUsage() {
	fmt.Fprintln(os.Stdout, "Usage: examload simulation <create|list|show|delete|set-instructor> [flags]")
}

func printSimulationCreateUsage() {
	fmt.Fprintln(os.Stdout, "Usage: examload simulation create --name <name> --server <target> --mode <mode> [--users <n>] [--course <id>] [--exam <id>] [--user-range <range>] [--ide <pct> --password <pct> --token <pct> --ssh <pct>] [--commits-from <n> --commits-to <n>] [--instructor-user <u> --instructor-pass <p>]")
	fmt.Fprintln(os.Stdout, "Modes: CREATE_COURSE_AND_EXAM, EXISTING_COURSE_CREATE_EXAM, EXISTING_COURSE_UNPREPARED_EXAM, EXISTING_COURSE_PREPARED_EXAM")
}

func printSimulationListUsage() {
	fmt.Fprintln(os.Stdout, "Usage: examload simulation list")
}

func printSimulationShowUsage() {
	fmt.Fprintln(os.Stdout, "Usage: examload simulation show <simulation_id>")
}

func printSimulationDeleteUsage() {
	fmt.Fprintln(os.Stdout, "Usage: examload simulation delete <simulation_id> [--force]")
}

func printSimulationSetInstructorUsage() {
	fmt.Fprintln(os.Stdout, "Usage: examload simulation set-instructor <simulation_id> --user <username> --pass <password>")
}

func printStatusUsage() {
	fmt.Fprintln(os.Stdout, "Usage: examload status")
}
