package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/stewardgate/gate/pkg/advisory"
	"github.com/stewardgate/gate/pkg/audit"
	"github.com/stewardgate/gate/pkg/deviceclient"
	"github.com/stewardgate/gate/pkg/gate"
	"github.com/stewardgate/gate/pkg/observability"
	"github.com/stewardgate/gate/pkg/policy"
	"github.com/stewardgate/gate/pkg/proposal"
	"github.com/stewardgate/gate/pkg/ratelimit"
	"github.com/stewardgate/gate/pkg/receipt"
	"github.com/stewardgate/gate/pkg/sanitize"
	"github.com/stewardgate/gate/pkg/stwclock"
	"github.com/stewardgate/gate/pkg/verify"
)

func main() {
	os.Exit(Run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

// Run is the entrypoint, exposed separately so it is exercisable from
// tests without an os.Exit.
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runPropose(nil, stdin, stdout, stderr)
	}

	switch args[1] {
	case "propose":
		return runPropose(args[2:], stdin, stdout, stderr)
	case "health":
		return runHealthCmd(stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, "stewardgate v1")
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "stewardgate — policy-gated action executor")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  stewardgate propose   Read one proposal JSON from stdin, run the pipeline, print the receipt")
	fmt.Fprintln(w, "  stewardgate health    Probe the configured device API")
	fmt.Fprintln(w, "  stewardgate version   Print the version")
	fmt.Fprintln(w, "  stewardgate help      Show this help")
}

// buildGate wires every collaborator from the configuration sources named
// in spec.md §6: DEVICE_API_URL, DEVICE_API_TOKEN, AUDIT_PATH, INSTANCE_ID,
// ALLOWLIST, POLICY_PATH.
func buildGate() (*gate.Gate, error) {
	deviceURL := os.Getenv("DEVICE_API_URL")
	deviceToken := os.Getenv("DEVICE_API_TOKEN")
	auditPath := os.Getenv("AUDIT_PATH")
	instanceID := os.Getenv("INSTANCE_ID")
	policyPath := os.Getenv("POLICY_PATH")

	if deviceURL == "" || deviceToken == "" || auditPath == "" || policyPath == "" {
		return nil, fmt.Errorf("config error: DEVICE_API_URL, DEVICE_API_TOKEN, AUDIT_PATH, and POLICY_PATH must all be set")
	}
	if instanceID == "" {
		instanceID = "stewardgate-local"
	}

	cfg, err := policy.Load(policyPath)
	if err != nil {
		return nil, fmt.Errorf("config error: load policy: %w", err)
	}

	clock := stwclock.Default
	sanitizer := sanitize.New(deviceToken)

	auditLog, err := audit.New(auditPath, instanceID, sanitizer, clock)
	if err != nil {
		return nil, fmt.Errorf("config error: open audit log: %w", err)
	}

	advisoryEngine, err := advisory.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("config error: build advisory engine: %w", err)
	}
	if err := advisoryEngine.RegisterDefaults(); err != nil {
		return nil, fmt.Errorf("config error: register advisory policies: %w", err)
	}

	limiter := ratelimit.New(10, time.Minute, clock)
	device := deviceclient.New(deviceURL, deviceToken)
	verifier := verify.New(device, clock, sanitizer, cfg.Verification.PollIntervalSeconds)

	obsConfig := observability.DefaultConfig()
	obsConfig.ServiceName = "stewardgate"
	obs, err := observability.New(context.Background(), obsConfig)
	if err != nil {
		return nil, fmt.Errorf("config error: build observability provider: %w", err)
	}

	return gate.New(gate.Config{
		Policy:             cfg,
		AuditLog:           auditLog,
		Advisory:           advisoryEngine,
		Limiter:            limiter,
		Device:             device,
		Verifier:           verifier,
		Store:              receipt.NewMemoryStore(),
		Sanitizer:          sanitizer,
		Clock:              clock,
		Observability:      obs,
		InstanceID:         instanceID,
		DecisionTTLSeconds: 60,
	}), nil
}

func runPropose(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("propose", flag.ContinueOnError)
	fs.SetOutput(stderr)
	proposalPath := fs.String("proposal", "", "Path to a proposal JSON file (reads stdin if empty)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	var raw []byte
	var err error
	reader := bufio.NewReader(stdin)
	if *proposalPath != "" {
		raw, err = os.ReadFile(*proposalPath)
	} else {
		raw, err = io.ReadAll(reader)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error reading proposal: %v\n", err)
		return 2
	}

	p, err := proposal.Parse(raw)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid proposal: %v\n", err)
		return 2
	}

	g, err := buildGate()
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}

	logger := slog.New(slog.NewTextHandler(stderr, nil))
	decisionFn := func(explanation string) bool {
		fmt.Fprintf(stderr, "Approve? %s [y/N] ", explanation)
		line, _ := reader.ReadString('\n')
		return strings.EqualFold(strings.TrimSpace(line), "y")
	}

	logger.Info("proposal received", "proposal_id", p.ProposalID, "actor", p.Actor, "action_type", p.ActionType)

	r, err := g.Run(context.Background(), p, "cli-operator", decisionFn)
	if err != nil {
		fmt.Fprintf(stderr, "Pipeline error: %v\n", err)
		return 2
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		fmt.Fprintf(stderr, "Error encoding receipt: %v\n", err)
		return 2
	}
	return 0
}

func runHealthCmd(stdout, stderr io.Writer) int {
	deviceURL := os.Getenv("DEVICE_API_URL")
	if deviceURL == "" {
		fmt.Fprintln(stderr, "config error: DEVICE_API_URL not set")
		return 2
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(deviceURL)
	if err != nil {
		fmt.Fprintf(stderr, "device unreachable: %v\n", err)
		return 3
	}
	defer resp.Body.Close()

	fmt.Fprintln(stdout, "OK")
	return 0
}
