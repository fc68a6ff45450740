package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunVersion(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"stewardgate", "version"}, strings.NewReader(""), &out, &errOut)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(out.String(), "stewardgate") {
		t.Fatalf("expected version output to mention stewardgate, got %q", out.String())
	}
}

func TestRunHelp(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"stewardgate", "help"}, strings.NewReader(""), &out, &errOut)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(out.String(), "Usage:") {
		t.Fatalf("expected usage text, got %q", out.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"stewardgate", "bogus"}, strings.NewReader(""), &out, &errOut)
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
}

func TestRunHealthMissingDeviceURL(t *testing.T) {
	t.Setenv("DEVICE_API_URL", "")
	var out, errOut bytes.Buffer
	code := Run([]string{"stewardgate", "health"}, strings.NewReader(""), &out, &errOut)
	if code != 2 {
		t.Fatalf("expected exit 2 (config error), got %d", code)
	}
}

func TestRunProposeMissingConfig(t *testing.T) {
	t.Setenv("DEVICE_API_URL", "")
	t.Setenv("DEVICE_API_TOKEN", "")
	t.Setenv("AUDIT_PATH", "")
	t.Setenv("POLICY_PATH", "")

	proposalJSON := `{
		"schema_version": "v1",
		"proposal_id": "prop-1",
		"request_id": "req-1",
		"timestamp": "2026-01-01T00:00:00Z",
		"source": {"service": "agent", "instance": "a1"},
		"action": {
			"domain": "home",
			"type": "toggle_entity",
			"target": {"entity_id": "light.kitchen"},
			"metadata": {"reversibility": "reversible", "blast_radius": "room"},
			"expected_outcome": {"verify": {"entity_id": "light.kitchen", "attribute": "state", "equals": "on"}, "timeout_seconds": 5}
		},
		"justification": "evening routine"
	}`

	var out, errOut bytes.Buffer
	code := Run([]string{"stewardgate", "propose"}, strings.NewReader(proposalJSON), &out, &errOut)
	if code != 2 {
		t.Fatalf("expected exit 2 (config error), got %d; stderr=%s", code, errOut.String())
	}
}
