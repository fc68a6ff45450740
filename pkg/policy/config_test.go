package policy

import (
	"os"
	"testing"

	"github.com/stewardgate/gate/pkg/proposal"
)

func TestAllowlistEnvOverridesFileNotMerge(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/policy.yaml"
	if err := os.WriteFile(path, []byte("allow_entities:\n  - light.from_file\n"), 0o600); err != nil {
		t.Fatalf("write policy file: %v", err)
	}
	t.Setenv("ALLOWLIST", "light.from_env,switch.from_env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EntityAllowed("light.from_file") {
		t.Fatalf("file allowlist should have been replaced, not merged")
	}
	if !cfg.EntityAllowed("light.from_env") || !cfg.EntityAllowed("switch.from_env") {
		t.Fatalf("env allowlist entries missing")
	}
}

func TestRequiresExpectedOutcome(t *testing.T) {
	cfg := Default()
	cfg.RequireExpectedOutcomeFor = []string{"toggle_entity"}
	cfg = cfg.Freeze()
	if !cfg.RequiresExpectedOutcome(proposal.ToggleEntity) {
		t.Fatalf("expected toggle_entity to require expected outcome")
	}
	if cfg.RequiresExpectedOutcome(proposal.TurnOn) {
		t.Fatalf("turn_on should not require expected outcome")
	}
}
