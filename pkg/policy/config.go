// Package policy defines the immutable PolicyConfig consumed by Law and the
// rest of the gate, and loads it from a YAML file with environment
// variable overrides.
package policy

import (
	"os"
	"strings"

	"github.com/stewardgate/gate/pkg/proposal"
	"gopkg.in/yaml.v3"
)

// VerificationConfig bounds the outcome verifier.
type VerificationConfig struct {
	MaxTimeoutSeconds     int `yaml:"max_timeout_seconds" json:"max_timeout_seconds"`
	DefaultTimeoutSeconds int `yaml:"default_timeout_seconds" json:"default_timeout_seconds"`
	PollIntervalSeconds   int `yaml:"poll_interval_seconds" json:"poll_interval_seconds"`
}

// Config is the frozen policy value threaded through gate construction.
// It is never mutated after Load returns.
type Config struct {
	DefaultDecision             string             `yaml:"default_decision" json:"default_decision"`
	AllowActions                []string           `yaml:"allow_actions" json:"allow_actions"`
	AllowEntities               []string           `yaml:"allow_entities" json:"allow_entities"`
	EnforceTargetVerifyEquality bool               `yaml:"enforce_target_verify_equality" json:"enforce_target_verify_equality"`
	MaxBlastRadius              string             `yaml:"max_blast_radius" json:"max_blast_radius"`
	RequireExpectedOutcomeFor   []string           `yaml:"require_expected_outcome_for" json:"require_expected_outcome_for"`
	RequireRollback             bool               `yaml:"require_rollback" json:"require_rollback"`
	Verification                VerificationConfig `yaml:"verification" json:"verification"`

	allowedActions  map[proposal.ActionType]bool
	allowedEntities map[string]bool
	requireOutcome  map[proposal.ActionType]bool
}

// Default returns conservative zero-value defaults matching spec §4.2:
// default_decision is deny, nothing is allowlisted until configured.
func Default() Config {
	return Config{
		DefaultDecision: "deny",
		Verification: VerificationConfig{
			MaxTimeoutSeconds:     120,
			DefaultTimeoutSeconds: 30,
			PollIntervalSeconds:   1,
		},
	}
}

// Freeze compiles the loaded slices into lookup sets. Must be called once
// after Load/unmarshal and before the Config is handed to Law; callers
// should treat the returned Config as immutable thereafter.
func (c Config) Freeze() Config {
	c.allowedActions = toActionSet(c.AllowActions)
	c.allowedEntities = toStringSet(c.AllowEntities)
	c.requireOutcome = toActionSet(c.RequireExpectedOutcomeFor)
	if c.Verification.PollIntervalSeconds <= 0 {
		c.Verification.PollIntervalSeconds = 1
	}
	return c
}

func toActionSet(vals []string) map[proposal.ActionType]bool {
	out := make(map[proposal.ActionType]bool, len(vals))
	for _, v := range vals {
		out[proposal.ActionType(v)] = true
	}
	return out
}

func toStringSet(vals []string) map[string]bool {
	out := make(map[string]bool, len(vals))
	for _, v := range vals {
		out[v] = true
	}
	return out
}

// ActionAllowed reports whether t is in the allowlist.
func (c Config) ActionAllowed(t proposal.ActionType) bool { return c.allowedActions[t] }

// EntityAllowed reports whether id is in the entity allowlist.
func (c Config) EntityAllowed(id string) bool { return c.allowedEntities[id] }

// RequiresExpectedOutcome reports whether t must carry an ExpectedOutcome.
func (c Config) RequiresExpectedOutcome(t proposal.ActionType) bool { return c.requireOutcome[t] }

// Load reads a YAML policy file from path, then applies the ALLOWLIST
// environment variable override-not-merge rule: if ALLOWLIST is set and
// non-empty, it entirely replaces the file's allow_entities list.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}
	if raw := os.Getenv("ALLOWLIST"); strings.TrimSpace(raw) != "" {
		cfg.AllowEntities = splitCSV(raw)
	}
	return cfg.Freeze(), nil
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
