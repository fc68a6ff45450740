package law

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stewardgate/gate/pkg/policy"
	"github.com/stewardgate/gate/pkg/proposal"
)

func baseConfig() policy.Config {
	cfg := policy.Default()
	cfg.AllowActions = []string{"turn_on", "turn_off", "toggle_entity"}
	cfg.AllowEntities = []string{"light.safe"}
	cfg.MaxBlastRadius = string(proposal.Room)
	return cfg.Freeze()
}

// S1 — deny not allowlisted.
func TestS1DenyNotAllowlisted(t *testing.T) {
	cfg := baseConfig()
	p := proposal.Proposal{
		ActionType:    proposal.TurnOn,
		Target:        proposal.Target{EntityID: "switch.unsafe"},
		Justification: "x",
		Metadata: proposal.Metadata{
			Reversibility: proposal.Reversible,
			BlastRadius:   proposal.SingleDevice,
		},
		ExpectedOutcome: &proposal.ExpectedOutcome{
			Verify: proposal.VerifySpec{EntityID: "switch.unsafe", Attribute: "state"},
		},
	}
	d := Evaluate(p, cfg)
	require.False(t, d.Allowed)
	assert.Equal(t, "law.v1.default_deny", d.PolicyBasis[0])
	assert.Equal(t, "law.v1.entity_not_allowlisted", d.PolicyBasis[1])
}

// S4 — target != verify entity mismatch.
func TestS4TargetVerifyMismatch(t *testing.T) {
	cfg := baseConfig()
	cfg.EnforceTargetVerifyEquality = true
	p := proposal.Proposal{
		ActionType:    proposal.TurnOn,
		Target:        proposal.Target{EntityID: "light.a"},
		Justification: "x",
		ExpectedOutcome: &proposal.ExpectedOutcome{
			Verify: proposal.VerifySpec{EntityID: "switch.b", Attribute: "state"},
		},
	}
	d := Evaluate(p, cfg)
	require.False(t, d.Allowed)
	assert.Equal(t, "law.v1.target_verify_mismatch", d.PolicyBasis[1])
}

// S5 — blast radius ceiling, even if entity is allowlisted.
func TestS5BlastRadiusExceeded(t *testing.T) {
	cfg := baseConfig()
	p := proposal.Proposal{
		ActionType:    proposal.TurnOn,
		Target:        proposal.Target{EntityID: "light.safe"},
		Justification: "x",
		Metadata:      proposal.Metadata{BlastRadius: proposal.WholeHome},
		ExpectedOutcome: &proposal.ExpectedOutcome{
			Verify: proposal.VerifySpec{EntityID: "light.safe", Attribute: "state"},
		},
	}
	d := Evaluate(p, cfg)
	require.False(t, d.Allowed)
	assert.Equal(t, "law.v1.blast_radius_exceeded", d.PolicyBasis[1])
}

func TestUnknownBlastRadiusFailsClosed(t *testing.T) {
	cfg := baseConfig()
	p := proposal.Proposal{
		ActionType:    proposal.TurnOn,
		Target:        proposal.Target{EntityID: "light.safe"},
		Justification: "x",
		Metadata:      proposal.Metadata{BlastRadius: proposal.BlastRadius("unheard_of")},
		ExpectedOutcome: &proposal.ExpectedOutcome{
			Verify: proposal.VerifySpec{EntityID: "light.safe", Attribute: "state"},
		},
	}
	d := Evaluate(p, cfg)
	assert.False(t, d.Allowed, "unknown blast radius should fail closed")
}

func TestEvaluateIsPure(t *testing.T) {
	cfg := baseConfig()
	p := proposal.Proposal{
		ActionType:    proposal.TurnOn,
		Target:        proposal.Target{EntityID: "light.safe"},
		Justification: "x",
		Metadata:      proposal.Metadata{BlastRadius: proposal.SingleDevice},
		ExpectedOutcome: &proposal.ExpectedOutcome{
			Verify: proposal.VerifySpec{EntityID: "light.safe", Attribute: "state"},
		},
	}
	d1 := Evaluate(p, cfg)
	d2 := Evaluate(p, cfg)
	assert.Equal(t, d1.Allowed, d2.Allowed)
	assert.Equal(t, d1.PolicyBasis[0], d2.PolicyBasis[0])
}

func TestAllowProducesExpectedBasis(t *testing.T) {
	cfg := baseConfig()
	p := proposal.Proposal{
		ActionType:    proposal.TurnOn,
		Target:        proposal.Target{EntityID: "light.safe"},
		Justification: "x",
		Metadata:      proposal.Metadata{BlastRadius: proposal.SingleDevice},
		ExpectedOutcome: &proposal.ExpectedOutcome{
			Verify: proposal.VerifySpec{EntityID: "light.safe", Attribute: "state"},
		},
	}
	d := Evaluate(p, cfg)
	require.True(t, d.Allowed)
	assert.Equal(t, "law.v1.allowlist_match", d.PolicyBasis[0])
}
