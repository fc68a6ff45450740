// Package law implements the ordered, default-deny policy evaluator:
// a pure function from a Proposal and a frozen PolicyConfig to a
// LawDecision. All deny rules are evaluated in fixed order; the first
// failing rule determines the result, and no allow rule can short-circuit
// a pending deny.
package law

import (
	"fmt"

	"github.com/stewardgate/gate/pkg/policy"
	"github.com/stewardgate/gate/pkg/proposal"
)

// Decision is the immutable outcome of evaluating one Proposal against one
// PolicyConfig.
type Decision struct {
	Allowed     bool     `json:"allowed"`
	PolicyBasis []string `json:"policy_basis"`
	Reason      string   `json:"reason"`
}

type rule struct {
	id   string
	deny func(p proposal.Proposal, c policy.Config) (bool, string)
}

var rules = []rule{
	{
		id: "law.v1.invalid_entity_format",
		deny: func(p proposal.Proposal, _ policy.Config) (bool, string) {
			if !proposal.ValidEntityID(p.Target.EntityID) {
				return true, fmt.Sprintf("target entity id %q is invalid", p.Target.EntityID)
			}
			if p.HasExpectedOutcome() && !proposal.ValidEntityID(p.ExpectedOutcome.Verify.EntityID) {
				return true, fmt.Sprintf("verify entity id %q is invalid", p.ExpectedOutcome.Verify.EntityID)
			}
			return false, ""
		},
	},
	{
		id: "law.v1.target_verify_mismatch",
		deny: func(p proposal.Proposal, c policy.Config) (bool, string) {
			if !c.EnforceTargetVerifyEquality || !p.HasExpectedOutcome() {
				return false, ""
			}
			if p.Target.EntityID != p.ExpectedOutcome.Verify.EntityID {
				return true, fmt.Sprintf("target %q does not match verify entity %q", p.Target.EntityID, p.ExpectedOutcome.Verify.EntityID)
			}
			return false, ""
		},
	},
	{
		id: "law.v1.action_not_allowed",
		deny: func(p proposal.Proposal, c policy.Config) (bool, string) {
			if !c.ActionAllowed(p.ActionType) {
				return true, fmt.Sprintf("action type %q is not allowlisted", p.ActionType)
			}
			return false, ""
		},
	},
	{
		id: "law.v1.entity_not_allowlisted",
		deny: func(p proposal.Proposal, c policy.Config) (bool, string) {
			if !c.EntityAllowed(p.Target.EntityID) {
				return true, fmt.Sprintf("entity %q is not allowlisted", p.Target.EntityID)
			}
			return false, ""
		},
	},
	{
		id: "law.v1.blast_radius_exceeded",
		deny: func(p proposal.Proposal, c policy.Config) (bool, string) {
			max := proposal.BlastRadius(c.MaxBlastRadius)
			if p.Metadata.BlastRadius.Rank() > max.Rank() {
				return true, fmt.Sprintf("blast radius %q exceeds ceiling %q", p.Metadata.BlastRadius, c.MaxBlastRadius)
			}
			return false, ""
		},
	},
	{
		id: "law.v1.missing_expected_outcome",
		deny: func(p proposal.Proposal, c policy.Config) (bool, string) {
			if c.RequiresExpectedOutcome(p.ActionType) && !p.HasExpectedOutcome() {
				return true, fmt.Sprintf("action type %q requires an expected_outcome", p.ActionType)
			}
			return false, ""
		},
	},
	{
		id: "law.v1.missing_rollback",
		deny: func(p proposal.Proposal, c policy.Config) (bool, string) {
			if c.RequireRollback && p.RollbackPlan == "" {
				return true, "rollback_plan is required and absent"
			}
			return false, ""
		},
	},
}

// Evaluate is a pure function: identical (Proposal, Config) inputs always
// produce an identical Decision. Rules run in the fixed table order above;
// the first matching deny rule wins.
func Evaluate(p proposal.Proposal, c policy.Config) Decision {
	for _, r := range rules {
		if deny, reason := r.deny(p, c); deny {
			return Decision{
				Allowed:     false,
				PolicyBasis: []string{"law.v1.default_deny", r.id},
				Reason:      reason,
			}
		}
	}
	return Decision{
		Allowed: true,
		PolicyBasis: []string{
			"law.v1.allowlist_match",
			"entity=" + p.Target.EntityID,
			"type=" + string(p.ActionType),
		},
		Reason: "allowed: all ordered rules passed",
	}
}
