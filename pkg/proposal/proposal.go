// Package proposal defines the Proposal type submitted by agents to the
// Stewardship Gate, along with entity-identifier validation and defensive
// re-validation of the JSON shape crossing the trust boundary.
package proposal

import (
	"fmt"
	"regexp"
)

// EntityIDPattern is the required shape of any entity identifier: a
// domain and an object name separated by a dot, e.g. "light.porch".
var EntityIDPattern = regexp.MustCompile(`^[a-z0-9_]+\.[a-z0-9_]+$`)

// ValidEntityID reports whether id matches the required entity shape. Any
// entity id crossing a trust boundary must be re-validated by the core even
// if an outer layer already validated it.
func ValidEntityID(id string) bool {
	return EntityIDPattern.MatchString(id)
}

// Reversibility enumerates how easily a proposed action can be undone.
type Reversibility string

const (
	Reversible   Reversibility = "reversible"
	SemiReversible Reversibility = "semi"
	Irreversible Reversibility = "irreversible"
)

// BlastRadius is the ordered scope of an action's physical impact.
type BlastRadius string

const (
	SingleDevice BlastRadius = "single_device"
	Room         BlastRadius = "room"
	WholeHome    BlastRadius = "whole_home"
	NetworkWide  BlastRadius = "network_wide"
)

// blastRadiusRank assigns an ordinal to each known blast radius. Unknown
// values are treated as worse than any known level by Rank, fail-closed.
var blastRadiusRank = map[BlastRadius]int{
	SingleDevice: 0,
	Room:         1,
	WholeHome:    2,
	NetworkWide:  3,
}

// Rank returns the ordinal position of b. Unknown blast-radius strings rank
// above every defined level so an unrecognized value is always treated as
// the worst case.
func (b BlastRadius) Rank() int {
	if r, ok := blastRadiusRank[b]; ok {
		return r
	}
	return len(blastRadiusRank)
}

// ActionType enumerates the v1 set of supported device actions.
type ActionType string

const (
	ToggleEntity ActionType = "toggle_entity"
	TurnOn       ActionType = "turn_on"
	TurnOff      ActionType = "turn_off"
)

// Target names the entity a proposed action acts upon.
type Target struct {
	EntityID string `json:"entity_id"`
}

// VerifySpec names the observation made after execution to confirm the
// action took effect: the attribute of an entity, and the value it must
// equal. Equals is a tagged scalar (string/number/bool/null) per the wire
// contract rather than an untyped interface, so comparison semantics in
// the verifier are explicit rather than relying on implicit coercion.
type VerifySpec struct {
	EntityID  string `json:"entity_id"`
	Attribute string `json:"attribute"`
	Equals    Scalar `json:"equals"`
}

// ExpectedOutcome bounds how long the verifier may poll for VerifySpec to
// hold before giving up.
type ExpectedOutcome struct {
	Verify         VerifySpec `json:"verify"`
	TimeoutSeconds int        `json:"timeout_seconds"`
}

// Metadata carries the reversibility and blast-radius classification used
// by Law and by the advisory policy set.
type Metadata struct {
	Reversibility Reversibility `json:"reversibility"`
	BlastRadius   BlastRadius   `json:"blast_radius"`
	SafetyTags    []string      `json:"safety_tags,omitempty"`
}

// Proposal is the immutable structured request to perform one device
// action with a verifiable outcome. It is never mutated after construction.
type Proposal struct {
	ProposalID string `json:"proposal_id"`
	RequestID  string `json:"request_id"`
	TraceID    string `json:"trace_id"`

	Actor      string     `json:"actor"`
	Domain     string     `json:"domain"`
	ActionType ActionType `json:"action_type"`

	Target Target `json:"target"`

	ExpectedOutcome *ExpectedOutcome `json:"expected_outcome,omitempty"`

	Metadata Metadata `json:"metadata"`

	RollbackPlan  string `json:"rollback_plan,omitempty"`
	Justification string `json:"justification"`

	// ConfirmationToken and StewardKeyToken are opaque secrets. They must
	// never be logged, and are dropped by sanitize.Map before any map
	// containing them is serialized.
	ConfirmationToken string `json:"confirmation_token,omitempty"`
	StewardKeyToken   string `json:"steward_key_token,omitempty"`
}

// HasExpectedOutcome reports whether the proposal carries an explicit
// expected outcome.
func (p Proposal) HasExpectedOutcome() bool {
	return p.ExpectedOutcome != nil
}

// Validate performs structural checks independent of policy: entity id
// shape and justification bounds. Policy-dependent checks (allowlists,
// blast radius ceilings) belong to the Law evaluator, not here.
func (p Proposal) Validate() error {
	if !ValidEntityID(p.Target.EntityID) {
		return fmt.Errorf("proposal: invalid target entity id %q", p.Target.EntityID)
	}
	if p.ExpectedOutcome != nil && !ValidEntityID(p.ExpectedOutcome.Verify.EntityID) {
		return fmt.Errorf("proposal: invalid verify entity id %q", p.ExpectedOutcome.Verify.EntityID)
	}
	if len(p.Justification) == 0 || len(p.Justification) > 600 {
		return fmt.Errorf("proposal: justification must be 1..600 chars, got %d", len(p.Justification))
	}
	return nil
}
