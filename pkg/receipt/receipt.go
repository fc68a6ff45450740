// Package receipt defines the immutable ExecutionResult/Receipt value and
// an idempotency store guarding against double-dispatch on retried
// decisions.
package receipt

import (
	"time"

	"github.com/stewardgate/gate/pkg/deviceclient"
)

// Verdict is the terminal decision recorded on a Receipt.
type Verdict string

const (
	VerdictAllowed  Verdict = "allowed"
	VerdictDenied   Verdict = "denied"
	VerdictFailed   Verdict = "failed"
	VerdictExpired  Verdict = "EXPIRED"
	VerdictSkipped  Verdict = "SKIPPED"
	VerdictRejected Verdict = "REJECTED"
)

// Verification is the embedded outcome of the C6 polling loop.
type Verification struct {
	Pass     bool   `json:"pass"`
	Evidence string `json:"evidence"`
}

// Receipt is the immutable, signed-in-spirit statement of what happened
// for one proposal, including before/after state and evidence. It is the
// wire shape for receipt egress (§6).
type Receipt struct {
	SchemaVersion string  `json:"schema_version"`
	ProposalID    string  `json:"proposal_id"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string  `json:"source"`

	Decision    Verdict  `json:"decision"`
	PolicyBasis []string `json:"policy_basis"`

	ActionTaken *deviceclient.InvokeResult `json:"action_taken,omitempty"`

	Verification Verification `json:"verification"`

	BeforeState *deviceclient.State `json:"before_state,omitempty"`
	AfterState  *deviceclient.State `json:"after_state,omitempty"`

	AuditRef string `json:"audit_ref"`

	FailureHint string `json:"failure_language_hint,omitempty"`
}
