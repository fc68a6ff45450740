// Package gate implements the Stewardship Gate (C7): the orchestrator
// that owns the proposal → decision → execution → verification → receipt
// pipeline and the decision lifecycle (TTL).
package gate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stewardgate/gate/pkg/advisory"
	"github.com/stewardgate/gate/pkg/audit"
	"github.com/stewardgate/gate/pkg/deviceclient"
	"github.com/stewardgate/gate/pkg/law"
	"github.com/stewardgate/gate/pkg/observability"
	"github.com/stewardgate/gate/pkg/policy"
	"github.com/stewardgate/gate/pkg/proposal"
	"github.com/stewardgate/gate/pkg/ratelimit"
	"github.com/stewardgate/gate/pkg/receipt"
	"github.com/stewardgate/gate/pkg/sanitize"
	"github.com/stewardgate/gate/pkg/stwclock"
	"github.com/stewardgate/gate/pkg/verify"
)

// Decision is the Gate's own approval record, distinct from law.Decision
// (the pure rule-table outcome) and from receipt.Verdict (the terminal
// pipeline state). It is immutable once constructed.
type Decision struct {
	DecisionID string
	ProposalID string
	Approved   bool
	Approver   string
	Timestamp  time.Time
	TTLSeconds int
	Reason     string
}

// Expired reports whether now is past the decision's TTL.
func (d Decision) Expired(now time.Time) bool {
	return now.Sub(d.Timestamp) > time.Duration(d.TTLSeconds)*time.Second
}

// DecisionFn is the single-method capability invoked for proposals that do
// not qualify for auto-approval. It is passed as a value parameter to Run,
// never registered in a global hook table, so non-interactive
// (auto-approved) paths stay deterministic and never touch it.
type DecisionFn func(explanation string) bool

// Gate composes the pipeline's collaborators. Policy config is threaded
// through construction and never mutated; the device-API client and audit
// log are created once and shared for the Gate's lifetime.
type Gate struct {
	policy     policy.Config
	auditLog   *audit.Log
	advisory   *advisory.Engine
	limiter    *ratelimit.Limiter
	device     deviceclient.Device
	verifier   *verify.Verifier
	store      receipt.Store
	sanitizer  *sanitize.Sanitizer
	clock      stwclock.Clock
	obs        *observability.Provider
	instanceID string
	ttlSeconds int
}

// Config bundles Gate construction parameters.
type Config struct {
	Policy             policy.Config
	AuditLog           *audit.Log
	Advisory           *advisory.Engine
	Limiter            *ratelimit.Limiter
	Device             deviceclient.Device
	Verifier           *verify.Verifier
	Store              receipt.Store
	Sanitizer          *sanitize.Sanitizer
	Clock              stwclock.Clock
	Observability      *observability.Provider
	InstanceID         string
	DecisionTTLSeconds int
}

// New builds a Gate. Store defaults to an in-memory receipt index and
// Observability to a disabled no-op provider when not supplied.
func New(cfg Config) *Gate {
	clock := cfg.Clock
	if clock == nil {
		clock = stwclock.Default
	}
	store := cfg.Store
	if store == nil {
		store = receipt.NewMemoryStore()
	}
	ttl := cfg.DecisionTTLSeconds
	if ttl <= 0 {
		ttl = 60
	}
	obs := cfg.Observability
	if obs == nil {
		obs, _ = observability.New(context.Background(), nil)
	}
	return &Gate{
		policy:     cfg.Policy,
		auditLog:   cfg.AuditLog,
		advisory:   cfg.Advisory,
		limiter:    cfg.Limiter,
		device:     cfg.Device,
		verifier:   cfg.Verifier,
		store:      store,
		sanitizer:  cfg.Sanitizer,
		clock:      clock,
		obs:        obs,
		instanceID: cfg.InstanceID,
		ttlSeconds: ttl,
	}
}

// ProposeInput carries the fields needed to construct a Proposal; the Gate
// assigns the opaque identifiers.
type ProposeInput struct {
	Actor             string
	Domain            string
	ActionType        proposal.ActionType
	TargetEntityID    string
	ExpectedOutcome   *proposal.ExpectedOutcome
	Metadata          proposal.Metadata
	RollbackPlan      string
	Justification     string
	ConfirmationToken string
	StewardKeyToken   string
}

// Propose constructs a Proposal, assigns fresh identifiers, and emits the
// propose audit event. The Proposal is never mutated after this call.
func (g *Gate) Propose(ctx context.Context, in ProposeInput) (proposal.Proposal, error) {
	p := proposal.Proposal{
		ProposalID:        "prop-" + uuid.NewString(),
		RequestID:         "req-" + uuid.NewString(),
		TraceID:           "trace-" + uuid.NewString(),
		Actor:             in.Actor,
		Domain:            in.Domain,
		ActionType:        in.ActionType,
		Target:            proposal.Target{EntityID: in.TargetEntityID},
		ExpectedOutcome:   in.ExpectedOutcome,
		Metadata:          in.Metadata,
		RollbackPlan:      in.RollbackPlan,
		Justification:     in.Justification,
		ConfirmationToken: in.ConfirmationToken,
		StewardKeyToken:   in.StewardKeyToken,
	}

	corr := audit.Correlation{RequestID: p.RequestID, ProposalID: p.ProposalID}
	payload := map[string]any{
		"actor":              p.Actor,
		"domain":             p.Domain,
		"action_type":        string(p.ActionType),
		"target_entity_id":   p.Target.EntityID,
		"justification":      p.Justification,
		"rollback_plan":      p.RollbackPlan,
		"confirmation_token": p.ConfirmationToken,
		"steward_key_token":  p.StewardKeyToken,
	}
	if _, err := g.auditLog.Append(audit.StagePropose, corr, payload); err != nil {
		return proposal.Proposal{}, fmt.Errorf("gate: audit write failed on propose: %w", err)
	}
	return p, nil
}

// Run executes the explain → decide → execute stages for an already-
// proposed p, returning a terminal Receipt. Every failure mode maps to a
// labeled terminal state; Run returns a non-nil error only for
// AuditWriteError, which indicates a broken core invariant.
func (g *Gate) Run(ctx context.Context, p proposal.Proposal, approver string, decisionFn DecisionFn) (*receipt.Receipt, error) {
	corr := audit.Correlation{RequestID: p.RequestID, ProposalID: p.ProposalID}

	stageCtx, done := g.obs.TrackStage(ctx, "explain")
	advisoryResults := g.advisory.Evaluate(p)
	summary := explainSummary(p, advisoryResults)
	_, err := g.auditLog.Append(audit.StageExplain, corr, map[string]any{"summary": summary})
	done(err)
	if err != nil {
		return nil, fmt.Errorf("gate: audit write failed on explain: %w", err)
	}

	lawDecision := law.Evaluate(p, g.policy)
	if _, err := g.auditLog.Append(audit.StageLawDecision, corr, map[string]any{
		"allowed":      lawDecision.Allowed,
		"policy_basis": lawDecision.PolicyBasis,
		"reason":       lawDecision.Reason,
	}); err != nil {
		return nil, fmt.Errorf("gate: audit write failed on law_decision: %w", err)
	}

	if !lawDecision.Allowed {
		// law.v1.missing_expected_outcome is a Law rule evaluated at its
		// fixed table position (after the allowlist and blast-radius
		// checks, before missing_rollback) but its receipt verdict is
		// REJECTED rather than denied, matching the explicit per-action
		// expected_outcome invariant.
		verdict := receipt.VerdictDenied
		if len(lawDecision.PolicyBasis) > 1 && lawDecision.PolicyBasis[1] == "law.v1.missing_expected_outcome" {
			verdict = receipt.VerdictRejected
		}
		return g.finalize(ctx, corr, &receipt.Receipt{
			ProposalID:   p.ProposalID,
			Decision:     verdict,
			PolicyBasis:  lawDecision.PolicyBasis,
			Verification: receipt.Verification{Pass: false, Evidence: lawDecision.Reason},
		})
	}

	decidedAt := g.clock.Now()
	autoApprove := advisory.AllPassed(advisoryResults) && p.Metadata.Reversibility == proposal.Reversible
	approved := autoApprove
	reason := "auto-approved"
	if !autoApprove {
		approved = decisionFn(summary)
		if approved {
			reason = "human approved"
		} else {
			reason = "human denied"
		}
	}

	decision := Decision{
		DecisionID: "dec-" + uuid.NewString(),
		ProposalID: p.ProposalID,
		Approved:   approved,
		Approver:   approver,
		Timestamp:  decidedAt,
		TTLSeconds: g.ttlSeconds,
		Reason:     reason,
	}
	decisionCorr := corr
	decisionCorr.DecisionID = decision.DecisionID
	if _, err := g.auditLog.Append(audit.StageDecision, decisionCorr, map[string]any{
		"decision_id": decision.DecisionID,
		"approved":    decision.Approved,
		"approver":    decision.Approver,
		"ttl_seconds": decision.TTLSeconds,
		"reason":      decision.Reason,
	}); err != nil {
		return nil, fmt.Errorf("gate: audit write failed on decision: %w", err)
	}

	return g.execute(ctx, decisionCorr, p, decision, lawDecision)
}

func (g *Gate) execute(ctx context.Context, corr audit.Correlation, p proposal.Proposal, decision Decision, lawDecision law.Decision) (*receipt.Receipt, error) {
	base := &receipt.Receipt{ProposalID: p.ProposalID, PolicyBasis: lawDecision.PolicyBasis}

	if !decision.Approved {
		base.Decision = receipt.VerdictSkipped
		base.Verification = receipt.Verification{Pass: false, Evidence: decision.Reason}
		return g.finalize(ctx, corr, base)
	}

	if decision.Expired(g.clock.Now()) {
		base.Decision = receipt.VerdictExpired
		base.Verification = receipt.Verification{Pass: false, Evidence: "decision TTL elapsed"}
		return g.finalize(ctx, corr, base)
	}

	if g.policy.RequiresExpectedOutcome(p.ActionType) && !p.HasExpectedOutcome() {
		base.Decision = receipt.VerdictRejected
		base.Verification = receipt.Verification{Pass: false, Evidence: "expected_outcome is required for this action type and was not provided"}
		return g.finalize(ctx, corr, base)
	}

	rl := g.limiter.Accept(p.Actor)
	if !rl.Allowed {
		base.Decision = receipt.VerdictSkipped
		base.Verification = receipt.Verification{Pass: false, Evidence: rl.Reason}
		return g.finalize(ctx, corr, base)
	}

	if existing, err := g.store.Get(ctx, decision.DecisionID); err == nil && existing != nil {
		return existing, nil
	}

	before, err := g.device.ReadState(ctx, p.Target.EntityID)
	if err != nil {
		base.Decision = receipt.VerdictFailed
		base.FailureHint = g.sanitizer.String(err.Error())
		base.Verification = receipt.Verification{Pass: false, Evidence: base.FailureHint}
		return g.finalize(ctx, corr, base)
	}
	base.BeforeState = &before

	invokeResult, err := g.device.Invoke(ctx, p.ActionType, p.Target.EntityID)
	if err != nil {
		base.Decision = receipt.VerdictFailed
		base.FailureHint = g.sanitizer.String(err.Error())
		base.Verification = receipt.Verification{Pass: false, Evidence: base.FailureHint}
		return g.finalize(ctx, corr, base)
	}
	base.ActionTaken = &invokeResult

	effectiveTimeout := p.ExpectedOutcome.TimeoutSeconds
	if g.policy.Verification.MaxTimeoutSeconds > 0 && effectiveTimeout > g.policy.Verification.MaxTimeoutSeconds {
		effectiveTimeout = g.policy.Verification.MaxTimeoutSeconds
	}

	verifyCtx, doneVerify := g.obs.TrackStage(ctx, "verify")
	verifyResult := g.verifier.Verify(verifyCtx, p.ExpectedOutcome.Verify, effectiveTimeout)
	doneVerify(nil)

	base.Verification = receipt.Verification{Pass: verifyResult.Passed, Evidence: verifyResult.Evidence}
	base.AfterState = afterStateFrom(verifyResult.LastState, p.ExpectedOutcome.Verify.EntityID)
	if verifyResult.Passed {
		base.Decision = receipt.VerdictAllowed
	} else {
		base.Decision = receipt.VerdictFailed
	}

	r, err := g.finalize(ctx, corr, base)
	if err != nil {
		return nil, err
	}
	if storeErr := g.store.Store(ctx, decision.DecisionID, r); storeErr != nil {
		if _, auditErr := g.auditLog.Append(audit.StageExecutionAttempt, corr, map[string]any{
			"receipt_store_error": storeErr.Error(),
		}); auditErr != nil {
			return nil, fmt.Errorf("gate: audit write failed recording receipt_store_error: %w", auditErr)
		}
	}
	return r, nil
}

func afterStateFrom(lastState map[string]any, entityID string) *deviceclient.State {
	if lastState == nil {
		return nil
	}
	if _, isErr := lastState["error"]; isErr {
		return nil
	}
	stateVal, _ := lastState["state"].(string)
	attrs, _ := lastState["attributes"].(map[string]any)
	return &deviceclient.State{EntityID: entityID, StateValue: stateVal, Attributes: attrs}
}

// finalize stamps common fields, emits the terminal receipt audit entry,
// and links the receipt back to that entry via audit_ref.
func (g *Gate) finalize(ctx context.Context, corr audit.Correlation, r *receipt.Receipt) (*receipt.Receipt, error) {
	r.SchemaVersion = "v1"
	r.Timestamp = g.clock.Now()
	r.Source = g.instanceID

	entry, err := g.auditLog.Append(audit.StageReceipt, corr, receiptAuditPayload(r))
	if err != nil {
		return nil, fmt.Errorf("gate: audit write failed on receipt: %w", err)
	}
	r.AuditRef = entry.EntryHash
	g.obs.RecordDecision(ctx, string(r.Decision))
	return r, nil
}

// Learn emits an optional post-hoc feedback event. It never mutates prior
// entries.
func (g *Gate) Learn(ctx context.Context, p proposal.Proposal, r *receipt.Receipt, feedback string) error {
	corr := audit.Correlation{RequestID: p.RequestID, ProposalID: p.ProposalID}
	_, err := g.auditLog.Append(audit.StageLearn, corr, map[string]any{
		"execution_status": string(r.Decision),
		"feedback":         feedback,
	})
	if err != nil {
		return fmt.Errorf("gate: audit write failed on learn: %w", err)
	}
	return nil
}

func explainSummary(p proposal.Proposal, results []advisory.Result) string {
	var parts []string
	for _, res := range results {
		status := "pass"
		if !res.Passed {
			status = "fail"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", res.PolicyID, status))
	}
	return fmt.Sprintf(
		"Action: %s on %s in %s. Justification: %s. Rollback: %s. Policies -> %s",
		p.ActionType, p.Target.EntityID, p.Domain, p.Justification, rollbackOrNone(p.RollbackPlan), strings.Join(parts, "; "),
	)
}

func rollbackOrNone(plan string) string {
	if plan == "" {
		return "none"
	}
	return plan
}

func receiptAuditPayload(r *receipt.Receipt) map[string]any {
	payload := map[string]any{
		"decision":     string(r.Decision),
		"policy_basis": r.PolicyBasis,
		"verification": map[string]any{"pass": r.Verification.Pass, "evidence": r.Verification.Evidence},
	}
	if r.FailureHint != "" {
		payload["failure_hint"] = r.FailureHint
	}
	return payload
}
