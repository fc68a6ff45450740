// Package advisory implements the non-binding, human-rationale policy
// layer evaluated during the "explain" pipeline stage. Advisory results
// never gate admission the way Law does — they feed explain's summary
// and, when all pass, the auto-approval shortcut.
package advisory

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/stewardgate/gate/pkg/proposal"
)

// Result is one policy's outcome, reported in registration order.
type Result struct {
	PolicyID string `json:"policy_id"`
	Passed   bool   `json:"passed"`
	Reason   string `json:"reason"`
}

// Input is the fixed CEL activation schema every advisory expression is
// compiled against.
type Input struct {
	Action    string
	Resource  string
	Principal string
	Context   map[string]any
}

func inputFromProposal(p proposal.Proposal) Input {
	return Input{
		Action:    string(p.ActionType),
		Resource:  p.Target.EntityID,
		Principal: p.Actor,
		Context: map[string]any{
			"reversibility": string(p.Metadata.Reversibility),
			"blast_radius":  string(p.Metadata.BlastRadius),
			"domain":        p.Domain,
			"safety_tags":   toAnySlice(p.Metadata.SafetyTags),
		},
	}
}

func toAnySlice(vals []string) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}

// policy is one compiled, named advisory expression.
type policy struct {
	id      string
	program cel.Program
}

// Engine evaluates a fixed, registered set of advisory CEL expressions.
type Engine struct {
	env      *cel.Env
	policies []policy
}

// NewEngine builds the advisory CEL environment. Expressions reference
// `action`, `resource`, `principal`, and `context` (a map).
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("action", cel.StringType),
		cel.Variable("resource", cel.StringType),
		cel.Variable("principal", cel.StringType),
		cel.Variable("context", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("advisory: build CEL env: %w", err)
	}
	return &Engine{env: env}, nil
}

// Register compiles expr under id. A compile error is returned immediately
// rather than deferred to evaluation time, so misconfigured advisory
// policies fail at startup.
func (e *Engine) Register(id, expr string) error {
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("advisory: compile policy %q: %w", id, issues.Err())
	}
	program, err := e.env.Program(ast)
	if err != nil {
		return fmt.Errorf("advisory: build program for policy %q: %w", id, err)
	}
	e.policies = append(e.policies, policy{id: id, program: program})
	return nil
}

// Evaluate runs every registered policy against p, in registration order.
// An evaluation error or a non-bool result is treated as Passed=false,
// fail-closed, never as a panic or a skipped policy. Compile errors never
// reach here: Register rejects them.
func (e *Engine) Evaluate(p proposal.Proposal) []Result {
	in := inputFromProposal(p)
	vars := map[string]any{
		"action":    in.Action,
		"resource":  in.Resource,
		"principal": in.Principal,
		"context":   in.Context,
	}

	results := make([]Result, 0, len(e.policies))
	for _, pol := range e.policies {
		out, _, err := pol.program.Eval(vars)
		if err != nil {
			results = append(results, Result{PolicyID: pol.id, Passed: false, Reason: fmt.Sprintf("evaluation error: %v", err)})
			continue
		}
		passed, ok := out.Value().(bool)
		if !ok {
			results = append(results, Result{PolicyID: pol.id, Passed: false, Reason: "policy expression did not evaluate to a bool"})
			continue
		}
		reason := "policy passed"
		if !passed {
			reason = "policy did not pass"
		}
		results = append(results, Result{PolicyID: pol.id, Passed: passed, Reason: reason})
	}
	return results
}

// AllPassed reports whether every result in results passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// DefaultPolicies are the baseline advisory checks mirroring the reference
// reversibility/safe-domain heuristics: reversible actions and actions
// outside a network-wide blast radius are advisory-passed by default.
var DefaultPolicies = map[string]string{
	"advisory.reversible":        `context.reversibility != "irreversible"`,
	"advisory.bounded_blast":     `context.blast_radius != "network_wide"`,
}

// RegisterDefaults registers DefaultPolicies on e.
func (e *Engine) RegisterDefaults() error {
	for id, expr := range DefaultPolicies {
		if err := e.Register(id, expr); err != nil {
			return err
		}
	}
	return nil
}
