package proposal

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// wireSchemaDoc is the Draft 2020-12 JSON Schema for proposal ingress
// (spec §6): the exact field set an outer HTTP transport is expected to
// have already validated. The core re-validates independently — an entity
// id or proposal shape crossing a trust boundary is never trusted purely
// because an outer layer already checked it.
const wireSchemaDoc = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["schema_version", "proposal_id", "request_id", "timestamp", "source", "action", "justification"],
  "additionalProperties": false,
  "properties": {
    "schema_version": {"const": "v1"},
    "proposal_id": {"type": "string", "minLength": 1},
    "request_id": {"type": "string", "minLength": 1},
    "timestamp": {"type": "string", "minLength": 1},
    "source": {
      "type": "object",
      "required": ["service", "instance"],
      "additionalProperties": false,
      "properties": {
        "service": {"type": "string"},
        "instance": {"type": "string"}
      }
    },
    "action": {
      "type": "object",
      "required": ["domain", "type", "target"],
      "additionalProperties": false,
      "properties": {
        "domain": {"type": "string"},
        "type": {"type": "string", "enum": ["toggle_entity", "turn_on", "turn_off"]},
        "target": {
          "type": "object",
          "required": ["entity_id"],
          "additionalProperties": false,
          "properties": {"entity_id": {"type": "string"}}
        },
        "metadata": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "reversibility": {"type": "string", "enum": ["reversible", "semi", "irreversible"]},
            "blast_radius": {"type": "string"},
            "safety_tags": {"type": "array", "items": {"type": "string"}}
          }
        },
        "expected_outcome": {
          "type": "object",
          "required": ["verify", "timeout_seconds"],
          "additionalProperties": false,
          "properties": {
            "verify": {
              "type": "object",
              "required": ["entity_id", "attribute", "equals"],
              "additionalProperties": false,
              "properties": {
                "entity_id": {"type": "string"},
                "attribute": {"type": "string"},
                "equals": {}
              }
            },
            "timeout_seconds": {"type": "integer", "minimum": 1, "maximum": 120}
          }
        },
        "parameters": {"type": "object"}
      }
    },
    "rollback_plan": {"type": "string"},
    "justification": {"type": "string", "minLength": 1, "maxLength": 600},
    "confirmation_token": {"type": "string"},
    "steward_key_token": {"type": "string"}
  }
}`

var wireSchema *jsonschema.Schema

func init() {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("stewardgate://proposal-wire.json", bytes.NewReader([]byte(wireSchemaDoc))); err != nil {
		panic(fmt.Sprintf("proposal: invalid embedded wire schema: %v", err))
	}
	schema, err := compiler.Compile("stewardgate://proposal-wire.json")
	if err != nil {
		panic(fmt.Sprintf("proposal: failed to compile wire schema: %v", err))
	}
	wireSchema = schema
}

// wireProposal mirrors the JSON shape of §6 before it is flattened into the
// core's Proposal type.
type wireProposal struct {
	SchemaVersion string `json:"schema_version"`
	ProposalID    string `json:"proposal_id"`
	RequestID     string `json:"request_id"`
	Timestamp     string `json:"timestamp"`
	Source        struct {
		Service  string `json:"service"`
		Instance string `json:"instance"`
	} `json:"source"`
	Action struct {
		Domain string `json:"domain"`
		Type   string `json:"type"`
		Target struct {
			EntityID string `json:"entity_id"`
		} `json:"target"`
		Metadata struct {
			Reversibility string   `json:"reversibility"`
			BlastRadius   string   `json:"blast_radius"`
			SafetyTags    []string `json:"safety_tags"`
		} `json:"metadata"`
		ExpectedOutcome *struct {
			Verify struct {
				EntityID  string `json:"entity_id"`
				Attribute string `json:"attribute"`
				Equals    Scalar `json:"equals"`
			} `json:"verify"`
			TimeoutSeconds int `json:"timeout_seconds"`
		} `json:"expected_outcome"`
		Parameters map[string]any `json:"parameters"`
	} `json:"action"`
	RollbackPlan      string `json:"rollback_plan"`
	Justification     string `json:"justification"`
	ConfirmationToken string `json:"confirmation_token"`
	StewardKeyToken   string `json:"steward_key_token"`
}

// Parse validates raw proposal ingress JSON against the wire schema and
// constructs a Proposal. Extra keys are rejected by the schema's
// additionalProperties:false constraint on every object it describes;
// action.parameters is the exception and accepts any keys.
func Parse(raw []byte) (Proposal, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Proposal{}, fmt.Errorf("proposal: malformed JSON: %w", err)
	}
	if err := wireSchema.Validate(doc); err != nil {
		return Proposal{}, fmt.Errorf("proposal: schema validation failed: %w", err)
	}

	var w wireProposal
	if err := json.Unmarshal(raw, &w); err != nil {
		return Proposal{}, fmt.Errorf("proposal: failed to decode after schema pass: %w", err)
	}

	p := Proposal{
		ProposalID:        w.ProposalID,
		RequestID:         w.RequestID,
		Actor:             w.Source.Service,
		Domain:            w.Action.Domain,
		ActionType:        ActionType(w.Action.Type),
		Target:            Target{EntityID: w.Action.Target.EntityID},
		RollbackPlan:      w.RollbackPlan,
		Justification:     w.Justification,
		ConfirmationToken: w.ConfirmationToken,
		StewardKeyToken:   w.StewardKeyToken,
		Metadata: Metadata{
			Reversibility: Reversibility(w.Action.Metadata.Reversibility),
			BlastRadius:   BlastRadius(w.Action.Metadata.BlastRadius),
			SafetyTags:    w.Action.Metadata.SafetyTags,
		},
	}
	if w.Action.ExpectedOutcome != nil {
		p.ExpectedOutcome = &ExpectedOutcome{
			Verify: VerifySpec{
				EntityID:  w.Action.ExpectedOutcome.Verify.EntityID,
				Attribute: w.Action.ExpectedOutcome.Verify.Attribute,
				Equals:    w.Action.ExpectedOutcome.Verify.Equals,
			},
			TimeoutSeconds: w.Action.ExpectedOutcome.TimeoutSeconds,
		}
	}

	if err := p.Validate(); err != nil {
		return Proposal{}, err
	}
	return p, nil
}
