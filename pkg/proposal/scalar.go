package proposal

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ScalarKind tags the underlying type carried by a Scalar.
type ScalarKind int

const (
	ScalarNull ScalarKind = iota
	ScalarBool
	ScalarNumber
	ScalarString
)

// Scalar is the tagged sum type for verify.equals: string, number, bool, or
// null. It is a deliberate tagged variant rather than an untyped `any`, so
// the verifier's comparison rules (§4.6) are explicit rather than relying
// on JSON's implicit coercions.
type Scalar struct {
	Kind ScalarKind
	Bool bool
	Num  float64
	Str  string
}

func (s Scalar) String() string {
	switch s.Kind {
	case ScalarBool:
		return fmt.Sprintf("%t", s.Bool)
	case ScalarNumber:
		return fmt.Sprintf("%g", s.Num)
	case ScalarString:
		return s.Str
	default:
		return "null"
	}
}

// MarshalJSON renders the Scalar back to its natural JSON form.
func (s Scalar) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case ScalarBool:
		return json.Marshal(s.Bool)
	case ScalarNumber:
		return json.Marshal(s.Num)
	case ScalarString:
		return json.Marshal(s.Str)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON recovers the tag from the raw JSON token.
func (s *Scalar) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		*s = Scalar{Kind: ScalarNull}
		return nil
	case bytes.Equal(trimmed, []byte("true")):
		*s = Scalar{Kind: ScalarBool, Bool: true}
		return nil
	case bytes.Equal(trimmed, []byte("false")):
		*s = Scalar{Kind: ScalarBool, Bool: false}
		return nil
	case len(trimmed) > 0 && trimmed[0] == '"':
		var str string
		if err := json.Unmarshal(trimmed, &str); err != nil {
			return fmt.Errorf("scalar: invalid string: %w", err)
		}
		*s = Scalar{Kind: ScalarString, Str: str}
		return nil
	default:
		var num float64
		if err := json.Unmarshal(trimmed, &num); err != nil {
			return fmt.Errorf("scalar: invalid literal %q", string(trimmed))
		}
		*s = Scalar{Kind: ScalarNumber, Num: num}
		return nil
	}
}
