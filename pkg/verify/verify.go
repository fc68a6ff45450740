// Package verify implements the outcome verifier (C6): bounded polling of
// device state until the expected attribute matches or a clamped deadline
// elapses.
package verify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stewardgate/gate/pkg/deviceclient"
	"github.com/stewardgate/gate/pkg/proposal"
	"github.com/stewardgate/gate/pkg/sanitize"
	"github.com/stewardgate/gate/pkg/stwclock"
)

// Result is the structured outcome of a verification run.
type Result struct {
	Passed    bool
	Evidence  string
	LastState map[string]any
}

// Verifier polls a Device for a proposal.VerifySpec to hold within a clamped
// timeout.
type Verifier struct {
	device       deviceclient.Device
	clock        stwclock.Clock
	sanitizer    *sanitize.Sanitizer
	pollInterval time.Duration
}

// New builds a Verifier. pollIntervalSeconds defaults to 1 when <= 0.
func New(device deviceclient.Device, clock stwclock.Clock, sanitizer *sanitize.Sanitizer, pollIntervalSeconds int) *Verifier {
	if clock == nil {
		clock = stwclock.Default
	}
	if pollIntervalSeconds <= 0 {
		pollIntervalSeconds = 1
	}
	return &Verifier{
		device:       device,
		clock:        clock,
		sanitizer:    sanitizer,
		pollInterval: time.Duration(pollIntervalSeconds) * time.Second,
	}
}

// Verify polls spec's entity/attribute until it equals the expected value
// or effectiveTimeoutSeconds (already clamped to the policy ceiling by the
// caller) elapses. It always performs at least one poll, even if the
// deadline has already passed when entering the loop.
func (v *Verifier) Verify(ctx context.Context, spec proposal.VerifySpec, effectiveTimeoutSeconds int) Result {
	start := v.clock.Now()
	deadline := start.Add(time.Duration(effectiveTimeoutSeconds) * time.Second)

	pollCount := 0
	var lastState map[string]any
	var actual any
	var actualFound bool

	for {
		pollCount++
		state, err := v.device.ReadState(ctx, spec.EntityID)
		if err != nil {
			lastState = map[string]any{"error": v.sanitizer.String(err.Error())}
			actualFound = false
			actual = nil
		} else {
			lastState = map[string]any{"state": state.StateValue, "attributes": state.Attributes}
			actual, actualFound = state.Attribute(spec.Attribute)
		}

		if actualFound && equals(spec.Equals, actual) {
			elapsed := v.clock.Now().Sub(start).Seconds()
			evidence := fmt.Sprintf(
				"Verified: %s.%s expected %s; observed %s after %.0fs (%d poll(s))",
				spec.EntityID, spec.Attribute, spec.Equals.String(), formatActual(actual), elapsed, pollCount,
			)
			return Result{Passed: true, Evidence: evidence, LastState: lastState}
		}

		if !v.clock.Now().Before(deadline) {
			elapsed := v.clock.Now().Sub(start).Seconds()
			evidence := fmt.Sprintf(
				"Timeout: %s.%s expected '%s'; observed '%s' after %.0fs (%d poll(s))",
				spec.EntityID, spec.Attribute, spec.Equals.String(), formatActual(actual), elapsed, pollCount,
			)
			return Result{Passed: false, Evidence: evidence, LastState: lastState}
		}

		v.clock.Sleep(v.pollInterval)
	}
}

func formatActual(v any) string {
	if v == nil {
		return "<none>"
	}
	return fmt.Sprintf("%v", v)
}

// equals implements the §4.6 comparison rules for the tagged Scalar type.
func equals(expected proposal.Scalar, actual any) bool {
	switch expected.Kind {
	case proposal.ScalarBool:
		if b, ok := actual.(bool); ok {
			return b == expected.Bool
		}
		if s, ok := actual.(string); ok {
			return strings.EqualFold(s, strconv.FormatBool(expected.Bool))
		}
		return false
	case proposal.ScalarNumber:
		switch a := actual.(type) {
		case float64:
			return a == expected.Num
		case int:
			return float64(a) == expected.Num
		case string:
			f, err := strconv.ParseFloat(a, 64)
			if err != nil {
				return false
			}
			return f == expected.Num
		default:
			return false
		}
	case proposal.ScalarNull:
		return actual == nil
	default:
		return fmt.Sprintf("%v", actual) == expected.Str
	}
}
