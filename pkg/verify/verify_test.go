package verify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stewardgate/gate/pkg/deviceclient"
	"github.com/stewardgate/gate/pkg/proposal"
	"github.com/stewardgate/gate/pkg/sanitize"
	"github.com/stewardgate/gate/pkg/stwclock"
)

type sequenceDevice struct {
	states []deviceclient.State
	calls  int
	err    error
}

func (d *sequenceDevice) ReadState(_ context.Context, _ string) (deviceclient.State, error) {
	if d.err != nil {
		return deviceclient.State{}, d.err
	}
	idx := d.calls
	if idx >= len(d.states) {
		idx = len(d.states) - 1
	}
	d.calls++
	return d.states[idx], nil
}

func (d *sequenceDevice) Invoke(_ context.Context, _ proposal.ActionType, _ string) (deviceclient.InvokeResult, error) {
	return deviceclient.InvokeResult{}, nil
}

// S2 — verify pass after a state transition, advancing the fake clock on
// every poll-interval sleep so the loop terminates without wall-clock delay.
func TestS2VerifyPassesOnSecondPoll(t *testing.T) {
	clock := stwclock.NewFake(time.Unix(0, 0))
	device := &sequenceDevice{states: []deviceclient.State{
		{EntityID: "safe_light", StateValue: "off"},
		{EntityID: "safe_light", StateValue: "on"},
	}}
	v := New(device, clock, sanitize.New(""), 1)

	spec := proposal.VerifySpec{
		EntityID:  "safe_light",
		Attribute: "state",
		Equals:    proposal.Scalar{Kind: proposal.ScalarString, Str: "on"},
	}
	result := v.Verify(context.Background(), spec, 5)

	if !result.Passed {
		t.Fatalf("expected verification to pass, got evidence: %s", result.Evidence)
	}
	if !strings.Contains(result.Evidence, "poll") {
		t.Fatalf("expected evidence to mention poll count, got: %s", result.Evidence)
	}
}

// S3 — verification timeout.
func TestS3VerifyTimesOut(t *testing.T) {
	clock := stwclock.NewFake(time.Unix(0, 0))
	device := &sequenceDevice{states: []deviceclient.State{
		{EntityID: "safe_light", StateValue: "off"},
	}}
	v := New(device, clock, sanitize.New(""), 1)

	spec := proposal.VerifySpec{
		EntityID:  "safe_light",
		Attribute: "state",
		Equals:    proposal.Scalar{Kind: proposal.ScalarString, Str: "on"},
	}
	result := v.Verify(context.Background(), spec, 2)

	if result.Passed {
		t.Fatalf("expected verification to time out")
	}
	if !strings.HasPrefix(result.Evidence, "Timeout") {
		t.Fatalf("expected evidence to start with Timeout, got: %s", result.Evidence)
	}
	if !strings.Contains(result.Evidence, "expected 'on'") || !strings.Contains(result.Evidence, "observed 'off'") {
		t.Fatalf("evidence missing expected/observed values: %s", result.Evidence)
	}
}

func TestVerifyAlwaysPollsAtLeastOnce(t *testing.T) {
	clock := stwclock.NewFake(time.Unix(0, 0))
	device := &sequenceDevice{states: []deviceclient.State{{EntityID: "x", StateValue: "off"}}}
	v := New(device, clock, sanitize.New(""), 1)

	spec := proposal.VerifySpec{EntityID: "x", Attribute: "state", Equals: proposal.Scalar{Kind: proposal.ScalarString, Str: "on"}}
	// Zero timeout: deadline already past on entry, still one poll expected.
	result := v.Verify(context.Background(), spec, 0)
	if device.calls < 1 {
		t.Fatalf("expected at least one poll even with a zero timeout")
	}
	if result.Passed {
		t.Fatalf("expected timeout result")
	}
}

func TestVerifyErrorsDoNotAbortPolling(t *testing.T) {
	clock := stwclock.NewFake(time.Unix(0, 0))
	device := &sequenceDevice{err: errors.New("device unreachable, token tok-3")}
	v := New(device, clock, sanitize.New("tok-3"), 1)

	spec := proposal.VerifySpec{EntityID: "x", Attribute: "state", Equals: proposal.Scalar{Kind: proposal.ScalarString, Str: "on"}}
	result := v.Verify(context.Background(), spec, 2)

	if result.Passed {
		t.Fatalf("expected timeout, not pass, on persistent read errors")
	}
	if strings.Contains(result.LastState["error"].(string), "tok-3") {
		t.Fatalf("secret leaked into last_state error")
	}
}
