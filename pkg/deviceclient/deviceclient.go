// Package deviceclient implements the narrow two-method contract over the
// upstream device control plane: read_state and invoke. It is a thin
// net/http wrapper, not a general-purpose API client — the routing table
// from action type to service endpoint is fixed (§6).
package deviceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stewardgate/gate/pkg/proposal"
)

// State is the result of reading one entity's state.
type State struct {
	EntityID   string         `json:"entity_id"`
	StateValue string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// Attribute returns the named attribute, or the top-level state value for
// the special name "state".
func (s State) Attribute(name string) (any, bool) {
	if name == "state" {
		return s.StateValue, true
	}
	v, ok := s.Attributes[name]
	return v, ok
}

// InvokeResult is the exact dispatch record embedded into the receipt.
type InvokeResult struct {
	Endpoint       string `json:"endpoint"`
	LogicalService string `json:"logical_service"`
	Payload        map[string]any `json:"payload"`
	StatusCode     int    `json:"status_code"`
}

// routingTable maps action types to Home-Assistant-style domain/service
// pairs. An action type missing from this table is a programming error,
// not a policy error — Law must have already rejected it before execution.
var routingTable = map[proposal.ActionType]string{
	proposal.ToggleEntity: "homeassistant/toggle",
	proposal.TurnOn:       "homeassistant/turn_on",
	proposal.TurnOff:      "homeassistant/turn_off",
}

// Device is the narrow two-method contract the gate and verifier depend
// on, satisfied by *Client and by fakes in tests.
type Device interface {
	ReadState(ctx context.Context, entityID string) (State, error)
	Invoke(ctx context.Context, actionType proposal.ActionType, entityID string) (InvokeResult, error)
}

// Client talks to the device control plane over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New builds a Client bound to baseURL (e.g. http://homeassistant.local:8123)
// authenticating with a bearer token, with a fixed per-call timeout
// independent of the verification timeout.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// ReadState performs GET /api/states/{entity_id}.
func (c *Client) ReadState(ctx context.Context, entityID string) (State, error) {
	url := fmt.Sprintf("%s/api/states/%s", c.baseURL, entityID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return State{}, fmt.Errorf("deviceclient: build read_state request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return State{}, fmt.Errorf("deviceclient: read_state request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return State{}, fmt.Errorf("deviceclient: read_state response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return State{}, fmt.Errorf("deviceclient: read_state status %d: %s", resp.StatusCode, string(body))
	}

	var state State
	if err := json.Unmarshal(body, &state); err != nil {
		return State{}, fmt.Errorf("deviceclient: decode read_state response: %w", err)
	}
	return state, nil
}

// Invoke performs POST /api/services/{domain}/{service} for the given
// action type against entityID.
func (c *Client) Invoke(ctx context.Context, actionType proposal.ActionType, entityID string) (InvokeResult, error) {
	service, ok := routingTable[actionType]
	if !ok {
		return InvokeResult{}, fmt.Errorf("deviceclient: no route for action type %q (programming error, Law should have rejected it)", actionType)
	}

	payload := map[string]any{"entity_id": entityID}
	body, err := json.Marshal(payload)
	if err != nil {
		return InvokeResult{}, fmt.Errorf("deviceclient: marshal invoke payload: %w", err)
	}

	url := fmt.Sprintf("%s/api/services/%s", c.baseURL, service)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return InvokeResult{}, fmt.Errorf("deviceclient: build invoke request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return InvokeResult{}, fmt.Errorf("deviceclient: invoke request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return InvokeResult{}, fmt.Errorf("deviceclient: invoke response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return InvokeResult{}, fmt.Errorf("deviceclient: invoke status %d: %s", resp.StatusCode, string(respBody))
	}

	return InvokeResult{
		Endpoint:       url,
		LogicalService: service,
		Payload:        payload,
		StatusCode:     resp.StatusCode,
	}, nil
}
