// Package beacon implements the small read-only client the manager uses
// to fetch pulses from the randomness beacon's HTTP API.
package beacon

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/clcert/beacon-verifier/api/client"
	"github.com/pkg/errors"
)

// ErrBeaconAPI wraps a non-2xx or malformed response from the beacon.
var ErrBeaconAPI = errors.New("beacon api error")

// Client reads pulses and extracted-value events from a beacon deployment.
type Client struct {
	*client.Client
}

// NewClient wraps an already-constructed base HTTP client.
func NewClient(base *client.Client) *Client {
	return &Client{Client: base}
}

// pulseEnvelope mirrors the beacon's GET /pulse/last response shape.
type pulseEnvelope struct {
	Pulse struct {
		URI      string `json:"uri"`
		External struct {
			Value string `json:"value"`
		} `json:"external"`
	} `json:"pulse"`
}

// LastPulse returns the most recently published pulse's URL and the
// external value identifying the events it claims to have used.
func (c *Client) LastPulse() (pulseURL string, externalValue string, err error) {
	req, err := c.NewRequest("GET", "/pulse/last")
	if err != nil {
		return "", "", errors.Wrap(err, "building pulse/last request")
	}
	resp, err := c.Get(req)
	if err != nil {
		return "", "", errors.Wrap(ErrBeaconAPI, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", errors.Wrap(ErrBeaconAPI, "reading pulse/last body")
	}
	var env pulseEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", "", errors.Wrap(ErrBeaconAPI, "decoding pulse/last body")
	}
	return env.Pulse.URI, env.Pulse.External.Value, nil
}

// EventSpec is one source's declared (metadata, raw, status) tuple for a
// given external value, as returned by GET /extValue/{value}.
type EventSpec struct {
	SourceName string `json:"sourceName"`
	Metadata   string `json:"metadata"`
	Raw        string `json:"raw"`
	Status     uint8  `json:"status"`
}

type extValueEnvelope struct {
	Events []EventSpec `json:"events"`
}

// ExtValue returns one EventSpec per source for the given external value,
// keyed by source name.
func (c *Client) ExtValue(value string) (map[string]EventSpec, error) {
	req, err := c.NewRequest("GET", fmt.Sprintf("/extValue/%s", value))
	if err != nil {
		return nil, errors.Wrap(err, "building extValue request")
	}
	resp, err := c.Get(req)
	if err != nil {
		return nil, errors.Wrap(ErrBeaconAPI, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(ErrBeaconAPI, "reading extValue body")
	}
	var env extValueEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Wrap(ErrBeaconAPI, "decoding extValue body")
	}
	out := make(map[string]EventSpec, len(env.Events))
	for _, e := range env.Events {
		out[e.SourceName] = e
	}
	return out, nil
}
