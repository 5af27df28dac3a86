// Package client provides a small HTTP client used by the manager to talk
// to the beacon's pulse API.
package client

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrMalformedHostname is returned when NewClient cannot parse the given
// host argument into an absolute URL.
var ErrMalformedHostname = errors.New("hostname must be host[:port] or an absolute URL, e.g. 'beacon.example.org:8080'")

// ClientOpt configures a Client at construction time.
type ClientOpt func(*Client)

// WithAuthenticationToken attaches a bearer token sent with every request.
func WithAuthenticationToken(token string) ClientOpt {
	return func(c *Client) { c.token = token }
}

// WithTimeout overrides the default per-request timeout.
func WithTimeout(d time.Duration) ClientOpt {
	return func(c *Client) { c.hc.Timeout = d }
}

// WithHTTPClient swaps the underlying *http.Client, e.g. for tests.
func WithHTTPClient(hc *http.Client) ClientOpt {
	return func(c *Client) { c.hc = hc }
}

// Client is a minimal, reusable base for talking JSON over HTTP to a
// single host.
type Client struct {
	baseURL *url.URL
	token   string
	hc      *http.Client
}

// NewClient parses hostAndPort (host[:port], with or without a scheme,
// defaulting to http) and returns a ready-to-use Client.
func NewClient(hostAndPort string, opts ...ClientOpt) (*Client, error) {
	target := hostAndPort
	if !strings.Contains(target, "://") {
		target = "http://" + target
	}
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return nil, ErrMalformedHostname
	}
	c := &Client{
		baseURL: u,
		hc:      &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the client's resolved base URL.
func (c *Client) BaseURL() *url.URL { return c.baseURL }

// Token returns the bearer token configured via WithAuthenticationToken.
func (c *Client) Token() string { return c.token }

// Get sends req (typically built by NewRequest), adding the bearer token if
// one is configured, and returns the response; on a non-2xx status it
// closes the body and returns an error instead.
func (c *Client) Get(req *http.Request) (*http.Response, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	if resp.StatusCode/100 != 2 {
		resp.Body.Close()
		return nil, errors.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL)
	}
	return resp, nil
}

// NewRequest builds a body-less request with the given method for path
// resolved against BaseURL.
func (c *Client) NewRequest(method, path string) (*http.Request, error) {
	u := c.baseURL.ResolveReference(&url.URL{Path: path})
	return http.NewRequest(method, u.String(), nil)
}
