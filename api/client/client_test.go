package client

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidHostname(t *testing.T) {
	cases := []struct {
		name    string
		hostArg string
		path    string
		joined  string
		err     error
	}{
		{
			name:    "missing host",
			hostArg: "",
			err:     ErrMalformedHostname,
		},
		{
			name:    "hostname with port",
			hostArg: "beacon.example.org:8080",
			path:    "/pulse/last",
			joined:  "http://beacon.example.org:8080/pulse/last",
		},
		{
			name:    "hostname with scheme",
			hostArg: "https://beacon.example.org",
			path:    "/pulse/last",
			joined:  "https://beacon.example.org/pulse/last",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cl, err := NewClient(c.hostArg)
			if c.err != nil {
				require.ErrorIs(t, err, c.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, c.joined, cl.BaseURL().ResolveReference(&url.URL{Path: c.path}).String())
		})
	}
}

func TestWithAuthenticationToken(t *testing.T) {
	cl, err := NewClient("beacon.example.org:8080", WithAuthenticationToken("my token"))
	require.NoError(t, err)
	require.Equal(t, "my token", cl.Token())
}

func TestBaseURL(t *testing.T) {
	cl, err := NewClient("beacon.example.org:8080")
	require.NoError(t, err)
	require.Equal(t, "beacon.example.org", cl.BaseURL().Hostname())
	require.Equal(t, "8080", cl.BaseURL().Port())
}
