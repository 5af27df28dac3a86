package beacon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clcert/beacon-verifier/api/client"
	"github.com/stretchr/testify/require"
)

func TestLastPulse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/pulse/last", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"pulse": map[string]interface{}{
				"uri":      "/chain/1/pulse/99",
				"external": map[string]string{"value": "abc123"},
			},
		})
	}))
	defer srv.Close()

	base, err := client.NewClient(srv.URL)
	require.NoError(t, err)
	c := NewClient(base)

	url, value, err := c.LastPulse()
	require.NoError(t, err)
	require.Equal(t, "/chain/1/pulse/99", url)
	require.Equal(t, "abc123", value)
}

func TestExtValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/extValue/abc123", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"events": []map[string]interface{}{
				{"sourceName": "radio", "metadata": "0000aa", "raw": "deadbeef", "status": 0},
				{"sourceName": "ethereum", "metadata": "0x12D680", "raw": "ab12", "status": 0},
			},
		})
	}))
	defer srv.Close()

	base, err := client.NewClient(srv.URL)
	require.NoError(t, err)
	c := NewClient(base)

	events, err := c.ExtValue("abc123")
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "0000aa", events["radio"].Metadata)
	require.Equal(t, "0x12D680", events["ethereum"].Metadata)
}

func TestLastPulse_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	base, err := client.NewClient(srv.URL)
	require.NoError(t, err)
	c := NewClient(base)

	_, _, err = c.LastPulse()
	require.ErrorIs(t, err, ErrBeaconAPI)
}
