package manager

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	baseclient "github.com/clcert/beacon-verifier/api/client"
	"github.com/clcert/beacon-verifier/api/client/beacon"
	"github.com/clcert/beacon-verifier/verifier/metrics"
	"github.com/clcert/beacon-verifier/verifier/result"
	"github.com/clcert/beacon-verifier/verifier/source"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	name       string
	verifyHits int32
	delay      time.Duration
	status     result.VerifierStatus
}

func (s *fakeSource) Name() string                  { return s.name }
func (s *fakeSource) Init(ctx context.Context) error { return nil }
func (s *fakeSource) Collect(ctx context.Context) error {
	<-ctx.Done()
	return nil
}
func (s *fakeSource) Finish(ctx context.Context) error { return nil }
func (s *fakeSource) PossibleMarkers() int             { return 1 }
func (s *fakeSource) BufferLen() int                   { return 0 }

func (s *fakeSource) Verify(ctx context.Context, spec beacon.EventSpec) result.VerifierResult {
	atomic.AddInt32(&s.verifyHits, 1)
	res := result.NewVerifierResult(s.name, spec.Status, 1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return res.Finish(result.VerifierTimeout, "cancelled")
		}
	}
	return res.Finish(s.status)
}

func newFakeBeacon(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/pulse/last", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pulse":{"uri":"/chain/1/pulse/42","external":{"value":"ext1"}}}`))
	})
	mux.HandleFunc("/extValue/ext1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"events":[{"sourceName":"radio","metadata":"m","raw":"r","status":0}]}`))
	})
	return httptest.NewServer(mux)
}

func newTestManager(t *testing.T, outputFolder string, sources ...*fakeSource) *Manager {
	srv := newFakeBeacon(t)
	t.Cleanup(srv.Close)

	base, err := baseclient.NewClient(srv.Listener.Addr().String())
	require.NoError(t, err)
	bc := beacon.NewClient(base)

	cfg := Config{
		VerificationTimeout:  200 * time.Millisecond,
		CollectorStopTimeout: time.Second,
		VerificationInterval: 10 * time.Millisecond,
		OutputFolder:         outputFolder,
	}

	named := make([]source.Source, len(sources))
	for i, s := range sources {
		named[i] = s
	}
	return New(cfg, bc, metrics.NewSink(), named)
}

func TestManager_RunOneVerification_PersistsReport(t *testing.T) {
	dir := t.TempDir()
	fast := &fakeSource{name: "radio", status: result.VerifierOK}
	m := newTestManager(t, dir, fast)

	err := m.runOneVerification(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, fast.verifyHits)

	data, err := os.ReadFile(filepath.Join(dir, "last.json"))
	require.NoError(t, err)

	var env reportEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	require.Equal(t, "1", env.Pulse.Chain)
	require.Equal(t, "42", env.Pulse.ID)
	require.True(t, env.Pulse.Valid)
	require.Contains(t, env.Sources, "radio")
	require.True(t, env.Sources["radio"].Valid)

	pulseFile := filepath.Join(dir, "chain", "1", "pulse", "42.json")
	_, err = os.Stat(pulseFile)
	require.NoError(t, err)
}

func TestManager_VerifyAll_SynthesizesTimeout(t *testing.T) {
	dir := t.TempDir()
	slow := &fakeSource{name: "ethereum", status: result.VerifierOK, delay: time.Second}
	m := newTestManager(t, dir, slow)

	results := m.verifyAll(context.Background(), map[string]beacon.EventSpec{
		"ethereum": {Status: 0},
	})
	require.Equal(t, result.VerifierTimeout, results["ethereum"].StatusCode)
}

func TestManager_RunOneVerification_LastPulseFailureSkipsPersist(t *testing.T) {
	dir := t.TempDir()
	mux := http.NewServeMux()
	mux.HandleFunc("/pulse/last", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	base, err := baseclient.NewClient(srv.Listener.Addr().String())
	require.NoError(t, err)
	bc := beacon.NewClient(base)

	m := New(Config{
		VerificationTimeout:  200 * time.Millisecond,
		CollectorStopTimeout: time.Second,
		VerificationInterval: 10 * time.Millisecond,
		OutputFolder:         dir,
	}, bc, metrics.NewSink(), nil)

	err = m.runOneVerification(context.Background())
	require.Error(t, err)

	_, err = os.Stat(filepath.Join(dir, "last.json"))
	require.True(t, os.IsNotExist(err))
}

func TestManager_StartStop(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{name: "radio", status: result.VerifierOK}
	m := newTestManager(t, dir, src)

	require.Error(t, m.Status())
	m.Start()
	require.NoError(t, m.Status())
	require.NoError(t, m.Stop())
}
