package seism

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clcert/beacon-verifier/api/client/beacon"
	"github.com/clcert/beacon-verifier/verifier/event"
	"github.com/clcert/beacon-verifier/verifier/result"
	"github.com/stretchr/testify/require"
)

func newTestSource(url string) *Source {
	return New(Config{SourceURL: url, FetchInterval: time.Millisecond})
}

func TestCollect_ParsesSummaryAndDetailPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(summaryHTML))
	})
	mux.HandleFunc("/detail/s1.html", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(detailHTML))
	})
	mux.HandleFunc("/detail/s2.html", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(detailHTML))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := newTestSource(srv.URL + "/")
	require.NoError(t, s.Collect(context.Background()))
	require.Equal(t, 2, s.BufferLen())
}

func TestVerify_ExtractionError(t *testing.T) {
	s := newTestSource("http://unused")
	res := s.Verify(context.Background(), beacon.EventSpec{Status: 1 << 1})
	require.Equal(t, result.VerifierExtractionError, res.StatusCode)
}

func TestVerify_MetadataNotFound(t *testing.T) {
	s := newTestSource("http://unused")
	res := s.Verify(context.Background(), beacon.EventSpec{Metadata: "deadbeef"})
	require.Equal(t, result.VerifierMetadataNotFoundSeism, res.StatusCode)
}

func TestVerify_Match(t *testing.T) {
	s := newTestSource("http://unused")
	ev := event.SeismicEvent{ID: "s1", DateRaw: "12:00:00 01/01/2025", Lat: "-33", Long: "-70", Depth: "10", Magnitude: "4.5"}
	ev.Date, _ = time.Parse("15:04:05 02/01/2006", ev.DateRaw)
	s.buf.Add(ev)

	raw, _ := json.Marshal(beaconEvent{ID: ev.ID, UTC: ev.DateRaw, Latitude: ev.Lat, Longitude: ev.Long, Depth: ev.Depth, Magnitude: ev.Magnitude})
	res := s.Verify(context.Background(), beacon.EventSpec{Metadata: ev.Marker(), Raw: string(raw)})
	require.Equal(t, result.VerifierOK, res.StatusCode)
}

func TestVerify_Mismatch(t *testing.T) {
	s := newTestSource("http://unused")
	ev := event.SeismicEvent{ID: "s1", DateRaw: "12:00:00 01/01/2025", Lat: "-33", Long: "-70", Depth: "10", Magnitude: "4.5"}
	ev.Date, _ = time.Parse("15:04:05 02/01/2006", ev.DateRaw)
	s.buf.Add(ev)

	theirs := beaconEvent{ID: "s1", UTC: ev.DateRaw, Latitude: "-34", Longitude: ev.Long, Depth: ev.Depth, Magnitude: ev.Magnitude}
	raw, _ := json.Marshal(theirs)
	res := s.Verify(context.Background(), beacon.EventSpec{Metadata: ev.Marker(), Raw: string(raw)})
	require.Equal(t, result.VerifierSeismMismatch, res.StatusCode)
}

func TestSeismicEvent_MarkerIsStable(t *testing.T) {
	ev := event.SeismicEvent{ID: "s1", DateRaw: "12:00:00 01/01/2025", Lat: "-33", Long: "-70", Depth: "10", Magnitude: "4.5"}
	m1 := ev.Marker()
	m2 := ev.Marker()
	require.Equal(t, m1, m2)
	_, err := hex.DecodeString(m1)
	require.NoError(t, err)
}
