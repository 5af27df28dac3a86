package seism

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/clcert/beacon-verifier/api/client/beacon"
	"github.com/clcert/beacon-verifier/verifier/buffer"
	"github.com/clcert/beacon-verifier/verifier/event"
	"github.com/clcert/beacon-verifier/verifier/result"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "seism")

const bufferSize = 100
const dedupCacheSize = 1024

// Config is the seismology source's per-instance configuration (spec.md §6
// sources.seism).
type Config struct {
	SourceURL     string
	FetchInterval time.Duration
}

// Source polls an HTML seismology bulletin on a fixed interval into a
// (date,id)-ordered heap buffer.
type Source struct {
	cfg    Config
	buf    *buffer.HeapBuffer[event.SeismicEvent]
	client *http.Client
	seen   *lru.Cache // dedups detail pages already parsed across ticks
}

// New constructs a seismology source; every buffered event is a candidate
// (spec.md §4.2: "every currently-buffered event is a candidate").
func New(cfg Config) *Source {
	seen, err := lru.New(dedupCacheSize)
	if err != nil {
		panic(err) // only fails for a non-positive size, which dedupCacheSize never is
	}
	less := func(a, b event.SeismicEvent) bool { return a.Less(b) }
	return &Source{
		cfg:    cfg,
		buf:    buffer.NewHeapBuffer[event.SeismicEvent](bufferSize, less, nil),
		client: &http.Client{Timeout: 30 * time.Second},
		seen:   seen,
	}
}

func (s *Source) Name() string { return "seismology" }

func (s *Source) Init(ctx context.Context) error { return nil }

func (s *Source) Finish(ctx context.Context) error { return nil }

func (s *Source) PossibleMarkers() int { return s.buf.Possible() }
func (s *Source) BufferLen() int       { return s.buf.Len() }

// Collect fetches the summary page, follows each row's detail link not
// already seen, parses it, and buffers the event. Per-row failures are
// logged and skipped; a failure fetching the summary itself waits for the
// next tick without erroring (spec.md §4.5). Each call performs exactly one
// fetch and then sleeps FetchInterval (or until ctx is cancelled) before
// returning, so the run-loop's back-to-back calls are paced per tick.
func (s *Source) Collect(ctx context.Context) error {
	body, err := s.fetch(ctx, s.cfg.SourceURL)
	if err != nil {
		log.WithError(err).Error("cannot get seism list")
		return s.sleepInterval(ctx)
	}

	rows, err := ParseSummaryRows(body)
	if err != nil {
		log.WithError(err).Error("cannot get seism list")
		return s.sleepInterval(ctx)
	}

	for i := len(rows) - 1; i >= 0; i-- { // reverse: chronological order
		row := rows[i]
		id := IDFromHref(row.DetailHref)
		if s.seen.Contains(id) {
			continue
		}
		detailURL, err := url.Parse(s.cfg.SourceURL)
		if err != nil {
			log.WithError(err).Error("parsing seism source url")
			continue
		}
		ref, err := url.Parse(row.DetailHref)
		if err != nil {
			log.WithError(err).WithField("href", row.DetailHref).Error("error parsing seism")
			continue
		}
		detail := detailURL.ResolveReference(ref).String()

		detailBody, err := s.fetch(ctx, detail)
		if err != nil {
			log.WithError(err).WithField("url", detail).Error("error parsing seism")
			continue
		}
		date, lat, long, depth, magnitude, err := DetailFields(detailBody)
		if err != nil {
			log.WithError(err).WithField("url", detail).Error("error parsing seism")
			continue
		}
		ev := event.SeismicEvent{ID: id, DateRaw: date, Lat: lat, Long: long, Depth: depth, Magnitude: magnitude}
		ev.Date, err = time.Parse("15:04:05 02/01/2006", date)
		if err != nil {
			log.WithError(err).WithField("url", detail).Error("error parsing seism date")
			continue
		}
		s.seen.Add(id, struct{}{})
		if ev.IsERB() {
			log.WithField("classification", "erb").Debug("buffering erb_ seism event")
		}
		s.buf.Add(ev)
	}
	return s.sleepInterval(ctx)
}

func (s *Source) sleepInterval(ctx context.Context) error {
	select {
	case <-time.After(s.cfg.FetchInterval):
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (s *Source) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building seism request")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetching seism page")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("seism page returned HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

type beaconEvent struct {
	ID        string `json:"id"`
	UTC       string `json:"utc"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
	Depth     string `json:"depth"`
	Magnitude string `json:"magnitude"`
}

// Verify implements spec.md §4.5.
func (s *Source) Verify(ctx context.Context, spec beacon.EventSpec) result.VerifierResult {
	res := result.NewVerifierResult(s.Name(), spec.Status, s.PossibleMarkers())

	if spec.Status&(1<<1) != 0 {
		return res.Finish(result.VerifierExtractionError, fmt.Sprintf("beacon_status=%d", spec.Status))
	}

	matchesMarker := func(e event.SeismicEvent) bool { return e.Marker() == spec.Metadata }
	if !s.buf.CheckMarker(matchesMarker) {
		return res.Finish(result.VerifierMetadataNotFoundSeism,
			fmt.Sprintf("metadata=%q not found", spec.Metadata))
	}

	ours, _ := s.buf.GetFirst()
	var be beaconEvent
	if err := json.Unmarshal([]byte(spec.Raw), &be); err != nil {
		return res.Finish(result.VerifierSeismMismatch, fmt.Sprintf("cannot parse beacon event: %v", err))
	}
	theirs := event.SeismicEvent{ID: be.ID, DateRaw: be.UTC, Lat: be.Latitude, Long: be.Longitude, Depth: be.Depth, Magnitude: be.Magnitude}

	if !ours.Equal(theirs) {
		return res.Finish(result.VerifierSeismMismatch,
			fmt.Sprintf("ours=%+v", ours), fmt.Sprintf("theirs=%+v", theirs))
	}
	return res.Finish(result.VerifierOK)
}
