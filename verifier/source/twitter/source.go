// Package twitter implements the microblog source: an OAuth2
// client-credentials sampled-stream collector feeding a (date,id) min-heap
// buffer, and a sorted-merge uniqueness verifier (spec.md §4.4).
package twitter

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/clcert/beacon-verifier/api/client/beacon"
	"github.com/clcert/beacon-verifier/verifier/buffer"
	"github.com/clcert/beacon-verifier/verifier/event"
	"github.com/clcert/beacon-verifier/verifier/metrics"
	"github.com/clcert/beacon-verifier/verifier/result"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var log = logrus.WithField("prefix", "twitter")

const (
	streamURL    = "https://api.twitter.com/2/tweets/sample/stream?tweet.fields=created_at&expansions=author_id"
	tokenURL     = "https://api.twitter.com/oauth2/token"
	bufferSize   = 20000
	maxBackoff   = 5 * time.Minute
)

// Config is the microblog source's per-instance configuration (spec.md §6
// sources.microblog).
type Config struct {
	ConsumerKey    string
	ConsumerSecret string
	TweetInterval  int // seconds
	SecondStart    int
}

// Source consumes Twitter's sampled stream under OAuth2 client-credentials
// auth into a (date,id)-ordered heap buffer.
type Source struct {
	cfg    Config
	buf    *buffer.HeapBuffer[event.Tweet]
	sink   *metrics.Sink
	tokSrc oauth2.TokenSource
	client *http.Client
	resp   *http.Response
	scan   *bufio.Scanner
	backoff time.Duration
}

// New constructs a microblog source; candidacy is "tweet's date-second
// equals the configured secondStart" per spec.md §4.2.
func New(cfg Config, sink *metrics.Sink) *Source {
	possible := func(t event.Tweet) bool { return t.CreatedAt.Second() == cfg.SecondStart }
	less := func(a, b event.Tweet) bool { return a.Less(b) }
	return &Source{
		cfg:  cfg,
		buf:  buffer.NewHeapBuffer[event.Tweet](bufferSize, less, possible),
		sink: sink,
	}
}

func (s *Source) Name() string { return "twitter" }

func (s *Source) Init(ctx context.Context) error {
	ccCfg := clientcredentials.Config{
		ClientID:     s.cfg.ConsumerKey,
		ClientSecret: s.cfg.ConsumerSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	s.tokSrc = ccCfg.TokenSource(ctx)
	s.client = oauth2.NewClient(ctx, s.tokSrc)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return errors.Wrap(err, "building microblog stream request")
	}
	req.Header.Set("User-Agent", "RandomVerifier-Go")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "opening microblog sampled stream")
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		s.backoff = nextBackoff(s.backoff)
		log.WithField("backoff", s.backoff).Warn("microblog stream rate-limited")
		select {
		case <-time.After(s.backoff):
		case <-ctx.Done():
		}
		return errors.New("microblog stream rate limited (HTTP 429)")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return errors.Errorf("microblog stream returned HTTP %d: %s", resp.StatusCode, string(body))
	}
	s.backoff = 0
	s.resp = resp
	s.scan = bufio.NewScanner(resp.Body)
	s.scan.Buffer(make([]byte, 64*1024), 1024*1024)
	return nil
}

func nextBackoff(cur time.Duration) time.Duration {
	if cur == 0 {
		return time.Second
	}
	next := cur * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

type streamEnvelope struct {
	Data *streamTweet `json:"data"`
}

type streamTweet struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	AuthorID  string `json:"author_id"`
	Text      string `json:"text"`
}

// Collect reads one line of the sampled stream and, if it falls inside its
// own [start, start+interval] window (start = its own timestamp with the
// second replaced by secondStart), buffers it.
func (s *Source) Collect(ctx context.Context) error {
	if !s.scan.Scan() {
		if err := s.scan.Err(); err != nil {
			return errors.Wrap(err, "reading microblog stream")
		}
		return errors.New("microblog stream closed")
	}
	line := s.scan.Bytes()
	if len(line) == 0 {
		return nil // keep-alive newline
	}

	var env streamEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return errors.Wrap(err, "decoding microblog stream line")
	}
	if env.Data == nil {
		return errors.Errorf("microblog stream line missing data: %s", string(line))
	}

	tweet, err := parseTweet(env.Data.ID, env.Data.CreatedAt, env.Data.AuthorID, env.Data.Text)
	if err != nil {
		log.WithError(err).Warn("dropping unparsable tweet")
		return nil
	}

	start := time.Date(tweet.CreatedAt.Year(), tweet.CreatedAt.Month(), tweet.CreatedAt.Day(),
		tweet.CreatedAt.Hour(), tweet.CreatedAt.Minute(), s.cfg.SecondStart, 0, tweet.CreatedAt.Location())
	end := start.Add(time.Duration(s.cfg.TweetInterval) * time.Second)
	if (tweet.CreatedAt.Equal(start) || tweet.CreatedAt.After(start)) && !tweet.CreatedAt.After(end) {
		s.buf.Add(tweet)
	}
	return nil
}

func (s *Source) Finish(ctx context.Context) error {
	if s.resp != nil {
		return s.resp.Body.Close()
	}
	return nil
}

func (s *Source) PossibleMarkers() int { return s.buf.Possible() }
func (s *Source) BufferLen() int       { return s.buf.Len() }

func parseTweet(id, createdAt, author, text string) (event.Tweet, error) {
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return event.Tweet{}, errors.Wrapf(err, "parsing tweet created_at %q", createdAt)
	}
	var idNum uint64
	if _, err := fmt.Sscanf(id, "%d", &idNum); err != nil {
		return event.Tweet{}, errors.Wrapf(err, "parsing tweet id %q", id)
	}
	return event.Tweet{ID: idNum, CreatedAt: t, AuthorID: author, Text: text}, nil
}

func parseTweetList(raw string) []event.Tweet {
	if len(raw) == 0 {
		log.Error("beacon reported an empty tweet list payload")
		return nil
	}
	var items []streamTweet
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		log.WithError(err).Error("cannot parse beacon tweet list")
		return nil
	}
	tweets := make([]event.Tweet, 0, len(items))
	for _, t := range items {
		tweet, err := parseTweet(t.ID, t.CreatedAt, t.AuthorID, t.Text)
		if err != nil {
			log.WithError(err).Warn("dropping unparsable beacon tweet")
			continue
		}
		tweets = append(tweets, tweet)
	}
	return tweets
}

// Verify implements spec.md §4.4.
func (s *Source) Verify(ctx context.Context, spec beacon.EventSpec) result.VerifierResult {
	res := result.NewVerifierResult(s.Name(), spec.Status, s.PossibleMarkers())

	if spec.Status&(1<<1) != 0 {
		return res.Finish(result.VerifierExtractionError, fmt.Sprintf("status=%d", spec.Status))
	}

	metadata := spec.Metadata
	if len(metadata) > 0 && metadata[len(metadata)-1] == 'Z' {
		metadata = metadata[:len(metadata)-1]
	}
	start, err := time.Parse("2006-01-02T15:04:05", metadata)
	if err != nil {
		return res.Finish(result.VerifierMetadataInconsistent, fmt.Sprintf("unparsable metadata=%s", spec.Metadata))
	}
	end := start.Add(time.Duration(s.cfg.TweetInterval) * time.Second)

	if start.Second() != s.cfg.SecondStart {
		return res.Finish(result.VerifierMetadataInconsistent, fmt.Sprintf("second=%d", s.cfg.SecondStart))
	}

	theirList := parseTweetList(spec.Raw)
	if len(theirList) == 0 {
		return res.Finish(result.VerifierMetadataNotFound, "beacon reported an empty tweet list")
	}

	matchesStart := func(t event.Tweet) bool { return t.CreatedAt.Equal(start) }
	if !s.buf.CheckMarker(matchesStart) {
		return res.Finish(result.VerifierMetadataNotFound,
			fmt.Sprintf("metadata=%s", spec.Metadata), fmt.Sprintf("buffer_size=%d", s.buf.Len()))
	}

	inBound := func(t event.Tweet) bool { return !t.CreatedAt.After(end) }
	ourList := s.buf.GetList(inBound)
	if len(ourList) == 0 {
		return res.Finish(result.VerifierMetadataNotFound, "verifier reported an empty tweet list")
	}

	ourUniq, theirUniq := symmetricDifferenceByID(ourList, theirList)
	if s.sink != nil {
		s.sink.TwitterVerifierExtraTweets.WithLabelValues("verifier").Add(float64(len(ourUniq)))
		s.sink.TwitterVerifierExtraTweets.WithLabelValues("beacon").Add(float64(len(theirUniq)))
	}
	if len(ourUniq) > 0 || len(theirUniq) > 0 {
		return res.Finish(result.VerifierDataMismatch,
			fmt.Sprintf("our_len=%d", len(ourList)), fmt.Sprintf("their_len=%d", len(theirList)),
			fmt.Sprintf("our_uniq=%v", idsOf(ourUniq)), fmt.Sprintf("their_uniq=%v", idsOf(theirUniq)))
	}
	return res.Finish(result.VerifierOK)
}

// symmetricDifferenceByID walks both id-sorted lists with a merge, per
// spec.md §4.4's sorted set-difference.
func symmetricDifferenceByID(ours, theirs []event.Tweet) (ourUniq, theirUniq []event.Tweet) {
	i, j := 0, 0
	for i < len(ours) && j < len(theirs) {
		switch {
		case ours[i].ID < theirs[j].ID:
			ourUniq = append(ourUniq, ours[i])
			i++
		case theirs[j].ID < ours[i].ID:
			theirUniq = append(theirUniq, theirs[j])
			j++
		default:
			i++
			j++
		}
	}
	ourUniq = append(ourUniq, ours[i:]...)
	theirUniq = append(theirUniq, theirs[j:]...)
	return ourUniq, theirUniq
}

func idsOf(tweets []event.Tweet) []uint64 {
	out := make([]uint64, len(tweets))
	for i, t := range tweets {
		out[i] = t.ID
	}
	return out
}
