package radio

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/clcert/beacon-verifier/api/client/beacon"
	"github.com/clcert/beacon-verifier/verifier/buffer"
	"github.com/clcert/beacon-verifier/verifier/event"
	"github.com/clcert/beacon-verifier/verifier/result"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "radio")

const (
	bufferSize    = 26 * 1000 * 2 * 5
	framesNum     = 300
	frameReadTimeout = 5 * time.Second
)

// Config is the radio source's per-instance configuration (spec.md §6
// sources.radio).
type Config struct {
	URL    string
	Port   int
	Prefix string
}

// Source streams MPEG frames from a TCP radio feed into a FIFO buffer and
// verifies the beacon's declared marker/raw window against it.
type Source struct {
	cfg  Config
	buf  *buffer.FIFOBuffer[event.RadioFrame]
	conn net.Conn
	r    *bufio.Reader
}

// New constructs a radio source; candidacy for Possible() is "marker
// lexicographically at or below prefix||ffff…" per spec.md §4.2.
func New(cfg Config) *Source {
	limit := cfg.Prefix + strings.Repeat("f", 128-len(cfg.Prefix))
	possible := func(marker string) bool { return marker <= limit }
	return &Source{
		cfg: cfg,
		buf: buffer.NewFIFOBuffer[event.RadioFrame](bufferSize, nil, possible),
	}
}

func (s *Source) Name() string { return "radio" }

func (s *Source) Init(ctx context.Context) error {
	conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", s.cfg.URL, s.cfg.Port))
	if err != nil {
		return errors.Wrap(err, "dialing radio stream")
	}
	if _, err := conn.Write([]byte("GET /; HTTP/1.0\r\n\r\n")); err != nil {
		conn.Close()
		return errors.Wrap(err, "sending radio stream request")
	}
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			conn.Close()
			return errors.Wrap(err, "reading radio stream headers")
		}
		if strings.TrimSpace(line) == "" {
			break
		}
	}
	s.conn = conn
	s.r = r
	return nil
}

func (s *Source) Collect(ctx context.Context) error {
	s.conn.SetReadDeadline(time.Now().Add(frameReadTimeout))
	header, body, err := ReadFrame(s.r)
	if err != nil {
		return errors.Wrap(err, "reading mp3 frame")
	}
	frame := event.RadioFrame{Header: header, Body: body}
	s.buf.Add(frame.Marker(), frame)
	return nil
}

func (s *Source) Finish(ctx context.Context) error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Source) PossibleMarkers() int { return s.buf.Possible() }
func (s *Source) BufferLen() int       { return s.buf.Len() }

// Verify implements spec.md §4.3.
func (s *Source) Verify(ctx context.Context, spec beacon.EventSpec) result.VerifierResult {
	res := result.NewVerifierResult(s.Name(), spec.Status, s.PossibleMarkers())

	if spec.Status&(1<<1) != 0 {
		return res.Finish(result.VerifierExtractionError, fmt.Sprintf("beacon_status=%d", spec.Status))
	}

	pad := len(spec.Metadata) - len(s.cfg.Prefix)
	if pad < 0 {
		pad = 0
	}
	limit := s.cfg.Prefix + strings.Repeat("f", pad)
	if spec.Metadata > limit {
		return res.Finish(result.VerifierMetadataInconsistent,
			fmt.Sprintf("limit=%s", limit), fmt.Sprintf("metadata=%s", spec.Metadata))
	}

	if !s.buf.CheckMarker(spec.Metadata) {
		return res.Finish(result.VerifierMetadataNotFound,
			fmt.Sprintf("metadata=%s", spec.Metadata), fmt.Sprintf("buffer_size=%d", s.buf.Len()))
	}

	for s.buf.Len() < framesNum {
		log.WithField("have", s.buf.Len()).WithField("need", framesNum).Debug("waiting for buffer to fill")
		select {
		case <-ctx.Done():
			return res.Finish(result.VerifierTimeout, "context cancelled waiting for buffer to fill")
		case <-time.After(5 * time.Second):
		}
	}

	frames := s.buf.GetList(framesNum)
	var joined []byte
	for _, f := range frames {
		joined = append(joined, f.Canonical()...)
	}
	ours := hex.EncodeToString(joined)
	if ours != spec.Raw {
		return res.Finish(result.VerifierDataMismatch,
			fmt.Sprintf("ours=%s", ours), fmt.Sprintf("theirs=%s", spec.Raw))
	}
	return res.Finish(result.VerifierOK)
}
