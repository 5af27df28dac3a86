// Package manager implements the source manager (spec.md §4.7): it starts
// every configured source's collector as an independent background task,
// runs a periodic verification loop that fans out per-source verify()
// calls under a wall-clock budget, and persists a JSON report per pulse.
package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/clcert/beacon-verifier/api/client/beacon"
	"github.com/clcert/beacon-verifier/verifier/metrics"
	"github.com/clcert/beacon-verifier/verifier/result"
	"github.com/clcert/beacon-verifier/verifier/source"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var log = logrus.WithField("prefix", "manager")

// Config holds the manager's own settings from spec.md §6.
type Config struct {
	VerificationTimeout  time.Duration
	CollectorStopTimeout time.Duration
	VerificationInterval time.Duration
	OutputFolder         string
}

// Manager groups, starts and stops a set of sources, and drives the
// periodic verification cycle. It implements runtime.Service so it can be
// registered alongside the metrics HTTP server.
type Manager struct {
	cfg     Config
	client  *beacon.Client
	sink    *metrics.Sink
	sources []source.Source

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a manager over the given sources; client talks to the
// beacon's HTTP API and sink is shared by reference with every source.
func New(cfg Config, client *beacon.Client, sink *metrics.Sink, sources []source.Source) *Manager {
	return &Manager{cfg: cfg, client: client, sink: sink, sources: sources}
}

// Start launches every source's collector run-loop and the verification
// loop as background goroutines. It implements runtime.Service.
func (m *Manager) Start() {
	m.ctx, m.cancel = context.WithCancel(context.Background())

	names := make([]string, len(m.sources))
	for i, s := range m.sources {
		names[i] = s.Name()
	}
	log.WithField("sources", names).Info("starting collectors")

	for _, s := range m.sources {
		s := s
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			source.Run(m.ctx, s, m.sink)
		}()
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runVerificationLoop(m.ctx)
	}()
}

// Stop signals every source's run-loop to exit and waits up to
// CollectorStopTimeout for them to finish, per spec.md §4.7. It implements
// runtime.Service.
func (m *Manager) Stop() error {
	if m.cancel == nil {
		return nil
	}
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(m.cfg.CollectorStopTimeout):
		log.Warn("collector stop timeout elapsed, some collectors may still be shutting down")
		return fmt.Errorf("manager: stop timed out after %s", m.cfg.CollectorStopTimeout)
	}
}

// Status reports unhealthy if the manager was never started.
func (m *Manager) Status() error {
	if m.ctx == nil {
		return fmt.Errorf("manager: not started")
	}
	return nil
}

func (m *Manager) runVerificationLoop(ctx context.Context) {
	select {
	case <-time.After(2 * m.cfg.VerificationInterval):
	case <-ctx.Done():
		return
	}

	log.Info("starting verification process")
	for {
		start := time.Now()
		if err := m.runOneVerification(ctx); err != nil {
			m.sink.ExceptionsNumber.Inc()
			log.WithError(err).Error("exception verifying pulse")
		}
		elapsed := time.Since(start)
		wait := 60*time.Second - elapsed
		if wait < 0 {
			wait = 0
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) runOneVerification(ctx context.Context) error {
	pulseURL, extValue, err := m.client.LastPulse()
	if err != nil {
		// No pulse_id or chain is known yet, so there is nothing to file a
		// report under; just surface the error to the caller's exception count.
		return fmt.Errorf("fetching latest pulse: %w", err)
	}

	log.WithField("pulse", pulseURL).Info("verifying pulse")
	pr := result.NewPulseResult(pulseURL)

	specs, err := m.client.ExtValue(extValue)
	if err != nil {
		pr = pr.Finish(result.PulseExternalValueInvalid, err.Error())
		m.persist(pr, nil)
		return err
	}

	results := m.verifyAll(ctx, specs)
	pr = pr.Finish(result.PulseOK)
	pr.Sources = results
	m.registerMetrics(pr, results)
	m.persist(pr, results)
	return nil
}

// verifyAll fans out source.Verify for every registered source under
// VerificationTimeout, synthesising 250 (timeout) for stragglers and 299
// (unknown) for a Verify that panics.
func (m *Manager) verifyAll(ctx context.Context, specs map[string]beacon.EventSpec) map[string]result.VerifierResult {
	vctx, cancel := context.WithTimeout(ctx, m.cfg.VerificationTimeout)
	defer cancel()

	results := make(map[string]result.VerifierResult, len(m.sources))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(vctx)

	for _, s := range m.sources {
		s := s
		spec := specs[s.Name()]
		g.Go(func() error {
			done := make(chan result.VerifierResult, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						done <- result.NewVerifierResult(s.Name(), spec.Status, s.PossibleMarkers()).
							Finish(result.VerifierUnknown, fmt.Sprint(r))
					}
				}()
				done <- s.Verify(gctx, spec)
			}()
			select {
			case res := <-done:
				mu.Lock()
				results[s.Name()] = res
				mu.Unlock()
			case <-vctx.Done():
				mu.Lock()
				results[s.Name()] = result.NewVerifierResult(s.Name(), spec.Status, s.PossibleMarkers()).
					Finish(result.VerifierTimeout, "verification task exceeded the fan-out deadline")
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (m *Manager) registerMetrics(pr result.PulseResult, results map[string]result.VerifierResult) {
	m.sink.ObservePulse(pr.ChainID(), int(pr.StatusCode))
	for _, res := range results {
		m.sink.ObserveVerification(res.Scope, int(res.StatusCode), res.ExtValueStatus, res.RunningTime(), res.Possible)
	}
}

type reportEnvelope struct {
	CheckedDate string                     `json:"checked_date"`
	Pulse       pulseReport                `json:"pulse"`
	Sources     map[string]sourceReport    `json:"sources"`
}

type pulseReport struct {
	ID          string   `json:"id"`
	Chain       string   `json:"chain"`
	PulseURL    string   `json:"pulse_url"`
	Valid       bool     `json:"valid"`
	StatusCode  int      `json:"status_code"`
	RunningTime float64  `json:"running_time"`
	Reason      string   `json:"reason"`
	Detail      []string `json:"detail"`
}

type sourceReport struct {
	Valid          bool            `json:"valid"`
	ExtValueStatus map[string]bool `json:"ext_value_status"`
	Possible       int             `json:"possible"`
	RunningTime    float64         `json:"running_time"`
	Reason         string          `json:"reason"`
	Detail         []string        `json:"detail"`
}

func (m *Manager) persist(pr result.PulseResult, results map[string]result.VerifierResult) {
	env := reportEnvelope{
		CheckedDate: time.Now().UTC().Format(time.RFC3339),
		Pulse: pulseReport{
			ID:          pr.PulseID(),
			Chain:       pr.ChainID(),
			PulseURL:    pr.PulseURL,
			Valid:       pr.Valid(),
			StatusCode:  int(pr.StatusCode),
			RunningTime: pr.RunningTime().Seconds(),
			Reason:      pr.StatusCode.String(),
			Detail:      pr.Detail,
		},
		Sources: make(map[string]sourceReport, len(results)),
	}
	for name, res := range results {
		env.Sources[name] = sourceReport{
			Valid:          res.Valid(),
			ExtValueStatus: result.RenderExtValueStatus(res.ExtValueStatus),
			Possible:       res.Possible,
			RunningTime:    res.RunningTime().Seconds(),
			Reason:         res.StatusCode.String(),
			Detail:         res.Detail,
		}
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		log.WithError(err).Error("cannot marshal pulse report")
		return
	}

	folder := filepath.Join(m.cfg.OutputFolder, "chain", env.Pulse.Chain, "pulse")
	if err := os.MkdirAll(folder, 0o755); err != nil {
		log.WithError(err).Error("cannot create pulse report folder")
		return
	}
	if err := writeAtomic(filepath.Join(folder, env.Pulse.ID+".json"), data); err != nil {
		log.WithError(err).Error("cannot write pulse report")
	}
	if err := writeAtomic(filepath.Join(m.cfg.OutputFolder, "last.json"), data); err != nil {
		log.WithError(err).Error("cannot write last.json")
	}
	log.WithFields(logrus.Fields{"pulse": env.Pulse.ID, "size": humanize.Bytes(uint64(len(data)))}).
		Debug("persisted pulse report")
}

// writeAtomic writes data to a temp file in the same directory as path and
// renames it into place, so a reader never observes a partial write.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
