// Package metrics holds the Prometheus counter/gauge/summary handles
// named in spec.md §6 behind a single Sink shared by reference across the
// manager and every source.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "metrics")

// CollectorState enumerates the states published to collector_status.
type CollectorState int

const (
	CollectorStarting CollectorState = iota
	CollectorRunning
	CollectorStopping
	CollectorStopped
)

// Sink owns every metric the verifier exposes and the HTTP server serving
// them at /metrics.
type Sink struct {
	registry *prometheus.Registry

	PulseNumber                 *prometheus.CounterVec
	PulseStatus                 *prometheus.CounterVec
	VerificationPossible        *prometheus.GaugeVec
	VerificationExtValueStatus  *prometheus.CounterVec
	VerificationStatus          *prometheus.CounterVec
	VerificationSeconds         *prometheus.SummaryVec
	CollectorStatus             *prometheus.GaugeVec
	CollectorBufferSize         *prometheus.GaugeVec
	ExceptionsNumber            prometheus.Counter
	TwitterVerifierExtraTweets  *prometheus.CounterVec
}

// NewSink constructs and registers every metric against a fresh registry.
func NewSink() *Sink {
	reg := prometheus.NewRegistry()
	s := &Sink{
		registry: reg,
		PulseNumber: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_number",
			Help: "Number of pulses observed, by chain.",
		}, []string{"chain"}),
		PulseStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_status",
			Help: "Number of pulses observed, by resulting status code.",
		}, []string{"code"}),
		VerificationPossible: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "verification_possible",
			Help: "Candidate marker count at the time a source was last verified.",
		}, []string{"source"}),
		VerificationExtValueStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_ext_value_status",
			Help: "ExtValueStatus bit observations, by source and bit index.",
		}, []string{"source", "code"}),
		VerificationStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_status",
			Help: "Verifier result status codes, by source.",
		}, []string{"source", "code"}),
		VerificationSeconds: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       "verification_seconds",
			Help:       "Wall-clock duration of a source's verify() call.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"source"}),
		CollectorStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "collector_status",
			Help: "Collector lifecycle state (0=starting,1=running,2=stopping,3=stopped), by source.",
		}, []string{"source"}),
		CollectorBufferSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "collector_buffer_size",
			Help: "Current buffer length, by source.",
		}, []string{"source"}),
		ExceptionsNumber: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exceptions_number",
			Help: "Total uncaught exceptions across all collectors and the verification loop.",
		}),
		TwitterVerifierExtraTweets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "twitter_verifier_extra_tweets",
			Help: "Tweets present on one side only of a microblog verification diff.",
		}, []string{"owner"}),
	}
	reg.MustRegister(
		s.PulseNumber, s.PulseStatus, s.VerificationPossible, s.VerificationExtValueStatus,
		s.VerificationStatus, s.VerificationSeconds, s.CollectorStatus, s.CollectorBufferSize,
		s.ExceptionsNumber, s.TwitterVerifierExtraTweets,
	)
	return s
}

// SetCollectorStatus publishes a source's collector lifecycle state.
func (s *Sink) SetCollectorStatus(source string, state CollectorState) {
	s.CollectorStatus.WithLabelValues(source).Set(float64(state))
}

// ObserveVerification records the duration and status code of one verify()
// call along with the ext-value-status bits observed.
func (s *Sink) ObserveVerification(source string, statusCode int, extValueStatus uint8, duration time.Duration, possible int) {
	code := strconv.Itoa(statusCode)
	s.VerificationStatus.WithLabelValues(source, code).Inc()
	s.VerificationSeconds.WithLabelValues(source).Observe(duration.Seconds())
	s.VerificationPossible.WithLabelValues(source).Set(float64(possible))
	for bit := 0; bit < 4; bit++ {
		if extValueStatus&(1<<uint(bit)) != 0 {
			s.VerificationExtValueStatus.WithLabelValues(source, strconv.Itoa(bit)).Inc()
		}
	}
}

// ObservePulse records a completed pulse's chain and status code.
func (s *Sink) ObservePulse(chain string, statusCode int) {
	s.PulseNumber.WithLabelValues(chain).Inc()
	s.PulseStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Server wraps a Sink's HTTP exporter as a runtime.Service, started and
// stopped alongside the manager by the registry.
type Server struct {
	sink   *Sink
	port   int
	cancel context.CancelFunc
	done   chan struct{}
}

// NewServer builds a metrics HTTP server service for the given sink and
// port.
func NewServer(sink *Sink, port int) *Server {
	return &Server{sink: sink, port: port}
}

// Start launches the exporter in the background. It implements
// runtime.Service.
func (s *Server) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.sink.Serve(ctx, s.port); err != nil {
			log.WithError(err).Error("metrics server exited with error")
		}
	}()
}

// Stop signals the exporter to shut down and waits for it to finish. It
// implements runtime.Service.
func (s *Server) Stop() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	<-s.done
	return nil
}

// Status always reports healthy once started; the exporter's own HTTP
// server failure is logged, not surfaced here.
func (s *Server) Status() error {
	return nil
}

// Serve starts the /metrics and /healthz HTTP server and blocks until ctx
// is cancelled.
func (s *Sink) Serve(ctx context.Context, port int) error {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: router}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server stopped unexpectedly")
			return err
		}
		return nil
	}
}
