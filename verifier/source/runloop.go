package source

import (
	"context"
	"fmt"
	"time"

	"github.com/clcert/beacon-verifier/async"
	"github.com/clcert/beacon-verifier/verifier/metrics"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "source")

// Run drives src through the state machine of spec.md §4.1:
//
//	loop forever:
//	    init()
//	    while not stopped: collect()
//	    finish()
//	    return
//	  on exception: metrics.exceptions++; sleep RestartDelay; retry from init()
//
// ctx cancellation is the stop signal; Run returns once finish() completes
// after the final, non-crashing exit.
func Run(ctx context.Context, src Source, sink *metrics.Sink) {
	name := src.Name()
	for {
		sink.SetCollectorStatus(name, metrics.CollectorStarting)
		if err := safeInit(ctx, src); err != nil {
			log.WithField("source", name).WithError(err).Error("init failed, restarting")
			sink.ExceptionsNumber.Inc()
			if !sleepOrDone(ctx, RestartDelay) {
				return
			}
			continue
		}

		sink.SetCollectorStatus(name, metrics.CollectorRunning)
		crashed := collectLoop(ctx, src, sink)
		if ctx.Err() != nil {
			sink.SetCollectorStatus(name, metrics.CollectorStopping)
			_ = src.Finish(context.Background())
			sink.SetCollectorStatus(name, metrics.CollectorStopped)
			return
		}
		if crashed {
			sink.ExceptionsNumber.Inc()
			if !sleepOrDone(ctx, RestartDelay) {
				return
			}
			continue
		}
	}
}

// collectLoop calls Collect until ctx is cancelled or Collect returns an
// error (a "crash"); it reports which of the two happened via its bool
// return (true = crashed). The cooperative "step until stopped or
// cancelled" shape is async.RunUntilCancelled.
func collectLoop(ctx context.Context, src Source, sink *metrics.Sink) bool {
	name := src.Name()
	crashed := false
	async.RunUntilCancelled(ctx, func(ctx context.Context) bool {
		if err := safeCollect(ctx, src); err != nil {
			log.WithField("source", name).WithError(err).Error("collector crashed")
			crashed = true
			return false
		}
		sink.CollectorBufferSize.WithLabelValues(name).Set(float64(src.BufferLen()))
		return true
	})
	return crashed
}

// safeInit and safeCollect recover from panics in source code so a bug in
// one collector cannot take down the whole process; a recovered panic is
// treated the same as a returned error; errors from these functions are the
// only thing that causes the run-loop to count an exception and restart.
func safeInit(ctx context.Context, src Source) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicAsError(r)
		}
	}()
	return src.Init(ctx)
}

func safeCollect(ctx context.Context, src Source) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicAsError(r)
		}
	}()
	return src.Collect(ctx)
}

// sleepOrDone waits for d, returning false early (without having slept the
// full duration) if ctx is cancelled first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func panicAsError(r interface{}) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
