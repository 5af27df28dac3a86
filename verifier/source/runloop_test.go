package source

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clcert/beacon-verifier/api/client/beacon"
	"github.com/clcert/beacon-verifier/verifier/metrics"
	"github.com/clcert/beacon-verifier/verifier/result"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	name        string
	collectErrs int32 // Collect fails on exactly the Nth call; -1 never fails
	collected   int32
	initCalls   int32
	finishCalls int32
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Init(ctx context.Context) error {
	atomic.AddInt32(&f.initCalls, 1)
	return nil
}

func (f *fakeSource) Collect(ctx context.Context) error {
	atomic.AddInt32(&f.collected, 1)
	if atomic.LoadInt32(&f.collected) == f.collectErrs {
		return errors.New("boom")
	}
	time.Sleep(time.Millisecond)
	return nil
}

func (f *fakeSource) Finish(ctx context.Context) error {
	atomic.AddInt32(&f.finishCalls, 1)
	return nil
}

func (f *fakeSource) Verify(ctx context.Context, spec beacon.EventSpec) result.VerifierResult {
	return result.VerifierResult{Scope: f.name, StatusCode: result.VerifierOK}
}

func (f *fakeSource) PossibleMarkers() int { return 0 }
func (f *fakeSource) BufferLen() int       { return int(atomic.LoadInt32(&f.collected)) }

func TestRun_GracefulStop(t *testing.T) {
	sink := metrics.NewSink()
	src := &fakeSource{name: "fake", collectErrs: -1}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Run(ctx, src, sink)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&src.finishCalls))
	require.GreaterOrEqual(t, atomic.LoadInt32(&src.collected), int32(1))
}

func TestRun_RestartsAfterCollectorCrash(t *testing.T) {
	sink := metrics.NewSink()
	src := &fakeSource{name: "fake", collectErrs: 2} // crashes on the 2nd collect
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Run(ctx, src, sink)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&src.initCalls) >= 2
	}, RestartDelay+time.Second, 5*time.Millisecond, "expected init to be retried after a crash")
}
