// Package source declares the lifecycle and verification contract every
// concrete source implements, and the cooperative run-loop that drives it
// (spec.md §4.1, §5).
package source

import (
	"context"
	"time"

	"github.com/clcert/beacon-verifier/api/client/beacon"
	"github.com/clcert/beacon-verifier/verifier/result"
)

// RestartDelay is the pause between a crashed collector's init() retries.
const RestartDelay = 5 * time.Second

// Source is the capability set every concrete source implements.
type Source interface {
	// Name identifies the source in config, metrics and results.
	Name() string
	// Init (re)establishes whatever connection or session collection
	// needs; called once before the first Collect and again after every
	// crash-restart.
	Init(ctx context.Context) error
	// Collect performs one bounded, suspendable unit of collection (one
	// frame, one poll, one stream line) and pushes it into the source's
	// buffer.
	Collect(ctx context.Context) error
	// Finish releases whatever Init acquired; called when the run-loop's
	// context is cancelled.
	Finish(ctx context.Context) error
	// Verify decides whether the beacon's declared event is consistent
	// with what the source has buffered; it must never panic and must
	// always return within the context's deadline or be abandoned by the
	// caller.
	Verify(ctx context.Context, spec beacon.EventSpec) result.VerifierResult
	// PossibleMarkers returns the current candidate-marker count.
	PossibleMarkers() int
	// BufferLen returns the current buffer length, for the
	// collector_buffer_size gauge.
	BufferLen() int
}
