// Package result defines the pulse-level and per-source verification
// result types shared by every source and the manager.
package result

import (
	"strings"
	"time"
)

// PulseStatus enumerates the outcomes of fetching and extracting a pulse.
type PulseStatus int

const (
	PulseOK                   PulseStatus = 100
	PulseExtractionFailed     PulseStatus = 110
	PulseExternalValueInvalid PulseStatus = 120
	PulseTimeout              PulseStatus = 130
	PulseUnknown              PulseStatus = 199
)

// VerifierStatus enumerates the outcomes of a single source's verify().
type VerifierStatus int

const (
	VerifierOK                    VerifierStatus = 200
	VerifierEmptyMetadata         VerifierStatus = 210
	VerifierEmptyRaw              VerifierStatus = 211
	VerifierMetadataInconsistent  VerifierStatus = 220
	VerifierDataMismatch          VerifierStatus = 221
	VerifierMetadataNotFound      VerifierStatus = 222
	VerifierSeismMismatch         VerifierStatus = 230
	VerifierMetadataNotFoundSeism VerifierStatus = 231
	VerifierExtractionError       VerifierStatus = 240
	VerifierTimeout               VerifierStatus = 250
	VerifierUnknown               VerifierStatus = 299
)

var pulseStatusReasons = map[PulseStatus]string{
	PulseOK:                   "ok",
	PulseExtractionFailed:     "extraction_failed",
	PulseExternalValueInvalid: "external_value_invalid",
	PulseTimeout:              "timeout",
	PulseUnknown:              "unknown",
}

// String renders the short machine name used as the report's "reason"
// field, falling back to "unknown" for an unrecognized code.
func (s PulseStatus) String() string {
	if name, ok := pulseStatusReasons[s]; ok {
		return name
	}
	return "unknown"
}

var verifierStatusReasons = map[VerifierStatus]string{
	VerifierOK:                    "ok",
	VerifierEmptyMetadata:         "empty_metadata",
	VerifierEmptyRaw:              "empty_raw",
	VerifierMetadataInconsistent:  "metadata_inconsistent",
	VerifierDataMismatch:          "data_mismatch",
	VerifierMetadataNotFound:      "metadata_not_found",
	VerifierSeismMismatch:         "seism_mismatch",
	VerifierMetadataNotFoundSeism: "metadata_not_found",
	VerifierExtractionError:       "extraction_error",
	VerifierTimeout:               "timeout",
	VerifierUnknown:               "unknown",
}

// String renders the short machine name used as the report's "reason"
// field, falling back to "unknown" for an unrecognized code.
func (s VerifierStatus) String() string {
	if name, ok := verifierStatusReasons[s]; ok {
		return name
	}
	return "unknown"
}

// ExtValueStatus bit positions, per the glossary's LSB names.
const (
	BitFirstPulseOfChain = 0
	BitExtractionError   = 1
	BitRepeatedEvent     = 2
	BitAltSource         = 3
)

// extValueStatusNames orders the bits for RenderExtValueStatus.
var extValueStatusNames = []string{
	"first_pulse_of_chain",
	"extraction_error",
	"repeated_event",
	"alt_source",
}

// RenderExtValueStatus turns the bitmask into a name->bool map, one entry
// per named bit regardless of whether it is set.
func RenderExtValueStatus(status uint8) map[string]bool {
	out := make(map[string]bool, len(extValueStatusNames))
	for i, name := range extValueStatusNames {
		out[name] = status&(1<<uint(i)) != 0
	}
	return out
}

// VerifierResult is the outcome of a single source's verify() call for one
// pulse.
type VerifierResult struct {
	Scope          string
	StatusCode     VerifierStatus
	ExtValueStatus uint8
	Possible       int
	StartTime      time.Time
	EndTime        time.Time
	Detail         []string
}

// Valid reports whether the result represents success, per spec.md's
// "statusCode mod 100 == 0" dichotomy.
func (r VerifierResult) Valid() bool {
	return int(r.StatusCode)%100 == 0
}

// RunningTime returns EndTime - StartTime.
func (r VerifierResult) RunningTime() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// NewVerifierResult starts a result with StartTime set to now; callers
// finish it via Finish once verification completes.
func NewVerifierResult(scope string, extValueStatus uint8, possible int) VerifierResult {
	return VerifierResult{
		Scope:          scope,
		ExtValueStatus: extValueStatus,
		Possible:       possible,
		StartTime:      time.Now(),
	}
}

// Finish stamps EndTime, sets the status and detail, and returns the
// completed result. It is meant to be used as the single return point of
// every verify() implementation.
func (r VerifierResult) Finish(status VerifierStatus, detail ...string) VerifierResult {
	r.StatusCode = status
	r.Detail = detail
	r.EndTime = time.Now()
	return r
}

// PulseResult is the outcome of one verification cycle over a single
// pulse, aggregating every source's VerifierResult.
type PulseResult struct {
	PulseURL   string
	StatusCode PulseStatus
	StartTime  time.Time
	EndTime    time.Time
	Detail     []string
	Sources    map[string]VerifierResult
}

// Valid reports pulse-level success under the same dichotomy as
// VerifierResult.
func (p PulseResult) Valid() bool {
	return int(p.StatusCode)%100 == 0
}

// RunningTime returns EndTime - StartTime.
func (p PulseResult) RunningTime() time.Duration {
	return p.EndTime.Sub(p.StartTime)
}

// ChainID and PulseID are derived from a PulseURL shaped like
// "/chain/{chainId}/pulse/{pulseId}", the convention the beacon uses for
// pulse URIs.
func (p PulseResult) ChainID() string { return pulseURLSegment(p.PulseURL, "chain") }
func (p PulseResult) PulseID() string { return pulseURLSegment(p.PulseURL, "pulse") }

func pulseURLSegment(pulseURL, key string) string {
	parts := strings.Split(strings.Trim(pulseURL, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == key {
			return parts[i+1]
		}
	}
	return ""
}

// NewPulseResult starts a pulse result with StartTime set to now.
func NewPulseResult(pulseURL string) PulseResult {
	return PulseResult{
		PulseURL:  pulseURL,
		StartTime: time.Now(),
		Sources:   make(map[string]VerifierResult),
	}
}

// Finish stamps EndTime, sets the status and detail, and returns the
// completed pulse result.
func (p PulseResult) Finish(status PulseStatus, detail ...string) PulseResult {
	p.StatusCode = status
	p.Detail = detail
	p.EndTime = time.Now()
	return p
}
