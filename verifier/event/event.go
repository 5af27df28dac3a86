// Package event declares the immutable per-source event records described
// in spec.md §3, each carrying a marker, a canonical byte form, and the
// typed fields equality and ordering are defined over.
package event

import (
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"
)

func sha3HexDigest(data []byte) string {
	sum := sha3.Sum512(data)
	return hex.EncodeToString(sum[:])
}

// RadioFrame is one decoded MPEG-1/2 Layer III audio frame.
type RadioFrame struct {
	Header [4]byte
	Body   []byte
}

// Canonical returns the exact byte sequence equality with the beacon's raw
// value is decided over: the 4 header bytes followed by the frame body.
func (f RadioFrame) Canonical() []byte {
	out := make([]byte, 0, 4+len(f.Body))
	out = append(out, f.Header[:]...)
	out = append(out, f.Body...)
	return out
}

// Marker is the SHA3-512 hex digest of the canonical form.
func (f RadioFrame) Marker() string {
	return sha3HexDigest(f.Canonical())
}

// Equal compares frames by their typed fields, never by derived markers.
func (f RadioFrame) Equal(other RadioFrame) bool {
	return f.Header == other.Header && bytesEqual(f.Body, other.Body)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Tweet is one sampled-stream tweet.
type Tweet struct {
	ID        uint64
	CreatedAt time.Time
	AuthorID  string
	Text      string
}

// Equal compares the full typed tuple, per spec.md §4.4.
func (t Tweet) Equal(other Tweet) bool {
	return t.ID == other.ID &&
		t.CreatedAt.Equal(other.CreatedAt) &&
		t.AuthorID == other.AuthorID &&
		t.Text == other.Text
}

// Less orders tweets by (date, id) for heap placement.
func (t Tweet) Less(other Tweet) bool {
	if !t.CreatedAt.Equal(other.CreatedAt) {
		return t.CreatedAt.Before(other.CreatedAt)
	}
	return t.ID < other.ID
}

// SeismicEvent is one row parsed out of the seismology bulletin.
type SeismicEvent struct {
	ID        string
	Date      time.Time
	DateRaw   string // formatted "15:04:05 02/01/2006", preserved for canonical form
	Lat       string
	Long      string
	Depth     string
	Magnitude string
}

// Canonical returns "id;date;lat;long;depth;magnitude".
func (e SeismicEvent) Canonical() []byte {
	return []byte(fmt.Sprintf("%s;%s;%s;%s;%s;%s", e.ID, e.DateRaw, e.Lat, e.Long, e.Depth, e.Magnitude))
}

// Marker is the SHA3-512 hex digest of the canonical form.
func (e SeismicEvent) Marker() string {
	return sha3HexDigest(e.Canonical())
}

// Equal compares the six typed fields (not the canonical string).
func (e SeismicEvent) Equal(other SeismicEvent) bool {
	return e.ID == other.ID && e.DateRaw == other.DateRaw && e.Lat == other.Lat &&
		e.Long == other.Long && e.Depth == other.Depth && e.Magnitude == other.Magnitude
}

// Less orders seismic events by (date, id) for heap placement.
func (e SeismicEvent) Less(other SeismicEvent) bool {
	if !e.Date.Equal(other.Date) {
		return e.Date.Before(other.Date)
	}
	return e.ID < other.ID
}

// IsERB reports whether the event id carries the "erb_" classification
// prefix used by the seismology source's alternate feed.
func (e SeismicEvent) IsERB() bool {
	return len(e.ID) >= 4 && e.ID[:4] == "erb_"
}

// EthBlock is one Ethereum block as observed by a single RPC provider: a
// number and the set of hex hashes (its own hash, or — for an ancestor
// entry — its hash plus any uncle hashes) seen for that number.
type EthBlock struct {
	Number uint64
	Hashes map[string]struct{}
}

// NewEthBlock builds a block with one seed hash.
func NewEthBlock(number uint64, hash string) EthBlock {
	return EthBlock{Number: number, Hashes: map[string]struct{}{hash: {}}}
}

// Merge unions other's hashes into a copy of b, used when a second
// provider (or a duplicate fetch) reports the same block number.
func (b EthBlock) Merge(other EthBlock) EthBlock {
	merged := make(map[string]struct{}, len(b.Hashes)+len(other.Hashes))
	for h := range b.Hashes {
		merged[h] = struct{}{}
	}
	for h := range other.Hashes {
		merged[h] = struct{}{}
	}
	return EthBlock{Number: b.Number, Hashes: merged}
}

// HasHash reports whether hash is among the block's observed hashes.
func (b EthBlock) HasHash(hash string) bool {
	_, ok := b.Hashes[hash]
	return ok
}
