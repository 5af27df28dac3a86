// Package radio implements the radio MP3 source: a collector that reads
// MPEG-1/2 Layer III frames off a live stream into a FIFO buffer, and a
// verifier that checks the beacon's declared marker and raw window against
// it (spec.md §4.3).
package radio

import (
	"bufio"
	"fmt"
)

// Version distinguishes MPEG-1 from MPEG-2 framing, which use different
// bitrate/samplerate tables.
type Version int

const (
	MPEG2 Version = 0
	MPEG1 Version = 1
)

var bitrateTable = map[Version]map[byte]int{
	MPEG1: {
		0x01: 32, 0x02: 40, 0x03: 48, 0x04: 56, 0x05: 64, 0x06: 80, 0x07: 96,
		0x08: 112, 0x09: 128, 0x0a: 160, 0x0b: 192, 0x0c: 224, 0x0d: 256, 0x0e: 320,
	},
	MPEG2: {
		0x01: 8, 0x02: 16, 0x03: 24, 0x04: 32, 0x05: 40, 0x06: 48, 0x07: 56,
		0x08: 64, 0x09: 80, 0x0a: 96, 0x0b: 112, 0x0c: 128, 0x0d: 144, 0x0e: 160,
	},
}

var samplerateTable = map[Version]map[byte]int{
	MPEG1: {0x00: 44100, 0x01: 48000, 0x02: 32000},
	MPEG2: {0x00: 22050, 0x01: 12000, 0x02: 16000},
}

// ParseError reports a malformed frame header; the run-loop treats it as a
// collector crash (spec.md §4.3: "invalid frames raise a typed parse
// error... triggering the 5-second restart").
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return fmt.Sprintf("mp3 frame: %s", e.Reason) }

// ReadFrame decodes exactly one frame from r per spec.md's bit-exact
// layout, resynchronizing on bad sync bytes by scanning forward (bounded
// to maxResyncBytes bytes) rather than failing outright, mirroring
// original_source's bounded resilience to stream noise.
func ReadFrame(r *bufio.Reader) (header [4]byte, body []byte, err error) {
	if err := resyncToSentinel(r, maxResyncBytes); err != nil {
		return header, nil, err
	}
	header[0] = 0xFF

	b1, err := r.ReadByte()
	if err != nil {
		return header, nil, err
	}
	if b1&0xF0 != 0xF0 {
		return header, nil, &ParseError{Reason: "invalid second sync byte"}
	}
	header[1] = b1
	version := Version((b1 & 0x08) >> 3)
	if (b1&0x06)>>1 != 1 {
		return header, nil, &ParseError{Reason: "frame is not layer III"}
	}

	b2, err := r.ReadByte()
	if err != nil {
		return header, nil, err
	}
	header[2] = b2
	bitrateIdx := (b2 & 0xF0) >> 4
	if bitrateIdx == 0x00 || bitrateIdx == 0x0F {
		return header, nil, &ParseError{Reason: "invalid bitrate index"}
	}
	bitrate, ok := bitrateTable[version][bitrateIdx]
	if !ok {
		return header, nil, &ParseError{Reason: "bitrate index not in table"}
	}
	samplerateIdx := (b2 & 0x0C) >> 2
	if samplerateIdx == 0x03 {
		return header, nil, &ParseError{Reason: "invalid samplerate index"}
	}
	samplerate, ok := samplerateTable[version][samplerateIdx]
	if !ok {
		return header, nil, &ParseError{Reason: "samplerate index not in table"}
	}
	padding := (b2 & 0x02) >> 1

	b3, err := r.ReadByte()
	if err != nil {
		return header, nil, err
	}
	header[3] = b3

	bodyLen := 144000*bitrate/samplerate - 4
	if padding == 1 {
		bodyLen++
	}
	if bodyLen <= 0 {
		return header, nil, &ParseError{Reason: "computed non-positive body length"}
	}

	body = make([]byte, bodyLen)
	if _, err := readFull(r, body); err != nil {
		return header, nil, err
	}
	return header, body, nil
}

const maxResyncBytes = 4096

// resyncToSentinel reads and discards bytes until it consumes a 0xFF sync
// byte, giving up after limit bytes scanned.
func resyncToSentinel(r *bufio.Reader, limit int) error {
	for i := 0; i < limit; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b == 0xFF {
			return nil
		}
	}
	return &ParseError{Reason: "sync byte not found within resync window"}
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
