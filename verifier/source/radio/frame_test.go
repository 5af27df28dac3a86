package radio

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildFrame constructs a valid MPEG-1 Layer III frame with bitrate index
// 0x09 (128kbps) and samplerate index 0x00 (44100), no padding, no CRC.
func buildFrame(body []byte) []byte {
	b1 := byte(0xF0 | 0x08 | 0x02) // sync nibble | version=1 (MPEG1) | layer III bits 01
	b2 := byte(0x09<<4 | 0x00<<2)  // bitrate 128kbps, samplerate 44100, no padding
	return append([]byte{0xFF, b1, b2, 0x00}, body...)
}

func frameBodyLen() int {
	// 144000*128/44100 - 4
	return 144000*128/44100 - 4
}

func TestReadFrame_Valid(t *testing.T) {
	body := bytes.Repeat([]byte{0xAB}, frameBodyLen())
	raw := buildFrame(body)
	r := bufio.NewReader(bytes.NewReader(raw))

	header, gotBody, err := ReadFrame(r)
	require.NoError(t, err)
	require.Equal(t, raw[:4], header[:])
	require.Equal(t, body, gotBody)
}

func TestReadFrame_ResyncsPastGarbage(t *testing.T) {
	body := bytes.Repeat([]byte{0x01}, frameBodyLen())
	raw := buildFrame(body)
	withGarbage := append([]byte{0x00, 0x11, 0x22}, raw...)
	r := bufio.NewReader(bytes.NewReader(withGarbage))

	_, gotBody, err := ReadFrame(r)
	require.NoError(t, err)
	require.Equal(t, body, gotBody)
}

func TestReadFrame_InvalidLayer(t *testing.T) {
	b1 := byte(0xF0 | 0x08 | 0x00) // layer bits = 00, not layer III
	raw := []byte{0xFF, b1, 0x09 << 4, 0x00}
	r := bufio.NewReader(bytes.NewReader(raw))

	_, _, err := ReadFrame(r)
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestReadFrame_InvalidBitrate(t *testing.T) {
	b1 := byte(0xF0 | 0x08 | 0x02)
	raw := []byte{0xFF, b1, 0x00 << 4, 0x00} // bitrate index 0x00 invalid
	r := bufio.NewReader(bytes.NewReader(raw))

	_, _, err := ReadFrame(r)
	require.Error(t, err)
}
