package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRadioFrame_Marker(t *testing.T) {
	f := RadioFrame{Header: [4]byte{0xff, 0xfb, 0x90, 0x00}, Body: []byte{1, 2, 3}}
	m1 := f.Marker()
	m2 := f.Marker()
	require.Equal(t, m1, m2)
	require.Len(t, m1, 128) // SHA3-512 hex digest length

	other := RadioFrame{Header: [4]byte{0xff, 0xfb, 0x90, 0x00}, Body: []byte{1, 2, 4}}
	require.NotEqual(t, m1, other.Marker())
	require.False(t, f.Equal(other))
}

func TestSeismicEvent_CanonicalAndMarker(t *testing.T) {
	e := SeismicEvent{
		ID: "s1", DateRaw: "12:00:00 01/01/2025",
		Lat: "-33", Long: "-70", Depth: "10", Magnitude: "4.5",
	}
	require.Equal(t, "s1;12:00:00 01/01/2025;-33;-70;10;4.5", string(e.Canonical()))
	require.Len(t, e.Marker(), 128)

	other := e
	other.Magnitude = "4.6"
	require.False(t, e.Equal(other))
}

func TestSeismicEvent_IsERB(t *testing.T) {
	require.True(t, SeismicEvent{ID: "erb_123"}.IsERB())
	require.False(t, SeismicEvent{ID: "s123"}.IsERB())
}

func TestTweet_Ordering(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := Tweet{ID: 1, CreatedAt: t0}
	b := Tweet{ID: 2, CreatedAt: t0}
	require.True(t, a.Less(b))
	require.False(t, b.Less(a))
}

func TestEthBlock_Merge(t *testing.T) {
	b1 := NewEthBlock(100, "aa")
	b2 := NewEthBlock(100, "bb")
	merged := b1.Merge(b2)
	require.True(t, merged.HasHash("aa"))
	require.True(t, merged.HasHash("bb"))
	require.Equal(t, uint64(100), merged.Number)
	// originals untouched
	require.False(t, b1.HasHash("bb"))
}
