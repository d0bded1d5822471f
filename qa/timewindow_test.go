package qa

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const chunkedTranscript = `[00:00] welcome to the show
[02:00] first we cover the roadmap
[12:00] pricing changes land in june
[14:00] enterprise tier stays the same
[30:00] closing remarks`

func TestParseTimeRange(t *testing.T) {
	start, end, ok := ParseTimeRange("what is said at 12:30?")
	require.True(t, ok)
	require.Equal(t, 750.0, start)
	require.Equal(t, 750.0, end)

	start, end, ok = ParseTimeRange("summarize from 2:00 to 14:00")
	require.True(t, ok)
	require.Equal(t, 120.0, start)
	require.Equal(t, 840.0, end)

	// Reversed ranges are normalized.
	start, end, _ = ParseTimeRange("between 14:00 and 2:00")
	require.Equal(t, 120.0, start)
	require.Equal(t, 840.0, end)

	_, _, ok = ParseTimeRange("no timestamps here")
	require.False(t, ok)
}

func TestExtractWindow(t *testing.T) {
	// 12:00 +/- 30s picks up the pricing line only.
	out := ExtractWindow(chunkedTranscript, 720, 720)
	require.Equal(t, "[12:00] pricing changes land in june", out)

	// A range spans multiple lines, padded on both sides.
	out = ExtractWindow(chunkedTranscript, 720, 840)
	require.Contains(t, out, "pricing changes")
	require.Contains(t, out, "enterprise tier")
	require.NotContains(t, out, "closing remarks")
}

func TestExtractWindowBracketsGaps(t *testing.T) {
	// 20:00 falls in the gap between 14:00 and 30:00: return the
	// bracketing lines rather than nothing.
	out := ExtractWindow(chunkedTranscript, 1200, 1200)
	require.Contains(t, out, "enterprise tier")
	require.Contains(t, out, "closing remarks")
}

func TestExtractWindowNoTimestamps(t *testing.T) {
	require.Empty(t, ExtractWindow("plain transcript without markers", 60, 60))
}
