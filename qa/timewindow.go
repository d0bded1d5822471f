package qa

import (
	"regexp"
	"strconv"
	"strings"
)

// Padding applied around a requested time range before extraction, so a
// sentence started just before the asked-for minute is not cut off.
const windowPadSec = 30

var (
	timeToken  = regexp.MustCompile(`\b(\d{1,3}):(\d{2})\b`)
	lineMarker = regexp.MustCompile(`^\[(\d{2,}):(\d{2})\]\s*(.*)$`)
)

// ParseTimeRange finds up to two MM:SS tokens in a question. One token is
// a point query (start == end); two form a range.
func ParseTimeRange(question string) (startSec, endSec float64, ok bool) {
	matches := timeToken.FindAllStringSubmatch(question, 2)
	if len(matches) == 0 {
		return 0, 0, false
	}
	toSec := func(m []string) float64 {
		min, _ := strconv.Atoi(m[1])
		sec, _ := strconv.Atoi(m[2])
		return float64(min*60 + sec)
	}
	startSec = toSec(matches[0])
	endSec = startSec
	if len(matches) > 1 {
		endSec = toSec(matches[1])
	}
	if endSec < startSec {
		startSec, endSec = endSec, startSec
	}
	return startSec, endSec, true
}

// ExtractWindow returns the timestamped transcript lines inside
// [startSec - pad, endSec + pad]. When no line falls inside the window (a
// gap between coarse fragments), the nearest lines bracketing it are
// returned instead so the answer is grounded in something.
func ExtractWindow(transcript string, startSec, endSec float64) string {
	lo := startSec - windowPadSec
	hi := endSec + windowPadSec
	if lo < 0 {
		lo = 0
	}

	type stamped struct {
		at   float64
		line string
	}
	var lines []stamped
	for _, raw := range strings.Split(transcript, "\n") {
		m := lineMarker.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		min, _ := strconv.Atoi(m[1])
		sec, _ := strconv.Atoi(m[2])
		lines = append(lines, stamped{at: float64(min*60 + sec), line: raw})
	}
	if len(lines) == 0 {
		return ""
	}

	var picked []string
	for _, l := range lines {
		if l.at >= lo && l.at <= hi {
			picked = append(picked, l.line)
		}
	}
	if len(picked) > 0 {
		return strings.Join(picked, "\n")
	}

	// Bracket the window with the closest line on each side.
	var before, after *stamped
	for i := range lines {
		l := lines[i]
		if l.at < lo {
			before = &lines[i]
		}
		if l.at > hi && after == nil {
			after = &lines[i]
		}
	}
	switch {
	case before != nil && after != nil:
		return before.line + "\n" + after.line
	case before != nil:
		return before.line
	case after != nil:
		return after.line
	}
	return ""
}
