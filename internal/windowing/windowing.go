// Package windowing slices a timestamped lesson transcript into
// fixed-duration windows keyed by wall-clock position.
//
// Transcripts interleave content lines with standalone timestamp markers
// (HH:MM:SS on a line of their own). Each marker moves the cursor to the
// window containing that clock position; the lines that follow accumulate
// into that window until the next marker. The split is a pure computation:
// the same input always yields the same windows.
package windowing

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DefaultMinutes is the window duration used when the caller does not
// specify one.
const DefaultMinutes = 20

// Window is one fixed-duration slice of a transcript.
type Window struct {
	Index int    `json:"index"` // 0-based ordinal: floor(marker_seconds / window_seconds)
	From  string `json:"from"`  // inclusive window start, HH:MM:SS
	To    string `json:"to"`    // inclusive window end (start + duration - 1s), HH:MM:SS
	Text  string `json:"text"`  // cleaned content, blank runs collapsed, outer whitespace trimmed
}

// markerRe matches a line that is exactly a timestamp: two digits, colon,
// two digits, colon, two digits, optional trailing whitespace, nothing
// else. Lines like "1:02:03", "12:34" or SRT cue ranges do not match.
var markerRe = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})\s*$`)

// Split divides raw transcript text into windows of windowMinutes each.
// A non-positive windowMinutes selects DefaultMinutes.
//
// Lines before the first timestamp marker (export headers, titles) are
// discarded. Marker lines themselves contribute no content. An input with
// no marker at all yields no windows; that is not an error. Windows whose
// cleaned text ends up empty are omitted, so silent stretches leave gaps
// in the index sequence. The result is sorted by ascending Index with no
// duplicates.
//
// Marker components are not range-checked: "99:99:99" denotes
// 99*3600+99*60+99 seconds and lands in the window that arithmetic
// selects. Malformed lines are simply content, never errors.
func Split(raw string, windowMinutes int) []Window {
	if windowMinutes <= 0 {
		windowMinutes = DefaultMinutes
	}
	windowSeconds := windowMinutes * 60

	norm := strings.ReplaceAll(raw, "\r\n", "\n")
	norm = strings.ReplaceAll(norm, "\r", "\n")
	norm = strings.TrimSpace(norm)
	if norm == "" {
		return nil
	}

	buckets := make(map[int][]string)
	current := -1 // no marker seen yet

	for _, line := range strings.Split(norm, "\n") {
		if secs, ok := markerSeconds(line); ok {
			current = secs / windowSeconds
			continue
		}
		if current < 0 {
			continue
		}
		buckets[current] = append(buckets[current], line)
	}

	indices := make([]int, 0, len(buckets))
	for idx := range buckets {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	var windows []Window
	for _, idx := range indices {
		text := cleanText(buckets[idx])
		if text == "" {
			continue
		}
		start := idx * windowSeconds
		windows = append(windows, Window{
			Index: idx,
			From:  Clock(start),
			To:    Clock(start + windowSeconds - 1),
			Text:  text,
		})
	}
	return windows
}

// markerSeconds reports whether line is a standalone timestamp marker and,
// if so, its clock position in seconds.
func markerSeconds(line string) (int, bool) {
	m := markerRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	s, _ := strconv.Atoi(m[3])
	return h*3600 + min*60 + s, true
}

// cleanText collapses each run of blank lines to a single separator line,
// joins the rest unchanged, and trims the result. A line is blank when it
// contains only whitespace.
func cleanText(lines []string) string {
	out := make([]string, 0, len(lines))
	blankRun := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blankRun = true
			continue
		}
		if blankRun && len(out) > 0 {
			out = append(out, "")
		}
		blankRun = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// Clock formats a second count as HH:MM:SS. Hours widen past two digits
// rather than wrapping.
func Clock(totalSeconds int) string {
	h := totalSeconds / 3600
	m := totalSeconds % 3600 / 60
	s := totalSeconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
