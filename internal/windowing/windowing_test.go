package windowing

import (
	"reflect"
	"strings"
	"testing"
)

func TestSplit_SingleWindow(t *testing.T) {
	raw := "00:00:05\nGood morning everyone.\nLet's get started."

	got := Split(raw, 20)

	if len(got) != 1 {
		t.Fatalf("expected 1 window, got %d", len(got))
	}
	want := Window{
		Index: 0,
		From:  "00:00:00",
		To:    "00:19:59",
		Text:  "Good morning everyone.\nLet's get started.",
	}
	if got[0] != want {
		t.Errorf("expected %+v, got %+v", want, got[0])
	}
}

func TestSplit_IndexAndBoundsFromMarker(t *testing.T) {
	// 00:45:10 is 2710s; with 20-minute windows that is bucket 2,
	// spanning 00:40:00 through 00:59:59.
	raw := "00:45:10\nhalfway through the lesson"

	got := Split(raw, 20)

	if len(got) != 1 {
		t.Fatalf("expected 1 window, got %d", len(got))
	}
	if got[0].Index != 2 {
		t.Errorf("expected index 2, got %d", got[0].Index)
	}
	if got[0].From != "00:40:00" || got[0].To != "00:59:59" {
		t.Errorf("expected 00:40:00..00:59:59, got %s..%s", got[0].From, got[0].To)
	}
}

func TestSplit_HeaderBeforeFirstMarkerDiscarded(t *testing.T) {
	raw := "Lesson 12 — Travel Vocabulary\nRoom B recording\n\n00:00:00\nHello class."

	got := Split(raw, 20)

	if len(got) != 1 {
		t.Fatalf("expected 1 window, got %d", len(got))
	}
	if got[0].Text != "Hello class." {
		t.Errorf("expected %q, got %q", "Hello class.", got[0].Text)
	}
	if strings.Contains(got[0].Text, "Lesson 12") {
		t.Errorf("header leaked into window text: %q", got[0].Text)
	}
}

func TestSplit_NoMarkersYieldsNothing(t *testing.T) {
	inputs := []string{
		"",
		"   \n\t\n",
		"just prose with no timestamps\nacross several lines",
		"12:34\n1:02:03\n00:00:00 --> 00:00:02\nalmost markers",
	}
	for _, raw := range inputs {
		if got := Split(raw, 20); len(got) != 0 {
			t.Errorf("input %q: expected no windows, got %d", raw, len(got))
		}
	}
}

func TestSplit_MarkerLinesCarryNoContent(t *testing.T) {
	// Markers alone, or markers plus blank lines, produce no window.
	raw := "00:05:00\n\n00:25:00\n   \n00:45:00"

	if got := Split(raw, 20); len(got) != 0 {
		t.Fatalf("expected no windows, got %d: %+v", len(got), got)
	}
}

func TestSplit_BlankRunsCollapse(t *testing.T) {
	raw := "00:01:00\nfirst line\n\n\n\nsecond line"

	got := Split(raw, 20)

	if len(got) != 1 {
		t.Fatalf("expected 1 window, got %d", len(got))
	}
	if got[0].Text != "first line\n\nsecond line" {
		t.Errorf("expected single blank separator, got %q", got[0].Text)
	}
}

func TestSplit_ExactBoundaryGoesToNextWindow(t *testing.T) {
	// 00:20:00 is 1200s = exactly one full 20-minute window, so it opens
	// window 1 rather than closing window 0.
	raw := "00:20:00\nboundary content"

	got := Split(raw, 20)

	if len(got) != 1 {
		t.Fatalf("expected 1 window, got %d", len(got))
	}
	if got[0].Index != 1 {
		t.Errorf("expected index 1, got %d", got[0].Index)
	}
	if got[0].From != "00:20:00" {
		t.Errorf("expected from 00:20:00, got %s", got[0].From)
	}
}

func TestSplit_GapsLeaveMissingIndices(t *testing.T) {
	raw := "00:01:00\nearly\n01:10:00\nlate"

	got := Split(raw, 20)

	if len(got) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(got))
	}
	if got[0].Index != 0 || got[1].Index != 3 {
		t.Errorf("expected indices 0 and 3, got %d and %d", got[0].Index, got[1].Index)
	}
}

func TestSplit_SortedAscendingNoDuplicates(t *testing.T) {
	// Markers arrive out of order and bucket 0 is visited twice.
	raw := "00:45:00\nthird\n00:02:00\nfirst\n00:25:00\nsecond\n00:05:00\nfirst again"

	got := Split(raw, 20)

	if len(got) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Index <= got[i-1].Index {
			t.Errorf("indices not strictly ascending: %d then %d", got[i-1].Index, got[i].Index)
		}
	}
	if got[0].Text != "first\nfirst again" {
		t.Errorf("revisited bucket should accumulate, got %q", got[0].Text)
	}
}

func TestSplit_RepeatedIdenticalMarkers(t *testing.T) {
	raw := "00:03:00\none\n00:03:00\ntwo"

	got := Split(raw, 20)

	if len(got) != 1 {
		t.Fatalf("expected 1 window, got %d", len(got))
	}
	if got[0].Text != "one\ntwo" {
		t.Errorf("expected %q, got %q", "one\ntwo", got[0].Text)
	}
}

func TestSplit_OutOfRangeComponentsAccepted(t *testing.T) {
	// Components are not range-checked: 99:99:99 is 362439s, which with
	// 20-minute windows is bucket 302 (100:40:00 through 100:59:59).
	raw := "99:99:99\nspoken after a very long time"

	got := Split(raw, 20)

	if len(got) != 1 {
		t.Fatalf("expected 1 window, got %d", len(got))
	}
	if got[0].Index != 302 {
		t.Errorf("expected index 302, got %d", got[0].Index)
	}
	if got[0].From != "100:40:00" || got[0].To != "100:59:59" {
		t.Errorf("expected 100:40:00..100:59:59, got %s..%s", got[0].From, got[0].To)
	}
}

func TestSplit_MarkerTrailingWhitespaceAllowed(t *testing.T) {
	raw := "00:01:00   \ncontent a\n00:30:00\t\ncontent b"

	got := Split(raw, 20)

	if len(got) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(got))
	}
}

func TestSplit_IndentedTimestampIsContent(t *testing.T) {
	// Leading whitespace disqualifies a marker; the line is content.
	raw := "00:00:30\nbefore\n  00:25:00\nafter"

	got := Split(raw, 20)

	if len(got) != 1 {
		t.Fatalf("expected 1 window, got %d", len(got))
	}
	if !strings.Contains(got[0].Text, "00:25:00") {
		t.Errorf("indented timestamp should remain as content, got %q", got[0].Text)
	}
}

func TestSplit_CRLFInput(t *testing.T) {
	raw := "header\r\n00:00:10\r\nline one\r\nline two\r\n"

	got := Split(raw, 20)

	if len(got) != 1 {
		t.Fatalf("expected 1 window, got %d", len(got))
	}
	if got[0].Text != "line one\nline two" {
		t.Errorf("expected %q, got %q", "line one\nline two", got[0].Text)
	}
}

func TestSplit_CustomDuration(t *testing.T) {
	raw := "00:04:00\nearly\n00:05:00\non the boundary\n00:11:00\nlater"

	got := Split(raw, 5)

	if len(got) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(got))
	}
	if got[0].Index != 0 || got[1].Index != 1 || got[2].Index != 2 {
		t.Errorf("expected indices 0,1,2, got %d,%d,%d", got[0].Index, got[1].Index, got[2].Index)
	}
	if got[1].From != "00:05:00" || got[1].To != "00:09:59" {
		t.Errorf("expected 00:05:00..00:09:59, got %s..%s", got[1].From, got[1].To)
	}
}

func TestSplit_NonPositiveDurationUsesDefault(t *testing.T) {
	raw := "00:45:10\ncontent"

	for _, mins := range []int{0, -5} {
		got := Split(raw, mins)
		if len(got) != 1 {
			t.Fatalf("minutes=%d: expected 1 window, got %d", mins, len(got))
		}
		if got[0].Index != 2 {
			t.Errorf("minutes=%d: expected default 20-minute bucketing (index 2), got %d", mins, got[0].Index)
		}
	}
}

func TestSplit_Deterministic(t *testing.T) {
	raw := "intro header\n00:00:00\nalpha\n\n\nbeta\n00:21:00\ngamma\n00:19:59\ndelta\n99:99:99\nomega"

	first := Split(raw, 20)
	second := Split(raw, 20)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("same input produced different results:\n%+v\n%+v", first, second)
	}
}

func TestSplit_ContentKeepsInnerSpacing(t *testing.T) {
	// Only the joined text is trimmed; interior lines are not reflowed.
	raw := "00:00:01\n  indented line\nplain line  "

	got := Split(raw, 20)

	if len(got) != 1 {
		t.Fatalf("expected 1 window, got %d", len(got))
	}
	if got[0].Text != "indented line\nplain line" {
		t.Errorf("expected outer trim only, got %q", got[0].Text)
	}
}

func TestClock(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "00:00:00"},
		{59, "00:00:59"},
		{1200, "00:20:00"},
		{3599, "00:59:59"},
		{3600, "01:00:00"},
		{45296, "12:34:56"},
		{362400, "100:40:00"},
	}
	for _, tt := range tests {
		if got := Clock(tt.seconds); got != tt.want {
			t.Errorf("Clock(%d): expected %q, got %q", tt.seconds, tt.want, got)
		}
	}
}

func TestMarkerSeconds(t *testing.T) {
	tests := []struct {
		line    string
		seconds int
		ok      bool
	}{
		{"00:00:00", 0, true},
		{"12:34:56", 45296, true},
		{"99:99:99", 362439, true},
		{"07:05:09  ", 25509, true},
		{"07:05:09\t", 25509, true},
		{" 07:05:09", 0, false},
		{"7:05:09", 0, false},
		{"12:34", 0, false},
		{"12:34:56,789", 0, false},
		{"00:00:00 --> 00:00:02", 0, false},
		{"12:34:56 extra", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		secs, ok := markerSeconds(tt.line)
		if ok != tt.ok || secs != tt.seconds {
			t.Errorf("markerSeconds(%q): expected (%d,%v), got (%d,%v)", tt.line, tt.seconds, tt.ok, secs, ok)
		}
	}
}
