package ingest

import "testing"

func TestParseDropFilename(t *testing.T) {
	tests := []struct {
		name      string
		filename  string
		wantTitle string
		wantRoom  string
	}{
		{name: "date_room_title", filename: "2026-08-21_roomB_lesson.txt", wantTitle: "lesson", wantRoom: "roomB"},
		{name: "multiword_title", filename: "2026-08-21_roomB_unit_3_review.txt", wantTitle: "unit 3 review", wantRoom: "roomB"},
		{name: "room_title_no_date", filename: "lab-2_grammar_drills.md", wantTitle: "grammar drills", wantRoom: "lab-2"},
		{name: "title_only", filename: "morning-session.text", wantTitle: "morning-session", wantRoom: ""},
		{name: "date_only_prefix_is_room", filename: "2026-08-21_lesson.txt", wantTitle: "lesson", wantRoom: ""},
		{name: "uppercase_extension", filename: "roomB_lesson.TXT", wantTitle: "lesson", wantRoom: "roomB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, room := parseDropFilename(tt.filename)
			if title != tt.wantTitle {
				t.Errorf("title = %q, want %q", title, tt.wantTitle)
			}
			if room != tt.wantRoom {
				t.Errorf("room = %q, want %q", room, tt.wantRoom)
			}
		})
	}
}
