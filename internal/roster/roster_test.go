package roster

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const rosterJSON = `{
	"courses": [
		{"code": "ENG-201", "title": "Intermediate English", "objectives": "past tense narration"},
		{"code": "ENG-305", "title": "Business English"}
	],
	"rooms": [
		{"room": "room-b", "course": "ENG-201", "name": "Building B, Room 2"},
		{"room": "room-c", "course": "ENG-305"}
	]
}`

func writeRosterDir(t *testing.T, rosterBody, csvBody string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "roster.json"), []byte(rosterBody), 0o644); err != nil {
		t.Fatal(err)
	}
	if csvBody != "" {
		if err := os.WriteFile(filepath.Join(dir, "objectives.csv"), []byte(csvBody), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestLoad(t *testing.T) {
	dir := writeRosterDir(t, rosterJSON, "")

	r, dropped, err := Load(dir)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if dropped != 0 {
		t.Errorf("dropped = %d, want 0", dropped)
	}

	courses, rooms := r.Counts()
	if courses != 2 || rooms != 2 {
		t.Errorf("counts = %d courses / %d rooms, want 2/2", courses, rooms)
	}

	if got := r.ObjectivesForRoom("room-b"); got != "past tense narration" {
		t.Errorf("ObjectivesForRoom(room-b) = %q", got)
	}
	if got := r.ObjectivesForRoom("ROOM-B"); got != "past tense narration" {
		t.Errorf("room lookup should be case-insensitive, got %q", got)
	}
	if got := r.ObjectivesForRoom("room-z"); got != "" {
		t.Errorf("unknown room objectives = %q, want empty", got)
	}
	if got := r.RoomName("room-b"); got != "Building B, Room 2" {
		t.Errorf("RoomName(room-b) = %q", got)
	}
	if got := r.RoomName("room-c"); got != "room-c" {
		t.Errorf("RoomName without display name = %q, want room key", got)
	}
}

func TestLoad_MergesObjectiveCSV(t *testing.T) {
	csvBody := "Course,Objective\nENG-201,irregular verbs\neng-201,travel vocabulary\nMATH-1,counting\n"
	dir := writeRosterDir(t, rosterJSON, csvBody)

	r, dropped, err := Load(dir)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1 (MATH-1 is not in the roster)", dropped)
	}

	got := r.ObjectivesForRoom("room-b")
	for _, want := range []string{"past tense narration", "irregular verbs", "travel vocabulary"} {
		if !strings.Contains(got, want) {
			t.Errorf("objectives missing %q: %q", want, got)
		}
	}
}

func TestLoad_MissingRosterFile(t *testing.T) {
	if _, _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for missing roster.json")
	}
}

func TestParseObjectiveCSV_ColumnOrderIrrelevant(t *testing.T) {
	body := "Objective,Notes,Course\nuse the passive voice,ignore me,ENG-305\n"
	entries, err := ParseObjectiveCSV(strings.NewReader(body))
	if err != nil {
		t.Fatalf("ParseObjectiveCSV returned error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Course != "ENG-305" || entries[0].Objective != "use the passive voice" {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestParseObjectiveCSV_MissingColumn(t *testing.T) {
	if _, err := ParseObjectiveCSV(strings.NewReader("Course,Text\nENG-201,x\n")); err == nil {
		t.Error("expected error for missing Objective column")
	}
}

func TestParseObjectiveCSV_SkipsBlankRows(t *testing.T) {
	body := "Course,Objective\nENG-201,\n,orphan objective\nENG-201,real objective\n"
	entries, err := ParseObjectiveCSV(strings.NewReader(body))
	if err != nil {
		t.Fatalf("ParseObjectiveCSV returned error: %v", err)
	}
	if len(entries) != 1 || entries[0].Objective != "real objective" {
		t.Errorf("entries = %+v, want just the real objective", entries)
	}
}
