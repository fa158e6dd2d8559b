// Package roster loads the optional room/course roster that maps classroom
// recorder rooms to courses and default lesson objectives. Transcripts that
// arrive without explicit objectives (drop directory, live capture) pick
// them up from here.
package roster

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Course is a course entry in roster.json.
type Course struct {
	Code       string `json:"code"`
	Title      string `json:"title"`
	Objectives string `json:"objectives"` // newline-separated lesson objectives
}

// Room assigns a recorder room to a course.
type Room struct {
	Room   string `json:"room"`   // recorder room key, e.g. "room-b"
	Course string `json:"course"` // course code
	Name   string `json:"name"`   // display name for dashboards
}

// File is the parsed roster.json document.
type File struct {
	Courses []Course `json:"courses"`
	Rooms   []Room   `json:"rooms"`
}

// LoadFile reads and parses a roster.json file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &f, nil
}

// ObjectiveEntry is a parsed row from an objectives CSV file.
type ObjectiveEntry struct {
	Course    string
	Objective string
}

// LoadObjectiveCSV reads a per-course objectives CSV file.
func LoadObjectiveCSV(path string) ([]ObjectiveEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ParseObjectiveCSV(f)
}

// ParseObjectiveCSV parses objectives CSV data from a reader.
// Header-aware: matches columns by name, not position.
func ParseObjectiveCSV(reader io.Reader) ([]ObjectiveEntry, error) {
	r := csv.NewReader(reader)
	r.TrimLeadingSpace = true
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}

	colIdx := make(map[string]int)
	for i, h := range header {
		colIdx[strings.ToLower(strings.TrimSpace(h))] = i
	}

	courseIdx, ok := colIdx["course"]
	if !ok {
		return nil, fmt.Errorf("missing required 'Course' column in header")
	}
	objectiveIdx, ok := colIdx["objective"]
	if !ok {
		return nil, fmt.Errorf("missing required 'Objective' column in header")
	}

	var entries []ObjectiveEntry
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // skip malformed rows
		}
		if courseIdx >= len(record) || objectiveIdx >= len(record) {
			continue
		}

		course := strings.TrimSpace(record[courseIdx])
		objective := strings.TrimSpace(record[objectiveIdx])
		if course == "" || objective == "" {
			continue
		}
		entries = append(entries, ObjectiveEntry{Course: course, Objective: objective})
	}

	return entries, nil
}

// Roster is the merged room/course lookup built by Load.
type Roster struct {
	courses map[string]Course // keyed by lowercased code
	rooms   map[string]Room   // keyed by lowercased room
}

// Load reads roster.json from dir and merges objectives.csv into it when
// present. CSV rows referencing unknown course codes are dropped; the
// caller decides whether dropped > 0 is worth a warning.
func Load(dir string) (*Roster, int, error) {
	f, err := LoadFile(filepath.Join(dir, "roster.json"))
	if err != nil {
		return nil, 0, err
	}

	r := &Roster{
		courses: make(map[string]Course, len(f.Courses)),
		rooms:   make(map[string]Room, len(f.Rooms)),
	}
	for _, c := range f.Courses {
		if c.Code == "" {
			continue
		}
		r.courses[strings.ToLower(c.Code)] = c
	}
	for _, rm := range f.Rooms {
		if rm.Room == "" {
			continue
		}
		r.rooms[strings.ToLower(rm.Room)] = rm
	}

	dropped := 0
	csvPath := filepath.Join(dir, "objectives.csv")
	if _, statErr := os.Stat(csvPath); statErr == nil {
		entries, csvErr := LoadObjectiveCSV(csvPath)
		if csvErr != nil {
			return nil, 0, csvErr
		}
		for _, e := range entries {
			key := strings.ToLower(e.Course)
			c, ok := r.courses[key]
			if !ok {
				dropped++
				continue
			}
			if c.Objectives == "" {
				c.Objectives = e.Objective
			} else {
				c.Objectives += "\n" + e.Objective
			}
			r.courses[key] = c
		}
	}

	return r, dropped, nil
}

// Course looks up a course by code.
func (r *Roster) Course(code string) (Course, bool) {
	c, ok := r.courses[strings.ToLower(code)]
	return c, ok
}

// RoomCourse resolves a room to its assigned course.
func (r *Roster) RoomCourse(room string) (Course, bool) {
	rm, ok := r.rooms[strings.ToLower(room)]
	if !ok {
		return Course{}, false
	}
	return r.Course(rm.Course)
}

// ObjectivesForRoom returns the default objectives for a room, or "" when
// the room or its course is unknown.
func (r *Roster) ObjectivesForRoom(room string) string {
	if r == nil {
		return ""
	}
	c, ok := r.RoomCourse(room)
	if !ok {
		return ""
	}
	return c.Objectives
}

// RoomName returns the display name for a room, falling back to the room
// key itself.
func (r *Roster) RoomName(room string) string {
	if r == nil {
		return room
	}
	rm, ok := r.rooms[strings.ToLower(room)]
	if !ok || rm.Name == "" {
		return room
	}
	return rm.Name
}

// Counts reports course and room totals for startup logs.
func (r *Roster) Counts() (courses, rooms int) {
	return len(r.courses), len(r.rooms)
}
