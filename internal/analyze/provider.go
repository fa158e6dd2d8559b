// Package analyze fans lesson windows out to an analysis backend and
// records the per-window results. Windows are independent: one failing
// window never blocks or rolls back its siblings.
package analyze

import "context"

// Request is the input for analyzing one transcript window.
type Request struct {
	WindowText string `json:"window_text"`
	Objectives string `json:"objectives,omitempty"`
}

// Sentence is a noteworthy sentence from the window with suggested
// rephrasings.
type Sentence struct {
	Text         string   `json:"text"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// VocabularyEntry is a vocabulary item surfaced from the window.
type VocabularyEntry struct {
	Word          string `json:"word"`
	Pronunciation string `json:"pronunciation,omitempty"`
	Definition    string `json:"definition"`
}

// Result is the structured analysis of one window. The engine stores and
// serves it as-is; interpreting the content is the backend's business.
type Result struct {
	Sentences  []Sentence        `json:"sentences"`
	Vocabulary []VocabularyEntry `json:"vocabulary"`
}

// Provider is the interface for lesson-analysis backends.
type Provider interface {
	Analyze(ctx context.Context, req Request) (*Result, error)
	Name() string  // "lesson-api"
	Model() string // model identifier for DB/logs
}
