// Package score evaluates pronunciation attempts: a learner records an
// expected phrase, the clip goes to a speech-assessment backend, and the
// engine normalizes whatever comes back into a 0-100 score with a
// qualitative label and optional word/phoneme detail.
package score

import (
	"context"
	"fmt"

	"github.com/classlens/cl-engine/internal/errclass"
)

// Accents the engine accepts for assessment.
var allowedAccents = map[string]bool{
	"us": true,
	"uk": true,
}

// Clip is the audio portion of a scoring request as uploaded by a client.
type Clip struct {
	Mime       string `json:"mime"`
	Base64     string `json:"base64"`
	DurationMS int64  `json:"duration_ms"`
}

// Request is one pronunciation attempt to evaluate.
type Request struct {
	ExpectedText string `json:"expected_text"`
	Audio        Clip   `json:"audio"`
	Accent       string `json:"accent,omitempty"`
}

// PhonemeScore is a per-phoneme assessment within a word.
type PhonemeScore struct {
	Phoneme string `json:"phoneme"`
	Score   int    `json:"score"`
}

// WordScore is a per-word assessment, optionally broken down by phoneme.
type WordScore struct {
	Word     string         `json:"word"`
	Score    int            `json:"score"`
	Phonemes []PhonemeScore `json:"phonemes,omitempty"`
}

// Result is a normalized assessment. All scores are 0-100.
type Result struct {
	Overall      int         `json:"overall"`
	Label        string      `json:"label"`
	Accuracy     int         `json:"accuracy"`
	Fluency      int         `json:"fluency"`
	Completeness int         `json:"completeness"`
	Words        []WordScore `json:"words,omitempty"`
}

// Scorer is the interface for speech-assessment backends.
type Scorer interface {
	Score(ctx context.Context, req Request) (*Result, error)
	Name() string
}

// Duration bounds for an attempt. Clips outside this range are rejected
// before the vendor call.
const (
	MinClipDurationMS = 100
	MaxClipDurationMS = 120_000
)

// ValidateRequest checks a request's text, accent, and declared duration.
// Audio payload checks (decode, size, sniff) live in the audio package.
// An empty accent is filled from defaultAccent.
func ValidateRequest(req *Request, defaultAccent string) error {
	if req.ExpectedText == "" {
		return fmt.Errorf("expected_text is empty: %w", errclass.ErrInvalid)
	}
	if req.Accent == "" {
		req.Accent = defaultAccent
	}
	if !allowedAccents[req.Accent] {
		return fmt.Errorf("unknown accent %q: %w", req.Accent, errclass.ErrInvalid)
	}
	if req.Audio.DurationMS < MinClipDurationMS || req.Audio.DurationMS > MaxClipDurationMS {
		return fmt.Errorf("clip duration %dms outside %d-%dms: %w",
			req.Audio.DurationMS, MinClipDurationMS, MaxClipDurationMS, errclass.ErrInvalid)
	}
	return nil
}

// Normalize clamps every score into [0,100] and fills in a label when the
// backend supplied none.
func Normalize(r *Result) {
	r.Overall = clamp(r.Overall)
	r.Accuracy = clamp(r.Accuracy)
	r.Fluency = clamp(r.Fluency)
	r.Completeness = clamp(r.Completeness)
	for i := range r.Words {
		r.Words[i].Score = clamp(r.Words[i].Score)
		for j := range r.Words[i].Phonemes {
			r.Words[i].Phonemes[j].Score = clamp(r.Words[i].Phonemes[j].Score)
		}
	}
	if r.Label == "" {
		r.Label = Label(r.Overall)
	}
}

// Label maps an overall score to its qualitative band.
func Label(overall int) string {
	switch {
	case overall >= 85:
		return "excellent"
	case overall >= 70:
		return "good"
	case overall >= 50:
		return "fair"
	default:
		return "needs_work"
	}
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
