package score

import (
	"testing"

	"github.com/classlens/cl-engine/internal/errclass"
)

func TestLabel(t *testing.T) {
	tests := []struct {
		overall int
		want    string
	}{
		{100, "excellent"},
		{85, "excellent"},
		{84, "good"},
		{70, "good"},
		{69, "fair"},
		{50, "fair"},
		{49, "needs_work"},
		{0, "needs_work"},
	}
	for _, tt := range tests {
		if got := Label(tt.overall); got != tt.want {
			t.Errorf("Label(%d) = %q, want %q", tt.overall, got, tt.want)
		}
	}
}

func TestNormalize_ClampsEverything(t *testing.T) {
	r := &Result{
		Overall:      130,
		Accuracy:     -4,
		Fluency:      101,
		Completeness: 55,
		Words: []WordScore{
			{Word: "through", Score: 250, Phonemes: []PhonemeScore{{Phoneme: "θ", Score: -1}}},
		},
	}

	Normalize(r)

	if r.Overall != 100 {
		t.Errorf("Overall = %d, want 100", r.Overall)
	}
	if r.Accuracy != 0 {
		t.Errorf("Accuracy = %d, want 0", r.Accuracy)
	}
	if r.Fluency != 100 {
		t.Errorf("Fluency = %d, want 100", r.Fluency)
	}
	if r.Words[0].Score != 100 {
		t.Errorf("word score = %d, want 100", r.Words[0].Score)
	}
	if r.Words[0].Phonemes[0].Score != 0 {
		t.Errorf("phoneme score = %d, want 0", r.Words[0].Phonemes[0].Score)
	}
}

func TestNormalize_LabelFilledWhenMissing(t *testing.T) {
	r := &Result{Overall: 91}
	Normalize(r)
	if r.Label != "excellent" {
		t.Errorf("Label = %q, want excellent", r.Label)
	}
}

func TestNormalize_VendorLabelKept(t *testing.T) {
	r := &Result{Overall: 91, Label: "native-like"}
	Normalize(r)
	if r.Label != "native-like" {
		t.Errorf("Label = %q, want vendor label preserved", r.Label)
	}
}

func TestValidateRequest(t *testing.T) {
	valid := func() Request {
		return Request{
			ExpectedText: "The weather is nice today.",
			Audio:        Clip{Mime: "audio/webm", Base64: "aGk=", DurationMS: 2500},
			Accent:       "us",
		}
	}

	t.Run("valid", func(t *testing.T) {
		req := valid()
		if err := ValidateRequest(&req, "us"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("empty_text", func(t *testing.T) {
		req := valid()
		req.ExpectedText = ""
		err := ValidateRequest(&req, "us")
		if errclass.Classify(err) != errclass.InvalidInput {
			t.Errorf("class = %q, want %q", errclass.Classify(err), errclass.InvalidInput)
		}
	})

	t.Run("accent_defaulted", func(t *testing.T) {
		req := valid()
		req.Accent = ""
		if err := ValidateRequest(&req, "uk"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if req.Accent != "uk" {
			t.Errorf("accent = %q, want uk", req.Accent)
		}
	})

	t.Run("unknown_accent", func(t *testing.T) {
		req := valid()
		req.Accent = "au"
		err := ValidateRequest(&req, "us")
		if errclass.Classify(err) != errclass.InvalidInput {
			t.Errorf("class = %q, want %q", errclass.Classify(err), errclass.InvalidInput)
		}
	})

	t.Run("too_short", func(t *testing.T) {
		req := valid()
		req.Audio.DurationMS = 50
		err := ValidateRequest(&req, "us")
		if errclass.Classify(err) != errclass.InvalidInput {
			t.Errorf("class = %q, want %q", errclass.Classify(err), errclass.InvalidInput)
		}
	})

	t.Run("too_long", func(t *testing.T) {
		req := valid()
		req.Audio.DurationMS = 180_000
		err := ValidateRequest(&req, "us")
		if errclass.Classify(err) != errclass.InvalidInput {
			t.Errorf("class = %q, want %q", errclass.Classify(err), errclass.InvalidInput)
		}
	})
}
