package database

import (
	"encoding/json"
	"testing"
	"time"
)

func TestFlexTime_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "unix_seconds_integer",
			input: `1756641600`,
			want:  time.Date(2025, 8, 31, 12, 0, 0, 0, time.UTC),
		},
		{
			name:  "unix_seconds_fractional",
			input: `1756641600.5`,
			want:  time.Date(2025, 8, 31, 12, 0, 0, 500000000, time.UTC),
		},
		{
			name:  "rfc3339_string",
			input: `"2025-08-31T12:00:00Z"`,
			want:  time.Date(2025, 8, 31, 12, 0, 0, 0, time.UTC),
		},
		{
			name:  "rfc3339_with_offset",
			input: `"2025-08-31T14:00:00+02:00"`,
			want:  time.Date(2025, 8, 31, 12, 0, 0, 0, time.UTC),
		},
		{
			name:  "null_leaves_zero",
			input: `null`,
			want:  time.Time{},
		},
		{
			name:  "zero_seconds_leaves_zero",
			input: `0`,
			want:  time.Time{},
		},
		{
			name:    "garbage_string",
			input:   `"not a time"`,
			wantErr: true,
		},
		{
			name:    "garbage_token",
			input:   `{}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f FlexTime
			err := json.Unmarshal([]byte(tt.input), &f)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got time %v", f.Time)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !f.Time.Equal(tt.want) {
				t.Errorf("time = %v, want %v", f.Time, tt.want)
			}
		})
	}
}

func TestFlexTime_MarshalJSON(t *testing.T) {
	f := FlexTime{Time: time.Date(2025, 8, 31, 12, 0, 0, 0, time.UTC)}
	out, err := json.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `"2025-08-31T12:00:00Z"` {
		t.Errorf("marshal = %s", out)
	}

	var zero FlexTime
	out, err = json.Marshal(zero)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "null" {
		t.Errorf("zero marshal = %s, want null", out)
	}
}

func TestFlexTime_RoundTripInStruct(t *testing.T) {
	type line struct {
		T    FlexTime `json:"t"`
		Text string   `json:"text"`
	}
	var l line
	if err := json.Unmarshal([]byte(`{"t":1756641600,"text":"hello"}`), &l); err != nil {
		t.Fatal(err)
	}
	if l.T.IsZero() {
		t.Fatal("timestamp not parsed")
	}
	if l.Text != "hello" {
		t.Errorf("text = %q", l.Text)
	}
}
