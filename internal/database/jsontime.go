package database

import (
	"fmt"
	"strconv"
	"time"
)

// FlexTime unmarshals JSON timestamps that arrive either as Unix
// seconds (integer or float) or as an RFC 3339 string. Capture clients
// are inconsistent about which they send.
type FlexTime struct {
	time.Time
}

func (f *FlexTime) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		return nil
	}

	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		t, err := time.Parse(time.RFC3339, s[1:len(s)-1])
		if err != nil {
			return fmt.Errorf("parse timestamp %s: %w", s, err)
		}
		f.Time = t
		return nil
	}

	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse timestamp %s: %w", s, err)
	}
	if sec == 0 {
		return nil
	}
	f.Time = time.Unix(int64(sec), int64((sec-float64(int64(sec)))*1e9)).UTC()
	return nil
}

func (f FlexTime) MarshalJSON() ([]byte, error) {
	if f.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + f.UTC().Format(time.RFC3339) + `"`), nil
}
