// Package audio handles pronunciation-attempt recordings: decoding the
// base64 payloads uploaded by clients, checking them against declared
// types and size limits, and naming them for the clip store.
package audio

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/classlens/cl-engine/internal/errclass"
)

// Clip is a decoded recording ready for scoring and storage.
type Clip struct {
	Data []byte
	Mime string // normalized, e.g. "audio/webm"
	Ext  string // storage extension, e.g. "webm"
}

// extByMime maps normalized mime types to storage extensions. This is the
// accepted-upload allowlist.
var extByMime = map[string]string{
	"audio/webm": "webm",
	"audio/ogg":  "ogg",
	"audio/wav":  "wav",
	"audio/mpeg": "mp3",
	"audio/mp4":  "m4a",
}

// sniffAccept lists the content types stdlib sniffing may report for each
// declared type. An octet-stream sniff is always accepted (short or
// headerless audio often defeats detection).
var sniffAccept = map[string][]string{
	"audio/webm": {"video/webm", "audio/webm"},
	"audio/ogg":  {"application/ogg", "audio/ogg"},
	"audio/wav":  {"audio/wave"},
	"audio/mpeg": {"audio/mpeg"},
	"audio/mp4":  {"video/mp4", "audio/mp4"},
}

// NormalizeMime lowercases a declared content type, drops parameters
// (";codecs=opus"), and folds aliases onto the canonical entry.
func NormalizeMime(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "audio/x-wav", "audio/wave":
		return "audio/wav"
	case "audio/mp3":
		return "audio/mpeg"
	}
	return mime
}

// SupportedMime reports whether the declared content type is accepted.
func SupportedMime(mime string) bool {
	_, ok := extByMime[NormalizeMime(mime)]
	return ok
}

// DecodeClip base64-decodes an uploaded recording and validates it against
// the declared mime type and byte limit. maxBytes <= 0 disables the size
// check. Data-URL prefixes ("data:audio/webm;base64,...") are tolerated.
func DecodeClip(mime, b64 string, maxBytes int) (*Clip, error) {
	norm := NormalizeMime(mime)
	ext, ok := extByMime[norm]
	if !ok {
		return nil, fmt.Errorf("unsupported audio type %q: %w", mime, errclass.ErrInvalid)
	}

	if i := strings.Index(b64, "base64,"); i >= 0 && strings.HasPrefix(b64, "data:") {
		b64 = b64[i+len("base64,"):]
	}
	if strings.TrimSpace(b64) == "" {
		return nil, fmt.Errorf("audio payload is empty: %w", errclass.ErrInvalid)
	}

	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("audio payload is not valid base64: %w", errclass.ErrInvalid)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("audio payload is empty: %w", errclass.ErrInvalid)
	}
	if maxBytes > 0 && len(data) > maxBytes {
		return nil, fmt.Errorf("audio is %d bytes (limit %d): %w", len(data), maxBytes, errclass.ErrTooLarge)
	}

	if detected := http.DetectContentType(data); detected != "application/octet-stream" {
		if !sniffMatches(norm, detected) {
			return nil, fmt.Errorf("audio content sniffs as %s, declared %s: %w", detected, norm, errclass.ErrInvalid)
		}
	}

	return &Clip{Data: data, Mime: norm, Ext: ext}, nil
}

func sniffMatches(declared, detected string) bool {
	for _, ok := range sniffAccept[declared] {
		if detected == ok {
			return true
		}
	}
	return false
}

// NewClipID returns a random hex identifier for a stored clip.
func NewClipID() string {
	b := make([]byte, 12)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Key builds the date-partitioned storage path for a clip.
func Key(t time.Time, id, ext string) string {
	return fmt.Sprintf("scores/%04d/%02d/%02d/%s.%s", t.Year(), int(t.Month()), t.Day(), id, ext)
}
