package score

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/classlens/cl-engine/internal/errclass"
)

// maxErrorBody caps how much of a vendor error response is kept for logs.
const maxErrorBody = 512

// SpeechAPI calls a JSON speech-assessment endpoint. Any backend that
// accepts {expected_text, audio{mime,base64,duration_ms}, accent} and
// returns score fields works; the engine does not care which vendor sits
// behind the URL.
type SpeechAPI struct {
	url    string
	apiKey string
	client *http.Client
}

// NewSpeechAPI creates a speech-assessment HTTP client.
func NewSpeechAPI(url, apiKey string, timeout time.Duration) *SpeechAPI {
	return &SpeechAPI{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

// Name returns the backend name.
func (sa *SpeechAPI) Name() string { return "speech-api" }

// Score sends one attempt to the assessment endpoint and returns the raw
// (un-normalized) result.
func (sa *SpeechAPI) Score(ctx context.Context, sreq Request) (*Result, error) {
	body, err := json.Marshal(sreq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sa.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sa.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+sa.apiKey)
	}

	resp, err := sa.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &errclass.StatusError{
			Service: "speech",
			Status:  resp.StatusCode,
			Body:    truncate(string(respBody), maxErrorBody),
		}
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
