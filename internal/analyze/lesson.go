package analyze

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

// LessonAPI calls a JSON lesson-analysis endpoint: window text and lesson
// objectives in, sentences and vocabulary out. Any backend that speaks the
// shape works; the engine has no opinion about the model behind it.
type LessonAPI struct {
	url      string
	model    string
	apiKey   string
	maxBytes int
	client   *http.Client
}

// NewLessonAPI creates a lesson-analysis HTTP client. maxBytes bounds the
// window text sent per request; 0 disables the check.
func NewLessonAPI(url, model, apiKey string, timeout time.Duration, maxBytes int) *LessonAPI {
	return &LessonAPI{
		url:      url,
		model:    model,
		apiKey:   apiKey,
		maxBytes: maxBytes,
		client:   &http.Client{Timeout: timeout},
	}
}

func (la *LessonAPI) Name() string  { return "lesson-api" }
func (la *LessonAPI) Model() string { return la.model }

// Analyze sends one window to the analysis endpoint and returns the parsed
// result. Oversized or empty window text is rejected before any network
// traffic.
func (la *LessonAPI) Analyze(ctx context.Context, areq Request) (*Result, error) {
	if areq.WindowText == "" {
		return nil, fmt.Errorf("window text is empty: %w", errclass.ErrInvalid)
	}
	if la.maxBytes > 0 && len(areq.WindowText) > la.maxBytes {
		return nil, fmt.Errorf("window text is %d bytes (limit %d): %w", len(areq.WindowText), la.maxBytes, errclass.ErrTooLarge)
	}

	payload := struct {
		Request
		Model string `json:"model,omitempty"`
	}{Request: areq, Model: la.model}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, la.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if la.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+la.apiKey)
	}

	resp, err := la.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lesson request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &errclass.StatusError{
			Service: "lesson",
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
