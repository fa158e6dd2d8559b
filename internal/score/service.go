package score

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/classlens/cl-engine/internal/audio"
	"github.com/classlens/cl-engine/internal/database"
	"github.com/classlens/cl-engine/internal/errclass"
	"github.com/classlens/cl-engine/internal/metrics"
)

// AttemptStore is the slice of the database layer the service writes
// through. *database.DB satisfies it.
type AttemptStore interface {
	SaveScoreAttempt(ctx context.Context, row *database.ScoreAttemptRow) (int64, error)
}

// ClipSaver stores accepted recordings. Satisfied by storage.ClipStore.
type ClipSaver interface {
	Save(ctx context.Context, key string, data []byte, contentType string) error
}

// EventPublishFunc is a callback for publishing SSE events.
type EventPublishFunc func(eventType string, payload map[string]any)

// ServiceOptions configures the scoring service.
type ServiceOptions struct {
	Store         AttemptStore
	Scorer        Scorer
	Clips         ClipSaver // nil keeps no audio
	DefaultAccent string
	MaxAudioBytes int
	Timeout       time.Duration // per-request budget for the assessment call
	PublishEvent  EventPublishFunc
	Log           zerolog.Logger
}

// Service runs pronunciation attempts end to end: validate, decode,
// assess, normalize, persist. Vendor failures are persisted too, with
// their failure class; pre-flight rejections are not.
type Service struct {
	opts ServiceOptions
	log  zerolog.Logger
}

// NewService creates a scoring service.
func NewService(opts ServiceOptions) *Service {
	return &Service{opts: opts, log: opts.Log}
}

// Name returns the configured backend name.
func (s *Service) Name() string { return s.opts.Scorer.Name() }

// Evaluate processes one attempt. On vendor failure the returned row is
// the persisted failed attempt and err carries the cause; callers
// classify it for the client.
func (s *Service) Evaluate(ctx context.Context, req Request, room string) (*database.ScoreAttemptRow, error) {
	if err := ValidateRequest(&req, s.opts.DefaultAccent); err != nil {
		return nil, err
	}
	clip, err := audio.DecodeClip(req.Audio.Mime, req.Audio.Base64, s.opts.MaxAudioBytes)
	if err != nil {
		return nil, err
	}

	row := &database.ScoreAttemptRow{
		ExpectedText: req.ExpectedText,
		Accent:       req.Accent,
		Mime:         clip.Mime,
		DurationMS:   req.Audio.DurationMS,
		AudioBytes:   len(clip.Data),
		Room:         room,
	}

	vctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	result, err := s.opts.Scorer.Score(vctx, req)
	if err != nil {
		row.Status = "failed"
		row.ErrorCode = errclass.Classify(err)
		if id, dbErr := s.opts.Store.SaveScoreAttempt(ctx, row); dbErr != nil {
			s.log.Error().Err(dbErr).Msg("failed to record failed attempt")
		} else {
			row.ID = id
		}
		metrics.ScoreAttemptsTotal.WithLabelValues("failed").Inc()
		return row, fmt.Errorf("assess attempt: %w", err)
	}

	Normalize(result)

	if result.Words == nil {
		result.Words = []WordScore{}
	}
	wordsJSON, err := json.Marshal(result.Words)
	if err != nil {
		return nil, fmt.Errorf("marshal words: %w", err)
	}

	row.Status = "scored"
	row.Overall = result.Overall
	row.Label = result.Label
	row.Accuracy = result.Accuracy
	row.Fluency = result.Fluency
	row.Completeness = result.Completeness
	row.Words = wordsJSON

	// Clip storage is best-effort: a failed save loses replay audio, not
	// the attempt.
	if s.opts.Clips != nil {
		key := audio.Key(time.Now().UTC(), audio.NewClipID(), clip.Ext)
		if err := s.opts.Clips.Save(ctx, key, clip.Data, clip.Mime); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("clip save failed")
		} else {
			row.AudioKey = key
		}
	}

	id, err := s.opts.Store.SaveScoreAttempt(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("db insert: %w", err)
	}
	row.ID = id

	metrics.ScoreAttemptsTotal.WithLabelValues("scored").Inc()
	metrics.ScoreOverall.Observe(float64(result.Overall))

	if s.opts.PublishEvent != nil {
		s.opts.PublishEvent("score.recorded", map[string]any{
			"id":      id,
			"overall": result.Overall,
			"label":   result.Label,
			"accent":  req.Accent,
			"room":    room,
		})
	}

	s.log.Debug().
		Int64("id", id).
		Int("overall", result.Overall).
		Str("label", result.Label).
		Str("accent", req.Accent).
		Msg("attempt scored")

	return row, nil
}
