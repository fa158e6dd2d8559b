package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/classlens/cl-engine/internal/database"
	"github.com/classlens/cl-engine/internal/errclass"
	"github.com/classlens/cl-engine/internal/metrics"
)

// Job is one window waiting for analysis.
type Job struct {
	TranscriptID int64
	WindowID     int64
	WindowIndex  int
	WindowText   string
	Objectives   string
}

// QueueStats reports the current state of the analysis queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Active    int   `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Store is the slice of the database layer the pool writes through.
// *database.DB satisfies it; tests substitute fakes.
type Store interface {
	SaveAnalysis(ctx context.Context, row *database.AnalysisRow) (int64, error)
	MarkWindowFailed(ctx context.Context, windowID int64, errorCode string) error
}

// EventPublishFunc is a callback for publishing SSE events.
type EventPublishFunc func(eventType string, transcriptID int64, payload map[string]any)

// PoolOptions configures the analysis worker pool.
type PoolOptions struct {
	Store        Store
	Provider     Provider
	Workers      int
	QueueSize    int
	Timeout      time.Duration // per-request budget for the provider call
	PublishEvent EventPublishFunc
	Log          zerolog.Logger
}

// Pool fans window-analysis jobs out to a fixed set of workers. Each job
// succeeds or fails on its own; there is no retry and no rollback of
// sibling windows.
type Pool struct {
	jobs     chan Job
	store    Store
	provider Provider
	opts     PoolOptions
	log      zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu      sync.Mutex
	stopped bool

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewPool creates an analysis worker pool.
func NewPool(opts PoolOptions) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		jobs:     make(chan Job, opts.QueueSize),
		store:    opts.Store,
		provider: opts.Provider,
		opts:     opts,
		log:      opts.Log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.Info().
		Int("workers", p.opts.Workers).
		Int("queue_size", p.opts.QueueSize).
		Str("provider", p.provider.Name()).
		Msg("analysis worker pool started")
}

// Stop rejects further jobs, drains the queue, and waits for in-flight
// work to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.jobs)
	p.wg.Wait()
	p.cancel()
	p.log.Info().
		Int64("completed", p.completed.Load()).
		Int64("failed", p.failed.Load()).
		Msg("analysis worker pool stopped")
}

// Enqueue adds a job to the analysis queue. Returns false when the queue
// is full or the pool has stopped; the window then stays pending and can
// be re-enqueued later.
func (p *Pool) Enqueue(j Job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	select {
	case p.jobs <- j:
		return true
	default:
		return false
	}
}

// Stats returns current queue statistics.
func (p *Pool) Stats() QueueStats {
	return QueueStats{
		Pending:   len(p.jobs),
		Active:    int(p.active.Load()),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int { return p.opts.Workers }

// Model returns the configured analysis model name.
func (p *Pool) Model() string { return p.provider.Model() }

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	log := p.log.With().Int("worker", id).Logger()

	for job := range p.jobs {
		p.active.Add(1)
		err := p.processJob(log, job)
		p.active.Add(-1)
		if err != nil {
			p.failed.Add(1)
			log.Warn().Err(err).
				Int64("transcript_id", job.TranscriptID).
				Int("window", job.WindowIndex).
				Msg("analysis failed")
		} else {
			p.completed.Add(1)
		}
	}
}

func (p *Pool) processJob(log zerolog.Logger, job Job) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(p.ctx, p.opts.Timeout+10*time.Second)
	defer cancel()

	result, err := p.provider.Analyze(ctx, Request{
		WindowText: job.WindowText,
		Objectives: job.Objectives,
	})
	if err != nil {
		class := errclass.Classify(err)
		p.markFailed(job, class)
		metrics.AnalysisFailedTotal.WithLabelValues(class).Inc()
		p.publish("analysis.failed", job, map[string]any{
			"window_id":    job.WindowID,
			"window_index": job.WindowIndex,
			"error_code":   class,
		})
		return fmt.Errorf("analyze window %d: %w", job.WindowIndex, err)
	}

	if result.Sentences == nil {
		result.Sentences = []Sentence{}
	}
	if result.Vocabulary == nil {
		result.Vocabulary = []VocabularyEntry{}
	}
	sentencesJSON, err := json.Marshal(result.Sentences)
	if err != nil {
		return fmt.Errorf("marshal sentences: %w", err)
	}
	vocabularyJSON, err := json.Marshal(result.Vocabulary)
	if err != nil {
		return fmt.Errorf("marshal vocabulary: %w", err)
	}

	durationMs := int(time.Since(start).Milliseconds())

	row := &database.AnalysisRow{
		WindowID:     job.WindowID,
		TranscriptID: job.TranscriptID,
		Sentences:    sentencesJSON,
		Vocabulary:   vocabularyJSON,
		Provider:     p.provider.Name(),
		Model:        p.provider.Model(),
		DurationMs:   durationMs,
	}

	if _, err := p.store.SaveAnalysis(ctx, row); err != nil {
		// Window stays pending; a later re-enqueue retries it.
		return fmt.Errorf("db insert: %w", err)
	}

	metrics.AnalysisCompletedTotal.Inc()
	metrics.AnalysisDuration.Observe(time.Since(start).Seconds())

	p.publish("analysis.completed", job, map[string]any{
		"window_id":    job.WindowID,
		"window_index": job.WindowIndex,
		"sentences":    len(result.Sentences),
		"vocabulary":   len(result.Vocabulary),
		"model":        p.provider.Model(),
		"duration_ms":  durationMs,
	})

	log.Debug().
		Int64("transcript_id", job.TranscriptID).
		Int("window", job.WindowIndex).
		Int("sentences", len(result.Sentences)).
		Int("vocabulary", len(result.Vocabulary)).
		Int("duration_ms", durationMs).
		Msg("analysis complete")

	return nil
}

// markFailed records the failure class on the window. The vendor context
// may already be expired here, so the write gets its own deadline.
func (p *Pool) markFailed(job Job, class string) {
	ctx, cancel := context.WithTimeout(p.ctx, 10*time.Second)
	defer cancel()
	if err := p.store.MarkWindowFailed(ctx, job.WindowID, class); err != nil {
		p.log.Error().Err(err).Int64("window_id", job.WindowID).Msg("failed to record window failure")
	}
}

func (p *Pool) publish(eventType string, job Job, payload map[string]any) {
	if p.opts.PublishEvent != nil {
		p.opts.PublishEvent(eventType, job.TranscriptID, payload)
	}
}
