package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/classlens/cl-engine/internal/analyze"
	"github.com/classlens/cl-engine/internal/config"
	"github.com/classlens/cl-engine/internal/database"
	"github.com/classlens/cl-engine/internal/metrics"
	"github.com/classlens/cl-engine/internal/mqttclient"
	"github.com/classlens/cl-engine/internal/score"
	"github.com/classlens/cl-engine/internal/storage"
)

// ServerOptions wires the handlers' dependencies. Optional components
// (mqtt, live, pool, scorer, clips) may be nil; the matching endpoints
// then answer 503.
type ServerOptions struct {
	Config    *config.Config
	DB        *database.DB
	MQTT      *mqttclient.Client
	Live      LiveDataSource
	Ingester  TranscriptIngester
	Pool      *analyze.Pool
	Scorer    *score.Service
	Clips     storage.ClipStore
	Version   string
	StartTime time.Time
	Log       zerolog.Logger
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	cfg := opts.Config
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))
	r.Use(CORSWithOrigins(corsOrigins(cfg.CORSOrigins)))

	// Health endpoint, no auth
	health := NewHealthHandler(opts.DB, opts.MQTT, opts.Live,
		opts.Pool != nil, opts.Scorer != nil, opts.Version, opts.StartTime)
	r.Get("/api/v1/health", health.ServeHTTP)

	// Authenticated API
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))
		r.Use(metrics.InstrumentHandler)

		transcripts := NewTranscriptsHandler(opts.DB, opts.Ingester, opts.Pool)
		scores := NewScoresHandler(opts.DB, opts.Scorer, opts.Clips)
		upload := NewUploadHandler(opts.Ingester, cfg.MaxTranscriptBytes, opts.Log)
		search := NewSearchHandler(opts.DB)
		stats := NewStatsHandler(opts.DB, opts.Live)
		events := NewEventsHandler(opts.Live)

		search.Routes(r)
		stats.Routes(r)
		events.Routes(r)

		// Read endpoints
		r.Get("/transcripts", transcripts.ListTranscripts)
		r.Get("/transcripts/{id}", transcripts.GetTranscript)
		r.Get("/transcripts/{id}/windows", transcripts.ListWindows)
		r.Get("/transcripts/{id}/results", transcripts.ListResults)
		r.Get("/windows/{id}/analysis", transcripts.GetWindowAnalysis)
		r.Get("/scores", scores.ListScores)
		r.Get("/scores/{id}", scores.GetScore)
		r.Get("/scores/{id}/audio", scores.GetScoreAudio)

		// Mutating endpoints are rate limited per client IP
		r.Group(func(r chi.Router) {
			r.Use(RateLimiter(cfg.RateLimitRPS, cfg.RateBurst))
			r.Post("/transcripts", transcripts.CreateTranscript)
			r.Post("/transcripts/{id}/analyze", transcripts.AnalyzeTranscript)
			// Destructive, so refused entirely unless a token is configured
			r.With(RequireAuth(cfg.AuthToken)).Delete("/transcripts/{id}", transcripts.DeleteTranscript)
			r.Post("/transcript-upload", upload.Upload)
			r.Post("/scores", scores.CreateScore)
		})
	})

	// Prometheus metrics, behind the same bearer token as the API
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))
		r.Handle("/metrics", promhttp.Handler())
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: opts.Log,
	}
}

// corsOrigins parses the comma separated origin list; "*" or empty
// means allow all.
func corsOrigins(raw string) []string {
	if raw == "" || raw == "*" {
		return nil
	}
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
