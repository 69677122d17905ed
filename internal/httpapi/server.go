package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/storyreel/storyreel/internal/pipeline"
	"github.com/storyreel/storyreel/internal/progress"
	"github.com/storyreel/storyreel/internal/publish"
	"github.com/storyreel/storyreel/internal/store"
)

// Launcher starts composition jobs.
type Launcher interface {
	Launch(req pipeline.CreateRequest)
}

// Publisher uploads a finished video to an external platform.
type Publisher interface {
	Upload(ctx context.Context, videoPath string, meta publish.Metadata) (string, error)
}

// RecordStore is the slice of the content store the API needs.
type RecordStore interface {
	Create(ctx context.Context, rec *store.Record) error
	Get(ctx context.Context, id string) (store.Record, bool, error)
	SetSelections(ctx context.Context, id, backgroundID, musicID string) error
}

type Server struct {
	launcher  Launcher
	records   RecordStore
	tracker   *progress.Tracker
	publisher Publisher

	uploadsDir string
	grace      time.Duration

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

// WithClearGrace sets how long an observed error snapshot stays readable
// before eviction.
func WithClearGrace(d time.Duration) Option {
	return func(s *Server) { s.grace = d }
}

// WithPublisher enables the publish endpoint. Without it the endpoint
// reports publishing as not configured.
func WithPublisher(p Publisher) Option {
	return func(s *Server) { s.publisher = p }
}

func NewServer(launcher Launcher, records RecordStore, tracker *progress.Tracker, uploadsDir string, opts ...Option) *Server {
	s := &Server{
		launcher:   launcher,
		records:    records,
		tracker:    tracker,
		uploadsDir: uploadsDir,
		grace:      5 * time.Second,
		mux:        http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/videos/create", s.handleCreateVideo)
	s.mux.HandleFunc("/api/videos/publish", s.handlePublish)
	s.mux.HandleFunc("/api/videos/progress/", s.handleProgress)
	s.mux.HandleFunc("/api/videos/", s.handleGetVideo)
	s.mux.HandleFunc("/api/content", s.handleCreateContent)
	s.mux.HandleFunc("/media/", s.handleMedia)
}
