package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/warka/warka/internal/frame"
	"github.com/warka/warka/internal/metrics"
	"github.com/warka/warka/internal/publisher/memory"
	"github.com/warka/warka/internal/refresh"
	"github.com/warka/warka/internal/upstream"
	"github.com/warka/warka/internal/window"
)

const defaultRequestTimeout = 90 * time.Second

// FrameSource yields the current frame.
type FrameSource interface {
	Current() (*frame.Frame, error)
}

// WindowReader slices the current frame.
type WindowReader interface {
	Read(offset, limit int) (window.Window, error)
}

// Refresher runs the refresh policy ahead of a window read.
type Refresher interface {
	BeforeRead(ctx context.Context) refresh.Action
	Policy() refresh.Policy
}

// Capturer runs a synchronous capture.
type Capturer interface {
	Capture(ctx context.Context) (*frame.Frame, error)
}

// NewsSource lists top stories.
type NewsSource interface {
	TopStories(ctx context.Context) ([]upstream.Story, error)
}

// QuoteSource quotes a comma-separated list of tickers.
type QuoteSource interface {
	Quotes(ctx context.Context, tickers string) (map[string]any, error)
}

// WeatherSource returns the daily forecast.
type WeatherSource interface {
	Forecast(ctx context.Context) (upstream.Forecast, error)
}

// HoldingsSource values the configured portfolio.
type HoldingsSource interface {
	Value(ctx context.Context) (upstream.Valuation, error)
}

// DeviceConfigSource loads the firmware config document.
type DeviceConfigSource interface {
	Load() (json.RawMessage, error)
}

// EventLog lists recently published frame events.
type EventLog interface {
	Messages() []memory.PublishedMessage
}

// Deps are the collaborators behind the routes. Frames, Reader and Capturer
// are required; a nil optional dependency makes its routes answer 503.
type Deps struct {
	Frames       FrameSource
	Reader       WindowReader
	Refresher    Refresher
	Capturer     Capturer
	News         NewsSource
	Quotes       QuoteSource
	Weather      WeatherSource
	Holdings     HoldingsSource
	DeviceConfig DeviceConfigSource
	History      CaptureHistory
	Events       EventLog
}

// Options tune the HTTP surface.
type Options struct {
	// DefaultEncoding is used by /image when the query names none.
	DefaultEncoding window.Encoding
	RequestTimeout  time.Duration
	// AllowedOrigins for CORS; empty allows every origin.
	AllowedOrigins []string
}

// Server wires HTTP handlers to the frame pipeline and upstream services.
type Server struct {
	router  chi.Router
	deps    Deps
	opts    Options
	logger  *zap.Logger
	history *CaptureHandler
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultEncoding == "" {
		opts.DefaultEncoding = window.Decimal
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	s := &Server{
		deps:    deps,
		opts:    opts,
		logger:  logger,
		history: NewCaptureHandler(deps.History, logger),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(opts.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/image", s.image)
	r.Get("/screenshot", s.screenshot)
	r.Get("/frame", s.frameInfo)
	r.Get("/frame.bmp", s.frameBitmap)

	r.Get("/hackernews", s.hackerNews)
	r.Get("/stocks", s.stocks)
	r.Get("/weather", s.weather)
	r.Get("/holdings", s.holdings)
	r.Get("/config", s.deviceConfig)
	r.Get("/events", s.events)

	r.Route("/captures", func(r chi.Router) {
		r.Get("/", s.history.ListCaptures)
		r.Get("/{capture_id}", s.history.GetCapture)
	})

	s.router = r
	return s
}

// Handler returns the router wrapped in CORS for use with http.Server.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"ETag", "X-Request-ID", "X-Frame-Digest", "X-Frame-Length"},
		MaxAge:         86400,
	})
	return c.Handler(s.router)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz reports ready once a frame can be served.
func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	body := map[string]string{"status": "ready"}
	if s.deps.Refresher != nil {
		body["refresh_policy"] = string(s.deps.Refresher.Policy())
	}
	if _, err := s.deps.Frames.Current(); err != nil {
		body["status"] = "waiting for first frame"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
