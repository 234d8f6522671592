// Package capture drives the headless browser, converts screenshots to 1-bit
// frames and commits them to the frame store.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/warka/warka/internal/frame"
	"github.com/warka/warka/internal/metrics"
)

const (
	defaultNavigationTimeout = 20 * time.Second
	defaultCaptureTimeout    = 60 * time.Second
	flightKey                = "capture"
	restoreKey               = "restore"
)

// Config controls what is captured and how long an attempt may take.
type Config struct {
	TargetURL         string
	Width             int
	Height            int
	Settle            time.Duration
	NavigationTimeout time.Duration
	// Timeout bounds a whole attempt, launch through commit.
	Timeout   time.Duration
	Threshold uint8
}

// FrameSetter commits frames; *frame.Store satisfies it.
type FrameSetter interface {
	Set(f *frame.Frame) (*frame.Frame, error)
}

// BlobStore persists capture artifacts and returns their URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher announces committed frames.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Recorder keeps a history of capture attempts.
type Recorder interface {
	RecordCapture(ctx context.Context, rec Record) error
}

// Record summarises one capture attempt for the Recorder.
type Record struct {
	ID        string
	TargetURL string
	Status    string
	Width     int
	Height    int
	Digest    string
	BlobURI   string
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// Event is the payload published after a successful commit.
type Event struct {
	ID         string    `json:"id"`
	TargetURL  string    `json:"target_url"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Digest     string    `json:"digest"`
	Changed    bool      `json:"changed"`
	CapturedAt time.Time `json:"captured_at"`
}

// Option customises an Engine.
type Option func(*Engine)

// WithArchive persists the raw PNG and the 1-bit BMP of every capture.
func WithArchive(store BlobStore, prefix string) Option {
	return func(e *Engine) {
		e.archive = store
		e.archivePrefix = prefix
	}
}

// WithPublisher announces committed frames on topic.
func WithPublisher(p Publisher, topic string) Option {
	return func(e *Engine) {
		e.publisher = p
		e.topic = topic
	}
}

// WithRecorder stores a row per capture attempt.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithIDFunc overrides capture ID generation.
func WithIDFunc(fn func() (string, error)) Option {
	return func(e *Engine) { e.newID = fn }
}

// Engine runs captures with at most one browser session in flight. Callers
// that arrive while a capture runs share its result.
type Engine struct {
	cfg     Config
	browser Browser
	store   FrameSetter
	logger  *zap.Logger

	archive       BlobStore
	archivePrefix string
	publisher     Publisher
	topic         string
	recorder      Recorder
	clock         func() time.Time
	newID         func() (string, error)

	group singleflight.Group

	// mu guards commits to store and lastDigest.
	mu         sync.Mutex
	lastDigest string
}

// NewEngine validates cfg and builds an Engine.
func NewEngine(cfg Config, browser Browser, store FrameSetter, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if cfg.TargetURL == "" {
		return nil, errors.New("capture target url is required")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("display size must be positive, got %dx%d", cfg.Width, cfg.Height)
	}
	if browser == nil {
		return nil, errors.New("browser is required")
	}
	if store == nil {
		return nil, errors.New("frame store is required")
	}
	if cfg.Settle < 0 {
		return nil, errors.New("settle interval must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCaptureTimeout
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cfg:     cfg,
		browser: browser,
		store:   store,
		logger:  logger,
		clock:   time.Now,
		newID:   newCaptureID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Capture runs one capture of the configured page, or joins the one already
// running. On success the new frame is committed before Capture returns; on
// failure the store is left untouched and the error wraps ErrCapture.
//
// The shared attempt is detached from ctx so one caller giving up does not
// abort it for the others; ctx only bounds how long this caller waits.
func (e *Engine) Capture(ctx context.Context) (*frame.Frame, error) {
	ch := e.group.DoChan(flightKey, func() (any, error) {
		attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.Timeout)
		defer cancel()
		return e.captureOnce(attemptCtx)
	})
	select {
	case res := <-ch:
		if res.Shared {
			metrics.ObserveCaptureCoalesced()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		f, ok := res.Val.(*frame.Frame)
		if !ok || f == nil {
			return nil, fmt.Errorf("%w: no frame produced", ErrCapture)
		}
		return f, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for capture: %w", ctx.Err())
	}
}

func (e *Engine) captureOnce(ctx context.Context) (*frame.Frame, error) {
	ctx, span := otel.Tracer("github.com/warka/warka/internal/capture").Start(ctx, "capture")
	defer span.End()

	start := e.clock()
	id, err := e.newID()
	if err != nil {
		return nil, stageError(StageLaunch, fmt.Errorf("capture id: %w", err))
	}
	span.SetAttributes(attribute.String("capture.id", id), attribute.String("capture.url", e.cfg.TargetURL))
	logger := e.logger.With(zap.String("capture_id", id), zap.String("url", e.cfg.TargetURL))
	logger.Info("capture started")

	metrics.SetCaptureInFlight(true)
	defer metrics.SetCaptureInFlight(false)

	f, raster, err := e.render(ctx, id, start)
	elapsed := e.clock().Sub(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.ObserveCapture(string(StageOf(err)), elapsed)
		logger.Warn("capture failed", zap.Error(err), zap.Duration("duration", elapsed))
		e.record(ctx, Record{
			ID:        id,
			TargetURL: e.cfg.TargetURL,
			Status:    "failed",
			Error:     err.Error(),
			StartedAt: start,
			Duration:  elapsed,
		})
		return nil, err
	}

	changed, err := e.commit(f)
	if err != nil {
		metrics.ObserveCapture(string(StageCommit), elapsed)
		return nil, err
	}
	metrics.ObserveCapture("ok", elapsed)
	logger.Info("capture committed",
		zap.Int("width", f.Width()),
		zap.Int("height", f.Height()),
		zap.String("digest", f.Digest()),
		zap.Bool("changed", changed),
		zap.Duration("duration", elapsed),
	)

	blobURI := e.persist(ctx, logger, f, raster)
	e.record(ctx, Record{
		ID:        id,
		TargetURL: e.cfg.TargetURL,
		Status:    "ok",
		Width:     f.Width(),
		Height:    f.Height(),
		Digest:    f.Digest(),
		BlobURI:   blobURI,
		StartedAt: start,
		Duration:  elapsed,
	})
	e.announce(ctx, logger, f, changed)
	return f, nil
}

// commit stores f and reports whether its content differs from the last
// committed frame.
func (e *Engine) commit(f *frame.Frame) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.store.Set(f); err != nil {
		return false, stageError(StageCommit, err)
	}
	changed := f.Digest() != e.lastDigest
	e.lastDigest = f.Digest()
	return changed, nil
}

func (e *Engine) render(ctx context.Context, id string, start time.Time) (*frame.Frame, Raster, error) {
	raster, err := e.browser.Screenshot(ctx, Request{
		URL:               e.cfg.TargetURL,
		Viewport:          Viewport{Width: e.cfg.Width, Height: e.cfg.Height},
		Settle:            e.cfg.Settle,
		NavigationTimeout: e.cfg.NavigationTimeout,
	})
	if err != nil {
		return nil, Raster{}, stageError(StageScreenshot, err)
	}
	if raster.InnerWidth != 0 && (raster.InnerWidth != e.cfg.Width || raster.InnerHeight != e.cfg.Height) {
		e.logger.Warn("viewport differs from display size",
			zap.Int("inner_width", raster.InnerWidth),
			zap.Int("inner_height", raster.InnerHeight),
			zap.Int("display_width", e.cfg.Width),
			zap.Int("display_height", e.cfg.Height),
		)
	}

	w, h, samples, err := ToMonochrome(raster.PNG, e.cfg.Threshold)
	if err != nil {
		return nil, Raster{}, stageError(StageConvert, err)
	}
	f, err := frame.New(w, h, samples, frame.Meta{
		ID:         id,
		SourceURL:  e.cfg.TargetURL,
		CapturedAt: start.UTC(),
	})
	if err != nil {
		return nil, Raster{}, stageError(StageConvert, err)
	}
	return f, raster, nil
}

// persist archives the capture. Failures are logged only: the frame is
// already committed and serving.
func (e *Engine) persist(ctx context.Context, logger *zap.Logger, f *frame.Frame, raster Raster) string {
	if e.archive == nil {
		return ""
	}
	dir := path.Join(e.archivePrefix, f.Meta().ID)
	if _, err := e.archive.PutObject(ctx, path.Join(dir, "screenshot.png"), "image/png", bytes.NewReader(raster.PNG)); err != nil {
		logger.Warn("archive screenshot failed", zap.Error(err))
	}
	var bmp bytes.Buffer
	if err := frame.EncodeBMP(&bmp, f); err != nil {
		logger.Warn("encode bmp failed", zap.Error(err))
		return ""
	}
	uri, err := e.archive.PutObject(ctx, path.Join(dir, "screenshot.bmp"), "image/bmp", bytes.NewReader(bmp.Bytes()))
	if err != nil {
		logger.Warn("archive bitmap failed", zap.Error(err))
		return ""
	}
	if _, err := e.archive.PutObject(ctx, path.Join(e.archivePrefix, "latest.bmp"), "image/bmp", bytes.NewReader(bmp.Bytes())); err != nil {
		logger.Warn("archive latest bitmap failed", zap.Error(err))
	}
	return uri
}

func (e *Engine) record(ctx context.Context, rec Record) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordCapture(ctx, rec); err != nil {
		e.logger.Warn("record capture failed", zap.String("capture_id", rec.ID), zap.Error(err))
	}
}

func (e *Engine) announce(ctx context.Context, logger *zap.Logger, f *frame.Frame, changed bool) {
	if e.publisher == nil {
		return
	}
	meta := f.Meta()
	msgID, err := e.publisher.Publish(ctx, e.topic, Event{
		ID:         meta.ID,
		TargetURL:  meta.SourceURL,
		Width:      f.Width(),
		Height:     f.Height(),
		Digest:     f.Digest(),
		Changed:    changed,
		CapturedAt: meta.CapturedAt,
	})
	if err != nil {
		logger.Warn("publish frame event failed", zap.Error(err))
		return
	}
	logger.Debug("frame event published", zap.String("message_id", msgID))
}

func newCaptureID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}
