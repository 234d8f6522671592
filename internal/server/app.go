// Package server builds the application from configuration and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warka/warka/internal/api"
	"github.com/warka/warka/internal/capture"
	"github.com/warka/warka/internal/config"
	collyfetcher "github.com/warka/warka/internal/fetcher/colly"
	"github.com/warka/warka/internal/frame"
	"github.com/warka/warka/internal/logging"
	memorypublisher "github.com/warka/warka/internal/publisher/memory"
	gcppublisher "github.com/warka/warka/internal/publisher/pubsub"
	"github.com/warka/warka/internal/refresh"
	"github.com/warka/warka/internal/storage"
	gcsstorage "github.com/warka/warka/internal/storage/gcs"
	localstorage "github.com/warka/warka/internal/storage/local"
	memorystorage "github.com/warka/warka/internal/storage/memory"
	pgstore "github.com/warka/warka/internal/storage/postgres"
	"github.com/warka/warka/internal/telemetry"
	"github.com/warka/warka/internal/upstream"
	"github.com/warka/warka/internal/window"
)

// Version is reported in trace resources.
var Version = "dev"

// App contains the application's dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	store     *frame.Store
	engine    *capture.Engine
	scheduler *refresh.Scheduler
	apiServer *api.Server

	archive         storage.BlobStore
	gcsClient       *gcstorage.Client
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	captureLog      *pgstore.CaptureLog
	tracerShutdown  func(context.Context) error
}

// Option customises Build.
type Option func(*buildOptions)

type buildOptions struct {
	browser capture.Browser
	logger  *zap.Logger
}

// WithBrowser replaces the chromedp browser.
func WithBrowser(b capture.Browser) Option {
	return func(o *buildOptions) { o.browser = b }
}

// WithLogger replaces the logger built from cfg.Logging.
func WithLogger(l *zap.Logger) Option {
	return func(o *buildOptions) { o.logger = l }
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}
	logger := bo.logger
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
	}

	app := &App{cfg: cfg, logger: logger, store: frame.NewStore()}
	logger.Info("building application",
		zap.Int("port", cfg.Server.Port),
		zap.String("target_url", cfg.Capture.TargetURL),
		zap.Int("width", cfg.Display.Width),
		zap.Int("height", cfg.Display.Height),
		zap.String("refresh_policy", cfg.Refresh.Policy),
	)

	ok := false
	defer func() {
		if !ok {
			app.closeInfrastructure(context.Background())
			app.closeObservability(context.Background())
		}
	}()

	tp, err := telemetry.InitTracerProvider(ctx, telemetry.TracingConfig{
		ServiceName: "warka",
		Version:     Version,
		Exporter:    cfg.Tracing.Exporter,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown

	if err := app.setupStorage(ctx); err != nil {
		return nil, err
	}
	if err := app.setupDatabase(ctx); err != nil {
		return nil, err
	}
	publisher, events, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	if err := app.setupCapture(bo.browser, publisher); err != nil {
		return nil, err
	}

	app.scheduler, err = refresh.New(refresh.Config{
		Policy:      refresh.Policy(cfg.Refresh.Policy),
		TTL:         cfg.Refresh.TTL,
		MinInterval: cfg.Refresh.MinInterval,
		Interval:    cfg.Refresh.Interval,
	}, app.engine, app.store, logger.Named("refresh"))
	if err != nil {
		return nil, fmt.Errorf("refresh scheduler init failed: %w", err)
	}

	deps, err := app.upstreamDeps()
	if err != nil {
		return nil, err
	}
	deps.Frames = app.store
	deps.Reader = window.NewReader(app.store)
	deps.Refresher = app.scheduler
	deps.Capturer = app.engine
	if events != nil {
		deps.Events = events
	}
	if app.captureLog != nil {
		deps.History = app.captureLog
	}
	enc, err := window.ParseEncoding(cfg.Window.Encoding, window.Decimal)
	if err != nil {
		return nil, fmt.Errorf("window encoding: %w", err)
	}
	app.apiServer = api.NewServer(deps, api.Options{
		DefaultEncoding: enc,
		RequestTimeout:  cfg.Server.RequestTimeout,
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
	}, logger.Named("api"))

	ok = true
	return app, nil
}

func (a *App) setupStorage(ctx context.Context) error {
	var err error
	switch a.cfg.Storage.Backend {
	case "gcs":
		a.logger.Info("using GCS archive", zap.String("bucket", a.cfg.Storage.GCSBucket))
		a.gcsClient, err = gcstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.archive, err = gcsstorage.New(a.gcsClient, gcsstorage.Config{
			Bucket:       a.cfg.Storage.GCSBucket,
			CacheControl: "no-cache",
		})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
	case "local":
		a.logger.Info("using local archive", zap.String("path", a.cfg.Storage.LocalDir))
		a.archive, err = localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
	case "memory":
		a.logger.Info("using in-memory archive")
		a.archive = memorystorage.NewBlobStore()
	default:
		a.logger.Info("capture archive disabled")
	}
	return nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Info("no database dsn, capture history disabled")
		return nil
	}
	var err error
	a.captureLog, err = pgstore.NewCaptureLog(ctx, pgstore.CaptureLogConfig{
		DSN:             a.cfg.DB.DSN,
		Table:           a.cfg.DB.Table,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
		Migrate:         a.cfg.DB.Migrate,
	})
	if err != nil {
		return fmt.Errorf("capture log init failed: %w", err)
	}
	a.logger.Info("capture log initialized", zap.String("table", a.cfg.DB.Table))
	return nil
}

func (a *App) setupPublisher(ctx context.Context) (capture.Publisher, *memorypublisher.Publisher, error) {
	switch a.cfg.PubSub.Backend {
	case "gcp":
		var err error
		a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubPublisher, err = gcppublisher.New(a.pubsubClient)
		if err != nil {
			return nil, nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.PubSub.ProjectID),
			zap.String("topic", a.cfg.PubSub.TopicName),
		)
		return a.pubsubPublisher, nil, nil
	case "memory":
		a.logger.Info("using in-memory frame event log", zap.Int("retain", a.cfg.PubSub.Retain))
		events := memorypublisher.New(a.cfg.PubSub.Retain)
		return events, events, nil
	default:
		a.logger.Info("frame events disabled")
		return nil, nil, nil
	}
}

func (a *App) setupCapture(browser capture.Browser, publisher capture.Publisher) error {
	if browser == nil {
		browser = capture.NewChromedpBrowser(capture.ChromedpConfig{
			ExecPath:      a.cfg.Capture.ChromePath,
			UserAgent:     a.cfg.Capture.UserAgent,
			LaunchTimeout: a.cfg.Capture.LaunchTimeout,
		}, a.logger.Named("chromedp"))
	}
	var opts []capture.Option
	if a.archive != nil {
		opts = append(opts, capture.WithArchive(a.archive, a.cfg.Storage.Prefix))
	}
	if publisher != nil {
		opts = append(opts, capture.WithPublisher(publisher, a.cfg.PubSub.TopicName))
	}
	if a.captureLog != nil {
		opts = append(opts, capture.WithRecorder(a.captureLog))
	}
	var err error
	a.engine, err = capture.NewEngine(capture.Config{
		TargetURL:         a.cfg.Capture.TargetURL,
		Width:             a.cfg.Display.Width,
		Height:            a.cfg.Display.Height,
		Settle:            a.cfg.Capture.Settle,
		NavigationTimeout: a.cfg.Capture.NavTimeout,
		Timeout:           a.cfg.Capture.Timeout,
		Threshold:         a.cfg.Threshold(),
	}, browser, a.store, a.logger.Named("capture"), opts...)
	if err != nil {
		return fmt.Errorf("capture engine init failed: %w", err)
	}
	return nil
}

func (a *App) upstreamDeps() (api.Deps, error) {
	up := a.cfg.Upstream
	client := collyfetcher.New(collyfetcher.Config{
		UserAgent: up.UserAgent,
		Timeout:   up.Timeout,
	})
	loc, err := time.LoadLocation(up.Weather.Timezone)
	if err != nil {
		return api.Deps{}, fmt.Errorf("weather timezone: %w", err)
	}
	if up.Weather.APIKey == "" {
		a.logger.Warn("no weather api key, /weather will answer 503")
	}
	return api.Deps{
		News:   upstream.NewHackerNews(client, up.HackerNews.BaseURL, up.HackerNews.Count),
		Quotes: upstream.NewStocks(client, up.Quotes.BaseURL),
		Weather: upstream.NewWeather(client, upstream.WeatherConfig{
			BaseURL:  up.Weather.BaseURL,
			APIKey:   up.Weather.APIKey,
			Lat:      up.Weather.Lat,
			Lon:      up.Weather.Lon,
			Units:    up.Weather.Units,
			Location: loc,
		}),
		Holdings:     upstream.NewHoldings(client, up.Quotes.BaseURL, up.Holdings.Cash, up.Holdings.Positions),
		DeviceConfig: upstream.NewDeviceConfig(up.DeviceConfigPath),
	}, nil
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Capture runs one capture and returns the committed frame.
func (a *App) Capture(ctx context.Context) (*frame.Frame, error) {
	f, err := a.engine.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	return f, nil
}

// Warm restores the archived frame and runs the start-up capture as
// configured. A failed start-up capture is logged; the service keeps
// answering 503 on /image until a later capture succeeds.
func (a *App) Warm(ctx context.Context) {
	if a.cfg.Capture.RestoreOnStart && a.archive != nil {
		restored, err := a.engine.Restore(ctx, a.archive)
		switch {
		case err != nil:
			a.logger.Warn("restore archived frame failed", zap.Error(err))
		case !restored:
			a.logger.Info("no archived frame to restore")
		}
	}
	if a.cfg.Capture.CaptureOnStart {
		if err := a.scheduler.Prime(ctx); err != nil {
			a.logger.Warn("start-up capture failed", zap.Error(err))
		}
	}
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Warm(gctx)
		return a.scheduler.Run(gctx)
	})
	g.Go(func() error {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown error", zap.Error(err))
		}
		return nil
	})
	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.Close(shutdownCtx); err != nil {
		a.logger.Warn("close failed", zap.Error(err))
	}
	return runErr
}

// Close waits for background captures and releases infrastructure.
func (a *App) Close(ctx context.Context) error {
	if a.scheduler != nil {
		a.scheduler.Wait()
	}
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(_ context.Context) {
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
		a.pubsubPublisher = nil
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
		a.pubsubClient = nil
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.gcsClient = nil
	}
	if a.captureLog != nil {
		a.captureLog.Close()
		a.captureLog = nil
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
		a.tracerShutdown = nil
	}
}
