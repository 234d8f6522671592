// Package config loads and validates warka configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/warka/warka/internal/logging"
	"github.com/warka/warka/internal/refresh"
	"github.com/warka/warka/internal/upstream"
	"github.com/warka/warka/internal/window"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  logging.Config `mapstructure:"logging"`
	Display  DisplayConfig  `mapstructure:"display"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Refresh  RefreshConfig  `mapstructure:"refresh"`
	Window   WindowConfig   `mapstructure:"window"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"database"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DisplayConfig is the physical size of the e-paper panel.
type DisplayConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// CaptureConfig governs the headless browser session.
type CaptureConfig struct {
	TargetURL     string        `mapstructure:"target_url"`
	Settle        time.Duration `mapstructure:"settle"`
	NavTimeout    time.Duration `mapstructure:"nav_timeout"`
	Timeout       time.Duration `mapstructure:"timeout"`
	LaunchTimeout time.Duration `mapstructure:"launch_timeout"`
	Threshold     int           `mapstructure:"threshold"`
	ChromePath    string        `mapstructure:"chrome_path"`
	UserAgent     string        `mapstructure:"user_agent"`
	// CaptureOnStart runs one capture before the listener accepts reads.
	CaptureOnStart bool `mapstructure:"capture_on_start"`
	// RestoreOnStart loads the archived latest.bmp before the first capture.
	RestoreOnStart bool `mapstructure:"restore_on_start"`
}

// RefreshConfig selects how reads keep the frame fresh.
type RefreshConfig struct {
	Policy      string        `mapstructure:"policy"`
	TTL         time.Duration `mapstructure:"ttl"`
	MinInterval time.Duration `mapstructure:"min_interval"`
	Interval    time.Duration `mapstructure:"interval"`
}

// WindowConfig sets the default wire encoding of /image.
type WindowConfig struct {
	Encoding string `mapstructure:"encoding"`
}

// StorageConfig selects where capture artifacts are archived.
type StorageConfig struct {
	// Backend is one of none, memory, local or gcs.
	Backend   string `mapstructure:"backend"`
	Prefix    string `mapstructure:"prefix"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// DBConfig controls access to the capture history database.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// PubSubConfig holds metadata for frame notifications.
type PubSubConfig struct {
	// Backend is one of none, memory or gcp.
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
	// Retain is how many events the memory backend keeps.
	Retain int `mapstructure:"retain"`
}

// UpstreamConfig configures the collaborator endpoints.
type UpstreamConfig struct {
	UserAgent  string           `mapstructure:"user_agent"`
	Timeout    time.Duration    `mapstructure:"timeout"`
	HackerNews HackerNewsConfig `mapstructure:"hackernews"`
	Quotes     QuotesConfig     `mapstructure:"quotes"`
	Weather    WeatherConfig    `mapstructure:"weather"`
	Holdings   HoldingsConfig   `mapstructure:"holdings"`
	// DeviceConfigPath is the JSON file served at /config.
	DeviceConfigPath string `mapstructure:"device_config_path"`
}

// HackerNewsConfig locates the HN API.
type HackerNewsConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Count   int    `mapstructure:"count"`
}

// QuotesConfig locates the chart API used by /stocks and /holdings.
type QuotesConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// WeatherConfig locates the forecast.
type WeatherConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
	Lat      string `mapstructure:"lat"`
	Lon      string `mapstructure:"lon"`
	Units    string `mapstructure:"units"`
	Timezone string `mapstructure:"timezone"`
}

// HoldingsConfig is the fixed portfolio valued by /holdings.
type HoldingsConfig struct {
	Cash      float64             `mapstructure:"cash"`
	Positions []upstream.Position `mapstructure:"positions"`
}

// CORSConfig toggles cross-origin access.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// TracingConfig selects the span exporter.
type TracingConfig struct {
	Exporter    string  `mapstructure:"exporter"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WARKA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.request_timeout", 90*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("display.width", 800)
	v.SetDefault("display.height", 480)
	v.SetDefault("capture.target_url", "http://localhost:3000")
	v.SetDefault("capture.settle", 5*time.Second)
	v.SetDefault("capture.nav_timeout", 20*time.Second)
	v.SetDefault("capture.timeout", 60*time.Second)
	v.SetDefault("capture.launch_timeout", 30*time.Second)
	v.SetDefault("capture.threshold", 128)
	v.SetDefault("capture.chrome_path", "")
	v.SetDefault("capture.user_agent", "")
	v.SetDefault("capture.capture_on_start", true)
	v.SetDefault("capture.restore_on_start", true)
	v.SetDefault("refresh.policy", string(refresh.PolicyTTL))
	v.SetDefault("refresh.ttl", 5*time.Minute)
	v.SetDefault("refresh.min_interval", 30*time.Second)
	v.SetDefault("refresh.interval", time.Duration(0))
	v.SetDefault("window.encoding", string(window.Decimal))
	v.SetDefault("storage.backend", "none")
	v.SetDefault("storage.prefix", "frames")
	v.SetDefault("storage.local_dir", "./data")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.table", "captures")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.migrate", true)
	v.SetDefault("pubsub.backend", "memory")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "frames")
	v.SetDefault("pubsub.retain", 100)
	v.SetDefault("upstream.user_agent", "warka/0.1")
	v.SetDefault("upstream.timeout", 15*time.Second)
	v.SetDefault("upstream.hackernews.base_url", upstream.DefaultHackerNewsURL)
	v.SetDefault("upstream.hackernews.count", 4)
	v.SetDefault("upstream.quotes.base_url", upstream.DefaultQuotesURL)
	v.SetDefault("upstream.weather.base_url", upstream.DefaultWeatherURL)
	v.SetDefault("upstream.weather.api_key", "")
	v.SetDefault("upstream.weather.lat", "48.8566")
	v.SetDefault("upstream.weather.lon", "2.3522")
	v.SetDefault("upstream.weather.units", "metric")
	v.SetDefault("upstream.weather.timezone", "Local")
	v.SetDefault("upstream.holdings.cash", 5000.0)
	v.SetDefault("upstream.holdings.positions", []map[string]any{
		{"ticker": "CW8.PA", "quantity": 10},
		{"ticker": "WPEA.PA", "quantity": 10},
		{"ticker": "DDOG", "quantity": 10, "fx_ticker": "USDEUR=X", "net_factor": 0.55},
	})
	v.SetDefault("upstream.device_config_path", "config.json")
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		return errors.New("display.width and display.height must be > 0")
	}
	if u, err := url.Parse(c.Capture.TargetURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("capture.target_url must be an absolute url, got %q", c.Capture.TargetURL)
	}
	if c.Capture.Settle < 0 {
		return errors.New("capture.settle must be >= 0")
	}
	if c.Capture.Timeout <= 0 || c.Capture.NavTimeout <= 0 {
		return errors.New("capture.timeout and capture.nav_timeout must be > 0")
	}
	if c.Capture.Threshold < 1 || c.Capture.Threshold > 255 {
		return errors.New("capture.threshold must be between 1 and 255")
	}
	switch refresh.Policy(c.Refresh.Policy) {
	case refresh.PolicyTTL:
		if c.Refresh.TTL <= 0 {
			return errors.New("refresh.ttl must be > 0 with the ttl policy")
		}
	case refresh.PolicyRandom, refresh.PolicyOff:
	default:
		return fmt.Errorf("refresh.policy must be ttl, random or off, got %q", c.Refresh.Policy)
	}
	if c.Refresh.Interval < 0 || c.Refresh.MinInterval < 0 {
		return errors.New("refresh.interval and refresh.min_interval must be >= 0")
	}
	if _, err := window.ParseEncoding(c.Window.Encoding, window.Decimal); err != nil {
		return fmt.Errorf("window.encoding: %w", err)
	}
	switch c.Storage.Backend {
	case "none", "memory":
	case "local":
		if c.Storage.LocalDir == "" {
			return errors.New("storage.local_dir must be set for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return errors.New("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be none, memory, local or gcs, got %q", c.Storage.Backend)
	}
	switch c.PubSub.Backend {
	case "none", "memory":
	case "gcp":
		if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" {
			return errors.New("pubsub.project_id and pubsub.topic_name must be set for the gcp backend")
		}
	default:
		return fmt.Errorf("pubsub.backend must be none, memory or gcp, got %q", c.PubSub.Backend)
	}
	if c.Upstream.HackerNews.Count <= 0 {
		return errors.New("upstream.hackernews.count must be > 0")
	}
	if _, err := time.LoadLocation(c.Upstream.Weather.Timezone); err != nil {
		return fmt.Errorf("upstream.weather.timezone: %w", err)
	}
	for i, p := range c.Upstream.Holdings.Positions {
		if p.Ticker == "" {
			return fmt.Errorf("upstream.holdings.positions[%d].ticker must be set", i)
		}
	}
	switch c.Tracing.Exporter {
	case "none", "stdout":
	default:
		return fmt.Errorf("tracing.exporter must be none or stdout, got %q", c.Tracing.Exporter)
	}
	return nil
}

// Threshold returns the capture threshold as a luminance byte.
func (c Config) Threshold() uint8 {
	return uint8(c.Capture.Threshold) // #nosec G115 -- Validate bounds it to 1..255.
}
