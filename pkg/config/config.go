package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Stream struct {
		WSBaseURL        string        `yaml:"ws_base_url"`
		IdleInterval     time.Duration `yaml:"idle_interval"`
		MaxPause         time.Duration `yaml:"max_pause"`
		StatsEveryFrames int           `yaml:"stats_every_frames"`
		StatsWindow      int           `yaml:"stats_window"`
		JPEGQuality      int           `yaml:"jpeg_quality"`
		PingInterval     time.Duration `yaml:"ping_interval"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxMessageBytes  int64         `yaml:"max_message_bytes"`
	} `yaml:"stream"`

	Decoder struct {
		Binary      string        `yaml:"binary"`
		Width       int           `yaml:"width"`
		Height      int           `yaml:"height"`
		ReadTimeout time.Duration `yaml:"read_timeout"` // 0 disables the watchdog
		StopGrace   time.Duration `yaml:"stop_grace"`
	} `yaml:"decoder"`

	Detection struct {
		Enabled            bool          `yaml:"enabled"`
		Interval           time.Duration `yaml:"interval"`
		Threshold          float64       `yaml:"threshold"`
		UseStreamThreshold bool          `yaml:"use_stream_threshold"`
		Cooldown           time.Duration `yaml:"cooldown"`
		Timeout            time.Duration `yaml:"timeout"`
		WorkerCommand      string        `yaml:"worker_command"`
		WorkerArgs         []string      `yaml:"worker_args"`
		BreakerFailures    int           `yaml:"breaker_failures"`
		BreakerCooldown    time.Duration `yaml:"breaker_cooldown"`
	} `yaml:"detection"`

	Storage struct {
		SnapshotsDir string `yaml:"snapshots_dir"`
		MediaURL     string `yaml:"media_url"`
	} `yaml:"storage"`

	Database struct {
		Driver       string        `yaml:"driver"` // memory, sqlite, postgres
		DSN          string        `yaml:"dsn"`
		MaxOpenConns int           `yaml:"max_open_conns"`
		CacheSize    int           `yaml:"cache_size"`
		CacheTTL     time.Duration `yaml:"cache_ttl"`
	} `yaml:"database"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
		Channel  string `yaml:"channel"`
	} `yaml:"redis"`

	MQTT struct {
		Enabled  bool   `yaml:"enabled"`
		Broker   string `yaml:"broker"`
		ClientID string `yaml:"client_id"`
		Topic    string `yaml:"topic"`
		QoS      byte   `yaml:"qos"`
	} `yaml:"mqtt"`

	Probe struct {
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"probe"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Auth struct {
		JWTSecret       string        `yaml:"jwt_secret"`
		AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
		RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent_requests"`
		} `yaml:"http"`

		WebSocket struct {
			ConnectionsPerMinute int `yaml:"connections_per_minute"`
			MaxConcurrent        int `yaml:"max_concurrent_connections"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`
}

// FrameSize is the byte length of one raw BGR24 frame.
func (c *Config) FrameSize() int {
	return c.Decoder.Width * c.Decoder.Height * 3
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Stream
	if c.Stream.IdleInterval <= 0 {
		return fmt.Errorf("stream.idle_interval must be > 0")
	}
	if c.Stream.MaxPause < 0 {
		return fmt.Errorf("stream.max_pause must be >= 0")
	}
	if c.Stream.StatsEveryFrames <= 0 {
		return fmt.Errorf("stream.stats_every_frames must be > 0")
	}
	if c.Stream.StatsWindow <= 0 {
		return fmt.Errorf("stream.stats_window must be > 0")
	}
	if c.Stream.JPEGQuality < 1 || c.Stream.JPEGQuality > 100 {
		return fmt.Errorf("stream.jpeg_quality must be in [1,100]")
	}
	if c.Stream.PingInterval <= 0 {
		return fmt.Errorf("stream.ping_interval must be > 0")
	}

	// Decoder
	if c.Decoder.Binary == "" {
		return fmt.Errorf("decoder.binary must not be empty")
	}
	if c.Decoder.Width <= 0 || c.Decoder.Height <= 0 {
		return fmt.Errorf("decoder.width and decoder.height must be > 0")
	}
	if c.Decoder.ReadTimeout < 0 {
		return fmt.Errorf("decoder.read_timeout must be >= 0")
	}

	// Detection
	if c.Detection.Interval <= 0 {
		return fmt.Errorf("detection.interval must be > 0")
	}
	if c.Detection.Threshold < 0 || c.Detection.Threshold > 1 {
		return fmt.Errorf("detection.threshold must be in [0,1]")
	}
	if c.Detection.Cooldown < 0 {
		return fmt.Errorf("detection.cooldown must be >= 0")
	}
	if c.Detection.Timeout <= 0 {
		return fmt.Errorf("detection.timeout must be > 0")
	}

	// Storage
	if c.Storage.SnapshotsDir == "" {
		return fmt.Errorf("storage.snapshots_dir must not be empty")
	}

	// Database
	switch c.Database.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must not be empty for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("database.driver must be one of memory, sqlite, postgres; got %q", c.Database.Driver)
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// MQTT
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker must not be empty when mqtt.enabled=true")
		}
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_token_ttl must be > 0")
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		return fmt.Errorf("auth.refresh_token_ttl must be > 0")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.ConnectionsPerMinute <= 0 {
			return fmt.Errorf("rate_limiting.websocket.connections_per_minute must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_concurrent_connections must be >= 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8000"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Stream.WSBaseURL = "ws://localhost:8000"
	cfg.Stream.IdleInterval = 500 * time.Millisecond
	cfg.Stream.MaxPause = 5 * time.Minute
	cfg.Stream.StatsEveryFrames = 30
	cfg.Stream.StatsWindow = 60
	cfg.Stream.JPEGQuality = 80
	cfg.Stream.PingInterval = 30 * time.Second
	cfg.Stream.WriteTimeout = 10 * time.Second
	cfg.Stream.MaxMessageBytes = 64 * 1024

	cfg.Decoder.Binary = "ffmpeg"
	cfg.Decoder.Width = 640
	cfg.Decoder.Height = 480
	cfg.Decoder.ReadTimeout = 0
	cfg.Decoder.StopGrace = 100 * time.Millisecond

	cfg.Detection.Enabled = true
	cfg.Detection.Interval = time.Second / 15
	cfg.Detection.Threshold = 0.3
	cfg.Detection.Cooldown = 30 * time.Second
	cfg.Detection.Timeout = 2 * time.Second
	cfg.Detection.BreakerFailures = 5
	cfg.Detection.BreakerCooldown = 30 * time.Second

	cfg.Storage.SnapshotsDir = "media/detections"
	cfg.Storage.MediaURL = "/media/detections"

	cfg.Database.Driver = "memory"
	cfg.Database.MaxOpenConns = 10
	cfg.Database.CacheSize = 256
	cfg.Database.CacheTTL = 30 * time.Second

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10
	cfg.Redis.Channel = "camwatch:alerts"

	cfg.MQTT.Enabled = false
	cfg.MQTT.Broker = "localhost:1883"
	cfg.MQTT.ClientID = "camwatch"
	cfg.MQTT.Topic = "camwatch/alerts"
	cfg.MQTT.QoS = 1

	cfg.Probe.Timeout = 10 * time.Second

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.AccessTokenTTL = 15 * time.Minute
	cfg.Auth.RefreshTokenTTL = 24 * time.Hour
	cfg.Auth.AllowedOrigins = []string{"*"}

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 60
	cfg.RateLimiting.WebSocket.MaxConcurrent = 0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("CAMWATCH_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if base := os.Getenv("WS_BASE_URL"); base != "" {
		c.Stream.WSBaseURL = base
	}
	if bin := os.Getenv("CAMWATCH_FFMPEG_BINARY"); bin != "" {
		c.Decoder.Binary = bin
	}
	if level := os.Getenv("CAMWATCH_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("CAMWATCH_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if driver := os.Getenv("CAMWATCH_DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("CAMWATCH_DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if addr := os.Getenv("CAMWATCH_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
	if broker := os.Getenv("CAMWATCH_MQTT_BROKER"); broker != "" {
		c.MQTT.Broker = broker
		c.MQTT.Enabled = true
	}
	if cmd := os.Getenv("CAMWATCH_DETECTION_WORKER"); cmd != "" {
		c.Detection.WorkerCommand = cmd
	}
	if v := os.Getenv("CAMWATCH_DETECTION_THRESHOLD"); v != "" {
		if threshold, err := strconv.ParseFloat(v, 64); err == nil {
			c.Detection.Threshold = threshold
		}
	}
}
