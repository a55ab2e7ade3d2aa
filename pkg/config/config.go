package config

import (
	"fmt"
	"os"
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

	Signal struct {
		PingInterval time.Duration `yaml:"ping_interval"`
		PongTimeout  time.Duration `yaml:"pong_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		SendBuffer   int           `yaml:"send_buffer"`
	} `yaml:"signal"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		Issuer    string `yaml:"issuer"`
		// DefaultProgramEnd bounds tokens for accounts without a configured
		// shift end.
		DefaultProgramEnd string `yaml:"default_program_end"`
		// BootstrapAdmin is seeded into an empty directory so the first
		// operator can connect and enroll everyone else. Leave the username
		// empty to disable seeding.
		BootstrapAdmin struct {
			Username string `yaml:"username"`
			Password string `yaml:"password"`
			Name     string `yaml:"name"`
		} `yaml:"bootstrap_admin"`
	} `yaml:"auth"`

	Media struct {
		PipelineURL  string        `yaml:"pipeline_url"`
		CallTimeout  time.Duration `yaml:"call_timeout"`
		DialAttempts int           `yaml:"dial_attempts"`
	} `yaml:"media"`

	Redis struct {
		Enabled     bool          `yaml:"enabled"`
		Address     string        `yaml:"address"`
		Password    string        `yaml:"password"`
		DB          int           `yaml:"db"`
		PoolSize    int           `yaml:"pool_size"`
		LocationTTL time.Duration `yaml:"location_ttl"`
	} `yaml:"redis"`

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
		Level string `yaml:"level"`
	} `yaml:"logging"`

	RateLimiting struct {
		Enabled             bool    `yaml:"enabled"`
		MessagesPerSecond   float64 `yaml:"messages_per_second"`
		Burst               int     `yaml:"burst"`
		MaxMessageSizeBytes int64   `yaml:"max_message_size_bytes"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
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

	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= c.Signal.PingInterval {
		return fmt.Errorf("signal.pong_timeout must be > signal.ping_interval")
	}
	if c.Signal.WriteTimeout <= 0 {
		return fmt.Errorf("signal.write_timeout must be > 0")
	}
	if c.Signal.SendBuffer <= 0 {
		return fmt.Errorf("signal.send_buffer must be > 0")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.Issuer == "" {
		return fmt.Errorf("auth.issuer must not be empty")
	}
	if c.Auth.DefaultProgramEnd == "" {
		return fmt.Errorf("auth.default_program_end must not be empty")
	}
	if c.Auth.BootstrapAdmin.Username != "" && c.Auth.BootstrapAdmin.Password == "" {
		return fmt.Errorf("auth.bootstrap_admin.password must not be empty when a username is set")
	}

	if c.Media.PipelineURL == "" {
		return fmt.Errorf("media.pipeline_url must not be empty")
	}
	if c.Media.CallTimeout <= 0 {
		return fmt.Errorf("media.call_timeout must be > 0")
	}
	if c.Media.DialAttempts <= 0 {
		return fmt.Errorf("media.dial_attempts must be > 0")
	}

	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
		if c.Redis.LocationTTL <= 0 {
			return fmt.Errorf("redis.location_ttl must be > 0 when redis.enabled=true")
		}
	}

	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in (0, 1]")
		}
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	if c.RateLimiting.Enabled {
		if c.RateLimiting.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.MaxMessageSizeBytes <= 0 {
			return fmt.Errorf("rate_limiting.max_message_size_bytes must be > 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration suitable for local development.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Address = ":8443"
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.ShutdownTimeout = 10 * time.Second
	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.WriteTimeout = 10 * time.Second
	cfg.Signal.SendBuffer = 32
	cfg.Auth.JWTSecret = "dev-only-secret"
	cfg.Auth.Issuer = "AppServer"
	cfg.Auth.DefaultProgramEnd = "23:59"
	cfg.Auth.BootstrapAdmin.Username = "admin"
	cfg.Auth.BootstrapAdmin.Password = "change-me-on-first-login"
	cfg.Auth.BootstrapAdmin.Name = "Administrator"
	cfg.Media.PipelineURL = "ws://localhost:8888/pipeline"
	cfg.Media.CallTimeout = 10 * time.Second
	cfg.Media.DialAttempts = 5
	cfg.Logging.Level = "info"
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.MessagesPerSecond = 50
	cfg.RateLimiting.Burst = 100
	cfg.RateLimiting.MaxMessageSizeBytes = 1 << 20
	return cfg
}
