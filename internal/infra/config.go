package infra

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"feed_go/internal/domain"
)

// Config holds every runtime setting for the feed hub.
// LoadConfig reads it from YAML, then environment variables override the
// sensitive fields.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	API struct {
		Hyperliquid struct {
			WSURL   string   `yaml:"ws_url"`
			RestURL string   `yaml:"rest_url"`
			Symbols []string `yaml:"symbols"`
			Account string   `yaml:"account"`
		} `yaml:"hyperliquid"`
	} `yaml:"api"`

	Feed struct {
		StreamingEnabled bool `yaml:"streaming_enabled"`

		// Connection tuning
		HeartbeatIntervalMS  int `yaml:"heartbeat_interval_ms"`
		PongTimeoutMS        int `yaml:"pong_timeout_ms"`
		ReconnectBaseMS      int `yaml:"reconnect_base_ms"`
		ReconnectMaxMS       int `yaml:"reconnect_max_ms"`
		ReconnectMaxAttempts int `yaml:"reconnect_max_attempts"`

		// Staleness thresholds per topic kind
		Staleness struct {
			PriceMS     int `yaml:"price_ms"`
			OrderBookMS int `yaml:"order_book_ms"`
			UserStateMS int `yaml:"user_state_ms"`
		} `yaml:"staleness"`

		// Order book shaping
		OrderBook struct {
			DepthLevels    int `yaml:"depth_levels"`
			EmitIntervalMS int `yaml:"emit_interval_ms"`
		} `yaml:"order_book"`

		// Consumer fan-out
		QueueCapacity       int `yaml:"queue_capacity"`
		KeepAliveIntervalMS int `yaml:"keep_alive_interval_ms"`

		// Fallback request timeout
		FallbackTimeoutMS int `yaml:"fallback_timeout_ms"`
	} `yaml:"feed"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills in zero values so a minimal config file still runs.
func (c *Config) applyDefaults() {
	f := &c.Feed
	if f.HeartbeatIntervalMS <= 0 {
		f.HeartbeatIntervalMS = 30_000
	}
	if f.PongTimeoutMS <= 0 {
		f.PongTimeoutMS = 10_000
	}
	if f.ReconnectBaseMS <= 0 {
		f.ReconnectBaseMS = 1_000
	}
	if f.ReconnectMaxMS <= 0 {
		f.ReconnectMaxMS = 60_000
	}
	if f.ReconnectMaxAttempts <= 0 {
		f.ReconnectMaxAttempts = 10
	}
	if f.Staleness.PriceMS <= 0 {
		f.Staleness.PriceMS = 5_000
	}
	if f.Staleness.OrderBookMS <= 0 {
		f.Staleness.OrderBookMS = 2_000
	}
	if f.Staleness.UserStateMS <= 0 {
		f.Staleness.UserStateMS = 30_000
	}
	if f.OrderBook.DepthLevels <= 0 {
		f.OrderBook.DepthLevels = 20
	}
	if f.OrderBook.EmitIntervalMS <= 0 {
		f.OrderBook.EmitIntervalMS = 100
	}
	if f.QueueCapacity <= 0 {
		f.QueueCapacity = 256
	}
	if f.KeepAliveIntervalMS <= 0 {
		f.KeepAliveIntervalMS = 15_000
	}
	if f.FallbackTimeoutMS <= 0 {
		f.FallbackTimeoutMS = 5_000
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	hl := &c.API.Hyperliquid
	if !strings.HasPrefix(hl.WSURL, "ws://") && !strings.HasPrefix(hl.WSURL, "wss://") {
		return fmt.Errorf("invalid feed WS URL: %s", hl.WSURL)
	}
	if !strings.HasPrefix(hl.RestURL, "http://") && !strings.HasPrefix(hl.RestURL, "https://") {
		return fmt.Errorf("invalid fallback REST URL: %s", hl.RestURL)
	}
	if len(hl.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	return nil
}

// overrideWithEnv applies environment variables over file values.
func overrideWithEnv(cfg *Config) {
	if account := os.Getenv("FEED_ACCOUNT_ADDRESS"); account != "" {
		cfg.API.Hyperliquid.Account = account
	}
	if wsURL := os.Getenv("FEED_WS_URL"); wsURL != "" {
		cfg.API.Hyperliquid.WSURL = wsURL
	}
	if restURL := os.Getenv("FEED_REST_URL"); restURL != "" {
		cfg.API.Hyperliquid.RestURL = restURL
	}
}

// Duration accessors keep the millisecond fields in one place.

func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Feed.HeartbeatIntervalMS) * time.Millisecond
}

func (c *Config) PongTimeout() time.Duration {
	return time.Duration(c.Feed.PongTimeoutMS) * time.Millisecond
}

func (c *Config) ReconnectBase() time.Duration {
	return time.Duration(c.Feed.ReconnectBaseMS) * time.Millisecond
}

func (c *Config) ReconnectMax() time.Duration {
	return time.Duration(c.Feed.ReconnectMaxMS) * time.Millisecond
}

func (c *Config) PriceStale() time.Duration {
	return time.Duration(c.Feed.Staleness.PriceMS) * time.Millisecond
}

func (c *Config) OrderBookStale() time.Duration {
	return time.Duration(c.Feed.Staleness.OrderBookMS) * time.Millisecond
}

func (c *Config) UserStateStale() time.Duration {
	return time.Duration(c.Feed.Staleness.UserStateMS) * time.Millisecond
}

func (c *Config) OrderBookEmitInterval() time.Duration {
	return time.Duration(c.Feed.OrderBook.EmitIntervalMS) * time.Millisecond
}

func (c *Config) KeepAliveInterval() time.Duration {
	return time.Duration(c.Feed.KeepAliveIntervalMS) * time.Millisecond
}

func (c *Config) FallbackTimeout() time.Duration {
	return time.Duration(c.Feed.FallbackTimeoutMS) * time.Millisecond
}
