package infra

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"feed_go/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

const minimalConfig = `
api:
  hyperliquid:
    ws_url: "wss://example.com/ws"
    rest_url: "https://example.com"
    symbols: ["BTC", "ETH"]
feed:
  streaming_enabled: true
`

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.HeartbeatInterval() != 30*time.Second {
		t.Errorf("Expected 30s heartbeat, got %v", cfg.HeartbeatInterval())
	}
	if cfg.PriceStale() != 5*time.Second {
		t.Errorf("Expected 5s price staleness, got %v", cfg.PriceStale())
	}
	if cfg.OrderBookStale() != 2*time.Second {
		t.Errorf("Expected 2s order book staleness, got %v", cfg.OrderBookStale())
	}
	if cfg.UserStateStale() != 30*time.Second {
		t.Errorf("Expected 30s user state staleness, got %v", cfg.UserStateStale())
	}
	if cfg.Feed.QueueCapacity != 256 {
		t.Errorf("Expected queue capacity 256, got %d", cfg.Feed.QueueCapacity)
	}
	if cfg.Feed.OrderBook.EmitIntervalMS != 100 {
		t.Errorf("Expected 100ms emit interval, got %d", cfg.Feed.OrderBook.EmitIntervalMS)
	}
	if cfg.Feed.ReconnectMaxAttempts != 10 {
		t.Errorf("Expected 10 reconnect attempts, got %d", cfg.Feed.ReconnectMaxAttempts)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	t.Setenv("FEED_ACCOUNT_ADDRESS", "0xabc123")
	t.Setenv("FEED_WS_URL", "wss://override.example.com/ws")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.API.Hyperliquid.Account != "0xabc123" {
		t.Errorf("Expected env account override, got %q", cfg.API.Hyperliquid.Account)
	}
	if cfg.API.Hyperliquid.WSURL != "wss://override.example.com/ws" {
		t.Errorf("Expected env WS URL override, got %q", cfg.API.Hyperliquid.WSURL)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "bad ws scheme",
			content: `
api:
  hyperliquid:
    ws_url: "http://example.com/ws"
    rest_url: "https://example.com"
    symbols: ["BTC"]
`,
		},
		{
			name: "bad rest scheme",
			content: `
api:
  hyperliquid:
    ws_url: "wss://example.com/ws"
    rest_url: "ftp://example.com"
    symbols: ["BTC"]
`,
		},
		{
			name: "no symbols",
			content: `
api:
  hyperliquid:
    ws_url: "wss://example.com/ws"
    rest_url: "https://example.com"
    symbols: []
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := LoadConfig(path); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, domain.ErrConfigNotFound) {
		t.Errorf("Expected ErrConfigNotFound, got %v", err)
	}
}
