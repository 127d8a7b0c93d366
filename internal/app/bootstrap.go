package app

import (
	"log/slog"

	"feed_go/internal/infra"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config *infra.Config
	Feeds  *FeedManager
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, logger, feed wiring)
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping Feed Hub...")

	// 1. Load Config
	cfg, err := infra.LoadConfig("configs/config.yaml")
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Wire the feed pipeline. Construction happens exactly once here;
	// StartFeeds/StopFeeds only flip the running state.
	b.Feeds = NewFeedManager(cfg, logger)
	slog.Info("✅ Feed pipeline wired",
		slog.Int("symbols", len(cfg.API.Hyperliquid.Symbols)),
		slog.Bool("streaming", cfg.Feed.StreamingEnabled))

	return nil
}
