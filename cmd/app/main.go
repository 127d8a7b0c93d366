package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"feed_go/internal/app"
	"feed_go/internal/domain"
	"feed_go/internal/service"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Start the feed pipeline
	feeds := bootstrap.Feeds
	feeds.StartFeeds(ctx)
	defer feeds.StopFeeds()

	// 5. Demo consumer: drain one queue and log what the feed emits
	queue := feeds.Register()
	defer feeds.Unregister(queue)
	go consumeUpdates(ctx, queue)

	slog.InfoContext(ctx, "✨ Feed hub operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.InfoContext(ctx, "👋 Shutting down gracefully...")
}

func consumeUpdates(ctx context.Context, queue *service.ConsumerQueue) {
	for {
		update, err := queue.Next(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, service.ErrQueueClosed) {
				slog.Error("Consumer stopped", slog.Any("error", err))
			}
			return
		}

		switch update.Kind {
		case domain.UpdateGap:
			slog.Warn("Missed updates", slog.Int("dropped", update.Dropped))

		case domain.UpdateHeartbeat:
			slog.Debug("Feed heartbeat")

		case domain.UpdateData:
			switch update.Topic {
			case domain.TopicPrice:
				slog.Info("Price",
					slog.String("symbol", update.Key),
					slog.String("price", update.Ticker.Price.String()))
			case domain.TopicOrderBook:
				if mid := update.Book.Mid(); mid != nil {
					slog.Info("Book",
						slog.String("symbol", update.Key),
						slog.String("mid", mid.String()),
						slog.Uint64("seq", update.Book.Sequence))
				}
			case domain.TopicUserState:
				slog.Info("User state",
					slog.String("account", update.Key),
					slog.Int("positions", len(update.User.Positions)),
					slog.String("equity", update.User.Balance.AccountValue.String()))
			}
		}
	}
}
