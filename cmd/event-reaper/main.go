package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/marketplace-checkout/internal/adapters/postgres"
	"github.com/robertarktes/marketplace-checkout/internal/config"
	"github.com/robertarktes/marketplace-checkout/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.PGDSN)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	repo := postgres.NewRepository(pool)

	reaper := NewEventReaper(repo, cfg.EventRetention, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go reaper.Run(ctx, time.Hour)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown event reaper")
}

// EventReaper deletes webhook receipts past the retention window. Receipts
// only exist for redelivery debugging; transactions keep their own event id.
type EventReaper struct {
	repo      *postgres.Repository
	retention time.Duration
	logger    observability.Logger
}

func NewEventReaper(repo *postgres.Repository, retention time.Duration, logger observability.Logger) *EventReaper {
	return &EventReaper{repo: repo, retention: retention, logger: logger}
}

func (w *EventReaper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := w.pruneWithRetry(ctx, now.Add(-w.retention)); err != nil {
				w.logger.Error("failed to prune webhook events after retries", err)
			}
		}
	}
}

func (w *EventReaper) pruneWithRetry(ctx context.Context, before time.Time) error {
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		n, err := w.repo.PruneWebhookEvents(ctx, before, 1000)
		if err != nil {
			backoff := time.Duration(1<<i) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				continue
			}
		}
		if n > 0 {
			w.logger.WithField("pruned", n).Info("webhook events pruned")
		}
		return nil
	}
	return fmt.Errorf("failed after %d retries", maxRetries)
}
