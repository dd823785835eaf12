package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	mongoadapter "github.com/robertarktes/marketplace-checkout/internal/adapters/mongo"
	"github.com/robertarktes/marketplace-checkout/internal/adapters/postgres"
	"github.com/robertarktes/marketplace-checkout/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/marketplace-checkout/internal/adapters/redis"
	"github.com/robertarktes/marketplace-checkout/internal/config"
	"github.com/robertarktes/marketplace-checkout/internal/gateway"
	httphandler "github.com/robertarktes/marketplace-checkout/internal/http"
	"github.com/robertarktes/marketplace-checkout/internal/idempotency"
	"github.com/robertarktes/marketplace-checkout/internal/observability"
	"github.com/robertarktes/marketplace-checkout/internal/outbox"
	"github.com/robertarktes/marketplace-checkout/internal/rateLimit"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.PGDSN)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	repo := postgres.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("marketplace")
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, time.Hour)
	rl := rateLimit.NewRateLimiter(redisCache)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}

	gw := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewaySecretKey)
	defer gw.Close()

	handlers := httphandler.NewHandlers(cfg, repo, gw, redisCache, catalog, idemp, audit, logger)
	r := httphandler.SetupRouter(handlers, logger, rl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The api binary also drains its own outbox when no dedicated publisher
	// runs; drains are idempotent across processes.
	pub := outbox.NewPublisher(repo, rabbitPub, logger)
	go pub.Run(ctx, 5*time.Second, 10)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
