package config

import (
	"time"

	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	PGDSN                 string
	MongoURI              string
	RedisAddr             string
	RabbitURL             string
	GatewayBaseURL        string
	GatewaySecretKey      string
	GatewayWebhookSecret  string
	DefaultCommissionRate float64
	CheckoutHoldTTL       time.Duration
	EventRetention        time.Duration
	HTTPAddr              string
	OTLPEndpoint          string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	holdTTL, _ := time.ParseDuration(os.Getenv("CHECKOUT_HOLD_TTL"))
	if holdTTL == 0 {
		holdTTL = 10 * time.Minute
	}

	retention, _ := time.ParseDuration(os.Getenv("EVENT_RETENTION"))
	if retention == 0 {
		retention = 720 * time.Hour
	}

	rate, _ := strconv.ParseFloat(os.Getenv("DEFAULT_COMMISSION_RATE"), 64)
	if rate == 0 {
		rate = 10.0
	}

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	return &Config{
		PGDSN:                 os.Getenv("PG_DSN"),
		MongoURI:              os.Getenv("MONGO_URI"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RabbitURL:             os.Getenv("RABBIT_URL"),
		GatewayBaseURL:        os.Getenv("GATEWAY_BASE_URL"),
		GatewaySecretKey:      os.Getenv("GATEWAY_SECRET_KEY"),
		GatewayWebhookSecret:  os.Getenv("GATEWAY_WEBHOOK_SECRET"),
		DefaultCommissionRate: rate,
		CheckoutHoldTTL:       holdTTL,
		EventRetention:        retention,
		HTTPAddr:              addr,
		OTLPEndpoint:          os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}
