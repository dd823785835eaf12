package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	mongoadapter "github.com/robertarktes/marketplace-checkout/internal/adapters/mongo"
	"github.com/robertarktes/marketplace-checkout/internal/adapters/postgres"
	"github.com/robertarktes/marketplace-checkout/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/marketplace-checkout/internal/adapters/redis"
	"github.com/robertarktes/marketplace-checkout/internal/config"
	"github.com/robertarktes/marketplace-checkout/internal/domain"
	"github.com/robertarktes/marketplace-checkout/internal/gateway"
	httphandler "github.com/robertarktes/marketplace-checkout/internal/http"
	"github.com/robertarktes/marketplace-checkout/internal/idempotency"
	"github.com/robertarktes/marketplace-checkout/internal/observability"
	"github.com/robertarktes/marketplace-checkout/internal/outbox"
	"github.com/robertarktes/marketplace-checkout/internal/rateLimit"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const schema = `
	CREATE TABLE IF NOT EXISTS products (
		id UUID PRIMARY KEY, name TEXT NOT NULL, price NUMERIC NOT NULL,
		is_reserved BOOLEAN NOT NULL DEFAULT false
	);
	CREATE TABLE IF NOT EXISTS orders (
		id UUID PRIMARY KEY, product_id UUID NOT NULL, customer_name TEXT,
		customer_email TEXT, customer_phone TEXT, price NUMERIC NOT NULL,
		pickup_code TEXT NOT NULL, created_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS transactions (
		id UUID PRIMARY KEY, event_id TEXT UNIQUE NOT NULL, seller_id TEXT NOT NULL,
		buyer_id TEXT NOT NULL, product_id TEXT NOT NULL, amount NUMERIC NOT NULL,
		commission_rate NUMERIC NOT NULL, commission_amount NUMERIC NOT NULL,
		status TEXT NOT NULL, created_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS packages (
		id UUID PRIMARY KEY, name TEXT NOT NULL, description TEXT, price NUMERIC NOT NULL,
		gateway_product_id TEXT, gateway_price_id TEXT, credits INT NOT NULL DEFAULT 0,
		discount_price NUMERIC, discount_start TIMESTAMPTZ, discount_end TIMESTAMPTZ,
		max_quantity INT, sold_quantity INT NOT NULL DEFAULT 0, created_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS outbox (
		id UUID PRIMARY KEY, aggregate_type TEXT NOT NULL, aggregate_id UUID NOT NULL,
		event_type TEXT NOT NULL, payload_json BYTEA,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(), published_at TIMESTAMPTZ,
		status TEXT NOT NULL, dedupe_key TEXT
	);
	CREATE TABLE IF NOT EXISTS webhook_events (
		event_id TEXT PRIMARY KEY, event_type TEXT NOT NULL, payload_json BYTEA,
		received_at TIMESTAMPTZ NOT NULL
	);
`

// fakeGatewayServer is a minimal stand-in for the hosted payment gateway.
func fakeGatewayServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/products":
			w.Write([]byte(`{"id":"prod_int","name":"starter"}`))
		case "/v1/prices":
			w.Write([]byte(`{"id":"price_int","product":"prod_int","unit_amount":2500,"currency":"usd"}`))
		case "/v1/checkout/sessions":
			w.Write([]byte(`{"id":"cs_int","url":"https://pay.example/cs_int"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestIntegration_CheckoutFlow(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			Env:          map[string]string{"POSTGRES_PASSWORD": "secret"},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer pgContainer.Terminate(ctx)

	mongoContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer mongoContainer.Terminate(ctx)

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForExec([]string{"redis-cli", "ping"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer redisContainer.Terminate(ctx)

	rabbitContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3.13-management",
			ExposedPorts: []string{"5672/tcp", "15672/tcp"},
			WaitingFor:   wait.ForHTTP("/api/health").WithPort("15672"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer rabbitContainer.Terminate(ctx)

	pgHost, _ := pgContainer.Host(ctx)
	pgPort, _ := pgContainer.MappedPort(ctx, "5432")
	mongoHost, _ := mongoContainer.Host(ctx)
	mongoPort, _ := mongoContainer.MappedPort(ctx, "27017")
	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, "6379")
	rabbitHost, _ := rabbitContainer.Host(ctx)
	rabbitPort, _ := rabbitContainer.MappedPort(ctx, "5672")

	gwServer := fakeGatewayServer(t)
	defer gwServer.Close()

	cfg := &config.Config{
		PGDSN:                 "postgres://postgres:secret@" + pgHost + ":" + pgPort.Port() + "/postgres?sslmode=disable",
		MongoURI:              "mongodb://" + mongoHost + ":" + mongoPort.Port(),
		RedisAddr:             redisHost + ":" + redisPort.Port(),
		RabbitURL:             "amqp://guest:guest@" + rabbitHost + ":" + rabbitPort.Port() + "/",
		GatewayBaseURL:        gwServer.URL,
		GatewaySecretKey:      "sk_test",
		GatewayWebhookSecret:  "whsec_integration",
		DefaultCommissionRate: 10.0,
		CheckoutHoldTTL:       time.Minute,
	}

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()
	if _, err := pool.Exec(ctx, schema); err != nil {
		t.Fatal(err)
	}
	repo := postgres.NewRepository(pool)

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		t.Fatal(err)
	}
	defer mongoClient.Disconnect(ctx)
	logger := observability.NewLogger()
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
		t.Fatal(err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		t.Fatal(err)
	}
	consumer, err := rabbit.NewConsumer(rabbitConn, "it.transactions.q", "transaction.recorded")
	if err != nil {
		t.Fatal(err)
	}

	pubCtx, pubCancel := context.WithCancel(ctx)
	defer pubCancel()
	go outbox.NewPublisher(repo, rabbitPub, logger).Run(pubCtx, 200*time.Millisecond, 10)

	gw := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewaySecretKey)
	defer gw.Close()

	handlers := httphandler.NewHandlers(cfg, repo, gw, redisCache, catalog, idemp, audit, logger)
	srv := httptest.NewServer(httphandler.SetupRouter(handlers, logger, rl))
	defer srv.Close()

	// Admin creates a capped package; the gateway product and price are
	// created first, their ids stored on the row.
	pkgBody, _ := json.Marshal(map[string]interface{}{
		"name": "starter", "description": "10 credits", "price": 25.0, "credits": 10, "max_quantity": 5,
	})
	req, _ := http.NewRequest("POST", srv.URL+"/v1/packages", bytes.NewReader(pkgBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.New().String())
	resp, err := http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("create package failed: %v, status: %d", err, resp.StatusCode)
	}
	var pkgResp struct {
		PackageID string `json:"package_id"`
	}
	json.NewDecoder(resp.Body).Decode(&pkgResp)

	// Buyer opens a hosted session for the package.
	sessBody, _ := json.Marshal(map[string]interface{}{
		"package_id":  pkgResp.PackageID,
		"success_url": "https://shop.example/ok",
		"cancel_url":  "https://shop.example/cancel",
		"metadata":    map[string]string{"buyer_id": "b1", "seller_id": "s1", "product_id": "p1"},
	})
	req, _ = http.NewRequest("POST", srv.URL+"/v1/checkout/sessions", bytes.NewReader(sessBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.New().String())
	resp, err = http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("create session failed: %v, status: %d", err, resp.StatusCode)
	}

	// The gateway reports completion asynchronously.
	event := map[string]interface{}{
		"id":   "evt_int_1",
		"type": "checkout.session.completed",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":           "cs_int",
				"amount_total": 2500,
				"currency":     "usd",
				"metadata": map[string]string{
					"buyer_id": "b1", "seller_id": "s1", "product_id": "p1",
					"package_id": pkgResp.PackageID,
				},
			},
		},
	}
	eventBody, _ := json.Marshal(event)
	req, _ = http.NewRequest("POST", srv.URL+"/v1/webhooks/payment", bytes.NewReader(eventBody))
	req.Header.Set(gateway.SignatureHeader, gateway.SignHeader(cfg.GatewayWebhookSecret, eventBody, time.Now()))
	resp, err = http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("webhook failed: %v, status: %d", err, resp.StatusCode)
	}

	var amount, commission float64
	var status string
	err = pool.QueryRow(ctx, `
		SELECT amount, commission_amount, status FROM transactions WHERE event_id = 'evt_int_1'
	`).Scan(&amount, &commission, &status)
	if err != nil {
		t.Fatal(err)
	}
	if amount != 25 || commission != 2.5 || status != domain.StatusPending {
		t.Errorf("unexpected transaction: amount=%v commission=%v status=%s", amount, commission, status)
	}

	pkg, err := repo.GetPackage(ctx, uuid.MustParse(pkgResp.PackageID))
	if err != nil {
		t.Fatal(err)
	}
	if pkg.SoldQuantity != 1 {
		t.Errorf("expected sold_quantity 1, got %d", pkg.SoldQuantity)
	}

	// The outbox publisher delivers the recorded transaction to the exchange.
	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case d := <-deliveries:
		var evt struct {
			EventID string `json:"event_id"`
		}
		if err := json.Unmarshal(d.Body, &evt); err != nil {
			t.Fatal(err)
		}
		if evt.EventID != "evt_int_1" {
			t.Errorf("unexpected event id on the wire: %s", evt.EventID)
		}
		d.Ack(false)
	case <-time.After(10 * time.Second):
		t.Fatal("no transaction.recorded delivery")
	}

	// Redelivery of the same event must not create a second transaction.
	req, _ = http.NewRequest("POST", srv.URL+"/v1/webhooks/payment", bytes.NewReader(eventBody))
	req.Header.Set(gateway.SignatureHeader, gateway.SignHeader(cfg.GatewayWebhookSecret, eventBody, time.Now()))
	resp, err = http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("webhook redelivery failed: %v, status: %d", err, resp.StatusCode)
	}
	var count int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM transactions`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected one transaction after redelivery, got %d", count)
	}

	// Seller publishes a listing, buyer orders it.
	listingBody := []byte(`{"seller_id": "s1", "title": "lamp", "description": "brass", "price": 45.5}`)
	req, _ = http.NewRequest("POST", srv.URL+"/v1/listings", bytes.NewReader(listingBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.New().String())
	resp, err = http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("create listing failed: %v, status: %d", err, resp.StatusCode)
	}
	var listingResp struct {
		ListingID string `json:"listing_id"`
	}
	json.NewDecoder(resp.Body).Decode(&listingResp)

	orderBody, _ := json.Marshal(map[string]interface{}{
		"cart_items":    []map[string]interface{}{{"product_id": listingResp.ListingID, "name": "lamp", "price": 45.5}},
		"customer_info": map[string]string{"name": "Ann", "email": "ann@x.io", "phone": "123"},
	})
	req, _ = http.NewRequest("POST", srv.URL+"/v1/orders", bytes.NewReader(orderBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.New().String())
	resp, err = http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("order intake failed: %v, status: %d", err, resp.StatusCode)
	}

	product, err := repo.GetProduct(ctx, uuid.MustParse(listingResp.ListingID))
	if err != nil {
		t.Fatal(err)
	}
	if !product.IsReserved {
		t.Error("expected ordered product reserved")
	}

	// Same cart again conflicts: the product is already reserved.
	req, _ = http.NewRequest("POST", srv.URL+"/v1/orders", bytes.NewReader(orderBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.New().String())
	resp, err = http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for reserved product, got: %v, status: %d", err, resp.StatusCode)
	}
}
