package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	mongoadapter "github.com/robertarktes/marketplace-checkout/internal/adapters/mongo"
	"github.com/robertarktes/marketplace-checkout/internal/adapters/postgres"
	"github.com/robertarktes/marketplace-checkout/internal/config"
	"github.com/robertarktes/marketplace-checkout/internal/domain"
	"github.com/robertarktes/marketplace-checkout/internal/gateway"
	"github.com/robertarktes/marketplace-checkout/internal/idempotency"
	"github.com/robertarktes/marketplace-checkout/internal/observability"
)

// Repository is the slice of the postgres adapter the handlers touch.
type Repository interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	CreateProduct(ctx context.Context, p domain.Product) error
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	ReserveProduct(ctx context.Context, tx pgx.Tx, productID uuid.UUID) error
	CreateOrder(ctx context.Context, tx pgx.Tx, order domain.Order) error
	GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	CreateTransaction(ctx context.Context, tx pgx.Tx, txn domain.Transaction) error
	CreatePackage(ctx context.Context, pkg domain.Package) error
	GetPackage(ctx context.Context, id uuid.UUID) (*domain.Package, error)
	IncrementSold(ctx context.Context, tx pgx.Tx, packageID uuid.UUID) error
	InsertOutbox(ctx context.Context, tx pgx.Tx, record postgres.OutboxRecord) error
	InsertWebhookEvent(ctx context.Context, eventID, eventType string, payload []byte) error
	GetDashboardSummary(ctx context.Context) (*postgres.DashboardSummary, error)
}

type Gateway interface {
	CreateProduct(ctx context.Context, name, description string) (*gateway.Product, error)
	CreatePrice(ctx context.Context, productID string, unitAmount int64, currency string) (*gateway.Price, error)
	CreateCheckoutSession(ctx context.Context, p gateway.SessionParams) (*gateway.Session, error)
}

type CheckoutLocker interface {
	SetCheckoutLock(ctx context.Context, productID, buyerID string, ttl time.Duration) (bool, error)
}

// Catalog is the listing document store; the availability flag stays in the
// relational store.
type Catalog interface {
	GetListing(ctx context.Context, id uuid.UUID) (*mongoadapter.ListingDoc, error)
	CreateListing(ctx context.Context, listing mongoadapter.ListingDoc) error
}

type Auditor interface {
	LogOrder(ctx context.Context, order domain.Order) error
	LogTransaction(ctx context.Context, txn domain.Transaction) error
}

type Handlers struct {
	cfg     *config.Config
	repo    Repository
	gw      Gateway
	locks   CheckoutLocker
	catalog Catalog
	idemp   *idempotency.Idempotency
	audit   Auditor
	logger  observability.Logger
}

func NewHandlers(cfg *config.Config, repo Repository, gw Gateway, locks CheckoutLocker, catalog Catalog, idemp *idempotency.Idempotency, audit Auditor, logger observability.Logger) *Handlers {
	return &Handlers{
		cfg:     cfg,
		repo:    repo,
		gw:      gw,
		locks:   locks,
		catalog: catalog,
		idemp:   idemp,
		audit:   audit,
		logger:  logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// CreateOrder is the cart intake. The whole cart reserves and persists inside
// one transaction; a single unavailable product fails every line.
func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if h.idemp != nil {
		existing, err := h.idemp.Get(r.Context(), key)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if existing != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(existing.Status)
			w.Write(existing.Result)
			return
		}
	}

	var req struct {
		CartItems    []domain.CartLine   `json:"cart_items"`
		CustomerInfo domain.CustomerInfo `json:"customer_info"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.CartItems) == 0 {
		writeError(w, http.StatusBadRequest, "cart is empty")
		return
	}

	orders := make([]domain.Order, 0, len(req.CartItems))
	err := h.repo.WithTx(r.Context(), func(tx pgx.Tx) error {
		for _, line := range req.CartItems {
			if err := h.repo.ReserveProduct(r.Context(), tx, line.ProductID); err != nil {
				return err
			}
			order := domain.NewOrder(line, req.CustomerInfo)
			if err := h.repo.CreateOrder(r.Context(), tx, order); err != nil {
				return err
			}
			payload, _ := json.Marshal(map[string]interface{}{
				"order_id":   order.ID,
				"product_id": order.ProductID,
				"price":      order.Price,
			})
			rec := postgres.OutboxRecord{
				ID:            uuid.New(),
				AggregateType: "order",
				AggregateID:   order.ID,
				EventType:     "order.created",
				Payload:       payload,
				DedupeKey:     uuid.New().String(),
			}
			if err := h.repo.InsertOutbox(r.Context(), tx, rec); err != nil {
				return err
			}
			orders = append(orders, order)
		}
		return nil
	})
	if errors.Is(err, domain.ErrConflict) {
		writeError(w, http.StatusConflict, "product already reserved")
		return
	}
	if errors.Is(err, domain.ErrSerializationFailure) {
		writeError(w, http.StatusConflict, "conflict, try again")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	for _, order := range orders {
		if h.audit != nil {
			if err := h.audit.LogOrder(r.Context(), order); err != nil {
				h.logger.WithError(err).Warn("audit log failed")
			}
		}
	}

	type orderOut struct {
		OrderID    uuid.UUID `json:"order_id"`
		PickupCode string    `json:"pickup_code"`
	}
	outs := make([]orderOut, len(orders))
	for i, o := range orders {
		outs[i] = orderOut{OrderID: o.ID, PickupCode: o.PickupCode}
	}
	resp := map[string]interface{}{
		"success": true,
		"orders":  outs,
	}
	data, _ := json.Marshal(resp)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(data)

	if h.idemp != nil {
		h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
	}
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	order, err := h.repo.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"order_id":    order.ID,
		"product_id":  order.ProductID,
		"price":       order.Price,
		"pickup_code": order.PickupCode,
		"created_at":  order.CreatedAt.Format(time.RFC3339),
	})
}

// CreateCheckoutSession maps an internal package or price selection to a
// hosted gateway session. Metadata rides along unchanged; the webhook is the
// only consumer.
func (h *Handlers) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PriceID    string            `json:"price_id"`
		PackageID  string            `json:"package_id"`
		SuccessURL string            `json:"success_url"`
		CancelURL  string            `json:"cancel_url"`
		Metadata   map[string]string `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	priceID := req.PriceID
	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	if priceID == "" && req.PackageID != "" {
		pkgID, err := uuid.Parse(req.PackageID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid package_id")
			return
		}
		pkg, err := h.repo.GetPackage(r.Context(), pkgID)
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "package not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if pkg.SoldOut() {
			writeError(w, http.StatusConflict, "package sold out")
			return
		}
		priceID = pkg.GatewayPriceID
		metadata["package_id"] = pkg.ID.String()
	}
	if priceID == "" {
		// The gateway price is created out-of-band at package creation; its
		// absence is a deployment fault, not a caller fault.
		writeError(w, http.StatusInternalServerError, domain.ErrMissingPriceRef.Error())
		return
	}

	if productID, ok := metadata["product_id"]; ok && h.locks != nil {
		held, err := h.locks.SetCheckoutLock(r.Context(), productID, metadata["buyer_id"], h.cfg.CheckoutHoldTTL)
		if err != nil {
			h.logger.WithError(err).Warn("checkout lock unavailable")
		} else if !held {
			writeError(w, http.StatusConflict, "checkout already in progress for this listing")
			return
		}
	}

	sess, err := h.gw.CreateCheckoutSession(r.Context(), gateway.SessionParams{
		PriceID:    priceID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
		Metadata:   metadata,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	observability.CheckoutSessionsTotal.Inc()
	writeJSON(w, http.StatusOK, map[string]string{"url": sess.URL})
}

// PaymentWebhook is the gateway's asynchronous completion callback: verify,
// filter, extract, compute, persist.
func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	sig := r.Header.Get(gateway.SignatureHeader)
	if err := gateway.VerifySignature(h.cfg.GatewayWebhookSecret, body, sig, time.Now()); err != nil {
		observability.WebhookEventsTotal.WithLabelValues("unknown", "bad_signature").Inc()
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	ev, err := gateway.ParseEvent(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed event")
		return
	}

	if err := h.repo.InsertWebhookEvent(r.Context(), ev.ID, ev.Type, body); err != nil {
		h.logger.WithError(err).WithField("event_id", ev.ID).Warn("webhook receipt not recorded")
	}

	if ev.Type != gateway.EventCheckoutCompleted {
		observability.WebhookEventsTotal.WithLabelValues(ev.Type, "ignored").Inc()
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	md := ev.Data.Object.Metadata
	sellerID, buyerID, productID := md["seller_id"], md["buyer_id"], md["product_id"]
	if sellerID == "" || buyerID == "" || productID == "" {
		observability.WebhookEventsTotal.WithLabelValues(ev.Type, "missing_metadata").Inc()
		writeError(w, http.StatusBadRequest, "missing metadata")
		return
	}

	rate := h.cfg.DefaultCommissionRate
	if s, ok := md["commission_rate"]; ok && s != "" {
		if parsed, err := strconv.ParseFloat(s, 64); err == nil && parsed > 0 {
			rate = parsed
		}
	}

	txn := domain.NewTransaction(ev.ID, sellerID, buyerID, productID, ev.Data.Object.AmountTotal, rate)

	err = h.repo.WithTx(r.Context(), func(tx pgx.Tx) error {
		if err := h.repo.CreateTransaction(r.Context(), tx, txn); err != nil {
			return err
		}
		if pkgIDStr, ok := md["package_id"]; ok && pkgIDStr != "" {
			pkgID, err := uuid.Parse(pkgIDStr)
			if err != nil {
				h.logger.WithField("package_id", pkgIDStr).Warn("unparseable package id in metadata")
			} else if err := h.repo.IncrementSold(r.Context(), tx, pkgID); err != nil {
				switch {
				case errors.Is(err, domain.ErrSoldOut):
					// The payment already settled; keep the transaction, skip
					// the counter.
					observability.OversellRejected.Inc()
					h.logger.WithField("package_id", pkgIDStr).Warn("sold_quantity at cap, not incremented")
				case errors.Is(err, domain.ErrNotFound):
					h.logger.WithField("package_id", pkgIDStr).Warn("package in metadata does not exist")
				default:
					return err
				}
			}
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"transaction_id": txn.ID,
			"event_id":       txn.EventID,
			"amount":         txn.Amount,
			"commission":     txn.CommissionAmount,
		})
		rec := postgres.OutboxRecord{
			ID:            uuid.New(),
			AggregateType: "transaction",
			AggregateID:   txn.ID,
			EventType:     "transaction.recorded",
			Payload:       payload,
			DedupeKey:     ev.ID,
		}
		return h.repo.InsertOutbox(r.Context(), tx, rec)
	})
	if errors.Is(err, domain.ErrDuplicateEvent) {
		observability.WebhookEventsTotal.WithLabelValues(ev.Type, "duplicate").Inc()
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}
	if err != nil {
		observability.WebhookEventsTotal.WithLabelValues(ev.Type, "error").Inc()
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if h.audit != nil {
		if err := h.audit.LogTransaction(r.Context(), txn); err != nil {
			h.logger.WithError(err).Warn("audit log failed")
		}
	}

	observability.WebhookEventsTotal.WithLabelValues(ev.Type, "processed").Inc()
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// CreatePackage registers a sellable unit: gateway product, gateway price,
// then the local row carrying both identifiers. A gateway failure leaves no
// local row behind.
func (h *Handlers) CreatePackage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string     `json:"name"`
		Description   string     `json:"description"`
		Price         float64    `json:"price"`
		Currency      string     `json:"currency"`
		Credits       int        `json:"credits"`
		DiscountPrice *float64   `json:"discount_price"`
		DiscountStart *time.Time `json:"discount_start"`
		DiscountEnd   *time.Time `json:"discount_end"`
		MaxQuantity   *int       `json:"max_quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Currency == "" {
		req.Currency = "usd"
	}

	pkg := domain.Package{
		ID:            uuid.New(),
		Name:          req.Name,
		Description:   req.Description,
		Price:         req.Price,
		Credits:       req.Credits,
		DiscountPrice: req.DiscountPrice,
		DiscountStart: req.DiscountStart,
		DiscountEnd:   req.DiscountEnd,
		MaxQuantity:   req.MaxQuantity,
		CreatedAt:     time.Now().UTC(),
	}
	if err := pkg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	prod, err := h.gw.CreateProduct(r.Context(), pkg.Name, pkg.Description)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	price, err := h.gw.CreatePrice(r.Context(), prod.ID, int64(math.Round(pkg.Price*100)), req.Currency)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	pkg.GatewayProductID = prod.ID
	pkg.GatewayPriceID = price.ID

	if err := h.repo.CreatePackage(r.Context(), pkg); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"package_id":       pkg.ID.String(),
		"gateway_price_id": pkg.GatewayPriceID,
	})
}

func (h *Handlers) GetPackage(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	pkg, err := h.repo.GetPackage(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "package not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	now := time.Now()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"package_id":      pkg.ID,
		"name":            pkg.Name,
		"description":     pkg.Description,
		"price":           pkg.Price,
		"credits":         pkg.Credits,
		"discount_active": pkg.DiscountActive(now),
		"effective_price": pkg.EffectivePrice(now),
		"max_quantity":    pkg.MaxQuantity,
		"sold_quantity":   pkg.SoldQuantity,
		"sold_out":        pkg.SoldOut(),
	})
}

// CreateListing publishes a product: the availability row goes to the
// relational store, the display document to the catalog. No compensation if
// the second write fails; the listing simply stays undescribed until retried.
func (h *Handlers) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SellerID    string   `json:"seller_id"`
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Price       float64  `json:"price"`
		ImageURLs   []string `json:"image_urls"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Title == "" || req.Price <= 0 {
		writeError(w, http.StatusBadRequest, "title and positive price required")
		return
	}

	id := uuid.New()
	if err := h.repo.CreateProduct(r.Context(), domain.Product{ID: id, Name: req.Title, Price: req.Price}); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	doc := mongoadapter.ListingDoc{
		ID:          id,
		SellerID:    req.SellerID,
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		ImageURLs:   req.ImageURLs,
	}
	if err := h.catalog.CreateListing(r.Context(), doc); err != nil {
		h.logger.WithError(err).WithField("listing_id", id).Error("catalog write failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"listing_id": id.String()})
}

func (h *Handlers) GetListing(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	doc, err := h.catalog.GetListing(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	product, err := h.repo.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"listing_id":  doc.ID,
		"seller_id":   doc.SellerID,
		"title":       doc.Title,
		"description": doc.Description,
		"price":       doc.Price,
		"image_urls":  doc.ImageURLs,
		"is_reserved": product.IsReserved,
	})
}

func (h *Handlers) DashboardSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.repo.GetDashboardSummary(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
