package postgres

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/marketplace-checkout/internal/domain"
	"github.com/robertarktes/marketplace-checkout/internal/observability"
)

const (
	SerializationFailureCode = "40001"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() {
		observability.DBTxDuration.Observe(time.Since(start).Seconds())
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrSerializationFailure
		}
		return err
	}

	return tx.Commit(ctx)
}

func (r *Repository) CreateProduct(ctx context.Context, p domain.Product) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO products (id, name, price, is_reserved)
		VALUES ($1, $2, $3, false)
	`, p.ID, p.Name, p.Price)
	return err
}

func (r *Repository) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	var p domain.Product
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, price, is_reserved FROM products WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Price, &p.IsReserved)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ReserveProduct flips the availability flag, refusing products that are
// already reserved. The caller runs it inside the cart transaction so a
// conflicting line rolls back every other line.
func (r *Repository) ReserveProduct(ctx context.Context, tx pgx.Tx, productID uuid.UUID) error {
	result, err := tx.Exec(ctx, `
		UPDATE products SET is_reserved = true
		WHERE id = $1 AND is_reserved = false
	`, productID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *Repository) CreateOrder(ctx context.Context, tx pgx.Tx, order domain.Order) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO orders (id, product_id, customer_name, customer_email, customer_phone, price, pickup_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, order.ID, order.ProductID, order.Customer.Name, order.Customer.Email, order.Customer.Phone, order.Price, order.PickupCode, order.CreatedAt)
	return err
}

func (r *Repository) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	var order domain.Order
	err := r.pool.QueryRow(ctx, `
		SELECT id, product_id, customer_name, customer_email, customer_phone, price, pickup_code, created_at
		FROM orders WHERE id = $1
	`, orderID).Scan(&order.ID, &order.ProductID, &order.Customer.Name, &order.Customer.Email,
		&order.Customer.Phone, &order.Price, &order.PickupCode, &order.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CreateTransaction inserts the webhook-derived transaction. The gateway event
// id carries a unique constraint, so a redelivered event becomes
// ErrDuplicateEvent instead of a second row.
func (r *Repository) CreateTransaction(ctx context.Context, tx pgx.Tx, txn domain.Transaction) error {
	result, err := tx.Exec(ctx, `
		INSERT INTO transactions (id, event_id, seller_id, buyer_id, product_id, amount, commission_rate, commission_amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (event_id) DO NOTHING
	`, txn.ID, txn.EventID, txn.SellerID, txn.BuyerID, txn.ProductID, txn.Amount,
		txn.CommissionRate, txn.CommissionAmount, txn.Status, txn.CreatedAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrDuplicateEvent
	}
	return nil
}

func (r *Repository) CreatePackage(ctx context.Context, pkg domain.Package) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO packages (id, name, description, price, gateway_product_id, gateway_price_id, credits,
			discount_price, discount_start, discount_end, max_quantity, sold_quantity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, pkg.ID, pkg.Name, pkg.Description, pkg.Price, pkg.GatewayProductID, pkg.GatewayPriceID, pkg.Credits,
		pkg.DiscountPrice, pkg.DiscountStart, pkg.DiscountEnd, pkg.MaxQuantity, pkg.SoldQuantity, pkg.CreatedAt)
	return err
}

func (r *Repository) GetPackage(ctx context.Context, id uuid.UUID) (*domain.Package, error) {
	var pkg domain.Package
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, description, price, gateway_product_id, gateway_price_id, credits,
			discount_price, discount_start, discount_end, max_quantity, sold_quantity, created_at
		FROM packages WHERE id = $1
	`, id).Scan(&pkg.ID, &pkg.Name, &pkg.Description, &pkg.Price, &pkg.GatewayProductID, &pkg.GatewayPriceID,
		&pkg.Credits, &pkg.DiscountPrice, &pkg.DiscountStart, &pkg.DiscountEnd, &pkg.MaxQuantity,
		&pkg.SoldQuantity, &pkg.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

// IncrementSold bumps sold_quantity with the cap check evaluated inside the
// store, so two concurrent webhook deliveries can never push past
// max_quantity.
func (r *Repository) IncrementSold(ctx context.Context, tx pgx.Tx, packageID uuid.UUID) error {
	result, err := tx.Exec(ctx, `
		UPDATE packages SET sold_quantity = sold_quantity + 1
		WHERE id = $1 AND (max_quantity IS NULL OR sold_quantity < max_quantity)
	`, packageID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM packages WHERE id = $1)`, packageID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrSoldOut
	}
	return nil
}
