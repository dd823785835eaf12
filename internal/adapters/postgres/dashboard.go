package postgres

import (
	"context"

	"golang.org/x/sync/errgroup"
)

type DashboardSummary struct {
	Orders            int64   `json:"orders"`
	Transactions      int64   `json:"transactions"`
	TransactionVolume float64 `json:"transaction_volume"`
	CommissionEarned  float64 `json:"commission_earned"`
	PackagesSold      int64   `json:"packages_sold"`
}

// GetDashboardSummary batches the independent dashboard reads concurrently.
func (r *Repository) GetDashboardSummary(ctx context.Context) (*DashboardSummary, error) {
	var s DashboardSummary

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.pool.QueryRow(gctx, `SELECT count(*) FROM orders`).Scan(&s.Orders)
	})
	g.Go(func() error {
		return r.pool.QueryRow(gctx, `
			SELECT count(*), coalesce(sum(amount), 0), coalesce(sum(commission_amount), 0)
			FROM transactions
		`).Scan(&s.Transactions, &s.TransactionVolume, &s.CommissionEarned)
	})
	g.Go(func() error {
		return r.pool.QueryRow(gctx, `SELECT coalesce(sum(sold_quantity), 0) FROM packages`).Scan(&s.PackagesSold)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &s, nil
}
