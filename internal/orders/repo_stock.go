package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

const productColumns = `id, tenant_id, name, price, stock, min_stock, track_stock, unit, is_active, created_at, updated_at`

func scanProduct(row pgx.Row, p *Product) error {
	var unit *string
	if err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Price, &p.Stock, &p.MinStock,
		&p.TrackStock, &unit, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return err
	}
	p.Unit = deref(unit)
	return nil
}

func (t *pgTx) GetProduct(ctx context.Context, tenantID, productID string) (*Product, error) {
	var p Product
	err := scanProduct(t.tx.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE tenant_id=$1 AND id=$2`, tenantID, productID), &p)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// AdjustStock is a single floor-checked UPDATE; concurrent callers serialize
// on the row lock and each sees the stock left by the previous one. When no
// row matches, a follow-up read explains why.
func (t *pgTx) AdjustStock(ctx context.Context, tenantID, productID string, delta int) (int, error) {
	var stock int
	err := t.tx.QueryRow(ctx, `
		UPDATE products SET stock = COALESCE(stock, 0) + $3, updated_at = now()
		WHERE tenant_id=$1 AND id=$2 AND track_stock AND COALESCE(stock, 0) + $3 >= 0
		RETURNING stock`, tenantID, productID, delta).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	var (
		tracked bool
		current *int
	)
	err = t.tx.QueryRow(ctx, `SELECT track_stock, stock FROM products WHERE tenant_id=$1 AND id=$2`,
		tenantID, productID).Scan(&tracked, &current)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return 0, ErrProductNotFound
	case err != nil:
		return 0, err
	case !tracked:
		return 0, ErrNotTracked
	}
	return 0, ErrInsufficientStock
}

func (t *pgTx) CustomerExists(ctx context.Context, tenantID, customerID string) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM customers WHERE tenant_id=$1 AND id=$2)`,
		tenantID, customerID).Scan(&ok)
	return ok, err
}

func (t *pgTx) AddCustomerOrders(ctx context.Context, tenantID, customerID string, delta int) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE customers SET total_orders = GREATEST(total_orders + $3, 0), updated_at = now()
		WHERE tenant_id=$1 AND id=$2`, tenantID, customerID, delta)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrCustomerNotFound
	}
	return nil
}

func (t *pgTx) AddCustomerSpent(ctx context.Context, tenantID, customerID string, amount int64) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE customers SET total_spent = total_spent + $3, updated_at = now()
		WHERE tenant_id=$1 AND id=$2`, tenantID, customerID, amount)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrCustomerNotFound
	}
	return nil
}

func (r *Repo) LowStock(ctx context.Context, tenantID string) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products
		WHERE tenant_id=$1 AND track_stock AND is_active AND COALESCE(stock, 0) <= min_stock
		ORDER BY name`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Product{}
	for rows.Next() {
		var p Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

var (
	_ Store   = (*Repo)(nil)
	_ Catalog = (*Repo)(nil)
)
