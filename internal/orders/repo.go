package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	orderNumberConstraint = "orders_tenant_order_number_key"
)

// Repo is the Postgres Store.
type Repo struct{ DB *pgxpool.Pool }

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct{ tx pgx.Tx }

const orderColumns = `o.id, o.tenant_id, o.order_number, o.customer_id, o.customer_name, o.customer_phone,
	o.subtotal, o.discount, o.tax, o.total, o.payment_method, o.notes, o.status, o.payment_status,
	o.paid_amount, o.completed_at, o.metadata, o.created_at, o.updated_at`

func scanOrder(row pgx.Row, o *Order) error {
	var (
		customerID, name, phone, method, notes *string
		status, payStatus                      string
		metadata                               []byte
	)
	err := row.Scan(&o.ID, &o.TenantID, &o.OrderNumber, &customerID, &name, &phone,
		&o.Subtotal, &o.Discount, &o.Tax, &o.Total, &method, &notes, &status, &payStatus,
		&o.PaidAmount, &o.CompletedAt, &metadata, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return err
	}
	if len(metadata) > 0 {
		o.Metadata = metadata
	}
	o.CustomerID, o.CustomerName, o.CustomerPhone = deref(customerID), deref(name), deref(phone)
	o.PaymentMethod, o.Notes = deref(method), deref(notes)
	o.Status, o.PaymentStatus = Status(status), PaymentStatus(payStatus)
	return nil
}

func loadOrder(ctx context.Context, q querier, tenantID, orderID string, lock bool) (*Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders o WHERE o.tenant_id=$1 AND o.id=$2`
	if lock {
		sql += ` FOR UPDATE`
	}
	var o Order
	if err := scanOrder(q.QueryRow(ctx, sql, tenantID, orderID), &o); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, name, price, qty, subtotal, notes
		FROM order_items WHERE order_id=$1 ORDER BY position`, o.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	o.Items = []OrderItem{}
	for rows.Next() {
		var (
			it         OrderItem
			pid, notes *string
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &pid, &it.Name, &it.Price, &it.Qty, &it.Subtotal, &notes); err != nil {
			return nil, err
		}
		it.ProductID, it.Notes = deref(pid), deref(notes)
		o.Items = append(o.Items, it)
	}
	return &o, rows.Err()
}

func (r *Repo) GetOrder(ctx context.Context, tenantID, orderID string) (*Order, error) {
	o, err := loadOrder(ctx, r.DB, tenantID, orderID, false)
	if err != nil {
		return nil, err
	}
	if o.CustomerID == "" {
		return o, nil
	}
	var c CustomerSummary
	var phone *string
	err = r.DB.QueryRow(ctx, `SELECT id, name, phone FROM customers WHERE tenant_id=$1 AND id=$2`,
		tenantID, o.CustomerID).Scan(&c.ID, &c.Name, &phone)
	switch {
	case err == nil:
		c.Phone = deref(phone)
		o.Customer = &c
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, err
	}
	return o, nil
}

var sortColumns = map[string]string{
	SortByOrderNumber: "o.order_number",
	SortByTotal:       "o.total",
	SortByCreatedAt:   "o.created_at",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListOrders expects f to be normalized.
func (r *Repo) ListOrders(ctx context.Context, tenantID string, f ListFilter) ([]OrderSummary, int, error) {
	where := []string{"o.tenant_id = $1"}
	args := []any{tenantID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Search != "" {
		add("o.order_number ILIKE '%%' || $%d || '%%'", likeEscaper.Replace(f.Search))
	}
	if f.Status != "" {
		add("o.status = $%d", string(f.Status))
	}
	if f.PaymentStatus != "" {
		add("o.payment_status = $%d", string(f.PaymentStatus))
	}
	if f.CustomerID != "" {
		add("o.customer_id = $%d", f.CustomerID)
	}
	if f.DateFrom != nil {
		add("o.created_at >= $%d", *f.DateFrom)
	}
	if f.DateTo != nil {
		add("o.created_at <= $%d", *f.DateTo)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM orders o WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dir := "ASC"
	if f.Desc() {
		dir = "DESC"
	}
	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = sortColumns[SortByCreatedAt]
	}
	args = append(args, f.Limit, f.Offset())
	sql := fmt.Sprintf(`
		SELECT o.id, o.order_number, o.customer_id, o.customer_name, o.customer_phone,
		       o.subtotal, o.discount, o.total, o.status, o.payment_status, o.payment_method,
		       o.created_at, c.name, c.phone,
		       (SELECT COUNT(*) FROM order_items i WHERE i.order_id = o.id)
		FROM orders o
		LEFT JOIN customers c ON c.id = o.customer_id AND c.tenant_id = o.tenant_id
		WHERE %s
		ORDER BY %s %s, o.id %s
		LIMIT $%d OFFSET $%d`, cond, col, dir, dir, len(args)-1, len(args))

	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []OrderSummary{}
	for rows.Next() {
		var (
			s                                              OrderSummary
			customerID, name, phone, method, cName, cPhone *string
			status, payStatus                              string
		)
		if err := rows.Scan(&s.ID, &s.OrderNumber, &customerID, &name, &phone,
			&s.Subtotal, &s.Discount, &s.Total, &status, &payStatus, &method,
			&s.CreatedAt, &cName, &cPhone, &s.ItemCount); err != nil {
			return nil, 0, err
		}
		s.CustomerID, s.CustomerName, s.CustomerPhone = deref(customerID), deref(name), deref(phone)
		s.Status, s.PaymentStatus, s.PaymentMethod = Status(status), PaymentStatus(payStatus), deref(method)
		if cName != nil {
			s.Customer = &CustomerSummary{ID: s.CustomerID, Name: *cName, Phone: deref(cPhone)}
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (t *pgTx) NextOrderSeq(ctx context.Context, tenantID, day string) (int, error) {
	var seq int
	err := t.tx.QueryRow(ctx, `
		INSERT INTO order_sequences(tenant_id, day, seq) VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, day) DO UPDATE SET seq = order_sequences.seq + 1
		RETURNING seq`, tenantID, day).Scan(&seq)
	return seq, err
}

// InsertOrder runs under a savepoint so a number collision can be retried
// on the same transaction.
func (t *pgTx) InsertOrder(ctx context.Context, o *Order) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sp.Rollback(ctx) }()

	_, err = sp.Exec(ctx, `
		INSERT INTO orders(id, tenant_id, order_number, customer_id, customer_name, customer_phone,
			subtotal, discount, tax, total, payment_method, notes, status, payment_status,
			paid_amount, completed_at, metadata, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		o.ID, o.TenantID, o.OrderNumber, nullable(o.CustomerID), nullable(o.CustomerName), nullable(o.CustomerPhone),
		o.Subtotal, o.Discount, o.Tax, o.Total, nullable(o.PaymentMethod), nullable(o.Notes),
		string(o.Status), string(o.PaymentStatus), o.PaidAmount, o.CompletedAt, jsonb(o.Metadata),
		o.CreatedAt, o.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == orderNumberConstraint {
			return ErrOrderNumberTaken
		}
		return err
	}

	batch := &pgx.Batch{}
	for i, it := range o.Items {
		batch.Queue(`
			INSERT INTO order_items(id, order_id, tenant_id, product_id, position, name, price, qty, subtotal, notes)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			it.ID, o.ID, o.TenantID, nullable(it.ProductID), i, it.Name, it.Price, it.Qty, it.Subtotal, nullable(it.Notes))
	}
	if err := sp.SendBatch(ctx, batch).Close(); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return ErrProductNotFound
		}
		return err
	}
	return sp.Commit(ctx)
}

func (t *pgTx) LockOrder(ctx context.Context, tenantID, orderID string) (*Order, error) {
	return loadOrder(ctx, t.tx, tenantID, orderID, true)
}

// UpdateOrder writes the mutable columns; items never change.
func (t *pgTx) UpdateOrder(ctx context.Context, o *Order) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders SET discount=$3, total=$4, payment_method=$5, notes=$6, metadata=$7,
			status=$8, payment_status=$9, paid_amount=$10, completed_at=$11, updated_at=$12
		WHERE tenant_id=$1 AND id=$2`,
		o.TenantID, o.ID, o.Discount, o.Total, nullable(o.PaymentMethod), nullable(o.Notes), jsonb(o.Metadata),
		string(o.Status), string(o.PaymentStatus), o.PaidAmount, o.CompletedAt, o.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrOrderNotFound
	}
	return nil
}

// DeleteOrder relies on ON DELETE CASCADE for the items.
func (t *pgTx) DeleteOrder(ctx context.Context, tenantID, orderID string) error {
	ct, err := t.tx.Exec(ctx, `DELETE FROM orders WHERE tenant_id=$1 AND id=$2`, tenantID, orderID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrOrderNotFound
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func jsonb(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
