package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/store"
	"tokopos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an already opened handle.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListStock(ctx context.Context, warehouseID int64) ([]domain.StockRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT st.id, st.batch_no, st.quantity, st.base_quantity, st.unit, st.sale_price, st.shadow_sale_price, st.warehouse_id,
			p.id, p.name, p.code, COALESCE(p.brand,''), p.unit_type, p.default_unit, p.min_sale_unit, p.is_fraction_allowed,
			v.id, v.sku, v.attribute_values
		FROM stocks st
		JOIN products p ON p.id = st.product_id
		LEFT JOIN product_variants v ON v.id = st.variant_id
		WHERE st.warehouse_id = $1
		ORDER BY st.id ASC
	`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stocks := make([]domain.StockRecord, 0, 256)
	for rows.Next() {
		var (
			record     domain.StockRecord
			batchNo    sql.NullString
			base       decimal.NullDecimal
			variantID  sql.NullInt64
			variantSKU sql.NullString
			attributes []byte
		)
		if err := rows.Scan(
			&record.ID, &batchNo, &record.Quantity, &base, &record.PurchaseUnit, &record.SalePrice, &record.ShadowSalePrice, &record.WarehouseID,
			&record.Product.ID, &record.Product.Name, &record.Product.Code, &record.Product.Brand, &record.Product.UnitType,
			&record.Product.DefaultUnit, &record.Product.MinSaleUnit, &record.Product.IsFractionAllowed,
			&variantID, &variantSKU, &attributes,
		); err != nil {
			return nil, err
		}
		record.BatchNo = batchNo.String
		if base.Valid {
			b := base.Decimal
			record.BaseQuantity = &b
		}
		if variantID.Valid {
			variant := &domain.Variant{ID: variantID.Int64, SKU: variantSKU.String}
			if len(attributes) > 0 {
				if err := json.Unmarshal(attributes, &variant.Attributes); err != nil {
					return nil, fmt.Errorf("variant %d attributes: %w", variantID.Int64, err)
				}
			}
			record.Variant = variant
		}
		stocks = append(stocks, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stocks, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_name, COALESCE(phone,''), advance_amount, due_amount
		FROM customers
		ORDER BY lower(customer_name) ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.CustomerName, &c.Phone, &c.AdvanceAmount, &c.DueAmount); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_name, COALESCE(phone,''), advance_amount, due_amount
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.CustomerName, &c.Phone, &c.AdvanceAmount, &c.DueAmount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	supplier.Company = strings.TrimSpace(supplier.Company)
	supplier.Phone = strings.TrimSpace(supplier.Phone)
	if supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO suppliers (name, company, phone, created_at)
		VALUES ($1,$2,$3,$4)
		RETURNING id
	`, supplier.Name, nullIfEmpty(supplier.Company), nullIfEmpty(supplier.Phone), supplier.CreatedAt).Scan(&supplier.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	saved := supplier
	return &saved, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(company,''), COALESCE(phone,''), created_at
		FROM suppliers
		ORDER BY lower(name) ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 64)
	for rows.Next() {
		var item domain.Supplier
		if err := rows.Scan(&item.ID, &item.Name, &item.Company, &item.Phone, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.CreatedAt = item.CreatedAt.UTC()
		suppliers = append(suppliers, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, current_balance, is_active, is_default
		FROM accounts
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0, 16)
	for rows.Next() {
		var acct domain.Account
		if err := rows.Scan(&acct.ID, &acct.Name, &acct.Type, &acct.CurrentBalance, &acct.IsActive, &acct.IsDefault); err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *Store) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	var acct domain.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, current_balance, is_active, is_default
		FROM accounts
		WHERE id = $1
	`, id).Scan(&acct.ID, &acct.Name, &acct.Type, &acct.CurrentBalance, &acct.IsActive, &acct.IsDefault)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &acct, nil
}

type lockedStock struct {
	productID   int64
	variantID   int64
	warehouseID int64
	quantity    decimal.Decimal
	base        decimal.Decimal
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	p := sale.Payload
	if len(p.Items) == 0 && len(p.PickupItems) == 0 {
		return nil, store.ErrInvalidSale
	}
	if p.GrandAmount.IsNegative() || p.PaidAmount.IsNegative() || p.AdvanceAdjustment.IsNegative() {
		return nil, store.ErrInvalidSale
	}
	if p.CustomerID == nil && p.AdvanceAdjustment.IsPositive() {
		return nil, store.ErrInvalidSale
	}

	neededBase := make(map[int64]decimal.Decimal, len(p.Items))
	neededQty := make(map[int64]decimal.Decimal, len(p.Items))
	for _, item := range p.Items {
		if !item.BaseQuantity.IsPositive() {
			return nil, store.ErrInvalidSale
		}
		neededBase[item.StockID] = neededBase[item.StockID].Add(item.BaseQuantity)
		neededQty[item.StockID] = neededQty[item.StockID].Add(item.Quantity)
	}
	stockIDs := make([]int64, 0, len(neededBase))
	for id := range neededBase {
		stockIDs = append(stockIDs, id)
	}
	slices.Sort(stockIDs)

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if p.CustomerID != nil {
		var advance decimal.Decimal
		err := pgTx.QueryRowContext(ctx, `
			SELECT advance_amount
			FROM customers
			WHERE id = $1
			FOR UPDATE
		`, *p.CustomerID).Scan(&advance)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("customer %d: %w", *p.CustomerID, store.ErrNotFound)
			}
			return nil, err
		}
		if p.AdvanceAdjustment.GreaterThan(advance) {
			return nil, store.ErrInvalidSale
		}
	}
	if p.AccountID != nil {
		if err := lockActiveAccount(ctx, pgTx, *p.AccountID); err != nil {
			return nil, err
		}
	}

	// Rows are locked in id order so concurrent sales cannot deadlock.
	locked := make(map[int64]lockedStock, len(stockIDs))
	for _, id := range stockIDs {
		var row lockedStock
		err := pgTx.QueryRowContext(ctx, `
			SELECT product_id, COALESCE(variant_id, 0), warehouse_id, quantity, COALESCE(base_quantity, quantity)
			FROM stocks
			WHERE id = $1
			FOR UPDATE
		`, id).Scan(&row.productID, &row.variantID, &row.warehouseID, &row.quantity, &row.base)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("stock %d: %w", id, store.ErrNotFound)
			}
			return nil, err
		}
		if row.warehouseID != p.WarehouseID {
			return nil, fmt.Errorf("stock %d: %w", id, store.ErrNotFound)
		}
		locked[id] = row
	}
	for _, item := range p.Items {
		row := locked[item.StockID]
		if row.productID != item.ProductID || row.variantID != variantOf(item) {
			return nil, store.ErrInvalidSale
		}
	}
	for _, id := range stockIDs {
		if neededBase[id].GreaterThan(locked[id].base) {
			return nil, fmt.Errorf("stock %d: %w", id, store.ErrInsufficientStock)
		}
	}

	for _, id := range stockIDs {
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE stocks
			SET quantity = GREATEST(quantity - $2, 0),
				base_quantity = COALESCE(base_quantity, quantity) - $3
			WHERE id = $1
		`, id, neededQty[id], neededBase[id]); err != nil {
			return nil, err
		}
	}
	if p.CustomerID != nil {
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE customers
			SET advance_amount = advance_amount - $2, due_amount = due_amount + $3
			WHERE id = $1
		`, *p.CustomerID, p.AdvanceAdjustment, p.DueAmount); err != nil {
			return nil, err
		}
	}
	if p.AccountID != nil {
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE accounts
			SET current_balance = current_balance + $2
			WHERE id = $1
		`, *p.AccountID, p.PaidAmount.Sub(p.AdvanceAdjustment)); err != nil {
			return nil, err
		}
	}

	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	day := nowDateUTC(sale.CreatedAt)
	var sameDay int
	if err := pgTx.QueryRowContext(ctx, `
		SELECT count(*)
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
	`, day, day.AddDate(0, 0, 1)).Scan(&sameDay); err != nil {
		return nil, err
	}
	sale.InvoiceNo = store.InvoiceNo(sale.CreatedAt, sameDay+1)
	sale.PaidAmount = p.PaidAmount
	sale.DueAmount = p.DueAmount
	sale.Status = domain.PaymentStatusFor(sale.PaidAmount, sale.DueAmount)
	sale.Payments = nil

	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO sales (invoice_no, created_by, created_at, customer_id, warehouse_id, type, payload, paid_amount, due_amount, payment_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id
	`, sale.InvoiceNo, sale.CreatedBy, sale.CreatedAt, nullInt64(p.CustomerID), p.WarehouseID, p.Type, payload,
		sale.PaidAmount, sale.DueAmount, sale.Status).Scan(&sale.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: invoice %s already issued", store.ErrInvalidSale, sale.InvoiceNo)
		}
		return nil, err
	}

	for _, item := range p.Items {
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, stock_id, product_id, variant_id, quantity, unit_quantity, base_quantity, unit, unit_price, total_price)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, sale.ID, item.StockID, item.ProductID, nullInt64(item.VariantID), item.Quantity, item.UnitQuantity, item.BaseQuantity,
			item.Unit, item.UnitPrice, item.TotalPrice); err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

func lockActiveAccount(ctx context.Context, tx *sql.Tx, id int64) error {
	var active bool
	err := tx.QueryRowContext(ctx, `
		SELECT is_active
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("account %d: %w", id, store.ErrNotFound)
		}
		return err
	}
	if !active {
		return fmt.Errorf("account %d: %w", id, store.ErrNotFound)
	}
	return nil
}

const saleColumns = `id, invoice_no, created_by, created_at, payload, paid_amount, due_amount, payment_status`

func scanSale(row interface{ Scan(...any) error }) (*domain.Sale, error) {
	var (
		sale    domain.Sale
		payload []byte
	)
	if err := row.Scan(&sale.ID, &sale.InvoiceNo, &sale.CreatedBy, &sale.CreatedAt, &payload, &sale.PaidAmount, &sale.DueAmount, &sale.Status); err != nil {
		return nil, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	if err := json.Unmarshal(payload, &sale.Payload); err != nil {
		return nil, fmt.Errorf("sale %d payload: %w", sale.ID, err)
	}
	return &sale, nil
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, amount, payment_date, payment_method, COALESCE(notes,''), account_id, recorded_by, created_at
		FROM sale_payments
		WHERE sale_id = $1
		ORDER BY created_at ASC, id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var payment domain.SalePayment
		if err := rows.Scan(&payment.ID, &payment.SaleID, &payment.Amount, &payment.PaymentDate, &payment.PaymentMethod,
			&payment.Notes, &payment.AccountID, &payment.RecordedBy, &payment.CreatedAt); err != nil {
			return nil, err
		}
		payment.CreatedAt = payment.CreatedAt.UTC()
		sale.Payments = append(sale.Payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 50
	}

	where := make([]string, 0, 4)
	args := make([]any, 0, 5)
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if filter.CustomerID > 0 {
		args = append(args, filter.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("payment_status = $%d", len(args)))
	}
	query := `SELECT ` + saleColumns + ` FROM sales`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) RecordSalePayment(ctx context.Context, payment domain.SalePayment) (*domain.Sale, error) {
	if !payment.Amount.IsPositive() {
		return nil, store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var (
		paid       decimal.Decimal
		due        decimal.Decimal
		customerID sql.NullInt64
	)
	err = pgTx.QueryRowContext(ctx, `
		SELECT paid_amount, due_amount, customer_id
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, payment.SaleID).Scan(&paid, &due, &customerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if payment.Amount.GreaterThan(due) {
		return nil, store.ErrPaymentExceedsDue
	}
	if err := lockActiveAccount(ctx, pgTx, payment.AccountID); err != nil {
		return nil, err
	}

	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	if _, err := pgTx.ExecContext(ctx, `
		INSERT INTO sale_payments (sale_id, amount, payment_date, payment_method, notes, account_id, recorded_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, payment.SaleID, payment.Amount, payment.PaymentDate, payment.PaymentMethod, nullIfEmpty(payment.Notes),
		payment.AccountID, payment.RecordedBy, payment.CreatedAt); err != nil {
		return nil, err
	}

	paid = paid.Add(payment.Amount)
	due = due.Sub(payment.Amount)
	if _, err := pgTx.ExecContext(ctx, `
		UPDATE sales
		SET paid_amount = $2, due_amount = $3, payment_status = $4
		WHERE id = $1
	`, payment.SaleID, paid, due, domain.PaymentStatusFor(paid, due)); err != nil {
		return nil, err
	}
	if _, err := pgTx.ExecContext(ctx, `
		UPDATE accounts
		SET current_balance = current_balance + $2
		WHERE id = $1
	`, payment.AccountID, payment.Amount); err != nil {
		return nil, err
	}
	if customerID.Valid {
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE customers
			SET due_amount = GREATEST(due_amount - $2, 0)
			WHERE id = $1
		`, customerID.Int64, payment.Amount); err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSale(ctx, payment.SaleID)
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1
			AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,true,$4,now())
	`, user.Username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func variantOf(item domain.SaleItemPayload) int64 {
	if item.VariantID == nil {
		return 0
	}
	return *item.VariantID
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nowDateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullInt64(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}
