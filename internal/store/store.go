package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tokopos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidSale       = errors.New("invalid sale")
	ErrInvalidInput      = errors.New("invalid input")
	ErrPaymentExceedsDue = errors.New("payment exceeds the amount due")
)

type Repository interface {
	ListStock(ctx context.Context, warehouseID int64) ([]domain.StockRecord, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id int64) (*domain.Customer, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	// CreateSale re-checks stock, deducts it and assigns the invoice number.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)
	RecordSalePayment(ctx context.Context, payment domain.SalePayment) (*domain.Sale, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// InvoiceNo formats the invoice number of the seq-th sale of a day.
func InvoiceNo(day time.Time, seq int) string {
	return fmt.Sprintf("INV-%s-%04d", day.UTC().Format("20060102"), seq)
}
