package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	Code              string `json:"code"`
	Brand             string `json:"brand,omitempty"`
	UnitType          string `json:"unit_type"`
	DefaultUnit       string `json:"default_unit"`
	MinSaleUnit       string `json:"min_sale_unit"`
	IsFractionAllowed bool   `json:"is_fraction_allowed"`
}

type Variant struct {
	ID         int64             `json:"id"`
	SKU        string            `json:"sku"`
	Attributes map[string]string `json:"attribute_values"`
}

// StockRecord is one batch of a product variant as handed over by the
// backend. It is read-only for the duration of a sale session.
type StockRecord struct {
	ID              int64            `json:"id"`
	Product         Product          `json:"product"`
	Variant         *Variant         `json:"variant,omitempty"`
	BatchNo         string           `json:"batch_no,omitempty"`
	Quantity        decimal.Decimal  `json:"quantity"`
	BaseQuantity    *decimal.Decimal `json:"base_quantity,omitempty"`
	PurchaseUnit    string           `json:"unit"`
	SalePrice       decimal.Decimal  `json:"sale_price"`
	ShadowSalePrice decimal.Decimal  `json:"shadow_sale_price"`
	WarehouseID     int64            `json:"warehouse_id"`
}

func (s StockRecord) VariantID() int64 {
	if s.Variant == nil {
		return 0
	}
	return s.Variant.ID
}

type Customer struct {
	ID            int64           `json:"id"`
	CustomerName  string          `json:"customer_name"`
	Phone         string          `json:"phone"`
	AdvanceAmount decimal.Decimal `json:"advance_amount"`
	DueAmount     decimal.Decimal `json:"due_amount"`
}

type Supplier struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Company   string    `json:"company"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name    string `json:"name" validate:"required,max=120"`
	Company string `json:"company" validate:"max=120"`
	Phone   string `json:"phone" validate:"max=30"`
}

const (
	AccountTypeCash          = "cash"
	AccountTypeBank          = "bank"
	AccountTypeMobileBanking = "mobile_banking"
	AccountTypeOther         = "other"
)

type Account struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	IsActive       bool            `json:"is_active"`
	IsDefault      bool            `json:"is_default"`
}

// SaleItemPayload is one stocked line of the create-sale payload.
// Quantity is expressed in the stock's purchase unit, UnitQuantity in Unit.
type SaleItemPayload struct {
	ProductID       int64           `json:"product_id"`
	VariantID       *int64          `json:"variant_id"`
	StockID         int64           `json:"stock_id"`
	BatchNo         string          `json:"batch_no"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitQuantity    decimal.Decimal `json:"unit_quantity"`
	BaseQuantity    decimal.Decimal `json:"base_quantity"`
	Unit            string          `json:"unit"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	ShadowSellPrice decimal.Decimal `json:"shadow_sell_price"`
}

type PickupItemPayload struct {
	ProductName string          `json:"product_name"`
	Brand       string          `json:"brand"`
	Variant     string          `json:"variant"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	SalePrice   decimal.Decimal `json:"sale_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	SupplierID  int64           `json:"supplier_id"`
}

// SalePayload is the create-sale contract sent to persistence.
type SalePayload struct {
	CustomerID        *int64              `json:"customer_id"`
	CustomerName      string              `json:"customer_name,omitempty"`
	Phone             string              `json:"phone,omitempty"`
	SaleDate          string              `json:"sale_date"`
	Notes             string              `json:"notes"`
	WarehouseID       int64               `json:"warehouse_id"`
	Items             []SaleItemPayload   `json:"items"`
	PickupItems       []PickupItemPayload `json:"pickup_items"`
	VatRate           decimal.Decimal     `json:"vat_rate"`
	DiscountRate      decimal.Decimal     `json:"discount_rate"`
	DiscountType      string              `json:"discount_type"`
	ShippingCost      decimal.Decimal     `json:"shipping_cost"`
	PaidAmount        decimal.Decimal     `json:"paid_amount"`
	GrandAmount       decimal.Decimal     `json:"grand_amount"`
	DueAmount         decimal.Decimal     `json:"due_amount"`
	SubAmount         decimal.Decimal     `json:"sub_amount"`
	Type              string              `json:"type"`
	PaymentStatus     string              `json:"payment_status"`
	AccountID         *int64              `json:"account_id"`
	SupplierID        *int64              `json:"supplier_id"`
	AdvanceAdjustment decimal.Decimal     `json:"advance_adjustment"`
}

const (
	PaymentStatusUnpaid  = "unpaid"
	PaymentStatusPartial = "partial"
	PaymentStatusPaid    = "paid"
)

// PaymentStatusFor derives the status of a persisted sale from its balance.
func PaymentStatusFor(paid, due decimal.Decimal) string {
	switch {
	case !due.IsPositive():
		return PaymentStatusPaid
	case !paid.IsPositive():
		return PaymentStatusUnpaid
	default:
		return PaymentStatusPartial
	}
}

// Sale is a persisted sale as listed by the history screens.
type Sale struct {
	ID         int64           `json:"id"`
	InvoiceNo  string          `json:"invoice_no"`
	CreatedBy  string          `json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`
	Payload    SalePayload     `json:"sale"`
	Payments   []SalePayment   `json:"payments"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
	DueAmount  decimal.Decimal `json:"due_amount"`
	Status     string          `json:"payment_status"`
}

type SaleFilter struct {
	From       *time.Time
	To         *time.Time
	CustomerID int64
	Status     string
	Limit      int
}

type SalePayment struct {
	ID            int64           `json:"id"`
	SaleID        int64           `json:"sale_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentDate   string          `json:"payment_date"`
	PaymentMethod string          `json:"payment_method"`
	Notes         string          `json:"notes"`
	AccountID     int64           `json:"account_id"`
	RecordedBy    string          `json:"recorded_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

type RecordPaymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentDate   string          `json:"payment_date" validate:"required,datetime=2006-01-02"`
	PaymentMethod string          `json:"payment_method" validate:"required,oneof=cash bank mobile_banking other"`
	Notes         string          `json:"notes" validate:"max=500"`
	AccountID     int64           `json:"account_id" validate:"required,gt=0"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username" validate:"required,min=4,max=32"`
	Password string `json:"password" validate:"required,min=6"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
