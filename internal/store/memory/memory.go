package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	stocks          map[int64]domain.StockRecord
	customers       map[int64]domain.Customer
	suppliers       map[int64]domain.Supplier
	accounts        map[int64]domain.Account
	sales           map[int64]*domain.Sale
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
	nextSupplierID  int64
	nextSaleID      int64
	nextPaymentID   int64
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD,
// falling back to dev defaults with a warning.
func seedUsers(log *zap.Logger) map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Warn("memory store is using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal("hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func withBase(record domain.StockRecord, base string) domain.StockRecord {
	b := d(base)
	record.BaseQuantity = &b
	return record
}

// NewSeeded returns a store with a small demo catalog covering every unit
// type, a few customers, suppliers and receiving accounts.
func NewSeeded(log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}

	rice := domain.Product{ID: 1, Name: "Beras Pandan Wangi", Code: "8991001", Brand: "Cap Bunga", UnitType: "weight", DefaultUnit: "kg", MinSaleUnit: "kg", IsFractionAllowed: true}
	flour := domain.Product{ID: 2, Name: "Tepung Terigu", Code: "8991002", Brand: "Segitiga", UnitType: "weight", DefaultUnit: "kg", MinSaleUnit: "gram", IsFractionAllowed: true}
	oil := domain.Product{ID: 3, Name: "Minyak Goreng Curah", Code: "8991003", UnitType: "volume", DefaultUnit: "liter", MinSaleUnit: "liter", IsFractionAllowed: true}
	tee := domain.Product{ID: 4, Name: "Kaos Polos", Code: "8991004", Brand: "Basic", UnitType: "piece", DefaultUnit: "piece", MinSaleUnit: "piece"}
	egg := domain.Product{ID: 5, Name: "Telur Ayam", Code: "8991005", UnitType: "piece", DefaultUnit: "piece", MinSaleUnit: "piece"}
	cable := domain.Product{ID: 6, Name: "Kabel NYA 1.5mm", Code: "8991006", Brand: "Eterna", UnitType: "length", DefaultUnit: "meter", MinSaleUnit: "meter", IsFractionAllowed: true}

	red := &domain.Variant{ID: 41, SKU: "KAOS-MERAH-M", Attributes: map[string]string{"color": "merah", "size": "M"}}
	black := &domain.Variant{ID: 42, SKU: "KAOS-HITAM-L", Attributes: map[string]string{"color": "hitam", "size": "L"}}

	stocks := []domain.StockRecord{
		withBase(domain.StockRecord{ID: 101, Product: rice, BatchNo: "BRS-2601", Quantity: d("25"), PurchaseUnit: "kg", SalePrice: d("14500"), ShadowSalePrice: d("15000"), WarehouseID: 1}, "25"),
		withBase(domain.StockRecord{ID: 102, Product: rice, BatchNo: "BRS-2602", Quantity: d("50"), PurchaseUnit: "kg", SalePrice: d("14800"), ShadowSalePrice: d("15500"), WarehouseID: 1}, "50"),
		withBase(domain.StockRecord{ID: 201, Product: flour, BatchNo: "TPG-2601", Quantity: d("0.5"), PurchaseUnit: "ton", SalePrice: d("11000000"), WarehouseID: 1}, "500"),
		withBase(domain.StockRecord{ID: 301, Product: oil, BatchNo: "MYK-2601", Quantity: d("40"), PurchaseUnit: "liter", SalePrice: d("17000"), ShadowSalePrice: d("18000"), WarehouseID: 1}, "40"),
		withBase(domain.StockRecord{ID: 401, Product: tee, Variant: red, BatchNo: "KAOS-M-01", Quantity: d("12"), PurchaseUnit: "piece", SalePrice: d("45000"), WarehouseID: 1}, "12"),
		withBase(domain.StockRecord{ID: 402, Product: tee, Variant: red, BatchNo: "KAOS-M-02", Quantity: d("6"), PurchaseUnit: "piece", SalePrice: d("47500"), WarehouseID: 1}, "6"),
		withBase(domain.StockRecord{ID: 403, Product: tee, Variant: black, BatchNo: "KAOS-L-01", Quantity: d("8"), PurchaseUnit: "piece", SalePrice: d("45000"), WarehouseID: 1}, "8"),
		withBase(domain.StockRecord{ID: 501, Product: egg, BatchNo: "TLR-2601", Quantity: d("0"), PurchaseUnit: "dozen", SalePrice: d("2200"), WarehouseID: 1}, "0"),
		withBase(domain.StockRecord{ID: 502, Product: egg, BatchNo: "TLR-2602", Quantity: d("180"), PurchaseUnit: "piece", SalePrice: d("2300"), WarehouseID: 1}, "180"),
		withBase(domain.StockRecord{ID: 601, Product: cable, BatchNo: "KBL-2601", Quantity: d("100"), PurchaseUnit: "meter", SalePrice: d("6500"), WarehouseID: 1}, "100"),
	}

	s := &Store{
		stocks:          make(map[int64]domain.StockRecord, len(stocks)),
		customers:       make(map[int64]domain.Customer),
		suppliers:       make(map[int64]domain.Supplier),
		accounts:        make(map[int64]domain.Account),
		sales:           make(map[int64]*domain.Sale),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(log),
	}
	for _, stock := range stocks {
		s.stocks[stock.ID] = stock
	}
	for _, c := range []domain.Customer{
		{ID: 1, CustomerName: "Budi Santoso", Phone: "081234567890", AdvanceAmount: d("50000"), DueAmount: decimal.Zero},
		{ID: 2, CustomerName: "Siti Aminah", Phone: "081298765432", AdvanceAmount: decimal.Zero, DueAmount: d("125000")},
	} {
		s.customers[c.ID] = c
	}
	seededAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, sup := range []domain.Supplier{
		{ID: 1, Name: "Pak Joko", Company: "UD Sumber Rejeki", Phone: "0271555111", CreatedAt: seededAt},
		{ID: 2, Name: "Bu Rina", Company: "CV Makmur Jaya", CreatedAt: seededAt},
	} {
		s.suppliers[sup.ID] = sup
		s.nextSupplierID = sup.ID
	}
	for _, acct := range []domain.Account{
		{ID: 1, Name: "Kas Toko", Type: domain.AccountTypeCash, CurrentBalance: d("1000000"), IsActive: true, IsDefault: true},
		{ID: 2, Name: "BCA 123-456", Type: domain.AccountTypeBank, CurrentBalance: decimal.Zero, IsActive: true},
		{ID: 3, Name: "GoPay", Type: domain.AccountTypeMobileBanking, CurrentBalance: decimal.Zero, IsActive: true},
		{ID: 4, Name: "Rekening Lama", Type: domain.AccountTypeBank, CurrentBalance: decimal.Zero, IsActive: false},
	} {
		s.accounts[acct.ID] = acct
	}
	return s
}

func baseQuantity(stock domain.StockRecord) decimal.Decimal {
	if stock.BaseQuantity != nil {
		return *stock.BaseQuantity
	}
	return stock.Quantity
}

func (s *Store) ListStock(_ context.Context, warehouseID int64) ([]domain.StockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.StockRecord, 0, len(s.stocks))
	for _, stock := range s.stocks {
		if stock.WarehouseID == warehouseID {
			out = append(out, cloneStock(stock))
		}
	}
	slices.SortFunc(out, func(a, b domain.StockRecord) int {
		return cmpInt64(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b domain.Customer) int {
		return strings.Compare(strings.ToLower(a.CustomerName), strings.ToLower(b.CustomerName))
	})
	return out, nil
}

func (s *Store) GetCustomer(_ context.Context, id int64) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliers))
	for _, supplier := range s.suppliers {
		suppliers = append(suppliers, supplier)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return suppliers, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	s.nextSupplierID++
	supplier.ID = s.nextSupplierID
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	s.suppliers[supplier.ID] = supplier
	copySupplier := supplier
	return &copySupplier, nil
}

func (s *Store) ListAccounts(_ context.Context) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		out = append(out, acct)
	}
	slices.SortFunc(out, func(a, b domain.Account) int {
		return cmpInt64(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) GetAccount(_ context.Context, id int64) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &acct, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := sale.Payload
	if len(p.Items) == 0 && len(p.PickupItems) == 0 {
		return nil, store.ErrInvalidSale
	}
	if p.GrandAmount.IsNegative() || p.PaidAmount.IsNegative() || p.AdvanceAdjustment.IsNegative() {
		return nil, store.ErrInvalidSale
	}

	var customer domain.Customer
	if p.CustomerID != nil {
		c, ok := s.customers[*p.CustomerID]
		if !ok {
			return nil, fmt.Errorf("customer %d: %w", *p.CustomerID, store.ErrNotFound)
		}
		if p.AdvanceAdjustment.GreaterThan(c.AdvanceAmount) {
			return nil, store.ErrInvalidSale
		}
		customer = c
	} else if p.AdvanceAdjustment.IsPositive() {
		return nil, store.ErrInvalidSale
	}
	var account domain.Account
	if p.AccountID != nil {
		acct, ok := s.accounts[*p.AccountID]
		if !ok || !acct.IsActive {
			return nil, fmt.Errorf("account %d: %w", *p.AccountID, store.ErrNotFound)
		}
		account = acct
	}

	// Stock is checked for every line before anything is deducted.
	neededBase := make(map[int64]decimal.Decimal, len(p.Items))
	neededQty := make(map[int64]decimal.Decimal, len(p.Items))
	for _, item := range p.Items {
		stock, ok := s.stocks[item.StockID]
		if !ok || stock.WarehouseID != p.WarehouseID {
			return nil, fmt.Errorf("stock %d: %w", item.StockID, store.ErrNotFound)
		}
		if stock.Product.ID != item.ProductID || stock.VariantID() != variantOf(item) {
			return nil, store.ErrInvalidSale
		}
		if !item.BaseQuantity.IsPositive() {
			return nil, store.ErrInvalidSale
		}
		neededBase[item.StockID] = neededBase[item.StockID].Add(item.BaseQuantity)
		neededQty[item.StockID] = neededQty[item.StockID].Add(item.Quantity)
	}
	for stockID, need := range neededBase {
		if need.GreaterThan(baseQuantity(s.stocks[stockID])) {
			return nil, fmt.Errorf("stock %d: %w", stockID, store.ErrInsufficientStock)
		}
	}

	for stockID, need := range neededBase {
		stock := s.stocks[stockID]
		base := baseQuantity(stock).Sub(need)
		stock.BaseQuantity = &base
		stock.Quantity = stock.Quantity.Sub(neededQty[stockID])
		if stock.Quantity.IsNegative() {
			stock.Quantity = decimal.Zero
		}
		s.stocks[stockID] = stock
	}
	if p.CustomerID != nil {
		customer.AdvanceAmount = customer.AdvanceAmount.Sub(p.AdvanceAdjustment)
		customer.DueAmount = customer.DueAmount.Add(p.DueAmount)
		s.customers[customer.ID] = customer
	}
	if p.AccountID != nil {
		account.CurrentBalance = account.CurrentBalance.Add(p.PaidAmount.Sub(p.AdvanceAdjustment))
		s.accounts[account.ID] = account
	}

	now := time.Now().UTC()
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	s.nextSaleID++
	sale.ID = s.nextSaleID
	sale.InvoiceNo = store.InvoiceNo(sale.CreatedAt, s.salesOnDay(sale.CreatedAt)+1)
	sale.PaidAmount = p.PaidAmount
	sale.DueAmount = p.DueAmount
	sale.Status = domain.PaymentStatusFor(sale.PaidAmount, sale.DueAmount)
	sale.Payments = nil

	stored := cloneSale(&sale)
	s.sales[sale.ID] = stored
	return cloneSale(stored), nil
}

func (s *Store) salesOnDay(day time.Time) int {
	y, m, dd := day.UTC().Date()
	count := 0
	for _, sale := range s.sales {
		sy, sm, sd := sale.CreatedAt.UTC().Date()
		if sy == y && sm == m && sd == dd {
			count++
		}
	}
	return count
}

func (s *Store) GetSale(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	out := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if filter.From != nil && sale.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !sale.CreatedAt.Before(*filter.To) {
			continue
		}
		if filter.CustomerID > 0 && (sale.Payload.CustomerID == nil || *sale.Payload.CustomerID != filter.CustomerID) {
			continue
		}
		if filter.Status != "" && sale.Status != filter.Status {
			continue
		}
		out = append(out, *cloneSale(sale))
	}
	slices.SortFunc(out, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpInt64(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) RecordSalePayment(_ context.Context, payment domain.SalePayment) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[payment.SaleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !payment.Amount.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	if payment.Amount.GreaterThan(sale.DueAmount) {
		return nil, store.ErrPaymentExceedsDue
	}
	account, ok := s.accounts[payment.AccountID]
	if !ok || !account.IsActive {
		return nil, fmt.Errorf("account %d: %w", payment.AccountID, store.ErrNotFound)
	}

	s.nextPaymentID++
	payment.ID = s.nextPaymentID
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	sale.PaidAmount = sale.PaidAmount.Add(payment.Amount)
	sale.DueAmount = sale.DueAmount.Sub(payment.Amount)
	sale.Status = domain.PaymentStatusFor(sale.PaidAmount, sale.DueAmount)
	sale.Payments = append(sale.Payments, payment)

	account.CurrentBalance = account.CurrentBalance.Add(payment.Amount)
	s.accounts[account.ID] = account
	if id := sale.Payload.CustomerID; id != nil {
		if c, ok := s.customers[*id]; ok {
			c.DueAmount = c.DueAmount.Sub(payment.Amount)
			if c.DueAmount.IsNegative() {
				c.DueAmount = decimal.Zero
			}
			s.customers[c.ID] = c
		}
	}
	return cloneSale(sale), nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	out := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(out) < limit; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func variantOf(item domain.SaleItemPayload) int64 {
	if item.VariantID == nil {
		return 0
	}
	return *item.VariantID
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cloneStock(src domain.StockRecord) domain.StockRecord {
	dst := src
	if src.BaseQuantity != nil {
		base := *src.BaseQuantity
		dst.BaseQuantity = &base
	}
	if src.Variant != nil {
		variant := *src.Variant
		variant.Attributes = make(map[string]string, len(src.Variant.Attributes))
		for k, v := range src.Variant.Attributes {
			variant.Attributes[k] = v
		}
		dst.Variant = &variant
	}
	return dst
}

func cloneSale(src *domain.Sale) *domain.Sale {
	dst := *src
	dst.Payload.Items = slices.Clone(src.Payload.Items)
	dst.Payload.PickupItems = slices.Clone(src.Payload.PickupItems)
	dst.Payments = slices.Clone(src.Payments)
	return &dst
}
