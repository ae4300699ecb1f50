package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tokopos/backend/internal/cache"
	"tokopos/backend/internal/catalog"
	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/store"
	"tokopos/backend/internal/units"
	"tokopos/backend/internal/xid"
)

var (
	ErrDraftNotFound = errors.New("sale draft not found")
	ErrForbidden     = errors.New("admin role required")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	WarehouseID   int64
	UnitTables    units.Tables
	StockCacheTTL time.Duration
	DraftIdleTTL  time.Duration
	ScanTimeout   time.Duration
	Now           func() time.Time
}

type Service struct {
	repo        store.Repository
	stockCache  cache.StockCache
	engine      *units.Engine
	log         *zap.Logger
	warehouseID int64
	cacheTTL    time.Duration
	idleTTL     time.Duration
	scanTimeout time.Duration
	now         func() time.Time

	mu     sync.Mutex
	drafts map[string]*session
}

func New(repo store.Repository, stockCache cache.StockCache, log *zap.Logger, opts Options) (*Service, error) {
	engine, err := units.NewEngine(opts.UnitTables)
	if err != nil {
		return nil, fmt.Errorf("unit tables: %w", err)
	}
	if stockCache == nil {
		stockCache = cache.NoopStockCache{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.WarehouseID < 1 {
		opts.WarehouseID = 1
	}
	if opts.StockCacheTTL <= 0 {
		opts.StockCacheTTL = 30 * time.Second
	}
	if opts.DraftIdleTTL <= 0 {
		opts.DraftIdleTTL = 2 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		repo:        repo,
		stockCache:  stockCache,
		engine:      engine,
		log:         log.Named("service"),
		warehouseID: opts.WarehouseID,
		cacheTTL:    opts.StockCacheTTL,
		idleTTL:     opts.DraftIdleTTL,
		scanTimeout: opts.ScanTimeout,
		now:         opts.Now,
		drafts:      make(map[string]*session),
	}, nil
}

func (s *Service) UnitTables() units.Tables {
	return s.engine.Tables()
}

// Catalog builds a fresh catalog snapshot for a warehouse, reading through
// the stock cache.
func (s *Service) Catalog(ctx context.Context, warehouseID int64) (*catalog.Catalog, error) {
	if warehouseID < 1 {
		warehouseID = s.warehouseID
	}

	records, hit, err := s.stockCache.Get(ctx, warehouseID)
	if err != nil {
		s.log.Warn("stock cache read failed", zap.Int64("warehouse_id", warehouseID), zap.Error(err))
	}
	if !hit {
		records, err = s.repo.ListStock(ctx, warehouseID)
		if err != nil {
			return nil, err
		}
		if err := s.stockCache.Set(ctx, warehouseID, records, s.cacheTTL); err != nil {
			s.log.Warn("stock cache write failed", zap.Int64("warehouse_id", warehouseID), zap.Error(err))
		}
	}
	return catalog.Build(records, s.engine), nil
}

func (s *Service) ListProducts(ctx context.Context, warehouseID int64) ([]catalog.ProductAggregate, error) {
	c, err := s.Catalog(ctx, warehouseID)
	if err != nil {
		return nil, err
	}
	return c.Products(), nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

// ListAccounts returns the accounts a payment can be received into.
func (s *Service) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	accounts, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	active := accounts[:0]
	for _, acct := range accounts {
		if acct.IsActive {
			active = append(active, acct)
		}
	}
	return active, nil
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Company = strings.TrimSpace(req.Company)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" {
		return domain.Supplier{}, store.ErrInvalidInput
	}

	saved, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		Name:      req.Name,
		Company:   req.Company,
		Phone:     req.Phone,
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, "supplier_create", "supplier", fmt.Sprint(saved.ID), fmt.Sprintf("name=%s", saved.Name))
	return *saved, nil
}

type SalesQuery struct {
	From       string
	To         string
	CustomerID int64
	Status     string
	Limit      int
}

// ListSales lists persisted sales. From and To are inclusive calendar days.
func (s *Service) ListSales(ctx context.Context, query SalesQuery) ([]domain.Sale, error) {
	filter := domain.SaleFilter{
		CustomerID: query.CustomerID,
		Status:     strings.TrimSpace(query.Status),
		Limit:      query.Limit,
	}
	if filter.Status != "" {
		switch filter.Status {
		case domain.PaymentStatusUnpaid, domain.PaymentStatusPartial, domain.PaymentStatusPaid:
		default:
			return nil, store.ErrInvalidInput
		}
	}
	if strings.TrimSpace(query.From) != "" {
		from, err := time.Parse("2006-01-02", query.From)
		if err != nil {
			return nil, store.ErrInvalidInput
		}
		filter.From = &from
	}
	if strings.TrimSpace(query.To) != "" {
		to, err := time.Parse("2006-01-02", query.To)
		if err != nil {
			return nil, store.ErrInvalidInput
		}
		to = to.Add(24 * time.Hour)
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, store.ErrInvalidInput
	}
	if filter.Limit < 1 || filter.Limit > 500 {
		filter.Limit = 50
	}
	return s.repo.ListSales(ctx, filter)
}

func (s *Service) GetSale(ctx context.Context, id int64) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

// RecordPayment settles part or all of a sale's due amount.
func (s *Service) RecordPayment(ctx context.Context, saleID int64, req domain.RecordPaymentRequest) (domain.Sale, error) {
	if !req.Amount.IsPositive() || req.AccountID < 1 {
		return domain.Sale{}, store.ErrInvalidInput
	}
	if _, err := time.Parse("2006-01-02", req.PaymentDate); err != nil {
		return domain.Sale{}, store.ErrInvalidInput
	}

	recordedBy := "system"
	if actor, ok := ActorFromContext(ctx); ok {
		recordedBy = actor.Username
	}
	updated, err := s.repo.RecordSalePayment(ctx, domain.SalePayment{
		SaleID:        saleID,
		Amount:        req.Amount,
		PaymentDate:   req.PaymentDate,
		PaymentMethod: req.PaymentMethod,
		Notes:         strings.TrimSpace(req.Notes),
		AccountID:     req.AccountID,
		RecordedBy:    recordedBy,
		CreatedAt:     s.now(),
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale_payment", "sale", updated.InvoiceNo, fmt.Sprintf("amount=%s,account=%d,status=%s", req.Amount, req.AccountID, updated.Status))
	return *updated, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return nil, ErrForbidden
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrInvalidInput
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err))
	}
}
