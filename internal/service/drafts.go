package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tokopos/backend/internal/cart"
	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/payment"
	"tokopos/backend/internal/sale"
	"tokopos/backend/internal/scanner"
	"tokopos/backend/internal/store"
	"tokopos/backend/internal/xid"
)

// session is one open sale screen. Its mutex serializes every event on the
// draft; the service lock only guards the session map.
type session struct {
	mu      sync.Mutex
	draft   *sale.Draft
	keys    *scanner.Buffer
	owner   string
	touched time.Time
}

type OpenDraftRequest struct {
	Flow        string `json:"flow"`
	WarehouseID int64  `json:"warehouse_id"`
}

func (s *Service) OpenDraft(ctx context.Context, req OpenDraftRequest) (sale.View, error) {
	flow, err := sale.ParseFlow(req.Flow)
	if err != nil {
		return sale.View{}, err
	}
	warehouseID := req.WarehouseID
	if warehouseID < 1 {
		warehouseID = s.warehouseID
	}

	c, err := s.Catalog(ctx, warehouseID)
	if err != nil {
		return sale.View{}, err
	}

	now := s.now()
	owner := "system"
	if actor, ok := ActorFromContext(ctx); ok {
		owner = actor.Username
	}
	sess := &session{
		draft:   sale.NewDraft(xid.New("draft"), flow, warehouseID, c, now),
		keys:    scanner.NewBuffer(s.scanTimeout),
		owner:   owner,
		touched: now,
	}

	s.mu.Lock()
	s.drafts[sess.draft.ID()] = sess
	s.mu.Unlock()

	s.log.Info("sale draft opened",
		zap.String("draft_id", sess.draft.ID()),
		zap.String("flow", string(flow)),
		zap.Int64("warehouse_id", warehouseID),
		zap.String("owner", owner))
	return sess.draft.View(), nil
}

func (s *Service) session(id string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.drafts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, id)
	}
	return sess, nil
}

// mutate runs fn on the draft under its session lock. Drafts with a
// submission in flight reject every change.
func (s *Service) mutate(id string, fn func(d *sale.Draft) error) (sale.View, error) {
	sess, err := s.session(id)
	if err != nil {
		return sale.View{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.draft.Submitting() {
		return sale.View{}, sale.ErrSubmissionInFlight
	}
	sess.touched = s.now()
	if err := fn(sess.draft); err != nil {
		return sale.View{}, err
	}
	return sess.draft.View(), nil
}

func (s *Service) GetDraft(_ context.Context, id string) (sale.View, error) {
	sess, err := s.session(id)
	if err != nil {
		return sale.View{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.touched = s.now()
	return sess.draft.View(), nil
}

// DiscardDraft drops a draft without persisting anything.
func (s *Service) DiscardDraft(_ context.Context, id string) error {
	sess, err := s.session(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	submitting := sess.draft.Submitting()
	sess.mu.Unlock()
	if submitting {
		return sale.ErrSubmissionInFlight
	}

	s.mu.Lock()
	delete(s.drafts, id)
	s.mu.Unlock()
	return nil
}

func (s *Service) ActiveDrafts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.drafts)
}

type ScanResult struct {
	Code    string               `json:"code"`
	Outcome string               `json:"outcome,omitempty"`
	Error   string               `json:"error,omitempty"`
	Line    *cart.Line           `json:"line,omitempty"`
	Batches []domain.StockRecord `json:"batches,omitempty"`
}

func scanResult(code string, outcome cart.Outcome) ScanResult {
	res := ScanResult{Code: code, Outcome: outcome.Kind.String(), Line: outcome.Line}
	if outcome.Selection != nil {
		res.Batches = outcome.Selection.Batches
	}
	return res
}

type ScanResponse struct {
	ScanResult
	Draft sale.View `json:"draft"`
}

// Scan resolves one complete code against the draft's catalog.
func (s *Service) Scan(_ context.Context, id string, code string) (ScanResponse, error) {
	var res ScanResult
	view, err := s.mutate(id, func(d *sale.Draft) error {
		outcome, err := d.Scan(code)
		if err != nil {
			return err
		}
		res = scanResult(code, outcome)
		return nil
	})
	if err != nil {
		return ScanResponse{}, err
	}
	return ScanResponse{ScanResult: res, Draft: view}, nil
}

type KeyFeedResponse struct {
	Results []ScanResult `json:"results"`
	Pending string       `json:"pending"`
	Draft   sale.View    `json:"draft"`
}

// FeedKeys pushes raw scanner key presses into the draft's key buffer. Each
// code the buffer completes is resolved in order; a rejected code is
// reported in its result and does not stop the ones after it. With flush set
// the trailing partial code is resolved as well.
func (s *Service) FeedKeys(_ context.Context, id string, keys []scanner.Key, flush bool) (KeyFeedResponse, error) {
	sess, err := s.session(id)
	if err != nil {
		return KeyFeedResponse{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.draft.Submitting() {
		return KeyFeedResponse{}, sale.ErrSubmissionInFlight
	}
	now := s.now()
	sess.touched = now

	codes := make([]string, 0, 2)
	for _, k := range keys {
		if k.At.IsZero() {
			k.At = now
		}
		if code, ok := sess.keys.Feed(k); ok {
			codes = append(codes, code)
		}
	}
	if flush {
		if code, ok := sess.keys.Flush(); ok {
			codes = append(codes, code)
		}
	}

	results := make([]ScanResult, 0, len(codes))
	for _, code := range codes {
		outcome, err := sess.draft.Scan(code)
		if err != nil {
			results = append(results, ScanResult{Code: code, Error: err.Error()})
			continue
		}
		results = append(results, scanResult(code, outcome))
	}
	return KeyFeedResponse{
		Results: results,
		Pending: sess.keys.Pending(),
		Draft:   sess.draft.View(),
	}, nil
}

func (s *Service) SelectVariant(_ context.Context, id string, productID int64, variantID int64) (sale.View, error) {
	return s.mutate(id, func(d *sale.Draft) error {
		_, err := d.SelectVariant(productID, variantID)
		return err
	})
}

// SelectStock adds a batch picked from the product list.
func (s *Service) SelectStock(_ context.Context, id string, stockID int64) (sale.View, error) {
	return s.mutate(id, func(d *sale.Draft) error {
		_, err := d.SelectStock(stockID)
		return err
	})
}

func (s *Service) ChooseBatch(_ context.Context, id string, stockID int64) (sale.View, error) {
	return s.mutate(id, func(d *sale.Draft) error {
		_, err := d.ChooseBatch(stockID)
		return err
	})
}

func (s *Service) CancelSelection(_ context.Context, id string) (sale.View, error) {
	return s.mutate(id, func(d *sale.Draft) error {
		d.CancelSelection()
		return nil
	})
}

type LineUpdate struct {
	Unit      *string          `json:"unit"`
	Quantity  *decimal.Decimal `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

// UpdateLine applies a unit and quantity change together. A quantity given
// with a unit is read in that unit, and a rejected update leaves the line
// untouched.
func (s *Service) UpdateLine(_ context.Context, id string, key string, update LineUpdate) (sale.View, error) {
	return s.mutate(id, func(d *sale.Draft) error {
		if update.UnitPrice != nil {
			return d.SetUnitPrice(key, *update.UnitPrice)
		}
		if update.Unit == nil && update.Quantity == nil {
			return store.ErrInvalidInput
		}
		unit := ""
		if update.Unit != nil {
			unit = *update.Unit
			if unit == "" {
				return store.ErrInvalidInput
			}
		}
		_, err := d.UpdateLine(key, unit, update.Quantity)
		return err
	})
}

func (s *Service) RemoveLine(_ context.Context, id string, key string) (sale.View, error) {
	return s.mutate(id, func(d *sale.Draft) error {
		return d.RemoveLine(key)
	})
}

func (s *Service) ClearCart(_ context.Context, id string) (sale.View, error) {
	return s.mutate(id, func(d *sale.Draft) error {
		d.ClearCart()
		return nil
	})
}

func (s *Service) AddPickup(_ context.Context, id string, in cart.PickupInput) (sale.View, error) {
	return s.mutate(id, func(d *sale.Draft) error {
		_, err := d.AddPickup(in)
		return err
	})
}

func (s *Service) RemovePickup(_ context.Context, id string, pickupID int64) (sale.View, error) {
	return s.mutate(id, func(d *sale.Draft) error {
		return d.RemovePickup(pickupID)
	})
}

func (s *Service) SetAdjustments(_ context.Context, id string, adj sale.Adjustments) (sale.View, error) {
	return s.mutate(id, func(d *sale.Draft) error {
		return d.SetAdjustments(adj)
	})
}

type PaymentUpdate struct {
	Status     *string          `json:"status"`
	PaidAmount *decimal.Decimal `json:"paid_amount"`
	Manual     *bool            `json:"manual"`
	AccountID  *int64           `json:"account_id"`
	UseAdvance *bool            `json:"use_advance"`
}

// UpdatePayment applies the fields that are present as one change. Nothing
// is applied when any field is rejected.
func (s *Service) UpdatePayment(ctx context.Context, id string, update PaymentUpdate) (sale.View, error) {
	var status payment.Status
	if update.Status != nil {
		parsed, err := payment.ParseStatus(*update.Status)
		if err != nil {
			return sale.View{}, err
		}
		status = parsed
	}
	if update.AccountID != nil && *update.AccountID > 0 {
		acct, err := s.repo.GetAccount(ctx, *update.AccountID)
		if err != nil {
			return sale.View{}, err
		}
		if !acct.IsActive {
			return sale.View{}, fmt.Errorf("account %d: %w", acct.ID, store.ErrNotFound)
		}
	}

	return s.mutate(id, func(d *sale.Draft) error {
		ch := sale.PaymentChange{
			Manual:     update.Manual,
			PaidAmount: update.PaidAmount,
			AccountID:  update.AccountID,
			UseAdvance: update.UseAdvance,
		}
		if update.Status != nil {
			ch.Status = &status
		}
		return d.ApplyPayment(ch)
	})
}

type CustomerUpdate struct {
	CustomerID int64  `json:"customer_id"`
	Name       string `json:"customer_name"`
	Phone      string `json:"phone"`
}

// SetCustomer attaches an existing customer by id, or a walk-in buyer by
// name and phone. An empty update clears the customer.
func (s *Service) SetCustomer(ctx context.Context, id string, update CustomerUpdate) (sale.View, error) {
	if update.CustomerID > 0 {
		c, err := s.repo.GetCustomer(ctx, update.CustomerID)
		if err != nil {
			return sale.View{}, err
		}
		return s.mutate(id, func(d *sale.Draft) error {
			d.SelectCustomer(sale.Customer{ID: c.ID, Name: c.CustomerName, Phone: c.Phone, Advance: c.AdvanceAmount})
			return nil
		})
	}
	return s.mutate(id, func(d *sale.Draft) error {
		if update.Name == "" && update.Phone == "" {
			d.ClearCustomer()
			return nil
		}
		d.SetWalkIn(update.Name, update.Phone)
		return nil
	})
}

type DetailsUpdate struct {
	SaleDate   *string `json:"sale_date"`
	Notes      *string `json:"notes"`
	SupplierID *int64  `json:"supplier_id"`
}

func (s *Service) UpdateDetails(ctx context.Context, id string, update DetailsUpdate) (sale.View, error) {
	if update.SupplierID != nil && *update.SupplierID > 0 {
		if err := s.ensureSupplier(ctx, *update.SupplierID); err != nil {
			return sale.View{}, err
		}
	}
	return s.mutate(id, func(d *sale.Draft) error {
		if update.SaleDate != nil {
			if err := d.SetSaleDate(*update.SaleDate); err != nil {
				return err
			}
		}
		if update.Notes != nil {
			d.SetNotes(*update.Notes)
		}
		if update.SupplierID != nil {
			d.SelectSupplier(*update.SupplierID)
		}
		return nil
	})
}

func (s *Service) ensureSupplier(ctx context.Context, supplierID int64) error {
	suppliers, err := s.repo.ListSuppliers(ctx)
	if err != nil {
		return err
	}
	for _, supplier := range suppliers {
		if supplier.ID == supplierID {
			return nil
		}
	}
	return fmt.Errorf("supplier %d: %w", supplierID, store.ErrNotFound)
}

// Submit assembles the draft and persists it. The draft is discarded on
// success and kept, with its guard released, on failure so it can be
// retried.
func (s *Service) Submit(ctx context.Context, id string) (domain.Sale, error) {
	sess, err := s.session(id)
	if err != nil {
		return domain.Sale{}, err
	}

	sess.mu.Lock()
	if err := sess.draft.BeginSubmit(); err != nil {
		sess.mu.Unlock()
		return domain.Sale{}, err
	}
	payload, err := sess.draft.Assemble()
	if err != nil {
		sess.draft.EndSubmit()
		sess.mu.Unlock()
		return domain.Sale{}, err
	}
	sess.touched = s.now()
	sess.mu.Unlock()

	createdBy := sess.owner
	if actor, ok := ActorFromContext(ctx); ok {
		createdBy = actor.Username
	}
	created, err := s.repo.CreateSale(ctx, domain.Sale{
		CreatedBy: createdBy,
		CreatedAt: s.now(),
		Payload:   payload,
	})
	if err != nil {
		sess.mu.Lock()
		sess.draft.EndSubmit()
		sess.mu.Unlock()
		s.log.Warn("sale submission failed", zap.String("draft_id", id), zap.Error(err))
		return domain.Sale{}, err
	}

	if err := s.stockCache.Invalidate(ctx, payload.WarehouseID); err != nil {
		s.log.Warn("stock cache invalidate failed", zap.Int64("warehouse_id", payload.WarehouseID), zap.Error(err))
	}
	s.mu.Lock()
	delete(s.drafts, id)
	s.mu.Unlock()

	s.logAudit(ctx, "sale_create", "sale", created.InvoiceNo, fmt.Sprintf("type=%s,grand=%s,paid=%s,status=%s",
		payload.Type, payload.GrandAmount, payload.PaidAmount, created.Status))
	s.log.Info("sale created",
		zap.String("draft_id", id),
		zap.String("invoice_no", created.InvoiceNo),
		zap.String("grand_amount", payload.GrandAmount.String()))
	return *created, nil
}

// Sweep drops drafts idle for longer than the idle TTL, the server-side
// equivalent of the terminal navigating away. Drafts being submitted are
// kept.
func (s *Service) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.drafts {
		if !sess.mu.TryLock() {
			continue
		}
		expired := !sess.draft.Submitting() && now.Sub(sess.touched) > s.idleTTL
		sess.mu.Unlock()
		if expired {
			delete(s.drafts, id)
			removed++
		}
	}
	if removed > 0 {
		s.log.Info("expired idle sale drafts", zap.Int("removed", removed))
	}
	return removed
}

// RunJanitor sweeps idle drafts every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}
