package httpapi

import (
	"net/http"

	"github.com/shopspring/decimal"

	"tokopos/backend/internal/cart"
	"tokopos/backend/internal/sale"
	"tokopos/backend/internal/scanner"
	"tokopos/backend/internal/service"
)

type scanRequest struct {
	Code string `json:"code" validate:"required,max=128"`
}

type keyFeedRequest struct {
	Keys  []scanner.Key `json:"keys" validate:"max=512"`
	Flush bool          `json:"flush"`
}

type variantRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	VariantID int64 `json:"variant_id" validate:"gte=0"`
}

type stockRequest struct {
	StockID int64 `json:"stock_id" validate:"required,gt=0"`
}

type adjustmentsRequest struct {
	TaxRate  decimal.Decimal `json:"vat_rate"`
	Discount decimal.Decimal `json:"discount"`
	Shipping decimal.Decimal `json:"shipping_cost"`
}

func (a *API) handleOpenDraft(w http.ResponseWriter, r *http.Request) {
	var req service.OpenDraftRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.OpenDraft(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"draft": view})
}

func (a *API) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.GetDraft(r.Context(), r.PathValue("id"))
	writeDraft(w, view, err)
}

func (a *API) handleDiscardDraft(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DiscardDraft(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.Scan(r.Context(), r.PathValue("id"), req.Code)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleKeys(w http.ResponseWriter, r *http.Request) {
	var req keyFeedRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.FeedKeys(r.Context(), r.PathValue("id"), req.Keys, req.Flush)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSelectVariant(w http.ResponseWriter, r *http.Request) {
	var req variantRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.SelectVariant(r.Context(), r.PathValue("id"), req.ProductID, req.VariantID)
	writeDraft(w, view, err)
}

func (a *API) handleChooseBatch(w http.ResponseWriter, r *http.Request) {
	var req stockRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.ChooseBatch(r.Context(), r.PathValue("id"), req.StockID)
	writeDraft(w, view, err)
}

func (a *API) handleCancelSelection(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.CancelSelection(r.Context(), r.PathValue("id"))
	writeDraft(w, view, err)
}

// handleAddStock adds a batch picked from the product list rather than
// scanned.
func (a *API) handleAddStock(w http.ResponseWriter, r *http.Request) {
	var req stockRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.SelectStock(r.Context(), r.PathValue("id"), req.StockID)
	writeDraft(w, view, err)
}

func (a *API) handleUpdateLine(w http.ResponseWriter, r *http.Request) {
	var req service.LineUpdate
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.UpdateLine(r.Context(), r.PathValue("id"), r.PathValue("key"), req)
	writeDraft(w, view, err)
}

func (a *API) handleRemoveLine(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.RemoveLine(r.Context(), r.PathValue("id"), r.PathValue("key"))
	writeDraft(w, view, err)
}

func (a *API) handleClearCart(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.ClearCart(r.Context(), r.PathValue("id"))
	writeDraft(w, view, err)
}

func (a *API) handleAddPickup(w http.ResponseWriter, r *http.Request) {
	var req cart.PickupInput
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.AddPickup(r.Context(), r.PathValue("id"), req)
	writeDraft(w, view, err)
}

func (a *API) handleRemovePickup(w http.ResponseWriter, r *http.Request) {
	pickupID, err := pathID(r, "pickupID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.RemovePickup(r.Context(), r.PathValue("id"), pickupID)
	writeDraft(w, view, err)
}

func (a *API) handleAdjustments(w http.ResponseWriter, r *http.Request) {
	var req adjustmentsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.SetAdjustments(r.Context(), r.PathValue("id"), sale.Adjustments{
		TaxRate:  req.TaxRate,
		Discount: req.Discount,
		Shipping: req.Shipping,
	})
	writeDraft(w, view, err)
}

func (a *API) handlePayment(w http.ResponseWriter, r *http.Request) {
	var req service.PaymentUpdate
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.UpdatePayment(r.Context(), r.PathValue("id"), req)
	writeDraft(w, view, err)
}

func (a *API) handleCustomer(w http.ResponseWriter, r *http.Request) {
	var req service.CustomerUpdate
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.SetCustomer(r.Context(), r.PathValue("id"), req)
	writeDraft(w, view, err)
}

func (a *API) handleDetails(w http.ResponseWriter, r *http.Request) {
	var req service.DetailsUpdate
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	view, err := a.service.UpdateDetails(r.Context(), r.PathValue("id"), req)
	writeDraft(w, view, err)
}

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	saved, err := a.service.Submit(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale": saved})
}

func writeDraft(w http.ResponseWriter, view sale.View, err error) {
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"draft": view})
}
