package httpapi

import (
	"bytes"
	"html/template"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/service"
)

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	customerID, err := parseOptionalID(q.Get("customer_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sales, err := a.service.ListSales(r.Context(), service.SalesQuery{
		From:       q.Get("from"),
		To:         q.Get("to"),
		CustomerID: customerID,
		Status:     q.Get("status"),
		Limit:      parsePositiveLimit(q.Get("limit"), 50, 500),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	saved, err := a.service.GetSale(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": saved})
}

func (a *API) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req domain.RecordPaymentRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	updated, err := a.service.RecordPayment(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale": updated})
}

func (a *API) handleInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	saved, err := a.service.GetSale(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := invoiceTmpl.Execute(&buf, saved); err != nil {
		a.log.Error("invoice render failed", zap.Int64("sale_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", "inline; filename=\""+saved.InvoiceNo+".html\"")
	_, _ = w.Write(buf.Bytes())
}

// invoiceTmpl escapes every field, customer names and notes included.
var invoiceTmpl = template.Must(template.New("invoice").Funcs(template.FuncMap{
	"id": func(v *int64) string {
		if v == nil {
			return "-"
		}
		return strconv.FormatInt(*v, 10)
	},
}).Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>{{.InvoiceNo}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    td.num { text-align: right; }
  </style>
</head>
<body>
  <h2>Invoice {{.InvoiceNo}}</h2>
  {{with .Payload}}
  <p>Date: {{.SaleDate}} | Type: {{.Type}} | Customer: {{if .CustomerName}}{{.CustomerName}}{{else}}{{id .CustomerID}}{{end}}</p>
  {{if .Notes}}<p>Notes: {{.Notes}}</p>{{end}}
  <table>
    <thead><tr><th>Product</th><th>Batch</th><th>Qty</th><th>Unit</th><th>Price</th><th>Total</th></tr></thead>
    <tbody>{{range .Items}}<tr><td>{{.ProductID}}</td><td>{{.BatchNo}}</td><td class="num">{{.UnitQuantity}}</td><td>{{.Unit}}</td><td class="num">{{.UnitPrice}}</td><td class="num">{{.TotalPrice}}</td></tr>{{end}}
    {{range .PickupItems}}<tr><td>{{.ProductName}} {{.Variant}}</td><td>pickup</td><td class="num">{{.Quantity}}</td><td>{{.Unit}}</td><td class="num">{{.SalePrice}}</td><td class="num">{{.TotalPrice}}</td></tr>{{end}}</tbody>
  </table>
  <p>Subtotal: {{.SubAmount}} | VAT: {{.VatRate}}% | Discount ({{.DiscountType}}): {{.DiscountRate}} | Shipping: {{.ShippingCost}}</p>
  <p><strong>Grand total: {{.GrandAmount}}</strong></p>
  {{end}}
  <p>Paid: {{.PaidAmount}} | Due: {{.DueAmount}} | Status: {{.Status}}</p>
  {{if .Payments}}
  <table>
    <thead><tr><th>Date</th><th>Method</th><th>Amount</th></tr></thead>
    <tbody>{{range .Payments}}<tr><td>{{.PaymentDate}}</td><td>{{.PaymentMethod}}</td><td class="num">{{.Amount}}</td></tr>{{end}}</tbody>
  </table>
  {{end}}
</body>
</html>
`))
