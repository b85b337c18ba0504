package web

import (
	"net/http"
	"time"

	"parts-warehouse/internal/app"
	"parts-warehouse/internal/core"

	"github.com/shopspring/decimal"
)

// apiStockLevels handles GET /api/v1/stock?part_id=&warehouse_id=&location_id=&available=.
func (h *Handler) apiStockLevels(w http.ResponseWriter, r *http.Request) {
	var filter core.BalanceFilter
	var err error
	if filter.PartID, err = queryInt(r, "part_id"); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if filter.WarehouseID, err = queryInt(r, "warehouse_id"); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if filter.LocationID, err = queryInt(r, "location_id"); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if filter.OnlyAvailable, err = queryBool(r, "available"); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	result, err := h.svc.GetStockLevels(r.Context(), actor(r).TenantID, filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Levels)
}

// apiLowStock handles GET /api/v1/stock/low.
func (h *Handler) apiLowStock(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListLowStock(r.Context(), actor(r).TenantID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Parts)
}

// apiReceiveStock handles POST /api/v1/stock/receive.
func (h *Handler) apiReceiveStock(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PartID      int             `json:"part_id"`
		WarehouseID int             `json:"warehouse_id"`
		LocationID  int             `json:"location_id"`
		Quantity    decimal.Decimal `json:"quantity"`
		UnitCost    decimal.Decimal `json:"unit_cost"`
		Currency    string          `json:"currency"`
		Supplier    string          `json:"supplier"`
		ReceivedAt  *time.Time      `json:"received_at"`
		ExpiresAt   *time.Time      `json:"expires_at"`
		Reference   string          `json:"reference"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	result, err := h.svc.ReceiveStock(r.Context(), app.ReceiveStockRequest{
		Actor:       actor(r),
		PartID:      body.PartID,
		WarehouseID: body.WarehouseID,
		LocationID:  body.LocationID,
		Quantity:    body.Quantity,
		UnitCost:    body.UnitCost,
		Currency:    body.Currency,
		Supplier:    body.Supplier,
		ReceivedAt:  body.ReceivedAt,
		ExpiresAt:   body.ExpiresAt,
		Reference:   body.Reference,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result.Balance)
}

// apiTransferStock handles POST /api/v1/stock/transfer.
func (h *Handler) apiTransferStock(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BalanceID             int             `json:"balance_id"`
		DestinationLocationID int             `json:"destination_location_id"`
		Quantity              decimal.Decimal `json:"quantity"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	result, err := h.svc.TransferStock(r.Context(), app.TransferStockRequest{
		Actor:                 actor(r),
		BalanceID:             body.BalanceID,
		DestinationLocationID: body.DestinationLocationID,
		Quantity:              body.Quantity,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// apiReturnStock handles POST /api/v1/stock/return.
func (h *Handler) apiReturnStock(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IssueLineID int             `json:"issue_line_id"`
		LocationID  int             `json:"location_id"`
		Quantity    decimal.Decimal `json:"quantity"`
		Reference   string          `json:"reference"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	result, err := h.svc.ReturnStock(r.Context(), app.ReturnStockRequest{
		Actor:       actor(r),
		IssueLineID: body.IssueLineID,
		LocationID:  body.LocationID,
		Quantity:    body.Quantity,
		Reference:   body.Reference,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Balance)
}

// apiAdjustStock handles POST /api/v1/stock/adjust.
func (h *Handler) apiAdjustStock(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BalanceID int             `json:"balance_id"`
		Delta     decimal.Decimal `json:"delta"`
		Reason    string          `json:"reason"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	result, err := h.svc.AdjustStock(r.Context(), app.AdjustStockRequest{
		Actor:     actor(r),
		BalanceID: body.BalanceID,
		Delta:     body.Delta,
		Reason:    body.Reason,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Balance)
}

// apiListMovements handles GET /api/v1/movements?part_id=&lot_id=&location_id=&type=&limit=.
func (h *Handler) apiListMovements(w http.ResponseWriter, r *http.Request) {
	var filter core.MovementFilter
	var err error
	if filter.PartID, err = queryInt(r, "part_id"); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if filter.LotID, err = queryInt(r, "lot_id"); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if filter.LocationID, err = queryInt(r, "location_id"); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if limit != nil {
		filter.Limit = *limit
	}
	if t := r.URL.Query().Get("type"); t != "" {
		mt := core.MovementType(t)
		filter.Type = &mt
	}

	result, err := h.svc.ListMovements(r.Context(), actor(r).TenantID, filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Movements)
}

// apiGetIssueDocument handles GET /api/v1/issue-documents/{id}.
func (h *Handler) apiGetIssueDocument(w http.ResponseWriter, r *http.Request) {
	documentID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	result, err := h.svc.GetIssueDocument(r.Context(), actor(r).TenantID, documentID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Document)
}

// apiConfirmIssueDocument handles POST /api/v1/issue-documents/{id}/confirm.
// Only the document's recipient may confirm.
func (h *Handler) apiConfirmIssueDocument(w http.ResponseWriter, r *http.Request) {
	documentID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	result, err := h.svc.ConfirmIssue(r.Context(), actor(r), documentID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Document)
}
