package web

import (
	"net/http"

	"parts-warehouse/internal/app"
	"parts-warehouse/internal/core"

	"github.com/shopspring/decimal"
)

// apiListParts handles GET /api/v1/parts.
func (h *Handler) apiListParts(w http.ResponseWriter, r *http.Request) {
	includeInactive, err := queryBool(r, "include_inactive")
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	result, err := h.svc.ListParts(r.Context(), actor(r).TenantID, includeInactive)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Parts)
}

// apiCreatePart handles POST /api/v1/parts.
func (h *Handler) apiCreatePart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SKU          string          `json:"sku"`
		Name         string          `json:"name"`
		Unit         string          `json:"unit"`
		MinLevel     decimal.Decimal `json:"min_level"`
		ReorderLevel decimal.Decimal `json:"reorder_level"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	result, err := h.svc.CreatePart(r.Context(), app.CreatePartRequest{
		TenantID:     actor(r).TenantID,
		SKU:          body.SKU,
		Name:         body.Name,
		Unit:         body.Unit,
		MinLevel:     body.MinLevel,
		ReorderLevel: body.ReorderLevel,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result.Part)
}

// apiUpdateThresholds handles PATCH /api/v1/parts/{id}/thresholds.
func (h *Handler) apiUpdateThresholds(w http.ResponseWriter, r *http.Request) {
	partID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		MinLevel     decimal.Decimal `json:"min_level"`
		ReorderLevel decimal.Decimal `json:"reorder_level"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	result, err := h.svc.UpdatePartThresholds(r.Context(), app.UpdateThresholdsRequest{
		TenantID:     actor(r).TenantID,
		PartID:       partID,
		MinLevel:     body.MinLevel,
		ReorderLevel: body.ReorderLevel,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Part)
}

// apiDeactivatePart handles POST /api/v1/parts/{id}/deactivate.
func (h *Handler) apiDeactivatePart(w http.ResponseWriter, r *http.Request) {
	partID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	result, err := h.svc.DeactivatePart(r.Context(), actor(r).TenantID, partID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Part)
}

// apiReconcilePart handles GET /api/v1/parts/{id}/reconcile.
func (h *Handler) apiReconcilePart(w http.ResponseWriter, r *http.Request) {
	partID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	result, err := h.svc.ReconcilePart(r.Context(), actor(r).TenantID, partID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	type response struct {
		PartID        int                       `json:"part_id"`
		Balanced      bool                      `json:"balanced"`
		Discrepancies []core.BalanceDiscrepancy `json:"discrepancies"`
	}
	writeJSON(w, response{PartID: result.PartID, Balanced: result.Balanced, Discrepancies: result.Discrepancies})
}

func (h *Handler) apiListWarehouses(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListWarehouses(r.Context(), actor(r).TenantID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Warehouses)
}

func (h *Handler) apiCreateWarehouse(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	wh, err := h.svc.CreateWarehouse(r.Context(), app.CreateWarehouseRequest{
		TenantID: actor(r).TenantID, Code: body.Code, Name: body.Name,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, wh)
}

func (h *Handler) apiListLocations(w http.ResponseWriter, r *http.Request) {
	warehouseID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	result, err := h.svc.ListLocations(r.Context(), actor(r).TenantID, warehouseID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Locations)
}

func (h *Handler) apiCreateLocation(w http.ResponseWriter, r *http.Request) {
	warehouseID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		Code string `json:"code"`
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	loc, err := h.svc.CreateLocation(r.Context(), app.CreateLocationRequest{
		TenantID: actor(r).TenantID, WarehouseID: warehouseID, Code: body.Code, Name: body.Name,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, loc)
}
