package web

import (
	"context"
	"net/http"

	"parts-warehouse/internal/app"
	"parts-warehouse/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// writeRequest renders a request together with its live reservations.
func writeRequest(w http.ResponseWriter, status int, result *app.RequestResult) {
	type body struct {
		Request      *core.PartRequest  `json:"request"`
		Reservations []core.Reservation `json:"reservations,omitempty"`
	}
	writeJSONStatus(w, status, body{Request: result.Request, Reservations: result.Reservations})
}

// apiListRequests handles GET /api/v1/requests?status=.
func (h *Handler) apiListRequests(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListRequests(r.Context(), actor(r).TenantID, r.URL.Query().Get("status"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result.Requests)
}

// apiCreateRequest handles POST /api/v1/requests. The caller becomes the requester.
func (h *Handler) apiCreateRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DriverID   *int   `json:"driver_id"`
		VehicleRef string `json:"vehicle_ref"`
		Notes      string `json:"notes"`
		Lines      []struct {
			PartID   int             `json:"part_id"`
			Quantity decimal.Decimal `json:"quantity"`
		} `json:"lines"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	req := app.CreatePartRequestRequest{
		Actor:      actor(r),
		DriverID:   body.DriverID,
		VehicleRef: body.VehicleRef,
		Notes:      body.Notes,
	}
	for _, l := range body.Lines {
		req.Lines = append(req.Lines, app.RequestLineInput{PartID: l.PartID, Quantity: l.Quantity})
	}

	result, err := h.svc.CreateRequest(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeRequest(w, http.StatusCreated, result)
}

// apiGetRequest handles GET /api/v1/requests/{ref}. ref is an ID or PR number.
func (h *Handler) apiGetRequest(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.GetRequest(r.Context(), actor(r).TenantID, chi.URLParam(r, "ref"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeRequest(w, http.StatusOK, result)
}

type lifecycleFunc func(ctx context.Context, actor app.Actor, ref string) (*app.RequestResult, error)

// lifecycle adapts a body-less request transition into a handler.
func (h *Handler) lifecycle(fn lifecycleFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := fn(r.Context(), actor(r), chi.URLParam(r, "ref"))
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeRequest(w, http.StatusOK, result)
	}
}

func (h *Handler) apiSubmitRequest(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(h.svc.SubmitRequest)(w, r)
}

func (h *Handler) apiApproveRequest(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(h.svc.ApproveRequest)(w, r)
}

func (h *Handler) apiCancelRequest(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(h.svc.CancelRequest)(w, r)
}

func (h *Handler) apiCloseRequest(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(h.svc.CloseRequest)(w, r)
}

func (h *Handler) apiReleaseReservations(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(h.svc.ReleaseReservations)(w, r)
}

// apiReserveRequest handles POST /api/v1/requests/{ref}/reserve. The body is
// optional; an empty body reserves across all warehouses without partials.
func (h *Handler) apiReserveRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WarehouseID  *int `json:"warehouse_id"`
		AllowPartial bool `json:"allow_partial"`
	}
	if !decodeOptionalJSON(w, r, &body) {
		return
	}
	result, err := h.svc.ReserveRequest(r.Context(), app.ReserveRequest{
		Actor:        actor(r),
		RequestRef:   chi.URLParam(r, "ref"),
		WarehouseID:  body.WarehouseID,
		AllowPartial: body.AllowPartial,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeRequest(w, http.StatusOK, result)
}

// apiIssueRequest handles POST /api/v1/requests/{ref}/issue.
func (h *Handler) apiIssueRequest(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.IssueRequest(r.Context(), actor(r), chi.URLParam(r, "ref"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result.Document)
}
