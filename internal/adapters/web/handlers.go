package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"parts-warehouse/internal/app"
	"parts-warehouse/internal/core"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc       app.ApplicationService
	log       *zap.Logger
	router    chi.Router
	jwtSecret string
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, log *zap.Logger, allowedOrigins, jwtSecret string) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{
		svc:       svc,
		log:       log,
		jwtSecret: jwtSecret,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer(log))
	r.Use(CORS(allowedOrigins))

	// ── Health (public) ───────────────────────────────────────────────────────
	r.Get("/api/health", h.health)

	// ── Protected API routes (return 401 JSON if unauthenticated) ────────────
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Use(RequestBodyLimit(1 << 20)) // 1 MB

		r.Get("/me", h.me)

		// ── Catalog ───────────────────────────────────────────────────────────
		r.Get("/parts", h.apiListParts)
		r.Post("/parts", h.apiCreatePart)
		r.Patch("/parts/{id}/thresholds", h.apiUpdateThresholds)
		r.Post("/parts/{id}/deactivate", h.apiDeactivatePart)
		r.Get("/parts/{id}/reconcile", h.apiReconcilePart)
		r.Get("/warehouses", h.apiListWarehouses)
		r.Post("/warehouses", h.apiCreateWarehouse)
		r.Get("/warehouses/{id}/locations", h.apiListLocations)
		r.Post("/warehouses/{id}/locations", h.apiCreateLocation)

		// ── Stock ─────────────────────────────────────────────────────────────
		r.Get("/stock", h.apiStockLevels)
		r.Get("/stock/low", h.apiLowStock)
		r.Post("/stock/receive", h.apiReceiveStock)
		r.Post("/stock/transfer", h.apiTransferStock)
		r.Post("/stock/return", h.apiReturnStock)
		r.Post("/stock/adjust", h.apiAdjustStock)
		r.Get("/movements", h.apiListMovements)

		// ── Requests ──────────────────────────────────────────────────────────
		r.Get("/requests", h.apiListRequests)
		r.Post("/requests", h.apiCreateRequest)
		r.Get("/requests/{ref}", h.apiGetRequest)
		r.Post("/requests/{ref}/submit", h.apiSubmitRequest)
		r.Post("/requests/{ref}/approve", h.apiApproveRequest)
		r.Post("/requests/{ref}/cancel", h.apiCancelRequest)
		r.Post("/requests/{ref}/close", h.apiCloseRequest)
		r.Post("/requests/{ref}/reserve", h.apiReserveRequest)
		r.Post("/requests/{ref}/release", h.apiReleaseReservations)
		r.Post("/requests/{ref}/issue", h.apiIssueRequest)

		// ── Issue documents ───────────────────────────────────────────────────
		r.Get("/issue-documents/{id}", h.apiGetIssueDocument)
		r.Post("/issue-documents/{id}/confirm", h.apiConfirmIssueDocument)
	})

	h.router = r
	return r
}

// health returns service status.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string `json:"status"`
	}
	writeJSON(w, response{Status: "ok"})
}

// actor returns the authenticated caller. RequireAuth guarantees presence.
func actor(r *http.Request) app.Actor {
	return authFromContext(r.Context()).Actor()
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	return handleDecodeError(w, r, json.NewDecoder(r.Body).Decode(v))
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return true
	}
	return handleDecodeError(w, r, err)
}

func handleDecodeError(w http.ResponseWriter, r *http.Request, err error) bool {
	if err == nil {
		return true
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
		return false
	}
	writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
	return false
}

// pathID parses a positive integer URL parameter, writing 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || id <= 0 {
		writeError(w, r, fmt.Sprintf("invalid %s", name), "BAD_REQUEST", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// queryInt parses an optional integer query parameter. Absent means nil.
func queryInt(r *http.Request, name string) (*int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: query parameter %s must be an integer", core.ErrInvalidInput, name)
	}
	return &v, nil
}

// queryBool parses an optional boolean query parameter; absent means false.
func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: query parameter %s must be a boolean", core.ErrInvalidInput, name)
	}
	return v, nil
}
