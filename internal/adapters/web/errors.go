package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"parts-warehouse/internal/core"

	"go.uber.org/zap"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus writes a JSON response with the given status.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorMapping pairs a core error kind with its HTTP status and code.
type errorMapping struct {
	kind   error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{core.ErrInvalidQuantity, http.StatusBadRequest, "INVALID_QUANTITY"},
	{core.ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
	{core.ErrLocationWarehouseMismatch, http.StatusBadRequest, "LOCATION_WAREHOUSE_MISMATCH"},
	{core.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{core.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{core.ErrInvalidState, http.StatusConflict, "INVALID_STATE"},
	{core.ErrInsufficientStock, http.StatusConflict, "INSUFFICIENT_STOCK"},
	{core.ErrInsufficientAvailableStock, http.StatusConflict, "INSUFFICIENT_AVAILABLE_STOCK"},
	{core.ErrLockTimeout, http.StatusConflict, "LOCK_TIMEOUT"},
	{core.ErrDuplicate, http.StatusConflict, "DUPLICATE"},
}

// writeServiceError maps a service error onto its HTTP status. Unknown
// errors and ErrInconsistentState become 500 with a generic message and are
// logged with the request id.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.kind) {
			writeError(w, r, err.Error(), m.code, m.status)
			return
		}
	}
	h.log.Error("request failed", zap.Error(err),
		zap.String("method", r.Method), zap.String("path", r.URL.Path),
		zap.String("request_id", requestIDFromContext(r.Context())))
	writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
}
