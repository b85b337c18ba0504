package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"parts-warehouse/internal/app"
	"parts-warehouse/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testSecret = "test-secret"

// fakeService records the last call it saw. Methods the tests do not
// exercise panic through the nil embedded interface.
type fakeService struct {
	app.ApplicationService
	err          error
	lastActor    app.Actor
	lastRef      string
	lastCreate   app.CreatePartRequestRequest
	lastReserve  app.ReserveRequest
	lastStockFlt core.BalanceFilter
}

func (f *fakeService) CreateRequest(_ context.Context, req app.CreatePartRequestRequest) (*app.RequestResult, error) {
	f.lastCreate = req
	if f.err != nil {
		return nil, f.err
	}
	return &app.RequestResult{Request: &core.PartRequest{ID: 1, RequestNumber: "PR-00001", Status: core.RequestDraft}}, nil
}

func (f *fakeService) SubmitRequest(_ context.Context, actor app.Actor, ref string) (*app.RequestResult, error) {
	f.lastActor, f.lastRef = actor, ref
	if f.err != nil {
		return nil, f.err
	}
	return &app.RequestResult{Request: &core.PartRequest{ID: 1, Status: core.RequestSubmitted}}, nil
}

func (f *fakeService) ReserveRequest(_ context.Context, req app.ReserveRequest) (*app.RequestResult, error) {
	f.lastReserve = req
	if f.err != nil {
		return nil, f.err
	}
	return &app.RequestResult{Request: &core.PartRequest{ID: 1, Status: core.RequestReserved}}, nil
}

func (f *fakeService) GetStockLevels(_ context.Context, _ int, filter core.BalanceFilter) (*app.StockResult, error) {
	f.lastStockFlt = filter
	return &app.StockResult{}, f.err
}

func (f *fakeService) ConfirmIssue(_ context.Context, actor app.Actor, _ int) (*app.IssueResult, error) {
	f.lastActor = actor
	if f.err != nil {
		return nil, f.err
	}
	return &app.IssueResult{Document: &core.IssueDocument{ID: 5, Status: core.IssueDocumentConfirmed}}, nil
}

func newTestServer(t *testing.T) (*fakeService, http.Handler) {
	t.Helper()
	svc := &fakeService{}
	return svc, NewHandler(svc, zaptest.NewLogger(t), "https://fleet.example", testSecret)
}

func token(t *testing.T, userID, tenantID int) string {
	t.Helper()
	tok, err := IssueToken(testSecret, userID, tenantID, "clerk", time.Hour)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, h http.Handler, method, path, body, tok string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestHealthIsPublic(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAuthRequired(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/api/v1/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged, err := IssueToken("other-secret", 1, 1, "clerk", time.Hour)
	require.NoError(t, err)
	rec = do(t, h, http.MethodGet, "/api/v1/me", "", forged)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := IssueToken(testSecret, 1, 1, "clerk", -time.Minute)
	require.NoError(t, err)
	rec = do(t, h, http.MethodGet, "/api/v1/me", "", expired)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	noTenant, err := IssueToken(testSecret, 1, 0, "clerk", time.Hour)
	require.NoError(t, err)
	rec = do(t, h, http.MethodGet, "/api/v1/me", "", noTenant)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/me", "", token(t, 7, 3))
	require.Equal(t, http.StatusOK, rec.Code)
	var me struct {
		UserID   int `json:"user_id"`
		TenantID int `json:"tenant_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, 7, me.UserID)
	assert.Equal(t, 3, me.TenantID)
}

func TestCreateRequestUsesCallerAsRequester(t *testing.T) {
	svc, h := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/api/v1/requests",
		`{"vehicle_ref":"TRK-1","driver_id":9,"lines":[{"part_id":4,"quantity":"2.5"}]}`, token(t, 7, 3))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, app.Actor{TenantID: 3, UserID: 7}, svc.lastCreate.Actor)
	require.Len(t, svc.lastCreate.Lines, 1)
	assert.Equal(t, "2.5", svc.lastCreate.Lines[0].Quantity.String())
	require.NotNil(t, svc.lastCreate.DriverID)
	assert.Equal(t, 9, *svc.lastCreate.DriverID)
}

func TestReserveAcceptsEmptyBody(t *testing.T) {
	svc, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/v1/requests/PR-00001/reserve", "", token(t, 7, 3))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "PR-00001", svc.lastReserve.RequestRef)
	assert.Nil(t, svc.lastReserve.WarehouseID)
	assert.False(t, svc.lastReserve.AllowPartial)

	rec = do(t, h, http.MethodPost, "/api/v1/requests/12/reserve", `{"warehouse_id":2,"allow_partial":true}`, token(t, 7, 3))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.lastReserve.WarehouseID)
	assert.Equal(t, 2, *svc.lastReserve.WarehouseID)
	assert.True(t, svc.lastReserve.AllowPartial)

	rec = do(t, h, http.MethodPost, "/api/v1/requests/12/reserve", `{"allow_partial":`, token(t, 7, 3))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServiceErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{core.ErrInvalidQuantity, http.StatusBadRequest, "INVALID_QUANTITY"},
		{core.ErrLocationWarehouseMismatch, http.StatusBadRequest, "LOCATION_WAREHOUSE_MISMATCH"},
		{core.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{core.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{core.ErrInvalidState, http.StatusConflict, "INVALID_STATE"},
		{core.ErrInsufficientStock, http.StatusConflict, "INSUFFICIENT_STOCK"},
		{core.ErrInsufficientAvailableStock, http.StatusConflict, "INSUFFICIENT_AVAILABLE_STOCK"},
		{core.ErrLockTimeout, http.StatusConflict, "LOCK_TIMEOUT"},
		{core.ErrInconsistentState, http.StatusInternalServerError, "INTERNAL_ERROR"},
		{fmt.Errorf("connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	svc, h := newTestServer(t)
	for _, tc := range cases {
		svc.err = fmt.Errorf("submit: %w", tc.err)
		rec := do(t, h, http.MethodPost, "/api/v1/requests/PR-00001/submit", "", token(t, 7, 3))
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())

		var body errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.code, body.Code)
		assert.NotEmpty(t, body.RequestID)
		if tc.status == http.StatusInternalServerError {
			assert.Equal(t, "internal server error", body.Error, "internal details are not leaked")
		}
	}
}

func TestConfirmPassesRecipientIdentity(t *testing.T) {
	svc, h := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/api/v1/issue-documents/5/confirm", "", token(t, 300, 1))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, app.Actor{TenantID: 1, UserID: 300}, svc.lastActor)

	rec = do(t, h, http.MethodPost, "/api/v1/issue-documents/abc/confirm", "", token(t, 300, 1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStockQueryParams(t *testing.T) {
	svc, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/api/v1/stock?part_id=4&warehouse_id=2&available=true", "", token(t, 7, 3))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.lastStockFlt.PartID)
	assert.Equal(t, 4, *svc.lastStockFlt.PartID)
	assert.Equal(t, 2, *svc.lastStockFlt.WarehouseID)
	assert.Nil(t, svc.lastStockFlt.LocationID)
	assert.True(t, svc.lastStockFlt.OnlyAvailable)

	rec = do(t, h, http.MethodGet, "/api/v1/stock?part_id=x", "", token(t, 7, 3))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBodyLimit(t *testing.T) {
	_, h := newTestServer(t)
	big := `{"notes":"` + strings.Repeat("x", 2<<20) + `"}`
	rec := do(t, h, http.MethodPost, "/api/v1/requests", big, token(t, 7, 3))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCORS(t *testing.T) {
	_, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/requests", nil)
	req.Header.Set("Origin", "https://fleet.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://fleet.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecovererReturns500(t *testing.T) {
	_, h := newTestServer(t)
	// ListParts is not implemented by the fake, so the nil embedded interface panics.
	rec := do(t, h, http.MethodGet, "/api/v1/parts", "", token(t, 7, 3))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
