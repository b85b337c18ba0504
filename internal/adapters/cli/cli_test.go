package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"parts-warehouse/internal/app"
	"parts-warehouse/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeService records calls; methods not overridden panic through the nil embed.
type fakeService struct {
	app.ApplicationService

	reserve    app.ReserveRequest
	created    app.CreatePartRequestRequest
	warehouses []core.Warehouse
	locations  []app.CreateLocationRequest
	parts      []app.CreatePartRequest
	existing   map[string]bool
}

func (f *fakeService) ReserveRequest(_ context.Context, req app.ReserveRequest) (*app.RequestResult, error) {
	f.reserve = req
	return &app.RequestResult{
		Request:      &core.PartRequest{ID: 7, RequestNumber: "PR-00007", Status: core.RequestReserved},
		Reservations: []core.Reservation{{ID: 1, RequestID: 7, RequestLineID: 70, BalanceID: 3, Quantity: decimal.NewFromInt(2)}},
	}, nil
}

func (f *fakeService) CreateRequest(_ context.Context, req app.CreatePartRequestRequest) (*app.RequestResult, error) {
	f.created = req
	return &app.RequestResult{Request: &core.PartRequest{ID: 8, RequestNumber: "PR-00008", Status: core.RequestDraft}}, nil
}

func (f *fakeService) CreateWarehouse(_ context.Context, req app.CreateWarehouseRequest) (*core.Warehouse, error) {
	if f.existing["warehouse"] {
		return nil, core.ErrDuplicate
	}
	w := core.Warehouse{ID: 5, TenantID: req.TenantID, Code: req.Code, Name: req.Name}
	f.warehouses = append(f.warehouses, w)
	return &w, nil
}

func (f *fakeService) ListWarehouses(context.Context, int) (*app.WarehouseListResult, error) {
	return &app.WarehouseListResult{Warehouses: f.warehouses}, nil
}

func (f *fakeService) CreateLocation(_ context.Context, req app.CreateLocationRequest) (*core.Location, error) {
	if f.existing["location"] {
		return nil, core.ErrDuplicate
	}
	f.locations = append(f.locations, req)
	return &core.Location{WarehouseID: req.WarehouseID, Code: req.Code}, nil
}

func (f *fakeService) CreatePart(_ context.Context, req app.CreatePartRequest) (*app.PartResult, error) {
	f.parts = append(f.parts, req)
	return &app.PartResult{Part: &core.Part{SKU: req.SKU}}, nil
}

func newTestEnv(t *testing.T, svc app.ApplicationService, output string) *env {
	return &env{svc: svc, log: zaptest.NewLogger(t), tenantID: 1, actorID: 42, output: output}
}

func TestParseLineSpec(t *testing.T) {
	partID, qty, err := parseLineSpec("12:2.5")
	require.NoError(t, err)
	assert.Equal(t, 12, partID)
	assert.True(t, qty.Equal(decimal.RequireFromString("2.5")))

	for _, bad := range []string{"12", "x:1", "0:1", "12:abc", ":1"} {
		_, _, err := parseLineSpec(bad)
		assert.Error(t, err, bad)
	}
}

func TestDecimalValue(t *testing.T) {
	var d decimal.Decimal
	v := newDecimalValue(&d)
	require.NoError(t, v.Set("3.125"))
	assert.Equal(t, "3.125", v.String())
	assert.Equal(t, "decimal", v.Type())
	assert.Error(t, v.Set("three"))
}

func TestNeedsDatabase(t *testing.T) {
	root := NewRootCommand()
	for name, want := range map[string]bool{"token": false, "stock": true, "migrate": true} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, want, needsDatabase(cmd), name)
	}
	cmd, _, err := root.Find([]string{"request", "submit"})
	require.NoError(t, err)
	assert.True(t, needsDatabase(cmd))
}

func TestReserveCmd_PassesFlagsAndRendersJSON(t *testing.T) {
	svc := &fakeService{}
	e := newTestEnv(t, svc, "json")
	cmd := newReserveCmd(e)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"pr-00007", "--warehouse", "2", "--partial"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Equal(t, app.Actor{TenantID: 1, UserID: 42}, svc.reserve.Actor)
	assert.Equal(t, "pr-00007", svc.reserve.RequestRef)
	require.NotNil(t, svc.reserve.WarehouseID)
	assert.Equal(t, 2, *svc.reserve.WarehouseID)
	assert.True(t, svc.reserve.AllowPartial)

	var body struct {
		Request      core.PartRequest   `json:"request"`
		Reservations []core.Reservation `json:"reservations"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &body))
	assert.Equal(t, "PR-00007", body.Request.RequestNumber)
	assert.Len(t, body.Reservations, 1)
}

func TestReserveCmd_TableOutput(t *testing.T) {
	e := newTestEnv(t, &fakeService{}, "table")
	cmd := newReserveCmd(e)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"7"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "PR-00007 (id 7)")
	assert.Contains(t, out.String(), "RESERVATION")
}

func TestRequestCreateCmd_ParsesLines(t *testing.T) {
	svc := &fakeService{}
	e := newTestEnv(t, svc, "json")
	cmd := newRequestCreateCmd(e)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--line", "1:2", "--line", "4:0.5", "--driver", "31", "--vehicle", "TRK-07"})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	require.Len(t, svc.created.Lines, 2)
	assert.Equal(t, 4, svc.created.Lines[1].PartID)
	assert.True(t, svc.created.Lines[1].Quantity.Equal(decimal.RequireFromString("0.5")))
	require.NotNil(t, svc.created.DriverID)
	assert.Equal(t, 31, *svc.created.DriverID)
	assert.Equal(t, "TRK-07", svc.created.VehicleRef)
}

func TestRequestCreateCmd_RejectsBadLine(t *testing.T) {
	svc := &fakeService{}
	cmd := newRequestCreateCmd(newTestEnv(t, svc, "json"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--line", "1-2"})

	assert.Error(t, cmd.ExecuteContext(context.Background()))
	assert.Empty(t, svc.created.Lines, "service must not be called")
}

func TestSeed_CreatesCatalog(t *testing.T) {
	svc := &fakeService{}
	require.NoError(t, seed(context.Background(), svc, 3, zaptest.NewLogger(t)))

	assert.Len(t, svc.locations, len(seedCatalog.locations))
	for _, l := range svc.locations {
		assert.Equal(t, 5, l.WarehouseID)
		assert.Equal(t, 3, l.TenantID)
	}
	assert.Len(t, svc.parts, len(seedCatalog.parts))
}

func TestSeed_SkipsExisting(t *testing.T) {
	svc := &fakeService{
		warehouses: []core.Warehouse{{ID: 9, Code: "MAIN"}},
		existing:   map[string]bool{"warehouse": true, "location": true},
	}
	require.NoError(t, seed(context.Background(), svc, 1, zaptest.NewLogger(t)))
	assert.Empty(t, svc.locations)
	assert.Len(t, svc.parts, len(seedCatalog.parts))
}
