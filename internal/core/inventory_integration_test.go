package core_test

import (
	"testing"
	"time"

	"parts-warehouse/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ── Receive ───────────────────────────────────────────────────────────────────

func TestReceiveStock_CreatesLotBalanceAndMovement(t *testing.T) {
	e := setupEnv(t)
	b := e.receive(t, partBrakePad, warehouseMain, locA, "10.5", time.Hour)

	assert.Equal(t, partBrakePad, b.PartID)
	assert.Equal(t, locA, b.LocationID)
	assert.Equal(t, warehouseMain, b.WarehouseID)
	assertDec(t, "10.5", b.OnHand)
	assertDec(t, "0", b.Reserved)
	assertDec(t, "12.5", b.UnitCost)

	moves, err := e.ledger.ListMovements(e.ctx, tenantA, core.MovementFilter{LotID: ptr(b.LotID)})
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, core.MovementReceipt, moves[0].Type)
	assert.Nil(t, moves[0].FromLocationID)
	assert.Equal(t, locA, *moves[0].ToLocationID)
	assert.Equal(t, clerkID, moves[0].ActorID)
	e.assertReconciled(t, partBrakePad)
}

func TestReceiveStock_Rejections(t *testing.T) {
	e := setupEnv(t)
	base := core.ReceiveStockInput{
		PartID: partBrakePad, WarehouseID: warehouseMain, LocationID: locA,
		Quantity: dec("1"), UnitCost: dec("1"), Currency: "EUR",
	}

	in := base
	in.Quantity = dec("-1")
	_, err := e.fulfill.ReceiveStock(e.ctx, tenantA, clerkID, in)
	assert.ErrorIs(t, err, core.ErrInvalidQuantity)

	in = base
	in.LocationID = locEast
	_, err = e.fulfill.ReceiveStock(e.ctx, tenantA, clerkID, in)
	assert.ErrorIs(t, err, core.ErrLocationWarehouseMismatch)

	in = base
	in.LocationID = locOtherTen
	_, err = e.fulfill.ReceiveStock(e.ctx, tenantA, clerkID, in)
	assert.ErrorIs(t, err, core.ErrNotFound, "location of another tenant")

	in = base
	in.PartID = partOtherTen
	_, err = e.fulfill.ReceiveStock(e.ctx, tenantA, clerkID, in)
	assert.ErrorIs(t, err, core.ErrNotFound, "part of another tenant")

	in = base
	in.PartID = partInactive
	_, err = e.fulfill.ReceiveStock(e.ctx, tenantA, clerkID, in)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	var lots int
	require.NoError(t, e.pool.QueryRow(e.ctx, "SELECT COUNT(*) FROM stock_lots").Scan(&lots))
	assert.Zero(t, lots, "rejected receipts leave nothing behind")
}

// ── Transfer ──────────────────────────────────────────────────────────────────

func TestTransferStock_MovesLotBetweenLocations(t *testing.T) {
	e := setupEnv(t)
	src := e.receive(t, partBrakePad, warehouseMain, locA, "10", time.Hour)

	res, err := e.fulfill.TransferStock(e.ctx, tenantA, clerkID, src.ID, locB, dec("4"))
	require.NoError(t, err)
	assertDec(t, "6", res.From.OnHand)
	assertDec(t, "4", res.To.OnHand)
	assert.Equal(t, src.LotID, res.To.LotID, "lot identity is preserved")
	assert.Equal(t, locB, res.To.LocationID)
	assert.NotZero(t, res.MovementID)

	// A second transfer lands on the same destination balance.
	again, err := e.fulfill.TransferStock(e.ctx, tenantA, clerkID, src.ID, locB, dec("1"))
	require.NoError(t, err)
	assert.Equal(t, res.To.ID, again.To.ID)
	assertDec(t, "5", again.To.OnHand)

	e.assertReconciled(t, partBrakePad)
}

func TestTransferStock_RespectsReservations(t *testing.T) {
	e := setupEnv(t)
	src := e.receive(t, partBrakePad, warehouseMain, locA, "10", time.Hour)
	r := e.submitted(t, nil, line(partBrakePad, "8"))
	_, err := e.fulfill.ReserveRequest(e.ctx, tenantA, clerkID, r.ID, nil, core.ReservePolicy{})
	require.NoError(t, err)

	_, err = e.fulfill.TransferStock(e.ctx, tenantA, clerkID, src.ID, locB, dec("3"))
	assert.ErrorIs(t, err, core.ErrInsufficientAvailableStock)

	_, err = e.fulfill.TransferStock(e.ctx, tenantA, clerkID, src.ID, locB, dec("2"))
	require.NoError(t, err)

	onHand, reserved := e.balance(t, src.ID)
	assertDec(t, "8", onHand)
	assertDec(t, "8", reserved)
	e.assertBalanceInvariants(t)
}

func TestTransferStock_Rejections(t *testing.T) {
	e := setupEnv(t)
	src := e.receive(t, partBrakePad, warehouseMain, locA, "10", time.Hour)

	_, err := e.fulfill.TransferStock(e.ctx, tenantA, clerkID, src.ID, locA, dec("1"))
	assert.ErrorIs(t, err, core.ErrInvalidState, "same location")

	_, err = e.fulfill.TransferStock(e.ctx, tenantA, clerkID, src.ID, locB, dec("0"))
	assert.ErrorIs(t, err, core.ErrInvalidQuantity)

	_, err = e.fulfill.TransferStock(e.ctx, tenantA, clerkID, src.ID, locOtherTen, dec("1"))
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = e.fulfill.TransferStock(e.ctx, tenantB, clerkID, src.ID, locOtherTen, dec("1"))
	assert.ErrorIs(t, err, core.ErrNotFound, "balance of another tenant")

	_, err = e.pool.Exec(e.ctx, "UPDATE locations SET is_active = false WHERE id = $1", locB)
	require.NoError(t, err)
	_, err = e.fulfill.TransferStock(e.ctx, tenantA, clerkID, src.ID, locB, dec("1"))
	assert.ErrorIs(t, err, core.ErrInvalidInput, "inactive destination")

	onHand, _ := e.balance(t, src.ID)
	assertDec(t, "10", onHand)
}

// ── Returns and adjustments ──────────────────────────────────────────────────

func TestReturnStock_RestoresIssuedLot(t *testing.T) {
	e := setupEnv(t)
	src := e.receive(t, partBrakePad, warehouseMain, locA, "10", time.Hour)
	r := e.submitted(t, nil, line(partBrakePad, "5"))
	_, err := e.fulfill.ReserveRequest(e.ctx, tenantA, clerkID, r.ID, nil, core.ReservePolicy{})
	require.NoError(t, err)
	doc, err := e.fulfill.IssueRequest(e.ctx, tenantA, clerkID, r.ID)
	require.NoError(t, err)
	issueLineID := doc.Lines[0].ID

	b, err := e.fulfill.ReturnStock(e.ctx, tenantA, clerkID, core.ReturnStockInput{IssueLineID: issueLineID, Quantity: dec("2")})
	require.NoError(t, err)
	assert.Equal(t, src.ID, b.ID, "defaults to the original balance")
	assertDec(t, "7", b.OnHand)

	b, err = e.fulfill.ReturnStock(e.ctx, tenantA, clerkID, core.ReturnStockInput{IssueLineID: issueLineID, LocationID: locB, Quantity: dec("3")})
	require.NoError(t, err)
	assert.Equal(t, locB, b.LocationID)
	assert.Equal(t, src.LotID, b.LotID)

	_, err = e.fulfill.ReturnStock(e.ctx, tenantA, clerkID, core.ReturnStockInput{IssueLineID: issueLineID, Quantity: dec("0.001")})
	assert.ErrorIs(t, err, core.ErrInvalidQuantity, "cannot return more than was issued")

	_, err = e.fulfill.ReturnStock(e.ctx, tenantB, clerkID, core.ReturnStockInput{IssueLineID: issueLineID, Quantity: dec("1")})
	assert.ErrorIs(t, err, core.ErrNotFound)

	r, err = e.requests.GetRequest(e.ctx, tenantA, r.ID)
	require.NoError(t, err)
	assertDec(t, "5", r.Lines[0].QuantityIssued, "returns do not rewrite the request")
	e.assertReconciled(t, partBrakePad)
}

func TestAdjustStock(t *testing.T) {
	e := setupEnv(t)
	b := e.receive(t, partBrakePad, warehouseMain, locA, "10", time.Hour)
	r := e.submitted(t, nil, line(partBrakePad, "6"))
	_, err := e.fulfill.ReserveRequest(e.ctx, tenantA, clerkID, r.ID, nil, core.ReservePolicy{})
	require.NoError(t, err)

	adj, err := e.fulfill.AdjustStock(e.ctx, tenantA, clerkID, core.AdjustStockInput{BalanceID: b.ID, Delta: dec("-3"), Reason: "cycle count"})
	require.NoError(t, err)
	assertDec(t, "7", adj.OnHand)

	_, err = e.fulfill.AdjustStock(e.ctx, tenantA, clerkID, core.AdjustStockInput{BalanceID: b.ID, Delta: dec("-2"), Reason: "cycle count"})
	assert.ErrorIs(t, err, core.ErrInsufficientAvailableStock, "reserved units cannot be written off")

	adj, err = e.fulfill.AdjustStock(e.ctx, tenantA, clerkID, core.AdjustStockInput{BalanceID: b.ID, Delta: dec("0.5"), Reason: "found"})
	require.NoError(t, err)
	assertDec(t, "7.5", adj.OnHand)

	_, err = e.fulfill.AdjustStock(e.ctx, tenantA, clerkID, core.AdjustStockInput{BalanceID: b.ID, Delta: dec("0"), Reason: "noop"})
	assert.ErrorIs(t, err, core.ErrInvalidQuantity)
	_, err = e.fulfill.AdjustStock(e.ctx, tenantA, clerkID, core.AdjustStockInput{BalanceID: b.ID, Delta: dec("1")})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = e.fulfill.AdjustStock(e.ctx, tenantA, clerkID, core.AdjustStockInput{BalanceID: 9999, Delta: dec("1"), Reason: "x"})
	assert.ErrorIs(t, err, core.ErrNotFound)

	adjustments := core.MovementAdjustment
	moves, err := e.ledger.ListMovements(e.ctx, tenantA, core.MovementFilter{Type: &adjustments})
	require.NoError(t, err)
	require.Len(t, moves, 2)
	assert.NotNil(t, moves[0].ToLocationID, "positive delta adds to the location")
	assert.NotNil(t, moves[1].FromLocationID, "negative delta removes from the location")
	e.assertReconciled(t, partBrakePad)
	e.assertBalanceInvariants(t)
}

// ── Catalog ───────────────────────────────────────────────────────────────────

func TestCatalog_PartsWarehousesLocations(t *testing.T) {
	e := setupEnv(t)

	p, err := e.catalog.CreatePart(e.ctx, tenantA, core.CreatePartInput{SKU: " WPR-BLD ", Name: "Wiper blade", ReorderLevel: dec("4")})
	require.NoError(t, err)
	assert.Equal(t, "WPR-BLD", p.SKU)
	assert.Equal(t, "unit", p.Unit)
	assert.True(t, p.IsActive)

	_, err = e.catalog.CreatePart(e.ctx, tenantA, core.CreatePartInput{SKU: "WPR-BLD", Name: "dup"})
	assert.ErrorIs(t, err, core.ErrDuplicate)
	_, err = e.catalog.CreatePart(e.ctx, tenantB, core.CreatePartInput{SKU: "WPR-BLD", Name: "Wiper blade"})
	assert.NoError(t, err, "sku uniqueness is per tenant")
	_, err = e.catalog.CreatePart(e.ctx, tenantA, core.CreatePartInput{SKU: "X", Name: "x", MinLevel: dec("-1")})
	assert.ErrorIs(t, err, core.ErrInvalidQuantity)

	p, err = e.catalog.DeactivatePart(e.ctx, tenantA, p.ID)
	require.NoError(t, err)
	assert.False(t, p.IsActive)

	active, err := e.catalog.ListParts(e.ctx, tenantA, false)
	require.NoError(t, err)
	all, err := e.catalog.ListParts(e.ctx, tenantA, true)
	require.NoError(t, err)
	assert.Len(t, active, 2)
	assert.Len(t, all, 4)

	w, err := e.catalog.CreateWarehouse(e.ctx, tenantA, "NORTH", "North Depot")
	require.NoError(t, err)
	_, err = e.catalog.CreateWarehouse(e.ctx, tenantA, "NORTH", "again")
	assert.ErrorIs(t, err, core.ErrDuplicate)

	loc, err := e.catalog.CreateLocation(e.ctx, tenantA, w.ID, "N-01", "North shelf")
	require.NoError(t, err)
	assert.Equal(t, w.ID, loc.WarehouseID)
	_, err = e.catalog.CreateLocation(e.ctx, tenantB, w.ID, "N-02", "")
	assert.ErrorIs(t, err, core.ErrNotFound)

	locs, err := e.catalog.ListLocations(e.ctx, tenantA, w.ID)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, "N-01", locs[0].Code)
}

func TestCatalog_StockBalancesAndLowStock(t *testing.T) {
	e := setupEnv(t)
	e.receive(t, partBrakePad, warehouseMain, locA, "3", 2*time.Hour)
	e.receive(t, partBrakePad, warehouseEast, locEast, "1", time.Hour)
	e.receive(t, partFilter, warehouseMain, locB, "2", time.Hour)

	all, err := e.catalog.ListStockBalances(e.ctx, tenantA, core.BalanceFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mainPads, err := e.catalog.ListStockBalances(e.ctx, tenantA, core.BalanceFilter{WarehouseID: ptr(warehouseMain), PartID: ptr(partBrakePad)})
	require.NoError(t, err)
	require.Len(t, mainPads, 1)
	assert.Equal(t, "BRK-PAD-01", mainPads[0].SKU)
	assert.Equal(t, "A-01", mainPads[0].LocationCode)
	assertDec(t, "3", mainPads[0].Available)

	low, err := e.catalog.ListLowStockParts(e.ctx, tenantA)
	require.NoError(t, err)
	require.Len(t, low, 1, "4 brake pads are below the reorder level of 5")
	assert.Equal(t, partBrakePad, low[0].PartID)
	assertDec(t, "4", low[0].Available)

	updated, err := e.catalog.UpdatePartThresholds(e.ctx, tenantA, partBrakePad, dec("1"), dec("2"))
	require.NoError(t, err)
	assertDec(t, "2", updated.ReorderLevel)
	low, err = e.catalog.ListLowStockParts(e.ctx, tenantA)
	require.NoError(t, err)
	assert.Empty(t, low)

	_, err = e.catalog.UpdatePartThresholds(e.ctx, tenantA, partBrakePad, dec("3"), dec("2"))
	assert.ErrorIs(t, err, core.ErrInvalidInput, "minimum above reorder level")
}
