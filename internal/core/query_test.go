package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMovementQuery(t *testing.T) {
	sql, args, err := buildMovementQuery(1, MovementFilter{})
	require.NoError(t, err)
	assert.Contains(t, sql, `FROM "stock_movements"`)
	assert.Contains(t, sql, `ORDER BY "id" DESC`)
	assert.Contains(t, sql, "LIMIT")
	assert.NotContains(t, sql, " OR ")
	assert.NotEmpty(t, args)

	loc := 12
	transfer := MovementTransfer
	sql, _, err = buildMovementQuery(1, MovementFilter{LocationID: &loc, Type: &transfer, Limit: 5})
	require.NoError(t, err)
	assert.Contains(t, sql, `"from_location_id"`)
	assert.Contains(t, sql, `"to_location_id"`)
	assert.Contains(t, sql, " OR ")
	assert.Contains(t, sql, `"movement_type"`)
	assert.NotContains(t, sql, "12", "values are bound, not inlined")
}

func TestBuildStockQuery(t *testing.T) {
	sql, _, err := buildStockQuery(1, BalanceFilter{})
	require.NoError(t, err)
	assert.Contains(t, sql, `"stock_balances" AS "b"`)
	assert.NotContains(t, sql, "b.quantity_on_hand > b.quantity_reserved")

	wh := 2
	sql, _, err = buildStockQuery(1, BalanceFilter{WarehouseID: &wh, OnlyAvailable: true})
	require.NoError(t, err)
	assert.Contains(t, sql, `"loc"."warehouse_id"`)
	assert.Contains(t, sql, "b.quantity_on_hand > b.quantity_reserved")
}

func TestFormatDocumentNumber(t *testing.T) {
	assert.Equal(t, "PR-00001", formatDocumentNumber(DocTypePartRequest, 1))
	assert.Equal(t, "GI-12345", formatDocumentNumber(DocTypeGoodsIssue, 12345))
	assert.Equal(t, "GI-123456", formatDocumentNumber(DocTypeGoodsIssue, 123456))
}

func TestValidateQuantity(t *testing.T) {
	assert.NoError(t, validateQuantity(decimal.RequireFromString("0.001")))
	assert.ErrorIs(t, validateQuantity(decimal.Zero), ErrInvalidQuantity)
	assert.ErrorIs(t, validateQuantity(decimal.RequireFromString("-1")), ErrInvalidQuantity)
	assert.ErrorIs(t, validateQuantity(decimal.RequireFromString("0.0001")), ErrInvalidQuantity)
}

func TestValidateReceipt(t *testing.T) {
	ok := ReceiveStockInput{
		PartID: 1, WarehouseID: 1, LocationID: 1,
		Quantity: decimal.NewFromInt(1), UnitCost: decimal.RequireFromString("9.9900"), Currency: "EUR",
	}
	assert.NoError(t, validateReceipt(ok))

	bad := ok
	bad.Currency = "eur"
	assert.ErrorIs(t, validateReceipt(bad), ErrInvalidInput)

	bad = ok
	bad.UnitCost = decimal.RequireFromString("1.00001")
	assert.ErrorIs(t, validateReceipt(bad), ErrInvalidQuantity)

	bad = ok
	bad.LocationID = 0
	assert.ErrorIs(t, validateReceipt(bad), ErrInvalidInput)
}
