package app

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreatePartRequest is the input for adding a catalog part.
type CreatePartRequest struct {
	TenantID     int
	SKU          string
	Name         string
	Unit         string
	MinLevel     decimal.Decimal
	ReorderLevel decimal.Decimal
}

// UpdateThresholdsRequest is the input for UpdatePartThresholds.
type UpdateThresholdsRequest struct {
	TenantID     int
	PartID       int
	MinLevel     decimal.Decimal
	ReorderLevel decimal.Decimal
}

// CreateWarehouseRequest is the input for creating a warehouse.
type CreateWarehouseRequest struct {
	TenantID int
	Code     string
	Name     string
}

// CreateLocationRequest is the input for creating a location inside a warehouse.
type CreateLocationRequest struct {
	TenantID    int
	WarehouseID int
	Code        string
	Name        string
}

// CreatePartRequestRequest is the input for drafting a part request.
type CreatePartRequestRequest struct {
	Actor      Actor
	DriverID   *int
	VehicleRef string
	Notes      string
	Lines      []RequestLineInput
}

// RequestLineInput is a single line within a CreatePartRequestRequest.
type RequestLineInput struct {
	PartID   int
	Quantity decimal.Decimal
}

// ReceiveStockRequest is the input for recording a goods receipt.
type ReceiveStockRequest struct {
	Actor       Actor
	PartID      int
	WarehouseID int
	LocationID  int
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	Currency    string
	Supplier    string
	ReceivedAt  *time.Time
	ExpiresAt   *time.Time
	Reference   string
}

// ReserveRequest is the input for reserving stock against a request.
type ReserveRequest struct {
	Actor        Actor
	RequestRef   string
	WarehouseID  *int // nil means every warehouse of the tenant
	AllowPartial bool
}

// TransferStockRequest is the input for moving stock between locations.
type TransferStockRequest struct {
	Actor                 Actor
	BalanceID             int
	DestinationLocationID int
	Quantity              decimal.Decimal
}

// ReturnStockRequest is the input for returning issued units.
type ReturnStockRequest struct {
	Actor       Actor
	IssueLineID int
	LocationID  int // zero returns to the location the units were issued from
	Quantity    decimal.Decimal
	Reference   string
}

// AdjustStockRequest is the input for a count correction. Delta is signed.
type AdjustStockRequest struct {
	Actor     Actor
	BalanceID int
	Delta     decimal.Decimal
	Reason    string
}
