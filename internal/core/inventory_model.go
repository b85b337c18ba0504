package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Part is a catalog item that can be stocked. Parts are never deleted once
// referenced by movements; IsActive=false soft-deactivates them.
type Part struct {
	ID           int             `json:"id"`
	TenantID     int             `json:"tenant_id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	MinLevel     decimal.Decimal `json:"min_level"`
	ReorderLevel decimal.Decimal `json:"reorder_level"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Warehouse is a physical site holding one or more locations.
type Warehouse struct {
	ID        int       `json:"id"`
	TenantID  int       `json:"tenant_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Location is a bin/shelf inside exactly one warehouse.
type Location struct {
	ID          int       `json:"id"`
	TenantID    int       `json:"tenant_id"`
	WarehouseID int       `json:"warehouse_id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// StockLot is one receipt batch of a part. Immutable once created: the cost
// basis travels with the lot through transfers and into issues.
type StockLot struct {
	ID         int             `json:"id"`
	TenantID   int             `json:"tenant_id"`
	PartID     int             `json:"part_id"`
	Supplier   string          `json:"supplier"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	Currency   string          `json:"currency"`
	ReceivedAt time.Time       `json:"received_at"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty"`
}

// StockBalance is the materialized quantity for one (part, location, lot).
// Lot and location attributes are joined in so the allocator can order
// candidates without further lookups.
type StockBalance struct {
	ID            int             `json:"id"`
	TenantID      int             `json:"tenant_id"`
	PartID        int             `json:"part_id"`
	LocationID    int             `json:"location_id"`
	WarehouseID   int             `json:"warehouse_id"`
	LotID         int             `json:"lot_id"`
	LotReceivedAt time.Time       `json:"lot_received_at"`
	LotExpiresAt  *time.Time      `json:"lot_expires_at,omitempty"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	OnHand        decimal.Decimal `json:"quantity_on_hand"`
	Reserved      decimal.Decimal `json:"quantity_reserved"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Available is on-hand minus reserved.
func (b StockBalance) Available() decimal.Decimal {
	return b.OnHand.Sub(b.Reserved)
}

// StockLevel is a read view of a balance joined with catalog codes.
type StockLevel struct {
	BalanceID     int             `json:"balance_id"`
	PartID        int             `json:"part_id"`
	SKU           string          `json:"sku"`
	PartName      string          `json:"part_name"`
	WarehouseID   int             `json:"warehouse_id"`
	WarehouseCode string          `json:"warehouse_code"`
	LocationID    int             `json:"location_id"`
	LocationCode  string          `json:"location_code"`
	LotID         int             `json:"lot_id"`
	ReceivedAt    time.Time       `json:"received_at"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	Currency      string          `json:"currency"`
	OnHand        decimal.Decimal `json:"quantity_on_hand"`
	Reserved      decimal.Decimal `json:"quantity_reserved"`
	Available     decimal.Decimal `json:"quantity_available"` // = OnHand - Reserved
}

// BalanceFilter narrows ListStockBalances. Nil fields are unconstrained.
type BalanceFilter struct {
	PartID        *int
	WarehouseID   *int
	LocationID    *int
	OnlyAvailable bool
}

// LowStockPart is a part whose available quantity has dropped below its reorder level.
type LowStockPart struct {
	PartID       int             `json:"part_id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Available    decimal.Decimal `json:"quantity_available"`
	MinLevel     decimal.Decimal `json:"min_level"`
	ReorderLevel decimal.Decimal `json:"reorder_level"`
}

// MovementType classifies a ledger entry.
type MovementType string

const (
	MovementReceipt    MovementType = "RECEIPT"
	MovementTransfer   MovementType = "TRANSFER"
	MovementIssue      MovementType = "ISSUE"
	MovementReturn     MovementType = "RETURN"
	MovementAdjustment MovementType = "ADJUSTMENT"
)

// StockMovement is an append-only ledger row. Quantity is always positive;
// ToLocationID adds to that location's balance and FromLocationID subtracts.
type StockMovement struct {
	ID               int64           `json:"id"`
	TenantID         int             `json:"tenant_id"`
	Type             MovementType    `json:"movement_type"`
	PartID           int             `json:"part_id"`
	LotID            int             `json:"lot_id"`
	FromLocationID   *int            `json:"from_location_id,omitempty"`
	ToLocationID     *int            `json:"to_location_id,omitempty"`
	Quantity         decimal.Decimal `json:"quantity"`
	UnitCostSnapshot decimal.Decimal `json:"unit_cost_snapshot"`
	Reference        string          `json:"reference"`
	IssueLineID      *int            `json:"issue_line_id,omitempty"`
	ActorID          int             `json:"actor_id"`
	CreatedAt        time.Time       `json:"created_at"`
}

// MovementFilter narrows ListMovements. Limit <= 0 means the default page size.
type MovementFilter struct {
	PartID     *int
	LotID      *int
	LocationID *int
	Type       *MovementType
	Limit      int
}

// BalanceDiscrepancy reports a (location, lot) whose materialized on-hand
// differs from the quantity reconstructed from the ledger.
type BalanceDiscrepancy struct {
	PartID     int             `json:"part_id"`
	LocationID int             `json:"location_id"`
	LotID      int             `json:"lot_id"`
	BalanceQty decimal.Decimal `json:"balance_quantity"`
	LedgerQty  decimal.Decimal `json:"ledger_quantity"`
}

// ReceiveStockInput describes a goods receipt into one location.
// ReceivedAt defaults to now; Currency is an ISO 4217 code.
type ReceiveStockInput struct {
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

// TransferResult is returned by TransferStock.
type TransferResult struct {
	From       StockBalance    `json:"from_balance"`
	To         StockBalance    `json:"to_balance"`
	Quantity   decimal.Decimal `json:"quantity"`
	MovementID int64           `json:"movement_id"`
}

// ReturnStockInput puts previously issued units back on the shelf, in the
// same lot they left from.
type ReturnStockInput struct {
	IssueLineID int
	LocationID  int
	Quantity    decimal.Decimal
	Reference   string
}

// AdjustStockInput corrects a balance after a cycle count. Delta is signed.
type AdjustStockInput struct {
	BalanceID int
	Delta     decimal.Decimal
	Reason    string
}

// CreatePartInput describes a new catalog part. Unit defaults to "unit".
type CreatePartInput struct {
	SKU          string
	Name         string
	Unit         string
	MinLevel     decimal.Decimal
	ReorderLevel decimal.Decimal
}
