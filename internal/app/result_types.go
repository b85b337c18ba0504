package app

import "parts-warehouse/internal/core"

// PartResult is returned by part catalog operations.
type PartResult struct {
	Part *core.Part
}

// PartListResult is returned by ListParts.
type PartListResult struct {
	Parts []core.Part
}

// WarehouseListResult is returned by ListWarehouses.
type WarehouseListResult struct {
	Warehouses []core.Warehouse
}

// LocationListResult is returned by ListLocations.
type LocationListResult struct {
	Locations []core.Location
}

// StockResult is returned by GetStockLevels.
type StockResult struct {
	Levels []core.StockLevel
}

// LowStockResult is returned by ListLowStock.
type LowStockResult struct {
	Parts []core.LowStockPart
}

// RequestResult is returned by request lifecycle operations.
type RequestResult struct {
	Request      *core.PartRequest  `json:"request"`
	Reservations []core.Reservation `json:"reservations,omitempty"`
}

// RequestListResult is returned by ListRequests.
type RequestListResult struct {
	Requests []core.PartRequest
}

// BalanceResult is returned by operations that change a single balance.
type BalanceResult struct {
	Balance *core.StockBalance
}

// IssueResult is returned by issue and confirm.
type IssueResult struct {
	Document *core.IssueDocument
}

// MovementListResult is returned by ListMovements.
type MovementListResult struct {
	Movements []core.StockMovement
}

// ReconcileResult is returned by ReconcilePart. Balanced is true when the
// ledger rebuilds every balance exactly.
type ReconcileResult struct {
	PartID        int                       `json:"part_id"`
	Balanced      bool                      `json:"balanced"`
	Discrepancies []core.BalanceDiscrepancy `json:"discrepancies"`
}
