package app

import (
	"context"

	"parts-warehouse/internal/core"
)

// Actor identifies who performs an operation and in which tenant.
// Adapters derive it from the JWT (web) or from flags (CLI).
type Actor struct {
	TenantID int
	UserID   int
}

// ApplicationService is the single interface all adapters (CLI, Web) call.
// It decouples presentation from business logic. Implementations must contain
// no display logic of any kind.
type ApplicationService interface {
	// CreatePart adds a catalog part.
	CreatePart(ctx context.Context, req CreatePartRequest) (*PartResult, error)

	// UpdatePartThresholds changes a part's minimum and reorder levels.
	UpdatePartThresholds(ctx context.Context, req UpdateThresholdsRequest) (*PartResult, error)

	// DeactivatePart hides a part from new requests and receipts.
	DeactivatePart(ctx context.Context, tenantID, partID int) (*PartResult, error)

	// ListParts returns the tenant's parts, active ones only unless includeInactive.
	ListParts(ctx context.Context, tenantID int, includeInactive bool) (*PartListResult, error)

	CreateWarehouse(ctx context.Context, req CreateWarehouseRequest) (*core.Warehouse, error)
	ListWarehouses(ctx context.Context, tenantID int) (*WarehouseListResult, error)
	CreateLocation(ctx context.Context, req CreateLocationRequest) (*core.Location, error)
	ListLocations(ctx context.Context, tenantID, warehouseID int) (*LocationListResult, error)

	// GetStockLevels returns per-lot balances matching the filter.
	GetStockLevels(ctx context.Context, tenantID int, filter core.BalanceFilter) (*StockResult, error)

	// ListLowStock returns parts whose available stock is below their reorder level.
	ListLowStock(ctx context.Context, tenantID int) (*LowStockResult, error)

	// CreateRequest stores a new DRAFT part request owned by the actor.
	CreateRequest(ctx context.Context, req CreatePartRequestRequest) (*RequestResult, error)

	// GetRequest returns a request by numeric ID or PR number.
	GetRequest(ctx context.Context, tenantID int, ref string) (*RequestResult, error)

	// ListRequests returns requests newest first. An empty status means all.
	ListRequests(ctx context.Context, tenantID int, status string) (*RequestListResult, error)

	// SubmitRequest, ApproveRequest, CancelRequest and CloseRequest drive the
	// request lifecycle. ref may be a numeric ID or a PR number.
	SubmitRequest(ctx context.Context, actor Actor, ref string) (*RequestResult, error)
	ApproveRequest(ctx context.Context, actor Actor, ref string) (*RequestResult, error)
	CancelRequest(ctx context.Context, actor Actor, ref string) (*RequestResult, error)
	CloseRequest(ctx context.Context, actor Actor, ref string) (*RequestResult, error)

	// ReceiveStock books a goods receipt into a location as a new lot.
	ReceiveStock(ctx context.Context, req ReceiveStockRequest) (*BalanceResult, error)

	// ReserveRequest allocates stock FIFO to the request's outstanding lines.
	ReserveRequest(ctx context.Context, req ReserveRequest) (*RequestResult, error)

	// ReleaseReservations drops every reservation of the request.
	ReleaseReservations(ctx context.Context, actor Actor, ref string) (*RequestResult, error)

	// IssueRequest consumes the request's reservations into a goods issue document.
	IssueRequest(ctx context.Context, actor Actor, ref string) (*IssueResult, error)

	// ConfirmIssue records the recipient's acknowledgment of an issue document.
	ConfirmIssue(ctx context.Context, actor Actor, documentID int) (*IssueResult, error)

	GetIssueDocument(ctx context.Context, tenantID, documentID int) (*IssueResult, error)

	// TransferStock moves part of a balance to another location, keeping the lot.
	TransferStock(ctx context.Context, req TransferStockRequest) (*core.TransferResult, error)

	// ReturnStock puts issued units back on the shelf.
	ReturnStock(ctx context.Context, req ReturnStockRequest) (*BalanceResult, error)

	// AdjustStock corrects a balance after a physical count.
	AdjustStock(ctx context.Context, req AdjustStockRequest) (*BalanceResult, error)

	// ListMovements returns ledger entries newest first.
	ListMovements(ctx context.Context, tenantID int, filter core.MovementFilter) (*MovementListResult, error)

	// ReconcilePart compares a part's balances against its movement ledger.
	ReconcilePart(ctx context.Context, tenantID, partID int) (*ReconcileResult, error)
}
