package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"parts-warehouse/internal/core"
)

type appService struct {
	catalog  core.CatalogService
	requests core.RequestService
	fulfill  core.FulfillmentService
	ledger   core.LedgerService
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	catalog core.CatalogService,
	requests core.RequestService,
	fulfill core.FulfillmentService,
	ledger core.LedgerService,
) ApplicationService {
	return &appService{
		catalog:  catalog,
		requests: requests,
		fulfill:  fulfill,
		ledger:   ledger,
	}
}

// ── Catalog ──────────────────────────────────────────────────────────────────

func (s *appService) CreatePart(ctx context.Context, req CreatePartRequest) (*PartResult, error) {
	p, err := s.catalog.CreatePart(ctx, req.TenantID, core.CreatePartInput{
		SKU:          req.SKU,
		Name:         req.Name,
		Unit:         req.Unit,
		MinLevel:     req.MinLevel,
		ReorderLevel: req.ReorderLevel,
	})
	if err != nil {
		return nil, err
	}
	return &PartResult{Part: p}, nil
}

func (s *appService) UpdatePartThresholds(ctx context.Context, req UpdateThresholdsRequest) (*PartResult, error) {
	p, err := s.catalog.UpdatePartThresholds(ctx, req.TenantID, req.PartID, req.MinLevel, req.ReorderLevel)
	if err != nil {
		return nil, err
	}
	return &PartResult{Part: p}, nil
}

func (s *appService) DeactivatePart(ctx context.Context, tenantID, partID int) (*PartResult, error) {
	p, err := s.catalog.DeactivatePart(ctx, tenantID, partID)
	if err != nil {
		return nil, err
	}
	return &PartResult{Part: p}, nil
}

func (s *appService) ListParts(ctx context.Context, tenantID int, includeInactive bool) (*PartListResult, error) {
	parts, err := s.catalog.ListParts(ctx, tenantID, includeInactive)
	if err != nil {
		return nil, err
	}
	return &PartListResult{Parts: parts}, nil
}

func (s *appService) CreateWarehouse(ctx context.Context, req CreateWarehouseRequest) (*core.Warehouse, error) {
	return s.catalog.CreateWarehouse(ctx, req.TenantID, req.Code, req.Name)
}

func (s *appService) ListWarehouses(ctx context.Context, tenantID int) (*WarehouseListResult, error) {
	warehouses, err := s.catalog.ListWarehouses(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &WarehouseListResult{Warehouses: warehouses}, nil
}

func (s *appService) CreateLocation(ctx context.Context, req CreateLocationRequest) (*core.Location, error) {
	return s.catalog.CreateLocation(ctx, req.TenantID, req.WarehouseID, req.Code, req.Name)
}

func (s *appService) ListLocations(ctx context.Context, tenantID, warehouseID int) (*LocationListResult, error) {
	locations, err := s.catalog.ListLocations(ctx, tenantID, warehouseID)
	if err != nil {
		return nil, err
	}
	return &LocationListResult{Locations: locations}, nil
}

func (s *appService) GetStockLevels(ctx context.Context, tenantID int, filter core.BalanceFilter) (*StockResult, error) {
	levels, err := s.catalog.ListStockBalances(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	return &StockResult{Levels: levels}, nil
}

func (s *appService) ListLowStock(ctx context.Context, tenantID int) (*LowStockResult, error) {
	parts, err := s.catalog.ListLowStockParts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &LowStockResult{Parts: parts}, nil
}

// ── Requests ─────────────────────────────────────────────────────────────────

func (s *appService) CreateRequest(ctx context.Context, req CreatePartRequestRequest) (*RequestResult, error) {
	lines := make([]core.RequestLineInput, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = core.RequestLineInput{PartID: l.PartID, Quantity: l.Quantity}
	}
	r, err := s.requests.CreateRequest(ctx, req.Actor.TenantID, req.Actor.UserID, core.CreateRequestInput{
		DriverID:   req.DriverID,
		VehicleRef: req.VehicleRef,
		Notes:      req.Notes,
		Lines:      lines,
	})
	if err != nil {
		return nil, err
	}
	return &RequestResult{Request: r}, nil
}

func (s *appService) GetRequest(ctx context.Context, tenantID int, ref string) (*RequestResult, error) {
	r, err := s.resolveRequest(ctx, tenantID, ref)
	if err != nil {
		return nil, err
	}
	reservations, err := s.fulfill.ListReservations(ctx, tenantID, r.ID)
	if err != nil {
		return nil, err
	}
	return &RequestResult{Request: r, Reservations: reservations}, nil
}

func (s *appService) ListRequests(ctx context.Context, tenantID int, status string) (*RequestListResult, error) {
	var filter *core.RequestStatus
	if status != "" {
		st, err := core.ParseRequestStatus(strings.ToUpper(status))
		if err != nil {
			return nil, err
		}
		filter = &st
	}
	requests, err := s.requests.ListRequests(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	return &RequestListResult{Requests: requests}, nil
}

// lifecycleOp is the shape shared by the request lifecycle methods.
type lifecycleOp func(ctx context.Context, tenantID, actorID, requestID int) (*core.PartRequest, error)

func (s *appService) runLifecycle(ctx context.Context, actor Actor, ref string, op lifecycleOp) (*RequestResult, error) {
	r, err := s.resolveRequest(ctx, actor.TenantID, ref)
	if err != nil {
		return nil, err
	}
	updated, err := op(ctx, actor.TenantID, actor.UserID, r.ID)
	if err != nil {
		return nil, err
	}
	return &RequestResult{Request: updated}, nil
}

func (s *appService) SubmitRequest(ctx context.Context, actor Actor, ref string) (*RequestResult, error) {
	return s.runLifecycle(ctx, actor, ref, s.requests.SubmitRequest)
}

func (s *appService) ApproveRequest(ctx context.Context, actor Actor, ref string) (*RequestResult, error) {
	return s.runLifecycle(ctx, actor, ref, s.requests.ApproveRequest)
}

func (s *appService) CancelRequest(ctx context.Context, actor Actor, ref string) (*RequestResult, error) {
	return s.runLifecycle(ctx, actor, ref, s.requests.CancelRequest)
}

func (s *appService) CloseRequest(ctx context.Context, actor Actor, ref string) (*RequestResult, error) {
	return s.runLifecycle(ctx, actor, ref, s.requests.CloseRequest)
}

// ── Fulfillment ──────────────────────────────────────────────────────────────

func (s *appService) ReceiveStock(ctx context.Context, req ReceiveStockRequest) (*BalanceResult, error) {
	b, err := s.fulfill.ReceiveStock(ctx, req.Actor.TenantID, req.Actor.UserID, core.ReceiveStockInput{
		PartID:      req.PartID,
		WarehouseID: req.WarehouseID,
		LocationID:  req.LocationID,
		Quantity:    req.Quantity,
		UnitCost:    req.UnitCost,
		Currency:    strings.ToUpper(strings.TrimSpace(req.Currency)),
		Supplier:    req.Supplier,
		ReceivedAt:  req.ReceivedAt,
		ExpiresAt:   req.ExpiresAt,
		Reference:   req.Reference,
	})
	if err != nil {
		return nil, err
	}
	return &BalanceResult{Balance: b}, nil
}

func (s *appService) ReserveRequest(ctx context.Context, req ReserveRequest) (*RequestResult, error) {
	r, err := s.resolveRequest(ctx, req.Actor.TenantID, req.RequestRef)
	if err != nil {
		return nil, err
	}
	updated, err := s.fulfill.ReserveRequest(ctx, req.Actor.TenantID, req.Actor.UserID, r.ID,
		req.WarehouseID, core.ReservePolicy{AllowPartial: req.AllowPartial})
	if err != nil {
		return nil, err
	}
	reservations, err := s.fulfill.ListReservations(ctx, req.Actor.TenantID, r.ID)
	if err != nil {
		return nil, err
	}
	return &RequestResult{Request: updated, Reservations: reservations}, nil
}

func (s *appService) ReleaseReservations(ctx context.Context, actor Actor, ref string) (*RequestResult, error) {
	return s.runLifecycle(ctx, actor, ref, s.fulfill.ReleaseReservations)
}

func (s *appService) IssueRequest(ctx context.Context, actor Actor, ref string) (*IssueResult, error) {
	r, err := s.resolveRequest(ctx, actor.TenantID, ref)
	if err != nil {
		return nil, err
	}
	doc, err := s.fulfill.IssueRequest(ctx, actor.TenantID, actor.UserID, r.ID)
	if err != nil {
		return nil, err
	}
	return &IssueResult{Document: doc}, nil
}

func (s *appService) ConfirmIssue(ctx context.Context, actor Actor, documentID int) (*IssueResult, error) {
	doc, err := s.fulfill.ConfirmIssueDocument(ctx, actor.TenantID, actor.UserID, documentID)
	if err != nil {
		return nil, err
	}
	return &IssueResult{Document: doc}, nil
}

func (s *appService) GetIssueDocument(ctx context.Context, tenantID, documentID int) (*IssueResult, error) {
	doc, err := s.fulfill.GetIssueDocument(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	return &IssueResult{Document: doc}, nil
}

func (s *appService) TransferStock(ctx context.Context, req TransferStockRequest) (*core.TransferResult, error) {
	return s.fulfill.TransferStock(ctx, req.Actor.TenantID, req.Actor.UserID,
		req.BalanceID, req.DestinationLocationID, req.Quantity)
}

func (s *appService) ReturnStock(ctx context.Context, req ReturnStockRequest) (*BalanceResult, error) {
	b, err := s.fulfill.ReturnStock(ctx, req.Actor.TenantID, req.Actor.UserID, core.ReturnStockInput{
		IssueLineID: req.IssueLineID,
		LocationID:  req.LocationID,
		Quantity:    req.Quantity,
		Reference:   req.Reference,
	})
	if err != nil {
		return nil, err
	}
	return &BalanceResult{Balance: b}, nil
}

func (s *appService) AdjustStock(ctx context.Context, req AdjustStockRequest) (*BalanceResult, error) {
	b, err := s.fulfill.AdjustStock(ctx, req.Actor.TenantID, req.Actor.UserID, core.AdjustStockInput{
		BalanceID: req.BalanceID,
		Delta:     req.Delta,
		Reason:    strings.TrimSpace(req.Reason),
	})
	if err != nil {
		return nil, err
	}
	return &BalanceResult{Balance: b}, nil
}

// ── Ledger ───────────────────────────────────────────────────────────────────

func (s *appService) ListMovements(ctx context.Context, tenantID int, filter core.MovementFilter) (*MovementListResult, error) {
	movements, err := s.ledger.ListMovements(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	return &MovementListResult{Movements: movements}, nil
}

func (s *appService) ReconcilePart(ctx context.Context, tenantID, partID int) (*ReconcileResult, error) {
	diffs, err := s.ledger.ReconcilePart(ctx, tenantID, partID)
	if err != nil {
		return nil, err
	}
	return &ReconcileResult{PartID: partID, Balanced: len(diffs) == 0, Discrepancies: diffs}, nil
}

// resolveRequest accepts either a numeric request ID or a PR number.
func (s *appService) resolveRequest(ctx context.Context, tenantID int, ref string) (*core.PartRequest, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: request reference is required", core.ErrInvalidInput)
	}
	if id, err := strconv.Atoi(ref); err == nil {
		return s.requests.GetRequest(ctx, tenantID, id)
	}
	return s.requests.GetRequestByNumber(ctx, tenantID, strings.ToUpper(ref))
}
