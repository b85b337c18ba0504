package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// CatalogService manages parts, warehouses and locations and answers stock queries.
type CatalogService interface {
	// Parts
	CreatePart(ctx context.Context, tenantID int, in CreatePartInput) (*Part, error)
	UpdatePartThresholds(ctx context.Context, tenantID, partID int, minLevel, reorderLevel decimal.Decimal) (*Part, error)
	// DeactivatePart hides a part from new requests. Parts are never deleted.
	DeactivatePart(ctx context.Context, tenantID, partID int) (*Part, error)
	GetPart(ctx context.Context, tenantID, partID int) (*Part, error)
	ListParts(ctx context.Context, tenantID int, includeInactive bool) ([]Part, error)

	// Sites
	CreateWarehouse(ctx context.Context, tenantID int, code, name string) (*Warehouse, error)
	ListWarehouses(ctx context.Context, tenantID int) ([]Warehouse, error)
	CreateLocation(ctx context.Context, tenantID, warehouseID int, code, name string) (*Location, error)
	ListLocations(ctx context.Context, tenantID, warehouseID int) ([]Location, error)

	// Stock queries
	ListStockBalances(ctx context.Context, tenantID int, filter BalanceFilter) ([]StockLevel, error)
	// ListLowStockParts returns active parts whose total available quantity is
	// below their reorder level.
	ListLowStockParts(ctx context.Context, tenantID int) ([]LowStockPart, error)
}

type catalogService struct {
	pool *pgxpool.Pool
}

func NewCatalogService(pool *pgxpool.Pool) CatalogService {
	return &catalogService{pool: pool}
}

// ── Parts ────────────────────────────────────────────────────────────────────

const partColumns = "id, tenant_id, sku, name, unit, min_level, reorder_level, is_active, created_at"

func scanPart(row rowScanner) (Part, error) {
	var p Part
	err := row.Scan(&p.ID, &p.TenantID, &p.SKU, &p.Name, &p.Unit, &p.MinLevel, &p.ReorderLevel, &p.IsActive, &p.CreatedAt)
	return p, err
}

func validateThresholds(minLevel, reorderLevel decimal.Decimal) error {
	if minLevel.IsNegative() || reorderLevel.IsNegative() {
		return fmt.Errorf("%w: stock levels cannot be negative (min %s, reorder %s)", ErrInvalidQuantity, minLevel, reorderLevel)
	}
	if reorderLevel.IsPositive() && minLevel.GreaterThan(reorderLevel) {
		return fmt.Errorf("%w: minimum level %s is above reorder level %s", ErrInvalidInput, minLevel, reorderLevel)
	}
	return nil
}

func (s *catalogService) CreatePart(ctx context.Context, tenantID int, in CreatePartInput) (*Part, error) {
	in.SKU = strings.TrimSpace(in.SKU)
	in.Name = strings.TrimSpace(in.Name)
	if in.SKU == "" || in.Name == "" {
		return nil, fmt.Errorf("%w: part sku and name are required", ErrInvalidInput)
	}
	if in.Unit == "" {
		in.Unit = "unit"
	}
	if err := validateThresholds(in.MinLevel, in.ReorderLevel); err != nil {
		return nil, err
	}

	p, err := scanPart(s.pool.QueryRow(ctx, `
		INSERT INTO parts (tenant_id, sku, name, unit, min_level, reorder_level)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+partColumns,
		tenantID, in.SKU, in.Name, in.Unit, in.MinLevel, in.ReorderLevel))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: part sku %s", ErrDuplicate, in.SKU)
		}
		return nil, fmt.Errorf("failed to create part: %w", err)
	}
	return &p, nil
}

func (s *catalogService) UpdatePartThresholds(ctx context.Context, tenantID, partID int, minLevel, reorderLevel decimal.Decimal) (*Part, error) {
	if err := validateThresholds(minLevel, reorderLevel); err != nil {
		return nil, err
	}
	p, err := scanPart(s.pool.QueryRow(ctx, `
		UPDATE parts SET min_level = $3, reorder_level = $4
		WHERE tenant_id = $1 AND id = $2
		RETURNING `+partColumns,
		tenantID, partID, minLevel, reorderLevel))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: part %d", ErrNotFound, partID)
		}
		return nil, fmt.Errorf("failed to update part %d: %w", partID, err)
	}
	return &p, nil
}

func (s *catalogService) DeactivatePart(ctx context.Context, tenantID, partID int) (*Part, error) {
	p, err := scanPart(s.pool.QueryRow(ctx, `
		UPDATE parts SET is_active = false
		WHERE tenant_id = $1 AND id = $2
		RETURNING `+partColumns,
		tenantID, partID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: part %d", ErrNotFound, partID)
		}
		return nil, fmt.Errorf("failed to deactivate part %d: %w", partID, err)
	}
	return &p, nil
}

func (s *catalogService) GetPart(ctx context.Context, tenantID, partID int) (*Part, error) {
	p, err := getPart(ctx, s.pool, tenantID, partID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func getPart(ctx context.Context, q pgxQuerier, tenantID, partID int) (Part, error) {
	p, err := scanPart(q.QueryRow(ctx,
		"SELECT "+partColumns+" FROM parts WHERE tenant_id = $1 AND id = $2",
		tenantID, partID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Part{}, fmt.Errorf("%w: part %d", ErrNotFound, partID)
		}
		return Part{}, fmt.Errorf("failed to fetch part %d: %w", partID, err)
	}
	return p, nil
}

func (s *catalogService) ListParts(ctx context.Context, tenantID int, includeInactive bool) ([]Part, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+partColumns+`
		FROM parts
		WHERE tenant_id = $1 AND (is_active OR $2)
		ORDER BY sku
	`, tenantID, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to query parts: %w", err)
	}
	defer rows.Close()

	var parts []Part
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan part: %w", err)
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// ── Sites ────────────────────────────────────────────────────────────────────

func (s *catalogService) CreateWarehouse(ctx context.Context, tenantID int, code, name string) (*Warehouse, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: warehouse code is required", ErrInvalidInput)
	}

	var w Warehouse
	err := s.pool.QueryRow(ctx, `
		INSERT INTO warehouses (tenant_id, code, name)
		VALUES ($1, $2, $3)
		RETURNING id, tenant_id, code, name, is_active, created_at
	`, tenantID, code, name).Scan(&w.ID, &w.TenantID, &w.Code, &w.Name, &w.IsActive, &w.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: warehouse %s", ErrDuplicate, code)
		}
		return nil, fmt.Errorf("failed to create warehouse: %w", err)
	}
	return &w, nil
}

func (s *catalogService) ListWarehouses(ctx context.Context, tenantID int) ([]Warehouse, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, code, name, is_active, created_at
		FROM warehouses
		WHERE tenant_id = $1 AND is_active = true
		ORDER BY code
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query warehouses: %w", err)
	}
	defer rows.Close()

	var warehouses []Warehouse
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.ID, &w.TenantID, &w.Code, &w.Name, &w.IsActive, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan warehouse: %w", err)
		}
		warehouses = append(warehouses, w)
	}
	return warehouses, rows.Err()
}

func (s *catalogService) CreateLocation(ctx context.Context, tenantID, warehouseID int, code, name string) (*Location, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: location code is required", ErrInvalidInput)
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM warehouses WHERE tenant_id = $1 AND id = $2)",
		tenantID, warehouseID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to resolve warehouse: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: warehouse %d", ErrNotFound, warehouseID)
	}

	var l Location
	err := s.pool.QueryRow(ctx, `
		INSERT INTO locations (tenant_id, warehouse_id, code, name)
		VALUES ($1, $2, $3, $4)
		RETURNING id, tenant_id, warehouse_id, code, name, is_active, created_at
	`, tenantID, warehouseID, code, name).Scan(&l.ID, &l.TenantID, &l.WarehouseID, &l.Code, &l.Name, &l.IsActive, &l.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: location %s in warehouse %d", ErrDuplicate, code, warehouseID)
		}
		return nil, fmt.Errorf("failed to create location: %w", err)
	}
	return &l, nil
}

func (s *catalogService) ListLocations(ctx context.Context, tenantID, warehouseID int) ([]Location, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, warehouse_id, code, name, is_active, created_at
		FROM locations
		WHERE tenant_id = $1 AND warehouse_id = $2
		ORDER BY code
	`, tenantID, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	var locations []Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.ID, &l.TenantID, &l.WarehouseID, &l.Code, &l.Name, &l.IsActive, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

// resolveLocation checks that the location exists for the tenant and, when
// warehouseID is non-zero, that it belongs to that warehouse.
func resolveLocation(ctx context.Context, q pgxQuerier, tenantID, warehouseID, locationID int) (Location, error) {
	var l Location
	err := q.QueryRow(ctx, `
		SELECT id, tenant_id, warehouse_id, code, name, is_active, created_at
		FROM locations
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, locationID).Scan(&l.ID, &l.TenantID, &l.WarehouseID, &l.Code, &l.Name, &l.IsActive, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Location{}, fmt.Errorf("%w: location %d", ErrNotFound, locationID)
		}
		return Location{}, fmt.Errorf("failed to fetch location %d: %w", locationID, err)
	}
	if warehouseID != 0 && l.WarehouseID != warehouseID {
		return Location{}, fmt.Errorf("%w: location %d is in warehouse %d, not %d",
			ErrLocationWarehouseMismatch, locationID, l.WarehouseID, warehouseID)
	}
	return l, nil
}

// ── Stock queries ────────────────────────────────────────────────────────────

// buildStockQuery renders the ListStockBalances statement.
func buildStockQuery(tenantID int, filter BalanceFilter) (string, []any, error) {
	q := pg.From(goqu.T("stock_balances").As("b")).
		Join(goqu.T("parts").As("p"), goqu.On(goqu.Ex{"p.id": goqu.I("b.part_id")})).
		Join(goqu.T("locations").As("loc"), goqu.On(goqu.Ex{"loc.id": goqu.I("b.location_id")})).
		Join(goqu.T("warehouses").As("w"), goqu.On(goqu.Ex{"w.id": goqu.I("loc.warehouse_id")})).
		Join(goqu.T("stock_lots").As("lt"), goqu.On(goqu.Ex{"lt.id": goqu.I("b.lot_id")})).
		Select(
			"b.id", "b.part_id", "p.sku", "p.name",
			"w.id", "w.code", "loc.id", "loc.code",
			"b.lot_id", "lt.received_at", "lt.unit_cost", "lt.currency",
			"b.quantity_on_hand", "b.quantity_reserved",
			goqu.L("b.quantity_on_hand - b.quantity_reserved").As("quantity_available"),
		).
		Where(goqu.Ex{"b.tenant_id": tenantID})

	if filter.PartID != nil {
		q = q.Where(goqu.Ex{"b.part_id": *filter.PartID})
	}
	if filter.WarehouseID != nil {
		q = q.Where(goqu.Ex{"loc.warehouse_id": *filter.WarehouseID})
	}
	if filter.LocationID != nil {
		q = q.Where(goqu.Ex{"b.location_id": *filter.LocationID})
	}
	if filter.OnlyAvailable {
		q = q.Where(goqu.L("b.quantity_on_hand > b.quantity_reserved"))
	}

	return q.Order(
		goqu.I("p.sku").Asc(),
		goqu.I("lt.received_at").Asc(),
		goqu.I("b.lot_id").Asc(),
		goqu.I("b.location_id").Asc(),
	).Prepared(true).ToSQL()
}

func (s *catalogService) ListStockBalances(ctx context.Context, tenantID int, filter BalanceFilter) ([]StockLevel, error) {
	sql, args, err := buildStockQuery(tenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to build stock query: %w", err)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock levels: %w", err)
	}
	defer rows.Close()

	var levels []StockLevel
	for rows.Next() {
		var sl StockLevel
		if err := rows.Scan(
			&sl.BalanceID, &sl.PartID, &sl.SKU, &sl.PartName,
			&sl.WarehouseID, &sl.WarehouseCode, &sl.LocationID, &sl.LocationCode,
			&sl.LotID, &sl.ReceivedAt, &sl.UnitCost, &sl.Currency,
			&sl.OnHand, &sl.Reserved, &sl.Available,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stock level: %w", err)
		}
		levels = append(levels, sl)
	}
	return levels, rows.Err()
}

func (s *catalogService) ListLowStockParts(ctx context.Context, tenantID int) ([]LowStockPart, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.sku, p.name,
		       COALESCE(SUM(b.quantity_on_hand - b.quantity_reserved), 0) AS available,
		       p.min_level, p.reorder_level
		FROM parts p
		LEFT JOIN stock_balances b ON b.tenant_id = p.tenant_id AND b.part_id = p.id
		WHERE p.tenant_id = $1 AND p.is_active AND p.reorder_level > 0
		GROUP BY p.id, p.sku, p.name, p.min_level, p.reorder_level
		HAVING COALESCE(SUM(b.quantity_on_hand - b.quantity_reserved), 0) < p.reorder_level
		ORDER BY p.sku
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query low stock parts: %w", err)
	}
	defer rows.Close()

	var out []LowStockPart
	for rows.Next() {
		var lp LowStockPart
		if err := rows.Scan(&lp.PartID, &lp.SKU, &lp.Name, &lp.Available, &lp.MinLevel, &lp.ReorderLevel); err != nil {
			return nil, fmt.Errorf("failed to scan low stock part: %w", err)
		}
		out = append(out, lp)
	}
	return out, rows.Err()
}
