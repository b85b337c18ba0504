package core

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// defaultMovementLimit caps ListMovements when the filter sets no limit.
const defaultMovementLimit = 200

// pg builds PostgreSQL statements with positional placeholders.
var pg = goqu.Dialect("postgres")

// LedgerService reads the append-only stock movement ledger.
type LedgerService interface {
	// ListMovements returns movements newest first.
	ListMovements(ctx context.Context, tenantID int, filter MovementFilter) ([]StockMovement, error)
	// ReconcilePart rebuilds every balance of a part from its movements and
	// reports the (location, lot) pairs whose on-hand disagrees. An empty
	// result means the ledger and the balances agree exactly.
	ReconcilePart(ctx context.Context, tenantID, partID int) ([]BalanceDiscrepancy, error)
}

type ledgerService struct {
	tx txRunner
}

func NewLedgerService(pool *pgxpool.Pool) LedgerService {
	return &ledgerService{tx: newTxRunner(pool, 0, nil)}
}

// appendMovement writes one ledger row inside the caller's transaction.
func appendMovement(ctx context.Context, tx pgx.Tx, m StockMovement) (int64, error) {
	if !m.Quantity.IsPositive() {
		return 0, fmt.Errorf("%w: movement quantity must be positive, got %s", ErrInvalidQuantity, m.Quantity)
	}
	if m.FromLocationID == nil && m.ToLocationID == nil {
		return 0, fmt.Errorf("%w: movement needs a source or destination location", ErrInvalidInput)
	}

	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO stock_movements
			(tenant_id, movement_type, part_id, lot_id, from_location_id, to_location_id,
			 quantity, unit_cost_snapshot, reference, issue_line_id, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, m.TenantID, string(m.Type), m.PartID, m.LotID, m.FromLocationID, m.ToLocationID,
		m.Quantity, m.UnitCostSnapshot, m.Reference, m.IssueLineID, m.ActorID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to append %s movement: %w", m.Type, err)
	}
	return id, nil
}

// buildMovementQuery renders the ListMovements statement.
func buildMovementQuery(tenantID int, filter MovementFilter) (string, []any, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultMovementLimit
	}

	where := goqu.Ex{"tenant_id": tenantID}
	if filter.PartID != nil {
		where["part_id"] = *filter.PartID
	}
	if filter.LotID != nil {
		where["lot_id"] = *filter.LotID
	}
	if filter.Type != nil {
		where["movement_type"] = string(*filter.Type)
	}

	q := pg.From("stock_movements").
		Select("id", "tenant_id", "movement_type", "part_id", "lot_id",
			"from_location_id", "to_location_id", "quantity", "unit_cost_snapshot",
			"reference", "issue_line_id", "actor_id", "created_at").
		Where(where)
	if filter.LocationID != nil {
		q = q.Where(goqu.Or(
			goqu.C("from_location_id").Eq(*filter.LocationID),
			goqu.C("to_location_id").Eq(*filter.LocationID),
		))
	}
	return q.Order(goqu.C("id").Desc()).Limit(uint(limit)).Prepared(true).ToSQL()
}

func (s *ledgerService) ListMovements(ctx context.Context, tenantID int, filter MovementFilter) ([]StockMovement, error) {
	sql, args, err := buildMovementQuery(tenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to build movement query: %w", err)
	}

	rows, err := s.tx.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var movements []StockMovement
	for rows.Next() {
		var m StockMovement
		var movementType string
		if err := rows.Scan(&m.ID, &m.TenantID, &movementType, &m.PartID, &m.LotID,
			&m.FromLocationID, &m.ToLocationID, &m.Quantity, &m.UnitCostSnapshot,
			&m.Reference, &m.IssueLineID, &m.ActorID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		m.Type = MovementType(movementType)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (s *ledgerService) ReconcilePart(ctx context.Context, tenantID, partID int) ([]BalanceDiscrepancy, error) {
	var out []BalanceDiscrepancy
	err := s.tx.readSnapshot(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM parts WHERE tenant_id = $1 AND id = $2)",
			tenantID, partID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to resolve part: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: part %d", ErrNotFound, partID)
		}

		// Every movement contributes +qty to its destination and -qty to its
		// source; the sum per (location, lot) must equal the balance on hand.
		rows, err := tx.Query(ctx, `
			WITH flows AS (
				SELECT to_location_id AS location_id, lot_id, quantity AS qty
				FROM stock_movements
				WHERE tenant_id = $1 AND part_id = $2 AND to_location_id IS NOT NULL
				UNION ALL
				SELECT from_location_id, lot_id, -quantity
				FROM stock_movements
				WHERE tenant_id = $1 AND part_id = $2 AND from_location_id IS NOT NULL
			),
			ledger AS (
				SELECT location_id, lot_id, SUM(qty) AS qty
				FROM flows
				GROUP BY location_id, lot_id
			),
			balances AS (
				SELECT location_id, lot_id, quantity_on_hand AS qty
				FROM stock_balances
				WHERE tenant_id = $1 AND part_id = $2
			)
			SELECT COALESCE(b.location_id, l.location_id), COALESCE(b.lot_id, l.lot_id),
			       COALESCE(b.qty, 0), COALESCE(l.qty, 0)
			FROM balances b
			FULL OUTER JOIN ledger l ON l.location_id = b.location_id AND l.lot_id = b.lot_id
			WHERE COALESCE(b.qty, 0) <> COALESCE(l.qty, 0)
			ORDER BY 1, 2
		`, tenantID, partID)
		if err != nil {
			return fmt.Errorf("failed to reconcile part %d: %w", partID, err)
		}
		defer rows.Close()

		for rows.Next() {
			d := BalanceDiscrepancy{PartID: partID}
			if err := rows.Scan(&d.LocationID, &d.LotID, &d.BalanceQty, &d.LedgerQty); err != nil {
				return fmt.Errorf("failed to scan discrepancy: %w", err)
			}
			out = append(out, d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// movementReference builds the reference stored on a movement when the
// caller did not supply one.
func movementReference(ref, fallback string) string {
	if ref != "" {
		return ref
	}
	return fallback
}
