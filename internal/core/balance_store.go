package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Balance rows are always read with their lot and location joined in, and
// locked with FOR UPDATE OF b in this order so that every operation acquires
// balance locks in the same sequence.
const (
	balanceColumns = `
		b.id, b.tenant_id, b.part_id, b.location_id, loc.warehouse_id, b.lot_id,
		lt.received_at, lt.expires_at, lt.unit_cost,
		b.quantity_on_hand, b.quantity_reserved, b.updated_at`

	balanceFrom = `
		FROM stock_balances b
		JOIN stock_lots lt ON lt.id = b.lot_id
		JOIN locations loc ON loc.id = b.location_id`

	balanceLockOrder = `ORDER BY lt.received_at, lt.id, b.location_id`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBalance(row rowScanner, extra ...any) (StockBalance, error) {
	var b StockBalance
	dest := []any{
		&b.ID, &b.TenantID, &b.PartID, &b.LocationID, &b.WarehouseID, &b.LotID,
		&b.LotReceivedAt, &b.LotExpiresAt, &b.UnitCost,
		&b.OnHand, &b.Reserved, &b.UpdatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	return b, err
}

func collectBalances(rows pgx.Rows) ([]StockBalance, error) {
	defer rows.Close()
	var out []StockBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// getBalance reads one balance without locking it.
func getBalance(ctx context.Context, q pgxQuerier, tenantID, balanceID int) (StockBalance, error) {
	b, err := scanBalance(q.QueryRow(ctx,
		"SELECT "+balanceColumns+balanceFrom+" WHERE b.tenant_id = $1 AND b.id = $2",
		tenantID, balanceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockBalance{}, fmt.Errorf("%w: stock balance %d", ErrNotFound, balanceID)
		}
		return StockBalance{}, fmt.Errorf("failed to fetch stock balance %d: %w", balanceID, err)
	}
	return b, nil
}

// lockBalancesByID locks the given balances in canonical order and returns them.
func lockBalancesByID(ctx context.Context, tx pgx.Tx, tenantID int, ids []int) ([]StockBalance, error) {
	rows, err := tx.Query(ctx,
		"SELECT "+balanceColumns+balanceFrom+`
		WHERE b.tenant_id = $1 AND b.id = ANY($2)
		`+balanceLockOrder+`
		FOR UPDATE OF b`,
		tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to lock stock balances: %w", err)
	}
	return collectBalances(rows)
}

// lockReservedBalances locks every balance that currently carries a
// reservation for the request.
func lockReservedBalances(ctx context.Context, tx pgx.Tx, tenantID, requestID int) ([]StockBalance, error) {
	rows, err := tx.Query(ctx,
		"SELECT "+balanceColumns+balanceFrom+`
		WHERE b.tenant_id = $1
		  AND b.id IN (SELECT balance_id FROM reservations WHERE tenant_id = $1 AND request_id = $2)
		`+balanceLockOrder+`
		FOR UPDATE OF b`,
		tenantID, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock reserved balances: %w", err)
	}
	return collectBalances(rows)
}

// lockedReserveSet is the result of lockBalancesForReserve.
type lockedReserveSet struct {
	// balances holds every locked row in lock order.
	balances []StockBalance
	// candidate marks rows eligible for new allocations.
	candidate map[int]bool
}

// lockBalancesForReserve locks, in one ordered statement, the union of the
// balances already reserved by the request and the balances that may serve
// its parts, optionally restricted to one warehouse. Rows in inactive
// locations or with nothing on hand are locked only when already reserved.
func lockBalancesForReserve(ctx context.Context, tx pgx.Tx, tenantID, requestID int, partIDs []int, warehouseID *int) (lockedReserveSet, error) {
	rows, err := tx.Query(ctx,
		"SELECT "+balanceColumns+`,
		       (b.part_id = ANY($3) AND ($4::int IS NULL OR loc.warehouse_id = $4)
		        AND loc.is_active AND b.quantity_on_hand > 0) AS is_candidate`+balanceFrom+`
		WHERE b.tenant_id = $1
		  AND (b.id IN (SELECT balance_id FROM reservations WHERE tenant_id = $1 AND request_id = $2)
		       OR (b.part_id = ANY($3) AND ($4::int IS NULL OR loc.warehouse_id = $4)
		           AND loc.is_active AND b.quantity_on_hand > 0))
		`+balanceLockOrder+`
		FOR UPDATE OF b`,
		tenantID, requestID, partIDs, warehouseID)
	if err != nil {
		return lockedReserveSet{}, fmt.Errorf("failed to lock candidate balances: %w", err)
	}
	defer rows.Close()

	set := lockedReserveSet{candidate: make(map[int]bool)}
	for rows.Next() {
		var isCandidate bool
		b, err := scanBalance(rows, &isCandidate)
		if err != nil {
			return lockedReserveSet{}, fmt.Errorf("failed to scan balance: %w", err)
		}
		set.balances = append(set.balances, b)
		if isCandidate {
			set.candidate[b.ID] = true
		}
	}
	if err := rows.Err(); err != nil {
		return lockedReserveSet{}, err
	}
	return set, nil
}

// ensureBalance creates the (part, location, lot) balance with zero
// quantities if it does not exist yet and returns its id. It does not lock.
func ensureBalance(ctx context.Context, tx pgx.Tx, tenantID, partID, locationID, lotID int) (int, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO stock_balances (tenant_id, part_id, location_id, lot_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, part_id, location_id, lot_id) DO NOTHING
	`, tenantID, partID, locationID, lotID); err != nil {
		return 0, fmt.Errorf("failed to create stock balance: %w", err)
	}

	var id int
	if err := tx.QueryRow(ctx, `
		SELECT id FROM stock_balances
		WHERE tenant_id = $1 AND part_id = $2 AND location_id = $3 AND lot_id = $4
	`, tenantID, partID, locationID, lotID).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to resolve stock balance: %w", err)
	}
	return id, nil
}

// changeBalance applies signed deltas to a locked balance. A result that
// would break 0 <= reserved <= on_hand is reported as ErrInconsistentState
// and nothing is written.
func changeBalance(ctx context.Context, tx pgx.Tx, b *StockBalance, onHandDelta, reservedDelta decimal.Decimal) error {
	onHand := b.OnHand.Add(onHandDelta)
	reserved := b.Reserved.Add(reservedDelta)
	if onHand.IsNegative() || reserved.IsNegative() || reserved.GreaterThan(onHand) {
		return fmt.Errorf("%w: balance %d would become on_hand=%s reserved=%s",
			ErrInconsistentState, b.ID, onHand, reserved)
	}

	err := tx.QueryRow(ctx, `
		UPDATE stock_balances
		SET quantity_on_hand = $2, quantity_reserved = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, b.ID, onHand, reserved).Scan(&b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update stock balance %d: %w", b.ID, err)
	}
	b.OnHand = onHand
	b.Reserved = reserved
	return nil
}

// releaseReservationsTx gives back every unit the request holds on the
// given locked balances, deletes its reservations and zeroes the lines'
// reserved quantities. Balances missing from locked, or holding less
// reserved stock than the request claims, fail with ErrInconsistentState.
func releaseReservationsTx(ctx context.Context, tx pgx.Tx, tenantID, requestID int, locked map[int]*StockBalance) (decimal.Decimal, error) {
	rows, err := tx.Query(ctx, `
		SELECT balance_id, SUM(quantity)
		FROM reservations
		WHERE tenant_id = $1 AND request_id = $2
		GROUP BY balance_id
		ORDER BY balance_id
	`, tenantID, requestID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query reservations: %w", err)
	}

	type held struct {
		balanceID int
		qty       decimal.Decimal
	}
	var holds []held
	for rows.Next() {
		var h held
		if err := rows.Scan(&h.balanceID, &h.qty); err != nil {
			rows.Close()
			return decimal.Zero, fmt.Errorf("failed to scan reservation: %w", err)
		}
		holds = append(holds, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return decimal.Zero, err
	}

	released := decimal.Zero
	for _, h := range holds {
		b, ok := locked[h.balanceID]
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: reserved balance %d was not locked", ErrInconsistentState, h.balanceID)
		}
		if b.Reserved.LessThan(h.qty) {
			return decimal.Zero, fmt.Errorf("%w: balance %d has reserved=%s but request %d holds %s",
				ErrInconsistentState, b.ID, b.Reserved, requestID, h.qty)
		}
		if err := changeBalance(ctx, tx, b, decimal.Zero, h.qty.Neg()); err != nil {
			return decimal.Zero, err
		}
		released = released.Add(h.qty)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM reservations WHERE tenant_id = $1 AND request_id = $2", tenantID, requestID); err != nil {
		return decimal.Zero, fmt.Errorf("failed to delete reservations: %w", err)
	}
	if _, err := tx.Exec(ctx, "UPDATE part_request_lines SET quantity_reserved = 0 WHERE request_id = $1", requestID); err != nil {
		return decimal.Zero, fmt.Errorf("failed to reset reserved quantities: %w", err)
	}
	return released, nil
}

// indexBalances maps balance id to a pointer into balances.
func indexBalances(balances []StockBalance) map[int]*StockBalance {
	idx := make(map[int]*StockBalance, len(balances))
	for i := range balances {
		idx[balances[i].ID] = &balances[i]
	}
	return idx
}
