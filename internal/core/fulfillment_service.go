package core

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// FulfillmentService moves physical stock: receipts, reservations, issues,
// transfers, returns and count adjustments. Every operation runs in a single
// transaction, takes row locks in the order request → lines → balances →
// document sequence, and appends to the movement ledger in the same
// transaction as the balance change it records.
type FulfillmentService interface {
	// ReceiveStock books a new lot into a location and returns its balance.
	ReceiveStock(ctx context.Context, tenantID, actorID int, in ReceiveStockInput) (*StockBalance, error)
	// ReserveRequest replaces the request's reservations with a fresh FIFO
	// allocation. Calling it again without an intervening issue yields the
	// same reserved quantities.
	ReserveRequest(ctx context.Context, tenantID, actorID, requestID int, warehouseID *int, policy ReservePolicy) (*PartRequest, error)
	// IssueRequest consumes every reservation of the request into one issue document.
	IssueRequest(ctx context.Context, tenantID, actorID, requestID int) (*IssueDocument, error)
	// TransferStock moves qty of one balance's lot to another location.
	TransferStock(ctx context.Context, tenantID, actorID, balanceID, destinationLocationID int, qty decimal.Decimal) (*TransferResult, error)
	// ConfirmIssueDocument records the recipient's acknowledgment. Idempotent.
	ConfirmIssueDocument(ctx context.Context, tenantID, actorID, documentID int) (*IssueDocument, error)

	// ReleaseReservations drops every reservation of a RESERVED or PARTIAL
	// request and sends it back to APPROVED.
	ReleaseReservations(ctx context.Context, tenantID, actorID, requestID int) (*PartRequest, error)
	// ReturnStock puts issued units back into a location under their original lot.
	ReturnStock(ctx context.Context, tenantID, actorID int, in ReturnStockInput) (*StockBalance, error)
	// AdjustStock corrects a balance's on-hand after a physical count.
	AdjustStock(ctx context.Context, tenantID, actorID int, in AdjustStockInput) (*StockBalance, error)

	GetIssueDocument(ctx context.Context, tenantID, documentID int) (*IssueDocument, error)
	ListReservations(ctx context.Context, tenantID, requestID int) ([]Reservation, error)
}

type fulfillmentService struct {
	tx  txRunner
	log *zap.Logger
	now func() time.Time
}

func NewFulfillmentService(pool *pgxpool.Pool, lockTimeout time.Duration, log *zap.Logger) FulfillmentService {
	if log == nil {
		log = zap.NewNop()
	}
	return &fulfillmentService{tx: newTxRunner(pool, lockTimeout, log), log: log, now: time.Now}
}

// costScale is the number of decimal places stored for unit costs.
const costScale = 4

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// ── Receive ──────────────────────────────────────────────────────────────────

func validateReceipt(in ReceiveStockInput) error {
	if err := validateQuantity(in.Quantity); err != nil {
		return err
	}
	if in.WarehouseID == 0 || in.LocationID == 0 {
		return fmt.Errorf("%w: warehouse and location are required", ErrInvalidInput)
	}
	if in.UnitCost.IsNegative() {
		return fmt.Errorf("%w: unit cost cannot be negative, got %s", ErrInvalidQuantity, in.UnitCost)
	}
	if !in.UnitCost.Equal(in.UnitCost.Round(costScale)) {
		return fmt.Errorf("%w: unit cost allows at most %d decimal places, got %s", ErrInvalidQuantity, costScale, in.UnitCost)
	}
	if !currencyPattern.MatchString(in.Currency) {
		return fmt.Errorf("%w: currency must be a 3-letter ISO code, got %q", ErrInvalidInput, in.Currency)
	}
	if in.ExpiresAt != nil && in.ReceivedAt != nil && !in.ExpiresAt.After(*in.ReceivedAt) {
		return fmt.Errorf("%w: lot expires before it is received", ErrInvalidInput)
	}
	return nil
}

func (s *fulfillmentService) ReceiveStock(ctx context.Context, tenantID, actorID int, in ReceiveStockInput) (*StockBalance, error) {
	if err := validateReceipt(in); err != nil {
		return nil, err
	}
	receivedAt := s.now()
	if in.ReceivedAt != nil {
		receivedAt = *in.ReceivedAt
	}

	var result StockBalance
	err := s.tx.inTx(ctx, "receive_stock", func(tx pgx.Tx) error {
		part, err := getPart(ctx, tx, tenantID, in.PartID)
		if err != nil {
			return err
		}
		if !part.IsActive {
			return fmt.Errorf("%w: part %s is inactive", ErrInvalidInput, part.SKU)
		}
		loc, err := resolveLocation(ctx, tx, tenantID, in.WarehouseID, in.LocationID)
		if err != nil {
			return err
		}

		var lotID int
		if err := tx.QueryRow(ctx, `
			INSERT INTO stock_lots (tenant_id, part_id, supplier, unit_cost, currency, received_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`, tenantID, part.ID, in.Supplier, in.UnitCost, in.Currency, receivedAt, in.ExpiresAt).Scan(&lotID); err != nil {
			return fmt.Errorf("failed to create stock lot: %w", err)
		}

		balanceID, err := ensureBalance(ctx, tx, tenantID, part.ID, loc.ID, lotID)
		if err != nil {
			return err
		}
		locked, err := lockBalancesByID(ctx, tx, tenantID, []int{balanceID})
		if err != nil {
			return err
		}
		if len(locked) != 1 {
			return fmt.Errorf("%w: balance %d vanished after upsert", ErrInconsistentState, balanceID)
		}
		b := &locked[0]
		if err := changeBalance(ctx, tx, b, in.Quantity, decimal.Zero); err != nil {
			return err
		}

		if _, err := appendMovement(ctx, tx, StockMovement{
			TenantID:         tenantID,
			Type:             MovementReceipt,
			PartID:           part.ID,
			LotID:            lotID,
			ToLocationID:     &loc.ID,
			Quantity:         in.Quantity,
			UnitCostSnapshot: in.UnitCost,
			Reference:        movementReference(in.Reference, fmt.Sprintf("LOT-%d", lotID)),
			ActorID:          actorID,
		}); err != nil {
			return err
		}
		result = *b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("stock received", zap.Int("tenant_id", tenantID), zap.Int("part_id", in.PartID),
		zap.Int("location_id", in.LocationID), zap.Int("lot_id", result.LotID),
		zap.String("quantity", in.Quantity.String()), zap.Int("actor_id", actorID))
	return &result, nil
}

// ── Reserve ──────────────────────────────────────────────────────────────────

func (s *fulfillmentService) ReserveRequest(ctx context.Context, tenantID, actorID, requestID int, warehouseID *int, policy ReservePolicy) (*PartRequest, error) {
	var status RequestStatus
	err := s.tx.inTx(ctx, "reserve_request", func(tx pgx.Tx) error {
		r, err := lockRequest(ctx, tx, tenantID, requestID)
		if err != nil {
			return err
		}
		if !r.Status.CanReserve() {
			return fmt.Errorf("%w: request %d is %s and cannot be reserved", ErrInvalidState, r.ID, r.Status)
		}
		lines, err := lockRequestLines(ctx, tx, r.ID)
		if err != nil {
			return err
		}

		if warehouseID != nil {
			var exists bool
			if err := tx.QueryRow(ctx,
				"SELECT EXISTS (SELECT 1 FROM warehouses WHERE tenant_id = $1 AND id = $2)",
				tenantID, *warehouseID).Scan(&exists); err != nil {
				return fmt.Errorf("failed to resolve warehouse: %w", err)
			}
			if !exists {
				return fmt.Errorf("%w: warehouse %d", ErrNotFound, *warehouseID)
			}
		}

		var partIDs []int
		seen := make(map[int]bool)
		for _, l := range lines {
			if l.Outstanding().IsPositive() && !seen[l.PartID] {
				seen[l.PartID] = true
				partIDs = append(partIDs, l.PartID)
			}
		}

		set, err := lockBalancesForReserve(ctx, tx, tenantID, r.ID, partIDs, warehouseID)
		if err != nil {
			return err
		}
		byID := indexBalances(set.balances)

		if _, err := releaseReservationsTx(ctx, tx, tenantID, r.ID, byID); err != nil {
			return err
		}

		asOf := s.now()
		for i := range lines {
			line := &lines[i]
			needed := line.Outstanding()
			reserved := decimal.Zero

			if needed.IsPositive() {
				var candidates []StockBalance
				for _, b := range set.balances {
					if set.candidate[b.ID] {
						candidates = append(candidates, b)
					}
				}
				allocs := AllocateFIFO(usableCandidates(candidates, line.PartID, asOf), needed)
				reserved = TotalAllocated(allocs)

				if reserved.LessThan(needed) && !policy.AllowPartial {
					return fmt.Errorf("%w: line %d (%s) needs %s, %s available",
						ErrInsufficientStock, line.LineNumber, line.SKU, needed, reserved)
				}

				for _, a := range allocs {
					if err := changeBalance(ctx, tx, byID[a.Balance.ID], decimal.Zero, a.Quantity); err != nil {
						return err
					}
					if _, err := tx.Exec(ctx, `
						INSERT INTO reservations (tenant_id, request_id, request_line_id, balance_id, quantity)
						VALUES ($1, $2, $3, $4, $5)
					`, tenantID, r.ID, line.ID, a.Balance.ID, a.Quantity); err != nil {
						return fmt.Errorf("failed to insert reservation: %w", err)
					}
				}
			}

			if _, err := tx.Exec(ctx,
				"UPDATE part_request_lines SET quantity_reserved = $2 WHERE id = $1",
				line.ID, reserved); err != nil {
				return fmt.Errorf("failed to update request line %d: %w", line.LineNumber, err)
			}
			line.QuantityReserved = reserved
		}

		status = statusAfterReserve(lines)
		return setRequestStatus(ctx, tx, &r, status, statusTimestampColumn(status))
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("request reserved", zap.Int("tenant_id", tenantID), zap.Int("request_id", requestID),
		zap.String("status", string(status)), zap.Bool("allow_partial", policy.AllowPartial),
		zap.Int("actor_id", actorID))
	return loadRequest(ctx, s.tx.pool, tenantID, requestID)
}

// ReleaseReservations gives all reserved stock of the request back.
func (s *fulfillmentService) ReleaseReservations(ctx context.Context, tenantID, actorID, requestID int) (*PartRequest, error) {
	var released decimal.Decimal
	err := s.tx.inTx(ctx, "release_reservations", func(tx pgx.Tx) error {
		r, err := lockRequest(ctx, tx, tenantID, requestID)
		if err != nil {
			return err
		}
		if r.Status != RequestReserved && r.Status != RequestPartial {
			return fmt.Errorf("%w: request %d is %s and holds no reservations", ErrInvalidState, r.ID, r.Status)
		}
		if _, err := lockRequestLines(ctx, tx, r.ID); err != nil {
			return err
		}
		balances, err := lockReservedBalances(ctx, tx, tenantID, r.ID)
		if err != nil {
			return err
		}
		released, err = releaseReservationsTx(ctx, tx, tenantID, r.ID, indexBalances(balances))
		if err != nil {
			return err
		}
		return setRequestStatus(ctx, tx, &r, RequestApproved, "")
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("reservations released", zap.Int("tenant_id", tenantID), zap.Int("request_id", requestID),
		zap.String("quantity", released.String()), zap.Int("actor_id", actorID))
	return loadRequest(ctx, s.tx.pool, tenantID, requestID)
}

// ── Issue ────────────────────────────────────────────────────────────────────

func (s *fulfillmentService) IssueRequest(ctx context.Context, tenantID, actorID, requestID int) (*IssueDocument, error) {
	var documentID int
	err := s.tx.inTx(ctx, "issue_request", func(tx pgx.Tx) error {
		r, err := lockRequest(ctx, tx, tenantID, requestID)
		if err != nil {
			return err
		}
		if !r.Status.CanIssue() {
			return fmt.Errorf("%w: request %d is %s and cannot be issued", ErrInvalidState, r.ID, r.Status)
		}
		lines, err := lockRequestLines(ctx, tx, r.ID)
		if err != nil {
			return err
		}
		lineByID := make(map[int]*PartRequestLine, len(lines))
		for i := range lines {
			lineByID[lines[i].ID] = &lines[i]
		}

		balances, err := lockReservedBalances(ctx, tx, tenantID, r.ID)
		if err != nil {
			return err
		}
		byID := indexBalances(balances)

		reservations, err := listReservations(ctx, tx, tenantID, r.ID)
		if err != nil {
			return err
		}
		hasStock := false
		for _, res := range reservations {
			if res.Quantity.IsPositive() {
				hasStock = true
				break
			}
		}
		if !hasStock {
			return fmt.Errorf("%w: request %d has nothing reserved to issue", ErrInvalidState, r.ID)
		}

		number, err := nextDocumentNumber(ctx, tx, tenantID, DocTypeGoodsIssue)
		if err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `
			INSERT INTO issue_documents (tenant_id, document_number, request_id, status, issued_by, recipient_id)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, tenantID, number, r.ID, string(IssueDocumentIssued), actorID, r.RecipientID()).Scan(&documentID); err != nil {
			return fmt.Errorf("failed to create issue document: %w", err)
		}

		for _, res := range reservations {
			q := res.Quantity
			if !q.IsPositive() {
				continue
			}
			b, ok := byID[res.BalanceID]
			if !ok {
				return fmt.Errorf("%w: reservation %d references unlocked balance %d", ErrInconsistentState, res.ID, res.BalanceID)
			}
			if b.Reserved.LessThan(q) || b.OnHand.LessThan(q) {
				return fmt.Errorf("%w: reservation %d holds %s but balance %d has on_hand=%s reserved=%s",
					ErrInconsistentState, res.ID, q, b.ID, b.OnHand, b.Reserved)
			}
			line, ok := lineByID[res.RequestLineID]
			if !ok {
				return fmt.Errorf("%w: reservation %d references line %d outside request %d",
					ErrInconsistentState, res.ID, res.RequestLineID, r.ID)
			}
			if line.QuantityIssued.Add(q).GreaterThan(line.QuantityRequested) {
				return fmt.Errorf("%w: issuing %s more on line %d would exceed the requested %s",
					ErrInconsistentState, q, line.LineNumber, line.QuantityRequested)
			}

			if err := changeBalance(ctx, tx, b, q.Neg(), q.Neg()); err != nil {
				return err
			}

			var issueLineID int
			if err := tx.QueryRow(ctx, `
				INSERT INTO issue_lines (document_id, request_line_id, part_id, lot_id, location_id, quantity, unit_cost)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING id
			`, documentID, line.ID, b.PartID, b.LotID, b.LocationID, q, b.UnitCost).Scan(&issueLineID); err != nil {
				return fmt.Errorf("failed to insert issue line: %w", err)
			}

			if _, err := appendMovement(ctx, tx, StockMovement{
				TenantID:         tenantID,
				Type:             MovementIssue,
				PartID:           b.PartID,
				LotID:            b.LotID,
				FromLocationID:   &b.LocationID,
				Quantity:         q,
				UnitCostSnapshot: b.UnitCost,
				Reference:        number,
				IssueLineID:      &issueLineID,
				ActorID:          actorID,
			}); err != nil {
				return err
			}

			line.QuantityIssued = line.QuantityIssued.Add(q)
			line.QuantityReserved = decimal.Max(line.QuantityReserved.Sub(q), decimal.Zero)
		}

		if _, err := tx.Exec(ctx, "DELETE FROM reservations WHERE tenant_id = $1 AND request_id = $2", tenantID, r.ID); err != nil {
			return fmt.Errorf("failed to consume reservations: %w", err)
		}
		for _, l := range lines {
			if _, err := tx.Exec(ctx, `
				UPDATE part_request_lines SET quantity_issued = $2, quantity_reserved = $3 WHERE id = $1
			`, l.ID, l.QuantityIssued, l.QuantityReserved); err != nil {
				return fmt.Errorf("failed to update request line %d: %w", l.LineNumber, err)
			}
		}

		return setRequestStatus(ctx, tx, &r, statusAfterIssue(lines), "issued_at")
	})
	if err != nil {
		return nil, err
	}

	doc, err := loadIssueDocument(ctx, s.tx.pool, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	s.log.Info("request issued", zap.Int("tenant_id", tenantID), zap.Int("request_id", requestID),
		zap.String("document_number", doc.DocumentNumber), zap.Int("lines", len(doc.Lines)),
		zap.Int("actor_id", actorID))
	return doc, nil
}

// listReservations returns the request's reservations in issue order:
// oldest lot first, then reservation id.
func listReservations(ctx context.Context, q pgxQuerier, tenantID, requestID int) ([]Reservation, error) {
	rows, err := q.Query(ctx, `
		SELECT res.id, res.request_id, res.request_line_id, res.balance_id, res.quantity
		FROM reservations res
		JOIN stock_balances b ON b.id = res.balance_id
		JOIN stock_lots lt ON lt.id = b.lot_id
		WHERE res.tenant_id = $1 AND res.request_id = $2
		ORDER BY lt.received_at, res.id
	`, tenantID, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(&res.ID, &res.RequestID, &res.RequestLineID, &res.BalanceID, &res.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (s *fulfillmentService) ListReservations(ctx context.Context, tenantID, requestID int) ([]Reservation, error) {
	if _, err := loadRequest(ctx, s.tx.pool, tenantID, requestID); err != nil {
		return nil, err
	}
	return listReservations(ctx, s.tx.pool, tenantID, requestID)
}

// ── Transfer ─────────────────────────────────────────────────────────────────

func (s *fulfillmentService) TransferStock(ctx context.Context, tenantID, actorID, balanceID, destinationLocationID int, qty decimal.Decimal) (*TransferResult, error) {
	if err := validateQuantity(qty); err != nil {
		return nil, err
	}

	var result TransferResult
	err := s.tx.inTx(ctx, "transfer_stock", func(tx pgx.Tx) error {
		src, err := getBalance(ctx, tx, tenantID, balanceID)
		if err != nil {
			return err
		}
		dest, err := resolveLocation(ctx, tx, tenantID, 0, destinationLocationID)
		if err != nil {
			return err
		}
		if dest.ID == src.LocationID {
			return fmt.Errorf("%w: balance %d is already in location %d", ErrInvalidState, src.ID, dest.ID)
		}
		if !dest.IsActive {
			return fmt.Errorf("%w: location %s is inactive", ErrInvalidInput, dest.Code)
		}

		destID, err := ensureBalance(ctx, tx, tenantID, src.PartID, dest.ID, src.LotID)
		if err != nil {
			return err
		}
		locked, err := lockBalancesByID(ctx, tx, tenantID, []int{src.ID, destID})
		if err != nil {
			return err
		}
		byID := indexBalances(locked)
		from, to := byID[src.ID], byID[destID]
		if from == nil || to == nil {
			return fmt.Errorf("%w: transfer balances %d/%d could not be locked", ErrInconsistentState, src.ID, destID)
		}

		if qty.GreaterThan(from.Available()) {
			return fmt.Errorf("%w: balance %d has %s available, %s requested",
				ErrInsufficientAvailableStock, from.ID, from.Available(), qty)
		}
		if err := changeBalance(ctx, tx, from, qty.Neg(), decimal.Zero); err != nil {
			return err
		}
		if err := changeBalance(ctx, tx, to, qty, decimal.Zero); err != nil {
			return err
		}

		movementID, err := appendMovement(ctx, tx, StockMovement{
			TenantID:         tenantID,
			Type:             MovementTransfer,
			PartID:           from.PartID,
			LotID:            from.LotID,
			FromLocationID:   &from.LocationID,
			ToLocationID:     &to.LocationID,
			Quantity:         qty,
			UnitCostSnapshot: from.UnitCost,
			Reference:        fmt.Sprintf("BAL-%d", from.ID),
			ActorID:          actorID,
		})
		if err != nil {
			return err
		}

		result = TransferResult{From: *from, To: *to, Quantity: qty, MovementID: movementID}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("stock transferred", zap.Int("tenant_id", tenantID), zap.Int("from_balance_id", result.From.ID),
		zap.Int("to_balance_id", result.To.ID), zap.String("quantity", qty.String()), zap.Int("actor_id", actorID))
	return &result, nil
}

// ── Issue documents ──────────────────────────────────────────────────────────

const issueDocumentColumns = `
	id, tenant_id, document_number, request_id, status, issued_by, recipient_id,
	issued_at, confirmed_at, confirmed_by`

func scanIssueDocument(row rowScanner) (IssueDocument, error) {
	var d IssueDocument
	var status string
	err := row.Scan(&d.ID, &d.TenantID, &d.DocumentNumber, &d.RequestID, &status, &d.IssuedBy,
		&d.RecipientID, &d.IssuedAt, &d.ConfirmedAt, &d.ConfirmedBy)
	d.Status = IssueDocumentStatus(status)
	return d, err
}

func loadIssueDocument(ctx context.Context, q pgxQuerier, tenantID, documentID int) (*IssueDocument, error) {
	d, err := scanIssueDocument(q.QueryRow(ctx,
		"SELECT "+issueDocumentColumns+" FROM issue_documents WHERE tenant_id = $1 AND id = $2",
		tenantID, documentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: issue document %d", ErrNotFound, documentID)
		}
		return nil, fmt.Errorf("failed to fetch issue document %d: %w", documentID, err)
	}

	rows, err := q.Query(ctx, `
		SELECT id, document_id, request_line_id, part_id, lot_id, location_id, quantity, unit_cost
		FROM issue_lines
		WHERE document_id = $1
		ORDER BY id
	`, d.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query issue lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l IssueLine
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.RequestLineID, &l.PartID, &l.LotID,
			&l.LocationID, &l.Quantity, &l.UnitCost); err != nil {
			return nil, fmt.Errorf("failed to scan issue line: %w", err)
		}
		d.Lines = append(d.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *fulfillmentService) GetIssueDocument(ctx context.Context, tenantID, documentID int) (*IssueDocument, error) {
	return loadIssueDocument(ctx, s.tx.pool, tenantID, documentID)
}

func (s *fulfillmentService) ConfirmIssueDocument(ctx context.Context, tenantID, actorID, documentID int) (*IssueDocument, error) {
	confirmed := false
	err := s.tx.inTx(ctx, "confirm_issue_document", func(tx pgx.Tx) error {
		d, err := scanIssueDocument(tx.QueryRow(ctx,
			"SELECT "+issueDocumentColumns+" FROM issue_documents WHERE tenant_id = $1 AND id = $2 FOR UPDATE",
			tenantID, documentID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: issue document %d", ErrNotFound, documentID)
			}
			return fmt.Errorf("failed to lock issue document %d: %w", documentID, err)
		}
		if d.RecipientID != actorID {
			return fmt.Errorf("%w: only the recipient may confirm %s", ErrForbidden, d.DocumentNumber)
		}
		if d.Status == IssueDocumentConfirmed {
			return nil
		}

		if _, err := tx.Exec(ctx, `
			UPDATE issue_documents
			SET status = $2, confirmed_at = NOW(), confirmed_by = $3
			WHERE id = $1
		`, d.ID, string(IssueDocumentConfirmed), actorID); err != nil {
			return fmt.Errorf("failed to confirm issue document %d: %w", d.ID, err)
		}
		confirmed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if confirmed {
		s.log.Info("issue document confirmed", zap.Int("tenant_id", tenantID),
			zap.Int("document_id", documentID), zap.Int("actor_id", actorID))
	}
	return loadIssueDocument(ctx, s.tx.pool, tenantID, documentID)
}

// ── Returns and adjustments ──────────────────────────────────────────────────

func (s *fulfillmentService) ReturnStock(ctx context.Context, tenantID, actorID int, in ReturnStockInput) (*StockBalance, error) {
	if err := validateQuantity(in.Quantity); err != nil {
		return nil, err
	}

	var result StockBalance
	err := s.tx.inTx(ctx, "return_stock", func(tx pgx.Tx) error {
		var il IssueLine
		var documentNumber string
		err := tx.QueryRow(ctx, `
			SELECT il.id, il.document_id, il.request_line_id, il.part_id, il.lot_id, il.location_id,
			       il.quantity, il.unit_cost, d.document_number
			FROM issue_lines il
			JOIN issue_documents d ON d.id = il.document_id
			WHERE d.tenant_id = $1 AND il.id = $2
			FOR UPDATE OF il
		`, tenantID, in.IssueLineID).Scan(&il.ID, &il.DocumentID, &il.RequestLineID, &il.PartID,
			&il.LotID, &il.LocationID, &il.Quantity, &il.UnitCost, &documentNumber)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: issue line %d", ErrNotFound, in.IssueLineID)
			}
			return fmt.Errorf("failed to lock issue line %d: %w", in.IssueLineID, err)
		}

		var returned decimal.Decimal
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(SUM(quantity), 0)
			FROM stock_movements
			WHERE tenant_id = $1 AND movement_type = $2 AND issue_line_id = $3
		`, tenantID, string(MovementReturn), il.ID).Scan(&returned); err != nil {
			return fmt.Errorf("failed to sum returns for issue line %d: %w", il.ID, err)
		}
		if returned.Add(in.Quantity).GreaterThan(il.Quantity) {
			return fmt.Errorf("%w: issue line %d issued %s, %s already returned, cannot return %s more",
				ErrInvalidQuantity, il.ID, il.Quantity, returned, in.Quantity)
		}

		locationID := in.LocationID
		if locationID == 0 {
			locationID = il.LocationID
		}
		loc, err := resolveLocation(ctx, tx, tenantID, 0, locationID)
		if err != nil {
			return err
		}

		balanceID, err := ensureBalance(ctx, tx, tenantID, il.PartID, loc.ID, il.LotID)
		if err != nil {
			return err
		}
		locked, err := lockBalancesByID(ctx, tx, tenantID, []int{balanceID})
		if err != nil {
			return err
		}
		if len(locked) != 1 {
			return fmt.Errorf("%w: balance %d vanished after upsert", ErrInconsistentState, balanceID)
		}
		b := &locked[0]
		if err := changeBalance(ctx, tx, b, in.Quantity, decimal.Zero); err != nil {
			return err
		}

		if _, err := appendMovement(ctx, tx, StockMovement{
			TenantID:         tenantID,
			Type:             MovementReturn,
			PartID:           il.PartID,
			LotID:            il.LotID,
			ToLocationID:     &loc.ID,
			Quantity:         in.Quantity,
			UnitCostSnapshot: il.UnitCost,
			Reference:        movementReference(in.Reference, documentNumber),
			IssueLineID:      &il.ID,
			ActorID:          actorID,
		}); err != nil {
			return err
		}
		result = *b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("stock returned", zap.Int("tenant_id", tenantID), zap.Int("issue_line_id", in.IssueLineID),
		zap.Int("balance_id", result.ID), zap.String("quantity", in.Quantity.String()), zap.Int("actor_id", actorID))
	return &result, nil
}

func (s *fulfillmentService) AdjustStock(ctx context.Context, tenantID, actorID int, in AdjustStockInput) (*StockBalance, error) {
	if in.Delta.IsZero() {
		return nil, fmt.Errorf("%w: adjustment delta cannot be zero", ErrInvalidQuantity)
	}
	if err := validateQuantity(in.Delta.Abs()); err != nil {
		return nil, err
	}
	if in.Reason == "" {
		return nil, fmt.Errorf("%w: adjustment reason is required", ErrInvalidInput)
	}

	var result StockBalance
	err := s.tx.inTx(ctx, "adjust_stock", func(tx pgx.Tx) error {
		locked, err := lockBalancesByID(ctx, tx, tenantID, []int{in.BalanceID})
		if err != nil {
			return err
		}
		if len(locked) == 0 {
			return fmt.Errorf("%w: stock balance %d", ErrNotFound, in.BalanceID)
		}
		b := &locked[0]

		m := StockMovement{
			TenantID:         tenantID,
			Type:             MovementAdjustment,
			PartID:           b.PartID,
			LotID:            b.LotID,
			Quantity:         in.Delta.Abs(),
			UnitCostSnapshot: b.UnitCost,
			Reference:        in.Reason,
			ActorID:          actorID,
		}
		if in.Delta.IsNegative() {
			if b.Available().LessThan(in.Delta.Abs()) {
				return fmt.Errorf("%w: balance %d has %s available, cannot remove %s",
					ErrInsufficientAvailableStock, b.ID, b.Available(), in.Delta.Abs())
			}
			m.FromLocationID = &b.LocationID
		} else {
			m.ToLocationID = &b.LocationID
		}

		if err := changeBalance(ctx, tx, b, in.Delta, decimal.Zero); err != nil {
			return err
		}
		if _, err := appendMovement(ctx, tx, m); err != nil {
			return err
		}
		result = *b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("stock adjusted", zap.Int("tenant_id", tenantID), zap.Int("balance_id", in.BalanceID),
		zap.String("delta", in.Delta.String()), zap.String("reason", in.Reason), zap.Int("actor_id", actorID))
	return &result, nil
}
