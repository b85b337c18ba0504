package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// RequestService manages the part request lifecycle outside of stock
// movements: drafting, submission, approval, cancellation and closing.
// Reservation and issue live in FulfillmentService.
type RequestService interface {
	// CreateRequest stores a DRAFT request owned by actorID.
	CreateRequest(ctx context.Context, tenantID, actorID int, in CreateRequestInput) (*PartRequest, error)
	SubmitRequest(ctx context.Context, tenantID, actorID, requestID int) (*PartRequest, error)
	ApproveRequest(ctx context.Context, tenantID, actorID, requestID int) (*PartRequest, error)
	// CancelRequest releases any reservations and moves the request to CANCELLED.
	CancelRequest(ctx context.Context, tenantID, actorID, requestID int) (*PartRequest, error)
	// CloseRequest archives a fully issued request.
	CloseRequest(ctx context.Context, tenantID, actorID, requestID int) (*PartRequest, error)

	GetRequest(ctx context.Context, tenantID, requestID int) (*PartRequest, error)
	// GetRequestByNumber looks a request up by its PR document number.
	GetRequestByNumber(ctx context.Context, tenantID int, number string) (*PartRequest, error)
	ListRequests(ctx context.Context, tenantID int, status *RequestStatus) ([]PartRequest, error)
}

type requestService struct {
	tx  txRunner
	log *zap.Logger
}

func NewRequestService(pool *pgxpool.Pool, lockTimeout time.Duration, log *zap.Logger) RequestService {
	return &requestService{tx: newTxRunner(pool, lockTimeout, log), log: log}
}

const requestColumns = `
	id, tenant_id, request_number, status, requester_id, driver_id, vehicle_ref, notes,
	created_at, updated_at, submitted_at, approved_at, reserved_at, issued_at, closed_at, cancelled_at`

func scanRequest(row rowScanner) (PartRequest, error) {
	var r PartRequest
	var status string
	err := row.Scan(&r.ID, &r.TenantID, &r.RequestNumber, &status, &r.RequesterID, &r.DriverID,
		&r.VehicleRef, &r.Notes, &r.CreatedAt, &r.UpdatedAt, &r.SubmittedAt, &r.ApprovedAt,
		&r.ReservedAt, &r.IssuedAt, &r.ClosedAt, &r.CancelledAt)
	r.Status = RequestStatus(status)
	return r, err
}

// lockRequest takes the request row lock, the first lock of every request operation.
func lockRequest(ctx context.Context, tx pgx.Tx, tenantID, requestID int) (PartRequest, error) {
	r, err := scanRequest(tx.QueryRow(ctx,
		"SELECT "+requestColumns+" FROM part_requests WHERE tenant_id = $1 AND id = $2 FOR UPDATE",
		tenantID, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PartRequest{}, fmt.Errorf("%w: part request %d", ErrNotFound, requestID)
		}
		return PartRequest{}, fmt.Errorf("failed to lock part request %d: %w", requestID, err)
	}
	return r, nil
}

const requestLineQuery = `
	SELECT l.id, l.request_id, l.line_number, l.part_id, p.sku, p.name,
	       l.quantity_requested, l.quantity_reserved, l.quantity_issued
	FROM part_request_lines l
	JOIN parts p ON p.id = l.part_id
	WHERE l.request_id = $1
	ORDER BY l.line_number`

func queryRequestLines(ctx context.Context, q pgxQuerier, sql string, requestID int) ([]PartRequestLine, error) {
	rows, err := q.Query(ctx, sql, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query request lines: %w", err)
	}
	defer rows.Close()

	var lines []PartRequestLine
	for rows.Next() {
		var l PartRequestLine
		if err := rows.Scan(&l.ID, &l.RequestID, &l.LineNumber, &l.PartID, &l.SKU, &l.PartName,
			&l.QuantityRequested, &l.QuantityReserved, &l.QuantityIssued); err != nil {
			return nil, fmt.Errorf("failed to scan request line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// lockRequestLines locks the request's lines in line order. Call after lockRequest.
func lockRequestLines(ctx context.Context, tx pgx.Tx, requestID int) ([]PartRequestLine, error) {
	return queryRequestLines(ctx, tx, requestLineQuery+" FOR UPDATE OF l", requestID)
}

// loadRequest reads a request with its lines without locking.
func loadRequest(ctx context.Context, q pgxQuerier, tenantID, requestID int) (*PartRequest, error) {
	r, err := scanRequest(q.QueryRow(ctx,
		"SELECT "+requestColumns+" FROM part_requests WHERE tenant_id = $1 AND id = $2",
		tenantID, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: part request %d", ErrNotFound, requestID)
		}
		return nil, fmt.Errorf("failed to fetch part request %d: %w", requestID, err)
	}
	r.Lines, err = queryRequestLines(ctx, q, requestLineQuery, r.ID)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// setRequestStatus moves a locked request to next, stamping the given
// timestamp column. An empty stamp only touches updated_at.
func setRequestStatus(ctx context.Context, tx pgx.Tx, r *PartRequest, next RequestStatus, stamp string) error {
	if err := checkTransition(r.ID, r.Status, next); err != nil {
		return err
	}
	sql := "UPDATE part_requests SET status = $2, updated_at = NOW()"
	if stamp != "" {
		sql += ", " + stamp + " = NOW()"
	}
	sql += " WHERE id = $1"
	if _, err := tx.Exec(ctx, sql, r.ID, string(next)); err != nil {
		return fmt.Errorf("failed to update part request %d status: %w", r.ID, err)
	}
	r.Status = next
	return nil
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

func (s *requestService) CreateRequest(ctx context.Context, tenantID, actorID int, in CreateRequestInput) (*PartRequest, error) {
	if len(in.Lines) == 0 {
		return nil, fmt.Errorf("%w: request must have at least one line", ErrInvalidInput)
	}
	for i, l := range in.Lines {
		if err := validateQuantity(l.Quantity); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
	}

	var requestID int
	err := s.tx.inTx(ctx, "create_request", func(tx pgx.Tx) error {
		for i, l := range in.Lines {
			p, err := getPart(ctx, tx, tenantID, l.PartID)
			if err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
			if !p.IsActive {
				return fmt.Errorf("%w: line %d: part %s is inactive", ErrInvalidInput, i+1, p.SKU)
			}
		}

		number, err := nextDocumentNumber(ctx, tx, tenantID, DocTypePartRequest)
		if err != nil {
			return err
		}

		if err := tx.QueryRow(ctx, `
			INSERT INTO part_requests (tenant_id, request_number, status, requester_id, driver_id, vehicle_ref, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`, tenantID, number, string(RequestDraft), actorID, in.DriverID, in.VehicleRef, in.Notes).Scan(&requestID); err != nil {
			return fmt.Errorf("failed to insert part request: %w", err)
		}

		for i, l := range in.Lines {
			if _, err := tx.Exec(ctx, `
				INSERT INTO part_request_lines (request_id, line_number, part_id, quantity_requested)
				VALUES ($1, $2, $3, $4)
			`, requestID, i+1, l.PartID, l.Quantity); err != nil {
				return fmt.Errorf("failed to insert request line %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("part request created", zap.Int("tenant_id", tenantID), zap.Int("request_id", requestID),
		zap.Int("actor_id", actorID), zap.Int("lines", len(in.Lines)))
	return loadRequest(ctx, s.tx.pool, tenantID, requestID)
}

// transition runs a plain status change under the request lock. When
// sources is non-empty the request must currently be in one of them.
func (s *requestService) transition(ctx context.Context, tenantID, actorID, requestID int, next RequestStatus, sources ...RequestStatus) (*PartRequest, error) {
	var from RequestStatus
	err := s.tx.inTx(ctx, "transition_request", func(tx pgx.Tx) error {
		r, err := lockRequest(ctx, tx, tenantID, requestID)
		if err != nil {
			return err
		}
		from = r.Status
		if len(sources) > 0 && !slices.Contains(sources, r.Status) {
			return fmt.Errorf("%w: request %d cannot move from %s to %s", ErrInvalidState, r.ID, r.Status, next)
		}
		return setRequestStatus(ctx, tx, &r, next, statusTimestampColumn(next))
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("part request status changed", zap.Int("tenant_id", tenantID), zap.Int("request_id", requestID),
		zap.Int("actor_id", actorID), zap.String("from", string(from)), zap.String("to", string(next)))
	return loadRequest(ctx, s.tx.pool, tenantID, requestID)
}

func (s *requestService) SubmitRequest(ctx context.Context, tenantID, actorID, requestID int) (*PartRequest, error) {
	return s.transition(ctx, tenantID, actorID, requestID, RequestSubmitted)
}

func (s *requestService) ApproveRequest(ctx context.Context, tenantID, actorID, requestID int) (*PartRequest, error) {
	// RESERVED/PARTIAL → APPROVED belongs to ReleaseReservations, which also
	// gives the stock back.
	return s.transition(ctx, tenantID, actorID, requestID, RequestApproved, RequestSubmitted)
}

func (s *requestService) CloseRequest(ctx context.Context, tenantID, actorID, requestID int) (*PartRequest, error) {
	return s.transition(ctx, tenantID, actorID, requestID, RequestClosed)
}

func (s *requestService) CancelRequest(ctx context.Context, tenantID, actorID, requestID int) (*PartRequest, error) {
	var from RequestStatus
	err := s.tx.inTx(ctx, "cancel_request", func(tx pgx.Tx) error {
		r, err := lockRequest(ctx, tx, tenantID, requestID)
		if err != nil {
			return err
		}
		from = r.Status
		if err := checkTransition(r.ID, r.Status, RequestCancelled); err != nil {
			return err
		}
		if _, err := lockRequestLines(ctx, tx, r.ID); err != nil {
			return err
		}
		balances, err := lockReservedBalances(ctx, tx, tenantID, r.ID)
		if err != nil {
			return err
		}
		if _, err := releaseReservationsTx(ctx, tx, tenantID, r.ID, indexBalances(balances)); err != nil {
			return err
		}
		return setRequestStatus(ctx, tx, &r, RequestCancelled, statusTimestampColumn(RequestCancelled))
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("part request cancelled", zap.Int("tenant_id", tenantID), zap.Int("request_id", requestID),
		zap.Int("actor_id", actorID), zap.String("from", string(from)))
	return loadRequest(ctx, s.tx.pool, tenantID, requestID)
}

// ── Queries ──────────────────────────────────────────────────────────────────

func (s *requestService) GetRequest(ctx context.Context, tenantID, requestID int) (*PartRequest, error) {
	return loadRequest(ctx, s.tx.pool, tenantID, requestID)
}

func (s *requestService) GetRequestByNumber(ctx context.Context, tenantID int, number string) (*PartRequest, error) {
	var id int
	err := s.tx.pool.QueryRow(ctx,
		"SELECT id FROM part_requests WHERE tenant_id = $1 AND request_number = $2",
		tenantID, number).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: part request %s", ErrNotFound, number)
		}
		return nil, fmt.Errorf("failed to resolve part request %s: %w", number, err)
	}
	return loadRequest(ctx, s.tx.pool, tenantID, id)
}

func (s *requestService) ListRequests(ctx context.Context, tenantID int, status *RequestStatus) ([]PartRequest, error) {
	var filter *string
	if status != nil {
		v := string(*status)
		filter = &v
	}
	rows, err := s.tx.pool.Query(ctx, `
		SELECT `+requestColumns+`
		FROM part_requests
		WHERE tenant_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY id DESC
	`, tenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query part requests: %w", err)
	}
	defer rows.Close()

	var requests []PartRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan part request: %w", err)
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}
